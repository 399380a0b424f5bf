package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/mat"

	spinar "github.com/cran/spINAR"
	"github.com/cran/spINAR/internal/store"
)

// ModelRequest carries the series and model choices shared by all endpoints.
// Unset strings fall back to the package defaults.
type ModelRequest struct {
	X       []float64 `json:"x"`
	Order   int       `json:"order"`
	Setting string    `json:"setting"`
	Type    string    `json:"type"`
	Family  string    `json:"family"`
}

type LikelihoodRequest struct {
	ModelRequest
	Par []float64 `json:"par"`
}

type BootstrapRequest struct {
	ModelRequest
	B          int      `json:"b"`
	M          *int     `json:"m"`
	Level      *float64 `json:"level"`
	Seed       int64    `json:"seed"`
	MaxRetries int      `json:"max_retries"`
}

type interval struct {
	Name     string `json:"name"`
	ThetaHat number `json:"theta_hat"`
	Lower    number `json:"lower"`
	Upper    number `json:"upper"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, JSON{"status": "ok"})
}

func (h *Handler) PostLikelihood(w http.ResponseWriter, r *http.Request) {
	var req LikelihoodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}
	x, opts, err := req.parse()
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	var nll float64
	switch opts.Setting {
	case spinar.Semiparametric:
		if len(req.Par) < opts.Order {
			writeError(w, http.StatusBadRequest, fmt.Errorf("par needs at least %d thinning coefficients", opts.Order))
			return
		}
		nll = spinar.SemiparametricNLL(req.Par, x, opts.Order)
	default:
		if want := opts.Order + opts.Family.Arity(); len(req.Par) != want {
			writeError(w, http.StatusBadRequest, fmt.Errorf("par must have %d entries for %s, got %d", want, opts.Family, len(req.Par)))
			return
		}
		nll = spinar.FamilyNLL(req.Par, x, opts.Order, opts.Family)
	}

	writeJSON(w, http.StatusOK, JSON{"nll": number(nll), "n": len(x)})
}

func (h *Handler) PostEstimate(w http.ResponseWriter, r *http.Request) {
	var req ModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}
	x, opts, err := req.parse()
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	if err := h.checkSupport(x, opts.Setting); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	est := &spinar.DefaultEstimator{}
	theta, err := est.Estimate(x, opts.Order, opts.Setting, opts.Type, opts.Family)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, JSON{"theta": numbers(theta)})
}

func (h *Handler) PostBootstrap(w http.ResponseWriter, r *http.Request) {
	var req BootstrapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}
	x, opts, err := req.parse()
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if req.B > h.maxReplicates {
		writeError(w, http.StatusBadRequest, fmt.Errorf("b = %d exceeds the limit of %d", req.B, h.maxReplicates))
		return
	}
	if req.M != nil && *req.M > h.maxCutoff {
		writeError(w, http.StatusBadRequest, fmt.Errorf("m = %d exceeds the limit of %d", *req.M, h.maxCutoff))
		return
	}
	if err := h.checkSupport(x, opts.Setting); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	opts.B = req.B
	opts.Seed = req.Seed
	opts.MaxRetries = req.MaxRetries
	if req.M != nil {
		opts.M = *req.M
	}
	if req.Level != nil {
		opts.Level = *req.Level
	}

	start := time.Now()
	res, err := spinar.Bootstrap(r.Context(), x, opts)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	log.Printf("bootstrap: n=%d B=%d setting=%s took %s", len(x), opts.B, opts.Setting, time.Since(start))

	id, err := store.SaveRun(r.Context(), h.db, res)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("archive run: %w", err))
		return
	}

	writeJSON(w, http.StatusOK, JSON{
		"id":         id,
		"seed":       res.Options.Seed,
		"invalid":    res.Invalid,
		"fields":     res.ResultFields(),
		"percentile": intervals(res, res.CIPercentile),
		"hall":       intervals(res, res.CIHall),
	})
}

func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := store.ListRuns(r.Context(), h.db, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, JSON{"runs": runs})
}

func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	run, err := store.GetRun(r.Context(), h.db, id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	rows := make([]JSON, len(run.Intervals))
	for i, iv := range run.Intervals {
		rows[i] = JSON{
			"column":    iv.Column,
			"name":      iv.Name,
			"method":    iv.Method,
			"theta_hat": number(iv.ThetaHat),
			"lower":     number(iv.Lower),
			"upper":     number(iv.Upper),
		}
	}
	writeJSON(w, http.StatusOK, JSON{
		"run":       run.RunSummary,
		"options":   run.Options,
		"invalid":   run.Invalid,
		"intervals": rows,
	})
}

// parse converts the request into a count series and bootstrap defaults
// overridden by the model choices.
func (req ModelRequest) parse() (spinar.CountSequence, spinar.BootstrapOptions, error) {
	opts := spinar.DefaultBootstrapOptions()
	x, err := spinar.CountsFromFloats(req.X)
	if err != nil {
		return nil, opts, err
	}
	opts.Order = req.Order
	if req.Setting != "" {
		if opts.Setting, err = spinar.ParseSetting(req.Setting); err != nil {
			return nil, opts, err
		}
	}
	if req.Type != "" {
		if opts.Type, err = spinar.ParseEstimationType(req.Type); err != nil {
			return nil, opts, err
		}
	}
	if req.Family != "" {
		if opts.Family, err = spinar.ParseFamily(req.Family); err != nil {
			return nil, opts, err
		}
	}
	if opts.Order != 1 && opts.Order != 2 {
		return nil, opts, fmt.Errorf("%w: order must be 1 or 2, got %d", spinar.ErrInvalidArgument, opts.Order)
	}
	if len(x) < opts.Order+1 {
		return nil, opts, fmt.Errorf("%w: need at least %d observations, got %d", spinar.ErrInvalidArgument, opts.Order+1, len(x))
	}
	return x, opts, nil
}

// checkSupport rejects semiparametric fits whose largest count exceeds the
// handler limit.
func (h *Handler) checkSupport(x spinar.CountSequence, setting spinar.Setting) error {
	if setting != spinar.Semiparametric {
		return nil
	}
	if top := lo.Max([]int(x)); top > h.maxSupport {
		return fmt.Errorf("max(x) = %d exceeds the semiparametric limit of %d", top, h.maxSupport)
	}
	return nil
}

func intervals(res *spinar.BootstrapResult, ci *mat.Dense) []interval {
	if ci == nil {
		return nil
	}
	out := make([]interval, len(res.Columns))
	for j := range res.Columns {
		out[j] = interval{
			Name:     res.Names[j],
			ThetaHat: number(res.ThetaHat[j]),
			Lower:    number(ci.At(0, j)),
			Upper:    number(ci.At(1, j)),
		}
	}
	return out
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, spinar.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
