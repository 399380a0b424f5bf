package api

import (
	"database/sql"
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

type JSON map[string]any

func RegisterRoutes(r *mux.Router, db *sql.DB) {
	h := &Handler{
		db:            db,
		maxReplicates: DefaultMaxReplicates,
		maxCutoff:     DefaultMaxCutoff,
		maxSupport:    DefaultMaxSupport,
	}

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	// Likelihood and estimation
	r.HandleFunc("/likelihood", h.PostLikelihood).Methods(http.MethodPost)
	r.HandleFunc("/estimate", h.PostEstimate).Methods(http.MethodPost)

	// Bootstrap runs
	r.HandleFunc("/bootstrap", h.PostBootstrap).Methods(http.MethodPost)
	r.HandleFunc("/runs", h.ListRuns).Methods(http.MethodGet)
	r.HandleFunc("/runs/{id:[0-9]+}", h.GetRun).Methods(http.MethodGet)
}

// Per-request limits. maxSupport bounds max(x) for semiparametric fits, whose
// parameter count grows with the largest observed count.
const (
	DefaultMaxReplicates = 5000
	DefaultMaxCutoff     = 1000
	DefaultMaxSupport    = 200
)

type Handler struct {
	db            *sql.DB
	maxReplicates int
	maxCutoff     int
	maxSupport    int
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, JSON{"error": err.Error()})
}

// number encodes NaN and infinities as null, which encoding/json refuses to do.
type number float64

func (n number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(f, 'g', -1, 64)), nil
}

func numbers(v []float64) []number {
	out := make([]number, len(v))
	for i, f := range v {
		out[i] = number(f)
	}
	return out
}
