// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Dec 12th 2025
// Project: Likelihood and Bootstrap Inference for INAR Count Time Series
// Class: 02-613 at Caregie Mellon University

package spinar

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/mat"
)

// minLevel is the smallest confidence level accepted.
const minLevel = 1e-4

// DefaultBootstrapOptions returns the defaults: INAR(1), 500 replications,
// semiparametric setting, moment estimation of a Poisson family when switched
// to parametric, M = 100 and level 0.05.
func DefaultBootstrapOptions() BootstrapOptions {
	return BootstrapOptions{
		Order:   1,
		B:       500,
		Setting: Semiparametric,
		Type:    Moment,
		Family:  FamilyPoisson,
		M:       100,
		Level:   0.05,
	}
}

// Validate checks every structural argument of a bootstrap run.
func (opts BootstrapOptions) Validate(x CountSequence) error {
	if err := checkSeries(x, opts.Order); err != nil {
		return err
	}
	if opts.B < 1 {
		return fmt.Errorf("%w: B must be >= 1, got %d", ErrInvalidArgument, opts.B)
	}
	if opts.Setting != Semiparametric && opts.Setting != Parametric {
		return fmt.Errorf("%w: unknown setting %d", ErrInvalidArgument, int(opts.Setting))
	}
	if opts.Type != Moment && opts.Type != MaximumLikelihood {
		return fmt.Errorf("%w: unknown estimation type %d", ErrInvalidArgument, int(opts.Type))
	}
	switch opts.Family {
	case FamilyPoisson, FamilyGeometric, FamilyNegativeBinomial:
	default:
		return fmt.Errorf("%w: unknown family %d", ErrInvalidArgument, int(opts.Family))
	}
	if opts.M < 0 {
		return fmt.Errorf("%w: M must be >= 0, got %d", ErrInvalidArgument, opts.M)
	}
	if opts.M > math.MaxInt-opts.Order-1 || !fitsBuffer(opts.B, opts.Order+opts.M+1) || !fitsBuffer(len(x), opts.B) {
		return fmt.Errorf("%w: M = %d with B = %d is too large for the result buffers", ErrInvalidArgument, opts.M, opts.B)
	}
	if !(opts.Level > minLevel && opts.Level < 1) {
		return fmt.Errorf("%w: level must be in (%g, 1), got %v", ErrInvalidArgument, minLevel, opts.Level)
	}
	if opts.Workers < 0 {
		return fmt.Errorf("%w: workers must be >= 0, got %d", ErrInvalidArgument, opts.Workers)
	}
	if opts.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must be >= 0, got %d", ErrInvalidArgument, opts.MaxRetries)
	}
	return nil
}

// Bootstrap fits the model to x, draws B paths from the fit, refits each path
// and builds percentile and Hall intervals from the refitted parameters.
// Replicates run in parallel but every replicate has its own seed and output
// slots, so the result only depends on opts.Seed.
func Bootstrap(ctx context.Context, x CountSequence, opts BootstrapOptions) (*BootstrapResult, error) {
	if err := opts.Validate(x); err != nil {
		return nil, err
	}

	est := opts.Estimator
	if est == nil {
		est = &DefaultEstimator{}
	}
	sim := opts.Simulator
	if sim == nil {
		sim = NewINARSimulator()
	}

	p := opts.Order
	n := len(x)
	B := opts.B

	// 1. Baseline estimate on the observed data
	thetaHat, err := est.Estimate(x, p, opts.Setting, opts.Type, opts.Family)
	if err != nil {
		return nil, fmt.Errorf("baseline estimate failed: %w", err)
	}
	if len(thetaHat) <= p {
		return nil, fmt.Errorf("baseline estimate has %d parameters, need more than %d", len(thetaHat), p)
	}
	thinning := thetaHat[:p]

	// 2. Innovation pmf the paths are drawn from
	var pmf []float64
	if opts.Setting == Semiparametric {
		pmf = thetaHat[p:]
	} else {
		innov, errInnov := opts.Family.Innovation(thetaHat[p:])
		if errInnov != nil {
			return nil, fmt.Errorf("baseline innovation: %w", errInnov)
		}
		pmf = Truncate(innov, opts.M)
	}

	// 3. Buffers, zero padded to the widest estimate we expect
	K := max(p+opts.M+1, len(thetaHat))
	if !fitsBuffer(B, K) {
		return nil, fmt.Errorf("%w: %d parameters per replicate is too large for B = %d", ErrInvalidArgument, K, B)
	}
	xStar := mat.NewDense(n, B, nil)
	params := mat.NewDense(B, K, nil)

	// 4. Per-replication seeds (so RNG is not shared across goroutines)
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	masterRng := rand.New(rand.NewPCG(uint64(opts.Seed), 0))
	seeds := make([]uint64, B)
	for b := range seeds {
		seeds[b] = masterRng.Uint64()
	}

	numWorkers := opts.Workers
	if numWorkers == 0 {
		numWorkers = runtime.NumCPU()
	}
	numWorkers = min(numWorkers, B)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	rc := replicateConfig{
		opts:      opts,
		estimator: est,
		simulator: sim,
		n:         n,
		thinning:  thinning,
		pmf:       pmf,
		xStar:     xStar,
		params:    params,
	}

	jobs := make(chan int)
	resultsCh := make(chan replicate, B)

	var wg sync.WaitGroup
	wg.Add(numWorkers)

	worker := func() {
		defer wg.Done()
		for b := range jobs {
			resultsCh <- rc.run(runCtx, b, seeds[b])
		}
	}

	for w := 0; w < numWorkers; w++ {
		go worker()
	}

	// Feed jobs until done or cancelled
	go func() {
		defer close(jobs)
		for b := 0; b < B; b++ {
			select {
			case jobs <- b:
			case <-runCtx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultsCh)
	}()

	// 5. Collect replicate reports; the data itself is already in place
	var (
		fatal   error
		invalid []int
		done    int
	)
	for rep := range resultsCh {
		if rep.Err != nil {
			switch {
			case errors.Is(rep.Err, context.Canceled) || errors.Is(rep.Err, context.DeadlineExceeded):
				continue
			case opts.MaxRetries > 0:
				invalid = append(invalid, rep.Index)
				markInvalid(params, xStar, rep.Index)
			default:
				if fatal == nil {
					fatal = rep.Err
					cancel()
				}
				continue
			}
		}
		done++
		if opts.Progress != nil {
			opts.Progress(done, B)
		}
	}

	if fatal != nil {
		return nil, fatal
	}
	// a cancel that arrives after the last replicate does not discard the run
	if err := ctx.Err(); err != nil && done < B {
		return nil, fmt.Errorf("bootstrap stopped after %d of %d replicates: %w", done, B, err)
	}

	sort.Ints(invalid)
	valid := validRows(B, invalid)
	if len(valid) == 0 {
		return nil, fmt.Errorf("%w: all %d replicates failed", ErrReplicateFailure, B)
	}

	// 6. Drop the padding columns, then build both interval tables
	keep := nonZeroColumns(params, valid)
	if len(keep) == 0 {
		return nil, fmt.Errorf("%w: every parameter column is zero", ErrReplicateFailure)
	}

	padded := make([]float64, K)
	copy(padded, thetaHat)
	names := parameterNames(p, opts.Setting, opts.Family, K)

	res := &BootstrapResult{
		XStar:          xStar,
		ParametersStar: selectColumns(params, keep),
		ThetaHat:       lo.Map(keep, func(j int, _ int) float64 { return padded[j] }),
		Columns:        keep,
		Names:          lo.Map(keep, func(j int, _ int) string { return names[j] }),
		Invalid:        invalid,
		Options:        opts,
	}
	res.CIPercentile, res.CIHall = intervalTables(res.ParametersStar, valid, res.ThetaHat, opts.Level)

	return res, nil
}

// replicateConfig is the read-only state shared by all workers plus the
// output buffers, which each replicate only touches at its own index.
type replicateConfig struct {
	opts      BootstrapOptions
	estimator Estimator
	simulator Simulator
	n         int
	thinning  []float64
	pmf       []float64
	xStar     *mat.Dense
	params    *mat.Dense
}

// run performs replicate b: simulate a path, re-estimate, write column b of
// xStar and row b of params. With MaxRetries > 0 a failing draw is repeated
// from the same random stream; otherwise a non-finite estimate is written as is.
func (rc *replicateConfig) run(ctx context.Context, b int, seed uint64) replicate {
	rng := rand.New(rand.NewPCG(seed, uint64(b)))
	_, K := rc.params.Dims()
	o := rc.opts

	var lastErr error
	for attempt := 0; attempt <= o.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return replicate{Index: b, Err: err}
		}

		path, err := rc.simulator.Simulate(rng, rc.n, rc.thinning, rc.pmf)
		if err != nil {
			lastErr = fmt.Errorf("simulate: %w", err)
			continue
		}
		if len(path) != rc.n {
			lastErr = fmt.Errorf("simulate returned %d values, want %d", len(path), rc.n)
			continue
		}

		theta, err := rc.estimator.Estimate(path, o.Order, o.Setting, o.Type, o.Family)
		if err != nil {
			lastErr = fmt.Errorf("estimate: %w", err)
			continue
		}
		if len(theta) > K {
			lastErr = fmt.Errorf("estimate has %d parameters, buffer holds %d (raise M)", len(theta), K)
			continue
		}
		if o.MaxRetries > 0 && !allFinite(theta) {
			lastErr = fmt.Errorf("estimate is not finite: %v", theta)
			continue
		}

		for t, v := range path {
			rc.xStar.Set(t, b, float64(v))
		}
		for j, v := range theta {
			rc.params.Set(b, j, v)
		}
		return replicate{Index: b}
	}

	return replicate{Index: b, Err: fmt.Errorf("%w: replicate %d: %w", ErrReplicateFailure, b, lastErr)}
}

// markInvalid fills the slots of an excluded replicate with NaN.
func markInvalid(params, xStar *mat.Dense, b int) {
	_, K := params.Dims()
	for j := 0; j < K; j++ {
		params.Set(b, j, math.NaN())
	}
	n, _ := xStar.Dims()
	for t := 0; t < n; t++ {
		xStar.Set(t, b, math.NaN())
	}
}

// validRows lists 0..B-1 without the sorted invalid indices.
func validRows(B int, invalid []int) []int {
	rows := make([]int, 0, B-len(invalid))
	next := 0
	for b := 0; b < B; b++ {
		if next < len(invalid) && invalid[next] == b {
			next++
			continue
		}
		rows = append(rows, b)
	}
	return rows
}

// fitsBuffer reports whether a rows x cols matrix can be allocated without
// the element count overflowing int.
func fitsBuffer(rows, cols int) bool {
	return rows > 0 && cols > 0 && cols <= math.MaxInt/rows
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// parameterNames labels the K buffer columns.
func parameterNames(p int, setting Setting, family Family, K int) []string {
	names := make([]string, 0, K)
	for j := 1; j <= p; j++ {
		names = append(names, fmt.Sprintf("alpha%d", j))
	}
	if setting == Parametric {
		names = append(names, family.ParamNames()...)
	}
	for k := 0; len(names) < K; k++ {
		if setting == Semiparametric {
			names = append(names, fmt.Sprintf("pmf%d", k))
		} else {
			names = append(names, fmt.Sprintf("par%d", len(names)+1))
		}
	}
	return names[:K]
}
