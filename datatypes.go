// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Dec 12th 2025
// Project: Likelihood and Bootstrap Inference for INAR Count Time Series
// Class: 02-613 at Caregie Mellon University

package spinar

import (
	"errors"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Error classes returned by the package. Callers should match with errors.Is.
var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrReplicateFailure = errors.New("bootstrap replicate failed")
)

// CountSequence is an observed INAR series, X_1..X_n, all non-negative.
type CountSequence []int

// What kind of innovation model the estimator fits
type Setting int

// Settings for estimation and bootstrap
const (
	Semiparametric Setting = iota
	Parametric
)

// Which estimation method to use in the parametric setting
type EstimationType int

const (
	Moment EstimationType = iota
	MaximumLikelihood
)

// Family is a parametric innovation distribution.
type Family int

const (
	FamilyPoisson Family = iota
	FamilyGeometric
	FamilyNegativeBinomial
)

// Innovation is a probability mass function on the non-negative integers.
// Density must return 0 for any k outside its support and never panic.
type Innovation interface {
	Density(k int) float64
}

// Estimator is the interface for an INAR parameter estimator.
type Estimator interface {
	// Returns thinning coefficients followed by the innovation parameters.
	// The semiparametric setting ignores typ and family.
	Estimate(x CountSequence, p int, setting Setting, typ EstimationType, family Family) ([]float64, error)
}

// Simulator is the interface for an INAR(p) path generator.
type Simulator interface {
	// Draws a path of length n with the given thinning coefficients and an
	// innovation pmf on 0..len(pmf)-1.
	Simulate(rng *rand.Rand, n int, thinning []float64, pmf []float64) (CountSequence, error)
}

// ProgressFunc is called once per finished replicate.
type ProgressFunc func(done, total int)

// Options for the parametric and semiparametric bootstrap
type BootstrapOptions struct {
	// Model order, 1 or 2
	Order int

	// Number of bootstrap replications
	B int

	Setting Setting
	Type    EstimationType
	Family  Family

	// Support cutoff used to truncate the fitted parametric pmf
	M int

	// Confidence level alpha (e.g., 0.05 for 95% CI)
	Level float64

	// RNG seed (if 0, time-based seed is used)
	Seed int64

	// Number of goroutines, 0 means runtime.NumCPU()
	Workers int

	// Redraws allowed for a failing replicate. 0 keeps failures unguarded.
	MaxRetries int

	// Collaborators, nil means the package defaults
	Estimator Estimator    `json:"-"`
	Simulator Simulator    `json:"-"`
	Progress  ProgressFunc `json:"-"`
}

// BootstrapResult stores the resampled paths, the re-estimated parameters and
// both CI tables. All column-indexed fields share the trimmed column order.
type BootstrapResult struct {
	// Simulated paths (n x B), column b is replicate b
	XStar *mat.Dense

	// Re-estimated parameters (B x K'), zero columns removed
	ParametersStar *mat.Dense

	// Rows are lower, upper (2 x K')
	CIPercentile *mat.Dense
	CIHall       *mat.Dense

	// Baseline estimate on the observed data
	ThetaHat []float64

	// Pre-trim column index and label for every kept column
	Columns []int
	Names   []string

	// Replicates excluded from the intervals after exhausting MaxRetries
	Invalid []int

	Options BootstrapOptions
}

// replicate reports one finished simulate-then-estimate cycle. The path and
// estimate are already written into the result buffers at Index.
type replicate struct {
	Index int
	Err   error
}
