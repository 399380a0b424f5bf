// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Dec 12th 2025
// Project: Likelihood and Bootstrap Inference for INAR Count Time Series
// Class: 02-613 at Caregie Mellon University

package spinar

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultBurnIn is the number of leading draws INARSimulator throws away.
const DefaultBurnIn = 500

// INARSimulator draws INAR(p) paths X_t = a_1∘X_{t-1} + ... + a_p∘X_{t-p} + e_t
// with binomial thinning and innovations from a finite pmf.
type INARSimulator struct {
	// Leading draws discarded so the path starts near stationarity.
	// Negative means DefaultBurnIn.
	BurnIn int
}

// NewINARSimulator returns a simulator with the default burn-in.
func NewINARSimulator() *INARSimulator {
	return &INARSimulator{BurnIn: DefaultBurnIn}
}

// Simulate generates a path of length n. The pmf does not need to sum to one;
// it is used as categorical weights, so a truncated parametric pmf can be
// passed as is.
func (s *INARSimulator) Simulate(rng *rand.Rand, n int, thinning []float64, pmf []float64) (CountSequence, error) {
	if rng == nil {
		return nil, fmt.Errorf("%w: rng not provided", ErrInvalidArgument)
	}
	if n <= 0 {
		return nil, fmt.Errorf("%w: length must be > 0, got %d", ErrInvalidArgument, n)
	}
	p := len(thinning)
	if p < 1 || p > 2 {
		return nil, fmt.Errorf("%w: order must be 1 or 2, got %d", ErrInvalidArgument, p)
	}
	for j, a := range thinning {
		if !(a >= 0 && a <= 1) {
			return nil, fmt.Errorf("%w: thinning coefficient %d = %v outside [0,1]", ErrInvalidArgument, j+1, a)
		}
	}
	if err := checkWeights(pmf); err != nil {
		return nil, err
	}
	innov := distuv.NewCategorical(pmf, rng)

	burn := s.BurnIn
	if burn < 0 {
		burn = DefaultBurnIn
	}

	total := n + burn
	x := make(CountSequence, total)
	for t := 0; t < total; t++ {
		val := int(innov.Rand())
		// lags before the start of the path contribute nothing
		for j := 0; j < p; j++ {
			if t-1-j < 0 {
				break
			}
			val += thin(rng, x[t-1-j], thinning[j])
		}
		x[t] = val
	}

	return x[burn:], nil
}

// checkWeights rejects pmfs that distuv.NewCategorical cannot take.
func checkWeights(pmf []float64) error {
	if len(pmf) == 0 {
		return fmt.Errorf("%w: innovation pmf is empty", ErrInvalidArgument)
	}
	sum := 0.0
	for k, v := range pmf {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: innovation pmf entry %d = %v", ErrInvalidArgument, k, v)
		}
		sum += v
	}
	if sum <= 0 {
		return fmt.Errorf("%w: innovation pmf has no mass", ErrInvalidArgument)
	}
	return nil
}

// thin draws the survivors a∘n. The endpoints are exact.
func thin(rng *rand.Rand, n int, a float64) int {
	switch {
	case a <= 0 || n <= 0:
		return 0
	case a >= 1:
		return n
	}
	return int(distuv.Binomial{N: float64(n), P: a, Src: rng}.Rand())
}
