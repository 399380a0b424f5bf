// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Dec 12th 2025
// Project: Likelihood and Bootstrap Inference for INAR Count Time Series
// Class: 02-613 at Caregie Mellon University

package spinar

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// binomPMF returns P(Bin(k, a) = i). The endpoints a = 0 and a = 1 are point
// masses; gonum would return NaN there because of 0*log(0).
func binomPMF(i, k int, a float64) float64 {
	if i < 0 || i > k || a < 0 || a > 1 || math.IsNaN(a) {
		return 0
	}
	switch a {
	case 0:
		if i == 0 {
			return 1
		}
		return 0
	case 1:
		if i == k {
			return 1
		}
		return 0
	}
	return distuv.Binomial{N: float64(k), P: a}.Prob(float64(i))
}

// ConditionalPMF computes P(X_t = xt | X_{t-1} = lags[0], ..., X_{t-p} = lags[p-1])
// for thinning coefficients of the same length p.
// The survivors of each lag are summed out one lag at a time, so for p = 2 this is
//
//	sum_i Bin(i; lags[0], a1) * sum_j Bin(j; lags[1], a2) * g(xt - i - j)
//
// with i <= min(xt, lags[0]) and j <= min(xt - i, lags[1]).
func ConditionalPMF(xt int, lags []int, thinning []float64, innov Innovation) float64 {
	if len(lags) != len(thinning) {
		return math.NaN()
	}
	if len(lags) == 0 {
		return innov.Density(xt)
	}

	upper := min(xt, lags[0])
	val := 0.0
	for i := 0; i <= upper; i++ {
		val += binomPMF(i, lags[0], thinning[0]) * ConditionalPMF(xt-i, lags[1:], thinning[1:], innov)
	}
	return val
}

// NegLogLikelihood returns -sum_{t>p} log P(X_t | X_{t-1}, ..., X_{t-p}) where p
// is the number of thinning coefficients (1 or 2). A transition with zero
// probability gives +Inf; it is left in so optimizers see the penalty.
// Returns NaN for an unsupported order.
func NegLogLikelihood(x CountSequence, thinning []float64, innov Innovation) float64 {
	p := len(thinning)
	if p < 1 || p > 2 {
		return math.NaN()
	}

	lags := make([]int, p)
	nll := 0.0
	for t := p; t < len(x); t++ {
		for j := 0; j < p; j++ {
			lags[j] = x[t-1-j]
		}
		nll -= math.Log(ConditionalPMF(x[t], lags, thinning, innov))
	}
	return nll
}

// ParametricNLL evaluates par = [alpha_1..alpha_p, r, prob] with negative
// binomial innovations. r is rounded to the nearest integer (ties to even)
// before use.
func ParametricNLL(par []float64, x CountSequence, p int) float64 {
	if p < 1 || p > 2 || len(par) != p+2 {
		return math.NaN()
	}
	nb := NegBinomial{R: math.RoundToEven(par[p]), Prob: par[p+1]}
	return NegLogLikelihood(x, par[:p], nb)
}

// SemiparametricNLL evaluates par = [alpha_1..alpha_p, pmf_1..pmf_M] with the
// empirical innovation pmf; pmf_0 is one minus the supplied entries.
// An invalid pmf (negative mass) evaluates to +Inf.
func SemiparametricNLL(par []float64, x CountSequence, p int) float64 {
	if p < 1 || p > 2 || len(par) < p {
		return math.NaN()
	}
	pmf := NewEmpiricalPMF(par[p:])
	if !pmf.valid() {
		return math.Inf(1)
	}
	return NegLogLikelihood(x, par[:p], pmf)
}

// FamilyNLL evaluates par = [alpha_1..alpha_p, innovation params...] for any
// parametric family. For the negative binomial it matches ParametricNLL.
func FamilyNLL(par []float64, x CountSequence, p int, family Family) float64 {
	if family == FamilyNegativeBinomial {
		return ParametricNLL(par, x, p)
	}
	if p < 1 || p > 2 || len(par) != p+family.Arity() {
		return math.NaN()
	}
	innov, err := family.Innovation(par[p:])
	if err != nil {
		return math.NaN()
	}
	return NegLogLikelihood(x, par[:p], innov)
}
