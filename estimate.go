// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Dec 12th 2025
// Project: Likelihood and Bootstrap Inference for INAR Count Time Series
// Class: 02-613 at Caregie Mellon University

package spinar

import (
	"fmt"
	"math"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

const (
	// keeps fitted probabilities off the boundary of (0,1)
	probEps = 1e-6
	// stand-in for +Inf / NaN inside Nelder-Mead
	nllPenalty = 1e300
	// function evaluations per free parameter
	evalsPerParam = 1500
)

// DefaultEstimator fits INAR(1) and INAR(2) models by moments or maximum
// likelihood. It is stateless and safe for concurrent use.
type DefaultEstimator struct{}

// Estimate dispatches on the setting. The semiparametric fit ignores typ and
// family.
func (e *DefaultEstimator) Estimate(x CountSequence, p int, setting Setting, typ EstimationType, family Family) ([]float64, error) {
	if err := checkSeries(x, p); err != nil {
		return nil, err
	}
	switch setting {
	case Semiparametric:
		return EstimateSemiparametric(x, p)
	case Parametric:
		return EstimateParametric(x, p, typ, family)
	}
	return nil, fmt.Errorf("%w: unknown setting %d", ErrInvalidArgument, int(setting))
}

// EstimateParametric returns [alpha_1..alpha_p, innovation params] for the
// given family: [lambda] for Poisson, [prob] for geometric and [r, prob] for
// the negative binomial.
func EstimateParametric(x CountSequence, p int, typ EstimationType, family Family) ([]float64, error) {
	if err := checkSeries(x, p); err != nil {
		return nil, err
	}
	if _, err := family.Innovation(make([]float64, family.Arity())); err != nil {
		return nil, err
	}

	mom := momentEstimate(x, p, family)
	switch typ {
	case Moment:
		return mom, nil
	case MaximumLikelihood:
		return mlParametric(x, p, family, mom)
	}
	return nil, fmt.Errorf("%w: unknown estimation type %d", ErrInvalidArgument, int(typ))
}

// EstimateSemiparametric fits the thinning coefficients together with an
// unrestricted innovation pmf on 0..max(x) by maximum likelihood.
// Returns [alpha_1..alpha_p, pmf_0..pmf_max(x)].
func EstimateSemiparametric(x CountSequence, p int) ([]float64, error) {
	if err := checkSeries(x, p); err != nil {
		return nil, err
	}

	m := lo.Max([]int(x))
	mom := momentEstimate(x, p, FamilyPoisson)

	// alpha on the logit scale, pmf_k as log(pmf_k/pmf_0) for k = 1..m
	z0 := make([]float64, p+m)
	for j := 0; j < p; j++ {
		z0[j] = logit(clamp(mom[j], 0.05, 0.95))
	}
	start := Truncate(Poisson{Lambda: math.Max(mom[p], 0.1)}, m)
	for k := 1; k <= m; k++ {
		z0[p+k-1] = math.Log(math.Max(start[k], 1e-8) / start[0])
	}

	decode := func(z []float64) ([]float64, []float64) {
		alpha := make([]float64, p)
		for j := range alpha {
			alpha[j] = logistic(z[j])
		}
		return alpha, softmaxWithZero(z[p:])
	}

	res, err := minimize(func(z []float64) float64 {
		alpha, pmf := decode(z)
		return NegLogLikelihood(x, alpha, EmpiricalPMF{P: pmf})
	}, z0)
	if err != nil {
		return nil, fmt.Errorf("semiparametric fit failed: %w", err)
	}

	alpha, pmf := decode(res)
	return append(alpha, pmf...), nil
}

// momentEstimate gives Yule-Walker thinning coefficients and matches the
// innovation mean (and variance, for the negative binomial).
func momentEstimate(x CountSequence, p int, family Family) []float64 {
	xf := lo.Map(x, func(v int, _ int) float64 { return float64(v) })
	mean, variance := stat.MeanVariance(xf, nil)

	rho1 := sampleACF(xf, mean, 1)
	alpha := make([]float64, p)
	switch p {
	case 1:
		alpha[0] = rho1
	case 2:
		rho2 := sampleACF(xf, mean, 2)
		den := 1 - rho1*rho1
		if den > 0 {
			alpha[0] = rho1 * (1 - rho2) / den
			alpha[1] = (rho2 - rho1*rho1) / den
		}
	}
	for j := range alpha {
		alpha[j] = clamp(alpha[j], 0, 1-probEps)
	}

	sumAlpha := lo.Sum(alpha)
	muEps := math.Max(mean*(1-sumAlpha), probEps)

	out := append([]float64{}, alpha...)
	switch family {
	case FamilyPoisson:
		out = append(out, muEps)
	case FamilyGeometric:
		out = append(out, 1/(1+muEps))
	case FamilyNegativeBinomial:
		// Var(X) identity for binomial thinning, solved for Var(e)
		sumSq, sumThin := 0.0, 0.0
		for _, a := range alpha {
			sumSq += a * a
			sumThin += a * (1 - a)
		}
		sigmaEps := (1-sumSq)*variance - sumThin*mean
		if p == 2 {
			sigmaEps -= 2 * alpha[0] * alpha[1] * rho1 * variance
		}
		prob := clamp(muEps/sigmaEps, probEps, 1-probEps)
		if sigmaEps <= 0 {
			prob = 1 - probEps
		}
		out = append(out, muEps*prob/(1-prob), prob)
	}
	return out
}

// mlParametric maximizes the family likelihood starting from the moment fit.
func mlParametric(x CountSequence, p int, family Family, start []float64) ([]float64, error) {
	encode := func(par []float64) []float64 {
		z := make([]float64, len(par))
		for j := 0; j < p; j++ {
			z[j] = logit(clamp(par[j], 0.01, 0.99))
		}
		switch family {
		case FamilyPoisson:
			z[p] = math.Log(math.Max(par[p], probEps))
		case FamilyGeometric:
			z[p] = logit(clamp(par[p], 0.01, 0.99))
		case FamilyNegativeBinomial:
			z[p] = math.Log(math.Max(par[p], 0.5))
			z[p+1] = logit(clamp(par[p+1], 0.01, 0.99))
		}
		return z
	}
	decode := func(z []float64) []float64 {
		par := make([]float64, len(z))
		for j := 0; j < p; j++ {
			par[j] = logistic(z[j])
		}
		switch family {
		case FamilyPoisson:
			par[p] = math.Exp(z[p])
		case FamilyGeometric:
			par[p] = logistic(z[p])
		case FamilyNegativeBinomial:
			par[p] = math.Exp(z[p])
			par[p+1] = logistic(z[p+1])
		}
		return par
	}

	res, err := minimize(func(z []float64) float64 {
		return FamilyNLL(decode(z), x, p, family)
	}, encode(start))
	if err != nil {
		return nil, fmt.Errorf("%s maximum likelihood fit failed: %w", family, err)
	}

	par := decode(res)
	if family == FamilyNegativeBinomial {
		// the likelihood only sees the rounded size
		par[p] = math.Max(math.RoundToEven(par[p]), 1)
	}
	return par, nil
}

// minimize runs Nelder-Mead on f from z0 and returns the best point found.
func minimize(f func([]float64) float64, z0 []float64) ([]float64, error) {
	if len(z0) == 0 {
		return z0, nil
	}
	problem := optimize.Problem{
		Func: func(z []float64) float64 {
			v := f(z)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nllPenalty
			}
			return v
		},
	}
	settings := &optimize.Settings{
		FuncEvaluations: evalsPerParam * len(z0),
	}

	res, err := optimize.Minimize(problem, z0, settings, &optimize.NelderMead{})
	if err != nil && res == nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("nelder-mead returned no location")
	}
	return res.X, nil
}

// sampleACF is the lag-k autocorrelation with the biased (1/n) autocovariance.
func sampleACF(x []float64, mean float64, k int) float64 {
	n := len(x)
	if k >= n {
		return 0
	}
	num, den := 0.0, 0.0
	for t := 0; t < n; t++ {
		d := x[t] - mean
		den += d * d
		if t+k < n {
			num += d * (x[t+k] - mean)
		}
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// checkSeries validates the order and the observed counts.
func checkSeries(x CountSequence, p int) error {
	if p != 1 && p != 2 {
		return fmt.Errorf("%w: order p must be 1 or 2, got %d", ErrInvalidArgument, p)
	}
	if len(x) < p+1 {
		return fmt.Errorf("%w: need at least p+1 = %d observations, got %d", ErrInvalidArgument, p+1, len(x))
	}
	for t, v := range x {
		if v < 0 {
			return fmt.Errorf("%w: x[%d] = %d is negative", ErrInvalidArgument, t, v)
		}
	}
	return nil
}

func logistic(z float64) float64 { return 1 / (1 + math.Exp(-z)) }

func logit(p float64) float64 { return math.Log(p / (1 - p)) }

func clamp(v, low, high float64) float64 {
	if math.IsNaN(v) {
		return low
	}
	return math.Min(math.Max(v, low), high)
}

// softmaxWithZero maps logits for 1..m (with the logit of 0 fixed at zero) to a pmf on 0..m.
func softmaxWithZero(z []float64) []float64 {
	top := 0.0
	for _, v := range z {
		top = math.Max(top, v)
	}
	pmf := make([]float64, len(z)+1)
	pmf[0] = math.Exp(-top)
	sum := pmf[0]
	for k, v := range z {
		pmf[k+1] = math.Exp(v - top)
		sum += pmf[k+1]
	}
	for k := range pmf {
		pmf[k] /= sum
	}
	return pmf
}
