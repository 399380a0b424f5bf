// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Dec 12th 2025
// Project: Likelihood and Bootstrap Inference for INAR Count Time Series
// Class: 02-613 at Caregie Mellon University

package spinar

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"
)

// NegBinomial is the negative binomial pmf with size R and success
// probability Prob, counting failures before the R-th success.
type NegBinomial struct {
	R    float64
	Prob float64
}

func (nb NegBinomial) Density(k int) float64 {
	if k < 0 || nb.R < 0 || nb.Prob <= 0 || nb.Prob > 1 || math.IsNaN(nb.R) {
		return 0
	}
	// size 0 and prob 1 are both a point mass at zero
	if nb.R == 0 || nb.Prob == 1 {
		if k == 0 {
			return 1
		}
		return 0
	}
	kf := float64(k)
	lgKR, _ := math.Lgamma(kf + nb.R)
	lgR, _ := math.Lgamma(nb.R)
	lgK1, _ := math.Lgamma(kf + 1)
	return math.Exp(lgKR - lgR - lgK1 + nb.R*math.Log(nb.Prob) + kf*math.Log1p(-nb.Prob))
}

// Poisson innovations with mean Lambda.
type Poisson struct {
	Lambda float64
}

func (po Poisson) Density(k int) float64 {
	if k < 0 || po.Lambda < 0 || math.IsNaN(po.Lambda) {
		return 0
	}
	if po.Lambda == 0 {
		if k == 0 {
			return 1
		}
		return 0
	}
	return distuv.Poisson{Lambda: po.Lambda}.Prob(float64(k))
}

// Geometric innovations, P(k) = Prob (1-Prob)^k.
type Geometric struct {
	Prob float64
}

func (g Geometric) Density(k int) float64 {
	if k < 0 || g.Prob <= 0 || g.Prob > 1 {
		return 0
	}
	return g.Prob * math.Pow(1-g.Prob, float64(k))
}

// EmpiricalPMF is a finite pmf on 0..len(P)-1. Lookups outside the
// support return 0.
type EmpiricalPMF struct {
	P []float64
}

// NewEmpiricalPMF builds a pmf from the entries for 1..M, with the mass at
// zero implied as one minus their sum.
func NewEmpiricalPMF(tail []float64) EmpiricalPMF {
	p := make([]float64, len(tail)+1)
	sum := 0.0
	for i, v := range tail {
		p[i+1] = v
		sum += v
	}
	p[0] = 1 - sum
	return EmpiricalPMF{P: p}
}

func (e EmpiricalPMF) Density(k int) float64 {
	if k < 0 || k >= len(e.P) {
		return 0
	}
	return e.P[k]
}

// valid reports whether every entry is a probability.
func (e EmpiricalPMF) valid() bool {
	for _, v := range e.P {
		if v < 0 || v > 1 || math.IsNaN(v) {
			return false
		}
	}
	return true
}

// Truncate evaluates innov on 0..M.
func Truncate(innov Innovation, M int) []float64 {
	if M < 0 {
		return nil
	}
	out := make([]float64, M+1)
	for k := range out {
		out[k] = innov.Density(k)
	}
	return out
}

// --- enum helpers ---

func (s Setting) String() string {
	switch s {
	case Semiparametric:
		return "semiparametric"
	case Parametric:
		return "parametric"
	}
	return fmt.Sprintf("Setting(%d)", int(s))
}

// ParseSetting accepts the long names and the short forms "sp" and "p".
func ParseSetting(s string) (Setting, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "semiparametric", "sp":
		return Semiparametric, nil
	case "parametric", "p":
		return Parametric, nil
	}
	return 0, fmt.Errorf("%w: setting %q must be semiparametric or parametric", ErrInvalidArgument, s)
}

func (s Setting) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Setting) UnmarshalText(b []byte) error {
	v, err := ParseSetting(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (t EstimationType) String() string {
	switch t {
	case Moment:
		return "moment"
	case MaximumLikelihood:
		return "maximum-likelihood"
	}
	return fmt.Sprintf("EstimationType(%d)", int(t))
}

// ParseEstimationType accepts "moment"/"mom" and "maximum-likelihood"/"ml".
func ParseEstimationType(s string) (EstimationType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "moment", "mom":
		return Moment, nil
	case "maximum-likelihood", "ml":
		return MaximumLikelihood, nil
	}
	return 0, fmt.Errorf("%w: type %q must be moment or maximum-likelihood", ErrInvalidArgument, s)
}

func (t EstimationType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *EstimationType) UnmarshalText(b []byte) error {
	v, err := ParseEstimationType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func (f Family) String() string {
	switch f {
	case FamilyPoisson:
		return "poisson"
	case FamilyGeometric:
		return "geometric"
	case FamilyNegativeBinomial:
		return "negative-binomial"
	}
	return fmt.Sprintf("Family(%d)", int(f))
}

// ParseFamily accepts the long names and the short forms "poi", "geo", "nb".
func ParseFamily(s string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "poisson", "poi":
		return FamilyPoisson, nil
	case "geometric", "geo":
		return FamilyGeometric, nil
	case "negative-binomial", "negbinomial", "nb", "nbinom":
		return FamilyNegativeBinomial, nil
	}
	return 0, fmt.Errorf("%w: family %q must be poisson, geometric or negative-binomial", ErrInvalidArgument, s)
}

func (f Family) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

func (f *Family) UnmarshalText(b []byte) error {
	v, err := ParseFamily(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// Arity is the number of innovation parameters the family's estimate carries.
func (f Family) Arity() int {
	if f == FamilyNegativeBinomial {
		return 2
	}
	return 1
}

// ParamNames labels the innovation parameters in estimate order.
func (f Family) ParamNames() []string {
	switch f {
	case FamilyPoisson:
		return []string{"lambda"}
	case FamilyGeometric:
		return []string{"prob"}
	case FamilyNegativeBinomial:
		return []string{"r", "prob"}
	}
	return nil
}

// Innovation builds the fitted pmf from the innovation part of an estimate.
func (f Family) Innovation(par []float64) (Innovation, error) {
	if len(par) < f.Arity() {
		return nil, fmt.Errorf("%w: %s needs %d innovation parameters, got %d",
			ErrInvalidArgument, f, f.Arity(), len(par))
	}
	switch f {
	case FamilyPoisson:
		return Poisson{Lambda: par[0]}, nil
	case FamilyGeometric:
		return Geometric{Prob: par[0]}, nil
	case FamilyNegativeBinomial:
		return NegBinomial{R: par[0], Prob: par[1]}, nil
	}
	return nil, fmt.Errorf("%w: unknown family %d", ErrInvalidArgument, int(f))
}
