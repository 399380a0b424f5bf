// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Dec 12th 2025
// Project: Likelihood and Bootstrap Inference for INAR Count Time Series
// Class: 02-613 at Caregie Mellon University

package spinar

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"
)

func TestSimulateDeterministic(t *testing.T) {
	sim := NewINARSimulator()
	pmf := Truncate(Poisson{Lambda: 1.5}, 30)

	a, err := sim.Simulate(rand.New(rand.NewPCG(9, 0)), 100, []float64{0.4, 0.2}, pmf)
	if err != nil {
		t.Fatalf("Simulate returned error: %v", err)
	}
	b, _ := sim.Simulate(rand.New(rand.NewPCG(9, 0)), 100, []float64{0.4, 0.2}, pmf)

	if len(a) != 100 {
		t.Fatalf("path length = %d; want 100", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("paths differ at %d: %d vs %d", i, a[i], b[i])
		}
		if a[i] < 0 {
			t.Fatalf("negative count %d at %d", a[i], i)
		}
	}
}

func TestSimulateStationaryMean(t *testing.T) {
	// E[X] = lambda / (1 - alpha) = 2 / 0.5 = 4
	sim := NewINARSimulator()
	x, err := sim.Simulate(rand.New(rand.NewPCG(17, 0)), 5000, []float64{0.5}, Truncate(Poisson{Lambda: 2}, 30))
	if err != nil {
		t.Fatalf("Simulate returned error: %v", err)
	}
	mean := stat.Mean(lo.Map(x, func(v int, _ int) float64 { return float64(v) }), nil)
	if !almostEqual(mean, 4, 0.3) {
		t.Errorf("sample mean = %v; want about 4", mean)
	}
}

func TestSimulateDegenerate(t *testing.T) {
	sim := &INARSimulator{BurnIn: 0}

	// no thinning and innovations always 1
	x, err := sim.Simulate(rand.New(rand.NewPCG(1, 0)), 20, []float64{0}, []float64{0, 1})
	if err != nil {
		t.Fatalf("Simulate returned error: %v", err)
	}
	for i, v := range x {
		if v != 1 {
			t.Fatalf("x[%d] = %d; want 1", i, v)
		}
	}

	// full thinning with one arrival per step counts up from 1
	x, _ = sim.Simulate(rand.New(rand.NewPCG(1, 0)), 10, []float64{1}, []float64{0, 1})
	for i, v := range x {
		if v != i+1 {
			t.Fatalf("x[%d] = %d; want %d", i, v, i+1)
		}
	}
}

func TestSimulateUnnormalizedPMF(t *testing.T) {
	sim := &INARSimulator{BurnIn: 0}
	// a pmf scaled by 4 draws the same values as the normalized one
	a, _ := sim.Simulate(rand.New(rand.NewPCG(4, 0)), 50, []float64{0.3}, []float64{0.5, 0.25, 0.25})
	b, _ := sim.Simulate(rand.New(rand.NewPCG(4, 0)), 50, []float64{0.3}, []float64{2, 1, 1})
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("paths differ at %d", i)
		}
	}
}

func TestSimulateInvalid(t *testing.T) {
	sim := NewINARSimulator()
	rng := rand.New(rand.NewPCG(1, 0))
	pmf := []float64{0.5, 0.5}

	cases := []struct {
		name     string
		rng      *rand.Rand
		n        int
		thinning []float64
		pmf      []float64
	}{
		{"nil rng", nil, 10, []float64{0.5}, pmf},
		{"zero length", rng, 0, []float64{0.5}, pmf},
		{"order three", rng, 10, []float64{0.1, 0.1, 0.1}, pmf},
		{"thinning above one", rng, 10, []float64{1.2}, pmf},
		{"negative thinning", rng, 10, []float64{-0.1}, pmf},
		{"empty pmf", rng, 10, []float64{0.5}, nil},
		{"negative pmf entry", rng, 10, []float64{0.5}, []float64{1.2, -0.2}},
		{"pmf without mass", rng, 10, []float64{0.5}, []float64{0, 0}},
	}
	for _, c := range cases {
		if _, err := sim.Simulate(c.rng, c.n, c.thinning, c.pmf); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("%s: error = %v; want ErrInvalidArgument", c.name, err)
		}
	}
}

func TestThinBinomialMoments(t *testing.T) {
	rng := rand.New(rand.NewPCG(6, 0))
	draws := make([]float64, 4000)
	for i := range draws {
		draws[i] = float64(thin(rng, 200, 0.3))
	}
	// Bin(200, 0.3): mean 60, variance 42
	mean, variance := stat.MeanVariance(draws, nil)
	if !almostEqual(mean, 60, 0.5) {
		t.Errorf("mean = %v; want about 60", mean)
	}
	if !almostEqual(variance, 42, 4) {
		t.Errorf("variance = %v; want about 42", variance)
	}
	if thin(rng, 7, 0) != 0 || thin(rng, 7, 1) != 7 || thin(rng, 0, 0.5) != 0 {
		t.Error("thinning endpoints are not exact")
	}
}
