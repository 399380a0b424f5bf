// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Dec 12th 2025
// Project: Likelihood and Bootstrap Inference for INAR Count Time Series
// Class: 02-613 at Caregie Mellon University

package spinar

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
)

// ============================================================================
// HELPER FUNCTIONS
// ============================================================================

// almostEqual compares floats with tolerance
func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// ReadDirectory reads all files in a directory
func ReadDirectory(directory string) []os.DirEntry {
	files, err := os.ReadDir(directory)
	if err != nil {
		panic(fmt.Sprintf("Error reading directory %s: %v", directory, err))
	}
	return files
}

// skipComments reads lines from scanner, skipping comment lines starting with #
func skipComments(scanner *bufio.Scanner) string {
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			return line
		}
	}
	return ""
}

// parseFloats splits a whitespace separated line into floats
func parseFloats(line string) []float64 {
	fields := strings.Fields(line)
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			panic(fmt.Sprintf("Error parsing %q: %v", f, err))
		}
		out[i] = v
	}
	return out
}

// ============================================================================
// NEGATIVE LOG-LIKELIHOOD TESTS
// ============================================================================

type NegLogLikelihoodTest struct {
	Order  int
	Kind   string
	Par    []float64
	X      CountSequence
	Result float64
}

func ReadNegLogLikelihoodTests(directory string) []NegLogLikelihoodTest {
	inputFiles := ReadDirectory(directory + "input")
	outputFiles := ReadDirectory(directory + "output")

	if len(inputFiles) != len(outputFiles) {
		panic("Error: number of input and output files do not match!")
	}

	tests := make([]NegLogLikelihoodTest, len(inputFiles))
	for i, inputFile := range inputFiles {
		tests[i] = ReadNegLogLikelihoodInput(directory + "input/" + inputFile.Name())
	}
	for i, outputFile := range outputFiles {
		tests[i].Result = ReadNegLogLikelihoodOutput(directory + "output/" + outputFile.Name())
	}
	return tests
}

func ReadNegLogLikelihoodInput(file string) NegLogLikelihoodTest {
	f, err := os.Open(file)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var test NegLogLikelihoodTest

	test.Order, err = strconv.Atoi(skipComments(scanner))
	if err != nil {
		panic(fmt.Sprintf("Error parsing order: %v", err))
	}
	test.Kind = skipComments(scanner)
	test.Par = parseFloats(skipComments(scanner))

	n, err := strconv.Atoi(skipComments(scanner))
	if err != nil {
		panic(fmt.Sprintf("Error parsing n: %v", err))
	}
	values := parseFloats(skipComments(scanner))
	if len(values) != n {
		panic(fmt.Sprintf("Error: expected %d values, got %d", n, len(values)))
	}
	test.X, err = CountsFromFloats(values)
	if err != nil {
		panic(err)
	}
	return test
}

func ReadNegLogLikelihoodOutput(file string) float64 {
	f, err := os.Open(file)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	result, err := strconv.ParseFloat(skipComments(scanner), 64)
	if err != nil {
		panic(fmt.Sprintf("Error parsing result: %v", err))
	}
	return result
}

func TestNegLogLikelihood(t *testing.T) {
	tests := ReadNegLogLikelihoodTests("Tests/NegLogLikelihood/")
	for i, test := range tests {
		var got float64
		switch test.Kind {
		case "nb":
			got = ParametricNLL(test.Par, test.X, test.Order)
		case "emp":
			got = SemiparametricNLL(test.Par, test.X, test.Order)
		default:
			t.Fatalf("Test %d: unknown innovation kind %q", i+1, test.Kind)
		}

		if math.IsInf(test.Result, 1) {
			if !math.IsInf(got, 1) {
				t.Errorf("Test %d: NLL = %v; want +Inf", i+1, got)
			}
			continue
		}
		if !almostEqual(got, test.Result, 1e-8) {
			t.Errorf("Test %d: NLL(%v) = %v; want %v", i+1, test.Par, got, test.Result)
		}
	}
}

// ============================================================================
// CONDITIONAL PMF TESTS
// ============================================================================

func TestConditionalPMFSumsToOne(t *testing.T) {
	cases := []struct {
		name     string
		lags     []int
		thinning []float64
		innov    Innovation
		upper    int
	}{
		{"INAR(1) negative binomial", []int{4}, []float64{0.5}, NegBinomial{R: 2, Prob: 0.5}, 200},
		{"INAR(1) poisson", []int{7}, []float64{0.3}, Poisson{Lambda: 1.5}, 100},
		{"INAR(2) negative binomial", []int{3, 5}, []float64{0.3, 0.4}, NegBinomial{R: 3, Prob: 0.6}, 200},
		{"INAR(2) empirical", []int{3, 2}, []float64{0.2, 0.6}, EmpiricalPMF{P: []float64{0.4, 0.3, 0.2, 0.1}}, 20},
		{"INAR(1) geometric", []int{2}, []float64{0.9}, Geometric{Prob: 0.5}, 200},
	}

	for _, c := range cases {
		sum := 0.0
		for xt := 0; xt <= c.upper; xt++ {
			sum += ConditionalPMF(xt, c.lags, c.thinning, c.innov)
		}
		if !almostEqual(sum, 1, 1e-8) {
			t.Errorf("%s: conditional pmf sums to %v; want 1", c.name, sum)
		}
	}
}

func TestConditionalPMFZeroThinning(t *testing.T) {
	innov := NegBinomial{R: 2, Prob: 0.4}
	for _, prev := range []int{0, 3, 10} {
		for xt := 0; xt <= 15; xt++ {
			got := ConditionalPMF(xt, []int{prev}, []float64{0}, innov)
			if got != innov.Density(xt) {
				t.Errorf("ConditionalPMF(%d | %d, alpha=0) = %v; want %v", xt, prev, got, innov.Density(xt))
			}
		}
	}
}

func TestConditionalPMFLagMismatch(t *testing.T) {
	if got := ConditionalPMF(1, []int{1, 2}, []float64{0.5}, Poisson{Lambda: 1}); !math.IsNaN(got) {
		t.Errorf("mismatched lags should give NaN, got %v", got)
	}
}

func TestFullThinningImpossibleTransition(t *testing.T) {
	// alpha = 1 keeps every survivor, so a drop below the previous count
	// has probability zero.
	x := CountSequence{5, 3}
	if got := ParametricNLL([]float64{1, 2, 0.5}, x, 1); !math.IsInf(got, 1) {
		t.Errorf("NLL with alpha=1 and a decreasing step = %v; want +Inf", got)
	}

	up := CountSequence{3, 5}
	if got := ParametricNLL([]float64{1, 2, 0.5}, up, 1); math.IsInf(got, 0) || math.IsNaN(got) {
		t.Errorf("NLL with alpha=1 and an increasing step = %v; want finite", got)
	}
}

func TestEmpiricalOutsideSupport(t *testing.T) {
	pmf := EmpiricalPMF{P: []float64{0.5, 0.5}}
	for _, k := range []int{-1, 2, 100} {
		if got := pmf.Density(k); got != 0 {
			t.Errorf("Density(%d) = %v; want 0", k, got)
		}
	}
	// a jump that the innovations cannot produce
	x := CountSequence{0, 4}
	if got := SemiparametricNLL([]float64{0.5, 0.5}, x, 1); !math.IsInf(got, 1) {
		t.Errorf("NLL = %v; want +Inf", got)
	}
}

func TestSemiparametricInvalidPMF(t *testing.T) {
	x := CountSequence{1, 2, 1, 0, 2}
	// tail sums past one, so the implied pmf_0 is negative
	if got := SemiparametricNLL([]float64{0.3, 0.7, 0.6}, x, 1); !math.IsInf(got, 1) {
		t.Errorf("NLL with invalid pmf = %v; want +Inf", got)
	}
}

func TestParametricNLLRoundsSize(t *testing.T) {
	x := CountSequence{2, 3, 1, 4, 2, 0, 1, 3}
	want := NegLogLikelihood(x, []float64{0.4}, NegBinomial{R: 2, Prob: 0.5})

	for _, r := range []float64{1.6, 2, 2.4, 2.5} {
		got := ParametricNLL([]float64{0.4, r, 0.5}, x, 1)
		if !almostEqual(got, want, 1e-12) {
			t.Errorf("ParametricNLL with r=%v = %v; want %v (r rounded to 2)", r, got, want)
		}
	}
}

func TestNLLUnsupportedOrder(t *testing.T) {
	x := CountSequence{1, 2, 3, 4}
	if got := NegLogLikelihood(x, []float64{0.1, 0.1, 0.1}, Poisson{Lambda: 1}); !math.IsNaN(got) {
		t.Errorf("order 3 should give NaN, got %v", got)
	}
	if got := ParametricNLL([]float64{0.5, 2}, x, 1); !math.IsNaN(got) {
		t.Errorf("short parameter vector should give NaN, got %v", got)
	}
}

func TestFamilyNLLMatchesInnovation(t *testing.T) {
	x := CountSequence{1, 0, 2, 3, 1, 1, 0, 2}
	cases := []struct {
		family Family
		par    []float64
		innov  Innovation
	}{
		{FamilyPoisson, []float64{0.3, 1.2}, Poisson{Lambda: 1.2}},
		{FamilyGeometric, []float64{0.3, 0.4}, Geometric{Prob: 0.4}},
		{FamilyNegativeBinomial, []float64{0.3, 3, 0.7}, NegBinomial{R: 3, Prob: 0.7}},
	}
	for _, c := range cases {
		got := FamilyNLL(c.par, x, 1, c.family)
		want := NegLogLikelihood(x, c.par[:1], c.innov)
		if !almostEqual(got, want, 1e-12) {
			t.Errorf("FamilyNLL(%s) = %v; want %v", c.family, got, want)
		}
	}
}

func TestInnovationDensities(t *testing.T) {
	// negative binomial with r = 1 is geometric
	nb := NegBinomial{R: 1, Prob: 0.3}
	geo := Geometric{Prob: 0.3}
	for k := 0; k < 20; k++ {
		if !almostEqual(nb.Density(k), geo.Density(k), 1e-12) {
			t.Errorf("NB(1, 0.3) at %d = %v; geometric = %v", k, nb.Density(k), geo.Density(k))
		}
	}

	if got := (NegBinomial{R: 0, Prob: 0.5}).Density(0); got != 1 {
		t.Errorf("NB with r=0 at 0 = %v; want 1", got)
	}
	if got := (Poisson{Lambda: 0}).Density(1); got != 0 {
		t.Errorf("Poisson(0) at 1 = %v; want 0", got)
	}
	if got := (Poisson{Lambda: 2}).Density(-1); got != 0 {
		t.Errorf("Poisson(2) at -1 = %v; want 0", got)
	}

	trunc := Truncate(Poisson{Lambda: 2}, 3)
	if len(trunc) != 4 {
		t.Fatalf("Truncate returned %d entries; want 4", len(trunc))
	}
	if !almostEqual(trunc[0], math.Exp(-2), 1e-12) {
		t.Errorf("Truncate[0] = %v; want %v", trunc[0], math.Exp(-2))
	}
}

func TestParseEnums(t *testing.T) {
	if s, err := ParseSetting("sp"); err != nil || s != Semiparametric {
		t.Errorf("ParseSetting(sp) = %v, %v", s, err)
	}
	if typ, err := ParseEstimationType("ml"); err != nil || typ != MaximumLikelihood {
		t.Errorf("ParseEstimationType(ml) = %v, %v", typ, err)
	}
	if f, err := ParseFamily("nbinom"); err != nil || f != FamilyNegativeBinomial {
		t.Errorf("ParseFamily(nbinom) = %v, %v", f, err)
	}
	if _, err := ParseFamily("binomial"); err == nil {
		t.Error("ParseFamily(binomial) should fail")
	}

	var f Family
	if err := f.UnmarshalText([]byte("geometric")); err != nil || f != FamilyGeometric {
		t.Errorf("UnmarshalText(geometric) = %v, %v", f, err)
	}
}
