// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Dec 12th 2025
// Project: Likelihood and Bootstrap Inference for INAR Count Time Series
// Class: 02-613 at Caregie Mellon University

package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	_ "modernc.org/sqlite"

	spinar "github.com/cran/spINAR"
	"github.com/cran/spINAR/internal/store"
)

// This is the main function that runs the INAR bootstrap for one count series.
// It loads the series from a CSV column, fits the model, prints the baseline
// estimate and its likelihood, runs the bootstrap and prints both interval
// tables. Results can also be written to CSV and archived in SQLite.

func main() {
	var (
		in       = flag.String("in", "", "CSV file with a header row (required)")
		column   = flag.String("column", "", "column holding the counts (default: first column)")
		order    = flag.Int("p", 1, "model order, 1 or 2")
		reps     = flag.Int("B", 500, "number of bootstrap replications")
		setting  = flag.String("setting", "semiparametric", "semiparametric or parametric")
		estType  = flag.String("type", "moment", "parametric estimation: moment or maximum-likelihood")
		family   = flag.String("family", "poisson", "parametric family: poisson, geometric or negative-binomial")
		cutoff   = flag.Int("M", 100, "support cutoff of the truncated parametric pmf")
		level    = flag.Float64("level", 0.05, "confidence level alpha, e.g. 0.05 for 95% intervals")
		seed     = flag.Int64("seed", 0, "RNG seed, 0 for a time-based seed")
		workers  = flag.Int("workers", 0, "parallel replicates, 0 for one per CPU")
		retries  = flag.Int("retries", 0, "redraws for a failing replicate, 0 to keep failures")
		outPath  = flag.String("out", "", "write the intervals to this CSV file")
		dbPath   = flag.String("db", "", "archive the run in this SQLite database")
		progress = flag.Bool("progress", true, "report progress on stderr")
	)
	flag.Parse()

	if *in == "" {
		fmt.Println("Usage: spinar -in <counts.csv> [-column name] [-p 1|2] [-B 500] [-setting sp|p] ...")
		flag.PrintDefaults()
		os.Exit(2)
	}

	// 1. Load the count series
	x, err := spinar.LoadCountsCSV(*in, *column)
	if err != nil {
		fail(err)
	}
	fmt.Println("Loaded series with", len(x), "observations from", *in)

	// 2. Set up bootstrap options
	opts := spinar.DefaultBootstrapOptions()
	opts.Order = *order
	opts.B = *reps
	opts.M = *cutoff
	opts.Level = *level
	opts.Seed = *seed
	opts.Workers = *workers
	opts.MaxRetries = *retries
	if opts.Setting, err = spinar.ParseSetting(*setting); err != nil {
		fail(err)
	}
	if opts.Type, err = spinar.ParseEstimationType(*estType); err != nil {
		fail(err)
	}
	if opts.Family, err = spinar.ParseFamily(*family); err != nil {
		fail(err)
	}
	if err := opts.Validate(x); err != nil {
		fail(err)
	}

	// 3. Baseline fit and its likelihood
	est := &spinar.DefaultEstimator{}
	theta, err := est.Estimate(x, opts.Order, opts.Setting, opts.Type, opts.Family)
	if err != nil {
		fail(err)
	}
	fmt.Printf("\n=== Baseline estimate ===\n%s\n", formatVector(theta))
	fmt.Printf("Negative log-likelihood: %.4f\n", baselineNLL(x, theta, opts))

	// 4. Run the bootstrap, Ctrl-C stops between replicates
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *progress {
		opts.Progress = func(done, total int) {
			fmt.Fprintf(os.Stderr, "\rreplicate %d/%d", done, total)
			if done == total {
				fmt.Fprintln(os.Stderr)
			}
		}
	}
	res, err := spinar.Bootstrap(ctx, x, opts)
	if err != nil {
		fail(err)
	}

	// 5. Print interval tables
	if err := spinar.PrintBootstrap(os.Stdout, res); err != nil {
		fail(err)
	}

	// 6. Output intervals to CSV
	if *outPath != "" {
		if err := spinar.OutputBootstrapToCSV(*outPath, res); err != nil {
			fail(err)
		}
		fmt.Println("Intervals written to", *outPath)
	}

	// 7. Archive the run
	if *dbPath != "" {
		id, err := archive(ctx, *dbPath, res)
		if err != nil {
			fail(err)
		}
		fmt.Printf("Run archived in %s with id %d\n", *dbPath, id)
	}
}

// baselineNLL evaluates the likelihood at the fitted parameters. The
// semiparametric estimate includes pmf_0, which the likelihood implies.
func baselineNLL(x spinar.CountSequence, theta []float64, opts spinar.BootstrapOptions) float64 {
	p := opts.Order
	if opts.Setting == spinar.Semiparametric {
		par := append(append([]float64{}, theta[:p]...), theta[p+1:]...)
		return spinar.SemiparametricNLL(par, x, p)
	}
	return spinar.FamilyNLL(theta, x, p, opts.Family)
}

func archive(ctx context.Context, path string, res *spinar.BootstrapResult) (int64, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer db.Close()

	if err := store.EnsureTables(ctx, db); err != nil {
		return 0, err
	}
	return store.SaveRun(ctx, db, res)
}

func formatVector(v []float64) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = fmt.Sprintf("% .4f", f)
	}
	return strings.Join(parts, " ")
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
