// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Dec 12th 2025
// Project: Likelihood and Bootstrap Inference for INAR Count Time Series
// Class: 02-613 at Caregie Mellon University

package spinar

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// LoadCountsCSV reads one column of a CSV file as a count series:
//
//   - The first row is a header with column names
//   - column selects the series by header name; "" takes the first column
//   - Every value must be a non-negative integer (e.g. "3" or "3.0")
//
// Blank lines are skipped.
func LoadCountsCSV(path string, column string) (CountSequence, error) {
	// 1. Open file
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	return ReadCountsCSV(f, column)
}

// ReadCountsCSV is LoadCountsCSV on an open reader.
func ReadCountsCSV(r io.Reader, column string) (CountSequence, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	// 2. Read header row and find the column
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := 0
	if column != "" {
		col = -1
		for j, name := range header {
			if strings.TrimSpace(name) == column {
				col = j
				break
			}
		}
		if col < 0 {
			return nil, fmt.Errorf("%w: column %q not in header %v", ErrInvalidArgument, column, header)
		}
	}

	// 3. Read each data row
	var values []float64
	row := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", row+2, err) // +2 for header + 1-based
		}
		row++

		if len(record) == 1 && record[0] == "" {
			continue
		}
		if col >= len(record) {
			return nil, fmt.Errorf("row %d: expected at least %d columns, got %d", row+1, col+1, len(record))
		}

		v, err := strconv.ParseFloat(strings.TrimSpace(record[col]), 64)
		if err != nil {
			return nil, fmt.Errorf("parse value at row %d (%q): %w", row+1, record[col], err)
		}
		values = append(values, v)
	}

	if len(values) == 0 {
		return nil, fmt.Errorf("%w: no data rows", ErrInvalidArgument)
	}
	return CountsFromFloats(values)
}

// CountsFromFloats converts numeric input to a count series, rejecting
// negative and non-integer values.
func CountsFromFloats(values []float64) (CountSequence, error) {
	x := make(CountSequence, len(values))
	for t, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
			return nil, fmt.Errorf("%w: x[%d] = %v is not an integer", ErrInvalidArgument, t, v)
		}
		if v < 0 {
			return nil, fmt.Errorf("%w: x[%d] = %v is negative", ErrInvalidArgument, t, v)
		}
		x[t] = int(v)
	}
	return x, nil
}

// ResultFields lists the populated fields of a bootstrap result, in the
// order the printer reports them.
func (res *BootstrapResult) ResultFields() []string {
	var fields []string
	if res.XStar != nil {
		fields = append(fields, "x_star")
	}
	if res.ParametersStar != nil {
		fields = append(fields, "parameters_star")
	}
	if res.CIPercentile != nil {
		fields = append(fields, "bs_ci_percentile")
	}
	if res.CIHall != nil {
		fields = append(fields, "bs_ci_hall")
	}
	return fields
}

// PrintBootstrap writes both interval tables with 4 decimals. Non-negative
// values get a leading space so columns line up with negative ones.
func PrintBootstrap(w io.Writer, res *BootstrapResult) error {
	if res == nil || res.XStar == nil {
		return fmt.Errorf("bootstrap result is empty")
	}
	n, B := res.XStar.Dims()

	var sb strings.Builder
	fmt.Fprintf(&sb, "\n=== INAR(%d) Bootstrap (%s) ===\n", res.Options.Order, res.Options.Setting)
	fmt.Fprintf(&sb, "Sample size (n):         %d\n", n)
	fmt.Fprintf(&sb, "Replications (B):        %d\n", B)
	if len(res.Invalid) > 0 {
		fmt.Fprintf(&sb, "Excluded replicates:     %d\n", len(res.Invalid))
	}
	fmt.Fprintf(&sb, "Result fields:           %s\n", strings.Join(res.ResultFields(), ", "))

	writeCITable(&sb, "Percentile confidence intervals", res.CIPercentile, res.Names)
	writeCITable(&sb, "Hall's confidence intervals", res.CIHall, res.Names)

	_, err := io.WriteString(w, sb.String())
	return err
}

// writeCITable renders a 2 x K interval table with lower/upper row labels.
func writeCITable(sb *strings.Builder, title string, ci *mat.Dense, names []string) {
	fmt.Fprintf(sb, "\n%s:\n", title)
	if ci == nil {
		sb.WriteString("  (none)\n")
		return
	}
	_, K := ci.Dims()

	cells := make([][2]string, K)
	widths := make([]int, K)
	for j := 0; j < K; j++ {
		for i := 0; i < 2; i++ {
			cells[j][i] = fmt.Sprintf("% .4f", ci.At(i, j))
			widths[j] = max(widths[j], len(cells[j][i]))
		}
		widths[j] = max(widths[j], len(columnName(names, j)))
	}

	fmt.Fprintf(sb, "%-6s", "")
	for j := 0; j < K; j++ {
		fmt.Fprintf(sb, "  %*s", widths[j], columnName(names, j))
	}
	sb.WriteString("\n")
	for i, label := range []string{"lower", "upper"} {
		fmt.Fprintf(sb, "%-6s", label)
		for j := 0; j < K; j++ {
			fmt.Fprintf(sb, "  %*s", widths[j], cells[j][i])
		}
		sb.WriteString("\n")
	}
}

func columnName(names []string, j int) string {
	if j < len(names) {
		return names[j]
	}
	return fmt.Sprintf("par%d", j+1)
}

// OutputBootstrapToCSV writes the intervals in long format.
// Columns: Parameter, ThetaHat, Method, Lower, Upper
func OutputBootstrapToCSV(path string, res *BootstrapResult) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := WriteBootstrapCSV(file, res); err != nil {
		return err
	}
	return file.Close()
}

// WriteBootstrapCSV is OutputBootstrapToCSV on an open writer.
func WriteBootstrapCSV(w io.Writer, res *BootstrapResult) error {
	writer := csv.NewWriter(w)

	header := []string{"Parameter", "ThetaHat", "Method", "Lower", "Upper"}
	if err := writer.Write(header); err != nil {
		return err
	}

	tables := []struct {
		method string
		ci     *mat.Dense
	}{
		{"percentile", res.CIPercentile},
		{"hall", res.CIHall},
	}
	for j := range res.Columns {
		for _, tb := range tables {
			if tb.ci == nil {
				continue
			}
			record := []string{
				columnName(res.Names, j),
				fmt.Sprintf("%f", res.ThetaHat[j]),
				tb.method,
				fmt.Sprintf("%f", tb.ci.At(0, j)),
				fmt.Sprintf("%f", tb.ci.At(1, j)),
			}
			if err := writer.Write(record); err != nil {
				return err
			}
		}
	}

	writer.Flush()
	return writer.Error()
}
