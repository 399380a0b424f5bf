// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Dec 12th 2025
// Project: Likelihood and Bootstrap Inference for INAR Count Time Series
// Class: 02-613 at Caregie Mellon University

package spinar

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// evenTol is how close B*level has to be to an even integer to take the even branch.
const evenTol = 1e-9

// OrderStatisticRanks returns the 1-based ranks (lo, hi) of the sorted
// bootstrap values used as interval bounds. No interpolation is done.
//
// If B*level is an even integer, lo = B*level/2 and hi = B*(1-level/2).
// Otherwise K = floor((B+1)*level/2), at least 1, and the ranks are K and B+1-K.
func OrderStatisticRanks(B int, level float64) (int, int) {
	bl := float64(B) * level
	r := math.Round(bl)
	if math.Abs(bl-r) < evenTol && int64(r)%2 == 0 && r > 0 {
		lo := int(r) / 2
		return lo, B - lo
	}

	K := int(math.Floor(float64(B+1) * level / 2))
	if K < 1 {
		K = 1
	}
	return K, B + 1 - K
}

// PercentileCI returns the percentile interval of the bootstrap values.
func PercentileCI(values []float64, level float64) (float64, float64) {
	if len(values) == 0 {
		return math.NaN(), math.NaN()
	}
	tmp := make([]float64, len(values))
	copy(tmp, values)
	sort.Float64s(tmp)

	lo, hi := OrderStatisticRanks(len(tmp), level)
	return tmp[lo-1], tmp[hi-1]
}

// HallCI returns Hall's interval: the deviations d_b = values[b] - thetaHat
// are sorted and reflected around the point estimate, giving
// [thetaHat - d_(hi), thetaHat - d_(lo)].
func HallCI(values []float64, thetaHat, level float64) (float64, float64) {
	if len(values) == 0 {
		return math.NaN(), math.NaN()
	}
	d := make([]float64, len(values))
	for b, v := range values {
		d[b] = v - thetaHat
	}
	sort.Float64s(d)

	lo, hi := OrderStatisticRanks(len(d), level)
	return thetaHat - d[hi-1], thetaHat - d[lo-1]
}

// TrimZeroColumns drops every column of m that is zero in all rows and
// returns the remaining columns with their original indices.
// A parameter that is genuinely zero in every row is dropped as well.
func TrimZeroColumns(m *mat.Dense) (*mat.Dense, []int) {
	r, _ := m.Dims()
	rows := make([]int, r)
	for i := range rows {
		rows[i] = i
	}
	keep := nonZeroColumns(m, rows)
	return selectColumns(m, keep), keep
}

// nonZeroColumns lists the columns with a non-zero entry in any of rows.
func nonZeroColumns(m *mat.Dense, rows []int) []int {
	_, c := m.Dims()
	var keep []int
	for j := 0; j < c; j++ {
		for _, i := range rows {
			if m.At(i, j) != 0 {
				keep = append(keep, j)
				break
			}
		}
	}
	return keep
}

// selectColumns copies the listed columns of m into a new matrix.
// Returns nil when no columns are listed, since gonum has no empty Dense.
func selectColumns(m *mat.Dense, cols []int) *mat.Dense {
	r, _ := m.Dims()
	if len(cols) == 0 || r == 0 {
		return nil
	}
	out := mat.NewDense(r, len(cols), nil)
	for k, j := range cols {
		for i := 0; i < r; i++ {
			out.Set(i, k, m.At(i, j))
		}
	}
	return out
}

// intervalTables computes the percentile and Hall tables (2 x K) for the
// columns of params, using only the listed rows.
func intervalTables(params *mat.Dense, rows []int, thetaHat []float64, level float64) (*mat.Dense, *mat.Dense) {
	_, K := params.Dims()
	percentile := mat.NewDense(2, K, nil)
	hall := mat.NewDense(2, K, nil)

	values := make([]float64, len(rows))
	for j := 0; j < K; j++ {
		for k, i := range rows {
			values[k] = params.At(i, j)
		}

		lo, hi := PercentileCI(values, level)
		percentile.Set(0, j, lo)
		percentile.Set(1, j, hi)

		lo, hi = HallCI(values, thetaHat[j], level)
		hall.Set(0, j, lo)
		hall.Set(1, j, hi)
	}
	return percentile, hall
}
