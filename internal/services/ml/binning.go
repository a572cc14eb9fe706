package ml

import (
	"sort"
)

// binnedMatrix holds the training matrix reduced to per-feature bin codes.
// Bin k of feature f covers values v with thresholds[f][k-1] < v <=
// thresholds[f][k]; the last bin is open above.
type binnedMatrix struct {
	rows       int
	bins       [][]uint8 // [feature][row]
	thresholds [][]float64
}

func (m *binnedMatrix) features() int { return len(m.bins) }

func (m *binnedMatrix) nBins(f int) int { return len(m.thresholds[f]) + 1 }

// binMatrix computes at most maxBins quantile bins per feature. Thresholds
// are midpoints between adjacent distinct training values, so a split on
// them never separates equal values.
func binMatrix(x [][]float64, maxBins int) *binnedMatrix {
	if maxBins > 256 {
		maxBins = 256
	}
	width := 0
	if len(x) > 0 {
		width = len(x[0])
	}
	m := &binnedMatrix{
		rows:       len(x),
		bins:       make([][]uint8, width),
		thresholds: make([][]float64, width),
	}
	col := make([]float64, len(x))
	for f := 0; f < width; f++ {
		for i, row := range x {
			col[i] = row[f]
		}
		th := quantileThresholds(col, maxBins)
		codes := make([]uint8, len(x))
		for i, row := range x {
			codes[i] = uint8(binOf(th, row[f]))
		}
		m.thresholds[f] = th
		m.bins[f] = codes
	}
	return m
}

func quantileThresholds(col []float64, maxBins int) []float64 {
	sorted := append([]float64(nil), col...)
	sort.Float64s(sorted)
	distinct := sorted[:0:0]
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			distinct = append(distinct, v)
		}
	}
	d := len(distinct)
	if d <= 1 {
		return nil
	}
	if d <= maxBins {
		th := make([]float64, d-1)
		for i := 1; i < d; i++ {
			th[i-1] = midpoint(distinct[i-1], distinct[i])
		}
		return th
	}
	// pick cut positions by rank among the sorted sample so dense regions
	// get more thresholds
	th := make([]float64, 0, maxBins-1)
	n := len(sorted)
	for q := 1; q < maxBins; q++ {
		pos := q * n / maxBins
		v := sorted[pos]
		j := sort.SearchFloat64s(distinct, v)
		if j == 0 {
			continue
		}
		t := midpoint(distinct[j-1], distinct[j])
		if len(th) == 0 || t > th[len(th)-1] {
			th = append(th, t)
		}
	}
	return th
}

func midpoint(a, b float64) float64 {
	m := a + (b-a)/2
	if m >= b {
		// adjacent floats
		return a
	}
	return m
}

// binOf returns the smallest k with v <= th[k], or len(th).
func binOf(th []float64, v float64) int {
	return sort.SearchFloat64s(th, v)
}
