package ml

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// Scaler standardizes each column with the mean and population standard
// deviation of the training matrix. A constant column gets scale 1. The
// parameters never change after FitScaler.
type Scaler struct {
	mean  []float64
	scale []float64
}

func FitScaler(x [][]float64) (*Scaler, error) {
	if len(x) == 0 {
		return nil, fmt.Errorf("fit scaler: empty matrix")
	}
	width := len(x[0])
	s := &Scaler{mean: make([]float64, width), scale: make([]float64, width)}
	col := make([]float64, len(x))
	for f := 0; f < width; f++ {
		for i, row := range x {
			col[i] = row[f]
		}
		m, sd := stat.PopMeanStdDev(col, nil)
		if sd == 0 {
			sd = 1
		}
		s.mean[f], s.scale[f] = m, sd
	}
	return s, nil
}

// NewScaler rebuilds a scaler from stored parameters.
func NewScaler(mean, scale []float64) (*Scaler, error) {
	if len(mean) != len(scale) {
		return nil, fmt.Errorf("scaler mean has %d values, scale has %d", len(mean), len(scale))
	}
	for i, v := range scale {
		if v == 0 {
			return nil, fmt.Errorf("scaler scale[%d] is zero", i)
		}
	}
	return &Scaler{mean: append([]float64(nil), mean...), scale: append([]float64(nil), scale...)}, nil
}

func (s *Scaler) Width() int { return len(s.mean) }

// Mean returns a copy of the per-column means.
func (s *Scaler) Mean() []float64 { return append([]float64(nil), s.mean...) }

// Scale returns a copy of the per-column scales.
func (s *Scaler) Scale() []float64 { return append([]float64(nil), s.scale...) }

// Transform returns a standardized copy of x.
func (s *Scaler) Transform(x [][]float64) ([][]float64, error) {
	out := make([][]float64, len(x))
	for i, row := range x {
		if len(row) != len(s.mean) {
			return nil, fmt.Errorf("row %d has %d features, scaler expects %d", i, len(row), len(s.mean))
		}
		z := make([]float64, len(row))
		for f, v := range row {
			z[f] = (v - s.mean[f]) / s.scale[f]
		}
		out[i] = z
	}
	return out, nil
}
