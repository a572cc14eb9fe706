// Package split partitions a labeled table into contiguous train,
// validation and test ranges without shuffling.
package split

import (
	"fmt"
	"math"

	"RegimeML/internal/domain/models"
)

type Ratios struct {
	Train      float64
	Validation float64
	Test       float64
}

func DefaultRatios() Ratios {
	return Ratios{Train: 0.70, Validation: 0.15, Test: 0.15}
}

func (r Ratios) validate() error {
	if r.Train <= 0 || r.Validation <= 0 || r.Test <= 0 {
		return fmt.Errorf("split ratios must be positive, got %.4f/%.4f/%.4f", r.Train, r.Validation, r.Test)
	}
	return nil
}

// Bounds returns the exclusive end indexes of the train and validation
// parts for n rows. The test part takes the remainder, so r.Test only has
// to be positive; the sum is checked once, by config validation.
func (r Ratios) Bounds(n int) (trainEnd, valEnd int) {
	trainEnd = int(math.Floor(float64(n) * r.Train))
	valEnd = int(math.Floor(float64(n) * (r.Train + r.Validation)))
	if valEnd > n {
		valEnd = n
	}
	return trainEnd, valEnd
}

// Split copies t into three chronologically ordered partitions whose
// concatenation reproduces t. No partition aliases t or another partition.
func Split(t *models.LabeledTable, r Ratios) (*models.Split, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	n := t.Len()
	trainEnd, valEnd := r.Bounds(n)
	if trainEnd == 0 || valEnd == trainEnd || valEnd == n {
		return nil, fmt.Errorf("%d labeled rows are too few for a %.2f/%.2f/%.2f split", n, r.Train, r.Validation, r.Test)
	}
	return &models.Split{
		Train:      t.Slice(0, trainEnd),
		Validation: t.Slice(trainEnd, valEnd),
		Test:       t.Slice(valEnd, n),
	}, nil
}
