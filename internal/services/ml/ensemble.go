// Package ml implements the regime classifier: a standardizing scaler in
// front of a bagged gini forest and a gradient boosted ensemble whose class
// probabilities are averaged.
package ml

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"RegimeML/internal/domain/models"
)

// Config groups the settings of both sub-classifiers.
type Config struct {
	MaxBins  int
	Forest   ForestConfig
	Boosting BoostingConfig
}

// DefaultConfig mirrors the shipped model.
func DefaultConfig() Config {
	return Config{
		MaxBins: 255,
		Forest: ForestConfig{
			Trees: 100, MaxDepth: 10, MinSamplesSplit: 20, MinSamplesLeaf: 10,
			Balanced: true, Seed: 42,
		},
		Boosting: BoostingConfig{
			Stages: 100, MaxDepth: 5, LearningRate: 0.1, MinSamplesSplit: 20, MinSamplesLeaf: 1,
		},
	}
}

// Meta describes a fitted model.
type Meta struct {
	ID            string
	CreatedAt     time.Time
	TrainRows     int
	TrainAccuracy float64
}

// Ensemble is the soft-voting regime classifier. It is fitted once; a loaded
// or fitted ensemble cannot be refitted.
type Ensemble struct {
	cfg      Config
	columns  []string
	scaler   *Scaler
	forest   *Forest
	boosting *Boosting
	fitted   bool
	meta     Meta
}

// NewEnsemble returns an unfitted ensemble over the named feature columns.
func NewEnsemble(cfg Config, columns []string) *Ensemble {
	return &Ensemble{cfg: cfg, columns: append([]string(nil), columns...)}
}

func (e *Ensemble) Fitted() bool { return e.fitted }

// Columns returns the feature order the model expects.
func (e *Ensemble) Columns() []string { return append([]string(nil), e.columns...) }

func (e *Ensemble) Meta() Meta { return e.meta }

// Scaler exposes the frozen scaler of a fitted model.
func (e *Ensemble) Scaler() *Scaler { return e.scaler }

// Forest exposes the bagged sub-classifier of a fitted model.
func (e *Ensemble) Forest() *Forest { return e.forest }

// Fit scales x, trains both sub-classifiers and returns the training
// accuracy of the combined model.
func (e *Ensemble) Fit(ctx context.Context, x [][]float64, y []int) (float64, error) {
	if e.fitted {
		return 0, models.ErrAlreadyFitted
	}
	if len(x) == 0 || len(x) != len(y) {
		return 0, fmt.Errorf("fit: %d rows and %d labels", len(x), len(y))
	}
	for i, row := range x {
		if len(row) != len(e.columns) {
			return 0, fmt.Errorf("fit: row %d has %d features, want %d", i, len(row), len(e.columns))
		}
	}
	for i, c := range y {
		if c < 0 || c >= models.NumRegimes {
			return 0, fmt.Errorf("fit: label %d at row %d out of range", c, i)
		}
	}

	scaler, err := FitScaler(x)
	if err != nil {
		return 0, err
	}
	z, err := scaler.Transform(x)
	if err != nil {
		return 0, err
	}
	maxBins := e.cfg.MaxBins
	if maxBins < 2 {
		maxBins = 255
	}
	data := binMatrix(z, maxBins)

	forest, err := fitForest(ctx, data, y, models.NumRegimes, e.cfg.Forest)
	if err != nil {
		return 0, fmt.Errorf("fit forest: %w", err)
	}
	boosting, err := fitBoosting(ctx, data, y, models.NumRegimes, e.cfg.Boosting)
	if err != nil {
		return 0, fmt.Errorf("fit boosting: %w", err)
	}

	e.scaler, e.forest, e.boosting = scaler, forest, boosting
	e.fitted = true

	pred, err := e.Predict(x)
	if err != nil {
		return 0, err
	}
	correct := 0
	for i, p := range pred {
		if p == y[i] {
			correct++
		}
	}
	acc := float64(correct) / float64(len(y))
	e.meta = Meta{ID: uuid.NewString(), CreatedAt: time.Now().UTC(), TrainRows: len(y), TrainAccuracy: acc}
	return acc, nil
}

// PredictProba returns the averaged class probabilities for each row of x,
// given in Columns() order and unscaled.
func (e *Ensemble) PredictProba(x [][]float64) ([][]float64, error) {
	if !e.fitted {
		return nil, models.ErrNotFitted
	}
	z, err := e.scaler.Transform(x)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, len(z))
	for i, row := range z {
		out[i], _ = SoftVote(e.forest.PredictProba(row), e.boosting.PredictProba(row))
	}
	return out, nil
}

// Predict returns the most probable class per row.
func (e *Ensemble) Predict(x [][]float64) ([]int, error) {
	proba, err := e.PredictProba(x)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(proba))
	for i, p := range proba {
		out[i] = Argmax(p)
	}
	return out, nil
}

// SoftVote averages two probability vectors and returns the mean and its
// argmax.
func SoftVote(p1, p2 []float64) ([]float64, int) {
	out := make([]float64, len(p1))
	for i := range out {
		out[i] = (p1[i] + p2[i]) / 2
	}
	return out, Argmax(out)
}

// Argmax returns the index of the largest value; ties go to the lowest index.
func Argmax(p []float64) int {
	best := 0
	for i := 1; i < len(p); i++ {
		if p[i] > p[best] {
			best = i
		}
	}
	return best
}
