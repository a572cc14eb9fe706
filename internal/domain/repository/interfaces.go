package repository

import (
	"context"

	"RegimeML/internal/domain/models"
)

// BarSource yields the raw bar history of one instrument in ascending time
// order. Implementations do not clean; that is the Bar Store's job.
type BarSource interface {
	Load(ctx context.Context) ([]models.Bar, error)
	Name() string
}

// RegimeSink receives inference results.
type RegimeSink interface {
	Publish(ctx context.Context, p models.RegimePrediction) error
	Name() string
	Close() error
}

type Metrics interface {
	ObserveStage(stage string, seconds float64)
	RecordRows(stage string, n int)
	RecordDropped(stage string, n int)
	SetAccuracy(partition string, acc float64)
	RecordExport(artifact, status string)
	RecordPrediction(regime string)
	RecordError(stage string)
}
