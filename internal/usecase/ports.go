package usecase

import (
	"context"
	"time"

	"RegimeML/internal/domain/models"
	"RegimeML/internal/domain/repository"
	"RegimeML/internal/services/export"
	"RegimeML/internal/services/ml"
	applogger "RegimeML/pkg/logger"
	pkgmetrics "RegimeML/pkg/metrics"
)

// ArtifactStore persists fitted ensembles.
type ArtifactStore interface {
	Save(ctx context.Context, m *ml.Ensemble, path string) error
	Load(ctx context.Context, path string) (*ml.Ensemble, error)
}

// ModelExporter writes the execution-side files for a fitted ensemble.
type ModelExporter interface {
	Export(m *ml.Ensemble, onnxPath, settingsPath string) export.ExportResult
}

type textfileWriter interface {
	WriteTextfile(path string) error
}

// tracker times stages, records their metrics and tags failures with the
// stage that produced them.
type tracker struct {
	metrics repository.Metrics
	l       *applogger.Logger
}

func newTracker(metrics repository.Metrics, l *applogger.Logger) tracker {
	if metrics == nil {
		metrics = pkgmetrics.Noop{}
	}
	if l == nil {
		l = applogger.Nop()
	}
	return tracker{metrics: metrics, l: l}
}

func (t tracker) run(ctx context.Context, stage models.Stage, fn func() (int, error)) error {
	if err := ctx.Err(); err != nil {
		return models.WrapStage(stage, err)
	}
	start := time.Now()
	rows, err := fn()
	elapsed := time.Since(start)
	t.metrics.ObserveStage(string(stage), elapsed.Seconds())
	if err != nil {
		t.metrics.RecordError(string(stage))
		t.l.Error("stage failed",
			applogger.String("stage", string(stage)),
			applogger.Duration("elapsed_ms", elapsed),
			applogger.Error(err))
		return models.WrapStage(stage, err)
	}
	t.metrics.RecordRows(string(stage), rows)
	t.l.Info("stage done",
		applogger.String("stage", string(stage)),
		applogger.Int("rows", rows),
		applogger.Duration("elapsed_ms", elapsed))
	return nil
}

func (t tracker) writeTextfile(path string) {
	w, ok := t.metrics.(textfileWriter)
	if !ok || path == "" {
		return
	}
	if err := w.WriteTextfile(path); err != nil {
		t.l.Warn("metrics textfile write failed", applogger.String("path", path), applogger.Error(err))
	}
}
