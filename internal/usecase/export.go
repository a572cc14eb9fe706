package usecase

import (
	"context"

	"RegimeML/internal/domain/models"
	"RegimeML/internal/domain/repository"
	"RegimeML/internal/services/export"
	applogger "RegimeML/pkg/logger"
)

type ExportOptions struct {
	ArtifactPath string
	ONNXPath     string
	SettingsPath string
	// IncludePath, when set, also renders the MQL include from the settings
	// document after a successful export.
	IncludePath string
}

// ExportUseCase re-exports a stored model without retraining.
type ExportUseCase struct {
	store    ArtifactStore
	exporter ModelExporter
	opts     ExportOptions
	tracker
}

func NewExportUseCase(store ArtifactStore, exporter ModelExporter, metrics repository.Metrics, l *applogger.Logger, opts ExportOptions) *ExportUseCase {
	return &ExportUseCase{store: store, exporter: exporter, opts: opts, tracker: newTracker(metrics, l)}
}

// Export loads the artifact and writes the execution-side files. A load
// failure is returned; an export failure is only reported in the result.
func (u *ExportUseCase) Export(ctx context.Context) (export.ExportResult, error) {
	var res export.ExportResult
	err := u.run(ctx, models.StageLoad, func() (int, error) {
		m, err := u.store.Load(ctx, u.opts.ArtifactPath)
		if err != nil {
			return 0, err
		}
		res = u.exporter.Export(m, u.opts.ONNXPath, u.opts.SettingsPath)
		return 1, nil
	})
	if err != nil {
		return res, err
	}
	if res.Status != export.Exported || u.opts.IncludePath == "" {
		return res, nil
	}
	err = u.run(ctx, models.StageExport, func() (int, error) {
		return 1, export.RenderInclude(u.opts.SettingsPath, u.opts.IncludePath)
	})
	return res, err
}
