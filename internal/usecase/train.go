package usecase

import (
	"context"
	"fmt"
	"time"

	"RegimeML/internal/domain/models"
	"RegimeML/internal/domain/repository"
	"RegimeML/internal/services/bars"
	"RegimeML/internal/services/evaluation"
	"RegimeML/internal/services/export"
	"RegimeML/internal/services/features"
	"RegimeML/internal/services/labeling"
	"RegimeML/internal/services/ml"
	"RegimeML/internal/services/split"
	applogger "RegimeML/pkg/logger"
)

type TrainOptions struct {
	Features        features.Config
	Columns         []string
	Labeling        labeling.Config
	Ratios          split.Ratios
	Model           ml.Config
	ArtifactPath    string
	ONNXPath        string
	SettingsPath    string
	// IncludePath, when set, renders the MQL include after a successful export.
	IncludePath     string
	MetricsTextfile string
}

// TrainResult summarizes one training run.
type TrainResult struct {
	ModelID        string
	Bars           int
	Clean          bars.Report
	FeatureRows    int
	FeatureDropped int
	LabeledRows    int
	LabelDropped   int
	Distribution   [models.NumRegimes]int
	Split          []models.SplitPart
	TrainAccuracy  float64
	Validation     *evaluation.Report
	Test           *evaluation.Report
	ArtifactPath   string
	Export         export.ExportResult
	IncludePath    string
	IncludeErr     error
	Duration       time.Duration
}

// TrainPipeline runs load, clean, feature, label, split, fit, evaluate, save
// and export in that order. Export problems are reported, not returned.
type TrainPipeline struct {
	source   repository.BarSource
	store    ArtifactStore
	exporter ModelExporter
	opts     TrainOptions
	tracker
}

func NewTrainPipeline(
	source repository.BarSource,
	store ArtifactStore,
	exporter ModelExporter,
	metrics repository.Metrics,
	l *applogger.Logger,
	opts TrainOptions,
) *TrainPipeline {
	if len(opts.Columns) == 0 {
		opts.Columns = features.DefaultColumns()
	}
	return &TrainPipeline{
		source:   source,
		store:    store,
		exporter: exporter,
		opts:     opts,
		tracker:  newTracker(metrics, l),
	}
}

func (p *TrainPipeline) Run(ctx context.Context) (*TrainResult, error) {
	start := time.Now()
	res := &TrainResult{ArtifactPath: p.opts.ArtifactPath}
	defer p.writeTextfile(p.opts.MetricsTextfile)

	var raw, clean []models.Bar
	err := p.run(ctx, models.StageLoad, func() (int, error) {
		var err error
		raw, err = p.source.Load(ctx)
		return len(raw), err
	})
	if err != nil {
		return nil, err
	}
	res.Bars = len(raw)

	err = p.run(ctx, models.StageClean, func() (int, error) {
		clean, res.Clean = bars.CleanWithReport(raw)
		p.metrics.RecordDropped(string(models.StageClean), res.Clean.Input-res.Clean.Output)
		if len(clean) == 0 {
			return 0, &models.DataFormatError{Source: p.source.Name(), Reason: "no valid bars after cleaning"}
		}
		return len(clean), nil
	})
	if err != nil {
		return nil, err
	}

	var table *models.FeatureTable
	err = p.run(ctx, models.StageFeature, func() (int, error) {
		engine, err := features.NewEngine(p.opts.Features)
		if err != nil {
			return 0, err
		}
		table, err = engine.Compute(clean)
		if err != nil {
			return 0, err
		}
		p.metrics.RecordDropped(string(models.StageFeature), table.Dropped)
		return table.Len(), nil
	})
	if err != nil {
		return nil, err
	}
	res.FeatureRows, res.FeatureDropped = table.Len(), table.Dropped

	var labeled *models.LabeledTable
	err = p.run(ctx, models.StageLabel, func() (int, error) {
		var err error
		labeled, err = labeling.Label(table, p.opts.Labeling)
		if err != nil {
			return 0, err
		}
		p.metrics.RecordDropped(string(models.StageLabel), labeled.Dropped)
		return labeled.Len(), nil
	})
	if err != nil {
		return nil, err
	}
	res.LabeledRows, res.LabelDropped = labeled.Len(), labeled.Dropped
	res.Distribution = labeled.Distribution()
	p.logDistribution(res.Distribution)

	var parts *models.Split
	err = p.run(ctx, models.StageSplit, func() (int, error) {
		var err error
		parts, err = split.Split(labeled, p.opts.Ratios)
		if err != nil {
			return 0, err
		}
		return parts.Train.Len(), nil
	})
	if err != nil {
		return nil, err
	}
	res.Split = parts.Report()
	for _, sp := range res.Split {
		p.l.Info("partition",
			applogger.String("name", sp.Name),
			applogger.Int("rows", sp.Rows),
			applogger.Time("from", sp.From),
			applogger.Time("to", sp.To))
	}

	model := ml.NewEnsemble(p.opts.Model, p.opts.Columns)
	err = p.run(ctx, models.StageFit, func() (int, error) {
		x, y, err := parts.Train.XY(p.opts.Columns)
		if err != nil {
			return 0, err
		}
		res.TrainAccuracy, err = model.Fit(ctx, x, y)
		return len(y), err
	})
	if err != nil {
		return nil, err
	}
	res.ModelID = model.Meta().ID
	p.metrics.SetAccuracy("train", res.TrainAccuracy)

	err = p.run(ctx, models.StageEvaluate, func() (int, error) {
		var err error
		if res.Validation, err = p.evaluate(model, "validation", parts.Validation); err != nil {
			return 0, err
		}
		if res.Test, err = p.evaluate(model, "test", parts.Test); err != nil {
			return 0, err
		}
		return res.Validation.Total + res.Test.Total, nil
	})
	if err != nil {
		return nil, err
	}

	err = p.run(ctx, models.StageSave, func() (int, error) {
		return 1, p.store.Save(ctx, model, p.opts.ArtifactPath)
	})
	if err != nil {
		return nil, err
	}

	exportStart := time.Now()
	res.Export = p.exporter.Export(model, p.opts.ONNXPath, p.opts.SettingsPath)
	if res.Export.Status == export.Exported && p.opts.IncludePath != "" {
		p.renderInclude(res)
	}
	p.metrics.ObserveStage(string(models.StageExport), time.Since(exportStart).Seconds())

	res.Duration = time.Since(start)
	p.l.Info("training complete",
		applogger.String("model_id", res.ModelID),
		applogger.Float64("train_accuracy", res.TrainAccuracy),
		applogger.Float64("validation_accuracy", res.Validation.Accuracy),
		applogger.Float64("test_accuracy", res.Test.Accuracy),
		applogger.String("export", res.Export.Status.String()),
		applogger.Duration("elapsed_ms", res.Duration))
	return res, nil
}

func (p *TrainPipeline) renderInclude(res *TrainResult) {
	if err := export.RenderInclude(p.opts.SettingsPath, p.opts.IncludePath); err != nil {
		res.IncludeErr = err
		p.l.Error("render include failed",
			applogger.String("include_path", p.opts.IncludePath),
			applogger.Error(err))
		return
	}
	res.IncludePath = p.opts.IncludePath
	p.l.Info("include rendered", applogger.String("include_path", res.IncludePath))
}

func (p *TrainPipeline) evaluate(m *ml.Ensemble, name string, t *models.LabeledTable) (*evaluation.Report, error) {
	x, y, err := t.XY(p.opts.Columns)
	if err != nil {
		return nil, err
	}
	r, err := evaluation.Evaluate(m, x, y)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	p.metrics.SetAccuracy(name, r.Accuracy)
	p.l.Debug("classification report", applogger.String("partition", name), applogger.String("report", r.Table()))
	return r, nil
}

func (p *TrainPipeline) logDistribution(d [models.NumRegimes]int) {
	total := 0
	for _, n := range d {
		total += n
	}
	fields := make([]applogger.Field, 0, len(d))
	for i, n := range d {
		fields = append(fields, applogger.Int(models.Regime(i).String(), n))
	}
	fields = append(fields, applogger.Int("total", total))
	p.l.Info("regime distribution", fields...)
}
