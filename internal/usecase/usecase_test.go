package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RegimeML/internal/domain/models"
	domainrepo "RegimeML/internal/domain/repository"
	"RegimeML/internal/repository"
	"RegimeML/internal/services/export"
	"RegimeML/internal/services/features"
	"RegimeML/internal/services/labeling"
	"RegimeML/internal/services/ml"
	"RegimeML/internal/services/split"
	"RegimeML/internal/testutil"
	"RegimeML/pkg/config"
	pkgmetrics "RegimeML/pkg/metrics"
)

type sliceSource struct {
	bars []models.Bar
	err  error
}

func (s sliceSource) Load(context.Context) ([]models.Bar, error) {
	return append([]models.Bar(nil), s.bars...), s.err
}

func (s sliceSource) Name() string { return "slice" }

type recordingSink struct {
	got []models.RegimePrediction
	err error
}

func (s *recordingSink) Publish(_ context.Context, p models.RegimePrediction) error {
	if s.err != nil {
		return s.err
	}
	s.got = append(s.got, p)
	return nil
}

func (s *recordingSink) Name() string { return "recording" }
func (s *recordingSink) Close() error { return nil }

type paths struct {
	artifact, onnx, settings, include, textfile string
}

func newPaths(t *testing.T) paths {
	dir := t.TempDir()
	return paths{
		artifact: filepath.Join(dir, "regime.json"),
		onnx:     filepath.Join(dir, "regime.onnx"),
		settings: filepath.Join(dir, "regime_config.json"),
		include:  filepath.Join(dir, "RegimeModelConfig.mqh"),
		textfile: filepath.Join(dir, "regime.prom"),
	}
}

func trainOptions(p paths) TrainOptions {
	model := ml.DefaultConfig()
	model.Forest.Trees = 6
	model.Forest.MaxDepth = 6
	model.Boosting.Stages = 6
	model.Boosting.MaxDepth = 3
	return TrainOptions{
		Features:        features.DefaultConfig(),
		Labeling:        labeling.DefaultConfig(),
		Ratios:          split.DefaultRatios(),
		Model:           model,
		ArtifactPath:    p.artifact,
		ONNXPath:        p.onnx,
		SettingsPath:    p.settings,
		IncludePath:     p.include,
		MetricsTextfile: p.textfile,
	}
}

func newTrainPipeline(src sliceSource, p paths, exportEnabled bool) *TrainPipeline {
	exporter := export.NewExporter(export.Config{Enabled: exportEnabled}, nil, nil)
	return NewTrainPipeline(src, repository.NewFileArtifactStore(), exporter, pkgmetrics.New(), nil, trainOptions(p))
}

func train(t *testing.T, n int) (paths, []models.Bar) {
	t.Helper()
	p := newPaths(t)
	bars := testutil.SyntheticBars(n, 11)
	_, err := newTrainPipeline(sliceSource{bars: bars}, p, true).Run(context.Background())
	require.NoError(t, err)
	return p, bars
}

func requireStage(t *testing.T, err error, stage models.Stage) {
	t.Helper()
	var se *models.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, stage, se.Stage)
}

func TestTrainPipelineRun(t *testing.T) {
	p := newPaths(t)
	bars := testutil.SyntheticBars(1200, 11)

	res, err := newTrainPipeline(sliceSource{bars: bars}, p, true).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1200, res.Bars)
	assert.Equal(t, 1200, res.Clean.Output)
	assert.Equal(t, 1200-99, res.FeatureRows)
	assert.Equal(t, 99, res.FeatureDropped)
	assert.Equal(t, res.FeatureRows-labeling.DefaultConfig().Lookforward, res.LabeledRows)

	total := 0
	for _, n := range res.Distribution {
		total += n
	}
	assert.Equal(t, res.LabeledRows, total)

	require.Len(t, res.Split, 3)
	assert.Equal(t, res.LabeledRows, res.Split[0].Rows+res.Split[1].Rows+res.Split[2].Rows)
	assert.True(t, res.Split[0].To.Before(res.Split[1].From))
	assert.True(t, res.Split[1].To.Before(res.Split[2].From))

	assert.NotEmpty(t, res.ModelID)
	assert.Greater(t, res.TrainAccuracy, 0.0)
	assert.Equal(t, res.Split[1].Rows, res.Validation.Total)
	assert.Equal(t, res.Split[2].Rows, res.Test.Total)
	assert.Equal(t, export.Exported, res.Export.Status, "export err: %v", res.Export.Err)

	for _, f := range []string{p.artifact, p.onnx, p.settings, p.include, p.textfile} {
		assert.FileExists(t, f)
	}
	assert.NoError(t, res.IncludeErr)
	assert.Equal(t, p.include, res.IncludePath)
	mqh, err := os.ReadFile(p.include)
	require.NoError(t, err)
	assert.Contains(t, string(mqh), fmt.Sprintf("#define REGIME_MODEL_FEATURES %d", len(features.DefaultColumns())))

	prom, err := os.ReadFile(p.textfile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "regime_stage_duration_seconds")
	assert.Contains(t, string(prom), `regime_model_accuracy{partition="test"}`)
}

func TestTrainPipelineExportFailureIsSoft(t *testing.T) {
	p := newPaths(t)
	res, err := newTrainPipeline(sliceSource{bars: testutil.SyntheticBars(800, 3)}, p, false).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, export.Unavailable, res.Export.Status)
	assert.ErrorIs(t, res.Export.Err, models.ErrExportUnavailable)
	assert.FileExists(t, p.artifact)
	assert.NoFileExists(t, p.onnx)
	assert.NoFileExists(t, p.include)
	assert.Empty(t, res.IncludePath)
}

func TestTrainPipelineStageErrors(t *testing.T) {
	ctx := context.Background()
	p := newPaths(t)

	boom := errors.New("disk gone")
	_, err := newTrainPipeline(sliceSource{err: boom}, p, true).Run(ctx)
	requireStage(t, err, models.StageLoad)
	assert.ErrorIs(t, err, boom)

	bad := testutil.SyntheticBars(10, 1)
	for i := range bad {
		bad[i].Close = -1
	}
	_, err = newTrainPipeline(sliceSource{bars: bad}, p, true).Run(ctx)
	requireStage(t, err, models.StageClean)
	assert.ErrorIs(t, err, models.ErrDataFormat)

	_, err = newTrainPipeline(sliceSource{bars: testutil.SyntheticBars(60, 1)}, p, true).Run(ctx)
	requireStage(t, err, models.StageFeature)
	assert.ErrorIs(t, err, models.ErrInsufficientHistory)

	// 105 bars give 6 feature rows, none with 10 bars of future.
	_, err = newTrainPipeline(sliceSource{bars: testutil.SyntheticBars(105, 1)}, p, true).Run(ctx)
	requireStage(t, err, models.StageLabel)
	assert.ErrorIs(t, err, models.ErrInsufficientHistory)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = newTrainPipeline(sliceSource{bars: testutil.SyntheticBars(300, 1)}, p, true).Run(cancelled)
	requireStage(t, err, models.StageLoad)
	assert.ErrorIs(t, err, context.Canceled)

	assert.NoFileExists(t, p.artifact)
}

func TestRegimePredictorPredict(t *testing.T) {
	p, bars := train(t, 900)
	sink := &recordingSink{}
	settings := config.DefaultRegimeSettings()
	pred := NewRegimePredictor(sliceSource{bars: bars}, repository.NewFileArtifactStore(),
		[]domainrepo.RegimeSink{sink}, nil, nil,
		PredictOptions{Symbol: "XAUUSD", ArtifactPath: p.artifact, Features: features.DefaultConfig(), Rows: 3, RegimeSettings: settings})

	out, err := pred.Predict(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, bars[len(bars)-1].Time, out[2].Time)
	assert.True(t, out[0].Time.Before(out[1].Time))

	for _, o := range out {
		sum := 0.0
		for _, v := range o.Probabilities {
			sum += v
		}
		assert.InDelta(t, 1, sum, 1e-9)
		assert.Equal(t, ml.Argmax(o.Probabilities), int(o.Regime))
		assert.Equal(t, o.Probabilities[o.Regime], o.Confidence)
		assert.Equal(t, settings[o.Regime.String()], o.Settings)
		assert.Equal(t, o.Confidence*100 >= float64(o.Settings.MinConfidence), o.Actionable)
		assert.Equal(t, "XAUUSD", o.Symbol)
		assert.False(t, math.IsNaN(o.Confidence))
	}

	require.Len(t, sink.got, 1)
	assert.Equal(t, out[2].RegimePrediction, sink.got[0])
}

func TestRegimePredictorFailures(t *testing.T) {
	ctx := context.Background()
	p, bars := train(t, 700)
	opts := PredictOptions{Symbol: "XAUUSD", ArtifactPath: p.artifact, Features: features.DefaultConfig()}

	failing := &recordingSink{err: errors.New("broker down")}
	_, err := NewRegimePredictor(sliceSource{bars: bars}, repository.NewFileArtifactStore(),
		[]domainrepo.RegimeSink{failing}, nil, nil, opts).Predict(ctx)
	requireStage(t, err, models.StagePublish)

	missing := opts
	missing.ArtifactPath = filepath.Join(t.TempDir(), "nope.json")
	_, err = NewRegimePredictor(sliceSource{bars: bars}, repository.NewFileArtifactStore(), nil, nil, nil, missing).Predict(ctx)
	requireStage(t, err, models.StageLoad)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = NewRegimePredictor(sliceSource{bars: bars[:50]}, repository.NewFileArtifactStore(), nil, nil, nil, opts).Predict(ctx)
	requireStage(t, err, models.StageFeature)
}

func TestExportUseCase(t *testing.T) {
	p, _ := train(t, 700)
	dir := t.TempDir()
	opts := ExportOptions{
		ArtifactPath: p.artifact,
		ONNXPath:     filepath.Join(dir, "again.onnx"),
		SettingsPath: filepath.Join(dir, "again.json"),
		IncludePath:  filepath.Join(dir, "RegimeModelConfig.mqh"),
	}
	exporter := export.NewExporter(export.Config{Enabled: true}, nil, nil)
	res, err := NewExportUseCase(repository.NewFileArtifactStore(), exporter, nil, nil, opts).Export(context.Background())
	require.NoError(t, err)
	assert.Equal(t, export.Exported, res.Status)
	assert.FileExists(t, opts.IncludePath)

	s, err := export.ReadSettings(opts.SettingsPath)
	require.NoError(t, err)
	assert.Equal(t, "again.onnx", s.ModelFile)
	assert.Equal(t, features.DefaultColumns(), s.FeatureColumns)

	opts.ArtifactPath = filepath.Join(dir, "missing.json")
	_, err = NewExportUseCase(repository.NewFileArtifactStore(), exporter, nil, nil, opts).Export(context.Background())
	requireStage(t, err, models.StageLoad)
}
