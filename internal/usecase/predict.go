package usecase

import (
	"context"
	"fmt"
	"time"

	"RegimeML/internal/domain/models"
	"RegimeML/internal/domain/repository"
	"RegimeML/internal/services/bars"
	"RegimeML/internal/services/features"
	"RegimeML/internal/services/ml"
	"RegimeML/pkg/config"
	applogger "RegimeML/pkg/logger"
)

type PredictOptions struct {
	Symbol         string
	ArtifactPath   string
	Features       features.Config
	Rows           int
	RegimeSettings map[string]config.RegimeSettings
}

// Prediction is one classified bar plus the trade parameters of its regime.
type Prediction struct {
	models.RegimePrediction
	Settings config.RegimeSettings
	// Actionable reports whether confidence reaches the regime's minimum.
	Actionable bool
}

// RegimePredictor classifies the most recent bars with a stored model and
// publishes the newest result.
type RegimePredictor struct {
	source repository.BarSource
	store  ArtifactStore
	sinks  []repository.RegimeSink
	opts   PredictOptions
	tracker
}

func NewRegimePredictor(
	source repository.BarSource,
	store ArtifactStore,
	sinks []repository.RegimeSink,
	metrics repository.Metrics,
	l *applogger.Logger,
	opts PredictOptions,
) *RegimePredictor {
	if opts.Rows <= 0 {
		opts.Rows = 1
	}
	if len(opts.RegimeSettings) == 0 {
		opts.RegimeSettings = config.DefaultRegimeSettings()
	}
	return &RegimePredictor{
		source:  source,
		store:   store,
		sinks:   sinks,
		opts:    opts,
		tracker: newTracker(metrics, l),
	}
}

// Predict returns predictions for the last Rows feature rows, oldest first.
// Only the newest one is published.
func (p *RegimePredictor) Predict(ctx context.Context) ([]Prediction, error) {
	var model *ml.Ensemble
	var raw []models.Bar
	err := p.run(ctx, models.StageLoad, func() (int, error) {
		var err error
		if model, err = p.store.Load(ctx, p.opts.ArtifactPath); err != nil {
			return 0, err
		}
		raw, err = p.source.Load(ctx)
		return len(raw), err
	})
	if err != nil {
		return nil, err
	}

	var clean []models.Bar
	err = p.run(ctx, models.StageClean, func() (int, error) {
		clean = bars.Clean(raw)
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
		return table.Len(), nil
	})
	if err != nil {
		return nil, err
	}

	var out []Prediction
	err = p.run(ctx, models.StagePredict, func() (int, error) {
		x, err := table.Matrix(model.Columns())
		if err != nil {
			return 0, err
		}
		from := len(x) - p.opts.Rows
		if from < 0 {
			from = 0
		}
		proba, err := model.PredictProba(x[from:])
		if err != nil {
			return 0, err
		}
		out = make([]Prediction, len(proba))
		for i, pr := range proba {
			out[i] = p.prediction(model, table.Times[from+i], pr)
		}
		return len(out), nil
	})
	if err != nil {
		return nil, err
	}

	latest := out[len(out)-1]
	p.metrics.RecordPrediction(latest.Regime.String())
	err = p.run(ctx, models.StagePublish, func() (int, error) {
		for _, s := range p.sinks {
			if err := s.Publish(ctx, latest.RegimePrediction); err != nil {
				return 0, fmt.Errorf("sink %s: %w", s.Name(), err)
			}
		}
		return len(p.sinks), nil
	})
	if err != nil {
		return nil, err
	}

	p.l.Info("regime predicted",
		applogger.String("symbol", p.opts.Symbol),
		applogger.Time("bar_time", latest.Time),
		applogger.String("regime", latest.Regime.String()),
		applogger.Float64("confidence", latest.Confidence),
		applogger.Bool("actionable", latest.Actionable))
	return out, nil
}

func (p *RegimePredictor) prediction(m *ml.Ensemble, t time.Time, proba []float64) Prediction {
	regime := models.Regime(ml.Argmax(proba))
	settings := p.opts.RegimeSettings[regime.String()]
	conf := proba[regime]
	return Prediction{
		RegimePrediction: models.RegimePrediction{
			Symbol:        p.opts.Symbol,
			Time:          t,
			Regime:        regime,
			Probabilities: proba,
			Confidence:    conf,
			ModelID:       m.Meta().ID,
		},
		Settings:   settings,
		Actionable: conf*100 >= float64(settings.MinConfidence),
	}
}
