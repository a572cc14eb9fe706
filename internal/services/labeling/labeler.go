// Package labeling attaches forward-looking regime labels to feature rows.
package labeling

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"RegimeML/internal/domain/models"
)

// TrailingVolWindow is the number of past absolute returns the future
// volatility is compared against.
const TrailingVolWindow = 50

type Config struct {
	Lookforward    int
	TrendThreshold float64
	VolThreshold   float64
}

func DefaultConfig() Config {
	return Config{Lookforward: 10, TrendThreshold: 0.005, VolThreshold: 1.5}
}

// Classify applies the labeling rules in priority order: TRENDING when the
// absolute future return beats trend and the volatility ratio stays below
// vol, VOLATILE when the ratio reaches vol, otherwise RANGING.
func Classify(futureReturn, futureVolRatio, trend, vol float64) models.Regime {
	switch {
	case math.Abs(futureReturn) > trend && futureVolRatio < vol:
		return models.Trending
	case futureVolRatio >= vol:
		return models.Volatile
	default:
		return models.Ranging
	}
}

// Outcome is the forward-looking measurement behind one label.
type Outcome struct {
	FutureReturn   float64
	FutureVolRatio float64
}

// Measure computes the future return and future volatility ratio for source
// bar i. ok is false when either is undefined: too close to the end, too
// little trailing history, or a calm trailing window with zero volatility.
func Measure(close, absReturn []float64, i, lookforward int) (Outcome, bool) {
	n := len(close)
	if i+lookforward >= n || i-TrailingVolWindow+1 < 0 {
		return Outcome{}, false
	}
	future, ok := mean(absReturn[i+1 : i+lookforward+1])
	if !ok {
		return Outcome{}, false
	}
	trailing, ok := mean(absReturn[i-TrailingVolWindow+1 : i+1])
	if !ok || trailing == 0 {
		return Outcome{}, false
	}
	return Outcome{
		FutureReturn:   close[i+lookforward]/close[i] - 1,
		FutureVolRatio: future / trailing,
	}, true
}

// Label returns the rows of t that have a defined label. The last
// cfg.Lookforward bars of the history never do.
func Label(t *models.FeatureTable, cfg Config) (*models.LabeledTable, error) {
	if cfg.Lookforward <= 0 {
		return nil, fmt.Errorf("lookforward must be positive, got %d", cfg.Lookforward)
	}
	out := &models.LabeledTable{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([][]float64, 0, t.Len()),
		Times:   make([]time.Time, 0, t.Len()),
		Labels:  make([]models.Regime, 0, t.Len()),
	}
	for r, barIdx := range t.BarIndex {
		o, ok := Measure(t.Close, t.AbsReturn, barIdx, cfg.Lookforward)
		if !ok {
			out.Dropped++
			continue
		}
		out.Rows = append(out.Rows, append([]float64(nil), t.Rows[r]...))
		out.Times = append(out.Times, t.Times[r])
		out.Labels = append(out.Labels, Classify(o.FutureReturn, o.FutureVolRatio, cfg.TrendThreshold, cfg.VolThreshold))
	}
	if out.Len() == 0 {
		need := cfg.Lookforward + TrailingVolWindow + 1
		if len(t.BarIndex) > 0 && t.BarIndex[0]+cfg.Lookforward+1 > need {
			need = t.BarIndex[0] + cfg.Lookforward + 1
		}
		return nil, &models.InsufficientHistoryError{Bars: len(t.Close), Required: need}
	}
	return out, nil
}

func mean(xs []float64) (float64, bool) {
	if len(xs) == 0 || floats.HasNaN(xs) {
		return 0, false
	}
	return stat.Mean(xs, nil), true
}
