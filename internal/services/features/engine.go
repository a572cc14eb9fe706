// Package features turns a cleaned bar table into the feature table used
// for labeling, training and inference.
package features

import (
	"fmt"
	"math"
	"time"

	"RegimeML/internal/domain/models"
)

// Config selects the volatility windows. 5 and 20 must be present because
// the volatility and ATR ratios compare them.
type Config struct {
	VolatilityWindows []int
}

// DefaultConfig returns the windows the model was designed around.
func DefaultConfig() Config {
	return Config{VolatilityWindows: []int{5, 10, 20, 50}}
}

// Engine computes features. It holds no state between calls.
type Engine struct {
	cfg     Config
	minBars int
}

func NewEngine(cfg Config) (*Engine, error) {
	if len(cfg.VolatilityWindows) == 0 {
		cfg = DefaultConfig()
	}
	has := map[int]bool{}
	minBars := maWindows[len(maWindows)-1]
	for _, w := range cfg.VolatilityWindows {
		if w < 2 {
			return nil, fmt.Errorf("volatility window %d must be at least 2", w)
		}
		has[w] = true
		if w > minBars {
			minBars = w
		}
	}
	if !has[5] || !has[20] {
		return nil, fmt.Errorf("volatility windows must include 5 and 20")
	}
	return &Engine{cfg: Config{VolatilityWindows: append([]int(nil), cfg.VolatilityWindows...)}, minBars: minBars}, nil
}

// MinBars is the shortest history Compute accepts.
func (e *Engine) MinBars() int { return e.minBars }

// Compute derives every feature column for bars, which must be clean and
// sorted. Rows with an undefined value in any column are dropped and
// counted. The input is never modified.
func (e *Engine) Compute(bars []models.Bar) (*models.FeatureTable, error) {
	if len(bars) < e.minBars {
		return nil, &models.InsufficientHistoryError{Bars: len(bars), Required: e.minBars}
	}

	s := newBarSeries(bars)
	b := &builder{index: map[string]int{}}
	addPrice(b, s)
	addVolatility(b, s, e.cfg.VolatilityWindows)
	addTrend(b, s)
	addMomentum(b, s)
	addCalendar(b, s)

	table := &models.FeatureTable{
		Columns:   append([]string(nil), b.names...),
		Close:     append([]float64(nil), s.close...),
		AbsReturn: append([]float64(nil), b.get("Return_Abs")...),
	}
	for i := 0; i < s.n; i++ {
		row := make([]float64, len(b.cols))
		ok := true
		for c, col := range b.cols {
			if !finite(col[i]) {
				ok = false
				break
			}
			row[c] = col[i]
		}
		if !ok {
			table.Dropped++
			continue
		}
		table.Rows = append(table.Rows, row)
		table.Times = append(table.Times, s.times[i])
		table.BarIndex = append(table.BarIndex, i)
	}
	if table.Len() == 0 {
		return nil, &models.InsufficientHistoryError{Bars: len(bars), Required: e.minBars + 1}
	}
	return table, nil
}

type barSeries struct {
	n                      int
	times                  []time.Time
	open, high, low, close []float64
}

func newBarSeries(bars []models.Bar) *barSeries {
	s := &barSeries{
		n:     len(bars),
		times: make([]time.Time, len(bars)),
		open:  make([]float64, len(bars)),
		high:  make([]float64, len(bars)),
		low:   make([]float64, len(bars)),
		close: make([]float64, len(bars)),
	}
	for i, b := range bars {
		s.times[i] = b.Time
		s.open[i] = b.Open
		s.high[i] = b.High
		s.low[i] = b.Low
		s.close[i] = b.Close
	}
	return s
}

// builder collects named columns in insertion order.
type builder struct {
	names []string
	cols  [][]float64
	index map[string]int
}

func (b *builder) add(name string, values []float64) {
	for i, v := range values {
		if math.IsInf(v, 0) {
			values[i] = math.NaN()
		}
	}
	if i, ok := b.index[name]; ok {
		b.cols[i] = values
		return
	}
	b.index[name] = len(b.cols)
	b.names = append(b.names, name)
	b.cols = append(b.cols, values)
}

func (b *builder) get(name string) []float64 {
	return b.cols[b.index[name]]
}
