package labeling

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RegimeML/internal/domain/models"
	"RegimeML/internal/services/features"
	"RegimeML/internal/testutil"
)

func TestClassifyPriority(t *testing.T) {
	assert.Equal(t, models.Trending, Classify(0.01, 0.8, 0.005, 1.5))
	assert.Equal(t, models.Volatile, Classify(0.01, 2.0, 0.005, 1.5))
	assert.Equal(t, models.Volatile, Classify(0.0, 2.0, 0.005, 1.5))
	assert.Equal(t, models.Volatile, Classify(-0.2, 1.5, 0.005, 1.5), "ratio at threshold is volatile")
	assert.Equal(t, models.Ranging, Classify(0.001, 0.9, 0.005, 1.5))
	assert.Equal(t, models.Trending, Classify(-0.01, 0.8, 0.005, 1.5), "direction does not matter")
	assert.Equal(t, models.Ranging, Classify(0.005, 0.8, 0.005, 1.5), "return at threshold is not a trend")
}

// flatTable builds a feature table over n bars whose closes and absolute
// returns are given, with one row per bar from index from onwards.
func flatTable(close, absRet []float64, from int) *models.FeatureTable {
	base := time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC)
	t := &models.FeatureTable{Columns: []string{"x"}, Close: close, AbsReturn: absRet}
	for i := from; i < len(close); i++ {
		t.Rows = append(t.Rows, []float64{float64(i)})
		t.Times = append(t.Times, base.Add(time.Duration(i)*time.Hour))
		t.BarIndex = append(t.BarIndex, i)
	}
	return t
}

func TestMeasureSyntheticTrend(t *testing.T) {
	n := 80
	close := make([]float64, n)
	abs := make([]float64, n)
	abs[0] = math.NaN()
	for i := range close {
		close[i] = 100
		if i > 0 {
			abs[i] = 0.001
		}
	}
	// next 10 bars rise by 1% overall with calmer moves than the trailing window
	i := 60
	close[i+10] = 101
	for k := i + 1; k <= i+10; k++ {
		abs[k] = 0.0008
	}
	o, ok := Measure(close, abs, i, 10)
	require.True(t, ok)
	assert.InDelta(t, 0.01, o.FutureReturn, 1e-12)
	assert.InDelta(t, 0.8, o.FutureVolRatio, 1e-9)
	assert.Equal(t, models.Trending, Classify(o.FutureReturn, o.FutureVolRatio, 0.005, 1.5))
}

func TestMeasureUndefinedCases(t *testing.T) {
	close := make([]float64, 70)
	abs := make([]float64, 70)
	for i := range close {
		close[i] = 50
	}
	_, ok := Measure(close, abs, 60, 10)
	assert.False(t, ok, "index+lookforward past the end")
	_, ok = Measure(close, abs, 20, 10)
	assert.False(t, ok, "not enough trailing bars")
	_, ok = Measure(close, abs, 55, 10)
	assert.False(t, ok, "zero trailing volatility is undefined, not infinite")
}

func TestLabelExcludesLastLookforwardBars(t *testing.T) {
	bars := testutil.SyntheticBars(600, 11)
	eng, err := features.NewEngine(features.DefaultConfig())
	require.NoError(t, err)
	ft, err := eng.Compute(bars)
	require.NoError(t, err)

	cfg := DefaultConfig()
	lt, err := Label(ft, cfg)
	require.NoError(t, err)

	lastAllowed := bars[len(bars)-1-cfg.Lookforward].Time
	for _, ts := range lt.Times {
		require.False(t, ts.After(lastAllowed))
	}
	assert.Equal(t, ft.Len(), lt.Len()+lt.Dropped)
	assert.GreaterOrEqual(t, lt.Dropped, cfg.Lookforward)
	assert.Equal(t, lastAllowed, lt.Times[lt.Len()-1])

	dist := lt.Distribution()
	for r, c := range dist {
		assert.Positive(t, c, "regime %s missing", models.Regime(r))
	}
}

func TestLabelIsDeterministic(t *testing.T) {
	close := make([]float64, 120)
	abs := make([]float64, 120)
	abs[0] = math.NaN()
	for i := range close {
		close[i] = 100 + float64(i%7)
		if i > 0 {
			abs[i] = math.Abs(close[i]/close[i-1] - 1)
		}
	}
	ft := flatTable(close, abs, 60)
	a, err := Label(ft, DefaultConfig())
	require.NoError(t, err)
	b, err := Label(ft, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, a.Labels, b.Labels)
	assert.Equal(t, 50, a.Len())
}

func TestLabelNothingLabelable(t *testing.T) {
	close := []float64{1, 2, 3}
	ft := flatTable(close, []float64{math.NaN(), 1, 0.5}, 0)
	_, err := Label(ft, DefaultConfig())
	require.ErrorIs(t, err, models.ErrInsufficientHistory)
}
