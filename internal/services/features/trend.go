package features

import (
	"fmt"
	"math"
)

var maWindows = []int{5, 10, 20, 50, 100}

const adxWindow = 14

func addTrend(t *builder, s *barSeries) {
	for _, p := range maWindows {
		t.add(fmt.Sprintf("SMA_%d", p), rollingMean(s.close, p))
		t.add(fmt.Sprintf("EMA_%d", p), ema(s.close, p))
	}

	sma20, sma50 := t.get("SMA_20"), t.get("SMA_50")
	t.add("PriceVsSMA20", relChange(s.close, sma20))
	t.add("PriceVsSMA50", relChange(s.close, sma50))
	t.add("SMA20_Slope", relChange(sma20, lag(sma20, 5)))
	t.add("SMA50_Slope", relChange(sma50, lag(sma50, 10)))

	e5, e10, e20, e50 := t.get("EMA_5"), t.get("EMA_10"), t.get("EMA_20"), t.get("EMA_50")
	align := make([]float64, s.n)
	for i := range align {
		align[i] = boolf(e5[i] > e10[i]) + boolf(e10[i] > e20[i]) + boolf(e20[i] > e50[i]) - 1.5
	}
	t.add("MA_Alignment", align)

	// Directional movement: each side is kept when positive, independently of
	// the other side.
	plusDM := mapSeries(diff(s.high), func(v float64) float64 { return math.Max(v, 0) })
	minusDM := mapSeries(scale(diff(s.low), -1), func(v float64) float64 { return math.Max(v, 0) })
	atr14 := rollingMean(trueRange(s), adxWindow)
	plusDI := scale(div(rollingMean(plusDM, adxWindow), atr14), 100)
	minusDI := scale(div(rollingMean(minusDM, adxWindow), atr14), 100)

	dx := make([]float64, s.n)
	for i := range dx {
		dx[i] = 100 * safeDiv(math.Abs(plusDI[i]-minusDI[i]), plusDI[i]+minusDI[i])
	}
	t.add("ADX", rollingMean(dx, adxWindow))
	t.add("DI_Diff", sub(plusDI, minusDI))
}
