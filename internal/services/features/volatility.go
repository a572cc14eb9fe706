package features

import "fmt"

func addVolatility(t *builder, s *barSeries, windows []int) {
	tr := trueRange(s)
	ret := t.get("Return")
	rng := t.get("Range")
	for _, p := range windows {
		atr := rollingMean(tr, p)
		t.add(fmt.Sprintf("ATR_%d", p), atr)
		t.add(fmt.Sprintf("ATR_%d_Pct", p), div(atr, s.close))
		t.add(fmt.Sprintf("Volatility_%d", p), rollingStd(ret, p))
		t.add(fmt.Sprintf("RangeVol_%d", p), rollingStd(rng, p))
	}
	t.add("VolatilityRatio", div(t.get("Volatility_5"), t.get("Volatility_20")))
	t.add("ATRRatio", div(t.get("ATR_5"), t.get("ATR_20")))
}
