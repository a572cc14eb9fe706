package features

import "math"

// trueRange is max(high-low, |high-prev close|, |low-prev close|); the first
// bar has no previous close and uses high-low alone.
func trueRange(s *barSeries) []float64 {
	out := make([]float64, s.n)
	for i := 0; i < s.n; i++ {
		tr := s.high[i] - s.low[i]
		if i > 0 {
			tr = math.Max(tr, math.Abs(s.high[i]-s.close[i-1]))
			tr = math.Max(tr, math.Abs(s.low[i]-s.close[i-1]))
		}
		out[i] = tr
	}
	return out
}

func addPrice(t *builder, s *barSeries) {
	ret := relChange(s.close, lag(s.close, 1))
	t.add("Return", ret)
	t.add("Return_Abs", mapSeries(ret, math.Abs))
	t.add("LogReturn", mapSeries(div(s.close, lag(s.close, 1)), math.Log))

	rng := sub(s.high, s.low)
	t.add("Range", rng)
	t.add("RangePercent", div(rng, s.close))

	body := make([]float64, s.n)
	upper := make([]float64, s.n)
	lower := make([]float64, s.n)
	for i := 0; i < s.n; i++ {
		body[i] = math.Abs(s.close[i] - s.open[i])
		upper[i] = s.high[i] - math.Max(s.open[i], s.close[i])
		lower[i] = math.Min(s.open[i], s.close[i]) - s.low[i]
	}
	t.add("Body", body)
	t.add("BodyPercent", div(body, rng))
	t.add("UpperWick", upper)
	t.add("LowerWick", lower)
}
