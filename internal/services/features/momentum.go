package features

import (
	"fmt"
	"math"
)

const (
	rsiWindow   = 14
	stochWindow = 14
)

func addMomentum(t *builder, s *barSeries) {
	delta := diff(s.close)
	gain := make([]float64, s.n)
	loss := make([]float64, s.n)
	for i, d := range delta {
		// the undefined first delta counts as no move
		if d > 0 {
			gain[i] = d
		} else if d < 0 {
			loss[i] = -d
		}
	}
	avgGain := rollingMean(gain, rsiWindow)
	avgLoss := rollingMean(loss, rsiWindow)
	rsi := make([]float64, s.n)
	extreme := make([]float64, s.n)
	for i := range rsi {
		rsi[i] = rsiValue(avgGain[i], avgLoss[i])
		if math.IsNaN(rsi[i]) {
			extreme[i] = math.NaN()
			continue
		}
		extreme[i] = boolf(rsi[i] < 30 || rsi[i] > 70)
	}
	t.add("RSI", rsi)
	t.add("RSI_Extreme", extreme)

	macd := sub(ema(s.close, 12), ema(s.close, 26))
	signal := ema(macd, 9)
	t.add("MACD", macd)
	t.add("MACD_Signal", signal)
	t.add("MACD_Hist", sub(macd, signal))

	low14 := rollingMin(s.low, stochWindow)
	high14 := rollingMax(s.high, stochWindow)
	k := make([]float64, s.n)
	for i := range k {
		k[i] = 100 * safeDiv(s.close[i]-low14[i], high14[i]-low14[i])
	}
	t.add("Stoch_K", k)
	t.add("Stoch_D", rollingMean(k, 3))

	for _, p := range []int{5, 10, 20} {
		t.add(fmt.Sprintf("ROC_%d", p), relChange(s.close, lag(s.close, p)))
	}
}

// rsiValue maps mean gain and loss to RSI. A window without losses is fully
// overbought (100) unless it also has no gains, which is neutral (50).
func rsiValue(gain, loss float64) float64 {
	switch {
	case math.IsNaN(gain) || math.IsNaN(loss):
		return math.NaN()
	case loss == 0 && gain == 0:
		return 50
	case loss == 0:
		return 100
	}
	return 100 - 100/(1+gain/loss)
}
