package features

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Every series here has one value per source bar. NaN marks a value that is
// undefined: warm-up, a zero denominator, or an undefined input.

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// rolling applies fn to each full trailing window of w values. A window
// holding any NaN yields NaN.
func rolling(x []float64, w int, fn func([]float64) float64) []float64 {
	out := nanSeries(len(x))
	if w <= 0 {
		return out
	}
	for i := w - 1; i < len(x); i++ {
		win := x[i-w+1 : i+1]
		if floats.HasNaN(win) {
			continue
		}
		out[i] = fn(win)
	}
	return out
}

func rollingMean(x []float64, w int) []float64 {
	return rolling(x, w, func(win []float64) float64 { return stat.Mean(win, nil) })
}

// rollingStd is the sample (n-1) standard deviation.
func rollingStd(x []float64, w int) []float64 {
	return rolling(x, w, func(win []float64) float64 { return stat.StdDev(win, nil) })
}

func rollingMax(x []float64, w int) []float64 {
	return rolling(x, w, floats.Max)
}

func rollingMin(x []float64, w int) []float64 {
	return rolling(x, w, floats.Min)
}

// ema is an exponential moving average with alpha = 2/(span+1), seeded with
// the first defined value and without bias adjustment.
func ema(x []float64, span int) []float64 {
	out := nanSeries(len(x))
	alpha := 2 / (float64(span) + 1)
	prev := math.NaN()
	for i, v := range x {
		switch {
		case math.IsNaN(v):
			out[i] = prev
		case math.IsNaN(prev):
			prev = v
			out[i] = v
		default:
			prev = alpha*v + (1-alpha)*prev
			out[i] = prev
		}
	}
	return out
}

// lag returns x shifted k bars forward in time: out[i] = x[i-k].
func lag(x []float64, k int) []float64 {
	out := nanSeries(len(x))
	for i := k; i < len(x); i++ {
		out[i] = x[i-k]
	}
	return out
}

// diff is x[i] - x[i-1].
func diff(x []float64) []float64 {
	out := nanSeries(len(x))
	for i := 1; i < len(x); i++ {
		out[i] = x[i] - x[i-1]
	}
	return out
}

// div divides elementwise; a zero or undefined denominator gives NaN.
func div(num, den []float64) []float64 {
	out := make([]float64, len(num))
	for i := range num {
		out[i] = safeDiv(num[i], den[i])
	}
	return out
}

func safeDiv(num, den float64) float64 {
	if den == 0 || math.IsNaN(den) || math.IsNaN(num) {
		return math.NaN()
	}
	return num / den
}

// relChange is (x - base) / base.
func relChange(x, base []float64) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		out[i] = safeDiv(x[i]-base[i], base[i])
	}
	return out
}

func mapSeries(x []float64, fn func(float64) float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		if math.IsNaN(v) {
			out[i] = v
			continue
		}
		out[i] = fn(v)
	}
	return out
}

func scale(x []float64, k float64) []float64 {
	return mapSeries(x, func(v float64) float64 { return v * k })
}

func sub(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out
}

func boolf(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
