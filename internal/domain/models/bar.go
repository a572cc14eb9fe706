package models

import "time"

// Bar is one fixed-interval OHLC record.
type Bar struct {
	Time       time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	TickVolume float64
	Volume     float64
	Spread     float64
}

// Regime is the market-condition class attached to a bar.
type Regime int

const (
	Ranging Regime = iota
	Trending
	Volatile
)

// NumRegimes is the number of classes every classifier emits probabilities for.
const NumRegimes = 3

var regimeNames = [NumRegimes]string{"RANGING", "TRENDING", "VOLATILE"}

func (r Regime) String() string {
	if r < 0 || int(r) >= NumRegimes {
		return "UNKNOWN"
	}
	return regimeNames[r]
}

// RegimeNames returns the class names in label order.
func RegimeNames() []string {
	out := make([]string, NumRegimes)
	copy(out, regimeNames[:])
	return out
}

// RegimePrediction is the classifier output for one bar at inference time.
type RegimePrediction struct {
	Symbol        string
	Time          time.Time
	Regime        Regime
	Probabilities []float64 // per regime, label order
	Confidence    float64   // probability of the predicted regime
	ModelID       string
}
