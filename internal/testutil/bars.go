// Package testutil builds deterministic fixtures shared by package tests.
package testutil

import (
	"math"
	"math/rand/v2"
	"time"

	"RegimeML/internal/domain/models"
)

// SyntheticBars returns n hourly bars cycling through calm, trending and
// choppy stretches so every regime shows up after labeling. Every bar has a
// strictly positive range.
func SyntheticBars(n int, seed uint64) []models.Bar {
	rng := rand.New(rand.NewPCG(seed, 7))
	start := time.Date(2019, 1, 7, 0, 0, 0, 0, time.UTC) // a Monday
	bars := make([]models.Bar, n)
	price := 1300.0
	for i := 0; i < n; i++ {
		var drift, sigma float64
		switch (i / 60) % 3 {
		case 0: // calm
			drift, sigma = 0, 0.0008
		case 1: // trend
			drift, sigma = 0.0025, 0.0006
		default: // choppy
			drift, sigma = 0, 0.006
		}
		if (i/180)%2 == 1 {
			drift = -drift
		}
		open := price
		closeP := open * math.Exp(drift+sigma*rng.NormFloat64())
		hi := math.Max(open, closeP) * (1 + 0.0003 + sigma*math.Abs(rng.NormFloat64())/2)
		lo := math.Min(open, closeP) * (1 - 0.0003 - sigma*math.Abs(rng.NormFloat64())/2)
		bars[i] = models.Bar{
			Time:       start.Add(time.Duration(i) * time.Hour),
			Open:       open,
			High:       hi,
			Low:        lo,
			Close:      closeP,
			TickVolume: float64(500 + rng.IntN(1000)),
			Spread:     20,
		}
		price = closeP
	}
	return bars
}
