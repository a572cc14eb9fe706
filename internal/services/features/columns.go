package features

// DefaultColumns returns the model input columns in the order the classifier
// is trained on.
func DefaultColumns() []string {
	return []string{
		// volatility
		"ATR_5_Pct", "ATR_10_Pct", "ATR_20_Pct",
		"Volatility_5", "Volatility_10", "Volatility_20",
		"VolatilityRatio", "ATRRatio",
		"RangePercent", "BodyPercent",

		// trend
		"PriceVsSMA20", "PriceVsSMA50",
		"SMA20_Slope", "SMA50_Slope",
		"MA_Alignment", "ADX", "DI_Diff",

		// momentum
		"RSI", "RSI_Extreme",
		"MACD_Hist", "Stoch_K",
		"ROC_5", "ROC_10", "ROC_20",

		// calendar
		"Hour", "DayOfWeek",
		"IsAsianSession", "IsLondonSession", "IsNYSession", "IsOverlap",
	}
}
