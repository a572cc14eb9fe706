package metrics

// Noop discards every measurement.
type Noop struct{}

func (Noop) ObserveStage(string, float64) {}
func (Noop) RecordRows(string, int) {}
func (Noop) RecordDropped(string, int) {}
func (Noop) SetAccuracy(string, float64) {}
func (Noop) RecordExport(string, string) {}
func (Noop) RecordPrediction(string) {}
func (Noop) RecordError(string) {}
