package models

import (
	"fmt"
	"time"
)

// FeatureTable is the Feature Engine output. Rows hold only finite values;
// BarIndex maps each row back to its source bar. Close and AbsReturn cover
// the whole source history and exist for the labeler, which looks forward.
type FeatureTable struct {
	Columns   []string
	Rows      [][]float64
	Times     []time.Time
	BarIndex  []int
	Close     []float64
	AbsReturn []float64
	Dropped   int
}

func (t *FeatureTable) Len() int { return len(t.Rows) }

// ColumnIndex returns the position of a named column.
func (t *FeatureTable) ColumnIndex(name string) (int, bool) {
	for i, c := range t.Columns {
		if c == name {
			return i, true
		}
	}
	return -1, false
}

// Matrix copies the named columns, in the given order, out of every row.
func (t *FeatureTable) Matrix(columns []string) ([][]float64, error) {
	return selectColumns(t.Columns, t.Rows, columns)
}

// LabeledTable is a FeatureTable restricted to rows with a ground-truth label.
type LabeledTable struct {
	Columns []string
	Rows    [][]float64
	Times   []time.Time
	Labels  []Regime
	Dropped int
}

func (t *LabeledTable) Len() int { return len(t.Rows) }

// Slice returns a deep copy of rows [from, to).
func (t *LabeledTable) Slice(from, to int) *LabeledTable {
	out := &LabeledTable{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([][]float64, 0, to-from),
		Times:   make([]time.Time, 0, to-from),
		Labels:  make([]Regime, 0, to-from),
	}
	for i := from; i < to; i++ {
		out.Rows = append(out.Rows, append([]float64(nil), t.Rows[i]...))
		out.Times = append(out.Times, t.Times[i])
		out.Labels = append(out.Labels, t.Labels[i])
	}
	return out
}

// XY returns the feature matrix for columns and the integer class targets.
func (t *LabeledTable) XY(columns []string) ([][]float64, []int, error) {
	x, err := selectColumns(t.Columns, t.Rows, columns)
	if err != nil {
		return nil, nil, err
	}
	y := make([]int, len(t.Labels))
	for i, l := range t.Labels {
		y[i] = int(l)
	}
	return x, y, nil
}

// Distribution counts rows per regime.
func (t *LabeledTable) Distribution() [NumRegimes]int {
	var out [NumRegimes]int
	for _, l := range t.Labels {
		if l >= 0 && int(l) < NumRegimes {
			out[l]++
		}
	}
	return out
}

// Split holds three contiguous, chronologically ordered partitions.
type Split struct {
	Train      *LabeledTable
	Validation *LabeledTable
	Test       *LabeledTable
}

// SplitPart describes one partition for audit logs.
type SplitPart struct {
	Name string
	Rows int
	From time.Time
	To   time.Time
}

// Report lists row counts and time ranges of each partition.
func (s *Split) Report() []SplitPart {
	parts := []struct {
		name string
		t    *LabeledTable
	}{{"train", s.Train}, {"validation", s.Validation}, {"test", s.Test}}
	out := make([]SplitPart, 0, len(parts))
	for _, p := range parts {
		sp := SplitPart{Name: p.name, Rows: p.t.Len()}
		if n := p.t.Len(); n > 0 {
			sp.From = p.t.Times[0]
			sp.To = p.t.Times[n-1]
		}
		out = append(out, sp)
	}
	return out
}

func selectColumns(have []string, rows [][]float64, want []string) ([][]float64, error) {
	idx := make([]int, len(want))
	for i, name := range want {
		idx[i] = -1
		for j, c := range have {
			if c == name {
				idx[i] = j
				break
			}
		}
		if idx[i] < 0 {
			return nil, fmt.Errorf("%w: %s", ErrFeatureMissing, name)
		}
	}
	out := make([][]float64, len(rows))
	for r, row := range rows {
		sel := make([]float64, len(idx))
		for i, j := range idx {
			sel[i] = row[j]
		}
		out[r] = sel
	}
	return out, nil
}
