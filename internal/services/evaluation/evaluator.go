// Package evaluation scores a classifier against labeled rows.
package evaluation

import (
	"fmt"
	"strings"

	"RegimeML/internal/domain/models"
)

// Classifier is anything that predicts one class per row.
type Classifier interface {
	Predict(x [][]float64) ([]int, error)
}

// ClassMetrics are the one-vs-rest scores of a single class.
type ClassMetrics struct {
	Name      string
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// Report is the evaluation of one partition.
type Report struct {
	Accuracy  float64
	Classes   []ClassMetrics
	MacroAvg  ClassMetrics
	Weighted  ClassMetrics
	Confusion [][]int // [actual][predicted]
	Total     int
}

// Evaluate predicts x with c and scores the result against y.
func Evaluate(c Classifier, x [][]float64, y []int) (*Report, error) {
	pred, err := c.Predict(x)
	if err != nil {
		return nil, err
	}
	return Score(y, pred, models.RegimeNames())
}

// Score compares predictions with ground truth. A metric whose denominator
// is zero is reported as 0.
func Score(actual, predicted []int, names []string) (*Report, error) {
	if len(actual) != len(predicted) {
		return nil, fmt.Errorf("score: %d labels and %d predictions", len(actual), len(predicted))
	}
	if len(actual) == 0 {
		return nil, fmt.Errorf("score: no rows")
	}
	k := len(names)
	cm := make([][]int, k)
	for i := range cm {
		cm[i] = make([]int, k)
	}
	correct := 0
	for i, a := range actual {
		p := predicted[i]
		if a < 0 || a >= k || p < 0 || p >= k {
			return nil, fmt.Errorf("score: class out of range at row %d", i)
		}
		cm[a][p]++
		if a == p {
			correct++
		}
	}

	r := &Report{
		Accuracy:  float64(correct) / float64(len(actual)),
		Confusion: cm,
		Total:     len(actual),
		MacroAvg:  ClassMetrics{Name: "macro avg", Support: len(actual)},
		Weighted:  ClassMetrics{Name: "weighted avg", Support: len(actual)},
	}
	for c := 0; c < k; c++ {
		tp := cm[c][c]
		var predCount, support int
		for o := 0; o < k; o++ {
			predCount += cm[o][c]
			support += cm[c][o]
		}
		m := ClassMetrics{
			Name:      names[c],
			Precision: ratio(tp, predCount),
			Recall:    ratio(tp, support),
			Support:   support,
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		r.Classes = append(r.Classes, m)

		w := float64(support) / float64(len(actual))
		r.MacroAvg.Precision += m.Precision / float64(k)
		r.MacroAvg.Recall += m.Recall / float64(k)
		r.MacroAvg.F1 += m.F1 / float64(k)
		r.Weighted.Precision += m.Precision * w
		r.Weighted.Recall += m.Recall * w
		r.Weighted.F1 += m.F1 * w
	}
	return r, nil
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// Table renders the report as a fixed-width text block.
func (r *Report) Table() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%12s %10s %10s %10s %10s\n", "", "precision", "recall", "f1-score", "support")
	for _, m := range r.Classes {
		writeRow(&b, m)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%12s %10s %10s %10.4f %10d\n", "accuracy", "", "", r.Accuracy, r.Total)
	writeRow(&b, r.MacroAvg)
	writeRow(&b, r.Weighted)
	b.WriteString("\nconfusion (rows=actual, cols=predicted)\n")
	for i, row := range r.Confusion {
		fmt.Fprintf(&b, "%12s", r.Classes[i].Name)
		for _, v := range row {
			fmt.Fprintf(&b, " %8d", v)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func writeRow(b *strings.Builder, m ClassMetrics) {
	fmt.Fprintf(b, "%12s %10.4f %10.4f %10.4f %10d\n", m.Name, m.Precision, m.Recall, m.F1, m.Support)
}
