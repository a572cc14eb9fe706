package evaluation

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RegimeML/internal/domain/models"
)

type fixedClassifier struct {
	out []int
	err error
}

func (f fixedClassifier) Predict([][]float64) ([]int, error) { return f.out, f.err }

func TestScoreKnownMatrix(t *testing.T) {
	actual := []int{0, 0, 0, 1, 1, 2}
	pred := []int{0, 0, 1, 1, 1, 1}
	r, err := Score(actual, pred, models.RegimeNames())
	require.NoError(t, err)

	assert.InDelta(t, 4.0/6, r.Accuracy, 1e-12)
	assert.Equal(t, [][]int{{2, 1, 0}, {0, 2, 0}, {0, 1, 0}}, r.Confusion)

	ranging := r.Classes[0]
	assert.Equal(t, 1.0, ranging.Precision)
	assert.InDelta(t, 2.0/3, ranging.Recall, 1e-12)
	assert.InDelta(t, 0.8, ranging.F1, 1e-12)
	assert.Equal(t, 3, ranging.Support)

	trending := r.Classes[1]
	assert.Equal(t, 0.5, trending.Precision)
	assert.Equal(t, 1.0, trending.Recall)

	volatile := r.Classes[2]
	assert.Equal(t, 0.0, volatile.Precision, "never predicted: zero division gives 0")
	assert.Equal(t, 0.0, volatile.F1)

	assert.InDelta(t, (1.0+0.5+0)/3, r.MacroAvg.Precision, 1e-12)
	assert.InDelta(t, (1.0*3+0.5*2+0)/6, r.Weighted.Precision, 1e-12)

	table := r.Table()
	assert.True(t, strings.Contains(table, "TRENDING"))
	assert.True(t, strings.Contains(table, "macro avg"))
}

func TestEvaluatePropagatesNotFitted(t *testing.T) {
	_, err := Evaluate(fixedClassifier{err: models.ErrNotFitted}, nil, nil)
	assert.True(t, errors.Is(err, models.ErrNotFitted))
}

func TestScoreRejectsMismatch(t *testing.T) {
	_, err := Score([]int{0, 1}, []int{0}, models.RegimeNames())
	assert.Error(t, err)
	_, err = Score(nil, nil, models.RegimeNames())
	assert.Error(t, err)
	_, err = Score([]int{3}, []int{0}, models.RegimeNames())
	assert.Error(t, err)
}
