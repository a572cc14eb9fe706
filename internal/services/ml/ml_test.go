package ml

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RegimeML/internal/domain/models"
)

// blobs returns n rows of 3 features: two informative coordinates around a
// per-class centre and one pure-noise column.
func blobs(n int, seed uint64) ([][]float64, []int) {
	rng := rand.New(rand.NewPCG(seed, 1))
	centres := [][2]float64{{0, 0}, {4, 0}, {0, 4}}
	x := make([][]float64, n)
	y := make([]int, n)
	for i := range x {
		c := i % 3
		x[i] = []float64{
			centres[c][0] + rng.NormFloat64()*0.7,
			centres[c][1] + rng.NormFloat64()*0.7,
			rng.NormFloat64() * 10,
		}
		y[i] = c
	}
	return x, y
}

func smallConfig(workers int) Config {
	cfg := DefaultConfig()
	cfg.Forest.Trees = 12
	cfg.Forest.Workers = workers
	cfg.Boosting.Stages = 15
	return cfg
}

var testColumns = []string{"a", "b", "noise"}

func TestSoftVote(t *testing.T) {
	p, cls := SoftVote([]float64{0.2, 0.7, 0.1}, []float64{0.4, 0.5, 0.1})
	assert.InDeltaSlice(t, []float64{0.3, 0.6, 0.1}, p, 1e-12)
	assert.Equal(t, 1, cls)
}

func TestArgmaxTiesGoLow(t *testing.T) {
	assert.Equal(t, 0, Argmax([]float64{0.4, 0.4, 0.2}))
	assert.Equal(t, 1, Argmax([]float64{0.2, 0.4, 0.4}))
}

func TestScalerPopulationStd(t *testing.T) {
	s, err := FitScaler([][]float64{{1, 5}, {3, 5}})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 5}, s.Mean())
	assert.Equal(t, []float64{1, 1}, s.Scale(), "constant column gets scale 1")

	z, err := s.Transform([][]float64{{4, 6}})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 1}, z[0])

	_, err = s.Transform([][]float64{{1}})
	assert.Error(t, err)
}

func TestQuantileThresholds(t *testing.T) {
	th := quantileThresholds([]float64{3, 1, 2, 2, 1}, 255)
	assert.Equal(t, []float64{1.5, 2.5}, th)
	assert.Equal(t, 0, binOf(th, 1.5), "value equal to threshold goes left")
	assert.Equal(t, 2, binOf(th, 9))

	many := make([]float64, 5000)
	for i := range many {
		many[i] = float64(i)
	}
	th = quantileThresholds(many, 255)
	assert.LessOrEqual(t, len(th), 254)
	for i := 1; i < len(th); i++ {
		require.Less(t, th[i-1], th[i])
	}
	assert.Nil(t, quantileThresholds([]float64{7, 7, 7}, 255))
}

func TestEnsembleNotFitted(t *testing.T) {
	e := NewEnsemble(smallConfig(1), testColumns)
	_, err := e.PredictProba([][]float64{{0, 0, 0}})
	assert.ErrorIs(t, err, models.ErrNotFitted)
	_, err = e.Predict([][]float64{{0, 0, 0}})
	assert.ErrorIs(t, err, models.ErrNotFitted)
	_, err = MarshalArtifact(e)
	assert.ErrorIs(t, err, models.ErrNotFitted)
}

func TestEnsembleFitPredict(t *testing.T) {
	x, y := blobs(600, 3)
	e := NewEnsemble(smallConfig(0), testColumns)
	acc, err := e.Fit(context.Background(), x, y)
	require.NoError(t, err)
	assert.Greater(t, acc, 0.9)
	assert.True(t, e.Fitted())
	assert.NotEmpty(t, e.Meta().ID)

	tx, ty := blobs(300, 4)
	pred, err := e.Predict(tx)
	require.NoError(t, err)
	correct := 0
	for i := range pred {
		if pred[i] == ty[i] {
			correct++
		}
	}
	assert.Greater(t, float64(correct)/float64(len(ty)), 0.85)

	proba, err := e.PredictProba(tx[:5])
	require.NoError(t, err)
	for _, p := range proba {
		require.Len(t, p, models.NumRegimes)
		assert.InDelta(t, 1.0, p[0]+p[1]+p[2], 1e-9)
	}

	_, err = e.Fit(context.Background(), x, y)
	assert.ErrorIs(t, err, models.ErrAlreadyFitted)
}

func TestEnsembleScalerFrozenAfterPredict(t *testing.T) {
	x, y := blobs(300, 5)
	e := NewEnsemble(smallConfig(2), testColumns)
	_, err := e.Fit(context.Background(), x, y)
	require.NoError(t, err)
	mean, scale := e.Scaler().Mean(), e.Scaler().Scale()

	shifted := make([][]float64, 50)
	for i := range shifted {
		shifted[i] = []float64{100 + float64(i), -50, 1e6}
	}
	_, err = e.PredictProba(shifted)
	require.NoError(t, err)
	assert.Equal(t, mean, e.Scaler().Mean())
	assert.Equal(t, scale, e.Scaler().Scale())
}

func TestForestDeterministicAcrossWorkers(t *testing.T) {
	x, y := blobs(400, 6)
	one := NewEnsemble(smallConfig(1), testColumns)
	many := NewEnsemble(smallConfig(8), testColumns)
	_, err := one.Fit(context.Background(), x, y)
	require.NoError(t, err)
	_, err = many.Fit(context.Background(), x, y)
	require.NoError(t, err)

	p1, err := one.PredictProba(x[:40])
	require.NoError(t, err)
	p2, err := many.PredictProba(x[:40])
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
}

func TestFitRejectsBadInput(t *testing.T) {
	e := NewEnsemble(smallConfig(1), testColumns)
	_, err := e.Fit(context.Background(), [][]float64{{1, 2}}, []int{0})
	assert.Error(t, err)
	_, err = e.Fit(context.Background(), [][]float64{{1, 2, 3}}, []int{5})
	assert.Error(t, err)
	_, err = e.Fit(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestFitHonoursCancellation(t *testing.T) {
	x, y := blobs(200, 7)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEnsemble(smallConfig(2), testColumns).Fit(ctx, x, y)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestArtifactRoundTrip(t *testing.T) {
	x, y := blobs(450, 8)
	e := NewEnsemble(smallConfig(0), testColumns)
	_, err := e.Fit(context.Background(), x, y)
	require.NoError(t, err)

	data, err := MarshalArtifact(e)
	require.NoError(t, err)
	loaded, err := UnmarshalArtifact(data)
	require.NoError(t, err)

	want, err := e.PredictProba(x)
	require.NoError(t, err)
	got, err := loaded.PredictProba(x)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, e.Columns(), loaded.Columns())
	assert.Equal(t, e.Meta().ID, loaded.Meta().ID)

	_, err = loaded.Fit(context.Background(), x, y)
	assert.ErrorIs(t, err, models.ErrAlreadyFitted)
}

func TestArtifactValidation(t *testing.T) {
	x, y := blobs(150, 9)
	e := NewEnsemble(smallConfig(1), testColumns)
	_, err := e.Fit(context.Background(), x, y)
	require.NoError(t, err)

	cases := map[string]func(a *Artifact){
		"version":      func(a *Artifact) { a.SchemaVersion = 99 },
		"scaler width": func(a *Artifact) { a.Scaler.Mean = a.Scaler.Mean[:1] },
		"classes":      func(a *Artifact) { a.Classes = []string{"UP", "DOWN"} },
		"feature idx": func(a *Artifact) {
			for i := range a.Forest.Trees[0].Feature {
				if !a.Forest.Trees[0].IsLeaf(i) {
					a.Forest.Trees[0].Feature[i] = 17
					return
				}
			}
		},
		"stage width": func(a *Artifact) { a.Boosting.Stages[0] = a.Boosting.Stages[0][:2] },
		"not fitted":  func(a *Artifact) { a.Fitted = false },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			data, err := MarshalArtifact(e)
			require.NoError(t, err)
			loaded, err := UnmarshalArtifact(data)
			require.NoError(t, err)
			a, err := loaded.Artifact()
			require.NoError(t, err)
			mutate(a)
			_, err = FromArtifact(a)
			assert.ErrorIs(t, err, models.ErrArtifactSchema)
		})
	}

	_, err = UnmarshalArtifact([]byte("{not json"))
	assert.ErrorIs(t, err, models.ErrArtifactSchema)
}

func TestBoostingPriorInit(t *testing.T) {
	x, _ := blobs(30, 10)
	y := make([]int, len(x)) // one class only
	data := binMatrix(x, 255)
	b, err := fitBoosting(context.Background(), data, y, 3, BoostingConfig{Stages: 2, MaxDepth: 2, LearningRate: 0.1, MinSamplesSplit: 2, MinSamplesLeaf: 1})
	require.NoError(t, err)
	assert.Equal(t, 0.0, b.Init[0])
	assert.InDelta(t, math.Log(1e-15), b.Init[1], 1e-9)
	p := b.PredictProba(x[0])
	assert.Greater(t, p[0], 0.99)
}
