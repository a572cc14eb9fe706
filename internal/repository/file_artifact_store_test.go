package repository

import (
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RegimeML/internal/domain/models"
	"RegimeML/internal/services/ml"
)

func trainedEnsemble(t *testing.T) (*ml.Ensemble, [][]float64) {
	t.Helper()
	rng := rand.New(rand.NewPCG(3, 3))
	x := make([][]float64, 120)
	y := make([]int, 120)
	for i := range x {
		c := i % 3
		x[i] = []float64{float64(c)*3 + rng.NormFloat64(), rng.NormFloat64()}
		y[i] = c
	}
	cfg := ml.DefaultConfig()
	cfg.Forest.Trees = 4
	cfg.Boosting.Stages = 4
	m := ml.NewEnsemble(cfg, []string{"f1", "f2"})
	_, err := m.Fit(context.Background(), x, y)
	require.NoError(t, err)
	return m, x
}

func TestFileArtifactStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	m, x := trainedEnsemble(t)
	path := filepath.Join(t.TempDir(), "models", "regime.json")

	store := NewFileArtifactStore()
	require.NoError(t, store.Save(ctx, m, path))

	loaded, err := store.Load(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, m.Columns(), loaded.Columns())
	assert.Equal(t, m.Meta().ID, loaded.Meta().ID)

	want, err := m.PredictProba(x)
	require.NoError(t, err)
	got, err := loaded.PredictProba(x)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestFileArtifactStoreErrors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewFileArtifactStore()

	err := store.Save(ctx, ml.NewEnsemble(ml.DefaultConfig(), []string{"f1"}), filepath.Join(dir, "m.json"))
	require.ErrorIs(t, err, models.ErrNotFitted)
	assert.NoFileExists(t, filepath.Join(dir, "m.json"))

	_, err = store.Load(ctx, filepath.Join(dir, "missing.json"))
	require.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"schema_version":99}`), 0o644))
	_, err = store.Load(ctx, bad)
	require.ErrorIs(t, err, models.ErrArtifactSchema)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = store.Load(cancelled, bad)
	require.ErrorIs(t, err, context.Canceled)
}
