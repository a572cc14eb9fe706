package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderIsolatedRegistries(t *testing.T) {
	a := New()
	b := New()
	a.RecordPrediction("TRENDING")
	a.RecordPrediction("TRENDING")
	b.RecordPrediction("TRENDING")

	if got := testutil.ToFloat64(a.predictions.WithLabelValues("TRENDING")); got != 2 {
		t.Fatalf("expected 2 predictions, got %v", got)
	}
	if got := testutil.ToFloat64(b.predictions.WithLabelValues("TRENDING")); got != 1 {
		t.Fatalf("expected 1 prediction, got %v", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.SetAccuracy("test", 0.61)
	r.RecordRows("feature", 900)
	path := filepath.Join(t.TempDir(), "regime.prom")
	if err := r.WriteTextfile(path); err != nil {
		t.Fatalf("write textfile: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	out := string(b)
	if !strings.Contains(out, `regime_model_accuracy{partition="test"} 0.61`) {
		t.Fatalf("accuracy missing from textfile:\n%s", out)
	}
	if !strings.Contains(out, `regime_stage_rows{stage="feature"} 900`) {
		t.Fatalf("rows missing from textfile:\n%s", out)
	}
}

func TestWriteTextfileEmptyPathIsNoop(t *testing.T) {
	if err := New().WriteTextfile(""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
