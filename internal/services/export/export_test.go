package export

import (
	"bytes"
	"context"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"RegimeML/internal/domain/models"
	"RegimeML/internal/services/ml"
	"RegimeML/pkg/config"
)

var testColumns = []string{"a", "b", "noise"}

func fittedModel(t *testing.T) *ml.Ensemble {
	t.Helper()
	rng := rand.New(rand.NewPCG(7, 1))
	centres := [][2]float64{{0, 0}, {4, 0}, {0, 4}}
	x := make([][]float64, 150)
	y := make([]int, 150)
	for i := range x {
		c := i % 3
		x[i] = []float64{
			centres[c][0] + rng.NormFloat64()*0.7,
			centres[c][1] + rng.NormFloat64()*0.7,
			rng.NormFloat64() * 10,
		}
		y[i] = c
	}
	cfg := ml.DefaultConfig()
	cfg.Forest.Trees = 5
	cfg.Forest.MaxDepth = 4
	cfg.Boosting.Stages = 5
	m := ml.NewEnsemble(cfg, testColumns)
	_, err := m.Fit(context.Background(), x, y)
	require.NoError(t, err)
	return m
}

type pbField struct {
	num protowire.Number
	typ protowire.Type
	v   uint64
	b   []byte
}

func parse(t *testing.T, b []byte) []pbField {
	t.Helper()
	var out []pbField
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		require.GreaterOrEqual(t, n, 0)
		b = b[n:]
		f := pbField{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.v, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			f.b, n = protowire.ConsumeBytes(b)
		case protowire.Fixed32Type:
			var v uint32
			v, n = protowire.ConsumeFixed32(b)
			f.v = uint64(v)
		default:
			t.Fatalf("unexpected wire type %d", typ)
		}
		require.GreaterOrEqual(t, n, 0)
		b = b[n:]
		out = append(out, f)
	}
	return out
}

func first(fs []pbField, num protowire.Number) pbField {
	for _, f := range fs {
		if f.num == num {
			return f
		}
	}
	return pbField{}
}

func all(fs []pbField, num protowire.Number) []pbField {
	var out []pbField
	for _, f := range fs {
		if f.num == num {
			out = append(out, f)
		}
	}
	return out
}

type attribute struct {
	ints    []int64
	floats  []float32
	strings []string
	s       string
}

func attributes(t *testing.T, node []pbField) map[string]attribute {
	out := map[string]attribute{}
	for _, raw := range all(node, nodeAttribute) {
		fs := parse(t, raw.b)
		var a attribute
		for _, f := range fs {
			switch f.num {
			case attrInts:
				for p := f.b; len(p) > 0; {
					v, n := protowire.ConsumeVarint(p)
					require.Greater(t, n, 0)
					a.ints = append(a.ints, int64(v))
					p = p[n:]
				}
			case attrFloats:
				for p := f.b; len(p) > 0; {
					v, n := protowire.ConsumeFixed32(p)
					require.Greater(t, n, 0)
					a.floats = append(a.floats, math.Float32frombits(v))
					p = p[n:]
				}
			case attrStrings:
				a.strings = append(a.strings, string(f.b))
			case attrString:
				a.s = string(f.b)
			}
		}
		out[string(first(fs, attrName).b)] = a
	}
	return out
}

// evalEnsemble runs the encoded TreeEnsembleClassifier on one row.
func evalEnsemble(attrs map[string]attribute, trees int, row []float64) []float64 {
	pos := map[[2]int64]int{}
	for i := range attrs["nodes_nodeids"].ints {
		pos[[2]int64{attrs["nodes_treeids"].ints[i], attrs["nodes_nodeids"].ints[i]}] = i
	}
	out := make([]float64, len(attrs["classlabels_int64s"].ints))
	for tree := int64(0); tree < int64(trees); tree++ {
		i := pos[[2]int64{tree, 0}]
		for attrs["nodes_modes"].strings[i] != "LEAF" {
			next := attrs["nodes_falsenodeids"].ints[i]
			if float32(row[attrs["nodes_featureids"].ints[i]]) <= attrs["nodes_values"].floats[i] {
				next = attrs["nodes_truenodeids"].ints[i]
			}
			i = pos[[2]int64{tree, next}]
		}
		leaf := attrs["nodes_nodeids"].ints[i]
		for k := range attrs["class_ids"].ints {
			if attrs["class_treeids"].ints[k] == tree && attrs["class_nodeids"].ints[k] == leaf {
				out[attrs["class_ids"].ints[k]] += float64(attrs["class_weights"].floats[k])
			}
		}
	}
	return out
}

func TestEncodeForestONNXStructure(t *testing.T) {
	m := fittedModel(t)
	b, err := EncodeForestONNX(m.Forest(), 3, 12, "test")
	require.NoError(t, err)

	model := parse(t, b)
	assert.EqualValues(t, 7, first(model, modelIRVersion).v)
	opsets := all(model, modelOpsetImport)
	require.Len(t, opsets, 2)
	assert.EqualValues(t, 12, first(parse(t, opsets[0].b), opsetVersion).v)
	assert.Equal(t, "ai.onnx.ml", string(first(parse(t, opsets[1].b), opsetDomain).b))

	graph := parse(t, first(model, modelGraph).b)
	in := parse(t, first(graph, graphInput).b)
	assert.Equal(t, "float_input", string(first(in, valueInfoName).b))
	outs := all(graph, graphOutput)
	require.Len(t, outs, 2)
	assert.Equal(t, "label", string(first(parse(t, outs[0].b), valueInfoName).b))
	assert.Equal(t, "probabilities", string(first(parse(t, outs[1].b), valueInfoName).b))

	node := parse(t, first(graph, graphNode).b)
	assert.Equal(t, "TreeEnsembleClassifier", string(first(node, nodeOpType).b))
	assert.Equal(t, "ai.onnx.ml", string(first(node, nodeDomain).b))
	attrs := attributes(t, node)
	assert.Equal(t, "NONE", attrs["post_transform"].s)
	assert.Equal(t, []int64{0, 1, 2}, attrs["classlabels_int64s"].ints)
	n := len(attrs["nodes_nodeids"].ints)
	assert.Len(t, attrs["nodes_modes"].strings, n)
	assert.Len(t, attrs["nodes_values"].floats, n)
	assert.Len(t, attrs["class_weights"].floats, len(attrs["class_ids"].ints))
}

func TestEncodedForestMatchesForest(t *testing.T) {
	m := fittedModel(t)
	b, err := EncodeForestONNX(m.Forest(), 3, 12, "test")
	require.NoError(t, err)
	graph := parse(t, first(parse(t, b), modelGraph).b)
	attrs := attributes(t, parse(t, first(graph, graphNode).b))

	rows, err := m.Scaler().Transform([][]float64{{0.1, 0.2, 3}, {3.9, -0.3, -5}, {0.4, 4.2, 0}})
	require.NoError(t, err)
	for _, row := range rows {
		want := m.Forest().PredictProba(row)
		got := evalEnsemble(attrs, len(m.Forest().Trees), row)
		assert.InDeltaSlice(t, want, got, 1e-5)
	}
}

func TestEncodeRejectsEmptyForest(t *testing.T) {
	_, err := EncodeForestONNX(&ml.Forest{NClasses: 3}, 3, 12, "test")
	require.Error(t, err)
}

func TestNewSettings(t *testing.T) {
	m := fittedModel(t)
	s, err := NewSettings(m, "/tmp/models/regime.onnx", config.DefaultRegimeSettings())
	require.NoError(t, err)
	assert.Equal(t, "regime.onnx", s.ModelFile)
	assert.Equal(t, testColumns, s.FeatureColumns)
	assert.Equal(t, 3, s.NFeatures)
	assert.Equal(t, map[string]string{"0": "RANGING", "1": "TRENDING", "2": "VOLATILE"}, s.RegimeMap)
	assert.Equal(t, m.Scaler().Mean(), s.Scaler.Mean)

	_, err = NewSettings(ml.NewEnsemble(ml.DefaultConfig(), testColumns), "x.onnx", config.DefaultRegimeSettings())
	require.ErrorIs(t, err, models.ErrNotFitted)

	partial := config.DefaultRegimeSettings()
	delete(partial, "VOLATILE")
	_, err = NewSettings(m, "x.onnx", partial)
	require.Error(t, err)
}

func TestSettingsDocumentRoundTrip(t *testing.T) {
	m := fittedModel(t)
	s, err := NewSettings(m, "regime.onnx", config.DefaultRegimeSettings())
	require.NoError(t, err)
	doc, err := MarshalSettings(s)
	require.NoError(t, err)
	assert.Contains(t, string(doc), `"atr_sl_mult": 1.5`)
	assert.Contains(t, string(doc), `"model_file": "regime.onnx"`)

	path := filepath.Join(t.TempDir(), "regime_config.json")
	require.NoError(t, os.WriteFile(path, doc, 0o644))
	got, err := ReadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestReadSettingsRejectsInconsistentDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"feature_columns":["a"],"n_features":2}`), 0o644))
	_, err := ReadSettings(path)
	require.ErrorIs(t, err, models.ErrArtifactSchema)

	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o644))
	_, err = ReadSettings(path)
	require.ErrorIs(t, err, models.ErrArtifactSchema)
}

func TestWriteInclude(t *testing.T) {
	s := &Settings{
		FeatureColumns: []string{"a", "b"},
		NFeatures:      2,
		Scaler:         ml.ScalerState{Mean: []float64{0.5, -1.25}, Scale: []float64{1, 0.001}},
		RegimeSettings: config.DefaultRegimeSettings(),
	}
	var buf bytes.Buffer
	require.NoError(t, WriteInclude(&buf, s))
	out := buf.String()
	assert.Contains(t, out, "#define REGIME_MODEL_FEATURES 2\n")
	assert.Contains(t, out, "double g_feature_mean[2] = {\n   0.5000000000, -1.2500000000\n};")
	assert.Contains(t, out, "double g_feature_scale[2] = {\n   1.0000000000, 0.0010000000\n};")
	assert.Contains(t, out, "RegimeSettings g_regime_settings[3] = {\n"+
		"   { 1.0, 1.5, 8, 60 },  // RANGING\n"+
		"   { 1.5, 2.5, 15, 55 },  // TRENDING\n"+
		"   { 2.0, 2.0, 20, 70 }   // VOLATILE\n};")
	assert.Contains(t, out, `default: return "UNKNOWN";`)
}

func TestRenderIncludeFromExport(t *testing.T) {
	dir := t.TempDir()
	onnxPath := filepath.Join(dir, "regime.onnx")
	settingsPath := filepath.Join(dir, "regime_config.json")
	includePath := filepath.Join(dir, "RegimeModelConfig.mqh")

	x := NewExporter(Config{Enabled: true}, nil, nil)
	res := x.Export(fittedModel(t), onnxPath, settingsPath)
	require.Equal(t, Exported, res.Status, "err: %v", res.Err)
	require.NoError(t, RenderInclude(settingsPath, includePath))

	b, err := os.ReadFile(includePath)
	require.NoError(t, err)
	assert.Contains(t, string(b), "#define REGIME_MODEL_FEATURES 3")

	require.Error(t, RenderInclude(filepath.Join(dir, "missing.json"), includePath))
}

func TestExportDisabled(t *testing.T) {
	dir := t.TempDir()
	x := NewExporter(Config{Enabled: false}, nil, nil)
	res := x.Export(fittedModel(t), filepath.Join(dir, "m.onnx"), filepath.Join(dir, "m.json"))
	assert.Equal(t, Unavailable, res.Status)
	assert.ErrorIs(t, res.Err, models.ErrExportUnavailable)
	assert.NoFileExists(t, filepath.Join(dir, "m.onnx"))
	assert.NoFileExists(t, filepath.Join(dir, "m.json"))
}

func TestExportFailures(t *testing.T) {
	dir := t.TempDir()
	x := NewExporter(Config{Enabled: true}, nil, nil)

	res := x.Export(ml.NewEnsemble(ml.DefaultConfig(), testColumns), filepath.Join(dir, "m.onnx"), filepath.Join(dir, "m.json"))
	assert.Equal(t, Failed, res.Status)
	assert.ErrorIs(t, res.Err, models.ErrNotFitted)

	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	res = x.Export(fittedModel(t), filepath.Join(blocker, "m.onnx"), filepath.Join(dir, "m.json"))
	assert.Equal(t, Failed, res.Status)
	assert.Error(t, res.Err)
	assert.NoFileExists(t, filepath.Join(dir, "m.json"), "settings follow a successful onnx write only")
}

func TestExportWritesNothingWhenSettingsFail(t *testing.T) {
	dir := t.TempDir()
	onnxPath := filepath.Join(dir, "m.onnx")

	regimes := config.DefaultRegimeSettings()
	delete(regimes, "VOLATILE")
	x := NewExporter(Config{Enabled: true, RegimeSettings: regimes}, nil, nil)
	res := x.Export(fittedModel(t), onnxPath, filepath.Join(dir, "m.json"))
	assert.Equal(t, Failed, res.Status)
	assert.Error(t, res.Err)
	assert.NoFileExists(t, onnxPath)

	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	x = NewExporter(Config{Enabled: true}, nil, nil)
	res = x.Export(fittedModel(t), onnxPath, filepath.Join(blocker, "m.json"))
	assert.Equal(t, Failed, res.Status)
	assert.ErrorContains(t, res.Err, "write settings")
	assert.NoFileExists(t, onnxPath, "onnx without settings must not survive")
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "exported", Exported.String())
	assert.Equal(t, "unavailable", Unavailable.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "unknown", Status(9).String())
}
