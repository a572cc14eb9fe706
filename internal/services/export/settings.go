package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/goccy/go-json"

	"RegimeML/internal/domain/models"
	"RegimeML/internal/services/ml"
	"RegimeML/pkg/config"
)

// Settings is the companion document the execution side reads next to the
// ONNX file: feature order, scaler state and per-regime trade parameters.
type Settings struct {
	ModelFile      string                           `json:"model_file"`
	ModelID        string                           `json:"model_id,omitempty"`
	FeatureColumns []string                         `json:"feature_columns"`
	NFeatures      int                              `json:"n_features"`
	Scaler         ml.ScalerState                   `json:"scaler"`
	RegimeMap      map[string]string                `json:"regime_map"`
	RegimeSettings map[string]config.RegimeSettings `json:"regime_settings"`
}

// NewSettings builds the settings document for a fitted model.
func NewSettings(m *ml.Ensemble, onnxPath string, regimes map[string]config.RegimeSettings) (*Settings, error) {
	if m == nil || !m.Fitted() {
		return nil, models.ErrNotFitted
	}
	cols := m.Columns()
	regimeMap := make(map[string]string, models.NumRegimes)
	for i, name := range models.RegimeNames() {
		regimeMap[strconv.Itoa(i)] = name
		if _, ok := regimes[name]; !ok {
			return nil, fmt.Errorf("missing regime settings for %s", name)
		}
	}
	return &Settings{
		ModelFile:      filepath.Base(onnxPath),
		ModelID:        m.Meta().ID,
		FeatureColumns: cols,
		NFeatures:      len(cols),
		Scaler:         ml.ScalerState{Mean: m.Scaler().Mean(), Scale: m.Scaler().Scale()},
		RegimeMap:      regimeMap,
		RegimeSettings: regimes,
	}, nil
}

// MarshalSettings renders s as indented JSON.
func MarshalSettings(s *Settings) ([]byte, error) {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal settings: %w", err)
	}
	return append(b, '\n'), nil
}

// ReadSettings loads a settings document written by MarshalSettings.
func ReadSettings(path string) (*Settings, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	var s Settings
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrArtifactSchema, err)
	}
	if s.NFeatures != len(s.FeatureColumns) ||
		len(s.Scaler.Mean) != s.NFeatures || len(s.Scaler.Scale) != s.NFeatures {
		return nil, fmt.Errorf("%w: settings declare %d features, columns=%d mean=%d scale=%d",
			models.ErrArtifactSchema, s.NFeatures, len(s.FeatureColumns), len(s.Scaler.Mean), len(s.Scaler.Scale))
	}
	for _, name := range models.RegimeNames() {
		if _, ok := s.RegimeSettings[name]; !ok {
			return nil, fmt.Errorf("%w: settings lack regime %s", models.ErrArtifactSchema, name)
		}
	}
	return &s, nil
}
