// Package export turns a fitted ensemble into the files the execution side
// consumes: an ONNX forest, its settings document and an MQL include.
package export

import (
	"errors"
	"fmt"
	"os"

	"RegimeML/internal/domain/models"
	"RegimeML/internal/domain/repository"
	"RegimeML/internal/services/ml"
	"RegimeML/pkg/config"
	applogger "RegimeML/pkg/logger"
	"RegimeML/pkg/util"
)

type Status int

const (
	Exported Status = iota
	Unavailable
	Failed
)

func (s Status) String() string {
	switch s {
	case Exported:
		return "exported"
	case Unavailable:
		return "unavailable"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// ExportResult reports the outcome of one export. Err is nil only when
// Status is Exported.
type ExportResult struct {
	Status       Status
	ONNXPath     string
	SettingsPath string
	Err          error
}

type Config struct {
	Enabled        bool
	Opset          int
	Version        string
	RegimeSettings map[string]config.RegimeSettings
}

type Exporter struct {
	cfg     Config
	l       *applogger.Logger
	metrics repository.Metrics
}

func NewExporter(cfg Config, l *applogger.Logger, m repository.Metrics) *Exporter {
	if cfg.Opset == 0 {
		cfg.Opset = 12
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if len(cfg.RegimeSettings) == 0 {
		cfg.RegimeSettings = config.DefaultRegimeSettings()
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &Exporter{cfg: cfg, l: l, metrics: m}
}

// Export writes the forest as ONNX to onnxPath and its settings document to
// settingsPath. Both are built before either is written, and the ONNX file is
// removed again if the settings cannot be written. Failures are reported in the result and
// never returned, so a training run survives a broken export.
func (x *Exporter) Export(m *ml.Ensemble, onnxPath, settingsPath string) ExportResult {
	res := ExportResult{ONNXPath: onnxPath, SettingsPath: settingsPath}
	if !x.cfg.Enabled {
		res.Status = Unavailable
		res.Err = models.ErrExportUnavailable
		x.record(res)
		x.l.Warn("model export disabled", applogger.String("onnx_path", onnxPath))
		return res
	}
	if err := x.export(m, onnxPath, settingsPath); err != nil {
		res.Status = Failed
		if errors.Is(err, models.ErrExportUnavailable) {
			res.Status = Unavailable
		}
		res.Err = err
		x.record(res)
		x.l.Error("model export failed",
			applogger.String("status", res.Status.String()),
			applogger.String("onnx_path", onnxPath),
			applogger.Error(err))
		return res
	}
	res.Status = Exported
	x.record(res)
	x.l.Info("model exported",
		applogger.String("onnx_path", onnxPath),
		applogger.String("settings_path", settingsPath),
		applogger.String("model_id", m.Meta().ID))
	return res
}

func (x *Exporter) export(m *ml.Ensemble, onnxPath, settingsPath string) error {
	if m == nil || !m.Fitted() {
		return models.ErrNotFitted
	}
	f := m.Forest()
	if f == nil || len(f.Trees) == 0 {
		return fmt.Errorf("%w: model has no forest", models.ErrExportUnavailable)
	}
	onnx, err := EncodeForestONNX(f, len(m.Columns()), x.cfg.Opset, x.cfg.Version)
	if err != nil {
		return fmt.Errorf("encode onnx: %w", err)
	}
	s, err := NewSettings(m, onnxPath, x.cfg.RegimeSettings)
	if err != nil {
		return err
	}
	doc, err := MarshalSettings(s)
	if err != nil {
		return err
	}

	if err := util.WriteFileAtomic(onnxPath, onnx, 0o644); err != nil {
		return fmt.Errorf("write onnx: %w", err)
	}
	if err := util.WriteFileAtomic(settingsPath, doc, 0o644); err != nil {
		if rmErr := os.Remove(onnxPath); rmErr != nil {
			x.l.Warn("remove orphaned onnx", applogger.String("onnx_path", onnxPath), applogger.Error(rmErr))
		}
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

func (x *Exporter) record(res ExportResult) {
	if x.metrics != nil {
		x.metrics.RecordExport("onnx", res.Status.String())
	}
}
