package export

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/template"

	"github.com/shopspring/decimal"

	"RegimeML/pkg/util"
)

const includeTemplate = `//+------------------------------------------------------------------+
//|                                           RegimeModelConfig.mqh  |
//|                        Auto-generated from ML model export       |
//+------------------------------------------------------------------+
#property copyright "Regime Detector ML"
#property strict

// Model configuration
#define REGIME_MODEL_FEATURES {{.NFeatures}}
#define REGIME_RANGING   0
#define REGIME_TRENDING  1
#define REGIME_VOLATILE  2

// Feature scaling parameters
double g_feature_mean[{{.NFeatures}}] = {
   {{fixed .Scaler.Mean}}
};

double g_feature_scale[{{.NFeatures}}] = {
   {{fixed .Scaler.Scale}}
};

// Regime-specific settings
struct RegimeSettings {
   double atr_sl_mult;
   double atr_tp_mult;
   int trailing_start;
   int min_confidence;
};

RegimeSettings g_regime_settings[3] = {
{{- range $i, $name := regimes}}
{{- with index $.RegimeSettings $name}}
   { {{double .ATRStopMult}}, {{double .ATRTargetMult}}, {{.TrailingStart}}, {{.MinConfidence}} }{{if last $i}}   {{else}},  {{end}}// {{$name}}
{{- end}}
{{- end}}
};

// Scale features using saved scaler parameters
void ScaleFeatures(double &features[], double &scaled[]) {
   ArrayResize(scaled, REGIME_MODEL_FEATURES);
   for(int i = 0; i < REGIME_MODEL_FEATURES; i++) {
      scaled[i] = (features[i] - g_feature_mean[i]) / g_feature_scale[i];
   }
}

// Get regime name
string GetRegimeName(int regime) {
   switch(regime) {
      case REGIME_RANGING:  return "RANGING";
      case REGIME_TRENDING: return "TRENDING";
      case REGIME_VOLATILE: return "VOLATILE";
      default: return "UNKNOWN";
   }
}
//+------------------------------------------------------------------+
`

var include = template.Must(template.New("include").Funcs(template.FuncMap{
	"fixed":   fixedList,
	"double":  double,
	"regimes": func() []string { return []string{"RANGING", "TRENDING", "VOLATILE"} },
	"last":    func(i int) bool { return i == 2 },
}).Parse(includeTemplate))

// fixedList prints values with ten decimals, comma separated.
func fixedList(xs []float64) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = decimal.NewFromFloat(x).StringFixed(10)
	}
	return strings.Join(parts, ", ")
}

// double keeps a trailing ".0" on integral values so MQL reads a double.
func double(x float64) string {
	s := strconv.FormatFloat(x, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// WriteInclude renders the MQL include for s.
func WriteInclude(w io.Writer, s *Settings) error {
	if err := include.Execute(w, s); err != nil {
		return fmt.Errorf("render include: %w", err)
	}
	return nil
}

// RenderInclude reads the settings document at settingsPath and writes the
// MQL include to outPath.
func RenderInclude(settingsPath, outPath string) error {
	s, err := ReadSettings(settingsPath)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := WriteInclude(&buf, s); err != nil {
		return err
	}
	if err := util.WriteFileAtomic(outPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write include: %w", err)
	}
	return nil
}
