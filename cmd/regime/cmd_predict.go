package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"RegimeML/internal/di"
	"RegimeML/internal/domain/models"
	"RegimeML/internal/usecase"
)

// predictCmd classifies the most recent bars with the stored model
var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Classify the latest bars with the saved model",
	Long: `Load the saved artifact, compute features over the configured bar
history and classify the newest rows. The newest prediction is published to
every enabled sink (Kafka, Redis, memory).`,
	RunE: runPredict,
}

var (
	predictRows   int
	predictFormat string
)

func init() {
	rootCmd.AddCommand(predictCmd)

	predictCmd.Flags().IntVar(&predictRows, "rows", 0, "Number of most recent rows to classify (default from config)")
	predictCmd.Flags().StringVar(&predictFormat, "format", "table", "Output format: table, json")
}

type predictionView struct {
	Time          time.Time          `json:"t"`
	Regime        string             `json:"regime"`
	Confidence    float64            `json:"confidence"`
	Actionable    bool               `json:"actionable"`
	Probabilities map[string]float64 `json:"probabilities"`
	ATRStopMult   float64            `json:"atr_sl_mult"`
	ATRTargetMult float64            `json:"atr_tp_mult"`
	TrailingStart int                `json:"trailing_start"`
	ModelID       string             `json:"model_id"`
}

func runPredict(cmd *cobra.Command, _ []string) error {
	if predictFormat != "table" && predictFormat != "json" {
		return fmt.Errorf("unknown format %q", predictFormat)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if predictRows > 0 {
		cfg.Predict.Rows = predictRows
	}
	predictor, cleanup, err := di.InitializePredictor(cfg)
	if err != nil {
		return fmt.Errorf("app initialization failed: %w", err)
	}
	defer cleanup()

	out, err := predictor.Predict(cmd.Context())
	if err != nil {
		return err
	}
	if predictFormat == "json" {
		return printPredictionsJSON(cmd.OutOrStdout(), out)
	}
	printPredictions(cmd.OutOrStdout(), out)
	return nil
}

func toView(p usecase.Prediction) predictionView {
	probs := make(map[string]float64, len(p.Probabilities))
	for i, v := range p.Probabilities {
		probs[models.Regime(i).String()] = v
	}
	return predictionView{
		Time:          p.Time,
		Regime:        p.Regime.String(),
		Confidence:    p.Confidence,
		Actionable:    p.Actionable,
		Probabilities: probs,
		ATRStopMult:   p.Settings.ATRStopMult,
		ATRTargetMult: p.Settings.ATRTargetMult,
		TrailingStart: p.Settings.TrailingStart,
		ModelID:       p.ModelID,
	}
}

func printPredictionsJSON(w io.Writer, out []usecase.Prediction) error {
	views := make([]predictionView, len(out))
	for i, p := range out {
		views[i] = toView(p)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(views)
}

func printPredictions(w io.Writer, out []usecase.Prediction) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	names := models.RegimeNames()
	fmt.Fprintf(tw, "TIME\tREGIME\tCONF\tACT\t%s\tSL x ATR\tTP x ATR\n", strings.Join(names, "\t"))
	for _, p := range out {
		probs := make([]string, len(p.Probabilities))
		for i, v := range p.Probabilities {
			probs[i] = fmt.Sprintf("%.3f", v)
		}
		fmt.Fprintf(tw, "%s\t%s\t%.1f%%\t%t\t%s\t%.1f\t%.1f\n",
			p.Time.Format("2006-01-02 15:04"), p.Regime, 100*p.Confidence, p.Actionable,
			strings.Join(probs, "\t"), p.Settings.ATRStopMult, p.Settings.ATRTargetMult)
	}
	_ = tw.Flush()
}
