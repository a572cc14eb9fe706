package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"RegimeML/internal/di"
	"RegimeML/internal/domain/models"
	"RegimeML/internal/usecase"
)

// trainCmd runs the full training pipeline
var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the regime classifier and export it",
	Long: `Load bars, clean them, compute features, label regimes, split by time,
fit the ensemble, evaluate it on the validation and test partitions, save the
artifact and export the ONNX model with its settings document and MQL include.

An export problem is reported but does not fail the run.`,
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	pipeline, cleanup, err := di.InitializeTrainer(cfg)
	if err != nil {
		return fmt.Errorf("app initialization failed: %w", err)
	}
	defer cleanup()

	res, err := pipeline.Run(cmd.Context())
	if err != nil {
		return err
	}
	printTrainResult(cmd.OutOrStdout(), res)
	return nil
}

func printTrainResult(w io.Writer, res *usecase.TrainResult) {
	fmt.Fprintf(w, "model %s\n", res.ModelID)
	fmt.Fprintf(w, "bars %d, clean %d, feature rows %d (dropped %d), labeled %d (dropped %d)\n\n",
		res.Bars, res.Clean.Output, res.FeatureRows, res.FeatureDropped, res.LabeledRows, res.LabelDropped)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "REGIME\tROWS\tSHARE")
	for i, n := range res.Distribution {
		fmt.Fprintf(tw, "%s\t%d\t%.1f%%\n", models.Regime(i), n, 100*float64(n)/float64(res.LabeledRows))
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "PARTITION\tROWS\tFROM\tTO")
	for _, sp := range res.Split {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", sp.Name, sp.Rows, sp.From.Format("2006-01-02 15:04"), sp.To.Format("2006-01-02 15:04"))
	}
	_ = tw.Flush()

	fmt.Fprintf(w, "\ntrain accuracy %.4f\n", res.TrainAccuracy)
	fmt.Fprintf(w, "\nvalidation accuracy %.4f\n%s", res.Validation.Accuracy, res.Validation.Table())
	fmt.Fprintf(w, "\ntest accuracy %.4f\n%s", res.Test.Accuracy, res.Test.Table())

	fmt.Fprintf(w, "\nartifact %s\nexport %s", res.ArtifactPath, res.Export.Status)
	if res.Export.Err != nil {
		fmt.Fprintf(w, " (%v)", res.Export.Err)
	}
	fmt.Fprintln(w)
	switch {
	case res.IncludeErr != nil:
		fmt.Fprintf(w, "include failed (%v)\n", res.IncludeErr)
	case res.IncludePath != "":
		fmt.Fprintf(w, "include %s\n", res.IncludePath)
	}
}
