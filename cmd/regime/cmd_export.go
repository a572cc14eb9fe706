package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"RegimeML/internal/di"
	"RegimeML/internal/services/export"
)

// exportCmd re-exports a saved model
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the saved model to ONNX, settings JSON and MQL include",
	RunE:  runExport,
}

// includeCmd renders the MQL include from an existing settings document
var includeCmd = &cobra.Command{
	Use:   "include",
	Short: "Render the MQL include from a settings document",
	RunE:  runInclude,
}

var (
	includeSettings string
	includeOutput   string
)

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(includeCmd)

	includeCmd.Flags().StringVar(&includeSettings, "settings", "", "Settings document (default from config)")
	includeCmd.Flags().StringVar(&includeOutput, "output", "", "Include file to write (default from config)")
}

func runExport(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	uc, cleanup, err := di.InitializeExporter(cfg)
	if err != nil {
		return fmt.Errorf("app initialization failed: %w", err)
	}
	defer cleanup()

	res, err := uc.Export(cmd.Context())
	if err != nil {
		return err
	}
	if res.Status != export.Exported {
		return fmt.Errorf("export %s: %w", res.Status, res.Err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "onnx %s\nsettings %s\ninclude %s\n", res.ONNXPath, res.SettingsPath, cfg.Export.IncludePath)
	return nil
}

func runInclude(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	settings, out := cfg.Export.SettingsPath, cfg.Export.IncludePath
	if includeSettings != "" {
		settings = includeSettings
	}
	if includeOutput != "" {
		out = includeOutput
	}
	if err := export.RenderInclude(settings, out); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "include %s\n", out)
	return nil
}
