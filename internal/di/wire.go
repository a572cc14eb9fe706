//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	internalrepo "RegimeML/internal/repository"
	"RegimeML/internal/services/export"
	"RegimeML/internal/usecase"
	"RegimeML/pkg/config"
)

var baseSet = wire.NewSet(
	ProvideLogger,
	ProvideMetrics,
	ProvideArtifactStore,
	wire.Bind(new(usecase.ArtifactStore), new(*internalrepo.FileArtifactStore)),
)

var exportSet = wire.NewSet(
	ProvideExporter,
	wire.Bind(new(usecase.ModelExporter), new(*export.Exporter)),
)

// InitializeTrainer wires the training pipeline.
func InitializeTrainer(cfg *config.Config) (*usecase.TrainPipeline, func(), error) {
	wire.Build(
		baseSet,
		exportSet,
		ProvideBarSource,
		ProvideTrainPipeline,
	)
	return nil, nil, nil
}

// InitializePredictor wires the inference flow and its sinks.
func InitializePredictor(cfg *config.Config) (*usecase.RegimePredictor, func(), error) {
	wire.Build(
		baseSet,
		ProvideBarSource,
		ProvideSinks,
		ProvideRegimePredictor,
	)
	return nil, nil, nil
}

// InitializeExporter wires the re-export use case.
func InitializeExporter(cfg *config.Config) (*usecase.ExportUseCase, func(), error) {
	wire.Build(
		baseSet,
		exportSet,
		ProvideExportUseCase,
	)
	return nil, nil, nil
}
