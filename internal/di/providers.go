package di

import (
	"fmt"

	"RegimeML/internal/domain/repository"
	internalrepo "RegimeML/internal/repository"
	"RegimeML/internal/services/export"
	"RegimeML/internal/services/features"
	"RegimeML/internal/services/labeling"
	"RegimeML/internal/services/ml"
	"RegimeML/internal/services/split"
	"RegimeML/internal/usecase"
	pkgcache "RegimeML/pkg/cache"
	pkgch "RegimeML/pkg/clickhouse"
	"RegimeML/pkg/config"
	pkgkafka "RegimeML/pkg/kafka"
	applogger "RegimeML/pkg/logger"
	"RegimeML/pkg/metrics"
)

// Version is stamped into exported models.
var Version = "dev"

// ProvideLogger creates the structured logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment), applogger.String("symbol", cfg.Symbol)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New()
}

// ProvideBarSource creates the configured bar source. The ClickHouse client,
// when used, is closed by the returned cleanup.
func ProvideBarSource(cfg *config.Config, l *applogger.Logger) (repository.BarSource, func(), error) {
	if cfg.Data.Source != "clickhouse" {
		return internalrepo.NewCSVBarSource(cfg.Data.Path), func() {}, nil
	}
	ch := cfg.Data.ClickHouse
	client, err := pkgch.NewClient(
		pkgch.WithHost(ch.Host),
		pkgch.WithPort(ch.Port),
		pkgch.WithDatabase(ch.Database),
		pkgch.WithCredentials(ch.User, ch.Password),
		pkgch.WithHTTP(ch.UseHTTP),
		pkgch.WithTimeouts(ch.DialTimeout, ch.ReadTimeout),
		pkgch.WithMaxExecutionTime(ch.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	src, err := internalrepo.NewCHBarSource(client, ch.Table, cfg.Symbol)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	src.SetLogger(l)
	cleanup := func() {
		if err := client.Close(); err != nil {
			l.Error("clickhouse close error", applogger.Error(err))
		}
	}
	return src, cleanup, nil
}

// ProvideArtifactStore creates the file-backed model store.
func ProvideArtifactStore(l *applogger.Logger) *internalrepo.FileArtifactStore {
	s := internalrepo.NewFileArtifactStore()
	s.SetLogger(l)
	return s
}

// ProvideExporter creates the ONNX exporter.
func ProvideExporter(cfg *config.Config, l *applogger.Logger, m *metrics.Recorder) *export.Exporter {
	return export.NewExporter(export.Config{
		Enabled:        cfg.Export.Enabled,
		Opset:          cfg.Export.Opset,
		Version:        Version,
		RegimeSettings: cfg.Export.RegimeSettings,
	}, l, m)
}

// ProvideSinks creates every enabled prediction sink. The cleanup closes them.
func ProvideSinks(cfg *config.Config, l *applogger.Logger, m *metrics.Recorder) ([]repository.RegimeSink, func(), error) {
	var sinks []repository.RegimeSink
	closeAll := func() {
		for _, s := range sinks {
			if err := s.Close(); err != nil {
				l.Error("sink close error", applogger.String("sink", s.Name()), applogger.Error(err))
			}
		}
	}

	if k := cfg.Sinks.Kafka; k.Enabled {
		producer, err := pkgkafka.NewProducer(
			pkgkafka.WithBrokers(k.Brokers),
			pkgkafka.WithCompression(k.Compression),
			pkgkafka.WithRequiredAcks(k.RequiredAcks),
			pkgkafka.WithMaxAttempts(k.MaxAttempts),
			pkgkafka.WithWriteTimeout(k.WriteTimeout),
			pkgkafka.WithRegisterer(m.Registerer()),
		)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("kafka producer: %w", err)
		}
		sinks = append(sinks, internalrepo.NewKafkaRegimeSink(producer, k.Topic))
	}

	if r := cfg.Sinks.Redis; r.Enabled {
		rc, err := pkgcache.NewRedisCache(
			pkgcache.WithRedisHost(r.Host),
			pkgcache.WithRedisPort(r.Port),
			pkgcache.WithRedisPassword(r.Password),
			pkgcache.WithRedisDB(r.DB),
			pkgcache.WithRedisPrefix(r.Prefix),
		)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("redis cache: %w", err)
		}
		sinks = append(sinks, internalrepo.NewCacheRegimeSink(rc, r.TTL))
	}

	if mem := cfg.Sinks.Memory; mem.Enabled {
		mc := pkgcache.NewMemoryCache(pkgcache.WithMemoryMaxSize(mem.MaxSize))
		sinks = append(sinks, internalrepo.NewCacheRegimeSink(mc, mem.TTL))
	}

	for _, s := range sinks {
		l.Info("sink enabled", applogger.String("sink", s.Name()))
	}
	return sinks, closeAll, nil
}

func modelConfig(cfg *config.Config) ml.Config {
	mc := cfg.Model
	return ml.Config{
		MaxBins: mc.MaxBins,
		Forest: ml.ForestConfig{
			Trees:           mc.Forest.Trees,
			MaxDepth:        mc.Forest.MaxDepth,
			MinSamplesSplit: mc.Forest.MinSamplesSplit,
			MinSamplesLeaf:  mc.Forest.MinSamplesLeaf,
			Balanced:        mc.Forest.Balanced,
			Workers:         mc.Workers,
			Seed:            mc.Seed,
		},
		Boosting: ml.BoostingConfig{
			Stages:          mc.Boosting.Stages,
			MaxDepth:        mc.Boosting.MaxDepth,
			LearningRate:    mc.Boosting.LearningRate,
			MinSamplesSplit: mc.Boosting.MinSamplesSplit,
			MinSamplesLeaf:  mc.Boosting.MinSamplesLeaf,
		},
	}
}

// ProvideTrainPipeline creates the training use case.
func ProvideTrainPipeline(
	cfg *config.Config,
	source repository.BarSource,
	store usecase.ArtifactStore,
	exporter usecase.ModelExporter,
	m *metrics.Recorder,
	l *applogger.Logger,
) *usecase.TrainPipeline {
	return usecase.NewTrainPipeline(source, store, exporter, m, l, usecase.TrainOptions{
		Features: features.Config{VolatilityWindows: cfg.Features.VolatilityWindows},
		Columns:  cfg.Features.Columns,
		Labeling: labeling.Config{
			Lookforward:    cfg.Labeling.Lookforward,
			TrendThreshold: cfg.Labeling.TrendThreshold,
			VolThreshold:   cfg.Labeling.VolThreshold,
		},
		Ratios:          split.Ratios{Train: cfg.Split.Train, Validation: cfg.Split.Validation, Test: cfg.Split.Test},
		Model:           modelConfig(cfg),
		ArtifactPath:    cfg.Artifact.Path,
		ONNXPath:        cfg.Export.ONNXPath,
		SettingsPath:    cfg.Export.SettingsPath,
		IncludePath:     cfg.Export.IncludePath,
		MetricsTextfile: cfg.Metrics.Textfile,
	})
}

// ProvideRegimePredictor creates the inference use case.
func ProvideRegimePredictor(
	cfg *config.Config,
	source repository.BarSource,
	store usecase.ArtifactStore,
	sinks []repository.RegimeSink,
	m *metrics.Recorder,
	l *applogger.Logger,
) *usecase.RegimePredictor {
	return usecase.NewRegimePredictor(source, store, sinks, m, l, usecase.PredictOptions{
		Symbol:         cfg.Symbol,
		ArtifactPath:   cfg.Artifact.Path,
		Features:       features.Config{VolatilityWindows: cfg.Features.VolatilityWindows},
		Rows:           cfg.Predict.Rows,
		RegimeSettings: cfg.Export.RegimeSettings,
	})
}

// ProvideExportUseCase creates the re-export use case.
func ProvideExportUseCase(
	cfg *config.Config,
	store usecase.ArtifactStore,
	exporter usecase.ModelExporter,
	m *metrics.Recorder,
	l *applogger.Logger,
) *usecase.ExportUseCase {
	return usecase.NewExportUseCase(store, exporter, m, l, usecase.ExportOptions{
		ArtifactPath: cfg.Artifact.Path,
		ONNXPath:     cfg.Export.ONNXPath,
		SettingsPath: cfg.Export.SettingsPath,
		IncludePath:  cfg.Export.IncludePath,
	})
}
