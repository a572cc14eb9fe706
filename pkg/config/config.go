package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Symbol      string `yaml:"symbol" default:"XAUUSD" validate:"required"`
	Log         struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
	Metrics struct {
		Textfile string `yaml:"textfile"`
	} `yaml:"metrics"`
	Data struct {
		Source     string `yaml:"source" default:"csv" validate:"oneof=csv clickhouse"`
		Path       string `yaml:"path" default:"data/XAUUSD_H1.csv"`
		ClickHouse struct {
			Host             string        `yaml:"host" default:"localhost"`
			Port             int           `yaml:"port" default:"9000"`
			Database         string        `yaml:"database" default:"regime"`
			Table            string        `yaml:"table" default:"bars_h1"`
			User             string        `yaml:"user" default:"default"`
			Password         string        `yaml:"password"`
			UseHTTP          bool          `yaml:"use_http"`
			DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
			ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
			MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
		} `yaml:"clickhouse"`
	} `yaml:"data"`
	Features struct {
		VolatilityWindows []int    `yaml:"volatility_windows" default:"[5,10,20,50]" validate:"min=1,dive,gt=1"`
		Columns           []string `yaml:"columns"`
	} `yaml:"features"`
	Labeling struct {
		Lookforward    int     `yaml:"lookforward" default:"10" validate:"gt=0"`
		TrendThreshold float64 `yaml:"trend_threshold" default:"0.005" validate:"gt=0"`
		VolThreshold   float64 `yaml:"vol_threshold" default:"1.5" validate:"gt=0"`
	} `yaml:"labeling"`
	Split struct {
		Train      float64 `yaml:"train" default:"0.7" validate:"gt=0,lt=1"`
		Validation float64 `yaml:"validation" default:"0.15" validate:"gt=0,lt=1"`
		Test       float64 `yaml:"test" default:"0.15" validate:"gt=0,lt=1"`
	} `yaml:"split"`
	Model struct {
		Seed    uint64 `yaml:"seed" default:"42"`
		Workers int    `yaml:"workers" validate:"gte=0"`
		MaxBins int    `yaml:"max_bins" default:"255" validate:"gte=2,lte=255"`
		Forest  struct {
			Trees           int  `yaml:"trees" default:"100" validate:"gt=0"`
			MaxDepth        int  `yaml:"max_depth" default:"10" validate:"gt=0"`
			MinSamplesSplit int  `yaml:"min_samples_split" default:"20" validate:"gte=2"`
			MinSamplesLeaf  int  `yaml:"min_samples_leaf" default:"10" validate:"gte=1"`
			Balanced        bool `yaml:"balanced" default:"true"`
		} `yaml:"forest"`
		Boosting struct {
			Stages          int     `yaml:"stages" default:"100" validate:"gt=0"`
			MaxDepth        int     `yaml:"max_depth" default:"5" validate:"gt=0"`
			LearningRate    float64 `yaml:"learning_rate" default:"0.1" validate:"gt=0,lte=1"`
			MinSamplesSplit int     `yaml:"min_samples_split" default:"20" validate:"gte=2"`
			MinSamplesLeaf  int     `yaml:"min_samples_leaf" default:"1" validate:"gte=1"`
		} `yaml:"boosting"`
	} `yaml:"model"`
	Artifact struct {
		Path string `yaml:"path" default:"models/regime_detector.json" validate:"required"`
	} `yaml:"artifact"`
	Export struct {
		Enabled        bool                      `yaml:"enabled" default:"true"`
		ONNXPath       string                    `yaml:"onnx_path" default:"models/regime_detector.onnx"`
		SettingsPath   string                    `yaml:"settings_path" default:"models/regime_config.json"`
		IncludePath    string                    `yaml:"include_path" default:"models/RegimeModelConfig.mqh"`
		Opset          int                       `yaml:"opset" default:"12" validate:"gte=9"`
		RegimeSettings map[string]RegimeSettings `yaml:"regime_settings" validate:"dive"`
	} `yaml:"export"`
	Predict struct {
		Rows int `yaml:"rows" default:"1" validate:"gt=0"`
	} `yaml:"predict"`
	Sinks struct {
		Kafka struct {
			Enabled      bool          `yaml:"enabled"`
			Brokers      []string      `yaml:"brokers"`
			Topic        string        `yaml:"topic" default:"regime.predictions"`
			RequiredAcks int           `yaml:"required_acks" default:"-1"`
			Compression  string        `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		} `yaml:"kafka"`
		Redis struct {
			Enabled  bool          `yaml:"enabled"`
			Host     string        `yaml:"host" default:"localhost"`
			Port     int           `yaml:"port" default:"6379"`
			Password string        `yaml:"password"`
			DB       int           `yaml:"db"`
			Prefix   string        `yaml:"prefix" default:"regime"`
			TTL      time.Duration `yaml:"ttl" default:"2h"`
		} `yaml:"redis"`
		Memory struct {
			Enabled bool          `yaml:"enabled"`
			MaxSize int           `yaml:"max_size" default:"1024" validate:"gt=0"`
			TTL     time.Duration `yaml:"ttl" default:"2h"`
		} `yaml:"memory"`
	} `yaml:"sinks"`
}

// RegimeSettings are the static trade-sizing parameters handed to the
// execution environment for one regime.
type RegimeSettings struct {
	ATRStopMult   float64 `yaml:"atr_sl_mult" json:"atr_sl_mult" validate:"gt=0"`
	ATRTargetMult float64 `yaml:"atr_tp_mult" json:"atr_tp_mult" validate:"gt=0"`
	TrailingStart int     `yaml:"trailing_start" json:"trailing_start" validate:"gte=0"`
	MinConfidence int     `yaml:"min_confidence" json:"min_confidence" validate:"gte=0,lte=100"`
	Description   string  `yaml:"description" json:"description"`
}

// DefaultRegimeSettings returns the per-regime settings shipped with the model.
func DefaultRegimeSettings() map[string]RegimeSettings {
	return map[string]RegimeSettings{
		"RANGING":  {ATRStopMult: 1.0, ATRTargetMult: 1.5, TrailingStart: 8, MinConfidence: 60, Description: "Mean-reversion, tight stops"},
		"TRENDING": {ATRStopMult: 1.5, ATRTargetMult: 2.5, TrailingStart: 15, MinConfidence: 55, Description: "Trend following, let profits run"},
		"VOLATILE": {ATRStopMult: 2.0, ATRTargetMult: 2.0, TrailingStart: 20, MinConfidence: 70, Description: "High volatility, be cautious"},
	}
}

var validate = validator.New()

// Default returns a configuration populated from struct defaults only.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("set defaults: %w", err)
	}
	c.Export.RegimeSettings = DefaultRegimeSettings()
	return &c, nil
}

// Load reads and parses a YAML configuration file. An empty path yields the
// defaults.
func Load(path string) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		if len(c.Export.RegimeSettings) == 0 {
			c.Export.RegimeSettings = DefaultRegimeSettings()
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
// A .env file in the working directory is read first when present.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("REGIME_DATA_PATH"); v != "" {
		c.Data.Path = v
	}
	if v := os.Getenv("REGIME_SOURCE"); v != "" {
		c.Data.Source = v
	}
	if v := os.Getenv("REGIME_ARTIFACT_PATH"); v != "" {
		c.Artifact.Path = v
	}
	if v := os.Getenv("REGIME_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Sinks.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Sinks.Kafka.Topic = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Sinks.Redis.Host = host
		if ok {
			var p int
			if _, err := fmt.Sscanf(port, "%d", &p); err == nil {
				c.Sinks.Redis.Port = p
			}
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	sum := c.Split.Train + c.Split.Validation + c.Split.Test
	if math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("split ratios must sum to 1.0, got %.4f", sum)
	}
	switch c.Data.Source {
	case "csv":
		if c.Data.Path == "" {
			return fmt.Errorf("data.path is required for csv source")
		}
	case "clickhouse":
		if c.Data.ClickHouse.Host == "" || c.Data.ClickHouse.Table == "" {
			return fmt.Errorf("data.clickhouse.host and data.clickhouse.table are required")
		}
	}
	if !containsInt(c.Features.VolatilityWindows, 5) || !containsInt(c.Features.VolatilityWindows, 20) {
		return fmt.Errorf("features.volatility_windows must include 5 and 20")
	}
	if c.Sinks.Kafka.Enabled && len(c.Sinks.Kafka.Brokers) == 0 {
		return fmt.Errorf("sinks.kafka.brokers cannot be empty when kafka sink is enabled")
	}
	for _, name := range []string{"RANGING", "TRENDING", "VOLATILE"} {
		if _, ok := c.Export.RegimeSettings[name]; !ok {
			return fmt.Errorf("export.regime_settings.%s is required", name)
		}
	}
	return nil
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
