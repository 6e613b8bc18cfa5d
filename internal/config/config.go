package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Reference ReferenceConfig `yaml:"reference" mapstructure:"reference"`
	Policy    PolicyConfig    `yaml:"policy" mapstructure:"policy"`
	Detect    DetectConfig    `yaml:"detect" mapstructure:"detect"`
	Match     MatchConfig     `yaml:"match" mapstructure:"match"`
	Ingest    IngestConfig    `yaml:"ingest" mapstructure:"ingest"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// ReferenceConfig locates the gazetteer reference data.
type ReferenceConfig struct {
	Path    string `yaml:"path" mapstructure:"path"`
	Format  string `yaml:"format" mapstructure:"format"`
	Sheet   string `yaml:"sheet" mapstructure:"sheet"`
	HUCPath string `yaml:"huc_path" mapstructure:"huc_path"`
}

// PolicyConfig points at an optional special-case policy file.
type PolicyConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// DetectConfig tunes level detection.
type DetectConfig struct {
	TotalMarkers []string `yaml:"total_markers" mapstructure:"total_markers"`
	AbsTolerance float64  `yaml:"abs_tolerance" mapstructure:"abs_tolerance"`
	RelTolerance float64  `yaml:"rel_tolerance" mapstructure:"rel_tolerance"`
}

// MatchConfig tunes name matching.
type MatchConfig struct {
	Threshold      int    `yaml:"threshold" mapstructure:"threshold"`
	AmbiguityDelta int    `yaml:"ambiguity_delta" mapstructure:"ambiguity_delta"`
	Similarity     string `yaml:"similarity" mapstructure:"similarity"`
}

// IngestConfig selects columns from extracted tables.
type IngestConfig struct {
	LabelColumn string `yaml:"label_column" mapstructure:"label_column"`
	ValueColumn string `yaml:"value_column" mapstructure:"value_column"`
	Sheet       string `yaml:"sheet" mapstructure:"sheet"`
	SkipRows    int    `yaml:"skip_rows" mapstructure:"skip_rows"`
	HeaderRows  int    `yaml:"header_rows" mapstructure:"header_rows"`
	// LevelColumns maps level names (region, province, municipality,
	// barangay) to columns for tables with one column per level.
	LevelColumns map[string]string `yaml:"level_columns" mapstructure:"level_columns"`
}

// BatchConfig configures multi-table processing.
type BatchConfig struct {
	MaxConcurrentTables int `yaml:"max_concurrent_tables" mapstructure:"max_concurrent_tables"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("pcoder")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PCODER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("reference.format", "auto")
	v.SetDefault("detect.total_markers", []string{"GRAND TOTAL", "TOTAL"})
	v.SetDefault("detect.abs_tolerance", 0.5)
	v.SetDefault("detect.rel_tolerance", 0.0)
	v.SetDefault("match.threshold", 80)
	v.SetDefault("match.ambiguity_delta", 1)
	v.SetDefault("match.similarity", "levenshtein")
	v.SetDefault("batch.max_concurrent_tables", 4)
	v.SetDefault("store.driver", "none")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. mode is one of "resolve",
// "persist" or "serve"; every problem found is reported in one error.
func (c *Config) Validate(mode string) error {
	var errs []string

	if c.Reference.Path == "" {
		errs = append(errs, "reference.path is required")
	}
	switch c.Reference.Format {
	case "", "auto", "long", "wide", "shapefile":
	default:
		errs = append(errs, "reference.format must be auto, long, wide or shapefile")
	}
	if c.Match.Threshold < 0 || c.Match.Threshold > 100 {
		errs = append(errs, "match.threshold must be between 0 and 100")
	}
	if c.Match.AmbiguityDelta < 0 {
		errs = append(errs, "match.ambiguity_delta must not be negative")
	}
	if c.Detect.AbsTolerance < 0 || c.Detect.RelTolerance < 0 {
		errs = append(errs, "detect tolerances must not be negative")
	}
	if c.Ingest.SkipRows < 0 || c.Ingest.HeaderRows < 0 {
		errs = append(errs, "ingest row counts must not be negative")
	}
	if c.Batch.MaxConcurrentTables < 1 {
		errs = append(errs, "batch.max_concurrent_tables must be at least 1")
	}

	switch mode {
	case "persist":
		switch c.Store.Driver {
		case "sqlite", "postgres":
			if c.Store.DatabaseURL == "" {
				errs = append(errs, "store.database_url is required")
			}
		default:
			errs = append(errs, "store.driver must be sqlite or postgres")
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be between 1 and 65535")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
