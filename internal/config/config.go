// Package config loads application configuration from file and environment
// and initializes the global logger.
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
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Estimate  EstimateConfig  `yaml:"estimate" mapstructure:"estimate"`
	Rates     RatesConfig     `yaml:"rates" mapstructure:"rates"`
	License   LicenseConfig   `yaml:"license" mapstructure:"license"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// PipelineConfig configures extraction batch behavior.
type PipelineConfig struct {
	Concurrency      int `yaml:"concurrency" mapstructure:"concurrency"`
	MaxDocumentBytes int `yaml:"max_document_bytes" mapstructure:"max_document_bytes"`
}

// EstimateConfig configures the estimation engine.
type EstimateConfig struct {
	MarkupPct   float64 `yaml:"markup_pct" mapstructure:"markup_pct"`
	OverheadPct float64 `yaml:"overhead_pct" mapstructure:"overhead_pct"`
	ProfitPct   float64 `yaml:"profit_pct" mapstructure:"profit_pct"`
}

// RatesConfig locates the rate book.
type RatesConfig struct {
	Path      string `yaml:"path" mapstructure:"path"`
	SheetName string `yaml:"sheet_name" mapstructure:"sheet_name"`
	SkipRows  int    `yaml:"skip_rows" mapstructure:"skip_rows"`
	FTPURL    string `yaml:"ftp_url" mapstructure:"ftp_url"`
	FTPUser   string `yaml:"ftp_user" mapstructure:"ftp_user"`
	FTPPass   string `yaml:"ftp_pass" mapstructure:"ftp_pass"`
}

// LicenseConfig identifies the calling organization.
type LicenseConfig struct {
	OrgID string `yaml:"org_id" mapstructure:"org_id"`
}

// AnthropicConfig holds settings for the LLM document source, used to
// reduce uploaded drawings and PDFs to plain specification text.
type AnthropicConfig struct {
	Key       string  `yaml:"key" mapstructure:"key"`
	Model     string  `yaml:"model" mapstructure:"model"`
	MaxTokens int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	RPS       float64 `yaml:"rps" mapstructure:"rps"`
}

// ServerConfig configures the HTTP API server.
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
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TAKEOFF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "takeoff.db")
	v.SetDefault("pipeline.concurrency", 4)
	v.SetDefault("pipeline.max_document_bytes", 2<<20)
	v.SetDefault("estimate.markup_pct", 10.0)
	v.SetDefault("estimate.overhead_pct", 0.0)
	v.SetDefault("estimate.profit_pct", 0.0)
	v.SetDefault("rates.skip_rows", 1)
	v.SetDefault("license.org_id", "default")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 8192)
	v.SetDefault("anthropic.rps", 1.0)
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
