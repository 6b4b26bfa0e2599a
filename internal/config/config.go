package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix          = "JURIS"
	defaultHTTPAddress = "0.0.0.0:8080"
	defaultDBPath      = "jurisprudencia.db"
	defaultLogLevel    = "info"

	defaultSourceURL     = "https://jurisbackend.sedetc.gob.pe/api/visitor/sentencia/busqueda"
	defaultSourceTimeout = 30 * time.Second
	defaultPageDelay     = time.Second
	defaultRetryBudget   = 3
	defaultRetryBackoff  = 5 * time.Second

	defaultUpdateInterval = time.Hour
	defaultMaxPagesAuto   = 50
	defaultMaxPagesManual = 500

	defaultItemsPerPage  = 82
	defaultExportLimit   = 10000
	defaultMinWordLength = 4
	defaultMaxKeywords   = 10
	defaultSummaryLength = 200

	defaultSimilarityThreshold = 0.3
	defaultSimilarityLimit     = 5
)

// AppConfig captures runtime configuration for the jurisprudencia API server.
type AppConfig struct {
	HTTPAddress  string
	DatabasePath string
	LogLevel     string

	// Remote source API.
	SourceURL     string
	SourceTimeout time.Duration
	PageDelay     time.Duration
	RetryBudget   int
	RetryBackoff  time.Duration

	// Ingestion cycles.
	UpdateInterval time.Duration
	MaxPagesAuto   int
	MaxPagesManual int

	// Query and text-analysis limits.
	ItemsPerPage  int
	ExportLimit   int
	MinWordLength int
	MaxKeywords   int
	SummaryLength int

	SimilarityThreshold float64
	SimilarityLimit     int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDBPath)
	configViper.SetDefault("log.level", defaultLogLevel)

	configViper.SetDefault("source.url", defaultSourceURL)
	configViper.SetDefault("source.timeout", defaultSourceTimeout)
	configViper.SetDefault("source.page_delay", defaultPageDelay)
	configViper.SetDefault("source.retry_budget", defaultRetryBudget)
	configViper.SetDefault("source.retry_backoff", defaultRetryBackoff)

	configViper.SetDefault("update.interval", defaultUpdateInterval)
	configViper.SetDefault("update.max_pages_auto", defaultMaxPagesAuto)
	configViper.SetDefault("update.max_pages_manual", defaultMaxPagesManual)

	configViper.SetDefault("query.items_per_page", defaultItemsPerPage)
	configViper.SetDefault("query.export_limit", defaultExportLimit)
	configViper.SetDefault("analysis.min_word_length", defaultMinWordLength)
	configViper.SetDefault("analysis.max_keywords", defaultMaxKeywords)
	configViper.SetDefault("analysis.summary_length", defaultSummaryLength)

	configViper.SetDefault("similarity.threshold", defaultSimilarityThreshold)
	configViper.SetDefault("similarity.limit", defaultSimilarityLimit)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:  configViper.GetString("http.address"),
		DatabasePath: configViper.GetString("database.path"),
		LogLevel:     configViper.GetString("log.level"),

		SourceURL:     configViper.GetString("source.url"),
		SourceTimeout: configViper.GetDuration("source.timeout"),
		PageDelay:     configViper.GetDuration("source.page_delay"),
		RetryBudget:   configViper.GetInt("source.retry_budget"),
		RetryBackoff:  configViper.GetDuration("source.retry_backoff"),

		UpdateInterval: configViper.GetDuration("update.interval"),
		MaxPagesAuto:   configViper.GetInt("update.max_pages_auto"),
		MaxPagesManual: configViper.GetInt("update.max_pages_manual"),

		ItemsPerPage:  configViper.GetInt("query.items_per_page"),
		ExportLimit:   configViper.GetInt("query.export_limit"),
		MinWordLength: configViper.GetInt("analysis.min_word_length"),
		MaxKeywords:   configViper.GetInt("analysis.max_keywords"),
		SummaryLength: configViper.GetInt("analysis.summary_length"),

		SimilarityThreshold: configViper.GetFloat64("similarity.threshold"),
		SimilarityLimit:     configViper.GetInt("similarity.limit"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.SourceURL) == "" {
		return fmt.Errorf("source.url is required")
	}
	if c.RetryBudget < 1 {
		return fmt.Errorf("source.retry_budget must be at least 1")
	}
	if c.UpdateInterval <= 0 {
		return fmt.Errorf("update.interval must be positive")
	}
	if c.MaxPagesAuto < 1 || c.MaxPagesManual < 1 {
		return fmt.Errorf("update page limits must be at least 1")
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity.threshold must be within [0,1]")
	}
	return nil
}
