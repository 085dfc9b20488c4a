package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/japaniel/wordcloud/pkg/filter"
)

// Config holds all configuration for the word cloud service
type Config struct {
	// HTTP server
	Port string `envconfig:"PORT" default:"8080"`

	// Frequency table and sizing
	WeightBudget int     `envconfig:"WEIGHT_BUDGET" default:"40"`  // Eviction runs when total count exceeds this
	MinFontSize  float64 `envconfig:"MIN_FONT_SIZE" default:"10"`  // Size of the least frequent term
	MaxFontSize  float64 `envconfig:"MAX_FONT_SIZE" default:"130"` // Size of the most frequent term
	QueueSize    int     `envconfig:"TRANSCRIPT_QUEUE_SIZE" default:"16"`

	// Term filtering
	StopwordsFile string   `envconfig:"STOPWORDS_FILE" default:""`                                // YAML list replacing the built-in stopwords
	Categories    []string `envconfig:"ADMITTED_CATEGORIES" default:"noun,verb,adjective,adverb"` // Comma separated

	// Diagnostic journal (sqlite). Empty disables it.
	JournalPath string `envconfig:"JOURNAL_PATH" default:""`

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Expose Prometheus metrics on /metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges that envconfig cannot express.
func (c *Config) Validate() error {
	if c.WeightBudget <= 0 {
		return fmt.Errorf("WEIGHT_BUDGET must be positive, got %d", c.WeightBudget)
	}
	if c.MinFontSize <= 0 || c.MaxFontSize <= 0 {
		return fmt.Errorf("font sizes must be positive, got %v..%v", c.MinFontSize, c.MaxFontSize)
	}
	if c.MinFontSize > c.MaxFontSize {
		return fmt.Errorf("MIN_FONT_SIZE %v is larger than MAX_FONT_SIZE %v", c.MinFontSize, c.MaxFontSize)
	}
	if _, err := c.categories(); err != nil {
		return err
	}
	return nil
}

func (c *Config) categories() ([]filter.Category, error) {
	if len(c.Categories) == 0 {
		return filter.DefaultCategories(), nil
	}
	out := make([]filter.Category, 0, len(c.Categories))
	for _, name := range c.Categories {
		cat, err := filter.ParseCategory(name)
		if err != nil {
			return nil, fmt.Errorf("ADMITTED_CATEGORIES: %w", err)
		}
		out = append(out, cat)
	}
	return out, nil
}

// Filter builds the term filter described by the configuration.
func (c *Config) Filter() (*filter.Filter, error) {
	cats, err := c.categories()
	if err != nil {
		return nil, err
	}
	stopwords := filter.DefaultStopwords()
	if c.StopwordsFile != "" {
		stopwords, err = filter.LoadStopwords(c.StopwordsFile)
		if err != nil {
			return nil, fmt.Errorf("load stopwords: %w", err)
		}
	}
	return filter.New(stopwords, cats), nil
}
