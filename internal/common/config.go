package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment"` // "development" or "production"
	Server      ServerConfig     `toml:"server"`
	Storage     StorageConfig    `toml:"storage"`
	Logging     LoggingConfig    `toml:"logging"`
	Crawler     CrawlerConfig    `toml:"crawler"`
	Pipeline    PipelineConfig   `toml:"pipeline"`
	Classifier  ClassifierConfig `toml:"classifier"`
	Claude      ClaudeConfig     `toml:"claude"`
	Gemini      GeminiConfig     `toml:"gemini"`
	Pricing     PricingConfig    `toml:"pricing"`
	Categories  CategoriesConfig `toml:"categories"`
	WebSocket   WebSocketConfig  `toml:"websocket"`
	Scheduler   SchedulerConfig  `toml:"scheduler"`
	Metrics     MetricsConfig    `toml:"metrics"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// StorageConfig selects the result store backend
type StorageConfig struct {
	Type     string         `toml:"type"` // "badger" (default) or "postgres"
	Badger   BadgerConfig   `toml:"badger"`
	Postgres PostgresConfig `toml:"postgres"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// PostgresConfig represents the optional Postgres result store
type PostgresConfig struct {
	DSN      string `toml:"dsn"`
	MaxConns int    `toml:"max_conns"`
	Schema   string `toml:"schema"`
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05")
}

// CrawlerConfig controls the discovery and fetch collaborators
type CrawlerConfig struct {
	UserAgent          string        `toml:"user_agent"`
	RequestTimeout     time.Duration `toml:"request_timeout"`      // Per discovery/fetch call timeout
	RequestDelay       time.Duration `toml:"request_delay"`        // Minimum delay between requests to same domain
	MaxURLs            int           `toml:"max_urls"`             // Cap on discovered URLs per run
	MaxBodySize        int           `toml:"max_body_size"`        // Maximum response body size in bytes
	MaxAttempts        int           `toml:"max_attempts"`         // Retry attempts for retryable status codes
	EnableJavaScript   bool          `toml:"enable_javascript"`    // Render pages with chromedp before extraction
	JavaScriptWaitTime time.Duration `toml:"javascript_wait_time"` // Time to wait for JavaScript to render
}

// PipelineConfig controls the pipeline runner and batched writer
type PipelineConfig struct {
	MaxWorkers int           `toml:"max_workers"` // Bounded fetch pool size
	BatchSize  int           `toml:"batch_size"`  // Writer flush size
	QueueSize  int           `toml:"queue_size"`  // Writer queue capacity
	FlushPoll  time.Duration `toml:"flush_poll"`  // Writer idle poll before flushing a partial batch
}

// ClassifierConfig selects the classification collaborator
type ClassifierConfig struct {
	Provider string `toml:"provider"` // "rules" (default), "claude" or "gemini"
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Timeout     string  `toml:"timeout"`
	Temperature float32 `toml:"temperature"`
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	Timeout     string  `toml:"timeout"`
	Temperature float32 `toml:"temperature"`
}

// PricingConfig points at an optional YAML rate table override
type PricingConfig struct {
	RatesFile string `toml:"rates_file"`
}

// CategoriesConfig points at an optional YAML category keyword table override
type CategoriesConfig struct {
	File string `toml:"file"`
}

// WebSocketConfig contains configuration for live job progress streaming
type WebSocketConfig struct {
	ThrottleInterval string `toml:"throttle_interval"` // Max one progress message per job per interval
}

// SchedulerConfig holds recurring ingestion entries
type SchedulerConfig struct {
	Enabled bool             `toml:"enabled"`
	Entries []ScheduledEntry `toml:"entries"`
}

// ScheduledEntry is one recurring ingestion
type ScheduledEntry struct {
	Name       string   `toml:"name"`
	Schedule   string   `toml:"schedule"` // Standard 5-field cron expression
	StartURL   string   `toml:"start_url"`
	Categories []string `toml:"categories"`
}

type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Type: "badger",
			Badger: BadgerConfig{
				Path: "./data",
			},
			Postgres: PostgresConfig{
				MaxConns: 4,
				Schema:   "public",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
		Crawler: CrawlerConfig{
			UserAgent:          "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			RequestTimeout:     30 * time.Second,
			RequestDelay:       500 * time.Millisecond,
			MaxURLs:            100,
			MaxBodySize:        10 * 1024 * 1024, // 10MB
			MaxAttempts:        3,
			EnableJavaScript:   false,
			JavaScriptWaitTime: 3 * time.Second,
		},
		Pipeline: PipelineConfig{
			MaxWorkers: 5,
			BatchSize:  100,
			QueueSize:  1000,
			FlushPoll:  500 * time.Millisecond,
		},
		Classifier: ClassifierConfig{
			Provider: "rules",
		},
		Claude: ClaudeConfig{
			Model:       "claude-haiku-4-5",
			MaxTokens:   1024,
			Timeout:     "60s",
			Temperature: 0.0,
		},
		Gemini: GeminiConfig{
			Model:       "gemini-2.5-flash",
			Timeout:     "60s",
			Temperature: 0.0,
		},
		WebSocket: WebSocketConfig{
			ThrottleInterval: "1s",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> env
// Later files override earlier files. CLI flags are applied afterwards by ApplyFlagOverrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies COVERA_* environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("COVERA_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("COVERA_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("COVERA_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if storageType := os.Getenv("COVERA_STORAGE_TYPE"); storageType != "" {
		config.Storage.Type = storageType
	}
	if badgerPath := os.Getenv("COVERA_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if dsn := os.Getenv("COVERA_POSTGRES_DSN"); dsn != "" {
		config.Storage.Postgres.DSN = dsn
	}

	// Logging configuration
	if level := os.Getenv("COVERA_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("COVERA_LOG_OUTPUT"); output != "" {
		outputs := splitList(output)
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Crawler configuration
	if userAgent := os.Getenv("COVERA_CRAWLER_USER_AGENT"); userAgent != "" {
		config.Crawler.UserAgent = userAgent
	}
	if requestTimeout := os.Getenv("COVERA_CRAWLER_REQUEST_TIMEOUT"); requestTimeout != "" {
		if rt, err := time.ParseDuration(requestTimeout); err == nil {
			config.Crawler.RequestTimeout = rt
		}
	}
	if requestDelay := os.Getenv("COVERA_CRAWLER_REQUEST_DELAY"); requestDelay != "" {
		if rd, err := time.ParseDuration(requestDelay); err == nil {
			config.Crawler.RequestDelay = rd
		}
	}
	if maxURLs := os.Getenv("COVERA_CRAWLER_MAX_URLS"); maxURLs != "" {
		if mu, err := strconv.Atoi(maxURLs); err == nil {
			config.Crawler.MaxURLs = mu
		}
	}
	if enableJS := os.Getenv("COVERA_CRAWLER_ENABLE_JAVASCRIPT"); enableJS != "" {
		if ej, err := strconv.ParseBool(enableJS); err == nil {
			config.Crawler.EnableJavaScript = ej
		}
	}

	// Pipeline configuration
	if maxWorkers := os.Getenv("COVERA_PIPELINE_MAX_WORKERS"); maxWorkers != "" {
		if mw, err := strconv.Atoi(maxWorkers); err == nil {
			config.Pipeline.MaxWorkers = mw
		}
	}
	if batchSize := os.Getenv("COVERA_PIPELINE_BATCH_SIZE"); batchSize != "" {
		if bs, err := strconv.Atoi(batchSize); err == nil {
			config.Pipeline.BatchSize = bs
		}
	}
	if queueSize := os.Getenv("COVERA_PIPELINE_QUEUE_SIZE"); queueSize != "" {
		if qs, err := strconv.Atoi(queueSize); err == nil {
			config.Pipeline.QueueSize = qs
		}
	}
	if flushPoll := os.Getenv("COVERA_PIPELINE_FLUSH_POLL"); flushPoll != "" {
		if fp, err := time.ParseDuration(flushPoll); err == nil {
			config.Pipeline.FlushPoll = fp
		}
	}

	// Classifier configuration
	if provider := os.Getenv("COVERA_CLASSIFIER_PROVIDER"); provider != "" {
		config.Classifier.Provider = provider
	}

	// Claude configuration
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if apiKey := os.Getenv("COVERA_CLAUDE_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey // COVERA_ prefix takes priority
	}
	if model := os.Getenv("COVERA_CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}

	// Gemini configuration
	if apiKey := os.Getenv("GOOGLE_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	}
	if apiKey := os.Getenv("COVERA_GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	}
	if model := os.Getenv("COVERA_GEMINI_MODEL"); model != "" {
		config.Gemini.Model = model
	}

	// Pricing and category tables
	if ratesFile := os.Getenv("COVERA_PRICING_RATES_FILE"); ratesFile != "" {
		config.Pricing.RatesFile = ratesFile
	}
	if categoriesFile := os.Getenv("COVERA_CATEGORIES_FILE"); categoriesFile != "" {
		config.Categories.File = categoriesFile
	}

	// WebSocket configuration
	if throttle := os.Getenv("COVERA_WEBSOCKET_THROTTLE_INTERVAL"); throttle != "" {
		if _, err := time.ParseDuration(throttle); err == nil {
			config.WebSocket.ThrottleInterval = throttle
		}
	}

	// Scheduler and metrics
	if enabled := os.Getenv("COVERA_SCHEDULER_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Scheduler.Enabled = e
		}
	}
	if enabled := os.Getenv("COVERA_METRICS_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Metrics.Enabled = e
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks values that would otherwise fail deep inside a run
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case "badger", "postgres":
	default:
		return fmt.Errorf("invalid storage.type %q: expected badger or postgres", c.Storage.Type)
	}
	if c.Storage.Type == "postgres" && c.Storage.Postgres.DSN == "" {
		return fmt.Errorf("storage.postgres.dsn is required when storage.type is postgres")
	}

	switch c.Classifier.Provider {
	case "rules", "claude", "gemini":
	default:
		return fmt.Errorf("invalid classifier.provider %q: expected rules, claude or gemini", c.Classifier.Provider)
	}

	if c.Pipeline.MaxWorkers <= 0 {
		return fmt.Errorf("pipeline.max_workers must be positive, got %d", c.Pipeline.MaxWorkers)
	}
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("pipeline.batch_size must be positive, got %d", c.Pipeline.BatchSize)
	}
	if c.Pipeline.QueueSize <= 0 {
		return fmt.Errorf("pipeline.queue_size must be positive, got %d", c.Pipeline.QueueSize)
	}

	if c.Scheduler.Enabled {
		for _, entry := range c.Scheduler.Entries {
			if err := ValidateJobSchedule(entry.Schedule); err != nil {
				return fmt.Errorf("scheduler entry %q: %w", entry.Name, err)
			}
			if !strings.HasPrefix(entry.StartURL, "http://") && !strings.HasPrefix(entry.StartURL, "https://") {
				return fmt.Errorf("scheduler entry %q: start_url must be http or https", entry.Name)
			}
		}
	}

	return nil
}

// ValidateJobSchedule checks a 5-field cron expression and enforces a minimum 5 minute interval
func ValidateJobSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", schedule, err)
	}

	first := sched.Next(time.Now())
	second := sched.Next(first)
	if second.Sub(first) < 5*time.Minute {
		return fmt.Errorf("schedule %q runs more often than every 5 minutes", schedule)
	}
	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// DeepCloneConfig creates a deep copy of the Config struct
func DeepCloneConfig(c *Config) *Config {
	if c == nil {
		return nil
	}

	clone := *c

	if len(c.Logging.Output) > 0 {
		clone.Logging.Output = make([]string, len(c.Logging.Output))
		copy(clone.Logging.Output, c.Logging.Output)
	}

	if len(c.Scheduler.Entries) > 0 {
		clone.Scheduler.Entries = make([]ScheduledEntry, len(c.Scheduler.Entries))
		for i, entry := range c.Scheduler.Entries {
			entry.Categories = append([]string(nil), entry.Categories...)
			clone.Scheduler.Entries[i] = entry
		}
	}

	// Secrets are never exposed through a cloned config
	clone.Claude.APIKey = ""
	clone.Gemini.APIKey = ""
	clone.Storage.Postgres.DSN = ""

	return &clone
}

func splitList(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
