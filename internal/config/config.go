package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"techdigest/internal/core"
)

// Config holds all application configuration
type Config struct {
	App      App      `mapstructure:"app"`
	Database Database `mapstructure:"database"`
	AI       AI       `mapstructure:"ai"`
	Email    Email    `mapstructure:"email"`
	Feeds    Feeds    `mapstructure:"feeds"`
	Pipeline Pipeline `mapstructure:"pipeline"`
	Schedule Schedule `mapstructure:"schedule"`
	Server   Server   `mapstructure:"server"`
	Logging  Logging  `mapstructure:"logging"`
}

// App holds general application configuration
type App struct {
	Name    string `mapstructure:"name"`
	Debug   bool   `mapstructure:"debug"`
	DataDir string `mapstructure:"data_dir"`
}

// Database holds store configuration
type Database struct {
	Driver  string `mapstructure:"driver"`
	DSN     string `mapstructure:"dsn"`
	Timeout string `mapstructure:"timeout"`
}

// AI holds AI/LLM configuration
type AI struct {
	Provider         string       `mapstructure:"provider"` // gemini, openai, or empty to pick by available key
	ThrottleInterval string       `mapstructure:"throttle_interval"`
	Timeout          string       `mapstructure:"timeout"`
	CircuitBreaker   bool         `mapstructure:"circuit_breaker"`
	Gemini           GeminiConfig `mapstructure:"gemini"`
	OpenAI           OpenAIConfig `mapstructure:"openai"`
}

// GeminiConfig holds Google Gemini configuration
type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// OpenAIConfig holds OpenAI configuration
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

// Email holds email configuration
type Email struct {
	Transport   string     `mapstructure:"transport"` // smtp or log
	SMTP        SMTPConfig `mapstructure:"smtp"`
	FromAddress string     `mapstructure:"from_address"`
	FromName    string     `mapstructure:"from_name"`
	Timeout     string     `mapstructure:"timeout"`
}

// SMTPConfig holds SMTP configuration
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// Feeds holds RSS/feed configuration
type Feeds struct {
	UserAgent       string `mapstructure:"user_agent"`
	Timeout         string `mapstructure:"timeout"`
	MaxItemsPerFeed int    `mapstructure:"max_items_per_feed"`
}

// Pipeline holds batch sizes for the stages
type Pipeline struct {
	ScoreBatchSize int    `mapstructure:"score_batch_size"`
	SeedFile       string `mapstructure:"seed_file"`
}

// Schedule holds the calendar used to evaluate delivery days
type Schedule struct {
	Timezone string `mapstructure:"timezone"`
}

// Server holds HTTP trigger configuration
type Server struct {
	Host         string   `mapstructure:"host"`
	Port         int      `mapstructure:"port"`
	ReadTimeout  string   `mapstructure:"read_timeout"`
	WriteTimeout string   `mapstructure:"write_timeout"`
	CORSOrigins  []string `mapstructure:"cors_origins"`
	TriggerToken string   `mapstructure:"trigger_token"` // Bearer token for /functions; empty leaves them open
	Metrics      bool     `mapstructure:"metrics"`       // Serve Prometheus metrics at /metrics
	Cron         Cron     `mapstructure:"cron"`
}

// Cron holds standard five-field cron specs for in-process stage runs.
// An empty spec leaves the stage to external triggers.
type Cron struct {
	Gather  string `mapstructure:"gather"`
	Process string `mapstructure:"process"`
	Send    string `mapstructure:"send"`
}

// Logging holds logging configuration
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// Load loads the configuration from .env, an optional config file and the environment
func Load(configFile string) (*Config, error) {
	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
		}
	}

	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
		v.SetConfigName(".techdigest")
		v.SetConfigType("yaml")
	}

	setDefaults(v)
	bindEnvironmentVariables(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := postProcessConfig(config); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrConfiguration, err)
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "techdigest")
	v.SetDefault("app.debug", false)
	v.SetDefault("app.data_dir", "data")

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", filepath.Join("data", "techdigest.db"))
	v.SetDefault("database.timeout", "5s")

	v.SetDefault("ai.provider", "")
	v.SetDefault("ai.throttle_interval", "1s")
	v.SetDefault("ai.timeout", "30s")
	v.SetDefault("ai.circuit_breaker", true)
	v.SetDefault("ai.gemini.model", "gemini-1.5-flash")
	v.SetDefault("ai.openai.model", "gpt-3.5-turbo")
	v.SetDefault("ai.openai.base_url", "https://api.openai.com/v1")

	v.SetDefault("email.transport", "smtp")
	v.SetDefault("email.smtp.host", "smtp.gmail.com")
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.from_name", "Streaming Industry Newsletter")
	v.SetDefault("email.timeout", "30s")

	v.SetDefault("feeds.user_agent", "techdigest/1.0")
	v.SetDefault("feeds.timeout", "30s")
	v.SetDefault("feeds.max_items_per_feed", core.MaxFeedItems)

	v.SetDefault("pipeline.score_batch_size", core.ScoreBatchSize)
	v.SetDefault("pipeline.seed_file", filepath.Join("config", "newsletter-config.yaml"))

	v.SetDefault("schedule.timezone", "UTC")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "10m")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.metrics", true)
	v.SetDefault("server.cron.gather", "")
	v.SetDefault("server.cron.process", "")
	v.SetDefault("server.cron.send", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")
}

// bindEnvironmentVariables sets up flexible environment variable binding
func bindEnvironmentVariables(v *viper.Viper) {
	bindEnvKeys(v, "ai.gemini.api_key", []string{
		"GEMINI_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
		"GOOGLE_AI_API_KEY",
	})

	bindEnvKeys(v, "ai.openai.api_key", []string{
		"OPENAI_API_KEY",
	})

	bindEnvKeys(v, "ai.openai.base_url", []string{
		"OPENAI_BASE_URL",
	})

	bindEnvKeys(v, "database.dsn", []string{
		"DATABASE_URL",
		"DB_DSN",
	})

	bindEnvKeys(v, "email.smtp.host", []string{
		"SMTP_HOST",
		"EMAIL_SMTP_HOST",
	})

	bindEnvKeys(v, "email.smtp.port", []string{
		"SMTP_PORT",
		"EMAIL_SMTP_PORT",
	})

	bindEnvKeys(v, "email.smtp.username", []string{
		"SMTP_USERNAME",
		"EMAIL_USER",
		"EMAIL_USERNAME",
	})

	bindEnvKeys(v, "email.smtp.password", []string{
		"SMTP_PASSWORD",
		"EMAIL_PASSWORD",
	})

	bindEnvKeys(v, "email.from_address", []string{
		"EMAIL_FROM",
	})

	bindEnvKeys(v, "app.debug", []string{
		"DEBUG",
		"TECHDIGEST_DEBUG",
	})

	bindEnvKeys(v, "server.port", []string{
		"PORT",
	})

	bindEnvKeys(v, "server.trigger_token", []string{
		"TRIGGER_API_KEY",
		"ADMIN_API_KEY",
	})
}

// bindEnvKeys binds the first found environment variable to a viper key
func bindEnvKeys(v *viper.Viper, viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			v.Set(viperKey, value)
			return
		}
	}
}

// postProcessConfig applies post-processing to configuration values
func postProcessConfig(config *Config) error {
	if config.App.DataDir != "" {
		config.App.DataDir = expandPath(config.App.DataDir)
	}
	if config.Pipeline.SeedFile != "" {
		config.Pipeline.SeedFile = expandPath(config.Pipeline.SeedFile)
	}

	dsn := config.Database.DSN
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		config.Database.Driver = "postgres"
	} else if isSQLite(config.Database.Driver) {
		config.Database.DSN = expandPath(dsn)
	}

	if config.Email.FromAddress == "" {
		config.Email.FromAddress = config.Email.SMTP.Username
	}

	// Validate durations
	durations := map[string]string{
		"database.timeout":     config.Database.Timeout,
		"ai.throttle_interval": config.AI.ThrottleInterval,
		"ai.timeout":           config.AI.Timeout,
		"email.timeout":        config.Email.Timeout,
		"feeds.timeout":        config.Feeds.Timeout,
		"server.read_timeout":  config.Server.ReadTimeout,
		"server.write_timeout": config.Server.WriteTimeout,
	}

	for key, duration := range durations {
		if duration != "" {
			if _, err := time.ParseDuration(duration); err != nil {
				return fmt.Errorf("invalid duration for %s: %s", key, duration)
			}
		}
	}

	return nil
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

func isSQLite(driver string) bool {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3", "":
		return true
	}
	return false
}

// validateConfig checks settings that every command depends on.
// Credentials are checked per command by the Require helpers.
func validateConfig(config *Config) error {
	var errors []string

	switch strings.ToLower(config.Database.Driver) {
	case "postgres", "postgresql", "pq", "sqlite", "sqlite3":
	default:
		errors = append(errors, fmt.Sprintf("Unknown database driver: %s. Supported: postgres, sqlite3", config.Database.Driver))
	}

	switch config.AI.Provider {
	case "", "gemini", "openai":
	default:
		errors = append(errors, fmt.Sprintf("Unknown AI provider: %s. Supported: gemini, openai", config.AI.Provider))
	}

	switch config.Email.Transport {
	case "smtp", "log":
	default:
		errors = append(errors, fmt.Sprintf("Unknown email transport: %s. Supported: smtp, log", config.Email.Transport))
	}

	if _, err := time.LoadLocation(config.Schedule.Timezone); err != nil {
		errors = append(errors, fmt.Sprintf("Invalid schedule timezone %q: %v", config.Schedule.Timezone, err))
	}

	switch strings.ToLower(config.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("Unknown log level: %s", config.Logging.Level))
	}

	switch strings.ToLower(config.Logging.Format) {
	case "json", "text":
	default:
		errors = append(errors, fmt.Sprintf("Unknown log format: %s. Supported: json, text", config.Logging.Format))
	}

	if config.Feeds.MaxItemsPerFeed <= 0 {
		errors = append(errors, "feeds.max_items_per_feed must be positive")
	}
	if config.Pipeline.ScoreBatchSize <= 0 {
		errors = append(errors, "pipeline.score_batch_size must be positive")
	}
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		errors = append(errors, fmt.Sprintf("Invalid server port: %d", config.Server.Port))
	}

	if d, err := time.ParseDuration(config.AI.ThrottleInterval); err == nil && d < core.MinOracleInterval {
		errors = append(errors, fmt.Sprintf("ai.throttle_interval %s is below the minimum %s", d, core.MinOracleInterval))
	}

	for stage, spec := range map[string]string{
		"gather":  config.Server.Cron.Gather,
		"process": config.Server.Cron.Process,
		"send":    config.Server.Cron.Send,
	} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			errors = append(errors, fmt.Sprintf("Invalid server.cron.%s %q: %v", stage, spec, err))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("%w: configuration errors:\n- %s", core.ErrConfiguration, strings.Join(errors, "\n- "))
	}

	return nil
}

// OracleProvider resolves which LLM backend to use. An empty provider picks
// OpenAI when its key is present, then Gemini.
func (c *Config) OracleProvider() string {
	if c.AI.Provider != "" {
		return c.AI.Provider
	}
	if c.AI.OpenAI.APIKey != "" {
		return "openai"
	}
	return "gemini"
}

// RequireOracle fails when the selected LLM backend has no credentials
func (c *Config) RequireOracle() error {
	switch c.OracleProvider() {
	case "openai":
		if !isValidAPIKey(c.AI.OpenAI.APIKey) {
			return fmt.Errorf("%w: OpenAI API key is required. Set OPENAI_API_KEY or ai.openai.api_key", core.ErrConfiguration)
		}
	case "gemini":
		if !isValidAPIKey(c.AI.Gemini.APIKey) {
			return fmt.Errorf("%w: Gemini API key is required. Set GEMINI_API_KEY or ai.gemini.api_key", core.ErrConfiguration)
		}
	}
	return nil
}

// RequireMailer fails when the SMTP transport is selected without credentials
func (c *Config) RequireMailer() error {
	if c.Email.Transport != "smtp" {
		return nil
	}

	var missing []string
	if c.Email.SMTP.Host == "" {
		missing = append(missing, "SMTP host")
	}
	if c.Email.SMTP.Username == "" {
		missing = append(missing, "SMTP username (EMAIL_USER)")
	}
	if c.Email.SMTP.Password == "" {
		missing = append(missing, "SMTP password (EMAIL_PASSWORD)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", core.ErrConfiguration, strings.Join(missing, ", "))
	}
	return nil
}

// RequireDatabase fails when no connection string is configured
func (c *Config) RequireDatabase() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("%w: database dsn is required. Set DATABASE_URL or database.dsn", core.ErrConfiguration)
	}
	return nil
}

// Location returns the timezone used for schedule evaluation
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Duration parses value, returning fallback when it is empty or invalid
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// Addr returns the listen address for the HTTP server
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// isValidAPIKey checks if an API key is valid (not empty and not a placeholder)
func isValidAPIKey(apiKey string) bool {
	if apiKey == "" {
		return false
	}

	placeholders := []string{
		"your-api-key", "your-openai-key", "your-gemini-key",
		"YOUR_API_KEY", "PLACEHOLDER", "CHANGE_ME",
	}

	for _, placeholder := range placeholders {
		if apiKey == placeholder {
			return false
		}
	}

	return true
}
