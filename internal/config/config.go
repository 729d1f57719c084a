package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Directory  DirectoryConfig  `yaml:"directory" mapstructure:"directory"`
	Mailbox    MailboxConfig    `yaml:"mailbox" mapstructure:"mailbox"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Sync       SyncConfig       `yaml:"sync" mapstructure:"sync"`
	Dedupe     DedupeConfig     `yaml:"dedupe" mapstructure:"dedupe"`
	Ingest     IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
	Secrets    SecretsConfig    `yaml:"secrets" mapstructure:"secrets"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// DirectoryConfig holds business-directory API settings.
type DirectoryConfig struct {
	APIKey    string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	Query     string  `yaml:"query" mapstructure:"query"`
}

// MailboxConfig holds mailbox provider OAuth settings.
type MailboxConfig struct {
	ClientID     string `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret string `yaml:"client_secret" mapstructure:"client_secret"`
	RefreshToken string `yaml:"refresh_token" mapstructure:"refresh_token"`
	Query        string `yaml:"query" mapstructure:"query"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	ClientID  string  `yaml:"client_id" mapstructure:"client_id"`
	Username  string  `yaml:"username" mapstructure:"username"`
	KeyPath   string  `yaml:"key_path" mapstructure:"key_path"`
	LoginURL  string  `yaml:"login_url" mapstructure:"login_url"`
	Where     string  `yaml:"where" mapstructure:"where"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// SyncConfig configures provider sync runs.
type SyncConfig struct {
	PageSize       int           `yaml:"page_size" mapstructure:"page_size"`
	MaxResults     int           `yaml:"max_results" mapstructure:"max_results"`
	PageDelay      time.Duration `yaml:"page_delay" mapstructure:"page_delay"`
	MaxAttempts    int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay" mapstructure:"retry_base_delay"`
	CreateTasks    bool          `yaml:"create_tasks" mapstructure:"create_tasks"`
	DedupeBySource bool          `yaml:"dedupe_by_source" mapstructure:"dedupe_by_source"`
}

// DedupeConfig configures duplicate-candidate detection.
type DedupeConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
}

// IngestConfig configures file ingestion.
type IngestConfig struct {
	OutputPath string `yaml:"output_path" mapstructure:"output_path"`
}

// SecretsConfig configures the env-file secret store.
type SecretsConfig struct {
	EnvFile string `yaml:"env_file" mapstructure:"env_file"`
	Prefix  string `yaml:"prefix" mapstructure:"prefix"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks the configuration for a command mode. Modes: "ingest"
// needs no backend credentials; "sync" and "migrate" need a reachable
// store.
func (c *Config) Validate(mode string) error {
	var missing []string

	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		missing = append(missing, "store.driver must be postgres or sqlite")
	}

	if c.Dedupe.SimilarityThreshold < 0 || c.Dedupe.SimilarityThreshold > 1 {
		missing = append(missing, "dedupe.similarity_threshold must be between 0 and 1")
	}
	if c.Sync.PageSize < 1 || c.Sync.PageSize > 500 {
		missing = append(missing, "sync.page_size must be between 1 and 500")
	}
	if c.Sync.MaxAttempts < 1 || c.Sync.MaxAttempts > 10 {
		missing = append(missing, "sync.max_attempts must be between 1 and 10")
	}

	switch mode {
	case "ingest":
		// File ingestion needs no store credentials.
	case "sync", "migrate":
		if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
			missing = append(missing, "store.database_url is required")
		}
		if c.Store.Driver == "sqlite" && c.Store.SQLitePath == "" {
			missing = append(missing, "store.sqlite_path is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(missing) > 0 {
		return eris.Errorf("config: invalid configuration:\n  - %s", strings.Join(missing, "\n  - "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CONTACTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.sqlite_path", "contacts.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("directory.rate_limit", 5.0)
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("salesforce.rate_limit", 5.0)
	v.SetDefault("sync.page_size", 50)
	v.SetDefault("sync.page_delay", 200*time.Millisecond)
	v.SetDefault("sync.max_attempts", 3)
	v.SetDefault("sync.retry_base_delay", 500*time.Millisecond)
	v.SetDefault("sync.create_tasks", true)
	v.SetDefault("sync.dedupe_by_source", true)
	v.SetDefault("dedupe.similarity_threshold", 0.88)
	v.SetDefault("ingest.output_path", "-")
	v.SetDefault("secrets.env_file", ".env")

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
