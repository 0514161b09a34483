package config

import (
	"time"

	yamlenv "github.com/ifuryst/go-yaml-env"

	"github.com/joaomazul/LinkedFlow-sub001/pkg/logger"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Logger    logger.Config   `yaml:"logger"`
	LinkedIn  LinkedInConfig  `yaml:"linkedin"`
	AI        AIConfig        `yaml:"ai"`
	Trigger   TriggerConfig   `yaml:"trigger"`
	Poller    PollerConfig    `yaml:"poller"`
	Executor  ExecutorConfig  `yaml:"executor"`
	Campaigns CampaignsConfig `yaml:"campaigns"`
	Stats     StatsConfig     `yaml:"stats"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	Host     string `yaml:"host"`
	Mode     string `yaml:"mode"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	TimeZone string `yaml:"timezone"`
}

type LinkedInConfig struct {
	BaseURL  string        `yaml:"base_url"`
	Token    string        `yaml:"token"`
	Timeout  time.Duration `yaml:"timeout"`
	PageSize int           `yaml:"page_size"`
}

type AIConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`

	// Fixed-window quota for generation calls, keyed per owner.
	RateLimit  int           `yaml:"rate_limit"`
	RateWindow time.Duration `yaml:"rate_window"`
}

type TriggerConfig struct {
	// Shared secret expected in the Authorization header of cron calls.
	Secret  string `yaml:"secret"`
	Enabled bool   `yaml:"enabled"`

	// Optional TOTP secret; when set, destructive admin operations
	// require a valid code in X-Totp-Code.
	TOTPSecret string `yaml:"totp_secret"`
}

type PollerConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Interval   time.Duration `yaml:"interval"`
	BatchSize  int           `yaml:"batch_size"`
	BatchDelay time.Duration `yaml:"batch_delay"`
}

type ExecutorConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Interval       time.Duration `yaml:"interval"`
	MinActionDelay time.Duration `yaml:"min_action_delay"`
	ActionStagger  time.Duration `yaml:"action_stagger"`

	// Fixed-window quota for outbound actions, keyed per account.
	RateLimit  int           `yaml:"rate_limit"`
	RateWindow time.Duration `yaml:"rate_window"`
}

type CampaignsConfig struct {
	MaxActive         int `yaml:"max_active"`
	DefaultWindowDays int `yaml:"default_window_days"`
}

type StatsConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	RetentionDays int           `yaml:"retention_days"`
}

func LoadConfig(configPath string) (*Config, error) {
	cfg, err := yamlenv.LoadConfig[Config](configPath)
	if err != nil {
		return nil, err
	}

	// Set default values
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5380
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.TimeZone == "" {
		cfg.Database.TimeZone = "UTC"
	}
	if cfg.LinkedIn.BaseURL == "" {
		cfg.LinkedIn.BaseURL = "https://api.linkedin.com"
	}
	if cfg.LinkedIn.Timeout == 0 {
		cfg.LinkedIn.Timeout = 30 * time.Second
	}
	if cfg.LinkedIn.PageSize == 0 {
		cfg.LinkedIn.PageSize = 100
	}
	if cfg.AI.BaseURL == "" {
		cfg.AI.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.AI.Model == "" {
		cfg.AI.Model = "gpt-4o-mini"
	}
	if cfg.AI.MaxTokens == 0 {
		cfg.AI.MaxTokens = 600
	}
	if cfg.AI.Timeout == 0 {
		cfg.AI.Timeout = 60 * time.Second
	}
	if cfg.AI.RateLimit == 0 {
		cfg.AI.RateLimit = 30
	}
	if cfg.AI.RateWindow == 0 {
		cfg.AI.RateWindow = time.Hour
	}
	if cfg.Poller.Interval == 0 {
		cfg.Poller.Interval = 10 * time.Minute
	}
	if cfg.Poller.BatchSize == 0 {
		cfg.Poller.BatchSize = 3
	}
	if cfg.Poller.BatchDelay == 0 {
		cfg.Poller.BatchDelay = 2 * time.Second
	}
	if cfg.Executor.Interval == 0 {
		cfg.Executor.Interval = 5 * time.Minute
	}
	if cfg.Executor.MinActionDelay == 0 {
		cfg.Executor.MinActionDelay = 45 * time.Second
	}
	if cfg.Executor.ActionStagger == 0 {
		cfg.Executor.ActionStagger = 3 * time.Minute
	}
	if cfg.Executor.RateLimit == 0 {
		cfg.Executor.RateLimit = 25
	}
	if cfg.Executor.RateWindow == 0 {
		cfg.Executor.RateWindow = 24 * time.Hour
	}
	if cfg.Campaigns.MaxActive == 0 {
		cfg.Campaigns.MaxActive = 3
	}
	if cfg.Campaigns.DefaultWindowDays == 0 {
		cfg.Campaigns.DefaultWindowDays = 7
	}
	if cfg.Stats.Interval == 0 {
		cfg.Stats.Interval = 30 * time.Minute
	}
	if cfg.Stats.RetentionDays == 0 {
		cfg.Stats.RetentionDays = 90
	}

	return cfg, nil
}
