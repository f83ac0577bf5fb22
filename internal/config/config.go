package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port int `yaml:"port" env:"SERVER_PORT"`
	} `yaml:"server"`
	Database struct {
		DSN string `yaml:"url" env:"DATABASE_URL"`
	} `yaml:"database"`
	Telegram struct {
		BotToken string `yaml:"bot_token" env:"TELEGRAM_BOT_TOKEN"`
		// Default escalation chat; 0 disables escalation unless the
		// creator names a chat on the task.
		EscalationChatID int64 `yaml:"escalation_chat_id" env:"ESCALATION_CHAT_ID"`
	} `yaml:"telegram"`
	Scheduler struct {
		TickSeconds            int `yaml:"tick_seconds"`
		DefaultIntervalMinutes int `yaml:"default_interval_minutes"`
		DefaultMaxPings        int `yaml:"default_max_pings"`
	} `yaml:"scheduler"`
	Email struct {
		SMTPHost        string `yaml:"smtp_host" env:"SMTP_HOST"`
		SMTPPort        int    `yaml:"smtp_port" env:"SMTP_PORT"`
		SMTPUser        string `yaml:"smtp_user" env:"SMTP_USER"`
		SMTPPassword    string `yaml:"smtp_password" env:"SMTP_PASSWORD"`
		FromEmail       string `yaml:"from_email"`
		SupervisorEmail string `yaml:"supervisor_email"`
	} `yaml:"email"`
}

// Load reads the YAML config file, then applies environment overrides (with a
// .env file honored when present). A missing config file is fine — everything
// can come from the environment and defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if f, err := os.Open(path); err == nil {
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Scheduler.TickSeconds <= 0 {
		cfg.Scheduler.TickSeconds = 60
	}
	if cfg.Scheduler.DefaultIntervalMinutes <= 0 {
		cfg.Scheduler.DefaultIntervalMinutes = 30
	}
	if cfg.Scheduler.DefaultMaxPings <= 0 {
		cfg.Scheduler.DefaultMaxPings = 5
	}
	return &cfg, nil
}

// EmailEnabled reports whether the escalation email copy is configured.
func (c *Config) EmailEnabled() bool {
	return c.Email.SMTPHost != "" && c.Email.SupervisorEmail != ""
}
