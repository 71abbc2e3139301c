package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env      string          `yaml:"env" env-default:"prod"`
	SEV      SEVConfig       `yaml:"sev"`
	Accounts []AccountConfig `yaml:"accounts"`
	Polling  PollingConfig   `yaml:"polling"`
	Sink     SinkConfig      `yaml:"sink"`
	Buffer   BufferConfig    `yaml:"buffer"`
	Health   HealthConfig    `yaml:"health"`
	Log      LogConfig       `yaml:"log"`
}

type SEVConfig struct {
	BaseURL  string        `yaml:"base_url" env-default:"https://api.sev.fo/api/CustomerRESTApi"`
	Timeout  time.Duration `yaml:"timeout" env-default:"10s"`
	TokenTTL time.Duration `yaml:"token_ttl" env-default:"3h"`
}

type AccountConfig struct {
	Name     string `yaml:"name"`
	UserName string `yaml:"user_name"`
	APIKey   string `yaml:"api_key"`
}

type PollingConfig struct {
	Interval time.Duration `yaml:"interval" env-default:"60m"`
	Timeout  time.Duration `yaml:"timeout" env-default:"30s"`
}

type SinkConfig struct {
	Type          string              `yaml:"type" env-default:"home_assistant"`
	HomeAssistant HomeAssistantConfig `yaml:"home_assistant"`
}

type HomeAssistantConfig struct {
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token" env:"HA_TOKEN"`
	Timeout time.Duration `yaml:"timeout" env-default:"10s"`
	Retry   RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" env-default:"3"`
	InitialDelay time.Duration `yaml:"initial_delay" env-default:"1s"`
	MaxDelay     time.Duration `yaml:"max_delay" env-default:"30s"`
}

type BufferConfig struct {
	Enabled bool          `yaml:"enabled" env-default:"true"`
	Path    string        `yaml:"path" env-default:"/var/lib/mittsev/buffer.db"`
	MaxAge  time.Duration `yaml:"max_age" env-default:"24h"`
}

type HealthConfig struct {
	Address string `yaml:"address" env-default:":8080"`
}

type LogConfig struct {
	Level  string `yaml:"level" env-default:"info"`
	Format string `yaml:"format" env-default:"json"`
}

func MustLoad(configPath string) *Config {
	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}

	if configPath == "" {
		configPath = "config/config.yaml"
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file not found: " + configPath)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("failed to read config: " + err.Error())
	}

	if err := cfg.Validate(); err != nil {
		panic("invalid config: " + err.Error())
	}

	return &cfg
}

// Validate rejects broken account and polling settings at setup time,
// so a misconfiguration never surfaces as a poll-time failure.
func (c *Config) Validate() error {
	if len(c.Accounts) == 0 {
		return fmt.Errorf("no accounts configured")
	}

	for i, acc := range c.Accounts {
		if acc.UserName == "" {
			return fmt.Errorf("account %d: user_name is required", i)
		}
		if acc.APIKey == "" {
			return fmt.Errorf("account %d (%s): api_key is required", i, acc.UserName)
		}
		if acc.Name == "" {
			c.Accounts[i].Name = acc.UserName
		}
	}

	if c.Polling.Interval <= 0 {
		return fmt.Errorf("polling interval must be positive, got %s", c.Polling.Interval)
	}

	switch c.Sink.Type {
	case "log":
	case "home_assistant":
		if c.Sink.HomeAssistant.URL == "" {
			return fmt.Errorf("sink.home_assistant.url is required")
		}
		if c.Sink.HomeAssistant.Token == "" {
			return fmt.Errorf("sink.home_assistant.token is required")
		}
	default:
		return fmt.Errorf("unknown sink type: %s", c.Sink.Type)
	}

	return nil
}
