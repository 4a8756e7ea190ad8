package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

type DigestConfig struct {
	CronSecret      string        `mapstructure:"cron_secret"`
	BatchSize       int           `mapstructure:"batch_size"`
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout"`
	LookbackWindow  time.Duration `mapstructure:"lookback_window"`
	TestMatchLimit  int           `mapstructure:"test_match_limit"`
}

type EmailConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
	From     string `mapstructure:"from"`
	FromName string `mapstructure:"from_name"`
	BaseURL  string `mapstructure:"base_url"`
}

type WorkerConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type Config struct {
	DatabaseURL string       `mapstructure:"database_url"`
	ServerPort  string       `mapstructure:"server_port"`
	JWTSecret   string       `mapstructure:"jwt_secret"`
	Digest      DigestConfig `mapstructure:"digest"`
	Email       EmailConfig  `mapstructure:"email"`
	Worker      WorkerConfig `mapstructure:"worker"`
}

// Load reads the configuration from a YAML file and returns a Config instance.
func Load() *Config {
	v := viper.New()

	// Look for config in the current directory and ./config
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.AddConfigPath("./config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		log.Fatalf("Error unmarshalling config: %v", err)
	}

	// Fallback defaults
	if config.ServerPort == "" {
		config.ServerPort = "8080"
	}

	if config.JWTSecret == "" {
		log.Fatal("JWT secret must be set in the config file")
	}
	if config.Digest.CronSecret == "" {
		log.Fatal("Digest cron secret must be set in the config file")
	}

	if config.Digest.BatchSize <= 0 {
		config.Digest.BatchSize = 50
	}
	if config.Digest.DeliveryTimeout <= 0 {
		config.Digest.DeliveryTimeout = 15 * time.Second
	}
	if config.Digest.LookbackWindow <= 0 {
		config.Digest.LookbackWindow = 24 * time.Hour
	}
	if config.Digest.TestMatchLimit <= 0 {
		config.Digest.TestMatchLimit = 20
	}
	if config.Email.Endpoint == "" {
		config.Email.Endpoint = "https://api.resend.com/emails"
	}
	if config.Email.BaseURL == "" {
		config.Email.BaseURL = "https://app.marchespei.re"
	}

	return &config
}
