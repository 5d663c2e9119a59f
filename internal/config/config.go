package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds the configuration for the application.
type Config struct {
	Server struct {
		Port int `mapstructure:"port"`
		TLS  struct {
			Enable    bool     `mapstructure:"enable"`
			CertFile  string   `mapstructure:"cert_file"`
			KeyFile   string   `mapstructure:"key_file"`
			Hostnames []string `mapstructure:"hostnames"`
		} `mapstructure:"tls"`
	} `mapstructure:"server"`
	DB struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"db"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`
	Queue struct {
		Backend    string `mapstructure:"backend"` // "local" or "redis"
		Stream     string `mapstructure:"stream"`
		Group      string `mapstructure:"group"`
		Consumer   string `mapstructure:"consumer"`
		BufferSize int    `mapstructure:"buffer_size"`
	} `mapstructure:"queue"`
	Worker struct {
		Enabled     bool `mapstructure:"enabled"`
		Concurrency int  `mapstructure:"concurrency"`
	} `mapstructure:"worker"`
	Cache struct {
		Backend string `mapstructure:"backend"` // "memory" or "redis"
	} `mapstructure:"cache"`
	LLM struct {
		APIKey         string `mapstructure:"api_key"`
		BaseURL        string `mapstructure:"base_url"`
		Model          string `mapstructure:"model"`
		TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	} `mapstructure:"llm"`
	Media struct {
		APIKey         string `mapstructure:"api_key"`
		BaseURL        string `mapstructure:"base_url"`
		PollIntervalMS int    `mapstructure:"poll_interval_ms"`
		TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	} `mapstructure:"media"`
	Storage struct {
		BaseURL    string `mapstructure:"base_url"`
		ServiceKey string `mapstructure:"service_key"`
		Bucket     string `mapstructure:"bucket"`
	} `mapstructure:"storage"`
	Deploy struct {
		Command        string `mapstructure:"command"`
		TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	} `mapstructure:"deploy"`
	Intake struct {
		RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
		RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	} `mapstructure:"intake"`
	SystemsDir string `mapstructure:"systems_dir"`
}

// LoadConfig loads the configuration from a file and the environment.
// An empty path falls back to config.yaml in the working directory or ./config.
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional; env vars and defaults carry a minimal setup.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Storage.BaseURL = strings.TrimRight(strings.TrimSpace(config.Storage.BaseURL), "/")
	config.LLM.BaseURL = strings.TrimRight(strings.TrimSpace(config.LLM.BaseURL), "/")
	config.Media.BaseURL = strings.TrimRight(strings.TrimSpace(config.Media.BaseURL), "/")

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", 5432)
	viper.SetDefault("db.sslmode", "disable")
	viper.SetDefault("queue.backend", "local")
	viper.SetDefault("queue.stream", "hub_jobs")
	viper.SetDefault("queue.group", "hub_workers")
	viper.SetDefault("queue.consumer", "worker-1")
	viper.SetDefault("queue.buffer_size", 512)
	viper.SetDefault("worker.enabled", true)
	viper.SetDefault("worker.concurrency", 5)
	viper.SetDefault("cache.backend", "memory")
	viper.SetDefault("llm.model", "gemini-2.5-flash")
	viper.SetDefault("llm.timeout_seconds", 60)
	viper.SetDefault("media.poll_interval_ms", 1000)
	viper.SetDefault("media.timeout_seconds", 600)
	viper.SetDefault("deploy.command", "modal")
	viper.SetDefault("deploy.timeout_seconds", 120)
	viper.SetDefault("intake.rate_limit_rps", 5)
	viper.SetDefault("intake.rate_limit_burst", 10)
	viper.SetDefault("systems_dir", "systems")
}
