package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

type Config struct {
	Database struct {
		Path string
	}
	Server struct {
		Port int
	}
	Messenger struct {
		Provider string // "telegram" or "slack"
		BotToken string // default bot token when a rule has no override
		ChatID   string // default chat/group id when a rule has no override
	}
	Delivery struct {
		TimeoutSeconds    int
		MaxRetries        int
		RetryDelaySeconds int
	}
	Scheduler struct {
		ResolutionSeconds int
		Workers           int
	}
	Events struct {
		Shards    int
		QueueSize int
	}
	Report struct {
		Enabled  bool
		SMTPHost string
		SMTPPort int
		From     string
		Password string
		To       []string
	}
}

// LoadConfig loads the configuration from config.yaml
func LoadConfig() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	viper.SetDefault("database.path", "data/formeye.db")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("messenger.provider", "telegram")
	viper.SetDefault("delivery.timeoutseconds", 10)
	viper.SetDefault("delivery.maxretries", 3)
	viper.SetDefault("delivery.retrydelayseconds", 1)
	viper.SetDefault("scheduler.resolutionseconds", 60)
	viper.SetDefault("scheduler.workers", 8)
	viper.SetDefault("events.shards", 4)
	viper.SetDefault("events.queuesize", 256)

	var config Config

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found, write one with the defaults
			if err := os.MkdirAll("data", 0755); err != nil {
				fmt.Printf("Warning: Failed to create data directory: %v\n", err)
			}
			if err := viper.SafeWriteConfig(); err != nil {
				fmt.Printf("Warning: Failed to write default config: %v\n", err)
			}
		} else {
			fmt.Printf("Error reading config file: %v\n", err)
		}
	}

	if err := viper.Unmarshal(&config); err != nil {
		fmt.Printf("Error unmarshaling config: %v\n", err)
	}

	return &config
}
