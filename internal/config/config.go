// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"log"

	"github.com/spf13/viper"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Port        string `mapstructure:"PORT"`
	FeedAPIURL  string `mapstructure:"FEED_API_URL"`
	RedisURL    string `mapstructure:"REDIS_URL"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	JWTSecret   string `mapstructure:"JWT_SECRET"`
	PageSize    int    `mapstructure:"PAGE_SIZE"`
	HTTPTimeout int    `mapstructure:"HTTP_TIMEOUT_SECONDS"`
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() *Config {
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if errors.As(err, &notFoundErr) {
			log.Println("Config file not found; using environment variables and defaults")
		} else {
			log.Fatalf("Error reading config file: %s", err)
		}
	}

	// Set default values
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("FEED_API_URL", "http://localhost:3000/api")
	viper.SetDefault("REDIS_URL", "localhost:6379")
	viper.SetDefault("DATABASE_URL", "")
	viper.SetDefault("JWT_SECRET", "your-secret-key-change-in-production")
	viper.SetDefault("PAGE_SIZE", 20)
	viper.SetDefault("HTTP_TIMEOUT_SECONDS", 15)

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		log.Fatalf("Unable to decode config into struct, %v", err)
	}

	return &config
}
