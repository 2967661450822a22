/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the savings-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort             string `mapstructure:"SERVER_PORT"`
	DatabaseURL            string `mapstructure:"DATABASE_URL"`
	RedisURL               string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix   string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL            string `mapstructure:"RABBITMQ_URL"`
	SavingsEventExchange   string `mapstructure:"SAVINGS_EVENT_EXCHANGE"`
	PaystackBaseURL        string `mapstructure:"PAYSTACK_BASE_URL"`
	PaystackSecretKey      string `mapstructure:"PAYSTACK_SECRET_KEY"`
	PaymentCallbackURL     string `mapstructure:"PAYMENT_CALLBACK_URL"`
	PreferredVirtualBank   string `mapstructure:"PREFERRED_VIRTUAL_BANK"`
	DirectoryServiceURL    string `mapstructure:"DIRECTORY_SERVICE_URL"`
	DirectoryServiceAPIKey string `mapstructure:"DIRECTORY_SERVICE_API_KEY"`
	JWTSecret              string `mapstructure:"JWT_SECRET"`
	MarkRateLimitPerMinute int    `mapstructure:"MARK_RATE_LIMIT_PER_MINUTE"`
	ClaimTTLMinutes        int    `mapstructure:"CLAIM_TTL_MINUTES"`
	OverdueSweepCron       string `mapstructure:"OVERDUE_SWEEP_CRON"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SAVINGS_EVENT_EXCHANGE", "savings.events")
	viper.SetDefault("PAYSTACK_BASE_URL", "https://api.paystack.co")
	viper.SetDefault("PREFERRED_VIRTUAL_BANK", "wema-bank")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "kopkad:rate_limit")
	viper.SetDefault("MARK_RATE_LIMIT_PER_MINUTE", 30)
	viper.SetDefault("CLAIM_TTL_MINUTES", 60)
	viper.SetDefault("OVERDUE_SWEEP_CRON", "0 * * * *")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "SAVINGS_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("SAVINGS_EVENT_EXCHANGE")
	_ = viper.BindEnv("PAYSTACK_BASE_URL")
	_ = viper.BindEnv("PAYSTACK_SECRET_KEY")
	_ = viper.BindEnv("PAYMENT_CALLBACK_URL")
	_ = viper.BindEnv("PREFERRED_VIRTUAL_BANK")
	_ = viper.BindEnv("DIRECTORY_SERVICE_URL")
	_ = viper.BindEnv("DIRECTORY_SERVICE_API_KEY")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("MARK_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("CLAIM_TTL_MINUTES")
	_ = viper.BindEnv("OVERDUE_SWEEP_CRON")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "kopkad:rate_limit"
	}
	config.PaystackSecretKey = strings.TrimSpace(config.PaystackSecretKey)
	if config.PaystackSecretKey == "" {
		log.Printf("level=warn component=config msg=\"PAYSTACK_SECRET_KEY is not set; gateway calls and webhook verification will fail\"")
	}

	if config.MarkRateLimitPerMinute <= 0 {
		config.MarkRateLimitPerMinute = 30
	}
	if config.ClaimTTLMinutes <= 0 {
		config.ClaimTTLMinutes = 60
	}
	if strings.TrimSpace(config.OverdueSweepCron) == "" {
		config.OverdueSweepCron = "0 * * * *"
	}

	return
}
