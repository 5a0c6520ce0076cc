package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server         ServerConfig
	Log            LogConfig
	USDA           USDAConfig
	ChildNutrition ChildNutritionConfig
	Spoonacular    SpoonacularConfig
	Edamam         EdamamConfig
	OpenFoodFacts  OpenFoodFactsConfig
	Cache          CacheConfig
	Aggregator     AggregatorConfig
	RateLimit      RateLimitConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LogConfig selects the log level and encoding ("json" or "console")
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// USDAConfig holds USDA FoodData Central configuration
type USDAConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// ChildNutritionConfig points at the imported Child Nutrition database
type ChildNutritionConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// SpoonacularConfig holds recipe API configuration
type SpoonacularConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// EdamamConfig holds nutrition analysis API configuration
type EdamamConfig struct {
	AppID   string `mapstructure:"app_id"`
	AppKey  string `mapstructure:"app_key"`
	BaseURL string `mapstructure:"base_url"`
}

// OpenFoodFactsConfig holds product lookup configuration
type OpenFoodFactsConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	UserAgent string `mapstructure:"user_agent"`
}

// CacheConfig holds cache-related configuration
type CacheConfig struct {
	Type        string        `mapstructure:"type"` // only "memory"
	MaxEntries  int           `mapstructure:"max_entries"`
	OKTTL       time.Duration `mapstructure:"ok_ttl"`
	NegativeTTL time.Duration `mapstructure:"negative_ttl"`
}

// AggregatorConfig holds fan-out and paging configuration
type AggregatorConfig struct {
	AdapterTimeout  time.Duration `mapstructure:"adapter_timeout"`
	DefaultPageSize int           `mapstructure:"default_page_size"`
	MaxPageSize     int           `mapstructure:"max_page_size"`
	DefaultBackoff  time.Duration `mapstructure:"default_backoff"`
	SuggestionLimit int           `mapstructure:"suggestion_limit"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	PerIP       int     `mapstructure:"per_ip"` // requests per minute
	PerIPBurst  int     `mapstructure:"per_ip_burst"`
	USDA        int     `mapstructure:"usda"`        // requests per hour
	Spoonacular float64 `mapstructure:"spoonacular"` // requests per second
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/nutriplan/")

	// NUTRIPLAN_USDA_API_KEY -> usda.api_key
	v.SetEnvPrefix("NUTRIPLAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set default values
	setDefaults(v)

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile copies KEY=value pairs from ./.env into the process
// environment. Variables that are already set win.
func loadEnvFile() error {
	if _, err := os.Stat(".env"); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	env := viper.New()
	env.SetConfigFile(".env")
	env.SetConfigType("env")
	if err := env.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading .env file: %w", err)
	}

	for _, key := range env.AllKeys() {
		name := strings.ToUpper(key)
		if _, set := os.LookupEnv(name); set {
			continue
		}
		if err := os.Setenv(name, env.GetString(key)); err != nil {
			return fmt.Errorf("error setting %s: %w", name, err)
		}
	}
	return nil
}

// setDefaults sets default configuration values. Keys without a useful
// default are still registered so AutomaticEnv can fill them on Unmarshal.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173", "http://localhost:3000"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("usda.api_key", "")
	v.SetDefault("usda.base_url", "https://api.nal.usda.gov/fdc")

	v.SetDefault("childnutrition.db_path", "data/childnutrition.db")

	v.SetDefault("spoonacular.api_key", "")
	v.SetDefault("spoonacular.base_url", "https://api.spoonacular.com")

	v.SetDefault("edamam.app_id", "")
	v.SetDefault("edamam.app_key", "")
	v.SetDefault("edamam.base_url", "https://api.edamam.com")

	v.SetDefault("openfoodfacts.base_url", "https://world.openfoodfacts.org")
	v.SetDefault("openfoodfacts.user_agent", "NutriPlan/1.0 (+https://github.com/nutriplan)")

	// Cache defaults
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.max_entries", 10000)
	v.SetDefault("cache.ok_ttl", "30m")
	v.SetDefault("cache.negative_ttl", "30s")

	v.SetDefault("aggregator.adapter_timeout", "3s")
	v.SetDefault("aggregator.default_page_size", 20)
	v.SetDefault("aggregator.max_page_size", 100)
	v.SetDefault("aggregator.default_backoff", "30s")
	v.SetDefault("aggregator.suggestion_limit", 10)

	// Rate limit defaults
	v.SetDefault("ratelimit.per_ip", 100)
	v.SetDefault("ratelimit.per_ip_burst", 20)
	v.SetDefault("ratelimit.usda", 1000)
	v.SetDefault("ratelimit.spoonacular", 1.0)
}

// validate validates the configuration. Missing provider credentials are
// not errors: those providers are simply not registered.
func validate(config *Config) error {
	if config.Cache.Type != "memory" {
		return fmt.Errorf("cache type must be 'memory', got: %s", config.Cache.Type)
	}

	if config.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache max_entries must be positive, got: %d", config.Cache.MaxEntries)
	}

	if config.Cache.NegativeTTL >= config.Cache.OKTTL {
		return fmt.Errorf("cache negative_ttl (%s) must be shorter than ok_ttl (%s)", config.Cache.NegativeTTL, config.Cache.OKTTL)
	}

	if config.Aggregator.MaxPageSize < 1 {
		return fmt.Errorf("aggregator max_page_size must be at least 1, got: %d", config.Aggregator.MaxPageSize)
	}

	if config.Aggregator.DefaultPageSize < 1 || config.Aggregator.DefaultPageSize > config.Aggregator.MaxPageSize {
		return fmt.Errorf("aggregator default_page_size must be between 1 and %d, got: %d",
			config.Aggregator.MaxPageSize, config.Aggregator.DefaultPageSize)
	}

	if config.Aggregator.AdapterTimeout <= 0 {
		return fmt.Errorf("aggregator adapter_timeout must be positive, got: %s", config.Aggregator.AdapterTimeout)
	}

	return nil
}
