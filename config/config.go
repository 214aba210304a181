package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig
	Shopify    ShopifyConfig
	OpenAI     OpenAIConfig
	Retry      RetryConfig
	Optimizer  OptimizerConfig
	Meta       MetaConfig
	Metafields MetafieldsConfig
	Cache      CacheConfig
	Log        LogConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port              string   `mapstructure:"port"`
	Environment       string   `mapstructure:"environment"`
	AllowedOrigins    []string `mapstructure:"allowed_origins"`
	DashboardUser     string   `mapstructure:"dashboard_user"`
	DashboardPassword string   `mapstructure:"dashboard_password"`
}

// ShopifyConfig holds admin API configuration
type ShopifyConfig struct {
	StoreDomain string        `mapstructure:"store_domain"`
	AccessToken string        `mapstructure:"access_token"`
	APIVersion  string        `mapstructure:"api_version"`
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	RateLimit   float64       `mapstructure:"rate_limit"`
	RateBurst   int           `mapstructure:"rate_burst"`
	PageSize    int           `mapstructure:"page_size"`
}

// OpenAIConfig holds text generation API configuration
type OpenAIConfig struct {
	APIKey           string        `mapstructure:"api_key"`
	BaseURL          string        `mapstructure:"base_url"`
	Model            string        `mapstructure:"model"`
	Temperature      float64       `mapstructure:"temperature"`
	MaxTokens        int           `mapstructure:"max_tokens"`
	Timeout          time.Duration `mapstructure:"timeout"`
	StructuredOutput bool          `mapstructure:"structured_output"`
	SystemPrompt     string        `mapstructure:"system_prompt"`
}

// RetryConfig holds the backoff shared by both API clients
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// OptimizerConfig holds batch run configuration
type OptimizerConfig struct {
	BatchSize   int           `mapstructure:"batch_size"`
	ItemDelay   time.Duration `mapstructure:"item_delay"`
	DefaultMode string        `mapstructure:"default_mode"`
	DryRun      bool          `mapstructure:"dry_run"`
}

// MetaConfig holds SEO field limits and the brand suffix
type MetaConfig struct {
	TitleLimit           int      `mapstructure:"title_limit"`
	DescriptionLimit     int      `mapstructure:"description_limit"`
	BrandName            string   `mapstructure:"brand_name"`
	AppendBrand          bool     `mapstructure:"append_brand"`
	Transactional        bool     `mapstructure:"transactional"`
	TransactionalPhrases []string `mapstructure:"transactional_phrases"`
}

// MetafieldsConfig holds custom field detection configuration
type MetafieldsConfig struct {
	Namespace     string   `mapstructure:"namespace"`
	HeightHints   []string `mapstructure:"height_hints"`
	DiameterHints []string `mapstructure:"diameter_hints"`
	MirrorCount   int      `mapstructure:"mirror_count"`
}

// CacheConfig holds cache-related configuration
type CacheConfig struct {
	CollectionsTTL  time.Duration `mapstructure:"collections_ttl"`
	HandleCacheSize int           `mapstructure:"handle_cache_size"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Brand returns the meta title brand, empty when the suffix is disabled
func (m MetaConfig) Brand() string {
	if !m.AppendBrand {
		return ""
	}
	return strings.TrimSpace(m.BrandName)
}

// Load loads configuration from a .env file, environment variables and
// config files
func Load() (*Config, error) {
	if err := loadEnvFile(".env"); err != nil {
		return nil, err
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/shoprewrite/")

	// SHOPREWRITE_SHOPIFY_ACCESS_TOKEN -> shopify.access_token
	v.SetEnvPrefix("SHOPREWRITE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
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

// loadEnvFile loads variables from path without overriding ones already set.
// A missing file is not an error.
func loadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("error loading %s: %w", path, err)
	}
	return nil
}

// setDefaults sets default configuration values. Every key needs a default
// so AutomaticEnv can resolve it during Unmarshal.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.dashboard_user", "")
	v.SetDefault("server.dashboard_password", "")

	// Shopify defaults
	v.SetDefault("shopify.store_domain", "")
	v.SetDefault("shopify.access_token", "")
	v.SetDefault("shopify.api_version", "2024-01")
	v.SetDefault("shopify.base_url", "")
	v.SetDefault("shopify.timeout", "20s")
	v.SetDefault("shopify.rate_limit", 2.0)
	v.SetDefault("shopify.rate_burst", 4)
	v.SetDefault("shopify.page_size", 250)

	// OpenAI defaults
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.temperature", 0.7)
	v.SetDefault("openai.max_tokens", 900)
	v.SetDefault("openai.timeout", "60s")
	v.SetDefault("openai.structured_output", false)
	v.SetDefault("openai.system_prompt", "")

	// Retry defaults
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", "1s")
	v.SetDefault("retry.max_delay", "20s")

	// Optimizer defaults
	v.SetDefault("optimizer.batch_size", 10)
	v.SetDefault("optimizer.item_delay", "1500ms")
	v.SetDefault("optimizer.default_mode", "auto")
	v.SetDefault("optimizer.dry_run", false)

	// Meta defaults
	v.SetDefault("meta.title_limit", 60)
	v.SetDefault("meta.description_limit", 155)
	v.SetDefault("meta.brand_name", "")
	v.SetDefault("meta.append_brand", true)
	v.SetDefault("meta.transactional", false)
	v.SetDefault("meta.transactional_phrases", []string{
		"Gratis verzending vanaf €49",
		"Binnen 3 werkdagen geleverd",
		"Soepel retourbeleid",
		"Europese kwekers",
		"Top kwaliteit",
	})

	// Metafield defaults
	v.SetDefault("metafields.namespace", "custom")
	v.SetDefault("metafields.height_hints", []string{"height", "hoogte"})
	v.SetDefault("metafields.diameter_hints", []string{"diameter", "doorsnede", "potmaat", "pot_size", "pot_diameter"})
	v.SetDefault("metafields.mirror_count", 1)

	// Cache defaults
	v.SetDefault("cache.collections_ttl", "10m")
	v.SetDefault("cache.handle_cache_size", 2048)

	v.SetDefault("log.level", "")
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Shopify.StoreDomain == "" {
		return fmt.Errorf("Shopify store domain is required (set SHOPREWRITE_SHOPIFY_STORE_DOMAIN)")
	}
	if config.Shopify.AccessToken == "" {
		return fmt.Errorf("Shopify access token is required (set SHOPREWRITE_SHOPIFY_ACCESS_TOKEN)")
	}
	if config.OpenAI.APIKey == "" {
		return fmt.Errorf("OpenAI API key is required (set SHOPREWRITE_OPENAI_API_KEY)")
	}

	if config.Optimizer.BatchSize < 1 || config.Optimizer.BatchSize > 250 {
		return fmt.Errorf("optimizer batch size must be between 1 and 250, got: %d", config.Optimizer.BatchSize)
	}
	if config.Optimizer.ItemDelay < 0 {
		return fmt.Errorf("optimizer item delay must not be negative, got: %s", config.Optimizer.ItemDelay)
	}
	if config.Meta.TitleLimit <= 0 || config.Meta.DescriptionLimit <= 0 {
		return fmt.Errorf("meta limits must be positive, got title %d and description %d", config.Meta.TitleLimit, config.Meta.DescriptionLimit)
	}
	if n := len([]rune(" | " + config.Meta.Brand())); config.Meta.Brand() != "" && n >= config.Meta.TitleLimit {
		return fmt.Errorf("brand suffix of %d characters does not fit the meta title limit %d", n, config.Meta.TitleLimit)
	}
	if config.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be at least 1, got: %d", config.Retry.MaxAttempts)
	}
	if config.Shopify.PageSize < 1 || config.Shopify.PageSize > 250 {
		return fmt.Errorf("shopify page size must be between 1 and 250, got: %d", config.Shopify.PageSize)
	}
	if config.OpenAI.Temperature < 0 || config.OpenAI.Temperature > 2 {
		return fmt.Errorf("openai temperature must be between 0 and 2, got: %v", config.OpenAI.Temperature)
	}

	if (config.Server.DashboardUser == "") != (config.Server.DashboardPassword == "") {
		return fmt.Errorf("dashboard user and password must be set together")
	}

	return nil
}
