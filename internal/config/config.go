package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig        `yaml:"app" mapstructure:"app"`
	Database   DatabaseConfig   `yaml:"database" mapstructure:"database"`
	Redis      RedisConfig      `yaml:"redis" mapstructure:"redis"`
	Admin      AdminConfig      `yaml:"admin" mapstructure:"admin"`
	Referral   ReferralConfig   `yaml:"referral" mapstructure:"referral"`
	Commission CommissionConfig `yaml:"commission" mapstructure:"commission"`
	Payout     PayoutConfig     `yaml:"payout" mapstructure:"payout"`
	Stripe     StripeConfig     `yaml:"stripe" mapstructure:"stripe"`
	Events     EventsConfig     `yaml:"events" mapstructure:"events"`
}

type AppConfig struct {
	Environment string `yaml:"environment" mapstructure:"environment"`
	LogLevel    string `yaml:"log_level" mapstructure:"log_level"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     string `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	DBName   string `yaml:"db_name" mapstructure:"db_name"`
	SSLMode  string `yaml:"ssl_mode" mapstructure:"ssl_mode"`
	MaxConns int    `yaml:"max_conns" mapstructure:"max_conns"`
}

type RedisConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     string `yaml:"port" mapstructure:"port"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
}

type AdminConfig struct {
	Host           string   `yaml:"host" mapstructure:"host"`
	Port           int      `yaml:"port" mapstructure:"port"`
	JWTSecret      string   `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	TokenTTLHours  int      `yaml:"token_ttl_hours" mapstructure:"token_ttl_hours"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	RateLimit      int      `yaml:"rate_limit" mapstructure:"rate_limit"` // requests per minute
}

type ReferralConfig struct {
	CookieName             string `yaml:"cookie_name" mapstructure:"cookie_name"`
	AttributionWindowDays  int    `yaml:"attribution_window_days" mapstructure:"attribution_window_days"`
	SignupURL              string `yaml:"signup_url" mapstructure:"signup_url"`
	CodeGenerationAttempts int    `yaml:"code_generation_attempts" mapstructure:"code_generation_attempts"`
	TrackRateLimit         int    `yaml:"track_rate_limit" mapstructure:"track_rate_limit"` // clicks per IP per minute, 0 = unlimited
	FingerprintSalt        string `yaml:"fingerprint_salt" mapstructure:"fingerprint_salt"`
}

type CommissionConfig struct {
	PricingSource       string           `yaml:"pricing_source" mapstructure:"pricing_source"` // static, stripe
	TierPrices          map[string]int64 `yaml:"tier_prices" mapstructure:"tier_prices"`       // minor units
	RecurringWindowDays int              `yaml:"recurring_window_days" mapstructure:"recurring_window_days"`
	HoldDays            int              `yaml:"hold_days" mapstructure:"hold_days"`
}

type PayoutConfig struct {
	MinimumAmount   int64  `yaml:"minimum_amount" mapstructure:"minimum_amount"`
	PayoutSchedule  string `yaml:"payout_schedule" mapstructure:"payout_schedule"`
	ApproveSchedule string `yaml:"approve_schedule" mapstructure:"approve_schedule"`
	ExpirySchedule  string `yaml:"expiry_schedule" mapstructure:"expiry_schedule"`
}

type StripeConfig struct {
	SecretKey     string `yaml:"secret_key" mapstructure:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret" mapstructure:"webhook_secret"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
}

type EventsConfig struct {
	Driver       string   `yaml:"driver" mapstructure:"driver"` // redis, kafka, none
	Channel      string   `yaml:"channel" mapstructure:"channel"`
	KafkaBrokers []string `yaml:"kafka_brokers" mapstructure:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic" mapstructure:"kafka_topic"`
}

func LoadConfig(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Database.Host = getEnv("DB_HOST", config.Database.Host)
	config.Database.User = getEnv("DB_USER", config.Database.User)
	config.Database.Password = getEnv("DB_PASSWORD", config.Database.Password)
	config.Database.DBName = getEnv("DB_NAME", config.Database.DBName)
	config.Database.Port = getEnv("DB_PORT", config.Database.Port)
	config.Redis.Host = getEnv("REDIS_HOST", config.Redis.Host)
	config.Redis.Password = getEnv("REDIS_PASSWORD", config.Redis.Password)
	config.Admin.JWTSecret = getEnv("JWT_SECRET", config.Admin.JWTSecret)
	config.Admin.Port = getEnvInt("PORT", config.Admin.Port)
	config.Referral.FingerprintSalt = getEnv("REFERRAL_FINGERPRINT_SALT", config.Referral.FingerprintSalt)

	config.Stripe.SecretKey = getEnv("STRIPE_SECRET_KEY", config.Stripe.SecretKey)
	config.Stripe.WebhookSecret = getEnv("STRIPE_WEBHOOK_SECRET", config.Stripe.WebhookSecret)

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		config.Events.KafkaBrokers = strings.Split(brokers, ",")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("redis.port", "6379")
	v.SetDefault("admin.host", "0.0.0.0")
	v.SetDefault("admin.port", 8080)
	v.SetDefault("admin.token_ttl_hours", 24)
	v.SetDefault("admin.rate_limit", 120)
	v.SetDefault("referral.cookie_name", "referral_tracking_id")
	v.SetDefault("referral.attribution_window_days", 30)
	v.SetDefault("referral.signup_url", "/signup")
	v.SetDefault("referral.code_generation_attempts", 10)
	v.SetDefault("referral.track_rate_limit", 30)
	v.SetDefault("commission.pricing_source", "static")
	v.SetDefault("commission.recurring_window_days", 365)
	v.SetDefault("commission.hold_days", 14)
	v.SetDefault("payout.payout_schedule", "0 3 1 * *")
	v.SetDefault("payout.approve_schedule", "0 * * * *")
	v.SetDefault("payout.expiry_schedule", "*/15 * * * *")
	v.SetDefault("stripe.base_url", "https://api.stripe.com")
	v.SetDefault("events.driver", "redis")
	v.SetDefault("events.channel", "referral:events")
	v.SetDefault("events.kafka_topic", "referral-events")
}

func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}

	if c.Database.Port == "" {
		return fmt.Errorf("database.port is required")
	}

	if c.Database.DBName == "" {
		return fmt.Errorf("database.db_name is required")
	}

	if c.Database.Password == "" {
		return fmt.Errorf("database.password is required")
	}

	if c.Admin.JWTSecret == "" {
		return fmt.Errorf("admin.jwt_secret is required")
	}

	if c.Referral.AttributionWindowDays <= 0 {
		return fmt.Errorf("referral.attribution_window_days must be positive")
	}

	if c.Referral.CodeGenerationAttempts <= 0 {
		return fmt.Errorf("referral.code_generation_attempts must be positive")
	}

	for tier, price := range c.Commission.TierPrices {
		if price < 0 {
			return fmt.Errorf("commission.tier_prices.%s must not be negative", tier)
		}
	}

	switch c.Commission.PricingSource {
	case "static":
	case "stripe":
		if c.Stripe.SecretKey == "" {
			return fmt.Errorf("stripe.secret_key is required when commission.pricing_source is stripe")
		}
	default:
		return fmt.Errorf("unknown commission.pricing_source %q", c.Commission.PricingSource)
	}

	switch c.Events.Driver {
	case "none", "redis":
	case "kafka":
		if len(c.Events.KafkaBrokers) == 0 {
			return fmt.Errorf("events.kafka_brokers is required for the kafka driver")
		}
	default:
		return fmt.Errorf("unknown events.driver %q", c.Events.Driver)
	}

	if c.App.Environment == "production" {
		if c.Redis.Host == "" {
			return fmt.Errorf("redis.host is required for production")
		}

		if c.Referral.FingerprintSalt == "" {
			return fmt.Errorf("referral.fingerprint_salt is required for production")
		}
	}

	return nil
}

// AttributionWindow is how long a minted attribution token stays valid.
func (c *Config) AttributionWindow() time.Duration {
	return time.Duration(c.Referral.AttributionWindowDays) * 24 * time.Hour
}

func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Admin.TokenTTLHours) * time.Hour
}

func (c *Config) SafeString() string {
	return fmt.Sprintf(`Config:
		Environment: %s
		Log Level: %s

		Database:
			Host: %s:%s
			User: %s
			Database: %s
			SSL Mode: %s
			Max Connections: %d

		Redis:
			Host: %s:%s
			Database: %d

		Admin API:
			Listen: %s:%d
			JWT Secret: %s
			Rate Limit: %d/min

		Referral:
			Cookie: %s (%d days)
			Signup URL: %s
			Track Rate Limit: %d/min

		Commission:
			Pricing Source: %s
			Tiers: %d
			Hold Days: %d

		Payout:
			Minimum: %d
			Schedule: %s

		Stripe:
			Secret Key: %s
			Webhook Secret: %s

		Events:
			Driver: %s
		`,
		c.App.Environment,
		c.App.LogLevel,
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.DBName,
		c.Database.SSLMode,
		c.Database.MaxConns,
		c.Redis.Host,
		c.Redis.Port,
		c.Redis.DB,
		c.Admin.Host,
		c.Admin.Port,
		maskSecret(c.Admin.JWTSecret),
		c.Admin.RateLimit,
		c.Referral.CookieName,
		c.Referral.AttributionWindowDays,
		c.Referral.SignupURL,
		c.Referral.TrackRateLimit,
		c.Commission.PricingSource,
		len(c.Commission.TierPrices),
		c.Commission.HoldDays,
		c.Payout.MinimumAmount,
		c.Payout.PayoutSchedule,
		maskSecret(c.Stripe.SecretKey),
		maskSecret(c.Stripe.WebhookSecret),
		c.Events.Driver,
	)
}

func getEnv(key string, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	return value
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}

	return n
}

func maskSecret(s string) string {
	if s == "" {
		return "(not set)"
	}

	length := len(s)
	if length <= 8 {
		return strings.Repeat("*", length)
	}

	return s[:4] + "..." + s[length-4:]
}
