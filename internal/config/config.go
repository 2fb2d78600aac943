package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Telegram  TelegramConfig
	API       APIConfig
	Selection SelectionConfig
	Orders    OrdersConfig
	Bootstrap BootstrapConfig
}

type ServerConfig struct {
	Port int
	Env  string // "development", "production"
}

type DatabaseConfig struct {
	Host    string
	Port    string
	Name    string
	User    string
	Pass    string
	Charset string
}

type RedisConfig struct {
	Addr string
	Pass string
	DB   int
}

type TelegramConfig struct {
	APIURL         string
	WebhookBaseURL string
	EventRetention time.Duration
	CheckIP        bool
}

type APIConfig struct {
	Key string
}

type SelectionConfig struct {
	Store       string // "redis", "db", "memory"
	SessionIdle time.Duration
}

type OrdersConfig struct {
	PendingTTL time.Duration
}

// BootstrapConfig describes the tenant created on an empty database.
type BootstrapConfig struct {
	TenantName string
	TenantKey  string
}

// Load reads configuration from .env file and environment variables.
func Load() (*Config, error) {
	// Load .env file (ignore error if missing)
	_ = godotenv.Load()

	viper.AutomaticEnv()

	setDatabaseDefaults()
	viper.SetDefault("APP_PORT", 8080)
	viper.SetDefault("APP_ENV", "production")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("TELEGRAM_API_URL", "https://api.telegram.org")
	viper.SetDefault("SELECTION_STORE", "redis")
	viper.SetDefault("SESSION_IDLE_TTL", "30m")
	viper.SetDefault("ORDER_PENDING_TTL", "24h")
	viper.SetDefault("WEBHOOK_EVENT_RETENTION", "720h")
	viper.SetDefault("TELEGRAM_IP_CHECK", true)

	cfg := &Config{
		Server: ServerConfig{
			Port: viper.GetInt("APP_PORT"),
			Env:  viper.GetString("APP_ENV"),
		},
		Database: databaseFromEnv(),
		Redis: RedisConfig{
			Addr: viper.GetString("REDIS_ADDR"),
			Pass: viper.GetString("REDIS_PASS"),
			DB:   viper.GetInt("REDIS_DB"),
		},
		Telegram: TelegramConfig{
			APIURL:         viper.GetString("TELEGRAM_API_URL"),
			WebhookBaseURL: viper.GetString("WEBHOOK_BASE_URL"),
			EventRetention: durationOr("WEBHOOK_EVENT_RETENTION", 30*24*time.Hour),
			CheckIP:        viper.GetBool("TELEGRAM_IP_CHECK"),
		},
		API: APIConfig{
			Key: viper.GetString("API_KEY"),
		},
		Selection: SelectionConfig{
			Store:       viper.GetString("SELECTION_STORE"),
			SessionIdle: durationOr("SESSION_IDLE_TTL", 30*time.Minute),
		},
		Orders: OrdersConfig{
			PendingTTL: durationOr("ORDER_PENDING_TTL", 24*time.Hour),
		},
		Bootstrap: bootstrapFromEnv(),
	}

	if cfg.Database.Name == "" {
		log.Println("WARNING: DB_NAME is not set")
	}
	if cfg.API.Key == "" {
		log.Println("WARNING: API_KEY is not set, admin endpoints are unreachable")
	}
	if cfg.Telegram.WebhookBaseURL == "" {
		log.Println("WARNING: WEBHOOK_BASE_URL is not set, bot webhooks will not be registered")
	}

	return cfg, nil
}

// LoadDatabaseOnly reads just what the --bootstrap-db path needs.
func LoadDatabaseOnly() (*DatabaseConfig, BootstrapConfig, error) {
	_ = godotenv.Load()
	viper.AutomaticEnv()
	setDatabaseDefaults()

	db := databaseFromEnv()
	return &db, bootstrapFromEnv(), nil
}

func setDatabaseDefaults() {
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "3306")
	viper.SetDefault("DB_CHARSET", "utf8mb4")
}

func databaseFromEnv() DatabaseConfig {
	return DatabaseConfig{
		Host:    viper.GetString("DB_HOST"),
		Port:    viper.GetString("DB_PORT"),
		Name:    viper.GetString("DB_NAME"),
		User:    viper.GetString("DB_USER"),
		Pass:    viper.GetString("DB_PASS"),
		Charset: viper.GetString("DB_CHARSET"),
	}
}

func bootstrapFromEnv() BootstrapConfig {
	return BootstrapConfig{
		TenantName: viper.GetString("BOOTSTRAP_TENANT_NAME"),
		TenantKey:  viper.GetString("BOOTSTRAP_TENANT_KEY"),
	}
}

func durationOr(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(viper.GetString(key))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// IsDevelopment reports whether verbose logging should be enabled.
func (s ServerConfig) IsDevelopment() bool {
	return s.Env == "development"
}

// DSN returns the MySQL DSN string for GORM.
func (d *DatabaseConfig) DSN() string {
	return d.User + ":" + d.Pass + "@tcp(" + d.Host + ":" + d.Port + ")/" + d.Name + "?charset=" + d.Charset + "&parseTime=True&loc=Local"
}
