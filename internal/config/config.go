package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all configuration for the application
type Config struct {
	AppMode     string
	Port        string
	LogLevel    string
	Database    DatabaseConfig
	Bitrix      BitrixConfig
	Maintenance MaintenanceConfig
	Admin       AdminConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver     string // sqlite | mysql | postgres
	Path       string // sqlite file
	Host       string
	Port       string
	User       string
	Password   string
	DBName     string
	BackupPath string
}

// BitrixConfig holds the Bitrix24 application credentials
type BitrixConfig struct {
	ClientID      string
	ClientSecret  string
	Scheme        string
	Timeout       time.Duration
	DefaultDomain string
}

// MaintenanceConfig controls the background token jobs
type MaintenanceConfig struct {
	Enabled         bool
	RefreshSchedule string
	BackupSchedule  string
}

// AdminConfig guards the management endpoints
type AdminConfig struct {
	JWTSecret string
}

// Global config instance
var AppConfig *Config

// Load reads configuration from .env file and environment variables
func Load() (*Config, error) {
	// Load .env file (ignore error if file doesn't exist in production)
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found, using environment variables")
	}

	appMode := strings.TrimSpace(getEnv("APP_MODE", "dev"))
	if appMode != "dev" && appMode != "prod" {
		return nil, fmt.Errorf("invalid APP_MODE: '%s' (must be 'dev' or 'prod')", appMode)
	}

	database, err := loadDatabaseConfig()
	if err != nil {
		return nil, err
	}

	bitrix, err := loadBitrixConfig()
	if err != nil {
		return nil, err
	}

	config := &Config{
		AppMode:     appMode,
		Port:        getEnv("PORT", "3000"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Database:    database,
		Bitrix:      bitrix,
		Maintenance: loadMaintenanceConfig(),
		Admin: AdminConfig{
			JWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
		},
	}

	AppConfig = config

	log.Info().Str("mode", appMode).Str("db_driver", database.Driver).Msg("Configuration loaded")
	return config, nil
}

func loadDatabaseConfig() (DatabaseConfig, error) {
	driver := strings.ToLower(strings.TrimSpace(getEnv("DB_DRIVER", "sqlite")))
	defaultPort := ""
	switch driver {
	case "sqlite":
	case "mysql":
		defaultPort = "3306"
	case "postgres":
		defaultPort = "5432"
	default:
		return DatabaseConfig{}, fmt.Errorf("invalid DB_DRIVER: '%s' (must be sqlite, mysql or postgres)", driver)
	}

	return DatabaseConfig{
		Driver:     driver,
		Path:       getEnv("DB_PATH", "./data/tokens.db"),
		Host:       getEnv("DB_HOST", "localhost"),
		Port:       getEnv("DB_PORT", defaultPort),
		User:       getEnv("DB_USER", "root"),
		Password:   getEnv("DB_PASS", ""),
		DBName:     getEnv("DB_NAME", "bitrix24_connector"),
		BackupPath: getEnv("TOKEN_BACKUP_PATH", "./data/tokens.json"),
	}, nil
}

func loadBitrixConfig() (BitrixConfig, error) {
	timeout, err := time.ParseDuration(getEnv("BITRIX_TIMEOUT", "30s"))
	if err != nil || timeout <= 0 {
		return BitrixConfig{}, fmt.Errorf("invalid BITRIX_TIMEOUT: '%s'", os.Getenv("BITRIX_TIMEOUT"))
	}

	return BitrixConfig{
		ClientID:      getEnv("CLIENT_ID", ""),
		ClientSecret:  getEnv("CLIENT_SECRET", ""),
		Scheme:        getEnv("BITRIX_SCHEME", "https"),
		Timeout:       timeout,
		DefaultDomain: getEnv("DEFAULT_DOMAIN", ""),
	}, nil
}

func loadMaintenanceConfig() MaintenanceConfig {
	enabled, _ := strconv.ParseBool(getEnv("TOKEN_MAINTENANCE_ENABLED", "true"))

	return MaintenanceConfig{
		Enabled:         enabled,
		RefreshSchedule: getEnv("TOKEN_REFRESH_SCHEDULE", "@every 5m"),
		BackupSchedule:  getEnv("TOKEN_BACKUP_SCHEDULE", "@hourly"),
	}
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// IsDev returns true if running in development mode
func (c *Config) IsDev() bool {
	return c.AppMode == "dev"
}

// IsProd returns true if running in production mode
func (c *Config) IsProd() bool {
	return c.AppMode == "prod"
}

// AdminGuardEnabled reports whether management endpoints require a bearer token
func (c *Config) AdminGuardEnabled() bool {
	return c.Admin.JWTSecret != ""
}

// GetAllowedOrigins returns allowed origins for CORS
func (c *Config) GetAllowedOrigins() string {
	origins := getEnv("ALLOWED_ORIGINS", "")
	if origins == "" {
		return "*"
	}
	return origins
}
