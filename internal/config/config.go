package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// MinJWTSecretLength минимальная длина секрета подписи токенов в байтах
const MinJWTSecretLength = 32

// Config хранит все настройки приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Auth     AuthConfig
	Email    EmailConfig
}

// ServerConfig содержит настройки HTTP сервера
type ServerConfig struct {
	Port            string
	Mode            string   `mapstructure:"mode"` // debug | release | test (GIN_MODE)
	ReadTimeout     int      `mapstructure:"readTimeout"`
	WriteTimeout    int      `mapstructure:"writeTimeout"`
	ShutdownTimeout int      `mapstructure:"shutdownTimeout"`
	AllowedOrigins  []string `mapstructure:"allowedOrigins"`
	TrustedProxies  []string `mapstructure:"trustedProxies"`
}

// DatabaseConfig содержит настройки подключения к PostgreSQL
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int    `mapstructure:"maxOpenConns"`
	MaxIdleConns    int    `mapstructure:"maxIdleConns"`
	ConnMaxLifetime int    `mapstructure:"connMaxLifetimeMin"`
	MigrationsPath  string `mapstructure:"migrationsPath"`
}

// RedisConfig содержит унифицированные настройки подключения к Redis
// Поддерживает режимы: single, sentinel, cluster
type RedisConfig struct {
	// Mode: Режим работы Redis ("single", "sentinel", "cluster"). По умолчанию "single".
	Mode string `mapstructure:"mode"`

	// Addrs: Список адресов Redis (хост:порт). Используется для всех режимов.
	Addrs []string `mapstructure:"addrs"`

	// Addr: Адрес для режима 'single', если Addrs пустой.
	Addr string `mapstructure:"addr"`

	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// MasterName: Имя мастер-сервера Redis (только для режима "sentinel")
	MasterName string `mapstructure:"master_name"`

	// MaxRetries: Максимальное количество попыток переподключения (-1 - бесконечно).
	MaxRetries int `mapstructure:"max_retries"`

	// MinRetryBackoff / MaxRetryBackoff: интервалы между попытками в миллисекундах.
	MinRetryBackoff int `mapstructure:"min_retry_backoff"`
	MaxRetryBackoff int `mapstructure:"max_retry_backoff"`
}

// JWTConfig содержит настройки сессионных токенов
type JWTConfig struct {
	SecretKey     string `mapstructure:"secretKey"`
	ExpirationHrs int    `mapstructure:"expirationHrs"`
	Issuer        string `mapstructure:"issuer"`
}

// AuthConfig содержит настройки аутентификации
type AuthConfig struct {
	// RevocationCache включает кеширование границ отзыва в Redis
	RevocationCache bool `mapstructure:"revocationCache"`

	LoginRateLimit     int `mapstructure:"loginRateLimit"`
	LoginRateWindowSec int `mapstructure:"loginRateWindowSec"`
	ResetRateLimit     int `mapstructure:"resetRateLimit"`
	ResetRateWindowSec int `mapstructure:"resetRateWindowSec"`

	ResetCodeTTLMin   int    `mapstructure:"resetCodeTtlMin"`
	ResetCooldownSec  int    `mapstructure:"resetCooldownSec"`
	ResetMaxAttempts  int    `mapstructure:"resetMaxAttempts"`
	ResetCodePepper   string `mapstructure:"resetCodePepper"`
	MinPasswordLength int    `mapstructure:"minPasswordLength"`
}

// EmailConfig содержит настройки отправки писем
type EmailConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ResendAPIKey string `mapstructure:"resendApiKey"`
	From         string `mapstructure:"from"`
}

// PostgresConnectionString формирует строку подключения к PostgreSQL
func (d *DatabaseConfig) PostgresConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// TokenTTL возвращает срок жизни токена
func (j *JWTConfig) TokenTTL() time.Duration {
	return time.Duration(j.ExpirationHrs) * time.Hour
}

// IsRelease сообщает, запущен ли сервер в production-режиме
func (s *ServerConfig) IsRelease() bool {
	return s.Mode == "release"
}

func setDefaults(vip *viper.Viper) {
	vip.SetDefault("server.port", "8080")
	vip.SetDefault("server.mode", "debug")
	vip.SetDefault("server.readTimeout", 15)
	vip.SetDefault("server.writeTimeout", 15)
	vip.SetDefault("server.shutdownTimeout", 10)
	vip.SetDefault("server.allowedOrigins", []string{"http://localhost:3000", "http://localhost:5173"})

	vip.SetDefault("database.port", "5432")
	vip.SetDefault("database.sslmode", "disable")
	vip.SetDefault("database.maxOpenConns", 25)
	vip.SetDefault("database.maxIdleConns", 10)
	vip.SetDefault("database.connMaxLifetimeMin", 60)
	vip.SetDefault("database.migrationsPath", "file://migrations")

	vip.SetDefault("redis.mode", "single")

	vip.SetDefault("jwt.expirationHrs", 24)
	vip.SetDefault("jwt.issuer", "survey-api")

	vip.SetDefault("auth.revocationCache", true)
	vip.SetDefault("auth.loginRateLimit", 10)
	vip.SetDefault("auth.loginRateWindowSec", 60)
	vip.SetDefault("auth.resetRateLimit", 5)
	vip.SetDefault("auth.resetRateWindowSec", 900)
	vip.SetDefault("auth.resetCodeTtlMin", 15)
	vip.SetDefault("auth.resetCooldownSec", 60)
	vip.SetDefault("auth.resetMaxAttempts", 5)
	vip.SetDefault("auth.minPasswordLength", 8)
}

// Load загружает конфигурацию из файла и переменных окружения
func Load(configPath string) (*Config, error) {
	vip := viper.New() // Используем новый экземпляр Viper, чтобы избежать глобального состояния

	setDefaults(vip)

	// Привязываем переменные окружения ЯВНО
	vip.BindEnv("server.port", "SERVER_PORT")
	vip.BindEnv("server.mode", "GIN_MODE")
	vip.BindEnv("server.allowedOrigins", "CORS_ALLOWED_ORIGINS")

	vip.BindEnv("database.host", "DATABASE_HOST")
	vip.BindEnv("database.port", "DATABASE_PORT")
	vip.BindEnv("database.user", "DATABASE_USER")
	vip.BindEnv("database.password", "DATABASE_PASSWORD")
	vip.BindEnv("database.dbname", "DATABASE_DBNAME")
	vip.BindEnv("database.sslmode", "DATABASE_SSLMODE")
	vip.BindEnv("database.migrationsPath", "DATABASE_MIGRATIONS_PATH")

	vip.BindEnv("redis.mode", "REDIS_MODE")
	vip.BindEnv("redis.addrs", "REDIS_ADDRS")
	vip.BindEnv("redis.addr", "REDIS_ADDR")
	vip.BindEnv("redis.password", "REDIS_PASSWORD")
	vip.BindEnv("redis.db", "REDIS_DB")
	vip.BindEnv("redis.master_name", "REDIS_MASTER_NAME")

	vip.BindEnv("jwt.secretKey", "JWT_SECRET_KEY")
	vip.BindEnv("jwt.expirationHrs", "JWT_EXPIRATIONHRS")
	vip.BindEnv("jwt.issuer", "JWT_ISSUER")

	vip.BindEnv("auth.revocationCache", "AUTH_REVOCATION_CACHE")
	vip.BindEnv("auth.resetCodePepper", "AUTH_RESET_CODE_PEPPER")

	vip.BindEnv("email.enabled", "EMAIL_ENABLED")
	vip.BindEnv("email.resendApiKey", "RESEND_API_KEY")
	vip.BindEnv("email.from", "EMAIL_FROM")

	// Файл конфигурации необязателен, т.к. есть BindEnv
	if configPath != "" {
		vip.SetConfigFile(configPath)
		if err := vip.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				log.Printf("Файл конфигурации '%s' не найден, используются переменные окружения/умолчания.", configPath)
			} else {
				log.Printf("Предупреждение: не удалось прочитать файл конфигурации '%s': %v", configPath, err)
			}
		}
	}

	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// CORS_ALLOWED_ORIGINS приходит строкой через запятую
	cfg.Server.AllowedOrigins = splitAndTrim(strings.Join(cfg.Server.AllowedOrigins, ","))

	if !cfg.Server.IsRelease() {
		log.Printf("--- Загруженные значения конфигурации ---")
		log.Printf("Database Host: %s", cfg.Database.Host)
		log.Printf("Database Port: %s", cfg.Database.Port)
		log.Printf("Database User: %s", cfg.Database.User)
		log.Printf("Database Name: %s", cfg.Database.DBName)
		log.Printf("Database SSLMode: %s", cfg.Database.SSLMode)
		log.Printf("Redis Addr: %s", cfg.Redis.Addr)
		log.Printf("Redis Mode: %s", cfg.Redis.Mode)
		log.Printf("JWT Expiration Hours: %d", cfg.JWT.ExpirationHrs)
		log.Printf("JWT Secret Set: %t", cfg.JWT.SecretKey != "")
		log.Printf("Revocation Cache Enabled: %t", cfg.Auth.RevocationCache)
		log.Printf("Email Enabled: %t", cfg.Email.Enabled)
		log.Printf("Server Port: %s", cfg.Server.Port)
		log.Printf("-----------------------------------------")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет обязательные параметры
func (c *Config) Validate() error {
	if len(c.JWT.SecretKey) < MinJWTSecretLength {
		return fmt.Errorf("JWT secret must be at least %d bytes (check JWT_SECRET_KEY env var)", MinJWTSecretLength)
	}
	if c.JWT.ExpirationHrs <= 0 {
		return fmt.Errorf("jwt.expirationHrs must be positive")
	}
	if c.Database.Host == "" || c.Database.DBName == "" || c.Database.User == "" {
		return fmt.Errorf("database configuration (host, dbname, user) is incomplete in config (check DATABASE_HOST, DATABASE_DBNAME, DATABASE_USER env vars)")
	}
	if c.Server.Mode != "debug" {
		if c.Database.Password == "" {
			return fmt.Errorf("database password is required in production mode (check DATABASE_PASSWORD env var)")
		}
		isRedisConfigured := len(c.Redis.Addrs) > 0 || c.Redis.Addr != ""
		if isRedisConfigured && c.Redis.Password == "" {
			log.Println("Warning: Redis is configured but REDIS_PASSWORD is not set in a non-debug environment.")
		}
	}
	if c.Email.Enabled && (c.Email.ResendAPIKey == "" || c.Email.From == "") {
		return fmt.Errorf("email is enabled but RESEND_API_KEY or EMAIL_FROM is not set")
	}
	return nil
}

func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
