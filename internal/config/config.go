package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
)

// Known placeholder secrets that must never reach production.
var insecureDefaults = map[string]bool{
	"your-secret-key-change-in-production": true,
	"internal-secret":                      true,
	"change-me":                            true,
	"":                                     true,
}

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	IProxy     IProxyConfig
	Payment    PaymentConfig
	Notify     NotifyConfig
	Encryption EncryptionConfig
	Quota      QuotaConfig
	CronSecret string
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	Schema   string
	SSLMode  string
}

type RedisConfig struct {
	URL string
}

type JWTConfig struct {
	SecretKey string
}

// IProxyConfig points at the upstream proxy-provider API.
type IProxyConfig struct {
	BaseURL       string
	APIKey        string
	DefaultLocale string
}

type PaymentConfig struct {
	BaseURL        string
	APIKey         string
	IPNSecret      string
	IPNCallbackURL string
}

type NotifyConfig struct {
	MailAPIURL  string
	MailAPIKey  string
	MailFrom    string
	BotAPIURL   string
	BotToken    string
	AdminChatID string
}

type EncryptionConfig struct {
	Key string
}

type QuotaConfig struct {
	ReservationTTLMinutes int
}

func Load() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8006"),
			Mode: getEnv("GIN_MODE", "release"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "saas_user"),
			Password: getEnv("DB_PASSWORD", "saas_pass"),
			DBName:   getEnv("DB_NAME", "saas_db"),
			Schema:   getEnv("DB_SCHEMA", "proxyrental"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379/0"),
		},
		JWT: JWTConfig{
			SecretKey: getEnv("JWT_SECRET_KEY", ""),
		},
		IProxy: IProxyConfig{
			BaseURL:       getEnv("IPROXY_API_URL", "https://api.iproxy.online/v1"),
			APIKey:        getEnv("IPROXY_API_KEY", ""),
			DefaultLocale: getEnv("IPROXY_DEFAULT_LOCALE", "en"),
		},
		Payment: PaymentConfig{
			BaseURL:        getEnv("PAYMENT_API_URL", "https://api.nowpayments.io/v1"),
			APIKey:         getEnv("PAYMENT_API_KEY", ""),
			IPNSecret:      getEnv("PAYMENT_IPN_SECRET", ""),
			IPNCallbackURL: getEnv("PAYMENT_IPN_CALLBACK_URL", ""),
		},
		Notify: NotifyConfig{
			MailAPIURL:  getEnv("MAIL_API_URL", "https://api.resend.com"),
			MailAPIKey:  getEnv("MAIL_API_KEY", ""),
			MailFrom:    getEnv("MAIL_FROM", "noreply@proxyrental.example"),
			BotAPIURL:   getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
			BotToken:    getEnv("TELEGRAM_BOT_TOKEN", ""),
			AdminChatID: getEnv("TELEGRAM_ADMIN_CHAT_ID", ""),
		},
		Encryption: EncryptionConfig{
			Key: getEnv("ENCRYPTION_KEY", ""),
		},
		Quota: QuotaConfig{
			ReservationTTLMinutes: getEnvInt("RESERVATION_TTL_MINUTES", 30),
		},
		CronSecret: getEnv("CRON_SECRET", ""),
	}

	// Do not log secrets.
	log.Printf("[config] Proxy Rental Service loaded: port=%s db=%s/%s.%s iproxy=%s",
		cfg.Server.Port, cfg.Database.Host, cfg.Database.DBName, cfg.Database.Schema, cfg.IProxy.BaseURL)

	return cfg
}

// Validate checks that production-critical secrets are actually set.
func (c *Config) Validate() error {
	if insecureDefaults[c.JWT.SecretKey] {
		return fmt.Errorf("JWT_SECRET_KEY must be set to a secure value (current value is insecure or empty)")
	}
	if len(c.JWT.SecretKey) < 32 {
		return fmt.Errorf("JWT_SECRET_KEY must be at least 32 characters long")
	}

	if insecureDefaults[c.CronSecret] {
		return fmt.Errorf("CRON_SECRET must be set to a secure value (current value is insecure or empty)")
	}

	if len(c.Encryption.Key) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}

	if insecureDefaults[c.Payment.IPNSecret] {
		return fmt.Errorf("PAYMENT_IPN_SECRET must be set (webhook signatures cannot be verified without it)")
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + c.Port + "/" + c.DBName + "?sslmode=" + c.SSLMode
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
