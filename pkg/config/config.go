package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Sessions SessionsConfig
	Pricing  PricingConfig
	Media    MediaConfig
	Audit    AuditConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SessionsConfig is the authoritative viewing policy table. Max views and
// durations are keyed by content kind; a max of zero means the kind does not
// require a secure viewing session.
type SessionsConfig struct {
	MaxViewsPastExams     int
	MaxViewsCATs          int
	DurationPastExams     time.Duration
	DurationCATs          time.Duration
	SweepInterval         time.Duration
	HeartbeatTimeout      time.Duration
	ViolationLimit        int
	ViolationWindow       time.Duration
	TerminateOnViolations bool
	ContentCacheTTL       time.Duration
}

// PricingConfig carries the configured premium price; the entitlement
// resolver never computes prices itself.
type PricingConfig struct {
	PremiumYearPriceCents int64
}

// MediaConfig governs artifact storage and media access tokens.
type MediaConfig struct {
	StorageDir       string
	TokenSecret      string
	TokenTTL         time.Duration
	MaxUploadBytes   int64
	WatermarkEnabled bool
}

// AuditConfig governs audit trail export jobs.
type AuditConfig struct {
	ExportDir         string
	ExportSecret      string
	ExportTTL         time.Duration
	WorkerConcurrency int
	WorkerRetries     int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Sessions = SessionsConfig{
		MaxViewsPastExams:     v.GetInt("SESSIONS_MAX_VIEWS_PAST_EXAMS"),
		MaxViewsCATs:          v.GetInt("SESSIONS_MAX_VIEWS_CATS"),
		DurationPastExams:     parseDuration(v.GetString("SESSIONS_DURATION_PAST_EXAMS"), 30*time.Minute),
		DurationCATs:          parseDuration(v.GetString("SESSIONS_DURATION_CATS"), 30*time.Minute),
		SweepInterval:         parseDuration(v.GetString("SESSIONS_SWEEP_INTERVAL"), 5*time.Second),
		HeartbeatTimeout:      parseDuration(v.GetString("SESSIONS_HEARTBEAT_TIMEOUT"), 2*time.Minute),
		ViolationLimit:        v.GetInt("SESSIONS_VIOLATION_LIMIT"),
		ViolationWindow:       parseDuration(v.GetString("SESSIONS_VIOLATION_WINDOW"), time.Minute),
		TerminateOnViolations: v.GetBool("SESSIONS_TERMINATE_ON_VIOLATIONS"),
		ContentCacheTTL:       parseDuration(v.GetString("CONTENT_CACHE_TTL"), 10*time.Minute),
	}

	cfg.Pricing = PricingConfig{
		PremiumYearPriceCents: v.GetInt64("PRICING_PREMIUM_YEAR_CENTS"),
	}

	maxUpload := v.GetInt64("MEDIA_MAX_UPLOAD_SIZE")
	if maxUpload <= 0 {
		maxUpload = 50 * 1024 * 1024
	}
	cfg.Media = MediaConfig{
		StorageDir:       v.GetString("MEDIA_STORAGE_DIR"),
		TokenSecret:      v.GetString("MEDIA_TOKEN_SECRET"),
		TokenTTL:         parseDuration(v.GetString("MEDIA_TOKEN_TTL"), 5*time.Minute),
		MaxUploadBytes:   maxUpload,
		WatermarkEnabled: v.GetBool("MEDIA_WATERMARK_ENABLED"),
	}

	cfg.Audit = AuditConfig{
		ExportDir:         v.GetString("AUDIT_EXPORT_DIR"),
		ExportSecret:      v.GetString("AUDIT_EXPORT_SECRET"),
		ExportTTL:         parseDuration(v.GetString("AUDIT_EXPORT_TTL"), 24*time.Hour),
		WorkerConcurrency: v.GetInt("AUDIT_EXPORT_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("AUDIT_EXPORT_WORKER_RETRIES"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "edvault")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "edvault-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SESSIONS_MAX_VIEWS_PAST_EXAMS", 1)
	v.SetDefault("SESSIONS_MAX_VIEWS_CATS", 3)
	v.SetDefault("SESSIONS_DURATION_PAST_EXAMS", "30m")
	v.SetDefault("SESSIONS_DURATION_CATS", "30m")
	v.SetDefault("SESSIONS_SWEEP_INTERVAL", "5s")
	v.SetDefault("SESSIONS_HEARTBEAT_TIMEOUT", "2m")
	v.SetDefault("SESSIONS_VIOLATION_LIMIT", 5)
	v.SetDefault("SESSIONS_VIOLATION_WINDOW", "1m")
	v.SetDefault("SESSIONS_TERMINATE_ON_VIOLATIONS", true)
	v.SetDefault("CONTENT_CACHE_TTL", "10m")

	v.SetDefault("PRICING_PREMIUM_YEAR_CENTS", 50000)

	v.SetDefault("MEDIA_STORAGE_DIR", "./media")
	v.SetDefault("MEDIA_TOKEN_SECRET", "dev_media_secret")
	v.SetDefault("MEDIA_TOKEN_TTL", "5m")
	v.SetDefault("MEDIA_MAX_UPLOAD_SIZE", 50*1024*1024)
	v.SetDefault("MEDIA_WATERMARK_ENABLED", true)

	v.SetDefault("AUDIT_EXPORT_DIR", "./exports")
	v.SetDefault("AUDIT_EXPORT_SECRET", "dev_audit_secret")
	v.SetDefault("AUDIT_EXPORT_TTL", "24h")
	v.SetDefault("AUDIT_EXPORT_WORKER_CONCURRENCY", 1)
	v.SetDefault("AUDIT_EXPORT_WORKER_RETRIES", 3)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
