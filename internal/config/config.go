package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/domain"
	"github.com/spf13/viper"
)

// Auth modes
const (
	AuthModeJWT    = "jwt"
	AuthModeHeader = "header"
)

// Config represents application configuration
type Config struct {
	Server       ServerConfig       `json:"server"`
	Database     DatabaseConfig     `json:"database"`
	Redis        RedisConfig        `json:"redis"`
	Logging      LoggingConfig      `json:"logging"`
	Security     SecurityConfig     `json:"security"`
	Verification VerificationConfig `json:"verification"`
	Update       UpdateConfig       `json:"update"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Port            string        `json:"port"`
	Host            string        `json:"host"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	Environment     string        `json:"environment"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	URL            string        `json:"url"`
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	User           string        `json:"user"`
	Password       string        `json:"password"`
	DBName         string        `json:"dbname"`
	SSLMode        string        `json:"sslmode"`
	MaxConnections int           `json:"max_connections"`
	MaxIdleTime    time.Duration `json:"max_idle_time"`
	QueryTimeout   time.Duration `json:"query_timeout"`
}

// RedisConfig represents Redis configuration
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
	Channel  string `json:"channel"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // json, text
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	AuthMode      string        `json:"auth_mode"`
	JWTSecret     string        `json:"-"`
	JWTExpiration time.Duration `json:"jwt_expiration"`
	CORSOrigins   []string      `json:"cors_origins"`
}

// VerificationConfig configures the weekly verification reset
type VerificationConfig struct {
	Timezone     string `json:"timezone"`
	ResetWeekday string `json:"reset_weekday"`
	ResetHour    int    `json:"reset_hour"`
}

// UpdateConfig tunes the per-asset write path
type UpdateConfig struct {
	MaxRetries int           `json:"max_retries"`
	LockTTL    time.Duration `json:"lock_ttl"`
	LockWait   time.Duration `json:"lock_wait"`
}

var (
	ErrMissingDatabase  = errors.New("database url or host is required")
	ErrMissingJWTSecret = errors.New("SECURITY_JWT_SECRET is required when auth mode is jwt")
	ErrInvalidAuthMode  = errors.New("auth mode must be jwt or header")
	ErrInvalidHour      = errors.New("verification reset hour must be between 0 and 23")
	ErrInvalidRetries   = errors.New("update max retries must be at least 1")
	ErrInvalidLockWait  = errors.New("update lock wait must be positive")
	ErrInvalidLockTTL   = errors.New("update lock ttl must be positive")
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.environment", "development")

	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "fleetwatch")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_connections", 20)
	v.SetDefault("database.max_idle_time", 30*time.Minute)
	v.SetDefault("database.query_timeout", 10*time.Second)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.channel", "fleetwatch.assets")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("security.auth_mode", AuthModeJWT)
	v.SetDefault("security.jwt_secret", "")
	v.SetDefault("security.jwt_expiration", 24*time.Hour)
	v.SetDefault("security.cors_origins", "http://localhost:3000")

	v.SetDefault("verification.timezone", "UTC")
	v.SetDefault("verification.reset_weekday", "monday")
	v.SetDefault("verification.reset_hour", 17)

	v.SetDefault("update.max_retries", 3)
	v.SetDefault("update.lock_ttl", 10*time.Second)
	v.SetDefault("update.lock_wait", 3*time.Second)
}

// Load reads defaults, an optional config.yaml from configPaths, then the
// environment (SECTION_KEY, e.g. VERIFICATION_TIMEZONE). The result is validated.
func Load(configPaths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range configPaths {
		v.AddConfigPath(p)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if len(configPaths) > 0 {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Port:            v.GetString("server.port"),
			Host:            v.GetString("server.host"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			IdleTimeout:     v.GetDuration("server.idle_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
			Environment:     v.GetString("server.environment"),
		},
		Database: DatabaseConfig{
			URL:            v.GetString("database.url"),
			Host:           v.GetString("database.host"),
			Port:           v.GetInt("database.port"),
			User:           v.GetString("database.user"),
			Password:       v.GetString("database.password"),
			DBName:         v.GetString("database.dbname"),
			SSLMode:        v.GetString("database.sslmode"),
			MaxConnections: v.GetInt("database.max_connections"),
			MaxIdleTime:    v.GetDuration("database.max_idle_time"),
			QueryTimeout:   v.GetDuration("database.query_timeout"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			PoolSize: v.GetInt("redis.pool_size"),
			Channel:  v.GetString("redis.channel"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
		Security: SecurityConfig{
			AuthMode:      strings.ToLower(v.GetString("security.auth_mode")),
			JWTSecret:     v.GetString("security.jwt_secret"),
			JWTExpiration: v.GetDuration("security.jwt_expiration"),
			CORSOrigins:   ParseList(v.Get("security.cors_origins")),
		},
		Verification: VerificationConfig{
			Timezone:     v.GetString("verification.timezone"),
			ResetWeekday: v.GetString("verification.reset_weekday"),
			ResetHour:    v.GetInt("verification.reset_hour"),
		},
		Update: UpdateConfig{
			MaxRetries: v.GetInt("update.max_retries"),
			LockTTL:    v.GetDuration("update.lock_ttl"),
			LockWait:   v.GetDuration("update.lock_wait"),
		},
	}
}

// Validate checks required values and the verification schedule
func (c *Config) Validate() error {
	if c.Database.URL == "" && c.Database.Host == "" {
		return ErrMissingDatabase
	}

	switch c.Security.AuthMode {
	case AuthModeJWT:
		if c.Security.JWTSecret == "" {
			return ErrMissingJWTSecret
		}
	case AuthModeHeader:
	default:
		return ErrInvalidAuthMode
	}

	if _, err := c.Verification.Boundary(); err != nil {
		return err
	}

	if c.Update.MaxRetries < 1 {
		return ErrInvalidRetries
	}
	if c.Update.LockWait <= 0 {
		return ErrInvalidLockWait
	}
	if c.Update.LockTTL <= 0 {
		return ErrInvalidLockTTL
	}
	return nil
}

// DSN returns the postgres connection string
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// Location loads the reference time zone
func (v VerificationConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(v.Timezone)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid verification timezone %q: %w", name, err)
	}
	return loc, nil
}

// Boundary builds the weekly reset boundary from configuration
func (v VerificationConfig) Boundary() (domain.WeeklyBoundary, error) {
	loc, err := v.Location()
	if err != nil {
		return domain.WeeklyBoundary{}, err
	}
	weekday, err := ParseWeekday(v.ResetWeekday)
	if err != nil {
		return domain.WeeklyBoundary{}, err
	}
	if v.ResetHour < 0 || v.ResetHour > 23 {
		return domain.WeeklyBoundary{}, ErrInvalidHour
	}
	return domain.WeeklyBoundary{Weekday: weekday, Hour: v.ResetHour, Location: loc}, nil
}

// ParseWeekday accepts full or three-letter English names, or 0-6 with Sunday as 0
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n <= 6 {
		return time.Weekday(n), nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("invalid verification reset weekday %q", s)
}

// ParseList splits a comma separated setting; YAML lists pass through
func ParseList(raw interface{}) []string {
	var items []string
	switch v := raw.(type) {
	case nil:
		return nil
	case []string:
		items = v
	case []interface{}:
		for _, item := range v {
			items = append(items, fmt.Sprint(item))
		}
	default:
		items = strings.Split(fmt.Sprint(v), ",")
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
