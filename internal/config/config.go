package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config aggregates application settings that may be sourced from files or environment variables.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Auth     AuthConfig     `mapstructure:"auth"`
	OTP      OTPConfig      `mapstructure:"otp"`
	Mail     MailConfig     `mapstructure:"mail"`
	SMS      SMSConfig      `mapstructure:"sms"`
	Clamd    ClamdConfig    `mapstructure:"clamd"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig 包含 Redis 连接配置。
type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
type MinIOConfig struct {
	Endpoint         string `mapstructure:"endpoint"`
	PublicEndpoint   string `mapstructure:"public_endpoint"`
	AccessKeyID      string `mapstructure:"access_key_id"`
	SecretAccessKey  string `mapstructure:"secret_access_key"`
	UseSSL           bool   `mapstructure:"use_ssl"`
	Region           string `mapstructure:"region"`
	Bucket           string `mapstructure:"bucket"`
	BucketLookup     string `mapstructure:"bucket_lookup"`
	AutoCreateBucket bool   `mapstructure:"auto_create_bucket"`
}

// AuthConfig 包含登录令牌与登录限流配置。
// JWT 密钥必须通过环境变量注入，生产代码中不允许内置默认值。
type AuthConfig struct {
	JWTSecret              string        `mapstructure:"jwt_secret"`
	TokenTTL               time.Duration `mapstructure:"token_ttl"`
	LoginFailWindow        time.Duration `mapstructure:"login_fail_window"`
	LoginFailThreshold     int           `mapstructure:"login_fail_threshold"`
	ResendCooldownWindow   time.Duration `mapstructure:"resend_cooldown_window"`
	ResendCooldownMaxSends int           `mapstructure:"resend_cooldown_max_sends"`
}

// OTPConfig 包含一次性验证码配置。
type OTPConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// MailConfig 包含 SMTP 发信配置。
// 当用户名/密码为空或 SuppressSend 为真时，验证码仅写入日志（开发模式）。
type MailConfig struct {
	SMTPHost     string `mapstructure:"smtp_host"`
	SMTPPort     int    `mapstructure:"smtp_port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	From         string `mapstructure:"from"`
	SuppressSend bool   `mapstructure:"suppress_send"`
}

// SMSConfig 包含短信通道（Fast2SMS 风格 HTTP 接口）配置。
type SMSConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
}

// ClamdConfig 包含病毒扫描服务地址（为空时跳过扫描）。
type ClamdConfig struct {
	Addr string `mapstructure:"addr"`
}

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// Addr 返回 host:port 形式的 Redis 地址。
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Load reads configuration solely from environment variables (with optional defaults).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "jobportal")
	v.SetDefault("database.user", "jobportal")
	v.SetDefault("database.password", "jobportal")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.public_endpoint", "http://localhost:9000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket_lookup", "auto")
	v.SetDefault("minio.bucket", "resumes")
	v.SetDefault("minio.auto_create_bucket", true)
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.login_fail_window", 15*time.Minute)
	v.SetDefault("auth.login_fail_threshold", 5)
	v.SetDefault("auth.resend_cooldown_window", 10*time.Minute)
	v.SetDefault("auth.resend_cooldown_max_sends", 3)
	v.SetDefault("otp.ttl", 5*time.Minute)
	v.SetDefault("mail.smtp_host", "smtp.gmail.com")
	v.SetDefault("mail.smtp_port", 587)
	v.SetDefault("mail.suppress_send", false)
	v.SetDefault("sms.endpoint", "https://www.fast2sms.com/dev/bulkV2")
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                       "API_PORT",
		"api.allowed_origins":            "API_ALLOWED_ORIGINS",
		"database.host":                  "DATABASE_HOST",
		"database.port":                  "DATABASE_PORT",
		"database.name":                  "POSTGRES_DB",
		"database.user":                  "POSTGRES_USER",
		"database.password":              "POSTGRES_PASSWORD",
		"database.sslmode":               "DATABASE_SSLMODE",
		"redis.host":                     "REDIS_HOST",
		"redis.port":                     "REDIS_PORT",
		"minio.endpoint":                 "MINIO_ENDPOINT",
		"minio.public_endpoint":          "MINIO_PUBLIC_ENDPOINT",
		"minio.region":                   "MINIO_REGION",
		"minio.bucket_lookup":            "MINIO_BUCKET_LOOKUP",
		"minio.access_key_id":            "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key":        "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":                  "MINIO_USE_SSL",
		"minio.bucket":                   "MINIO_BUCKET",
		"minio.auto_create_bucket":       "MINIO_AUTO_CREATE_BUCKET",
		"auth.jwt_secret":                "JWT_SECRET",
		"auth.token_ttl":                 "AUTH_TOKEN_TTL",
		"auth.login_fail_window":         "AUTH_LOGIN_FAIL_WINDOW",
		"auth.login_fail_threshold":      "AUTH_LOGIN_FAIL_THRESHOLD",
		"auth.resend_cooldown_window":    "AUTH_RESEND_COOLDOWN_WINDOW",
		"auth.resend_cooldown_max_sends": "AUTH_RESEND_COOLDOWN_MAX_SENDS",
		"otp.ttl":                        "OTP_TTL",
		"mail.smtp_host":                 "MAIL_SMTP_HOST",
		"mail.smtp_port":                 "MAIL_SMTP_PORT",
		"mail.username":                  "MAIL_USERNAME",
		"mail.password":                  "MAIL_PASSWORD",
		"mail.from":                      "MAIL_FROM",
		"mail.suppress_send":             "MAIL_SUPPRESS_SEND",
		"sms.api_key":                    "SMS_API_KEY",
		"sms.endpoint":                   "SMS_ENDPOINT",
		"clamd.addr":                     "CLAMD_ADDR",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

func validate(cfg Config) error {
	if cfg.API.Port <= 0 {
		return errors.New("api port must be positive")
	}
	if cfg.Database.Host == "" {
		return errors.New("database host is required")
	}
	if cfg.Database.Port <= 0 {
		return errors.New("database port must be positive")
	}
	if cfg.Database.Name == "" {
		return errors.New("database name is required")
	}
	if cfg.Database.User == "" {
		return errors.New("database user is required")
	}
	if cfg.Database.Password == "" {
		return errors.New("database password is required")
	}
	if cfg.Database.SSLMode == "" {
		return errors.New("database sslmode is required")
	}
	if cfg.Redis.Host == "" {
		return errors.New("redis host is required")
	}
	if cfg.Redis.Port <= 0 {
		return errors.New("redis port must be positive")
	}
	if cfg.MinIO.Endpoint == "" {
		return errors.New("minio endpoint is required")
	}
	if cfg.MinIO.PublicEndpoint == "" {
		return errors.New("minio public endpoint is required")
	}
	if cfg.MinIO.Bucket == "" {
		return errors.New("minio bucket is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("jwt secret is required (JWT_SECRET)")
	}
	if cfg.Auth.TokenTTL <= 0 {
		return errors.New("auth token ttl must be positive")
	}
	if cfg.Auth.LoginFailWindow <= 0 {
		return errors.New("auth login fail window must be positive")
	}
	if cfg.Auth.LoginFailThreshold <= 0 {
		return errors.New("auth login fail threshold must be positive")
	}
	if cfg.OTP.TTL <= 0 {
		return errors.New("otp ttl must be positive")
	}
	if cfg.Mail.Username != "" && cfg.Mail.From == "" {
		return errors.New("mail from address is required when mail username is set")
	}
	return nil
}
