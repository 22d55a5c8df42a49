package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server       ServerConfig
	Redis        RedisConfig
	Database     DatabaseConfig
	JWT          JWTConfig
	Zitadel      ZitadelConfig
	RateLimit    RateLimitConfig
	Pollinations PollinationsConfig
	Groq         GroqConfig
	R2           R2Config
	Credentials  CredentialsConfig
	Gateway      GatewayConfig
}

type GatewayConfig struct {
	Enabled bool
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type DatabaseConfig struct {
	Path string
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type ZitadelConfig struct {
	Domain   string
	ClientID string
	Issuer   string
}

// TierConfig is one (limit, window) pair for an endpoint key-tier.
type TierConfig struct {
	Limit    int
	WindowMs int
}

// Window returns the tier window as a duration.
func (t TierConfig) Window() time.Duration {
	return time.Duration(t.WindowMs) * time.Millisecond
}

type RateLimitConfig struct {
	Generate     TierConfig
	GenerateAnon TierConfig
	Enhance      TierConfig
	EnhanceAnon  TierConfig
}

type PollinationsConfig struct {
	BaseURL     string
	APIKey      string // service-level fallback key
	Timeout     int    // seconds, per attempt
	MaxRetries  int
	BaseDelayMs int
	MaxDelayMs  int
}

type GroqConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type CredentialsConfig struct {
	MasterSecret string
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("POLLINATIONS_API_KEY")
	readSecret("GROQ_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("ZITADEL_CLIENT_ID")
	readSecret("CREDENTIALS_MASTER_SECRET")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("database.path", "DATABASE_PATH")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("zitadel.domain", "ZITADEL_DOMAIN")
	_ = viper.BindEnv("zitadel.client_id", "ZITADEL_CLIENT_ID")
	_ = viper.BindEnv("zitadel.issuer", "ZITADEL_ISSUER")
	_ = viper.BindEnv("pollinations.base_url", "POLLINATIONS_BASE_URL")
	_ = viper.BindEnv("pollinations.api_key", "POLLINATIONS_API_KEY")
	_ = viper.BindEnv("pollinations.timeout", "POLLINATIONS_TIMEOUT")
	_ = viper.BindEnv("pollinations.max_retries", "POLLINATIONS_MAX_RETRIES")
	_ = viper.BindEnv("pollinations.base_delay_ms", "POLLINATIONS_BASE_DELAY_MS")
	_ = viper.BindEnv("pollinations.max_delay_ms", "POLLINATIONS_MAX_DELAY_MS")
	_ = viper.BindEnv("groq.api_key", "GROQ_API_KEY")
	_ = viper.BindEnv("groq.base_url", "GROQ_BASE_URL")
	_ = viper.BindEnv("groq.model", "GROQ_MODEL")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = viper.BindEnv("credentials.master_secret", "CREDENTIALS_MASTER_SECRET")
	_ = viper.BindEnv("gateway.enabled", "GATEWAY_AUTH_ENABLED")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("database.path", "mediaforge.db")
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)

	// Rate limit tiers: (limit, window) per endpoint and key-tier
	viper.SetDefault("ratelimit.generate.limit", 30)
	viper.SetDefault("ratelimit.generate.window_ms", 60_000)
	viper.SetDefault("ratelimit.generate_anon.limit", 5)
	viper.SetDefault("ratelimit.generate_anon.window_ms", 60_000)
	viper.SetDefault("ratelimit.enhance.limit", 60)
	viper.SetDefault("ratelimit.enhance.window_ms", 60_000)
	viper.SetDefault("ratelimit.enhance_anon.limit", 10)
	viper.SetDefault("ratelimit.enhance_anon.window_ms", 60_000)

	// Pollinations defaults
	viper.SetDefault("pollinations.base_url", "https://image.pollinations.ai")
	viper.SetDefault("pollinations.timeout", 120)
	viper.SetDefault("pollinations.max_retries", 3)
	viper.SetDefault("pollinations.base_delay_ms", 2000)
	viper.SetDefault("pollinations.max_delay_ms", 30_000)

	// Groq defaults
	viper.SetDefault("groq.base_url", "https://api.groq.com/openai/v1")
	viper.SetDefault("groq.model", "llama-3.3-70b-versatile")

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Database: DatabaseConfig{
			Path: viper.GetString("database.path"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		Zitadel: ZitadelConfig{
			Domain:   viper.GetString("zitadel.domain"),
			ClientID: viper.GetString("zitadel.client_id"),
			Issuer:   viper.GetString("zitadel.issuer"),
		},
		RateLimit: RateLimitConfig{
			Generate: TierConfig{
				Limit:    viper.GetInt("ratelimit.generate.limit"),
				WindowMs: viper.GetInt("ratelimit.generate.window_ms"),
			},
			GenerateAnon: TierConfig{
				Limit:    viper.GetInt("ratelimit.generate_anon.limit"),
				WindowMs: viper.GetInt("ratelimit.generate_anon.window_ms"),
			},
			Enhance: TierConfig{
				Limit:    viper.GetInt("ratelimit.enhance.limit"),
				WindowMs: viper.GetInt("ratelimit.enhance.window_ms"),
			},
			EnhanceAnon: TierConfig{
				Limit:    viper.GetInt("ratelimit.enhance_anon.limit"),
				WindowMs: viper.GetInt("ratelimit.enhance_anon.window_ms"),
			},
		},
		Pollinations: PollinationsConfig{
			BaseURL:     viper.GetString("pollinations.base_url"),
			APIKey:      viper.GetString("pollinations.api_key"),
			Timeout:     viper.GetInt("pollinations.timeout"),
			MaxRetries:  viper.GetInt("pollinations.max_retries"),
			BaseDelayMs: viper.GetInt("pollinations.base_delay_ms"),
			MaxDelayMs:  viper.GetInt("pollinations.max_delay_ms"),
		},
		Groq: GroqConfig{
			APIKey:  viper.GetString("groq.api_key"),
			BaseURL: viper.GetString("groq.base_url"),
			Model:   viper.GetString("groq.model"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
		},
		Credentials: CredentialsConfig{
			MasterSecret: viper.GetString("credentials.master_secret"),
		},
		Gateway: GatewayConfig{
			Enabled: viper.GetBool("gateway.enabled"),
		},
	}

	return cfg, nil
}
