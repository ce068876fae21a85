package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "development"
	AppEnvProd = "production"

	// DevJWTSecret is the signing key used when no secret is configured outside
	// production. Never valid in a production-equivalent deployment.
	DevJWTSecret = "auth-center-development-secret-change-me"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	WeChat        WeChatConfig
	Admin         AdminConfig
	Callback      CallbackConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.JWT.ensureSecret(cfg.App); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env  string `envconfig:"AUTHCENTER_APP_ENV" default:"development"`
	Port string `envconfig:"AUTHCENTER_APP_PORT" default:"8080"`
	// BaseURL is this service's externally reachable address, used when
	// registering provider redirect URIs.
	BaseURL      string `envconfig:"AUTHCENTER_BASE_URL" default:"http://localhost:8080"`
	LogLevel     string `envconfig:"AUTHCENTER_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"AUTHCENTER_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"AUTHCENTER_DB_DSN"`
	Driver string `envconfig:"AUTHCENTER_DB_DRIVER" default:"postgres"`

	MaxOpenConns    int           `envconfig:"AUTHCENTER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"AUTHCENTER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"AUTHCENTER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"AUTHCENTER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"AUTHCENTER_REDIS_URL"`
	Address      string        `envconfig:"AUTHCENTER_REDIS_ADDR"`
	Password     string        `envconfig:"AUTHCENTER_REDIS_PASSWORD"`
	DB           int           `envconfig:"AUTHCENTER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"AUTHCENTER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"AUTHCENTER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"AUTHCENTER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"AUTHCENTER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"AUTHCENTER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret     string        `envconfig:"AUTHCENTER_SECRET"`
	Issuer     string        `envconfig:"AUTHCENTER_JWT_ISSUER" default:"auth-center"`
	SessionTTL time.Duration `envconfig:"AUTHCENTER_SESSION_TTL" default:"168h"`

	// UsingDevSecret is set by Load when the dev fallback kicked in so main can
	// log the degraded mode loudly.
	UsingDevSecret bool `ignored:"true"`
}

func (j *JWTConfig) ensureSecret(app AppConfig) error {
	if j.Secret != "" {
		return nil
	}
	if app.IsProd() {
		return fmt.Errorf("AUTHCENTER_SECRET is required in production")
	}
	j.Secret = DevJWTSecret
	j.UsingDevSecret = true
	return nil
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"AUTHCENTER_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"AUTHCENTER_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"AUTHCENTER_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"AUTHCENTER_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"AUTHCENTER_ARGON_KEY_LEN" default:"32"`
}

// WeChatConfig holds credentials for the two provider applications: the
// official account (embedded-browser authorization) and the open-platform
// website app (QR login). Either pair may be absent, which puts that flow into
// deterministic mock mode.
type WeChatConfig struct {
	OpenAppID     string `envconfig:"WECHAT_APP_ID"`
	OpenAppSecret string `envconfig:"WECHAT_APP_SECRET"`
	MPAppID       string `envconfig:"WECHAT_MP_APPID"`
	MPAppSecret   string `envconfig:"WECHAT_MP_SECRET"`

	// APIBaseURL is overridable so tests can point the verifier at a local server.
	APIBaseURL string `envconfig:"WECHAT_API_BASE_URL" default:"https://api.weixin.qq.com"`
}

type AdminConfig struct {
	// Identifier matches either a user's unionId or any of their openIds.
	// Empty means bootstrap mode: admin checks pass with a loud warning.
	Identifier string `envconfig:"ADMIN_WECHAT_OPENID"`
}

type CallbackConfig struct {
	// AllowedDomains accepts exact hostnames and "*." wildcard entries,
	// comma-separated. Merged with the built-in defaults.
	AllowedDomains []string `envconfig:"ALLOWED_CALLBACK_DOMAINS"`
}

type AuthRateLimitConfig struct {
	LoginWindow     time.Duration `envconfig:"AUTHCENTER_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginPhoneLimit int           `envconfig:"AUTHCENTER_RATE_LIMIT_LOGIN_PHONE_LIMIT" default:"5"`
	LoginIPLimit    int           `envconfig:"AUTHCENTER_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"AUTHCENTER_AUTO_MIGRATE" default:"false"`
}
