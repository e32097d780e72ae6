package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "CLEARINSURE"

	AppEnvDev  = "dev"
	AppEnvProd = "production"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Storage       StorageConfig
	AuthRateLimit AuthRateLimitConfig
	Seed          SeedConfig
	Fraud         FraudConfig
}

// Load reads the environment (after godotenv has populated it) into Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CLEARINSURE_APP_ENV" default:"dev"`
	Port         string `envconfig:"CLEARINSURE_APP_PORT" default:"3000"`
	LogLevel     string `envconfig:"CLEARINSURE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CLEARINSURE_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool   `envconfig:"CLEARINSURE_AUTO_MIGRATE" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"CLEARINSURE_DB_DSN"`
	Driver string `envconfig:"CLEARINSURE_DB_DRIVER" default:"postgres"`

	MaxOpenConns    int           `envconfig:"CLEARINSURE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CLEARINSURE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CLEARINSURE_DB_CONN_MAX_LIFETIME" default:"1h"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CLEARINSURE_REDIS_URL"`
	Address      string        `envconfig:"CLEARINSURE_REDIS_ADDR"`
	Password     string        `envconfig:"CLEARINSURE_REDIS_PASSWORD"`
	DB           int           `envconfig:"CLEARINSURE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CLEARINSURE_REDIS_POOL_SIZE" default:"10"`
	DialTimeout  time.Duration `envconfig:"CLEARINSURE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CLEARINSURE_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"CLEARINSURE_REDIS_WRITE_TIMEOUT" default:"3s"`
	DraftTTL     time.Duration `envconfig:"CLEARINSURE_DRAFT_TTL" default:"30m"`
}

type JWTConfig struct {
	Secret string        `envconfig:"CLEARINSURE_JWT_SECRET" required:"true"`
	TTL    time.Duration `envconfig:"CLEARINSURE_JWT_TTL" default:"168h"`
}

type StorageConfig struct {
	Driver         string        `envconfig:"CLEARINSURE_STORAGE_DRIVER" default:"local"`
	RootDir        string        `envconfig:"CLEARINSURE_UPLOAD_DIR" default:"uploads"`
	SupabaseURL    string        `envconfig:"CLEARINSURE_SUPABASE_URL"`
	SupabaseKey    string        `envconfig:"CLEARINSURE_SUPABASE_SERVICE_KEY"`
	SupabaseBucket string        `envconfig:"CLEARINSURE_SUPABASE_BUCKET"`
	SignedURLTTL   time.Duration `envconfig:"CLEARINSURE_SIGNED_URL_TTL" default:"60s"`
	MaxUploadMB    int           `envconfig:"CLEARINSURE_MAX_UPLOAD_MB" default:"10"`
}

type AuthRateLimitConfig struct {
	LoginWindow     time.Duration `envconfig:"CLEARINSURE_LOGIN_RATE_WINDOW" default:"1m"`
	LoginEmailLimit int           `envconfig:"CLEARINSURE_LOGIN_RATE_EMAIL_LIMIT" default:"5"`
	LoginIPLimit    int           `envconfig:"CLEARINSURE_LOGIN_RATE_IP_LIMIT" default:"20"`
}

// SeedConfig holds the reference data written by the seed command.
type SeedConfig struct {
	AdminUsername    string   `envconfig:"CLEARINSURE_SEED_ADMIN_USERNAME" default:"admin"`
	AdminEmail       string   `envconfig:"CLEARINSURE_SEED_ADMIN_EMAIL" default:"admin@clearinsure.com"`
	AdminPassword    string   `envconfig:"CLEARINSURE_SEED_ADMIN_PASSWORD"`
	AdminStaffID     string   `envconfig:"CLEARINSURE_SEED_ADMIN_STAFF_ID" default:"ADMIN001"`
	Companies        []string `envconfig:"CLEARINSURE_SEED_COMPANIES" default:"Jubilee Insurance,Britam,CIC Insurance,APA Insurance,Madison Insurance"`
	RegulatoryBodies []string `envconfig:"CLEARINSURE_SEED_REGULATORY_BODIES" default:"Insurance Regulatory Authority,National Transport and Safety Authority"`
	DefaultRates     bool     `envconfig:"CLEARINSURE_SEED_DEFAULT_RATES" default:"true"`
}

type FraudConfig struct {
	MinScore int `envconfig:"CLEARINSURE_FRAUD_MIN_SCORE" default:"5"`
	MaxScore int `envconfig:"CLEARINSURE_FRAUD_MAX_SCORE" default:"45"`
}

func (c *Config) validate() error {
	switch strings.ToLower(c.DB.Driver) {
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("%s_DB_DSN is required for the postgres driver", EnvPrefix)
		}
	case "sqlite":
		if c.DB.DSN == "" {
			c.DB.DSN = "clearinsure.db"
		}
	default:
		return fmt.Errorf("unsupported db driver %q", c.DB.Driver)
	}

	switch strings.ToLower(c.Storage.Driver) {
	case "local":
	case "supabase":
		if c.Storage.SupabaseURL == "" || c.Storage.SupabaseKey == "" || c.Storage.SupabaseBucket == "" {
			return fmt.Errorf("supabase storage requires url, service key and bucket")
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", c.Storage.Driver)
	}

	if c.Fraud.MinScore > c.Fraud.MaxScore {
		return fmt.Errorf("fraud min score %d exceeds max %d", c.Fraud.MinScore, c.Fraud.MaxScore)
	}
	return nil
}
