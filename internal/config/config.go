package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverSQLite   = "sqlite"

	DenylistDriverRedis = "redis"
	DenylistDriverBolt  = "bolt"
)

type Config struct {
	Env        string `yaml:"env" env:"ENV" env-default:"local"`
	Tokens     `yaml:"tokens"`
	Password   `yaml:"password"`
	Storage    `yaml:"storage"`
	Postgres   `yaml:"postgres"`
	Redis      `yaml:"redis"`
	Denylist   `yaml:"denylist"`
	RabbitMQ   `yaml:"rabbitmq"`
	HTTPServer `yaml:"http_server"`
	Cleanup    `yaml:"cleanup"`
	Email      `yaml:"email"`
}

type HTTPServer struct {
	Address     string        `yaml:"address" env-default:"localhost:8080"`
	Timeout     time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
	// PublicURL is the front-end origin used to build password-reset links.
	PublicURL string `yaml:"public_url" env:"PUBLIC_URL" env-default:"http://localhost:3000"`
}

type Storage struct {
	Driver     string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"postgres"`
	SQLitePath string `yaml:"sqlite_path" env-default:"./data/auth.db"`
}

type Postgres struct {
	Host     string `yaml:"host" env:"POSTGRES_HOST" env-default:"postgres"`
	Port     int    `yaml:"port" env:"POSTGRES_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"POSTGRES_USER"`
	Password string `yaml:"password" env:"POSTGRES_PASSWORD"`
	DBName   string `yaml:"dbname" env:"POSTGRES_DB"`
	SSLMode  string `yaml:"sslmode" env-default:"disable"`
}

type Redis struct {
	Address  string `yaml:"address" env:"REDIS_ADDRESS" env-default:"redis:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env-default:"0"`
}

type Denylist struct {
	Driver   string `yaml:"driver" env:"DENYLIST_DRIVER" env-default:"bolt"`
	BoltPath string `yaml:"bolt_path" env-default:"./data/reset_denylist.db"`
}

type Tokens struct {
	Secret                    string        `yaml:"secret" env:"TOKEN_SECRET" env-required:"true"`
	Issuer                    string        `yaml:"issuer" env-default:"marketplace-auth"`
	Audience                  string        `yaml:"audience" env-default:"marketplace-api"`
	AccessTokenTTL            time.Duration `yaml:"access_token_ttl" env-default:"15m"`
	RefreshTokenTTL           time.Duration `yaml:"refresh_token_ttl" env-default:"168h"`
	RememberMeRefreshTokenTTL time.Duration `yaml:"remember_me_refresh_token_ttl" env-default:"720h"`
	PasswordResetTokenTTL     time.Duration `yaml:"password_reset_token_ttl" env-default:"1h"`
}

type Password struct {
	BcryptCost int `yaml:"bcrypt_cost" env-default:"10"`
}

type RabbitMQ struct {
	URL       string `yaml:"url" env:"RABBITMQ_URL" env-required:"true"`
	QueueName string `yaml:"queue_name" env-default:"emails"`
}

type Cleanup struct {
	// Schedule is a six-field cron expression (with seconds).
	Schedule string `yaml:"schedule" env-default:"0 0 * * * *"`
}

type Email struct {
	Host     string `yaml:"host" env:"SMTP_HOST" env-default:"smtp.gmail.com"`
	Port     int    `yaml:"port" env:"SMTP_PORT" env-default:"587"`
	Username string `yaml:"username" env:"SMTP_USERNAME"`
	Password string `yaml:"password" env:"SMTP_PASSWORD"`
}

// MustLoad reads the config from the -config flag or CONFIG_PATH.
func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		panic("config path is empty")
	}

	return MustLoadPath(configPath)
}

func MustLoadPath(configPath string) *Config {
	cfg, err := LoadPath(configPath)
	if err != nil {
		panic(err.Error())
	}

	return cfg
}

func LoadPath(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, &LoadError{Reason: "Config file does not exist: " + configPath}
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, &LoadError{Reason: "Failed to read config: " + err.Error()}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

type LoadError struct {
	Reason string
}

func (e *LoadError) Error() string {
	return e.Reason
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case StorageDriverPostgres, StorageDriverSQLite:
	default:
		return &LoadError{Reason: "unknown storage driver: " + c.Storage.Driver}
	}

	switch c.Denylist.Driver {
	case DenylistDriverRedis, DenylistDriverBolt:
	default:
		return &LoadError{Reason: "unknown denylist driver: " + c.Denylist.Driver}
	}

	if len(c.Tokens.Secret) < 32 {
		return &LoadError{Reason: "token secret must be at least 32 characters"}
	}

	if c.Tokens.AccessTokenTTL <= 0 || c.Tokens.RefreshTokenTTL <= 0 ||
		c.Tokens.RememberMeRefreshTokenTTL <= 0 || c.Tokens.PasswordResetTokenTTL <= 0 {
		return &LoadError{Reason: "token TTLs must be positive"}
	}

	if c.Tokens.RememberMeRefreshTokenTTL < c.Tokens.RefreshTokenTTL {
		return &LoadError{Reason: "remember_me_refresh_token_ttl must not be shorter than refresh_token_ttl"}
	}

	return nil
}

// * fetchConfigPath берет путь к конфигу из флага или переменной окружения
func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	return res
}
