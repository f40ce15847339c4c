package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultJWTSecret is the development fallback for JWT_SECRET. It is refused
// when ENV or APP_ENV says production.
const DefaultJWTSecret = "your_jwt_secret"

type Config struct {
	Env        string
	Port       string
	DBAdapter  string
	SQLiteFile string
	// MigrateOnStart applies embedded migrations before serving.
	MigrateOnStart bool

	JwtSecret  string
	JwtIssuer  string
	TokenTTL   time.Duration
	BcryptCost int

	LogLevel  string
	LogFormat string

	CORSAllowedOrigins []string

	// PostgreSQL connection settings
	PostgresDSN      string
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Pool bounds; a burst queues on MaxOpenConns instead of opening more connections.
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return d, nil
}

func getenvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %q", key, v)
	}
	return b, nil
}

// loadEnvFile reads KEY=VALUE pairs from path without overriding variables
// that are already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

// BuildPostgresDSN constructs a PostgreSQL DSN from individual components or returns the provided DSN
func (c *Config) BuildPostgresDSN() (string, error) {
	if c.PostgresDSN != "" {
		return c.PostgresDSN, nil
	}

	if c.PostgresHost == "" {
		return "", errors.New("DB_HOST or POSTGRES_DSN must be set")
	}
	if c.PostgresUser == "" {
		return "", errors.New("DB_USER must be set")
	}
	if c.PostgresDB == "" {
		return "", errors.New("DB_NAME must be set")
	}

	port := c.PostgresPort
	if port == "" {
		port = "5432"
	}
	sslMode := c.PostgresSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	u := &url.URL{
		Scheme:   "postgres",
		User:     url.User(c.PostgresUser),
		Host:     net.JoinHostPort(c.PostgresHost, port),
		Path:     "/" + c.PostgresDB,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	if c.PostgresPassword != "" {
		u.User = url.UserPassword(c.PostgresUser, c.PostgresPassword)
	}
	return u.String(), nil
}

// MigrationDSN returns the connection string the migrator should use for the
// configured adapter, or "" when the adapter has no schema.
func (c *Config) MigrationDSN() string {
	switch c.DBAdapter {
	case "postgres":
		return c.PostgresDSN
	case "sqlite":
		return c.SQLiteFile
	}
	return ""
}

// IsProduction reports whether ENV/APP_ENV names a production deployment.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// UsingDefaultSecret reports whether tokens would be signed with DefaultJWTSecret.
func (c *Config) UsingDefaultSecret() bool {
	return c.JwtSecret == DefaultJWTSecret
}

// New loads configuration from ENV_FILE (default .env) and the environment.
func New() (*Config, error) {
	if err := loadEnvFile(getenv("ENV_FILE", ".env")); err != nil {
		return nil, fmt.Errorf("env file: %w", err)
	}

	c := &Config{
		Env:        strings.ToLower(getenv("APP_ENV", getenv("ENV", ""))),
		Port:       getenv("PORT", "5000"),
		DBAdapter:  getenv("DB_ADAPTER", "postgres"),
		SQLiteFile: getenv("SQLITE_FILE", "./data/blog.db"),
		JwtSecret:  getenv("JWT_SECRET", DefaultJWTSecret),
		JwtIssuer:  getenv("JWT_ISSUER", "blogapi"),
		LogLevel:   getenv("LOG_LEVEL", "info"),
		LogFormat:  getenv("LOG_FORMAT", "json"),

		PostgresDSN:      getenv("POSTGRES_DSN", ""),
		PostgresHost:     getenv("DB_HOST", "localhost"),
		PostgresPort:     getenv("DB_PORT", "5432"),
		PostgresUser:     getenv("DB_USER", "root"),
		PostgresPassword: getenv("DB_PASSWORD", ""),
		PostgresDB:       getenv("DB_NAME", "blog_db"),
		PostgresSSLMode:  getenv("DB_SSLMODE", "disable"),
	}

	for _, o := range strings.Split(getenv("CORS_ALLOWED_ORIGINS", "*"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			c.CORSAllowedOrigins = append(c.CORSAllowedOrigins, o)
		}
	}

	var err error
	if c.TokenTTL, err = getenvDuration("TOKEN_TTL", time.Hour); err != nil {
		return nil, err
	}
	if c.BcryptCost, err = getenvInt("BCRYPT_COST", 10); err != nil {
		return nil, err
	}
	if c.MaxOpenConns, err = getenvInt("DB_MAX_OPEN_CONNS", 10); err != nil {
		return nil, err
	}
	if c.MaxIdleConns, err = getenvInt("DB_MAX_IDLE_CONNS", 5); err != nil {
		return nil, err
	}
	if c.ConnMaxLifetime, err = getenvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute); err != nil {
		return nil, err
	}
	if c.MigrateOnStart, err = getenvBool("MIGRATE_ON_START", true); err != nil {
		return nil, err
	}

	switch c.DBAdapter {
	case "postgres":
		dsn, err := c.BuildPostgresDSN()
		if err != nil {
			return nil, fmt.Errorf("postgres configuration error: %w", err)
		}
		c.PostgresDSN = dsn
	case "sqlite":
		if c.SQLiteFile == "" {
			return nil, errors.New("SQLITE_FILE must be set when DB_ADAPTER=sqlite")
		}
	case "memory":
	default:
		return nil, fmt.Errorf("unsupported DB_ADAPTER: %s (supported: postgres, sqlite, memory)", c.DBAdapter)
	}

	if c.TokenTTL <= 0 {
		return nil, fmt.Errorf("TOKEN_TTL must be positive, got %s", c.TokenTTL)
	}
	if c.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("DB_MAX_OPEN_CONNS must be positive, got %d", c.MaxOpenConns)
	}

	if c.IsProduction() && (c.JwtSecret == "" || c.UsingDefaultSecret()) {
		return nil, errors.New("JWT_SECRET must be set in production")
	}

	if _, err := strconv.Atoi(c.Port); err != nil {
		return nil, fmt.Errorf("invalid PORT: %s", c.Port)
	}

	return c, nil
}
