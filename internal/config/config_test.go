package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points ENV_FILE at a missing file so a developer's .env does not leak in.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))
	for _, k := range []string{
		"ENV", "APP_ENV", "PORT", "DB_ADAPTER", "SQLITE_FILE", "JWT_SECRET", "TOKEN_TTL",
		"BCRYPT_COST", "POSTGRES_DSN", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD",
		"DB_NAME", "DB_SSLMODE", "DB_MAX_OPEN_CONNS", "CORS_ALLOWED_ORIGINS", "MIGRATE_ON_START",
	} {
		t.Setenv(k, "")
	}
}

func TestNewDefaults(t *testing.T) {
	isolate(t)

	c, err := New()
	require.NoError(t, err)
	assert.Equal(t, "5000", c.Port)
	assert.Equal(t, "postgres", c.DBAdapter)
	assert.Equal(t, DefaultJWTSecret, c.JwtSecret)
	assert.True(t, c.UsingDefaultSecret())
	assert.Equal(t, time.Hour, c.TokenTTL)
	assert.Equal(t, 10, c.BcryptCost)
	assert.Equal(t, 10, c.MaxOpenConns)
	assert.True(t, c.MigrateOnStart)
	assert.Equal(t, []string{"*"}, c.CORSAllowedOrigins)
	assert.Equal(t, "postgres://root@localhost:5432/blog_db?sslmode=disable", c.PostgresDSN)
	assert.Equal(t, c.PostgresDSN, c.MigrationDSN())
}

func TestBuildPostgresDSNEscapesPassword(t *testing.T) {
	c := &Config{PostgresHost: "db", PostgresUser: "blog", PostgresPassword: "p@ss/word", PostgresDB: "blog"}
	dsn, err := c.BuildPostgresDSN()
	require.NoError(t, err)
	assert.Equal(t, "postgres://blog:p%40ss%2Fword@db:5432/blog?sslmode=disable", dsn)

	_, err = (&Config{PostgresUser: "u", PostgresDB: "d"}).BuildPostgresDSN()
	assert.Error(t, err)
}

func TestProductionRequiresSecret(t *testing.T) {
	isolate(t)
	t.Setenv("ENV", "production")

	_, err := New()
	require.Error(t, err)

	t.Setenv("JWT_SECRET", "a-real-secret")
	c, err := New()
	require.NoError(t, err)
	assert.True(t, c.IsProduction())
	assert.False(t, c.UsingDefaultSecret())
}

func TestInvalidValues(t *testing.T) {
	cases := map[string]string{
		"PORT":              "http",
		"DB_ADAPTER":        "mysql",
		"TOKEN_TTL":         "soon",
		"BCRYPT_COST":       "ten",
		"DB_MAX_OPEN_CONNS": "0",
		"MIGRATE_ON_START":  "maybe",
	}
	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			isolate(t)
			t.Setenv(k, v)
			_, err := New()
			assert.Error(t, err)
		})
	}
}

func TestEnvFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("DB_ADAPTER=sqlite\nSQLITE_FILE=/tmp/x.db\nCORS_ALLOWED_ORIGINS=http://a.test, http://b.test\n"), 0o600))
	t.Setenv("ENV_FILE", path)
	// Unset so the file can provide them; godotenv never overrides set variables.
	require.NoError(t, os.Unsetenv("DB_ADAPTER"))
	require.NoError(t, os.Unsetenv("SQLITE_FILE"))
	require.NoError(t, os.Unsetenv("CORS_ALLOWED_ORIGINS"))
	t.Cleanup(func() {
		os.Unsetenv("DB_ADAPTER")
		os.Unsetenv("SQLITE_FILE")
		os.Unsetenv("CORS_ALLOWED_ORIGINS")
	})

	c, err := New()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", c.DBAdapter)
	assert.Equal(t, "/tmp/x.db", c.SQLiteFile)
	assert.Equal(t, "/tmp/x.db", c.MigrationDSN())
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, c.CORSAllowedOrigins)
}
