package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func clearOverrides(t *testing.T) {
	t.Helper()
	for _, name := range []string{"PORT", "DATABASE_DRIVER", "DATABASE_URL", "JWT_SECRET",
		"GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET", "GOOGLE_REDIRECT_URI", "SPREADSHEET_ID", "MASTER_KEY", "FILES_BASE_DIR"} {
		t.Setenv(name, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearOverrides(t)
	path := writeConfig(t, `
database:
  url: "postgres://localhost/employees"
auth:
  jwt_secret: "s3cret"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "5000", cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, time.Hour, cfg.TokenTTL())
	assert.Equal(t, "Sheet1!A2:H", cfg.Sheets.ReadRange)
	assert.Equal(t, "Sheet1!A:H", cfg.Sheets.AppendRange)
	assert.Equal(t, 30*time.Second, cfg.SheetsTimeout())
	assert.Equal(t, "memory", cfg.Sheets.TokenStore)
	assert.Equal(t, time.Duration(0), cfg.SyncInterval())
	assert.Equal(t, "development", cfg.Log.Mode)
	assert.False(t, cfg.SheetsEnabled())
}

func TestLoadConfig_ExpandsAndOverridesFromEnv(t *testing.T) {
	clearOverrides(t)
	t.Setenv("TEST_DB_URL", "file:test.db")
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("PORT", "8088")
	t.Setenv("SPREADSHEET_ID", "sheet-123")
	t.Setenv("TEST_DATA_DIR", "/srv/data")

	path := writeConfig(t, `
server:
  port: "9000"
database:
  driver: sqlite
  url: "${TEST_DB_URL}"
auth:
  jwt_secret: "from-file"
sheets:
  client_id: "id"
  client_secret: "secret"
files:
  base_dir: "${TEST_DATA_DIR}/xlsx"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "file:test.db", cfg.Database.URL)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, "8088", cfg.Server.Port)
	assert.Equal(t, "sheet-123", cfg.Sheets.SpreadsheetID)
	assert.Equal(t, "/srv/data/xlsx", cfg.Files.BaseDir)
	assert.True(t, cfg.SheetsEnabled())
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yml"))
		assert.ErrorContains(t, err, "failed to open config file")
	})

	t.Run("bad yaml", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "server: [unclosed"))
		assert.ErrorContains(t, err, "failed to decode config file")
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := &Config{}
		c.Database.URL = "postgres://x"
		c.Auth.JWTSecret = "k"
		c.applyDefaults()
		return c
	}

	require.NoError(t, valid().Validate())

	c := valid()
	c.Auth.JWTSecret = ""
	assert.ErrorContains(t, c.Validate(), "jwt_secret")

	c = valid()
	c.Database.URL = ""
	assert.ErrorContains(t, c.Validate(), "database.url")

	c = valid()
	c.Database.Driver = "mysql"
	assert.ErrorContains(t, c.Validate(), "unsupported database driver")

	c = valid()
	c.Sheets.TokenStore = "database"
	assert.ErrorContains(t, c.Validate(), "master_key")

	c.Crypto.MasterKey = "a2V5"
	assert.NoError(t, c.Validate())

	c.Sheets.TokenStore = "redis"
	assert.ErrorContains(t, c.Validate(), "unsupported sheets token store")
}
