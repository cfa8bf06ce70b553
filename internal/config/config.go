package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application's configuration.
type Config struct {
	Server struct {
		Port        string   `yaml:"port"`
		StaticDir   string   `yaml:"static_dir"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`
	Database struct {
		Driver string `yaml:"driver"` // "postgres" or "sqlite"
		URL    string `yaml:"url"`
	} `yaml:"database"`
	Auth struct {
		JWTSecret       string `yaml:"jwt_secret"`
		TokenTTLMinutes int    `yaml:"token_ttl_minutes"`
	} `yaml:"auth"`
	Sheets struct {
		ClientID       string `yaml:"client_id"`
		ClientSecret   string `yaml:"client_secret"`
		RedirectURI    string `yaml:"redirect_uri"`
		SpreadsheetID  string `yaml:"spreadsheet_id"`
		ReadRange      string `yaml:"read_range"`
		AppendRange    string `yaml:"append_range"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
		TokenStore     string `yaml:"token_store"` // "memory" or "database"
	} `yaml:"sheets"`
	Files struct {
		// BaseDir confines workbook paths given in requests. Empty means
		// paths are used as given.
		BaseDir string `yaml:"base_dir"`
	} `yaml:"files"`
	Sync struct {
		IntervalSeconds int `yaml:"interval_seconds"`
	} `yaml:"sync"`
	Log struct {
		Mode string `yaml:"mode"` // "development" or "production"
	} `yaml:"log"`
	Crypto struct {
		MasterKey string `yaml:"master_key"` // base64, 32 bytes
	} `yaml:"crypto"`
}

// LoadConfig reads configuration from the specified YAML file, applies
// defaults and then environment overrides.
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	config.expandEnv()
	config.applyDefaults()
	config.applyEnvOverrides()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) expandEnv() {
	c.Database.URL = os.ExpandEnv(c.Database.URL)
	c.Auth.JWTSecret = os.ExpandEnv(c.Auth.JWTSecret)
	c.Sheets.ClientID = os.ExpandEnv(c.Sheets.ClientID)
	c.Sheets.ClientSecret = os.ExpandEnv(c.Sheets.ClientSecret)
	c.Sheets.RedirectURI = os.ExpandEnv(c.Sheets.RedirectURI)
	c.Sheets.SpreadsheetID = os.ExpandEnv(c.Sheets.SpreadsheetID)
	c.Crypto.MasterKey = os.ExpandEnv(c.Crypto.MasterKey)
	c.Files.BaseDir = os.ExpandEnv(c.Files.BaseDir)
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "5000"
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"*"}
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Auth.TokenTTLMinutes == 0 {
		c.Auth.TokenTTLMinutes = 60
	}
	if c.Sheets.ReadRange == "" {
		c.Sheets.ReadRange = "Sheet1!A2:H"
	}
	if c.Sheets.AppendRange == "" {
		c.Sheets.AppendRange = "Sheet1!A:H"
	}
	if c.Sheets.TimeoutSeconds == 0 {
		c.Sheets.TimeoutSeconds = 30
	}
	if c.Sheets.TokenStore == "" {
		c.Sheets.TokenStore = "memory"
	}
	if c.Log.Mode == "" {
		c.Log.Mode = "development"
	}
}

func (c *Config) applyEnvOverrides() {
	overrides := map[string]*string{
		"PORT":                 &c.Server.Port,
		"DATABASE_DRIVER":      &c.Database.Driver,
		"DATABASE_URL":         &c.Database.URL,
		"JWT_SECRET":           &c.Auth.JWTSecret,
		"GOOGLE_CLIENT_ID":     &c.Sheets.ClientID,
		"GOOGLE_CLIENT_SECRET": &c.Sheets.ClientSecret,
		"GOOGLE_REDIRECT_URI":  &c.Sheets.RedirectURI,
		"SPREADSHEET_ID":       &c.Sheets.SpreadsheetID,
		"MASTER_KEY":           &c.Crypto.MasterKey,
		"FILES_BASE_DIR":       &c.Files.BaseDir,
	}
	for name, field := range overrides {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*field = v
		}
	}
}

// Validate reports configuration that the server cannot start with.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Sheets.TokenStore {
	case "memory":
	case "database":
		if c.Crypto.MasterKey == "" {
			return errors.New("crypto.master_key is required for the database token store")
		}
	default:
		return fmt.Errorf("unsupported sheets token store %q", c.Sheets.TokenStore)
	}
	return nil
}

// SheetsEnabled reports whether the remote spreadsheet adapter is configured.
func (c *Config) SheetsEnabled() bool {
	return c.Sheets.ClientID != "" && c.Sheets.ClientSecret != "" && c.Sheets.SpreadsheetID != ""
}

// TokenTTL is the lifetime of issued session tokens.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLMinutes) * time.Minute
}

// SheetsTimeout bounds every call to the spreadsheet service.
func (c *Config) SheetsTimeout() time.Duration {
	return time.Duration(c.Sheets.TimeoutSeconds) * time.Second
}

// SyncInterval is the period of the background sheet sync, zero when disabled.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.Sync.IntervalSeconds) * time.Second
}
