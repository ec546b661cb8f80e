// Package config loads formflow settings from an optional YAML file and
// FORMFLOW_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, so store.path is
// read from FORMFLOW_STORE_PATH.
const EnvPrefix = "FORMFLOW"

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds the settings of the formflow binary.
type Config struct {
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
	Store struct {
		Driver string `mapstructure:"driver"`
		Path   string `mapstructure:"path"`
		DSN    string `mapstructure:"dsn"`
	} `mapstructure:"store"`
	HTTP struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"http"`
	Catalog struct {
		Dir string `mapstructure:"dir"`
	} `mapstructure:"catalog"`
	Archive struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"archive"`
	Tracing struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"tracing"`
	Engine struct {
		AdminRoleID string `mapstructure:"admin_role_id"`
	} `mapstructure:"engine"`
}

var defaults = map[string]any{
	"log.level":            "info",
	"log.format":           "text",
	"store.driver":         DriverSQLite,
	"store.path":           "formflow.db",
	"store.dsn":            "",
	"http.addr":            ":8080",
	"catalog.dir":          "catalog",
	"archive.url":          "",
	"tracing.enabled":      false,
	"engine.admin_role_id": "project-admin",
}

// Load reads path (when non-empty) and overlays the environment. Every key
// has a default, so Load("") with an empty environment yields a usable
// in-directory SQLite setup.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings that have a closed set of values.
func (c *Config) Validate() error {
	var errs []error
	if !slices.Contains([]string{DriverSQLite, DriverPostgres, DriverMemory}, c.Store.Driver) {
		errs = append(errs, fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver))
	}
	if c.Store.Driver == DriverPostgres && c.Store.DSN == "" {
		errs = append(errs, errors.New("store.dsn: required for the postgres driver"))
	}
	if c.Store.Driver == DriverSQLite && c.Store.Path == "" {
		errs = append(errs, errors.New("store.path: required for the sqlite driver"))
	}
	if !slices.Contains([]string{"text", "json"}, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format: must be text or json, got %q", c.Log.Format))
	}
	if strings.TrimSpace(c.Engine.AdminRoleID) == "" {
		errs = append(errs, errors.New("engine.admin_role_id: required"))
	}
	return errors.Join(errs...)
}
