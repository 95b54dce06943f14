// Package config loads process configuration from an optional YAML file and
// CRM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dukerupert/crm/internal/backup"
)

// Config is the full process configuration.
type Config struct {
	Port           string          `yaml:"port"`
	DataDir        string          `yaml:"data_dir"`
	DBFile         string          `yaml:"db_file"`
	PrefsFile      string          `yaml:"prefs_file"`
	LogLevel       string          `yaml:"log_level"`
	LogFormat      string          `yaml:"log_format"`
	Timezone       string          `yaml:"timezone"`
	MetricsEnabled bool            `yaml:"metrics_enabled"`
	AllowedOrigins []string        `yaml:"allowed_origins"`
	APIToken       string          `yaml:"api_token"`
	Backup         BackupConfig    `yaml:"backup"`
	Mirror         backup.S3Config `yaml:"mirror"`
}

// BackupConfig controls the local backup set.
type BackupConfig struct {
	Subdir    string        `yaml:"subdir"`
	Prefix    string        `yaml:"prefix"`
	Retention int           `yaml:"retention"`
	Interval  time.Duration `yaml:"interval"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Port:           "8080",
		DataDir:        "./data",
		DBFile:         "crm.db",
		PrefsFile:      "preferences.db",
		LogLevel:       "info",
		LogFormat:      "text",
		MetricsEnabled: true,
		Backup: BackupConfig{
			Subdir:    "backups",
			Prefix:    backup.DefaultPrefix,
			Retention: backup.DefaultRetentionLimit,
			Interval:  backup.DefaultInterval,
		},
	}
}

// Load starts from Default, overlays the YAML file named by CRM_CONFIG and
// then any CRM_* environment variables, and validates the result.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CRM_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	setString(&c.Port, "CRM_PORT")
	setString(&c.DataDir, "CRM_DATA_DIR")
	setString(&c.DBFile, "CRM_DB_FILE")
	setString(&c.PrefsFile, "CRM_PREFS_FILE")
	setString(&c.LogLevel, "CRM_LOG_LEVEL")
	setString(&c.LogFormat, "CRM_LOG_FORMAT")
	setString(&c.Timezone, "CRM_TIMEZONE")
	setString(&c.APIToken, "CRM_API_TOKEN")
	setString(&c.Backup.Subdir, "CRM_BACKUP_SUBDIR")
	setString(&c.Backup.Prefix, "CRM_BACKUP_PREFIX")
	setString(&c.Mirror.Endpoint, "CRM_MIRROR_ENDPOINT")
	setString(&c.Mirror.Bucket, "CRM_MIRROR_BUCKET")
	setString(&c.Mirror.Region, "CRM_MIRROR_REGION")
	setString(&c.Mirror.AccessKey, "CRM_MIRROR_ACCESS_KEY")
	setString(&c.Mirror.SecretKey, "CRM_MIRROR_SECRET_KEY")
	setString(&c.Mirror.Prefix, "CRM_MIRROR_PREFIX")

	if v := os.Getenv("CRM_ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("CRM_METRICS_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CRM_METRICS_ENABLED: %w", err)
		}
		c.MetricsEnabled = b
	}
	if v := os.Getenv("CRM_BACKUP_RETENTION"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CRM_BACKUP_RETENTION: %w", err)
		}
		c.Backup.Retention = n
	}
	if v := os.Getenv("CRM_BACKUP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CRM_BACKUP_INTERVAL: %w", err)
		}
		c.Backup.Interval = d
	}
	return nil
}

// Validate rejects settings the backup subsystem cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Backup.Retention < 1 {
		errs = append(errs, fmt.Errorf("backup retention must be at least 1, got %d", c.Backup.Retention))
	}
	if c.Backup.Interval <= 0 {
		errs = append(errs, fmt.Errorf("backup interval must be positive, got %s", c.Backup.Interval))
	}
	if strings.TrimSpace(c.Backup.Prefix) == "" {
		errs = append(errs, errors.New("backup prefix must not be empty"))
	}
	if c.DBFile == "" {
		errs = append(errs, errors.New("database file name must not be empty"))
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("timezone: %w", err))
		}
	}
	return errors.Join(errs...)
}

// DatabasePath is the live CRM database file.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, c.DBFile)
}

// PreferencesPath is the key-value flag store.
func (c *Config) PreferencesPath() string {
	return filepath.Join(c.DataDir, c.PrefsFile)
}

// BackupDir is the directory backups are written to.
func (c *Config) BackupDir() string {
	return filepath.Join(c.DataDir, c.Backup.Subdir)
}

// Location returns the display time zone, defaulting to the local zone.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// BackupManagerConfig derives the backup manager settings.
func (c *Config) BackupManagerConfig() backup.Config {
	return backup.Config{
		DatabasePath:   c.DatabasePath(),
		BackupDir:      c.BackupDir(),
		Prefix:         c.Backup.Prefix,
		RetentionLimit: c.Backup.Retention,
		Interval:       c.Backup.Interval,
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
