// Package config builds the deployment configuration from three ordered
// sources: hard-coded defaults, environment variables and a persisted file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/renzodupont/renzodupont/internal/util/fs"
)

// Environment variables that seed the defaults.
const (
	EnvHost       = "DEPLOY_HOST"
	EnvUser       = "DEPLOY_USER"
	EnvPort       = "DEPLOY_PORT"
	EnvKeyPath    = "DEPLOY_KEY_PATH"
	EnvRemotePath = "DEPLOY_REMOTE_PATH"
	EnvBackupPath = "DEPLOY_BACKUP_PATH"
)

// Hard-coded fallbacks used when neither the file nor the environment set a value.
const (
	DefaultUser       = "root"
	DefaultPort       = 22
	DefaultRemotePath = "/var/www/html"
	DefaultBackupPath = "/var/www/backups"
	DefaultMaxBackups = 5
	DefaultFile       = "deploy-config.json"

	// LocalHost selects the local-filesystem transport instead of SSH.
	LocalHost = "local"
)

// DefaultExcludes are applied when the persisted file carries no list.
var DefaultExcludes = []string{".DS_Store", "*.log", ".git", "node_modules"}

// ErrNotConfigured is returned by Validate when no host has been set.
var ErrNotConfigured = errors.New("deployment not configured: no host set (run with --config)")

// Config is the deployment configuration. It is built once per run and
// passed by value; LocalPath is derived at runtime and never persisted.
type Config struct {
	Host                string   `json:"host" yaml:"host"`
	User                string   `json:"user" yaml:"user"`
	Port                int      `json:"port" yaml:"port"`
	KeyPath             string   `json:"keyPath" yaml:"keyPath"`
	RemotePath          string   `json:"remotePath" yaml:"remotePath"`
	BackupPath          string   `json:"backupPath" yaml:"backupPath"`
	ExcludePatterns     []string `json:"excludePatterns" yaml:"excludePatterns"`
	MaxBackups          int      `json:"maxBackups" yaml:"maxBackups"`
	RequireConfirmation bool     `json:"requireConfirmation" yaml:"requireConfirmation"`
	InsecureHostKey     bool     `json:"insecureHostKey,omitempty" yaml:"insecureHostKey,omitempty"`
	HistoryPath         string   `json:"historyPath,omitempty" yaml:"historyPath,omitempty"`
	BandwidthLimit      int      `json:"bandwidthLimit,omitempty" yaml:"bandwidthLimit,omitempty"` // KiB/s, 0 unlimited

	LocalPath string `json:"-" yaml:"-"`
}

// Defaults returns the built-in configuration with environment overrides
// applied. getenv is usually os.Getenv; tests pass a map lookup.
func Defaults(getenv func(string) string) Config {
	if getenv == nil {
		getenv = os.Getenv
	}
	home, _ := os.UserHomeDir()

	cfg := Config{
		Host:                getenv(EnvHost),
		User:                envOr(getenv, EnvUser, DefaultUser),
		Port:                DefaultPort,
		KeyPath:             envOr(getenv, EnvKeyPath, filepath.Join(home, ".ssh", "id_rsa")),
		RemotePath:          envOr(getenv, EnvRemotePath, DefaultRemotePath),
		BackupPath:          envOr(getenv, EnvBackupPath, DefaultBackupPath),
		ExcludePatterns:     append([]string(nil), DefaultExcludes...),
		MaxBackups:          DefaultMaxBackups,
		RequireConfirmation: true,
	}
	if v := getenv(EnvPort); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("invalid port in environment, using default", "var", EnvPort, "value", v, "default", DefaultPort)
		} else {
			cfg.Port = p
		}
	}
	return cfg
}

// Load overlays the persisted file at path on top of Defaults(getenv).
// A missing file is not an error: the defaults are returned as-is.
func Load(path string, getenv func(string) string) (Config, error) {
	cfg := Defaults(getenv)
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Debug("config file not found, using defaults", "path", path)
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if isYAML(path) {
		err = yaml.Unmarshal(data, &cfg)
	} else {
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	slog.Debug("config loaded", "path", path, "host", cfg.Host)
	return cfg, nil
}

// Save persists cfg to path. LocalPath is never written.
func Save(path string, cfg Config) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirP(dir); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// WithLocalPath returns a copy of c with the derived source directory set.
func (c Config) WithLocalPath(p string) Config {
	c.LocalPath = p
	c.ExcludePatterns = append([]string(nil), c.ExcludePatterns...)
	return c
}

// Configured reports whether a target host has been set.
func (c Config) Configured() bool { return strings.TrimSpace(c.Host) != "" }

// IsLocal reports whether the target is the local filesystem.
func (c Config) IsLocal() bool { return c.Host == LocalHost }

// Target renders user@host:port for messages.
func (c Config) Target() string {
	if c.IsLocal() {
		return "local"
	}
	return fmt.Sprintf("%s@%s:%d", c.User, c.Host, c.Port)
}

// Validate checks invariants that must hold before any remote command runs.
func (c Config) Validate() error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	var problems []string
	if !c.IsLocal() {
		if c.User == "" {
			problems = append(problems, "user is empty")
		}
		if c.Port < 1 || c.Port > 65535 {
			problems = append(problems, fmt.Sprintf("port %d out of range", c.Port))
		}
	}
	if c.MaxBackups < 0 {
		problems = append(problems, fmt.Sprintf("maxBackups must be >= 0, got %d", c.MaxBackups))
	}
	if c.BandwidthLimit < 0 {
		problems = append(problems, fmt.Sprintf("bandwidthLimit must be >= 0, got %d", c.BandwidthLimit))
	}
	if !filepath.IsAbs(c.RemotePath) {
		problems = append(problems, fmt.Sprintf("remotePath must be absolute, got %q", c.RemotePath))
	}
	if !filepath.IsAbs(c.BackupPath) {
		problems = append(problems, fmt.Sprintf("backupPath must be absolute, got %q", c.BackupPath))
	}
	if filepath.IsAbs(c.RemotePath) && filepath.IsAbs(c.BackupPath) && within(c.RemotePath, c.BackupPath) {
		problems = append(problems, "backupPath must not be inside remotePath (sync --delete would remove backups)")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// within reports whether p equals root or lies below it.
func within(root, p string) bool {
	root, p = filepath.Clean(root), filepath.Clean(p)
	if root == p {
		return true
	}
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, "../")
}

func envOr(getenv func(string) string, key, fallback string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return fallback
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
