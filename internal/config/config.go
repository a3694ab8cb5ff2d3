// Package config loads agent settings from defaults, an optional YAML file
// and FIELDSYNC_* environment variables, in increasing precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	apperrors "github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/errors"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/logging"
)

// Config holds every tunable of the agent.
//
// HostConnectivity means the host application pushes reachability through
// the status API. The agent then probes once at startup and never again, so
// a pushed state is not overwritten by the next probe. Otherwise the probe
// runs every ProbeInterval and its result wins over pushed states.
type Config struct {
	DataDir         string        `env:"FIELDSYNC_DATA_DIR" yaml:"data_dir"`
	APIURL          string        `env:"FIELDSYNC_API_URL" yaml:"api_url"`
	TokenFile       string        `env:"FIELDSYNC_TOKEN_FILE" yaml:"token_file"`
	Token           string        `env:"FIELDSYNC_TOKEN" yaml:"token"`
	SyncInterval    time.Duration `env:"FIELDSYNC_SYNC_INTERVAL" yaml:"sync_interval"`
	MaxAttempts     int           `env:"FIELDSYNC_MAX_ATTEMPTS" yaml:"max_attempts"`
	SubmitTimeout   time.Duration `env:"FIELDSYNC_SUBMIT_TIMEOUT" yaml:"submit_timeout"`
	ProbeURL        string        `env:"FIELDSYNC_PROBE_URL" yaml:"probe_url"`
	ProbeInterval   time.Duration `env:"FIELDSYNC_PROBE_INTERVAL" yaml:"probe_interval"`
	ListenAddr      string        `env:"FIELDSYNC_LISTEN_ADDR" yaml:"listen_addr"`
	LogLevel        string        `env:"FIELDSYNC_LOG_LEVEL" yaml:"log_level"`
	RequireLocation bool          `env:"FIELDSYNC_REQUIRE_LOCATION" yaml:"require_location"`

	HostConnectivity bool `env:"FIELDSYNC_HOST_CONNECTIVITY" yaml:"host_connectivity"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		DataDir:       defaultDataDir(),
		APIURL:        "http://localhost:3001",
		SyncInterval:  5 * time.Minute,
		MaxAttempts:   3,
		SubmitTimeout: 30 * time.Second,
		ProbeInterval: 30 * time.Second,
		ListenAddr:    "127.0.0.1:8090",
		LogLevel:      "INFO",
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fieldsync"
	}
	return filepath.Join(home, ".fieldsync")
}

// Load builds a Config. path may be empty, in which case no file is read.
func Load(path string) (Config, error) {
	c := Default()

	if path != "" {
		if err := c.mergeFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := env.Parse(&c); err != nil {
		return Config{}, apperrors.Wrap(apperrors.ErrConfigInvalid, "failed to parse environment", err)
	}

	c.APIURL = strings.TrimRight(c.APIURL, "/")
	if c.ProbeURL == "" {
		c.ProbeURL = c.APIURL + "/health"
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrConfigInvalid, fmt.Sprintf("failed to read config file %s", path), err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return apperrors.Wrap(apperrors.ErrConfigInvalid, fmt.Sprintf("failed to parse config file %s", path), err)
	}
	return nil
}

// Validate rejects settings the agent cannot run with.
func (c Config) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return apperrors.New(apperrors.ErrConfigInvalid, fmt.Sprintf(format, args...))
	}

	if c.DataDir == "" {
		return invalid("data_dir is required")
	}
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("api_url must be an absolute http(s) URL, got %q", c.APIURL)
	}
	if c.SyncInterval <= 0 {
		return invalid("sync_interval must be positive, got %s", c.SyncInterval)
	}
	if c.MaxAttempts < 1 {
		return invalid("max_attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.SubmitTimeout <= 0 {
		return invalid("submit_timeout must be positive, got %s", c.SubmitTimeout)
	}
	if c.ProbeInterval <= 0 {
		return invalid("probe_interval must be positive, got %s", c.ProbeInterval)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return invalid("log_level: %v", err)
	}
	return nil
}

// Level returns the parsed log level. Call after Validate.
func (c Config) Level() logging.LogLevel {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return logging.LevelInfo
	}
	return level
}
