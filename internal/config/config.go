// Package config holds the simulation's run configuration: worker count,
// password length, round timeout and the optional status and history
// outputs.
//
// Values are layered: Default, then an optional YAML file (Load), then
// environment variables (ApplyEnv), then command-line flags set by the
// caller. Validate must pass before anything is started.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidPasswordLength is returned for lengths that are not a
	// positive multiple of 8 or exceed MaxPasswordLength.
	ErrInvalidPasswordLength = errors.New("password length must be a positive multiple of 8, at most 1024")

	// ErrInvalidTimeout is returned for timeouts above MaxTimeout.
	ErrInvalidTimeout = errors.New("timeout is too large")

	// ErrInvalidWorkers is returned for a negative worker count.
	ErrInvalidWorkers = errors.New("number of decrypters must not be negative")

	// ErrInvalidPause is returned for a negative pause between rounds.
	ErrInvalidPause = errors.New("pause between rounds must not be negative")
)

const (
	// MaxPasswordLength is the longest password, in bytes, a round may use.
	MaxPasswordLength = 1024

	// MaxTimeout is the largest timeout in seconds that fits a time.Duration.
	MaxTimeout = math.MaxInt64 / int64(time.Second)
)

// Environment variables read by ApplyEnv.
const (
	EnvStatusAddr   = "CRACKER_STATUS_ADDR"
	EnvHistoryFile  = "CRACKER_HISTORY_FILE"
	EnvHistoryLimit = "CRACKER_HISTORY_LIMIT"
)

// Config is the complete run configuration.
type Config struct {
	StatusAddr     string        `yaml:"status_addr"`     // empty disables the status server
	HistoryFile    string        `yaml:"history_file"`    // empty disables the YAML export
	Pause          time.Duration `yaml:"pause"`           // delay between rounds
	Workers        int           `yaml:"workers"`         // number of decrypters
	PasswordLength int           `yaml:"password_length"` // bytes, multiple of 8
	Timeout        int           `yaml:"timeout"`         // seconds, <= 0 waits indefinitely
	HistoryLimit   int           `yaml:"history_limit"`   // finished rounds kept in memory
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Workers:        4,
		PasswordLength: 16,
		Timeout:        -1,
		Pause:          time.Second,
		HistoryLimit:   1000,
	}
}

// Load reads a YAML file on top of Default. Keys missing from the file keep
// their default values.
//
// Example file:
//
//	workers: 8
//	password_length: 24
//	timeout: 10
//	pause: 500ms
//	status_addr: ":8090"
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides the output settings from the environment.
// Unset or empty variables leave the current values untouched.
func (c *Config) ApplyEnv() error {
	c.StatusAddr = getenv(EnvStatusAddr, c.StatusAddr)
	c.HistoryFile = getenv(EnvHistoryFile, c.HistoryFile)
	if v := os.Getenv(EnvHistoryLimit); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvHistoryLimit, err)
		}
		c.HistoryLimit = n
	}
	return nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.PasswordLength <= 0 || c.PasswordLength%8 != 0 || c.PasswordLength > MaxPasswordLength {
		return fmt.Errorf("%w (got %d)", ErrInvalidPasswordLength, c.PasswordLength)
	}
	if int64(c.Timeout) > MaxTimeout {
		return fmt.Errorf("%w (got %d, max %d seconds)", ErrInvalidTimeout, c.Timeout, MaxTimeout)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w (got %d)", ErrInvalidWorkers, c.Workers)
	}
	if c.Pause < 0 {
		return fmt.Errorf("%w (got %v)", ErrInvalidPause, c.Pause)
	}
	return nil
}

// KeyLength returns the key length in bytes for the configured password length.
func (c Config) KeyLength() int {
	return c.PasswordLength / 8
}

// TimeoutDuration returns the round timeout, or 0 when rounds wait indefinitely.
func (c Config) TimeoutDuration() time.Duration {
	if c.Timeout <= 0 {
		return 0
	}
	return time.Duration(c.Timeout) * time.Second
}

// getenv returns the value of key, or def if the variable is unset or empty.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
