package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
)

// Config is built once at startup (env first, then CLI flags) and passed by
// value to everything that needs it.
type Config struct {
	Port              int
	ConnectTimeout    time.Duration
	CommandTimeout    time.Duration
	TransferTimeout   time.Duration
	KeepaliveInterval time.Duration

	SSHConfigFile       string
	KnownHostsFile      string
	InsecureSkipHostKey bool
	IdentityFiles       []string
	// PasswordEnv names an environment variable holding the SSH password.
	PasswordEnv string

	Scheduler string
	LogLevel  string
}

func Default() Config {
	return Config{
		Port:              22,
		ConnectTimeout:    15 * time.Second,
		CommandTimeout:    60 * time.Second,
		TransferTimeout:   10 * time.Minute,
		KeepaliveInterval: 30 * time.Second,
		SSHConfigFile:     "~/.ssh/config",
		KnownHostsFile:    "~/.ssh/known_hosts",
		Scheduler:         "slurm",
		LogLevel:          "info",
	}
}

// Load returns the defaults overridden by JOBDISPATCH_* environment variables.
// Malformed numeric values are ignored.
func Load() Config {
	cfg := Default()

	if n, ok := envInt("JOBDISPATCH_SSH_PORT"); ok {
		cfg.Port = n
	}
	if d, ok := envSeconds("JOBDISPATCH_CONNECT_TIMEOUT_SECONDS"); ok {
		cfg.ConnectTimeout = d
	}
	if d, ok := envSeconds("JOBDISPATCH_COMMAND_TIMEOUT_SECONDS"); ok {
		cfg.CommandTimeout = d
	}
	if d, ok := envSeconds("JOBDISPATCH_TRANSFER_TIMEOUT_SECONDS"); ok {
		cfg.TransferTimeout = d
	}
	if d, ok := envSeconds("JOBDISPATCH_KEEPALIVE_SECONDS"); ok {
		cfg.KeepaliveInterval = d
	}
	if v := os.Getenv("JOBDISPATCH_SSH_CONFIG"); v != "" {
		cfg.SSHConfigFile = v
	}
	if v := os.Getenv("JOBDISPATCH_KNOWN_HOSTS"); v != "" {
		cfg.KnownHostsFile = v
	}
	if v := os.Getenv("JOBDISPATCH_INSECURE_SKIP_HOST_KEY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.InsecureSkipHostKey = b
		}
	}
	if v := os.Getenv("JOBDISPATCH_IDENTITY_FILES"); v != "" {
		for _, p := range strings.Split(v, string(os.PathListSeparator)) {
			if p = strings.TrimSpace(p); p != "" {
				cfg.IdentityFiles = append(cfg.IdentityFiles, p)
			}
		}
	}
	if v := os.Getenv("JOBDISPATCH_PASSWORD_ENV"); v != "" {
		cfg.PasswordEnv = v
	}
	if v := os.Getenv("JOBDISPATCH_SCHEDULER"); v != "" {
		cfg.Scheduler = v
	}
	if v := os.Getenv("JOBDISPATCH_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return cfg
}

// Validate checks ranges and expands ~ in file paths.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if c.ConnectTimeout <= 0 || c.CommandTimeout <= 0 || c.TransferTimeout <= 0 {
		return fmt.Errorf("config: timeouts must be positive")
	}
	if c.KeepaliveInterval < 0 {
		return fmt.Errorf("config: keepalive interval must not be negative")
	}

	var err error
	if c.SSHConfigFile, err = homedir.Expand(c.SSHConfigFile); err != nil {
		return fmt.Errorf("config: ssh config path: %w", err)
	}
	if c.KnownHostsFile, err = homedir.Expand(c.KnownHostsFile); err != nil {
		return fmt.Errorf("config: known_hosts path: %w", err)
	}
	for i, p := range c.IdentityFiles {
		if c.IdentityFiles[i], err = homedir.Expand(p); err != nil {
			return fmt.Errorf("config: identity file %q: %w", p, err)
		}
	}
	return nil
}

func envInt(k string) (int, bool) {
	v := os.Getenv(k)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func envSeconds(k string) (time.Duration, bool) {
	n, ok := envInt(k)
	if !ok {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}
