package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// sessionConfig is the session lifecycle section of config.yaml.
// Zero values defer to the engine defaults.
type sessionConfig struct {
	MaxTranscriptBytes int    `yaml:"max_transcript_bytes"`
	MaxMessages        int    `yaml:"max_messages"`
	IdleTimeout        string `yaml:"idle_timeout"`
}

// archiveConfig is the archive section of config.yaml.
type archiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // empty means $RELAY_HOME/archive.db
}

// relayConfig is the parsed ~/.claude-relay/config.yaml.
type relayConfig struct {
	TelegramToken  string   `yaml:"telegram_token"`
	AllowedUserIDs []int64  `yaml:"allowed_user_ids"`
	ClaudeBinary   string   `yaml:"claude_binary"`
	WorkingDir     string   `yaml:"working_dir"`
	PermissionMode string   `yaml:"permission_mode"`
	AddDirs        []string `yaml:"add_dirs"`
	AllowedTools   []string `yaml:"allowed_tools"`
	InvokeTimeout  string   `yaml:"invoke_timeout"`

	Session sessionConfig `yaml:"session"`
	Archive archiveConfig `yaml:"archive"`
}

// defaultConfig returns the config used when a field (or the whole
// file) is absent. Unmarshalling over this value preserves defaults
// for keys the file does not mention.
func defaultConfig() relayConfig {
	return relayConfig{
		ClaudeBinary:  "claude",
		InvokeTimeout: "5m",
		Archive:       archiveConfig{Enabled: true},
	}
}

// loadConfig reads the config file and applies env overrides
// (RELAY_TELEGRAM_TOKEN, RELAY_CLAUDE_BINARY). A missing file yields
// the defaults; a malformed file is an error.
func loadConfig(path string) (relayConfig, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path) //nolint:gosec // config path is resolved by the application
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Defaults + env only.
	case err != nil:
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if v := os.Getenv("RELAY_TELEGRAM_TOKEN"); v != "" {
		cfg.TelegramToken = v
	}
	if v := os.Getenv("RELAY_CLAUDE_BINARY"); v != "" {
		cfg.ClaudeBinary = v
	}

	return cfg, nil
}

// invokeTimeout parses the configured invocation timeout.
func (c relayConfig) invokeTimeout() (time.Duration, error) {
	if c.InvokeTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.InvokeTimeout)
	if err != nil {
		return 0, fmt.Errorf("invoke_timeout %q: %w", c.InvokeTimeout, err)
	}
	return d, nil
}

// idleTimeout parses the configured session idle timeout.
func (c relayConfig) idleTimeout() (time.Duration, error) {
	if c.Session.IdleTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Session.IdleTimeout)
	if err != nil {
		return 0, fmt.Errorf("session.idle_timeout %q: %w", c.Session.IdleTimeout, err)
	}
	return d, nil
}

// validate checks the fields the serving path cannot run without.
func (c relayConfig) validate() error {
	if c.TelegramToken == "" {
		return errors.New("telegram_token is not set (config.yaml or RELAY_TELEGRAM_TOKEN)")
	}
	if _, err := c.invokeTimeout(); err != nil {
		return err
	}
	if _, err := c.idleTimeout(); err != nil {
		return err
	}
	return nil
}

// starterConfig is written by `relay init`.
const starterConfig = `# claude-telegram-relay configuration.
#
# Token from @BotFather. RELAY_TELEGRAM_TOKEN overrides this value.
telegram_token: ""

# Telegram user IDs allowed to talk to the relay. Everyone else is
# politely rejected. An empty list rejects everyone.
allowed_user_ids: []

# The assistant CLI. RELAY_CLAUDE_BINARY overrides this value.
claude_binary: claude

# Working directory for CLI invocations. Empty means the relay home.
working_dir: ""

# Passed through to the CLI when set.
permission_mode: ""
add_dirs: []
allowed_tools: []

# How long one invocation may run before SIGTERM/SIGKILL escalation.
invoke_timeout: 5m

session:
  # Transcript cap in bytes; whole oldest entries are dropped past it.
  max_transcript_bytes: 16384
  # Messages before the session is retired and archived.
  max_messages: 40
  # Inactivity window after which the next message starts fresh.
  idle_timeout: 2h

archive:
  # Closed sessions land in a sqlite archive with short summaries.
  enabled: true
  # Empty means $RELAY_HOME/archive.db.
  path: ""
`
