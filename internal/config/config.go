package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// LogLevel defines the minimum severity for log output.
type LogLevel string

const (
	LogLevelDebug   LogLevel = "DEBUG"
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarning LogLevel = "WARNING"
	LogLevelError   LogLevel = "ERROR"
)

// LogFormat selects the log output encoding.
type LogFormat string

const (
	// LogFormatJSON emits one JSON object per event.
	LogFormatJSON LogFormat = "json"
	// LogFormatConsole emits human-readable lines.
	LogFormatConsole LogFormat = "console"
)

// Config is the top-level TOML configuration for a host binary.
type Config struct {
	Peer    *PeerConfig    `toml:"peer,omitempty"`
	HTTP2   *HTTP2Config   `toml:"http2,omitempty"`
	Logging *LoggingConfig `toml:"logging,omitempty"`
}

// PeerConfig describes the remote endpoint the host connects to.
type PeerConfig struct {
	Address        string `toml:"address"`
	ConnectTimeout string `toml:"connect_timeout,omitempty"` // e.g. "10s"
}

// HTTP2Config holds the SETTINGS values the host announces to its peer.
type HTTP2Config struct {
	MaxConcurrentStreams *uint32 `toml:"max_concurrent_streams,omitempty"`
	InitialWindowSize    *uint32 `toml:"initial_window_size,omitempty"`
	DisableFlowControl   *bool   `toml:"disable_flow_control,omitempty"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	LogLevel LogLevel  `toml:"log_level,omitempty"`
	Format   LogFormat `toml:"format,omitempty"`
}

const (
	// DefaultConnectTimeout applies when peer.connect_timeout is unset.
	DefaultConnectTimeout = 10 * time.Second

	// maxWindowSize is the largest valid initial_window_size (2^31 - 1).
	maxWindowSize = (1 << 31) - 1
)

// Load reads, decodes and validates a TOML configuration file. Defaults are
// applied before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	return Parse(string(data))
}

// Parse decodes and validates TOML configuration text.
func Parse(text string) (*Config, error) {
	var cfg Config
	if _, err := toml.Decode(text, &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Peer == nil {
		c.Peer = &PeerConfig{}
	}
	if c.Peer.ConnectTimeout == "" {
		c.Peer.ConnectTimeout = DefaultConnectTimeout.String()
	}
	if c.HTTP2 == nil {
		c.HTTP2 = &HTTP2Config{}
	}
	if c.Logging == nil {
		c.Logging = &LoggingConfig{}
	}
	if c.Logging.LogLevel == "" {
		c.Logging.LogLevel = LogLevelInfo
	}
	if c.Logging.Format == "" {
		c.Logging.Format = LogFormatConsole
	}
}

func (c *Config) validate() error {
	if c.Peer.Address == "" {
		return fmt.Errorf("config: peer.address is required")
	}
	if _, err := time.ParseDuration(c.Peer.ConnectTimeout); err != nil {
		return fmt.Errorf("config: invalid peer.connect_timeout %q: %w", c.Peer.ConnectTimeout, err)
	}
	if w := c.HTTP2.InitialWindowSize; w != nil && *w > maxWindowSize {
		return fmt.Errorf("config: http2.initial_window_size %d exceeds maximum %d", *w, maxWindowSize)
	}
	switch c.Logging.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
	default:
		return fmt.Errorf("config: invalid logging.log_level %q", c.Logging.LogLevel)
	}
	switch c.Logging.Format {
	case LogFormatJSON, LogFormatConsole:
	default:
		return fmt.Errorf("config: invalid logging.format %q", c.Logging.Format)
	}
	return nil
}

// ConnectTimeout returns the parsed peer connect timeout. Validation has
// already ensured the value parses.
func (c *Config) ConnectTimeout() time.Duration {
	d, err := time.ParseDuration(c.Peer.ConnectTimeout)
	if err != nil {
		return DefaultConnectTimeout
	}
	return d
}
