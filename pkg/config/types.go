package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Servers   []ServerConfig  `yaml:"servers"`
	Logging   LoggingConfig   `yaml:"logging"`
	Timeouts  TimeoutConfig   `yaml:"timeouts"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Guard     GuardConfig     `yaml:"guard"`
	Janitor   JanitorConfig   `yaml:"janitor"`
}

// ServerConfig is one virtual-host block. Several blocks may share a
// (host, port) pair; they become virtual hosts of the same listener, in
// declaration order.
type ServerConfig struct {
	Host              string         `yaml:"host"`
	Ports             []int          `yaml:"ports"`
	ServerNames       []string       `yaml:"server_names"`
	ErrorPages        map[int]string `yaml:"error_pages"`
	ClientMaxBodySize SizeBytes      `yaml:"client_max_body_size"`
	Routes            []RouteConfig  `yaml:"routes"`
}

// RouteConfig is one path-prefix rule within a server block.
type RouteConfig struct {
	Path           string            `yaml:"path"`
	Root           string            `yaml:"root"`
	Index          string            `yaml:"index"`
	Methods        []string          `yaml:"methods"`
	Autoindex      bool              `yaml:"autoindex"`
	Redirect       string            `yaml:"redirect"`
	RedirectStatus int               `yaml:"redirect_status"`
	UploadDir      string            `yaml:"upload_dir"`
	CGI            map[string]string `yaml:"cgi"` // extension -> interpreter
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// TimeoutConfig holds the reactor and CGI timing knobs.
type TimeoutConfig struct {
	Idle Duration `yaml:"idle"`
	CGI  Duration `yaml:"cgi"`
	Tick Duration `yaml:"tick"`
}

// TelemetryConfig enables the Prometheus admin endpoint when Addr is set.
type TelemetryConfig struct {
	Addr string `yaml:"addr"`
}

// GuardConfig holds the per-client accept rate limit. Zero RPS disables it.
type GuardConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// JanitorConfig holds the scheduled upload-directory sweep.
type JanitorConfig struct {
	Enabled bool     `yaml:"enabled"`
	Cron    string   `yaml:"cron"`
	MaxAge  Duration `yaml:"max_age"`
}

// SizeBytes represents a number of bytes, unmarshaled from human-friendly
// strings like "10MB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*s = 0
		return nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		*s = SizeBytes(v)
		return nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*s = SizeBytes(i)
		return nil
	}
	return fmt.Errorf("invalid size value: %q", node.Value)
}

func (s SizeBytes) Int64() int64 { return int64(s) }

// Duration is a wrapper around time.Duration that supports YAML parsing from
// strings like "30s" or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	// allow numeric seconds
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", node.Value)
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }
