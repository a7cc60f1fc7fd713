package config

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by Load when the file leaves a knob unset.
const (
	DefaultIdleTimeout = 30 * time.Second
	DefaultCGITimeout  = 10 * time.Second
	DefaultTick        = time.Second
	DefaultMaxBody     = 1 << 20 // 1 MiB
)

var allowedMethods = map[string]struct{}{"GET": {}, "POST": {}, "DELETE": {}}

var redirectStatuses = map[int]struct{}{301: {}, 302: {}, 303: {}, 307: {}, 308: {}}

// Load reads, decodes and validates the YAML configuration at path.
// Unknown keys are rejected so typos fail at boot rather than silently.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Timeouts.Idle.Duration() <= 0 {
		c.Timeouts.Idle = Duration(DefaultIdleTimeout)
	}
	if c.Timeouts.CGI.Duration() <= 0 {
		c.Timeouts.CGI = Duration(DefaultCGITimeout)
	}
	if c.Timeouts.Tick.Duration() <= 0 {
		c.Timeouts.Tick = Duration(DefaultTick)
	}
	for i := range c.Servers {
		s := &c.Servers[i]
		if s.Host == "" {
			s.Host = "127.0.0.1"
		}
		if s.ClientMaxBodySize <= 0 {
			s.ClientMaxBodySize = DefaultMaxBody
		}
		for j := range s.Routes {
			r := &s.Routes[j]
			if r.Redirect != "" && r.RedirectStatus == 0 {
				r.RedirectStatus = 301
			}
		}
	}
}

// Validate checks the configuration for errors that must be fatal at boot.
func (c *Config) Validate() error {
	if len(c.Servers) == 0 {
		return fmt.Errorf("config: no servers defined")
	}
	for i, s := range c.Servers {
		if len(s.Ports) == 0 {
			return fmt.Errorf("config: server %d has no ports", i)
		}
		for _, p := range s.Ports {
			if p < 1 || p > 65535 {
				return fmt.Errorf("config: server %d: invalid port %d", i, p)
			}
		}
		if len(s.Routes) == 0 {
			return fmt.Errorf("config: server %d has no routes", i)
		}
		for j, r := range s.Routes {
			if !strings.HasPrefix(r.Path, "/") {
				return fmt.Errorf("config: server %d route %d: path %q must start with /", i, j, r.Path)
			}
			for _, m := range r.Methods {
				if _, ok := allowedMethods[m]; !ok {
					return fmt.Errorf("config: server %d route %d: unsupported method %q", i, j, m)
				}
			}
			if r.Redirect != "" {
				if _, ok := redirectStatuses[r.RedirectStatus]; !ok {
					return fmt.Errorf("config: server %d route %d: invalid redirect_status %d", i, j, r.RedirectStatus)
				}
			}
			if r.Root == "" && r.Redirect == "" && r.UploadDir == "" {
				return fmt.Errorf("config: server %d route %d: needs a root, redirect or upload_dir", i, j)
			}
			for ext := range r.CGI {
				if !strings.HasPrefix(ext, ".") {
					return fmt.Errorf("config: server %d route %d: cgi extension %q must start with a dot", i, j, ext)
				}
			}
		}
	}
	return nil
}

// ListenerSpec is one (address, port) endpoint and the ordered virtual hosts
// sharing it. The first host is the default when no server name matches.
type ListenerSpec struct {
	Host  string
	Port  int
	VHost []*ServerConfig
}

// Addr returns the host:port string the listener binds.
func (l *ListenerSpec) Addr() string { return fmt.Sprintf("%s:%d", l.Host, l.Port) }

// MaxBodySize returns the listener-wide body ceiling: the largest limit of
// any virtual host on the listener. Per-host limits are enforced again once
// the Host header is known.
func (l *ListenerSpec) MaxBodySize() int64 {
	var max int64
	for _, v := range l.VHost {
		if v.ClientMaxBodySize.Int64() > max {
			max = v.ClientMaxBodySize.Int64()
		}
	}
	return max
}

// Listeners groups server blocks by (host, port) into listener specs,
// preserving declaration order of both listeners and virtual hosts.
func (c *Config) Listeners() []*ListenerSpec {
	byAddr := map[string]*ListenerSpec{}
	var order []string
	for i := range c.Servers {
		s := &c.Servers[i]
		for _, p := range s.Ports {
			key := fmt.Sprintf("%s:%d", s.Host, p)
			spec, ok := byAddr[key]
			if !ok {
				spec = &ListenerSpec{Host: s.Host, Port: p}
				byAddr[key] = spec
				order = append(order, key)
			}
			spec.VHost = append(spec.VHost, s)
		}
	}
	out := make([]*ListenerSpec, 0, len(order))
	for _, key := range order {
		out = append(out, byAddr[key])
	}
	return out
}

// UploadDirs returns the distinct upload directories across all routes,
// sorted for deterministic sweeps.
func (c *Config) UploadDirs() []string {
	seen := map[string]struct{}{}
	for _, s := range c.Servers {
		for _, r := range s.Routes {
			if r.UploadDir != "" {
				seen[r.UploadDir] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
