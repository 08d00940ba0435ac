// Package config loads client settings from a YAML file, the environment
// and command-line flags, in increasing order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// Environment variables read by ApplyEnv.
const (
	EnvURL       = "ENTITYSYNC_URL"
	EnvToken     = "ENTITYSYNC_TOKEN"
	EnvWorkspace = "ENTITYSYNC_WORKSPACE"
)

// Default values.
const (
	DefaultWorkspace   = "default"
	DefaultMaxRetries  = 3
	DefaultTokenLength = 32
	DefaultMaxParallel = 4
)

// Config is the full client configuration.
type Config struct {
	Workspace string  `yaml:"workspace"`
	Project   string  `yaml:"project"`
	Remote    Remote  `yaml:"remote"`
	Store     Store   `yaml:"store"`
	Catalog   Catalog `yaml:"catalog"`
	Keys      Keys    `yaml:"keys"`
	Cascade   Cascade `yaml:"cascade"`
}

// Remote configures the HTTP configuration service.
type Remote struct {
	URL        string `yaml:"url"`
	Token      string `yaml:"token"`
	MaxRetries int    `yaml:"max_retries"`
}

// Store configures a local SQLite workspace used instead of the service.
type Store struct {
	Path string `yaml:"path"`
}

// Catalog points at a CUE sink type catalog.
type Catalog struct {
	Path string `yaml:"path"`
}

// Keys configures key generation.
type Keys struct {
	TokenLength int `yaml:"token_length"`
}

// Cascade configures cross-collection fan-out.
type Cascade struct {
	MaxParallel int `yaml:"max_parallel"`
}

// Default returns a configuration with every default applied.
func Default() Config {
	return Config{
		Workspace: DefaultWorkspace,
		Project:   DefaultWorkspace,
		Remote:    Remote{MaxRetries: DefaultMaxRetries},
		Keys:      Keys{TokenLength: DefaultTokenLength},
		Cascade:   Cascade{MaxParallel: DefaultMaxParallel},
	}
}

// Load reads path over the defaults. Unknown fields are rejected.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvURL); ok && v != "" {
		c.Remote.URL = v
	}
	if v, ok := lookup(EnvToken); ok && v != "" {
		c.Remote.Token = v
	}
	if v, ok := lookup(EnvWorkspace); ok && v != "" {
		c.Workspace = v
	}
}

// Validate reports every problem in the configuration.
func (c Config) Validate() error {
	var errs []error
	if c.Workspace == "" {
		errs = append(errs, errors.New("workspace is required"))
	}
	if c.Remote.URL != "" && c.Store.Path != "" {
		errs = append(errs, errors.New("remote.url and store.path are mutually exclusive"))
	}
	if c.Remote.URL != "" {
		u, err := url.Parse(c.Remote.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("remote.url %q must be an http(s) URL", c.Remote.URL))
		}
	}
	if c.Remote.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("remote.max_retries must be >= 0, got %d", c.Remote.MaxRetries))
	}
	if c.Keys.TokenLength < 8 || c.Keys.TokenLength > 128 {
		errs = append(errs, fmt.Errorf("keys.token_length must be between 8 and 128, got %d", c.Keys.TokenLength))
	}
	if c.Cascade.MaxParallel < 1 {
		errs = append(errs, fmt.Errorf("cascade.max_parallel must be >= 1, got %d", c.Cascade.MaxParallel))
	}
	return errors.Join(errs...)
}
