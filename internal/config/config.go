// Package config loads client settings. Sources are applied in order:
// built-in defaults, a YAML or TOML file, a .env file, NECROSIS_*
// environment variables, and finally command-line flags (applied by the
// caller).
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultAPIURL   = "http://localhost:8000/api"
	DefaultTimeout  = 30 * time.Second
	DefaultPageSize = 2
	appDir          = "necrosis"
)

// Environment variable names.
const (
	EnvAPIURL    = "NECROSIS_API_URL"
	EnvTimeout   = "NECROSIS_TIMEOUT"
	EnvStatePath = "NECROSIS_STATE_PATH"
	EnvPageSize  = "NECROSIS_PAGE_SIZE"
	EnvMaxRPS    = "NECROSIS_MAX_RPS"
	EnvProxy     = "NECROSIS_PROXY"
	EnvInsecure  = "NECROSIS_INSECURE_SKIP_VERIFY"
	EnvDropDir   = "NECROSIS_DROP_DIR"
)

// Duration is a time.Duration written as "30s" in config files.
type Duration time.Duration

// UnmarshalText accepts Go duration syntax or a bare number of seconds.
func (d *Duration) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText renders Go duration syntax.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Config is the resolved client configuration.
type Config struct {
	APIURL             string   `yaml:"api_url" toml:"api_url"`
	Timeout            Duration `yaml:"timeout" toml:"timeout"`
	StatePath          string   `yaml:"state_path" toml:"state_path"`
	PageSize           int      `yaml:"page_size" toml:"page_size"`
	MaxRPS             float64  `yaml:"max_rps" toml:"max_rps"`
	Proxy              string   `yaml:"proxy" toml:"proxy"`
	InsecureSkipVerify bool     `yaml:"insecure_skip_verify" toml:"insecure_skip_verify"`
	DropDir            string   `yaml:"drop_dir" toml:"drop_dir"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		APIURL:    DefaultAPIURL,
		Timeout:   Duration(DefaultTimeout),
		StatePath: DefaultStatePath(),
		PageSize:  DefaultPageSize,
	}
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c *Config) TimeoutDuration() time.Duration { return time.Duration(c.Timeout) }

// Dir returns the per-user configuration directory.
func Dir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, appDir)
}

// DefaultStatePath is where the session database lives by default.
func DefaultStatePath() string { return filepath.Join(Dir(), "state.db") }

// DefaultFiles are tried in order when no config file is named.
func DefaultFiles() []string {
	d := Dir()
	return []string{
		filepath.Join(d, "config.yaml"),
		filepath.Join(d, "config.yml"),
		filepath.Join(d, "config.toml"),
	}
}

// Load resolves the configuration. An explicitly named file must exist;
// otherwise the first existing DefaultFiles entry is used, if any.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		for _, candidate := range DefaultFiles() {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), c); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file type: %q", filepath.Ext(path))
	}
	return nil
}

// ApplyEnv overrides fields from NECROSIS_* variables.
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv(EnvAPIURL); ok && v != "" {
		c.APIURL = v
	}
	if v, ok := os.LookupEnv(EnvTimeout); ok && v != "" {
		if err := c.Timeout.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("%s: %w", EnvTimeout, err)
		}
	}
	if v, ok := os.LookupEnv(EnvStatePath); ok && v != "" {
		c.StatePath = v
	}
	if v, ok := os.LookupEnv(EnvPageSize); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPageSize, err)
		}
		c.PageSize = n
	}
	if v, ok := os.LookupEnv(EnvMaxRPS); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxRPS, err)
		}
		c.MaxRPS = f
	}
	if v, ok := os.LookupEnv(EnvProxy); ok {
		c.Proxy = v
	}
	if v, ok := os.LookupEnv(EnvInsecure); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvInsecure, err)
		}
		c.InsecureSkipVerify = b
	}
	if v, ok := os.LookupEnv(EnvDropDir); ok {
		c.DropDir = v
	}
	return nil
}

// Validate checks the resolved values.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid api_url %q", c.APIURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid api_url %q: scheme must be http or https", c.APIURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page_size must be positive")
	}
	if c.MaxRPS < 0 {
		return fmt.Errorf("max_rps must not be negative")
	}
	if c.StatePath == "" {
		return fmt.Errorf("state_path must not be empty")
	}
	return nil
}
