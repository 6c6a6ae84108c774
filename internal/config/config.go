// Package config loads client settings. Later sources win:
// defaults, the TOML file, a .env file, LIVECHAT_* environment variables,
// and finally command-line flags (applied by the caller).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/venu21-dev/lb3-livechat-projektarbeit/internal/attribution"
	"github.com/venu21-dev/lb3-livechat-projektarbeit/internal/i18n"
)

const (
	EnvPrefix = "LIVECHAT_"
	appDir    = "livechat"
)

// Duration reads "3s" style strings from TOML and the environment.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Config struct {
	APIURL   string `toml:"api_url"`
	WSURL    string `toml:"ws_url"`
	DataDir  string `toml:"data_dir"`
	Lang     string `toml:"lang"`
	LogLevel string `toml:"log_level"`

	PollInterval         Duration `toml:"poll_interval"`
	ReconnectDelay       Duration `toml:"reconnect_delay"`
	MaxReconnectAttempts int      `toml:"max_reconnect_attempts"`
	StaleAfter           Duration `toml:"stale_after"`
	RequestTimeout       Duration `toml:"request_timeout"`

	AttributionRetention Duration `toml:"attribution_retention"`
	// AttributionKey is "id" or "body".
	AttributionKey string `toml:"attribution_key"`
}

func Default() Config {
	return Config{
		APIURL:               "http://localhost:8080",
		DataDir:              defaultDataDir(),
		Lang:                 i18n.DefaultLang,
		LogLevel:             "info",
		PollInterval:         Duration{3 * time.Second},
		ReconnectDelay:       Duration{3 * time.Second},
		MaxReconnectAttempts: 5,
		StaleAfter:           Duration{15 * time.Second},
		RequestTimeout:       Duration{15 * time.Second},
		AttributionRetention: Duration{attribution.DefaultRetention},
		AttributionKey:       "id",
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, appDir)
	}
	return "." + appDir
}

// DefaultPath is where Load looks when no file is named.
func DefaultPath() string {
	return filepath.Join(defaultDataDir(), "config.toml")
}

// Load builds the configuration. An explicitly named file must exist; the
// default file and the .env file are optional. envFile "" means ".env".
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: %s: %w", path, err)
		}
	}

	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: %s: %w", envFile, err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"API_URL":         &c.APIURL,
		"WS_URL":          &c.WSURL,
		"DATA_DIR":        &c.DataDir,
		"LANG":            &c.Lang,
		"LOG_LEVEL":       &c.LogLevel,
		"ATTRIBUTION_KEY": &c.AttributionKey,
	}
	for name, dst := range strs {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}

	durs := map[string]*Duration{
		"POLL_INTERVAL":         &c.PollInterval,
		"RECONNECT_DELAY":       &c.ReconnectDelay,
		"STALE_AFTER":           &c.StaleAfter,
		"REQUEST_TIMEOUT":       &c.RequestTimeout,
		"ATTRIBUTION_RETENTION": &c.AttributionRetention,
	}
	for name, dst := range durs {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				return fmt.Errorf("config: %s%s: %w", EnvPrefix, name, err)
			}
		}
	}

	if v, ok := lookup(EnvPrefix + "MAX_RECONNECT_ATTEMPTS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %sMAX_RECONNECT_ATTEMPTS: %w", EnvPrefix, err)
		}
		c.MaxReconnectAttempts = n
	}
	return nil
}

func (c Config) Validate() error {
	if c.APIURL == "" {
		return errors.New("config: api_url is required")
	}
	if c.DataDir == "" {
		return errors.New("config: data_dir is required")
	}
	if !i18n.Supported(c.Lang) {
		return fmt.Errorf("config: unsupported lang %q", c.Lang)
	}
	if _, err := attribution.ParseKeyMode(c.AttributionKey); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	for name, d := range map[string]Duration{
		"poll_interval":         c.PollInterval,
		"reconnect_delay":       c.ReconnectDelay,
		"stale_after":           c.StaleAfter,
		"request_timeout":       c.RequestTimeout,
		"attribution_retention": c.AttributionRetention,
	} {
		if d.Duration <= 0 {
			return fmt.Errorf("config: %s must be positive", name)
		}
	}
	if c.MaxReconnectAttempts <= 0 {
		return errors.New("config: max_reconnect_attempts must be positive")
	}
	return nil
}

// RealtimeURL is the base for the WebSocket endpoint: ws_url when set,
// otherwise the API URL.
func (c Config) RealtimeURL() string {
	if c.WSURL != "" {
		return c.WSURL
	}
	return c.APIURL
}
