package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds the runtime configuration for the conversion service. Values
// come from the environment, optionally seeded from a .env file.
type Config struct {
	HTTPAddr     string `env:"HTTP_ADDR" env-default:":8080"`
	DataDir      string `env:"DATA_DIR" env-default:"./data"`
	BuildVersion string `env:"BUILD_VERSION" env-default:"dev"`
	LogLevel     string `env:"LOG_LEVEL" env-default:"INFO"`

	PrimaryURL    string `env:"PRIMARY_RATES_URL" env-default:"https://rates.offlinefx.app"`
	PrimaryAPIKey string `env:"PRIMARY_API_KEY"`
	FallbackURL   string `env:"FALLBACK_RATES_URL" env-default:"https://api.frankfurter.app"`

	FetchTimeout    time.Duration `env:"FETCH_TIMEOUT" env-default:"10s"`
	FreshnessPoll   time.Duration `env:"FRESHNESS_POLL_INTERVAL" env-default:"5m"`
	AppOrigin       string        `env:"APP_ORIGIN" env-default:"http://localhost:8080"`
	AssetManifest   []string      `env:"ASSET_MANIFEST" env-separator:"," env-default:"/,/index.html,/assets/app.js,/assets/app.css"`
	ExtraRateHosts  []string      `env:"EXTRA_RATE_HOSTS" env-separator:","`
	ProxyHotEntries int64         `env:"PROXY_HOT_ENTRIES" env-default:"1024"`
}

// Load reads configuration from the environment. A missing .env file is not
// an error; explicit environment variables always win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	for name, raw := range map[string]string{
		"PRIMARY_RATES_URL":  c.PrimaryURL,
		"FALLBACK_RATES_URL": c.FallbackURL,
		"APP_ORIGIN":         c.AppOrigin,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s is not a valid URL: %q", name, raw)
		}
	}

	if c.FetchTimeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be positive, got %s", c.FetchTimeout)
	}

	return nil
}

// RateHosts returns the hostnames whose requests the interception proxy
// must treat as rate-service traffic.
func (c *Config) RateHosts() []string {
	hosts := make([]string, 0, 2+len(c.ExtraRateHosts))
	for _, raw := range []string{c.PrimaryURL, c.FallbackURL} {
		if u, err := url.Parse(raw); err == nil && u.Hostname() != "" {
			hosts = append(hosts, u.Hostname())
		}
	}
	return append(hosts, c.ExtraRateHosts...)
}
