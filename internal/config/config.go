package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		Debug    bool   `yaml:"debug"`
	} `yaml:"telegram"`

	Portal struct {
		BaseURL         string  `yaml:"base_url"`
		Tenant          string  `yaml:"tenant"`
		TimeoutSeconds  int     `yaml:"timeout_seconds"`
		RateLimit       float64 `yaml:"rate_limit"`
		RateBurst       int     `yaml:"rate_burst"`
		CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
	} `yaml:"portal"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	HTTP struct {
		Port          int    `yaml:"port"`
		PublicURL     string `yaml:"public_url"`
		AllowedOrigin string `yaml:"allowed_origin"`
	} `yaml:"http"`

	Booking struct {
		Timezone               string `yaml:"timezone"`
		SessionTimeoutMinutes  int    `yaml:"session_timeout_minutes"`
		SettingsRefreshMinutes int    `yaml:"settings_refresh_minutes"`
		FormID                 string `yaml:"form_id"`
		DigestHour             *int   `yaml:"digest_hour"`
	} `yaml:"booking"`

	Managers []int64 `yaml:"managers"`
}

// Load reads a .env file if present, then the YAML config at path with
// ${ENV_VAR} placeholders expanded.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if cfg.Portal.BaseURL == "" {
		return nil, errors.New("portal.base_url is required")
	}
	if cfg.Portal.Tenant == "" {
		return nil, errors.New("portal.tenant is required")
	}
	return &cfg, nil
}

// Location is the restaurant's time zone, Europe/Stockholm by default.
func (c *Config) Location() (*time.Location, error) {
	name := c.Booking.Timezone
	if name == "" {
		name = "Europe/Stockholm"
	}
	return time.LoadLocation(name)
}

func (c *Config) PortalTimeout() time.Duration {
	if c.Portal.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Portal.TimeoutSeconds) * time.Second
}

func (c *Config) CacheTTL() time.Duration {
	if c.Portal.CacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Portal.CacheTTLSeconds) * time.Second
}

func (c *Config) SessionTimeout() time.Duration {
	if c.Booking.SessionTimeoutMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.Booking.SessionTimeoutMinutes) * time.Minute
}

func (c *Config) SettingsRefresh() time.Duration {
	if c.Booking.SettingsRefreshMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Booking.SettingsRefreshMinutes) * time.Minute
}

// DigestHour is the local hour managers get the day's bookings, 9 unless
// set. A negative hour turns the digest off.
func (c *Config) DigestHour() int {
	h := c.Booking.DigestHour
	if h == nil || *h > 23 {
		return 9
	}
	return *h
}

func (c *Config) MetricsPort() int {
	if c.Monitoring.PrometheusPort == 0 {
		return 9090
	}
	return c.Monitoring.PrometheusPort
}

func (c *Config) HTTPPort() int {
	if c.HTTP.Port == 0 {
		return 8080
	}
	return c.HTTP.Port
}

// IsManager reports whether the Telegram user may run staff commands.
func (c *Config) IsManager(userID int64) bool {
	for _, id := range c.Managers {
		if id == userID {
			return true
		}
	}
	return false
}
