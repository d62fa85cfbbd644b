package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Config holds everything the server process needs. All values come from env.
type Config struct {
	App       AppConfig
	Self      SelfConfig
	Store     StoreConfig
	Signaling SignalingConfig
	Media     MediaConfig
	Call      CallConfig
}

type AppConfig struct {
	Env  string
	Addr string
}

// SelfConfig is the local user. Authentication lives outside this process.
type SelfConfig struct {
	ID   string
	Name string
}

type StoreConfig struct {
	Driver      string
	DatabaseURL string
}

type SignalingConfig struct {
	Driver    string
	RedisAddr string
}

type MediaConfig struct {
	STUNURLs            []string
	DisconnectedTimeout time.Duration
	FailedTimeout       time.Duration
}

type CallConfig struct {
	// RingTimeout of zero disables the missed-call timer.
	RingTimeout time.Duration
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.Addr = strings.TrimSpace(os.Getenv("APP_ADDR"))

	c.Self.ID = strings.TrimSpace(os.Getenv("SELF_ID"))
	c.Self.Name = strings.TrimSpace(os.Getenv("SELF_NAME"))

	c.Store.Driver = strings.TrimSpace(os.Getenv("STORE_DRIVER"))
	c.Store.DatabaseURL = os.Getenv("DATABASE_URL")

	c.Signaling.Driver = strings.TrimSpace(os.Getenv("SIGNALING_DRIVER"))
	c.Signaling.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))

	if v, ok := os.LookupEnv("STUN_URLS"); ok {
		c.Media.STUNURLs = splitList(v)
	} else {
		c.Media.STUNURLs = []string{"stun:stun.l.google.com:19302"}
	}

	var err error
	c.Media.DisconnectedTimeout, err = optionalDuration("ICE_DISCONNECTED_TIMEOUT", 30*time.Second)
	parseErrs = appendErr(parseErrs, err)
	c.Media.FailedTimeout, err = optionalDuration("ICE_FAILED_TIMEOUT", 120*time.Second)
	parseErrs = appendErr(parseErrs, err)
	c.Call.RingTimeout, err = optionalDuration("RING_TIMEOUT", 30*time.Second)
	parseErrs = appendErr(parseErrs, err)

	if err := errors.Join(parseErrs...); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports every problem at once and fills local-friendly defaults.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		c.App.Env = "local"
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Addr == "" {
		c.App.Addr = ":8080"
	}

	if c.Self.ID == "" {
		errs = append(errs, errors.New("SELF_ID is required"))
	}
	if c.Self.Name == "" {
		c.Self.Name = c.Self.ID
	}

	switch c.Store.Driver {
	case "":
		if c.IsProduction() {
			errs = append(errs, errors.New("STORE_DRIVER is required in production"))
		}
		c.Store.Driver = DriverMemory
	case DriverMemory, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be one of memory, postgres, got %q", c.Store.Driver))
	}
	if c.Store.Driver == DriverPostgres && c.Store.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
	}

	switch c.Signaling.Driver {
	case "":
		if c.IsProduction() {
			errs = append(errs, errors.New("SIGNALING_DRIVER is required in production"))
		}
		c.Signaling.Driver = DriverMemory
	case DriverMemory, DriverRedis:
	default:
		errs = append(errs, fmt.Errorf("SIGNALING_DRIVER must be one of memory, redis, got %q", c.Signaling.Driver))
	}
	if c.Signaling.Driver == DriverRedis && c.Signaling.RedisAddr == "" {
		errs = append(errs, errors.New("REDIS_ADDR is required for redis signaling"))
	}

	for _, u := range c.Media.STUNURLs {
		if !strings.HasPrefix(u, "stun:") && !strings.HasPrefix(u, "stuns:") {
			errs = append(errs, fmt.Errorf("STUN_URLS entry %q must start with stun: or stuns:", u))
		}
	}
	if c.Media.DisconnectedTimeout < 0 || c.Media.FailedTimeout < 0 {
		errs = append(errs, errors.New("ICE timeouts must not be negative"))
	}
	if c.Media.FailedTimeout > 0 && c.Media.FailedTimeout < c.Media.DisconnectedTimeout {
		errs = append(errs, errors.New("ICE_FAILED_TIMEOUT must not be shorter than ICE_DISCONNECTED_TIMEOUT"))
	}
	if c.Call.RingTimeout < 0 {
		errs = append(errs, errors.New("RING_TIMEOUT must not be negative"))
	}

	return errors.Join(errs...)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

// Debug reports whether verbose logging fits this environment.
func (c Config) Debug() bool {
	return c.App.Env == "local" || c.App.Env == "dev"
}

func isValidEnv(env string) bool {
	switch env {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func optionalDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration, got %q", key, v)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func appendErr(errs []error, err error) []error {
	if err != nil {
		return append(errs, err)
	}
	return errs
}
