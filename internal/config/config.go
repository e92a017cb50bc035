// Package config loads the YAML configuration, the optional .env file and
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPath    = "config.yaml"
	DefaultEnvFile = ".env"

	KindStatic   = "static"
	KindRendered = "rendered"
	KindJSearch  = "jsearch"

	BackendColly = "colly"
	BackendHTTP  = "http"
)

type Config struct {
	Database Database `yaml:"database"`
	Redis    Redis    `yaml:"redis"`
	Fetch    Fetch    `yaml:"fetch"`
	Throttle Throttle `yaml:"throttle"`
	Render   Render   `yaml:"render"`
	JSearch  JSearch  `yaml:"jsearch"`
	Server   Server   `yaml:"server"`
	Pipeline Pipeline `yaml:"pipeline"`
	Sources  []Source `yaml:"sources"`
}

type Database struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns URL when set, otherwise a postgres URL assembled from the parts.
func (d Database) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.Name,
	}
	if d.User != "" {
		if d.Password != "" {
			u.User = url.UserPassword(d.User, d.Password)
		} else {
			u.User = url.User(d.User)
		}
	}
	q := url.Values{}
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Redis is optional; an empty URL disables the analytics cache.
type Redis struct {
	URL    string        `yaml:"url"`
	TTL    time.Duration `yaml:"ttl"`
	Prefix string        `yaml:"prefix"`
}

type Fetch struct {
	UserAgent     string        `yaml:"user_agent"`
	Timeout       time.Duration `yaml:"timeout"`
	Attempts      int           `yaml:"attempts"`
	Backend       string        `yaml:"backend"`
	RespectRobots bool          `yaml:"respect_robots"`
}

// Throttle is the polite delay range applied after every successful fetch.
type Throttle struct {
	Min time.Duration `yaml:"min"`
	Max time.Duration `yaml:"max"`
}

type Render struct {
	Headless *bool         `yaml:"headless"`
	Settle   time.Duration `yaml:"settle"`
	Timeout  time.Duration `yaml:"timeout"`
}

func (r Render) IsHeadless() bool {
	return r.Headless == nil || *r.Headless
}

type JSearch struct {
	APIKey   string `yaml:"api_key"`
	Endpoint string `yaml:"endpoint"`
	Host     string `yaml:"host"`
	Query    string `yaml:"query"`
	Location string `yaml:"location"`
	Pages    int    `yaml:"pages"`
}

type Server struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

func (s Server) Addr() string {
	return ":" + strconv.Itoa(s.Port)
}

type Pipeline struct {
	ContinueOnError bool `yaml:"continue_on_error"`
}

// Selectors are the CSS selectors of one HTML source. Empty values fall back
// to the scraper defaults.
type Selectors struct {
	Card         string `yaml:"card"`
	Title        string `yaml:"title"`
	Company      string `yaml:"company"`
	Location     string `yaml:"location"`
	Salary       string `yaml:"salary"`
	Description  string `yaml:"description"`
	Requirements string `yaml:"requirements"`
}

type Source struct {
	Name      string    `yaml:"name"`
	Kind      string    `yaml:"kind"`
	URL       string    `yaml:"url"`
	Selectors Selectors `yaml:"selectors"`
	// jsearch only; zero values inherit from the jsearch section.
	Query    string `yaml:"query"`
	Location string `yaml:"location"`
	Pages    int    `yaml:"pages"`
	// RateLimit overrides the fetcher's token bucket for the host of a remote
	// static source.
	RateLimit *RateLimit `yaml:"rate_limit"`
}

// RateLimit allows Burst requests, refilled one per Per.
type RateLimit struct {
	Per   time.Duration `yaml:"per"`
	Burst int           `yaml:"burst"`
}

func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads .env, then path (DefaultPath when empty), then the environment.
// A missing file is only an error when path was given explicitly.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(DefaultEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", DefaultEnvFile, err)
	}

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		data = nil
	}
	return Parse(data, os.Getenv)
}

// Parse decodes YAML data, applies env overrides through getenv, fills
// defaults and validates.
func Parse(data []byte, getenv func(string) string) (*Config, error) {
	cfg := &Config{}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if getenv != nil {
		if err := cfg.applyEnv(getenv); err != nil {
			return nil, err
		}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := getenv("DB_HOST"); v != "" {
		c.Database.Host = v
	}
	if v := getenv("DB_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid DB_PORT %q: %w", v, err)
		}
		c.Database.Port = port
	}
	if v := getenv("DB_NAME"); v != "" {
		c.Database.Name = v
	}
	if v := getenv("DB_USER"); v != "" {
		c.Database.User = v
	}
	if v := getenv("DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := getenv("JSEARCH_API_KEY"); v != "" {
		c.JSearch.APIKey = v
	}
	if v := getenv("JOBMARKET_USER_AGENT"); v != "" {
		c.Fetch.UserAgent = v
	}
	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.Name == "" {
		c.Database.Name = "jobsdb"
	}
	if c.Database.User == "" {
		c.Database.User = "jobuser"
	}
	if c.Database.Password == "" {
		c.Database.Password = "jobpassword"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}

	if c.Redis.TTL <= 0 {
		c.Redis.TTL = time.Hour
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "jobmarket:"
	}

	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = "JobMarketAnalyticsBot/1.0"
	}
	if c.Fetch.Timeout <= 0 {
		c.Fetch.Timeout = 15 * time.Second
	}
	if c.Fetch.Attempts <= 0 {
		c.Fetch.Attempts = 1
	}
	if c.Fetch.Backend == "" {
		c.Fetch.Backend = BackendColly
	}

	if c.Throttle.Min == 0 && c.Throttle.Max == 0 {
		c.Throttle.Min = time.Second
		c.Throttle.Max = 2 * time.Second
	}

	if c.Render.Settle <= 0 {
		c.Render.Settle = 2 * time.Second
	}
	if c.Render.Timeout <= 0 {
		c.Render.Timeout = 30 * time.Second
	}

	if c.JSearch.Endpoint == "" {
		c.JSearch.Endpoint = "https://jsearch.p.rapidapi.com/search"
	}
	if c.JSearch.Host == "" {
		c.JSearch.Host = "jsearch.p.rapidapi.com"
	}
	if c.JSearch.Query == "" {
		c.JSearch.Query = "Data Engineer"
	}
	if c.JSearch.Location == "" {
		c.JSearch.Location = "United States"
	}
	if c.JSearch.Pages <= 0 {
		c.JSearch.Pages = 1
	}

	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}

	for i := range c.Sources {
		src := &c.Sources[i]
		src.Kind = strings.ToLower(strings.TrimSpace(src.Kind))
		if src.Kind == "" {
			src.Kind = KindStatic
		}
		if src.Kind == KindJSearch {
			if src.Query == "" {
				src.Query = c.JSearch.Query
			}
			if src.Location == "" {
				src.Location = c.JSearch.Location
			}
			if src.Pages <= 0 {
				src.Pages = c.JSearch.Pages
			}
		}
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Throttle.Min < 0 || c.Throttle.Max < c.Throttle.Min {
		errs = append(errs, fmt.Errorf("throttle: min %s must be >= 0 and <= max %s", c.Throttle.Min, c.Throttle.Max))
	}
	switch c.Fetch.Backend {
	case BackendColly, BackendHTTP:
	default:
		errs = append(errs, fmt.Errorf("fetch.backend: unknown backend %q", c.Fetch.Backend))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port: %d out of range", c.Server.Port))
	}

	seen := make(map[string]bool, len(c.Sources))
	for i, src := range c.Sources {
		if src.Name == "" {
			errs = append(errs, fmt.Errorf("sources[%d]: name is required", i))
		} else if seen[src.Name] {
			errs = append(errs, fmt.Errorf("sources[%d]: duplicate name %q", i, src.Name))
		}
		seen[src.Name] = true

		switch src.Kind {
		case KindStatic, KindRendered:
			if src.URL == "" {
				errs = append(errs, fmt.Errorf("sources[%d] %s: url is required for kind %s", i, src.Name, src.Kind))
			}
		case KindJSearch:
		default:
			errs = append(errs, fmt.Errorf("sources[%d] %s: unknown kind %q", i, src.Name, src.Kind))
		}
		if rl := src.RateLimit; rl != nil && (rl.Per <= 0 || rl.Burst <= 0) {
			errs = append(errs, fmt.Errorf("sources[%d] %s: rate_limit needs per > 0 and burst > 0", i, src.Name))
		}
	}
	return errors.Join(errs...)
}

// Source returns the named source.
func (c *Config) Source(name string) (Source, bool) {
	for _, src := range c.Sources {
		if src.Name == name {
			return src, true
		}
	}
	return Source{}, false
}
