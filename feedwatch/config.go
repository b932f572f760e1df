package feedwatch

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/unsuggest/filter"
	"github.com/hazyhaar/unsuggest/idgen"
	"github.com/hazyhaar/unsuggest/settings"
)

// Defaults for an empty configuration.
const (
	DefaultFeedURL   = "https://www.linkedin.com/feed/"
	DefaultSite      = "https://www.linkedin.com/*"
	DefaultAddr      = "127.0.0.1:8417"
	DefaultStorePath = "unsuggest.db"
)

// Config is the top-level configuration of the live feed watcher.
type Config struct {
	LogLevel slog.Level     `yaml:"log_level"`
	Browser  BrowserConfig  `yaml:"browser"`
	Pages    []PageConfig   `yaml:"pages"`
	Rules    filter.Rules   `yaml:"rules"`
	Debounce DebounceConfig `yaml:"debounce"`
	Settings SettingsConfig `yaml:"settings"`
	Control  ControlConfig  `yaml:"control"`
	Sinks    []SinkConfig   `yaml:"sinks"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"`
	Bin              string        `yaml:"bin"`
	UserDataDir      string        `yaml:"user_data_dir"`
	NoSandbox        bool          `yaml:"no_sandbox"`
	Display          string        `yaml:"display"`
	MemoryLimit      int64         `yaml:"memory_limit"`
	RecycleInterval  time.Duration `yaml:"recycle_interval"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	Stealth          string        `yaml:"stealth"` // headless | headful
}

// PageConfig defines a feed page to keep clean.
type PageConfig struct {
	ID  string `yaml:"id"`
	URL string `yaml:"url"`
}

// DebounceConfig controls mutation batching.
type DebounceConfig struct {
	Window    time.Duration `yaml:"window"`
	MaxBuffer int           `yaml:"max_buffer"`
}

// SettingsConfig selects where the enabled flag lives.
type SettingsConfig struct {
	Backend      string        `yaml:"backend"` // sqlite | file | memory
	Path         string        `yaml:"path"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// ControlConfig configures the HTTP/MCP control surface.
type ControlConfig struct {
	Addr string `yaml:"addr"`
	// Site is the URL glob of the pages a toggle is broadcast to.
	Site string `yaml:"site"`
	MCP  bool   `yaml:"mcp"`
}

// SinkConfig defines a removal report backend.
type SinkConfig struct {
	Type    string `yaml:"type"` // stdout | webhook
	URL     string `yaml:"url"`  // for webhook
	Retries int    `yaml:"retries"`
}

// DefaultConfig returns the configuration used without a file.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfigFile reads a YAML configuration file, expanding environment
// variables, then applies defaults and validates.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("feedwatch: read config %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig is LoadConfigFile on in-memory YAML.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("feedwatch: parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("feedwatch: invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = 1 << 30
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
	if len(c.Pages) == 0 {
		c.Pages = []PageConfig{{URL: DefaultFeedURL}}
	}
	for i := range c.Pages {
		if c.Pages[i].ID == "" {
			c.Pages[i].ID = idgen.Page()
		}
	}
	c.Rules = c.Rules.WithDefaults()
	if c.Debounce.Window <= 0 {
		c.Debounce.Window = 250 * time.Millisecond
	}
	if c.Debounce.MaxBuffer <= 0 {
		c.Debounce.MaxBuffer = 1000
	}
	if c.Settings.Backend == "" {
		c.Settings.Backend = settings.BackendSQLite
	}
	if c.Settings.Path == "" && c.Settings.Backend == settings.BackendSQLite {
		c.Settings.Path = DefaultStorePath
	}
	if c.Settings.PollInterval <= 0 {
		c.Settings.PollInterval = time.Second
	}
	if c.Control.Addr == "" {
		c.Control.Addr = DefaultAddr
	}
	if c.Control.Site == "" {
		c.Control.Site = DefaultSite
	}
	for i := range c.Sinks {
		if c.Sinks[i].Type == "webhook" && c.Sinks[i].Retries <= 0 {
			c.Sinks[i].Retries = 3
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Pages, validation.Required),
		validation.Field(&c.Sinks),
	); err != nil {
		return err
	}
	if err := c.Browser.Validate(); err != nil {
		return fmt.Errorf("browser: %w", err)
	}
	if err := c.Settings.Validate(); err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	seen := make(map[string]bool, len(c.Pages))
	for _, p := range c.Pages {
		if seen[p.ID] {
			return fmt.Errorf("pages: duplicate id %q", p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}

// Validate validates the browser configuration.
func (c BrowserConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Stealth, validation.In("headless", "headful")),
		validation.Field(&c.Remote, validation.By(absoluteURL("ws", "wss", "http", "https"))),
	)
}

// Validate validates one page.
func (c PageConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.ID, validation.Required),
		validation.Field(&c.URL, validation.Required, validation.By(absoluteURL("http", "https"))),
	)
}

// Validate validates the settings backend.
func (c SettingsConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Backend, validation.In(settings.BackendSQLite, settings.BackendFile, settings.BackendMemory)),
		validation.Field(&c.Path, validation.When(c.Backend != settings.BackendMemory, validation.Required)),
	)
}

// Validate validates one sink.
func (c SinkConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Type, validation.Required, validation.In("stdout", "webhook")),
		validation.Field(&c.URL,
			validation.When(c.Type == "webhook", validation.Required),
			validation.By(absoluteURL("http", "https"))),
	)
}

// absoluteURL accepts empty strings and URLs with one of schemes.
func absoluteURL(schemes ...string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		u, err := url.Parse(s)
		if err != nil {
			return err
		}
		for _, sc := range schemes {
			if u.Scheme == sc && u.Host != "" {
				return nil
			}
		}
		return errors.New("must be an absolute " + schemes[0] + " URL")
	}
}
