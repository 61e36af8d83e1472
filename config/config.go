package config

import (
	"flag"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/ubc-biztech/btx/pkg/indicators"
)

const (
	// AuthTokenEnv environment variable carrying the bearer token.
	AuthTokenEnv = "BTX_AUTH_TOKEN"
	// PushURLEnv environment variable overriding the push endpoint.
	PushURLEnv = "BTX_WS_URL"

	DefaultAPIURL       = "http://localhost:3000"
	DefaultPollInterval = 4 * time.Second
	DefaultTradesLimit  = 50
	DefaultHistoryLimit = 10000
	DefaultWebAddr      = ":8080"
)

// Config settings of one exchange view.
type Config struct {
	EventID   string
	UserID    string
	APIURL    string
	AuthToken string
	// PushURL empty means the push listener picks its default.
	PushURL string

	PollInterval time.Duration
	TradesLimit  int
	HistoryLimit int

	PushEnabled bool
	Reconnect   bool

	// WebAddr empty disables the web server.
	WebAddr     string
	TapeEnabled bool
	TapeDir     string

	Overlay indicators.OverlayConfig
}

// ConfigTmp raw yaml representation of Config.
type ConfigTmp struct {
	EventID      string                    `yaml:"event_id"`
	UserID       string                    `yaml:"user_id,omitempty"`
	APIURL       string                    `yaml:"api_url,omitempty"`
	AuthToken    string                    `yaml:"auth_token,omitempty"`
	PushURL      string                    `yaml:"push_url,omitempty"`
	PollInterval time.Duration             `yaml:"poll_interval,omitempty"`
	TradesLimit  int                       `yaml:"trades_limit,omitempty"`
	HistoryLimit int                       `yaml:"history_limit,omitempty"`
	PushEnabled  *bool                     `yaml:"push_enabled,omitempty"`
	Reconnect    bool                      `yaml:"reconnect,omitempty"`
	WebAddr      *string                   `yaml:"web_addr,omitempty"`
	TapeEnabled  *bool                     `yaml:"tape_enabled,omitempty"`
	TapeDir      string                    `yaml:"tape_dir,omitempty"`
	Overlay      *indicators.OverlayConfig `yaml:"overlay,omitempty"`
}

// Flags parsed command line.
type Flags struct {
	ConfigPath string
	Setup      bool
	cli        ConfigTmp
}

// ParseFlags parses command line arguments (without the program name).
func ParseFlags(args []string) (Flags, error) {
	fs := flag.NewFlagSet("btx", flag.ContinueOnError)

	var (
		f           Flags
		pushEnabled bool
		webAddr     string
		tapeEnabled bool
	)
	fs.StringVar(&f.ConfigPath, "config", "", "path to yaml config")
	fs.BoolVar(&f.Setup, "setup", false, "run the interactive configuration wizard")
	fs.StringVar(&f.cli.EventID, "event", "", "event id to follow")
	fs.StringVar(&f.cli.UserID, "user", "", "user id sent with the push subscription")
	fs.StringVar(&f.cli.APIURL, "api", DefaultAPIURL, "backend base url")
	fs.StringVar(&f.cli.PushURL, "push-url", "", "push endpoint, overridden by "+PushURLEnv)
	fs.DurationVar(&f.cli.PollInterval, "poll", DefaultPollInterval, "snapshot poll interval")
	fs.IntVar(&f.cli.TradesLimit, "trades-limit", DefaultTradesLimit, "trade log size per project")
	fs.IntVar(&f.cli.HistoryLimit, "history-limit", DefaultHistoryLimit, "price history rows per request")
	fs.BoolVar(&pushEnabled, "push", true, "subscribe to live price updates")
	fs.BoolVar(&f.cli.Reconnect, "reconnect", false, "reconnect the push feed with backoff")
	fs.StringVar(&webAddr, "web", DefaultWebAddr, "web server address, empty disables")
	fs.BoolVar(&tapeEnabled, "tape", true, "record accepted price points")
	fs.StringVar(&f.cli.TapeDir, "tape-dir", "", "price tape directory")

	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	f.cli.PushEnabled = &pushEnabled
	f.cli.WebAddr = &webAddr
	f.cli.TapeEnabled = &tapeEnabled
	return f, nil
}

// Load builds the configuration from the yaml file when one is given,
// otherwise from the command line.
func Load(f Flags) (Config, error) {
	tmp := f.cli
	if f.ConfigPath != "" {
		var err error
		tmp, err = ReadYaml(f.ConfigPath)
		if err != nil {
			return Config{}, err
		}
	}

	cfg := tmp.toConfig()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Get parses os.Args and loads the configuration.
func Get() (Config, error) {
	f, err := ParseFlags(os.Args[1:])
	if err != nil {
		return Config{}, err
	}
	return Load(f)
}

// ReadYaml reads the raw configuration file.
func ReadYaml(path string) (ConfigTmp, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ConfigTmp{}, errors.Wrap(err, "read config")
	}

	var tmp ConfigTmp
	if err := yaml.Unmarshal(data, &tmp); err != nil {
		return ConfigTmp{}, errors.Wrapf(err, "parse config %s", path)
	}
	return tmp, nil
}

// WriteYaml writes the raw configuration file.
func WriteYaml(path string, tmp ConfigTmp) error {
	data, err := yaml.Marshal(tmp)
	if err != nil {
		return errors.Wrap(err, "generate yaml")
	}
	return errors.Wrap(os.WriteFile(path, data, 0600), "save config")
}

func (c ConfigTmp) toConfig() Config {
	cfg := Config{
		EventID:      strings.TrimSpace(c.EventID),
		UserID:       strings.TrimSpace(c.UserID),
		APIURL:       c.APIURL,
		AuthToken:    c.AuthToken,
		PushURL:      c.PushURL,
		PollInterval: c.PollInterval,
		TradesLimit:  c.TradesLimit,
		HistoryLimit: c.HistoryLimit,
		PushEnabled:  true,
		Reconnect:    c.Reconnect,
		WebAddr:      DefaultWebAddr,
		TapeEnabled:  true,
		TapeDir:      c.TapeDir,
		Overlay:      indicators.DefaultOverlayConfig,
	}

	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.TradesLimit == 0 {
		cfg.TradesLimit = DefaultTradesLimit
	}
	if cfg.HistoryLimit == 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if c.PushEnabled != nil {
		cfg.PushEnabled = *c.PushEnabled
	}
	if c.WebAddr != nil {
		cfg.WebAddr = *c.WebAddr
	}
	if c.TapeEnabled != nil {
		cfg.TapeEnabled = *c.TapeEnabled
	}
	if c.Overlay != nil {
		cfg.Overlay = *c.Overlay
	}

	return cfg
}

func (c *Config) applyEnv() {
	if v := os.Getenv(AuthTokenEnv); v != "" {
		c.AuthToken = v
	}
	if v := os.Getenv(PushURLEnv); v != "" {
		c.PushURL = v
	}
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if c.EventID == "" {
		return errors.New("event id is required")
	}

	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.Errorf("invalid api url %q", c.APIURL)
	}
	if c.PushURL != "" {
		u, err := url.Parse(c.PushURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			return errors.Errorf("invalid push url %q", c.PushURL)
		}
	}

	if c.PollInterval <= 0 {
		return errors.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.TradesLimit <= 0 {
		return errors.Errorf("trades limit must be positive, got %d", c.TradesLimit)
	}
	if c.HistoryLimit <= 0 {
		return errors.Errorf("history limit must be positive, got %d", c.HistoryLimit)
	}

	o := c.Overlay
	if o.FastEMA <= 0 || o.SlowEMA <= 0 || o.RSIPeriod <= 0 {
		return errors.New("overlay periods must be positive")
	}
	if o.FastEMA >= o.SlowEMA {
		return errors.Errorf("overlay fast ema (%d) must be shorter than slow ema (%d)", o.FastEMA, o.SlowEMA)
	}

	return nil
}
