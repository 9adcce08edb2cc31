package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"slices"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"FeedBot/internal/domain"
)

const (
	defaultTimezone     = "UTC"
	defaultScheduleSpec = "@every 30m"
	defaultStateDir     = "data"
	defaultControlAddr  = "127.0.0.1:8088"
	defaultHTTPTimeout  = 20 * time.Second

	configPathEnv    = "FEEDBOT_CONFIG"
	databaseDSNEnv   = "DATABASE_DSN"
	stateDirEnv      = "FEEDBOT_STATE_DIR"
	logLevelEnv      = "FEEDBOT_LOG_LEVEL"
	controlAddrEnv   = "FEEDBOT_CONTROL_ADDR"
	telegramTokenEnv = "TELEGRAM_BOT_TOKEN"
	tokenEnv         = "TOKEN"
	proxyEnv         = "PROXY"

	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	State         StateConfig        `yaml:"state"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	HTTP          HTTPConfig         `yaml:"http"`
	Control       ControlConfig      `yaml:"control"`
	Notifications NotificationConfig `yaml:"notifications"`
	Sources       SourcesConfig      `yaml:"sources"`
	// SkipTime is the global cutoff in epoch seconds.
	SkipTime int64           `yaml:"skip_time"`
	Token    string          `yaml:"token"`
	Proxy    string          `yaml:"proxy"`
	Channels []ChannelConfig `yaml:"channels"`
}

// LoggingConfig selects slog level and handler format (text or json).
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StateConfig chooses where seen-state lives.
type StateConfig struct {
	Backend        string `yaml:"backend"`
	Dir            string `yaml:"dir"`
	URLFile        string `yaml:"url_file"`
	CheckpointFile string `yaml:"checkpoint_file"`
	DSN            string `yaml:"dsn"`
}

// SchedulerConfig defines when sweeps run.
type SchedulerConfig struct {
	Spec       string         `yaml:"spec"`
	RunOnStart bool           `yaml:"run_on_start"`
	Timezone   string         `yaml:"timezone"`
	location   *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// HTTPConfig tunes the outbound client shared by all scanners.
type HTTPConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

// ControlConfig configures the manual-trigger API.
type ControlConfig struct {
	Disabled bool   `yaml:"disabled"`
	Addr     string `yaml:"addr"`
}

// NotificationConfig encapsulates outbound channels.
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	APIURL   string `yaml:"api_url"`
}

// SourcesConfig overrides upstream endpoints, mostly for testing.
type SourcesConfig struct {
	LuoguBaseURL string `yaml:"luogu_base_url"`
}

// ChannelConfig is one chat channel and the sources it follows, in order.
type ChannelConfig struct {
	ID             string         `yaml:"id"`
	Name           string         `yaml:"name"`
	BruteAdmin     []int64        `yaml:"brute_admin"`
	FollowArticles []FollowConfig `yaml:"follow_articles"`
}

// Allows reports whether userID may trigger a manual sweep here.
func (c ChannelConfig) Allows(userID int64) bool {
	return slices.Contains(c.BruteAdmin, userID)
}

// FollowConfig is a block of sources sharing one type.
type FollowConfig struct {
	Type     string   `yaml:"type"`
	URL      []string `yaml:"url"`
	UID      []string `yaml:"uid"`
	SkipTime *int64   `yaml:"skip_time"`
}

// Kind maps the configured type (including legacy blog aliases) to a source kind.
func (f FollowConfig) Kind() (domain.SourceKind, error) {
	switch f.Type {
	case "rss", "cnblogs", "cyx_blogs":
		return domain.KindFeed, nil
	case "luogu":
		return domain.KindLuogu, nil
	default:
		return "", fmt.Errorf("unknown follow type %q", f.Type)
	}
}

// Targets returns feed URLs or listing ids depending on kind.
func (f FollowConfig) Targets() []string {
	kind, err := f.Kind()
	if err != nil {
		return nil
	}
	if kind == domain.KindLuogu {
		return f.UID
	}
	return f.URL
}

// Cutoff returns the per-block cutoff, falling back to the global one.
func (c Config) Cutoff(f FollowConfig) time.Time {
	if f.SkipTime != nil {
		return time.Unix(*f.SkipTime, 0)
	}
	return time.Unix(c.SkipTime, 0)
}

// Channel finds a configured channel by id.
func (c Config) Channel(id string) (ChannelConfig, bool) {
	for _, ch := range c.Channels {
		if ch.ID == id {
			return ch, true
		}
	}
	return ChannelConfig{}, false
}

// Validate rejects configurations the sweep cannot run with.
func (c Config) Validate() error {
	var errs []error

	switch c.State.Backend {
	case BackendFile:
	case BackendPostgres:
		if c.State.DSN == "" {
			errs = append(errs, errors.New("state: postgres backend requires dsn"))
		}
	default:
		errs = append(errs, fmt.Errorf("state: unknown backend %q", c.State.Backend))
	}

	seen := map[string]bool{}
	for i, ch := range c.Channels {
		if ch.ID == "" {
			errs = append(errs, fmt.Errorf("channels[%d]: id is required", i))
			continue
		}
		if seen[ch.ID] {
			errs = append(errs, fmt.Errorf("channels[%d]: duplicate id %s", i, ch.ID))
		}
		seen[ch.ID] = true
		for j, f := range ch.FollowArticles {
			if _, err := f.Kind(); err != nil {
				errs = append(errs, fmt.Errorf("channels[%d].follow_articles[%d]: %w", i, j, err))
			}
		}
	}

	return errors.Join(errs...)
}

// Load reads .env, then YAML configuration (if present), then environment overrides.
// An empty path falls back to FEEDBOT_CONFIG.
func Load(path string) Config {
	_ = godotenv.Load()

	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.State.DSN = v
	}

	if v := os.Getenv(stateDirEnv); v != "" {
		c.State.Dir = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(controlAddrEnv); v != "" {
		c.Control.Addr = v
	}

	// TOKEN and PROXY are honoured only when the file left them unset.
	if c.Token == "" {
		c.Token = os.Getenv(tokenEnv)
	}
	if c.Proxy == "" {
		c.Proxy = os.Getenv(proxyEnv)
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if c.Notifications.Telegram.BotToken == "" {
		c.Notifications.Telegram.BotToken = c.Token
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if override.State.Backend != "" {
		base.State.Backend = override.State.Backend
	}
	if override.State.Dir != "" {
		base.State.Dir = override.State.Dir
	}
	if override.State.URLFile != "" {
		base.State.URLFile = override.State.URLFile
	}
	if override.State.CheckpointFile != "" {
		base.State.CheckpointFile = override.State.CheckpointFile
	}
	if override.State.DSN != "" {
		base.State.DSN = override.State.DSN
	}

	if override.Scheduler.Spec != "" {
		base.Scheduler.Spec = override.Scheduler.Spec
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}
	base.Scheduler.RunOnStart = base.Scheduler.RunOnStart || override.Scheduler.RunOnStart

	if override.HTTP.Timeout > 0 {
		base.HTTP.Timeout = override.HTTP.Timeout
	}
	if override.HTTP.UserAgent != "" {
		base.HTTP.UserAgent = override.HTTP.UserAgent
	}

	base.Control.Disabled = base.Control.Disabled || override.Control.Disabled
	if override.Control.Addr != "" {
		base.Control.Addr = override.Control.Addr
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.APIURL != "" {
		base.Notifications.Telegram.APIURL = override.Notifications.Telegram.APIURL
	}

	if override.Sources.LuoguBaseURL != "" {
		base.Sources.LuoguBaseURL = override.Sources.LuoguBaseURL
	}

	if override.SkipTime != 0 {
		base.SkipTime = override.SkipTime
	}
	if override.Token != "" {
		base.Token = override.Token
	}
	if override.Proxy != "" {
		base.Proxy = override.Proxy
	}

	if len(override.Channels) > 0 {
		base.Channels = override.Channels
	}

	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging:   LoggingConfig{Level: "info", Format: "text"},
		State:     StateConfig{Backend: BackendFile, Dir: defaultStateDir},
		Scheduler: SchedulerConfig{Spec: defaultScheduleSpec, Timezone: defaultTimezone, location: tz},
		HTTP:      HTTPConfig{Timeout: defaultHTTPTimeout},
		Control:   ControlConfig{Addr: defaultControlAddr},
	}
}
