// Package config loads and validates the aquabot configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for aquabot.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Store     StoreConfig     `yaml:"store"`
	Wati      WatiConfig      `yaml:"wati"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Routing   RoutingConfig   `yaml:"routing"`
	Access    AccessConfig    `yaml:"access"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Alerts    AlertsConfig    `yaml:"alerts"`
}

type ServerConfig struct {
	Listen string `yaml:"listen"` // e.g. ":8000"
}

type LogConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error
}

type StoreConfig struct {
	DBPath string `yaml:"dbPath"`
}

// WatiConfig configures the WATI WhatsApp transport.
type WatiConfig struct {
	APIKey      string `yaml:"apiKey"`
	APIURL      string `yaml:"apiUrl"`
	VerifyToken string `yaml:"verifyToken"`
}

type OpenAIConfig struct {
	APIKey         string `yaml:"apiKey"`
	ChatModel      string `yaml:"chatModel"`
	EmbeddingModel string `yaml:"embeddingModel"`
	RatePerMinute  int    `yaml:"ratePerMinute"`
}

// Duration is a time.Duration that unmarshals from YAML strings like "3s"
// or plain integers (seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	// An int scalar also decodes into a string ("15"), which ParseDuration
	// rejects, so the tag decides which form this is.
	if node.Tag == "!!int" {
		var secs int64
		if err := node.Decode(&secs); err != nil {
			return fmt.Errorf("invalid duration value %q", node.Value)
		}
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration value %q", node.Value)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// RoutingConfig tunes the message-routing pipeline.
type RoutingConfig struct {
	HighThreshold float64  `yaml:"highThreshold"` // similarity >= high: answer directly
	LowThreshold  float64  `yaml:"lowThreshold"`  // similarity < low: skip knowledge base
	BatchWindow   Duration `yaml:"batchWindow"`   // quiet period for message coalescing
	PauseTTL      Duration `yaml:"pauseTTL"`      // agent-takeover pause duration
	TriggerEmails []string `yaml:"triggerEmails"` // operator emails whose messages pause the bot
	FailOpen      *bool    `yaml:"failOpen"`      // dedup/pause storage failures: true = process anyway
	HistoryLimit  int      `yaml:"historyLimit"`  // prior turns fed to prompts
	Concurrency   int      `yaml:"concurrency"`   // max parallel turns in flight
}

// FailOpenEnabled returns the fail-open policy, defaulting to true.
func (r RoutingConfig) FailOpenEnabled() bool {
	if r.FailOpen == nil {
		return true
	}
	return *r.FailOpen
}

// AccessConfig restricts full functionality to an allow-list.
type AccessConfig struct {
	Restricted    bool     `yaml:"restricted"`
	AllowedPhones []string `yaml:"allowedPhones"`
}

type KnowledgeConfig struct {
	SearchK            int     `yaml:"searchK"`            // neighbors fetched per query
	DuplicateThreshold float64 `yaml:"duplicateThreshold"` // similarity above which ingestion is a duplicate
}

// CatalogConfig configures the upstream admin API sync.
type CatalogConfig struct {
	BaseURL   string `yaml:"baseUrl"`
	APIToken  string `yaml:"apiToken"`
	AccessKey string `yaml:"accessKey"`
	DailyAt   string `yaml:"dailyAt"` // "HH:MM", local time
	OrdersURL string `yaml:"ordersUrl"`
	OrdersKey string `yaml:"ordersKey"`
}

type AlertsConfig struct {
	Telegram TelegramAlertConfig `yaml:"telegram"`
	Slack    SlackAlertConfig    `yaml:"slack"`
}

type TelegramAlertConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  int64  `yaml:"chatId"`
}

type SlackAlertConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	Channel string `yaml:"channel"`
}

// Defaults returns a configuration with sensible defaults; secrets stay empty
// and are expected from the environment.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{Listen: ":8000"},
		Log:    LogConfig{Level: "info"},
		Store:  StoreConfig{DBPath: filepath.Join(defaultDataDir(), "aquabot.sqlite")},
		Wati: WatiConfig{
			APIKey:      "${WATI_API_KEY}",
			APIURL:      "${WATI_API_URL}",
			VerifyToken: "${WATI_WEBHOOK_VERIFY_TOKEN}",
		},
		OpenAI: OpenAIConfig{
			APIKey:         "${OPENAI_API_KEY}",
			ChatModel:      "gpt-4o",
			EmbeddingModel: "text-embedding-3-small",
			RatePerMinute:  30,
		},
		Routing: RoutingConfig{
			HighThreshold: 0.80,
			LowThreshold:  0.20,
			BatchWindow:   Duration(3 * time.Second),
			PauseTTL:      Duration(10 * time.Hour),
			HistoryLimit:  10,
			Concurrency:   4,
		},
		Knowledge: KnowledgeConfig{SearchK: 3, DuplicateThreshold: 0.85},
		Catalog:   CatalogConfig{DailyAt: "02:00"},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "data"
	}
	return filepath.Join(home, ".aquabot")
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() string {
	return filepath.Join(defaultDataDir(), "config.yaml")
}

var envPattern = regexp.MustCompile(`\$\{(\w+)\}`)

// expandEnv replaces ${VAR} placeholders with environment values. Unset
// variables expand to the empty string.
func expandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(m string) string {
		return os.Getenv(m[2 : len(m)-1])
	})
}

// Load reads a YAML config file, applies ${VAR} expansion to secret fields,
// and fills zero values from Defaults.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.ExpandSecrets()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ExpandSecrets resolves ${VAR} placeholders in the secret-bearing fields.
func (c *Config) ExpandSecrets() {
	c.Wati.APIKey = expandEnv(c.Wati.APIKey)
	c.Wati.APIURL = expandEnv(c.Wati.APIURL)
	c.Wati.VerifyToken = expandEnv(c.Wati.VerifyToken)
	c.OpenAI.APIKey = expandEnv(c.OpenAI.APIKey)
	c.Catalog.APIToken = expandEnv(c.Catalog.APIToken)
	c.Catalog.AccessKey = expandEnv(c.Catalog.AccessKey)
	c.Catalog.OrdersKey = expandEnv(c.Catalog.OrdersKey)
	c.Alerts.Telegram.Token = expandEnv(c.Alerts.Telegram.Token)
	c.Alerts.Slack.Token = expandEnv(c.Alerts.Slack.Token)
}

// Validate rejects configurations that cannot work.
func (c *Config) Validate() error {
	if c.Routing.LowThreshold < 0 || c.Routing.HighThreshold > 1 {
		return fmt.Errorf("routing thresholds must lie in [0,1]")
	}
	if c.Routing.LowThreshold >= c.Routing.HighThreshold {
		return fmt.Errorf("routing.lowThreshold (%.2f) must be below routing.highThreshold (%.2f)",
			c.Routing.LowThreshold, c.Routing.HighThreshold)
	}
	if c.Routing.BatchWindow <= 0 {
		return fmt.Errorf("routing.batchWindow must be positive")
	}
	if c.Routing.PauseTTL <= 0 {
		return fmt.Errorf("routing.pauseTTL must be positive")
	}
	return nil
}

// Save writes the config to path as YAML.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}
