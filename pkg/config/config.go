package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App      AppConfig                `json:"app" yaml:"app"`
	Browser  BrowserConfig            `json:"browser" yaml:"browser"`
	Gateways map[string]GatewayConfig `json:"gateways" yaml:"gateways"`
	Memory   MemoryConfig             `json:"memory" yaml:"memory"`
	Policy   PolicyConfig             `json:"policy" yaml:"policy"`
	Metrics  MetricsConfig            `json:"metrics" yaml:"metrics"`
}

type AppConfig struct {
	Name        string `json:"name" yaml:"name"`
	ArtifactDir string `json:"artifact_dir" yaml:"artifact_dir"`
	LogDir      string `json:"log_dir" yaml:"log_dir"`
}

type BrowserConfig struct {
	Driver         string   `json:"driver" yaml:"driver"`
	Headless       bool     `json:"headless" yaml:"headless"`
	ExecPath       string   `json:"exec_path,omitempty" yaml:"exec_path,omitempty"`
	UserAgent      string   `json:"user_agent,omitempty" yaml:"user_agent,omitempty"`
	ViewportWidth  int      `json:"viewport_width" yaml:"viewport_width"`
	ViewportHeight int      `json:"viewport_height" yaml:"viewport_height"`
	StepTimeout    Duration `json:"step_timeout" yaml:"step_timeout"`
	AssertTimeout  Duration `json:"assert_timeout" yaml:"assert_timeout"`
	SettleWindow   Duration `json:"settle_window" yaml:"settle_window"`
}

// GatewayConfig configures one chat notifier. ChatID is a Telegram chat ID
// or a Discord channel ID.
type GatewayConfig struct {
	Token   string `json:"token" yaml:"token"`
	ChatID  string `json:"chat_id" yaml:"chat_id"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

type MemoryConfig struct {
	Type string `json:"type" yaml:"type"`
	Path string `json:"path" yaml:"path"`
}

type PolicyConfig struct {
	AllowedSchemes []string `json:"allowed_schemes" yaml:"allowed_schemes"`
	DenyHosts      []string `json:"deny_hosts" yaml:"deny_hosts"`
	DenyPatterns   []string `json:"deny_patterns" yaml:"deny_patterns"`
}

type MetricsConfig struct {
	ListenAddress string `json:"listen_address" yaml:"listen_address"`
}

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	return d.parse(s)
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.parse(node.Value)
}

func (d *Duration) parse(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:        "navcheck",
			ArtifactDir: "artifacts",
			LogDir:      "logs",
		},
		Browser: BrowserConfig{
			Driver:         "chromedp",
			Headless:       true,
			ViewportWidth:  1280,
			ViewportHeight: 720,
			StepTimeout:    Duration(30 * time.Second),
			AssertTimeout:  Duration(5 * time.Second),
			SettleWindow:   Duration(time.Second),
		},
		Gateways: map[string]GatewayConfig{},
		Memory: MemoryConfig{
			Type: "sqlite",
			Path: "navcheck.db",
		},
		Policy: PolicyConfig{
			AllowedSchemes: []string{"http", "https"},
		},
		Metrics: MetricsConfig{
			ListenAddress: ":9090",
		},
	}
}

// LoadConfig reads path over the defaults. Files ending in .yaml or .yml are
// decoded as YAML, everything else as JSON. An empty path yields defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	return cfg, nil
}

// EnabledGateways returns the enabled gateways that have a token.
func (c *Config) EnabledGateways() map[string]GatewayConfig {
	out := make(map[string]GatewayConfig)
	for name, g := range c.Gateways {
		if g.Enabled && g.Token != "" {
			out[name] = g
		}
	}
	return out
}

// GetTelegramConfig returns telegram config if enabled
func (c *Config) GetTelegramConfig() (GatewayConfig, bool) {
	tg, ok := c.EnabledGateways()["telegram"]
	return tg, ok
}

// GetDiscordConfig returns discord config if enabled
func (c *Config) GetDiscordConfig() (GatewayConfig, bool) {
	dc, ok := c.EnabledGateways()["discord"]
	return dc, ok
}
