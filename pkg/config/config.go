package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so allow_from can contain both "123" and 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	DataDir    string           `json:"data_dir" env:"COMET_DATA_DIR"`
	Command    CommandConfig    `json:"command"`
	Channels   ChannelsConfig   `json:"channels"`
	Webhook    WebhookConfig    `json:"webhook"`
	User       UserConfig       `json:"user"`
	GitHub     GitHubConfig     `json:"github"`
	ThirdParty ThirdPartyConfig `json:"thirdparty"`
}

type CommandConfig struct {
	Prefixes FlexibleStringSlice `json:"prefixes" env:"COMET_COMMAND_PREFIXES"`
}

type ChannelsConfig struct {
	OneBot   OneBotConfig   `json:"onebot"`
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
	Console  ConsoleConfig  `json:"console"`
}

type OneBotConfig struct {
	Enabled           bool                `json:"enabled" env:"COMET_CHANNELS_ONEBOT_ENABLED"`
	WSUrl             string              `json:"ws_url" env:"COMET_CHANNELS_ONEBOT_WS_URL"`
	AccessToken       string              `json:"access_token" env:"COMET_CHANNELS_ONEBOT_ACCESS_TOKEN"`
	ReconnectInterval int                 `json:"reconnect_interval" env:"COMET_CHANNELS_ONEBOT_RECONNECT_INTERVAL"`
	AllowFrom         FlexibleStringSlice `json:"allow_from" env:"COMET_CHANNELS_ONEBOT_ALLOW_FROM"`
	AllowGroups       FlexibleStringSlice `json:"allow_groups" env:"COMET_CHANNELS_ONEBOT_ALLOW_GROUPS"`
}

type TelegramConfig struct {
	Enabled   bool                `json:"enabled" env:"COMET_CHANNELS_TELEGRAM_ENABLED"`
	Token     string              `json:"token" env:"COMET_CHANNELS_TELEGRAM_TOKEN"`
	AllowFrom FlexibleStringSlice `json:"allow_from" env:"COMET_CHANNELS_TELEGRAM_ALLOW_FROM"`
}

type DiscordConfig struct {
	Enabled   bool                `json:"enabled" env:"COMET_CHANNELS_DISCORD_ENABLED"`
	Token     string              `json:"token" env:"COMET_CHANNELS_DISCORD_TOKEN"`
	AllowFrom FlexibleStringSlice `json:"allow_from" env:"COMET_CHANNELS_DISCORD_ALLOW_FROM"`
}

type ConsoleConfig struct {
	Enabled bool `json:"enabled" env:"COMET_CHANNELS_CONSOLE_ENABLED"`
}

// WebhookConfig drives the GitHub ingress server. Each repo entry binds a
// full name ("owner/repo") to its shared secret; "owner/*" matches every
// repository of that owner. An empty secret means the repo accepts
// unsigned deliveries.
type WebhookConfig struct {
	Enabled bool         `json:"enabled" env:"COMET_WEBHOOK_ENABLED"`
	Host    string       `json:"host" env:"COMET_WEBHOOK_HOST"`
	Port    int          `json:"port" env:"COMET_WEBHOOK_PORT"`
	Repos   []RepoSecret `json:"repos"`
}

type RepoSecret struct {
	Name   string `json:"name"`
	Secret string `json:"secret"`
}

type UserConfig struct {
	InitialCoin int64 `json:"initial_coin" env:"COMET_USER_INITIAL_COIN"`
	CheckInCoin int64 `json:"checkin_coin" env:"COMET_USER_CHECKIN_COIN"`
}

type GitHubConfig struct {
	Token string `json:"token" env:"COMET_GITHUB_TOKEN"`
}

type ThirdPartyConfig struct {
	ApexAPIKey string `json:"apex_api_key" env:"COMET_THIRDPARTY_APEX_API_KEY"`
}

func DefaultConfig() *Config {
	return &Config{
		DataDir: "~/.comet",
		Command: CommandConfig{
			Prefixes: FlexibleStringSlice{"/"},
		},
		Channels: ChannelsConfig{
			OneBot: OneBotConfig{
				Enabled:           false,
				WSUrl:             "ws://127.0.0.1:3001",
				ReconnectInterval: 5,
				AllowFrom:         FlexibleStringSlice{},
				AllowGroups:       FlexibleStringSlice{},
			},
			Telegram: TelegramConfig{
				Enabled:   false,
				AllowFrom: FlexibleStringSlice{},
			},
			Discord: DiscordConfig{
				Enabled:   false,
				AllowFrom: FlexibleStringSlice{},
			},
			Console: ConsoleConfig{
				Enabled: false,
			},
		},
		Webhook: WebhookConfig{
			Enabled: false,
			Host:    "0.0.0.0",
			Port:    6789,
			Repos:   []RepoSecret{},
		},
		User: UserConfig{
			InitialCoin: 100,
			CheckInCoin: 10,
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	// Env overrides apply even when no config file exists yet.
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// DataPath expands the configured data directory.
func (c *Config) DataPath() string {
	return expandHome(c.DataDir)
}

// SecretFor returns the webhook secret configured for a repository, trying
// the exact full name first, then "owner/*".
func (w WebhookConfig) SecretFor(fullName string) (string, bool) {
	for _, repo := range w.Repos {
		if repo.Name == fullName {
			return repo.Secret, true
		}
	}
	if owner, _, ok := strings.Cut(fullName, "/"); ok {
		for _, repo := range w.Repos {
			if repo.Name == owner+"/*" {
				return repo.Secret, true
			}
		}
	}
	return "", false
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
