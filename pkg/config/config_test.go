package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestFlexibleStringSliceAcceptsNumbers(t *testing.T) {
	var f FlexibleStringSlice
	if err := json.Unmarshal([]byte(`["123", 456]`), &f); err != nil {
		t.Fatalf("unmarshal returned error: %v", err)
	}
	if len(f) != 2 || f[0] != "123" || f[1] != "456" {
		t.Fatalf("got %v, want [123 456]", f)
	}
}

func TestSecretForExactAndWildcard(t *testing.T) {
	w := WebhookConfig{
		Repos: []RepoSecret{
			{Name: "octo/widgets", Secret: "a"},
			{Name: "octo/*", Secret: "b"},
		},
	}

	if secret, ok := w.SecretFor("octo/widgets"); !ok || secret != "a" {
		t.Fatalf("exact match = (%q, %v), want (a, true)", secret, ok)
	}
	if secret, ok := w.SecretFor("octo/other"); !ok || secret != "b" {
		t.Fatalf("wildcard match = (%q, %v), want (b, true)", secret, ok)
	}
	if _, ok := w.SecretFor("stranger/repo"); ok {
		t.Fatal("unrelated repo should not match")
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Webhook.Port != 6789 {
		t.Fatalf("default webhook port = %d, want 6789", cfg.Webhook.Port)
	}
	if len(cfg.Command.Prefixes) != 1 || cfg.Command.Prefixes[0] != "/" {
		t.Fatalf("default prefixes = %v, want [/]", cfg.Command.Prefixes)
	}
}

func TestSaveAndLoadConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := DefaultConfig()
	cfg.Channels.OneBot.Enabled = true
	cfg.Channels.OneBot.WSUrl = "ws://127.0.0.1:8080"
	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig returned error: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if !loaded.Channels.OneBot.Enabled || loaded.Channels.OneBot.WSUrl != "ws://127.0.0.1:8080" {
		t.Fatalf("loaded config lost onebot settings: %+v", loaded.Channels.OneBot)
	}
}

func TestEnvOverride(t *testing.T) {
	os.Setenv("COMET_USER_INITIAL_COIN", "250")
	defer os.Unsetenv("COMET_USER_INITIAL_COIN")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.User.InitialCoin != 250 {
		t.Fatalf("InitialCoin = %d, want 250 from env", cfg.User.InitialCoin)
	}
}
