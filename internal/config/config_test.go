package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8080")
	}
	if cfg.MaxHistory != 10 {
		t.Fatalf("MaxHistory = %d, want 10", cfg.MaxHistory)
	}
	if cfg.StatelessAppID != "gaming_app" {
		t.Fatalf("StatelessAppID = %q, want %q", cfg.StatelessAppID, "gaming_app")
	}
	if cfg.GeneratorMode != "auto" {
		t.Fatalf("GeneratorMode = %q, want %q", cfg.GeneratorMode, "auto")
	}
	if cfg.ShutdownTimeout != 15*time.Second {
		t.Fatalf("ShutdownTimeout = %s, want 15s", cfg.ShutdownTimeout)
	}
	if !cfg.IsWebSearchApp("web_browser_app") {
		t.Fatalf("web_browser_app should be in the default web search allow-list")
	}
	if cfg.IsWebSearchApp("calendar_app") {
		t.Fatalf("calendar_app should not be in the default web search allow-list")
	}
}

func TestLoadExplicitValues(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9191")
	t.Setenv("MAX_HISTORY", "4")
	t.Setenv("WEB_SEARCH_APPS", " maps_app , ,news_app")
	t.Setenv("GENERATOR_MODE", " MOCK ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9191" {
		t.Fatalf("BindAddr = %q, want explicit value", cfg.BindAddr)
	}
	if cfg.MaxHistory != 4 {
		t.Fatalf("MaxHistory = %d, want 4", cfg.MaxHistory)
	}
	if len(cfg.WebSearchApps) != 2 || cfg.WebSearchApps[0] != "maps_app" || cfg.WebSearchApps[1] != "news_app" {
		t.Fatalf("WebSearchApps = %#v, want [maps_app news_app]", cfg.WebSearchApps)
	}
	if cfg.GeneratorMode != "mock" {
		t.Fatalf("GeneratorMode = %q, want %q", cfg.GeneratorMode, "mock")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "zero history", key: "MAX_HISTORY", val: "0"},
		{name: "bad generator mode", key: "GENERATOR_MODE", val: "openai"},
		{name: "http mode without url", key: "GENERATOR_MODE", val: "http"},
		{name: "bad audio transport", key: "AUDIO_TRANSPORT", val: "carrier-pigeon"},
		{name: "unparseable duration", key: "APP_SHUTDOWN_TIMEOUT", val: "soon"},
		{name: "negative budget", key: "PREVIOUS_CONTENT_BUDGET", val: "-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(tt.key, tt.val)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() with %s=%q expected error", tt.key, tt.val)
			}
		})
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"LOG_LEVEL",
		"LOG_DEVELOPMENT",
		"GENERATOR_MODE",
		"GENERATOR_HTTP_URL",
		"GENERATOR_HTTP_STRICT",
		"GEMINI_API_KEY",
		"GEMINI_TEXT_MODEL",
		"GEMINI_IMAGE_MODEL",
		"GEMINI_VIDEO_MODEL",
		"GEMINI_ICON_MODEL",
		"GEMINI_LIVE_MODEL",
		"GEMINI_LIVE_URL",
		"GEMINI_LIVE_VOICE",
		"MAX_HISTORY",
		"STATELESS_APP_ID",
		"WEB_SEARCH_APPS",
		"PREVIOUS_CONTENT_BUDGET",
		"AUDIO_TRANSPORT",
		"AUDIO_RECORD_PATH",
		"ARTIFACT_MODE",
		"ARTIFACT_RATE_PER_SECOND",
		"ARTIFACT_BURST",
		"VIDEO_POLL_INTERVAL",
		"VIDEO_POLL_MAX_INTERVAL",
		"VIDEO_GENERATION_TIMEOUT",
		"DATABASE_URL",
	}
	for _, key := range keys {
		// t.Setenv restores the original value on cleanup; unset so defaults apply.
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}
