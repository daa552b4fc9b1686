package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config contains all runtime settings for the generative desktop service.
type Config struct {
	BindAddr         string        `envconfig:"APP_BIND_ADDR" default:":8080"`
	ShutdownTimeout  time.Duration `envconfig:"APP_SHUTDOWN_TIMEOUT" default:"15s"`
	MetricsNamespace string        `envconfig:"APP_METRICS_NAMESPACE" default:"synthdesk"`
	AllowAnyOrigin   bool          `envconfig:"APP_ALLOW_ANY_ORIGIN" default:"false"`

	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogDevelopment bool   `envconfig:"LOG_DEVELOPMENT" default:"false"`

	// GeneratorMode selects the content generator backend: auto|gemini|http|mock.
	GeneratorMode    string `envconfig:"GENERATOR_MODE" default:"auto"`
	GeneratorHTTPURL string `envconfig:"GENERATOR_HTTP_URL"`
	// GeneratorHTTPStrict rejects non-JSON stream lines instead of treating them as text.
	GeneratorHTTPStrict bool `envconfig:"GENERATOR_HTTP_STRICT" default:"false"`

	GeminiAPIKey     string `envconfig:"GEMINI_API_KEY"`
	GeminiTextModel  string `envconfig:"GEMINI_TEXT_MODEL" default:"gemini-2.5-flash"`
	GeminiImageModel string `envconfig:"GEMINI_IMAGE_MODEL" default:"imagen-4.0-generate-001"`
	GeminiVideoModel string `envconfig:"GEMINI_VIDEO_MODEL" default:"veo-2.0-generate-001"`
	GeminiIconModel  string `envconfig:"GEMINI_ICON_MODEL" default:"gemini-2.5-flash-lite"`
	GeminiLiveModel  string `envconfig:"GEMINI_LIVE_MODEL" default:"gemini-2.5-flash-native-audio-preview-09-2025"`
	GeminiLiveURL    string `envconfig:"GEMINI_LIVE_URL" default:"wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"`
	GeminiLiveVoice  string `envconfig:"GEMINI_LIVE_VOICE" default:"Orus"`

	// MaxHistory is H, the interaction window kept as generation context.
	MaxHistory            int      `envconfig:"MAX_HISTORY" default:"10"`
	StatelessAppID        string   `envconfig:"STATELESS_APP_ID" default:"gaming_app"`
	WebSearchApps         []string `envconfig:"WEB_SEARCH_APPS" default:"web_browser_app,travel_app,news_app"`
	PreviousContentBudget int      `envconfig:"PREVIOUS_CONTENT_BUDGET" default:"4000"`

	// AudioTransport selects the realtime transport: auto|gemini|echo.
	AudioTransport string `envconfig:"AUDIO_TRANSPORT" default:"auto"`
	// AudioRecordPath, when set, records playback to a WAV file instead of the browser bridge.
	AudioRecordPath string `envconfig:"AUDIO_RECORD_PATH"`

	ArtifactMode           string        `envconfig:"ARTIFACT_MODE" default:"auto"`
	ArtifactRatePerSecond  float64       `envconfig:"ARTIFACT_RATE_PER_SECOND" default:"0.5"`
	ArtifactBurst          int           `envconfig:"ARTIFACT_BURST" default:"2"`
	VideoPollInterval      time.Duration `envconfig:"VIDEO_POLL_INTERVAL" default:"5s"`
	VideoPollMaxInterval   time.Duration `envconfig:"VIDEO_POLL_MAX_INTERVAL" default:"30s"`
	VideoGenerationTimeout time.Duration `envconfig:"VIDEO_GENERATION_TIMEOUT" default:"6m"`

	// DatabaseURL enables the Postgres generation journal; empty keeps it in memory.
	DatabaseURL string `envconfig:"DATABASE_URL"`
}

// Load reads environment variables, applies defaults and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config parse error: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.GeneratorMode = strings.ToLower(strings.TrimSpace(c.GeneratorMode))
	c.AudioTransport = strings.ToLower(strings.TrimSpace(c.AudioTransport))
	c.ArtifactMode = strings.ToLower(strings.TrimSpace(c.ArtifactMode))
	c.GeminiAPIKey = strings.TrimSpace(c.GeminiAPIKey)
	c.GeneratorHTTPURL = strings.TrimSpace(c.GeneratorHTTPURL)
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)
	c.StatelessAppID = strings.TrimSpace(c.StatelessAppID)

	apps := c.WebSearchApps[:0]
	for _, app := range c.WebSearchApps {
		if app = strings.TrimSpace(app); app != "" {
			apps = append(apps, app)
		}
	}
	c.WebSearchApps = apps
}

// Validate checks value ranges that envconfig cannot express.
func (c Config) Validate() error {
	if c.MaxHistory < 1 {
		return fmt.Errorf("MAX_HISTORY must be at least 1")
	}
	if c.PreviousContentBudget <= 0 {
		return fmt.Errorf("PREVIOUS_CONTENT_BUDGET must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("APP_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.ArtifactRatePerSecond <= 0 {
		return fmt.Errorf("ARTIFACT_RATE_PER_SECOND must be positive")
	}
	if c.ArtifactBurst <= 0 {
		return fmt.Errorf("ARTIFACT_BURST must be positive")
	}
	if c.VideoPollInterval <= 0 || c.VideoPollMaxInterval < c.VideoPollInterval {
		return fmt.Errorf("VIDEO_POLL_INTERVAL must be positive and not exceed VIDEO_POLL_MAX_INTERVAL")
	}
	switch c.GeneratorMode {
	case "auto", "gemini", "http", "mock":
	default:
		return fmt.Errorf("invalid GENERATOR_MODE: %q (expected auto|gemini|http|mock)", c.GeneratorMode)
	}
	if c.GeneratorMode == "http" && c.GeneratorHTTPURL == "" {
		return fmt.Errorf("GENERATOR_HTTP_URL is required when GENERATOR_MODE=http")
	}
	switch c.AudioTransport {
	case "auto", "gemini", "echo":
	default:
		return fmt.Errorf("invalid AUDIO_TRANSPORT: %q (expected auto|gemini|echo)", c.AudioTransport)
	}
	switch c.ArtifactMode {
	case "auto", "gemini", "mock":
	default:
		return fmt.Errorf("invalid ARTIFACT_MODE: %q (expected auto|gemini|mock)", c.ArtifactMode)
	}
	return nil
}

// IsWebSearchApp reports whether appID may receive the web search tool.
func (c Config) IsWebSearchApp(appID string) bool {
	for _, app := range c.WebSearchApps {
		if app == appID {
			return true
		}
	}
	return false
}
