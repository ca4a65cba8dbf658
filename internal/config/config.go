package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Ollama    OllamaConfig
	Storage   StorageConfig
	Catalog   CatalogConfig
	Retrieval RetrievalConfig
	Progress  ProgressConfig
	Log       LogConfig
	API       APIConfig
}

type ServerConfig struct {
	Port    int
	MCPPort int
}

type OllamaConfig struct {
	BaseURL       string
	EmbedModel    string
	EmbedParallel int
}

type StorageConfig struct {
	DataDir string
}

// CatalogConfig points at the course catalog and roadmap definition files
// the engine indexes on startup.
type CatalogConfig struct {
	CatalogPath     string
	RoadmapsDir     string
	DocsDir         string
	RebuildInterval string
}

type RetrievalConfig struct {
	TopK      int
	Threshold float64
}

// ProgressConfig selects the skill-level policy: "tiered" uses per-tier
// completion thresholds, "flat" grades by the single best mapped course.
// The threshold fields only apply to the tiered policy.
type ProgressConfig struct {
	Policy                string
	AdvancedThreshold     float64
	IntermediateThreshold float64
	BeginnerThreshold     float64
}

type LogConfig struct {
	Level string
}

type APIConfig struct {
	Token string
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port:    4000,
			MCPPort: 4001,
		},
		Ollama: OllamaConfig{
			BaseURL:       "http://localhost:11434",
			EmbedModel:    "nomic-embed-text",
			EmbedParallel: 4,
		},
		Storage: StorageConfig{
			DataDir: dataDir,
		},
		Catalog: CatalogConfig{
			CatalogPath:     "",
			RoadmapsDir:     "",
			DocsDir:         "",
			RebuildInterval: "24h",
		},
		Retrieval: RetrievalConfig{
			TopK:      10,
			Threshold: 0.18,
		},
		Progress: ProgressConfig{
			Policy:                "tiered",
			AdvancedThreshold:     80,
			IntermediateThreshold: 40,
			BeginnerThreshold:     1,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.skillmap.app) and secrets
// fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/skillmap/config.json
// and secrets must be provided via environment variables.
//
// Environment variables (SKILLMAP_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts Keychain access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// Try platform keychain for the API token if still empty. An empty
	// token simply disables bearer auth, so a keychain miss is not an
	// error here.
	if cfg.API.Token == "" {
		if tok, err := kc.Get("skillmap", "api_token"); err == nil && tok != "" {
			cfg.API.Token = tok
		}
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validate(cfg Config) error {
	switch cfg.Progress.Policy {
	case "tiered", "flat":
	default:
		return fmt.Errorf("invalid progress.policy %q: must be \"tiered\" or \"flat\"", cfg.Progress.Policy)
	}
	p := cfg.Progress
	if p.BeginnerThreshold <= 0 || p.AdvancedThreshold > 100 ||
		p.AdvancedThreshold <= p.IntermediateThreshold || p.IntermediateThreshold <= p.BeginnerThreshold {
		return fmt.Errorf("invalid progress thresholds %.0f/%.0f/%.0f: must satisfy 100 >= advanced > intermediate > beginner > 0",
			p.AdvancedThreshold, p.IntermediateThreshold, p.BeginnerThreshold)
	}
	if cfg.Retrieval.TopK < 1 {
		return fmt.Errorf("invalid retrieval.top_k %d: must be at least 1", cfg.Retrieval.TopK)
	}
	if cfg.Ollama.EmbedParallel < 1 {
		return fmt.Errorf("invalid ollama.embed_parallel %d: must be at least 1", cfg.Ollama.EmbedParallel)
	}
	if _, err := time.ParseDuration(cfg.Catalog.RebuildInterval); err != nil {
		return fmt.Errorf("invalid catalog.rebuild_interval %q: %w", cfg.Catalog.RebuildInterval, err)
	}
	return nil
}

// Interval parses the configured rebuild interval. Load validates the
// duration string, so the fallback only covers configs built by hand.
func (c CatalogConfig) Interval() time.Duration {
	d, err := time.ParseDuration(c.RebuildInterval)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// keychainReader reads from macOS Keychain via the security CLI.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainExec(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
