package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "SKILLMAP_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.mcp_port", typ: kInt, env: "SKILLMAP_SERVER_MCP_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.MCPPort = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MCPPort },
	},
	{
		key: "ollama.base_url", typ: kString, env: "SKILLMAP_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.embed_model", typ: kString, env: "SKILLMAP_OLLAMA_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.EmbedModel },
	},
	{
		key: "ollama.embed_parallel", typ: kInt, env: "SKILLMAP_OLLAMA_EMBED_PARALLEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.EmbedParallel = v.(int) },
		extract: func(cfg Config) any { return cfg.Ollama.EmbedParallel },
	},
	{
		key: "storage.data_dir", typ: kString, env: "SKILLMAP_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "catalog.catalog_path", typ: kString, env: "SKILLMAP_CATALOG_PATH",
		apply:   func(cfg *Config, v any) { cfg.Catalog.CatalogPath = v.(string) },
		extract: func(cfg Config) any { return cfg.Catalog.CatalogPath },
	},
	{
		key: "catalog.roadmaps_dir", typ: kString, env: "SKILLMAP_ROADMAPS_DIR",
		apply:   func(cfg *Config, v any) { cfg.Catalog.RoadmapsDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Catalog.RoadmapsDir },
	},
	{
		key: "catalog.docs_dir", typ: kString, env: "SKILLMAP_DOCS_DIR",
		apply:   func(cfg *Config, v any) { cfg.Catalog.DocsDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Catalog.DocsDir },
	},
	{
		key: "catalog.rebuild_interval", typ: kString, env: "SKILLMAP_CATALOG_REBUILD_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Catalog.RebuildInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Catalog.RebuildInterval },
	},
	{
		key: "retrieval.top_k", typ: kInt, env: "SKILLMAP_RETRIEVAL_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.TopK },
	},
	{
		key: "retrieval.threshold", typ: kFloat, env: "SKILLMAP_RETRIEVAL_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.Threshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Retrieval.Threshold },
	},
	{
		key: "progress.policy", typ: kString, env: "SKILLMAP_PROGRESS_POLICY",
		apply:   func(cfg *Config, v any) { cfg.Progress.Policy = v.(string) },
		extract: func(cfg Config) any { return cfg.Progress.Policy },
	},
	{
		key: "progress.threshold.advanced", typ: kFloat, env: "SKILLMAP_PROGRESS_THRESHOLD_ADVANCED",
		apply:   func(cfg *Config, v any) { cfg.Progress.AdvancedThreshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Progress.AdvancedThreshold },
	},
	{
		key: "progress.threshold.intermediate", typ: kFloat, env: "SKILLMAP_PROGRESS_THRESHOLD_INTERMEDIATE",
		apply:   func(cfg *Config, v any) { cfg.Progress.IntermediateThreshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Progress.IntermediateThreshold },
	},
	{
		key: "progress.threshold.beginner", typ: kFloat, env: "SKILLMAP_PROGRESS_THRESHOLD_BEGINNER",
		apply:   func(cfg *Config, v any) { cfg.Progress.BeginnerThreshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Progress.BeginnerThreshold },
	},
	{
		key: "log.level", typ: kString, env: "SKILLMAP_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "api.token", typ: kString, env: "SKILLMAP_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.API.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.API.Token },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
