package config

import (
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"modweave/internal/core/errors"
	"modweave/internal/engine/pipeline"
	"modweave/internal/engine/relink"
)

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeNotFound, "read config"), errors.CtxPath, path)
	}

	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeValidationError, "decode config"), errors.CtxPath, path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, errors.Newf(errors.CodeValidationError, "unknown config keys: %s", strings.Join(keys, ", ")).
			WithContext(errors.CtxPath, path)
	}

	ApplyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	normalize(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, errors.AddContext(err, errors.CtxPath, path)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	if len(cfg.Pipeline.Stages) == 0 {
		for _, st := range pipeline.Stages() {
			cfg.Pipeline.Stages = append(cfg.Pipeline.Stages, st.String())
		}
	}
	if cfg.Pipeline.StallDetection == nil {
		enabled := true
		cfg.Pipeline.StallDetection = &enabled
	}

	if len(cfg.Relink.CoreLibScopes) == 0 {
		cfg.Relink.CoreLibScopes = append([]string(nil), relink.DefaultCoreLibScopes...)
	}
	if cfg.Relink.ThrowResolveFailure == nil {
		enabled := true
		cfg.Relink.ThrowResolveFailure = &enabled
	}
	if cfg.Relink.RemoveLegacyRefs == nil {
		enabled := true
		cfg.Relink.RemoveLegacyRefs = &enabled
	}

	if cfg.Query.ExpansionCacheSize == 0 {
		cfg.Query.ExpansionCacheSize = pipeline.DefaultOptions().ExpansionCacheSize
	}

	if strings.TrimSpace(cfg.History.Path) == "" {
		cfg.History.Path = "data/history.db"
	}
	if strings.TrimSpace(cfg.Observability.ServiceName) == "" {
		cfg.Observability.ServiceName = "modweave"
	}
}

func normalize(cfg *Config) {
	for i, name := range cfg.Pipeline.Stages {
		cfg.Pipeline.Stages[i] = strings.TrimSpace(name)
	}
	scopes := cfg.Relink.CoreLibScopes[:0]
	for _, s := range cfg.Relink.CoreLibScopes {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, s)
		}
	}
	cfg.Relink.CoreLibScopes = scopes
	cfg.History.Path = strings.TrimSpace(cfg.History.Path)
	cfg.Observability.MetricsTextfile = strings.TrimSpace(cfg.Observability.MetricsTextfile)
	cfg.Observability.OTLPEndpoint = strings.TrimSpace(cfg.Observability.OTLPEndpoint)
	cfg.Observability.ServiceName = strings.TrimSpace(cfg.Observability.ServiceName)
}
