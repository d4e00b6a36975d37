package config

import (
	"bytes"
	stderrors "errors"
	"io/fs"

	"github.com/BurntSushi/toml"

	"modweave/internal/core/errors"
	"modweave/internal/engine/pipeline"
	"modweave/internal/engine/relink"
	"modweave/internal/shared/util"
)

const DefaultFile = "modweave.toml"

type Config struct {
	Version       int           `toml:"version"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Relink        Relink        `toml:"relink"`
	Query         Query         `toml:"query"`
	History       History       `toml:"history"`
	Observability Observability `toml:"observability"`
}

type Pipeline struct {
	// Stages lists the stages a run applies; stages left out are cancelled.
	Stages         []string `toml:"stages"`
	StallDetection *bool    `toml:"stall_detection"`
}

type Relink struct {
	CoreLibScopes       []string `toml:"corelib_scopes"`
	ThrowResolveFailure *bool    `toml:"throw_resolve_failure"`
	RemoveLegacyRefs    *bool    `toml:"remove_legacy_refs"`
}

type Query struct {
	ExpansionCacheSize int `toml:"expansion_cache_size"`
}

type History struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type Observability struct {
	MetricsTextfile string `toml:"metrics_textfile"`
	OTLPEndpoint    string `toml:"otlp_endpoint"`
	ServiceName     string `toml:"service_name"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// PipelineOptions maps the config onto scheduler options.
func (c *Config) PipelineOptions() pipeline.Options {
	opts := pipeline.DefaultOptions()
	opts.ExpansionCacheSize = c.Query.ExpansionCacheSize
	opts.StallDetection = c.Pipeline.StallDetection == nil || *c.Pipeline.StallDetection
	return opts
}

// CoreLibOptions maps the relink section onto core library relinker options.
func (c *Config) CoreLibOptions() relink.CoreLibOptions {
	return relink.CoreLibOptions{
		Scopes:              append([]string(nil), c.Relink.CoreLibScopes...),
		ThrowResolveFailure: c.Relink.ThrowResolveFailure == nil || *c.Relink.ThrowResolveFailure,
		RemoveLegacyRefs:    c.Relink.RemoveLegacyRefs == nil || *c.Relink.RemoveLegacyRefs,
	}
}

// RunStages returns the configured stages parsed, in configured order.
func (c *Config) RunStages() ([]pipeline.Stage, error) {
	out := make([]pipeline.Stage, 0, len(c.Pipeline.Stages))
	for _, name := range c.Pipeline.Stages {
		st, err := pipeline.ParseStage(name)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// WriteDefault writes DefaultConfig to path as TOML, creating parent
// directories. An existing file is left alone.
func WriteDefault(path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(DefaultConfig()); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "encode default config")
	}
	if err := util.WriteFileWithDirs(path, buf.Bytes(), 0o644, true); err != nil {
		if stderrors.Is(err, fs.ErrExist) {
			return errors.Newf(errors.CodeValidationError, "config %q already exists", path).WithContext(errors.CtxPath, path)
		}
		return errors.AddContext(errors.Wrap(err, errors.CodeInternal, "write config"), errors.CtxPath, path)
	}
	return nil
}
