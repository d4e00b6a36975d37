package config

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	"modweave/internal/core/errors"
	"modweave/internal/engine/pipeline"
)

// Validate checks every section, returning the first problem as a
// VALIDATION_ERROR.
func Validate(cfg *Config) error {
	for _, check := range []func(*Config) error{
		validateVersion,
		validatePipeline,
		validateRelink,
		validateQuery,
		validateHistory,
	} {
		if err := check(cfg); err != nil {
			return err
		}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return errors.Newf(errors.CodeValidationError, format, args...)
}

func validateVersion(cfg *Config) error {
	if cfg.Version != 1 {
		return invalid("unsupported config version %d; supported version is 1", cfg.Version)
	}
	return nil
}

func validatePipeline(cfg *Config) error {
	if len(cfg.Pipeline.Stages) == 0 {
		return invalid("pipeline.stages must name at least one stage")
	}
	seen := make(map[pipeline.Stage]bool, len(cfg.Pipeline.Stages))
	for i, name := range cfg.Pipeline.Stages {
		st, err := pipeline.ParseStage(name)
		if err != nil {
			return errors.AddContext(err, errors.CtxOperation, "pipeline.stages")
		}
		if seen[st] {
			return invalid("pipeline.stages[%d]: duplicate stage %s", i, st)
		}
		seen[st] = true
	}
	return nil
}

func validateRelink(cfg *Config) error {
	for i, pattern := range cfg.Relink.CoreLibScopes {
		if _, err := glob.Compile(pattern); err != nil {
			msg := fmt.Sprintf("relink.corelib_scopes[%d] is not a valid glob", i)
			return errors.AddContext(errors.Wrap(err, errors.CodeValidationError, msg), errors.CtxPattern, pattern)
		}
	}
	return nil
}

func validateQuery(cfg *Config) error {
	if cfg.Query.ExpansionCacheSize < 1 {
		return invalid("query.expansion_cache_size must be >= 1, got %d", cfg.Query.ExpansionCacheSize)
	}
	return nil
}

func validateHistory(cfg *Config) error {
	if cfg.History.Enabled && strings.TrimSpace(cfg.History.Path) == "" {
		return invalid("history.path must not be empty when history is enabled")
	}
	return nil
}
