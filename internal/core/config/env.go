package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Pattern: MODWEAVE_[SECTION]_[KEY] (e.g., MODWEAVE_HISTORY_PATH).
func ApplyEnvOverrides(cfg *Config) {
	setEnvList(&cfg.Pipeline.Stages, "MODWEAVE_PIPELINE_STAGES")
	setEnvBoolPtr(&cfg.Pipeline.StallDetection, "MODWEAVE_PIPELINE_STALL_DETECTION")

	setEnvList(&cfg.Relink.CoreLibScopes, "MODWEAVE_RELINK_CORELIB_SCOPES")
	setEnvBoolPtr(&cfg.Relink.ThrowResolveFailure, "MODWEAVE_RELINK_THROW_RESOLVE_FAILURE")
	setEnvBoolPtr(&cfg.Relink.RemoveLegacyRefs, "MODWEAVE_RELINK_REMOVE_LEGACY_REFS")

	setEnvInt(&cfg.Query.ExpansionCacheSize, "MODWEAVE_QUERY_EXPANSION_CACHE_SIZE")

	setEnvBool(&cfg.History.Enabled, "MODWEAVE_HISTORY_ENABLED")
	setEnvString(&cfg.History.Path, "MODWEAVE_HISTORY_PATH")

	setEnvString(&cfg.Observability.MetricsTextfile, "MODWEAVE_OBSERVABILITY_METRICS_TEXTFILE")
	setEnvString(&cfg.Observability.OTLPEndpoint, "MODWEAVE_OBSERVABILITY_OTLP_ENDPOINT")
	setEnvString(&cfg.Observability.ServiceName, "MODWEAVE_OBSERVABILITY_SERVICE_NAME")
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key, "value", val)
		*target = val
	}
}

// setEnvList splits a comma separated value.
func setEnvList(target *[]string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key, "value", val)
		*target = strings.Split(val, ",")
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = i
		}
	}
}

func setEnvBool(target *bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(strings.ToLower(val))
		if err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = b
		}
	}
}

func setEnvBoolPtr(target **bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(strings.ToLower(val))
		if err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = &b
		}
	}
}
