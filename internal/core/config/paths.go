package config

import (
	"path/filepath"
	"strings"
)

// ResolvedPaths holds the file locations of a loaded config made absolute.
type ResolvedPaths struct {
	HistoryDB       string
	MetricsTextfile string
}

// ResolvePaths anchors relative paths at the directory of the config file,
// or at cwd when no file was loaded.
func ResolvePaths(cfg *Config, configPath, cwd string) ResolvedPaths {
	base := cwd
	if strings.TrimSpace(configPath) != "" {
		base = filepath.Dir(ResolveRelative(cwd, configPath))
	}
	out := ResolvedPaths{HistoryDB: ResolveRelative(base, cfg.History.Path)}
	if cfg.Observability.MetricsTextfile != "" {
		out.MetricsTextfile = ResolveRelative(base, cfg.Observability.MetricsTextfile)
	}
	return out
}

func ResolveRelative(base, value string) string {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return filepath.Clean(base)
	}
	if filepath.IsAbs(raw) {
		return filepath.Clean(raw)
	}
	return filepath.Clean(filepath.Join(base, raw))
}
