package ports

import (
	"context"

	"modweave/internal/data/history"
	"modweave/internal/engine/meta"
	"modweave/internal/engine/pipeline"
)

// ModuleLoader reads the module a run patches.
type ModuleLoader interface {
	Load(ctx context.Context, path string) (*meta.Module, error)
}

// AssemblyResolver finds dependency assemblies by name for relinking.
type AssemblyResolver interface {
	ResolveAssembly(name string) (*meta.Assembly, bool)
}

// ModuleEmitter writes a patched module. It is only handed graphs that
// passed meta.Validate.
type ModuleEmitter interface {
	Emit(ctx context.Context, mod *meta.Module, path string) error
}

// ModificationSource supplies the units a run schedules.
type ModificationSource interface {
	Modifications() ([]pipeline.Modification, error)
}

// HistoryStore abstracts run journal persistence.
type HistoryStore interface {
	SaveRun(ctx context.Context, run history.Run) error
	RecentRuns(ctx context.Context, limit int) ([]history.Run, error)
}

// PatchRequest defines one patch run for driving adapters.
type PatchRequest struct {
	Input  string
	Output string
	// Dependencies name assemblies resolved through AssemblyResolver and
	// indexed for relinking.
	Dependencies []string
	// RelinkCoreLib registers the core library relinker for the run.
	RelinkCoreLib bool
}

// PatchResult summarizes a completed run.
type PatchResult struct {
	RunID   string
	Module  string
	Stages  []pipeline.StageReport
	Written bool
}

// PatchService is the driving port over patch runs and their journal.
type PatchService interface {
	Patch(ctx context.Context, req PatchRequest) (PatchResult, error)
	RecentRuns(ctx context.Context, limit int) ([]history.Run, error)
}
