package app

import (
	"time"

	"github.com/google/uuid"

	"modweave/internal/core/config"
	"modweave/internal/core/errors"
	"modweave/internal/core/ports"
)

// Dependencies are the adapters a patch run talks to. History may be nil to
// skip journaling.
type Dependencies struct {
	Loader   ports.ModuleLoader
	Resolver ports.AssemblyResolver
	Emitter  ports.ModuleEmitter
	Sources  []ports.ModificationSource
	History  ports.HistoryStore
}

type App struct {
	Config *config.Config
	Paths  config.ResolvedPaths
	deps   Dependencies

	newID func() string
	now   func() time.Time
}

func New(cfg *config.Config, paths config.ResolvedPaths, deps Dependencies) (*App, error) {
	if cfg == nil {
		return nil, errors.New(errors.CodeValidationError, "config is required")
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return &App{
		Config: cfg,
		Paths:  paths,
		deps:   deps,
		newID:  uuid.NewString,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (a *App) PatchService() ports.PatchService {
	return &patchService{app: a}
}
