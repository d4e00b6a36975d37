package app

import (
	"context"
	stderrors "errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"modweave/internal/core/errors"
	"modweave/internal/core/ports"
	"modweave/internal/data/history"
	"modweave/internal/engine/meta"
	"modweave/internal/engine/pipeline"
	"modweave/internal/engine/relink"
	"modweave/internal/shared/observability"
)

type patchService struct {
	app *App
}

var _ ports.PatchService = (*patchService)(nil)

// Patch runs the full lifecycle over req.Input: read, dependency mapping,
// patching and writing, then shutdown. Cancellation is only observed between
// those steps; a started step always completes.
func (s *patchService) Patch(ctx context.Context, req ports.PatchRequest) (ports.PatchResult, error) {
	a := s.app
	run := history.Run{ID: a.newID(), Input: req.Input, Output: req.Output, StartedAt: a.now()}
	result := ports.PatchResult{RunID: run.ID}

	ctx, span := observability.Tracer.Start(ctx, "patchService.Patch", trace.WithAttributes(
		attribute.String("run.id", run.ID),
		attribute.String("input", req.Input),
	))
	defer span.End()

	pctx, err := s.newContext()
	var modder *relink.Modder
	if err == nil {
		modder, err = s.newModder(pctx, req)
	}
	if err == nil {
		err = s.runSteps(ctx, modder, req, &result)
	}
	if modder != nil {
		if derr := modder.Dispose(); err == nil {
			err = derr
		}
		if modder.Module != nil {
			result.Module = modder.Module.Name
		}
	}
	if pctx != nil {
		result.Stages = pctx.Reports()
	}

	run.Module = result.Module
	run.FinishedAt = a.now()
	run.Stages = stageRuns(result.Stages)
	run.Status = history.StatusSucceeded
	switch {
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		run.Status = history.StatusCancelled
	case err != nil:
		run.Status = history.StatusFailed
	}
	if err != nil {
		run.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	s.finish(ctx, run)

	return result, err
}

func (s *patchService) RecentRuns(ctx context.Context, limit int) ([]history.Run, error) {
	if s.app.deps.History == nil {
		return nil, errors.New(errors.CodeNotSupported, "run history is disabled")
	}
	return s.app.deps.History.RecentRuns(ctx, limit)
}

// newContext builds the scheduler context with every source's units and
// cancels the stages the config leaves out.
func (s *patchService) newContext() (*pipeline.Context, error) {
	cfg := s.app.Config
	pctx := pipeline.NewContext(cfg.PipelineOptions())

	for _, src := range s.app.deps.Sources {
		mods, err := src.Modifications()
		if err != nil {
			return pctx, errors.AddContext(err, errors.CtxOperation, "discover modifications")
		}
		if err := pctx.Register(mods...); err != nil {
			return pctx, err
		}
	}

	stages, err := cfg.RunStages()
	if err != nil {
		return pctx, err
	}
	allowed := make(map[pipeline.Stage]bool, len(stages))
	for _, st := range stages {
		allowed[st] = true
	}
	pctx.OnApply(func(stage pipeline.Stage, _ []any) pipeline.ApplyResult {
		if allowed[stage] {
			return pipeline.Continue
		}
		return pipeline.Cancel
	})
	return pctx, nil
}

func (s *patchService) newModder(pctx *pipeline.Context, req ports.PatchRequest) (*relink.Modder, error) {
	deps := s.app.deps
	if deps.Loader == nil {
		return nil, errors.New(errors.CodeValidationError, "a module loader is required")
	}
	if req.Output != "" && deps.Emitter == nil {
		return nil, errors.New(errors.CodeValidationError, "an emitter is required to write output")
	}

	modder := relink.NewModder(pctx, nil)
	for _, name := range req.Dependencies {
		if deps.Resolver == nil {
			return nil, errors.New(errors.CodeValidationError, "dependencies need an assembly resolver")
		}
		asm, ok := deps.Resolver.ResolveAssembly(name)
		if !ok {
			return nil, errors.Newf(errors.CodeNotFound, "dependency %s not found", name).
				WithContext(errors.CtxAssembly, name)
		}
		modder.AddDependency(asm)
	}

	if req.RelinkCoreLib {
		core, err := relink.NewCoreLibRelinker(s.app.Config.CoreLibOptions())
		if err != nil {
			return nil, err
		}
		if err := modder.AddTask(core); err != nil {
			return nil, err
		}
	}
	return modder, nil
}

func (s *patchService) runSteps(ctx context.Context, modder *relink.Modder, req ports.PatchRequest, result *ports.PatchResult) error {
	deps := s.app.deps
	steps := []struct {
		name string
		fn   func() error
	}{
		{"read", func() error {
			return modder.Read(func() (*meta.Module, error) { return deps.Loader.Load(ctx, req.Input) })
		}},
		{"map-dependencies", modder.MapDependencies},
		{"patch", modder.AutoPatch},
		{"write", func() error {
			return modder.Write(func(mod *meta.Module) error {
				if req.Output == "" {
					return nil
				}
				if err := deps.Emitter.Emit(ctx, mod, req.Output); err != nil {
					return errors.AddContext(err, errors.CtxPath, req.Output)
				}
				result.Written = true
				return nil
			})
		}},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, span := observability.Tracer.Start(ctx, "modder."+step.name)
		err := step.fn()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if err != nil {
			return errors.AddContext(err, errors.CtxOperation, step.name)
		}
		slog.Debug("patch step done", "step", step.name, "input", req.Input)
	}
	return nil
}

// finish records run metrics and journals the run. Failures here are logged,
// not returned.
func (s *patchService) finish(ctx context.Context, run history.Run) {
	observability.RunsTotal.WithLabelValues(run.Status).Inc()
	slog.Info("patch run finished", "run", run.ID, "module", run.Module, "status", run.Status, "duration", run.Duration())

	if h := s.app.deps.History; h != nil {
		if err := h.SaveRun(context.WithoutCancel(ctx), run); err != nil {
			slog.Warn("journal run failed", "run", run.ID, "error", err)
		}
	}
	if path := s.app.Paths.MetricsTextfile; path != "" {
		if err := observability.WriteTextfile(path); err != nil {
			slog.Warn("write metrics textfile failed", "path", path, "error", err)
		}
	}
}

func stageRuns(reports []pipeline.StageReport) []history.StageRun {
	out := make([]history.StageRun, len(reports))
	for i, r := range reports {
		out[i] = history.StageRun{Stage: r.Stage.String(), Units: r.Units, Duration: r.Duration, Cancelled: r.Cancelled}
	}
	return out
}
