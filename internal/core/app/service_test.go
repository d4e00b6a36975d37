package app

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modweave/internal/core/config"
	"modweave/internal/core/errors"
	"modweave/internal/core/ports"
	"modweave/internal/data/history"
	"modweave/internal/engine/meta"
	"modweave/internal/engine/pipeline"
	"modweave/internal/engine/relink"
	"modweave/internal/engine/rewrite"
	"modweave/internal/test/fixture"
)

type fakeLoader struct {
	sample *fixture.Sample
	err    error
	paths  []string
}

func (l *fakeLoader) Load(_ context.Context, path string) (*meta.Module, error) {
	l.paths = append(l.paths, path)
	if l.err != nil {
		return nil, l.err
	}
	return l.sample.Module, nil
}

type fakeEmitter struct {
	mod  *meta.Module
	path string
}

func (e *fakeEmitter) Emit(_ context.Context, mod *meta.Module, path string) error {
	e.mod, e.path = mod, path
	return nil
}

type fakeResolver map[string]*meta.Assembly

func (r fakeResolver) ResolveAssembly(name string) (*meta.Assembly, bool) {
	asm, ok := r[name]
	return asm, ok
}

type fakeHistory struct {
	runs []history.Run
}

func (h *fakeHistory) SaveRun(_ context.Context, run history.Run) error {
	h.runs = append(h.runs, run)
	return nil
}

func (h *fakeHistory) RecentRuns(_ context.Context, limit int) ([]history.Run, error) {
	if limit > 0 && limit < len(h.runs) {
		return h.runs[:limit], nil
	}
	return h.runs, nil
}

type harness struct {
	sample  *fixture.Sample
	loader  *fakeLoader
	emitter *fakeEmitter
	history *fakeHistory
	deps    Dependencies
	cfg     *config.Config
}

func newHarness(mods ...pipeline.Modification) *harness {
	s := fixture.NewSample()
	h := &harness{
		sample:  s,
		loader:  &fakeLoader{sample: s},
		emitter: &fakeEmitter{},
		history: &fakeHistory{},
		cfg:     config.DefaultConfig(),
	}
	h.deps = Dependencies{
		Loader:   h.loader,
		Emitter:  h.emitter,
		Resolver: fakeResolver{"System.Runtime": fixture.Library("System.Runtime", "6.0.0.0", "System", "Object", "Int32", "Void", "String")},
		Sources:  []ports.ModificationSource{ModificationList(mods)},
		History:  h.history,
	}
	return h
}

func (h *harness) service(t *testing.T) ports.PatchService {
	t.Helper()
	a, err := New(h.cfg, config.ResolvedPaths{}, h.deps)
	require.NoError(t, err)
	a.newID = func() string { return "run-1" }
	return a.PatchService()
}

func TestPatchRunsLifecycleAndJournals(t *testing.T) {
	var order []string
	record := func(stage pipeline.Stage) pipeline.Modification {
		return pipeline.Modification{
			Stage: stage,
			Name:  "record " + stage.String(),
			Fn:    func(st pipeline.Stage) { order = append(order, st.String()) },
		}
	}
	h := newHarness(
		record(pipeline.PreRead),
		record(pipeline.PostPatch),
		pipeline.Modification{
			Stage: pipeline.PrePatch,
			Name:  "virtualize",
			Fn: func(m *relink.Modder) error {
				rewrite.MakeVirtual(m.Module.Type("Game.Player"))
				return nil
			},
		},
	)

	res, err := h.service(t).Patch(context.Background(), ports.PatchRequest{Input: "Game.dll", Output: "out/Game.dll"})
	require.NoError(t, err)

	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, "Game", res.Module)
	assert.True(t, res.Written)
	assert.Equal(t, []string{"Game.dll"}, h.loader.paths)
	assert.Same(t, h.sample.Module, h.emitter.mod)
	assert.Equal(t, "out/Game.dll", h.emitter.path)
	assert.Equal(t, []string{"PreRead", "PostPatch"}, order)
	assert.True(t, h.sample.Add.IsVirtual())

	var applied []string
	for _, r := range res.Stages {
		applied = append(applied, r.Stage.String())
	}
	assert.Equal(t, []string{
		"PreRead", "Read", "PreMapDependencies", "PostMapDependencies",
		"PrePatch", "PreMerge", "PostMerge", "PostPatch",
		"PreWrite", "Write", "Shutdown",
	}, applied)

	require.Len(t, h.history.runs, 1)
	run := h.history.runs[0]
	assert.Equal(t, history.StatusSucceeded, run.Status)
	assert.Equal(t, "Game", run.Module)
	assert.Len(t, run.Stages, len(applied))
	assert.Equal(t, 1, run.Stages[0].Units)
	assert.False(t, run.FinishedAt.Before(run.StartedAt))
}

func TestPatchCancelsUnconfiguredStages(t *testing.T) {
	ran := false
	h := newHarness(pipeline.Modification{
		Stage: pipeline.PostPatch,
		Name:  "skipped",
		Fn:    func() { ran = true },
	})
	h.cfg.Pipeline.Stages = []string{"PreRead", "Read", "PrePatch", "PreWrite", "Write", "Shutdown"}

	res, err := h.service(t).Patch(context.Background(), ports.PatchRequest{Input: "Game.dll"})
	require.NoError(t, err)
	assert.False(t, ran)
	assert.False(t, res.Written, "no output requested")

	cancelled := map[string]bool{}
	for _, r := range res.Stages {
		cancelled[r.Stage.String()] = r.Cancelled
	}
	assert.True(t, cancelled["PostPatch"])
	assert.True(t, cancelled["PreMerge"])
	assert.False(t, cancelled["PrePatch"])
}

func TestPatchRelinksCoreLibrary(t *testing.T) {
	h := newHarness()
	_, err := h.service(t).Patch(context.Background(), ports.PatchRequest{
		Input:         "Game.dll",
		Output:        "Game.patched.dll",
		Dependencies:  []string{"System.Runtime"},
		RelinkCoreLib: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "System.Runtime", h.sample.TS.Int32.ScopeName())
	assert.Nil(t, h.emitter.mod.AssemblyRef("mscorlib"))
	assert.NotNil(t, h.emitter.mod.AssemblyRef("System.Runtime"))
}

func TestPatchFailures(t *testing.T) {
	t.Run("loader error", func(t *testing.T) {
		h := newHarness()
		h.loader.err = stderrors.New("bad image")
		_, err := h.service(t).Patch(context.Background(), ports.PatchRequest{Input: "Game.dll"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad image")

		require.Len(t, h.history.runs, 1)
		assert.Equal(t, history.StatusFailed, h.history.runs[0].Status)
		assert.Contains(t, h.history.runs[0].Error, "bad image")
	})

	t.Run("unknown dependency", func(t *testing.T) {
		h := newHarness()
		_, err := h.service(t).Patch(context.Background(), ports.PatchRequest{Input: "Game.dll", Dependencies: []string{"Missing"}})
		assert.True(t, errors.IsCode(err, errors.CodeNotFound), "got %v", err)
		assert.Empty(t, h.loader.paths)
	})

	t.Run("stalled stage", func(t *testing.T) {
		h := newHarness(pipeline.Modification{
			Stage:        pipeline.PostPatch,
			Name:         "waits",
			Dependencies: []string{"never"},
			Fn:           func() {},
		})
		_, err := h.service(t).Patch(context.Background(), ports.PatchRequest{Input: "Game.dll"})
		assert.True(t, errors.IsCode(err, errors.CodeDependencyStall), "got %v", err)
		assert.Equal(t, history.StatusFailed, h.history.runs[0].Status)
	})

	t.Run("missing emitter", func(t *testing.T) {
		h := newHarness()
		h.deps.Emitter = nil
		_, err := h.service(t).Patch(context.Background(), ports.PatchRequest{Input: "Game.dll", Output: "x.dll"})
		assert.True(t, errors.IsCode(err, errors.CodeValidationError), "got %v", err)
	})
}

func TestPatchStopsBetweenStepsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newHarness(pipeline.Modification{
		Stage: pipeline.Read,
		Name:  "cancel",
		Fn:    func() { cancel() },
	})
	res, err := h.service(t).Patch(ctx, ports.PatchRequest{Input: "Game.dll", Output: "out.dll"})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, res.Written)

	var applied []string
	for _, r := range res.Stages {
		applied = append(applied, r.Stage.String())
	}
	assert.Equal(t, []string{"PreRead", "Read", "Shutdown"}, applied)
	assert.Equal(t, history.StatusCancelled, h.history.runs[0].Status)
}

func TestRecentRuns(t *testing.T) {
	h := newHarness()
	svc := h.service(t)
	_, err := svc.Patch(context.Background(), ports.PatchRequest{Input: "Game.dll"})
	require.NoError(t, err)

	runs, err := svc.RecentRuns(context.Background(), 5)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	h.deps.History = nil
	_, err = h.service(t).RecentRuns(context.Background(), 5)
	assert.True(t, errors.IsCode(err, errors.CodeNotSupported))
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(nil, config.ResolvedPaths{}, Dependencies{})
	assert.True(t, errors.IsCode(err, errors.CodeValidationError))

	cfg := config.DefaultConfig()
	cfg.Query.ExpansionCacheSize = 0
	_, err = New(cfg, config.ResolvedPaths{}, Dependencies{})
	assert.True(t, errors.IsCode(err, errors.CodeValidationError))
}
