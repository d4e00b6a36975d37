package pipeline

import (
	"log/slog"
	"sort"
	"time"

	"modweave/internal/core/errors"
	"modweave/internal/engine/meta"
	"modweave/internal/engine/query"
	"modweave/internal/shared/observability"
)

// ApplyResult tells Apply whether to run a stage.
type ApplyResult int

const (
	Continue ApplyResult = iota
	Cancel
)

// ApplyHandler observes a stage before any of its units run and may cancel
// it.
type ApplyHandler func(stage Stage, extras []any) ApplyResult

// StageReport summarises one Apply call.
type StageReport struct {
	Stage     Stage
	Units     int
	Duration  time.Duration
	Cancelled bool
}

// Options configures a Context.
type Options struct {
	ExpansionCacheSize int
	// StallDetection adds cycle analysis to dependency stall errors.
	StallDetection bool
}

func DefaultOptions() Options {
	return Options{ExpansionCacheSize: 64, StallDetection: true}
}

// Context carries the registered modifications and the caches that live for
// one pipeline run. Contexts share nothing, so runs in one process stay
// isolated.
type Context struct {
	ExpansionCache *query.ExpansionCache
	TypeIndex      *meta.TypeIndex
	// Parameters are offered to every unit alongside the values passed to
	// Apply.
	Parameters []any

	opts     Options
	mods     []Modification
	handlers map[int]ApplyHandler
	nextID   int
	reports  []StageReport
}

func NewContext(opts Options) *Context {
	return &Context{
		ExpansionCache: query.NewExpansionCache(opts.ExpansionCacheSize),
		TypeIndex:      meta.NewTypeIndex(),
		opts:           opts,
		handlers:       make(map[int]ApplyHandler),
	}
}

// Register adds modifications. Each must name itself and carry a function
// returning nothing or an error.
func (c *Context) Register(mods ...Modification) error {
	for _, m := range mods {
		if err := m.validate(); err != nil {
			return errors.AddContext(err, errors.CtxStage, m.Stage.String())
		}
	}
	c.mods = append(c.mods, mods...)
	return nil
}

// Modifications returns the units registered for stage in registration order.
func (c *Context) Modifications(stage Stage) []Modification {
	var out []Modification
	for _, m := range c.mods {
		if m.Stage == stage {
			out = append(out, m)
		}
	}
	return out
}

// OnApply registers h and returns a function that removes it.
func (c *Context) OnApply(h ApplyHandler) (remove func()) {
	id := c.nextID
	c.nextID++
	c.handlers[id] = h
	return func() { delete(c.handlers, id) }
}

// Query builds a query whose expansions are cached on this context.
func (c *Context) Query(pattern string, roots ...meta.Node) *query.Query {
	return query.New(pattern, c.ExpansionCache, roots...)
}

// Reports returns one entry per Apply call, oldest first.
func (c *Context) Reports() []StageReport {
	return append([]StageReport(nil), c.reports...)
}

// Apply runs every unit registered for stage. A unit is ready once each of
// its dependencies has completed; ready units run lowest priority first,
// ties in registration order. When no pending unit is ready Apply fails with
// a dependency stall.
func (c *Context) Apply(stage Stage, extras ...any) error {
	if c.cancelled(stage, extras) {
		slog.Info("stage cancelled", "stage", stage.String())
		c.reports = append(c.reports, StageReport{Stage: stage, Cancelled: true})
		return nil
	}

	start := time.Now()
	pending := c.Modifications(stage)
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].Priority < pending[j].Priority })

	pool := make([]any, 0, 2+len(extras)+len(c.Parameters))
	pool = append(pool, stage, c)
	pool = append(pool, extras...)
	pool = append(pool, c.Parameters...)

	var completed []Modification
	for len(pending) > 0 {
		next := -1
		for i, m := range pending {
			if ready(m, completed) {
				next = i
				break
			}
		}
		if next < 0 {
			return c.stall(stage, pending, completed)
		}
		m := pending[next]
		pending = append(pending[:next], pending[next+1:]...)

		slog.Info("applying modification", "stage", stage.String(), "unit", m.label(), "description", m.Description)
		args, err := bind(m, pool)
		if err != nil {
			return errors.AddContext(err, errors.CtxStage, stage.String())
		}
		if err := invoke(m, args); err != nil {
			if _, ok := errors.AsDomain(err); !ok {
				err = errors.Wrap(err, errors.CodeInternal, "modification "+m.label()+" failed")
			}
			err = errors.AddContext(err, errors.CtxUnit, m.label())
			return errors.AddContext(err, errors.CtxStage, stage.String())
		}
		completed = append(completed, m)
		observability.UnitsInvokedTotal.WithLabelValues(stage.String()).Inc()
	}

	elapsed := time.Since(start)
	observability.StageDuration.WithLabelValues(stage.String()).Observe(elapsed.Seconds())
	c.reports = append(c.reports, StageReport{Stage: stage, Units: len(completed), Duration: elapsed})
	return nil
}

func (c *Context) cancelled(stage Stage, extras []any) bool {
	ids := make([]int, 0, len(c.handlers))
	for id := range c.handlers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		if h, ok := c.handlers[id]; ok && h(stage, extras) == Cancel {
			return true
		}
	}
	return false
}

func ready(m Modification, completed []Modification) bool {
	for _, dep := range m.Dependencies {
		found := false
		for _, done := range completed {
			if done.provides(dep) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
