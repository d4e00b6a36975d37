package relink

import (
	"log/slog"

	"github.com/gobwas/glob"

	"modweave/internal/core/errors"
	"modweave/internal/engine/meta"
	"modweave/internal/engine/pipeline"
)

// DefaultCoreLibScopes match the core libraries whose references are moved.
var DefaultCoreLibScopes = []string{"mscorlib", "netstandard", "System.Private.CoreLib"}

// legacyCoreLibs are never valid targets and are dropped before writing.
var legacyCoreLibs = map[string]bool{"mscorlib": true, "System.Private.CoreLib": true}

// ResolveFunc picks the assembly a core library type should move to. It
// reports false to fall back to the dependency index.
type ResolveFunc func(t *meta.Type) (*meta.AssemblyRef, bool)

type CoreLibOptions struct {
	// Scopes are glob patterns over assembly names.
	Scopes              []string
	Resolve             ResolveFunc
	ThrowResolveFailure bool
	RemoveLegacyRefs    bool
}

// CoreLibRelinker moves type references out of legacy core libraries into
// the dependency assemblies that now define them.
type CoreLibRelinker struct {
	*TypeRelinker

	resolve             ResolveFunc
	throwResolveFailure bool
	removeLegacyRefs    bool
	scopes              []glob.Glob
	unregister          func()
}

func NewCoreLibRelinker(opts CoreLibOptions) (*CoreLibRelinker, error) {
	patterns := opts.Scopes
	if len(patterns) == 0 {
		patterns = DefaultCoreLibScopes
	}
	c := &CoreLibRelinker{
		resolve:             opts.Resolve,
		throwResolveFailure: opts.ThrowResolveFailure,
		removeLegacyRefs:    opts.RemoveLegacyRefs,
	}
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeValidationError, "invalid core library scope "+p)
		}
		c.scopes = append(c.scopes, g)
	}
	c.TypeRelinker = NewTypeRelinker(c)
	return c, nil
}

func (c *CoreLibRelinker) Registered(m *Modder) error {
	if err := c.TypeRelinker.Registered(m); err != nil {
		return err
	}
	c.unregister = m.Context.OnApply(c.onApply)
	return nil
}

func (c *CoreLibRelinker) onApply(stage pipeline.Stage, _ []any) pipeline.ApplyResult {
	switch stage {
	case pipeline.Shutdown:
		if c.unregister != nil {
			c.unregister()
			c.unregister = nil
		}
	case pipeline.PreWrite:
		if c.removeLegacyRefs {
			mod := c.Modder().Module
			n := mod.RemoveAssemblyRefs(func(r *meta.AssemblyRef) bool { return legacyCoreLibs[r.Name] })
			slog.Debug("removed legacy core library references", "module", mod.Name, "count", n)
		}
	}
	return pipeline.Continue
}

func (c *CoreLibRelinker) inScope(name string) bool {
	for _, g := range c.scopes {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// Relink moves t to its resolved assembly, reusing the module's highest
// version reference with that name before adding a new one.
func (c *CoreLibRelinker) Relink(t *meta.Type) (*meta.Type, bool, error) {
	if t.Scope == nil || !c.inScope(t.Scope.Name) {
		return t, false, nil
	}
	ref, err := c.resolveAssembly(t)
	if err != nil || ref == nil {
		return t, false, err
	}

	mod := c.Modder().Module
	if existing := mod.AssemblyRef(ref.Name); existing != nil {
		t.Scope = existing
	} else {
		t.Scope = mod.AddAssemblyRef(ref)
	}
	return t, true, nil
}

func (c *CoreLibRelinker) resolveAssembly(t *meta.Type) (*meta.AssemblyRef, error) {
	if c.resolve != nil {
		if ref, ok := c.resolve(t); ok && ref != nil {
			if legacyCoreLibs[ref.Name] {
				return nil, errors.Newf(errors.CodeInvariantViolation, "relink of %s resolved to core library %s", t.FullName(), ref.Name).
					WithContext(errors.CtxSymbol, t.FullName())
			}
			return ref, nil
		}
	}

	found, ok := c.Modder().Context.TypeIndex.Lookup(t.FullName(), func(it meta.IndexedType) bool {
		return !legacyCoreLibs[it.Assembly.Name]
	})
	if ok {
		return found.Assembly.AsRef(), nil
	}
	if c.throwResolveFailure {
		return nil, errors.Newf(errors.CodeNotFound, "relink failed: unable to resolve %s", t.FullName()).
			WithContext(errors.CtxSymbol, t.FullName()).
			WithContext(errors.CtxAssembly, t.Scope.Name)
	}
	slog.Warn("core library type left in place", "symbol", t.FullName(), "assembly", t.Scope.Name)
	return nil, nil
}
