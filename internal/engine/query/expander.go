// Package query flattens a metadata graph into records and selects from them
// with a small pattern language.
package query

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"modweave/internal/core/errors"
	"modweave/internal/engine/meta"
	"modweave/internal/shared/observability"
)

// MetaData is the query-facing projection of one graph node.
type MetaData struct {
	AssemblyName string
	FullName     string
	Instance     meta.Node
}

// Expander walks graph roots depth-first and records each visited node.
type Expander struct {
	cache *ExpansionCache
}

// NewExpander returns an expander backed by cache. A nil cache disables
// memoization.
func NewExpander(cache *ExpansionCache) *Expander {
	return &Expander{cache: cache}
}

// Expand flattens roots in order. Assemblies are served from the cache when
// they were expanded before.
func (e *Expander) Expand(roots ...meta.Node) ([]MetaData, error) {
	if len(roots) == 1 {
		return e.expandRoot(roots[0])
	}
	var out []MetaData
	for _, root := range roots {
		records, err := e.expandRoot(root)
		if err != nil {
			return nil, err
		}
		out = append(out, records...)
	}
	return out, nil
}

func (e *Expander) expandRoot(root meta.Node) ([]MetaData, error) {
	w := &walker{}
	switch n := root.(type) {
	case *meta.Assembly:
		return e.expandAssembly(n), nil
	case *meta.Module:
		w.module(n, assemblyName(n))
	case *meta.Type:
		w.typ(n, assemblyName(n.Module))
	case *meta.Method:
		w.method(n, methodAssembly(n))
	case *meta.Property:
		w.property(n, assemblyName(typeModule(n.DeclaringType)))
	case *meta.Parameter:
		w.parameter(n, methodAssembly(n.Method))
	default:
		return nil, errors.Newf(errors.CodeInternal, "unsupported expand root %T", root)
	}
	return w.out, nil
}

func (e *Expander) expandAssembly(asm *meta.Assembly) []MetaData {
	key := asm.FullName()
	if e.cache != nil {
		if records, ok := e.cache.Get(key); ok {
			observability.ExpansionCacheHits.Inc()
			return records
		}
	}

	start := time.Now()
	w := &walker{}
	w.add(asm, asm.Name, asm.FullName())
	for _, mod := range asm.Modules {
		w.module(mod, asm.Name)
	}
	slog.Debug("expanded assembly", "assembly", asm.Name, "records", len(w.out), "duration", time.Since(start))
	observability.ExpansionDuration.Observe(time.Since(start).Seconds())

	if e.cache != nil {
		e.cache.Put(key, w.out)
	}
	return w.out
}

type walker struct {
	out []MetaData
}

func (w *walker) add(n meta.Node, asm, name string) {
	w.out = append(w.out, MetaData{AssemblyName: asm, FullName: name, Instance: n})
}

func (w *walker) module(m *meta.Module, asm string) {
	w.add(m, asm, m.Name)
	for _, t := range m.Types {
		w.typ(t, asm)
	}
}

func (w *walker) typ(t *meta.Type, asm string) {
	w.add(t, asm, t.FullName())
	for _, n := range t.NestedTypes {
		w.typ(n, asm)
	}
	for _, m := range t.Methods {
		w.method(m, asm)
	}
	for _, p := range t.Properties {
		w.property(p, asm)
	}
}

func (w *walker) method(m *meta.Method, asm string) {
	w.add(m, asm, MethodName(m))
	for _, p := range m.Parameters {
		w.parameter(p, asm)
	}
}

func (w *walker) property(p *meta.Property, asm string) {
	w.add(p, asm, p.DeclaringType.FullName()+"."+p.Name)
}

func (w *walker) parameter(p *meta.Parameter, asm string) {
	w.add(p, asm, p.ParameterType.Name)
}

// MethodName renders the record name of m: Decl.Name(P1,P2) with parameter
// type full names.
func MethodName(m *meta.Method) string {
	parts := make([]string, len(m.Parameters))
	for i, p := range m.Parameters {
		parts[i] = p.ParameterType.FullName()
	}
	return fmt.Sprintf("%s.%s(%s)", m.DeclaringType.FullName(), m.Name, strings.Join(parts, ","))
}

func assemblyName(m *meta.Module) string {
	if m == nil {
		return ""
	}
	if m.Assembly != nil {
		return m.Assembly.Name
	}
	return m.Name
}

func typeModule(t *meta.Type) *meta.Module {
	for t != nil {
		if t.Module != nil {
			return t.Module
		}
		t = t.DeclaringType
	}
	return nil
}

func methodAssembly(m *meta.Method) string {
	if m == nil {
		return ""
	}
	return assemblyName(typeModule(m.DeclaringType))
}
