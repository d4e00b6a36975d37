package relink

import (
	"log/slog"
	"sort"

	"modweave/internal/core/errors"
	"modweave/internal/engine/meta"
	"modweave/internal/engine/pipeline"
)

// Modder drives one patch run over Module: each lifecycle helper applies the
// matching pipeline stages around its own work, and Relink walks every
// member through the registered tasks.
type Modder struct {
	Module       *meta.Module
	Context      *pipeline.Context
	Dependencies []*meta.Assembly

	tasks []Task
	// relinked names assemblies whose references AutoPatch removes.
	relinked []string
}

func NewModder(ctx *pipeline.Context, mod *meta.Module) *Modder {
	return &Modder{Module: mod, Context: ctx}
}

// AddTask registers t and keeps tasks sorted by Order, ties in insertion
// order.
func (m *Modder) AddTask(t Task) error {
	m.tasks = append(m.tasks, t)
	sort.SliceStable(m.tasks, func(i, j int) bool { return m.tasks[i].Order() < m.tasks[j].Order() })
	return t.Registered(m)
}

func (m *Modder) Tasks() []Task { return append([]Task(nil), m.tasks...) }

// AddDependency makes asm's public types available to relink policies.
func (m *Modder) AddDependency(asm *meta.Assembly) {
	m.Dependencies = append(m.Dependencies, asm)
}

// RelinkAssembly drops references to the named assembly once AutoPatch has
// moved its types into the module.
func (m *Modder) RelinkAssembly(name string) {
	m.relinked = append(m.relinked, name)
}

func (m *Modder) apply(stage pipeline.Stage) error {
	return m.Context.Apply(stage, m)
}

// Read applies PreRead, loads the module with load, then applies Read.
func (m *Modder) Read(load func() (*meta.Module, error)) error {
	if err := m.apply(pipeline.PreRead); err != nil {
		return err
	}
	mod, err := load()
	if err != nil {
		return err
	}
	m.Module = mod
	return m.apply(pipeline.Read)
}

// MapDependencies indexes every dependency assembly between the
// PreMapDependencies and PostMapDependencies stages.
func (m *Modder) MapDependencies() error {
	if err := m.apply(pipeline.PreMapDependencies); err != nil {
		return err
	}
	for _, asm := range m.Dependencies {
		m.Context.TypeIndex.Add(asm)
	}
	slog.Debug("mapped dependencies", "assemblies", len(m.Dependencies), "types", m.Context.TypeIndex.Len())
	return m.apply(pipeline.PostMapDependencies)
}

// PatchRefs relinks the module between the PreMerge and PostMerge stages.
func (m *Modder) PatchRefs() error {
	if err := m.apply(pipeline.PreMerge); err != nil {
		return err
	}
	if err := m.Relink(); err != nil {
		return err
	}
	return m.apply(pipeline.PostMerge)
}

// AutoPatch applies PrePatch, PatchRefs and PostPatch, then removes the
// references RelinkAssembly named.
func (m *Modder) AutoPatch() error {
	if err := m.apply(pipeline.PrePatch); err != nil {
		return err
	}
	if err := m.PatchRefs(); err != nil {
		return err
	}
	if err := m.apply(pipeline.PostPatch); err != nil {
		return err
	}
	for _, name := range m.relinked {
		m.Module.RemoveAssemblyRefs(func(r *meta.AssemblyRef) bool { return r.Name == name })
	}
	return nil
}

// Write applies PreWrite, runs each task's PreWrite, validates the module
// and hands it to emit, then applies Write.
func (m *Modder) Write(emit func(*meta.Module) error) error {
	if err := m.apply(pipeline.PreWrite); err != nil {
		return err
	}
	for _, t := range m.tasks {
		if err := t.PreWrite(); err != nil {
			return err
		}
	}
	if err := meta.Validate(m.Module); err != nil {
		return errors.AddContext(err, errors.CtxStage, pipeline.PreWrite.String())
	}
	if err := emit(m.Module); err != nil {
		return err
	}
	return m.apply(pipeline.Write)
}

// Dispose applies Shutdown and closes every task. Close errors do not stop
// the remaining tasks; the first is returned.
func (m *Modder) Dispose() error {
	err := m.apply(pipeline.Shutdown)
	for _, t := range m.tasks {
		if cerr := t.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	m.tasks = nil
	return err
}

// Relink walks the module: assembly and module attributes, then each type
// with its events, fields, properties and methods, and within each method
// its parameters, locals and instructions. Every task sees each member
// before the walk moves on.
func (m *Modder) Relink() error {
	if m.Module == nil {
		return errors.Newf(errors.CodeInvariantViolation, "relink before the module was read")
	}
	if err := m.each(func(t Task) error { return t.RelinkModule(m.Module) }); err != nil {
		return errors.AddContext(err, errors.CtxAssembly, m.Module.Name)
	}
	for _, t := range meta.AllTypes(m.Module) {
		if err := m.relinkType(t); err != nil {
			return errors.AddContext(err, errors.CtxOperation, "relink "+t.FullName())
		}
	}
	return nil
}

func (m *Modder) relinkType(t *meta.Type) error {
	if err := m.each(func(task Task) error { return task.RelinkType(t) }); err != nil {
		return err
	}
	for _, e := range t.Events {
		if err := m.each(func(task Task) error { return task.RelinkEvent(e) }); err != nil {
			return err
		}
	}
	for _, f := range t.Fields {
		if err := m.each(func(task Task) error { return task.RelinkField(f) }); err != nil {
			return err
		}
	}
	for _, p := range t.Properties {
		if err := m.each(func(task Task) error { return task.RelinkProperty(p) }); err != nil {
			return err
		}
	}
	for _, method := range append([]*meta.Method(nil), t.Methods...) {
		if err := m.relinkMethod(method); err != nil {
			return err
		}
	}
	return nil
}

func (m *Modder) relinkMethod(method *meta.Method) error {
	if err := m.each(func(t Task) error { return t.RelinkMethod(method) }); err != nil {
		return err
	}
	for _, p := range method.Parameters {
		if err := m.each(func(t Task) error { return t.RelinkParameter(method, p) }); err != nil {
			return err
		}
	}
	if method.Body == nil {
		return nil
	}
	for _, v := range append([]*meta.Variable(nil), method.Body.Variables...) {
		if err := m.each(func(t Task) error { return t.RelinkVariable(method, v) }); err != nil {
			return err
		}
	}
	// Tasks may insert instructions; only the original ones are visited.
	for _, ins := range append([]*meta.Instruction(nil), method.Body.Instructions...) {
		if err := m.each(func(t Task) error { return t.RelinkInstruction(method, ins) }); err != nil {
			return err
		}
	}
	return nil
}

func (m *Modder) each(fn func(Task) error) error {
	for _, t := range m.tasks {
		if err := fn(t); err != nil {
			return err
		}
	}
	return nil
}
