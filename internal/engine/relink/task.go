// Package relink visits every member of a module and lets registered tasks
// fix up the type references and instructions they find.
package relink

import "modweave/internal/engine/meta"

const defaultOrder = 100

// Task receives one call per visited member. Embed BaseTask to implement
// only the hooks a task needs.
type Task interface {
	// Order sorts tasks; lower runs first.
	Order() int
	Registered(m *Modder) error
	PreWrite() error
	Close() error

	RelinkModule(mod *meta.Module) error
	RelinkType(t *meta.Type) error
	RelinkEvent(e *meta.Event) error
	RelinkField(f *meta.Field) error
	RelinkProperty(p *meta.Property) error
	RelinkMethod(m *meta.Method) error
	RelinkParameter(m *meta.Method, p *meta.Parameter) error
	RelinkVariable(m *meta.Method, v *meta.Variable) error
	RelinkInstruction(m *meta.Method, ins *meta.Instruction) error
}

// BaseTask implements every Task hook as a no-op.
type BaseTask struct {
	// TaskOrder overrides the default order of 100 when non-zero.
	TaskOrder int
	modder    *Modder
}

func (b *BaseTask) Order() int {
	if b.TaskOrder != 0 {
		return b.TaskOrder
	}
	return defaultOrder
}

// Modder returns the modder the task was added to.
func (b *BaseTask) Modder() *Modder { return b.modder }

func (b *BaseTask) Registered(m *Modder) error {
	b.modder = m
	return nil
}

func (*BaseTask) PreWrite() error { return nil }
func (*BaseTask) Close() error { return nil }
func (*BaseTask) RelinkModule(*meta.Module) error { return nil }
func (*BaseTask) RelinkType(*meta.Type) error { return nil }
func (*BaseTask) RelinkEvent(*meta.Event) error { return nil }
func (*BaseTask) RelinkField(*meta.Field) error { return nil }
func (*BaseTask) RelinkProperty(*meta.Property) error { return nil }
func (*BaseTask) RelinkMethod(*meta.Method) error { return nil }
func (*BaseTask) RelinkParameter(*meta.Method, *meta.Parameter) error { return nil }
func (*BaseTask) RelinkVariable(*meta.Method, *meta.Variable) error { return nil }
func (*BaseTask) RelinkInstruction(*meta.Method, *meta.Instruction) error { return nil }
