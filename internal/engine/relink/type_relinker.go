package relink

import (
	"modweave/internal/core/errors"
	"modweave/internal/engine/meta"
	"modweave/internal/shared/observability"
)

// Policy decides whether a leaf type reference must change. It returns the
// type to use, which may be t itself updated in place.
type Policy interface {
	Relink(t *meta.Type) (*meta.Type, bool, error)
}

type PolicyFunc func(t *meta.Type) (*meta.Type, bool, error)

func (f PolicyFunc) Relink(t *meta.Type) (*meta.Type, bool, error) { return f(t) }

// TypeRelinker rewrites every type reference a visited member uses through
// Policy. Each distinct reference reaches the policy at most once: outcomes
// are cached by identity until the task is closed.
type TypeRelinker struct {
	BaseTask
	Policy Policy

	unchanged map[*meta.Type]bool
	changed   map[*meta.Type]*meta.Type
}

func NewTypeRelinker(policy Policy) *TypeRelinker {
	return &TypeRelinker{
		Policy:    policy,
		unchanged: make(map[*meta.Type]bool),
		changed:   make(map[*meta.Type]*meta.Type),
	}
}

// CheckType returns the relinked form of t and whether it differs from t.
// Composite types are unwrapped before their leaf reaches the policy; arrays,
// by-reference and pointer types are rebuilt around a replaced element while
// generic instances and parameters are updated in place.
func (r *TypeRelinker) CheckType(t *meta.Type) (*meta.Type, bool, error) {
	if t == nil || r.unchanged[t] {
		return t, false, nil
	}
	if n, ok := r.changed[t]; ok {
		return n, true, nil
	}

	out, changed, err := r.unwrap(t)
	if err != nil {
		return nil, false, errors.AddContext(err, errors.CtxSymbol, t.FullName())
	}
	if changed {
		r.changed[t] = out
	} else {
		r.unchanged[t] = true
	}
	return out, changed, nil
}

func (r *TypeRelinker) unwrap(t *meta.Type) (*meta.Type, bool, error) {
	switch t.Kind {
	case meta.KindGenericParameter:
		changed := false
		for i, c := range t.Constraints {
			n, ch, err := r.CheckType(c)
			if err != nil {
				return nil, false, err
			}
			if ch {
				t.Constraints[i], changed = n, true
			}
		}
		return t, changed, nil

	case meta.KindGenericInstance:
		elem, changed, err := r.CheckType(t.ElementType)
		if err != nil {
			return nil, false, err
		}
		t.ElementType = elem
		for i, a := range t.GenericArguments {
			n, ch, err := r.CheckType(a)
			if err != nil {
				return nil, false, err
			}
			if ch {
				t.GenericArguments[i], changed = n, true
			}
		}
		return t, changed, nil

	case meta.KindArray, meta.KindByReference, meta.KindPointer:
		elem, changed, err := r.CheckType(t.ElementType)
		if err != nil || !changed || elem == t.ElementType {
			return t, changed, err
		}
		switch t.Kind {
		case meta.KindArray:
			return meta.ArrayOf(elem, t.Rank), true, nil
		case meta.KindByReference:
			return meta.ByRef(elem), true, nil
		default:
			return meta.PointerTo(elem), true, nil
		}
	}

	n, changed, err := r.Policy.Relink(t)
	switch {
	case err != nil:
		observability.RelinkPolicyCalls.WithLabelValues("error").Inc()
		return nil, false, err
	case changed:
		observability.RelinkPolicyCalls.WithLabelValues("changed").Inc()
		return n, true, nil
	default:
		observability.RelinkPolicyCalls.WithLabelValues("unchanged").Inc()
		return t, false, nil
	}
}

// update runs CheckType and stores a changed result through set.
func (r *TypeRelinker) update(t *meta.Type, set func(*meta.Type)) error {
	n, changed, err := r.CheckType(t)
	if err != nil {
		return err
	}
	if changed {
		set(n)
	}
	return nil
}

func (r *TypeRelinker) Close() error {
	clear(r.unchanged)
	clear(r.changed)
	return nil
}

func (r *TypeRelinker) RelinkModule(mod *meta.Module) error {
	if asm := mod.Assembly; asm != nil {
		if err := r.fixAttributes(asm.CustomAttributes); err != nil {
			return err
		}
		for _, sd := range asm.SecurityDeclarations {
			for _, sa := range sd.Attributes {
				if err := r.update(sa.AttributeType, func(n *meta.Type) { sa.AttributeType = n }); err != nil {
					return err
				}
				if err := r.fixNamedArguments(sa.Fields, sa.Properties); err != nil {
					return err
				}
			}
		}
	}
	return r.fixAttributes(mod.CustomAttributes)
}

func (r *TypeRelinker) RelinkType(t *meta.Type) error {
	if err := r.update(t.BaseType, func(n *meta.Type) { t.BaseType = n }); err != nil {
		return err
	}
	for i := range t.Interfaces {
		if err := r.update(t.Interfaces[i], func(n *meta.Type) { t.Interfaces[i] = n }); err != nil {
			return err
		}
	}
	return r.fixAttributes(t.CustomAttributes)
}

func (r *TypeRelinker) RelinkEvent(e *meta.Event) error {
	return r.update(e.EventType, func(n *meta.Type) { e.EventType = n })
}

func (r *TypeRelinker) RelinkField(f *meta.Field) error {
	if err := r.update(f.FieldType, func(n *meta.Type) { f.FieldType = n }); err != nil {
		return err
	}
	return r.fixAttributes(f.CustomAttributes)
}

func (r *TypeRelinker) RelinkProperty(p *meta.Property) error {
	return r.update(p.PropertyType, func(n *meta.Type) { p.PropertyType = n })
}

func (r *TypeRelinker) RelinkMethod(m *meta.Method) error {
	if err := r.signature(m); err != nil {
		return err
	}
	return r.fixAttributes(m.CustomAttributes)
}

func (r *TypeRelinker) RelinkParameter(_ *meta.Method, p *meta.Parameter) error {
	if err := r.update(p.ParameterType, func(n *meta.Type) { p.ParameterType = n }); err != nil {
		return err
	}
	return r.fixAttributes(p.CustomAttributes)
}

func (r *TypeRelinker) RelinkVariable(_ *meta.Method, v *meta.Variable) error {
	return r.update(v.VariableType, func(n *meta.Type) { v.VariableType = n })
}

func (r *TypeRelinker) RelinkInstruction(_ *meta.Method, ins *meta.Instruction) error {
	op := &ins.Operand
	switch op.Kind {
	case meta.OperandMethod:
		return r.signature(op.Method)
	case meta.OperandField:
		f := op.Field
		if err := r.update(f.DeclaringType, func(n *meta.Type) { f.DeclaringType = n }); err != nil {
			return err
		}
		return r.update(f.FieldType, func(n *meta.Type) { f.FieldType = n })
	case meta.OperandType:
		return r.update(op.Type, func(n *meta.Type) { op.Type = n })
	case meta.OperandVar:
		return r.update(op.Var.VariableType, func(n *meta.Type) { op.Var.VariableType = n })
	case meta.OperandParam:
		return r.update(op.Param.ParameterType, func(n *meta.Type) { op.Param.ParameterType = n })
	}
	return nil
}

// signature relinks the declaring type, return type, parameters and generic
// arguments of a method or method reference.
func (r *TypeRelinker) signature(m *meta.Method) error {
	if m == nil {
		return nil
	}
	owner := m
	if m.ElementMethod != nil {
		owner = m.ElementMethod
	}
	if err := r.update(owner.DeclaringType, func(n *meta.Type) { owner.DeclaringType = n }); err != nil {
		return err
	}
	if err := r.update(m.ReturnType, func(n *meta.Type) { m.ReturnType = n }); err != nil {
		return err
	}
	for _, p := range m.Parameters {
		if err := r.update(p.ParameterType, func(n *meta.Type) { p.ParameterType = n }); err != nil {
			return err
		}
	}
	for i := range m.GenericArguments {
		if err := r.update(m.GenericArguments[i], func(n *meta.Type) { m.GenericArguments[i] = n }); err != nil {
			return err
		}
	}
	return nil
}

func (r *TypeRelinker) fixAttributes(attrs []*meta.CustomAttribute) error {
	for _, a := range attrs {
		if err := r.signature(a.Constructor); err != nil {
			return err
		}
		for i := range a.ConstructorArguments {
			arg := &a.ConstructorArguments[i]
			if err := r.update(arg.Type, func(n *meta.Type) { arg.Type = n }); err != nil {
				return err
			}
		}
		if err := r.fixNamedArguments(a.Fields, a.Properties); err != nil {
			return err
		}
	}
	return nil
}

func (r *TypeRelinker) fixNamedArguments(lists ...[]meta.CustomAttributeNamedArgument) error {
	for _, list := range lists {
		for i := range list {
			arg := &list[i].Argument
			if err := r.update(arg.Type, func(n *meta.Type) { arg.Type = n }); err != nil {
				return err
			}
		}
	}
	return nil
}
