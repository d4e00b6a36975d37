package rewrite

import (
	"modweave/internal/core/errors"
	"modweave/internal/engine/emit"
	"modweave/internal/engine/meta"
	"modweave/internal/engine/meta/cil"
	"modweave/internal/shared/observability"
)

const propertyAccessorAttrs = meta.MethodPublic | meta.MethodVirtual | meta.MethodHideBySig | meta.MethodNewSlot | meta.MethodSpecialName

// ReplaceFieldWithProperty turns every load, store and address-of of field in
// mod into calls to prop's accessors. The accessor bodies keep their direct
// field access.
func ReplaceFieldWithProperty(mod *meta.Module, field *meta.Field, prop *meta.Property) error {
	name := field.FullName()
	plan, err := planFieldReplacement(mod, func(f *meta.Field) bool {
		return f == field || f.FullName() == name
	}, prop)
	if err != nil {
		return err
	}
	return plan.Apply()
}

// ChangeToProperty converts an instance field into a virtual auto-property of
// the same name backed by the renamed field, and moves every use of the
// field in its module onto the property.
func ChangeToProperty(field *meta.Field) (*meta.Property, error) {
	t := field.DeclaringType
	if field.IsStatic() {
		return nil, errors.Newf(errors.CodeNotSupported, "static field %s cannot become a property", field.Name).
			WithContext(errors.CtxSymbol, field.FullName())
	}
	if t == nil || t.Module == nil {
		return nil, errors.Newf(errors.CodeInvariantViolation, "field %s is not attached to a module", field.Name)
	}
	if t.Property(field.Name) != nil {
		return nil, errors.Newf(errors.CodeInvariantViolation, "%s already has a property named %s", t.FullName(), field.Name).
			WithContext(errors.CtxSymbol, field.FullName())
	}

	original := field.FullName()
	name := field.Name
	field.Name = emit.BackingName(name)
	field.Attributes = field.Attributes&^meta.FieldAccessMask | meta.FieldPrivate
	field.CustomAttributes = append(field.CustomAttributes, emit.CompilerGeneratedAttribute(t.Module))

	attrs := propertyAccessorAttrs
	emitter := emit.NewPropertyEmitter(name, field.FieldType, t)
	emitter.GetterAttributes = &attrs
	emitter.SetterAttributes = &attrs
	prop, err := emitter.Emit()
	if err != nil {
		return nil, err
	}

	plan, err := planFieldReplacement(t.Module, func(f *meta.Field) bool {
		return f == field || f.FullName() == original
	}, prop)
	if err != nil {
		return nil, err
	}
	return prop, plan.Apply()
}

func planFieldReplacement(mod *meta.Module, matches func(*meta.Field) bool, prop *meta.Property) (*Plan, error) {
	plan := newPlan("field")
	for _, site := range meta.AllInstructions(mod) {
		f := site.Instruction.FieldOperand()
		if f == nil || !matches(f) || isAccessor(site.Method, prop) {
			continue
		}
		accessor, apply, err := fieldAccess(site, prop)
		if err != nil {
			return nil, err
		}
		if apply != nil {
			plan.add(location(site), f.FullName(), accessor.FullName(), apply)
		}
	}
	return plan, nil
}

// RewriteFieldAccess moves the field access at site onto prop's accessors
// when matches accepts its field. It reports whether the instruction changed.
func RewriteFieldAccess(site meta.Site, matches func(*meta.Field) bool, prop *meta.Property) (bool, error) {
	f := site.Instruction.FieldOperand()
	if f == nil || !matches(f) || isAccessor(site.Method, prop) {
		return false, nil
	}
	_, apply, err := fieldAccess(site, prop)
	if err != nil || apply == nil {
		return false, err
	}
	if err := apply(); err != nil {
		return false, err
	}
	observability.RewriteEditsTotal.WithLabelValues("field").Inc()
	return true, nil
}

func isAccessor(m *meta.Method, prop *meta.Property) bool {
	return m == prop.GetMethod || m == prop.SetMethod
}

// fieldAccess returns the accessor a field access at site moves to with the
// edit doing it. Both are nil for instructions that only mention the field.
func fieldAccess(site meta.Site, prop *meta.Property) (*meta.Method, func() error, error) {
	ins := site.Instruction
	var accessor *meta.Method
	var kind string
	address := false
	switch {
	case ins.Is(cil.Ldfld), ins.Is(cil.Ldsfld):
		accessor, kind = prop.GetMethod, "getter"
	case ins.Is(cil.Stfld), ins.Is(cil.Stsfld):
		accessor, kind = prop.SetMethod, "setter"
	case ins.Is(cil.Ldflda), ins.Is(cil.Ldsflda):
		accessor, kind, address = prop.GetMethod, "getter", true
	default:
		return nil, nil, nil
	}
	if accessor == nil {
		return nil, nil, errors.Newf(errors.CodeInvariantViolation, "property %s is missing a %s", prop.Name, kind).
			WithContext(errors.CtxSymbol, ins.FieldOperand().FullName())
	}

	body := site.Method.Body
	return accessor, func() error {
		ins.OpCode = callFor(accessor)
		ins.Operand = meta.MethodOperand(accessor)
		if !address {
			return nil
		}
		// The address of a property value is the address of a copy.
		tmp := body.AddVariable(meta.NewVariable(prop.PropertyType))
		return body.InsertAfter(ins,
			meta.NewInstruction(cil.Stloc, meta.VarOperand(tmp)),
			meta.NewInstruction(cil.Ldloca, meta.VarOperand(tmp)),
		)
	}, nil
}

func callFor(m *meta.Method) cil.OpCode {
	if m.HasThis {
		return cil.Callvirt
	}
	return cil.Call
}
