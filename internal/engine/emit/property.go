package emit

import (
	"modweave/internal/core/errors"
	"modweave/internal/engine/meta"
	"modweave/internal/engine/meta/cil"
)

const accessorAttrs = meta.MethodPublic | meta.MethodSpecialName | meta.MethodHideBySig

// PropertyEmitter adds a property with get_/set_ accessors to a type. Auto
// implemented accessors read and write the <Name>k__BackingField field,
// creating it when missing.
type PropertyEmitter struct {
	Name          string
	PropertyType  *meta.Type
	DeclaringType *meta.Type

	// Nil skips the accessor.
	GetterAttributes *meta.MethodAttributes
	SetterAttributes *meta.MethodAttributes

	AutoImplemented   bool
	CompilerGenerated bool
}

// NewPropertyEmitter returns an emitter for a public auto-property.
func NewPropertyEmitter(name string, propertyType, declaringType *meta.Type) *PropertyEmitter {
	get, set := accessorAttrs, accessorAttrs
	return &PropertyEmitter{
		Name:              name,
		PropertyType:      propertyType,
		DeclaringType:     declaringType,
		GetterAttributes:  &get,
		SetterAttributes:  &set,
		AutoImplemented:   true,
		CompilerGenerated: true,
	}
}

// Emit adds the property and its accessors to DeclaringType.
func (e *PropertyEmitter) Emit() (*meta.Property, error) {
	if e.DeclaringType == nil || e.DeclaringType.Module == nil {
		return nil, errors.Newf(errors.CodeInvariantViolation, "property %s needs a declaring type in a module", e.Name)
	}
	if e.DeclaringType.Property(e.Name) != nil {
		return nil, errors.Newf(errors.CodeInvariantViolation, "property %s already exists", e.Name).
			WithContext(errors.CtxSymbol, e.DeclaringType.FullName())
	}

	prop := e.DeclaringType.AddProperty(&meta.Property{Name: e.Name, PropertyType: e.PropertyType})
	if e.GetterAttributes != nil {
		prop.GetMethod = e.DeclaringType.AddMethod(e.getter())
	}
	if e.SetterAttributes != nil {
		prop.SetMethod = e.DeclaringType.AddMethod(e.setter())
	}
	return prop, nil
}

func (e *PropertyEmitter) getter() *meta.Method {
	m := meta.NewMethodDef("get_"+e.Name, *e.GetterAttributes, e.PropertyType)
	if e.AutoImplemented {
		m.Body.Append(
			meta.Op(cil.Ldarg0),
			meta.NewInstruction(cil.Ldfld, meta.FieldOperand(e.backingField())),
			meta.Op(cil.Ret),
		)
	}
	m.Body.InitLocals = true
	e.markGenerated(m)
	return m
}

func (e *PropertyEmitter) setter() *meta.Method {
	m := meta.NewMethodDef("set_"+e.Name, *e.SetterAttributes, e.DeclaringType.Module.TypeSystem.Void,
		meta.NewParameter("value", e.PropertyType))
	if e.AutoImplemented {
		m.Body.Append(
			meta.Op(cil.Ldarg0),
			meta.Op(cil.Ldarg1),
			meta.NewInstruction(cil.Stfld, meta.FieldOperand(e.backingField())),
			meta.Op(cil.Ret),
		)
	}
	m.Body.InitLocals = true
	e.markGenerated(m)
	return m
}

func (e *PropertyEmitter) markGenerated(m *meta.Method) {
	if e.CompilerGenerated {
		m.CustomAttributes = append(m.CustomAttributes, CompilerGeneratedAttribute(e.DeclaringType.Module))
	}
	if m.Attributes&meta.MethodAbstract != 0 {
		m.Body = nil
	}
}

func (e *PropertyEmitter) backingField() *meta.Field {
	name := BackingName(e.Name)
	if f := e.DeclaringType.Field(name); f != nil {
		return f
	}
	f := e.DeclaringType.AddField(meta.NewField(name, meta.FieldPrivate, e.PropertyType))
	f.CustomAttributes = append(f.CustomAttributes, CompilerGeneratedAttribute(e.DeclaringType.Module))
	return f
}

// CompilerGeneratedAttribute returns a fresh [CompilerGenerated] attribute
// bound to mod's core library.
func CompilerGeneratedAttribute(mod *meta.Module) *meta.CustomAttribute {
	ts := mod.TypeSystem
	return &meta.CustomAttribute{Constructor: meta.NewMethodRef(".ctor", ts.CompilerGenerated, ts.Void, true)}
}
