package relink

import (
	"log/slog"

	"modweave/internal/core/errors"
	"modweave/internal/engine/meta"
	"modweave/internal/engine/rewrite"
)

// FieldToPropertyRelinker moves loads, stores and address-of uses of Field
// onto Property's accessors while the module is visited. A field access also
// matches when it names the property on either declaring type, which covers
// references written against the property's future shape.
type FieldToPropertyRelinker struct {
	BaseTask
	Field    *meta.Field
	Property *meta.Property
	// OnChanged is called with each rewritten instruction.
	OnChanged func(ins *meta.Instruction)
}

func NewFieldToPropertyRelinker(field *meta.Field, prop *meta.Property) (*FieldToPropertyRelinker, error) {
	if field == nil || prop == nil || field.DeclaringType == nil || prop.DeclaringType == nil {
		return nil, errors.Newf(errors.CodeValidationError, "field to property relink needs a declared field and property")
	}
	return &FieldToPropertyRelinker{Field: field, Property: prop}, nil
}

func (r *FieldToPropertyRelinker) Registered(m *Modder) error {
	slog.Info("relinking field to property", "field", r.Field.FullName(), "property", r.Property.DeclaringType.FullName()+"::"+r.Property.Name)
	return r.BaseTask.Registered(m)
}

func (r *FieldToPropertyRelinker) matches(f *meta.Field) bool {
	if f.DeclaringType == nil {
		return false
	}
	owner := f.DeclaringType.FullName()
	if owner != r.Field.DeclaringType.FullName() && owner != r.Property.DeclaringType.FullName() {
		return false
	}
	return f.Name == r.Field.Name || f.Name == r.Property.Name
}

func (r *FieldToPropertyRelinker) RelinkInstruction(m *meta.Method, ins *meta.Instruction) error {
	changed, err := rewrite.RewriteFieldAccess(meta.Site{Method: m, Instruction: ins}, r.matches, r.Property)
	if err != nil {
		return errors.AddContext(err, errors.CtxOperation, "field-to-property")
	}
	if changed && r.OnChanged != nil {
		r.OnChanged(ins)
	}
	return nil
}
