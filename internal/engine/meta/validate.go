package meta

import (
	"modweave/internal/core/errors"
)

// Validate checks the graph is safe to hand to an emitter: member names are
// unique within each type and every type reference resolves through the
// module itself or one of its assembly references.
func Validate(m *Module) error {
	for _, t := range AllTypes(m) {
		if err := checkDuplicates(t); err != nil {
			return err
		}
	}

	scopes := make(map[string]bool, len(m.AssemblyRefs)+1)
	for _, r := range m.AssemblyRefs {
		scopes[r.Name] = true
	}
	if m.Assembly != nil {
		scopes[m.Assembly.Name] = true
	}
	scopes[m.Name] = true

	var dangling error
	VisitTypeRefs(m, func(t *Type, where string) {
		if dangling != nil {
			return
		}
		leaf := t.ElementOf()
		if leaf == nil || leaf.Kind != KindReference || leaf.Scope == nil {
			return
		}
		if !scopes[leaf.Scope.Name] {
			dangling = errors.Newf(errors.CodeInvariantViolation, "dangling reference to %s", leaf.FullName()).
				WithContext(errors.CtxAssembly, leaf.Scope.Name).
				WithContext(errors.CtxSymbol, where)
		}
	})
	return dangling
}

func checkDuplicates(t *Type) error {
	seen := make(map[string]bool)
	check := func(kind, key string) error {
		k := kind + ":" + key
		if seen[k] {
			return errors.Newf(errors.CodeInvariantViolation, "duplicate %s %q", kind, key).
				WithContext(errors.CtxSymbol, t.FullName())
		}
		seen[k] = true
		return nil
	}
	for _, f := range t.Fields {
		if err := check("field", f.Name); err != nil {
			return err
		}
	}
	for _, method := range t.Methods {
		if err := check("method", method.Name+method.ParameterList()); err != nil {
			return err
		}
	}
	for _, p := range t.Properties {
		if err := check("property", p.Name); err != nil {
			return err
		}
	}
	for _, n := range t.NestedTypes {
		if err := check("type", n.Name); err != nil {
			return err
		}
	}
	return nil
}

// VisitTypeRefs calls fn for every type used by a signature, body or
// attribute in m. where names the referencing member.
func VisitTypeRefs(m *Module, fn func(t *Type, where string)) {
	visitType := func(t *Type, where string) {
		var walk func(t *Type)
		walk = func(t *Type) {
			if t == nil {
				return
			}
			fn(t, where)
			if t.ElementType != nil {
				walk(t.ElementType)
			}
			for _, a := range t.GenericArguments {
				walk(a)
			}
		}
		walk(t)
	}
	visitMethodRef := func(method *Method, where string) {
		if method == nil {
			return
		}
		visitType(method.DeclaringType, where)
		visitType(method.ReturnType, where)
		for _, p := range method.Parameters {
			visitType(p.ParameterType, where)
		}
		for _, a := range method.GenericArguments {
			visitType(a, where)
		}
	}
	visitAttrs := func(attrs []*CustomAttribute, where string) {
		for _, a := range attrs {
			visitMethodRef(a.Constructor, where)
			for _, arg := range a.ConstructorArguments {
				visitType(arg.Type, where)
			}
		}
	}

	if m.Assembly != nil {
		visitAttrs(m.Assembly.CustomAttributes, m.Assembly.Name)
	}
	visitAttrs(m.CustomAttributes, m.Name)

	for _, t := range AllTypes(m) {
		name := t.FullName()
		visitType(t.BaseType, name)
		for _, i := range t.Interfaces {
			visitType(i, name)
		}
		visitAttrs(t.CustomAttributes, name)
		for _, f := range t.Fields {
			visitType(f.FieldType, name+"::"+f.Name)
		}
		for _, p := range t.Properties {
			visitType(p.PropertyType, name+"::"+p.Name)
		}
		for _, e := range t.Events {
			visitType(e.EventType, name+"::"+e.Name)
		}
		for _, method := range t.Methods {
			where := method.FullName()
			visitMethodRef(method, where)
			visitAttrs(method.CustomAttributes, where)
			if method.Body == nil {
				continue
			}
			for _, v := range method.Body.Variables {
				visitType(v.VariableType, where)
			}
			for _, ins := range method.Body.Instructions {
				switch ins.Operand.Kind {
				case OperandType:
					visitType(ins.Operand.Type, where)
				case OperandMethod:
					visitMethodRef(ins.Operand.Method, where)
				case OperandField:
					visitType(ins.Operand.Field.FieldType, where)
					visitType(ins.Operand.Field.DeclaringType, where)
				}
			}
		}
	}
}
