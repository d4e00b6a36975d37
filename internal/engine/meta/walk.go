package meta

// AllTypes returns every type definition in m, nested types following their
// parent depth-first.
func AllTypes(m *Module) []*Type {
	var out []*Type
	var visit func(t *Type)
	visit = func(t *Type) {
		out = append(out, t)
		for _, n := range t.NestedTypes {
			visit(n)
		}
	}
	for _, t := range m.Types {
		visit(t)
	}
	return out
}

// AllMethods returns every method definition in m.
func AllMethods(m *Module) []*Method {
	var out []*Method
	for _, t := range AllTypes(m) {
		out = append(out, t.Methods...)
	}
	return out
}

// Site pairs an instruction with the method whose body holds it.
type Site struct {
	Method      *Method
	Instruction *Instruction
}

// AllInstructions snapshots every instruction in m. Callers may insert or
// remove instructions while ranging over the result.
func AllInstructions(m *Module) []Site {
	var out []Site
	for _, method := range AllMethods(m) {
		if method.Body == nil {
			continue
		}
		for _, ins := range method.Body.Instructions {
			out = append(out, Site{Method: method, Instruction: ins})
		}
	}
	return out
}

// ForEachNestedType calls fn for t and each type nested beneath it.
func ForEachNestedType(t *Type, fn func(*Type)) {
	fn(t)
	for _, n := range t.NestedTypes {
		ForEachNestedType(n, fn)
	}
}
