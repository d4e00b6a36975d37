package rewrite

import (
	"modweave/internal/engine/meta"
	"modweave/internal/engine/meta/cil"
)

// MakeVirtual marks every instance method of t virtual in a new slot and
// turns direct calls to them anywhere in the module into callvirt.
func MakeVirtual(t *meta.Type) int {
	targets := make(map[*meta.Method]bool)
	for _, m := range t.Methods {
		if m.IsConstructor() || m.IsStatic() {
			continue
		}
		m.Attributes |= meta.MethodVirtual | meta.MethodNewSlot
		targets[m] = true
	}
	if t.Module == nil {
		return 0
	}
	changed := 0
	for _, site := range meta.AllInstructions(t.Module) {
		ins := site.Instruction
		if ins.Is(cil.Call) && targets[ins.MethodOperand()] {
			ins.OpCode = cil.Callvirt
			changed++
		}
	}
	return changed
}

// MakePublic widens t, its members and its nested types to public. Private
// fields backing an event of the same name stay private.
func MakePublic(t *meta.Type) {
	vis := meta.TypePublic
	if t.IsNested() {
		vis = meta.TypeNestedPublic
	}
	t.Attributes = t.Attributes&^meta.TypeVisibility | vis

	for _, m := range t.Methods {
		makeMethodPublic(m)
	}
	for _, f := range t.Fields {
		if f.Attributes&meta.FieldAccessMask == meta.FieldPrivate && backsEvent(t, f) {
			continue
		}
		f.Attributes = f.Attributes&^meta.FieldAccessMask | meta.FieldPublic
	}
	for _, p := range t.Properties {
		makeMethodPublic(p.GetMethod)
		makeMethodPublic(p.SetMethod)
	}
	for _, n := range t.NestedTypes {
		MakePublic(n)
	}
}

func makeMethodPublic(m *meta.Method) {
	if m != nil {
		m.Attributes = m.Attributes&^meta.MethodAccessMask | meta.MethodPublic
	}
}

func backsEvent(t *meta.Type, f *meta.Field) bool {
	for _, e := range t.Events {
		if e.Name == f.Name {
			return true
		}
	}
	return false
}
