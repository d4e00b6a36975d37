package rewrite

import (
	"testing"

	"modweave/internal/engine/meta"
	"modweave/internal/engine/meta/cil"
	"modweave/internal/test/fixture"
)

func TestMakeVirtual(t *testing.T) {
	s := fixture.NewSample()
	direct := s.World.AddMethod(meta.NewMethodDef("Direct", meta.MethodPublic|meta.MethodStatic, s.TS.Void,
		meta.NewParameter("p", s.Player)))
	direct.Body.Append(
		meta.LoadArg(direct.Parameters[0], false),
		meta.NewInstruction(cil.Call, meta.MethodOperand(s.Test)),
		meta.NewInstruction(cil.Call, meta.MethodOperand(s.Spawn)),
		meta.Op(cil.Pop),
		meta.Op(cil.Ret),
	)

	if n := MakeVirtual(s.Player); n != 1 {
		t.Fatalf("expected one call site rewritten, got %d", n)
	}
	for _, m := range []*meta.Method{s.Add, s.Test, s.TestI, s.Heal} {
		if m.Attributes&(meta.MethodVirtual|meta.MethodNewSlot) != meta.MethodVirtual|meta.MethodNewSlot {
			t.Errorf("%s should be virtual in a new slot", m.Name)
		}
	}
	if s.Ctor.IsVirtual() {
		t.Error("constructors must stay non-virtual")
	}
	if !direct.Body.Instructions[1].Is(cil.Callvirt) || !direct.Body.Instructions[2].Is(cil.Call) {
		t.Fatalf("unexpected call opcodes:\n%s", direct.Body.Disassemble())
	}
}

func TestMakePublic(t *testing.T) {
	s := fixture.NewSample()
	s.Stats.Attributes = 0
	hidden := s.Stats.AddMethod(meta.NewMethodDef("Hidden", meta.MethodPrivate, s.TS.Void))
	changed := s.Player.AddField(meta.NewField("Changed", meta.FieldPrivate, s.TS.Object))
	s.Player.AddEvent(&meta.Event{Name: "Changed", EventType: s.TS.Object})
	s.Name.GetMethod.Attributes = s.Name.GetMethod.Attributes&^meta.MethodAccessMask | meta.MethodFamily

	MakePublic(s.Player)

	if !s.Health.IsPublic() {
		t.Error("expected health to become public")
	}
	if changed.IsPublic() {
		t.Error("event backing fields must stay private")
	}
	if !s.Name.GetMethod.IsPublic() {
		t.Error("expected the getter to become public")
	}
	if s.Stats.Attributes&meta.TypeVisibility != meta.TypeNestedPublic || !hidden.IsPublic() {
		t.Error("expected nested types and their members to become public")
	}
	if s.Player.Attributes&meta.TypeVisibility != meta.TypePublic {
		t.Error("expected the type to stay public")
	}
}
