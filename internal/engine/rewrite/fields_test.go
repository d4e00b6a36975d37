package rewrite

import (
	"testing"

	"modweave/internal/core/errors"
	"modweave/internal/engine/meta"
	"modweave/internal/engine/meta/cil"
	"modweave/internal/test/fixture"
	"modweave/internal/test/ilvm"
)

func TestChangeToPropertyKeepsBehaviour(t *testing.T) {
	s := fixture.NewSample()
	peek := s.Player.AddMethod(meta.NewMethodDef("Peek", meta.MethodPublic|meta.MethodHideBySig, s.TS.Int32))
	peek.Body.Append(
		meta.Op(cil.Ldarg0),
		meta.NewInstruction(cil.Ldflda, meta.FieldOperand(s.Health)),
		meta.Op(cil.LdindI4),
		meta.Op(cil.Ret),
	)

	prop, err := ChangeToProperty(s.Health)
	if err != nil {
		t.Fatalf("change: %v", err)
	}
	if prop.Name != "health" || s.Health.Name != "<health>k__BackingField" || s.Health.IsPublic() {
		t.Fatalf("unexpected shape: property %s, field %s", prop.Name, s.Health.Name)
	}
	if prop.GetMethod.Attributes&meta.MethodVirtual == 0 {
		t.Error("expected virtual accessors")
	}

	heal := s.Heal.Body.Instructions
	if heal[2].MethodOperand() != prop.GetMethod || heal[5].MethodOperand() != prop.SetMethod || !heal[5].Is(cil.Callvirt) {
		t.Fatalf("expected Heal to use the accessors:\n%s", s.Heal.Body.Disassemble())
	}
	if !peek.Body.Instructions[2].Is(cil.Stloc) || !peek.Body.Instructions[3].Is(cil.Ldloca) || len(peek.Body.Variables) != 1 {
		t.Fatalf("expected address-of through a temporary:\n%s", peek.Body.Disassemble())
	}
	if prop.GetMethod.Body.Instructions[1].FieldOperand() != s.Health {
		t.Fatal("the getter must keep reading the backing field")
	}

	vm := ilvm.New()
	player, err := vm.Call(s.Spawn)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	obj := player.(*ilvm.Object)
	if obj.Get("<health>k__BackingField") != int64(105) {
		t.Fatalf("expected health 105, got %v", obj.Get("<health>k__BackingField"))
	}
	got, err := vm.Call(peek, obj)
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if got != int64(105) {
		t.Fatalf("expected 105 through the address, got %v", got)
	}
}

func TestChangeToPropertyRejects(t *testing.T) {
	s := fixture.NewSample()
	if _, err := ChangeToProperty(s.Created); !errors.IsCode(err, errors.CodeNotSupported) {
		t.Fatalf("expected not supported for a static field, got %v", err)
	}
	s.Player.AddProperty(&meta.Property{Name: "health", PropertyType: s.TS.Int32})
	if _, err := ChangeToProperty(s.Health); !errors.IsCode(err, errors.CodeInvariantViolation) {
		t.Fatalf("expected invariant violation for a clashing property, got %v", err)
	}
	if s.Health.Name != "health" {
		t.Fatal("a rejected change must not rename the field")
	}
}

func TestReplaceFieldWithPropertyStatic(t *testing.T) {
	s := fixture.NewSample()
	ts := s.TS
	get := s.Player.AddMethod(meta.NewMethodDef("get_Count", meta.MethodPublic|meta.MethodStatic|meta.MethodSpecialName, ts.Int32))
	get.Body.Append(meta.NewInstruction(cil.Ldsfld, meta.FieldOperand(s.Created)), meta.Op(cil.Ret))
	set := s.Player.AddMethod(meta.NewMethodDef("set_Count", meta.MethodPublic|meta.MethodStatic|meta.MethodSpecialName, ts.Void,
		meta.NewParameter("value", ts.Int32)))
	set.Body.Append(meta.Op(cil.Ldarg0), meta.NewInstruction(cil.Stsfld, meta.FieldOperand(s.Created)), meta.Op(cil.Ret))
	count := s.Player.AddProperty(&meta.Property{Name: "Count", PropertyType: ts.Int32, GetMethod: get, SetMethod: set})

	if err := ReplaceFieldWithProperty(s.Module, s.Created, count); err != nil {
		t.Fatalf("replace: %v", err)
	}
	ctor := s.Ctor.Body.Instructions
	if !ctor[2].Is(cil.Call) || ctor[2].MethodOperand() != get || !ctor[5].Is(cil.Call) || ctor[5].MethodOperand() != set {
		t.Fatalf("expected static accessor calls:\n%s", s.Ctor.Body.Disassemble())
	}
	if get.Body.Instructions[0].FieldOperand() != s.Created || set.Body.Instructions[1].FieldOperand() != s.Created {
		t.Fatal("accessor bodies must keep the field")
	}

	vm := ilvm.New()
	if _, err := vm.NewObject(s.Ctor); err != nil {
		t.Fatalf("construct: %v", err)
	}
	if vm.Static(s.Created) != int64(1) {
		t.Fatalf("expected Created 1, got %v", vm.Static(s.Created))
	}
}

func TestReplaceFieldWithPropertyMissingAccessor(t *testing.T) {
	s := fixture.NewSample()
	readOnly := &meta.Property{Name: "Name", PropertyType: s.TS.String, GetMethod: s.Name.GetMethod}
	other := s.World.AddMethod(meta.NewMethodDef("Rename", meta.MethodPublic|meta.MethodStatic, s.TS.Void,
		meta.NewParameter("p", s.Player)))
	other.Body.Append(
		meta.LoadArg(other.Parameters[0], false),
		meta.NewInstruction(cil.Ldstr, meta.StringOperand("x")),
		meta.NewInstruction(cil.Stfld, meta.FieldOperand(s.NameBacking)),
		meta.Op(cil.Ret),
	)
	err := ReplaceFieldWithProperty(s.Module, s.NameBacking, readOnly)
	if !errors.IsCode(err, errors.CodeInvariantViolation) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
}
