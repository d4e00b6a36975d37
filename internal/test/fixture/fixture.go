// Package fixture builds small in-memory assemblies for tests.
package fixture

import (
	"modweave/internal/engine/meta"
	"modweave/internal/engine/meta/cil"
)

// Mscorlib is the legacy core library reference the sample compiles against.
func Mscorlib() *meta.AssemblyRef {
	return &meta.AssemblyRef{Name: "mscorlib", Version: "4.0.0.0", PublicKeyToken: "b77a5c561934e089"}
}

// Sample is a small game-like assembly:
//
//	namespace Game
//	class Player { int health; static int Created; string Name { get; set; }
//	               .ctor(); int Add(int a, int b); void Test(); void Test(int); void Heal(int amount) }
//	class Player/Stats { }
//	class World { static Player[] Players; static Player Spawn(); }
type Sample struct {
	Assembly *meta.Assembly
	Module   *meta.Module
	TS       *meta.TypeSystem

	Player      *meta.Type
	Stats       *meta.Type
	World       *meta.Type
	Health      *meta.Field
	Created     *meta.Field
	NameBacking *meta.Field
	Name        *meta.Property

	Ctor  *meta.Method
	Add   *meta.Method
	Test  *meta.Method
	TestI *meta.Method
	Heal  *meta.Method
	Spawn *meta.Method
	Use   *meta.Method

	Players *meta.Field
}

func NewSample() *Sample {
	asm := meta.NewAssembly("Game", "1.0.0.0", Mscorlib())
	mod := asm.MainModule()
	ts := mod.TypeSystem
	s := &Sample{Assembly: asm, Module: mod, TS: ts}

	s.Player = mod.AddType(meta.NewTypeDef("Game", "Player", meta.TypePublic|meta.TypeBeforeInit, ts.Object))
	s.Stats = s.Player.AddNestedType(meta.NewTypeDef("", "Stats", meta.TypeNestedPublic, ts.Object))
	s.World = mod.AddType(meta.NewTypeDef("Game", "World", meta.TypePublic|meta.TypeAbstract|meta.TypeSealed, ts.Object))

	s.Health = s.Player.AddField(meta.NewField("health", meta.FieldPrivate, ts.Int32))
	s.Created = s.Player.AddField(meta.NewField("Created", meta.FieldPublic|meta.FieldStatic, ts.Int32))
	s.NameBacking = s.Player.AddField(meta.NewField("<Name>k__BackingField", meta.FieldPrivate, ts.String))

	objectCtor := meta.NewMethodRef(".ctor", ts.Object, ts.Void, true)

	s.Ctor = s.Player.AddMethod(meta.NewMethodDef(".ctor",
		meta.MethodPublic|meta.MethodHideBySig|meta.MethodSpecialName|meta.MethodRTSpecialName, ts.Void))
	s.Ctor.Body.Append(
		meta.Op(cil.Ldarg0),
		meta.NewInstruction(cil.Call, meta.MethodOperand(objectCtor)),
		meta.NewInstruction(cil.Ldsfld, meta.FieldOperand(s.Created)),
		meta.Op(cil.LdcI41),
		meta.Op(cil.Add),
		meta.NewInstruction(cil.Stsfld, meta.FieldOperand(s.Created)),
		meta.Op(cil.Ldarg0),
		meta.NewInstruction(cil.LdcI4, meta.IntOperand(100)),
		meta.NewInstruction(cil.Stfld, meta.FieldOperand(s.Health)),
		meta.Op(cil.Ret),
	)

	a := meta.NewParameter("a", ts.Int32)
	b := meta.NewParameter("b", ts.Int32)
	s.Add = s.Player.AddMethod(meta.NewMethodDef("Add", meta.MethodPublic|meta.MethodHideBySig, ts.Int32, a, b))
	s.Add.Body.Append(
		meta.LoadArg(a, false),
		meta.LoadArg(b, false),
		meta.Op(cil.Add),
		meta.Op(cil.Ret),
	)

	s.Test = s.Player.AddMethod(meta.NewMethodDef("Test", meta.MethodPublic|meta.MethodHideBySig, ts.Void))
	s.Test.Body.Append(meta.Op(cil.Ret))

	s.TestI = s.Player.AddMethod(meta.NewMethodDef("Test", meta.MethodPublic|meta.MethodHideBySig, ts.Void,
		meta.NewParameter("value", ts.Int32)))
	s.TestI.Body.Append(meta.Op(cil.Ret))

	amount := meta.NewParameter("amount", ts.Int32)
	s.Heal = s.Player.AddMethod(meta.NewMethodDef("Heal", meta.MethodPublic|meta.MethodHideBySig|meta.MethodVirtual, ts.Void, amount))
	s.Heal.Body.Append(
		meta.Op(cil.Ldarg0),
		meta.Op(cil.Ldarg0),
		meta.NewInstruction(cil.Ldfld, meta.FieldOperand(s.Health)),
		meta.LoadArg(amount, false),
		meta.Op(cil.Add),
		meta.NewInstruction(cil.Stfld, meta.FieldOperand(s.Health)),
		meta.Op(cil.Ret),
	)

	getName := s.Player.AddMethod(meta.NewMethodDef("get_Name",
		meta.MethodPublic|meta.MethodHideBySig|meta.MethodSpecialName, ts.String))
	getName.Body.Append(
		meta.Op(cil.Ldarg0),
		meta.NewInstruction(cil.Ldfld, meta.FieldOperand(s.NameBacking)),
		meta.Op(cil.Ret),
	)
	setName := s.Player.AddMethod(meta.NewMethodDef("set_Name",
		meta.MethodPublic|meta.MethodHideBySig|meta.MethodSpecialName, ts.Void, meta.NewParameter("value", ts.String)))
	setName.Body.Append(
		meta.Op(cil.Ldarg0),
		meta.LoadArg(setName.Parameters[0], false),
		meta.NewInstruction(cil.Stfld, meta.FieldOperand(s.NameBacking)),
		meta.Op(cil.Ret),
	)
	s.Name = s.Player.AddProperty(&meta.Property{Name: "Name", PropertyType: ts.String, GetMethod: getName, SetMethod: setName})

	s.Players = s.World.AddField(meta.NewField("Players", meta.FieldPublic|meta.FieldStatic, meta.ArrayOf(s.Player, 1)))

	s.Spawn = s.World.AddMethod(meta.NewMethodDef("Spawn", meta.MethodPublic|meta.MethodStatic|meta.MethodHideBySig, s.Player))
	local := s.Spawn.Body.AddVariable(meta.NewVariable(s.Player))
	s.Spawn.Body.Append(
		meta.NewInstruction(cil.Newobj, meta.MethodOperand(s.Ctor)),
		meta.NewInstruction(cil.Stloc, meta.VarOperand(local)),
		meta.NewInstruction(cil.Ldloc, meta.VarOperand(local)),
		meta.NewInstruction(cil.LdcI4, meta.IntOperand(5)),
		meta.NewInstruction(cil.Callvirt, meta.MethodOperand(s.Heal)),
		meta.NewInstruction(cil.Ldloc, meta.VarOperand(local)),
		meta.Op(cil.Ret),
	)

	p := meta.NewParameter("player", s.Player)
	s.Use = s.World.AddMethod(meta.NewMethodDef("Use", meta.MethodPublic|meta.MethodStatic|meta.MethodHideBySig, ts.Int32, p))
	s.Use.Body.Append(
		meta.LoadArg(p, false),
		meta.NewInstruction(cil.LdcI4, meta.IntOperand(2)),
		meta.NewInstruction(cil.LdcI4, meta.IntOperand(3)),
		meta.NewInstruction(cil.Callvirt, meta.MethodOperand(s.Add)),
		meta.Op(cil.Ret),
	)

	return s
}

// Library builds a dependency assembly that defines the given public types
// in namespace ns.
func Library(name, version, ns string, types ...string) *meta.Assembly {
	asm := meta.NewAssembly(name, version, Mscorlib())
	mod := asm.MainModule()
	for _, t := range types {
		mod.AddType(meta.NewTypeDef(ns, t, meta.TypePublic, mod.TypeSystem.Object))
	}
	return asm
}
