package rewrite

import (
	"testing"

	"modweave/internal/core/errors"
	"modweave/internal/engine/emit"
	"modweave/internal/engine/meta"
	"modweave/internal/engine/meta/cil"
	"modweave/internal/test/fixture"
	"modweave/internal/test/ilvm"
)

// hero derives from Player and redeclares the methods other types call.
func hero(s *fixture.Sample) *meta.Type {
	ts := s.TS
	h := s.Module.AddType(meta.NewTypeDef("Game", "Hero", meta.TypePublic, s.Player))
	attrs := meta.MethodPublic | meta.MethodHideBySig | meta.MethodVirtual
	h.AddMethod(meta.NewMethodDef("Add", attrs, ts.Int32, meta.NewParameter("a", ts.Int32), meta.NewParameter("b", ts.Int32)))
	h.AddMethod(meta.NewMethodDef("Heal", attrs, ts.Void, meta.NewParameter("amount", ts.Int32)))
	h.AddMethod(meta.NewMethodDef("Test", attrs, ts.Void))
	return h
}

func TestReplaceTypeRewritesEveryReference(t *testing.T) {
	s := fixture.NewSample()
	h := hero(s)
	ts := s.TS

	list := meta.NewTypeRef("System.Collections.Generic", "List`1", ts.CoreLibrary, false)
	players := meta.GenericInstanceOf(list, s.Player)
	listAdd := meta.NewMethodRef("Add", players, ts.Void, true, s.Player)
	collect := s.World.AddMethod(meta.NewMethodDef("Collect", meta.MethodPublic|meta.MethodStatic, ts.Void,
		meta.NewParameter("into", players), meta.NewParameter("p", s.Player)))
	collect.Body.Append(
		meta.LoadArg(collect.Parameters[0], false),
		meta.LoadArg(collect.Parameters[1], false),
		meta.NewInstruction(cil.Callvirt, meta.MethodOperand(listAdd)),
		meta.Op(cil.Ret),
	)
	roster := s.Module.AddType(meta.NewTypeDef("Game", "Roster", meta.TypePublic, meta.GenericInstanceOf(list, s.Player)))

	other := meta.NewParameter("other", s.Player)
	poke := s.Player.AddMethod(meta.NewMethodDef("Poke", meta.MethodPublic|meta.MethodHideBySig, ts.Void, other))
	poke.Body.Append(
		meta.Op(cil.Ldarg1),
		meta.NewInstruction(cil.Callvirt, meta.MethodOperand(s.Test)),
		meta.Op(cil.Ldarg0),
		meta.NewInstruction(cil.Callvirt, meta.MethodOperand(s.Test)),
		meta.Op(cil.Ret),
	)

	plan, err := PlanTypeReplacement(s.Module, s.Player, h, ReplaceOptions{})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.Len() == 0 {
		t.Fatal("expected edits")
	}
	if s.Spawn.ReturnType != s.Player {
		t.Fatal("planning must not mutate the module")
	}
	if err := plan.Apply(); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if s.Spawn.ReturnType != h {
		t.Errorf("return: got %s", s.Spawn.ReturnType)
	}
	if s.Spawn.Body.Variables[0].VariableType != h {
		t.Errorf("local: got %s", s.Spawn.Body.Variables[0].VariableType)
	}
	if s.Use.Parameters[0].ParameterType != h || other.ParameterType != h {
		t.Error("expected parameters to use the replacement")
	}
	if ft := s.Players.FieldType; !ft.IsArray() || ft.ElementType != h || ft.Rank != 1 {
		t.Errorf("field: got %s", ft)
	}
	if op := s.Use.Body.Instructions[3].MethodOperand(); op != h.Method("Add") {
		t.Errorf("World.Use should call Hero.Add, got %s", op)
	}
	if op := s.Spawn.Body.Instructions[4].MethodOperand(); op != h.Method("Heal") {
		t.Errorf("World.Spawn should call Hero.Heal, got %s", op)
	}
	if op := s.Spawn.Body.Instructions[0].MethodOperand(); op != s.Ctor {
		t.Errorf("constructors must stay, got %s", op)
	}
	if players.GenericArguments[0] != h {
		t.Errorf("generic declaring type argument: got %s", players.GenericArguments[0])
	}
	if roster.BaseType.GenericArguments[0] != h {
		t.Errorf("generic base type argument: got %s", roster.BaseType.GenericArguments[0])
	}
	if op := poke.Body.Instructions[1].MethodOperand(); op != h.Method("Test") {
		t.Errorf("call on the argument receiver should move, got %s", op)
	}
	if op := poke.Body.Instructions[3].MethodOperand(); op != s.Test {
		t.Errorf("call on this should stay, got %s", op)
	}
}

func TestReplaceTypeResolutionErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func(s *fixture.Sample) *meta.Type
		code  errors.ErrorCode
	}{
		{
			name: "missing",
			build: func(s *fixture.Sample) *meta.Type {
				h := s.Module.AddType(meta.NewTypeDef("Game", "Empty", meta.TypePublic, s.TS.Object))
				h.AddMethod(meta.NewMethodDef("Heal", meta.MethodPublic, s.TS.Void, meta.NewParameter("amount", s.TS.Int32)))
				return h
			},
			code: errors.CodeNotFound,
		},
		{
			name: "ambiguous",
			build: func(s *fixture.Sample) *meta.Type {
				h := hero(s)
				h.AddMethod(meta.NewMethodDef("Add", meta.MethodPublic, s.TS.String,
					meta.NewParameter("a", s.TS.String), meta.NewParameter("b", s.TS.String)))
				return h
			},
			code: errors.CodeAmbiguous,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := fixture.NewSample()
			err := ReplaceType(s.Module, s.Player, tt.build(s), ReplaceOptions{})
			if !errors.IsCode(err, tt.code) {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
			if s.Spawn.ReturnType != s.Player || s.Use.Parameters[0].ParameterType != s.Player {
				t.Fatal("a failed plan must leave the module untouched")
			}
		})
	}
}

func TestReplaceTypeStrictSurface(t *testing.T) {
	s := fixture.NewSample()
	err := ReplaceType(s.Module, s.Player, hero(s), ReplaceOptions{Strict: true})
	if !errors.IsCode(err, errors.CodeInvariantViolation) {
		t.Fatalf("expected invariant violation for missing Test(int), got %v", err)
	}
}

// tileMap builds Map with a static Tile[,] and the methods that use it, plus
// ITileCollection and its default implementation.
type tileMap struct {
	s        *fixture.Sample
	tile     *meta.Type
	grid     *meta.Type
	mapType  *meta.Type
	tiles    *meta.Field
	init     *meta.Method
	get      *meta.Method
	iface    *meta.Type
	impl     *meta.Type
	implSize *meta.Field
}

func newTileMap() *tileMap {
	s := fixture.NewSample()
	ts := s.TS
	m := &tileMap{s: s}
	m.tile = s.Module.AddType(meta.NewTypeDef("Game", "Tile", meta.TypePublic, ts.Object))
	m.grid = meta.ArrayOf(m.tile, 2)
	m.mapType = s.Module.AddType(meta.NewTypeDef("Game", "Map", meta.TypePublic|meta.TypeAbstract|meta.TypeSealed, ts.Object))
	m.tiles = m.mapType.AddField(meta.NewField("Tiles", meta.FieldPublic|meta.FieldStatic, m.grid))

	gridCtor := meta.NewMethodRef(".ctor", meta.ArrayOf(m.tile, 2), ts.Void, true, ts.Int32, ts.Int32)
	m.init = m.mapType.AddMethod(meta.NewMethodDef("Init", meta.MethodPublic|meta.MethodStatic, ts.Void))
	m.init.Body.Append(
		meta.NewInstruction(cil.LdcI4, meta.IntOperand(10)),
		meta.NewInstruction(cil.LdcI4, meta.IntOperand(20)),
		meta.NewInstruction(cil.Newobj, meta.MethodOperand(gridCtor)),
		meta.NewInstruction(cil.Stsfld, meta.FieldOperand(m.tiles)),
		meta.Op(cil.Ret),
	)

	x, y := meta.NewParameter("x", ts.Int32), meta.NewParameter("y", ts.Int32)
	gridGet := meta.NewMethodRef("Get", meta.ArrayOf(m.tile, 2), m.tile, true, ts.Int32, ts.Int32)
	m.get = m.mapType.AddMethod(meta.NewMethodDef("At", meta.MethodPublic|meta.MethodStatic, m.tile, x, y))
	m.get.Body.Append(
		meta.NewInstruction(cil.Ldsfld, meta.FieldOperand(m.tiles)),
		meta.LoadArg(x, false),
		meta.LoadArg(y, false),
		meta.NewInstruction(cil.Call, meta.MethodOperand(gridGet)),
		meta.Op(cil.Ret),
	)

	abstract := meta.MethodPublic | meta.MethodHideBySig | meta.MethodVirtual | meta.MethodAbstract | meta.MethodNewSlot
	m.iface = s.Module.AddType(meta.NewTypeDef("Game", "ITileCollection", meta.TypePublic|meta.TypeInterface|meta.TypeAbstract, nil))
	for _, decl := range []*meta.Method{
		meta.NewMethodDef("get_Item", abstract|meta.MethodSpecialName, m.tile,
			meta.NewParameter("x", ts.Int32), meta.NewParameter("y", ts.Int32)),
		meta.NewMethodDef("set_Item", abstract|meta.MethodSpecialName, ts.Void,
			meta.NewParameter("x", ts.Int32), meta.NewParameter("y", ts.Int32), meta.NewParameter("value", m.tile)),
		meta.NewMethodDef("Initialise", abstract, ts.Void,
			meta.NewParameter("width", ts.Int32), meta.NewParameter("height", ts.Int32)),
	} {
		decl.Body = nil
		m.iface.AddMethod(decl)
	}

	m.impl = s.Module.AddType(meta.NewTypeDef("Game", "DefaultTileCollection", meta.TypePublic, ts.Object))
	m.impl.Interfaces = append(m.impl.Interfaces, m.iface)
	m.implSize = m.impl.AddField(meta.NewField("size", meta.FieldPrivate, ts.Int32))
	ctor := m.impl.AddMethod(meta.NewMethodDef(".ctor", meta.MethodPublic|meta.MethodSpecialName|meta.MethodRTSpecialName, ts.Void))
	ctor.Body.Append(meta.Op(cil.Ret))
	w, h := meta.NewParameter("width", ts.Int32), meta.NewParameter("height", ts.Int32)
	initialise := m.impl.AddMethod(meta.NewMethodDef("Initialise", meta.MethodPublic|meta.MethodVirtual, ts.Void, w, h))
	initialise.Body.Append(
		meta.Op(cil.Ldarg0),
		meta.LoadArg(w, false),
		meta.LoadArg(h, false),
		meta.Op(cil.Mul),
		meta.NewInstruction(cil.Stfld, meta.FieldOperand(m.implSize)),
		meta.Op(cil.Ret),
	)
	return m
}

func TestReplaceArrayTypeRewritesConstruction(t *testing.T) {
	m := newTileMap()
	err := ReplaceType(m.s.Module, m.grid, m.iface, ReplaceOptions{ConstructorReplacement: m.impl})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}

	if m.tiles.FieldType != m.iface {
		t.Fatalf("field should become the interface, got %s", m.tiles.FieldType)
	}
	body := m.init.Body.Instructions
	tail := body[len(body)-5:]
	if !tail[0].Is(cil.Ldsfld) || tail[0].FieldOperand() != m.tiles ||
		!tail[3].Is(cil.Callvirt) || tail[3].MethodOperand() != m.iface.Method("Initialise") ||
		!tail[4].Is(cil.Ret) {
		t.Fatalf("unexpected Init tail:\n%s", m.init.Body.Disassemble())
	}
	for _, ins := range body {
		if ins.Is(cil.Newobj) && ins.MethodOperand().DeclaringType.IsArray() {
			t.Fatal("array construction should be gone")
		}
	}
	get := m.get.Body.Instructions[3]
	if !get.Is(cil.Callvirt) || get.MethodOperand() != m.iface.Method("get_Item") {
		t.Fatalf("array Get should become callvirt get_Item, got %s", get)
	}

	t.Run("default collection", func(t *testing.T) {
		vm := ilvm.New()
		if _, err := vm.Call(m.init); err != nil {
			t.Fatalf("init: %v", err)
		}
		obj, ok := vm.Static(m.tiles).(*ilvm.Object)
		if !ok || obj.Type != m.impl {
			t.Fatalf("expected a DefaultTileCollection, got %v", vm.Static(m.tiles))
		}
		if obj.Get("size") != int64(200) {
			t.Fatalf("expected Initialise(10, 20), got size %v", obj.Get("size"))
		}
	})

	t.Run("handler collection", func(t *testing.T) {
		vm := ilvm.New()
		custom := &ilvm.Object{Type: m.impl}
		vm.SetStatic(hookField(t, m.mapType, "CreateCollection"), ilvm.Handler(func(args ...ilvm.Value) ilvm.Value {
			return custom
		}))
		if _, err := vm.Call(m.init); err != nil {
			t.Fatalf("init: %v", err)
		}
		if vm.Static(m.tiles) != custom || custom.Get("size") != int64(200) {
			t.Fatalf("expected the handler's collection to be initialised, got %v", vm.Static(m.tiles))
		}
	})
}

func TestReplaceArrayTypeErrors(t *testing.T) {
	t.Run("no constructor replacement", func(t *testing.T) {
		m := newTileMap()
		err := ReplaceType(m.s.Module, m.grid, m.iface, ReplaceOptions{})
		if !errors.IsCode(err, errors.CodeValidationError) {
			t.Fatalf("expected validation error, got %v", err)
		}
		if m.tiles.FieldType != m.grid {
			t.Fatal("expected the module untouched")
		}
	})
	t.Run("no Initialise", func(t *testing.T) {
		m := newTileMap()
		m.iface.Methods = m.iface.Methods[:2]
		err := ReplaceType(m.s.Module, m.grid, m.iface, ReplaceOptions{ConstructorReplacement: m.impl})
		if !errors.IsCode(err, errors.CodeNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})
	t.Run("branch into arguments", func(t *testing.T) {
		m := newTileMap()
		body := m.init.Body
		second := body.Instructions[1]
		if err := body.InsertBefore(second, meta.NewInstruction(cil.BrS, meta.TargetOperand(second))); err != nil {
			t.Fatal(err)
		}
		err := ReplaceType(m.s.Module, m.grid, m.iface, ReplaceOptions{ConstructorReplacement: m.impl})
		if !errors.IsCode(err, errors.CodeNotSupported) {
			t.Fatalf("expected not supported, got %v", err)
		}
	})
}

func TestStackCounterReportsArgumentDepth(t *testing.T) {
	m := newTileMap()
	var depths []int
	NewStackCounter(m.init.Body.Instructions).Eval(func(ins *meta.Instruction, depth int) {
		depths = append(depths, depth)
	})
	// newobj sees both sizes; ret sees the stored array gone.
	if len(depths) != 2 || depths[0] != 2 || depths[1] != 0 {
		t.Fatalf("unexpected depths %v", depths)
	}
}

func TestReplaceSymbolEverywhereDispatch(t *testing.T) {
	s := fixture.NewSample()
	if err := ReplaceSymbolEverywhere(s.Module, s.Player, s.Name, ReplaceOptions{}); !errors.IsCode(err, errors.CodeNotSupported) {
		t.Fatalf("expected not supported for a type/property pair, got %v", err)
	}

	heal := s.Player.AddMethod(meta.NewMethodDef("HealTwice", meta.MethodPublic|meta.MethodVirtual, s.TS.Void,
		meta.NewParameter("amount", s.TS.Int32)))
	if err := ReplaceSymbolEverywhere(s.Module, s.Heal, heal, ReplaceOptions{}); err != nil {
		t.Fatalf("method: %v", err)
	}
	if s.Spawn.Body.Instructions[4].MethodOperand() != heal {
		t.Fatal("expected Spawn to call the replacement")
	}
}

func TestReplaceMethodRebuildsGenericInstances(t *testing.T) {
	s := fixture.NewSample()
	ts := s.TS
	make1 := s.World.AddMethod(meta.NewMethodDef("Make", meta.MethodPublic|meta.MethodStatic, ts.Object))
	make1.GenericParameters = []*meta.Type{meta.NewGenericParameter("T", 0, make1)}
	make2 := s.World.AddMethod(meta.NewMethodDef("Make2", meta.MethodPublic|meta.MethodStatic, ts.Object))
	make2.GenericParameters = []*meta.Type{meta.NewGenericParameter("T", 0, make2)}

	caller := s.World.AddMethod(meta.NewMethodDef("Caller", meta.MethodPublic|meta.MethodStatic, ts.Object))
	caller.Body.Append(
		meta.NewInstruction(cil.Call, meta.MethodOperand(make1.MakeGenericInstance(s.Player))),
		meta.Op(cil.Ret),
	)

	if err := ReplaceMethod(s.Module, make1, make2); err != nil {
		t.Fatalf("replace: %v", err)
	}
	op := caller.Body.Instructions[0].MethodOperand()
	if op.ElementMethod != make2 || len(op.GenericArguments) != 1 || op.GenericArguments[0] != s.Player {
		t.Fatalf("expected Make2<Player>, got %s", op)
	}
}

func TestFindPatternAndTransfer(t *testing.T) {
	s := fixture.NewSample()
	body := s.Heal.Body
	at := FindPattern(body, cil.Ldarg0, cil.Ldarg0, cil.Ldfld)
	if at != body.Instructions[0] {
		t.Fatalf("expected a match at the start, got %v", at)
	}
	if FindPattern(body, cil.Ret, cil.Ret) != nil {
		t.Fatal("expected no match")
	}

	ret := body.Last()
	jump := meta.NewInstruction(cil.BrS, meta.TargetOperand(ret))
	_ = body.InsertBefore(body.First(), jump)
	body.ExceptionHandlers = append(body.ExceptionHandlers, &meta.ExceptionHandler{TryEnd: ret, HandlerStart: ret})
	nop := meta.Op(cil.Nop)
	_ = body.InsertBefore(ret, nop)
	ReplaceTransfer(s.Heal, ret, nop)
	if jump.Operand.Target != nop || body.ExceptionHandlers[0].TryEnd != nop || body.ExceptionHandlers[0].HandlerStart != nop {
		t.Fatal("expected every transfer to move to the new instruction")
	}
}

func TestArrayRewriteDeclaresCollectionHook(t *testing.T) {
	m := newTileMap()
	if err := ReplaceType(m.s.Module, m.grid, m.iface, ReplaceOptions{ConstructorReplacement: m.impl}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	handlers, err := emit.HandlersType(m.mapType)
	if err != nil {
		t.Fatal(err)
	}
	d := handlers.NestedType("OnCreateCollection")
	if d == nil {
		t.Fatal("expected the OnCreateCollection delegate")
	}
	invoke := d.Method("Invoke")
	if invoke.ReturnType != m.impl || len(invoke.Parameters) != 0 {
		t.Fatalf("unexpected delegate signature %s", invoke)
	}
}
