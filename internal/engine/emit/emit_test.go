package emit

import (
	"strings"
	"testing"

	"modweave/internal/core/errors"
	"modweave/internal/engine/meta"
	"modweave/internal/engine/meta/cil"
	"modweave/internal/test/fixture"
	"modweave/internal/test/ilvm"
)

func opcodes(ins []*meta.Instruction) string {
	names := make([]string, len(ins))
	for i, x := range ins {
		names[i] = x.OpCode.Name
	}
	return strings.Join(names, " ")
}

func TestDelegateTypeShape(t *testing.T) {
	s := fixture.NewSample()
	d := DelegateType(s.Module, "OnThing", s.TS.Int32, s.Add.Parameters)

	if d.BaseType != s.TS.MulticastDelegate || d.Attributes&meta.TypeSealed == 0 {
		t.Fatalf("expected a sealed multicast delegate, got %+v", d)
	}
	want := []string{".ctor", "Invoke", "BeginInvoke", "EndInvoke"}
	if len(d.Methods) != len(want) {
		t.Fatalf("expected %d members, got %d", len(want), len(d.Methods))
	}
	for i, name := range want {
		m := d.Methods[i]
		if m.Name != name {
			t.Errorf("member %d: want %s, got %s", i, name, m.Name)
		}
		if m.ImplAttributes != meta.ImplRuntime || m.Body != nil {
			t.Errorf("%s must be runtime implemented", name)
		}
	}
	invoke := d.Method("Invoke")
	if invoke.ReturnType != s.TS.Int32 || !meta.ParametersMatch(invoke.Parameters, s.Add.Parameters) {
		t.Fatalf("unexpected Invoke %s", invoke)
	}
	if invoke.Parameters[0] == s.Add.Parameters[0] {
		t.Fatal("parameters must be copied")
	}
	if begin := d.Method("BeginInvoke"); len(begin.Parameters) != 4 || begin.Parameters[2].ParameterType != s.TS.AsyncCallback {
		t.Fatalf("unexpected BeginInvoke %s", begin)
	}
}

func TestHookDelegateOptions(t *testing.T) {
	tests := []struct {
		opts   HookOptions
		params string
		ret    string
	}{
		{HookPre, "(System.Int32,System.Int32)", "System.Int32"},
		{HookPre | HookReferenceParameters, "(System.Int32&,System.Int32&)", "System.Int32"},
		{HookPre | HookAlterResult, "(System.Int32,System.Int32,System.Int32)", "System.Int32"},
		{HookDefault, "(System.Int32&,System.Int32&,System.Int32&)", "System.Boolean"},
	}
	for _, tt := range tests {
		t.Run(tt.opts.String(), func(t *testing.T) {
			s := fixture.NewSample()
			invoke := HookDelegate(s.Module, "OnPreAdd", s.Add.Parameters, s.Add.ReturnType, tt.opts).Method("Invoke")
			if got := invoke.ParameterList(); got != tt.params {
				t.Errorf("params: want %s, got %s", tt.params, got)
			}
			if got := invoke.ReturnType.FullName(); got != tt.ret {
				t.Errorf("return: want %s, got %s", tt.ret, got)
			}
		})
	}

	s := fixture.NewSample()
	invoke := HookDelegate(s.Module, "OnPreTest", nil, s.TS.Void, HookDefault).Method("Invoke")
	if len(invoke.Parameters) != 0 {
		t.Fatal("void methods get no result parameter")
	}
}

func TestHookEmitterSequences(t *testing.T) {
	s := fixture.NewSample()

	pre, err := BeginHook(s.Add, HookPre|HookCancellable|HookReferenceParameters|HookAlterResult, meta.NewVariable(s.TS.Int32))
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	want := "ldsfld dup brtrue.s pop ldc.i4.1 br.s ldarga ldarga ldloca callvirt stloc ldloc brtrue.s br.s"
	if got := opcodes(pre.Instructions); got != want {
		t.Fatalf("cancellable pre hook:\nwant %s\ngot  %s", want, got)
	}
	if pre.Instructions[2].Operand.Target != pre.Instructions[6] || pre.Instructions[5].Operand.Target != pre.Instructions[10] {
		t.Fatal("branches must target the argument loads and the flag store")
	}
	if pre.Instructions[12].Operand.Target != s.Add.Body.First() || pre.Instructions[13].Operand.Target != s.Add.Body.Last() {
		t.Fatal("cancellation must branch to the method's first and last instructions")
	}
	if len(pre.Variables) != 1 {
		t.Fatalf("expected the flag local, got %d locals", len(pre.Variables))
	}

	post, err := EndHook(s.Add, HookDefault, meta.NewVariable(s.TS.Int32))
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	want = "ldsfld dup brtrue.s pop br.s ldarg ldarg ldloc callvirt pop nop"
	if got := opcodes(post.Instructions); got != want {
		t.Fatalf("post hook:\nwant %s\ngot  %s", want, got)
	}

	hooks, err := HooksType(s.Player)
	if err != nil {
		t.Fatal(err)
	}
	if hooks.DeclaringType.FullName() != "ModFramework.ModHooks" || hooks.Field("PreAdd") == nil || hooks.Field("PostAdd") == nil {
		t.Fatalf("unexpected hooks container %s", hooks.FullName())
	}
	handlers, _ := HandlersType(s.Player)
	if handlers.NestedType("OnPreAdd") == nil || handlers.NestedType("OnPostAdd") == nil {
		t.Fatal("expected both delegates under ModHandlers")
	}
}

func TestBeginHookFallsThroughWithoutHandler(t *testing.T) {
	s := fixture.NewSample()
	frag, err := BeginHook(s.Add, HookPre|HookReferenceParameters, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := frag.MergeAt(s.Add, 0); err != nil {
		t.Fatalf("merge: %v", err)
	}

	vm := ilvm.New()
	player, _ := vm.NewObject(s.Ctor)
	got, err := vm.Call(s.Add, player, int64(4), int64(5))
	if err != nil || got != int64(9) {
		t.Fatalf("expected 9 without a handler, got %v (%v)", got, err)
	}

	hooks, _ := HooksType(s.Player)
	vm.SetStatic(hooks.Field("PreAdd"), ilvm.Handler(func(args ...ilvm.Value) ilvm.Value {
		*args[1].(*ilvm.Value) = int64(0)
		return int64(-1)
	}))
	got, err = vm.Call(s.Add, player, int64(4), int64(5))
	if err != nil || got != int64(4) {
		t.Fatalf("expected the handler to zero b, got %v (%v)", got, err)
	}
}

func TestGenericHookAndDedupedNames(t *testing.T) {
	s := fixture.NewSample()
	for i := 0; i < 2; i++ {
		if _, err := GenericHook(s.World, "CreateCollection", nil, s.TS.Object, HookPost); err != nil {
			t.Fatalf("generic hook: %v", err)
		}
	}
	hooks, _ := HooksType(s.World)
	if hooks.Field("CreateCollection") == nil || hooks.Field("CreateCollection1") == nil {
		t.Fatal("expected deduplicated hook fields")
	}
	if err := meta.Validate(s.Module); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestCall(t *testing.T) {
	s := fixture.NewSample()
	frag := Call(s.Add, s.Add.Parameters)
	if got := opcodes(frag.Instructions); got != "ldarg.0 ldarg ldarg call pop" {
		t.Fatalf("unexpected call-through %s", got)
	}
	frag = Call(s.Spawn, nil)
	if got := opcodes(frag.Instructions); got != "call pop" {
		t.Fatalf("unexpected static call-through %s", got)
	}
}

func TestMergeIntoRejectsForeignAnchor(t *testing.T) {
	s := fixture.NewSample()
	frag := &MergableMethod{Instructions: []*meta.Instruction{meta.Op(cil.Nop)}}
	err := frag.MergeInto(s.Add, meta.Op(cil.Ret))
	if !errors.IsCode(err, errors.CodeInvariantViolation) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
	if err := frag.MergeAt(s.Add, 99); !errors.IsCode(err, errors.CodeInvariantViolation) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
	if err := frag.MergeInto(s.Add, s.Add.Body.Last()); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if s.Add.Body.Instructions[3] != frag.Instructions[0] {
		t.Fatal("expected the fragment before ret")
	}
}

func TestPropertyEmitter(t *testing.T) {
	s := fixture.NewSample()
	prop, err := NewPropertyEmitter("Score", s.TS.Int32, s.Player).Emit()
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	backing := s.Player.Field("<Score>k__BackingField")
	if backing == nil || backing.IsPublic() || len(backing.CustomAttributes) != 1 {
		t.Fatal("expected a private generated backing field")
	}
	if got := opcodes(prop.GetMethod.Body.Instructions); got != "ldarg.0 ldfld ret" {
		t.Errorf("getter: %s", got)
	}
	if got := opcodes(prop.SetMethod.Body.Instructions); got != "ldarg.0 ldarg.1 stfld ret" {
		t.Errorf("setter: %s", got)
	}

	vm := ilvm.New()
	player, _ := vm.NewObject(s.Ctor)
	if _, err := vm.Call(prop.SetMethod, player, int64(7)); err != nil {
		t.Fatal(err)
	}
	if got, _ := vm.Call(prop.GetMethod, player); got != int64(7) {
		t.Fatalf("expected 7, got %v", got)
	}

	if _, err := NewPropertyEmitter("Score", s.TS.Int32, s.Player).Emit(); !errors.IsCode(err, errors.CodeInvariantViolation) {
		t.Fatalf("expected a duplicate property error, got %v", err)
	}
}

func TestInterfaceExtraction(t *testing.T) {
	s := fixture.NewSample()
	iface, err := Interface(s.Player)
	if err != nil {
		t.Fatalf("interface: %v", err)
	}
	if iface.FullName() != "Game.IPlayer" || !iface.IsInterface() {
		t.Fatalf("unexpected interface %s", iface.FullName())
	}
	names := make([]string, len(iface.Methods))
	for i, m := range iface.Methods {
		names[i] = m.Name
		if m.Body != nil || m.Attributes&meta.MethodAbstract == 0 {
			t.Errorf("%s must be abstract", m.Name)
		}
	}
	if got := strings.Join(names, ","); got != "get_Name,set_Name,Add,Test,Test,Heal" {
		t.Fatalf("unexpected members %s", got)
	}
	if iface.Property("Name") == nil {
		t.Fatal("expected the Name property")
	}
	if _, err := Interface(s.Player); !errors.IsCode(err, errors.CodeInvariantViolation) {
		t.Fatalf("expected an existing interface error, got %v", err)
	}
}

func TestNames(t *testing.T) {
	if SafeName(".ctor") != "ctor" || SafeName("..cctor") != "cctor" || SafeName("Add") != "Add" {
		t.Error("unexpected safe names")
	}
	if BackingName("Name") != "<Name>k__BackingField" {
		t.Error("unexpected backing name")
	}
	taken := map[string]bool{"Pre": true, "Pre1": true}
	if got := uniqueName("Pre", func(n string) bool { return taken[n] }); got != "Pre2" {
		t.Errorf("expected Pre2, got %s", got)
	}
}
