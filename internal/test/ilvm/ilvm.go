// Package ilvm interprets method bodies of the metadata graph. It covers the
// opcodes the engine emits and the test fixtures use, enough to check that
// rewritten code still computes what the original did.
package ilvm

import (
	"fmt"

	"modweave/internal/engine/meta"
	"modweave/internal/engine/meta/cil"
)

// Value is an evaluation stack entry: int64, bool, string, *Object, *Value
// for managed pointers, Handler, or nil.
type Value = any

// Handler stands in for a delegate instance stored in a hook field. By
// reference arguments arrive as *Value.
type Handler func(args ...Value) Value

type Object struct {
	Type   *meta.Type
	fields map[string]*Value
}

func (o *Object) slot(f *meta.Field) *Value {
	if o.fields == nil {
		o.fields = make(map[string]*Value)
	}
	p, ok := o.fields[f.Name]
	if !ok {
		p = new(Value)
		*p = zero(f.FieldType)
		o.fields[f.Name] = p
	}
	return p
}

// Get returns the value of an instance field, nil when it was never written.
func (o *Object) Get(name string) Value {
	if p, ok := o.fields[name]; ok {
		return *p
	}
	return nil
}

// zero is the default value of a freshly allocated slot of type t.
func zero(t *meta.Type) Value {
	if t != nil && t.IsValueType && t.Kind != meta.KindByReference {
		return int64(0)
	}
	return nil
}

const (
	defaultMaxSteps = 100000
	maxDepth        = 64
)

type Machine struct {
	statics  map[*meta.Field]*Value
	MaxSteps int
	// Calls counts entries into interpreted methods by full name.
	Calls map[string]int
}

func New() *Machine {
	return &Machine{
		statics:  make(map[*meta.Field]*Value),
		MaxSteps: defaultMaxSteps,
		Calls:    make(map[string]int),
	}
}

func (vm *Machine) static(f *meta.Field) *Value {
	p, ok := vm.statics[f]
	if !ok {
		p = new(Value)
		*p = zero(f.FieldType)
		vm.statics[f] = p
	}
	return p
}

func (vm *Machine) SetStatic(f *meta.Field, v Value) { *vm.static(f) = v }

func (vm *Machine) Static(f *meta.Field) Value { return *vm.static(f) }

// Call runs m. Instance methods take the receiver as the first argument.
func (vm *Machine) Call(m *meta.Method, args ...Value) (Value, error) {
	return vm.invoke(m, args, 0)
}

// NewObject allocates an instance of ctor's type and runs ctor on it.
func (vm *Machine) NewObject(ctor *meta.Method, args ...Value) (*Object, error) {
	obj := &Object{Type: ctor.DeclaringType}
	if ctor.HasBody() {
		if _, err := vm.invoke(ctor, append([]Value{obj}, args...), 0); err != nil {
			return nil, err
		}
	}
	return obj, nil
}

type frame struct {
	method *meta.Method
	args   []Value
	locals []Value
	stack  []Value
}

func (f *frame) push(v Value) { f.stack = append(f.stack, v) }

func (f *frame) pop() (Value, error) {
	if len(f.stack) == 0 {
		return nil, fmt.Errorf("%s: stack underflow", f.method.Name)
	}
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return v, nil
}

func (f *frame) popN(n int) ([]Value, error) {
	if len(f.stack) < n {
		return nil, fmt.Errorf("%s: stack underflow popping %d", f.method.Name, n)
	}
	out := append([]Value(nil), f.stack[len(f.stack)-n:]...)
	f.stack = f.stack[:len(f.stack)-n]
	return out, nil
}

func (f *frame) argSlot(p *meta.Parameter) (int, error) {
	i := p.Index()
	if i < 0 {
		return 0, fmt.Errorf("%s: detached parameter %q", f.method.Name, p.Name)
	}
	if f.method.HasThis {
		i++
	}
	if i >= len(f.args) {
		return 0, fmt.Errorf("%s: argument %d out of range", f.method.Name, i)
	}
	return i, nil
}

func (f *frame) localSlot(v *meta.Variable) (int, error) {
	i := f.method.Body.VariableIndex(v)
	if i < 0 {
		return 0, fmt.Errorf("%s: local is not declared in the body", f.method.Name)
	}
	return i, nil
}

func (vm *Machine) invoke(m *meta.Method, args []Value, depth int) (Value, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("call depth exceeded at %s", m.Name)
	}
	if !m.HasBody() {
		return nil, fmt.Errorf("%s has no body to interpret", m.FullName())
	}
	vm.Calls[m.FullName()]++

	body := m.Body
	index := make(map[*meta.Instruction]int, len(body.Instructions))
	for i, ins := range body.Instructions {
		index[ins] = i
	}
	f := &frame{method: m, args: args, locals: make([]Value, len(body.Variables))}
	for i, v := range body.Variables {
		f.locals[i] = zero(v.VariableType)
	}

	jump := func(target *meta.Instruction) (int, error) {
		pc, ok := index[target]
		if !ok {
			return 0, fmt.Errorf("%s: branch to an instruction outside the body", m.Name)
		}
		return pc, nil
	}

	pc := 0
	for steps := 0; ; steps++ {
		if steps > vm.MaxSteps {
			return nil, fmt.Errorf("%s: step limit exceeded", m.Name)
		}
		if pc >= len(body.Instructions) {
			return nil, fmt.Errorf("%s: fell off the end of the body", m.Name)
		}
		ins := body.Instructions[pc]
		pc++

		var err error
		switch code := ins.OpCode.Code; code {
		case cil.Nop.Code:

		case cil.Ldarg0.Code, cil.Ldarg1.Code, cil.Ldarg2.Code, cil.Ldarg3.Code:
			n := int(code - cil.Ldarg0.Code)
			if n >= len(f.args) {
				return nil, fmt.Errorf("%s: argument %d out of range", m.Name, n)
			}
			f.push(f.args[n])
		case cil.Ldarg.Code, cil.LdargS.Code, cil.Ldarga.Code, cil.LdargaS.Code:
			slot, err := f.argSlot(ins.Operand.Param)
			if err != nil {
				return nil, err
			}
			if code == cil.Ldarga.Code || code == cil.LdargaS.Code {
				f.push(&f.args[slot])
			} else {
				f.push(f.args[slot])
			}
		case cil.Starg.Code, cil.StargS.Code:
			slot, err := f.argSlot(ins.Operand.Param)
			if err != nil {
				return nil, err
			}
			if f.args[slot], err = f.pop(); err != nil {
				return nil, err
			}

		case cil.Ldloc.Code, cil.LdlocS.Code, cil.Ldloca.Code, cil.LdlocaS.Code:
			slot, err := f.localSlot(ins.Operand.Var)
			if err != nil {
				return nil, err
			}
			if code == cil.Ldloca.Code || code == cil.LdlocaS.Code {
				f.push(&f.locals[slot])
			} else {
				f.push(f.locals[slot])
			}
		case cil.Stloc.Code, cil.StlocS.Code:
			slot, err := f.localSlot(ins.Operand.Var)
			if err != nil {
				return nil, err
			}
			if f.locals[slot], err = f.pop(); err != nil {
				return nil, err
			}

		case cil.Ldnull.Code:
			f.push(nil)
		case cil.LdcI4M1.Code:
			f.push(int64(-1))
		case cil.LdcI40.Code, cil.LdcI41.Code, cil.LdcI42.Code, cil.LdcI43.Code, cil.LdcI44.Code,
			cil.LdcI45.Code, cil.LdcI46.Code, cil.LdcI47.Code, cil.LdcI48.Code:
			f.push(int64(code - cil.LdcI40.Code))
		case cil.LdcI4.Code, cil.LdcI4S.Code, cil.LdcI8.Code:
			f.push(ins.Operand.Int)
		case cil.Ldstr.Code:
			f.push(ins.Operand.Str)

		case cil.Dup.Code:
			v, err := f.pop()
			if err != nil {
				return nil, err
			}
			f.push(v)
			f.push(v)
		case cil.Pop.Code:
			_, err = f.pop()

		case cil.Add.Code, cil.Sub.Code, cil.Mul.Code, cil.Ceq.Code, cil.Cgt.Code, cil.Clt.Code:
			err = f.binary(code)

		case cil.Br.Code, cil.BrS.Code, cil.Leave.Code, cil.LeaveS.Code:
			pc, err = jump(ins.Operand.Target)
		case cil.Brtrue.Code, cil.BrtrueS.Code, cil.Brfalse.Code, cil.BrfalseS.Code:
			v, err := f.pop()
			if err != nil {
				return nil, err
			}
			want := code == cil.Brtrue.Code || code == cil.BrtrueS.Code
			if truthy(v) == want {
				if pc, err = jump(ins.Operand.Target); err != nil {
					return nil, err
				}
			}

		case cil.Ldsfld.Code:
			f.push(*vm.static(ins.Operand.Field))
		case cil.Ldsflda.Code:
			f.push(vm.static(ins.Operand.Field))
		case cil.Stsfld.Code:
			v, err := f.pop()
			if err != nil {
				return nil, err
			}
			*vm.static(ins.Operand.Field) = v

		case cil.Ldfld.Code, cil.Ldflda.Code:
			obj, err := f.popObject()
			if err != nil {
				return nil, err
			}
			slot := obj.slot(ins.Operand.Field)
			if code == cil.Ldflda.Code {
				f.push(slot)
			} else {
				f.push(*slot)
			}
		case cil.Stfld.Code:
			v, err := f.pop()
			if err != nil {
				return nil, err
			}
			obj, err := f.popObject()
			if err != nil {
				return nil, err
			}
			*obj.slot(ins.Operand.Field) = v

		case cil.LdindI4.Code, cil.LdindI8.Code, cil.LdindR8.Code, cil.LdindRef.Code:
			p, err := f.popPointer()
			if err != nil {
				return nil, err
			}
			f.push(*p)
		case cil.StindI4.Code, cil.StindI8.Code, cil.StindR8.Code, cil.StindRef.Code:
			v, err := f.pop()
			if err != nil {
				return nil, err
			}
			p, err := f.popPointer()
			if err != nil {
				return nil, err
			}
			*p = v

		case cil.Newobj.Code:
			ctor := ins.Operand.Method
			ctorArgs, err := f.popN(len(ctor.Parameters))
			if err != nil {
				return nil, err
			}
			obj := &Object{Type: ctor.DeclaringType}
			if ctor.HasBody() {
				if _, err := vm.invoke(ctor, append([]Value{obj}, ctorArgs...), depth+1); err != nil {
					return nil, err
				}
			}
			f.push(obj)
		case cil.Call.Code, cil.Callvirt.Code:
			if err := vm.call(f, ins.Operand.Method, code == cil.Callvirt.Code, depth); err != nil {
				return nil, err
			}

		case cil.Ret.Code:
			if m.ReturnType.IsVoid() {
				return nil, nil
			}
			return f.pop()

		case cil.ConvI4.Code, cil.ConvI8.Code:

		default:
			return nil, fmt.Errorf("%s: unsupported opcode %s", m.Name, ins.OpCode.Name)
		}
		if err != nil {
			return nil, err
		}
	}
}

func (vm *Machine) call(f *frame, target *meta.Method, virtual bool, depth int) error {
	n := len(target.Parameters)
	if target.HasThis {
		n++
	}
	args, err := f.popN(n)
	if err != nil {
		return err
	}

	var result Value
	switch {
	case target.HasThis && target.Name == "Invoke" && isHandler(args[0]):
		if args[0] == nil {
			return fmt.Errorf("%s: invoke on a null delegate", f.method.Name)
		}
		result = args[0].(Handler)(args[1:]...)
	default:
		callee := target
		if virtual {
			if obj, ok := args[0].(*Object); ok {
				callee = dispatch(obj.Type, target)
			}
		}
		switch {
		case callee.HasBody():
			if result, err = vm.invoke(callee, args, depth+1); err != nil {
				return err
			}
		case callee.IsConstructor():
			// Base constructors outside the graph do nothing observable.
		default:
			return fmt.Errorf("%s: call to %s which has no body", f.method.Name, callee.FullName())
		}
	}
	if !target.ReturnType.IsVoid() {
		f.push(result)
	}
	return nil
}

func isHandler(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Handler)
	return ok
}

// dispatch finds the most derived definition of target on t.
func dispatch(t *meta.Type, target *meta.Method) *meta.Method {
	for cur := t; cur != nil && cur.IsDefinition(); cur = cur.BaseType {
		for _, m := range cur.Methods {
			if m.Name == target.Name && meta.ParametersMatch(m.Parameters, target.Parameters) {
				return m
			}
		}
	}
	return target
}

func (f *frame) popObject() (*Object, error) {
	v, err := f.pop()
	if err != nil {
		return nil, err
	}
	switch o := v.(type) {
	case *Object:
		return o, nil
	case *Value:
		if obj, ok := (*o).(*Object); ok {
			return obj, nil
		}
	}
	return nil, fmt.Errorf("%s: expected an object reference, got %T", f.method.Name, v)
}

func (f *frame) popPointer() (*Value, error) {
	v, err := f.pop()
	if err != nil {
		return nil, err
	}
	p, ok := v.(*Value)
	if !ok {
		return nil, fmt.Errorf("%s: expected a managed pointer, got %T", f.method.Name, v)
	}
	return p, nil
}

func (f *frame) binary(code cil.Code) error {
	operands, err := f.popN(2)
	if err != nil {
		return err
	}
	a, okA := operands[0].(int64)
	b, okB := operands[1].(int64)
	if !okA || !okB {
		return fmt.Errorf("%s: arithmetic on %T and %T", f.method.Name, operands[0], operands[1])
	}
	var r int64
	switch code {
	case cil.Add.Code:
		r = a + b
	case cil.Sub.Code:
		r = a - b
	case cil.Mul.Code:
		r = a * b
	case cil.Ceq.Code:
		r = boolInt(a == b)
	case cil.Cgt.Code:
		r = boolInt(a > b)
	case cil.Clt.Code:
		r = boolInt(a < b)
	}
	f.push(r)
	return nil
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func truthy(v Value) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int64:
		return x != 0
	case Handler:
		return x != nil
	}
	return true
}
