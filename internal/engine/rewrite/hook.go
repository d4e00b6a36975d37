package rewrite

import (
	"log/slog"

	"modweave/internal/core/errors"
	"modweave/internal/engine/emit"
	"modweave/internal/engine/meta"
	"modweave/internal/engine/meta/cil"
	"modweave/internal/engine/query"
)

const directSuffix = "Direct"

// Hook applies HookMethod to every hookable method in results. Methods
// without a body, on interfaces or with generic parameters are skipped.
func Hook(results query.Results, opts emit.HookOptions) ([]*meta.Method, error) {
	var hooked []*meta.Method
	for _, m := range results.Methods() {
		if !Hookable(m) {
			slog.Debug("skipping unhookable method", "symbol", m.FullName())
			continue
		}
		replacement, err := HookMethod(m, opts)
		if err != nil {
			return hooked, err
		}
		hooked = append(hooked, replacement)
	}
	return hooked, nil
}

// Hookable reports whether HookMethod accepts m.
func Hookable(m *meta.Method) bool {
	return m.IsDefinition() && m.HasBody() && !m.DeclaringType.IsInterface() && len(m.GenericParameters) == 0
}

// HookMethod moves m's code into a new method named <Name>Direct and gives
// m's signature a body that calls it between the begin and end hooks:
//
//	[pre hook]; [ldarg.0]; ldarg...; call NameDirect; [stloc result]; [post hook]; [ldloc result]; ret
//
// Every reference to m in its module moves to the returned method. For class
// constructors the base or chained constructor call stays at the top of the
// returned method.
func HookMethod(m *meta.Method, opts emit.HookOptions) (*meta.Method, error) {
	if !Hookable(m) {
		return nil, errors.Newf(errors.CodeNotSupported, "%s cannot be hooked", m.Name).
			WithContext(errors.CtxSymbol, m.FullName())
	}
	nonVoid := !m.ReturnType.IsVoid()
	if opts.Has(emit.HookCancellable) && !opts.Has(emit.HookAlterResult) && nonVoid {
		return nil, errors.Newf(errors.CodeNotSupported, "cancellable hooks on %s need AlterResult to supply a result", m.Name).
			WithContext(errors.CtxSymbol, m.FullName())
	}
	t := m.DeclaringType
	if t.Module == nil {
		return nil, errors.Newf(errors.CodeInvariantViolation, "type %s is not attached to a module", t.FullName())
	}
	isCtor := m.Name == ".ctor" && m.HasThis && !t.IsValueType
	var chain int
	if isCtor {
		chain = constructorChain(m)
		if chain < 0 {
			return nil, errors.Newf(errors.CodeInvariantViolation, "constructor of %s does not call a base constructor", t.FullName()).
				WithContext(errors.CtxSymbol, m.FullName())
		}
	}
	target := m.FullName()

	replacement := meta.CloneSignature(m)
	m.Name = emit.SafeName(m.Name + directSuffix)
	t.AddMethod(replacement)

	m.Attributes &^= meta.MethodVirtual | meta.MethodSpecialName | meta.MethodRTSpecialName
	m.Overrides = nil
	m.CustomAttributes = nil
	m.SecurityDeclarations = nil

	if err := ReplaceMethod(t.Module, m, replacement); err != nil {
		return nil, err
	}

	body := replacement.Body
	ret := meta.Op(cil.Ret)
	body.Append(ret)

	call := emit.Call(m, replacement.Parameters)
	var result *meta.Variable
	if nonVoid {
		result = meta.NewVariable(m.ReturnType)
		store := call.Last()
		store.OpCode = cil.Stloc
		store.Operand = meta.VarOperand(result)
		call.Variables = append(call.Variables, result)
	}
	if err := call.MergeInto(replacement, ret); err != nil {
		return nil, err
	}

	if opts.Has(emit.HookPre) {
		pre, err := emit.BeginHook(replacement, opts, result)
		if err != nil {
			return nil, err
		}
		if err := pre.MergeAt(replacement, 0); err != nil {
			return nil, err
		}
	}
	if opts.Has(emit.HookPost) {
		post, err := emit.EndHook(replacement, opts, result)
		if err != nil {
			return nil, err
		}
		if err := post.MergeInto(replacement, ret); err != nil {
			return nil, err
		}
	}

	if result != nil {
		load := meta.NewInstruction(cil.Ldloc, meta.VarOperand(result))
		if err := body.InsertBefore(ret, load); err != nil {
			return nil, err
		}
		ReplaceTransfer(replacement, ret, load)
	}

	if isCtor {
		moveConstructorChain(m, replacement, chain)
	}

	slog.Debug("hooked method", "symbol", target, "direct", m.Name, "options", opts.String())
	return replacement, nil
}

// constructorChain is the index of the call to the base or a sibling
// constructor in m's body, or -1.
func constructorChain(m *meta.Method) int {
	t := m.DeclaringType
	for i, ins := range m.Body.Instructions {
		target := ins.MethodOperand()
		if !ins.Is(cil.Call) || target == nil || target.Name != ".ctor" {
			continue
		}
		if target.DeclaringType.Is(t.BaseType) || target.DeclaringType.Is(t) {
			return i
		}
	}
	return -1
}

// moveConstructorChain moves m's instructions up to and including the
// constructor call at chain to the top of replacement, rebinding argument
// and local operands to replacement.
func moveConstructorChain(m, replacement *meta.Method, chain int) {
	moved := append([]*meta.Instruction(nil), m.Body.Instructions[:chain+1]...)
	m.Body.Instructions = append([]*meta.Instruction(nil), m.Body.Instructions[chain+1:]...)

	for _, ins := range moved {
		switch ins.Operand.Kind {
		case meta.OperandParam:
			if i := ins.Operand.Param.Index(); i >= 0 && i < len(replacement.Parameters) {
				ins.Operand.Param = replacement.Parameters[i]
			}
		case meta.OperandVar:
			if replacement.Body.VariableIndex(ins.Operand.Var) < 0 {
				replacement.Body.AddVariable(ins.Operand.Var)
			}
		}
	}
	replacement.Body.Instructions = append(moved, replacement.Body.Instructions...)
}
