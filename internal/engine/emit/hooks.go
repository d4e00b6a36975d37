package emit

import (
	"log/slog"

	"modweave/internal/core/errors"
	"modweave/internal/engine/meta"
	"modweave/internal/engine/meta/cil"
	"modweave/internal/shared/observability"
)

const (
	hooksNamespace    = "ModFramework"
	hooksTypeName     = "ModHooks"
	handlersTypeName  = "ModHandlers"
	hooksTypeAttrs    = meta.TypePublic | meta.TypeAbstract | meta.TypeSealed | meta.TypeBeforeInit
	hooksNestedAttrs  = meta.TypeNestedPublic | meta.TypeAbstract | meta.TypeSealed | meta.TypeBeforeInit
	hookFieldAttrs    = meta.FieldPublic | meta.FieldStatic
	postHookStripOpts = HookReferenceParameters | HookCancellable
)

// HooksType returns ModFramework.ModHooks/<parent.Name>, creating the
// container types on first use. Hook fields for members of parent live here.
func HooksType(parent *meta.Type) (*meta.Type, error) {
	mod := parent.Module
	if mod == nil {
		return nil, errors.Newf(errors.CodeInvariantViolation, "type %s is not attached to a module", parent.FullName())
	}
	root := mod.Type(hooksNamespace + "." + hooksTypeName)
	if root == nil {
		root = mod.AddType(meta.NewTypeDef(hooksNamespace, hooksTypeName, hooksTypeAttrs, mod.TypeSystem.Object))
	}
	return nestedType(root, parent.Name), nil
}

// HandlersType returns the ModHandlers type nested in parent's hooks type,
// where hook delegate types are declared.
func HandlersType(parent *meta.Type) (*meta.Type, error) {
	hooks, err := HooksType(parent)
	if err != nil {
		return nil, err
	}
	return nestedType(hooks, handlersTypeName), nil
}

func nestedType(parent *meta.Type, name string) *meta.Type {
	if t := parent.NestedType(name); t != nil {
		return t
	}
	return parent.AddNestedType(meta.NewTypeDef("", name, hooksNestedAttrs, parent.Module.TypeSystem.Object))
}

// HookDelegate builds the handler delegate for a hook over params and ret.
// With ReferenceParameters value-type parameters become by-reference; with
// AlterResult a non-void result is appended as "result"; with Cancellable
// the delegate returns Boolean.
func HookDelegate(mod *meta.Module, name string, params []*meta.Parameter, ret *meta.Type, opts HookOptions) *meta.Type {
	ts := mod.TypeSystem
	delegateParams := copyParameters(params)
	if opts.Has(HookReferenceParameters) {
		for _, p := range delegateParams {
			if p.ParameterType.IsValueType {
				p.ParameterType = meta.ByRef(p.ParameterType)
			}
		}
	}
	if opts.Has(HookAlterResult) && !ret.IsVoid() {
		resultType := ret
		if opts.Has(HookReferenceParameters) {
			resultType = meta.ByRef(ret)
		}
		delegateParams = append(delegateParams, meta.NewParameter("result", resultType))
	}

	returnType := ret
	if opts.Has(HookCancellable) {
		returnType = ts.Boolean
	}
	return DelegateType(mod, name, returnType, delegateParams)
}

// HookEmitter produces the null-checked call to a hook field. When no handler
// is attached the sequence falls through with the stack as it found it, or
// with true on the stack for cancellable hooks.
type HookEmitter struct {
	Field       *meta.Field
	Parameters  []*meta.Parameter
	Cancellable bool
	ByReference bool
	// Result, when set, is passed after the parameters.
	Result *meta.Variable
}

func (e HookEmitter) Emit() (*MergableMethod, error) {
	invoke := e.Field.FieldType.Method("Invoke")
	if invoke == nil {
		return nil, errors.Newf(errors.CodeInvariantViolation, "hook field %s has no Invoke method", e.Field.Name)
	}

	b := meta.NewBuilder()
	callInvoke := b.NewLabel()
	storeResult := b.NewLabel()

	b.Emit(cil.Ldsfld, meta.FieldOperand(e.Field))
	b.EmitOp(cil.Dup)
	b.Branch(cil.BrtrueS, callInvoke)
	b.EmitOp(cil.Pop)
	if e.Cancellable {
		b.EmitOp(cil.LdcI41)
	}
	b.Branch(cil.BrS, storeResult)

	b.Mark(callInvoke)
	for _, p := range e.Parameters {
		b.EmitInstruction(meta.LoadArg(p, e.ByReference && p.ParameterType.IsValueType))
	}
	if e.Result != nil {
		b.EmitInstruction(meta.LoadVar(e.Result, e.ByReference))
	}
	b.Emit(cil.Callvirt, meta.MethodOperand(invoke))

	frag := &MergableMethod{}
	if e.Cancellable {
		flag := meta.NewVariable(invoke.ReturnType)
		frag.Variables = append(frag.Variables, flag)
		b.Mark(storeResult)
		b.Emit(cil.Stloc, meta.VarOperand(flag))
		b.Emit(cil.Ldloc, meta.VarOperand(flag))
	} else {
		if !invoke.ReturnType.IsVoid() {
			b.EmitOp(cil.Pop)
		}
		b.Mark(storeResult)
		b.EmitOp(cil.Nop)
	}

	instrs, err := b.Build()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "build hook call")
	}
	frag.Instructions = instrs
	return frag, nil
}

// addHook declares the delegate and the public static field for one hook and
// returns the field.
func addHook(parent *meta.Type, delegateName, fieldName string, params []*meta.Parameter, ret *meta.Type, opts HookOptions) (*meta.Field, error) {
	hooks, err := HooksType(parent)
	if err != nil {
		return nil, err
	}
	handlers, err := HandlersType(parent)
	if err != nil {
		return nil, err
	}

	delegateName = uniqueName(delegateName, func(n string) bool { return handlers.NestedType(n) != nil })
	handler := handlers.AddNestedType(HookDelegate(parent.Module, delegateName, params, ret, opts))

	fieldName = uniqueName(fieldName, func(n string) bool { return hooks.Field(n) != nil })
	field := hooks.AddField(meta.NewField(fieldName, hookFieldAttrs, handler))

	slog.Debug("emitted hook", "field", hooks.FullName()+"::"+field.Name, "options", opts.String())
	return field, nil
}

// BeginHook generates a hook that runs before method's own code. A
// cancellable hook's fragment ends with a branch to the method's first
// instruction when the handler returned true and to its last instruction
// otherwise.
func BeginHook(method *meta.Method, opts HookOptions, result *meta.Variable) (*MergableMethod, error) {
	if !method.HasBody() {
		return nil, errors.Newf(errors.CodeInvariantViolation, "begin hook on %s: method has no body", method.Name)
	}
	field, err := addHook(method.DeclaringType, "OnPre"+SafeName(method.Name), "Pre"+SafeName(method.Name),
		method.Parameters, method.ReturnType, opts)
	if err != nil {
		return nil, err
	}

	frag, err := HookEmitter{
		Field:       field,
		Parameters:  method.Parameters,
		Cancellable: opts.Has(HookCancellable),
		ByReference: opts.Has(HookReferenceParameters),
		Result:      resultFor(opts, result),
	}.Emit()
	if err != nil {
		return nil, err
	}

	if opts.Has(HookCancellable) {
		frag.Instructions = append(frag.Instructions,
			meta.NewInstruction(cil.BrtrueS, meta.TargetOperand(method.Body.First())),
			meta.NewInstruction(cil.BrS, meta.TargetOperand(method.Body.Last())),
		)
	}
	observability.HooksEmittedTotal.WithLabelValues("pre").Inc()
	return frag, nil
}

// EndHook generates a hook that runs after method's own code. Post hooks
// never cancel and receive their arguments by value.
func EndHook(method *meta.Method, opts HookOptions, result *meta.Variable) (*MergableMethod, error) {
	opts &^= postHookStripOpts
	field, err := addHook(method.DeclaringType, "OnPost"+SafeName(method.Name), "Post"+SafeName(method.Name),
		method.Parameters, method.ReturnType, opts)
	if err != nil {
		return nil, err
	}
	frag, err := HookEmitter{
		Field:      field,
		Parameters: method.Parameters,
		Result:     resultFor(opts, result),
	}.Emit()
	if err != nil {
		return nil, err
	}
	observability.HooksEmittedTotal.WithLabelValues("post").Inc()
	return frag, nil
}

// GenericHook generates a free-standing hook named name on parent's hooks
// type. The handler takes params and returns ret.
func GenericHook(parent *meta.Type, name string, params []*meta.Parameter, ret *meta.Type, opts HookOptions) (*MergableMethod, error) {
	field, err := addHook(parent, "On"+name, name, params, ret, opts)
	if err != nil {
		return nil, err
	}
	frag, err := HookEmitter{Field: field, Parameters: params}.Emit()
	if err != nil {
		return nil, err
	}
	observability.HooksEmittedTotal.WithLabelValues("generic").Inc()
	return frag, nil
}

// resultFor passes the result local only when the delegate declares it.
func resultFor(opts HookOptions, result *meta.Variable) *meta.Variable {
	if !opts.Has(HookAlterResult) {
		return nil
	}
	return result
}
