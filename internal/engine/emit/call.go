package emit

import (
	"modweave/internal/engine/meta"
	"modweave/internal/engine/meta/cil"
)

// Call emits a direct call to target forwarding args, with this loaded first
// for instance targets. A non-void result is discarded by a trailing pop that
// callers may rewrite into a store.
func Call(target *meta.Method, args []*meta.Parameter) *MergableMethod {
	frag := &MergableMethod{}
	if target.HasThis {
		frag.Instructions = append(frag.Instructions, meta.Op(cil.Ldarg0))
	}
	for _, p := range args {
		frag.Instructions = append(frag.Instructions, meta.LoadArg(p, false))
	}
	frag.Instructions = append(frag.Instructions, meta.NewInstruction(cil.Call, meta.MethodOperand(target)))
	if !target.ReturnType.IsVoid() {
		frag.Instructions = append(frag.Instructions, meta.Op(cil.Pop))
	}
	return frag
}
