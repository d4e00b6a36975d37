package rewrite

import "modweave/internal/engine/meta"

// ReplaceTransfer moves every branch, switch entry and exception handler
// boundary that targets old in method's body onto replacement.
func ReplaceTransfer(method *meta.Method, old, replacement *meta.Instruction) {
	if method.Body == nil {
		return
	}
	for _, ins := range method.Body.Instructions {
		switch ins.Operand.Kind {
		case meta.OperandTarget:
			if ins.Operand.Target == old {
				ins.Operand.Target = replacement
			}
		case meta.OperandTargets:
			for i, t := range ins.Operand.Targets {
				if t == old {
					ins.Operand.Targets[i] = replacement
				}
			}
		}
	}
	for _, h := range method.Body.ExceptionHandlers {
		for _, slot := range []**meta.Instruction{&h.TryStart, &h.TryEnd, &h.HandlerStart, &h.HandlerEnd, &h.FilterStart} {
			if *slot == old {
				*slot = replacement
			}
		}
	}
}

// entersRange reports whether a branch or an exception handler boundary in
// body lands strictly after from and up to and including to.
func entersRange(body *meta.Body, from, to *meta.Instruction) bool {
	lo, hi := body.IndexOf(from), body.IndexOf(to)
	inside := func(target *meta.Instruction) bool {
		if target == nil {
			return false
		}
		i := body.IndexOf(target)
		return i > lo && i <= hi
	}
	for _, ins := range body.Instructions {
		switch ins.Operand.Kind {
		case meta.OperandTarget:
			if inside(ins.Operand.Target) {
				return true
			}
		case meta.OperandTargets:
			for _, t := range ins.Operand.Targets {
				if inside(t) {
					return true
				}
			}
		}
	}
	for _, h := range body.ExceptionHandlers {
		for _, t := range []*meta.Instruction{h.TryStart, h.TryEnd, h.HandlerStart, h.HandlerEnd, h.FilterStart} {
			if inside(t) {
				return true
			}
		}
	}
	return false
}
