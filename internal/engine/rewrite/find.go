package rewrite

import (
	"modweave/internal/engine/meta"
	"modweave/internal/engine/meta/cil"
)

// FindPattern returns the first instruction of the first run in body whose
// opcodes equal pattern, or nil.
func FindPattern(body *meta.Body, pattern ...cil.OpCode) *meta.Instruction {
	if body == nil || len(pattern) == 0 {
		return nil
	}
	ins := body.Instructions
	for i := 0; i+len(pattern) <= len(ins); i++ {
		matched := true
		for j, op := range pattern {
			if !ins[i+j].Is(op) {
				matched = false
				break
			}
		}
		if matched {
			return ins[i]
		}
	}
	return nil
}
