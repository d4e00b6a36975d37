package rewrite

import (
	"modweave/internal/engine/meta"
	"modweave/internal/engine/meta/cil"
)

// StackCounter is a coarse abstract stack walk used to find where the
// arguments of a call begin. It only tracks pushes and pops of opcodes that
// do one or the other, and resets at every variable-pop instruction.
type StackCounter struct {
	instructions []*meta.Instruction
}

// NewStackCounter snapshots instructions; later edits to the body do not
// affect the walk.
func NewStackCounter(instructions []*meta.Instruction) *StackCounter {
	return &StackCounter{instructions: append([]*meta.Instruction(nil), instructions...)}
}

// Eval calls match for every variable-pop instruction with the number of
// values counted since the previous one.
func (s *StackCounter) Eval(match func(ins *meta.Instruction, depth int)) {
	total := 0
	for _, ins := range s.instructions {
		pop, push := ins.OpCode.Pop, ins.OpCode.Push
		switch {
		case push == cil.Push0 && pop == cil.Pop0:
		case pop == cil.Varpop:
			match(ins, total)
			total = 0
			if push != cil.Push0 {
				total++
			}
		case push != cil.Push0 && pop != cil.Pop0:
		case push == cil.Push0:
			total--
		case pop == cil.Pop0:
			total++
		}
	}
}

// firstArgument walks back depth instructions from ins.
func firstArgument(body *meta.Body, ins *meta.Instruction, depth int) (*meta.Instruction, bool) {
	i := body.IndexOf(ins) - depth
	if i < 0 || i >= len(body.Instructions) {
		return nil, false
	}
	return body.Instructions[i], true
}
