package meta

import (
	"fmt"

	"modweave/internal/engine/meta/cil"
)

// Label names a position in a Builder that may not have been emitted yet.
type Label int

type fixup struct {
	index int
	label Label
}

// Builder assembles an instruction sequence in an arena. Branches to labels
// record the label index and are patched to real instructions by Build.
type Builder struct {
	instrs  []*Instruction
	labels  []int
	pending []Label
	fixups  []fixup
}

func NewBuilder() *Builder {
	return &Builder{}
}

// NewLabel allocates an unmarked label.
func (b *Builder) NewLabel() Label {
	b.labels = append(b.labels, -1)
	return Label(len(b.labels) - 1)
}

// Mark binds l to the next emitted instruction.
func (b *Builder) Mark(l Label) {
	b.pending = append(b.pending, l)
}

// Emit appends an instruction and returns its arena index.
func (b *Builder) Emit(op cil.OpCode, operand Operand) int {
	return b.add(NewInstruction(op, operand))
}

// EmitOp appends an operand-less instruction.
func (b *Builder) EmitOp(op cil.OpCode) int {
	return b.add(Op(op))
}

// EmitInstruction appends an existing instruction, keeping its identity.
func (b *Builder) EmitInstruction(ins *Instruction) int {
	return b.add(ins)
}

// Branch appends a branch whose target is patched when l is resolved.
func (b *Builder) Branch(op cil.OpCode, l Label) int {
	idx := b.add(NewInstruction(op, Operand{Kind: OperandTarget}))
	b.fixups = append(b.fixups, fixup{index: idx, label: l})
	return idx
}

func (b *Builder) add(ins *Instruction) int {
	idx := len(b.instrs)
	b.instrs = append(b.instrs, ins)
	for _, l := range b.pending {
		b.labels[l] = idx
	}
	b.pending = b.pending[:0]
	return idx
}

// At returns the instruction at arena index i.
func (b *Builder) At(i int) *Instruction { return b.instrs[i] }

func (b *Builder) Len() int { return len(b.instrs) }

// Build patches every branch and returns the sequence.
func (b *Builder) Build() ([]*Instruction, error) {
	if len(b.pending) > 0 {
		return nil, fmt.Errorf("label %d marked past the last instruction", b.pending[0])
	}
	for _, f := range b.fixups {
		target := b.labels[f.label]
		if target < 0 {
			return nil, fmt.Errorf("branch at %d targets unmarked label %d", f.index, f.label)
		}
		b.instrs[f.index].Operand.Target = b.instrs[target]
	}
	out := make([]*Instruction, len(b.instrs))
	copy(out, b.instrs)
	return out, nil
}

// LoadArg returns the load instruction for p, by address when byAddress is set.
func LoadArg(p *Parameter, byAddress bool) *Instruction {
	if byAddress {
		return NewInstruction(cil.Ldarga, ParamOperand(p))
	}
	return NewInstruction(cil.Ldarg, ParamOperand(p))
}

// LoadVar returns the load instruction for v, by address when byAddress is set.
func LoadVar(v *Variable, byAddress bool) *Instruction {
	if byAddress {
		return NewInstruction(cil.Ldloca, VarOperand(v))
	}
	return NewInstruction(cil.Ldloc, VarOperand(v))
}
