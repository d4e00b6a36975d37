package meta

import (
	"fmt"
	"strconv"
	"strings"

	"modweave/internal/engine/meta/cil"
)

// OperandKind tags which field of an Operand is live.
type OperandKind uint8

const (
	OperandNone OperandKind = iota
	OperandType
	OperandMethod
	OperandField
	OperandVar
	OperandParam
	OperandString
	OperandInt
	OperandFloat
	OperandTarget
	OperandTargets
)

// Operand is the data argument of an instruction.
type Operand struct {
	Kind    OperandKind
	Type    *Type
	Method  *Method
	Field   *Field
	Var     *Variable
	Param   *Parameter
	Str     string
	Int     int64
	Float   float64
	Target  *Instruction
	Targets []*Instruction
}

func NoOperand() Operand                       { return Operand{} }
func TypeOperand(t *Type) Operand              { return Operand{Kind: OperandType, Type: t} }
func MethodOperand(m *Method) Operand          { return Operand{Kind: OperandMethod, Method: m} }
func FieldOperand(f *Field) Operand            { return Operand{Kind: OperandField, Field: f} }
func VarOperand(v *Variable) Operand           { return Operand{Kind: OperandVar, Var: v} }
func ParamOperand(p *Parameter) Operand        { return Operand{Kind: OperandParam, Param: p} }
func StringOperand(s string) Operand           { return Operand{Kind: OperandString, Str: s} }
func IntOperand(i int64) Operand               { return Operand{Kind: OperandInt, Int: i} }
func FloatOperand(f float64) Operand           { return Operand{Kind: OperandFloat, Float: f} }
func TargetOperand(t *Instruction) Operand     { return Operand{Kind: OperandTarget, Target: t} }
func TargetsOperand(ts []*Instruction) Operand { return Operand{Kind: OperandTargets, Targets: ts} }

func (o Operand) String() string {
	switch o.Kind {
	case OperandType:
		return o.Type.FullName()
	case OperandMethod:
		return o.Method.FullName()
	case OperandField:
		return o.Field.FullName()
	case OperandVar:
		return "V_" + o.Var.VariableType.FullName()
	case OperandParam:
		return o.Param.Name
	case OperandString:
		return strconv.Quote(o.Str)
	case OperandInt:
		return strconv.FormatInt(o.Int, 10)
	case OperandFloat:
		return strconv.FormatFloat(o.Float, 'g', -1, 64)
	case OperandTarget:
		return fmt.Sprintf("IL_%04x", o.Target.Offset)
	case OperandTargets:
		parts := make([]string, len(o.Targets))
		for i, t := range o.Targets {
			parts[i] = fmt.Sprintf("IL_%04x", t.Offset)
		}
		return "(" + strings.Join(parts, ",") + ")"
	}
	return ""
}

// Instruction identity is pointer identity.
type Instruction struct {
	OpCode  cil.OpCode
	Operand Operand
	Offset  int
}

func NewInstruction(op cil.OpCode, operand Operand) *Instruction {
	return &Instruction{OpCode: op, Operand: operand}
}

// Op creates an instruction without an operand.
func Op(op cil.OpCode) *Instruction { return &Instruction{OpCode: op} }

func (i *Instruction) Is(op cil.OpCode) bool { return i != nil && i.OpCode.Code == op.Code }

// MethodOperand returns the method operand or nil.
func (i *Instruction) MethodOperand() *Method {
	if i == nil || i.Operand.Kind != OperandMethod {
		return nil
	}
	return i.Operand.Method
}

func (i *Instruction) FieldOperand() *Field {
	if i == nil || i.Operand.Kind != OperandField {
		return nil
	}
	return i.Operand.Field
}

func (i *Instruction) String() string {
	s := fmt.Sprintf("IL_%04x: %s", i.Offset, i.OpCode.Name)
	if i.Operand.Kind != OperandNone {
		s += " " + i.Operand.String()
	}
	return s
}

type HandlerType uint8

const (
	HandlerCatch HandlerType = iota
	HandlerFilter
	HandlerFinally
	HandlerFault
)

type ExceptionHandler struct {
	HandlerType  HandlerType
	TryStart     *Instruction
	TryEnd       *Instruction
	HandlerStart *Instruction
	HandlerEnd   *Instruction
	FilterStart  *Instruction
	CatchType    *Type
}

// Body is the IL of one method definition.
type Body struct {
	Method            *Method
	Instructions      []*Instruction
	Variables         []*Variable
	ExceptionHandlers []*ExceptionHandler
	InitLocals        bool
}

// IndexOf returns the position of ins, or -1.
func (b *Body) IndexOf(ins *Instruction) int {
	for i, x := range b.Instructions {
		if x == ins {
			return i
		}
	}
	return -1
}

func (b *Body) Next(ins *Instruction) *Instruction {
	i := b.IndexOf(ins)
	if i < 0 || i+1 >= len(b.Instructions) {
		return nil
	}
	return b.Instructions[i+1]
}

func (b *Body) Previous(ins *Instruction) *Instruction {
	i := b.IndexOf(ins)
	if i <= 0 {
		return nil
	}
	return b.Instructions[i-1]
}

func (b *Body) First() *Instruction {
	if len(b.Instructions) == 0 {
		return nil
	}
	return b.Instructions[0]
}

func (b *Body) Last() *Instruction {
	if len(b.Instructions) == 0 {
		return nil
	}
	return b.Instructions[len(b.Instructions)-1]
}

func (b *Body) Append(ins ...*Instruction) {
	b.Instructions = append(b.Instructions, ins...)
}

func (b *Body) insertAt(i int, ins []*Instruction) {
	out := make([]*Instruction, 0, len(b.Instructions)+len(ins))
	out = append(out, b.Instructions[:i]...)
	out = append(out, ins...)
	out = append(out, b.Instructions[i:]...)
	b.Instructions = out
}

// InsertBefore splices ins in front of target.
func (b *Body) InsertBefore(target *Instruction, ins ...*Instruction) error {
	i := b.IndexOf(target)
	if i < 0 {
		return fmt.Errorf("insert before: %s is not part of the body", target)
	}
	b.insertAt(i, ins)
	return nil
}

func (b *Body) InsertAfter(target *Instruction, ins ...*Instruction) error {
	i := b.IndexOf(target)
	if i < 0 {
		return fmt.Errorf("insert after: %s is not part of the body", target)
	}
	b.insertAt(i+1, ins)
	return nil
}

// Remove drops ins. Branches that target it are left untouched.
func (b *Body) Remove(ins *Instruction) error {
	i := b.IndexOf(ins)
	if i < 0 {
		return fmt.Errorf("remove: %s is not part of the body", ins)
	}
	b.Instructions = append(b.Instructions[:i], b.Instructions[i+1:]...)
	return nil
}

// AddVariable appends v and returns it.
func (b *Body) AddVariable(v *Variable) *Variable {
	b.Variables = append(b.Variables, v)
	return v
}

// VariableIndex is the slot of v, or -1.
func (b *Body) VariableIndex(v *Variable) int {
	for i, x := range b.Variables {
		if x == v {
			return i
		}
	}
	return -1
}

// ComputeOffsets assigns sequential offsets; used only for display.
func (b *Body) ComputeOffsets() {
	for i, ins := range b.Instructions {
		ins.Offset = i
	}
}

// Disassemble renders the body one instruction per line.
func (b *Body) Disassemble() string {
	b.ComputeOffsets()
	var sb strings.Builder
	for _, ins := range b.Instructions {
		sb.WriteString(ins.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}
