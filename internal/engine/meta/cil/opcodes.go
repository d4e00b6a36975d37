// Package cil holds the CIL opcode table with ECMA-335 stack behaviour.
package cil

// StackBehaviour describes how many values an opcode pops or pushes.
type StackBehaviour uint8

const (
	Pop0 StackBehaviour = iota
	Pop1
	Pop1Pop1
	Popi
	PopiPop1
	PopiPopi
	PopiPopi8
	PopiPopiPopi
	PopiPopr4
	PopiPopr8
	Popref
	PoprefPop1
	PoprefPopi
	PoprefPopiPopi
	PoprefPopiPopi8
	PoprefPopiPopr4
	PoprefPopiPopr8
	PoprefPopiPopref
	PoprefPopiPop1
	PopAll
	Varpop
	Push0
	Push1
	Push1Push1
	Pushi
	Pushi8
	Pushr4
	Pushr8
	Pushref
	Varpush
)

// FlowControl classifies how an opcode transfers control.
type FlowControl uint8

const (
	FlowNext FlowControl = iota
	FlowBranch
	FlowCondBranch
	FlowCall
	FlowReturn
	FlowThrow
	FlowBreak
	FlowMeta
)

// OperandType is the static operand shape an opcode expects.
type OperandType uint8

const (
	InlineNone OperandType = iota
	InlineArg
	InlineVar
	InlineI
	InlineI8
	InlineR
	InlineString
	InlineType
	InlineMethod
	InlineField
	InlineTok
	InlineSig
	InlineBrTarget
	InlineSwitch
)

type Code uint16

// OpCode is comparable; two values are the same opcode when their Code matches.
type OpCode struct {
	Code    Code
	Name    string
	Pop     StackBehaviour
	Push    StackBehaviour
	Flow    FlowControl
	Operand OperandType
}

func (o OpCode) String() string { return o.Name }

// PopCount returns the fixed number of values popped, or -1 for variable pops.
func (o OpCode) PopCount() int {
	switch o.Pop {
	case Pop0:
		return 0
	case Pop1, Popi, Popref:
		return 1
	case Pop1Pop1, PopiPop1, PopiPopi, PopiPopi8, PopiPopr4, PopiPopr8, PoprefPop1, PoprefPopi:
		return 2
	case PopiPopiPopi, PoprefPopiPopi, PoprefPopiPopi8, PoprefPopiPopr4, PoprefPopiPopr8, PoprefPopiPopref, PoprefPopiPop1:
		return 3
	default:
		return -1
	}
}

// PushCount returns the fixed number of values pushed, or -1 for variable pushes.
func (o OpCode) PushCount() int {
	switch o.Push {
	case Push0:
		return 0
	case Push1Push1:
		return 2
	case Varpush:
		return -1
	default:
		return 1
	}
}

// IsBranch reports whether the operand is a branch target.
func (o OpCode) IsBranch() bool {
	return o.Operand == InlineBrTarget || o.Operand == InlineSwitch
}

var table = map[Code]OpCode{}

func def(name string, pop, push StackBehaviour, flow FlowControl, operand OperandType) OpCode {
	op := OpCode{Code: Code(len(table) + 1), Name: name, Pop: pop, Push: push, Flow: flow, Operand: operand}
	table[op.Code] = op
	return op
}

// Lookup returns the opcode registered under c.
func Lookup(c Code) (OpCode, bool) {
	op, ok := table[c]
	return op, ok
}

var (
	Nop   = def("nop", Pop0, Push0, FlowNext, InlineNone)
	Break = def("break", Pop0, Push0, FlowBreak, InlineNone)

	Ldarg0  = def("ldarg.0", Pop0, Push1, FlowNext, InlineNone)
	Ldarg1  = def("ldarg.1", Pop0, Push1, FlowNext, InlineNone)
	Ldarg2  = def("ldarg.2", Pop0, Push1, FlowNext, InlineNone)
	Ldarg3  = def("ldarg.3", Pop0, Push1, FlowNext, InlineNone)
	Ldloc0  = def("ldloc.0", Pop0, Push1, FlowNext, InlineNone)
	Ldloc1  = def("ldloc.1", Pop0, Push1, FlowNext, InlineNone)
	Ldloc2  = def("ldloc.2", Pop0, Push1, FlowNext, InlineNone)
	Ldloc3  = def("ldloc.3", Pop0, Push1, FlowNext, InlineNone)
	Stloc0  = def("stloc.0", Pop1, Push0, FlowNext, InlineNone)
	Stloc1  = def("stloc.1", Pop1, Push0, FlowNext, InlineNone)
	Stloc2  = def("stloc.2", Pop1, Push0, FlowNext, InlineNone)
	Stloc3  = def("stloc.3", Pop1, Push0, FlowNext, InlineNone)
	LdargS  = def("ldarg.s", Pop0, Push1, FlowNext, InlineArg)
	LdargaS = def("ldarga.s", Pop0, Pushi, FlowNext, InlineArg)
	StargS  = def("starg.s", Pop1, Push0, FlowNext, InlineArg)
	LdlocS  = def("ldloc.s", Pop0, Push1, FlowNext, InlineVar)
	LdlocaS = def("ldloca.s", Pop0, Pushi, FlowNext, InlineVar)
	StlocS  = def("stloc.s", Pop1, Push0, FlowNext, InlineVar)

	Ldnull  = def("ldnull", Pop0, Pushref, FlowNext, InlineNone)
	LdcI4M1 = def("ldc.i4.m1", Pop0, Pushi, FlowNext, InlineNone)
	LdcI40  = def("ldc.i4.0", Pop0, Pushi, FlowNext, InlineNone)
	LdcI41  = def("ldc.i4.1", Pop0, Pushi, FlowNext, InlineNone)
	LdcI42  = def("ldc.i4.2", Pop0, Pushi, FlowNext, InlineNone)
	LdcI43  = def("ldc.i4.3", Pop0, Pushi, FlowNext, InlineNone)
	LdcI44  = def("ldc.i4.4", Pop0, Pushi, FlowNext, InlineNone)
	LdcI45  = def("ldc.i4.5", Pop0, Pushi, FlowNext, InlineNone)
	LdcI46  = def("ldc.i4.6", Pop0, Pushi, FlowNext, InlineNone)
	LdcI47  = def("ldc.i4.7", Pop0, Pushi, FlowNext, InlineNone)
	LdcI48  = def("ldc.i4.8", Pop0, Pushi, FlowNext, InlineNone)
	LdcI4S  = def("ldc.i4.s", Pop0, Pushi, FlowNext, InlineI)
	LdcI4   = def("ldc.i4", Pop0, Pushi, FlowNext, InlineI)
	LdcI8   = def("ldc.i8", Pop0, Pushi8, FlowNext, InlineI8)
	LdcR4   = def("ldc.r4", Pop0, Pushr4, FlowNext, InlineR)
	LdcR8   = def("ldc.r8", Pop0, Pushr8, FlowNext, InlineR)

	Dup   = def("dup", Pop1, Push1Push1, FlowNext, InlineNone)
	Pop   = def("pop", Pop1, Push0, FlowNext, InlineNone)
	Jmp   = def("jmp", Pop0, Push0, FlowCall, InlineMethod)
	Call  = def("call", Varpop, Varpush, FlowCall, InlineMethod)
	Calli = def("calli", Varpop, Varpush, FlowCall, InlineSig)
	Ret   = def("ret", Varpop, Push0, FlowReturn, InlineNone)

	BrS      = def("br.s", Pop0, Push0, FlowBranch, InlineBrTarget)
	BrfalseS = def("brfalse.s", Popi, Push0, FlowCondBranch, InlineBrTarget)
	BrtrueS  = def("brtrue.s", Popi, Push0, FlowCondBranch, InlineBrTarget)
	BeqS     = def("beq.s", Pop1Pop1, Push0, FlowCondBranch, InlineBrTarget)
	BgeS     = def("bge.s", Pop1Pop1, Push0, FlowCondBranch, InlineBrTarget)
	BgtS     = def("bgt.s", Pop1Pop1, Push0, FlowCondBranch, InlineBrTarget)
	BleS     = def("ble.s", Pop1Pop1, Push0, FlowCondBranch, InlineBrTarget)
	BltS     = def("blt.s", Pop1Pop1, Push0, FlowCondBranch, InlineBrTarget)
	BneUnS   = def("bne.un.s", Pop1Pop1, Push0, FlowCondBranch, InlineBrTarget)
	Br       = def("br", Pop0, Push0, FlowBranch, InlineBrTarget)
	Brfalse  = def("brfalse", Popi, Push0, FlowCondBranch, InlineBrTarget)
	Brtrue   = def("brtrue", Popi, Push0, FlowCondBranch, InlineBrTarget)
	Beq      = def("beq", Pop1Pop1, Push0, FlowCondBranch, InlineBrTarget)
	Bge      = def("bge", Pop1Pop1, Push0, FlowCondBranch, InlineBrTarget)
	Bgt      = def("bgt", Pop1Pop1, Push0, FlowCondBranch, InlineBrTarget)
	Ble      = def("ble", Pop1Pop1, Push0, FlowCondBranch, InlineBrTarget)
	Blt      = def("blt", Pop1Pop1, Push0, FlowCondBranch, InlineBrTarget)
	BneUn    = def("bne.un", Pop1Pop1, Push0, FlowCondBranch, InlineBrTarget)
	Switch   = def("switch", Popi, Push0, FlowCondBranch, InlineSwitch)

	LdindI4  = def("ldind.i4", Popi, Pushi, FlowNext, InlineNone)
	LdindI8  = def("ldind.i8", Popi, Pushi8, FlowNext, InlineNone)
	LdindR8  = def("ldind.r8", Popi, Pushr8, FlowNext, InlineNone)
	LdindRef = def("ldind.ref", Popi, Pushref, FlowNext, InlineNone)
	StindRef = def("stind.ref", PopiPopi, Push0, FlowNext, InlineNone)
	StindI4  = def("stind.i4", PopiPopi, Push0, FlowNext, InlineNone)
	StindI8  = def("stind.i8", PopiPopi8, Push0, FlowNext, InlineNone)
	StindR8  = def("stind.r8", PopiPopr8, Push0, FlowNext, InlineNone)

	Add   = def("add", Pop1Pop1, Push1, FlowNext, InlineNone)
	Sub   = def("sub", Pop1Pop1, Push1, FlowNext, InlineNone)
	Mul   = def("mul", Pop1Pop1, Push1, FlowNext, InlineNone)
	Div   = def("div", Pop1Pop1, Push1, FlowNext, InlineNone)
	Rem   = def("rem", Pop1Pop1, Push1, FlowNext, InlineNone)
	And   = def("and", Pop1Pop1, Push1, FlowNext, InlineNone)
	Or    = def("or", Pop1Pop1, Push1, FlowNext, InlineNone)
	Xor   = def("xor", Pop1Pop1, Push1, FlowNext, InlineNone)
	Shl   = def("shl", Pop1Pop1, Push1, FlowNext, InlineNone)
	Shr   = def("shr", Pop1Pop1, Push1, FlowNext, InlineNone)
	Neg   = def("neg", Pop1, Push1, FlowNext, InlineNone)
	Not   = def("not", Pop1, Push1, FlowNext, InlineNone)

	ConvI4 = def("conv.i4", Pop1, Pushi, FlowNext, InlineNone)
	ConvI8 = def("conv.i8", Pop1, Pushi8, FlowNext, InlineNone)
	ConvR8 = def("conv.r8", Pop1, Pushr8, FlowNext, InlineNone)

	Callvirt  = def("callvirt", Varpop, Varpush, FlowCall, InlineMethod)
	Ldobj     = def("ldobj", Popi, Push1, FlowNext, InlineType)
	Ldstr     = def("ldstr", Pop0, Pushref, FlowNext, InlineString)
	Newobj    = def("newobj", Varpop, Pushref, FlowCall, InlineMethod)
	Castclass = def("castclass", Popref, Pushref, FlowNext, InlineType)
	Isinst    = def("isinst", Popref, Pushi, FlowNext, InlineType)
	Unbox     = def("unbox", Popref, Pushi, FlowNext, InlineType)
	Throw     = def("throw", Popref, Push0, FlowThrow, InlineNone)
	Ldfld     = def("ldfld", Popref, Push1, FlowNext, InlineField)
	Ldflda    = def("ldflda", Popref, Pushi, FlowNext, InlineField)
	Stfld     = def("stfld", PoprefPop1, Push0, FlowNext, InlineField)
	Ldsfld    = def("ldsfld", Pop0, Push1, FlowNext, InlineField)
	Ldsflda   = def("ldsflda", Pop0, Pushi, FlowNext, InlineField)
	Stsfld    = def("stsfld", Pop1, Push0, FlowNext, InlineField)
	Stobj     = def("stobj", PopiPop1, Push0, FlowNext, InlineType)
	Box       = def("box", Pop1, Pushref, FlowNext, InlineType)
	Newarr    = def("newarr", Popi, Pushref, FlowNext, InlineType)
	Ldlen     = def("ldlen", Popref, Pushi, FlowNext, InlineNone)
	Ldelema   = def("ldelema", PoprefPopi, Pushi, FlowNext, InlineType)
	LdelemI4  = def("ldelem.i4", PoprefPopi, Pushi, FlowNext, InlineNone)
	LdelemRef = def("ldelem.ref", PoprefPopi, Pushref, FlowNext, InlineNone)
	StelemI4  = def("stelem.i4", PoprefPopiPopi, Push0, FlowNext, InlineNone)
	StelemRef = def("stelem.ref", PoprefPopiPopref, Push0, FlowNext, InlineNone)
	Ldelem    = def("ldelem.any", PoprefPopi, Push1, FlowNext, InlineType)
	Stelem    = def("stelem.any", PoprefPopiPop1, Push0, FlowNext, InlineType)
	UnboxAny  = def("unbox.any", Popref, Push1, FlowNext, InlineType)
	Ldtoken   = def("ldtoken", Pop0, Pushi, FlowNext, InlineTok)

	Endfinally = def("endfinally", Pop0, Push0, FlowReturn, InlineNone)
	Leave      = def("leave", PopAll, Push0, FlowBranch, InlineBrTarget)
	LeaveS     = def("leave.s", PopAll, Push0, FlowBranch, InlineBrTarget)

	Ceq       = def("ceq", Pop1Pop1, Pushi, FlowNext, InlineNone)
	Cgt       = def("cgt", Pop1Pop1, Pushi, FlowNext, InlineNone)
	Clt       = def("clt", Pop1Pop1, Pushi, FlowNext, InlineNone)
	Ldftn     = def("ldftn", Pop0, Pushi, FlowNext, InlineMethod)
	Ldvirtftn = def("ldvirtftn", Popref, Pushi, FlowNext, InlineMethod)
	Ldarg     = def("ldarg", Pop0, Push1, FlowNext, InlineArg)
	Ldarga    = def("ldarga", Pop0, Pushi, FlowNext, InlineArg)
	Starg     = def("starg", Pop1, Push0, FlowNext, InlineArg)
	Ldloc     = def("ldloc", Pop0, Push1, FlowNext, InlineVar)
	Ldloca    = def("ldloca", Pop0, Pushi, FlowNext, InlineVar)
	Stloc     = def("stloc", Pop1, Push0, FlowNext, InlineVar)
	Initobj   = def("initobj", Popi, Push0, FlowNext, InlineType)
	Rethrow   = def("rethrow", Pop0, Push0, FlowThrow, InlineNone)
	Sizeof    = def("sizeof", Pop0, Pushi, FlowNext, InlineType)

	Constrained = def("constrained.", Pop0, Push0, FlowMeta, InlineType)
	Tail        = def("tail.", Pop0, Push0, FlowMeta, InlineNone)
	Volatile    = def("volatile.", Pop0, Push0, FlowMeta, InlineNone)
)
