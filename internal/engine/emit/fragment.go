// Package emit builds IL fragments and synthetic types: hook delegates, hook
// call sequences, call-throughs, auto-properties and extracted interfaces.
package emit

import (
	"fmt"

	"modweave/internal/core/errors"
	"modweave/internal/engine/meta"
)

// MergableMethod is a detached IL fragment with the locals it needs. Branches
// inside the fragment already point at their final targets.
type MergableMethod struct {
	Instructions []*meta.Instruction
	Variables    []*meta.Variable
}

// MergeInto adds the fragment's locals to method and splices its
// instructions in front of before.
func (f *MergableMethod) MergeInto(method *meta.Method, before *meta.Instruction) error {
	if method.Body == nil {
		return errors.Newf(errors.CodeInvariantViolation, "merge into %s: method has no body", method.Name)
	}
	if method.Body.IndexOf(before) < 0 {
		return errors.Newf(errors.CodeInvariantViolation, "merge into %s: anchor %s is not in the body", method.Name, before).
			WithContext(errors.CtxSymbol, method.FullName())
	}
	for _, v := range f.Variables {
		method.Body.AddVariable(v)
	}
	return method.Body.InsertBefore(before, f.Instructions...)
}

// MergeAt merges the fragment in front of the instruction at index.
func (f *MergableMethod) MergeAt(method *meta.Method, index int) error {
	if method.Body == nil || index < 0 || index >= len(method.Body.Instructions) {
		return errors.Newf(errors.CodeInvariantViolation, "merge into %s: index %d out of range", method.Name, index)
	}
	return f.MergeInto(method, method.Body.Instructions[index])
}

// Find returns the first fragment instruction accepted by match, or nil.
func (f *MergableMethod) Find(match func(*meta.Instruction) bool) *meta.Instruction {
	for _, ins := range f.Instructions {
		if match(ins) {
			return ins
		}
	}
	return nil
}

// Last returns the final instruction of the fragment.
func (f *MergableMethod) Last() *meta.Instruction {
	if len(f.Instructions) == 0 {
		return nil
	}
	return f.Instructions[len(f.Instructions)-1]
}

func (f *MergableMethod) String() string {
	return fmt.Sprintf("fragment(%d instructions, %d locals)", len(f.Instructions), len(f.Variables))
}
