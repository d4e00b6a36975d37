package rewrite

import "modweave/internal/engine/meta"

// ReplaceMethod points every call to old in mod at replacement. Generic
// instantiations of old are rebuilt over replacement with the same
// arguments.
func ReplaceMethod(mod *meta.Module, old, replacement *meta.Method) error {
	plan := newPlan("method")
	for _, site := range meta.AllInstructions(mod) {
		ins := site.Instruction
		target := ins.MethodOperand()
		switch {
		case target == nil:
		case target == old:
			plan.add(location(site), old.FullName(), replacement.FullName(), func() error {
				ins.Operand = meta.MethodOperand(replacement)
				return nil
			})
		case target.Kind == meta.MethodGenericInstance && target.ElementMethod == old:
			instance := replacement.MakeGenericInstance(target.GenericArguments...)
			plan.add(location(site), target.FullName(), instance.FullName(), func() error {
				ins.Operand = meta.MethodOperand(instance)
				return nil
			})
		}
	}
	return plan.Apply()
}
