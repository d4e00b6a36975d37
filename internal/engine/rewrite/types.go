package rewrite

import (
	"fmt"
	"log/slog"
	"strings"

	"modweave/internal/core/errors"
	"modweave/internal/engine/emit"
	"modweave/internal/engine/meta"
	"modweave/internal/engine/meta/cil"
)

const (
	initialiseMethod     = "Initialise"
	createCollectionHook = "CreateCollection"
)

// ReplaceOptions tunes a type replacement.
type ReplaceOptions struct {
	// ConstructorReplacement is instantiated in place of an array that is
	// constructed straight into a static field. Required when old is an array
	// type with such sites.
	ConstructorReplacement *meta.Type
	// Strict requires every public instance method of the old type to have a
	// signature match on the replacement.
	Strict bool
}

// ReplaceType redirects every reference to old in mod onto replacement.
func ReplaceType(mod *meta.Module, old, replacement *meta.Type, opts ReplaceOptions) error {
	plan, err := PlanTypeReplacement(mod, old, replacement, opts)
	if err != nil {
		return err
	}
	return plan.Apply()
}

// PlanTypeReplacement walks mod without changing it and returns the edits
// ReplaceType applies, in this order: instruction operands, array
// constructions, locals, returns, parameters, fields, properties and generic
// base type arguments.
func PlanTypeReplacement(mod *meta.Module, old, replacement *meta.Type, opts ReplaceOptions) (*Plan, error) {
	if opts.Strict {
		if err := checkSurface(old, replacement); err != nil {
			return nil, err
		}
	}

	p := &typePlanner{
		mod:         mod,
		old:         old,
		replacement: replacement,
		opts:        opts,
		plan:        newPlan("type"),
		generic:     make(map[*meta.Type]bool),
		ctorSites:   make(map[*meta.Method]map[*meta.Instruction]bool),
	}
	steps := []func() error{
		p.operands,
		p.arrayConstructors,
		p.locals,
		p.returns,
		p.parameters,
		p.fields,
		p.properties,
		p.baseTypes,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, errors.AddContext(err, errors.CtxOperation, "replace type "+old.FullName())
		}
	}
	return p.plan, nil
}

type typePlanner struct {
	mod         *meta.Module
	old         *meta.Type
	replacement *meta.Type
	opts        ReplaceOptions
	plan        *Plan

	// generic instances already scheduled, since operands share them.
	generic map[*meta.Type]bool

	ctorMethods []*meta.Method
	ctorSites   map[*meta.Method]map[*meta.Instruction]bool
}

func (p *typePlanner) operands() error {
	for _, site := range meta.AllInstructions(p.mod) {
		target := site.Instruction.MethodOperand()
		if target == nil || target.DeclaringType == nil {
			continue
		}
		declaring := target.DeclaringType
		switch {
		case target.IsConstructor():
			if site.Instruction.Is(cil.Newobj) && p.old.IsArray() && declaring.Is(p.old) {
				p.collectArrayConstructor(site)
			}
		case declaring.IsArray() && declaring.Is(p.old):
			if err := p.arrayMethod(site, target); err != nil {
				return err
			}
		case target.IsDefinition() && !target.IsStatic() && declaring.Is(p.old) && p.followsReplacement(site):
			if err := p.instanceMethod(site, target); err != nil {
				return err
			}
		}
		if declaring.IsGenericInstance() {
			p.genericArguments(site, declaring)
		}
	}
	return nil
}

// followsReplacement reports whether a call in site.Method moves to the
// replacement. Instance code of the old type keeps calling its own methods
// unless the receiver came in as the first argument.
func (p *typePlanner) followsReplacement(site meta.Site) bool {
	m := site.Method
	if m.IsStatic() || !m.DeclaringType.Is(p.old) {
		return true
	}
	return m.Body.Previous(site.Instruction).Is(cil.Ldarg1)
}

// arrayMethod maps Get/Set/Address on the array pseudo type by name and
// arity, falling back to the indexer accessors (get_Item, set_Item).
func (p *typePlanner) arrayMethod(site meta.Site, target *meta.Method) error {
	matches := methodsByArity(p.replacement, target.Name, len(target.Parameters))
	if len(matches) == 0 {
		matches = methodsByArity(p.replacement, strings.ToLower(target.Name)+"_Item", len(target.Parameters))
	}
	repl, err := p.single(matches, target)
	if err != nil {
		return err
	}
	p.retarget(site, repl)
	return nil
}

func (p *typePlanner) instanceMethod(site meta.Site, target *meta.Method) error {
	repl, err := p.single(methodsByArity(p.replacement, target.Name, len(target.Parameters)), target)
	if err != nil {
		return err
	}
	p.retarget(site, repl)
	return nil
}

func (p *typePlanner) single(matches []*meta.Method, target *meta.Method) (*meta.Method, error) {
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return nil, errors.Newf(errors.CodeNotFound, "method %s is not found on %s", target.Name, p.replacement.FullName()).
			WithContext(errors.CtxSymbol, target.FullName()).
			WithContext(errors.CtxAssembly, p.replacement.ScopeName())
	default:
		return nil, errors.Newf(errors.CodeAmbiguous, "too many methods named %s found on %s", target.Name, p.replacement.FullName()).
			WithContext(errors.CtxSymbol, target.FullName()).
			WithContext(errors.CtxAssembly, p.replacement.ScopeName())
	}
}

func (p *typePlanner) retarget(site meta.Site, target *meta.Method) {
	ins := site.Instruction
	p.plan.add(location(site), ins.MethodOperand().FullName(), target.FullName(), func() error {
		ins.Operand = meta.MethodOperand(target)
		if ins.Is(cil.Call) && (target.IsVirtual() || target.DeclaringType.IsInterface()) {
			ins.OpCode = cil.Callvirt
		}
		return nil
	})
}

func (p *typePlanner) genericArguments(site meta.Site, instance *meta.Type) {
	if p.generic[instance] {
		return
	}
	p.generic[instance] = true
	for i, arg := range instance.GenericArguments {
		if !arg.Is(p.old) {
			continue
		}
		p.plan.add(location(site), instance.FullName(), p.replacement.FullName(), func() error {
			instance.GenericArguments[i] = p.replacement
			return nil
		})
	}
}

func (p *typePlanner) collectArrayConstructor(site meta.Site) {
	if !site.Method.Body.Next(site.Instruction).Is(cil.Stsfld) {
		slog.Warn("array construction is not stored to a static field, left in place",
			"symbol", location(site), "type", p.old.FullName())
		return
	}
	sites, ok := p.ctorSites[site.Method]
	if !ok {
		sites = make(map[*meta.Instruction]bool)
		p.ctorSites[site.Method] = sites
		p.ctorMethods = append(p.ctorMethods, site.Method)
	}
	sites[site.Instruction] = true
}

// arrayConstructors plans the rewrite of
//
//	<args>; newobj T[]::.ctor; stsfld F
//
// into a CreateCollection hook that assigns F, followed by
//
//	ldsfld F; <args>; callvirt Initialise
func (p *typePlanner) arrayConstructors() error {
	if len(p.ctorMethods) == 0 {
		return nil
	}
	init, err := p.initialise()
	if err != nil {
		return err
	}
	ctor, err := p.collectionConstructor()
	if err != nil {
		return err
	}

	for _, m := range p.ctorMethods {
		sites := p.ctorSites[m]
		var evalErr error
		NewStackCounter(m.Body.Instructions).Eval(func(ins *meta.Instruction, depth int) {
			if evalErr == nil && sites[ins] {
				evalErr = p.arrayConstructor(m, ins, depth, init, ctor)
			}
		})
		if evalErr != nil {
			return evalErr
		}
	}
	return nil
}

func (p *typePlanner) initialise() (*meta.Method, error) {
	var found []*meta.Method
	for _, m := range p.replacement.Methods {
		if m.Name == initialiseMethod {
			found = append(found, m)
		}
	}
	switch len(found) {
	case 1:
		return found[0], nil
	case 0:
		return nil, errors.Newf(errors.CodeNotFound, "method %s is not found on %s", initialiseMethod, p.replacement.FullName()).
			WithContext(errors.CtxSymbol, p.replacement.FullName())
	default:
		return nil, errors.Newf(errors.CodeAmbiguous, "too many methods named %s found on %s", initialiseMethod, p.replacement.FullName()).
			WithContext(errors.CtxSymbol, p.replacement.FullName())
	}
}

func (p *typePlanner) collectionConstructor() (*meta.Method, error) {
	cr := p.opts.ConstructorReplacement
	if cr == nil {
		return nil, errors.Newf(errors.CodeValidationError, "a constructor replacement is required while replacing array type %s", p.old.FullName()).
			WithContext(errors.CtxSymbol, p.old.FullName())
	}
	for _, m := range cr.Methods {
		if m.Name == ".ctor" && m.HasThis && len(m.Parameters) == 0 {
			return m, nil
		}
	}
	return nil, errors.Newf(errors.CodeNotFound, "%s has no parameterless constructor", cr.FullName()).
		WithContext(errors.CtxSymbol, cr.FullName())
}

func (p *typePlanner) arrayConstructor(m *meta.Method, newobj *meta.Instruction, depth int, init, ctor *meta.Method) error {
	body := m.Body
	store := body.Next(newobj)
	field := store.FieldOperand()
	first, ok := firstArgument(body, newobj, depth)
	if !ok || field == nil {
		return errors.Newf(errors.CodeNotSupported, "cannot locate the arguments of %s in %s", newobj, m.Name).
			WithContext(errors.CtxSymbol, m.FullName())
	}
	if entersRange(body, first, newobj) {
		return errors.Newf(errors.CodeNotSupported, "control flow enters the arguments of %s in %s", newobj, m.Name).
			WithContext(errors.CtxSymbol, m.FullName())
	}

	p.plan.add(fmt.Sprintf("%s@%d", m.FullName(), body.IndexOf(newobj)), newobj.MethodOperand().FullName(), init.FullName(), func() error {
		frag, err := emit.GenericHook(field.DeclaringType, createCollectionHook, nil, ctor.DeclaringType, emit.HookPost)
		if err != nil {
			return err
		}
		if err := assignCollection(frag, field, ctor); err != nil {
			return err
		}
		if err := frag.MergeInto(m, first); err != nil {
			return err
		}
		ReplaceTransfer(m, first, frag.Instructions[0])

		if err := body.InsertBefore(first, meta.NewInstruction(cil.Ldsfld, meta.FieldOperand(field))); err != nil {
			return err
		}
		store.OpCode = cil.Callvirt
		store.Operand = meta.MethodOperand(init)
		ReplaceTransfer(m, newobj, store)
		return body.Remove(newobj)
	})
	return nil
}

// assignCollection makes both paths of a CreateCollection hook store into
// field: the handler's result, or a default instance when no handler is set.
func assignCollection(frag *emit.MergableMethod, field *meta.Field, ctor *meta.Method) error {
	invoke := -1
	skip := -1
	for i, ins := range frag.Instructions {
		switch {
		case ins.Is(cil.BrS) && skip < 0:
			skip = i
		case ins.Is(cil.Callvirt):
			invoke = i
		}
	}
	if invoke < 0 || skip < 0 || invoke+1 >= len(frag.Instructions) || !frag.Instructions[invoke+1].Is(cil.Pop) {
		return errors.Newf(errors.CodeInternal, "unexpected %s shape: %s", createCollectionHook, frag)
	}

	result := frag.Instructions[invoke+1]
	result.OpCode = cil.Stsfld
	result.Operand = meta.FieldOperand(field)

	fallback := []*meta.Instruction{
		meta.NewInstruction(cil.Newobj, meta.MethodOperand(ctor)),
		meta.NewInstruction(cil.Stsfld, meta.FieldOperand(field)),
	}
	out := make([]*meta.Instruction, 0, len(frag.Instructions)+len(fallback))
	out = append(out, frag.Instructions[:skip]...)
	out = append(out, fallback...)
	out = append(out, frag.Instructions[skip:]...)
	frag.Instructions = out
	return nil
}

func (p *typePlanner) locals() error {
	for _, m := range meta.AllMethods(p.mod) {
		if m.Body == nil {
			continue
		}
		for i, v := range m.Body.Variables {
			if v.VariableType.Is(p.old) {
				p.plan.add(fmt.Sprintf("%s local %d", m.FullName(), i), v.VariableType.FullName(), p.replacement.FullName(), func() error {
					v.VariableType = p.replacement
					return nil
				})
			}
		}
	}
	return nil
}

func (p *typePlanner) returns() error {
	for _, m := range meta.AllMethods(p.mod) {
		if m.ReturnType.Is(p.old) {
			p.plan.add(m.FullName()+" return", m.ReturnType.FullName(), p.replacement.FullName(), func() error {
				m.ReturnType = p.replacement
				return nil
			})
		}
	}
	return nil
}

func (p *typePlanner) parameters() error {
	for _, m := range meta.AllMethods(p.mod) {
		for _, param := range m.Parameters {
			if param.ParameterType.Is(p.old) {
				p.plan.add(m.FullName()+" parameter "+param.Name, param.ParameterType.FullName(), p.replacement.FullName(), func() error {
					param.ParameterType = p.replacement
					return nil
				})
			}
		}
	}
	return nil
}

func (p *typePlanner) fields() error {
	for _, t := range meta.AllTypes(p.mod) {
		for _, f := range t.Fields {
			if nt, ok := p.substitute(f.FieldType); ok {
				p.plan.add(f.FullName(), f.FieldType.FullName(), nt.FullName(), func() error {
					f.FieldType = nt
					return nil
				})
			}
		}
	}
	return nil
}

func (p *typePlanner) properties() error {
	for _, t := range meta.AllTypes(p.mod) {
		for _, prop := range t.Properties {
			if nt, ok := p.substitute(prop.PropertyType); ok {
				p.plan.add(prop.FullName(), prop.PropertyType.FullName(), nt.FullName(), func() error {
					prop.PropertyType = nt
					return nil
				})
			}
		}
	}
	return nil
}

// substitute maps t itself, or an array of t keeping its rank.
func (p *typePlanner) substitute(t *meta.Type) (*meta.Type, bool) {
	switch {
	case t.Is(p.old):
		return p.replacement, true
	case t.IsArray() && t.ElementType.Is(p.old):
		return meta.ArrayOf(p.replacement, t.Rank), true
	}
	return nil, false
}

func (p *typePlanner) baseTypes() error {
	for _, t := range meta.AllTypes(p.mod) {
		base := t.BaseType
		if !base.IsGenericInstance() {
			continue
		}
		for i, arg := range base.GenericArguments {
			if arg.Is(p.old) {
				p.plan.add(t.FullName()+" base", base.FullName(), p.replacement.FullName(), func() error {
					base.GenericArguments[i] = p.replacement
					return nil
				})
			}
		}
	}
	return nil
}

func methodsByArity(t *meta.Type, name string, arity int) []*meta.Method {
	var out []*meta.Method
	for _, m := range t.Methods {
		if m.Name == name && len(m.Parameters) == arity {
			out = append(out, m)
		}
	}
	return out
}

// checkSurface fails unless replacement can stand in for every public
// instance method of old.
func checkSurface(old, replacement *meta.Type) error {
	for _, m := range old.Methods {
		if m.IsConstructor() || m.IsStatic() || !m.IsPublic() {
			continue
		}
		found := false
		for _, r := range replacement.Methods {
			if meta.SignatureMatches(m, r) {
				found = true
				break
			}
		}
		if !found {
			return errors.Newf(errors.CodeInvariantViolation, "%s has no method matching %s", replacement.FullName(), m.FullName()).
				WithContext(errors.CtxSymbol, m.FullName())
		}
	}
	return nil
}

func location(site meta.Site) string {
	return fmt.Sprintf("%s@%d", site.Method.FullName(), site.Method.Body.IndexOf(site.Instruction))
}
