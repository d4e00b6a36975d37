package emit

import (
	"modweave/internal/core/errors"
	"modweave/internal/engine/meta"
)

const (
	interfaceMemberAttrs = meta.MethodPublic | meta.MethodVirtual | meta.MethodHideBySig | meta.MethodNewSlot | meta.MethodAbstract
	interfaceTypeAttrs   = meta.TypePublic | meta.TypeInterface | meta.TypeAbstract
)

// Interface extracts I<Name> from the public instance surface of from: every
// public instance property and every public instance method that is neither
// a constructor nor an accessor. The interface is added to from's module.
func Interface(from *meta.Type) (*meta.Type, error) {
	mod := from.Module
	if mod == nil {
		return nil, errors.Newf(errors.CodeInvariantViolation, "type %s is not attached to a module", from.FullName())
	}
	name := "I" + from.Name
	if existing := mod.Type(joinName(from.Namespace, name)); existing != nil {
		return nil, errors.Newf(errors.CodeInvariantViolation, "interface %s already exists", existing.FullName())
	}

	iface := mod.AddType(meta.NewTypeDef(from.Namespace, name, interfaceTypeAttrs, nil))

	accessors := make(map[*meta.Method]bool)
	for _, p := range from.Properties {
		get := publicInstance(p.GetMethod)
		set := publicInstance(p.SetMethod)
		if p.GetMethod != nil {
			accessors[p.GetMethod] = true
		}
		if p.SetMethod != nil {
			accessors[p.SetMethod] = true
		}
		if !get && !set {
			continue
		}

		attrs := interfaceMemberAttrs | meta.MethodSpecialName
		pe := &PropertyEmitter{Name: p.Name, PropertyType: p.PropertyType, DeclaringType: iface}
		if p.GetMethod != nil {
			pe.GetterAttributes = &attrs
		}
		if p.SetMethod != nil {
			pe.SetterAttributes = &attrs
		}
		if _, err := pe.Emit(); err != nil {
			return nil, err
		}
	}

	for _, m := range from.Methods {
		if !publicInstance(m) || m.IsConstructor() || accessors[m] {
			continue
		}
		clone := meta.CloneSignature(m)
		clone.Attributes = interfaceMemberAttrs
		clone.Body = nil
		clone.Overrides = nil
		iface.AddMethod(clone)
	}
	return iface, nil
}

func publicInstance(m *meta.Method) bool {
	return m != nil && m.IsPublic() && !m.IsStatic()
}

func joinName(ns, name string) string {
	if ns == "" {
		return name
	}
	return ns + "." + name
}
