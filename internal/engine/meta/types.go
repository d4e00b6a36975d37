package meta

import "strings"

// TypeKind is the closed set of type shapes in the graph.
type TypeKind uint8

const (
	KindReference TypeKind = iota
	KindDefinition
	KindArray
	KindByReference
	KindPointer
	KindGenericInstance
	KindGenericParameter
)

func (k TypeKind) String() string {
	switch k {
	case KindReference:
		return "reference"
	case KindDefinition:
		return "definition"
	case KindArray:
		return "array"
	case KindByReference:
		return "byref"
	case KindPointer:
		return "pointer"
	case KindGenericInstance:
		return "generic-instance"
	case KindGenericParameter:
		return "generic-parameter"
	default:
		return "unknown"
	}
}

type TypeAttributes uint32

const (
	TypePublic       TypeAttributes = 0x00000001
	TypeNestedPublic TypeAttributes = 0x00000002
	TypeVisibility   TypeAttributes = 0x00000007
	TypeInterface    TypeAttributes = 0x00000020
	TypeAbstract     TypeAttributes = 0x00000080
	TypeSealed       TypeAttributes = 0x00000100
	TypeSpecialName  TypeAttributes = 0x00000400
	TypeBeforeInit   TypeAttributes = 0x00100000
)

type GenericParameterAttributes uint16

// Type is a reference, definition or composite type. Composite kinds wrap
// ElementType; generic instances also carry GenericArguments.
type Type struct {
	Kind      TypeKind
	Namespace string
	Name      string

	// Scope is the assembly a reference resolves through. Nil for types
	// defined in Module.
	Scope         *AssemblyRef
	Module        *Module
	DeclaringType *Type
	IsValueType   bool

	ElementType      *Type
	Rank             int
	GenericArguments []*Type

	// Generic parameter data.
	Position          int
	Owner             any
	Constraints       []*Type
	GenericAttributes GenericParameterAttributes

	Attributes           TypeAttributes
	BaseType             *Type
	Interfaces           []*Type
	GenericParameters    []*Type
	NestedTypes          []*Type
	Fields               []*Field
	Methods              []*Method
	Properties           []*Property
	Events               []*Event
	CustomAttributes     []*CustomAttribute
	SecurityDeclarations []*SecurityDeclaration
}

func (*Type) isNode() {}

// NewTypeRef returns a reference to ns.name resolved through scope.
func NewTypeRef(ns, name string, scope *AssemblyRef, valueType bool) *Type {
	return &Type{Kind: KindReference, Namespace: ns, Name: name, Scope: scope, IsValueType: valueType}
}

// NewTypeDef returns an unattached definition.
func NewTypeDef(ns, name string, attrs TypeAttributes, base *Type) *Type {
	return &Type{Kind: KindDefinition, Namespace: ns, Name: name, Attributes: attrs, BaseType: base}
}

func ArrayOf(elem *Type, rank int) *Type {
	if rank < 1 {
		rank = 1
	}
	return &Type{Kind: KindArray, Name: elem.Name + arraySuffix(rank), Namespace: elem.Namespace, ElementType: elem, Rank: rank}
}

func ByRef(elem *Type) *Type {
	return &Type{Kind: KindByReference, Name: elem.Name + "&", Namespace: elem.Namespace, ElementType: elem}
}

func PointerTo(elem *Type) *Type {
	return &Type{Kind: KindPointer, Name: elem.Name + "*", Namespace: elem.Namespace, ElementType: elem}
}

func GenericInstanceOf(elem *Type, args ...*Type) *Type {
	return &Type{
		Kind:             KindGenericInstance,
		Name:             elem.Name,
		Namespace:        elem.Namespace,
		ElementType:      elem,
		GenericArguments: append([]*Type(nil), args...),
		IsValueType:      elem.IsValueType,
	}
}

func NewGenericParameter(name string, position int, owner any) *Type {
	return &Type{Kind: KindGenericParameter, Name: name, Position: position, Owner: owner}
}

func (t *Type) IsDefinition() bool { return t != nil && t.Kind == KindDefinition }

func (t *Type) IsArray() bool { return t != nil && t.Kind == KindArray }

func (t *Type) IsByReference() bool { return t != nil && t.Kind == KindByReference }

func (t *Type) IsGenericInstance() bool { return t != nil && t.Kind == KindGenericInstance }

func (t *Type) IsInterface() bool { return t != nil && t.Attributes&TypeInterface != 0 }

func (t *Type) IsPublic() bool {
	if t == nil {
		return false
	}
	vis := t.Attributes & TypeVisibility
	return vis == TypePublic || vis == TypeNestedPublic
}

func (t *Type) IsNested() bool { return t != nil && t.DeclaringType != nil }

// IsComposite reports whether t wraps another type.
func (t *Type) IsComposite() bool {
	if t == nil {
		return false
	}
	switch t.Kind {
	case KindArray, KindByReference, KindPointer, KindGenericInstance:
		return true
	}
	return false
}

// FullName renders the type the way metadata tools print it: Ns.Outer/Inner,
// T[], T[,], T&, T*, G`1<A>.
func (t *Type) FullName() string {
	if t == nil {
		return ""
	}
	switch t.Kind {
	case KindArray:
		return t.ElementType.FullName() + arraySuffix(t.Rank)
	case KindByReference:
		return t.ElementType.FullName() + "&"
	case KindPointer:
		return t.ElementType.FullName() + "*"
	case KindGenericInstance:
		args := make([]string, len(t.GenericArguments))
		for i, a := range t.GenericArguments {
			args[i] = a.FullName()
		}
		return t.ElementType.FullName() + "<" + strings.Join(args, ",") + ">"
	case KindGenericParameter:
		return t.Name
	}
	if t.DeclaringType != nil {
		return t.DeclaringType.FullName() + "/" + t.Name
	}
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + "." + t.Name
}

func arraySuffix(rank int) string {
	if rank <= 1 {
		return "[]"
	}
	return "[" + strings.Repeat(",", rank-1) + "]"
}

func (t *Type) String() string { return t.FullName() }

// ScopeName is the name of the assembly t resolves through.
func (t *Type) ScopeName() string {
	switch {
	case t == nil:
		return ""
	case t.Scope != nil:
		return t.Scope.Name
	case t.ElementType != nil:
		return t.ElementType.ScopeName()
	case t.DeclaringType != nil:
		return t.DeclaringType.ScopeName()
	case t.Module != nil && t.Module.Assembly != nil:
		return t.Module.Assembly.Name
	case t.Module != nil:
		return t.Module.Name
	}
	return ""
}

// ElementOf strips every composite wrapper and returns the innermost type.
func (t *Type) ElementOf() *Type {
	for t != nil && t.IsComposite() {
		t = t.ElementType
	}
	return t
}

// Is compares two types by FullName.
func (t *Type) Is(other *Type) bool {
	if t == nil || other == nil {
		return t == other
	}
	return t == other || t.FullName() == other.FullName()
}

// IsVoid reports whether t is System.Void.
func (t *Type) IsVoid() bool { return t != nil && t.FullName() == "System.Void" }

// Method returns the first method named name.
func (t *Type) Method(name string) *Method {
	if t == nil {
		return nil
	}
	for _, m := range t.Methods {
		if m.Name == name {
			return m
		}
	}
	return nil
}

func (t *Type) Field(name string) *Field {
	if t == nil {
		return nil
	}
	for _, f := range t.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func (t *Type) Property(name string) *Property {
	if t == nil {
		return nil
	}
	for _, p := range t.Properties {
		if p.Name == name {
			return p
		}
	}
	return nil
}

func (t *Type) NestedType(name string) *Type {
	if t == nil {
		return nil
	}
	for _, n := range t.NestedTypes {
		if n.Name == name {
			return n
		}
	}
	return nil
}

// AddMethod attaches m to t.
func (t *Type) AddMethod(m *Method) *Method {
	m.DeclaringType = t
	t.Methods = append(t.Methods, m)
	return m
}

func (t *Type) AddField(f *Field) *Field {
	f.DeclaringType = t
	t.Fields = append(t.Fields, f)
	return f
}

func (t *Type) AddProperty(p *Property) *Property {
	p.DeclaringType = t
	t.Properties = append(t.Properties, p)
	return p
}

func (t *Type) AddEvent(e *Event) *Event {
	e.DeclaringType = t
	t.Events = append(t.Events, e)
	return e
}

// AddNestedType attaches n as a nested type of t, inheriting t's module.
func (t *Type) AddNestedType(n *Type) *Type {
	n.DeclaringType = t
	n.Module = t.Module
	t.NestedTypes = append(t.NestedTypes, n)
	return n
}
