package meta

import "strings"

type MethodAttributes uint16

const (
	MethodPrivate       MethodAttributes = 0x0001
	MethodAssembly      MethodAttributes = 0x0003
	MethodFamily        MethodAttributes = 0x0004
	MethodPublic        MethodAttributes = 0x0006
	MethodAccessMask    MethodAttributes = 0x0007
	MethodStatic        MethodAttributes = 0x0010
	MethodFinal         MethodAttributes = 0x0020
	MethodVirtual       MethodAttributes = 0x0040
	MethodHideBySig     MethodAttributes = 0x0080
	MethodNewSlot       MethodAttributes = 0x0100
	MethodAbstract      MethodAttributes = 0x0400
	MethodSpecialName   MethodAttributes = 0x0800
	MethodRTSpecialName MethodAttributes = 0x1000
)

type MethodImplAttributes uint16

const (
	ImplIL      MethodImplAttributes = 0x0000
	ImplRuntime MethodImplAttributes = 0x0003
)

// MethodKind separates references, definitions and generic instantiations.
type MethodKind uint8

const (
	MethodReference MethodKind = iota
	MethodDefinition
	MethodGenericInstance
)

type Method struct {
	Kind           MethodKind
	Name           string
	DeclaringType  *Type
	ReturnType     *Type
	Parameters     []*Parameter
	HasThis        bool
	ExplicitThis   bool
	Attributes     MethodAttributes
	ImplAttributes MethodImplAttributes

	GenericParameters []*Type
	// ElementMethod and GenericArguments are set on generic instantiations.
	ElementMethod    *Method
	GenericArguments []*Type

	Overrides            []*Method
	Body                 *Body
	CustomAttributes     []*CustomAttribute
	SecurityDeclarations []*SecurityDeclaration
}

func (*Method) isNode() {}

// NewMethodDef creates a method definition with an empty body.
func NewMethodDef(name string, attrs MethodAttributes, ret *Type, params ...*Parameter) *Method {
	m := &Method{
		Kind:       MethodDefinition,
		Name:       name,
		ReturnType: ret,
		Attributes: attrs,
		HasThis:    attrs&MethodStatic == 0,
	}
	for _, p := range params {
		m.AddParameter(p)
	}
	m.Body = &Body{Method: m}
	return m
}

// NewMethodRef creates a lightweight reference to a method on declaring.
func NewMethodRef(name string, declaring, ret *Type, hasThis bool, params ...*Type) *Method {
	m := &Method{Kind: MethodReference, Name: name, DeclaringType: declaring, ReturnType: ret, HasThis: hasThis}
	for _, p := range params {
		m.AddParameter(NewParameter("", p))
	}
	return m
}

// MakeGenericInstance instantiates m with args.
func (m *Method) MakeGenericInstance(args ...*Type) *Method {
	return &Method{
		Kind:             MethodGenericInstance,
		Name:             m.Name,
		DeclaringType:    m.DeclaringType,
		ReturnType:       m.ReturnType,
		Parameters:       m.Parameters,
		HasThis:          m.HasThis,
		ExplicitThis:     m.ExplicitThis,
		ElementMethod:    m,
		GenericArguments: append([]*Type(nil), args...),
	}
}

func (m *Method) AddParameter(p *Parameter) *Parameter {
	p.Method = m
	m.Parameters = append(m.Parameters, p)
	return p
}

func (m *Method) IsDefinition() bool { return m != nil && m.Kind == MethodDefinition }

func (m *Method) IsStatic() bool { return !m.HasThis }

func (m *Method) IsVirtual() bool { return m.Attributes&MethodVirtual != 0 }

func (m *Method) IsConstructor() bool { return m.Name == ".ctor" || m.Name == ".cctor" }

func (m *Method) IsPublic() bool { return m.Attributes&MethodAccessMask == MethodPublic }

func (m *Method) HasBody() bool { return m.Body != nil && len(m.Body.Instructions) > 0 }

// Resolved returns the element method for generic instances, else m.
func (m *Method) Resolved() *Method {
	for m != nil && m.Kind == MethodGenericInstance && m.ElementMethod != nil {
		m = m.ElementMethod
	}
	return m
}

// FullName renders "Ret Decl::Name(P1,P2)".
func (m *Method) FullName() string {
	var b strings.Builder
	b.WriteString(m.ReturnType.FullName())
	b.WriteByte(' ')
	if m.DeclaringType != nil {
		b.WriteString(m.DeclaringType.FullName())
		b.WriteString("::")
	}
	b.WriteString(m.Name)
	if m.Kind == MethodGenericInstance {
		args := make([]string, len(m.GenericArguments))
		for i, a := range m.GenericArguments {
			args[i] = a.FullName()
		}
		b.WriteString("<" + strings.Join(args, ",") + ">")
	}
	b.WriteString(m.ParameterList())
	return b.String()
}

// ParameterList renders "(P1,P2)" from parameter type full names.
func (m *Method) ParameterList() string {
	parts := make([]string, len(m.Parameters))
	for i, p := range m.Parameters {
		parts[i] = p.ParameterType.FullName()
	}
	return "(" + strings.Join(parts, ",") + ")"
}

func (m *Method) String() string { return m.FullName() }

type ParameterAttributes uint16

const (
	ParamIn       ParameterAttributes = 0x0001
	ParamOut      ParameterAttributes = 0x0002
	ParamOptional ParameterAttributes = 0x0010
	ParamDefault  ParameterAttributes = 0x1000
)

type Parameter struct {
	Name             string
	ParameterType    *Type
	Attributes       ParameterAttributes
	Constant         any
	HasConstant      bool
	Method           *Method
	CustomAttributes []*CustomAttribute
}

func (*Parameter) isNode() {}

func NewParameter(name string, t *Type) *Parameter {
	return &Parameter{Name: name, ParameterType: t}
}

// Index is the zero-based position of p in its method, -1 when detached.
func (p *Parameter) Index() int {
	if p.Method == nil {
		return -1
	}
	for i, q := range p.Method.Parameters {
		if q == p {
			return i
		}
	}
	return -1
}

// Sequence is the argument slot of p, accounting for the implicit this.
func (p *Parameter) Sequence() int {
	i := p.Index()
	if i >= 0 && p.Method.HasThis {
		i++
	}
	return i
}

type FieldAttributes uint16

const (
	FieldPrivate    FieldAttributes = 0x0001
	FieldAssembly   FieldAttributes = 0x0003
	FieldFamily     FieldAttributes = 0x0004
	FieldPublic     FieldAttributes = 0x0006
	FieldAccessMask FieldAttributes = 0x0007
	FieldStatic     FieldAttributes = 0x0010
	FieldInitOnly   FieldAttributes = 0x0020
	FieldLiteral    FieldAttributes = 0x0040
)

type Field struct {
	Name             string
	FieldType        *Type
	DeclaringType    *Type
	Attributes       FieldAttributes
	Constant         any
	CustomAttributes []*CustomAttribute
}

func (*Field) isNode() {}

func NewField(name string, attrs FieldAttributes, t *Type) *Field {
	return &Field{Name: name, Attributes: attrs, FieldType: t}
}

func (f *Field) IsStatic() bool { return f.Attributes&FieldStatic != 0 }

func (f *Field) IsPublic() bool { return f.Attributes&FieldAccessMask == FieldPublic }

// FullName renders "Type Decl::Name".
func (f *Field) FullName() string {
	return f.FieldType.FullName() + " " + f.DeclaringType.FullName() + "::" + f.Name
}

func (f *Field) String() string { return f.FullName() }

type Property struct {
	Name             string
	PropertyType     *Type
	DeclaringType    *Type
	GetMethod        *Method
	SetMethod        *Method
	CustomAttributes []*CustomAttribute
}

func (*Property) isNode() {}

func (p *Property) FullName() string {
	return p.PropertyType.FullName() + " " + p.DeclaringType.FullName() + "::" + p.Name + "()"
}

type Event struct {
	Name             string
	EventType        *Type
	DeclaringType    *Type
	AddMethod        *Method
	RemoveMethod     *Method
	CustomAttributes []*CustomAttribute
}

func (*Event) isNode() {}

type Variable struct {
	VariableType *Type
	Name         string
}

func NewVariable(t *Type) *Variable { return &Variable{VariableType: t} }
