// Package meta is the in-memory metadata graph the rewriting engine mutates:
// assemblies, modules, types, members and method bodies.
package meta

import "fmt"

// Node is the closed set of graph entities a query can expand or return.
type Node interface {
	isNode()
}

// AssemblyRef is an entry in a module's import table.
type AssemblyRef struct {
	Name           string
	Version        string
	Culture        string
	PublicKeyToken string
}

func (r *AssemblyRef) FullName() string {
	return assemblyFullName(r.Name, r.Version, r.Culture, r.PublicKeyToken)
}

func assemblyFullName(name, version, culture, token string) string {
	if version == "" {
		version = "0.0.0.0"
	}
	if culture == "" {
		culture = "neutral"
	}
	if token == "" {
		token = "null"
	}
	return fmt.Sprintf("%s, Version=%s, Culture=%s, PublicKeyToken=%s", name, version, culture, token)
}

type Assembly struct {
	Name                 string
	Version              string
	Culture              string
	PublicKeyToken       string
	Modules              []*Module
	CustomAttributes     []*CustomAttribute
	SecurityDeclarations []*SecurityDeclaration
}

func (*Assembly) isNode() {}

func (a *Assembly) FullName() string {
	return assemblyFullName(a.Name, a.Version, a.Culture, a.PublicKeyToken)
}

// MainModule returns the first module, or nil.
func (a *Assembly) MainModule() *Module {
	if a == nil || len(a.Modules) == 0 {
		return nil
	}
	return a.Modules[0]
}

// AsRef builds an import-table entry pointing at a.
func (a *Assembly) AsRef() *AssemblyRef {
	return &AssemblyRef{Name: a.Name, Version: a.Version, Culture: a.Culture, PublicKeyToken: a.PublicKeyToken}
}

// Module owns every type, member and body reachable from Types.
type Module struct {
	Name             string
	Assembly         *Assembly
	Types            []*Type
	AssemblyRefs     []*AssemblyRef
	CustomAttributes []*CustomAttribute
	TypeSystem       *TypeSystem
}

func (*Module) isNode() {}

// NewAssembly creates an assembly with one module whose core library
// references resolve through corlib.
func NewAssembly(name, version string, corlib *AssemblyRef) *Assembly {
	asm := &Assembly{Name: name, Version: version}
	mod := &Module{Name: name + ".dll", Assembly: asm}
	if corlib != nil {
		mod.AssemblyRefs = append(mod.AssemblyRefs, corlib)
	}
	mod.TypeSystem = NewTypeSystem(corlib)
	asm.Modules = []*Module{mod}
	return asm
}

// AddType attaches a top-level type definition.
func (m *Module) AddType(t *Type) *Type {
	t.Module = m
	t.DeclaringType = nil
	for _, n := range t.NestedTypes {
		setModule(n, m)
	}
	m.Types = append(m.Types, t)
	return t
}

func setModule(t *Type, m *Module) {
	t.Module = m
	for _, n := range t.NestedTypes {
		setModule(n, m)
	}
}

// Type finds a type definition by full name, descending into nested types.
func (m *Module) Type(fullName string) *Type {
	for _, t := range AllTypes(m) {
		if t.FullName() == fullName {
			return t
		}
	}
	return nil
}

// AssemblyRef returns the import entry named name with the highest version.
func (m *Module) AssemblyRef(name string) *AssemblyRef {
	var best *AssemblyRef
	for _, r := range m.AssemblyRefs {
		if r.Name != name {
			continue
		}
		if best == nil || CompareVersions(r.Version, best.Version) > 0 {
			best = r
		}
	}
	return best
}

// AddAssemblyRef appends r unless an identical entry exists.
func (m *Module) AddAssemblyRef(r *AssemblyRef) *AssemblyRef {
	for _, existing := range m.AssemblyRefs {
		if existing == r || existing.FullName() == r.FullName() {
			return existing
		}
	}
	m.AssemblyRefs = append(m.AssemblyRefs, r)
	return r
}

// RemoveAssemblyRefs drops every import entry for which drop returns true.
func (m *Module) RemoveAssemblyRefs(drop func(*AssemblyRef) bool) int {
	kept := m.AssemblyRefs[:0]
	removed := 0
	for _, r := range m.AssemblyRefs {
		if drop(r) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	m.AssemblyRefs = kept
	return removed
}

// TypeSystem holds the well-known core library references of a module.
type TypeSystem struct {
	CoreLibrary *AssemblyRef
	Void        *Type
	Object      *Type
	Boolean     *Type
	Int32       *Type
	Int64       *Type
	Double      *Type
	String      *Type
	IntPtr      *Type

	MulticastDelegate *Type
	AsyncCallback     *Type
	IAsyncResult      *Type
	CompilerGenerated *Type
}

func NewTypeSystem(corlib *AssemblyRef) *TypeSystem {
	ref := func(name string, valueType bool) *Type {
		return NewTypeRef("System", name, corlib, valueType)
	}
	return &TypeSystem{
		CoreLibrary:       corlib,
		Void:              ref("Void", true),
		Object:            ref("Object", false),
		Boolean:           ref("Boolean", true),
		Int32:             ref("Int32", true),
		Int64:             ref("Int64", true),
		Double:            ref("Double", true),
		String:            ref("String", false),
		IntPtr:            ref("IntPtr", true),
		MulticastDelegate: ref("MulticastDelegate", false),
		AsyncCallback:     ref("AsyncCallback", false),
		IAsyncResult:      ref("IAsyncResult", false),
		CompilerGenerated: NewTypeRef("System.Runtime.CompilerServices", "CompilerGeneratedAttribute", corlib, false),
	}
}

// Types returns every type the system references, for relinking.
func (ts *TypeSystem) Types() []*Type {
	return []*Type{
		ts.Void, ts.Object, ts.Boolean, ts.Int32, ts.Int64, ts.Double, ts.String, ts.IntPtr,
		ts.MulticastDelegate, ts.AsyncCallback, ts.IAsyncResult, ts.CompilerGenerated,
	}
}

// CustomAttributeArgument is a typed constructor or named argument value.
// Value may itself be a *Type for typeof arguments.
type CustomAttributeArgument struct {
	Type  *Type
	Value any
}

type CustomAttributeNamedArgument struct {
	Name     string
	Argument CustomAttributeArgument
}

type CustomAttribute struct {
	Constructor          *Method
	ConstructorArguments []CustomAttributeArgument
	Fields               []CustomAttributeNamedArgument
	Properties           []CustomAttributeNamedArgument
}

func (a *CustomAttribute) AttributeType() *Type {
	if a == nil || a.Constructor == nil {
		return nil
	}
	return a.Constructor.DeclaringType
}

type SecurityAttribute struct {
	AttributeType *Type
	Fields        []CustomAttributeNamedArgument
	Properties    []CustomAttributeNamedArgument
}

type SecurityDeclaration struct {
	Action     int
	Attributes []*SecurityAttribute
}
