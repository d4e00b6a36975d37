package meta

// CloneSignature copies m's signature into a new definition with an empty
// body. Attributes, overrides and generic parameters are shared, not copied.
func CloneSignature(m *Method) *Method {
	c := &Method{
		Kind:           MethodDefinition,
		Name:           m.Name,
		ReturnType:     m.ReturnType,
		HasThis:        m.HasThis,
		ExplicitThis:   m.ExplicitThis,
		Attributes:     m.Attributes,
		ImplAttributes: m.ImplAttributes,
	}
	for _, p := range m.Parameters {
		c.AddParameter(&Parameter{
			Name:          p.Name,
			ParameterType: p.ParameterType,
			Attributes:    p.Attributes,
			Constant:      p.Constant,
			HasConstant:   p.HasConstant,
		})
	}
	c.Overrides = append(c.Overrides, m.Overrides...)
	c.GenericParameters = append(c.GenericParameters, m.GenericParameters...)
	c.CustomAttributes = append(c.CustomAttributes, m.CustomAttributes...)
	c.SecurityDeclarations = append(c.SecurityDeclarations, m.SecurityDeclarations...)
	c.Body = &Body{Method: c, InitLocals: m.Body != nil && m.Body.InitLocals}
	return c
}

// ParametersMatch compares parameter type names pairwise.
func ParametersMatch(a, b []*Parameter) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].ParameterType.Is(b[i].ParameterType) {
			return false
		}
	}
	return true
}

// SignatureMatches compares name, static-ness, return type and parameters.
func SignatureMatches(a, b *Method) bool {
	return a.Name == b.Name &&
		a.HasThis == b.HasThis &&
		a.ReturnType.Is(b.ReturnType) &&
		ParametersMatch(a.Parameters, b.Parameters)
}
