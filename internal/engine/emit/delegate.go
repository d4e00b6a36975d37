package emit

import "modweave/internal/engine/meta"

const invokeAttributes = meta.MethodPublic | meta.MethodHideBySig | meta.MethodVirtual | meta.MethodNewSlot

// DelegateType builds a nested, sealed delegate type named name. All four
// members are runtime-implemented, matching what compilers emit for a
// delegate declaration.
func DelegateType(mod *meta.Module, name string, ret *meta.Type, params []*meta.Parameter) *meta.Type {
	ts := mod.TypeSystem
	t := meta.NewTypeDef("", name, meta.TypeNestedPublic|meta.TypeSealed, ts.MulticastDelegate)
	t.Module = mod

	ctor := meta.NewMethodDef(".ctor",
		meta.MethodPublic|meta.MethodHideBySig|meta.MethodSpecialName|meta.MethodRTSpecialName,
		ts.Void,
		meta.NewParameter("object", ts.Object),
		meta.NewParameter("method", ts.IntPtr),
	)
	t.AddMethod(runtimeImpl(ctor))

	t.AddMethod(runtimeImpl(meta.NewMethodDef("Invoke", invokeAttributes, ret, copyParameters(params)...)))

	begin := meta.NewMethodDef("BeginInvoke", invokeAttributes, ts.Void, copyParameters(params)...)
	begin.AddParameter(meta.NewParameter("callback", ts.AsyncCallback))
	begin.AddParameter(meta.NewParameter("object", ts.Object))
	t.AddMethod(runtimeImpl(begin))

	t.AddMethod(runtimeImpl(meta.NewMethodDef("EndInvoke", invokeAttributes, ret,
		meta.NewParameter("result", ts.IAsyncResult))))
	return t
}

func runtimeImpl(m *meta.Method) *meta.Method {
	m.ImplAttributes = meta.ImplRuntime
	m.Body = nil
	return m
}

func copyParameters(params []*meta.Parameter) []*meta.Parameter {
	out := make([]*meta.Parameter, len(params))
	for i, p := range params {
		out[i] = &meta.Parameter{Name: p.Name, ParameterType: p.ParameterType, Attributes: p.Attributes}
	}
	return out
}
