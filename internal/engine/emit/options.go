package emit

import "strings"

// HookOptions selects which hooks are generated and how handlers see the
// hooked method's arguments and result.
type HookOptions uint8

const (
	HookPre HookOptions = 1 << iota
	HookPost
	HookReferenceParameters
	HookAlterResult
	// HookCancellable only applies to pre hooks.
	HookCancellable

	HookNone    HookOptions = 0
	HookDefault HookOptions = HookPre | HookPost | HookReferenceParameters | HookAlterResult | HookCancellable
)

func (o HookOptions) Has(flag HookOptions) bool { return o&flag != 0 }

func (o HookOptions) String() string {
	if o == HookNone {
		return "none"
	}
	var parts []string
	for _, f := range []struct {
		flag HookOptions
		name string
	}{
		{HookPre, "pre"},
		{HookPost, "post"},
		{HookReferenceParameters, "ref"},
		{HookAlterResult, "result"},
		{HookCancellable, "cancel"},
	} {
		if o.Has(f.flag) {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, "|")
}
