package emit

import (
	"strconv"
	"strings"
)

// SafeName strips the leading dots of special names such as .ctor so the
// result can prefix generated member names.
func SafeName(name string) string {
	return strings.TrimLeft(name, ".")
}

// BackingName is the compiler convention for an auto-property's field.
func BackingName(name string) string {
	return "<" + name + ">k__BackingField"
}

// uniqueName returns name, or name followed by the smallest counter that
// taken does not report as used. Overloads share a safe name, so their hook
// members need distinct names.
func uniqueName(name string, taken func(string) bool) string {
	if !taken(name) {
		return name
	}
	for i := 1; ; i++ {
		candidate := name + strconv.Itoa(i)
		if !taken(candidate) {
			return candidate
		}
	}
}
