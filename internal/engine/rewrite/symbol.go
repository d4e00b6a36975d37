package rewrite

import (
	"modweave/internal/core/errors"
	"modweave/internal/engine/meta"
)

// ReplaceSymbolEverywhere replaces old with replacement across mod. Supported
// pairs are type for type, field for property, and method for method. opts
// only applies to types.
func ReplaceSymbolEverywhere(mod *meta.Module, old, replacement meta.Node, opts ReplaceOptions) error {
	switch o := old.(type) {
	case *meta.Type:
		if r, ok := replacement.(*meta.Type); ok {
			return ReplaceType(mod, o, r, opts)
		}
	case *meta.Field:
		if r, ok := replacement.(*meta.Property); ok {
			return ReplaceFieldWithProperty(mod, o, r)
		}
	case *meta.Method:
		if r, ok := replacement.(*meta.Method); ok {
			return ReplaceMethod(mod, o, r)
		}
	}
	return errors.Newf(errors.CodeNotSupported, "cannot replace %T with %T", old, replacement)
}
