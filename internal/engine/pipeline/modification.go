package pipeline

import (
	"reflect"

	"modweave/internal/core/errors"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Modification is a unit of work registered for one stage. Fn is any
// function; its parameters are bound by type from the stage, the context and
// the values passed to Apply. It may return nothing or a single error.
type Modification struct {
	Stage       Stage
	Description string
	Priority    Priority
	// Dependencies name units that must complete first, by Name or
	// UniqueName, within the same stage.
	Dependencies []string
	Name         string
	UniqueName   string
	Fn           any
}

func (m Modification) label() string {
	if m.UniqueName != "" {
		return m.UniqueName
	}
	return m.Name
}

func (m Modification) provides(name string) bool {
	return name != "" && (m.Name == name || m.UniqueName == name)
}

func (m Modification) validate() error {
	if m.Name == "" && m.UniqueName == "" {
		return errors.Newf(errors.CodeValidationError, "modification %q has no name", m.Description)
	}
	fn := reflect.ValueOf(m.Fn)
	if fn.Kind() != reflect.Func || fn.IsNil() {
		return errors.Newf(errors.CodeValidationError, "modification %s is not a function", m.label()).
			WithContext(errors.CtxUnit, m.label())
	}
	ft := fn.Type()
	if ft.IsVariadic() {
		return errors.Newf(errors.CodeValidationError, "modification %s must not be variadic", m.label()).
			WithContext(errors.CtxUnit, m.label())
	}
	switch {
	case ft.NumOut() == 0:
	case ft.NumOut() == 1 && ft.Out(0) == errorType:
	default:
		return errors.Newf(errors.CodeValidationError, "modification %s may only return an error", m.label()).
			WithContext(errors.CtxUnit, m.label())
	}
	return nil
}

// bind resolves each parameter of fn to the single pool value assignable to
// it.
func bind(m Modification, pool []any) ([]reflect.Value, error) {
	ft := reflect.TypeOf(m.Fn)
	args := make([]reflect.Value, ft.NumIn())
	for i := range args {
		want := ft.In(i)
		var match []any
		for _, v := range pool {
			if v != nil && reflect.TypeOf(v).AssignableTo(want) {
				match = append(match, v)
			}
		}
		switch len(match) {
		case 1:
			args[i] = reflect.ValueOf(match[0])
		case 0:
			return nil, errors.Newf(errors.CodeValidationError, "no value for parameter %d (%s) of %s", i, want, m.label()).
				WithContext(errors.CtxUnit, m.label())
		default:
			return nil, errors.Newf(errors.CodeValidationError, "%d values match parameter %d (%s) of %s", len(match), i, want, m.label()).
				WithContext(errors.CtxUnit, m.label())
		}
	}
	return args, nil
}

func invoke(m Modification, args []reflect.Value) error {
	out := reflect.ValueOf(m.Fn).Call(args)
	if len(out) == 1 && !out[0].IsNil() {
		return out[0].Interface().(error)
	}
	return nil
}
