package query

import (
	"strings"
	"unicode"

	"modweave/internal/core/errors"
)

// Pattern is one compiled predicate. At most one of StartsWith and EndsWith
// is set; when neither is, FullName must match exactly.
type Pattern struct {
	AssemblyName string
	FullName     string
	StartsWith   bool
	EndsWith     bool
	Parameters   []string
	// HasParameters is set when the source carried a parameter list, even an
	// empty one.
	HasParameters bool
}

// Matches reports whether record satisfies p.
func (p Pattern) Matches(record MetaData) bool {
	if p.AssemblyName != "" && record.AssemblyName != p.AssemblyName {
		return false
	}
	switch {
	case p.StartsWith:
		return strings.HasPrefix(record.FullName, p.FullName)
	case p.EndsWith:
		return strings.HasSuffix(record.FullName, p.FullName)
	default:
		return record.FullName == p.FullName
	}
}

func (p Pattern) String() string {
	var b strings.Builder
	if p.AssemblyName != "" {
		b.WriteString("[" + p.AssemblyName + "] ")
	}
	if p.EndsWith {
		b.WriteByte('*')
	}
	b.WriteString(p.FullName)
	if p.StartsWith {
		b.WriteByte('*')
	}
	return b.String()
}

type parseState uint8

const (
	readingFullName parseState = iota
	readingAssembly
	readingParameters
	afterParameters
)

// ParsePatterns compiles text into patterns. Segments are separated by "&&";
// a record matches the query when it matches any segment.
func ParsePatterns(text string) ([]Pattern, error) {
	var patterns []Pattern
	for _, raw := range strings.Split(text, "&&") {
		segment := strings.TrimSpace(raw)
		if segment == "" {
			return nil, grammarError(text, "empty pattern segment")
		}
		p, err := parseSegment(segment)
		if err != nil {
			return nil, errors.AddContext(err, errors.CtxPattern, text)
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}

func parseSegment(segment string) (Pattern, error) {
	var (
		p        Pattern
		name     strings.Builder
		asm      strings.Builder
		param    strings.Builder
		state    = readingFullName
		leading  bool
		trailing bool
	)
	flushParam := func() {
		p.Parameters = append(p.Parameters, canonicalParameter(param.String()))
		param.Reset()
	}

	for _, r := range segment {
		if state == afterParameters {
			if unicode.IsSpace(r) {
				continue
			}
			return Pattern{}, errors.New(errors.CodeNotSupported, "query patterns do not support IL parsing")
		}

		switch r {
		case '[':
			if state != readingFullName {
				return Pattern{}, grammarError(segment, "unexpected '['")
			}
			state = readingAssembly
			continue
		case ']':
			if state != readingAssembly {
				return Pattern{}, grammarError(segment, "unexpected ']'")
			}
			state = readingFullName
			continue
		case '*':
			if state != readingFullName {
				return Pattern{}, grammarError(segment, "wildcard is only allowed in the name")
			}
			if leading || trailing {
				return Pattern{}, grammarError(segment, "only one leading or trailing wildcard is supported")
			}
			if name.Len() == 0 {
				leading = true
			} else {
				trailing = true
			}
			continue
		case '(':
			if state != readingFullName {
				return Pattern{}, grammarError(segment, "unexpected '('")
			}
			state = readingParameters
			p.HasParameters = true
			continue
		case ')':
			if state != readingParameters {
				return Pattern{}, grammarError(segment, "unexpected ')'")
			}
			if len(p.Parameters) > 0 || strings.TrimSpace(param.String()) != "" {
				flushParam()
			}
			state = afterParameters
			continue
		case ',':
			if state == readingParameters {
				if strings.TrimSpace(param.String()) == "" {
					return Pattern{}, grammarError(segment, "empty parameter type")
				}
				flushParam()
				continue
			}
		}

		switch state {
		case readingAssembly:
			asm.WriteRune(r)
		case readingParameters:
			param.WriteRune(r)
		case readingFullName:
			if unicode.IsSpace(r) {
				continue
			}
			if trailing {
				return Pattern{}, grammarError(segment, "wildcards must lead or trail the name")
			}
			name.WriteRune(r)
		}
	}

	switch state {
	case readingAssembly:
		return Pattern{}, grammarError(segment, "unterminated assembly filter")
	case readingParameters:
		return Pattern{}, grammarError(segment, "unterminated parameter list")
	}
	for _, param := range p.Parameters {
		if param == "" {
			return Pattern{}, grammarError(segment, "empty parameter type")
		}
	}

	p.AssemblyName = strings.TrimSpace(asm.String())
	p.FullName = name.String()
	p.EndsWith = leading
	p.StartsWith = trailing
	if p.HasParameters {
		p.FullName += "(" + strings.Join(p.Parameters, ",") + ")"
	}
	if p.FullName == "" && !p.StartsWith && !p.EndsWith {
		return Pattern{}, grammarError(segment, "missing name")
	}
	return p, nil
}

func grammarError(segment, msg string) error {
	return errors.Newf(errors.CodeGrammar, "invalid query pattern: %s", msg).WithContext(errors.CtxPattern, segment)
}

var parameterAliases = map[string]string{
	"bool":    "System.Boolean",
	"byte":    "System.Byte",
	"sbyte":   "System.SByte",
	"char":    "System.Char",
	"short":   "System.Int16",
	"ushort":  "System.UInt16",
	"int":     "System.Int32",
	"uint":    "System.UInt32",
	"long":    "System.Int64",
	"ulong":   "System.UInt64",
	"float":   "System.Single",
	"double":  "System.Double",
	"decimal": "System.Decimal",
	"string":  "System.String",
	"object":  "System.Object",
}

// canonicalParameter trims a parameter token and expands C# keyword aliases,
// keeping array and by-reference suffixes.
func canonicalParameter(token string) string {
	token = strings.TrimSpace(token)
	base := strings.TrimRight(token, "[]&*,")
	if full, ok := parameterAliases[base]; ok {
		return full + token[len(base):]
	}
	return token
}
