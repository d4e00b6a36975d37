package query

import (
	"modweave/internal/core/errors"
	"modweave/internal/engine/meta"
	"modweave/internal/shared/observability"
)

// Results are the records a query selected, in expansion order.
type Results []MetaData

// Query binds a pattern to the graph roots it searches. Run is memoized.
type Query struct {
	Pattern string

	roots    []meta.Node
	expander *Expander

	ran     bool
	results Results
	err     error
}

func New(pattern string, cache *ExpansionCache, roots ...meta.Node) *Query {
	return &Query{
		Pattern:  pattern,
		roots:    roots,
		expander: NewExpander(cache),
	}
}

// Run expands the roots and keeps every record matched by at least one
// pattern segment. Later calls return the first outcome unchanged.
func (q *Query) Run() (Results, error) {
	if q.ran {
		return q.results, q.err
	}
	q.ran = true
	q.results, q.err = q.run()
	return q.results, q.err
}

func (q *Query) run() (Results, error) {
	patterns, err := ParsePatterns(q.Pattern)
	if err != nil {
		return nil, err
	}
	records, err := q.expander.Expand(q.roots...)
	if err != nil {
		return nil, err
	}

	results := make(Results, 0)
	for _, record := range records {
		for _, p := range patterns {
			if p.Matches(record) {
				results = append(results, record)
				break
			}
		}
	}
	observability.QueriesTotal.Inc()
	return results, nil
}

func (r Results) Types() []*meta.Type {
	var out []*meta.Type
	for _, rec := range r {
		if t, ok := rec.Instance.(*meta.Type); ok {
			out = append(out, t)
		}
	}
	return out
}

func (r Results) Methods() []*meta.Method {
	var out []*meta.Method
	for _, rec := range r {
		if m, ok := rec.Instance.(*meta.Method); ok {
			out = append(out, m)
		}
	}
	return out
}

func (r Results) Properties() []*meta.Property {
	var out []*meta.Property
	for _, rec := range r {
		if p, ok := rec.Instance.(*meta.Property); ok {
			out = append(out, p)
		}
	}
	return out
}

// First returns the first record, or false when nothing matched.
func (r Results) First() (MetaData, bool) {
	if len(r) == 0 {
		return MetaData{}, false
	}
	return r[0], true
}

// Single returns the only record, failing on zero or several matches.
func (r Results) Single(pattern string) (MetaData, error) {
	switch len(r) {
	case 0:
		return MetaData{}, errors.Newf(errors.CodeNotFound, "no metadata matched").WithContext(errors.CtxPattern, pattern)
	case 1:
		return r[0], nil
	default:
		return MetaData{}, errors.Newf(errors.CodeAmbiguous, "%d metadata records matched", len(r)).WithContext(errors.CtxPattern, pattern)
	}
}
