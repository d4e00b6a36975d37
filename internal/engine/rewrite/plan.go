// Package rewrite replaces types, fields and methods across every reference
// in a module, and builds the hooking flow on top of those replacements.
//
// Replacements are two-phase: a read-only walk collects a Plan of edits, and
// Apply mutates the graph. A failed walk leaves the module untouched.
package rewrite

import (
	"fmt"
	"log/slog"

	"modweave/internal/shared/observability"
)

// Edit is one planned mutation. Location names the member holding the
// reference; Old and New describe the value before and after.
type Edit struct {
	Location string
	Old      string
	New      string
	apply    func() error
}

func (e Edit) String() string {
	return fmt.Sprintf("%s: %s -> %s", e.Location, e.Old, e.New)
}

type Plan struct {
	Kind  string
	Edits []Edit
}

func newPlan(kind string) *Plan {
	return &Plan{Kind: kind}
}

func (p *Plan) add(location, before, after string, apply func() error) {
	p.Edits = append(p.Edits, Edit{Location: location, Old: before, New: after, apply: apply})
}

func (p *Plan) Len() int { return len(p.Edits) }

// Apply runs the edits in planning order. It stops at the first failure.
func (p *Plan) Apply() error {
	for i, e := range p.Edits {
		if err := e.apply(); err != nil {
			return fmt.Errorf("apply %s edit %d (%s): %w", p.Kind, i, e.Location, err)
		}
	}
	observability.RewriteEditsTotal.WithLabelValues(p.Kind).Add(float64(len(p.Edits)))
	slog.Debug("rewrite applied", "kind", p.Kind, "edits", len(p.Edits))
	return nil
}
