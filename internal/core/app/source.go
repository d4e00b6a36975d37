package app

import (
	"modweave/internal/core/ports"
	"modweave/internal/engine/pipeline"
)

// ModificationList is a fixed set of units, for embedding callers and tests.
type ModificationList []pipeline.Modification

var _ ports.ModificationSource = ModificationList(nil)

func (l ModificationList) Modifications() ([]pipeline.Modification, error) {
	return append([]pipeline.Modification(nil), l...), nil
}
