// Package pipeline schedules modification units across the patch lifecycle.
package pipeline

import (
	"strings"

	"modweave/internal/core/errors"
)

// Stage is one point in the patch lifecycle where modifications run.
type Stage int

const (
	PreRead Stage = iota
	Read
	PreMerge
	PostMerge
	PrePatch
	PostPatch
	Runtime
	PreWrite
	Write
	Shutdown
	PreMapDependencies
	PostMapDependencies
)

var stageNames = [...]string{
	PreRead:             "PreRead",
	Read:                "Read",
	PreMerge:            "PreMerge",
	PostMerge:           "PostMerge",
	PrePatch:            "PrePatch",
	PostPatch:           "PostPatch",
	Runtime:             "Runtime",
	PreWrite:            "PreWrite",
	Write:               "Write",
	Shutdown:            "Shutdown",
	PreMapDependencies:  "PreMapDependencies",
	PostMapDependencies: "PostMapDependencies",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "Unknown"
	}
	return stageNames[s]
}

// Stages returns every stage in the order a patch run applies them; the
// merge stages nest inside the patch stages. Runtime units run inside the
// patched program, so Runtime comes last.
func Stages() []Stage {
	return []Stage{
		PreRead, Read, PreMapDependencies, PostMapDependencies,
		PrePatch, PreMerge, PostMerge, PostPatch,
		PreWrite, Write, Shutdown, Runtime,
	}
}

// ParseStage resolves a stage name case-insensitively.
func ParseStage(name string) (Stage, error) {
	for i, n := range stageNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return Stage(i), nil
		}
	}
	return 0, errors.Newf(errors.CodeValidationError, "unknown stage %q", name)
}

// Priority orders ready units within a stage; lower runs first.
type Priority int

const (
	Early   Priority = -100
	Default Priority = 0
	Late    Priority = 50
	Last    Priority = 100
)
