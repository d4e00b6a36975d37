package pipeline

import (
	"strings"

	"modweave/internal/core/errors"
)

// stall builds the error for a scan that found no ready unit. Dependencies
// that no pending unit provides are reported as unsatisfied; otherwise the
// pending units wait on each other and the cycle is reported.
func (c *Context) stall(stage Stage, pending, completed []Modification) error {
	names := make([]string, len(pending))
	for i, m := range pending {
		names[i] = m.label()
	}

	var missing []string
	for _, m := range pending {
		for _, dep := range m.Dependencies {
			if provided(dep, completed) || provided(dep, pending) {
				continue
			}
			missing = append(missing, dep+" (needed by "+m.label()+")")
		}
	}

	var err *errors.DomainError
	switch {
	case len(missing) > 0:
		err = errors.Newf(errors.CodeDependencyStall, "stage %s stalled: unsatisfied dependencies %s",
			stage, strings.Join(missing, ", "))
	case c.opts.StallDetection:
		cycles := detectCycles(pending)
		if len(cycles) == 0 {
			err = errors.Newf(errors.CodeDependencyStall, "stage %s stalled with pending units %s", stage, strings.Join(names, ", "))
			break
		}
		cycle := append(cycles[0], cycles[0][0])
		err = errors.Newf(errors.CodeDependencyStall, "stage %s stalled: dependency cycle %s", stage, strings.Join(cycle, " -> "))
	default:
		err = errors.Newf(errors.CodeDependencyStall, "stage %s stalled with pending units %s", stage, strings.Join(names, ", "))
	}
	return err.WithContext(errors.CtxStage, stage.String()).WithContext("pending", names)
}

func provided(dep string, mods []Modification) bool {
	for _, m := range mods {
		if m.provides(dep) {
			return true
		}
	}
	return false
}

// detectCycles walks the wait-for graph of pending units depth first and
// returns each cycle found, as unit labels in dependency order.
func detectCycles(pending []Modification) [][]string {
	edges := make(map[string][]string, len(pending))
	for _, m := range pending {
		for _, dep := range m.Dependencies {
			for _, other := range pending {
				if other.provides(dep) {
					edges[m.label()] = append(edges[m.label()], other.label())
				}
			}
		}
	}

	var cycles [][]string
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	for _, m := range pending {
		if !visited[m.label()] {
			findCycles(m.label(), edges, visited, onStack, nil, &cycles)
		}
	}
	return cycles
}

func findCycles(curr string, edges map[string][]string, visited, onStack map[string]bool, path []string, cycles *[][]string) {
	visited[curr] = true
	onStack[curr] = true
	path = append(path, curr)

	for _, next := range edges[curr] {
		if onStack[next] {
			for i, name := range path {
				if name == next {
					cycle := make([]string, len(path)-i)
					copy(cycle, path[i:])
					*cycles = append(*cycles, cycle)
					break
				}
			}
		} else if !visited[next] {
			findCycles(next, edges, visited, onStack, path, cycles)
		}
	}

	onStack[curr] = false
}
