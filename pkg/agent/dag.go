package agent

import (
	"fmt"
	"sort"
	"strings"
)

// MissingDependencyError reports an agent whose dependency list names an
// agent that does not exist in the set. Raised at startup.
type MissingDependencyError struct {
	Agent      string
	Dependency string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("agent %q depends on unknown agent %q", e.Agent, e.Dependency)
}

// CircularDependencyError reports a dependency cycle, naming the cycle path.
// Raised at startup.
type CircularDependencyError struct {
	Cycle []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular agent dependency: %s", strings.Join(e.Cycle, " -> "))
}

// dfs colors for cycle detection.
const (
	colorWhite = iota // unvisited
	colorGrey         // on the current DFS path
	colorBlack        // fully explored
)

// ResolveLayers validates the dependency graph of defs and partitions it into
// ordered execution layers: every agent's dependencies appear in an earlier
// layer, and agents within a layer are independent. Layer contents are sorted
// by name so the plan is deterministic.
func ResolveLayers(defs []Definition) ([][]string, error) {
	deps := make(map[string][]string, len(defs))
	for _, d := range defs {
		deps[d.Name] = d.DependsOn
	}

	// Every referenced dependency must exist.
	for _, d := range defs {
		for _, dep := range d.DependsOn {
			if _, ok := deps[dep]; !ok {
				return nil, &MissingDependencyError{Agent: d.Name, Dependency: dep}
			}
		}
	}

	if err := detectCycle(deps); err != nil {
		return nil, err
	}

	// Repeatedly extract the set of agents whose unresolved deps are empty.
	resolved := make(map[string]bool, len(deps))
	var layers [][]string
	for len(resolved) < len(deps) {
		var layer []string
		for name, dd := range deps {
			if resolved[name] {
				continue
			}
			ready := true
			for _, dep := range dd {
				if !resolved[dep] {
					ready = false
					break
				}
			}
			if ready {
				layer = append(layer, name)
			}
		}
		// Cycle detection above guarantees progress; this guards the invariant.
		if len(layer) == 0 {
			return nil, &CircularDependencyError{Cycle: unresolvedNames(deps, resolved)}
		}
		sort.Strings(layer)
		for _, name := range layer {
			resolved[name] = true
		}
		layers = append(layers, layer)
	}
	return layers, nil
}

// detectCycle runs DFS coloring over the graph; a grey back-edge is a cycle.
func detectCycle(deps map[string][]string) error {
	color := make(map[string]int, len(deps))
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		color[name] = colorGrey
		path = append(path, name)
		for _, dep := range deps[name] {
			switch color[dep] {
			case colorGrey:
				return &CircularDependencyError{Cycle: cycleFrom(path, dep)}
			case colorWhite:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		path = path[:len(path)-1]
		color[name] = colorBlack
		return nil
	}

	// Iterate in sorted order so error messages are deterministic.
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if color[name] == colorWhite {
			if err := visit(name); err != nil {
				return err
			}
		}
	}
	return nil
}

// cycleFrom trims the DFS path to the segment forming the cycle and closes it.
func cycleFrom(path []string, back string) []string {
	start := 0
	for i, name := range path {
		if name == back {
			start = i
			break
		}
	}
	cycle := append([]string{}, path[start:]...)
	return append(cycle, back)
}

func unresolvedNames(deps map[string][]string, resolved map[string]bool) []string {
	var names []string
	for name := range deps {
		if !resolved[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
