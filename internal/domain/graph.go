// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"fmt"
	"sort"
	"strings"
)

// ValidateGraph reports the first dependency that names an unknown step
// (ErrMissingDependency) and otherwise any cycle (ErrCircularDependency).
// Steps are visited in declaration order so the reported error is stable.
func ValidateGraph(steps []Step) error {
	index := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		index[step.ID] = struct{}{}
	}

	for _, step := range steps {
		for _, dep := range step.Dependencies {
			if _, ok := index[dep]; !ok {
				return fmt.Errorf("%w: step %q depends on %q", ErrMissingDependency, step.ID, dep)
			}
		}
	}

	// Kahn's algorithm: whatever is left with a positive in-degree sits on
	// or behind a cycle.
	indegree := make(map[string]int, len(steps))
	dependents := make(map[string][]string, len(steps))
	for _, step := range steps {
		indegree[step.ID] += 0
		for _, dep := range uniqueStrings(step.Dependencies) {
			indegree[step.ID]++
			dependents[dep] = append(dependents[dep], step.ID)
		}
	}

	queue := make([]string, 0, len(steps))
	for _, step := range steps {
		if indegree[step.ID] == 0 {
			queue = append(queue, step.ID)
		}
	}

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range dependents[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if visited == len(steps) {
		return nil
	}

	stuck := make([]string, 0, len(steps)-visited)
	for id, n := range indegree {
		if n > 0 {
			stuck = append(stuck, id)
		}
	}
	sort.Strings(stuck)
	return fmt.Errorf("%w: %s", ErrCircularDependency, strings.Join(stuck, ", "))
}

func uniqueStrings(in []string) []string {
	if len(in) < 2 {
		return in
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
