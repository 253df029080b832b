package daemon

import (
	"fmt"
	"slices"
)

// planOrder checks that every dependency is registered and returns component
// names so each one follows everything it depends on. Ties keep
// registration order.
func planOrder(components []Component) ([]string, error) {
	byName := make(map[string]Component, len(components))
	for _, comp := range components {
		byName[comp.Name()] = comp
	}
	for _, comp := range components {
		for _, dep := range comp.Dependencies() {
			if _, ok := byName[dep]; !ok {
				return nil, fmt.Errorf("component %s depends on %s which is not registered", comp.Name(), dep)
			}
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(components))
	order := make([]string, 0, len(components))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("circular dependency detected: %v", append(slices.Clone(path), name))
		}
		state[name] = visiting
		for _, dep := range byName[name].Dependencies() {
			if err := visit(dep, append(slices.Clone(path), name)); err != nil {
				return err
			}
		}
		state[name] = done
		order = append(order, name)
		return nil
	}

	for _, comp := range components {
		if err := visit(comp.Name(), nil); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func reversed(names []string) []string {
	out := slices.Clone(names)
	slices.Reverse(out)
	return out
}
