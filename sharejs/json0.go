// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

package sharejs

import (
	"errors"
	"fmt"
	"slices"
)

// ErrInvalidPath is returned when an op addresses a location whose
// parent container does not exist.
var ErrInvalidPath = errors.New("sharejs: invalid path")

// Side breaks ties when two ops write the same path concurrently.
type Side int

const (
	// Left wins ties. The server applies ops in arrival order, so ops
	// already on the server are transformed as Left.
	Left Side = iota
	Right
)

// Apply applies op to snapshot and returns the new snapshot. Containers
// along each path are modified in place; the root is replaced when a
// component addresses the empty path.
func Apply(snapshot any, op Op) (any, error) {
	for _, component := range op {
		var err error
		snapshot, err = applyComponent(snapshot, component)
		if err != nil {
			return snapshot, err
		}
	}
	return snapshot, nil
}

func applyComponent(snapshot any, component Component) (any, error) {
	if len(component.Path) == 0 {
		if component.HasInsert {
			return component.Insert, nil
		}
		if component.HasDelete {
			return nil, nil
		}
		return snapshot, nil
	}

	parent, ok := lookup(snapshot, component.Path[:len(component.Path)-1])
	if !ok {
		return snapshot, fmt.Errorf("%w: %v", ErrInvalidPath, component.Path)
	}
	key := component.Path[len(component.Path)-1]

	switch container := parent.(type) {
	case map[string]any:
		name, ok := key.(string)
		if !ok {
			return snapshot, fmt.Errorf("%w: object key %v is not a string", ErrInvalidPath, key)
		}
		if component.HasDelete {
			delete(container, name)
		}
		if component.HasInsert {
			container[name] = component.Insert
		}
	case []any:
		index, ok := key.(int)
		if !ok || index < 0 || index >= len(container) {
			return snapshot, fmt.Errorf("%w: list index %v out of range", ErrInvalidPath, key)
		}
		// List elements are replaced in place; json0 list insertion and
		// removal use separate component kinds this client never emits.
		if component.HasInsert {
			container[index] = component.Insert
		} else if component.HasDelete {
			container[index] = nil
		}
	default:
		return snapshot, fmt.Errorf("%w: parent of %v is %T", ErrInvalidPath, component.Path, parent)
	}
	return snapshot, nil
}

// lookup returns the value at path.
func lookup(value any, path []any) (any, bool) {
	for _, key := range path {
		switch container := value.(type) {
		case map[string]any:
			name, ok := key.(string)
			if !ok {
				return nil, false
			}
			value, ok = container[name]
			if !ok {
				return nil, false
			}
		case []any:
			index, ok := key.(int)
			if !ok || index < 0 || index >= len(container) {
				return nil, false
			}
			value = container[index]
		default:
			return nil, false
		}
	}
	return value, true
}

// Transform rewrites op so it applies after other, where both were
// generated against the same snapshot. side decides which op wins when
// both write the same path.
func Transform(op, other Op, side Side) Op {
	result := op.Clone()
	for _, against := range other {
		next := result[:0:0]
		for _, component := range result {
			if transformed, keep := transformComponent(component, against, side); keep {
				next = append(next, transformed)
			}
		}
		result = next
	}
	return result
}

// transformComponent transforms c against a concurrent component
// other. It reports false when c no longer has any effect.
func transformComponent(c, other Component, side Side) (Component, bool) {
	switch {
	case slices.Equal(c.Path, other.Path):
		if other.HasInsert && c.HasInsert && side == Right {
			return c, false
		}
		// c now deletes whatever other left behind.
		c.Delete, c.HasDelete = other.Insert, other.HasInsert
		if !c.HasInsert && !c.HasDelete {
			return c, false
		}
		return c, true

	case isPrefix(other.Path, c.Path):
		// other replaced or removed an ancestor of c's target.
		if other.HasDelete || other.HasInsert {
			return c, false
		}
		return c, true

	case isPrefix(c.Path, other.Path):
		// other edited inside the value c deletes; keep c's record of
		// that value accurate.
		if c.HasDelete {
			inner := other
			inner.Path = other.Path[len(c.Path):]
			if updated, err := applyComponent(deepCopy(c.Delete), inner); err == nil {
				c.Delete = updated
			}
		}
		return c, true

	default:
		return c, true
	}
}

// isPrefix reports whether prefix is a strict prefix of path.
func isPrefix(prefix, path []any) bool {
	return len(prefix) < len(path) && slices.Equal(prefix, path[:len(prefix)])
}

// deepCopy copies the maps and lists of a decoded JSON value.
func deepCopy(value any) any {
	switch value := value.(type) {
	case map[string]any:
		clone := make(map[string]any, len(value))
		for key, element := range value {
			clone[key] = deepCopy(element)
		}
		return clone
	case []any:
		clone := make([]any, len(value))
		for i, element := range value {
			clone[i] = deepCopy(element)
		}
		return clone
	default:
		return value
	}
}
