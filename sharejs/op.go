// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

package sharejs

import (
	"fmt"
	"slices"
)

// Component is a single json0 object operation: delete the value at
// Path (when HasDelete), then insert Insert there (when HasInsert).
// Path elements are strings for object keys and ints for list indices.
type Component struct {
	Path      []any
	Insert    any
	Delete    any
	HasInsert bool
	HasDelete bool
}

// Op is an ordered list of components applied atomically.
type Op []Component

// InsertAt returns a component that sets value at path.
func InsertAt(path []any, value any) Component {
	return Component{Path: path, Insert: value, HasInsert: true}
}

// ReplaceAt returns a component that replaces previous with value.
func ReplaceAt(path []any, previous, value any) Component {
	return Component{Path: path, Delete: previous, HasDelete: true, Insert: value, HasInsert: true}
}

// DeleteAt returns a component that removes previous from path.
func DeleteAt(path []any, previous any) Component {
	return Component{Path: path, Delete: previous, HasDelete: true}
}

// Clone returns a copy of op whose paths can be modified independently.
// Values are shared.
func (op Op) Clone() Op {
	if op == nil {
		return nil
	}
	clone := make(Op, len(op))
	for i, component := range op {
		component.Path = slices.Clone(component.Path)
		clone[i] = component
	}
	return clone
}

// detachValues returns a copy of op whose inserted values share no maps
// or lists with op.
func detachValues(op Op) Op {
	clone := op.Clone()
	for i := range clone {
		if clone[i].HasInsert {
			clone[i].Insert = deepCopy(clone[i].Insert)
		}
	}
	return clone
}

// Paths returns the path of every component.
func (op Op) Paths() [][]any {
	paths := make([][]any, len(op))
	for i, component := range op {
		paths[i] = component.Path
	}
	return paths
}

func (c Component) wire() map[string]any {
	encoded := map[string]any{"p": c.Path}
	if c.HasInsert {
		encoded["oi"] = c.Insert
	}
	if c.HasDelete {
		encoded["od"] = c.Delete
	}
	return encoded
}

func (op Op) wire() []any {
	encoded := make([]any, len(op))
	for i, component := range op {
		encoded[i] = component.wire()
	}
	return encoded
}

func opFromWire(value any) (Op, error) {
	list, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("sharejs: op must be a list, got %T", value)
	}
	op := make(Op, 0, len(list))
	for i, item := range list {
		fields, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("sharejs: op component %d must be an object, got %T", i, item)
		}
		rawPath, ok := fields["p"].([]any)
		if !ok {
			return nil, fmt.Errorf("sharejs: op component %d has no path", i)
		}
		path := make([]any, len(rawPath))
		for j, element := range rawPath {
			switch element := element.(type) {
			case string:
				path[j] = element
			default:
				index, ok := asInt(element)
				if !ok {
					return nil, fmt.Errorf("sharejs: op component %d has invalid path element %v", i, element)
				}
				path[j] = index
			}
		}
		component := Component{Path: path}
		component.Insert, component.HasInsert = fields["oi"]
		component.Delete, component.HasDelete = fields["od"]
		op = append(op, component)
	}
	return op, nil
}

// asInt converts the numeric types produced by the JSON and CBOR
// decoders into an int.
func asInt(value any) (int, bool) {
	switch number := value.(type) {
	case int:
		return number, true
	case int64:
		return int(number), true
	case uint64:
		return int(number), true
	case float64:
		if number != float64(int(number)) {
			return 0, false
		}
		return int(number), true
	default:
		return 0, false
	}
}
