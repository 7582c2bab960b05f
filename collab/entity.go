// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

package collab

import (
	"errors"
	"fmt"
	"strings"
)

// EntityType is the sys.type of an editable entity.
type EntityType string

const (
	EntityEntry EntityType = "Entry"
	EntityAsset EntityType = "Asset"
)

// ErrInvalidEntity is returned for an entity whose type is not Entry or
// Asset or whose id is empty.
var ErrInvalidEntity = errors.New("collab: invalid entity")

// Entity identifies an entry or asset.
type Entity struct {
	Type EntityType
	ID   string
}

// Validate returns ErrInvalidEntity unless the entity is an Entry or
// Asset with a non-empty id.
func (e Entity) Validate() error {
	if e.Type != EntityEntry && e.Type != EntityAsset {
		return fmt.Errorf("%w: type %q is not Entry or Asset", ErrInvalidEntity, e.Type)
	}
	if e.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidEntity)
	}
	return nil
}

// DocKey returns the server document name for the entity in a space:
// "{spaceID}!entry!{id}" or "{spaceID}!asset!{id}".
func DocKey(spaceID string, entity Entity) (string, error) {
	if err := entity.Validate(); err != nil {
		return "", err
	}
	return spaceID + "!" + strings.ToLower(string(entity.Type)) + "!" + entity.ID, nil
}
