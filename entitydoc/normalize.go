// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

package entitydoc

import (
	"fmt"

	"github.com/fieldsync/fieldsync/contentapi"
)

// Target is the document access Normalize needs. collab.RawDoc
// satisfies it.
type Target interface {
	SetAt(path []any, value any, done func(error)) error
	Repair(fn func(snapshot any))
}

// Normalize repairs an entity snapshot so that:
//
//   - fields is an object (replaced through SetAt, so the fix is an op)
//   - no field id outside contentType remains, when contentType is set
//   - no locale outside locales remains under any field
//   - no nil locale value and no empty or non-object field remains
//
// Everything after the first step changes the snapshot in place
// without producing ops. Normalize never fails on malformed content;
// it fails only when the snapshot root is not an object.
func Normalize(doc Target, contentType *contentapi.ContentType, locales []contentapi.Locale) error {
	var root map[string]any
	coerce := false
	doc.Repair(func(snapshot any) {
		root, _ = snapshot.(map[string]any)
		if root != nil {
			_, isObject := root["fields"].(map[string]any)
			coerce = !isObject
		}
	})
	if root == nil {
		return fmt.Errorf("entitydoc: snapshot is not an object")
	}

	if coerce {
		if err := doc.SetAt([]any{"fields"}, map[string]any{}, nil); err != nil {
			return fmt.Errorf("entitydoc: resetting fields: %w", err)
		}
	}

	doc.Repair(func(snapshot any) {
		root, ok := snapshot.(map[string]any)
		if !ok {
			return
		}
		fields, ok := root["fields"].(map[string]any)
		if !ok {
			return
		}
		prune(fields, contentType, locales)
	})
	return nil
}

func prune(fields map[string]any, contentType *contentapi.ContentType, locales []contentapi.Locale) {
	var known map[string]bool
	if contentType != nil {
		known = make(map[string]bool, len(contentType.Fields))
		for _, id := range contentType.FieldIDs() {
			known[id] = true
		}
	}
	localeKeys := make(map[string]bool, len(locales))
	for _, locale := range locales {
		localeKeys[locale.Key()] = true
	}

	for id, value := range fields {
		if known != nil && !known[id] {
			delete(fields, id)
			continue
		}
		values, ok := value.(map[string]any)
		if !ok {
			delete(fields, id)
			continue
		}
		for code, localized := range values {
			if !localeKeys[code] || localized == nil {
				delete(values, code)
			}
		}
		if len(values) == 0 {
			delete(fields, id)
		}
	}
}
