// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

package contentapi

import "time"

// Link references another resource by type and id.
type Link struct {
	Sys LinkSys `json:"sys"`
}

// LinkSys is the sys block of a Link.
type LinkSys struct {
	Type     string `json:"type"`
	LinkType string `json:"linkType"`
	ID       string `json:"id"`
}

// Sys is the system metadata of an entry, asset or content type.
type Sys struct {
	Type             string     `json:"type"`
	ID               string     `json:"id"`
	Version          int        `json:"version"`
	PublishedVersion int        `json:"publishedVersion,omitempty"`
	ArchivedVersion  int        `json:"archivedVersion,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	ContentType      *Link      `json:"contentType,omitempty"`
	PublishedAt      *time.Time `json:"publishedAt,omitempty"`
	ArchivedAt       *time.Time `json:"archivedAt,omitempty"`
}

// Entity is an entry or asset. Fields map field id to a map of locale
// internal code to value.
type Entity struct {
	Sys    Sys            `json:"sys"`
	Fields map[string]any `json:"fields"`
}

// ContentType describes the fields an entry may have.
type ContentType struct {
	Sys          Sys     `json:"sys"`
	Name         string  `json:"name"`
	DisplayField string  `json:"displayField,omitempty"`
	Fields       []Field `json:"fields"`
}

// FieldIDs returns the ids of the content type's fields.
func (c *ContentType) FieldIDs() []string {
	ids := make([]string, len(c.Fields))
	for i, field := range c.Fields {
		ids[i] = field.ID
	}
	return ids
}

// Field is one field of a content type.
type Field struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Localized bool   `json:"localized"`
	Required  bool   `json:"required"`
	Disabled  bool   `json:"disabled,omitempty"`
	Omitted   bool   `json:"omitted,omitempty"`
}

// Locale is a locale configured for a space. Snapshots key field values
// by InternalCode.
type Locale struct {
	Sys          Sys    `json:"sys"`
	Name         string `json:"name"`
	Code         string `json:"code"`
	InternalCode string `json:"internal_code"`
	Default      bool   `json:"default"`
	Optional     bool   `json:"optional"`
}

// Key returns the code field values are stored under: InternalCode, or
// Code when the server did not send one.
func (l Locale) Key() string {
	if l.InternalCode != "" {
		return l.InternalCode
	}
	return l.Code
}

// Action is a server-side state change of an entity.
type Action string

const (
	ActionPublish   Action = "publish"
	ActionUnpublish Action = "unpublish"
	ActionArchive   Action = "archive"
	ActionUnarchive Action = "unarchive"
)

type collection[T any] struct {
	Total int `json:"total"`
	Items []T `json:"items"`
}
