// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package diagnostics carries non-fatal error reports out of the
// collaboration layer. A report never changes control flow: the
// reporting component continues with best-effort behavior.
package diagnostics

import (
	"context"
	"log/slog"
)

// Report describes an unexpected condition observed on an entity.
type Report struct {
	// EntityType is "Entry" or "Asset". Empty when the condition is
	// not tied to an entity.
	EntityType string

	// EntityID is the entity's sys.id.
	EntityID string

	// Err is the condition being reported.
	Err error

	// Tags carry context for triage (state names, document keys).
	Tags map[string]string
}

// Reporter receives diagnostic reports.
type Reporter interface {
	Report(ctx context.Context, report Report)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(ctx context.Context, report Report)

// Report calls f.
func (f ReporterFunc) Report(ctx context.Context, report Report) { f(ctx, report) }

// NewLogReporter returns a Reporter that writes each report as an
// error-level log record.
func NewLogReporter(logger *slog.Logger) Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &logReporter{logger: logger}
}

type logReporter struct {
	logger *slog.Logger
}

func (r *logReporter) Report(ctx context.Context, report Report) {
	attributes := []any{
		"entity_type", report.EntityType,
		"entity_id", report.EntityID,
		"error", report.Err,
	}
	for key, value := range report.Tags {
		attributes = append(attributes, key, value)
	}
	r.logger.ErrorContext(ctx, "diagnostic report", attributes...)
}
