// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

package docpool

import (
	"context"
	"log/slog"

	"github.com/fieldsync/fieldsync/collab"
	"github.com/fieldsync/fieldsync/contentapi"
	"github.com/fieldsync/fieldsync/entitydoc"
	"github.com/fieldsync/fieldsync/lib/diagnostics"
	"github.com/fieldsync/fieldsync/lib/signal"
)

// EntityConfig holds what every pooled entity document shares.
type EntityConfig struct {
	// Repo fetches entities and applies server-side actions.
	Repo entitydoc.EntityRepo

	// Locales returns the locales configured for the space.
	Locales func() []contentapi.Locale

	// ReadOnly, when set, keeps documents closed while it holds true.
	ReadOnly *signal.Signal[bool]

	OnConflict func(entity collab.Entity, path []any)
	OnError    func(entity collab.Entity, err error)

	Reporter diagnostics.Reporter
	Logger   *slog.Logger
}

// NewEntityPool returns a pool of entity documents loaded over conn.
func NewEntityPool(conn *collab.Connection, config EntityConfig) *Pool[*entitydoc.Document] {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reporter := config.Reporter
	if reporter == nil {
		reporter = diagnostics.NewLogReporter(logger)
	}

	factory := func(entity collab.Entity, contentType *contentapi.ContentType) (*entitydoc.Document, error) {
		// The document destroys its loader, so the loader needs no
		// lifeline of its own.
		loader, err := conn.DocLoader(context.Background(), entity, config.ReadOnly)
		if err != nil {
			return nil, err
		}
		document, err := entitydoc.New(loader, entitydoc.Config{
			Entity:      entity,
			ContentType: contentType,
			Locales:     config.Locales,
			Repo:        config.Repo,
			OnConflict:  bindEntity(entity, config.OnConflict),
			OnError:     bindEntity(entity, config.OnError),
			Reporter:    reporter,
			Logger:      logger,
		})
		if err != nil {
			loader.Destroy()
			return nil, err
		}
		return document, nil
	}
	return New[*entitydoc.Document](factory, logger)
}

func bindEntity[T any](entity collab.Entity, callback func(collab.Entity, T)) func(T) {
	if callback == nil {
		return nil
	}
	return func(value T) { callback(entity, value) }
}
