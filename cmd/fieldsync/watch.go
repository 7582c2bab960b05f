// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/fieldsync/fieldsync/collab"
	"github.com/fieldsync/fieldsync/contentapi"
	"github.com/fieldsync/fieldsync/docpool"
	"github.com/fieldsync/fieldsync/entitydoc"
	"github.com/fieldsync/fieldsync/lib/config"
	"github.com/fieldsync/fieldsync/lib/credential"
	"github.com/fieldsync/fieldsync/lib/diagnostics"
	"github.com/fieldsync/fieldsync/lib/signal"
	"github.com/fieldsync/fieldsync/presence"
)

type watchOptions struct {
	entity   collab.Entity
	focus    string
	readOnly bool
}

func runWatch(ctx context.Context, cfg *config.Config, supplier credential.Supplier, logger *slog.Logger, watch watchOptions) error {
	if cfg.API.BaseURL == "" {
		return fmt.Errorf("watch needs api.base_url to fetch locales and content types")
	}
	user, err := userID(ctx, cfg.Credential, supplier)
	if err != nil {
		return err
	}
	logger = logger.With("entity_type", string(watch.entity.Type), "entity_id", watch.entity.ID)

	api, err := contentapi.NewClient(contentapi.ClientConfig{
		BaseURL:    cfg.API.BaseURL,
		SpaceID:    cfg.Server.SpaceID,
		Credential: supplier,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	locales, err := api.Locales(ctx)
	if err != nil {
		return err
	}
	contentType, err := fetchContentType(ctx, api, watch.entity)
	if err != nil {
		return err
	}

	connection, err := dial(ctx, cfg, supplier, logger)
	if err != nil {
		return err
	}
	defer connection.Close()

	pool := docpool.NewEntityPool(connection, docpool.EntityConfig{
		Repo:     api,
		Locales:  func() []contentapi.Locale { return locales },
		ReadOnly: signal.Const(connection.Scheduler(), watch.readOnly),
		OnConflict: func(_ collab.Entity, path []any) {
			logger.Warn("remote edit overwrote a local edit", "path", fmt.Sprint(path))
		},
		OnError: func(_ collab.Entity, err error) {
			logger.Error("document error", "error", err)
		},
		Reporter: diagnostics.NewLogReporter(logger),
		Logger:   logger,
	})

	lifeline, release := context.WithCancel(context.Background())
	defer release()
	document, err := pool.Get(lifeline, watch.entity, contentType)
	if err != nil {
		return err
	}

	controller, err := presence.New(presence.Config{
		UserID:        user,
		FocusThrottle: cfg.Presence.FocusThrottle.Std(),
		PingTimeout:   cfg.Presence.PingTimeout.Std(),
		Scheduler:     connection.Scheduler(),
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	controller.Watch(document.Channel())

	unsubscribeStatus := document.Status().Subscribe(func(status entitydoc.Status) {
		logger.Info("document status", "status", status.String(), "version", document.Version())
		if status == entitydoc.StatusEditable && watch.focus != "" {
			controller.SetFocus(watch.focus)
		}
	})
	unsubscribeProjection := controller.Projection().Subscribe(func(projection presence.Projection) {
		logger.Info("presence",
			"users", linkIDs(projection.Users),
			"focused_fields", slices.Sorted(maps.Keys(projection.Fields)),
		)
	})

	if err := document.Refresh(ctx); err != nil {
		logger.Warn("fetching entity metadata failed", "error", err)
	} else {
		sys := document.Sys()
		logger.Info("entity metadata", "version", sys.Version, "published_version", sys.PublishedVersion)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	unsubscribeProjection()
	unsubscribeStatus()
	controller.Leave()
	controller.Destroy()
	for _, result := range pool.Destroy() {
		if err := <-result; err != nil {
			logger.Warn("releasing document failed", "error", err)
		}
	}
	return nil
}

// fetchContentType returns the content type of an entry. Assets have a
// fixed shape and get nil, which keeps every field.
func fetchContentType(ctx context.Context, api *contentapi.Client, entity collab.Entity) (*contentapi.ContentType, error) {
	if entity.Type != collab.EntityEntry {
		return nil, nil
	}
	entities, err := api.Fetch(ctx, string(entity.Type), []string{entity.ID})
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, fmt.Errorf("entry %s not found", entity.ID)
	}
	link := entities[0].Sys.ContentType
	if link == nil {
		return nil, nil
	}
	return api.ContentType(ctx, link.Sys.ID)
}

func linkIDs(links []contentapi.Link) []string {
	ids := make([]string, len(links))
	for i, link := range links {
		ids[i] = link.Sys.ID
	}
	return ids
}
