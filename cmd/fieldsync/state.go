// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"

	"github.com/fieldsync/fieldsync/collab"
	"github.com/fieldsync/fieldsync/lib/config"
	"github.com/fieldsync/fieldsync/lib/credential"
)

// runState logs connection state changes until ctx ends or the
// connection stops for good.
func runState(ctx context.Context, cfg *config.Config, supplier credential.Supplier, logger *slog.Logger) error {
	connection, err := dial(ctx, cfg, supplier, logger)
	if err != nil {
		return err
	}
	defer connection.Close()

	stopped := make(chan struct{})
	var closed bool
	unsubscribe := connection.State().Subscribe(func(state collab.ConnectionState) {
		logger.Info("connection state", "connection_state", state.String())
		if state == collab.Stopped && !closed {
			closed = true
			close(stopped)
		}
	})
	defer unsubscribe()

	select {
	case <-ctx.Done():
	case <-stopped:
	}
	return nil
}
