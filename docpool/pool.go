// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

package docpool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fieldsync/fieldsync/collab"
	"github.com/fieldsync/fieldsync/contentapi"
)

// ErrInvalidEntity is returned by Get for entities that are not an
// Entry or Asset with an id.
var ErrInvalidEntity = collab.ErrInvalidEntity

// Handle is a pooled document.
type Handle interface {
	Destroy() error
}

// Factory builds the document for an entity. It is called without any
// pool lock held.
type Factory[D Handle] func(entity collab.Entity, contentType *contentapi.ContentType) (D, error)

// Pool is a reference-counted cache of documents keyed by entity.
type Pool[D Handle] struct {
	factory Factory[D]
	logger  *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry[D]
}

type entry[D Handle] struct {
	key string

	// ready is closed once doc and err are set.
	ready chan struct{}
	doc   D
	err   error

	// Guarded by Pool.mu.
	refs     int
	released bool
	stops    []func() bool
}

// New returns an empty pool building documents with factory.
func New[D Handle](factory Factory[D], logger *slog.Logger) *Pool[D] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool[D]{
		factory: factory,
		logger:  logger,
		entries: make(map[string]*entry[D]),
	}
}

// Key returns the pool key of entity.
func Key(entity collab.Entity) (string, error) {
	if err := entity.Validate(); err != nil {
		return "", err
	}
	return string(entity.Type) + "!" + entity.ID, nil
}

// Get returns the document for entity, building it on first use, and
// holds a reference until lifeline ends. A document already in the
// pool keeps the content type it was built with; contentType is only
// used when building.
func (p *Pool[D]) Get(lifeline context.Context, entity collab.Entity, contentType *contentapi.ContentType) (D, error) {
	var zero D
	key, err := Key(entity)
	if err != nil {
		return zero, err
	}

	p.mu.Lock()
	if existing := p.entries[key]; existing != nil {
		existing.refs++
		p.mu.Unlock()
		<-existing.ready
		if existing.err != nil {
			return zero, existing.err
		}
		p.hold(lifeline, existing)
		return existing.doc, nil
	}
	created := &entry[D]{key: key, ready: make(chan struct{}), refs: 1}
	p.entries[key] = created
	p.mu.Unlock()

	created.doc, created.err = p.factory(entity, contentType)
	close(created.ready)
	if created.err != nil {
		p.mu.Lock()
		if p.entries[key] == created {
			delete(p.entries, key)
		}
		p.mu.Unlock()
		return zero, fmt.Errorf("docpool: building %s: %w", key, created.err)
	}

	p.logger.Debug("pool entry created", "pool_key", key)
	p.hold(lifeline, created)
	return created.doc, nil
}

// GetByID returns the pooled document for the entity with id and type
// without building one. When it is present a reference is held until
// lifeline ends.
func (p *Pool[D]) GetByID(lifeline context.Context, id string, entityType collab.EntityType) (D, bool) {
	var zero D
	key, err := Key(collab.Entity{Type: entityType, ID: id})
	if err != nil {
		return zero, false
	}

	p.mu.Lock()
	existing := p.entries[key]
	if existing == nil {
		p.mu.Unlock()
		return zero, false
	}
	existing.refs++
	p.mu.Unlock()

	<-existing.ready
	if existing.err != nil {
		return zero, false
	}
	p.hold(lifeline, existing)
	return existing.doc, true
}

// Len returns the number of entries in the pool.
func (p *Pool[D]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// hold releases one reference of e when lifeline ends.
func (p *Pool[D]) hold(lifeline context.Context, e *entry[D]) {
	stop := context.AfterFunc(lifeline, func() { p.release(e) })

	p.mu.Lock()
	defer p.mu.Unlock()
	if e.released {
		stop()
		return
	}
	e.stops = append(e.stops, stop)
}

func (p *Pool[D]) release(e *entry[D]) {
	p.mu.Lock()
	if e.released {
		p.mu.Unlock()
		return
	}
	e.refs--
	if e.refs > 0 {
		p.mu.Unlock()
		return
	}
	e.released = true
	e.stops = nil
	if p.entries[e.key] == e {
		delete(p.entries, e.key)
	}
	p.mu.Unlock()

	p.logger.Debug("pool entry released", "pool_key", e.key)
	p.destroy(e)
}

// Destroy empties the pool and destroys every document regardless of
// outstanding references. It returns one channel per entry that
// receives the entry's destroy error (nil on success) and is then
// closed. A failing entry does not affect the others.
func (p *Pool[D]) Destroy() []<-chan error {
	p.mu.Lock()
	entries := make([]*entry[D], 0, len(p.entries))
	for key, e := range p.entries {
		delete(p.entries, key)
		e.released = true
		for _, stop := range e.stops {
			stop()
		}
		e.stops = nil
		entries = append(entries, e)
	}
	p.mu.Unlock()

	results := make([]<-chan error, len(entries))
	for i, e := range entries {
		results[i] = p.destroy(e)
	}
	return results
}

func (p *Pool[D]) destroy(e *entry[D]) <-chan error {
	result := make(chan error, 1)
	go func() {
		defer close(result)
		err := destroyHandle(e)
		if err != nil {
			p.logger.Warn("destroying pooled document failed", "pool_key", e.key, "error", err)
		}
		result <- err
	}()
	return result
}

func destroyHandle[D Handle](e *entry[D]) (err error) {
	<-e.ready
	if e.err != nil {
		return nil
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("docpool: destroying %s panicked: %v", e.key, recovered)
		}
	}()
	if err := e.doc.Destroy(); err != nil {
		return fmt.Errorf("docpool: destroying %s: %w", e.key, err)
	}
	return nil
}
