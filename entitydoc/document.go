// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

package entitydoc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/fieldsync/fieldsync/collab"
	"github.com/fieldsync/fieldsync/contentapi"
	"github.com/fieldsync/fieldsync/lib/diagnostics"
	"github.com/fieldsync/fieldsync/lib/signal"
	"github.com/fieldsync/fieldsync/sharejs"
)

// Status is what a Document currently allows.
type Status int

const (
	// StatusLoading: the document is being opened.
	StatusLoading Status = iota
	// StatusEditable: reads and writes go to the live document.
	StatusEditable
	// StatusReadOnly: the loader was told not to open the document.
	StatusReadOnly
	// StatusDisconnected: the connection dropped; unacknowledged edits
	// are replayed when it recovers.
	StatusDisconnected
	// StatusFailed: the server refused to open the document.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusEditable:
		return "editable"
	case StatusReadOnly:
		return "read-only"
	case StatusDisconnected:
		return "disconnected"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// ErrNotEditable is returned by writes while the document is not open.
var ErrNotEditable = errors.New("entitydoc: document is not editable")

// Loader supplies the document load state. *collab.DocLoader
// implements it.
type Loader interface {
	State() *signal.Signal[collab.DocLoadState]
	Destroy()
}

// EntityRepo reads entities and applies server-side actions to them.
// *contentapi.Client implements it.
type EntityRepo interface {
	Fetch(ctx context.Context, entityType string, ids []string) ([]contentapi.Entity, error)
	Apply(ctx context.Context, entityType, id string, version int, action contentapi.Action) (*contentapi.Entity, error)
}

// Config holds the collaborators of a Document.
type Config struct {
	// Entity is the entry or asset being edited.
	Entity collab.Entity

	// ContentType restricts the fields kept by Normalize. Nil keeps
	// every field.
	ContentType *contentapi.ContentType

	// Locales returns the locales configured for the space. It is
	// called once per loaded document handle.
	Locales func() []contentapi.Locale

	// Repo serves Refresh and ApplyAction. Nil disables both.
	Repo EntityRepo

	// OnConflict is called with the path of a remote edit that touched
	// a value with unacknowledged local edits.
	OnConflict func(path []any)

	// OnError is called when the document fails to open or an edit is
	// rejected.
	OnError func(error)

	// Reporter receives unexpected conditions. If nil, they are logged.
	Reporter diagnostics.Reporter

	// Logger is used for structured logging. If nil, slog.Default() is
	// used.
	Logger *slog.Logger
}

// Document is the editable document of one entity.
type Document struct {
	entity      collab.Entity
	contentType *contentapi.ContentType
	locales     func() []contentapi.Locale
	repo        EntityRepo
	onConflict  func(path []any)
	onError     func(error)
	reporter    diagnostics.Reporter
	logger      *slog.Logger

	loader  Loader
	status  *signal.Signal[Status]
	channel *signal.Signal[collab.Channel]
	stop    func()

	mu           sync.Mutex
	doc          collab.RawDoc
	removeRemote func()
	sys          contentapi.Sys
	destroyed    bool
}

// New returns a Document following loader. The Document owns loader
// and destroys it in Destroy.
func New(loader Loader, config Config) (*Document, error) {
	if err := config.Entity.Validate(); err != nil {
		return nil, err
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reporter := config.Reporter
	if reporter == nil {
		reporter = diagnostics.NewLogReporter(logger)
	}
	locales := config.Locales
	if locales == nil {
		locales = func() []contentapi.Locale { return nil }
	}

	state := loader.State()
	d := &Document{
		entity:      config.Entity,
		contentType: config.ContentType,
		locales:     locales,
		repo:        config.Repo,
		onConflict:  config.OnConflict,
		onError:     config.OnError,
		reporter:    reporter,
		logger:      logger.With("entity_type", string(config.Entity.Type), "entity_id", config.Entity.ID),
		loader:      loader,
		status:      signal.New(state.Scheduler(), StatusLoading, signal.SkipEqual[Status]()),
		channel: signal.New[collab.Channel](state.Scheduler(), nil,
			signal.SkipDuplicates(func(a, b collab.Channel) bool { return a == b })),
	}
	d.stop = state.Subscribe(d.handle)
	return d, nil
}

// Entity returns the entity this document edits.
func (d *Document) Entity() collab.Entity { return d.entity }

// Status returns the status signal.
func (d *Document) Status() *signal.Signal[Status] { return d.status }

// Channel returns a signal holding the message channel of the open
// document handle, or nil while there is none.
func (d *Document) Channel() *signal.Signal[collab.Channel] { return d.channel }

// handle runs inside a scheduler task for every load state.
func (d *Document) handle(state collab.DocLoadState) {
	switch state := state.(type) {
	case collab.LoadNone:
		d.detach()
		d.status.Set(StatusReadOnly)
	case collab.LoadPending:
		d.status.Set(StatusLoading)
	case collab.LoadDoc:
		d.attach(state.Doc)
	case collab.LoadError:
		d.detach()
		if errors.Is(state.Err, collab.ErrDisconnected) {
			d.status.Set(StatusDisconnected)
			return
		}
		d.logger.Warn("document failed to open", "error", state.Err)
		d.status.Set(StatusFailed)
		d.fail(state.Err)
	default:
		d.report(fmt.Errorf("entitydoc: unexpected load state %T", state),
			map[string]string{"load_state": fmt.Sprint(state)})
	}
}

func (d *Document) attach(doc collab.RawDoc) {
	d.mu.Lock()
	if d.destroyed || d.doc == doc {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()
	d.detach()

	if err := Normalize(doc, d.contentType, d.locales()); err != nil {
		d.report(err, map[string]string{"doc_key": doc.Name()})
	}

	removeRemote := doc.OnRemoteOp(func(op sharejs.Op) { d.checkConflict(doc, op) })
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		removeRemote()
		return
	}
	d.doc = doc
	d.removeRemote = removeRemote
	d.mu.Unlock()

	d.logger.Debug("document attached", "doc_key", doc.Name(), "version", doc.Version())
	d.channel.Set(doc)
	d.status.Set(StatusEditable)
}

func (d *Document) detach() {
	d.mu.Lock()
	removeRemote := d.removeRemote
	attached := d.doc != nil
	d.doc = nil
	d.removeRemote = nil
	d.mu.Unlock()

	if removeRemote != nil {
		removeRemote()
	}
	if attached {
		d.channel.Set(nil)
	}
}

// checkConflict reports every path of a remote op that overlaps a
// local edit still waiting for acknowledgement.
func (d *Document) checkConflict(doc collab.RawDoc, remote sharejs.Op) {
	if d.onConflict == nil {
		return
	}
	local := append(doc.InflightOp(), doc.PendingOp()...)
	for _, remotePath := range remote.Paths() {
		for _, localPath := range local.Paths() {
			if overlaps(remotePath, localPath) {
				d.logger.Info("remote edit conflicts with local edit", "path", fmt.Sprint(remotePath))
				d.onConflict(slices.Clone(remotePath))
				break
			}
		}
	}
}

func overlaps(a, b []any) bool {
	n := min(len(a), len(b))
	return slices.Equal(a[:n], b[:n])
}

func (d *Document) current() collab.RawDoc {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc
}

// GetValueAt returns the value at path, or false while no document is
// open or nothing is there.
func (d *Document) GetValueAt(path []any) (any, bool) {
	doc := d.current()
	if doc == nil {
		return nil, false
	}
	return doc.GetAt(path)
}

// SetValueAt sets the value at path. It returns ErrNotEditable while
// no document is open. Rejection by the server is reported to
// OnError.
func (d *Document) SetValueAt(path []any, value any) error {
	doc := d.current()
	if doc == nil {
		return ErrNotEditable
	}
	return doc.SetAt(path, value, d.acknowledged(path))
}

// RemoveValueAt removes the value at path.
func (d *Document) RemoveValueAt(path []any) error {
	doc := d.current()
	if doc == nil {
		return ErrNotEditable
	}
	return doc.RemoveAt(path, d.acknowledged(path))
}

func (d *Document) acknowledged(path []any) func(error) {
	return func(err error) {
		if err != nil {
			d.logger.Warn("edit rejected", "path", fmt.Sprint(path), "error", err)
			d.fail(err)
		}
	}
}

// Version returns the version of the open document, or 0.
func (d *Document) Version() int {
	doc := d.current()
	if doc == nil {
		return 0
	}
	return doc.Version()
}

// Sys returns the entity metadata last fetched by Refresh or
// returned by ApplyAction.
func (d *Document) Sys() contentapi.Sys {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sys
}

// Refresh fetches the entity's metadata from the repo.
func (d *Document) Refresh(ctx context.Context) error {
	if d.repo == nil {
		return errors.New("entitydoc: no entity repo configured")
	}
	entities, err := d.repo.Fetch(ctx, string(d.entity.Type), []string{d.entity.ID})
	if err != nil {
		return fmt.Errorf("entitydoc: refreshing %s %s: %w", d.entity.Type, d.entity.ID, err)
	}
	for _, entity := range entities {
		if entity.Sys.ID == d.entity.ID {
			d.setSys(entity.Sys)
			return nil
		}
	}
	return fmt.Errorf("entitydoc: %s %s not found", d.entity.Type, d.entity.ID)
}

// ApplyAction performs action on the server at the entity's current
// version, refreshing the metadata first when it was never fetched.
func (d *Document) ApplyAction(ctx context.Context, action contentapi.Action) error {
	if d.repo == nil {
		return errors.New("entitydoc: no entity repo configured")
	}
	if d.Sys().Version == 0 {
		if err := d.Refresh(ctx); err != nil {
			return err
		}
	}
	entity, err := d.repo.Apply(ctx, string(d.entity.Type), d.entity.ID, d.Sys().Version, action)
	if err != nil {
		return err
	}
	d.setSys(entity.Sys)
	return nil
}

func (d *Document) setSys(sys contentapi.Sys) {
	d.mu.Lock()
	d.sys = sys
	d.mu.Unlock()
}

func (d *Document) fail(err error) {
	if d.onError != nil {
		d.onError(err)
	}
}

func (d *Document) report(err error, tags map[string]string) {
	d.reporter.Report(context.Background(), diagnostics.Report{
		EntityType: string(d.entity.Type),
		EntityID:   d.entity.ID,
		Err:        err,
		Tags:       tags,
	})
}

// Destroy stops following the loader, destroys it and ends the
// document's signals. Destroying twice is a no-op.
func (d *Document) Destroy() error {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return nil
	}
	d.destroyed = true
	d.mu.Unlock()

	d.stop()
	d.loader.Destroy()
	d.detach()
	d.status.End()
	d.channel.End()
	d.logger.Debug("document destroyed")
	return nil
}
