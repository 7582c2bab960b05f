// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

package entitydoc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"

	"github.com/fieldsync/fieldsync/collab"
	"github.com/fieldsync/fieldsync/contentapi"
	"github.com/fieldsync/fieldsync/lib/diagnostics"
	"github.com/fieldsync/fieldsync/lib/signal"
	"github.com/fieldsync/fieldsync/sharejs"
)

type fakeLoader struct {
	state     *signal.Signal[collab.DocLoadState]
	destroyed int
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		state: signal.New[collab.DocLoadState](signal.NewScheduler(), collab.LoadPending{}),
	}
}

func (l *fakeLoader) State() *signal.Signal[collab.DocLoadState] { return l.state }

func (l *fakeLoader) Destroy() {
	l.destroyed++
	l.state.End()
}

// fakeDoc is a detached sharejs document whose remote ops are injected
// by the test.
type fakeDoc struct {
	*sharejs.Doc
	mu     sync.Mutex
	remote func(sharejs.Op)
}

func newFakeDoc(fields map[string]any) *fakeDoc {
	return &fakeDoc{Doc: sharejs.NewDetachedDoc("space!entry!e1", 4, map[string]any{"fields": fields})}
}

func (d *fakeDoc) OnRemoteOp(callback func(sharejs.Op)) func() {
	d.mu.Lock()
	d.remote = callback
	d.mu.Unlock()
	return func() {
		d.mu.Lock()
		d.remote = nil
		d.mu.Unlock()
	}
}

func (d *fakeDoc) deliver(op sharejs.Op) {
	d.mu.Lock()
	remote := d.remote
	d.mu.Unlock()
	if remote != nil {
		remote(op)
	}
}

// bogusState is a load state the Document has no case for.
type bogusState struct{ collab.LoadNone }

type fakeRepo struct {
	version int
	applied []contentapi.Action
}

func (r *fakeRepo) Fetch(_ context.Context, entityType string, ids []string) ([]contentapi.Entity, error) {
	if entityType != "Entry" || len(ids) != 1 {
		return nil, errors.New("unexpected fetch")
	}
	return []contentapi.Entity{{Sys: contentapi.Sys{ID: ids[0], Version: r.version}}}, nil
}

func (r *fakeRepo) Apply(_ context.Context, _, id string, version int, action contentapi.Action) (*contentapi.Entity, error) {
	if version != r.version {
		return nil, &contentapi.APIError{StatusCode: 409, ID: "VersionMismatch"}
	}
	r.version++
	r.applied = append(r.applied, action)
	return &contentapi.Entity{Sys: contentapi.Sys{ID: id, Version: r.version}}, nil
}

var testEntity = collab.Entity{Type: collab.EntityEntry, ID: "e1"}

func newTestDocument(t *testing.T, loader *fakeLoader, config Config) *Document {
	t.Helper()
	config.Entity = testEntity
	config.Locales = func() []contentapi.Locale { return english }
	config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	document, err := New(loader, config)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { document.Destroy() })
	return document
}

func TestDocumentStatus(t *testing.T) {
	loader := newFakeLoader()
	var errs []error
	document := newTestDocument(t, loader, Config{OnError: func(err error) { errs = append(errs, err) }})

	expect := func(want Status) {
		t.Helper()
		if got := document.Status().Get(); got != want {
			t.Fatalf("Status = %s, want %s", got, want)
		}
	}
	expect(StatusLoading)

	doc := newFakeDoc(map[string]any{"title": map[string]any{"en": "Hi", "xx": "gone"}})
	loader.state.Set(collab.LoadDoc{Doc: doc})
	expect(StatusEditable)
	if document.Channel().Get() != collab.Channel(doc) {
		t.Error("Channel does not hold the open document")
	}
	if value, ok := document.GetValueAt([]any{"fields", "title"}); !ok || !reflect.DeepEqual(value, map[string]any{"en": "Hi"}) {
		t.Errorf("title = %v, want normalized value", value)
	}
	if document.Version() != 4 {
		t.Errorf("Version = %d, want 4", document.Version())
	}

	loader.state.Set(collab.LoadError{Err: collab.ErrDisconnected})
	expect(StatusDisconnected)
	if document.Channel().Get() != nil {
		t.Error("Channel still set after disconnect")
	}
	if err := document.SetValueAt([]any{"fields", "title", "en"}, "x"); !errors.Is(err, ErrNotEditable) {
		t.Errorf("SetValueAt while disconnected = %v, want ErrNotEditable", err)
	}
	if _, ok := document.GetValueAt([]any{"fields"}); ok {
		t.Error("GetValueAt succeeded with no document")
	}

	loader.state.Set(collab.LoadDoc{Doc: newFakeDoc(map[string]any{})})
	expect(StatusEditable)

	loader.state.Set(collab.LoadNone{})
	expect(StatusReadOnly)

	rejected := errors.New("forbidden")
	loader.state.Set(collab.LoadError{Err: rejected})
	expect(StatusFailed)
	if len(errs) != 1 || errs[0] != rejected {
		t.Errorf("OnError calls = %v, want [forbidden]", errs)
	}
}

func TestDocumentEditing(t *testing.T) {
	loader := newFakeLoader()
	document := newTestDocument(t, loader, Config{})
	doc := newFakeDoc(map[string]any{})
	loader.state.Set(collab.LoadDoc{Doc: doc})

	if err := document.SetValueAt([]any{"fields", "title", "en"}, "Hello"); err != nil {
		t.Fatalf("SetValueAt: %v", err)
	}
	if value, _ := document.GetValueAt([]any{"fields", "title", "en"}); value != "Hello" {
		t.Errorf("title = %v, want Hello", value)
	}
	if err := document.RemoveValueAt([]any{"fields", "title"}); err != nil {
		t.Fatalf("RemoveValueAt: %v", err)
	}
	if _, ok := document.GetValueAt([]any{"fields", "title"}); ok {
		t.Error("title still present after RemoveValueAt")
	}
	if len(doc.PendingOp()) != 2 {
		t.Errorf("PendingOp = %v, want two components", doc.PendingOp())
	}
}

func TestDocumentConflict(t *testing.T) {
	loader := newFakeLoader()
	var conflicts [][]any
	document := newTestDocument(t, loader, Config{OnConflict: func(path []any) { conflicts = append(conflicts, path) }})
	doc := newFakeDoc(map[string]any{})
	loader.state.Set(collab.LoadDoc{Doc: doc})

	if err := document.SetValueAt([]any{"fields", "title", "en"}, "mine"); err != nil {
		t.Fatalf("SetValueAt: %v", err)
	}

	doc.deliver(sharejs.Op{sharejs.InsertAt([]any{"fields", "body"}, map[string]any{"en": "theirs"})})
	if len(conflicts) != 0 {
		t.Fatalf("conflicts = %v after unrelated edit", conflicts)
	}

	doc.deliver(sharejs.Op{sharejs.InsertAt([]any{"fields", "title"}, map[string]any{"en": "theirs"})})
	if len(conflicts) != 1 || !reflect.DeepEqual(conflicts[0], []any{"fields", "title"}) {
		t.Errorf("conflicts = %v, want [[fields title]]", conflicts)
	}
}

func TestDocumentReportsUnexpectedState(t *testing.T) {
	loader := newFakeLoader()
	var reports []diagnostics.Report
	document := newTestDocument(t, loader, Config{
		Reporter: diagnostics.ReporterFunc(func(_ context.Context, report diagnostics.Report) {
			reports = append(reports, report)
		}),
	})

	loader.state.Set(bogusState{})
	if len(reports) != 1 {
		t.Fatalf("got %d reports, want 1", len(reports))
	}
	if reports[0].EntityType != "Entry" || reports[0].EntityID != "e1" {
		t.Errorf("report = %+v", reports[0])
	}
	if document.Status().Get() != StatusLoading {
		t.Errorf("Status = %s, want loading to be kept", document.Status().Get())
	}
}

func TestDocumentApplyAction(t *testing.T) {
	repo := &fakeRepo{version: 5}
	document := newTestDocument(t, newFakeLoader(), Config{Repo: repo})

	if err := document.ApplyAction(context.Background(), contentapi.ActionPublish); err != nil {
		t.Fatalf("ApplyAction: %v", err)
	}
	if document.Sys().Version != 6 {
		t.Errorf("Sys().Version = %d, want 6", document.Sys().Version)
	}
	if err := document.ApplyAction(context.Background(), contentapi.ActionArchive); err != nil {
		t.Fatalf("second ApplyAction: %v", err)
	}
	if !reflect.DeepEqual(repo.applied, []contentapi.Action{contentapi.ActionPublish, contentapi.ActionArchive}) {
		t.Errorf("applied = %v", repo.applied)
	}

	repo.version = 20
	var apiErr *contentapi.APIError
	if err := document.ApplyAction(context.Background(), contentapi.ActionUnarchive); !errors.As(err, &apiErr) {
		t.Errorf("stale ApplyAction = %v, want *APIError", err)
	}
}

func TestDocumentDestroy(t *testing.T) {
	loader := newFakeLoader()
	document, err := New(loader, Config{Entity: testEntity, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	loader.state.Set(collab.LoadDoc{Doc: newFakeDoc(map[string]any{})})

	if err := document.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if err := document.Destroy(); err != nil {
		t.Fatalf("second Destroy: %v", err)
	}
	if loader.destroyed != 1 {
		t.Errorf("loader destroyed %d times, want 1", loader.destroyed)
	}
	if !document.Status().Ended() || !document.Channel().Ended() {
		t.Error("signals not ended after Destroy")
	}
	if _, ok := document.GetValueAt([]any{"fields"}); ok {
		t.Error("GetValueAt succeeded after Destroy")
	}
}

func TestNewRejectsInvalidEntity(t *testing.T) {
	_, err := New(newFakeLoader(), Config{Entity: collab.Entity{Type: "Space", ID: "s"}})
	if !errors.Is(err, collab.ErrInvalidEntity) {
		t.Errorf("New = %v, want ErrInvalidEntity", err)
	}
}
