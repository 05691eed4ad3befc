package editor

import (
	"errors"
	"fmt"

	"github.com/dshills/tsbridge/internal/event"
)

var (
	// ErrDocumentNotOpen indicates the document is not open.
	ErrDocumentNotOpen = errors.New("document not open")

	// ErrDocumentAlreadyOpen indicates the document is already open.
	ErrDocumentAlreadyOpen = errors.New("document already open")
)

// ChangeEvent describes one edit applied to a document. Changes are in
// ascending document order and are all relative to the text before the edit.
type ChangeEvent struct {
	Document *Document
	Changes  []ContentChange
}

// Workspace tracks open documents and publishes lifecycle notifications.
//
// Workspace is not safe for concurrent use; it is driven from the event loop
// that also owns the synchronization core, so notifications are delivered in
// the order the edits happened.
type Workspace struct {
	documents []*Document
	index     map[URI]*Document
	visible   []URI

	onDidOpen          event.Emitter[*Document]
	onDidClose         event.Emitter[*Document]
	onDidChange        event.Emitter[ChangeEvent]
	onDidChangeVisible event.Emitter[[]*Document]
}

// NewWorkspace creates an empty workspace.
func NewWorkspace() *Workspace {
	return &Workspace{
		index: make(map[URI]*Document),
	}
}

// Open opens a document and notifies subscribers.
func (w *Workspace) Open(uri URI, languageID, text string) (*Document, error) {
	if _, ok := w.index[uri]; ok {
		return nil, fmt.Errorf("open %s: %w", uri, ErrDocumentAlreadyOpen)
	}

	doc := NewDocument(uri, languageID, text)
	w.documents = append(w.documents, doc)
	w.index[uri] = doc

	w.onDidOpen.Emit(doc)
	return doc, nil
}

// Change applies a change event and notifies subscribers. The changes may
// arrive in any order; subscribers see them sorted by start position.
func (w *Workspace) Change(uri URI, changes []ContentChange) error {
	doc, ok := w.index[uri]
	if !ok {
		return fmt.Errorf("change %s: %w", uri, ErrDocumentNotOpen)
	}
	changes = sortChanges(changes)
	if err := doc.apply(changes); err != nil {
		return fmt.Errorf("change %s: %w", uri, err)
	}

	w.onDidChange.Emit(ChangeEvent{Document: doc, Changes: changes})
	return nil
}

// Close closes a document and notifies subscribers.
func (w *Workspace) Close(uri URI) error {
	doc, ok := w.index[uri]
	if !ok {
		return fmt.Errorf("close %s: %w", uri, ErrDocumentNotOpen)
	}

	delete(w.index, uri)
	for i, d := range w.documents {
		if d == doc {
			w.documents = append(w.documents[:i], w.documents[i+1:]...)
			break
		}
	}

	w.onDidClose.Emit(doc)
	return nil
}

// SetVisible replaces the set of visible documents. Unknown URIs are ignored.
func (w *Workspace) SetVisible(uris []URI) {
	w.visible = append(w.visible[:0], uris...)

	docs := make([]*Document, 0, len(uris))
	for _, uri := range uris {
		if doc, ok := w.index[uri]; ok {
			docs = append(docs, doc)
		}
	}
	w.onDidChangeVisible.Emit(docs)
}

// Visible returns the URIs last passed to SetVisible.
func (w *Workspace) Visible() []URI {
	return append([]URI(nil), w.visible...)
}

// Document returns the open document for uri.
func (w *Workspace) Document(uri URI) (*Document, bool) {
	doc, ok := w.index[uri]
	return doc, ok
}

// TextDocuments returns all open documents in the order they were opened.
func (w *Workspace) TextDocuments() []*Document {
	return append([]*Document(nil), w.documents...)
}

// OnDidOpen subscribes to document opens.
func (w *Workspace) OnDidOpen(fn func(*Document)) *event.Subscription {
	return w.onDidOpen.Subscribe(fn)
}

// OnDidClose subscribes to document closes.
func (w *Workspace) OnDidClose(fn func(*Document)) *event.Subscription {
	return w.onDidClose.Subscribe(fn)
}

// OnDidChange subscribes to content changes.
func (w *Workspace) OnDidChange(fn func(ChangeEvent)) *event.Subscription {
	return w.onDidChange.Subscribe(fn)
}

// OnDidChangeVisible subscribes to visible editor changes.
func (w *Workspace) OnDidChangeVisible(fn func([]*Document)) *event.Subscription {
	return w.onDidChangeVisible.Subscribe(fn)
}
