package editor

import (
	"strings"
)

// Document is an open text buffer.
type Document struct {
	uri        URI
	languageID string
	text       string
	version    int
}

// NewDocument creates a document at version 1.
func NewDocument(uri URI, languageID, text string) *Document {
	return &Document{
		uri:        uri,
		languageID: languageID,
		text:       text,
		version:    1,
	}
}

// URI returns the document identity.
func (d *Document) URI() URI { return d.uri }

// LanguageID returns the language mode, for example "typescript".
func (d *Document) LanguageID() string { return d.languageID }

// Text returns a snapshot of the full text.
func (d *Document) Text() string { return d.text }

// Version increments on every applied change event.
func (d *Document) Version() int { return d.version }

// LineCount returns the number of lines. An empty document has one line.
func (d *Document) LineCount() int {
	return strings.Count(d.text, "\n") + 1
}

// SetLanguageID changes the language mode.
func (d *Document) SetLanguageID(languageID string) {
	d.languageID = languageID
}

// apply applies a change event and bumps the version.
func (d *Document) apply(changes []ContentChange) error {
	text, err := applyChanges(d.text, changes)
	if err != nil {
		return err
	}
	d.text = text
	d.version++
	return nil
}
