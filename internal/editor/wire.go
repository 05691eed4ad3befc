package editor

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// EventType names a headless editor event.
type EventType string

// Editor events accepted on the JSON-lines stream.
const (
	EventOpen    EventType = "open"
	EventChange  EventType = "change"
	EventClose   EventType = "close"
	EventVisible EventType = "visible"
	EventGetErr  EventType = "geterr"
	EventCommand EventType = "command"
)

// ErrUnhandledEvent is returned by Workspace.Apply for events that do not
// change workspace state.
var ErrUnhandledEvent = errors.New("event does not target the workspace")

// ErrMalformedEvent marks a line that could not be decoded. The decoder can
// keep reading after it.
var ErrMalformedEvent = errors.New("malformed event")

// Event is one line of the headless editor protocol.
type Event struct {
	Type       EventType       `json:"type"`
	URI        URI             `json:"uri,omitempty"`
	URIs       []URI           `json:"uris,omitempty"`
	LanguageID string          `json:"languageId,omitempty"`
	Text       string          `json:"text,omitempty"`
	Changes    []ContentChange `json:"changes,omitempty"`
	Command    string          `json:"command,omitempty"`
	Arguments  json.RawMessage `json:"arguments,omitempty"`
}

// Validate checks that the fields required by the event type are present.
func (e Event) Validate() error {
	switch e.Type {
	case EventOpen:
		if e.URI == "" || e.LanguageID == "" {
			return errors.New("open requires uri and languageId")
		}
	case EventChange:
		if e.URI == "" {
			return errors.New("change requires uri")
		}
	case EventClose:
		if e.URI == "" {
			return errors.New("close requires uri")
		}
	case EventVisible, EventGetErr:
	case EventCommand:
		if e.Command == "" {
			return errors.New("command requires command")
		}
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	return nil
}

const maxLineSize = 64 * 1024 * 1024

// Decoder reads events from a JSON-lines stream.
type Decoder struct {
	scanner *bufio.Scanner
	line    int
}

// NewDecoder creates a decoder over r.
func NewDecoder(r io.Reader) *Decoder {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Decoder{scanner: s}
}

// Next returns the next event. It returns io.EOF at end of input. A malformed
// line yields an ErrMalformedEvent error but does not stop the decoder.
func (d *Decoder) Next() (Event, error) {
	for d.scanner.Scan() {
		d.line++
		data := bytes.TrimSpace(d.scanner.Bytes())
		if len(data) == 0 {
			continue
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			return Event{}, fmt.Errorf("line %d: %w: %w", d.line, ErrMalformedEvent, err)
		}
		if err := ev.Validate(); err != nil {
			return Event{}, fmt.Errorf("line %d: %w: %w", d.line, ErrMalformedEvent, err)
		}
		return ev, nil
	}

	if err := d.scanner.Err(); err != nil {
		return Event{}, err
	}
	return Event{}, io.EOF
}

// Apply performs the workspace side of an event.
func (w *Workspace) Apply(ev Event) error {
	switch ev.Type {
	case EventOpen:
		_, err := w.Open(ev.URI, ev.LanguageID, ev.Text)
		return err
	case EventChange:
		return w.Change(ev.URI, ev.Changes)
	case EventClose:
		return w.Close(ev.URI)
	case EventVisible:
		w.SetVisible(ev.URIs)
		return nil
	default:
		return ErrUnhandledEvent
	}
}
