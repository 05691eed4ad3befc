package tsserver

import (
	"encoding/json"
)

// Commands issued by the bridge.
const (
	CommandUpdateOpen       = "updateOpen"
	CommandGeterr           = "geterr"
	CommandGeterrForProject = "geterrForProject"
	CommandStatus           = "status"
	CommandConfigure        = "configure"
)

// Events emitted by the server.
const (
	EventRequestCompleted = "requestCompleted"
	EventSyntaxDiag       = "syntaxDiag"
	EventSemanticDiag     = "semanticDiag"
	EventSuggestionDiag   = "suggestionDiag"
)

// Message types.
const (
	TypeRequest  = "request"
	TypeResponse = "response"
	TypeEvent    = "event"
)

// Request is a client to server message.
type Request struct {
	Seq       int64  `json:"seq"`
	Type      string `json:"type"`
	Command   string `json:"command"`
	Arguments any    `json:"arguments,omitempty"`
}

// Response answers a request.
type Response struct {
	Seq        int64           `json:"seq"`
	Type       string          `json:"type"`
	Command    string          `json:"command"`
	RequestSeq int64           `json:"request_seq"`
	Success    bool            `json:"success"`
	Message    string          `json:"message,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
}

// Event is an unsolicited server message.
type Event struct {
	Seq   int64           `json:"seq"`
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Body  json.RawMessage `json:"body,omitempty"`
}

// Location is a one-based line and character offset.
type Location struct {
	Line   int `json:"line"`
	Offset int `json:"offset"`
}

// CodeEdit replaces the text between Start and End.
type CodeEdit struct {
	Start   Location `json:"start"`
	End     Location `json:"end"`
	NewText string   `json:"newText"`
}

// FileCodeEdits is the edit batch for one file. TextChanges are ordered from
// the end of the document towards the start.
type FileCodeEdits struct {
	FileName    string     `json:"fileName"`
	TextChanges []CodeEdit `json:"textChanges"`
}

// ScriptKindName hints how the server should parse a file.
type ScriptKindName string

// Script kinds.
const (
	ScriptKindTS  ScriptKindName = "TS"
	ScriptKindTSX ScriptKindName = "TSX"
	ScriptKindJS  ScriptKindName = "JS"
	ScriptKindJSX ScriptKindName = "JSX"
)

// OpenRequestArgs opens a file with the given content.
type OpenRequestArgs struct {
	File            string         `json:"file"`
	FileContent     string         `json:"fileContent"`
	ProjectRootPath string         `json:"projectRootPath,omitempty"`
	ScriptKindName  ScriptKindName `json:"scriptKindName,omitempty"`
	Plugins         []string       `json:"plugins,omitempty"`
}

// UpdateOpenRequestArgs batches opens, edits, and closes in one command.
type UpdateOpenRequestArgs struct {
	OpenFiles    []OpenRequestArgs `json:"openFiles"`
	ChangedFiles []FileCodeEdits   `json:"changedFiles"`
	ClosedFiles  []string          `json:"closedFiles"`
}

// GeterrRequestArgs requests diagnostics for a list of files.
type GeterrRequestArgs struct {
	Delay int      `json:"delay"`
	Files []string `json:"files"`
}

// GeterrForProjectRequestArgs requests diagnostics for the project containing File.
type GeterrForProjectRequestArgs struct {
	Delay int    `json:"delay"`
	File  string `json:"file"`
}

// ConfigureRequestArgs configures the server host.
type ConfigureRequestArgs struct {
	HostInfo string `json:"hostInfo,omitempty"`
}

// StatusResponseBody is the body of a status response.
type StatusResponseBody struct {
	Version string `json:"version"`
}

// RequestCompletedEventBody signals the end of an asynchronous request.
type RequestCompletedEventBody struct {
	RequestSeq int64 `json:"request_seq"`
}

// Diagnostic is a single server diagnostic.
type Diagnostic struct {
	Start    Location `json:"start"`
	End      Location `json:"end"`
	Text     string   `json:"text"`
	Code     int      `json:"code,omitempty"`
	Category string   `json:"category"`
	Source   string   `json:"source,omitempty"`
}

// DiagnosticEventBody is the body of syntaxDiag, semanticDiag, and suggestionDiag events.
type DiagnosticEventBody struct {
	File        string       `json:"file"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// DiagnosticEvent is a diagnostics report for one file.
type DiagnosticEvent struct {
	// Kind is the event name, for example semanticDiag.
	Kind        string
	File        string
	Diagnostics []Diagnostic
}
