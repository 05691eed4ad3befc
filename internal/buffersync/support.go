package buffersync

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dshills/tsbridge/internal/editor"
	"github.com/dshills/tsbridge/internal/event"
	"github.com/dshills/tsbridge/internal/eventloop"
	"github.com/dshills/tsbridge/internal/logging"
	"github.com/dshills/tsbridge/internal/tsserver"
)

// Client is the tsserver command dispatcher and capability oracle.
// *tsserver.Client implements it.
type Client interface {
	Execute(command string, args any, opts tsserver.ExecOptions, onResponse tsserver.ResponseHandler)
	ExecuteAsync(ctx context.Context, command string, args any, done tsserver.ResponseHandler)
	ToTSFilePath(uri editor.URI) (string, bool)
	WorkspaceRootFor(uri editor.URI) (editor.URI, bool)
	APIVersion() tsserver.API
	Capabilities() tsserver.Capabilities
	HasCapabilityForResource(uri editor.URI, capability tsserver.Capability) bool
	Plugins() []tsserver.Plugin
	ProjectDiagnosticsEnabled() bool
}

// Document is an open editor document. *editor.Document implements it.
type Document interface {
	URI() editor.URI
	LanguageID() string
	Text() string
	LineCount() int
}

// Workspace supplies open documents and their lifecycle notifications.
// *editor.Workspace implements it.
type Workspace interface {
	TextDocuments() []*editor.Document
	OnDidOpen(fn func(*editor.Document)) *event.Subscription
	OnDidClose(fn func(*editor.Document)) *event.Subscription
	OnDidChange(fn func(editor.ChangeEvent)) *event.Subscription
	OnDidChangeVisible(fn func([]*editor.Document)) *event.Subscription
}

// Settings supplies the validation switches. OnDidChange may fire on any
// goroutine. *config.Store implements it.
type Settings interface {
	ValidationSettings() (javascript, typescript bool)
	OnDidChange(fn func()) *event.Subscription
}

// Option configures a Support.
type Option func(*Support)

// WithWorkspace sets the document provider used by Listen and
// EnsureHasBuffer.
func WithWorkspace(ws Workspace) Option {
	return func(s *Support) {
		s.workspace = ws
	}
}

// WithSettings sets the configuration provider.
func WithSettings(settings Settings) Option {
	return func(s *Support) {
		s.settings = settings
	}
}

// WithModeIDs replaces the managed language modes.
func WithModeIDs(ids ...string) Option {
	return func(s *Support) {
		s.modeIDs = make(map[string]bool, len(ids))
		for _, id := range ids {
			s.modeIDs[id] = true
		}
	}
}

// WithCaseInsensitiveFileSystem makes absolute paths compare without case.
func WithCaseInsensitiveFileSystem(insensitive bool) Option {
	return func(s *Support) {
		s.caseInsensitive = insensitive
	}
}

// WithLogger sets the logger.
func WithLogger(log *logrus.Entry) Option {
	return func(s *Support) {
		s.log = log
	}
}

// Support keeps tsserver's buffers in sync with the editor and schedules
// diagnostics for them.
type Support struct {
	client    Client
	scheduler eventloop.Scheduler
	workspace Workspace
	settings  Settings
	log       *logrus.Entry

	modeIDs         map[string]bool
	caseInsensitive bool

	validateJavaScript bool
	validateTypeScript bool

	syncedBuffers      *ResourceMap[*syncedBuffer]
	pendingDiagnostics *pendingDiagnostics
	diagnosticDelayer  *delayer
	pendingGetErr      *getErrRequest
	synchronizer       *synchronizer

	listening bool
	clock     int64

	onDelete     event.Emitter[editor.URI]
	onWillChange event.Emitter[editor.URI]
	subs         event.Subscriptions
}

// New creates a Support. Managed language modes default to the TypeScript
// and JavaScript modes plus every language a plugin declares.
func New(client Client, scheduler eventloop.Scheduler, opts ...Option) *Support {
	s := &Support{
		client:             client,
		scheduler:          scheduler,
		log:                logging.NewLogger("buffersync"),
		validateJavaScript: true,
		validateTypeScript: true,
	}
	WithModeIDs(DefaultModeIDs...)(s)
	for _, p := range client.Plugins() {
		for _, lang := range p.Languages {
			s.modeIDs[lang] = true
		}
	}
	for _, opt := range opts {
		opt(s)
	}

	normalize := func(uri editor.URI) (string, bool) {
		return s.client.ToTSFilePath(uri)
	}
	config := ResourceMapConfig{OnCaseInsensitiveFileSystem: s.caseInsensitive}

	s.syncedBuffers = NewResourceMap[*syncedBuffer](normalize, config)
	s.pendingDiagnostics = newPendingDiagnostics(normalize, config)
	s.synchronizer = newSynchronizer(client, normalize, config, s.log)
	s.diagnosticDelayer = newDelayer(scheduler, minDiagnosticDelay)

	s.UpdateConfiguration()
	if s.settings != nil {
		s.subs.Add(s.settings.OnDidChange(func() {
			s.scheduler.Post(s.UpdateConfiguration)
		}))
	}
	return s
}

// OnDelete subscribes to buffers being unregistered.
func (s *Support) OnDelete(fn func(editor.URI)) *event.Subscription {
	return s.onDelete.Subscribe(fn)
}

// OnWillChange subscribes to content changes, delivered before the change
// is forwarded to the server.
func (s *Support) OnWillChange(fn func(editor.URI)) *event.Subscription {
	return s.onWillChange.Subscribe(fn)
}

// Listen subscribes to workspace notifications and opens every document
// that is already open. Later calls do nothing.
func (s *Support) Listen() {
	if s.listening || s.workspace == nil {
		return
	}
	s.listening = true

	s.subs.Add(
		s.workspace.OnDidOpen(func(doc *editor.Document) { s.OpenTextDocument(doc) }),
		s.workspace.OnDidClose(func(doc *editor.Document) { s.CloseResource(doc.URI()) }),
		s.workspace.OnDidChange(s.onDidChangeTextDocument),
		s.workspace.OnDidChangeVisible(s.onDidChangeVisible),
	)

	for _, doc := range s.workspace.TextDocuments() {
		s.OpenTextDocument(doc)
	}
}

// Dispose unsubscribes from every notification and stops pending work.
func (s *Support) Dispose() {
	s.subs.Unsubscribe()
	s.diagnosticDelayer.cancel()
	if s.pendingGetErr != nil {
		s.pendingGetErr.stop()
		s.pendingGetErr = nil
	}
	s.onDelete.Clear()
	s.onWillChange.Clear()
}

// Handles reports whether uri has a registered buffer.
func (s *Support) Handles(uri editor.URI) bool {
	return s.syncedBuffers.Has(uri)
}

// EnsureHasBuffer registers uri if the workspace has it open.
func (s *Support) EnsureHasBuffer(uri editor.URI) bool {
	if s.syncedBuffers.Has(uri) {
		return true
	}
	if s.workspace == nil {
		return false
	}
	for _, doc := range s.workspace.TextDocuments() {
		if doc.URI() == uri {
			return s.OpenTextDocument(doc)
		}
	}
	return false
}

// ToEditorResource returns the registered resource that maps to the same
// server path as uri, or uri itself.
func (s *Support) ToEditorResource(uri editor.URI) editor.URI {
	path, ok := s.client.ToTSFilePath(uri)
	if !ok {
		return uri
	}
	if entry, ok := s.syncedBuffers.getByPath(path); ok {
		return entry.Resource
	}
	return uri
}

// ToResource maps a server path back to the registered resource, falling
// back to a file URI.
func (s *Support) ToResource(filePath string) editor.URI {
	if entry, ok := s.syncedBuffers.getByPath(filePath); ok {
		return entry.Resource
	}
	return editor.FileURI(filePath)
}

// LineCount returns the line count of a registered buffer.
func (s *Support) LineCount(uri editor.URI) (int, bool) {
	buf, ok := s.syncedBuffers.Get(uri)
	if !ok {
		return 0, false
	}
	return buf.lineCount(), true
}

// Reset drops all unsent state. It is used when the server restarts.
func (s *Support) Reset() {
	if s.pendingGetErr != nil {
		s.pendingGetErr.stop()
		s.pendingGetErr = nil
	}
	s.pendingDiagnostics.Clear()
	s.synchronizer.reset()
}

// Reinitialize resets and then reopens every registered buffer so that a
// new server process learns about them.
func (s *Support) Reinitialize() {
	s.Reset()
	for _, buf := range s.syncedBuffers.Values() {
		buf.open()
	}
}

// OpenTextDocument registers and opens doc and requests its diagnostics.
// It reports whether the document is managed.
func (s *Support) OpenTextDocument(doc Document) bool {
	if !s.modeIDs[doc.LanguageID()] {
		return false
	}
	uri := doc.URI()
	filepath, ok := s.client.ToTSFilePath(uri)
	if !ok {
		return false
	}

	if s.syncedBuffers.Has(uri) {
		return true
	}

	buf := newSyncedBuffer(doc, filepath, s.client, s.synchronizer, s.log)
	s.syncedBuffers.Set(uri, buf)
	buf.open()
	s.requestDiagnostic(buf)
	return true
}

// CloseResource unregisters uri. If the server knew the buffer, diagnostics
// for all buffers are requested again since cross-file results may change.
func (s *Support) CloseResource(uri editor.URI) {
	buf, ok := s.syncedBuffers.Get(uri)
	if !ok {
		return
	}

	s.pendingDiagnostics.Delete(uri)
	if s.pendingGetErr != nil {
		s.pendingGetErr.files.Delete(uri)
	}
	s.syncedBuffers.Delete(uri)
	wasOpen := buf.close()
	s.onDelete.Emit(uri)
	if wasOpen {
		s.RequestAllDiagnostics()
	}
}

// InterruptGetErr runs f with diagnostics paused. See Interrupt.
func (s *Support) InterruptGetErr(f func()) {
	Interrupt(s, func() struct{} {
		f()
		return struct{}{}
	})
}

// Interrupt cancels the in-flight diagnostics request, runs f, and then
// schedules diagnostics again. With project diagnostics the request runs on
// a channel that does not compete with f, so nothing is cancelled.
func Interrupt[R any](s *Support, f func() R) R {
	if s.pendingGetErr == nil || s.client.ProjectDiagnosticsEnabled() {
		return f()
	}

	s.pendingGetErr.stop()
	s.pendingGetErr = nil
	result := f()
	s.triggerDiagnostics(defaultDiagnosticDelay)
	return result
}

// BeforeCommand flushes pending buffer operations before command is sent.
func (s *Support) BeforeCommand(command string) {
	s.synchronizer.beforeCommand(command)
}

// RequestAllDiagnostics queues every registered buffer whose language is
// validated.
func (s *Support) RequestAllDiagnostics() {
	for _, buf := range s.syncedBuffers.Values() {
		if s.shouldValidate(buf) {
			s.pendingDiagnostics.Set(buf.resource(), s.now())
		}
	}
	s.triggerDiagnostics(defaultDiagnosticDelay)
}

// GetErr queues the managed subset of uris.
func (s *Support) GetErr(uris []editor.URI) {
	var handled []editor.URI
	for _, uri := range uris {
		if s.Handles(uri) {
			handled = append(handled, uri)
		}
	}
	if len(handled) == 0 {
		return
	}

	for _, uri := range handled {
		s.pendingDiagnostics.Set(uri, s.now())
	}
	s.triggerDiagnostics(defaultDiagnosticDelay)
}

// HasPendingDiagnostics reports whether uri is queued for diagnostics.
func (s *Support) HasPendingDiagnostics(uri editor.URI) bool {
	return s.pendingDiagnostics.Has(uri)
}

// UpdateConfiguration re-reads the validation switches.
func (s *Support) UpdateConfiguration() {
	if s.settings == nil {
		return
	}
	s.validateJavaScript, s.validateTypeScript = s.settings.ValidationSettings()
}

func (s *Support) onDidChangeTextDocument(ev editor.ChangeEvent) {
	buf, ok := s.syncedBuffers.Get(ev.Document.URI())
	if !ok {
		return
	}

	s.onWillChange.Emit(buf.resource())

	buf.onContentChanged(ev.Changes)
	didTrigger := s.requestDiagnostic(buf)

	if !didTrigger && s.pendingGetErr != nil {
		s.pendingGetErr.stop()
		s.pendingGetErr = nil
		s.triggerDiagnostics(defaultDiagnosticDelay)
	}
}

func (s *Support) onDidChangeVisible(docs []*editor.Document) {
	for _, doc := range docs {
		if buf, ok := s.syncedBuffers.Get(doc.URI()); ok {
			s.requestDiagnostic(buf)
		}
	}
}

func (s *Support) triggerDiagnostics(delay time.Duration) {
	s.diagnosticDelayer.trigger(s.sendPendingDiagnostics, delay)
}

func (s *Support) requestDiagnostic(buf *syncedBuffer) bool {
	if !s.shouldValidate(buf) {
		return false
	}

	s.pendingDiagnostics.Set(buf.resource(), s.now())
	s.triggerDiagnostics(diagnosticDelay(buf.lineCount()))
	return true
}

func (s *Support) sendPendingDiagnostics() {
	orderedFileSet := s.pendingDiagnostics.orderedFileSet()

	if s.pendingGetErr != nil {
		s.pendingGetErr.stop()
		for _, uri := range s.pendingGetErr.files.Resources() {
			if s.syncedBuffers.Has(uri) {
				orderedFileSet.Set(uri, struct{}{})
			}
		}
		s.pendingGetErr = nil
	}

	// Registered buffers may be visible and are always revalidated.
	for _, buf := range s.syncedBuffers.Values() {
		orderedFileSet.Set(buf.resource(), struct{}{})
	}

	if orderedFileSet.Len() > 0 {
		var getErr *getErrRequest
		getErr = executeGetErrRequest(s.client, s.scheduler, orderedFileSet, s.log, func() {
			if s.pendingGetErr == getErr {
				s.pendingGetErr = nil
			}
		})
		s.pendingGetErr = getErr
	}

	s.pendingDiagnostics.Clear()
}

func (s *Support) shouldValidate(buf *syncedBuffer) bool {
	switch buf.kind() {
	case bufferKindJavaScript:
		return s.validateJavaScript
	default:
		return s.validateTypeScript
	}
}

// now returns a strictly increasing logical timestamp for queue ordering.
func (s *Support) now() int64 {
	s.clock++
	return s.clock
}
