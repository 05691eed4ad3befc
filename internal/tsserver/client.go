package tsserver

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dshills/tsbridge/internal/editor"
	"github.com/dshills/tsbridge/internal/event"
)

// DefaultRequestTimeout bounds the startup handshake.
const DefaultRequestTimeout = 10 * time.Second

// Plugin is a tsserver plugin the bridge announces for some languages.
type Plugin struct {
	Name      string
	Languages []string
}

// ClientConfig configures a Client.
type ClientConfig struct {
	Server ServerConfig

	// WorkspaceRoots are the roots used for project root hints.
	WorkspaceRoots []editor.URI

	Plugins []Plugin

	// EnableProjectDiagnostics makes geterr requests cover whole projects.
	EnableProjectDiagnostics bool

	// RequestTimeout bounds synchronous requests such as status.
	RequestTimeout time.Duration
}

// ExecOptions controls how Execute treats failures.
type ExecOptions struct {
	// NonRecoverable marks commands whose failure leaves the server with
	// unknown state. Such a failure kills the server so that it is restarted
	// from scratch.
	NonRecoverable bool
}

// Client executes commands against the current tsserver process and answers
// questions about it: API version, capabilities, path mapping.
type Client struct {
	mu           sync.RWMutex
	config       ClientConfig
	server       *Server
	apiVersion   API
	capabilities Capabilities

	// held refuses commands on a restarted server until Resume.
	held bool

	beforeCommand func(command string)
	diagnostics   event.Emitter[DiagnosticEvent]

	log *logrus.Entry
}

// NewClient creates a client. No server is started until Start.
func NewClient(config ClientConfig, log *logrus.Entry) *Client {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}
	return &Client{
		config:       config,
		apiVersion:   DefaultAPI,
		capabilities: CapabilitiesFor(config.Server.Mode),
		log:          log,
	}
}

// Start launches a new server, replacing any current one, and performs the
// status handshake to learn the API version. When a server was attached
// before, commands are refused with ErrServerNotRunning until Resume so that
// nothing reaches the new process before the caller has replayed its state.
func (c *Client) Start(ctx context.Context) error {
	c.mu.RLock()
	old := c.server
	serverConfig := c.config.Server
	c.mu.RUnlock()

	if old != nil {
		old.Kill()
	}

	srv := NewServer(serverConfig, c.log)
	if err := srv.Start(ctx); err != nil {
		return err
	}
	c.attach(srv, old != nil)

	c.handshake(ctx)
	return nil
}

// attach makes srv the current server and routes its events.
func (c *Client) attach(srv *Server, hold bool) {
	tr := srv.Transport()
	for _, name := range []string{EventSyntaxDiag, EventSemanticDiag, EventSuggestionDiag} {
		tr.OnEvent(name, c.handleDiagnosticEvent)
	}

	c.mu.Lock()
	c.server = srv
	c.held = hold
	c.apiVersion = DefaultAPI
	c.capabilities = CapabilitiesFor(c.config.Server.Mode)
	c.mu.Unlock()
}

func (c *Client) handshake(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout())
	defer cancel()

	tr := c.transport()
	if tr == nil {
		return
	}

	var status StatusResponseBody
	if err := tr.Call(ctx, CommandStatus, nil, &status); err != nil {
		c.log.WithError(err).Warn("tsserver status failed, assuming default API")
	} else if api, err := ParseAPI(status.Version); err != nil {
		c.log.WithError(err).Warn("Unparseable tsserver version")
	} else {
		c.mu.Lock()
		c.apiVersion = api
		c.mu.Unlock()
		c.log.WithField("version", api.String()).Info("tsserver ready")
	}

	if err := tr.Call(ctx, CommandConfigure, ConfigureRequestArgs{HostInfo: "tsbridge"}, nil); err != nil {
		c.log.WithError(err).Debug("tsserver configure failed")
	}
}

func (c *Client) handleDiagnosticEvent(ev *Event) {
	var body DiagnosticEventBody
	if err := json.Unmarshal(ev.Body, &body); err != nil {
		c.log.WithError(err).Warn("Undecodable diagnostics event")
		return
	}
	c.diagnostics.Emit(DiagnosticEvent{
		Kind:        ev.Event,
		File:        body.File,
		Diagnostics: body.Diagnostics,
	})
}

// Resume lets commands through to a restarted server.
func (c *Client) Resume() {
	c.mu.Lock()
	c.held = false
	c.mu.Unlock()
}

// Holding reports whether commands are refused until Resume.
func (c *Client) Holding() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.held
}

// Shutdown kills the current server.
func (c *Client) Shutdown() {
	c.mu.Lock()
	srv := c.server
	c.server = nil
	c.mu.Unlock()

	if srv != nil {
		srv.Kill()
	}
}

// Exited receives the exit status of the current server. It returns nil when
// no server is running.
func (c *Client) Exited() <-chan error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.server == nil {
		return nil
	}
	return c.server.Exited()
}

func (c *Client) transport() *Transport {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.server == nil {
		return nil
	}
	return c.server.Transport()
}

// commandServer returns the server commands may be sent to.
func (c *Client) commandServer() *Server {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.held {
		return nil
	}
	return c.server
}

func (c *Client) requestTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config.RequestTimeout
}

// SetBeforeCommand installs a hook run before every command is sent.
func (c *Client) SetBeforeCommand(fn func(command string)) {
	c.mu.Lock()
	c.beforeCommand = fn
	c.mu.Unlock()
}

func (c *Client) runBeforeCommand(command string) {
	c.mu.RLock()
	fn := c.beforeCommand
	c.mu.RUnlock()
	if fn != nil {
		fn(command)
	}
}

// Execute sends command. onResponse, when non-nil, runs on the transport's
// read goroutine with the response or the failure.
func (c *Client) Execute(command string, args any, opts ExecOptions, onResponse ResponseHandler) {
	c.runBeforeCommand(command)

	handle := func(resp *Response, err error) {
		if err == nil && !resp.Success {
			err = &ResponseError{Command: command, Message: resp.Message}
		}
		if err != nil && opts.NonRecoverable && !errors.Is(err, ErrShutdown) && !errors.Is(err, ErrServerNotRunning) {
			c.fatal(command, err)
		}
		if onResponse != nil {
			onResponse(resp, err)
		}
	}

	srv := c.commandServer()
	if srv == nil {
		handle(nil, ErrServerNotRunning)
		return
	}
	if _, err := srv.Transport().Send(command, args, handle); err != nil {
		handle(nil, err)
	}
}

// ExecuteAsync sends an asynchronous command such as geterr. done runs once
// when the server signals completion, when ctx is cancelled (with
// ErrCancelled), or on transport failure. Cancelling ctx also asks the server
// to abandon the request.
func (c *Client) ExecuteAsync(ctx context.Context, command string, args any, done ResponseHandler) {
	c.runBeforeCommand(command)

	srv := c.commandServer()
	if srv == nil {
		done(nil, ErrServerNotRunning)
		return
	}

	var once sync.Once
	finish := func(resp *Response, err error) {
		once.Do(func() { done(resp, err) })
	}

	finished := make(chan struct{})
	seq, err := srv.Transport().Send(command, args, func(resp *Response, err error) {
		close(finished)
		finish(resp, err)
	})
	if err != nil {
		finish(nil, err)
		return
	}

	go func() {
		select {
		case <-finished:
		case <-ctx.Done():
			if srv.Transport().Forget(seq) {
				if err := srv.CancelRequest(seq); err != nil {
					c.log.WithError(err).Debug("Could not cancel request")
				}
				finish(nil, ErrCancelled)
			}
		}
	}()
}

// fatal handles a failed non-recoverable command by killing the server.
func (c *Client) fatal(command string, err error) {
	c.log.WithError(err).WithField("command", command).Error("Non-recoverable command failed, restarting tsserver")

	c.mu.RLock()
	srv := c.server
	c.mu.RUnlock()
	if srv != nil {
		srv.Kill()
	}
}

// OnDiagnostics subscribes to diagnostics events. fn runs on the transport's
// read goroutine.
func (c *Client) OnDiagnostics(fn func(DiagnosticEvent)) *event.Subscription {
	return c.diagnostics.Subscribe(fn)
}

// APIVersion returns the version of the current server.
func (c *Client) APIVersion() API {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiVersion
}

// Capabilities returns the capabilities of the current server.
func (c *Client) Capabilities() Capabilities {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.capabilities
}

// HasCapabilityForResource reports whether the server offers capability for
// uri. Semantic features are limited to schemes backed by a project.
func (c *Client) HasCapabilityForResource(uri editor.URI, capability Capability) bool {
	if !c.Capabilities().Has(capability) {
		return false
	}
	if capability == CapabilitySemantic {
		return IsSemanticSupported(uri)
	}
	return true
}

// ToTSFilePath maps uri to its tsserver path.
func (c *Client) ToTSFilePath(uri editor.URI) (string, bool) {
	return ToTSFilePath(uri)
}

// WorkspaceRootFor returns the workspace root containing uri.
func (c *Client) WorkspaceRootFor(uri editor.URI) (editor.URI, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return workspaceRootFor(c.config.WorkspaceRoots, uri)
}

// Plugins returns the configured plugins.
func (c *Client) Plugins() []Plugin {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config.Plugins
}

// ProjectDiagnosticsEnabled reports whether geterr covers whole projects.
func (c *Client) ProjectDiagnosticsEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config.EnableProjectDiagnostics
}

// SetProjectDiagnosticsEnabled updates the project diagnostics setting.
func (c *Client) SetProjectDiagnosticsEnabled(enabled bool) {
	c.mu.Lock()
	c.config.EnableProjectDiagnostics = enabled
	c.mu.Unlock()
}
