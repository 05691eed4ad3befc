package buffersync

import (
	"context"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/dshills/tsbridge/internal/editor"
	"github.com/dshills/tsbridge/internal/event"
	"github.com/dshills/tsbridge/internal/eventloop"
	"github.com/dshills/tsbridge/internal/tsserver"
)

type sentCommand struct {
	command string
	args    any
	opts    tsserver.ExecOptions
	ctx     context.Context
	done    tsserver.ResponseHandler
}

// fakeClient records commands instead of sending them.
type fakeClient struct {
	sent          []*sentCommand
	beforeCommand func(string)

	api                tsserver.API
	caps               tsserver.Capabilities
	plugins            []tsserver.Plugin
	roots              []editor.URI
	projectDiagnostics bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		api:  tsserver.V500,
		caps: tsserver.CapabilitiesFor(tsserver.ServerModeSemantic),
	}
}

func (c *fakeClient) Execute(command string, args any, opts tsserver.ExecOptions, _ tsserver.ResponseHandler) {
	if c.beforeCommand != nil {
		c.beforeCommand(command)
	}
	c.sent = append(c.sent, &sentCommand{command: command, args: args, opts: opts})
}

func (c *fakeClient) ExecuteAsync(ctx context.Context, command string, args any, done tsserver.ResponseHandler) {
	if c.beforeCommand != nil {
		c.beforeCommand(command)
	}
	c.sent = append(c.sent, &sentCommand{command: command, args: args, ctx: ctx, done: done})
}

func (c *fakeClient) ToTSFilePath(uri editor.URI) (string, bool) {
	return tsserver.ToTSFilePath(uri)
}

func (c *fakeClient) WorkspaceRootFor(uri editor.URI) (editor.URI, bool) {
	for _, root := range c.roots {
		if strings.HasPrefix(string(uri), string(root)+"/") {
			return root, true
		}
	}
	return "", false
}

func (c *fakeClient) APIVersion() tsserver.API { return c.api }
func (c *fakeClient) Capabilities() tsserver.Capabilities { return c.caps }
func (c *fakeClient) Plugins() []tsserver.Plugin { return c.plugins }
func (c *fakeClient) ProjectDiagnosticsEnabled() bool { return c.projectDiagnostics }

func (c *fakeClient) HasCapabilityForResource(uri editor.URI, capability tsserver.Capability) bool {
	if !c.caps.Has(capability) {
		return false
	}
	return capability != tsserver.CapabilitySemantic || tsserver.IsSemanticSupported(uri)
}

func (c *fakeClient) commands() []string {
	names := make([]string, len(c.sent))
	for i, s := range c.sent {
		names[i] = s.command
	}
	return names
}

func (c *fakeClient) last(t *testing.T, command string) *sentCommand {
	t.Helper()
	for i := len(c.sent) - 1; i >= 0; i-- {
		if c.sent[i].command == command {
			return c.sent[i]
		}
	}
	require.Failf(t, "command not sent", "no %q in %v", command, c.commands())
	return nil
}

func (c *fakeClient) updateOpen(t *testing.T) tsserver.UpdateOpenRequestArgs {
	t.Helper()
	args, ok := c.last(t, tsserver.CommandUpdateOpen).args.(tsserver.UpdateOpenRequestArgs)
	require.True(t, ok)
	return args
}

func (c *fakeClient) geterrFiles(t *testing.T) []string {
	t.Helper()
	args, ok := c.last(t, tsserver.CommandGeterr).args.(tsserver.GeterrRequestArgs)
	require.True(t, ok)
	return args.Files
}

func (c *fakeClient) reset() {
	c.sent = nil
}

// fakeSettings is a Settings whose switches can be flipped.
type fakeSettings struct {
	javascript bool
	typescript bool
	changed    event.Emitter[struct{}]
}

func (s *fakeSettings) ValidationSettings() (bool, bool) {
	return s.javascript, s.typescript
}

func (s *fakeSettings) OnDidChange(fn func()) *event.Subscription {
	return s.changed.Subscribe(func(struct{}) { fn() })
}

func (s *fakeSettings) set(javascript, typescript bool) {
	s.javascript, s.typescript = javascript, typescript
	s.changed.Emit(struct{}{})
}

type harness struct {
	support *Support
	client  *fakeClient
	loop    *eventloop.Manual
	logs    *test.Hook
}

func newHarness(t *testing.T, client *fakeClient, opts ...Option) *harness {
	t.Helper()

	if client == nil {
		client = newFakeClient()
	}
	logger, hook := test.NewNullLogger()
	loop := eventloop.NewManual()

	opts = append([]Option{WithLogger(logrus.NewEntry(logger))}, opts...)
	s := New(client, loop, opts...)
	client.beforeCommand = s.BeforeCommand
	t.Cleanup(s.Dispose)

	return &harness{support: s, client: client, loop: loop, logs: hook}
}

func (h *harness) open(uri editor.URI, languageID, text string) *editor.Document {
	doc := editor.NewDocument(uri, languageID, text)
	h.support.OpenTextDocument(doc)
	return doc
}

func lines(n int) string {
	return strings.Repeat("x\n", n-1) + "x"
}
