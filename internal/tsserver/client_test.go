package tsserver

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/tsbridge/internal/editor"
)

func newTestClient(t *testing.T, config ClientConfig) (*Client, *fakeServer, *Server) {
	t.Helper()

	tr, fs := newPipeTransport(t)
	c := NewClient(config, nil)
	srv := NewServer(config.Server, nil)
	srv.transport = tr
	srv.cancellationPipe = filepath.Join(t.TempDir(), "tscancellation-test.tmp*")
	c.attach(srv, false)
	return c, fs, srv
}

func TestClient_ExecuteRunsBeforeCommand(t *testing.T) {
	c, fs, _ := newTestClient(t, ClientConfig{})

	var mu sync.Mutex
	var seen []string
	c.SetBeforeCommand(func(command string) {
		mu.Lock()
		seen = append(seen, command)
		mu.Unlock()
	})

	c.Execute(CommandUpdateOpen, UpdateOpenRequestArgs{}, ExecOptions{}, nil)
	assert.Equal(t, CommandUpdateOpen, fs.next(t).Command)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{CommandUpdateOpen}, seen)
}

func TestClient_NonRecoverableFailureKillsServer(t *testing.T) {
	c, fs, srv := newTestClient(t, ClientConfig{})

	done := make(chan error, 1)
	c.Execute(CommandUpdateOpen, UpdateOpenRequestArgs{}, ExecOptions{NonRecoverable: true}, func(resp *Response, err error) {
		done <- err
	})
	fs.respond(t, fs.next(t), false, "Debug Failure", nil)

	var respErr *ResponseError
	require.ErrorAs(t, waitFor(t, done), &respErr)
	assert.True(t, srv.Transport().IsClosed())
}

func TestClient_RecoverableFailureKeepsServer(t *testing.T) {
	c, fs, srv := newTestClient(t, ClientConfig{})

	done := make(chan error, 1)
	c.Execute("quickinfo", nil, ExecOptions{}, func(resp *Response, err error) {
		done <- err
	})
	fs.respond(t, fs.next(t), false, "No content available.", nil)

	assert.True(t, IsNoContent(waitFor(t, done)))
	assert.False(t, srv.Transport().IsClosed())
}

func TestClient_ExecuteWithoutServer(t *testing.T) {
	c := NewClient(ClientConfig{}, nil)

	var got error
	c.Execute(CommandUpdateOpen, nil, ExecOptions{NonRecoverable: true}, func(resp *Response, err error) {
		got = err
	})
	assert.ErrorIs(t, got, ErrServerNotRunning)
}

func TestClient_ExecuteFailsOnceWhenClosedDuringWrite(t *testing.T) {
	w := &closingWriter{}
	tr := NewTransport(strings.NewReader(""), w, nil, nil)
	w.tr = tr

	c := NewClient(ClientConfig{}, nil)
	srv := NewServer(ServerConfig{}, nil)
	srv.transport = tr
	c.attach(srv, false)

	var errs []error
	c.Execute(CommandUpdateOpen, UpdateOpenRequestArgs{}, ExecOptions{NonRecoverable: true}, func(resp *Response, err error) {
		errs = append(errs, err)
	})
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrShutdown)
}

func TestClient_RestartedServerHoldsCommandsUntilResume(t *testing.T) {
	c, fs, srv := newTestClient(t, ClientConfig{})
	c.attach(srv, true)
	assert.True(t, c.Holding())

	var got error
	c.Execute(CommandUpdateOpen, UpdateOpenRequestArgs{}, ExecOptions{NonRecoverable: true}, func(resp *Response, err error) {
		got = err
	})
	assert.ErrorIs(t, got, ErrServerNotRunning)
	assert.False(t, srv.Transport().IsClosed(), "held failure must not kill the new server")

	var asyncErr error
	c.ExecuteAsync(context.Background(), CommandGeterr, GeterrRequestArgs{}, func(resp *Response, err error) {
		asyncErr = err
	})
	assert.ErrorIs(t, asyncErr, ErrServerNotRunning)

	c.Resume()
	assert.False(t, c.Holding())
	c.Execute(CommandUpdateOpen, UpdateOpenRequestArgs{}, ExecOptions{}, nil)
	assert.Equal(t, CommandUpdateOpen, fs.next(t).Command)
}

func TestClient_ExecuteAsyncCompletes(t *testing.T) {
	c, fs, _ := newTestClient(t, ClientConfig{})

	done := make(chan *Response, 1)
	c.ExecuteAsync(context.Background(), CommandGeterr, GeterrRequestArgs{Files: []string{"/a.ts"}}, func(resp *Response, err error) {
		assert.NoError(t, err)
		done <- resp
	})

	req := fs.next(t)
	fs.event(t, EventRequestCompleted, map[string]int64{"request_seq": req.Seq})

	assert.True(t, waitFor(t, done).Success)
}

func TestClient_ExecuteAsyncCancel(t *testing.T) {
	c, fs, srv := newTestClient(t, ClientConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 2)
	c.ExecuteAsync(ctx, CommandGeterr, GeterrRequestArgs{Files: []string{"/a.ts"}}, func(resp *Response, err error) {
		done <- err
	})

	req := fs.next(t)
	cancel()
	assert.ErrorIs(t, waitFor(t, done), ErrCancelled)

	marker := filepath.Join(filepath.Dir(srv.cancellationPipe), "tscancellation-test.tmp"+strconv.FormatInt(req.Seq, 10))
	_, err := os.Stat(marker)
	assert.NoError(t, err)

	// A completion after cancellation is not delivered a second time.
	fs.event(t, EventRequestCompleted, map[string]int64{"request_seq": req.Seq})
	select {
	case <-done:
		t.Fatal("done invoked twice")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClient_Handshake(t *testing.T) {
	c, fs, _ := newTestClient(t, ClientConfig{})

	finished := make(chan struct{})
	go func() {
		c.handshake(context.Background())
		close(finished)
	}()

	status := fs.next(t)
	require.Equal(t, CommandStatus, status.Command)
	fs.respond(t, status, true, "", map[string]string{"version": "5.4.2"})

	configure := fs.next(t)
	require.Equal(t, CommandConfigure, configure.Command)
	fs.respond(t, configure, true, "", nil)

	waitFor(t, finished)
	assert.Equal(t, "5.4.2", c.APIVersion().String())
	assert.True(t, c.APIVersion().GTE(V440))
}

func TestClient_Diagnostics(t *testing.T) {
	c, fs, _ := newTestClient(t, ClientConfig{})

	got := make(chan DiagnosticEvent, 1)
	sub := c.OnDiagnostics(func(ev DiagnosticEvent) { got <- ev })
	defer sub.Unsubscribe()

	fs.event(t, EventSyntaxDiag, DiagnosticEventBody{
		File: "/a.ts",
		Diagnostics: []Diagnostic{{
			Start:    Location{Line: 1, Offset: 1},
			End:      Location{Line: 1, Offset: 4},
			Text:     "Cannot find name 'foo'.",
			Code:     2304,
			Category: "error",
		}},
	})

	ev := waitFor(t, got)
	assert.Equal(t, EventSyntaxDiag, ev.Kind)
	assert.Equal(t, "/a.ts", ev.File)
	require.Len(t, ev.Diagnostics, 1)
	assert.Equal(t, 2304, ev.Diagnostics[0].Code)
}

func TestClient_HasCapabilityForResource(t *testing.T) {
	full := NewClient(ClientConfig{}, nil)
	assert.True(t, full.HasCapabilityForResource("file:///a.ts", CapabilitySemantic))
	assert.True(t, full.HasCapabilityForResource("untitled:Untitled-1", CapabilitySemantic))
	assert.False(t, full.HasCapabilityForResource("vscode-vfs://github/o/r/a.ts", CapabilitySemantic))
	assert.True(t, full.HasCapabilityForResource("vscode-vfs://github/o/r/a.ts", CapabilitySyntax))

	partial := NewClient(ClientConfig{Server: ServerConfig{Mode: ServerModePartialSemantic}}, nil)
	assert.False(t, partial.HasCapabilityForResource("file:///a.ts", CapabilitySemantic))
	assert.True(t, partial.HasCapabilityForResource("file:///a.ts", CapabilityEnhancedSyntax))
}

func TestClient_Settings(t *testing.T) {
	c := NewClient(ClientConfig{
		WorkspaceRoots: []editor.URI{"file:///ws"},
		Plugins:        []Plugin{{Name: "ts-plugin", Languages: []string{"vue"}}},
	}, nil)

	root, ok := c.WorkspaceRootFor("file:///ws/src/a.ts")
	require.True(t, ok)
	assert.Equal(t, editor.URI("file:///ws"), root)

	assert.Equal(t, "ts-plugin", c.Plugins()[0].Name)
	assert.Equal(t, DefaultAPI, c.APIVersion())

	assert.False(t, c.ProjectDiagnosticsEnabled())
	c.SetProjectDiagnosticsEnabled(true)
	assert.True(t, c.ProjectDiagnosticsEnabled())
}

func TestServer_CommandLine(t *testing.T) {
	srv := NewServer(ServerConfig{
		Path:     "/opt/ts/tsserver.js",
		NodePath: "/usr/bin/node",
		Args:     []string{"--useInferredProjectPerProjectRoot"},
		Mode:     ServerModePartialSemantic,
		Locale:   "en",
	}, nil)

	name, args := srv.commandLine()
	assert.Equal(t, "/usr/bin/node", name)
	assert.Equal(t, []string{
		"/opt/ts/tsserver.js",
		"--useInferredProjectPerProjectRoot",
		"--cancellationPipeName", srv.cancellationPipe,
		"--serverMode", "partialSemantic",
		"--locale", "en",
	}, args)
	assert.Contains(t, srv.cancellationPipe, "tscancellation-"+srv.ID())
}

func TestServer_StartWithoutPath(t *testing.T) {
	srv := NewServer(ServerConfig{}, nil)
	var serverErr *ServerError
	assert.ErrorAs(t, srv.Start(context.Background()), &serverErr)
}

func TestServer_StderrIsDrainedBeforeExit(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	srv := NewServer(ServerConfig{
		NodePath: "/bin/sh",
		Path:     "-c",
		Args:     []string{"for i in 1 2 3; do echo line$i >&2; done; echo tail >&2"},
	}, logrus.NewEntry(logger))
	srv.cancellationPipe = filepath.Join(t.TempDir(), "tscancellation-test.tmp*")

	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(srv.Kill)

	select {
	case <-srv.Exited():
	case <-time.After(5 * time.Second):
		t.Fatal("server did not exit")
	}

	var lines []string
	for _, e := range hook.AllEntries() {
		lines = append(lines, e.Message)
	}
	assert.Contains(t, lines, "tail")
}
