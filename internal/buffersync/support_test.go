package buffersync

import (
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/tsbridge/internal/editor"
	"github.com/dshills/tsbridge/internal/tsserver"
)

const (
	uriA = editor.URI("file:///src/a.ts")
	uriB = editor.URI("file:///src/b.ts")
	uriJ = editor.URI("file:///src/j.js")
)

func TestSupport_OpenTextDocument(t *testing.T) {
	h := newHarness(t, nil)

	assert.False(t, h.support.OpenTextDocument(editor.NewDocument("file:///readme.md", "markdown", "")))
	assert.False(t, h.support.OpenTextDocument(editor.NewDocument("git:/src/a.ts", LanguageTypeScript, "")))
	assert.True(t, h.support.OpenTextDocument(editor.NewDocument(uriA, LanguageTypeScript, "let a = 1")))
	assert.True(t, h.support.OpenTextDocument(editor.NewDocument(uriA, LanguageTypeScript, "ignored")))

	assert.True(t, h.support.Handles(uriA))
	assert.True(t, h.support.HasPendingDiagnostics(uriA))
	assert.Empty(t, h.client.sent)

	h.loop.Advance(minDiagnosticDelay)
	assert.Equal(t, []string{tsserver.CommandUpdateOpen, tsserver.CommandGeterr}, h.client.commands())

	open := h.client.updateOpen(t).OpenFiles
	require.Len(t, open, 1)
	assert.Equal(t, "/src/a.ts", open[0].File)
	assert.Equal(t, "let a = 1", open[0].FileContent)
	assert.Equal(t, tsserver.ScriptKindTS, open[0].ScriptKindName)
	assert.Equal(t, []string{"/src/a.ts"}, h.client.geterrFiles(t))
	assert.False(t, h.support.HasPendingDiagnostics(uriA))
}

func TestSupport_DiagnosticDelayFollowsLineCount(t *testing.T) {
	h := newHarness(t, nil)

	h.open(uriA, LanguageTypeScript, lines(16000))
	delay, ok := h.loop.NextDelay()
	require.True(t, ok)
	assert.Equal(t, maxDiagnosticDelay, delay)

	h.open(uriB, LanguageTypeScript, lines(10))
	delay, _ = h.loop.NextDelay()
	assert.Equal(t, minDiagnosticDelay, delay)
	assert.Equal(t, 1, h.loop.ActiveTimers())
}

func TestSupport_TriggersCoalesce(t *testing.T) {
	h := newHarness(t, nil)
	h.open(uriA, LanguageTypeScript, "")
	h.loop.Advance(time.Second)
	h.client.last(t, tsserver.CommandGeterr).done(&tsserver.Response{Success: true}, nil)
	h.loop.Drain()
	h.client.reset()

	for i := 0; i < 50; i++ {
		h.support.GetErr([]editor.URI{uriA})
	}
	h.loop.Advance(defaultDiagnosticDelay - time.Millisecond)
	assert.Empty(t, h.client.sent)

	h.loop.Advance(time.Millisecond)
	assert.Equal(t, []string{tsserver.CommandGeterr}, h.client.commands())
}

func TestSupport_GetErrIgnoresUnmanaged(t *testing.T) {
	h := newHarness(t, nil)

	h.support.GetErr([]editor.URI{uriA})
	assert.Zero(t, h.loop.ActiveTimers())
	assert.False(t, h.support.HasPendingDiagnostics(uriA))
}

func TestSupport_SupersededRequestIsMerged(t *testing.T) {
	h := newHarness(t, nil)

	h.open(uriA, LanguageTypeScript, "")
	h.loop.Advance(time.Second)
	first := h.client.last(t, tsserver.CommandGeterr)

	h.open(uriB, LanguageTypeScript, "")
	h.loop.Advance(time.Second)

	assert.Error(t, first.ctx.Err())
	second := h.client.last(t, tsserver.CommandGeterr)
	assert.NotSame(t, first, second)
	assert.Equal(t, []string{"/src/b.ts", "/src/a.ts"}, h.client.geterrFiles(t))

	// The cancelled request's late completion must not clear the new one.
	first.done(nil, tsserver.ErrCancelled)
	h.loop.Drain()
	require.NotNil(t, h.support.pendingGetErr)
	assert.NoError(t, second.ctx.Err())

	second.done(&tsserver.Response{Success: true}, nil)
	h.loop.Drain()
	assert.Nil(t, h.support.pendingGetErr)
	assert.Error(t, second.ctx.Err(), "completed request releases its context")
}

func TestSupport_CloseResource(t *testing.T) {
	h := newHarness(t, nil)
	var deleted []editor.URI
	h.support.OnDelete(func(uri editor.URI) { deleted = append(deleted, uri) })

	h.open(uriA, LanguageTypeScript, "")
	h.open(uriB, LanguageTypeScript, "")
	h.loop.Advance(time.Second)
	require.NotNil(t, h.support.pendingGetErr)
	h.client.reset()

	h.support.GetErr([]editor.URI{uriA, uriB})
	h.support.CloseResource(uriA)

	assert.False(t, h.support.Handles(uriA))
	assert.False(t, h.support.HasPendingDiagnostics(uriA))
	assert.True(t, h.support.HasPendingDiagnostics(uriB))
	assert.False(t, h.support.pendingGetErr.files.Has(uriA))
	assert.Equal(t, []editor.URI{uriA}, deleted)

	delay, _ := h.loop.NextDelay()
	assert.Equal(t, defaultDiagnosticDelay, delay)

	h.loop.Advance(time.Second)
	assert.Equal(t, []string{"/src/a.ts"}, h.client.updateOpen(t).ClosedFiles)
	assert.Equal(t, []string{"/src/b.ts"}, h.client.geterrFiles(t))

	h.support.CloseResource(uriA)
	assert.Equal(t, []editor.URI{uriA}, deleted)
}

func TestSupport_CloseBeforeFlushSendsNothing(t *testing.T) {
	h := newHarness(t, nil)

	h.open(uriA, LanguageTypeScript, "")
	h.support.CloseResource(uriA)
	h.loop.Advance(time.Second)

	assert.Empty(t, h.client.sent)
}

func TestSupport_Reinitialize(t *testing.T) {
	h := newHarness(t, nil)

	h.open(uriA, LanguageTypeScript, "a")
	h.open(uriB, LanguageTypeScript, "b")
	h.loop.Advance(time.Second)
	inflight := h.client.last(t, tsserver.CommandGeterr)
	h.support.CloseResource(uriB)
	h.client.reset()

	h.support.Reinitialize()
	assert.Error(t, inflight.ctx.Err())
	assert.Nil(t, h.support.pendingGetErr)

	h.support.BeforeCommand(tsserver.CommandStatus)
	args := h.client.updateOpen(t)
	require.Len(t, args.OpenFiles, 1)
	assert.Equal(t, "/src/a.ts", args.OpenFiles[0].File)
	assert.Empty(t, args.ClosedFiles)
}

func TestSupport_Reset(t *testing.T) {
	h := newHarness(t, nil)

	h.open(uriA, LanguageTypeScript, "")
	h.support.Reset()
	assert.False(t, h.support.HasPendingDiagnostics(uriA))

	h.support.BeforeCommand(tsserver.CommandStatus)
	assert.Empty(t, h.client.sent)
	assert.True(t, h.support.Handles(uriA))
}

func TestSupport_InterruptGetErr(t *testing.T) {
	h := newHarness(t, nil)

	h.open(uriA, LanguageTypeScript, "")
	h.loop.Advance(time.Second)
	inflight := h.client.last(t, tsserver.CommandGeterr)

	result := Interrupt(h.support, func() string {
		assert.Error(t, inflight.ctx.Err())
		return "done"
	})
	assert.Equal(t, "done", result)
	assert.Nil(t, h.support.pendingGetErr)

	delay, ok := h.loop.NextDelay()
	require.True(t, ok)
	assert.Equal(t, defaultDiagnosticDelay, delay)

	h.loop.Advance(defaultDiagnosticDelay)
	assert.Equal(t, []string{"/src/a.ts"}, h.client.geterrFiles(t))
}

func TestSupport_InterruptWithoutRequestRunsDirectly(t *testing.T) {
	h := newHarness(t, nil)

	ran := false
	h.support.InterruptGetErr(func() { ran = true })
	assert.True(t, ran)
	assert.Zero(t, h.loop.ActiveTimers())
}

func TestSupport_InterruptSkippedForProjectDiagnostics(t *testing.T) {
	client := newFakeClient()
	client.projectDiagnostics = true
	h := newHarness(t, client)

	h.open(uriA, LanguageTypeScript, "")
	h.loop.Advance(time.Second)
	inflight := h.client.last(t, tsserver.CommandGeterrForProject)

	h.support.InterruptGetErr(func() {})
	assert.NoError(t, inflight.ctx.Err())
	assert.NotNil(t, h.support.pendingGetErr)
}

func TestSupport_ValidationSettings(t *testing.T) {
	settings := &fakeSettings{javascript: false, typescript: true}
	h := newHarness(t, nil, WithSettings(settings))

	h.open(uriJ, LanguageJavaScript, "")
	assert.True(t, h.support.Handles(uriJ))
	assert.False(t, h.support.HasPendingDiagnostics(uriJ))

	h.open(uriA, LanguageTypeScript, "")
	h.support.RequestAllDiagnostics()
	assert.True(t, h.support.HasPendingDiagnostics(uriA))
	assert.False(t, h.support.HasPendingDiagnostics(uriJ))

	settings.set(true, false)
	h.support.RequestAllDiagnostics()
	assert.False(t, h.support.HasPendingDiagnostics(uriJ), "change applies on the loop")

	h.loop.Drain()
	h.support.pendingDiagnostics.Clear()
	h.support.RequestAllDiagnostics()
	assert.True(t, h.support.HasPendingDiagnostics(uriJ))
	assert.False(t, h.support.HasPendingDiagnostics(uriA))
}

func TestSupport_ListenFollowsWorkspace(t *testing.T) {
	ws := editor.NewWorkspace()
	_, err := ws.Open(uriA, LanguageTypeScript, "a")
	require.NoError(t, err)

	h := newHarness(t, nil, WithWorkspace(ws))
	var willChange []editor.URI
	h.support.OnWillChange(func(uri editor.URI) { willChange = append(willChange, uri) })

	h.support.Listen()
	h.support.Listen()
	assert.True(t, h.support.Handles(uriA))

	_, err = ws.Open(uriB, LanguageTypeScript, "b")
	require.NoError(t, err)
	assert.True(t, h.support.Handles(uriB))
	h.loop.Advance(time.Second)

	require.NoError(t, ws.Change(uriA, []editor.ContentChange{change(0, 0, 0, 1, "A")}))
	assert.Equal(t, []editor.URI{uriA}, willChange)

	h.support.BeforeCommand(tsserver.CommandStatus)
	changed := h.client.updateOpen(t).ChangedFiles
	require.Len(t, changed, 1)
	assert.Equal(t, "/src/a.ts", changed[0].FileName)

	require.NoError(t, ws.Close(uriB))
	assert.False(t, h.support.Handles(uriB))

	h.support.Dispose()
	_, err = ws.Open("file:///src/c.ts", LanguageTypeScript, "")
	require.NoError(t, err)
	assert.False(t, h.support.Handles("file:///src/c.ts"))
}

func TestSupport_MultiChangeEventReplaysToEditorText(t *testing.T) {
	ws := editor.NewWorkspace()
	doc, err := ws.Open(uriA, LanguageTypeScript, "abc\ndef")
	require.NoError(t, err)

	h := newHarness(t, nil, WithWorkspace(ws))
	h.support.Listen()
	h.support.BeforeCommand(tsserver.CommandStatus)
	server := doc.Text()

	require.NoError(t, ws.Change(uriA, []editor.ContentChange{
		change(1, 1, 1, 2, "E"),
		change(0, 2, 0, 3, "Z"),
		change(0, 0, 0, 1, "YY"),
	}))
	h.support.BeforeCommand(tsserver.CommandStatus)

	changed := h.client.updateOpen(t).ChangedFiles
	require.Len(t, changed, 1)
	for _, edit := range changed[0].TextChanges {
		server = replayEdit(server, edit)
	}
	assert.Equal(t, "YYbZ\ndEf", doc.Text())
	assert.Equal(t, doc.Text(), server)
}

// replayEdit applies one edit the way the server does, against the text as
// left by the previous edit. Locations are one-based; text is ASCII.
func replayEdit(text string, edit tsserver.CodeEdit) string {
	offset := func(loc tsserver.Location) int {
		lines := strings.SplitAfter(text, "\n")
		n := 0
		for _, l := range lines[:loc.Line-1] {
			n += len(l)
		}
		return n + loc.Offset - 1
	}
	start, end := offset(edit.Start), offset(edit.End)
	return text[:start] + edit.NewText + text[end:]
}

func TestSupport_VisibleDocumentsAreRevalidated(t *testing.T) {
	ws := editor.NewWorkspace()
	h := newHarness(t, nil, WithWorkspace(ws))
	h.support.Listen()

	_, err := ws.Open(uriA, LanguageTypeScript, "")
	require.NoError(t, err)
	h.loop.Advance(time.Second)
	h.client.last(t, tsserver.CommandGeterr).done(&tsserver.Response{Success: true}, nil)
	h.loop.Drain()
	require.False(t, h.support.HasPendingDiagnostics(uriA))

	ws.SetVisible([]editor.URI{uriA})
	assert.True(t, h.support.HasPendingDiagnostics(uriA))
}

func TestSupport_ChangeRestartsInFlightRequest(t *testing.T) {
	settings := &fakeSettings{javascript: false, typescript: true}
	h := newHarness(t, nil, WithSettings(settings))
	ws := editor.NewWorkspace()
	h.support.workspace = ws
	h.support.Listen()

	_, err := ws.Open(uriA, LanguageTypeScript, "")
	require.NoError(t, err)
	_, err = ws.Open(uriJ, LanguageJavaScript, "")
	require.NoError(t, err)
	h.loop.Advance(time.Second)
	inflight := h.client.last(t, tsserver.CommandGeterr)

	require.NoError(t, ws.Change(uriJ, []editor.ContentChange{change(0, 0, 0, 0, "x")}))
	assert.Error(t, inflight.ctx.Err())
	assert.Nil(t, h.support.pendingGetErr)

	delay, _ := h.loop.NextDelay()
	assert.Equal(t, defaultDiagnosticDelay, delay)
}

func TestSupport_ChangeOnClosedBufferIsReported(t *testing.T) {
	h := newHarness(t, nil)
	doc := h.open(uriA, LanguageTypeScript, "")
	buf, ok := h.support.syncedBuffers.Get(uriA)
	require.True(t, ok)

	buf.close()
	h.support.onDidChangeTextDocument(editor.ChangeEvent{Document: doc, Changes: []editor.ContentChange{change(0, 0, 0, 0, "x")}})

	entry := h.logs.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "closed", entry.Data["state"])
	assert.True(t, h.support.synchronizer.pending.Has(uriA))
}

func TestSupport_EnsureHasBuffer(t *testing.T) {
	ws := editor.NewWorkspace()
	_, err := ws.Open(uriA, LanguageTypeScript, "")
	require.NoError(t, err)
	h := newHarness(t, nil, WithWorkspace(ws))

	assert.True(t, h.support.EnsureHasBuffer(uriA))
	assert.True(t, h.support.Handles(uriA))
	assert.False(t, h.support.EnsureHasBuffer(uriB))
}

func TestSupport_ResourceMapping(t *testing.T) {
	h := newHarness(t, nil, WithCaseInsensitiveFileSystem(true))
	h.open(uriA, LanguageTypeScript, "")
	h.open("untitled:Untitled-1", LanguageTypeScript, "")

	assert.Equal(t, uriA, h.support.ToResource("/SRC/A.ts"))
	assert.Equal(t, editor.URI("untitled:Untitled-1"), h.support.ToResource("^/untitled/ts-nul-authority/Untitled-1"))
	assert.Equal(t, editor.URI("file:///other/x.ts"), h.support.ToResource("/other/x.ts"))

	assert.Equal(t, uriA, h.support.ToEditorResource("file:///SRC/a.TS"))
	assert.Equal(t, uriB, h.support.ToEditorResource(uriB))

	n, ok := h.support.LineCount(uriA)
	assert.True(t, ok)
	assert.Equal(t, 1, n)
	_, ok = h.support.LineCount(uriB)
	assert.False(t, ok)
}

func TestSupport_PluginLanguagesAreManaged(t *testing.T) {
	client := newFakeClient()
	client.plugins = []tsserver.Plugin{
		{Name: "vue-plugin", Languages: []string{"vue"}},
		{Name: "styled", Languages: []string{LanguageTypeScript}},
	}
	h := newHarness(t, client)

	assert.True(t, h.support.OpenTextDocument(editor.NewDocument("file:///src/app.vue", "vue", "")))
	h.open(uriA, LanguageTypeScript, "")
	h.support.BeforeCommand(tsserver.CommandStatus)

	open := h.client.updateOpen(t).OpenFiles
	require.Len(t, open, 2)
	assert.Equal(t, []string{"vue-plugin"}, open[0].Plugins)
	assert.Empty(t, open[0].ScriptKindName)
	assert.Equal(t, []string{"styled"}, open[1].Plugins)
}

func TestSupport_ProjectRootPath(t *testing.T) {
	client := newFakeClient()
	client.roots = []editor.URI{"file:///src", "untitled:"}
	h := newHarness(t, client)

	h.open(uriA, LanguageTypeScript, "")
	h.open("untitled:/Untitled-1", LanguageTypeScript, "")
	h.open("office-script:/x.ts", LanguageTypeScript, "")
	h.open("file:///elsewhere/x.ts", LanguageTypeScript, "")
	h.support.BeforeCommand(tsserver.CommandStatus)

	open := h.client.updateOpen(t).OpenFiles
	require.Len(t, open, 4)
	assert.Equal(t, "/src", open[0].ProjectRootPath)
	assert.Empty(t, open[1].ProjectRootPath)
	assert.Equal(t, "/", open[2].ProjectRootPath)
	assert.Empty(t, open[3].ProjectRootPath)
}
