package buffersync

import (
	"slices"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/dshills/tsbridge/internal/editor"
	"github.com/dshills/tsbridge/internal/tsserver"
)

type bufferState int

const (
	stateInitial bufferState = iota + 1
	stateOpen
	stateClosed
)

func (s bufferState) String() string {
	switch s {
	case stateInitial:
		return "initial"
	case stateOpen:
		return "open"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// syncedBuffer tracks one document's lifecycle on the server.
type syncedBuffer struct {
	document     Document
	filepath     string
	client       Client
	synchronizer *synchronizer
	state        bufferState
	log          *logrus.Entry
}

func newSyncedBuffer(document Document, filepath string, client Client, sync *synchronizer, log *logrus.Entry) *syncedBuffer {
	return &syncedBuffer{
		document:     document,
		filepath:     filepath,
		client:       client,
		synchronizer: sync,
		state:        stateInitial,
		log:          log,
	}
}

func (b *syncedBuffer) resource() editor.URI {
	return b.document.URI()
}

func (b *syncedBuffer) lineCount() int {
	return b.document.LineCount()
}

func (b *syncedBuffer) kind() bufferKind {
	return kindOf(b.document.LanguageID())
}

func (b *syncedBuffer) open() {
	args := tsserver.OpenRequestArgs{
		File:            b.filepath,
		FileContent:     b.document.Text(),
		ProjectRootPath: b.projectRootPath(),
		ScriptKindName:  scriptKindOf(b.document.LanguageID()),
	}

	languageID := b.document.LanguageID()
	for _, p := range b.client.Plugins() {
		if slices.Contains(p.Languages, languageID) {
			args.Plugins = append(args.Plugins, p.Name)
		}
	}

	b.synchronizer.open(b.resource(), args)
	b.state = stateOpen
}

// projectRootPath anchors the file in its workspace root. In-memory roots
// give no hint; some virtual schemes without a root are anchored at "/".
func (b *syncedBuffer) projectRootPath() string {
	uri := b.resource()
	if root, ok := b.client.WorkspaceRootFor(uri); ok {
		tsRoot, ok := b.client.ToTSFilePath(root)
		if !ok || strings.HasPrefix(tsRoot, tsserver.InMemoryResourcePrefix) {
			return ""
		}
		return tsRoot
	}

	if tsserver.IsOfScheme(uri, tsserver.SchemeOfficeScript, tsserver.SchemeChatCodeBlock, tsserver.SchemeChatBackingCodeBlock) {
		return "/"
	}
	return ""
}

// close moves the buffer to its terminal state and reports whether the
// server had been told about it.
func (b *syncedBuffer) close() bool {
	if b.state != stateOpen {
		b.state = stateClosed
		return false
	}
	b.state = stateClosed
	return b.synchronizer.close(b.resource(), b.filepath)
}

func (b *syncedBuffer) onContentChanged(changes []editor.ContentChange) {
	if b.state != stateOpen {
		b.log.WithFields(logrus.Fields{
			"file":  b.filepath,
			"state": b.state.String(),
		}).Error("Unexpected buffer state for content change")
	}

	b.synchronizer.change(b.resource(), b.filepath, changes)
}
