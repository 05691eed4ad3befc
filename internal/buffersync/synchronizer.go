package buffersync

import (
	"github.com/sirupsen/logrus"

	"github.com/dshills/tsbridge/internal/editor"
	"github.com/dshills/tsbridge/internal/logging"
	"github.com/dshills/tsbridge/internal/tsserver"
)

// bufferOperation is a pending intent for one file: open, change, or close.
type bufferOperation interface {
	isBufferOperation()
}

type openOperation struct {
	args tsserver.OpenRequestArgs
}

type closeOperation struct {
	file string
}

type changeOperation struct {
	edits tsserver.FileCodeEdits
}

func (openOperation) isBufferOperation()   {}
func (closeOperation) isBufferOperation()  {}
func (changeOperation) isBufferOperation() {}

// commandExecutor sends fire-and-forget commands.
type commandExecutor interface {
	Execute(command string, args any, opts tsserver.ExecOptions, onResponse tsserver.ResponseHandler)
}

// synchronizer batches buffer operations into updateOpen commands. At most
// one operation is pending per file.
type synchronizer struct {
	client  commandExecutor
	pending *ResourceMap[bufferOperation]
	log     *logrus.Entry
}

func newSynchronizer(client commandExecutor, normalize PathNormalizer, config ResourceMapConfig, log *logrus.Entry) *synchronizer {
	return &synchronizer{
		client:  client,
		pending: NewResourceMap[bufferOperation](normalize, config),
		log:     log,
	}
}

func (s *synchronizer) open(uri editor.URI, args tsserver.OpenRequestArgs) {
	s.updatePending(uri, openOperation{args: args})
}

// close records a close and reports whether the server needs to hear about
// it. Closing a file whose open is still pending cancels both.
func (s *synchronizer) close(uri editor.URI, file string) bool {
	return s.updatePending(uri, closeOperation{file: file})
}

// change records edits. Edits are stored last-in-document first so that each
// can be applied against original offsets.
func (s *synchronizer) change(uri editor.URI, file string, changes []editor.ContentChange) {
	if len(changes) == 0 {
		return
	}

	edits := make([]tsserver.CodeEdit, len(changes))
	for i, c := range changes {
		edits[len(changes)-1-i] = tsserver.CodeEdit{
			Start:   toLocation(c.Range.Start),
			End:     toLocation(c.Range.End),
			NewText: c.Text,
		}
	}

	s.updatePending(uri, changeOperation{edits: tsserver.FileCodeEdits{
		FileName:    file,
		TextChanges: edits,
	}})
}

func (s *synchronizer) reset() {
	s.pending.Clear()
}

func (s *synchronizer) beforeCommand(command string) {
	if command == tsserver.CommandUpdateOpen {
		return
	}
	s.flush()
}

func (s *synchronizer) flush() {
	if s.pending.Len() == 0 {
		return
	}

	args := tsserver.UpdateOpenRequestArgs{
		OpenFiles:    []tsserver.OpenRequestArgs{},
		ChangedFiles: []tsserver.FileCodeEdits{},
		ClosedFiles:  []string{},
	}
	for _, op := range s.pending.Values() {
		switch op := op.(type) {
		case openOperation:
			args.OpenFiles = append(args.OpenFiles, op.args)
		case changeOperation:
			args.ChangedFiles = append(args.ChangedFiles, op.edits)
		case closeOperation:
			args.ClosedFiles = append(args.ClosedFiles, op.file)
		}
	}
	s.pending.Clear()

	s.log.WithFields(logrus.Fields{
		"open":    len(args.OpenFiles),
		"changed": len(args.ChangedFiles),
		"closed":  len(args.ClosedFiles),
	}).Trace("Flushing buffer operations")

	s.client.Execute(tsserver.CommandUpdateOpen, args, tsserver.ExecOptions{NonRecoverable: true}, func(_ *tsserver.Response, err error) {
		if err != nil {
			logging.Error(s.log, "updateOpen failed", err)
		}
	})
}

func (s *synchronizer) updatePending(uri editor.URI, op bufferOperation) bool {
	if _, ok := op.(closeOperation); ok {
		if existing, ok := s.pending.Get(uri); ok {
			if _, wasOpen := existing.(openOperation); wasOpen {
				s.pending.Delete(uri)
				return false
			}
		}
	}

	if s.pending.Has(uri) {
		s.flush()
	}
	s.pending.Set(uri, op)
	return true
}

func toLocation(p editor.Position) tsserver.Location {
	return tsserver.Location{Line: p.Line + 1, Offset: p.Character + 1}
}
