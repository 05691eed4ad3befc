package tsserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// ResponseHandler receives the outcome of a request. Exactly one of resp and
// err is non-nil, except for asynchronous requests which complete with a
// synthetic successful response.
type ResponseHandler func(resp *Response, err error)

// EventHandler handles an event from the server. Handlers run on the read
// goroutine and must not block.
type EventHandler func(ev *Event)

type pendingRequest struct {
	command string
	handler ResponseHandler
}

// Transport speaks the tsserver stdio protocol: requests are written as
// newline-terminated JSON, responses and events are read with Content-Length
// framing.
type Transport struct {
	reader *bufio.Reader
	writer io.Writer
	closer io.Closer

	writeMu  sync.Mutex
	mu       sync.Mutex
	nextSeq  atomic.Int64
	pending  map[int64]pendingRequest
	handlers map[string]EventHandler

	closed atomic.Bool
	done   chan struct{}

	log *logrus.Entry
}

// NewTransport creates a transport over r and w. c, when non-nil, is closed
// by Close.
func NewTransport(r io.Reader, w io.Writer, c io.Closer, log *logrus.Entry) *Transport {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Transport{
		reader:   bufio.NewReaderSize(r, 64*1024),
		writer:   w,
		closer:   c,
		pending:  make(map[int64]pendingRequest),
		handlers: make(map[string]EventHandler),
		done:     make(chan struct{}),
		log:      log,
	}
}

// Start begins reading messages in a new goroutine. The transport closes
// itself when the stream ends.
func (t *Transport) Start(ctx context.Context) {
	go t.readLoop(ctx)
}

// Done is closed once the transport is closed.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// Close closes the transport. Outstanding requests complete with ErrShutdown.
func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	close(t.done)

	t.mu.Lock()
	pending := t.pending
	t.pending = make(map[int64]pendingRequest)
	t.mu.Unlock()

	for _, p := range pending {
		p.handler(nil, ErrShutdown)
	}

	if t.closer != nil {
		return t.closer.Close()
	}
	return nil
}

// IsClosed returns true if the transport has been closed.
func (t *Transport) IsClosed() bool {
	return t.closed.Load()
}

// Send writes a request and returns its sequence number. handler, when
// non-nil, is invoked once with the response, with the requestCompleted
// signal of an asynchronous request, or with ErrShutdown. If Send returns an
// error the handler is never invoked. A write that fails after Close already
// failed the handler is reported through the handler alone.
func (t *Transport) Send(command string, args any, handler ResponseHandler) (int64, error) {
	if t.closed.Load() {
		return 0, ErrShutdown
	}

	seq := t.nextSeq.Add(1)
	if handler != nil {
		t.mu.Lock()
		t.pending[seq] = pendingRequest{command: command, handler: handler}
		t.mu.Unlock()
	}

	req := &Request{
		Seq:       seq,
		Type:      TypeRequest,
		Command:   command,
		Arguments: args,
	}
	if err := t.write(req); err != nil {
		if handler != nil && !t.Forget(seq) {
			return seq, nil
		}
		return 0, err
	}
	return seq, nil
}

// Forget drops the handler for seq. It reports whether a handler was pending.
func (t *Transport) Forget(seq int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.pending[seq]
	delete(t.pending, seq)
	return ok
}

// Call sends a request and waits for its response. result, when non-nil,
// receives the response body.
func (t *Transport) Call(ctx context.Context, command string, args any, result any) error {
	type outcome struct {
		resp *Response
		err  error
	}
	ch := make(chan outcome, 1)

	seq, err := t.Send(command, args, func(resp *Response, err error) {
		ch <- outcome{resp, err}
	})
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		t.Forget(seq)
		return ctx.Err()
	case out := <-ch:
		if out.err != nil {
			return out.err
		}
		if !out.resp.Success {
			return &ResponseError{Command: command, Message: out.resp.Message}
		}
		if result != nil && len(out.resp.Body) > 0 {
			if err := json.Unmarshal(out.resp.Body, result); err != nil {
				return fmt.Errorf("unmarshal %s body: %w", command, err)
			}
		}
		return nil
	}
}

// OnEvent registers a handler for a server event. The name "*" matches
// events without a specific handler.
func (t *Transport) OnEvent(name string, handler EventHandler) {
	t.mu.Lock()
	t.handlers[name] = handler
	t.mu.Unlock()
}

func (t *Transport) write(req *Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", req.Command, err)
	}
	data = append(data, '\n')

	t.log.WithField("seq", req.Seq).Tracef("-> %s", req.Command)

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := t.writer.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", req.Command, err)
	}
	return nil
}

func (t *Transport) readLoop(ctx context.Context) {
	defer t.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.done:
			return
		default:
		}

		msg, err := t.readMessage()
		if err != nil {
			if t.closed.Load() {
				return
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, io.ErrUnexpectedEOF) {
				return
			}
			t.log.WithError(err).Warn("Malformed message from tsserver")
			continue
		}

		t.dispatch(msg)
	}
}

// readMessage reads one Content-Length framed message.
func (t *Transport) readMessage() (json.RawMessage, error) {
	var contentLength int
	sawHeader := false
	for {
		line, err := t.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			if !sawHeader {
				continue
			}
			break
		}
		sawHeader = true
		if strings.HasPrefix(strings.ToLower(line), "content-length:") {
			length, err := strconv.Atoi(strings.TrimSpace(line[len("content-length:"):]))
			if err == nil {
				contentLength = length
			}
		}
	}

	if contentLength <= 0 {
		return nil, fmt.Errorf("missing Content-Length header")
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(t.reader, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func (t *Transport) dispatch(data json.RawMessage) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		t.log.WithError(err).Warn("Undecodable message from tsserver")
		return
	}

	switch probe.Type {
	case TypeResponse:
		var resp Response
		if err := json.Unmarshal(data, &resp); err != nil {
			return
		}
		t.log.WithField("seq", resp.RequestSeq).Tracef("<- %s success=%t", resp.Command, resp.Success)
		t.resolve(resp.RequestSeq, &resp)
	case TypeEvent:
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		t.log.Tracef("<- event %s", ev.Event)
		t.handleEvent(&ev)
	}
}

// resolve completes the pending request seq.
func (t *Transport) resolve(seq int64, resp *Response) {
	t.mu.Lock()
	p, ok := t.pending[seq]
	if ok {
		delete(t.pending, seq)
	}
	t.mu.Unlock()

	if ok {
		if resp.Command == "" {
			resp.Command = p.command
		}
		p.handler(resp, nil)
	}
}

func (t *Transport) handleEvent(ev *Event) {
	if ev.Event == EventRequestCompleted {
		var body RequestCompletedEventBody
		if err := json.Unmarshal(ev.Body, &body); err == nil {
			t.resolve(body.RequestSeq, &Response{
				Type:       TypeResponse,
				RequestSeq: body.RequestSeq,
				Success:    true,
			})
		}
	}

	t.mu.Lock()
	handler, ok := t.handlers[ev.Event]
	if !ok {
		handler, ok = t.handlers["*"]
	}
	t.mu.Unlock()

	if ok && handler != nil {
		handler(ev)
	}
}
