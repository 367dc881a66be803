// ABOUTME: Stream router: a single stream slot fed by the reader, polled by the consumer
// ABOUTME: Unbounded per-stream queue so the reader never blocks; Done is delivered once and last

package backend

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/mailru/easyjson/jlexer"
)

// EventKind tags a StreamEvent.
type EventKind int

const (
	EventChunk EventKind = iota + 1
	EventDone
)

// StreamEvent is either an incremental text chunk or the terminal marker.
type StreamEvent struct {
	Kind   EventKind
	Text   string      // EventChunk
	Tokens *TokenStats // EventDone, optional usage summary
}

// Chunk builds a text event.
func Chunk(text string) StreamEvent { return StreamEvent{Kind: EventChunk, Text: text} }

// Done builds the terminal event.
func Done(tokens *TokenStats) StreamEvent { return StreamEvent{Kind: EventDone, Tokens: tokens} }

// Stream is the consumer handle for one streaming call.
type Stream struct {
	id uint64

	mu        sync.Mutex
	queue     []StreamEvent
	finished  bool // Done queued; later events are dropped
	delivered bool // Done handed to the consumer
	closeErr  error

	signal   chan struct{}
	detached chan struct{}
	detach   sync.Once
}

func newStream(id uint64) *Stream {
	return &Stream{
		id:       id,
		signal:   make(chan struct{}, 1),
		detached: make(chan struct{}),
	}
}

// NewStream returns a stream not attached to any connection, preloaded with
// events. Consumers use it to feed stream-driven code without a backend.
func NewStream(events ...StreamEvent) *Stream {
	s := newStream(0)
	for _, ev := range events {
		s.push(ev)
	}
	return s
}

// CloseWithError ends the stream early. Queued events are still delivered
// before err is reported.
func (s *Stream) CloseWithError(err error) { s.close(err) }

// ID returns the request id of the streaming call.
func (s *Stream) ID() uint64 { return s.id }

// push queues ev unless the stream already finished or closed. It never blocks.
func (s *Stream) push(ev StreamEvent) bool {
	s.mu.Lock()
	if s.finished || s.closeErr != nil {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, ev)
	if ev.Kind == EventDone {
		s.finished = true
	}
	s.mu.Unlock()

	s.wake()
	return true
}

// close ends the stream early with err. Events already queued, including a
// queued Done, are still delivered first.
func (s *Stream) close(err error) {
	s.mu.Lock()
	if !s.finished && s.closeErr == nil {
		s.closeErr = err
	}
	s.mu.Unlock()
	s.wake()
}

func (s *Stream) wake() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *Stream) markDetached() {
	s.detach.Do(func() { close(s.detached) })
}

// TryNext returns the next queued event without blocking. ok is false when
// nothing is ready. After Done has been returned err is io.EOF; after an
// early close err is the close reason.
func (s *Stream) TryNext() (ev StreamEvent, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) > 0 {
		ev = s.queue[0]
		s.queue[0] = StreamEvent{}
		s.queue = s.queue[1:]
		if ev.Kind == EventDone {
			s.delivered = true
		}
		return ev, true, nil
	}
	if s.delivered {
		return StreamEvent{}, false, io.EOF
	}
	if s.closeErr != nil {
		return StreamEvent{}, false, s.closeErr
	}
	return StreamEvent{}, false, nil
}

// Next blocks until an event is available, the stream ends, or ctx is done.
func (s *Stream) Next(ctx context.Context) (StreamEvent, error) {
	for {
		ev, ok, err := s.TryNext()
		if ok || err != nil {
			return ev, err
		}
		select {
		case <-s.signal:
		case <-ctx.Done():
			return StreamEvent{}, ctx.Err()
		}
	}
}

// streamRouter holds at most one installed stream.
type streamRouter struct {
	mu     sync.Mutex
	active *Stream
}

// install sets s as the active stream, or fails with ErrStreamActive.
func (r *streamRouter) install(s *Stream) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		return ErrStreamActive
	}
	r.active = s
	return nil
}

// forward pushes events to the active stream. With no stream installed the
// events are dropped.
func (r *streamRouter) forward(events ...StreamEvent) bool {
	r.mu.Lock()
	s := r.active
	r.mu.Unlock()
	if s == nil {
		return false
	}
	delivered := false
	for _, ev := range events {
		if s.push(ev) {
			delivered = true
		}
	}
	return delivered
}

// clear detaches and returns the active stream, if any.
func (r *streamRouter) clear() *Stream {
	r.mu.Lock()
	s := r.active
	r.active = nil
	r.mu.Unlock()
	if s != nil {
		s.markDetached()
	}
	return s
}

// clearIf detaches s only if it is still the active stream.
func (r *streamRouter) clearIf(s *Stream) {
	r.mu.Lock()
	if r.active == s {
		r.active = nil
	}
	r.mu.Unlock()
	s.markDetached()
}

// closeActive ends the active stream with err but leaves it installed until
// the consumer clears it.
func (r *streamRouter) closeActive(err error) {
	r.mu.Lock()
	s := r.active
	r.mu.Unlock()
	if s != nil {
		s.close(err)
	}
}

// streamParams is the payload of a streaming notification:
// {"chunk": "..."} or {"done": true, "tokens": {...}}.
type streamParams struct {
	chunk    string
	hasChunk bool
	done     bool
	tokens   *TokenStats
}

// UnmarshalEasyJSON implements easyjson.Unmarshaler.
func (p *streamParams) UnmarshalEasyJSON(in *jlexer.Lexer) {
	isTopLevel := in.IsStart()
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}
		switch key {
		case "chunk":
			p.chunk = in.String()
			p.hasChunk = true
		case "done":
			p.done = in.Bool()
		case "tokens":
			p.tokens = &TokenStats{}
			p.tokens.UnmarshalEasyJSON(in)
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
	if isTopLevel {
		in.Consumed()
	}
}

// decodeStreamEvents turns notification params into ordered events. A chunk
// and a done marker in the same notification yield Chunk then Done.
func decodeStreamEvents(params json.RawMessage) ([]StreamEvent, error) {
	var p streamParams
	l := jlexer.Lexer{Data: params}
	p.UnmarshalEasyJSON(&l)
	if err := l.Error(); err != nil {
		return nil, err
	}

	var events []StreamEvent
	if p.hasChunk {
		events = append(events, Chunk(p.chunk))
	}
	if p.done {
		events = append(events, Done(p.tokens))
	}
	return events, nil
}
