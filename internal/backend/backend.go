// ABOUTME: Backend connection: start/stop lifecycle, call dispatcher, and streaming entry point
// ABOUTME: One reader and one exit watcher per process run under an errgroup

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mauromedda/openagent-go/internal/jsonrpc"
	pilog "github.com/mauromedda/openagent-go/internal/log"
)

const (
	// DefaultCallTimeout bounds how long Call waits for a response.
	DefaultCallTimeout = 60 * time.Second
	// DefaultStreamMethod is the notification method carrying stream events.
	DefaultStreamMethod = "chat.stream"
	// ReadyMethod is the notification the server sends once it accepts calls.
	ReadyMethod = "server.ready"

	// exitDrainGrace is how long the watcher lets the reader drain stdout
	// after the child exits before forcing the pipe closed.
	exitDrainGrace = 250 * time.Millisecond
)

// DefaultCommand launches the Python backend server.
var DefaultCommand = []string{"python3", "-m", "openagent", "server"}

// Options configures the child process and call behavior.
type Options struct {
	Command string
	Args    []string
	Env     []string // KEY=VALUE, appended to the host environment
	Dir     string
	// Stderr receives the child's stderr. Nil means os.Stderr.
	Stderr io.Writer

	CallTimeout  time.Duration
	StreamMethod string
}

// State is the connection lifecycle state.
type State int

const (
	StateNotStarted State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "not started"
	}
}

// Backend is the client side of the JSON-RPC connection to the child process.
// All methods are safe for concurrent use.
type Backend struct {
	opts   Options
	connID string
	log    zerolog.Logger

	mu    sync.RWMutex
	state State
	conn  *conn
}

// conn holds everything tied to one process lifetime.
type conn struct {
	proc    *process
	pending *pendingTable
	router  *streamRouter
	log     zerolog.Logger

	writeMu sync.Mutex

	group      errgroup.Group
	readerDone chan struct{}
	exited     chan struct{}
	exitOnce   sync.Once

	ready         chan struct{}
	readyOnce     sync.Once
	versionMu     sync.Mutex
	serverVersion string
}

// New creates a Backend in the NotStarted state.
func New(opts Options) *Backend {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.StreamMethod == "" {
		opts.StreamMethod = DefaultStreamMethod
	}
	connID := uuid.NewString()[:8]
	return &Backend{
		opts:   opts,
		connID: connID,
		log:    pilog.With("backend").With().Str("conn", connID).Logger(),
	}
}

// Start spawns the child process and the reader. A spawn or pipe failure is
// returned as a KindIO error and leaves the Backend not running, so callers
// can fall back to offline mode.
func (b *Backend) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateRunning {
		return errors.New("backend already running")
	}

	proc, err := startProcess(b.opts)
	if err != nil {
		b.log.Warn().Err(err).Str("command", b.opts.Command).Msg("backend spawn failed")
		return err
	}

	c := &conn{
		proc:       proc,
		pending:    newPendingTable(),
		router:     &streamRouter{},
		log:        b.log.With().Int("pid", proc.pid()).Logger(),
		readerDone: make(chan struct{}),
		exited:     make(chan struct{}),
		ready:      make(chan struct{}),
	}
	c.group.Go(func() error { return c.readLoop(proc.stdout, b.opts.StreamMethod) })
	c.group.Go(c.watchExit)

	// Reap the child if the Backend is dropped without Stop.
	runtime.AddCleanup(b, func(p *process) { p.stop() }, proc)

	b.conn = c
	b.state = StateRunning
	c.log.Info().Str("command", b.opts.Command).Strs("args", b.opts.Args).Msg("backend started")
	return nil
}

// Stop kills the child and waits for the reader and watcher to finish.
// It is idempotent. In-flight calls fail with KindProcessDied.
func (b *Backend) Stop() error {
	b.mu.Lock()
	c := b.conn
	wasRunning := b.state == StateRunning
	if wasRunning {
		b.state = StateStopped
	}
	b.conn = nil
	b.mu.Unlock()

	if !wasRunning || c == nil {
		return nil
	}

	c.proc.stop()
	err := c.group.Wait()
	c.log.Info().Msg("backend stopped")
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("backend reader: %w", err)
	}
	return nil
}

// IsRunning reports whether Start succeeded, Stop has not been called, and
// the child has not been seen to exit. It does not query the OS process.
func (b *Backend) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.state != StateRunning || b.conn == nil {
		return false
	}
	select {
	case <-b.conn.exited:
		return false
	default:
		return true
	}
}

// State returns the lifecycle state.
func (b *Backend) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Ready is closed when the server announces itself. It is nil before Start.
func (b *Backend) Ready() <-chan struct{} {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.conn == nil {
		return nil
	}
	return b.conn.ready
}

// Exited is closed once the child is known to be gone. It is nil before Start.
func (b *Backend) Exited() <-chan struct{} {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.conn == nil {
		return nil
	}
	return b.conn.exited
}

// ServerVersion returns the version from the server.ready notification, if seen.
func (b *Backend) ServerVersion() string {
	b.mu.RLock()
	c := b.conn
	b.mu.RUnlock()
	if c == nil {
		return ""
	}
	c.versionMu.Lock()
	defer c.versionMu.Unlock()
	return c.serverVersion
}

func (b *Backend) activeConn() (*conn, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.state != StateRunning || b.conn == nil {
		return nil, ErrNotStarted
	}
	select {
	case <-b.conn.exited:
		return nil, ErrProcessDied
	default:
		return b.conn, nil
	}
}

// Call sends method with params and waits up to the configured timeout.
func (b *Backend) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return b.CallTimeout(ctx, method, params, b.opts.CallTimeout)
}

// CallTimeout sends method with params and waits up to timeout for the
// matching response. A timeout is reported as KindProcessDied.
func (b *Backend) CallTimeout(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	c, err := b.activeConn()
	if err != nil {
		return nil, err
	}

	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}

	id, done, err := c.pending.register()
	if err != nil {
		return nil, err
	}

	if err := c.write(jsonrpc.NewRequest(id, method, raw)); err != nil {
		c.pending.forget(id)
		return nil, err
	}
	c.log.Debug().Uint64("id", id).Str("method", method).Msg("call sent")

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.value, r.err
	case <-timer.C:
		c.pending.forget(id)
		c.log.Warn().Uint64("id", id).Str("method", method).Dur("timeout", timeout).Msg("call timed out")
		return nil, processDied(fmt.Errorf("%s: no response after %s", method, timeout))
	case <-ctx.Done():
		c.pending.forget(id)
		return nil, ctx.Err()
	}
}

// CallStreaming installs a fresh stream and sends the request without
// waiting for its response. The backend answers through notifications.
// While a stream is installed another CallStreaming fails with ErrStreamActive.
func (b *Backend) CallStreaming(ctx context.Context, method string, params any) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := b.activeConn()
	if err != nil {
		return nil, err
	}

	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}

	id, done, err := c.pending.register()
	if err != nil {
		return nil, err
	}

	s := newStream(id)
	if err := c.router.install(s); err != nil {
		c.pending.forget(id)
		return nil, err
	}

	if err := c.write(jsonrpc.NewRequest(id, method, raw)); err != nil {
		c.router.clearIf(s)
		c.pending.forget(id)
		return nil, err
	}
	c.log.Debug().Uint64("id", id).Str("method", method).Msg("stream started")

	go watchStreamResponse(s, done)
	return s, nil
}

// watchStreamResponse closes s when the streaming request itself fails.
// A successful response carries nothing the stream needs.
func watchStreamResponse(s *Stream, done <-chan result) {
	select {
	case r := <-done:
		if r.err != nil {
			s.close(r.err)
		}
	case <-s.detached:
	}
}

// ClearStream detaches the active stream so another streaming call can be
// made. Late events for the old stream are dropped.
func (b *Backend) ClearStream() {
	b.mu.RLock()
	c := b.conn
	b.mu.RUnlock()
	if c == nil {
		return
	}
	if s := c.router.clear(); s != nil {
		c.pending.forget(s.ID())
		c.log.Debug().Uint64("id", s.ID()).Msg("stream cleared")
	}
}

func (c *conn) write(req *jsonrpc.Request) error {
	line, err := jsonrpc.Encode(req)
	if err != nil {
		return parseError("encoding request", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.proc.stdin.Write(line); err != nil {
		return ioError("writing request", err)
	}
	return nil
}

// watchExit notices the child exiting on its own. The reader gets a short
// grace period to drain responses already written before the pipe is closed.
func (c *conn) watchExit() error {
	<-c.proc.exited
	select {
	case <-c.readerDone:
	case <-time.After(exitDrainGrace):
		c.proc.closeStdout()
		<-c.readerDone
	}
	c.markExited(c.proc.waitErr)
	return nil
}

// markExited fails everything waiting on this process. Idempotent.
func (c *conn) markExited(cause error) {
	c.exitOnce.Do(func() {
		close(c.exited)
		err := processDied(cause)
		n := c.pending.failAll(err)
		c.router.closeActive(err)
		c.log.Info().Err(cause).Int("failed_calls", n).Msg("backend exited")
	})
}

func marshalParams(params any) (json.RawMessage, error) {
	switch p := params.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if len(p) > 0 && !json.Valid(p) {
			return nil, parseError("encoding params", errors.New("invalid raw JSON"))
		}
		return p, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, parseError("encoding params", err)
	}
	return raw, nil
}
