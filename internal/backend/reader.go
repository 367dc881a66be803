// ABOUTME: Reader loop: scans newline-delimited messages from the child's stdout
// ABOUTME: Responses resolve pending calls, stream notifications feed the router, junk is skipped

package backend

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/mauromedda/openagent-go/internal/jsonrpc"
)

// maxLineSize caps a single message. Longer lines are skipped, not fatal.
const maxLineSize = 10 * 1024 * 1024 // 10MB

// lineReader splits a stream into newline-terminated lines of bounded size.
type lineReader struct {
	br    *bufio.Reader
	limit int
	buf   []byte
}

func newLineReader(r io.Reader, limit int) *lineReader {
	return &lineReader{br: bufio.NewReaderSize(r, 64*1024), limit: limit}
}

// next returns the next line without its line ending. A line longer than
// limit is consumed to its newline and reported through dropped with a nil
// line. The returned slice is reused by the following call.
func (l *lineReader) next() (line []byte, dropped int, err error) {
	l.buf = l.buf[:0]
	size := 0
	for {
		chunk, rerr := l.br.ReadSlice('\n')
		size += len(chunk)
		switch {
		case dropped > 0 || size-trailingNewline(chunk) > l.limit:
			dropped = size
			l.buf = l.buf[:0]
		default:
			l.buf = append(l.buf, chunk...)
		}
		if errors.Is(rerr, bufio.ErrBufferFull) {
			continue
		}
		if dropped > 0 {
			return nil, dropped, rerr
		}
		return bytes.TrimRight(l.buf, "\r\n"), 0, rerr
	}
}

func trailingNewline(chunk []byte) int {
	if n := len(chunk); n > 0 && chunk[n-1] == '\n' {
		return 1
	}
	return 0
}

// readLoop runs for the lifetime of the process. It holds no lock across
// iterations; each message touches shared state only through resolve or forward.
func (c *conn) readLoop(r io.Reader, streamMethod string) error {
	defer close(c.readerDone)

	lr := newLineReader(r, maxLineSize)
	for {
		line, dropped, err := lr.next()
		switch {
		case dropped > 0:
			c.log.Debug().Int("bytes", dropped).Int("max", maxLineSize).Msg("skipping oversized line")
		case len(line) > 0:
			c.dispatch(line, streamMethod)
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				err = nil
			}
			c.markExited(err)
			return err
		}
	}
}

func (c *conn) dispatch(line []byte, streamMethod string) {
	msg := jsonrpc.Decode(line)
	switch msg.Kind {
	case jsonrpc.KindResponse:
		c.handleResponse(msg.Response)
	case jsonrpc.KindNotification:
		c.handleNotification(msg.Notification, streamMethod)
	default:
		c.log.Debug().Int("bytes", len(line)).Msg("skipping unrecognized line")
	}
}

func (c *conn) handleResponse(resp *jsonrpc.Response) {
	var r result
	if resp.Error != nil {
		r.err = rpcError(resp.Error.Code, resp.Error.Message, resp.Error.Data)
	} else {
		r.value = resp.Result
	}
	if !c.pending.resolve(resp.ID, r) {
		c.log.Debug().Uint64("id", resp.ID).Msg("response for unknown id")
	}
}

func (c *conn) handleNotification(n *jsonrpc.Notification, streamMethod string) {
	switch n.Method {
	case streamMethod:
		events, err := decodeStreamEvents(n.Params)
		if err != nil {
			c.log.Debug().Err(err).Msg("malformed stream notification")
			return
		}
		if len(events) > 0 && !c.router.forward(events...) {
			c.log.Debug().Msg("stream event dropped: no active stream")
		}
	case ReadyMethod:
		var p struct {
			Version string `json:"version"`
		}
		if len(n.Params) > 0 {
			_ = json.Unmarshal(n.Params, &p)
		}
		c.versionMu.Lock()
		c.serverVersion = p.Version
		c.versionMu.Unlock()
		c.readyOnce.Do(func() { close(c.ready) })
		c.log.Info().Str("version", p.Version).Msg("backend ready")
	default:
		c.log.Debug().Str("method", n.Method).Msg("ignoring notification")
	}
}
