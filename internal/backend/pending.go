// ABOUTME: Pending-call table: id allocation plus one-shot completion per in-flight request
// ABOUTME: Single mutex around map mutation only; unknown ids resolve as a silent no-op

package backend

import (
	"encoding/json"
	"sync"
)

type result struct {
	value json.RawMessage
	err   error
}

// pendingTable owns the request id counter and the in-flight map for one
// process lifetime. Ids start at 1 and are never reused.
type pendingTable struct {
	mu     sync.Mutex
	nextID uint64
	calls  map[uint64]chan result
	closed error
}

func newPendingTable() *pendingTable {
	return &pendingTable{calls: make(map[uint64]chan result)}
}

// register allocates the next id and inserts a fresh completion channel.
// After failAll it returns the failure instead.
func (p *pendingTable) register() (uint64, <-chan result, error) {
	// Buffered so resolve never blocks on a caller that has gone away.
	ch := make(chan result, 1)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed != nil {
		return 0, nil, p.closed
	}
	p.nextID++
	p.calls[p.nextID] = ch
	return p.nextID, ch, nil
}

// resolve removes and completes the entry for id. It reports whether an
// entry existed.
func (p *pendingTable) resolve(id uint64, r result) bool {
	p.mu.Lock()
	ch, ok := p.calls[id]
	if ok {
		delete(p.calls, id)
	}
	p.mu.Unlock()

	if ok {
		ch <- r
	}
	return ok
}

// forget drops the entry for id without completing it.
func (p *pendingTable) forget(id uint64) {
	p.mu.Lock()
	delete(p.calls, id)
	p.mu.Unlock()
}

// failAll completes every entry with err, empties the table, and makes
// later registrations fail with err. It returns the number of entries failed.
func (p *pendingTable) failAll(err error) int {
	p.mu.Lock()
	calls := p.calls
	p.calls = make(map[uint64]chan result)
	if p.closed == nil {
		p.closed = err
	}
	p.mu.Unlock()

	for _, ch := range calls {
		ch <- result{err: err}
	}
	return len(calls)
}

func (p *pendingTable) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}
