// Package queue serializes tool invocations for one MCP connection.
//
// The underlying client is synchronous; concurrent requests make the remote
// fail with enqueue errors. Each connection therefore gets exactly one worker
// goroutine that performs tool calls strictly FIFO. Submitters never block:
// the queue is unbounded and completion is delivered through a single-shot
// channel per request.
package queue

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/MCDxAI/meteor-mcp-addon-sub002/internal/mcp"
)

// ErrShuttingDown completes every request still pending when the queue is
// closed. The in-flight request, if any, is awaited and completes normally.
var ErrShuttingDown = errors.New("queue: shutting down")

// Response is the outcome delivered to a request's completion slot.
type Response struct {
	Result *mcp.Result
	Err    error
}

// Request is one pending tool invocation.
type Request struct {
	Tool string
	Args map[string]any
	done chan Response
}

// NewRequest builds a request with a fresh completion slot.
func NewRequest(tool string, args map[string]any) *Request {
	return &Request{Tool: tool, Args: args, done: make(chan Response, 1)}
}

// Wait blocks until the request completes or ctx is done.
func (r *Request) Wait(ctx context.Context) Response {
	select {
	case resp := <-r.done:
		return resp
	case <-ctx.Done():
		return Response{Err: ctx.Err()}
	}
}

// Done exposes the completion slot for select-based callers.
func (r *Request) Done() <-chan Response {
	return r.done
}

func (r *Request) complete(resp Response) {
	// The slot is buffered and completed exactly once; never blocks.
	r.done <- resp
}

// Reject completes a request that was never handed to a queue, e.g. when the
// target connection is already down. Must not be combined with Submit.
func (r *Request) Reject(err error) {
	r.complete(Response{Err: err})
}

// CallFunc performs one tool call. The worker goroutine is its only caller.
type CallFunc func(ctx context.Context, tool string, args map[string]any) (*mcp.Result, error)

// Queue is the per-server FIFO request queue.
type Queue struct {
	name string
	call CallFunc

	mu      sync.Mutex
	cond    *sync.Cond
	pending []*Request
	closed  bool

	stopped chan struct{}
}

// New creates the queue and starts its worker goroutine.
func New(name string, call CallFunc) *Queue {
	q := &Queue{
		name:    name,
		call:    call,
		stopped: make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.work()
	return q
}

// Submit enqueues a request and returns immediately. After Close, the
// request is completed with ErrShuttingDown instead.
func (q *Queue) Submit(req *Request) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		req.complete(Response{Err: ErrShuttingDown})
		return
	}
	q.pending = append(q.pending, req)
	q.cond.Signal()
	q.mu.Unlock()
}

// Len reports the number of pending requests (not counting one in flight).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close drains pending requests with ErrShuttingDown and waits for the
// worker to finish its in-flight call. Idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.stopped
		return
	}
	q.closed = true
	q.cond.Signal()
	q.mu.Unlock()
	<-q.stopped
}

// work consumes requests FIFO, one tool call at a time.
func (q *Queue) work() {
	defer close(q.stopped)
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if q.closed {
			drained := q.pending
			q.pending = nil
			q.mu.Unlock()
			if len(drained) > 0 {
				log.Printf("[Queue] %s: failing %d pending request(s) on shutdown", q.name, len(drained))
			}
			for _, req := range drained {
				req.complete(Response{Err: ErrShuttingDown})
			}
			return
		}
		req := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		q.run(req)
	}
}

// run executes one request, translating panics into error responses so a
// misbehaving transport cannot kill the worker.
func (q *Queue) run(req *Request) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("[Queue] %s: recovered panic in %q: %v", q.name, req.Tool, p)
			req.complete(Response{Err: errors.New("queue: internal error during tool call")})
		}
	}()
	result, err := q.call(context.Background(), req.Tool, req.Args)
	req.complete(Response{Result: result, Err: err})
}
