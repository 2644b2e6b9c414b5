// Package host declares the seams between the integration core and the
// embedding host: the single dispatch thread that owns script-namespace and
// command-tree mutations, and the background executor used for long-running
// work (LLM calls, command RPC offloads).
//
// The core never spawns UI-visible work directly; it posts through these
// interfaces. Hosts without a dedicated dispatch thread (tests, the bridge
// CLI) use the inline implementations below.
package host

import "sync"

// Dispatcher marshals a function onto the host's dispatch thread. All
// mutations of the script symbol table and the command dispatcher tree go
// through Post so that readers on the dispatch thread never observe a
// half-updated registry.
type Dispatcher interface {
	// Post schedules fn on the dispatch thread. Implementations must run
	// posted functions in submission order.
	Post(fn func())
}

// Executor runs long-lived background tasks. Any number of tasks may run
// concurrently; Wait blocks until all submitted tasks finish.
type Executor interface {
	Go(fn func())
	Wait()
}

// InlineDispatcher runs posted functions synchronously on the caller's
// goroutine. Used when no host dispatch thread exists (startup, tests).
// A mutex preserves the "one mutation at a time" guarantee.
type InlineDispatcher struct {
	mu sync.Mutex
}

func (d *InlineDispatcher) Post(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn()
}

// GoExecutor runs each task on its own goroutine and tracks completion.
type GoExecutor struct {
	wg sync.WaitGroup
}

func (e *GoExecutor) Go(fn func()) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn()
	}()
}

// Wait blocks until every task submitted so far has returned.
func (e *GoExecutor) Wait() {
	e.wg.Wait()
}
