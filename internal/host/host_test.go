package host

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestInlineDispatcher_RunsInline(t *testing.T) {
	d := &InlineDispatcher{}
	ran := false
	d.Post(func() { ran = true })
	if !ran {
		t.Error("posted function did not run synchronously")
	}
}

func TestInlineDispatcher_SerializesConcurrentPosts(t *testing.T) {
	d := &InlineDispatcher{}
	active := int32(0)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Post(func() {
				if atomic.AddInt32(&active, 1) != 1 {
					t.Error("two posted functions ran at once")
				}
				atomic.AddInt32(&active, -1)
			})
		}()
	}
	wg.Wait()
}

func TestGoExecutor_WaitBlocksForAllTasks(t *testing.T) {
	e := &GoExecutor{}
	var done int32
	for i := 0; i < 8; i++ {
		e.Go(func() { atomic.AddInt32(&done, 1) })
	}
	e.Wait()
	if done != 8 {
		t.Errorf("done = %d, want 8", done)
	}
}
