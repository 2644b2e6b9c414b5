package cache

import (
	"strings"
	"sync"
	"testing"
	"time"
)

// inline runs scheduled refreshes synchronously, making reads deterministic.
func inline(task func()) { task() }

func TestKey_SortsArguments(t *testing.T) {
	a := Key("files", "read", map[string]any{"path": "/x", "limit": 5})
	b := Key("files", "read", map[string]any{"limit": 5, "path": "/x"})
	if a != b {
		t.Errorf("equal args produced different keys: %q vs %q", a, b)
	}
	if want := "files.read(limit=5, path=/x)"; a != want {
		t.Errorf("key = %q, want %q", a, want)
	}
}

func TestRead_LoadingThenValue(t *testing.T) {
	c := New()
	var scheduled []func()
	defer_ := func(task func()) { scheduled = append(scheduled, task) }

	got := c.Read("s", "t", nil, defer_, func() string { return "fresh" })
	if got != Loading {
		t.Errorf("first read = %q, want %q", got, Loading)
	}
	if len(scheduled) != 1 {
		t.Fatalf("scheduled %d refreshes, want 1", len(scheduled))
	}
	scheduled[0]()

	got = c.Read("s", "t", nil, defer_, func() string { return "fresher" })
	if got != "fresh" {
		t.Errorf("second read = %q, want the completed refresh value", got)
	}
}

func TestRead_SingleFlight(t *testing.T) {
	c := New()
	var scheduled []func()
	capture := func(task func()) { scheduled = append(scheduled, task) }

	for i := 0; i < 5; i++ {
		c.Read("s", "t", nil, capture, func() string { return "v" })
	}
	if len(scheduled) != 1 {
		t.Errorf("scheduled %d refreshes for the same key, want single-flight", len(scheduled))
	}

	// Distinct keys refresh independently.
	c.Read("s", "other", nil, capture, func() string { return "v" })
	if len(scheduled) != 2 {
		t.Errorf("scheduled %d refreshes, want 2 after a second key", len(scheduled))
	}
}

func TestRead_RefreshAfterCompletion(t *testing.T) {
	c := New()
	calls := 0
	refresh := func() string { calls++; return "v" }

	c.Read("s", "t", nil, inline, refresh)
	c.Read("s", "t", nil, inline, refresh)
	if calls != 2 {
		t.Errorf("refresh calls = %d, want one per completed read", calls)
	}
}

func TestRead_SynchronousSubmitReturns(t *testing.T) {
	c := New()
	done := make(chan string, 1)
	go func() {
		done <- c.Read("s", "t", nil, inline, func() string { return "fresh" })
	}()

	select {
	case got := <-done:
		if got != Loading {
			t.Errorf("first read = %q, want %q", got, Loading)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Read blocked with a synchronous submit callback")
	}
	if v, _ := c.Peek("s", "t", nil); v != "fresh" {
		t.Errorf("value after synchronous refresh = %q, want %q", v, "fresh")
	}
}

func TestRead_PanickingRefresh(t *testing.T) {
	c := New()
	c.Read("s", "t", nil, inline, func() string { panic("rpc blew up") })

	got, ok := c.Peek("s", "t", nil)
	if !ok {
		t.Fatal("key missing after panicked refresh")
	}
	if !strings.HasPrefix(got, "Error:") {
		t.Errorf("value after panic = %q, want an Error value", got)
	}

	// The key must not be wedged in-flight.
	c.Read("s", "t", nil, inline, func() string { return "recovered" })
	if v, _ := c.Peek("s", "t", nil); v != "recovered" {
		t.Errorf("key stayed in-flight after panic, value = %q", v)
	}
}

func TestEvict_PrefixOnly(t *testing.T) {
	c := New()
	c.Read("alpha", "one", nil, inline, func() string { return "a1" })
	c.Read("alpha", "two", nil, inline, func() string { return "a2" })
	c.Read("alphabet", "one", nil, inline, func() string { return "b1" })

	n := c.Evict("alpha.")
	if n != 2 {
		t.Errorf("evicted %d keys, want 2", n)
	}
	if _, ok := c.Peek("alpha", "one", nil); ok {
		t.Error("alpha.one survived eviction")
	}
	if v, ok := c.Peek("alphabet", "one", nil); !ok || v != "b1" {
		t.Error("alphabet.one should not match the alpha. prefix")
	}
}

func TestRead_Concurrent(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Read("s", "t", map[string]any{"n": 1}, inline, func() string { return "v" })
		}()
	}
	wg.Wait()
	if v, ok := c.Peek("s", "t", map[string]any{"n": 1}); !ok || v != "v" {
		t.Errorf("concurrent reads left value %q ok=%v", v, ok)
	}
}
