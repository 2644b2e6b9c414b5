package script

import (
	"reflect"
	"testing"
)

func TestStack_PopAllRestoresCallOrder(t *testing.T) {
	st := NewStack("first", "second", "third")
	got := st.PopAll()
	want := []any{"first", "second", "third"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("PopAll = %v, want %v", got, want)
	}
	if st.Len() != 0 {
		t.Errorf("stack not drained, len = %d", st.Len())
	}
}

func TestStack_PopIsLIFO(t *testing.T) {
	st := NewStack(1, 2)
	if v, ok := st.Pop(); !ok || v != 2 {
		t.Errorf("first pop = %v, %v", v, ok)
	}
	if v, ok := st.Pop(); !ok || v != 1 {
		t.Errorf("second pop = %v, %v", v, ok)
	}
	if _, ok := st.Pop(); ok {
		t.Error("pop on empty stack should fail")
	}
}

func TestToJSON(t *testing.T) {
	cases := []struct {
		in   any
		want any
	}{
		{nil, nil},
		{true, true},
		{"text", "text"},
		{42, int64(42)},
		{int32(7), int64(7)},
		{3.0, int64(3)},
		{-2.0, int64(-2)},
		{2.5, 2.5},
		{float32(1.5), 1.5},
		{map[string]any{"n": 4.0}, map[string]any{"n": int64(4)}},
		{[]int{1, 2}, "[1 2]"},
	}
	for _, tc := range cases {
		got := ToJSON(tc.in)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("ToJSON(%#v) = %#v, want %#v", tc.in, got, tc.want)
		}
	}
}

func TestNamespace(t *testing.T) {
	ns := NewNamespace()
	ns.Set("b", func(st *Stack) string { return "b" })
	ns.Set("a", func(st *Stack) string { return "a" })

	if got := ns.Names(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("names = %v", got)
	}
	if _, ok := ns.Get("a"); !ok {
		t.Error("a missing")
	}
	if _, ok := ns.Get("z"); ok {
		t.Error("z should not exist")
	}
}

func TestGlobalTable_Lifecycle(t *testing.T) {
	table := NewGlobalTable()

	ns := NewNamespace()
	ns.Set("echo", func(st *Stack) string {
		args := st.PopAll()
		if len(args) == 0 {
			return ""
		}
		return args[0].(string)
	})
	table.SetNamespace("srv", ns)

	got, err := table.Call("srv", "echo", "hello")
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if got != "hello" {
		t.Errorf("call = %q", got)
	}

	if _, err := table.Call("srv", "nothere"); err == nil {
		t.Error("unknown function should error")
	}

	table.RemoveNamespace("srv")
	if _, err := table.Call("srv", "echo"); err == nil {
		t.Error("removed namespace should error")
	}
}
