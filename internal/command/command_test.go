package command

import (
	"reflect"
	"strings"
	"testing"
)

// recorder collects output lines for assertions.
type recorder struct {
	info []string
	errs []string
}

func (r *recorder) Info(line string)  { r.info = append(r.info, line) }
func (r *recorder) Error(line string) { r.errs = append(r.errs, line) }

func noop(ctx *Context) int { return ExitSuccess }

func TestDispatcher_AddLookupList(t *testing.T) {
	d := NewDispatcher()
	d.Add(&Command{Name: "beta", Run: noop})
	d.Add(&Command{Name: "alpha", Run: noop})

	if _, ok := d.Lookup("alpha"); !ok {
		t.Error("alpha not found")
	}
	if _, ok := d.Lookup("gamma"); ok {
		t.Error("gamma should not exist")
	}

	var names []string
	for _, cmd := range d.List() {
		names = append(names, cmd.Name)
	}
	if !reflect.DeepEqual(names, []string{"alpha", "beta"}) {
		t.Errorf("list order = %v", names)
	}
}

func TestDispatcher_Dispatch(t *testing.T) {
	d := NewDispatcher()
	var gotArgs, gotCaller string
	d.Add(&Command{Name: "run", Run: func(ctx *Context) int {
		gotArgs = ctx.Args
		gotCaller = ctx.Caller
		return ExitSuccess
	}})

	out := &recorder{}
	if code := d.Dispatch("run  one two ", out, "tester"); code != ExitSuccess {
		t.Errorf("exit = %d", code)
	}
	if gotArgs != "one two" || gotCaller != "tester" {
		t.Errorf("args = %q caller = %q", gotArgs, gotCaller)
	}

	if code := d.Dispatch("missing", out, "tester"); code != ExitFailure {
		t.Errorf("unknown command exit = %d", code)
	}
	if len(out.errs) == 0 || !strings.Contains(out.errs[0], "Unknown command") {
		t.Errorf("errors = %v", out.errs)
	}
}

func TestDispatcher_RemovePrefix(t *testing.T) {
	d := NewDispatcher()
	d.Add(&Command{Name: "files:read", Run: noop})
	d.Add(&Command{Name: "files:write", Run: noop})
	d.Add(&Command{Name: "filesystem:read", Run: noop})

	if n := d.RemovePrefix("files:"); n != 2 {
		t.Errorf("removed %d, want 2", n)
	}
	if _, ok := d.Lookup("files:read"); ok {
		t.Error("files:read survived removal")
	}
	if _, ok := d.Lookup("filesystem:read"); !ok {
		t.Error("filesystem:read should not match the files: prefix")
	}
}

func TestDispatcher_SuggestLine(t *testing.T) {
	d := NewDispatcher()
	d.Add(&Command{Name: "connect", Run: noop})
	d.Add(&Command{Name: "config", Run: noop})
	d.Add(&Command{Name: "servers", Run: noop})

	got := d.SuggestLine("con")
	if !reflect.DeepEqual(got, []string{"config", "connect"}) {
		t.Errorf("suggestions = %v", got)
	}

	d.Add(&Command{
		Name: "echo",
		Run:  noop,
		Suggest: func(partial string) []string {
			return []string{"loud=", "quiet="}
		},
	})
	got = d.SuggestLine("echo an")
	if !reflect.DeepEqual(got, []string{"loud=", "quiet="}) {
		t.Errorf("command suggestions = %v", got)
	}

	if got := d.SuggestLine("nosuch x"); got != nil {
		t.Errorf("unknown command suggestions = %v", got)
	}
}
