package session

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/crystal-mush/gotinytf/pkg/boltstore"
	"github.com/crystal-mush/gotinytf/pkg/events"
	"github.com/crystal-mush/gotinytf/pkg/tf"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// recorder is a bus subscriber that keeps every event.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
	closed bool
}

func (r *recorder) Receive(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *recorder) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

// texts returns the text of every recorded event of type t.
func (r *recorder) texts(t events.EventType) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev.Text)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func newTestSession(t *testing.T, opts ...Option) (*Session, *recorder) {
	t.Helper()
	bus := events.NewBus()
	rec := &recorder{}
	bus.SubscribeGlobal(rec)
	return New(bus, opts...), rec
}

func writeMacros(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestHandleInputCommand(t *testing.T) {
	s, rec := newTestSession(t)
	s.HandleInput("#set foo=bar %; #echo %foo")
	s.HandleInput("#nosuch")

	if got := rec.texts(events.EvMessage); !reflect.DeepEqual(got, []string{"bar"}) {
		t.Errorf("messages = %q", got)
	}
	if got := rec.texts(events.EvError); !reflect.DeepEqual(got, []string{"Unknown command: #nosuch"}) {
		t.Errorf("errors = %q", got)
	}
	if got := testutil.ToFloat64(s.metrics.inputTotal.WithLabelValues("command")); got != 2 {
		t.Errorf("command input = %v", got)
	}
}

func TestHandleInputSendAndHook(t *testing.T) {
	s, rec := newTestSession(t)
	s.WithEngineLocked(func(e *tf.Engine) {
		e.AddMacro(tf.Macro{Name: "onsend", Body: "#echo sending", Hook: events.HookSend})
	})
	s.HandleInput("say hello")

	if got := rec.texts(events.EvSend); !reflect.DeepEqual(got, []string{"say hello"}) {
		t.Errorf("sends = %q", got)
	}
	if got := rec.texts(events.EvMessage); !reflect.DeepEqual(got, []string{"sending"}) {
		t.Errorf("messages = %q", got)
	}
	if got := s.History(); !reflect.DeepEqual(got, []string{"say hello"}) {
		t.Errorf("history = %q", got)
	}
}

func TestHandleServerLine(t *testing.T) {
	s, rec := newTestSession(t, WithWorld("Foo"))
	s.WithEngineLocked(func(e *tf.Engine) {
		e.AddMacro(tf.Macro{Name: "greet", Body: "wave %1", Trigger: tf.NewTrigger("* arrives.", tf.MatchGlob)})
		e.AddMacro(tf.Macro{Name: "spam", Trigger: tf.NewTrigger("*spam*", tf.MatchGlob), Attrs: tf.Attributes{Gag: true}})
		e.AddMacro(tf.Macro{Name: "hide", Body: "#substitute [hidden]", Trigger: tf.NewTrigger("password*", tf.MatchGlob)})
	})

	s.HandleInput("<Bob arrives.")
	s.HandleServerLine("buy spam now")
	s.HandleServerLine("password is swordfish")

	if got := rec.texts(events.EvLine); !reflect.DeepEqual(got, []string{"Bob arrives.", "[hidden]"}) {
		t.Errorf("lines = %q", got)
	}
	if got := rec.texts(events.EvSend); !reflect.DeepEqual(got, []string{"wave Bob"}) {
		t.Errorf("sends = %q", got)
	}
	if got := testutil.ToFloat64(s.metrics.linesTotal.WithLabelValues("Foo")); got != 3 {
		t.Errorf("lines_total = %v", got)
	}
	if got := testutil.ToFloat64(s.metrics.linesGagged); got != 1 {
		t.Errorf("gagged = %v", got)
	}
	if got := testutil.ToFloat64(s.metrics.linesSubstituted); got != 1 {
		t.Errorf("substituted = %v", got)
	}
}

func TestWorldSwitch(t *testing.T) {
	s, rec := newTestSession(t)
	s.WithEngineLocked(func(e *tf.Engine) {
		e.AddMacro(tf.Macro{Name: "onworld", Body: "#echo now in %{world}", Hook: events.HookWorld})
		e.SetVar("world", tf.StringValue("?"))
	})
	s.HandleInput("#world Foo")
	if s.World() != "Foo" {
		t.Fatalf("world = %q", s.World())
	}
	if got := rec.texts(events.EvClientCommand); !reflect.DeepEqual(got, []string{"/world Foo"}) {
		t.Errorf("client commands = %q", got)
	}
	if got := testutil.ToFloat64(s.metrics.hookFires.WithLabelValues("world")); got != 1 {
		t.Errorf("world hook fires = %v", got)
	}

	rec.reset()
	s.HandleInput("/world")
	if got := rec.texts(events.EvMessage); len(got) != 1 || !strings.Contains(got[0], "Foo") {
		t.Errorf("world query = %q", got)
	}
}

func TestHandleInputHookAndErrors(t *testing.T) {
	s, rec := newTestSession(t)
	s.WithEngineLocked(func(e *tf.Engine) {
		e.AddMacro(tf.Macro{Name: "login", Body: "connect bob pw", Hook: events.HookLogin})
	})
	s.HandleInput("!login")
	s.HandleInput("!teatime")

	if got := rec.texts(events.EvSend); !reflect.DeepEqual(got, []string{"connect bob pw"}) {
		t.Errorf("sends = %q", got)
	}
	if got := rec.texts(events.EvHook); !reflect.DeepEqual(got, []string{"login"}) {
		t.Errorf("hooks = %q", got)
	}
	if got := rec.texts(events.EvError); len(got) != 1 {
		t.Errorf("errors = %q", got)
	}
}

func TestHistoryBound(t *testing.T) {
	s, _ := newTestSession(t, WithHistory(2))
	for _, in := range []string{"one", "two", "three"} {
		s.HandleInput(in)
	}
	if got := s.History(); !reflect.DeepEqual(got, []string{"two", "three"}) {
		t.Errorf("history = %q", got)
	}
}

func TestLoadMacroFileReload(t *testing.T) {
	s, rec := newTestSession(t)
	path := filepath.Join(t.TempDir(), "macros.yaml")
	writeMacros(t, path, `
vars:
  target: orc
macros:
  - name: a
    pattern: "alpha*"
    body: "kill %target"
  - name: loaded
    body: "#echo loaded"
    hook: load
binds:
  F1: "#help"
`)
	if err := s.LoadMacroFile(path); err != nil {
		t.Fatal(err)
	}
	if got := rec.texts(events.EvMessage); !reflect.DeepEqual(got, []string{"loaded"}) {
		t.Errorf("load hook messages = %q", got)
	}
	s.HandleServerLine("alpha strike")
	if got := rec.texts(events.EvSend); !reflect.DeepEqual(got, []string{"kill orc"}) {
		t.Errorf("sends = %q", got)
	}

	writeMacros(t, path, `
macros:
  - name: b
    pattern: "beta*"
    body: "flee"
`)
	if err := s.LoadMacroFile(path); err != nil {
		t.Fatal(err)
	}
	s.WithEngineLocked(func(e *tf.Engine) {
		if _, ok := e.Macro("a"); ok {
			t.Error("macro a survived reload")
		}
		if _, ok := e.Macro("b"); !ok {
			t.Error("macro b missing after reload")
		}
		if got := e.HookBindings(events.HookLoad); len(got) != 0 {
			t.Errorf("stale load bindings = %q", got)
		}
	})
}

func TestSaveRestore(t *testing.T) {
	dir := t.TempDir()
	store, err := boltstore.Open(filepath.Join(dir, "state.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	s, _ := newTestSession(t, WithStore(store))
	s.HandleInput("#set hp=10")
	s.WithEngineLocked(func(e *tf.Engine) {
		e.AddMacro(tf.Macro{Name: "t", Body: "#echo hit", Trigger: tf.NewTrigger("hit", tf.MatchSimple)})
	})
	if err := s.Save(); err != nil {
		t.Fatal(err)
	}

	r, rec := newTestSession(t, WithStore(store))
	if err := r.Restore(); err != nil {
		t.Fatal(err)
	}
	r.HandleServerLine("a hit")
	if got := rec.texts(events.EvMessage); !reflect.DeepEqual(got, []string{"hit"}) {
		t.Errorf("restored trigger messages = %q", got)
	}

	// A macro file entry replaces the restored macro of the same name.
	path := filepath.Join(dir, "macros.yaml")
	writeMacros(t, path, "macros:\n  - name: t\n    pattern: hit\n    match: simple\n    body: \"#echo file\"\n")
	if err := r.LoadMacroFile(path); err != nil {
		t.Fatal(err)
	}
	rec.reset()
	r.HandleServerLine("a hit")
	if got := rec.texts(events.EvMessage); !reflect.DeepEqual(got, []string{"file"}) {
		t.Errorf("file override messages = %q", got)
	}
}

func TestMetricsHandler(t *testing.T) {
	s, _ := newTestSession(t)
	s.HandleInput("#set a=1")
	s.WithEngineLocked(func(e *tf.Engine) {
		e.AddMacro(tf.Macro{Name: "m", Body: "x", Trigger: tf.NewTrigger("x", tf.MatchGlob)})
	})

	rr := httptest.NewRecorder()
	s.MetricsHandler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	body := rr.Body.String()
	for _, want := range []string{
		`gotinytf_engine_entries{kind="macros"} 1`,
		`gotinytf_engine_entries{kind="variables"} 1`,
		`gotinytf_input_total{kind="command"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestFollowerMovesWithWorld(t *testing.T) {
	bus := events.NewBus()
	f := &recorder{}
	gone := &recorder{}
	s := New(bus, WithWorld("A"), WithFollower(f), WithFollower(gone))
	if bus.WorldSubscribers("A") != 2 || bus.WorldSubscribers("") != 2 {
		t.Fatalf("subscribers A=%d none=%d", bus.WorldSubscribers("A"), bus.WorldSubscribers(""))
	}

	s.HandleInput("<hello from A")
	if got := f.texts(events.EvLine); !reflect.DeepEqual(got, []string{"hello from A"}) {
		t.Errorf("lines = %q", got)
	}

	gone.close()
	s.HandleInput("/world B")
	if bus.WorldSubscribers("A") != 0 || bus.WorldSubscribers("B") != 1 {
		t.Errorf("subscribers A=%d B=%d", bus.WorldSubscribers("A"), bus.WorldSubscribers("B"))
	}
	if bus.WorldSubscribers("") != 1 {
		t.Errorf("closed follower still subscribed to worldless events")
	}

	f.reset()
	bus.EmitToWorld("A", events.Event{Type: events.EvLine, Text: "stale"})
	bus.EmitToWorld("B", events.Event{Type: events.EvLine, Text: "fresh"})
	s.HandleInput("/world")
	if got := f.texts(events.EvLine); !reflect.DeepEqual(got, []string{"fresh"}) {
		t.Errorf("lines after switch = %q", got)
	}
	if got := f.texts(events.EvMessage); len(got) != 1 || !strings.Contains(got[0], "B") {
		t.Errorf("world query = %q", got)
	}
}

func TestHandleInputCallsMacro(t *testing.T) {
	s, rec := newTestSession(t)
	s.WithEngineLocked(func(e *tf.Engine) {
		e.AddMacro(tf.Macro{Name: "greet", Body: "say hi %1 %; #echo args=%*"})
	})
	s.HandleInput("/greet Bob Alice")
	if got := rec.texts(events.EvSend); !reflect.DeepEqual(got, []string{"say hi Bob"}) {
		t.Errorf("sends = %q", got)
	}
	if got := rec.texts(events.EvMessage); !reflect.DeepEqual(got, []string{"args=Bob Alice"}) {
		t.Errorf("messages = %q", got)
	}
	if got := testutil.ToFloat64(s.metrics.inputTotal.WithLabelValues("macro")); got != 1 {
		t.Errorf("macro input = %v", got)
	}

	// Without a macro of that name the line is a client command.
	rec.reset()
	s.HandleInput("/nomacro x")
	if got := rec.texts(events.EvClientCommand); !reflect.DeepEqual(got, []string{"/nomacro x"}) {
		t.Errorf("client commands = %q", got)
	}
}

func TestDoKey(t *testing.T) {
	s, rec := newTestSession(t)
	s.WithEngineLocked(func(e *tf.Engine) {
		e.Bind("F1", "#echo pressed %; north")
	})
	s.HandleInput("/dokey F1")
	if got := rec.texts(events.EvMessage); !reflect.DeepEqual(got, []string{"pressed"}) {
		t.Errorf("messages = %q", got)
	}
	if got := rec.texts(events.EvSend); !reflect.DeepEqual(got, []string{"north"}) {
		t.Errorf("sends = %q", got)
	}

	rec.reset()
	s.HandleInput("/dokey F2")
	if got := rec.texts(events.EvError); len(got) != 1 || !strings.Contains(got[0], "F2") {
		t.Errorf("errors = %q", got)
	}
}

func TestWorldHookLoopStops(t *testing.T) {
	s, rec := newTestSession(t)
	s.WithEngineLocked(func(e *tf.Engine) {
		e.AddMacro(tf.Macro{Name: "bounce", Body: "#world Elsewhere", Hook: events.HookWorld})
	})
	s.HandleInput("#world Start")
	if s.World() != "Elsewhere" {
		t.Errorf("world = %q", s.World())
	}
	errs := rec.texts(events.EvError)
	if len(errs) != 1 || !strings.Contains(errs[0], "nested too deeply") {
		t.Errorf("errors = %q", errs)
	}
	if got := len(rec.texts(events.EvClientCommand)); got != maxCommandDepth {
		t.Errorf("client commands = %d, want %d", got, maxCommandDepth)
	}
}
