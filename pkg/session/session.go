package session

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/crystal-mush/gotinytf/pkg/boltstore"
	"github.com/crystal-mush/gotinytf/pkg/config"
	"github.com/crystal-mush/gotinytf/pkg/events"
	"github.com/crystal-mush/gotinytf/pkg/logging"
	"github.com/crystal-mush/gotinytf/pkg/tf"
	"github.com/rs/zerolog"
)

// Session owns one scripting engine and routes its results onto an event
// bus. All engine access goes through the session lock, so input, server
// lines and file reloads may arrive from different goroutines.
type Session struct {
	mu      sync.Mutex
	engine  *tf.Engine
	bus     *events.Bus
	metrics *Metrics
	store   *boltstore.Store
	log     zerolog.Logger

	world      string
	followers  []events.Subscriber
	fileMacros []string // names defined by the macro file, replaced on reload
	history    []string
	historyMax int
}

// maxCommandDepth bounds client commands issued by the results of other
// client commands, such as a world hook that switches worlds again.
const maxCommandDepth = 16

// Option configures a Session.
type Option func(*Session)

// WithStore persists engine state to s on Save.
func WithStore(s *boltstore.Store) Option {
	return func(ss *Session) { ss.store = s }
}

// WithWorld sets the initial current world.
func WithWorld(world string) Option {
	return func(s *Session) { s.world = world }
}

// WithHistory bounds the input history.
func WithHistory(n int) Option {
	return func(s *Session) { s.historyMax = n }
}

// WithFollower subscribes sub to the current world's events and to events
// not tied to any world. The subscription moves when the world changes.
func WithFollower(sub events.Subscriber) Option {
	return func(s *Session) { s.followers = append(s.followers, sub) }
}

// WithEngine replaces the session's engine.
func WithEngine(e *tf.Engine) Option {
	return func(s *Session) { s.engine = e }
}

// New creates a session emitting onto bus.
func New(bus *events.Bus, opts ...Option) *Session {
	s := &Session{
		engine:     tf.NewEngine(),
		bus:        bus,
		metrics:    NewMetrics(time.Now()),
		log:        logging.GetLogger("session"),
		historyMax: 100,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.bus != nil {
		for _, f := range s.followers {
			s.bus.Subscribe("", f)
			if s.world != "" {
				s.bus.Subscribe(s.world, f)
			}
		}
	}
	return s
}

// World returns the current world.
func (s *Session) World() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.world
}

// Metrics returns the session's metrics.
func (s *Session) Metrics() *Metrics { return s.metrics }

// WithEngineLocked runs fn with exclusive access to the engine.
func (s *Session) WithEngineLocked(fn func(e *tf.Engine)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.engine)
}

// History returns the remembered input lines, oldest first.
func (s *Session) History() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.history...)
}

// HandleInput processes one line typed by the user:
//
//	#cmd     run as a command (with %; separated follow-ups)
//	/name    call the macro name with the rest of the line as arguments
//	/cmd     client command, when no macro has that name
//	<text    simulate a line received from the current world
//	!hook    fire a lifecycle hook
//	other    sent to the current world
func (s *Session) HandleInput(line string) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return
	}

	switch {
	case tf.IsCommand(line):
		s.remember(line)
		s.metrics.inputTotal.WithLabelValues("command").Inc()
		s.mu.Lock()
		tr := s.engine.RunCommands(line)
		s.mu.Unlock()
		s.dispatch(tr, 0)

	case strings.HasPrefix(line, "/"):
		name, args, _ := strings.Cut(line[1:], " ")
		s.mu.Lock()
		_, isMacro := s.engine.Macro(name)
		s.mu.Unlock()
		if isMacro {
			s.remember(line)
			s.metrics.inputTotal.WithLabelValues("macro").Inc()
			s.callMacro(name, strings.TrimSpace(args))
			return
		}
		s.metrics.inputTotal.WithLabelValues("client").Inc()
		s.clientCommand(line, 0)

	case strings.HasPrefix(line, "<"):
		s.metrics.inputTotal.WithLabelValues("line").Inc()
		s.HandleServerLine(line[1:])

	case strings.HasPrefix(line, "!"):
		s.metrics.inputTotal.WithLabelValues("hook").Inc()
		h, err := events.ParseHook(line[1:])
		if err != nil {
			s.emit(events.Event{Type: events.EvError, Text: err.Error()})
			return
		}
		s.HandleEvent(h)

	default:
		s.remember(line)
		s.metrics.inputTotal.WithLabelValues("text").Inc()
		s.send(line)
	}
}

// HandleServerLine runs a line received from the current world through the
// triggers, displays it unless gagged, then carries out what fired.
func (s *Session) HandleServerLine(line string) {
	s.mu.Lock()
	world := s.world
	tr := s.engine.ProcessLine(line, world)
	s.mu.Unlock()

	s.metrics.linesTotal.WithLabelValues(world).Inc()
	switch {
	case tr.ShouldGag:
		s.metrics.linesGagged.Inc()
		logging.Debug("session").Str("line", line).Msg("gagged")
	case tr.Substitution != nil:
		s.metrics.linesSubstituted.Inc()
		s.emit(events.Event{Type: events.EvLine, World: world, Text: tr.Substitution.Text, Attrs: tr.Substitution.Attrs})
	default:
		s.emit(events.Event{Type: events.EvLine, World: world, Text: line})
	}
	s.dispatch(tr, 0)
}

// callMacro runs a macro as a command from the input line.
func (s *Session) callMacro(name, args string) {
	s.mu.Lock()
	tr := s.engine.RunMacro(name, args, s.world)
	s.mu.Unlock()
	s.dispatch(tr, 0)
}

// HandleEvent fires hook h for the current world.
func (s *Session) HandleEvent(h events.Hook) {
	s.fireHook(h, 0)
}

func (s *Session) fireHook(h events.Hook, depth int) {
	s.mu.Lock()
	world := s.world
	tr := s.engine.FireEvent(h, world)
	s.mu.Unlock()

	s.metrics.hookFires.WithLabelValues(h.String()).Inc()
	s.emit(events.Event{Type: events.EvHook, World: world, Hook: h, Text: h.String()})
	s.dispatch(tr, depth)
}

// send writes text to the current world after the send hook runs.
func (s *Session) send(text string) {
	s.mu.Lock()
	world := s.world
	tr := s.engine.FireEvent(events.HookSend, world)
	s.mu.Unlock()

	s.metrics.observe(tf.TriggerResult{SendCommands: []string{text}})
	s.emit(events.Event{Type: events.EvSend, World: world, Text: text})
	s.dispatch(tr, 0)
}

// dispatch emits every part of an engine result in a fixed order. depth is
// the nesting of the client command that produced tr.
func (s *Session) dispatch(tr tf.TriggerResult, depth int) {
	s.metrics.observe(tr)
	world := s.World()
	for _, msg := range tr.Messages {
		s.emitTo(world, events.Event{Type: events.EvMessage, Text: msg})
	}
	for _, e := range tr.Errors {
		s.emitTo(world, events.Event{Type: events.EvError, Text: e})
	}
	for _, cmd := range tr.SendCommands {
		s.emitTo(world, events.Event{Type: events.EvSend, Text: cmd})
	}
	for _, cmd := range tr.ClayCommands {
		s.clientCommand(cmd, depth+1)
	}
}

// clientCommand handles the client commands the session understands itself
// and passes every command on to subscribers.
func (s *Session) clientCommand(cmd string, depth int) {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return
	}
	if depth > maxCommandDepth {
		s.log.Warn().Str("command", cmd).Int("depth", depth).Msg("client command nesting too deep")
		s.emitTo(s.World(), events.Event{Type: events.EvError, Text: fmt.Sprintf("%s: nested too deeply", fields[0])})
		return
	}
	s.emitTo(s.World(), events.Event{Type: events.EvClientCommand, Text: cmd})

	switch fields[0] {
	case "/world":
		if len(fields) < 2 {
			s.emit(events.Event{Type: events.EvMessage, Text: fmt.Sprintf("Current world: %q", s.World())})
			return
		}
		s.switchWorld(fields[1])
		s.fireHook(events.HookWorld, depth)
	case "/dokey":
		if len(fields) < 2 {
			s.emit(events.Event{Type: events.EvError, Text: "/dokey: missing key name"})
			return
		}
		s.mu.Lock()
		tr, ok := s.engine.PressKey(fields[1])
		s.mu.Unlock()
		if !ok {
			s.emit(events.Event{Type: events.EvError, Text: fmt.Sprintf("/dokey: no binding for %s", fields[1])})
			return
		}
		s.dispatch(tr, depth)
	case "/history":
		for i, h := range s.History() {
			s.emit(events.Event{Type: events.EvMessage, Text: fmt.Sprintf("%3d  %s", i+1, h)})
		}
	}
}

// switchWorld makes world current and moves follower subscriptions to it.
func (s *Session) switchWorld(world string) {
	s.mu.Lock()
	old := s.world
	s.world = world
	live := s.followers[:0]
	for _, f := range s.followers {
		if !f.Closed() {
			live = append(live, f)
		}
	}
	s.followers = live
	followers := append([]events.Subscriber(nil), live...)
	s.mu.Unlock()

	if s.bus != nil && old != world {
		s.bus.Cleanup()
		for _, f := range followers {
			if old != "" {
				s.bus.Unsubscribe(old, f)
			}
			if world != "" {
				s.bus.Subscribe(world, f)
			}
		}
	}
	l := s.log.Info().Str("world", world)
	if s.bus != nil {
		l = l.Int("subscribers", s.bus.WorldSubscribers(world))
	}
	l.Msg("world changed")
}

func (s *Session) emit(ev events.Event) {
	if s.bus != nil {
		s.bus.Emit(ev)
	}
}

func (s *Session) emitTo(world string, ev events.Event) {
	if s.bus != nil {
		s.bus.EmitToWorld(world, ev)
	}
}

func (s *Session) remember(line string) {
	if s.historyMax <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, line)
	if over := len(s.history) - s.historyMax; over > 0 {
		s.history = append(s.history[:0], s.history[over:]...)
	}
}

// LoadMacroFile applies a macro file: macros from a previous load are
// replaced, variables set and keys bound. The load hook fires afterwards.
func (s *Session) LoadMacroFile(path string) error {
	mf, err := config.LoadMacroFile(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	var errs []error
	for _, name := range s.fileMacros {
		if err := s.engine.RemoveMacro(name); err != nil && !errors.Is(err, tf.ErrNoSuchMacro) {
			errs = append(errs, err)
		}
	}
	s.fileMacros = s.fileMacros[:0]
	for _, d := range mf.Macros {
		m, err := d.Macro()
		if err == nil {
			err = s.engine.AddMacro(m)
			if errors.Is(err, tf.ErrMacroExists) {
				// Restored from a snapshot; the file wins.
				err = s.engine.EditMacro(m.Name, m)
			}
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		s.fileMacros = append(s.fileMacros, m.Name)
	}
	for name, value := range mf.Vars {
		if err := s.engine.SetVar(name, tf.StringValue(value)); err != nil {
			errs = append(errs, err)
		}
	}
	for key, cmd := range mf.Binds {
		if err := s.engine.Bind(key, cmd); err != nil {
			errs = append(errs, err)
		}
	}
	loaded := len(s.fileMacros)
	s.mu.Unlock()

	s.log.Info().Str("file", path).Int("macros", loaded).Msg("macro file loaded")
	s.HandleEvent(events.HookLoad)
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("session: apply %s: %w", path, err)
	}
	return nil
}

// Restore replaces the engine state with the store's snapshot, if any.
func (s *Session) Restore() error {
	if s.store == nil || !s.store.HasData() {
		return nil
	}
	st, err := s.store.Load()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.engine.Restore(st); err != nil {
		s.log.Warn().Err(err).Msg("state restored with errors")
	}
	s.log.Info().Int("macros", len(st.Macros)).Int("vars", len(st.Vars)).Msg("state restored")
	return nil
}

// Save writes the engine state to the store.
func (s *Session) Save() error {
	if s.store == nil {
		return nil
	}
	s.mu.Lock()
	st := s.engine.Snapshot()
	s.mu.Unlock()
	return s.store.Save(st)
}

// MetricsHandler serves the session metrics with fresh table gauges.
func (s *Session) MetricsHandler() http.Handler {
	return s.metrics.handler(func() {
		s.mu.Lock()
		st := s.engine.Stats()
		s.mu.Unlock()
		s.metrics.Update(st)
	})
}
