package tf

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/crystal-mush/gotinytf/pkg/events"
)

// Engine is the scripting core: the macro table, variable store, hook
// bindings, key bindings and the pending-substitution slot. It is owned by
// a single caller and is not safe for concurrent use; callers that add
// background automation must funnel calls through one goroutine.
type Engine struct {
	macros  *MacroTable
	vars    *VarStore
	hooks   map[events.Hook][]string // hook -> macro names, registration order
	keys    map[string]string        // key sequence -> command text
	pending *Substitution
	env     Environ

	// locals are the match-local variables of the macro body currently
	// executing; nil outside body execution.
	locals map[string]string
}

// Option configures an Engine.
type Option func(*Engine)

// WithEnviron routes setenv writes to env instead of the process environment.
func WithEnviron(env Environ) Option {
	return func(e *Engine) { e.env = env }
}

// NewEngine creates an empty engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		macros: NewMacroTable(),
		vars:   NewVarStore(),
		hooks:  make(map[events.Hook][]string),
		keys:   make(map[string]string),
		env:    osEnviron{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// --- Macro table ---

// AddMacro appends m to the macro table. A macro carrying a hook is also
// bound to that hook.
func (e *Engine) AddMacro(m Macro) error {
	if err := e.macros.Add(m); err != nil {
		return fmt.Errorf("add %q: %w", m.Name, err)
	}
	if m.Hook != events.HookNone {
		e.hooks[m.Hook] = append(e.hooks[m.Hook], m.Name)
	}
	return nil
}

// RemoveMacro deletes the named macro and every hook binding that refers to it.
func (e *Engine) RemoveMacro(name string) error {
	if _, err := e.macros.Remove(name); err != nil {
		return fmt.Errorf("remove %q: %w", name, err)
	}
	for h := range e.hooks {
		e.dropBinding(h, name)
	}
	return nil
}

// EditMacro replaces the named macro with m, keeping its table position.
// Hook bindings follow a rename, and the macro's own hook binding moves
// when its hook changes.
func (e *Engine) EditMacro(name string, m Macro) error {
	old, err := e.macros.Edit(name, m)
	if err != nil {
		return fmt.Errorf("edit %q: %w", name, err)
	}
	if old.Name != m.Name {
		for h, names := range e.hooks {
			for i, n := range names {
				if n == old.Name {
					names[i] = m.Name
				}
			}
			e.hooks[h] = names
		}
	}
	if old.Hook != m.Hook {
		if old.Hook != events.HookNone {
			e.dropBinding(old.Hook, m.Name)
		}
		if m.Hook != events.HookNone {
			e.hooks[m.Hook] = append(e.hooks[m.Hook], m.Name)
		}
	}
	return nil
}

// Macro returns a copy of the named macro.
func (e *Engine) Macro(name string) (Macro, bool) {
	return e.macros.Get(name)
}

// Macros returns copies of all macros in table order.
func (e *Engine) Macros() []Macro {
	return e.macros.All()
}

// --- Variables ---

// SetVar stores v under name.
func (e *Engine) SetVar(name string, v Value) error {
	if !validVarName(name) {
		return fmt.Errorf("invalid variable name %q", name)
	}
	e.vars.Set(name, v)
	return nil
}

// Var returns the value stored under name.
func (e *Engine) Var(name string) (Value, bool) {
	return e.vars.Get(name)
}

// UnsetVar removes name and reports whether it existed.
func (e *Engine) UnsetVar(name string) bool {
	return e.vars.Unset(name)
}

// Substitute expands variable references in text using the engine's
// variables (and the current match locals, if a body is executing).
func (e *Engine) Substitute(text string) string {
	return e.vars.Substitute(text, e.locals)
}

// --- Hooks ---

// AddHook binds an existing macro to hook h. Bindings fire in
// registration order.
func (e *Engine) AddHook(h events.Hook, macro string) error {
	if h == events.HookNone {
		return errors.New("cannot bind to hook none")
	}
	if _, ok := e.macros.Get(macro); !ok {
		return fmt.Errorf("hook %s: %q: %w", h, macro, ErrNoSuchMacro)
	}
	e.hooks[h] = append(e.hooks[h], macro)
	return nil
}

// RemoveHook drops every binding of macro to h and reports whether any existed.
func (e *Engine) RemoveHook(h events.Hook, macro string) bool {
	return e.dropBinding(h, macro)
}

// HookBindings returns the macro names bound to h in registration order.
func (e *Engine) HookBindings(h events.Hook) []string {
	return append([]string(nil), e.hooks[h]...)
}

func (e *Engine) dropBinding(h events.Hook, macro string) bool {
	names := e.hooks[h]
	kept := names[:0]
	for _, n := range names {
		if n != macro {
			kept = append(kept, n)
		}
	}
	removed := len(kept) != len(names)
	if len(kept) == 0 {
		delete(e.hooks, h)
	} else {
		e.hooks[h] = kept
	}
	return removed
}

// --- Key bindings ---

// Bind maps a key sequence to command text, replacing any previous binding.
func (e *Engine) Bind(key, command string) error {
	if key == "" {
		return errors.New("empty key sequence")
	}
	e.keys[key] = command
	return nil
}

// Unbind removes a key binding and reports whether it existed.
func (e *Engine) Unbind(key string) bool {
	if _, ok := e.keys[key]; !ok {
		return false
	}
	delete(e.keys, key)
	return true
}

// KeyBinding returns the command bound to key.
func (e *Engine) KeyBinding(key string) (string, bool) {
	cmd, ok := e.keys[key]
	return cmd, ok
}

// KeyBindings returns all bound key sequences in sorted order.
func (e *Engine) KeyBindings() []string {
	keys := make([]string, 0, len(e.keys))
	for k := range e.keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// PressKey runs the command bound to key the way a macro body runs.
func (e *Engine) PressKey(key string) (TriggerResult, bool) {
	cmd, ok := e.keys[key]
	if !ok {
		return TriggerResult{}, false
	}
	return e.RunCommands(cmd), true
}

// --- Pending substitution ---

// SetPendingSubstitution fills the single substitution slot, replacing any
// earlier unconsumed substitution.
func (e *Engine) SetPendingSubstitution(s Substitution) {
	e.pending = &s
}

// TakeSubstitution returns the pending substitution, if any, and clears the slot.
func (e *Engine) TakeSubstitution() *Substitution {
	s := e.pending
	e.pending = nil
	return s
}

// --- Body execution ---

// BodySeparator splits a macro body into individual commands.
const BodySeparator = "%;"

// runBody executes a macro body with the given match locals. Pieces starting
// with # go through Execute; anything else is substituted and sent to the
// server. A break result stops the remaining pieces.
func (e *Engine) runBody(body string, locals map[string]string) []Result {
	saved := e.locals
	e.locals = locals
	defer func() { e.locals = saved }()

	var results []Result
	for _, piece := range strings.Split(body, BodySeparator) {
		cmd := strings.TrimSpace(piece)
		if cmd == "" {
			continue
		}
		var r Result
		if IsCommand(cmd) {
			r = e.Execute(cmd)
		} else {
			r = SendToMud(e.vars.Substitute(cmd, locals))
		}
		results = append(results, r)
		if r.IsBreak() {
			break
		}
	}
	return results
}

// RunCommands runs user-typed text the way a macro body runs, without
// match locals.
func (e *Engine) RunCommands(text string) TriggerResult {
	return foldResults(e.runBody(text, nil), true)
}

// RunMacro invokes a macro as a callable with args available as %* and
// %1-%9. World scoping applies.
func (e *Engine) RunMacro(name, args, world string) TriggerResult {
	m, ok := e.macros.Get(name)
	if !ok {
		return TriggerResult{Errors: []string{fmt.Sprintf("No macro named %q", name)}}
	}
	if !m.InWorld(world) {
		return TriggerResult{}
	}
	md := &MatchData{Line: args, Groups: []string{args}}
	return foldResults(e.runBody(m.Body, matchLocals(md)), true)
}
