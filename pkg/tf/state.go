package tf

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/crystal-mush/gotinytf/pkg/events"
)

// MacroDef is the flat, serializable form of a Macro used by macro files
// and the state store.
type MacroDef struct {
	Name     string `yaml:"name"`
	Body     string `yaml:"body"`
	Pattern  string `yaml:"pattern,omitempty"`
	Match    string `yaml:"match,omitempty"`
	World    string `yaml:"world,omitempty"`
	Priority int    `yaml:"priority,omitempty"`
	Gag      bool   `yaml:"gag,omitempty"`
	Hook     string `yaml:"hook,omitempty"`
}

// Macro converts the definition into a Macro. An empty pattern yields a
// macro without a trigger.
func (d MacroDef) Macro() (Macro, error) {
	m := Macro{
		Name:     d.Name,
		Body:     d.Body,
		World:    d.World,
		Priority: d.Priority,
		Attrs:    Attributes{Gag: d.Gag},
	}
	if d.Name == "" {
		return Macro{}, ErrEmptyName
	}
	if d.Pattern != "" {
		mode, err := ParseMatchMode(d.Match)
		if err != nil {
			return Macro{}, fmt.Errorf("macro %s: %w", d.Name, err)
		}
		m.Trigger = NewTrigger(d.Pattern, mode)
	}
	if d.Hook != "" {
		h, err := events.ParseHook(d.Hook)
		if err != nil {
			return Macro{}, fmt.Errorf("macro %s: %w", d.Name, err)
		}
		m.Hook = h
	}
	return m, nil
}

// DefOf flattens m into a MacroDef.
func DefOf(m Macro) MacroDef {
	d := MacroDef{
		Name:     m.Name,
		Body:     m.Body,
		World:    m.World,
		Priority: m.Priority,
		Gag:      m.Attrs.Gag,
	}
	if m.Trigger != nil {
		d.Pattern = m.Trigger.Pattern()
		d.Match = m.Trigger.Mode().String()
	}
	if m.Hook != events.HookNone {
		d.Hook = m.Hook.String()
	}
	return d
}

// VarDef is the serializable form of a variable.
type VarDef struct {
	Name string
	Kind string
	Text string
}

// Value decodes the stored value. Numbers that fail to parse fall back
// to strings.
func (d VarDef) Value() Value {
	switch d.Kind {
	case KindInt.String():
		if n, err := strconv.ParseInt(d.Text, 10, 64); err == nil {
			return IntValue(n)
		}
	case KindFloat.String():
		if f, err := strconv.ParseFloat(d.Text, 64); err == nil {
			return FloatValue(f)
		}
	}
	return StringValue(d.Text)
}

// State is a full snapshot of the persistent parts of an engine.
type State struct {
	Macros []MacroDef
	Vars   []VarDef
	Hooks  map[string][]string // hook name -> macro names, registration order
	Keys   map[string]string
}

// Snapshot captures the engine's macros, variables, hook bindings and key
// bindings. The pending substitution is transient and not included.
func (e *Engine) Snapshot() State {
	st := State{
		Hooks: make(map[string][]string),
		Keys:  make(map[string]string, len(e.keys)),
	}
	for _, m := range e.macros.All() {
		st.Macros = append(st.Macros, DefOf(m))
	}
	for _, name := range e.vars.Names() {
		v, _ := e.vars.Get(name)
		st.Vars = append(st.Vars, VarDef{Name: name, Kind: v.Kind().String(), Text: v.String()})
	}
	for h, names := range e.hooks {
		st.Hooks[h.String()] = append([]string(nil), names...)
	}
	for k, v := range e.keys {
		st.Keys[k] = v
	}
	return st
}

// Restore replaces the engine's persistent state with st. Hook bindings
// come from st.Hooks alone; macros are not re-bound to their own hook, so
// a snapshot round-trips without duplicate bindings. Invalid entries are
// skipped and reported together.
func (e *Engine) Restore(st State) error {
	e.macros = NewMacroTable()
	e.vars = NewVarStore()
	e.hooks = make(map[events.Hook][]string)
	e.keys = make(map[string]string)
	e.pending = nil

	var errs []error
	for _, d := range st.Macros {
		m, err := d.Macro()
		if err == nil {
			err = e.macros.Add(m)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("macro %q: %w", d.Name, err))
		}
	}
	for _, v := range st.Vars {
		if !validVarName(v.Name) {
			errs = append(errs, fmt.Errorf("variable %q: invalid name", v.Name))
			continue
		}
		e.vars.Set(v.Name, v.Value())
	}
	for name, macros := range st.Hooks {
		h, err := events.ParseHook(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		e.hooks[h] = append([]string(nil), macros...)
	}
	for k, v := range st.Keys {
		e.keys[k] = v
	}
	return errors.Join(errs...)
}
