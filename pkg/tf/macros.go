package tf

import (
	"errors"
	"sort"

	"github.com/crystal-mush/gotinytf/pkg/events"
)

// Macro table errors.
var (
	ErrEmptyName   = errors.New("macro name is empty")
	ErrMacroExists = errors.New("macro already exists")
	ErrNoSuchMacro = errors.New("no such macro")
)

// Attributes are display flags carried by a macro.
type Attributes struct {
	Gag bool // Suppress display of lines the trigger matches
}

// Macro is a named automation rule. Without a trigger it is a plain
// callable; with one it also fires on matching lines. A non-empty World
// restricts it to that world.
type Macro struct {
	Name     string
	Body     string
	Trigger  *Trigger
	World    string
	Priority int
	Attrs    Attributes
	Hook     events.Hook
}

// HasTrigger reports whether the macro carries a non-empty trigger pattern.
func (m *Macro) HasTrigger() bool {
	return m.Trigger != nil && m.Trigger.Pattern() != ""
}

// InWorld reports whether the macro applies to world. Comparison is exact
// and case-sensitive.
func (m *Macro) InWorld(world string) bool {
	return m.World == "" || m.World == world
}

// MacroTable is the ordered collection of macros. Order is definition order.
type MacroTable struct {
	macros []*Macro
}

// NewMacroTable creates an empty table.
func NewMacroTable() *MacroTable {
	return &MacroTable{}
}

func (t *MacroTable) index(name string) int {
	for i, m := range t.macros {
		if m.Name == name {
			return i
		}
	}
	return -1
}

// Add appends m to the end of the table.
func (t *MacroTable) Add(m Macro) error {
	if m.Name == "" {
		return ErrEmptyName
	}
	if t.index(m.Name) >= 0 {
		return ErrMacroExists
	}
	t.macros = append(t.macros, &m)
	return nil
}

// Remove deletes the named macro and returns it.
func (t *MacroTable) Remove(name string) (Macro, error) {
	i := t.index(name)
	if i < 0 {
		return Macro{}, ErrNoSuchMacro
	}
	old := *t.macros[i]
	t.macros = append(t.macros[:i], t.macros[i+1:]...)
	return old, nil
}

// Edit replaces the named macro with m in place, keeping its position.
// m may carry a new name as long as it doesn't collide with another macro.
func (t *MacroTable) Edit(name string, m Macro) (Macro, error) {
	if m.Name == "" {
		return Macro{}, ErrEmptyName
	}
	i := t.index(name)
	if i < 0 {
		return Macro{}, ErrNoSuchMacro
	}
	if m.Name != name && t.index(m.Name) >= 0 {
		return Macro{}, ErrMacroExists
	}
	old := *t.macros[i]
	t.macros[i] = &m
	return old, nil
}

// Get returns a copy of the named macro.
func (t *MacroTable) Get(name string) (Macro, bool) {
	i := t.index(name)
	if i < 0 {
		return Macro{}, false
	}
	return *t.macros[i], true
}

// All returns copies of all macros in table order.
func (t *MacroTable) All() []Macro {
	out := make([]Macro, len(t.macros))
	for i, m := range t.macros {
		out[i] = *m
	}
	return out
}

// Len returns the number of macros.
func (t *MacroTable) Len() int { return len(t.macros) }

// TriggerCount returns the number of macros with a non-empty trigger pattern.
func (t *MacroTable) TriggerCount() int {
	n := 0
	for _, m := range t.macros {
		if m.HasTrigger() {
			n++
		}
	}
	return n
}

// triggerHit pairs a matched macro with its match data.
type triggerHit struct {
	macro *Macro
	data  *MatchData
}

// matching returns every in-scope macro whose trigger matches line, ordered
// by descending priority with table order breaking ties.
func (t *MacroTable) matching(line, world string) []triggerHit {
	var hits []triggerHit
	for _, m := range t.macros {
		if !m.HasTrigger() || !m.InWorld(world) {
			continue
		}
		if md, ok := m.Trigger.Match(line); ok {
			hits = append(hits, triggerHit{macro: m, data: md})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].macro.Priority > hits[j].macro.Priority
	})
	return hits
}

// firstMatch returns the first macro in table order that passes keep,
// is in scope for world, and whose trigger matches line.
func (t *MacroTable) firstMatch(line, world string, keep func(*Macro) bool) *Macro {
	for _, m := range t.macros {
		if !m.HasTrigger() {
			continue
		}
		if keep != nil && !keep(m) {
			continue
		}
		if !m.InWorld(world) {
			continue
		}
		if m.Trigger.Matches(line) {
			return m
		}
	}
	return nil
}
