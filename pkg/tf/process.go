package tf

import (
	"fmt"

	"github.com/crystal-mush/gotinytf/pkg/events"
	"github.com/crystal-mush/gotinytf/pkg/logging"
)

// ProcessLine runs a line received from world through the trigger table.
// Every matching macro fires, highest priority first. Break results stop
// the body that produced them and are not reported. Any substitution set
// by a fired body is moved into the result.
func (e *Engine) ProcessLine(line, world string) TriggerResult {
	plain := PlainLine(line)

	var tr TriggerResult
	for _, hit := range e.macros.matching(plain, world) {
		logging.Debug("tf.process").Str("macro", hit.macro.Name).Str("world", world).Msg("trigger fired")
		for _, r := range e.runBody(hit.macro.Body, matchLocals(hit.data)) {
			tr.add(r, true)
		}
	}

	tr.ShouldGag = e.gagMatch(plain, world)
	tr.Substitution = e.TakeSubstitution()
	return tr
}

// gagMatch reports whether the first gag macro in table order matches.
// Priority is not consulted.
func (e *Engine) gagMatch(plain, world string) bool {
	return e.macros.firstMatch(plain, world, func(m *Macro) bool { return m.Attrs.Gag }) != nil
}

// FireEvent runs the macros bound to hook h in registration order. Error
// results are reported as they are, break sentinel included. world scopes
// the bound macros the same way it scopes triggers.
func (e *Engine) FireEvent(h events.Hook, world string) TriggerResult {
	var tr TriggerResult
	for _, name := range e.HookBindings(h) {
		m, ok := e.macros.Get(name)
		if !ok {
			tr.Errors = append(tr.Errors, fmt.Sprintf("hook %s: %q: %v", h, name, ErrNoSuchMacro))
			continue
		}
		if !m.InWorld(world) {
			continue
		}
		locals := map[string]string{"*": "", "0": h.String()}
		for _, r := range e.runBody(m.Body, locals) {
			tr.add(r, false)
		}
	}
	// Substitution only applies to displayed lines.
	e.pending = nil
	return tr
}
