package tf

// TriggerInfo is the display record for a trigger macro.
type TriggerInfo struct {
	Name      string
	Pattern   string
	Command   string
	World     string
	MatchType string
	Priority  int
	IsGag     bool
}

// TriggerMacros lists the macros that carry a non-empty trigger, in table order.
func (e *Engine) TriggerMacros() []TriggerInfo {
	var out []TriggerInfo
	for _, m := range e.macros.macros {
		if !m.HasTrigger() {
			continue
		}
		info := TriggerInfo{
			Name:      m.Name,
			Pattern:   m.Trigger.Pattern(),
			Command:   m.Body,
			World:     m.World,
			MatchType: MatchGlob.String(),
			Priority:  m.Priority,
			IsGag:     m.Attrs.Gag,
		}
		if m.Trigger != nil {
			info.MatchType = m.Trigger.Mode().String()
		}
		out = append(out, info)
	}
	return out
}

// LineMatchesTrigger reports whether any in-scope trigger matches line.
// It does not run bodies or change the engine.
func (e *Engine) LineMatchesTrigger(line, world string) bool {
	return e.macros.firstMatch(PlainLine(line), world, nil) != nil
}

// Stats holds engine counters for status displays.
type Stats struct {
	Variables   int
	Macros      int
	Triggers    int
	Hooks       int // bindings across all hooks
	KeyBindings int
}

// Stats counts the engine's contents.
func (e *Engine) Stats() Stats {
	s := Stats{
		Variables:   e.vars.Len(),
		Macros:      e.macros.Len(),
		Triggers:    e.macros.TriggerCount(),
		KeyBindings: len(e.keys),
	}
	for _, names := range e.hooks {
		s.Hooks += len(names)
	}
	return s
}
