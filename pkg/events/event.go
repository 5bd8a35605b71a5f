package events

import (
	"fmt"
	"strings"
)

// Hook is a lifecycle signal that macros can be bound to.
type Hook int

const (
	HookNone       Hook = iota // No hook binding
	HookConnect                // Connection to a world established
	HookDisconnect             // Connection closed
	HookLogin                  // Automatic login should be performed
	HookConFail                // Connection attempt failed
	HookWorld                  // Foreground world changed
	HookPrompt                 // Unterminated prompt line received
	HookSend                   // Text about to be sent to the server
	HookActivity               // Text arrived in a background world
	HookResize                 // Terminal resized
	HookLoad                   // Macro file loaded
)

var hookNames = [...]string{
	HookNone:       "none",
	HookConnect:    "connect",
	HookDisconnect: "disconnect",
	HookLogin:      "login",
	HookConFail:    "confail",
	HookWorld:      "world",
	HookPrompt:     "prompt",
	HookSend:       "send",
	HookActivity:   "activity",
	HookResize:     "resize",
	HookLoad:       "load",
}

// String returns the lowercase hook name.
func (h Hook) String() string {
	if h < 0 || int(h) >= len(hookNames) {
		return "unknown"
	}
	return hookNames[h]
}

// ParseHook converts a hook name (case-insensitive) into a Hook.
func ParseHook(name string) (Hook, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range hookNames {
		if i != int(HookNone) && n == name {
			return Hook(i), nil
		}
	}
	return HookNone, fmt.Errorf("unknown hook %q", name)
}

// AllHooks returns every bindable hook in declaration order.
func AllHooks() []Hook {
	hooks := make([]Hook, 0, len(hookNames)-1)
	for i := range hookNames {
		if Hook(i) != HookNone {
			hooks = append(hooks, Hook(i))
		}
	}
	return hooks
}

// EventType classifies bus events for display subscribers.
type EventType int

const (
	EvLine          EventType = iota // Server line to display (after gag/substitution)
	EvMessage                        // Local message from #echo and friends
	EvError                          // Error produced by a command or trigger
	EvSend                           // Text written to the connection
	EvClientCommand                  // Client command re-entered by the dispatcher
	EvHook                           // Lifecycle hook fired
)

// String returns a human-readable name for the event type.
func (t EventType) String() string {
	switch t {
	case EvLine:
		return "line"
	case EvMessage:
		return "message"
	case EvError:
		return "error"
	case EvSend:
		return "send"
	case EvClientCommand:
		return "client_command"
	case EvHook:
		return "hook"
	default:
		return "unknown"
	}
}

// Event is one item of client output flowing through the bus.
type Event struct {
	Type  EventType
	World string // World the event belongs to ("" for none)
	Hook  Hook   // Set for EvHook
	Text  string
	Attrs string         // Display attributes for substituted lines
	Data  map[string]any // Structured extras for non-text subscribers
}
