package tf

import (
	"os"
	"sort"
	"strings"
)

// Environ receives setenv writes. The default writes the process
// environment; embedders may route them to a child-process launcher.
type Environ interface {
	Setenv(key, value string) error
}

type osEnviron struct{}

func (osEnviron) Setenv(key, value string) error { return os.Setenv(key, value) }

// VarStore maps variable names to values.
type VarStore struct {
	vars map[string]Value
}

// NewVarStore creates an empty store.
func NewVarStore() *VarStore {
	return &VarStore{vars: make(map[string]Value)}
}

// Set stores v under name, replacing any previous value.
func (s *VarStore) Set(name string, v Value) {
	s.vars[name] = v
}

// Get returns the value stored under name.
func (s *VarStore) Get(name string) (Value, bool) {
	v, ok := s.vars[name]
	return v, ok
}

// Unset removes name and reports whether it existed.
func (s *VarStore) Unset(name string) bool {
	if _, ok := s.vars[name]; !ok {
		return false
	}
	delete(s.vars, name)
	return true
}

// Len returns the number of variables.
func (s *VarStore) Len() int { return len(s.vars) }

// Names returns all variable names in sorted order.
func (s *VarStore) Names() []string {
	names := make([]string, 0, len(s.vars))
	for k := range s.vars {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of all variables.
func (s *VarStore) Snapshot() map[string]Value {
	out := make(map[string]Value, len(s.vars))
	for k, v := range s.vars {
		out[k] = v
	}
	return out
}

// validVarName reports whether name can be stored and referenced.
func validVarName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		if !isNameByte(name[i], i == 0) {
			return false
		}
	}
	return true
}

func isNameByte(c byte, first bool) bool {
	switch {
	case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return !first
	}
	return false
}

// Substitute replaces variable references in text with their values:
//   - %name, %{name}, $name, ${name}: variable value ("" when unset)
//   - %%, $$: a literal % or $
//   - %*, %0-%9: match-local line and word references (see locals)
//
// locals shadow the store and may be nil. A % or $ not followed by a
// reference is copied through unchanged, as is the %; body separator.
// Substitution runs once: inserted values are not rescanned.
func (s *VarStore) Substitute(text string, locals map[string]string) string {
	if strings.IndexByte(text, '%') < 0 && strings.IndexByte(text, '$') < 0 {
		return text
	}
	var buf strings.Builder
	buf.Grow(len(text))

	pos := 0
	for pos < len(text) {
		ch := text[pos]
		if ch != '%' && ch != '$' {
			buf.WriteByte(ch)
			pos++
			continue
		}
		pos++
		if pos >= len(text) {
			buf.WriteByte(ch)
			break
		}
		next := text[pos]
		switch {
		case next == ch:
			// %% or $$
			buf.WriteByte(ch)
			pos++

		case next == '{':
			end := strings.IndexByte(text[pos+1:], '}')
			if end < 0 {
				buf.WriteByte(ch)
				continue
			}
			name := text[pos+1 : pos+1+end]
			buf.WriteString(s.lookup(name, locals))
			pos += end + 2

		case ch == '%' && (next == '*' || (next >= '0' && next <= '9')):
			buf.WriteString(locals[string(next)])
			pos++

		case isNameByte(next, true):
			end := pos + 1
			for end < len(text) && isNameByte(text[end], false) {
				end++
			}
			buf.WriteString(s.lookup(text[pos:end], locals))
			pos = end

		default:
			buf.WriteByte(ch)
		}
	}
	return buf.String()
}

func (s *VarStore) lookup(name string, locals map[string]string) string {
	if v, ok := locals[name]; ok {
		return v
	}
	if v, ok := s.vars[name]; ok {
		return v.String()
	}
	return ""
}

// matchLocals builds the match-local variables visible to a trigger body:
// %* and %0 are the line, %1-%9 its words, and P0-P9 the match groups.
func matchLocals(md *MatchData) map[string]string {
	locals := map[string]string{
		"*": md.Line,
		"0": md.Line,
	}
	for i, w := range strings.Fields(md.Line) {
		if i >= 9 {
			break
		}
		locals[string(rune('1'+i))] = w
	}
	for i, g := range md.Groups {
		if i > 9 {
			break
		}
		locals["P"+string(rune('0'+i))] = g
	}
	return locals
}
