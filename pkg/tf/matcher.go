package tf

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/crystal-mush/gotinytf/pkg/logging"
	"github.com/dlclark/regexp2"
)

// MatchMode selects how a trigger pattern is compared with a line.
// It is fixed when the trigger is defined.
type MatchMode int

const (
	MatchSimple MatchMode = iota // Case-sensitive substring
	MatchGlob                    // Whole-line wildcard match
	MatchRegexp                  // Unanchored regular expression
)

// String returns the name used in listings and macro files.
func (m MatchMode) String() string {
	switch m {
	case MatchSimple:
		return "simple"
	case MatchGlob:
		return "glob"
	case MatchRegexp:
		return "regexp"
	default:
		return "unknown"
	}
}

// ParseMatchMode converts a mode name (simple, glob, regexp) into a MatchMode.
// The empty string selects glob, the TinyFugue default.
func ParseMatchMode(s string) (MatchMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "simple", "substr":
		return MatchSimple, nil
	case "", "glob":
		return MatchGlob, nil
	case "regexp", "regex", "re":
		return MatchRegexp, nil
	}
	return MatchGlob, fmt.Errorf("unknown match mode %q", s)
}

// RegexpMatchTimeout bounds a single regexp evaluation. A timed-out match
// counts as no match.
const RegexpMatchTimeout = 250 * time.Millisecond

// maxCachedPatterns bounds the regexp cache. When it is full an arbitrary
// entry is evicted.
const maxCachedPatterns = 256

// patternCache holds compiled regexps keyed by pattern text. Failed
// compilations are cached as nil so a bad pattern is reported once.
var patternCache = struct {
	sync.Mutex
	m map[string]*regexp2.Regexp
}{m: make(map[string]*regexp2.Regexp)}

func compilePattern(pattern string) *regexp2.Regexp {
	patternCache.Lock()
	defer patternCache.Unlock()
	if re, ok := patternCache.m[pattern]; ok {
		return re
	}
	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		l := logging.GetLogger("tf.matcher")
		l.Warn().Err(err).Str("pattern", pattern).Msg("regexp trigger will never match")
		re = nil
	} else {
		re.MatchTimeout = RegexpMatchTimeout
	}
	if len(patternCache.m) >= maxCachedPatterns {
		for k := range patternCache.m {
			delete(patternCache.m, k)
			break
		}
	}
	patternCache.m[pattern] = re
	return re
}

// CachedPatterns returns the number of regexp patterns currently cached.
func CachedPatterns() int {
	patternCache.Lock()
	defer patternCache.Unlock()
	return len(patternCache.m)
}

// Trigger is the pattern predicate attached to a macro. Pattern and mode
// are fixed at construction; use NewTrigger to build one.
type Trigger struct {
	pattern string
	mode    MatchMode

	// compiled is set at construction for MatchRegexp only. When the pattern
	// fails to compile it stays nil and the trigger never matches.
	compiled *regexp2.Regexp
}

// NewTrigger builds a trigger. Construction never fails: an invalid regexp
// produces an inert trigger.
func NewTrigger(pattern string, mode MatchMode) *Trigger {
	t := &Trigger{pattern: pattern, mode: mode}
	if mode == MatchRegexp && pattern != "" {
		t.compiled = compilePattern(pattern)
	}
	return t
}

// Pattern returns the pattern text.
func (t *Trigger) Pattern() string {
	if t == nil {
		return ""
	}
	return t.pattern
}

// Mode returns the match mode.
func (t *Trigger) Mode() MatchMode {
	if t == nil {
		return MatchSimple
	}
	return t.mode
}

// Inert reports whether the trigger can never match.
func (t *Trigger) Inert() bool {
	if t == nil || t.pattern == "" {
		return true
	}
	switch t.mode {
	case MatchRegexp:
		return t.compiled == nil
	case MatchGlob:
		return !validGlob([]rune(t.pattern))
	}
	return false
}

// MatchData describes a successful match. Groups[0] is the matched text;
// later entries are regexp groups or wildcard captures.
type MatchData struct {
	Line   string
	Groups []string
}

// Match tests line against the trigger. line is plain text: escape
// sequences stripped and trailing whitespace trimmed by the caller.
func (t *Trigger) Match(line string) (*MatchData, bool) {
	if t == nil || t.pattern == "" {
		return nil, false
	}
	switch t.mode {
	case MatchSimple:
		if !strings.Contains(line, t.pattern) {
			return nil, false
		}
		return &MatchData{Line: line, Groups: []string{t.pattern}}, true

	case MatchGlob:
		p := []rune(t.pattern)
		if !validGlob(p) {
			return nil, false
		}
		caps, ok := globMatch(p, []rune(line))
		if !ok {
			return nil, false
		}
		return &MatchData{Line: line, Groups: append([]string{line}, caps...)}, true

	case MatchRegexp:
		if t.compiled == nil {
			return nil, false
		}
		m, err := t.compiled.FindStringMatch(line)
		if err != nil || m == nil {
			return nil, false
		}
		groups := m.Groups()
		md := &MatchData{Line: line, Groups: make([]string, len(groups))}
		for i := range groups {
			md.Groups[i] = groups[i].String()
		}
		return md, true
	}
	return nil, false
}

// Matches is Match without the match data.
func (t *Trigger) Matches(line string) bool {
	_, ok := t.Match(line)
	return ok
}

// --- Glob matching ---

// validGlob reports whether p is well formed: every [ class is closed and
// no \ escape is left dangling.
func validGlob(p []rune) bool {
	for i := 0; i < len(p); i++ {
		switch p[i] {
		case '\\':
			if i+1 >= len(p) {
				return false
			}
			i++
		case '[':
			end := classEnd(p, i)
			if end < 0 {
				return false
			}
			i = end
		}
	}
	return true
}

// classEnd returns the index of the ']' closing the class opened at p[start],
// or -1. A ']' directly after the opening (or after a negation) is literal.
func classEnd(p []rune, start int) int {
	i := start + 1
	if i < len(p) && (p[i] == '^' || p[i] == '!') {
		i++
	}
	if i < len(p) && p[i] == ']' {
		i++
	}
	for ; i < len(p); i++ {
		if p[i] == '\\' {
			i++
			continue
		}
		if p[i] == ']' {
			return i
		}
	}
	return -1
}

// classMatch tests r against the body of a [...] class.
func classMatch(class []rune, r rune) bool {
	neg := false
	if len(class) > 0 && (class[0] == '^' || class[0] == '!') {
		neg = true
		class = class[1:]
	}
	matched := false
	for i := 0; i < len(class); i++ {
		lo := class[i]
		if lo == '\\' && i+1 < len(class) {
			i++
			lo = class[i]
		}
		hi := lo
		if i+2 < len(class) && class[i+1] == '-' {
			i += 2
			hi = class[i]
			if hi == '\\' && i+1 < len(class) {
				i++
				hi = class[i]
			}
		}
		if inRangeFold(r, lo, hi) {
			matched = true
		}
	}
	return matched != neg
}

func inRangeFold(r, lo, hi rune) bool {
	for _, c := range [...]rune{r, unicode.ToLower(r), unicode.ToUpper(r)} {
		if c >= lo && c <= hi {
			return true
		}
	}
	return false
}

func runeEqualFold(a, b rune) bool {
	return a == b || unicode.ToLower(a) == unicode.ToLower(b)
}

// globStep matches the single-character token at p[pi] against r and
// returns the index just past the token. p[pi] must not be '*'.
func globStep(p []rune, pi int, r rune) (int, bool) {
	switch p[pi] {
	case '?':
		return pi + 1, true
	case '[':
		end := classEnd(p, pi)
		return end + 1, classMatch(p[pi+1:end], r)
	case '\\':
		pi++
	}
	return pi + 1, runeEqualFold(p[pi], r)
}

// globTest reports whether s matches p. It only ever backtracks to the most
// recent star, so it runs in O(len(p)*len(s)).
func globTest(p, s []rune) bool {
	pi, si := 0, 0
	star, mark := -1, 0
	for si < len(s) {
		if pi < len(p) && p[pi] == '*' {
			star, mark = pi, si
			pi++
			continue
		}
		if pi < len(p) {
			if next, ok := globStep(p, pi, s[si]); ok {
				pi, si = next, si+1
				continue
			}
		}
		if star < 0 {
			return false
		}
		mark++
		pi, si = star+1, mark
	}
	for pi < len(p) && p[pi] == '*' {
		pi++
	}
	return pi == len(p)
}

// globMatch matches the whole of s against p case-insensitively and returns
// the text captured by each * and ? in original case. p must be valid.
func globMatch(p, s []rune) ([]string, bool) {
	if !globTest(p, s) {
		return nil, false
	}
	g := globCapture{p: p, s: s, dead: make([]bool, (len(p)+1)*(len(s)+1))}
	caps, _ := g.match(0, 0, nil)
	return caps, true
}

// globCapture finds the captures of a known match. Whether p[pi:] matches
// s[si:] does not depend on earlier captures, so failed positions are
// remembered and never retried.
type globCapture struct {
	p, s []rune
	dead []bool
}

func (g *globCapture) match(pi, si int, caps []string) ([]string, bool) {
	key := pi*(len(g.s)+1) + si
	if g.dead[key] {
		return nil, false
	}
	for pi < len(g.p) {
		if g.p[pi] == '*' {
			if pi+1 == len(g.p) {
				return append(caps, string(g.s[si:])), true
			}
			// Longest capture first, like $-command matching.
			for i := len(g.s); i >= si; i-- {
				next := append(caps[:len(caps):len(caps)], string(g.s[si:i]))
				if c, ok := g.match(pi+1, i, next); ok {
					return c, true
				}
			}
			g.dead[key] = true
			return nil, false
		}
		if si == len(g.s) {
			g.dead[key] = true
			return nil, false
		}
		next, ok := globStep(g.p, pi, g.s[si])
		if !ok {
			g.dead[key] = true
			return nil, false
		}
		if g.p[pi] == '?' {
			caps = append(caps, string(g.s[si]))
		}
		pi, si = next, si+1
	}
	if si != len(g.s) {
		g.dead[key] = true
		return nil, false
	}
	return caps, true
}

// GlobMatch reports whether str matches the glob pattern. Invalid patterns
// never match.
func GlobMatch(pattern, str string) bool {
	p := []rune(pattern)
	if !validGlob(p) {
		return false
	}
	return globTest(p, []rune(str))
}
