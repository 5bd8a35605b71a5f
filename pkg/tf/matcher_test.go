package tf

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestTriggerMatchModes(t *testing.T) {
	tests := []struct {
		pattern string
		mode    MatchMode
		line    string
		want    bool
	}{
		{"foo", MatchSimple, "a foo b", true},
		{"Foo", MatchSimple, "a foo b", false},
		{"*tells you*", MatchGlob, "Bob tells you hi", true},
		{"tells", MatchGlob, "Bob tells you", false},
		{"HELLO*", MatchGlob, "hello there", true},
		{"?at", MatchGlob, "cat", true},
		{"?at", MatchGlob, "chat", false},
		{"[bc]at", MatchGlob, "Bat", true},
		{"[!bc]at", MatchGlob, "rat", true},
		{"[!bc]at", MatchGlob, "bat", false},
		{"[a-c]*", MatchGlob, "brick", true},
		{`a\*b`, MatchGlob, "a*b", true},
		{`a\*b`, MatchGlob, "axb", false},
		{"[abc", MatchGlob, "[abc", false},
		{"Hello.*", MatchRegexp, "Hello world", true},
		{"world$", MatchRegexp, "Hello world", true},
		{"^world", MatchRegexp, "Hello world", false},
		{"(?<=Hel)lo", MatchRegexp, "Hello", true},
		{"(unclosed", MatchRegexp, "(unclosed", false},
		{"", MatchSimple, "anything", false},
		{"", MatchGlob, "", false},
	}
	for _, tt := range tests {
		got := NewTrigger(tt.pattern, tt.mode).Matches(tt.line)
		if got != tt.want {
			t.Errorf("%s %q vs %q = %v, want %v", tt.mode, tt.pattern, tt.line, got, tt.want)
		}
	}
}

func TestTriggerInert(t *testing.T) {
	if !NewTrigger("(bad", MatchRegexp).Inert() {
		t.Error("uncompilable regexp should be inert")
	}
	if !NewTrigger("[open", MatchGlob).Inert() {
		t.Error("unclosed class should be inert")
	}
	if !NewTrigger("", MatchSimple).Inert() {
		t.Error("empty pattern should be inert")
	}
	if NewTrigger("ok*", MatchGlob).Inert() {
		t.Error("valid glob reported inert")
	}
}

func TestRegexpCache(t *testing.T) {
	before := CachedPatterns()
	a := NewTrigger("cache-me-[0-9]+", MatchRegexp)
	b := NewTrigger("cache-me-[0-9]+", MatchRegexp)
	if a.compiled != b.compiled {
		t.Error("same pattern compiled twice")
	}
	if got := CachedPatterns(); got != before+1 {
		t.Errorf("CachedPatterns = %d, want %d", got, before+1)
	}
}

func TestMatchGroups(t *testing.T) {
	md, ok := NewTrigger(`(\w+) says, "(.*)"`, MatchRegexp).Match(`Bob says, "hi there"`)
	if !ok {
		t.Fatal("regexp should match")
	}
	want := []string{`Bob says, "hi there"`, "Bob", "hi there"}
	if !reflect.DeepEqual(md.Groups, want) {
		t.Errorf("groups = %q, want %q", md.Groups, want)
	}

	md, ok = NewTrigger("* pages: *", MatchGlob).Match("Alice pages: Hello: World")
	if !ok {
		t.Fatal("glob should match")
	}
	// Longest capture first for the leading star.
	want = []string{"Alice pages: Hello: World", "Alice", "Hello: World"}
	if !reflect.DeepEqual(md.Groups, want) {
		t.Errorf("groups = %q, want %q", md.Groups, want)
	}
}

func TestParseMatchMode(t *testing.T) {
	for in, want := range map[string]MatchMode{
		"":       MatchGlob,
		"glob":   MatchGlob,
		"simple": MatchSimple,
		"Regexp": MatchRegexp,
		"re":     MatchRegexp,
	} {
		got, err := ParseMatchMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMatchMode(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseMatchMode("fuzzy"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestPlainLine(t *testing.T) {
	tests := []struct{ in, want string }{
		{"plain", "plain"},
		{"\x1b[1;31mred\x1b[0m text  ", "red text"},
		{"bell\a here\r\n", "bell here"},
		{"tab\there\t", "tab\there"},
	}
	for _, tt := range tests {
		if got := PlainLine(tt.in); got != tt.want {
			t.Errorf("PlainLine(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGlobManyStars(t *testing.T) {
	line := strings.Repeat("a", 60)
	tr := NewTrigger("*a*a*a*a*a*a*b", MatchGlob)

	done := make(chan bool, 1)
	go func() { done <- tr.Matches(line) }()
	select {
	case ok := <-done:
		if ok {
			t.Error("pattern ending in b matched a line of a's")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("glob match did not finish")
	}

	md, ok := NewTrigger("*a*a*b", MatchGlob).Match(line + "b")
	if !ok {
		t.Fatal("glob should match")
	}
	if len(md.Groups) != 4 || md.Groups[3] != "" {
		t.Errorf("groups = %q", md.Groups)
	}
}

func TestGlobEdgeCases(t *testing.T) {
	tests := []struct {
		pattern, line string
		want          bool
	}{
		{"*", "", true},
		{"a*", "a", true},
		{"**b", "aab", true},
		{"a?c", "ABC", true},
		{"a?c", "ac", false},
		{`\*lit`, "*lit", true},
		{`\*lit`, "xlit", false},
		{"[a-c]x*", "Bxyz", true},
		{"[!a-c]x*", "bxyz", false},
		{"*ab", "aab", true},
		{"a*b*c", "abbbcb", false},
	}
	for _, tt := range tests {
		if got := GlobMatch(tt.pattern, tt.line); got != tt.want {
			t.Errorf("GlobMatch(%q, %q) = %v, want %v", tt.pattern, tt.line, got, tt.want)
		}
	}

	md, ok := NewTrigger("? says *", MatchGlob).Match("X says hi there")
	if !ok {
		t.Fatal("glob should match")
	}
	if want := []string{"X says hi there", "X", "hi there"}; !reflect.DeepEqual(md.Groups, want) {
		t.Errorf("groups = %q, want %q", md.Groups, want)
	}
}

func TestTriggerAccessors(t *testing.T) {
	tr := NewTrigger("Hello.*", MatchRegexp)
	if tr.Pattern() != "Hello.*" || tr.Mode() != MatchRegexp {
		t.Errorf("trigger = %q %v", tr.Pattern(), tr.Mode())
	}
	if !tr.Matches("Hello world") {
		t.Error("regexp trigger should match")
	}
	var none *Trigger
	if none.Pattern() != "" || !none.Inert() || none.Matches("x") {
		t.Error("nil trigger should be inert")
	}
}

func TestRegexpCacheBounded(t *testing.T) {
	for i := 0; i < maxCachedPatterns+10; i++ {
		NewTrigger(fmt.Sprintf("bounded-%d", i), MatchRegexp)
	}
	if got := CachedPatterns(); got > maxCachedPatterns {
		t.Errorf("CachedPatterns = %d, want at most %d", got, maxCachedPatterns)
	}
	if !NewTrigger("bounded-3", MatchRegexp).Matches("x bounded-3 y") {
		t.Error("evicted pattern should recompile")
	}
}
