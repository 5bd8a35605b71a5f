package tf

import "testing"

func TestSubstitute(t *testing.T) {
	s := NewVarStore()
	s.Set("name", StringValue("Bob"))
	s.Set("hp", IntValue(42))
	s.Set("ratio", FloatValue(2))

	locals := map[string]string{"*": "whole line", "1": "first", "name": "local-bob"}

	tests := []struct {
		in     string
		locals map[string]string
		want   string
	}{
		{"plain text", nil, "plain text"},
		{"hi %name!", nil, "hi Bob!"},
		{"hi $name!", nil, "hi Bob!"},
		{"%{name}dy", nil, "Bobdy"},
		{"${hp}hp", nil, "42hp"},
		{"ratio %ratio", nil, "ratio 2.0"},
		{"100%% sure, $$5", nil, "100% sure, $5"},
		{"unknown [%nobody]", nil, "unknown []"},
		{"trailing %", nil, "trailing %"},
		{"a %; b", nil, "a %; b"},
		{"%* / %1 / %name", locals, "whole line / first / local-bob"},
		{"%2", locals, ""},
		{"%{open", nil, "%{open"},
	}
	for _, tt := range tests {
		if got := s.Substitute(tt.in, tt.locals); got != tt.want {
			t.Errorf("Substitute(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSubstituteSinglePass(t *testing.T) {
	s := NewVarStore()
	s.Set("a", StringValue("%b"))
	s.Set("b", StringValue("nope"))
	if got := s.Substitute("%a", nil); got != "%b" {
		t.Errorf("Substitute rescanned inserted text: %q", got)
	}
}

func TestVarStore(t *testing.T) {
	s := NewVarStore()
	s.Set("b", IntValue(1))
	s.Set("a", StringValue("x"))
	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2", s.Len())
	}
	if names := s.Names(); names[0] != "a" || names[1] != "b" {
		t.Errorf("Names = %v, want sorted", names)
	}
	if !s.Unset("a") || s.Unset("a") {
		t.Error("Unset should report existence once")
	}
	snap := s.Snapshot()
	snap["b"] = IntValue(99)
	if v, _ := s.Get("b"); v.Int() != 1 {
		t.Error("Snapshot aliases the store")
	}
}

func TestValidVarName(t *testing.T) {
	for name, want := range map[string]bool{
		"hp":     true,
		"_tmp":   true,
		"foo_2":  true,
		"2foo":   false,
		"":       false,
		"a-b":    false,
		"spaced": true,
	} {
		if got := validVarName(name); got != want {
			t.Errorf("validVarName(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestMatchLocals(t *testing.T) {
	md := &MatchData{Line: "Bob says hello", Groups: []string{"Bob says hello", "Bob"}}
	l := matchLocals(md)
	checks := map[string]string{
		"*":  "Bob says hello",
		"0":  "Bob says hello",
		"1":  "Bob",
		"3":  "hello",
		"P1": "Bob",
	}
	for k, want := range checks {
		if l[k] != want {
			t.Errorf("locals[%q] = %q, want %q", k, l[k], want)
		}
	}
	if _, ok := l["4"]; ok {
		t.Error("unexpected local for missing word")
	}
}

func TestValueConversions(t *testing.T) {
	tests := []struct {
		v      Value
		str    string
		i      int64
		truthy bool
	}{
		{StringValue(""), "", 0, false},
		{StringValue("0"), "0", 0, false},
		{StringValue("12"), "12", 12, true},
		{StringValue("abc"), "abc", 0, true},
		{IntValue(-3), "-3", -3, true},
		{FloatValue(2.5), "2.5", 2, true},
		{FloatValue(0), "0.0", 0, false},
	}
	for _, tt := range tests {
		if got := tt.v.String(); got != tt.str {
			t.Errorf("%v String = %q, want %q", tt.v, got, tt.str)
		}
		if got := tt.v.Int(); got != tt.i {
			t.Errorf("%v Int = %d, want %d", tt.v, got, tt.i)
		}
		if got := tt.v.Truthy(); got != tt.truthy {
			t.Errorf("%v Truthy = %v, want %v", tt.v, got, tt.truthy)
		}
	}
	if !IntValue(1).Equal(IntValue(1)) || IntValue(1).Equal(StringValue("1")) {
		t.Error("Equal should compare kind then value")
	}
}
