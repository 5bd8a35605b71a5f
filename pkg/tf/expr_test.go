package tf

import (
	"strings"
	"testing"
)

func TestEvalExpr(t *testing.T) {
	e := NewEngine()
	e.vars.Set("hp", IntValue(40))
	e.vars.Set("name", StringValue("Bob"))

	tests := []struct {
		expr string
		want string
	}{
		{"1 + 2 * 3", "7"},
		{"(1 + 2) * 3", "9"},
		{"7 / 2", "3"},
		{"7 % 3", "1"},
		{"7.0 / 2", "3.5"},
		{"-hp + 50", "10"},
		{"hp >= 40", "1"},
		{"hp < 10 || name == \"Bob\"", "1"},
		{"hp < 10 && missing", "0"},
		{"!0", "1"},
		{"!\"x\"", "0"},
		{"'10' == 10", "1"},
		{"\"abc\" < \"abd\"", "1"},
		{"name =~ \"Bob\"", "1"},
		{"name !~ \"bob\"", "1"},
		{"name =/ \"b*\"", "1"},
		{"name !/ \"x*\"", "1"},
		{"hp > 20 ? \"ok\" : \"low\"", "ok"},
		{"hp > 90 ? \"ok\" : \"low\"", "low"},
		{"strlen(name)", "3"},
		{"toupper(name)", "BOB"},
		{"tolower(\"MiXeD\")", "mixed"},
		{"substr(\"hello\", 1, 3)", "ell"},
		{"substr(\"hello\", 3)", "lo"},
		{"substr(\"hi\", 5)", ""},
		{"substr(\"abc\", 1, 9223372036854775807)", "bc"},
		{"substr(\"abc\", -9223372036854775807, 2)", "ab"},
		{"substr(\"abc\", 9223372036854775807, 1)", ""},
		{"substr(\"abc\", 0, -1)", "abc"},
		{"abs(-4)", "4"},
		{"abs(-1.5)", "1.5"},
		{"strcat(name, \"-\", hp)", "Bob-40"},
		{"mod(10, 4)", "2"},
		{"nothing", ""},
	}
	for _, tt := range tests {
		v, err := e.EvalExpr(tt.expr)
		if err != nil {
			t.Errorf("EvalExpr(%q) error: %v", tt.expr, err)
			continue
		}
		if got := v.String(); got != tt.want {
			t.Errorf("EvalExpr(%q) = %q, want %q", tt.expr, got, tt.want)
		}
	}
}

func TestEvalExprAssign(t *testing.T) {
	e := NewEngine()
	v, err := e.EvalExpr("x := 2 + 3")
	if err != nil {
		t.Fatal(err)
	}
	if v.Int() != 5 {
		t.Errorf("assign returned %v", v)
	}
	got, ok := e.Var("x")
	if !ok || got.Kind() != KindInt || got.Int() != 5 {
		t.Errorf("x = %v (%v), want int 5", got, ok)
	}
}

func TestEvalExprErrors(t *testing.T) {
	e := NewEngine()
	for _, src := range []string{
		"",
		"1 +",
		"(1 + 2",
		"1 / 0",
		"5 % 0",
		"nosuch(1)",
		"strlen()",
		"\"unterminated",
		"1 2",
		"a ? b",
	} {
		if _, err := e.EvalExpr(src); err == nil {
			t.Errorf("EvalExpr(%q) should fail", src)
		}
	}
}

func TestShortCircuit(t *testing.T) {
	e := NewEngine()
	if _, err := e.EvalExpr("0 && (x := 1)"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.EvalExpr("1 || (y := 1)"); err != nil {
		t.Fatal(err)
	}
	if _, ok := e.Var("x"); ok {
		t.Error("&& evaluated its right side")
	}
	if _, ok := e.Var("y"); ok {
		t.Error("|| evaluated its right side")
	}
	// A failing right side is never reached.
	if _, err := e.EvalExpr("0 && 1 / 0"); err != nil {
		t.Errorf("short-circuit still evaluated: %v", err)
	}
}

func TestExprCommands(t *testing.T) {
	e := NewEngine()
	if r := e.Execute("#expr 6 * 7"); r.Kind != ResultSuccess || r.Text != "42" {
		t.Errorf("#expr = %v", r)
	}
	if r := e.Execute("#eval 1 +"); r.Kind != ResultError || !strings.HasPrefix(r.Text, "#eval:") {
		t.Errorf("#eval parse error = %v", r)
	}
	if r := e.Execute("#test 1 == 1"); r.Kind != ResultSuccess || r.HasMessage {
		t.Errorf("#test true = %v", r)
	}
	if r := e.Execute("#test 1 == 2"); !r.IsBreak() {
		t.Errorf("#test false = %v, want break", r)
	}
	if r := e.Execute(`#expr substr("abc", 1, 9223372036854775807)`); r.Kind != ResultSuccess || r.Text != "bc" {
		t.Errorf("#expr huge substr length = %v", r)
	}
}
