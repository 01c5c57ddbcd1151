package formula

import (
	"testing"
)

func TestEvalArithmetic(t *testing.T) {
	cases := []struct {
		expr string
		want float64
	}{
		{"1 + 2 * 3", 7},
		{"(1 + 2) * 3", 9},
		{"10 / 4", 2.5},
		{"10 % 3", 1},
		{"-5 + 2", -3},
		{"2 * 3 - 4 / 2", 4},
	}
	for _, tc := range cases {
		got, err := Eval(tc.expr, nil)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.expr, err)
		}
		if got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.expr, tc.want, got)
		}
	}
}

func TestEvalComparisonAndLogic(t *testing.T) {
	cases := []struct {
		expr string
		want bool
	}{
		{"1 < 2", true},
		{"2 <= 2", true},
		{"3 > 4", false},
		{"'a' == 'a'", true},
		{"'a' != 'b'", true},
		{"1 < 2 && 3 < 4", true},
		{"1 > 2 || 3 < 4", true},
		{"not (1 > 2)", true},
		{"true and false", false},
		{"null == null", true},
	}
	for _, tc := range cases {
		got, err := Eval(tc.expr, nil)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.expr, err)
		}
		if got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.expr, tc.want, got)
		}
	}
}

func TestEvalErrors(t *testing.T) {
	cases := []string{
		"1 / 0",
		"1 + 'a'",
		"'a' < 1",
		"1 +",
		"(1 + 2",
		"{unsubstituted}",
	}
	for _, expr := range cases {
		if _, err := Eval(expr, nil); err == nil {
			t.Fatalf("%s: expected error", expr)
		}
	}
}

func TestEvalIdentifiersResolveOnlyThroughEnv(t *testing.T) {
	got, err := Eval("total * 2", map[string]any{"total": 21.0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42.0 {
		t.Fatalf("expected 42, got %v", got)
	}

	if _, err := Eval("undefined_name", map[string]any{}); err == nil {
		t.Fatalf("expected unknown identifier to error")
	}
}

func TestSubstituteRendersLiterals(t *testing.T) {
	row := map[string]any{
		"total":     19.5,
		"total_net": 15.0,
		"status":    "pend'ing",
		"flag":      true,
		"note":      nil,
	}

	got := Substitute("{total} - {total_net}", row)
	if got != "19.5 - 15" {
		t.Fatalf("expected longest-name-first substitution, got %q", got)
	}

	got = Substitute("{status} == 'x'", row)
	want := `'pend\'ing' == 'x'`
	if got != want {
		t.Fatalf("expected escaped string literal, got %q", got)
	}

	got = Substitute("{flag} && {note} == null", row)
	if got != "true && null == null" {
		t.Fatalf("unexpected substitution: %q", got)
	}
}

func TestSubstituteLeavesMissingPlaceholders(t *testing.T) {
	got := Substitute("{missing} + 1", map[string]any{"present": 1.0})
	if got != "{missing} + 1" {
		t.Fatalf("expected missing placeholder left untouched, got %q", got)
	}
	// The leftover braces then fail to parse, yielding nil for the row.
	if _, err := Eval(got, nil); err == nil {
		t.Fatalf("expected unparsed placeholder to error")
	}
}

func TestSubstituteInjectionStaysData(t *testing.T) {
	// A hostile string value must end up inside a quoted literal, never as
	// executable syntax.
	row := map[string]any{"name": "x' || '1' == '1"}
	expr := Substitute("{name} == 'admin'", row)
	got, err := Eval(expr, row)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != false {
		t.Fatalf("expected injected value to compare as plain data, got %v", got)
	}
}

func TestEvalBoolDegradesToFalse(t *testing.T) {
	if EvalBool("1 +", nil) {
		t.Fatalf("expected parse error to yield false")
	}
	if !EvalBool("2 > 1", nil) {
		t.Fatalf("expected true comparison")
	}
}

func TestSubstituteAllAndCheck(t *testing.T) {
	expr := SubstituteAll("{a} + {b} * 2", 1)
	if expr != "1 + 1 * 2" {
		t.Fatalf("unexpected substitution: %q", expr)
	}
	if err := Check(expr); err != nil {
		t.Fatalf("expected valid expression, got %v", err)
	}
	if err := Check("1 + * 2"); err == nil {
		t.Fatalf("expected syntax error")
	}
}

func TestTruthy(t *testing.T) {
	if Truthy(nil) || Truthy(0.0) || Truthy("") || Truthy(false) {
		t.Fatalf("expected zero values to be falsy")
	}
	if !Truthy(1.0) || !Truthy("x") || !Truthy(true) {
		t.Fatalf("expected non-zero values to be truthy")
	}
}
