package interp

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/textparser-go/textparser/pkgs/errors"
)

// testEnv is a minimal line context for evaluator tests
type testEnv struct {
	line     string
	fields   []string
	nr       int
	indent   int
	stash    map[string]interface{}
	aborted  bool
	fieldSep string
}

func newTestEnv(line string) *testEnv {
	env := &testEnv{line: line, nr: 1, stash: map[string]interface{}{}}
	if strings.TrimSpace(line) != "" {
		env.fields = strings.Fields(line)
	}
	return env
}

func (e *testEnv) ThisLine() string { return e.line }
func (e *testEnv) ThisIndent() int  { return e.indent }
func (e *testEnv) NF() int          { return len(e.fields) }
func (e *testEnv) NR() int          { return e.nr }

func (e *testEnv) Field(i int) (string, error) {
	idx := i
	if idx < 0 {
		idx = len(e.fields) + idx
	}
	if idx < 0 || idx >= len(e.fields) {
		return "", fmt.Errorf("field index %d out of range", i)
	}
	return e.fields[idx], nil
}

func (e *testEnv) FieldRange(i, j int) ([]string, error) {
	from, to := i, j
	if from < 0 {
		from = len(e.fields) + from
	}
	if to < 0 {
		to = len(e.fields) + to
	}
	if from < 0 || from >= len(e.fields) || to < 0 || to >= len(e.fields) {
		return nil, fmt.Errorf("field range %d..%d out of range", i, j)
	}
	out := []string{}
	for k := from; k <= to; k++ {
		out = append(out, e.fields[k])
	}
	return out, nil
}

func (e *testEnv) JoinRange(i, j int, sep string) (string, error) {
	fields, err := e.FieldRange(i, j)
	if err != nil {
		return "", err
	}
	return strings.Join(fields, sep), nil
}

func (e *testEnv) FindField(pred func(string) bool) (string, bool) {
	for _, f := range e.fields {
		if pred(f) {
			return f, true
		}
	}
	return "", false
}

func (e *testEnv) FindFieldIndex(pred func(string) bool) int {
	for i, f := range e.fields {
		if pred(f) {
			return i
		}
	}
	return -1
}

func (e *testEnv) SpliceFields(offset, length int, replacement []string) ([]string, error) {
	return nil, fmt.Errorf("not supported in test env")
}

func (e *testEnv) Stashed(name string) (interface{}, bool) {
	v, ok := e.stash[name]
	return v, ok
}

func (e *testEnv) SetStashed(name string, value interface{}) { e.stash[name] = value }
func (e *testEnv) DeleteStashed(name string)                 { delete(e.stash, name) }
func (e *testEnv) Prestash(name string, value interface{})   { e.stash[name] = value }
func (e *testEnv) AbortReading()                             { e.aborted = true }

func (e *testEnv) SetFieldSeparator(pattern string) error {
	e.fieldSep = pattern
	return nil
}

func mustEval(t *testing.T, src string, env Env) interface{} {
	t.Helper()
	prog, err := Compile(src)
	if err != nil {
		t.Fatalf("Compile(%q) failed: %v", src, err)
	}
	v, err := prog.Eval(env)
	if err != nil {
		t.Fatalf("Eval(%q) failed: %v", src, err)
	}
	return v
}

func TestFieldAccess(t *testing.T) {
	env := newTestEnv("NAME: Audrey C Miller")
	tests := []struct {
		src      string
		expected interface{}
	}{
		{"$0", "NAME: Audrey C Miller"},
		{"$_", "NAME: Audrey C Miller"},
		{"$1", "NAME:"},
		{"$2", "Audrey"},
		{"${-1}", "Miller"},
		{"${-2}", "C"},
		{"${2+}", "Audrey C Miller"},
		{"${-2+}", "C Miller"},
		{"NF", float64(4)},
		{"NR", float64(1)},
	}
	for _, tt := range tests {
		if got := mustEval(t, tt.src, env); got != tt.expected {
			t.Errorf("%q = %#v, want %#v", tt.src, got, tt.expected)
		}
	}
}

func TestFieldList(t *testing.T) {
	env := newTestEnv("a b c")
	got := mustEval(t, "@{2+}", env)
	if diff := cmp.Diff([]string{"b", "c"}, got); diff != "" {
		t.Errorf("@{2+} mismatch (-want +got):\n%s", diff)
	}
}

func TestArithmeticAndStrings(t *testing.T) {
	env := newTestEnv("10 4")
	tests := []struct {
		src      string
		expected interface{}
	}{
		{"$1 + $2", float64(14)},
		{"$1 - $2", float64(6)},
		{"$1 * $2", float64(40)},
		{"$1 / $2", float64(2.5)},
		{"$1 % $2", float64(2)},
		{`$1 . "-" . $2`, "10-4"},
		{"-$2", float64(-4)},
		{"2 + 3 * 4", float64(14)},
	}
	for _, tt := range tests {
		if got := mustEval(t, tt.src, env); got != tt.expected {
			t.Errorf("%q = %#v, want %#v", tt.src, got, tt.expected)
		}
	}
}

func TestComparisons(t *testing.T) {
	env := newTestEnv("ERROR: 10 9")
	tests := []struct {
		src      string
		expected bool
	}{
		{`$1 eq "ERROR:"`, true},
		{`$1 ne "ERROR:"`, false},
		{"$2 > $3", true},
		// String comparison sorts lexically, numeric compares values.
		{`$2 lt $3`, true},
		{"$2 >= 10", true},
		{"$2 == 10", true},
		{"$2 != 10", false},
		{`"abc" le "abd"`, true},
	}
	for _, tt := range tests {
		if got := mustEval(t, tt.src, env); got != tt.expected {
			t.Errorf("%q = %v, want %v", tt.src, got, tt.expected)
		}
	}
}

func TestLogicalOperators(t *testing.T) {
	env := newTestEnv("x y")
	tests := []struct {
		src      string
		expected bool
	}{
		{`$1 eq "x" && $2 eq "y"`, true},
		{`$1 eq "no" || $2 eq "y"`, true},
		{`$1 eq "no" && $2 eq "y"`, false},
		{`!($1 eq "no")`, true},
		{`not ($1 eq "x")`, false},
	}
	for _, tt := range tests {
		if got := mustEval(t, tt.src, env); got != tt.expected {
			t.Errorf("%q = %v, want %v", tt.src, got, tt.expected)
		}
	}
}

func TestShortCircuit(t *testing.T) {
	// The right side indexes out of range; && must not evaluate it.
	env := newTestEnv("only")
	got := mustEval(t, `$1 eq "other" && $5 eq "x"`, env)
	if got != false {
		t.Errorf("short-circuit && = %v, want false", got)
	}
}

func TestRegexMatching(t *testing.T) {
	env := newTestEnv("ERROR: disk full")
	tests := []struct {
		src      string
		expected bool
	}{
		{`$1 =~ /^ERROR/`, true},
		{`$1 !~ /^WARN/`, true},
		{`$0 =~ /disk/`, true},
		{`/disk full/`, true},
		{`/DISK/i`, true},
		{`/missing/`, false},
	}
	for _, tt := range tests {
		if got := mustEval(t, tt.src, env); got != tt.expected {
			t.Errorf("%q = %v, want %v", tt.src, got, tt.expected)
		}
	}
}

func TestStashOperations(t *testing.T) {
	env := newTestEnv("a b")

	mustEval(t, "~c = 0", env)
	mustEval(t, "~c++", env)
	mustEval(t, "~c++", env)
	if got := mustEval(t, "~c", env); got != float64(2) {
		t.Errorf("~c = %#v, want 2", got)
	}

	if got := mustEval(t, "++~c", env); got != float64(3) {
		t.Errorf("++~c = %#v, want 3", got)
	}
	if got := mustEval(t, "~c--", env); got != float64(3) {
		t.Errorf("~c-- = %#v, want 3 (old value)", got)
	}

	mustEval(t, `~s = "a"; ~s .= "b"`, env)
	if got := mustEval(t, "~s", env); got != "ab" {
		t.Errorf("~s = %#v, want ab", got)
	}

	mustEval(t, "delete ~s", env)
	if got := mustEval(t, "defined(~s)", env); got != false {
		t.Errorf("defined(~s) after delete = %v, want false", got)
	}
}

func TestReturnSemantics(t *testing.T) {
	env := newTestEnv("a b c")

	// Explicit return stops execution.
	if got := mustEval(t, `return $1; return $2`, env); got != "a" {
		t.Errorf("early return = %#v, want a", got)
	}
	// Bare return yields undef.
	if got := mustEval(t, "return", env); got != nil {
		t.Errorf("bare return = %#v, want nil", got)
	}
	// Without a return the last statement's value is the result.
	if got := mustEval(t, "~x = 5; $2", env); got != "b" {
		t.Errorf("last statement value = %#v, want b", got)
	}
}

func TestConditionals(t *testing.T) {
	env := newTestEnv("7 things")
	got := mustEval(t, `if ($1 > 5) { return "big" } else { return "small" }`, env)
	if got != "big" {
		t.Errorf("if/else = %#v, want big", got)
	}

	env2 := newTestEnv("3 things")
	got = mustEval(t, `if ($1 > 5) { return "big" } else if ($1 > 2) { return "mid" } else { return "small" }`, env2)
	if got != "mid" {
		t.Errorf("else-if chain = %#v, want mid", got)
	}
}

func TestBuiltins(t *testing.T) {
	env := newTestEnv("Minst net1 net2")
	tests := []struct {
		src      string
		expected interface{}
	}{
		{`substr($1, 0, 1)`, "M"},
		{`substr($1, 1)`, "inst"},
		{`substr($1, -4)`, "inst"},
		{`uc(substr($1, 0, 1))`, "M"},
		{`lc($1)`, "minst"},
		{`ucfirst("net")`, "Net"},
		{`lcfirst("NET")`, "nET"},
		{`length($1)`, float64(5)},
		{`index($0, "net")`, float64(6)},
		{`index($0, "zzz")`, float64(-1)},
		{`trim("  x  ")`, "x"},
		{`chomp("line\n")`, "line"},
		{`join(",", @{2+})`, "net1,net2"},
		{`sprintf("%s=%d", $1, 3)`, "Minst=3"},
		{`abs(-4)`, float64(4)},
		{`int(3.9)`, float64(3)},
		{`defined(undef)`, false},
		{`defined($1)`, true},
		{`this_line()`, "Minst net1 net2"},
		{`field(1)`, "Minst"},
		{`field(3)`, "net2"},
		{`field(-1)`, "net2"},
		{`field(-3)`, "Minst"},
		{`join_range(1, 2)`, "net1 net2"},
		{`join_range(1, 2, "+")`, "net1+net2"},
		{`find_field(/^net/)`, "net1"},
		{`find_field_index(/^net2/)`, float64(2)},
		{`find_field_index(/^zzz/)`, float64(-1)},
	}
	for _, tt := range tests {
		if got := mustEval(t, tt.src, env); got != tt.expected {
			t.Errorf("%q = %#v, want %#v", tt.src, got, tt.expected)
		}
	}
}

func TestSplit(t *testing.T) {
	env := newTestEnv("ignored")
	got := mustEval(t, `split(/,/, "a,b,c")`, env)
	if diff := cmp.Diff([]string{"a", "b", "c"}, got); diff != "" {
		t.Errorf("split mismatch (-want +got):\n%s", diff)
	}
}

func TestFieldBuiltinMatchesSurface(t *testing.T) {
	// field(N) and $N must agree on every index.
	env := newTestEnv("a b c")
	for _, src := range []string{"1", "2", "3", "-1", "-2", "-3"} {
		byBuiltin := mustEval(t, "field("+src+")", env)
		bySurface := mustEval(t, "${"+src+"}", env)
		if byBuiltin != bySurface {
			t.Errorf("field(%s) = %#v but $%s = %#v", src, byBuiltin, src, bySurface)
		}
	}

	prog, err := Compile("field(0)")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if _, err := prog.Eval(env); err == nil {
		t.Error("field(0) did not fail")
	}
}

func TestFieldSeparatorBuiltin(t *testing.T) {
	env := newTestEnv("a b")
	mustEval(t, `field_separator(",")`, env)
	if env.fieldSep != "," {
		t.Errorf("field_separator(%q) stored %q", ",", env.fieldSep)
	}
	mustEval(t, `field_separator(/;+/)`, env)
	if env.fieldSep != ";+" {
		t.Errorf("regex separator stored %q, want ;+", env.fieldSep)
	}
}

func TestAbortReading(t *testing.T) {
	env := newTestEnv("stop here")
	mustEval(t, "abort_reading()", env)
	if !env.aborted {
		t.Error("abort_reading() did not set the abort flag")
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"syntax error", "$1 +"},
		{"unknown function", "frobnicate($1)"},
		{"too few args", "substr($1)"},
		{"too many args", "length($1, $2)"},
		{"assign to field", "$1 = 3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.src)
			if err == nil {
				t.Fatalf("Compile(%q) unexpectedly succeeded", tt.src)
			}
			if !errors.IsCode(err, errors.ErrRuleCompile) {
				t.Errorf("Compile(%q) error %v is not a rule compile error", tt.src, err)
			}
			perr := err.(*errors.ParseError)
			if code, ok := perr.GetContext("code"); !ok || code != tt.src {
				t.Errorf("compile error does not carry the offending source: %v", perr.Context)
			}
		})
	}
}

func TestMinNFExposed(t *testing.T) {
	prog, err := Compile(`$2 eq "x" && ${-5} eq "y"`)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if prog.MinNF != 5 {
		t.Errorf("MinNF = %d, want 5", prog.MinNF)
	}
}

func TestRuntimeErrors(t *testing.T) {
	env := newTestEnv("a")
	prog, err := Compile("$3")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if _, err := prog.Eval(env); err == nil {
		t.Error("out-of-range field access did not fail")
	}

	prog, err = Compile("$1 / 0")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if _, err := prog.Eval(env); err == nil {
		t.Error("division by zero did not fail")
	}
}

func TestValueConversions(t *testing.T) {
	if Str(float64(3)) != "3" {
		t.Errorf("Str(3.0) = %q, want 3", Str(float64(3)))
	}
	if Str(3.5) != "3.5" {
		t.Errorf("Str(3.5) = %q", Str(3.5))
	}
	if Num("12abc") != 12 {
		t.Errorf("Num(12abc) = %v, want 12", Num("12abc"))
	}
	if Num("-3.5 rest") != -3.5 {
		t.Errorf("Num(-3.5 rest) = %v", Num("-3.5 rest"))
	}
	if Num("abc") != 0 {
		t.Errorf("Num(abc) = %v, want 0", Num("abc"))
	}
	if Truth("0") {
		t.Error(`Truth("0") = true, want false`)
	}
	if !Truth("0.0") {
		t.Error(`Truth("0.0") = false, want true`)
	}
	if Truth(nil) || Truth("") || Truth(float64(0)) {
		t.Error("falsy values reported true")
	}
}
