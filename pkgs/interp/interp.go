// Package interp compiles rule mini-language source to an executable
// program and evaluates it against a line context. It is a simple
// tree-walker; programs are compiled once at rule-definition time and
// run once per logical line.
package interp

import (
	"fmt"
	"math"
	"regexp"

	"github.com/textparser-go/textparser/pkgs/ast"
	"github.com/textparser-go/textparser/pkgs/errors"
	"github.com/textparser-go/textparser/pkgs/parser"
)

// Env is the line context a compiled program runs against. Field
// indexing is 0-based with negative-from-end, matching the engine's
// context contract; the $N surface is shifted before it gets here.
type Env interface {
	ThisLine() string
	ThisIndent() int
	NF() int
	NR() int
	Field(i int) (string, error)
	FieldRange(i, j int) ([]string, error)
	JoinRange(i, j int, sep string) (string, error)
	FindField(pred func(string) bool) (string, bool)
	FindFieldIndex(pred func(string) bool) int
	SpliceFields(offset, length int, replacement []string) ([]string, error)
	Stashed(name string) (interface{}, bool)
	SetStashed(name string, value interface{})
	DeleteStashed(name string)
	Prestash(name string, value interface{})
	AbortReading()
	SetFieldSeparator(pattern string) error
}

// Program is a compiled rule source string
type Program struct {
	Source string
	MinNF  int
	prog   *ast.Program
}

// Compile parses and validates src. The returned program carries the
// minimum field count derived from its positional references.
func Compile(src string) (*Program, error) {
	prog, err := parser.Parse(src)
	if err != nil {
		return nil, errors.NewRuleCompileError(src, err).
			WithContext("subroutine", src)
	}
	if err := validateCalls(prog); err != nil {
		return nil, errors.NewRuleCompileError(src, err).
			WithContext("subroutine", prog.String())
	}
	return &Program{
		Source: src,
		MinNF:  ast.MaxFieldRef(prog),
		prog:   prog,
	}, nil
}

// validateCalls checks every call site against the builtin table
func validateCalls(prog *ast.Program) error {
	var bad error
	for _, s := range prog.Stmts {
		walkCalls(s, func(c *ast.CallExpr) {
			if bad != nil {
				return
			}
			b, ok := builtins[c.Name]
			if !ok {
				bad = fmt.Errorf("unknown function %q", c.Name)
				return
			}
			if len(c.Args) < b.minArgs {
				bad = fmt.Errorf("%s requires at least %d argument(s)", c.Name, b.minArgs)
				return
			}
			if b.maxArgs >= 0 && len(c.Args) > b.maxArgs {
				bad = fmt.Errorf("%s takes at most %d argument(s)", c.Name, b.maxArgs)
			}
		})
	}
	return bad
}

func walkCalls(s ast.Stmt, fn func(*ast.CallExpr)) {
	switch n := s.(type) {
	case *ast.ExprStmt:
		walkCallsExpr(n.Expr, fn)
	case *ast.ReturnStmt:
		walkCallsExpr(n.Value, fn)
	case *ast.IfStmt:
		walkCallsExpr(n.Cond, fn)
		for _, st := range n.Then {
			walkCalls(st, fn)
		}
		for _, st := range n.Else {
			walkCalls(st, fn)
		}
	}
}

func walkCallsExpr(e ast.Expr, fn func(*ast.CallExpr)) {
	if e == nil {
		return
	}
	switch n := e.(type) {
	case *ast.CallExpr:
		fn(n)
		for _, a := range n.Args {
			walkCallsExpr(a, fn)
		}
	case *ast.ListExpr:
		for _, el := range n.Elems {
			walkCallsExpr(el, fn)
		}
	case *ast.PrefixExpr:
		walkCallsExpr(n.Right, fn)
	case *ast.InfixExpr:
		walkCallsExpr(n.Left, fn)
		walkCallsExpr(n.Right, fn)
	case *ast.MatchExpr:
		walkCallsExpr(n.Left, fn)
		walkCallsExpr(n.Pattern, fn)
	case *ast.AssignExpr:
		walkCallsExpr(n.Value, fn)
	}
}

// returnSignal carries an explicit return value out of the statement
// walk; it is consumed by Eval, never surfaced to callers.
type returnSignal struct {
	value interface{}
}

func (r returnSignal) Error() string { return "<return>" }

// Eval runs the program against env. The result is the value of an
// explicit return, or the value of the last executed statement.
func (p *Program) Eval(env Env) (interface{}, error) {
	var last interface{}
	for _, s := range p.prog.Stmts {
		v, err := p.execStmt(env, s)
		if err != nil {
			if ret, ok := err.(returnSignal); ok {
				return ret.value, nil
			}
			return nil, err
		}
		last = v
	}
	return last, nil
}

// EvalBool runs the program as a predicate
func (p *Program) EvalBool(env Env) (bool, error) {
	v, err := p.Eval(env)
	if err != nil {
		return false, err
	}
	return Truth(v), nil
}

func (p *Program) execStmt(env Env, s ast.Stmt) (interface{}, error) {
	switch n := s.(type) {
	case *ast.ExprStmt:
		return p.evalExpr(env, n.Expr)
	case *ast.ReturnStmt:
		var v interface{}
		if n.Value != nil {
			value, err := p.evalExpr(env, n.Value)
			if err != nil {
				return nil, err
			}
			v = value
		}
		return nil, returnSignal{value: v}
	case *ast.DeleteStmt:
		env.DeleteStashed(n.Target.Name)
		return nil, nil
	case *ast.IfStmt:
		cond, err := p.evalExpr(env, n.Cond)
		if err != nil {
			return nil, err
		}
		branch := n.Then
		if !Truth(cond) {
			branch = n.Else
		}
		var last interface{}
		for _, st := range branch {
			v, err := p.execStmt(env, st)
			if err != nil {
				return nil, err
			}
			last = v
		}
		return last, nil
	default:
		return nil, fmt.Errorf("unexpected statement type %T", s)
	}
}

func (p *Program) evalExpr(env Env, e ast.Expr) (interface{}, error) {
	switch n := e.(type) {
	case *ast.NumberLit:
		return n.Value, nil
	case *ast.StringLit:
		return n.Value, nil
	case *ast.BoolLit:
		return n.Value, nil
	case *ast.UndefLit:
		return nil, nil
	case *ast.RegexLit:
		// A bare regex matches the whole line, AWK-style.
		return n.Regex.MatchString(env.ThisLine()), nil
	case *ast.FieldExpr:
		return p.evalField(env, n.Index)
	case *ast.FieldJoinExpr:
		start := n.Start
		if start > 0 {
			start--
		}
		return env.JoinRange(start, -1, " ")
	case *ast.FieldListExpr:
		start := n.Start
		if start > 0 {
			start--
		}
		return env.FieldRange(start, -1)
	case *ast.StashExpr:
		v, _ := env.Stashed(n.Name)
		return v, nil
	case *ast.ListExpr:
		elems := make([]interface{}, len(n.Elems))
		for i, el := range n.Elems {
			v, err := p.evalExpr(env, el)
			if err != nil {
				return nil, err
			}
			elems[i] = v
		}
		return elems, nil
	case *ast.PrefixExpr:
		return p.evalPrefix(env, n)
	case *ast.InfixExpr:
		return p.evalInfix(env, n)
	case *ast.MatchExpr:
		return p.evalMatch(env, n)
	case *ast.AssignExpr:
		return p.evalAssign(env, n)
	case *ast.IncDecExpr:
		return p.evalIncDec(env, n)
	case *ast.CallExpr:
		return p.evalCall(env, n)
	default:
		return nil, fmt.Errorf("unexpected expression type %T", e)
	}
}

// evalField resolves the $N surface: $0 is the whole line, $N the Nth
// field (1-based), ${-N} the Nth from the end.
func (p *Program) evalField(env Env, index int) (interface{}, error) {
	if index == 0 {
		return env.ThisLine(), nil
	}
	if index > 0 {
		return env.Field(index - 1)
	}
	return env.Field(index)
}

func (p *Program) evalPrefix(env Env, n *ast.PrefixExpr) (interface{}, error) {
	right, err := p.evalExpr(env, n.Right)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case "-":
		return -Num(right), nil
	case "!":
		return !Truth(right), nil
	default:
		return nil, fmt.Errorf("unexpected prefix operator %q", n.Op)
	}
}

func (p *Program) evalInfix(env Env, n *ast.InfixExpr) (interface{}, error) {
	// Logical operators short-circuit.
	switch n.Op {
	case "&&":
		left, err := p.evalExpr(env, n.Left)
		if err != nil {
			return nil, err
		}
		if !Truth(left) {
			return false, nil
		}
		right, err := p.evalExpr(env, n.Right)
		if err != nil {
			return nil, err
		}
		return Truth(right), nil
	case "||":
		left, err := p.evalExpr(env, n.Left)
		if err != nil {
			return nil, err
		}
		if Truth(left) {
			return true, nil
		}
		right, err := p.evalExpr(env, n.Right)
		if err != nil {
			return nil, err
		}
		return Truth(right), nil
	}

	left, err := p.evalExpr(env, n.Left)
	if err != nil {
		return nil, err
	}
	right, err := p.evalExpr(env, n.Right)
	if err != nil {
		return nil, err
	}

	switch n.Op {
	case "+":
		return Num(left) + Num(right), nil
	case "-":
		return Num(left) - Num(right), nil
	case "*":
		return Num(left) * Num(right), nil
	case "/":
		divisor := Num(right)
		if divisor == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return Num(left) / divisor, nil
	case "%":
		divisor := Num(right)
		if divisor == 0 {
			return nil, fmt.Errorf("division by zero in %%")
		}
		return math.Mod(Num(left), divisor), nil
	case ".":
		return Str(left) + Str(right), nil
	case "==":
		return Num(left) == Num(right), nil
	case "!=":
		return Num(left) != Num(right), nil
	case "<":
		return Num(left) < Num(right), nil
	case "<=":
		return Num(left) <= Num(right), nil
	case ">":
		return Num(left) > Num(right), nil
	case ">=":
		return Num(left) >= Num(right), nil
	case "eq":
		return Str(left) == Str(right), nil
	case "ne":
		return Str(left) != Str(right), nil
	case "lt":
		return Str(left) < Str(right), nil
	case "gt":
		return Str(left) > Str(right), nil
	case "le":
		return Str(left) <= Str(right), nil
	case "ge":
		return Str(left) >= Str(right), nil
	default:
		return nil, fmt.Errorf("unexpected operator %q", n.Op)
	}
}

func (p *Program) evalMatch(env Env, n *ast.MatchExpr) (interface{}, error) {
	left, err := p.evalExpr(env, n.Left)
	if err != nil {
		return nil, err
	}
	var re *regexp.Regexp
	if lit, ok := n.Pattern.(*ast.RegexLit); ok {
		re = lit.Regex
	} else {
		pattern, err := p.evalExpr(env, n.Pattern)
		if err != nil {
			return nil, err
		}
		re, err = regexp.Compile(Str(pattern))
		if err != nil {
			return nil, fmt.Errorf("bad match pattern: %w", err)
		}
	}
	matched := re.MatchString(Str(left))
	if n.Negated {
		matched = !matched
	}
	return matched, nil
}

func (p *Program) evalAssign(env Env, n *ast.AssignExpr) (interface{}, error) {
	value, err := p.evalExpr(env, n.Value)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case "=":
		env.SetStashed(n.Target.Name, value)
		return value, nil
	case "+=":
		old, _ := env.Stashed(n.Target.Name)
		result := Num(old) + Num(value)
		env.SetStashed(n.Target.Name, result)
		return result, nil
	case "-=":
		old, _ := env.Stashed(n.Target.Name)
		result := Num(old) - Num(value)
		env.SetStashed(n.Target.Name, result)
		return result, nil
	case ".=":
		old, _ := env.Stashed(n.Target.Name)
		result := Str(old) + Str(value)
		env.SetStashed(n.Target.Name, result)
		return result, nil
	default:
		return nil, fmt.Errorf("unexpected assignment operator %q", n.Op)
	}
}

func (p *Program) evalIncDec(env Env, n *ast.IncDecExpr) (interface{}, error) {
	old, _ := env.Stashed(n.Target.Name)
	oldNum := Num(old)
	newNum := oldNum + 1
	if n.Op == "--" {
		newNum = oldNum - 1
	}
	env.SetStashed(n.Target.Name, newNum)
	if n.Prefix {
		return newNum, nil
	}
	return oldNum, nil
}

func (p *Program) evalCall(env Env, n *ast.CallExpr) (interface{}, error) {
	b, ok := builtins[n.Name]
	if !ok {
		return nil, fmt.Errorf("unknown function %q", n.Name)
	}
	args := make([]interface{}, 0, len(n.Args))
	for _, a := range n.Args {
		// A regex literal passed as an argument is handed over as a
		// compiled pattern, not matched against the line.
		if lit, ok := a.(*ast.RegexLit); ok {
			args = append(args, lit.Regex)
			continue
		}
		v, err := p.evalExpr(env, a)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	return b.fn(env, args)
}
