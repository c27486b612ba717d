// Package parser turns rule mini-language source into an AST. It is a
// small Pratt parser over the lexer's token stream; semantic checks
// that need the builtin table happen in the interp package.
package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/textparser-go/textparser/pkgs/ast"
	"github.com/textparser-go/textparser/pkgs/lexer"
)

// Operator precedence levels, lowest first
const (
	precLowest = iota
	precAssign
	precOr
	precAnd
	precCompare
	precAdditive // + - . (string concat)
	precMultiplicative
	precPrefix
	precPostfix
)

var precedences = map[lexer.TokenType]int{
	lexer.ASSIGN:       precAssign,
	lexer.PLUS_ASSIGN:  precAssign,
	lexer.MINUS_ASSIGN: precAssign,
	lexer.DOT_ASSIGN:   precAssign,
	lexer.OR:           precOr,
	lexer.AND:          precAnd,
	lexer.EQ:           precCompare,
	lexer.NE:           precCompare,
	lexer.LT:           precCompare,
	lexer.LE:           precCompare,
	lexer.GT:           precCompare,
	lexer.GE:           precCompare,
	lexer.STR_EQ:       precCompare,
	lexer.STR_NE:       precCompare,
	lexer.STR_LT:       precCompare,
	lexer.STR_GT:       precCompare,
	lexer.STR_LE:       precCompare,
	lexer.STR_GE:       precCompare,
	lexer.MATCH:        precCompare,
	lexer.NOT_MATCH:    precCompare,
	lexer.PLUS:         precAdditive,
	lexer.MINUS:        precAdditive,
	lexer.DOT:          precAdditive,
	lexer.ASTERISK:     precMultiplicative,
	lexer.SLASH:        precMultiplicative,
	lexer.PERCENT:      precMultiplicative,
	lexer.INCR:         precPostfix,
	lexer.DECR:         precPostfix,
}

// Parser assembles an AST from the token stream. It trusts the lexer
// to have classified field, stash and regex references already.
type Parser struct {
	tokens []lexer.Token
	pos    int
	errors []string
}

// Parse tokenizes and parses a rule source string
func Parse(input string) (*ast.Program, error) {
	lex := lexer.New(input)
	p := &Parser{tokens: lex.TokenizeToSlice()}
	program := p.parseProgram()
	if len(p.errors) > 0 {
		return nil, fmt.Errorf("parsing failed:\n- %s", strings.Join(p.errors, "\n- "))
	}
	return program, nil
}

func (p *Parser) current() lexer.Token {
	if p.pos >= len(p.tokens) {
		return lexer.Token{Type: lexer.EOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) peek() lexer.Token {
	if p.pos+1 >= len(p.tokens) {
		return lexer.Token{Type: lexer.EOF}
	}
	return p.tokens[p.pos+1]
}

func (p *Parser) advance() {
	if p.pos < len(p.tokens) {
		p.pos++
	}
}

func (p *Parser) match(t lexer.TokenType) bool {
	return p.current().Type == t
}

func (p *Parser) expect(t lexer.TokenType, context string) (lexer.Token, bool) {
	tok := p.current()
	if tok.Type != t {
		p.errorf("expected %s %s, got %s at %s", t, context, tok.Type, tok.Position())
		return tok, false
	}
	p.advance()
	return tok, true
}

func (p *Parser) errorf(format string, args ...interface{}) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

// parseProgram parses a ;-separated statement list up to EOF
func (p *Parser) parseProgram() *ast.Program {
	program := &ast.Program{}
	program.Stmts = p.parseStmtList(lexer.EOF)
	return program
}

// parseStmtList parses statements until the terminator token.
// Empty statements (stray semicolons) are allowed and skipped.
func (p *Parser) parseStmtList(end lexer.TokenType) []ast.Stmt {
	var stmts []ast.Stmt
	for !p.match(end) && !p.match(lexer.EOF) {
		if p.match(lexer.SEMICOLON) {
			p.advance()
			continue
		}
		stmt := p.parseStmt()
		if stmt == nil {
			// Error recovery: skip to the next statement boundary.
			for !p.match(lexer.SEMICOLON) && !p.match(end) && !p.match(lexer.EOF) {
				p.advance()
			}
			continue
		}
		stmts = append(stmts, stmt)
		if p.match(lexer.SEMICOLON) {
			p.advance()
		} else if !p.match(end) && !p.match(lexer.EOF) {
			p.errorf("expected ';' or end of input, got %s at %s",
				p.current().Type, p.current().Position())
			return stmts
		}
	}
	return stmts
}

func (p *Parser) parseStmt() ast.Stmt {
	switch p.current().Type {
	case lexer.RETURN:
		return p.parseReturnStmt()
	case lexer.DELETE:
		return p.parseDeleteStmt()
	case lexer.IF:
		return p.parseIfStmt()
	default:
		expr := p.parseExpr(precLowest)
		if expr == nil {
			return nil
		}
		return &ast.ExprStmt{Expr: expr}
	}
}

// parseReturnStmt parses `return` with an optional value
func (p *Parser) parseReturnStmt() ast.Stmt {
	p.advance() // consume 'return'
	switch p.current().Type {
	case lexer.SEMICOLON, lexer.RBRACE, lexer.EOF:
		return &ast.ReturnStmt{}
	}
	value := p.parseExpr(precLowest)
	if value == nil {
		return nil
	}
	return &ast.ReturnStmt{Value: value}
}

// parseDeleteStmt parses `delete ~name`
func (p *Parser) parseDeleteStmt() ast.Stmt {
	p.advance() // consume 'delete'
	tok, ok := p.expect(lexer.STASH, "after delete")
	if !ok {
		return nil
	}
	return &ast.DeleteStmt{Target: &ast.StashExpr{Name: tok.Value}}
}

// parseIfStmt parses `if (cond) { ... } else { ... }` with the else
// branch optionally being another if statement.
func (p *Parser) parseIfStmt() ast.Stmt {
	p.advance() // consume 'if'
	if _, ok := p.expect(lexer.LPAREN, "after if"); !ok {
		return nil
	}
	cond := p.parseExpr(precLowest)
	if cond == nil {
		return nil
	}
	if _, ok := p.expect(lexer.RPAREN, "after if condition"); !ok {
		return nil
	}
	then := p.parseBlock()
	if then == nil {
		return nil
	}
	stmt := &ast.IfStmt{Cond: cond, Then: then}
	if p.match(lexer.ELSE) {
		p.advance()
		if p.match(lexer.IF) {
			inner := p.parseIfStmt()
			if inner == nil {
				return nil
			}
			stmt.Else = []ast.Stmt{inner}
		} else {
			stmt.Else = p.parseBlock()
			if stmt.Else == nil {
				return nil
			}
		}
	}
	return stmt
}

func (p *Parser) parseBlock() []ast.Stmt {
	if _, ok := p.expect(lexer.LBRACE, "to open block"); !ok {
		return nil
	}
	stmts := p.parseStmtList(lexer.RBRACE)
	if _, ok := p.expect(lexer.RBRACE, "to close block"); !ok {
		return nil
	}
	if stmts == nil {
		stmts = []ast.Stmt{}
	}
	return stmts
}

// parseExpr is the Pratt expression loop
func (p *Parser) parseExpr(minPrec int) ast.Expr {
	left := p.parsePrefix()
	if left == nil {
		return nil
	}

	for {
		tok := p.current()
		prec, isOp := precedences[tok.Type]
		if !isOp || prec <= minPrec {
			return left
		}

		switch tok.Type {
		case lexer.ASSIGN, lexer.PLUS_ASSIGN, lexer.MINUS_ASSIGN, lexer.DOT_ASSIGN:
			target, ok := left.(*ast.StashExpr)
			if !ok {
				p.errorf("left side of %q must be a stash variable at %s", tok.Value, tok.Position())
				return nil
			}
			p.advance()
			// Right-associative: ~a = ~b = 1 assigns through.
			value := p.parseExpr(precAssign - 1)
			if value == nil {
				return nil
			}
			left = &ast.AssignExpr{Target: target, Op: tok.Value, Value: value}
		case lexer.INCR, lexer.DECR:
			target, ok := left.(*ast.StashExpr)
			if !ok {
				p.errorf("%q requires a stash variable at %s", tok.Value, tok.Position())
				return nil
			}
			p.advance()
			left = &ast.IncDecExpr{Target: target, Op: tok.Value, Prefix: false}
		case lexer.MATCH, lexer.NOT_MATCH:
			p.advance()
			pattern := p.parseExpr(prec)
			if pattern == nil {
				return nil
			}
			left = &ast.MatchExpr{Left: left, Pattern: pattern, Negated: tok.Type == lexer.NOT_MATCH}
		default:
			p.advance()
			right := p.parseExpr(prec)
			if right == nil {
				return nil
			}
			left = &ast.InfixExpr{Op: infixOpName(tok), Left: left, Right: right}
		}
	}
}

// infixOpName normalizes keyword operators to their symbol spelling
func infixOpName(tok lexer.Token) string {
	switch tok.Type {
	case lexer.AND:
		return "&&"
	case lexer.OR:
		return "||"
	case lexer.STR_EQ, lexer.STR_NE, lexer.STR_LT, lexer.STR_GT, lexer.STR_LE, lexer.STR_GE:
		return tok.Value
	default:
		return tok.Value
	}
}

func (p *Parser) parsePrefix() ast.Expr {
	tok := p.current()
	switch tok.Type {
	case lexer.NUMBER:
		p.advance()
		value, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			p.errorf("bad number %q at %s", tok.Value, tok.Position())
			return nil
		}
		return &ast.NumberLit{Value: value, Raw: tok.Value}
	case lexer.STRING:
		p.advance()
		return &ast.StringLit{Value: tok.Value}
	case lexer.TRUE:
		p.advance()
		return &ast.BoolLit{Value: true}
	case lexer.FALSE:
		p.advance()
		return &ast.BoolLit{Value: false}
	case lexer.UNDEF:
		p.advance()
		return &ast.UndefLit{}
	case lexer.REGEX:
		p.advance()
		re, err := regexp.Compile(tok.Value)
		if err != nil {
			p.errorf("bad regex /%s/ at %s: %v", tok.Value, tok.Position(), err)
			return nil
		}
		return &ast.RegexLit{Pattern: tok.Value, Regex: re}
	case lexer.FIELD:
		p.advance()
		idx, err := strconv.Atoi(tok.Value)
		if err != nil {
			p.errorf("bad field index %q at %s", tok.Value, tok.Position())
			return nil
		}
		return &ast.FieldExpr{Index: idx}
	case lexer.FIELD_JOIN:
		p.advance()
		idx, err := strconv.Atoi(tok.Value)
		if err != nil || idx == 0 {
			p.errorf("bad field range start %q at %s", tok.Value, tok.Position())
			return nil
		}
		return &ast.FieldJoinExpr{Start: idx}
	case lexer.FIELD_LIST:
		p.advance()
		idx, err := strconv.Atoi(tok.Value)
		if err != nil || idx == 0 {
			p.errorf("bad field range start %q at %s", tok.Value, tok.Position())
			return nil
		}
		return &ast.FieldListExpr{Start: idx}
	case lexer.STASH:
		p.advance()
		return &ast.StashExpr{Name: tok.Value}
	case lexer.IDENT:
		return p.parseCall()
	case lexer.MINUS:
		p.advance()
		right := p.parseExpr(precPrefix)
		if right == nil {
			return nil
		}
		return &ast.PrefixExpr{Op: "-", Right: right}
	case lexer.NOT:
		p.advance()
		right := p.parseExpr(precPrefix)
		if right == nil {
			return nil
		}
		return &ast.PrefixExpr{Op: "!", Right: right}
	case lexer.INCR, lexer.DECR:
		p.advance()
		operand := p.parsePrefix()
		if operand == nil {
			return nil
		}
		target, ok := operand.(*ast.StashExpr)
		if !ok {
			p.errorf("%q requires a stash variable at %s", tok.Value, tok.Position())
			return nil
		}
		return &ast.IncDecExpr{Target: target, Op: tok.Value, Prefix: true}
	case lexer.LPAREN:
		p.advance()
		expr := p.parseExpr(precLowest)
		if expr == nil {
			return nil
		}
		if _, ok := p.expect(lexer.RPAREN, "to close group"); !ok {
			return nil
		}
		return expr
	case lexer.LBRACKET:
		return p.parseList()
	default:
		p.errorf("unexpected token %s at %s", tok.Type, tok.Position())
		return nil
	}
}

// parseCall parses an identifier with an optional argument list.
// A bare identifier is a zero-argument builtin call (NF, NR, ...).
func (p *Parser) parseCall() ast.Expr {
	name := p.current().Value
	p.advance()
	if !p.match(lexer.LPAREN) {
		return &ast.CallExpr{Name: name}
	}
	p.advance() // consume '('
	var args []ast.Expr
	for !p.match(lexer.RPAREN) && !p.match(lexer.EOF) {
		arg := p.parseExpr(precLowest)
		if arg == nil {
			return nil
		}
		args = append(args, arg)
		if p.match(lexer.COMMA) {
			p.advance()
		} else {
			break
		}
	}
	if _, ok := p.expect(lexer.RPAREN, "to close argument list"); !ok {
		return nil
	}
	return &ast.CallExpr{Name: name, Args: args}
}

func (p *Parser) parseList() ast.Expr {
	p.advance() // consume '['
	list := &ast.ListExpr{}
	for !p.match(lexer.RBRACKET) && !p.match(lexer.EOF) {
		elem := p.parseExpr(precLowest)
		if elem == nil {
			return nil
		}
		list.Elems = append(list.Elems, elem)
		if p.match(lexer.COMMA) {
			p.advance()
		} else {
			break
		}
	}
	if _, ok := p.expect(lexer.RBRACKET, "to close list"); !ok {
		return nil
	}
	return list
}
