// File: internal/executor/loopcond.go
package executor

import (
	"fmt"
	"strings"
	"unicode"
)

// LoopEnv exposes the previous step's outcome to a loop condition.
type LoopEnv struct {
	Success bool
	Empty   bool
}

// EvalLoopCondition evaluates a plan loop condition against the last step.
// The grammar is deliberately tiny: the identifiers last.success and
// last.empty, the literals true and false, and ! && || with parentheses.
// Anything else is rejected; conditions never reach an interpreter.
func EvalLoopCondition(expr string, env LoopEnv) (bool, error) {
	tokens, err := tokenizeCondition(expr)
	if err != nil {
		return false, err
	}
	p := &condParser{tokens: tokens, env: env}
	result, err := p.parseOr()
	if err != nil {
		return false, err
	}
	if p.pos != len(p.tokens) {
		return false, fmt.Errorf("loop condition: unexpected token %q", p.tokens[p.pos])
	}
	return result, nil
}

func tokenizeCondition(expr string) ([]string, error) {
	var tokens []string
	i := 0
	for i < len(expr) {
		c := expr[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '(' || c == ')' || c == '!':
			tokens = append(tokens, string(c))
			i++
		case c == '&' || c == '|':
			if i+1 >= len(expr) || expr[i+1] != c {
				return nil, fmt.Errorf("loop condition: invalid operator at %q", expr[i:])
			}
			tokens = append(tokens, string(c)+string(c))
			i += 2
		case unicode.IsLetter(rune(c)):
			j := i
			for j < len(expr) && (unicode.IsLetter(rune(expr[j])) || expr[j] == '.' || expr[j] == '_') {
				j++
			}
			tokens = append(tokens, expr[i:j])
			i = j
		default:
			return nil, fmt.Errorf("loop condition: invalid character %q", string(c))
		}
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("loop condition: empty expression")
	}
	return tokens, nil
}

type condParser struct {
	tokens []string
	pos    int
	env    LoopEnv
}

func (p *condParser) parseOr() (bool, error) {
	left, err := p.parseAnd()
	if err != nil {
		return false, err
	}
	for p.pos < len(p.tokens) && p.tokens[p.pos] == "||" {
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return false, err
		}
		left = left || right
	}
	return left, nil
}

func (p *condParser) parseAnd() (bool, error) {
	left, err := p.parseUnary()
	if err != nil {
		return false, err
	}
	for p.pos < len(p.tokens) && p.tokens[p.pos] == "&&" {
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return false, err
		}
		left = left && right
	}
	return left, nil
}

func (p *condParser) parseUnary() (bool, error) {
	if p.pos < len(p.tokens) && p.tokens[p.pos] == "!" {
		p.pos++
		v, err := p.parseUnary()
		return !v, err
	}
	return p.parsePrimary()
}

func (p *condParser) parsePrimary() (bool, error) {
	if p.pos >= len(p.tokens) {
		return false, fmt.Errorf("loop condition: unexpected end of expression")
	}
	tok := p.tokens[p.pos]
	p.pos++

	if tok == "(" {
		v, err := p.parseOr()
		if err != nil {
			return false, err
		}
		if p.pos >= len(p.tokens) || p.tokens[p.pos] != ")" {
			return false, fmt.Errorf("loop condition: missing closing parenthesis")
		}
		p.pos++
		return v, nil
	}

	switch strings.ToLower(tok) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "last.success":
		return p.env.Success, nil
	case "last.empty":
		return p.env.Empty, nil
	}
	return false, fmt.Errorf("loop condition: unknown identifier %q", tok)
}
