package tools

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// NewCalculator returns the arithmetic tool. Evaluation is local; no
// external service is involved.
func NewCalculator() Tool {
	return Tool{
		Name:        "calculator",
		Description: "Evaluate arithmetic expressions. Supports + - * / ^ and parentheses.",
		Param:       "expression",
		Invoke: func(ctx context.Context, expression string) Observation {
			result, err := evaluate(expression)
			if err != nil {
				return ErrorObservation(fmt.Sprintf("Could not evaluate %q: %v", expression, err), err)
			}
			return TextObservation(strconv.FormatFloat(result, 'g', -1, 64))
		},
	}
}

type token struct {
	kind  byte // 'n' number, 'o' operator, '(' or ')'
	value float64
	op    byte
}

// evaluate parses and computes an infix arithmetic expression using the
// shunting-yard algorithm.
func evaluate(expr string) (float64, error) {
	tokens, err := tokenize(expr)
	if err != nil {
		return 0, err
	}
	if len(tokens) == 0 {
		return 0, fmt.Errorf("empty expression")
	}

	var output []token
	var ops []token

	for _, tok := range tokens {
		switch tok.kind {
		case 'n':
			output = append(output, tok)
		case 'o':
			for len(ops) > 0 && ops[len(ops)-1].kind == 'o' &&
				(precedence(ops[len(ops)-1].op) > precedence(tok.op) ||
					(precedence(ops[len(ops)-1].op) == precedence(tok.op) && tok.op != '^')) {
				output = append(output, ops[len(ops)-1])
				ops = ops[:len(ops)-1]
			}
			ops = append(ops, tok)
		case '(':
			ops = append(ops, tok)
		case ')':
			for len(ops) > 0 && ops[len(ops)-1].kind != '(' {
				output = append(output, ops[len(ops)-1])
				ops = ops[:len(ops)-1]
			}
			if len(ops) == 0 {
				return 0, fmt.Errorf("mismatched parentheses")
			}
			ops = ops[:len(ops)-1]
		}
	}

	for len(ops) > 0 {
		if ops[len(ops)-1].kind == '(' {
			return 0, fmt.Errorf("mismatched parentheses")
		}
		output = append(output, ops[len(ops)-1])
		ops = ops[:len(ops)-1]
	}

	return evalRPN(output)
}

func tokenize(expr string) ([]token, error) {
	var tokens []token
	i := 0
	prevKind := byte(0)

	for i < len(expr) {
		c := expr[i]
		switch {
		case unicode.IsSpace(rune(c)):
			i++
		case c >= '0' && c <= '9' || c == '.':
			j := i
			for j < len(expr) && (expr[j] >= '0' && expr[j] <= '9' || expr[j] == '.') {
				j++
			}
			v, err := strconv.ParseFloat(expr[i:j], 64)
			if err != nil {
				return nil, fmt.Errorf("invalid number %q", expr[i:j])
			}
			tokens = append(tokens, token{kind: 'n', value: v})
			prevKind = 'n'
			i = j
		case strings.ContainsRune("+-*/^", rune(c)):
			// Unary minus: fold into the number that follows
			if c == '-' && (prevKind == 0 || prevKind == 'o' || prevKind == '(') {
				tokens = append(tokens, token{kind: 'n', value: 0})
			}
			tokens = append(tokens, token{kind: 'o', op: c})
			prevKind = 'o'
			i++
		case c == '(':
			tokens = append(tokens, token{kind: '('})
			prevKind = '('
			i++
		case c == ')':
			tokens = append(tokens, token{kind: ')'})
			prevKind = ')'
			i++
		default:
			return nil, fmt.Errorf("unexpected character %q", string(c))
		}
	}

	return tokens, nil
}

func precedence(op byte) int {
	switch op {
	case '+', '-':
		return 1
	case '*', '/':
		return 2
	case '^':
		return 3
	}
	return 0
}

func evalRPN(tokens []token) (float64, error) {
	var stack []float64

	for _, tok := range tokens {
		if tok.kind == 'n' {
			stack = append(stack, tok.value)
			continue
		}

		if len(stack) < 2 {
			return 0, fmt.Errorf("malformed expression")
		}
		b := stack[len(stack)-1]
		a := stack[len(stack)-2]
		stack = stack[:len(stack)-2]

		var v float64
		switch tok.op {
		case '+':
			v = a + b
		case '-':
			v = a - b
		case '*':
			v = a * b
		case '/':
			if b == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			v = a / b
		case '^':
			v = math.Pow(a, b)
		}
		stack = append(stack, v)
	}

	if len(stack) != 1 {
		return 0, fmt.Errorf("malformed expression")
	}
	return stack[0], nil
}
