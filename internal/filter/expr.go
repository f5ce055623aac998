package filter

import (
	"fmt"
	"strings"
)

// Expr is a parsed filter expression.
type Expr interface {
	exprNode()
}

// Term is a leaf search term.
type Term struct {
	Text    string
	Negated bool
}

func (Term) exprNode() {}

// AndExpr holds terms joined by &&.
type AndExpr struct {
	Children []Expr
	Negated  bool
}

func (AndExpr) exprNode() {}

// OrExpr holds terms joined by ||.
type OrExpr struct {
	Children []Expr
	Negated  bool
}

func (OrExpr) exprNode() {}

// AmbiguousOperatorError reports && and || mixed at one nesting level.
type AmbiguousOperatorError struct {
	Expr string
}

func (e *AmbiguousOperatorError) Error() string {
	return fmt.Sprintf("ambiguous filter %q: && and || mixed without grouping", e.Expr)
}

const (
	andOp = "&&"
	orOp  = "||"
)

// Parse parses a filter expression. Blank input yields a nil Expr.
func Parse(text string) (Expr, error) {
	return parse(text, false)
}

func parse(text string, negated bool) (Expr, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return nil, nil
	}

	ands, ors := topLevelOperators(s)
	switch {
	case ands && ors:
		return nil, &AmbiguousOperatorError{Expr: s}
	case ands:
		children, err := parseAll(splitTopLevel(s, andOp))
		if err != nil {
			return nil, err
		}
		return AndExpr{Children: children, Negated: negated}, nil
	case ors:
		children, err := parseAll(splitTopLevel(s, orOp))
		if err != nil {
			return nil, err
		}
		return OrExpr{Children: children, Negated: negated}, nil
	}

	if strings.HasPrefix(s, "!") {
		return parse(s[1:], !negated)
	}
	if inner, ok := unwrap(s); ok {
		return parse(inner, negated)
	}
	return Term{Text: s, Negated: negated}, nil
}

func parseAll(segments []string) ([]Expr, error) {
	children := make([]Expr, 0, len(segments))
	for _, seg := range segments {
		child, err := parse(seg, false)
		if err != nil {
			return nil, err
		}
		if child != nil {
			children = append(children, child)
		}
	}
	return children, nil
}

// topLevelOperators reports which operators occur outside parentheses.
func topLevelOperators(s string) (ands, ors bool) {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case '&':
			if depth == 0 && strings.HasPrefix(s[i:], andOp) {
				ands = true
				i++
			}
		case '|':
			if depth == 0 && strings.HasPrefix(s[i:], orOp) {
				ors = true
				i++
			}
		}
	}
	return ands, ors
}

// splitTopLevel splits s on op occurrences outside parentheses.
func splitTopLevel(s, op string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		default:
			if depth == 0 && strings.HasPrefix(s[i:], op) {
				parts = append(parts, s[start:i])
				i += len(op) - 1
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// unwrap strips one pair of parentheses enclosing all of s.
func unwrap(s string) (string, bool) {
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return "", false
	}
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 && i != len(s)-1 {
				// "(a) && (b)" style: the first group closes early.
				return "", false
			}
		}
	}
	if depth != 0 {
		return "", false
	}
	return s[1 : len(s)-1], true
}
