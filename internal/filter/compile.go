package filter

import (
	"sort"
	"strings"
)

// IDField is the identity column: store-assigned and time ordered.
const IDField = "_id"

// Compile parses a filter expression and scopes every term to column.
// Blank input compiles to a nil Predicate. Mixed && and || at one level
// returns *AmbiguousOperatorError.
func Compile(text, column string) (Predicate, error) {
	expr, err := Parse(text)
	if err != nil {
		return nil, err
	}
	return toPredicate(expr, column), nil
}

func toPredicate(e Expr, column string) Predicate {
	switch n := e.(type) {
	case nil:
		return nil
	case Term:
		return negate(Match{Field: column, Pattern: strings.TrimSpace(n.Text)}, n.Negated)
	case AndExpr:
		preds := childPredicates(n.Children, column)
		if len(preds) == 0 {
			return nil
		}
		return negate(And{Predicates: preds}, n.Negated)
	case OrExpr:
		preds := childPredicates(n.Children, column)
		if len(preds) == 0 {
			return nil
		}
		return negate(Or{Predicates: preds}, n.Negated)
	}
	return nil
}

func childPredicates(children []Expr, column string) []Predicate {
	preds := make([]Predicate, 0, len(children))
	for _, c := range children {
		if p := toPredicate(c, column); p != nil {
			preds = append(preds, p)
		}
	}
	return preds
}

func negate(p Predicate, negated bool) Predicate {
	if !negated {
		return p
	}
	return Not{Inner: p}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
