package filter

// Predicate is a filter condition over documents.
//
// This is a sealed interface: only types in this package implement it, so
// backends can switch exhaustively over the variants. A nil Predicate
// matches every document.
type Predicate interface {
	predicateNode()
}

// Match is a case-insensitive regular expression match on a field. A
// document without the field does not match.
type Match struct {
	Field   string
	Pattern string
}

func (Match) predicateNode() {}

// Not negates its inner predicate. Not{Match} matches documents that lack
// the field.
type Not struct {
	Inner Predicate
}

func (Not) predicateNode() {}

// And requires every predicate to hold. An empty And matches everything.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Or requires at least one predicate to hold. An empty Or matches nothing.
type Or struct {
	Predicates []Predicate
}

func (Or) predicateNode() {}

// Equals compares a field with a literal value.
type Equals struct {
	Field string
	Value interface{}
}

func (Equals) predicateNode() {}

// CompareOp is an ordering operator.
type CompareOp string

// Ordering operators.
const (
	OpGreater CompareOp = "gt"
	OpLess    CompareOp = "lt"
)

// Compare orders a field against a literal value.
type Compare struct {
	Field string
	Op    CompareOp
	Value interface{}
}

func (Compare) predicateNode() {}

// MatchNone returns the always-false predicate used when a filter cannot be
// honored: no identifier equals the empty string.
func MatchNone() Predicate {
	return Equals{Field: IDField, Value: ""}
}

// AllOf builds a conjunction of equality tests, one per selector entry.
// Keys are visited in sorted order so the result is deterministic.
func AllOf(selector map[string]interface{}) Predicate {
	if len(selector) == 0 {
		return nil
	}
	preds := make([]Predicate, 0, len(selector))
	for _, k := range sortedKeys(selector) {
		preds = append(preds, Equals{Field: k, Value: selector[k]})
	}
	return And{Predicates: preds}
}
