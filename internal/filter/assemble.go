package filter

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/user/gridsync/internal/model"
)

// CutoffField is the pseudo-field of time-range filters. It is not stored;
// it becomes a comparison on the identity column.
const CutoffField = "cutOffDate"

// Filter operator names as sent by the grid.
const (
	TypeNumericEquals = "="
	TypeEquals        = "eq"
	TypeLike          = "like"
	TypeGreater       = "gt"
	TypeLess          = "lt"
)

// Sort directions.
const (
	Asc  = "asc"
	Desc = "desc"
)

// QueryFilter is one (field, operator, value) triple from the grid.
type QueryFilter struct {
	Field string      `json:"field"`
	Type  string      `json:"type"`
	Value interface{} `json:"value"`
}

// QuerySorter is one sort request from the grid.
type QuerySorter struct {
	Field string `json:"field"`
	Dir   string `json:"dir"`
}

// SortKey is one ORDER BY entry.
type SortKey struct {
	Field     string
	Direction string
}

// SortSpec is an ordered list of sort keys.
type SortSpec []SortKey

// DefaultSort orders by the identity column. chronology may override the
// direction with "asc" or "desc"; anything else means descending.
func DefaultSort(chronology string) SortSpec {
	dir := Desc
	if strings.EqualFold(chronology, Asc) {
		dir = Asc
	}
	return SortSpec{{Field: IDField, Direction: dir}}
}

// Compiler assembles structured filters. Failures are logged, never returned.
type Compiler struct {
	logger *slog.Logger
}

// NewCompiler returns a Compiler logging to logger, or to slog.Default when nil.
func NewCompiler(logger *slog.Logger) *Compiler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compiler{logger: logger}
}

// Assemble is shorthand for NewCompiler(nil).Assemble.
func Assemble(filters []QueryFilter, sorters []QuerySorter, chronology string) (Predicate, SortSpec) {
	return NewCompiler(nil).Assemble(filters, sorters, chronology)
}

// Assemble combines structured filters into one conjunction and resolves the
// sort order.
//
// Clauses are keyed: by field for plain filters, by the identity column for
// identifier and cutoff ranges, and by group kind plus field for boolean
// like-groups. A later filter with the same key replaces the earlier one, so
// groups on different fields all apply. In particular an
// identifier range and a cutoff range never combine; the last one listed wins.
//
// Any failure yields a nil predicate and the default sort.
func (c *Compiler) Assemble(filters []QueryFilter, sorters []QuerySorter, chronology string) (pred Predicate, spec SortSpec) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("filter assembly panicked", "panic", fmt.Sprint(r))
			pred, spec = nil, DefaultSort(chronology)
		}
	}()

	set := newClauseSet()
	for _, f := range filters {
		if err := c.addFilter(set, f); err != nil {
			c.logger.Error("filter assembly failed", "field", f.Field, "type", f.Type, "error", err)
			return nil, DefaultSort(chronology)
		}
	}

	return set.predicate(), c.sortSpec(sorters, chronology)
}

func (c *Compiler) addFilter(set *clauseSet, f QueryFilter) error {
	switch {
	case f.Field == CutoffField:
		if f.Type != TypeGreater && f.Type != TypeLess {
			return nil
		}
		set.put(IDField, c.cutoffClause(f))
		return nil

	case f.Field == IDField && (f.Type == TypeGreater || f.Type == TypeLess):
		s, ok := f.Value.(string)
		if !ok {
			return fmt.Errorf("%w: identifier must be a string, got %T", model.ErrInvalidID, f.Value)
		}
		if _, err := model.ParseID(s); err != nil {
			return err
		}
		set.put(IDField, Compare{Field: IDField, Op: CompareOp(f.Type), Value: strings.ToLower(s)})
		return nil
	}

	switch f.Type {
	case TypeNumericEquals:
		set.put(f.Field, Equals{Field: f.Field, Value: numeric(f.Value)})
	case TypeEquals:
		set.put(f.Field, Equals{Field: f.Field, Value: f.Value})
	case TypeGreater, TypeLess:
		set.put(f.Field, Compare{Field: f.Field, Op: CompareOp(f.Type), Value: numeric(f.Value)})
	case TypeLike:
		c.addLike(set, f)
	default:
		c.logger.Debug("ignoring unknown filter type", "field", f.Field, "type", f.Type)
	}
	return nil
}

func (c *Compiler) addLike(set *clauseSet, f QueryFilter) {
	text := fmt.Sprint(f.Value)
	if f.Value == nil {
		text = ""
	}
	if !strings.Contains(text, andOp) && !strings.Contains(text, orOp) {
		set.put(f.Field, Match{Field: f.Field, Pattern: text})
		return
	}

	p, err := Compile(text, f.Field)
	if err != nil {
		var amb *AmbiguousOperatorError
		if errors.As(err, &amb) {
			c.logger.Warn("ambiguous filter expression ignored", "field", f.Field, "expr", text)
		} else {
			c.logger.Warn("filter expression ignored", "field", f.Field, "error", err)
		}
		return
	}

	switch p.(type) {
	case nil:
	case And:
		set.put("$and:"+f.Field, p)
	case Or:
		set.put("$or:"+f.Field, p)
	default:
		set.put(f.Field, p)
	}
}

// cutoffClause compares the identity column against an identifier
// synthesized from the cutoff instant. Synthesis failures match nothing.
func (c *Compiler) cutoffClause(f QueryFilter) Predicate {
	at, err := toTime(f.Value)
	if err == nil {
		var id string
		id, err = model.IDFromTime(at)
		if err == nil {
			return Compare{Field: IDField, Op: CompareOp(f.Type), Value: id}
		}
	}
	c.logger.Error("cutoff filter cannot be honored", "type", f.Type, "value", f.Value, "error", err)
	return MatchNone()
}

func (c *Compiler) sortSpec(sorters []QuerySorter, chronology string) SortSpec {
	if len(sorters) == 0 {
		return DefaultSort(chronology)
	}
	spec := make(SortSpec, 0, len(sorters))
	for _, s := range sorters {
		if s.Field == "" || !validDirection(s.Dir) {
			c.logger.Warn("malformed sorters replaced by default", "field", s.Field, "dir", s.Dir)
			return DefaultSort(chronology)
		}
		spec = append(spec, SortKey{Field: s.Field, Direction: s.Dir})
	}
	return spec
}

func validDirection(dir string) bool {
	return strings.EqualFold(dir, Asc) || strings.EqualFold(dir, Desc)
}

// numeric converts numeric strings to float64 and leaves other values alone.
// NaN and infinities stay text.
func numeric(v interface{}) interface{} {
	s, ok := v.(string)
	if !ok {
		return v
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return v
	}
	return n
}

// toTime accepts time values, RFC 3339 or yyyy-mm-dd strings, and numbers as
// Unix milliseconds.
func toTime(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case *time.Time:
		if t != nil {
			return *t, nil
		}
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
			if parsed, err := time.Parse(layout, strings.TrimSpace(t)); err == nil {
				return parsed, nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized time %q", t)
	case float64:
		return time.UnixMilli(int64(t)), nil
	case int64:
		return time.UnixMilli(t), nil
	case int:
		return time.UnixMilli(int64(t)), nil
	}
	return time.Time{}, fmt.Errorf("unsupported cutoff value %T", v)
}

// clauseSet keeps keyed clauses in first-insertion order.
type clauseSet struct {
	keys  []string
	preds map[string]Predicate
}

func newClauseSet() *clauseSet {
	return &clauseSet{preds: make(map[string]Predicate)}
}

func (s *clauseSet) put(key string, p Predicate) {
	if _, ok := s.preds[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.preds[key] = p
}

func (s *clauseSet) predicate() Predicate {
	if len(s.keys) == 0 {
		return nil
	}
	preds := make([]Predicate, 0, len(s.keys))
	for _, k := range s.keys {
		preds = append(preds, s.preds[k])
	}
	return And{Predicates: preds}
}
