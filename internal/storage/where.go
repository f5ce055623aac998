package storage

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/user/gridsync/internal/filter"
	"github.com/user/gridsync/internal/model"
)

// compileWhere compiles a predicate to a SQL condition over the documents
// table. Values and JSON paths are always bound as parameters.
func compileWhere(p filter.Predicate) (string, []interface{}, error) {
	switch pred := p.(type) {
	case nil:
		return "1 = 1", nil, nil
	case filter.Match:
		expr, params, err := fieldExpr(pred.Field)
		if err != nil {
			return "", nil, err
		}
		return "regexp(?, " + expr + ")", append([]interface{}{pred.Pattern}, params...), nil
	case filter.Not:
		inner, params, err := compileWhere(pred.Inner)
		if err != nil {
			return "", nil, err
		}
		return "NOT (" + inner + ")", params, nil
	case filter.And:
		return compileJunction(pred.Predicates, " AND ", "1 = 1")
	case filter.Or:
		return compileJunction(pred.Predicates, " OR ", "1 = 0")
	case filter.Equals:
		return compileEquals(pred)
	case filter.Compare:
		return compileCompare(pred)
	default:
		return "", nil, fmt.Errorf("%w: unsupported predicate type %T", model.ErrInvalidPredicate, p)
	}
}

func compileJunction(preds []filter.Predicate, sep, empty string) (string, []interface{}, error) {
	if len(preds) == 0 {
		return empty, nil, nil
	}
	parts := make([]string, 0, len(preds))
	var params []interface{}
	for _, p := range preds {
		sql, ps, err := compileWhere(p)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, "("+sql+")")
		params = append(params, ps...)
	}
	return strings.Join(parts, sep), params, nil
}

func compileEquals(eq filter.Equals) (string, []interface{}, error) {
	expr, params, err := fieldExpr(eq.Field)
	if err != nil {
		return "", nil, err
	}

	switch v := eq.Value.(type) {
	case nil:
		return expr + " IS NULL", params, nil
	case map[string]interface{}, []interface{}:
		data, err := json.Marshal(v)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", model.ErrInvalidPredicate, err)
		}
		return expr + " = json(?)", append(params, string(data)), nil
	default:
		return expr + " = ?", append(params, v), nil
	}
}

func compileCompare(c filter.Compare) (string, []interface{}, error) {
	var op string
	switch c.Op {
	case filter.OpGreater:
		op = ">"
	case filter.OpLess:
		op = "<"
	default:
		return "", nil, fmt.Errorf("%w: unknown comparison %q", model.ErrInvalidPredicate, c.Op)
	}
	expr, params, err := fieldExpr(c.Field)
	if err != nil {
		return "", nil, err
	}
	return expr + " " + op + " ?", append(params, c.Value), nil
}

// compileOrder compiles a sort spec to an ORDER BY list. The identifier is
// always the final tie breaker so paging is stable.
func compileOrder(spec filter.SortSpec) (string, []interface{}, error) {
	var parts []string
	var params []interface{}
	hasID := false
	for _, key := range spec {
		dir := "ASC"
		switch strings.ToLower(key.Direction) {
		case filter.Asc:
		case filter.Desc:
			dir = "DESC"
		default:
			return "", nil, fmt.Errorf("%w: sort direction %q", model.ErrInvalidPredicate, key.Direction)
		}
		expr, ps, err := fieldExpr(key.Field)
		if err != nil {
			return "", nil, err
		}
		if key.Field == model.IDField {
			hasID = true
		}
		parts = append(parts, expr+" "+dir)
		params = append(params, ps...)
	}
	if !hasID {
		parts = append(parts, "id ASC")
	}
	return strings.Join(parts, ", "), params, nil
}

// fieldExpr returns the SQL expression reading a document field.
func fieldExpr(field string) (string, []interface{}, error) {
	if field == model.IDField {
		return "id", nil, nil
	}
	if err := validateFieldName(field); err != nil {
		return "", nil, err
	}
	return "json_extract(doc, ?)", []interface{}{jsonPath(field)}, nil
}

func jsonPath(field string) string {
	return `$."` + field + `"`
}

func validateFieldName(field string) error {
	if field == "" {
		return fmt.Errorf("%w: empty", model.ErrInvalidFieldName)
	}
	if strings.ContainsAny(field, "\"\\") {
		return fmt.Errorf("%w: %q", model.ErrInvalidFieldName, field)
	}
	for _, r := range field {
		if r < 0x20 {
			return fmt.Errorf("%w: %q", model.ErrInvalidFieldName, field)
		}
	}
	return nil
}
