package reconcile

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/user/gridsync/internal/fieldmap"
	"github.com/user/gridsync/internal/model"
	"github.com/user/gridsync/internal/tracker"
)

var leadingInt = regexp.MustCompile(`^\s*([+-]?\d+)`)

// checkEditable rejects edits that change a field outside the editable
// registry. A field counts as changed when it is present in newUI and its
// text differs from oldUI, or oldUI lacks it.
func checkEditable(m model.FieldMapping, oldUI, newUI fieldmap.UiRecord) error {
	for _, b := range m {
		if b.Field == tracker.FieldJiraSummary {
			continue
		}
		nv, ok := newUI[b.Field]
		if !ok {
			continue
		}
		if ov, had := oldUI[b.Field]; had && fieldmap.Text(ov) == fieldmap.Text(nv) {
			continue
		}
		if !tracker.IsEditable(b.Field) {
			return &EditabilityError{Msg: fmt.Sprintf("Jira key - %s is not supported for edit", b.Field)}
		}
	}
	return nil
}

// isCurrent reports whether newer agrees with older on every field present
// in both, ignoring surrounding whitespace.
func isCurrent(older, newer fieldmap.UiRecord, m model.FieldMapping) bool {
	for _, b := range m {
		ov, ok := older[b.Field]
		if !ok {
			continue
		}
		nv, ok := newer[b.Field]
		if !ok {
			continue
		}
		if !fieldmap.SameValue(ov, nv) {
			return false
		}
	}
	return true
}

// delta computes the tracker fields to write for an edit. Per-field
// problems are collected and reported together; the offending fields are
// left out of the delta.
func (r *Reconciler) delta(ctx context.Context, m model.FieldMapping, oldUI, newUI fieldmap.UiRecord, boardID string) (map[string]interface{}, error) {
	delta := make(map[string]interface{})
	var problems []string

	for _, b := range m {
		field := b.Field
		if field == tracker.FieldJiraSummary {
			continue
		}
		nv, ok := newUI[field]
		if !ok {
			continue
		}
		if ov, had := oldUI[field]; had && fieldmap.SameValue(ov, nv) {
			continue
		}
		id := tracker.TrackerField(field)
		if !tracker.IsKnownField(id) {
			continue
		}

		typ, _ := tracker.EditableType(field)
		v, err := coerce(field, typ, nv)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}

		switch field {
		case tracker.FieldAssignee:
			delta[id] = map[string]interface{}{"name": strings.TrimSpace(fieldmap.Text(v))}
		case tracker.FieldSprintName:
			sprintID, found := r.sprintID(ctx, boardID, fieldmap.Text(v))
			if !found {
				problems = append(problems, msgSprintNotFound)
				continue
			}
			delta[id] = sprintID
		default:
			delta[id] = v
		}
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Msg: strings.Join(problems, "; ")}
	}
	return delta, nil
}

// coerce converts v to the declared type of field. Numbers become strings
// and strings with a leading integer become numbers; anything else is an
// error.
func coerce(field string, typ tracker.ValueType, v interface{}) (interface{}, error) {
	switch typ {
	case tracker.TypeNumber:
		switch t := v.(type) {
		case float64, float32, int, int64:
			return t, nil
		case string:
			if m := leadingInt.FindStringSubmatch(t); m != nil {
				if n, err := strconv.Atoi(m[1]); err == nil {
					return n, nil
				}
			}
		}
	case tracker.TypeString:
		switch t := v.(type) {
		case string:
			return t, nil
		case float64, float32, int, int64:
			return fieldmap.Text(t), nil
		}
	default:
		return v, nil
	}
	return nil, fmt.Errorf("%s should be %s type", field, typ)
}

// sprintID looks up a sprint of the board by name. Names match when equal
// after trimming, NFC normalization and case folding.
func (r *Reconciler) sprintID(ctx context.Context, boardID, name string) (int, bool) {
	if r.tracker == nil {
		return 0, false
	}
	sprints, err := r.tracker.GetAllSprints(ctx, boardID)
	if err != nil {
		r.logger.Warn("sprint lookup failed", "board", boardID, "sprint", name, "error", err)
		return 0, false
	}

	want := foldName(name)
	for _, s := range sprints {
		if foldName(s.Name) == want {
			return s.ID, true
		}
	}
	return 0, false
}

func foldName(s string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}
