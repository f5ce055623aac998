// Package fieldmap converts rows between storage shape (one key per storage
// column) and display shape (one key per mapped field).
//
// Several display fields may share one storage column. Such a column holds
// labeled markdown blocks, one per field, in mapping order:
//
//	**summary**:
//	 Fix login
//	<br/>
//	**description**:
//	<br/>
package fieldmap

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/user/gridsync/internal/model"
)

// UiRecord is a row in display shape.
type UiRecord map[string]interface{}

// linkFields are block fields followed by a blank line when written.
var linkFields = map[string]bool{
	"subtasksDetails": true,
	"dependsLinks":    true,
	"implementLinks":  true,
	"packageLinks":    true,
	"relatesLinks":    true,
	"testLinks":       true,
	"coversLinks":     true,
	"defectLinks":     true,
	"automatesLinks":  true,
}

var (
	blockRegex = regexp.MustCompile(`(?s)\*\*([^*\n]+)\*\*:\n(?: (.*?)\n)?<br/>\n`)
	keyRegex   = regexp.MustCompile(`\[([^\]]+)\]\(`)
)

// RevContentMap counts how many display fields are stored in each column.
func RevContentMap(m model.FieldMapping) map[string]int {
	counts := make(map[string]int, len(m))
	for _, b := range m {
		counts[b.Column]++
	}
	return counts
}

// ParseRecord converts a stored row to display shape. Fields whose column is
// absent from the row, or whose block is absent from a shared column, are
// left out of the result.
func ParseRecord(stored map[string]interface{}, rev map[string]int, m model.FieldMapping) (UiRecord, error) {
	if stored == nil {
		return nil, fmt.Errorf("%w: no record", model.ErrInvalidMapping)
	}
	if rev == nil {
		rev = RevContentMap(m)
	}

	rec := make(UiRecord, len(m))
	blocks := make(map[string]map[string]string)

	for _, b := range m {
		raw, ok := stored[b.Column]
		if !ok || raw == nil {
			continue
		}

		if rev[b.Column] <= 1 {
			if b.Field == model.KeyField {
				rec[b.Field] = issueKey(raw)
			} else {
				rec[b.Field] = raw
			}
			continue
		}

		parsed, ok := blocks[b.Column]
		if !ok {
			text, isText := raw.(string)
			if !isText {
				return nil, fmt.Errorf("%w: column %q holds %T, expected labeled blocks", model.ErrInvalidMapping, b.Column, raw)
			}
			parsed = parseBlocks(text)
			blocks[b.Column] = parsed
		}
		if v, ok := parsed[b.Field]; ok {
			if b.Field == model.KeyField {
				rec[b.Field] = issueKey(v)
			} else {
				rec[b.Field] = v
			}
		}
	}
	return rec, nil
}

// FormatRecord converts a display-shape record back to storage columns. The
// key field is never written. Fields absent from rec are skipped; present
// but empty fields are written as empty blocks.
func FormatRecord(rec UiRecord, m model.FieldMapping) map[string]interface{} {
	rev := RevContentMap(m)
	out := make(map[string]interface{})

	for _, b := range m {
		if b.Field == model.KeyField {
			continue
		}
		v, ok := rec[b.Field]
		if !ok {
			continue
		}
		if rev[b.Column] == 1 {
			out[b.Column] = v
			continue
		}
		prev, _ := out[b.Column].(string)
		out[b.Column] = prev + block(b.Field, Text(v))
	}
	return out
}

func block(field, value string) string {
	var sb strings.Builder
	sb.WriteString("**" + field + "**:\n")
	if value != "" {
		sb.WriteString(" " + value + "\n")
	}
	sb.WriteString("<br/>\n")
	if linkFields[field] {
		sb.WriteString("\n")
	}
	return sb.String()
}

func parseBlocks(text string) map[string]string {
	out := make(map[string]string)
	for _, m := range blockRegex.FindAllStringSubmatch(text, -1) {
		out[m[1]] = m[2]
	}
	return out
}

// issueKey extracts the issue key from a link like
// "JIRA_AGILE-[PROJ-1](https://host/browse/PROJ-1)".
func issueKey(v interface{}) interface{} {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if m := keyRegex.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(s)
}

// Text renders a field value as text. Whole numbers print without a
// fraction; nil is the empty string.
func Text(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	default:
		return fmt.Sprint(t)
	}
}

// SameValue compares two field values ignoring surrounding whitespace.
// Values of different types compare by their text form.
func SameValue(a, b interface{}) bool {
	return strings.TrimSpace(Text(a)) == strings.TrimSpace(Text(b))
}
