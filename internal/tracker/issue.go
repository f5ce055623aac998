package tracker

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	jira "github.com/andygrunwald/go-jira"

	"github.com/user/gridsync/internal/fieldmap"
)

// KeyPrefix marks key column values that link to a tracker issue.
const KeyPrefix = "JIRA_AGILE-"

// sprintNameRegex pulls the name out of legacy sprint strings such as
// "com.atlassian.greenhopper.service.sprint.Sprint@1a[id=7,state=ACTIVE,name=Sprint 7,...]".
var sprintNameRegex = regexp.MustCompile(`name=([^,\]]*)`)

// BrowseURL returns the web address of an issue.
func BrowseURL(baseURL, key string) string {
	return strings.TrimRight(baseURL, "/") + "/browse/" + key
}

// KeyLink renders the key column value of an issue row.
func KeyLink(baseURL, key string) string {
	return fmt.Sprintf("%s[%s](%s)", KeyPrefix, key, BrowseURL(baseURL, key))
}

// RecordFromIssue converts a tracker issue to display shape.
func RecordFromIssue(issue *jira.Issue, baseURL string) fieldmap.UiRecord {
	rec := fieldmap.UiRecord{FieldKey: issue.Key}
	f := issue.Fields
	if f == nil {
		return rec
	}

	rec[FieldSummary] = f.Summary
	rec[FieldDescription] = f.Description
	rec[FieldType] = f.Type.Name
	rec[FieldLabels] = strings.Join(f.Labels, ", ")

	rec[FieldAssignee] = Unassigned
	if f.Assignee != nil && f.Assignee.Name != "" {
		rec[FieldAssignee] = f.Assignee.Name
	}
	if f.Reporter != nil {
		rec[FieldReporter] = f.Reporter.Name
	}
	if f.Status != nil {
		rec[FieldStatus] = f.Status.Name
	}
	if f.Priority != nil {
		rec[FieldPriority] = f.Priority.Name
	}
	if created := time.Time(f.Created); !created.IsZero() {
		rec[FieldCreated] = created.UTC().Format(time.RFC3339)
	}
	if updated := time.Time(f.Updated); !updated.IsZero() {
		rec[FieldUpdated] = updated.UTC().Format(time.RFC3339)
	}

	if points, ok := f.Unknowns[customFields[FieldStoryPoints]]; ok && points != nil {
		rec[FieldStoryPoints] = points
	}
	rec[FieldSprintName] = lastSprintName(f.Unknowns[customFields[FieldSprintName]])

	rec[FieldJiraSummary] = fmt.Sprintf("[%s](%s) %s", issue.Key, BrowseURL(baseURL, issue.Key), f.Summary)
	return rec
}

// lastSprintName returns the name of the most recent sprint in a sprint
// custom field value, or "" when the issue is in no sprint.
func lastSprintName(v interface{}) string {
	list, ok := v.([]interface{})
	if !ok || len(list) == 0 {
		return ""
	}
	switch s := list[len(list)-1].(type) {
	case map[string]interface{}:
		name, _ := s["name"].(string)
		return name
	case string:
		if m := sprintNameRegex.FindStringSubmatch(s); m != nil {
			return m[1]
		}
	}
	return ""
}
