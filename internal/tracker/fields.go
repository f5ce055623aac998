package tracker

// Display fields with special handling during edits.
const (
	FieldKey         = "key"
	FieldSummary     = "summary"
	FieldDescription = "description"
	FieldAssignee    = "assignee"
	FieldStoryPoints = "Story Points"
	FieldSprintName  = "sprintName"
	FieldType        = "type"
	FieldStatus      = "status"
	FieldPriority    = "priority"
	FieldReporter    = "reporter"
	FieldLabels      = "labels"
	FieldCreated     = "created"
	FieldUpdated     = "updated"

	// FieldJiraSummary is derived from other fields and never edited.
	FieldJiraSummary = "jiraSummary"
)

// Unassigned is the assignee value of issues nobody owns.
const Unassigned = "NotSet"

// ValueType is the primitive type a tracker field accepts.
type ValueType string

// Value types.
const (
	TypeString ValueType = "string"
	TypeNumber ValueType = "number"
)

// editable lists the display fields that may be changed from the grid.
var editable = map[string]ValueType{
	FieldDescription: TypeString,
	FieldStoryPoints: TypeNumber,
	FieldSummary:     TypeString,
	FieldAssignee:    TypeString,
	FieldSprintName:  TypeString,
}

// customFields maps display fields onto tracker custom field ids.
var customFields = map[string]string{
	FieldStoryPoints: "customfield_11890",
	FieldSprintName:  "customfield_11990",
}

// knownFields are the tracker fields fetched and written by gridsync.
var knownFields = map[string]bool{
	"summary": true, "assignee": true, "customfield_25901": true, "issuetype": true,
	"customfield_26397": true, "customfield_11504": true, "description": true,
	"priority": true, "reporter": true, "customfield_21091": true, "status": true,
	"customfield_25792": true, "customfield_25907": true, "customfield_25802": true,
	"created": true, "customfield_22013": true, "customfield_25582": true,
	"customfield_25588": true, "customfield_25791": true, "versions": true,
	"parent": true, "subtasks": true, "issuelinks": true, "updated": true,
	"votes": true, "customfield_25570": true, "labels": true,
	"customfield_25693": true, "customfield_25518": true, "customfield_12790": true,
	"customfield_11890": true, "customfield_11990": true, "jiraSummary": true,
	"fixVersions": true, "customfield_28097": true,
}

// EditableType returns the declared type of an editable field.
func EditableType(field string) (ValueType, bool) {
	t, ok := editable[field]
	return t, ok
}

// IsEditable reports whether field may be changed from the grid.
func IsEditable(field string) bool {
	_, ok := editable[field]
	return ok
}

// TrackerField translates a display field to the tracker's field id.
func TrackerField(field string) string {
	if id, ok := customFields[field]; ok {
		return id
	}
	return field
}

// IsKnownField reports whether the tracker field id is one gridsync manages.
func IsKnownField(id string) bool {
	return knownFields[id]
}
