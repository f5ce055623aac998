// Package trackertest provides an in-memory tracker.Client for tests.
package trackertest

import (
	"context"
	"fmt"
	"sync"

	jira "github.com/andygrunwald/go-jira"

	"github.com/user/gridsync/internal/tracker"
)

// Update is one recorded UpdateIssue call.
type Update struct {
	Key    string
	Fields map[string]interface{}
}

// Fake is a tracker.Client backed by maps. Set the *Err fields to make the
// matching call fail.
type Fake struct {
	mu      sync.Mutex
	issues  map[string]*jira.Issue
	sprints map[string][]tracker.Sprint

	FindErr    error
	UpdateErr  error
	SprintsErr error

	Finds        []string
	Updates      []Update
	SprintLookup []string
}

var _ tracker.Client = (*Fake)(nil)

// New returns an empty fake tracker.
func New() *Fake {
	return &Fake{
		issues:  make(map[string]*jira.Issue),
		sprints: make(map[string][]tracker.Sprint),
	}
}

// AddIssue registers an issue returned by FindIssue.
func (f *Fake) AddIssue(issue *jira.Issue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issues[issue.Key] = issue
}

// AddSprints registers the sprints of a board.
func (f *Fake) AddSprints(boardID string, sprints ...tracker.Sprint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sprints[boardID] = append(f.sprints[boardID], sprints...)
}

// FindIssue implements tracker.Client.
func (f *Fake) FindIssue(_ context.Context, key string) (*jira.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Finds = append(f.Finds, key)
	if f.FindErr != nil {
		return nil, f.FindErr
	}
	issue, ok := f.issues[key]
	if !ok {
		return nil, fmt.Errorf("issue %s does not exist", key)
	}
	return issue, nil
}

// UpdateIssue implements tracker.Client.
func (f *Fake) UpdateIssue(_ context.Context, key string, fields map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Updates = append(f.Updates, Update{Key: key, Fields: fields})
	return f.UpdateErr
}

// GetAllSprints implements tracker.Client.
func (f *Fake) GetAllSprints(_ context.Context, boardID string) ([]tracker.Sprint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SprintLookup = append(f.SprintLookup, boardID)
	if f.SprintsErr != nil {
		return nil, f.SprintsErr
	}
	return f.sprints[boardID], nil
}

// Issue builds an issue with the given key and display fields. Recognized
// fields are summary, description, assignee, type, status, Story Points
// and sprintName.
func Issue(key string, fields map[string]interface{}) *jira.Issue {
	f := &jira.IssueFields{Unknowns: map[string]interface{}{}}
	for name, v := range fields {
		s, _ := v.(string)
		switch name {
		case tracker.FieldSummary:
			f.Summary = s
		case tracker.FieldDescription:
			f.Description = s
		case tracker.FieldAssignee:
			f.Assignee = &jira.User{Name: s}
		case tracker.FieldType:
			f.Type = jira.IssueType{Name: s}
		case tracker.FieldStatus:
			f.Status = &jira.Status{Name: s}
		case tracker.FieldStoryPoints:
			f.Unknowns[tracker.TrackerField(name)] = v
		case tracker.FieldSprintName:
			f.Unknowns[tracker.TrackerField(name)] = []interface{}{map[string]interface{}{"name": s}}
		}
	}
	return &jira.Issue{Key: key, Fields: f}
}
