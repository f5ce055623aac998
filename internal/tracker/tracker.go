// Package tracker talks to the issue tracker backing tracker-bound datasets.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	jira "github.com/andygrunwald/go-jira"
)

// ErrNotConfigured is returned when no tracker URL is configured.
var ErrNotConfigured = errors.New("tracker not configured")

// Sprint is a sprint of an agile board.
type Sprint struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Client is the tracker access used by the edit reconciler.
type Client interface {
	FindIssue(ctx context.Context, key string) (*jira.Issue, error)
	UpdateIssue(ctx context.Context, key string, fields map[string]interface{}) error
	GetAllSprints(ctx context.Context, boardID string) ([]Sprint, error)
}

// Config holds the connection settings for a JIRA server.
type Config struct {
	URL      string
	Username string
	Token    string
	// HTTPClient overrides the transport. Basic auth is used when nil.
	HTTPClient *http.Client
}

// JiraClient implements Client on top of go-jira.
type JiraClient struct {
	client  *jira.Client
	baseURL string
}

var _ Client = (*JiraClient)(nil)

// NewJiraClient connects to the server at cfg.URL.
func NewJiraClient(cfg Config) (*JiraClient, error) {
	if cfg.URL == "" {
		return nil, ErrNotConfigured
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		tp := jira.BasicAuthTransport{
			Username: cfg.Username,
			Password: cfg.Token,
		}
		httpClient = tp.Client()
	}

	client, err := jira.NewClient(httpClient, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracker client: %w", err)
	}

	return &JiraClient{
		client:  client,
		baseURL: strings.TrimRight(cfg.URL, "/"),
	}, nil
}

// BaseURL returns the server URL without a trailing slash.
func (c *JiraClient) BaseURL() string {
	return c.baseURL
}

// FindIssue fetches one issue by key.
func (c *JiraClient) FindIssue(ctx context.Context, key string) (*jira.Issue, error) {
	issue, resp, err := c.client.Issue.GetWithContext(ctx, key, nil)
	if err != nil {
		return nil, jira.NewJiraError(resp, err)
	}
	return issue, nil
}

// UpdateIssue sets fields on an issue in one request.
func (c *JiraClient) UpdateIssue(ctx context.Context, key string, fields map[string]interface{}) error {
	resp, err := c.client.Issue.UpdateIssueWithContext(ctx, key, map[string]interface{}{"fields": fields})
	if err != nil {
		return jira.NewJiraError(resp, err)
	}
	return nil
}

// GetAllSprints lists every sprint of a board, following pagination.
func (c *JiraClient) GetAllSprints(ctx context.Context, boardID string) ([]Sprint, error) {
	id, err := strconv.Atoi(boardID)
	if err != nil {
		return nil, fmt.Errorf("invalid board id %q: %w", boardID, err)
	}

	var sprints []Sprint
	opts := &jira.GetAllSprintsOptions{}
	for {
		list, resp, err := c.client.Board.GetAllSprintsWithOptionsWithContext(ctx, id, opts)
		if err != nil {
			return nil, jira.NewJiraError(resp, err)
		}
		for _, s := range list.Values {
			sprints = append(sprints, Sprint{ID: s.ID, Name: s.Name})
		}
		if list.IsLast || len(list.Values) == 0 {
			return sprints, nil
		}
		opts.StartAt = list.StartAt + len(list.Values)
	}
}
