// Package acl decides which users may read and write a dataset.
package acl

import (
	"context"
	"strings"
)

// Anyone in a dataset's user list opens it to every user.
const Anyone = "*"

// Checker reports whether user may access dataset.
type Checker interface {
	Allowed(ctx context.Context, dataset, user string) (bool, error)
}

// Rules maps dataset names to their allowed users. Datasets without an
// entry are open. Dataset names compare case-insensitively.
type Rules map[string][]string

// ConfigChecker is a Checker backed by static rules from configuration.
type ConfigChecker struct {
	rules Rules
}

var _ Checker = (*ConfigChecker)(nil)

// NewConfigChecker returns a checker for rules. A nil Rules allows all.
func NewConfigChecker(rules Rules) *ConfigChecker {
	lower := make(Rules, len(rules))
	for ds, users := range rules {
		lower[strings.ToLower(ds)] = users
	}
	return &ConfigChecker{rules: lower}
}

// Allowed implements Checker. User names compare case-insensitively.
func (c *ConfigChecker) Allowed(_ context.Context, dataset, user string) (bool, error) {
	users, ok := c.rules[strings.ToLower(dataset)]
	if !ok {
		return true, nil
	}
	for _, u := range users {
		if u == Anyone || strings.EqualFold(u, user) {
			return true, nil
		}
	}
	return false, nil
}
