// Package workspace resolves the runtime context of gridsync commands:
// who is acting, where the data directory is and which dataset is selected.
package workspace

import "os"

// ResolveActor returns the acting user name following priority order:
// 1. flagValue (--actor flag) if non-empty
// 2. $GRIDSYNC_ACTOR environment variable if set
// 3. $USER environment variable if set
// 4. "unknown" as fallback
func ResolveActor(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if actor := os.Getenv("GRIDSYNC_ACTOR"); actor != "" {
		return actor
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "unknown"
}
