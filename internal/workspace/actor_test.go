package workspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveActor(t *testing.T) {
	t.Run("flag value takes precedence", func(t *testing.T) {
		t.Setenv("GRIDSYNC_ACTOR", "env-actor")
		t.Setenv("USER", "env-user")
		assert.Equal(t, "flag-actor", ResolveActor("flag-actor"))
	})

	t.Run("GRIDSYNC_ACTOR when no flag", func(t *testing.T) {
		t.Setenv("GRIDSYNC_ACTOR", "env-actor")
		t.Setenv("USER", "env-user")
		assert.Equal(t, "env-actor", ResolveActor(""))
	})

	t.Run("USER when no flag or GRIDSYNC_ACTOR", func(t *testing.T) {
		t.Setenv("GRIDSYNC_ACTOR", "")
		t.Setenv("USER", "env-user")
		assert.Equal(t, "env-user", ResolveActor(""))
	})

	t.Run("unknown as fallback", func(t *testing.T) {
		t.Setenv("GRIDSYNC_ACTOR", "")
		t.Setenv("USER", "")
		assert.Equal(t, "unknown", ResolveActor(""))
	})
}
