package preflight

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkerLifecycle(t *testing.T) {
	root := t.TempDir()

	assert.True(t, NeedsCheck(root))

	require.NoError(t, MarkPassed(root))
	assert.False(t, NeedsCheck(root))

	age := MarkerAge(root)
	assert.GreaterOrEqual(t, age, time.Duration(0))
	assert.Less(t, age, time.Minute)

	require.NoError(t, ClearMarker(root))
	assert.True(t, NeedsCheck(root))
}

func TestClearMarkerMissingIsNoop(t *testing.T) {
	assert.NoError(t, ClearMarker(t.TempDir()))
}

func TestMarkerAgeUnreadable(t *testing.T) {
	assert.Equal(t, time.Duration(0), MarkerAge(t.TempDir()))
}
