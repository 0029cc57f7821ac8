package zones

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestByName_Normalizes(t *testing.T) {
	b, ok := ByName("  HAMRA ")
	require.True(t, ok)
	require.Equal(t, "hamra", b.Name)
}

func TestForCoordinates_PrefersSpecificOverBroad(t *testing.T) {
	b, ok := ForCoordinates(33.897, 35.480)
	require.True(t, ok)
	require.Equal(t, "hamra", b.Name)
}

func TestForCoordinates_NoMatch(t *testing.T) {
	_, ok := ForCoordinates(0, 0)
	require.False(t, ok)
}
