package pick

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusExternalMapping(t *testing.T) {
	t.Parallel()

	require.Equal(t, ExternalPending, StatusPendingReview.External())
	require.Equal(t, ExternalApproved, StatusApproved.External())
	require.Equal(t, ExternalRetry, StatusSearching.External())
	require.Equal(t, ExternalRetry, StatusExhausted.External())
}

func TestStatusFromExternalRoundTrip(t *testing.T) {
	t.Parallel()

	require.Equal(t, StatusPendingReview, StatusFromExternal(ExternalPending, ""))
	require.Equal(t, StatusApproved, StatusFromExternal(ExternalApproved, ""))
	require.Equal(t, StatusSearching, StatusFromExternal(ExternalRetry, ""))
	require.Equal(t, StatusExhausted, StatusFromExternal(ExternalRetry, ExhaustedNotePrefix+" (last rejected: https://x/a.png)"))
}

func TestStatusTerminal(t *testing.T) {
	t.Parallel()

	require.True(t, StatusApproved.Terminal())
	require.True(t, StatusExhausted.Terminal())
	require.False(t, StatusSearching.Terminal())
	require.False(t, StatusPendingReview.Terminal())
}

func TestExclusionSet(t *testing.T) {
	t.Parallel()

	s := NewExclusionSet("https://a/img.png")
	s.Add("")
	s.Add("https://b/img.jpg")

	require.Len(t, s, 2)
	require.True(t, s.Has("https://a/img.png"))
	require.False(t, s.Has("https://c/img.png"))

	clone := s.Clone()
	clone.Add("https://c/img.png")
	require.False(t, s.Has("https://c/img.png"))
}
