package availability

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAsScrapeFailureClassifies(t *testing.T) {
	t.Parallel()

	timeout := AsScrapeFailure("a", fmt.Errorf("navigate: %w", context.DeadlineExceeded))
	require.Equal(t, CauseTimeout, timeout.Cause)
	require.Equal(t, "a", timeout.Source)

	script := AsScrapeFailure("a", ErrScriptUnsupported)
	require.Equal(t, CauseStructure, script.Cause)

	nav := AsScrapeFailure("a", errors.New("connection reset"))
	require.Equal(t, CauseNavigation, nav.Cause)

	orig := Fail("", CauseChallenge, "challenge page %q", "Just a moment")
	got := AsScrapeFailure("b", fmt.Errorf("wrapped: %w", orig))
	require.Same(t, orig, got)
	require.Equal(t, "b", got.Source)
	require.Contains(t, got.Error(), "challenge")

	require.Nil(t, AsScrapeFailure("a", nil))
}
