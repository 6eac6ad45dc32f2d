package memory

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("<html></html>")
	uri, err := store.PutObject(context.Background(), "failures/a/run.html", "text/html", bytes.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, "memory://failures/a/run.html", uri)

	payload[0] = 'X'
	body, contentType, ok := store.Object("failures/a/run.html")
	require.True(t, ok)
	require.Equal(t, "<html></html>", string(body))
	require.Equal(t, "text/html", contentType)
	require.Equal(t, []string{"failures/a/run.html"}, store.Paths())
}

func TestBlobStoreRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	_, err := NewBlobStore().PutObject(context.Background(), " ", "", strings.NewReader("x"))
	require.Error(t, err)
}

func TestBlobStoreEvictsOldestPastLimit(t *testing.T) {
	t.Parallel()

	store := NewBlobStoreWithLimit(3)
	ctx := context.Background()
	for i := range 5 {
		_, err := store.PutObject(ctx, fmt.Sprintf("failures/yogan/run-%d.html", i), "text/html", strings.NewReader("x"))
		require.NoError(t, err)
	}
	require.Equal(t, []string{
		"failures/yogan/run-2.html",
		"failures/yogan/run-3.html",
		"failures/yogan/run-4.html",
	}, store.Paths())
	_, _, ok := store.Object("failures/yogan/run-0.html")
	require.False(t, ok)

	// Rewriting a path makes it the newest entry.
	_, err := store.PutObject(ctx, "failures/yogan/run-2.html", "text/html", strings.NewReader("y"))
	require.NoError(t, err)
	_, err = store.PutObject(ctx, "failures/myaku/run-5.html", "text/html", strings.NewReader("z"))
	require.NoError(t, err)
	require.Equal(t, []string{
		"failures/myaku/run-5.html",
		"failures/yogan/run-2.html",
		"failures/yogan/run-4.html",
	}, store.Paths())
	body, _, ok := store.Object("failures/yogan/run-2.html")
	require.True(t, ok)
	require.Equal(t, "y", string(body))
}

func TestNewBlobStoreUsesDefaultLimit(t *testing.T) {
	t.Parallel()

	store := NewBlobStoreWithLimit(0)
	ctx := context.Background()
	for i := range DefaultBlobLimit + 10 {
		_, err := store.PutObject(ctx, fmt.Sprintf("failures/a/%03d.html", i), "text/html", strings.NewReader("x"))
		require.NoError(t, err)
	}
	require.Len(t, store.Paths(), DefaultBlobLimit)
}
