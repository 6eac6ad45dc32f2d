package detector

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeuristic_ShouldPromote_EmptyBody(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	require.True(t, h.ShouldPromote(http.StatusOK, nil))
}

func TestHeuristic_ShouldPromote_SPAMarkers(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	require.True(t, h.ShouldPromote(http.StatusOK, []byte(`<div id="__next"></div>`)))
}

func TestHeuristic_ShouldPromote_ScriptDensity(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(1000)
	require.True(t, h.ShouldPromote(http.StatusOK, []byte(`<html><script>var a=1;</script><p>t</p></html>`)))
}

func TestHeuristic_ShouldPromote_PlainTable(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	body := `<html><body><table class="tbl_rsv"><tbody>` +
		strings.Repeat(`<tr><td>10:00</td><td>●</td></tr>`, 10) +
		`</tbody></table></body></html>`
	require.False(t, h.ShouldPromote(http.StatusOK, []byte(body)))
}

func TestHeuristic_ShouldPromote_DisabledForNotFound(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	require.False(t, h.ShouldPromote(http.StatusNotFound, []byte("not found")))
}

func TestHeuristic_ShouldPromote_Challenge(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	body := []byte(`<html><head><title>Just a moment...</title></head></html>`)
	require.True(t, h.ShouldPromote(http.StatusForbidden, body))
	require.True(t, IsChallenge(body))
	require.False(t, h.ShouldPromote(http.StatusForbidden, []byte("forbidden")))
}
