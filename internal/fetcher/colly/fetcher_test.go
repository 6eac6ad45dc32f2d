package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/private-sauna-availability/internal/availability"
)

const calendarHTML = `<html><head><title> 予約カレンダー </title><script>var x=1;</script></head>
<body><h1>Standard</h1><table class="tbl_rsv"><tbody><tr><td>10:00</td><td>●</td></tr></tbody></table></body></html>`

func TestPageNavigateAndRead(t *testing.T) {
	t.Parallel()

	var gotUA, gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotCookie = r.Header.Get("Cookie")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(calendarHTML))
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "default-agent", Timeout: time.Second}, nil)
	page := f.Open(availability.PageOptions{UserAgent: "sauna-agent"})
	ctx := context.Background()

	require.NoError(t, page.SetCookies(ctx, []availability.Cookie{
		{Name: "cf_clearance", Value: "abc", Domain: "127.0.0.1"},
		{Name: "other", Value: "zzz", Domain: ".example.com"},
	}))
	require.NoError(t, page.Navigate(ctx, srv.URL))
	require.Equal(t, "sauna-agent", gotUA)
	require.Equal(t, "cf_clearance=abc", gotCookie)
	require.Equal(t, http.StatusOK, page.Status())

	title, err := page.Title(ctx)
	require.NoError(t, err)
	require.Equal(t, "予約カレンダー", title)

	text, err := page.Text(ctx)
	require.NoError(t, err)
	require.Contains(t, text, "Standard")
	require.Contains(t, text, "10:00")
	require.NotContains(t, text, "var x")

	html, err := page.HTML(ctx)
	require.NoError(t, err)
	require.Contains(t, html, "tbl_rsv")

	require.ErrorIs(t, page.Evaluate(ctx, "1+1", nil), availability.ErrScriptUnsupported)
}

func TestPageNavigateErrorStatusKeepsBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`<html><head><title>Just a moment...</title></head></html>`))
	}))
	defer srv.Close()

	page := New(Config{Timeout: time.Second}, nil).Open(availability.PageOptions{})
	err := page.Navigate(context.Background(), srv.URL)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusForbidden, statusErr.Code)
	require.Contains(t, string(page.Body()), "Just a moment")

	title, err := page.Title(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Just a moment...", title)
}

func TestPageReadsBeforeNavigate(t *testing.T) {
	t.Parallel()

	page := New(Config{}, nil).Open(availability.PageOptions{})
	_, err := page.HTML(context.Background())
	require.Error(t, err)
	_, err = page.Title(context.Background())
	require.Error(t, err)
}

func TestPageNavigateCanceled(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	page := New(Config{Timeout: 5 * time.Second}, nil).Open(availability.PageOptions{})
	require.ErrorIs(t, page.Navigate(ctx, srv.URL), context.DeadlineExceeded)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{}, nil)
	var result fetchResult
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, requestHeaders{userAgent: "ua", cookie: "a=b"}, &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	require.Equal(t, "ua", collyReq.Headers.Get("User-Agent"))
	require.Equal(t, "a=b", collyReq.Headers.Get("Cookie"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("body"),
		Request:    &colly.Request{URL: mustParseURL(t, "https://select-type.com/rsv/")},
	})
	require.Equal(t, http.StatusOK, result.status)
	require.Equal(t, "body", string(result.body))

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")
}

func TestCookieHeader(t *testing.T) {
	t.Parallel()

	cookies := []availability.Cookie{
		{Name: "a", Value: "1", Domain: ".reserva.be"},
		{Name: "b", Value: "2", Domain: "spot-ly.jp"},
		{Name: "c", Value: "3"},
	}
	require.Equal(t, "a=1; c=3", cookieHeader("https://reserva.be/saunayogan", cookies))
	require.Equal(t, "b=2; c=3", cookieHeader("https://spot-ly.jp/ja/hotels/176", cookies))
	require.Empty(t, cookieHeader("https://example.com", nil))
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
