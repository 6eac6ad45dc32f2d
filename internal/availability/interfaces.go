package availability

import (
	"context"
	"io"
	"time"
)

// Cookie is a browser cookie handed to a page before navigation.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite"`
}

// PageOptions describes what an adapter needs from its page.
type PageOptions struct {
	// Script marks sources whose pages only render availability after JavaScript runs.
	Script bool
	// UserAgent overrides the session default when set.
	UserAgent string
}

// Page is a live fetch session handed to one adapter run.
type Page interface {
	Navigate(ctx context.Context, url string) error
	HTML(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	// Text returns the rendered text of the document body.
	Text(ctx context.Context) (string, error)
	Evaluate(ctx context.Context, script string, out any) error
	SetUserAgent(ctx context.Context, userAgent string) error
	SetCookies(ctx context.Context, cookies []Cookie) error
	// AddInitScript registers a script evaluated before any page script on every navigation.
	AddInitScript(ctx context.Context, script string) error
}

// Adapter extracts one source's availability. It returns a value and never
// touches shared state; the orchestrator commits the result.
type Adapter interface {
	Source() Source
	PageOptions() PageOptions
	Scrape(ctx context.Context, page Page, window []DateKey) (Snapshot, error)
}

// RunScoped is implemented by adapters holding caches that must live for exactly one run.
type RunScoped interface {
	ResetRun()
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Hasher computes content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// BlobStore writes diagnostic artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes run events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
