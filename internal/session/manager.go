package session

import (
	"context"
	"fmt"
	"path"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/JakeFAU/private-sauna-availability/internal/availability"
)

const (
	artifactTimeout = 10 * time.Second
	// drainTimeout bounds how long a timed-out run waits for its adapter to
	// return before the page is released.
	drainTimeout = 2 * time.Second
)

// Config controls page selection and failure capture.
type Config struct {
	// ArtifactPrefix is prepended to failure HTML paths.
	ArtifactPrefix string
}

// Manager acquires pages for adapter runs.
type Manager struct {
	cfg       Config
	browser   BrowserPages
	static    StaticPages
	detector  Detector
	artifacts availability.BlobStore
	logger    *zap.Logger
	drain     time.Duration
}

// NewManager wires a manager. browser may be nil when headless is disabled;
// artifacts may be nil to skip failure capture.
func NewManager(
	cfg Config,
	browser BrowserPages,
	static StaticPages,
	detector Detector,
	artifacts availability.BlobStore,
	logger *zap.Logger,
) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:       cfg,
		browser:   browser,
		static:    static,
		detector:  detector,
		artifacts: artifacts,
		logger:    logger,
		drain:     drainTimeout,
	}
}

// Acquire returns a page for opts and an idempotent release func.
func (m *Manager) Acquire(ctx context.Context, opts availability.PageOptions) (availability.Page, func(), error) {
	switch {
	case m.browser != nil && opts.Script:
		tab, err := m.browser.Open(ctx, opts)
		if err != nil {
			return nil, nil, fmt.Errorf("open browser page: %w", err)
		}
		return tab, sync.OnceFunc(tab.Close), nil
	case m.browser != nil && m.detector != nil:
		p := &promotingPage{
			static:   m.static.Open(opts),
			browser:  m.browser,
			detector: m.detector,
			opts:     opts,
		}
		return p, sync.OnceFunc(p.close), nil
	default:
		return &staticPage{StaticPage: m.static.Open(opts), detector: m.detector}, func() {}, nil
	}
}

// Request describes one adapter run.
type Request struct {
	Source  string
	RunID   string
	Options availability.PageOptions
	Timeout time.Duration
}

// ScrapeFunc performs the adapter's work on page.
type ScrapeFunc func(ctx context.Context, page availability.Page) (availability.Snapshot, error)

type scrapeResult struct {
	snap availability.Snapshot
	err  error
}

// Run acquires a page, runs fn under a hard timeout and releases the page on
// every exit path. Every error returned is a *availability.ScrapeFailure.
func (m *Manager) Run(ctx context.Context, req Request, fn ScrapeFunc) (availability.Snapshot, error) {
	ctx, span := otel.Tracer("session").Start(ctx, "session.Run")
	span.SetAttributes(attribute.String("source", req.Source))
	defer span.End()

	runCtx := ctx
	cancel := func() {}
	if req.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, req.Timeout)
	}
	defer cancel()

	page, release, err := m.Acquire(runCtx, req.Options)
	if err != nil {
		return availability.Snapshot{}, m.classify(runCtx, req, err)
	}
	defer release()

	done := make(chan scrapeResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("adapter panicked",
					zap.String("source", req.Source),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()))
				done <- scrapeResult{err: availability.Fail(req.Source, availability.CauseInternal, "panic: %v", r)}
			}
		}()
		snap, err := fn(runCtx, page)
		done <- scrapeResult{snap: snap, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			m.captureFailure(ctx, req, page)
			span.RecordError(res.err)
			return availability.Snapshot{}, m.classify(runCtx, req, res.err)
		}
		return res.snap, nil
	case <-runCtx.Done():
		err := runCtx.Err()
		span.RecordError(err)
		m.awaitAdapter(req, done)
		return availability.Snapshot{}, &availability.ScrapeFailure{
			Source: req.Source,
			Cause:  availability.CauseTimeout,
			Err:    fmt.Errorf("run exceeded %s: %w", req.Timeout, err),
		}
	}
}

// awaitAdapter gives a cancelled adapter a bounded window to return so the
// page is not closed under it, and the next run's tab does not overlap it.
func (m *Manager) awaitAdapter(req Request, done <-chan scrapeResult) {
	if m.drain <= 0 {
		return
	}
	t := time.NewTimer(m.drain)
	defer t.Stop()
	select {
	case <-done:
	case <-t.C:
		m.logger.Warn("adapter still running after timeout; releasing page",
			zap.String("source", req.Source), zap.Duration("waited", m.drain))
	}
}

// classify converts err to a ScrapeFailure, reporting a timeout whenever the run's deadline passed.
func (m *Manager) classify(runCtx context.Context, req Request, err error) *availability.ScrapeFailure {
	sf := availability.AsScrapeFailure(req.Source, err)
	if runCtx.Err() != nil && sf.Cause != availability.CauseTimeout {
		sf = &availability.ScrapeFailure{Source: req.Source, Cause: availability.CauseTimeout, Err: err}
	}
	return sf
}

// captureFailure saves the page HTML so broken selectors can be diagnosed.
func (m *Manager) captureFailure(ctx context.Context, req Request, page availability.Page) {
	if m.artifacts == nil || req.RunID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), artifactTimeout)
	defer cancel()
	html, err := page.HTML(ctx)
	if err != nil || html == "" {
		return
	}
	p := path.Join(m.cfg.ArtifactPrefix, req.Source, req.RunID+".html")
	uri, err := m.artifacts.PutObject(ctx, p, "text/html; charset=utf-8", strings.NewReader(html))
	if err != nil {
		m.logger.Warn("failure artifact not saved", zap.String("source", req.Source), zap.Error(err))
		return
	}
	m.logger.Info("failure artifact saved", zap.String("source", req.Source), zap.String("uri", uri))
}
