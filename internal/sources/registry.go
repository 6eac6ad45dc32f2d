package sources

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/private-sauna-availability/internal/availability"
	"github.com/JakeFAU/private-sauna-availability/internal/challenge"
)

// DefaultUserAgent is sent when neither config nor a solver supplies one.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Solver clears anti-bot challenges.
type Solver interface {
	Available(ctx context.Context) bool
	Solve(ctx context.Context, url string, timeout time.Duration) (challenge.Solution, error)
}

// Deps are shared by every adapter.
type Deps struct {
	// Settle is the pause after navigations and clicks while the page re-renders.
	Settle       time.Duration
	UserAgent    string
	Solver       Solver
	// SolveTimeout bounds one challenge solve; zero uses DefaultSolveTimeout.
	SolveTimeout time.Duration
	Logger       *zap.Logger
}

func (d Deps) withDefaults() Deps {
	if d.UserAgent == "" {
		d.UserAgent = DefaultUserAgent
	}
	if d.SolveTimeout <= 0 {
		d.SolveTimeout = DefaultSolveTimeout
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return d
}

// Registry lists every known adapter in display order.
type Registry struct {
	adapters []availability.Adapter
}

// NewRegistry builds all site adapters.
func NewRegistry(deps Deps) *Registry {
	deps = deps.withDefaults()
	return &Registry{adapters: []availability.Adapter{
		NewTenjin(deps),
		NewMyaku(deps),
		NewYogan(deps),
		NewGflow(deps),
	}}
}

// All returns every adapter.
func (r *Registry) All() []availability.Adapter {
	return append([]availability.Adapter(nil), r.adapters...)
}

// Enabled returns the adapters named by keys, in registry order.
func (r *Registry) Enabled(keys []string) ([]availability.Adapter, error) {
	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}
	var out []availability.Adapter
	for _, a := range r.adapters {
		if want[a.Source().Key] {
			out = append(out, a)
			delete(want, a.Source().Key)
		}
	}
	for k := range want {
		return nil, fmt.Errorf("unknown source %q", k)
	}
	return out, nil
}

// Sources returns the identities of adapters, in order.
func Sources(adapters []availability.Adapter) []availability.Source {
	out := make([]availability.Source, 0, len(adapters))
	for _, a := range adapters {
		out = append(out, a.Source())
	}
	return out
}

// settle waits d or until ctx ends.
func settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// reference is the date month/day labels are resolved against.
func reference(window []availability.DateKey) time.Time {
	if len(window) == 0 {
		return time.Now()
	}
	t, err := window[0].Time(time.UTC)
	if err != nil {
		return time.Now()
	}
	return t
}

// inWindow keeps only dates the run asked for.
func inWindow(window []availability.DateKey) map[availability.DateKey]bool {
	out := make(map[availability.DateKey]bool, len(window))
	for _, d := range window {
		out[d] = true
	}
	return out
}
