package availability

import (
	"context"
	"errors"
	"fmt"
)

// FailureCause classifies why an adapter run failed.
type FailureCause string

// Scrape failure causes.
const (
	CauseTimeout    FailureCause = "timeout"
	CauseStructure  FailureCause = "structure"
	CauseChallenge  FailureCause = "challenge"
	CauseNavigation FailureCause = "navigation"
	CauseInternal   FailureCause = "internal"
)

// ErrScriptUnsupported is returned by pages that cannot execute JavaScript.
var ErrScriptUnsupported = errors.New("page does not support script execution")

// ScrapeFailure is a source-local adapter failure. It is recorded by the health
// tracker and never aborts a run.
type ScrapeFailure struct {
	Source string
	Cause  FailureCause
	Err    error
}

// Fail builds a ScrapeFailure with a formatted cause message.
func Fail(source string, cause FailureCause, format string, args ...any) *ScrapeFailure {
	return &ScrapeFailure{Source: source, Cause: cause, Err: fmt.Errorf(format, args...)}
}

func (e *ScrapeFailure) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("scrape %s failed (%s)", e.Source, e.Cause)
	}
	return fmt.Sprintf("scrape %s failed (%s): %v", e.Source, e.Cause, e.Err)
}

func (e *ScrapeFailure) Unwrap() error {
	return e.Err
}

// AsScrapeFailure classifies any adapter error as a ScrapeFailure for source.
// Deadline and cancellation errors become timeouts.
func AsScrapeFailure(source string, err error) *ScrapeFailure {
	if err == nil {
		return nil
	}
	var sf *ScrapeFailure
	if errors.As(err, &sf) {
		if sf.Source == "" {
			sf.Source = source
		}
		return sf
	}
	cause := CauseNavigation
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		cause = CauseTimeout
	case errors.Is(err, ErrScriptUnsupported):
		cause = CauseStructure
	}
	return &ScrapeFailure{Source: source, Cause: cause, Err: err}
}

// ConfigurationError reports a missing or invalid external setting. It degrades
// the named feature rather than the whole process.
type ConfigurationError struct {
	Feature string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s disabled: %s", e.Feature, e.Reason)
}
