// Package browser wraps a controllable browser session behind a small
// interface so the sign-in flow and the workspace scraper can run against a
// real Chrome (through go-rod) or against browsertest.Fake.
package browser

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors
var (
	// ErrElementTimeout is returned by Browser.WaitVisible when the selector
	// did not become visible in time. Driver turns it into TimedOut.
	ErrElementTimeout = errors.New("element not visible before timeout")

	// ErrUITimeout means an element the caller required never became
	// visible, or the page never finished loading.
	ErrUITimeout = errors.New("ui timeout")

	// ErrTransientSession wraps browser or session failures during
	// navigation and interaction. Callers retry the enclosing attempt.
	ErrTransientSession = errors.New("transient browser session failure")
)

// Fixed UI timings.
const (
	DefaultVisibilityTimeout = 10 * time.Second
	DefaultReadyTimeout      = 30 * time.Second
	DefaultReadyPollInterval = 100 * time.Millisecond
)

// ReadyStateComplete is the document.readyState of a fully loaded page.
const ReadyStateComplete = "complete"

// Browser is one exclusively owned browser session.
type Browser interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	// WaitVisible blocks until selector is visible, returning
	// ErrElementTimeout once timeout has passed.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	Click(ctx context.Context, selector string) error
	// Type enters value into selector and submits it with Enter.
	Type(ctx context.Context, selector, value string) error
	ReadyState(ctx context.Context) (string, error)
	PageSource(ctx context.Context) (string, error)
	Quit() error
}

// Factory opens a new browser session.
type Factory func(ctx context.Context) (Browser, error)
