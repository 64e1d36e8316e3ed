package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tonimelisma/pbi-refresh-monitor/internal/logger"
)

// Outcome is the result of waiting for an element.
type Outcome int

const (
	// Found means the element became visible and the action was performed.
	Found Outcome = iota
	// TimedOut means the element never became visible; nothing was done.
	TimedOut
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case TimedOut:
		return "timed out"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Require turns TimedOut into an ErrUITimeout for callers with no
// alternate path.
func (o Outcome) Require(selector string) error {
	if o == TimedOut {
		return fmt.Errorf("%w: %s", ErrUITimeout, selector)
	}
	return nil
}

// Driver layers bounded waits over a Browser. Element timeouts come back as
// a TimedOut outcome so callers can branch to an alternate UI path; every
// other browser failure wraps ErrTransientSession.
type Driver struct {
	browser Browser
	logger  logger.Logger

	VisibilityTimeout time.Duration
	ReadyTimeout      time.Duration
	ReadyPollInterval time.Duration
}

// NewDriver wraps b with the default timings.
func NewDriver(b Browser, log logger.Logger) *Driver {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &Driver{
		browser:           b,
		logger:            log,
		VisibilityTimeout: DefaultVisibilityTimeout,
		ReadyTimeout:      DefaultReadyTimeout,
		ReadyPollInterval: DefaultReadyPollInterval,
	}
}

// Browser returns the wrapped session.
func (d *Driver) Browser() Browser {
	return d.browser
}

// Interact waits for selector to become visible, then types value and
// submits it if a non-empty value is given, or clicks the element otherwise.
func (d *Driver) Interact(ctx context.Context, selector string, value ...string) (Outcome, error) {
	outcome, err := d.WaitVisible(ctx, selector)
	if err != nil || outcome == TimedOut {
		return outcome, err
	}

	if len(value) > 0 && value[0] != "" {
		err = d.browser.Type(ctx, selector, value[0])
	} else {
		err = d.browser.Click(ctx, selector)
	}
	if err != nil {
		if errors.Is(err, ErrElementTimeout) {
			d.logger.Debug("Element disappeared before interaction", "selector", selector)
			return TimedOut, nil
		}
		return Found, d.transient(ctx, "interacting with "+selector, err)
	}
	return Found, nil
}

// WaitVisible waits up to VisibilityTimeout for selector.
func (d *Driver) WaitVisible(ctx context.Context, selector string) (Outcome, error) {
	err := d.browser.WaitVisible(ctx, selector, d.VisibilityTimeout)
	switch {
	case err == nil:
		return Found, nil
	case errors.Is(err, ErrElementTimeout):
		d.logger.Debug("Element not visible", "selector", selector, "timeout", d.VisibilityTimeout.String())
		return TimedOut, nil
	default:
		return TimedOut, d.transient(ctx, "waiting for "+selector, err)
	}
}

// WaitForPageReady polls document.readyState until it is "complete". It
// gives up with ErrUITimeout after ReadyTimeout.
func (d *Driver) WaitForPageReady(ctx context.Context) error {
	deadline := time.Now().Add(d.ReadyTimeout)
	for {
		state, err := d.browser.ReadyState(ctx)
		if err != nil {
			return d.transient(ctx, "reading ready state", err)
		}
		if state == ReadyStateComplete {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: page still %q after %s", ErrUITimeout, state, d.ReadyTimeout)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.ReadyPollInterval):
		}
	}
}

// Navigate loads url in the session.
func (d *Driver) Navigate(ctx context.Context, url string) error {
	d.logger.Debug("Navigating", "url", url)
	if err := d.browser.Navigate(ctx, url); err != nil {
		return d.transient(ctx, "navigating", err)
	}
	return nil
}

// CurrentURL returns the URL the session is on.
func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	u, err := d.browser.CurrentURL(ctx)
	if err != nil {
		return "", d.transient(ctx, "reading current url", err)
	}
	return u, nil
}

// PageSource returns the rendered HTML.
func (d *Driver) PageSource(ctx context.Context) (string, error) {
	src, err := d.browser.PageSource(ctx)
	if err != nil {
		return "", d.transient(ctx, "reading page source", err)
	}
	return src, nil
}

// Quit terminates the session, logging rather than returning a failure.
func (d *Driver) Quit() {
	if err := d.browser.Quit(); err != nil {
		d.logger.Warn("Failed to quit browser session", "error", err.Error())
	}
}

// transient wraps err in ErrTransientSession unless the run itself was
// cancelled, in which case the context error is kept as is.
func (d *Driver) transient(ctx context.Context, action string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, ErrTransientSession) {
		return fmt.Errorf("%s: %w", action, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrTransientSession, action, err)
}
