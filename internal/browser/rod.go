package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/tonimelisma/pbi-refresh-monitor/internal/logger"
)

// Options controls how Chrome is launched.
type Options struct {
	// ShowScreen runs a visible, maximized window instead of headless Chrome.
	ShowScreen bool
	// Bin is an explicit Chrome binary. Empty lets rod find or download one.
	Bin string
}

// RodBrowser drives a locally launched Chrome through the DevTools protocol.
type RodBrowser struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	logger   logger.Logger
}

// NewRodFactory returns a Factory launching one Chrome per session.
func NewRodFactory(opts Options, log logger.Logger) Factory {
	return func(ctx context.Context) (Browser, error) {
		return LaunchRod(ctx, opts, log)
	}
}

// LaunchRod starts Chrome with notifications, extensions, background
// networking and GPU disabled, and opens a blank page.
func LaunchRod(ctx context.Context, opts Options, log logger.Logger) (*RodBrowser, error) {
	if log == nil {
		log = logger.NoopLogger{}
	}

	l := launcher.New().
		Context(ctx).
		Headless(!opts.ShowScreen).
		Set("disable-notifications").
		Set("disable-extensions").
		Set("disable-background-networking").
		Set("disable-gpu")
	if opts.ShowScreen {
		l = l.Set("start-maximized")
	}
	if opts.Bin != "" {
		l = l.Bin(opts.Bin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("%w: launching chrome: %w", ErrTransientSession, err)
	}
	log.Debug("Chrome launched", "control_url", controlURL, "headless", !opts.ShowScreen)

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("%w: connecting to chrome: %w", ErrTransientSession, err)
	}

	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = b.Close()
		l.Kill()
		return nil, fmt.Errorf("%w: opening page: %w", ErrTransientSession, err)
	}

	return &RodBrowser{launcher: l, browser: b, page: page, logger: log}, nil
}

func (r *RodBrowser) Navigate(ctx context.Context, url string) error {
	if err := r.page.Context(ctx).Navigate(url); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	return nil
}

func (r *RodBrowser) CurrentURL(ctx context.Context) (string, error) {
	info, err := r.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("reading page info: %w", err)
	}
	return info.URL, nil
}

func (r *RodBrowser) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	_, err := r.visibleElement(ctx, selector, timeout)
	return err
}

func (r *RodBrowser) Click(ctx context.Context, selector string) error {
	el, err := r.visibleElement(ctx, selector, DefaultVisibilityTimeout)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("clicking %s: %w", selector, err)
	}
	return nil
}

func (r *RodBrowser) Type(ctx context.Context, selector, value string) error {
	el, err := r.visibleElement(ctx, selector, DefaultVisibilityTimeout)
	if err != nil {
		return err
	}
	if err := el.Input(value); err != nil {
		return fmt.Errorf("typing into %s: %w", selector, err)
	}
	if err := el.Type(input.Enter); err != nil {
		return fmt.Errorf("submitting %s: %w", selector, err)
	}
	return nil
}

func (r *RodBrowser) ReadyState(ctx context.Context) (string, error) {
	res, err := r.page.Context(ctx).Eval(`() => document.readyState`)
	if err != nil {
		return "", fmt.Errorf("reading document.readyState: %w", err)
	}
	return res.Value.Str(), nil
}

func (r *RodBrowser) PageSource(ctx context.Context) (string, error) {
	html, err := r.page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("reading page source: %w", err)
	}
	return html, nil
}

// Quit closes the browser and kills the Chrome process. It is safe to call
// more than once.
func (r *RodBrowser) Quit() error {
	if r.browser == nil {
		return nil
	}
	err := r.browser.Close()
	r.launcher.Kill()
	r.browser = nil
	r.logger.Debug("Chrome session closed")
	return err
}

// visibleElement waits up to timeout for selector to exist and be visible.
// The deadline covers both steps.
func (r *RodBrowser) visibleElement(ctx context.Context, selector string, timeout time.Duration) (*rod.Element, error) {
	page := r.page.Context(ctx).Timeout(timeout)

	el, err := page.Element(selector)
	if err == nil {
		err = el.WaitVisible()
	}
	if err == nil {
		return el.CancelTimeout(), nil
	}
	page.CancelTimeout()

	if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %s after %s", ErrElementTimeout, selector, timeout)
	}
	return nil, fmt.Errorf("waiting for %s: %w", selector, err)
}
