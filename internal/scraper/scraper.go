// Package scraper collects the refresh status of every report and dataflow
// in a tenant by visiting each workspace page in a browser session.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/tonimelisma/pbi-refresh-monitor/internal/auth"
	"github.com/tonimelisma/pbi-refresh-monitor/internal/browser"
	"github.com/tonimelisma/pbi-refresh-monitor/internal/logger"
	"github.com/tonimelisma/pbi-refresh-monitor/pkg/powerbi"
)

// ErrWorkspaceFailed means a workspace could not be scraped on any attempt.
// The run continues with the next workspace.
var ErrWorkspaceFailed = errors.New("workspace scrape failed")

// State is a step of one scrape attempt.
type State int

const (
	StateNavigate State = iota
	StateAuthenticate
	StateWaitRender
	StateParse
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNavigate:
		return "NAVIGATE"
	case StateAuthenticate:
		return "AUTHENTICATE"
	case StateWaitRender:
		return "WAIT_RENDER"
	case StateParse:
		return "PARSE"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// SignInHandler logs the session back in when a navigation lands on a
// sign-in page.
type SignInHandler interface {
	SignInAt(ctx context.Context, drv *browser.Driver, targetURL string) error
}

// PageScraper scrapes single workspace pages in one browser session.
type PageScraper struct {
	drv    *browser.Driver
	signIn SignInHandler
	logger logger.Logger

	Attempts   uint
	RetryDelay time.Duration
}

// NewPageScraper creates a PageScraper retrying 3 times, 5 s apart.
func NewPageScraper(drv *browser.Driver, signIn SignInHandler, log logger.Logger) *PageScraper {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &PageScraper{
		drv:        drv,
		signIn:     signIn,
		logger:     log,
		Attempts:   powerbi.DefaultRetryAttempts,
		RetryDelay: powerbi.DefaultRetryDelay,
	}
}

// Scrape visits ws and returns its records keyed by workspace name. Each
// attempt restarts from navigation. Errors for which IsFatal holds are
// returned at once; any other failure is retried, and once the attempts are
// spent the error wraps ErrWorkspaceFailed.
func (p *PageScraper) Scrape(ctx context.Context, ws powerbi.WorkspaceRef, runTimestamp string) (map[string]powerbi.WorkspaceRecords, error) {
	data, err := retry.DoWithData(
		func() (map[string]powerbi.WorkspaceRecords, error) {
			return p.attempt(ctx, ws.URL, runTimestamp)
		},
		retry.Attempts(p.Attempts),
		retry.Delay(p.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !IsFatal(err)
		}),
		retry.OnRetry(func(n uint, err error) {
			p.logger.Error("Workspace attempt failed", "workspace", ws.URL, "attempt", n+1, "error", err.Error())
		}),
	)
	if err != nil {
		if IsFatal(err) {
			return nil, err
		}
		p.logger.Critical("All attempts failed for workspace", "workspace", ws.URL, "error", err.Error())
		return nil, fmt.Errorf("%w: %s: %w", ErrWorkspaceFailed, ws.URL, err)
	}
	return data, nil
}

// attempt runs the state machine once.
func (p *PageScraper) attempt(ctx context.Context, url, runTimestamp string) (map[string]powerbi.WorkspaceRecords, error) {
	var (
		state    = StateNavigate
		signedIn bool
		data     map[string]powerbi.WorkspaceRecords
		failure  error
	)

	fail := func(err error) State {
		failure = err
		return StateFailed
	}

	for {
		p.logger.Debug("Scrape state", "workspace", url, "state", state.String())

		switch state {
		case StateNavigate:
			state = p.navigate(ctx, url, signedIn, fail)

		case StateAuthenticate:
			signedIn = true
			if err := p.signIn.SignInAt(ctx, p.drv, url); err != nil {
				state = fail(err)
				break
			}
			state = StateNavigate

		case StateWaitRender:
			outcome, err := p.drv.WaitVisible(ctx, selectorViewport)
			if err == nil {
				err = outcome.Require(selectorViewport)
			}
			if err != nil {
				state = fail(err)
				break
			}
			state = StateParse

		case StateParse:
			src, err := p.drv.PageSource(ctx)
			if err == nil {
				data, err = ParseWorkspacePage(src, runTimestamp)
			}
			if err != nil {
				state = fail(err)
				break
			}
			state = StateDone

		case StateDone:
			p.logger.Info("Workspace scraped", "workspace", url, "items", countRecords(data))
			return data, nil

		case StateFailed:
			return nil, failure
		}
	}
}

// navigate loads url and decides whether a sign-in is needed first. A
// session still on a sign-in page after signing in is a failed attempt.
func (p *PageScraper) navigate(ctx context.Context, url string, signedIn bool, fail func(error) State) State {
	p.logger.Info("Opening workspace", "workspace", url)
	if err := p.drv.Navigate(ctx, url); err != nil {
		return fail(err)
	}
	if err := p.drv.WaitForPageReady(ctx); err != nil {
		return fail(err)
	}

	current, err := p.drv.CurrentURL(ctx)
	if err != nil {
		return fail(err)
	}
	if !auth.IsSignInURL(current) {
		return StateWaitRender
	}
	if signedIn {
		return fail(fmt.Errorf("%w: still on sign-in page %s", browser.ErrTransientSession, current))
	}
	p.logger.Info("Redirected to sign-in", "workspace", url, "url", current)
	return StateAuthenticate
}

// IsFatal reports whether err must abort the whole run rather than only the
// current workspace.
func IsFatal(err error) bool {
	switch {
	case errors.Is(err, auth.ErrLoginExhausted),
		errors.Is(err, powerbi.ErrAuthRequest),
		errors.Is(err, powerbi.ErrDeviceCodeExpired),
		errors.Is(err, powerbi.ErrAuthorizationDeclined),
		errors.Is(err, powerbi.ErrEnumeration),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return true
	}
	return false
}

func countRecords(data map[string]powerbi.WorkspaceRecords) int {
	n := 0
	for _, records := range data {
		n += len(records)
	}
	return n
}
