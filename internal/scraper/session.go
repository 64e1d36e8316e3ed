package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/tonimelisma/pbi-refresh-monitor/internal/browser"
	"github.com/tonimelisma/pbi-refresh-monitor/internal/logger"
	"github.com/tonimelisma/pbi-refresh-monitor/pkg/powerbi"
)

// Authenticator obtains tokens through a browser session and signs the
// session back in on redirects.
type Authenticator interface {
	SignInHandler
	Authenticate(ctx context.Context, drv *browser.Driver, scope string) (*powerbi.AccessToken, error)
}

// Enumerator lists the workspaces to visit.
type Enumerator interface {
	ListWorkspaces(ctx context.Context, token *powerbi.AccessToken) ([]powerbi.WorkspaceRef, error)
}

// ProgressFunc is called after each workspace, successful or not.
type ProgressFunc func(done, total int, ws powerbi.WorkspaceRef, err error)

// Session runs scrapes. It owns the accumulated snapshot: each Run adds one
// timestamp key, so a reused Session holds the history of its runs.
type Session struct {
	newBrowser browser.Factory
	auth       Authenticator
	enum       Enumerator
	logger     logger.Logger
	snapshot   powerbi.RunSnapshot
	lastRun    string

	// Now fixes the run timestamp; tests replace it.
	Now        func() time.Time
	OnProgress ProgressFunc
	// ConfigureDriver, if set, adjusts each new driver before use.
	ConfigureDriver func(*browser.Driver)
	RetryAttempts   uint
	RetryDelay      time.Duration
}

// NewSession creates a Session.
func NewSession(newBrowser browser.Factory, authenticator Authenticator, enum Enumerator, log logger.Logger) *Session {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &Session{
		newBrowser:    newBrowser,
		auth:          authenticator,
		enum:          enum,
		logger:        log,
		snapshot:      make(powerbi.RunSnapshot),
		Now:           time.Now,
		RetryAttempts: powerbi.DefaultRetryAttempts,
		RetryDelay:    powerbi.DefaultRetryDelay,
	}
}

// Run authenticates, lists the workspaces and scrapes them one after the
// other in a single browser session, which is always closed before Run
// returns. A failed workspace is logged and skipped. Authentication,
// enumeration and sign-in exhaustion abort the run and no snapshot is
// returned.
func (s *Session) Run(ctx context.Context) (powerbi.RunSnapshot, error) {
	ts := powerbi.RunTimestamp(s.Now())
	s.logger.Info("Run started", "timestamp", ts)

	drv, err := s.openDriver(ctx)
	if err != nil {
		return nil, err
	}
	defer drv.Quit()

	refs, err := s.workspaces(ctx, drv)
	if err != nil {
		return nil, err
	}

	scraper := NewPageScraper(drv, s.auth, s.logger)
	scraper.Attempts = s.RetryAttempts
	scraper.RetryDelay = s.RetryDelay

	_, existed := s.snapshot[ts]
	if !existed {
		s.snapshot[ts] = make(map[string]powerbi.WorkspaceRecords)
	}

	failed := 0
	for i, ref := range refs {
		data, err := scraper.Scrape(ctx, ref, ts)
		if err != nil && IsFatal(err) {
			if !existed {
				delete(s.snapshot, ts)
			}
			return nil, err
		}
		if err != nil {
			failed++
		} else {
			s.snapshot.Merge(ts, data)
		}
		if s.OnProgress != nil {
			s.OnProgress(i+1, len(refs), ref, err)
		}
	}

	s.lastRun = ts
	s.logger.Info("Run finished", "timestamp", ts, "workspaces", len(refs), "failed", failed)
	return s.snapshot, nil
}

// ListWorkspaces authenticates in a fresh browser session and returns the
// workspace list without scraping anything.
func (s *Session) ListWorkspaces(ctx context.Context) ([]powerbi.WorkspaceRef, error) {
	drv, err := s.openDriver(ctx)
	if err != nil {
		return nil, err
	}
	defer drv.Quit()
	return s.workspaces(ctx, drv)
}

// Snapshot returns every run recorded by this Session.
func (s *Session) Snapshot() powerbi.RunSnapshot {
	return s.snapshot
}

// LastRun returns the timestamp key of the last completed run.
func (s *Session) LastRun() string {
	return s.lastRun
}

func (s *Session) openDriver(ctx context.Context) (*browser.Driver, error) {
	b, err := s.newBrowser(ctx)
	if err != nil {
		s.logger.Critical("Could not start the browser", "error", err.Error())
		return nil, fmt.Errorf("starting browser: %w", err)
	}
	drv := browser.NewDriver(b, s.logger)
	if s.ConfigureDriver != nil {
		s.ConfigureDriver(drv)
	}
	return drv, nil
}

// workspaces signs in and lists the workspaces. A browser failure during
// sign-in restarts the device-code flow; other errors are final.
func (s *Session) workspaces(ctx context.Context, drv *browser.Driver) ([]powerbi.WorkspaceRef, error) {
	token, err := retry.DoWithData(
		func() (*powerbi.AccessToken, error) {
			return s.auth.Authenticate(ctx, drv, powerbi.PowerBIScope)
		},
		retry.Attempts(s.RetryAttempts),
		retry.Delay(s.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, browser.ErrTransientSession)
		}),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Error("Sign-in attempt failed", "attempt", n+1, "error", err.Error())
		}),
	)
	if err != nil {
		if errors.Is(err, browser.ErrTransientSession) {
			s.logger.Critical("Could not sign in", "attempts", s.RetryAttempts, "error", err.Error())
		}
		return nil, fmt.Errorf("authenticating: %w", err)
	}
	refs, err := s.enum.ListWorkspaces(ctx, token)
	if err != nil {
		return nil, err
	}
	return refs, nil
}
