package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/tonimelisma/pbi-refresh-monitor/internal/auth"
	"github.com/tonimelisma/pbi-refresh-monitor/internal/browser"
	"github.com/tonimelisma/pbi-refresh-monitor/internal/browser/browsertest"
	"github.com/tonimelisma/pbi-refresh-monitor/internal/logger"
	"github.com/tonimelisma/pbi-refresh-monitor/pkg/powerbi"
)

const (
	financeURL = "https://app.powerbi.com/groups/g1"
	salesURL   = "https://app.powerbi.com/groups/g2"
	loginURL   = "https://login.microsoftonline.com/common/oauth2/authorize"
)

type fakeAuthenticator struct {
	mu      sync.Mutex
	authErr error
	// authErrs are returned by the first Authenticate calls, in order.
	authErrs    []error
	authCalls   int
	signInErr   error
	signInCalls []string
	// onSignIn runs inside SignInAt, e.g. to stop the redirect.
	onSignIn func()
}

func (a *fakeAuthenticator) Authenticate(ctx context.Context, drv *browser.Driver, scope string) (*powerbi.AccessToken, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.authCalls++
	if len(a.authErrs) > 0 {
		err := a.authErrs[0]
		a.authErrs = a.authErrs[1:]
		return nil, err
	}
	if a.authErr != nil {
		return nil, a.authErr
	}
	return &powerbi.AccessToken{Token: &oauth2.Token{AccessToken: "tok"}, Scope: scope}, nil
}

func (a *fakeAuthenticator) SignInAt(ctx context.Context, drv *browser.Driver, targetURL string) error {
	a.mu.Lock()
	a.signInCalls = append(a.signInCalls, targetURL)
	hook := a.onSignIn
	a.mu.Unlock()
	if hook != nil {
		hook()
	}
	return a.signInErr
}

// criticalCounter counts Critical entries and discards everything else.
type criticalCounter struct {
	logger.NoopLogger
	mu       sync.Mutex
	messages []string
}

func (c *criticalCounter) Critical(msg string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
}

func (c *criticalCounter) Criticalf(format string, args ...any) {
	c.Critical(fmt.Sprintf(format, args...))
}

func (c *criticalCounter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

type fakeEnumerator struct {
	refs []powerbi.WorkspaceRef
	err  error
}

func (e *fakeEnumerator) ListWorkspaces(ctx context.Context, token *powerbi.AccessToken) ([]powerbi.WorkspaceRef, error) {
	if err := token.RequireScope(powerbi.PowerBIScope); err != nil {
		return nil, err
	}
	return e.refs, e.err
}

// site serves workspace pages to a browsertest.Fake.
type site struct {
	mu          sync.Mutex
	pages       map[string]string
	broken      map[string]bool
	redirectTo  map[string]string
	navigations map[string]int
}

func newSite() *site {
	return &site{
		pages:       map[string]string{},
		broken:      map[string]bool{},
		redirectTo:  map[string]string{},
		navigations: map[string]int{},
	}
}

func (s *site) browser() *browsertest.Fake {
	fake := browsertest.New()
	fake.OnNavigate = func(f *browsertest.Fake, url string) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.navigations[url]++

		if s.broken[url] {
			return errors.New("net::ERR_CONNECTION_RESET")
		}
		if target, ok := s.redirectTo[url]; ok {
			f.SetURL(target)
			f.HideAll()
			return nil
		}
		page, ok := s.pages[url]
		f.SetSource(page)
		if ok {
			f.Show(selectorViewport)
		} else {
			f.Hide(selectorViewport)
		}
		return nil
	}
	return fake
}

func (s *site) stopRedirect(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.redirectTo, url)
}

func (s *site) visits(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.navigations[url]
}

func refs(urls ...string) []powerbi.WorkspaceRef {
	out := make([]powerbi.WorkspaceRef, 0, len(urls))
	for _, u := range urls {
		out = append(out, powerbi.WorkspaceRef{ID: u[strings.LastIndex(u, "/")+1:], URL: u})
	}
	return out
}

func newTestSession(fake *browsertest.Fake, a Authenticator, e Enumerator) *Session {
	s := NewSession(fake.Factory(), a, e, logger.NoopLogger{})
	s.Now = func() time.Time { return time.Date(2024, time.March, 5, 10, 0, 0, 0, time.Local) }
	s.RetryDelay = time.Millisecond
	s.ConfigureDriver = func(d *browser.Driver) {
		d.ReadyTimeout = 10 * time.Millisecond
		d.ReadyPollInterval = time.Millisecond
	}
	return s
}

func TestSessionRunIsolatesFailingWorkspace(t *testing.T) {
	web := newSite()
	web.pages[financeURL] = workspacePage("Finance", row{name: "Sales", itemType: "Relatório", last: "05/03/2024 08:00", next: "N/D"})
	web.broken[salesURL] = true
	fake := web.browser()

	var progress []string
	session := newTestSession(fake, &fakeAuthenticator{}, &fakeEnumerator{refs: refs(financeURL, salesURL)})
	session.OnProgress = func(done, total int, ws powerbi.WorkspaceRef, err error) {
		progress = append(progress, fmt.Sprintf("%d/%d %s %v", done, total, ws.ID, err != nil))
	}

	snap, err := session.Run(context.Background())
	require.NoError(t, err)

	require.Contains(t, snap, runTS)
	run := snap[runTS]
	assert.Len(t, run, 1, "only the successful workspace is present")
	assert.Contains(t, run, "Finance")
	assert.True(t, run["Finance"]["Sales"].ScheduleCancelled)

	assert.Equal(t, 3, web.visits(salesURL), "failing workspace is tried exactly 3 times")
	assert.Equal(t, 1, web.visits(financeURL))
	assert.Equal(t, []string{"1/2 g1 false", "2/2 g2 true"}, progress)
	assert.Equal(t, 1, fake.QuitCalls())
	assert.Equal(t, runTS, session.LastRun())
}

func TestSessionRunEnumerationFailure(t *testing.T) {
	fake := newSite().browser()
	enumErr := fmt.Errorf("%w: listing groups failed with status 500", powerbi.ErrEnumeration)

	snap, err := newTestSession(fake, &fakeAuthenticator{}, &fakeEnumerator{err: enumErr}).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, powerbi.ErrEnumeration)
	assert.Nil(t, snap)
	assert.Empty(t, fake.Navigations())
	assert.Equal(t, 1, fake.QuitCalls(), "browser is released on the failure path")
}

func TestSessionRunAuthenticationFailure(t *testing.T) {
	fake := newSite().browser()
	a := &fakeAuthenticator{authErr: powerbi.ErrDeviceCodeExpired}

	snap, err := newTestSession(fake, a, &fakeEnumerator{refs: refs(financeURL)}).Run(context.Background())
	assert.ErrorIs(t, err, powerbi.ErrDeviceCodeExpired)
	assert.Nil(t, snap)
	assert.Equal(t, 1, a.authCalls, "an expired device code is not retried")
	assert.Equal(t, 1, fake.QuitCalls())
}

func TestSessionRunRetriesTransientSignIn(t *testing.T) {
	web := newSite()
	web.pages[financeURL] = workspacePage("Finance", row{name: "Sales", itemType: "Relatório", last: "x", next: "y"})
	fake := web.browser()
	a := &fakeAuthenticator{authErrs: []error{
		fmt.Errorf("%w: interacting with [id='otc']: target closed", browser.ErrTransientSession),
	}}

	snap, err := newTestSession(fake, a, &fakeEnumerator{refs: refs(financeURL)}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, a.authCalls)
	assert.Contains(t, snap[runTS], "Finance")
	assert.Equal(t, 1, fake.QuitCalls())
}

func TestSessionRunSignInFailureIsCritical(t *testing.T) {
	fake := newSite().browser()
	a := &fakeAuthenticator{authErr: fmt.Errorf("%w: page crashed", browser.ErrTransientSession)}
	log := &criticalCounter{}

	session := newTestSession(fake, a, &fakeEnumerator{refs: refs(financeURL)})
	session.logger = log

	snap, err := session.Run(context.Background())
	assert.ErrorIs(t, err, browser.ErrTransientSession)
	assert.Nil(t, snap)
	assert.Equal(t, 3, a.authCalls)
	assert.Equal(t, 1, log.count(), "exactly one critical entry before giving up")
	assert.Empty(t, fake.Navigations())
}

func TestSessionRunBrowserStartFailure(t *testing.T) {
	factory := func(ctx context.Context) (browser.Browser, error) {
		return nil, errors.New("chrome not found")
	}
	session := NewSession(factory, &fakeAuthenticator{}, &fakeEnumerator{}, logger.NoopLogger{})

	snap, err := session.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, snap)
}

func TestSessionRunSignsInOnRedirect(t *testing.T) {
	web := newSite()
	web.pages[financeURL] = workspacePage("Finance", row{name: "Sales", itemType: "Relatório", last: "x", next: "y"})
	web.redirectTo[financeURL] = loginURL + "?redirect_uri=x"
	fake := web.browser()

	a := &fakeAuthenticator{onSignIn: func() { web.stopRedirect(financeURL) }}
	snap, err := newTestSession(fake, a, &fakeEnumerator{refs: refs(financeURL)}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{financeURL}, a.signInCalls, "sign-in targets the original workspace URL")
	assert.Equal(t, 2, web.visits(financeURL))
	assert.Contains(t, snap[runTS], "Finance")
}

func TestSessionRunAbortsWhenSignInExhausted(t *testing.T) {
	web := newSite()
	web.pages[salesURL] = workspacePage("Sales", row{name: "Pipeline", itemType: "Relatório", last: "x", next: "y"})
	web.redirectTo[financeURL] = loginURL
	fake := web.browser()

	a := &fakeAuthenticator{signInErr: fmt.Errorf("%w: email field missing", auth.ErrLoginExhausted)}
	session := newTestSession(fake, a, &fakeEnumerator{refs: refs(financeURL, salesURL)})

	snap, err := session.Run(context.Background())
	assert.ErrorIs(t, err, auth.ErrLoginExhausted)
	assert.Nil(t, snap)
	assert.Len(t, a.signInCalls, 1, "fatal sign-in failure is not retried per workspace")
	assert.Zero(t, web.visits(salesURL))
	assert.NotContains(t, session.Snapshot(), runTS)
	assert.Equal(t, 1, fake.QuitCalls())
}

func TestSessionRunStillOnSignInPageIsRetried(t *testing.T) {
	web := newSite()
	web.redirectTo[financeURL] = loginURL
	fake := web.browser()

	a := &fakeAuthenticator{}
	snap, err := newTestSession(fake, a, &fakeEnumerator{refs: refs(financeURL)}).Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, a.signInCalls, 3, "one sign-in per attempt")
	assert.Empty(t, snap[runTS])
}

func TestSessionRunAccumulatesRuns(t *testing.T) {
	web := newSite()
	web.pages[financeURL] = workspacePage("Finance", row{name: "Sales", itemType: "Relatório", last: "x", next: "y"})
	fake := web.browser()

	session := newTestSession(fake, &fakeAuthenticator{}, &fakeEnumerator{refs: refs(financeURL)})
	first := time.Date(2024, time.March, 5, 10, 0, 0, 0, time.Local)
	session.Now = func() time.Time { return first }
	_, err := session.Run(context.Background())
	require.NoError(t, err)

	session.Now = func() time.Time { return first.Add(time.Hour) }
	snap, err := session.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"05/03/2024 - 10:00:00", "05/03/2024 - 11:00:00"}, snap.Timestamps())
	assert.Equal(t, 2, fake.QuitCalls())
}

func TestSessionRunFatalAbortKeepsEarlierRunOfSameSecond(t *testing.T) {
	web := newSite()
	web.pages[financeURL] = workspacePage("Finance", row{name: "Sales", itemType: "Relatório", last: "x", next: "y"})
	fake := web.browser()
	a := &fakeAuthenticator{}

	session := newTestSession(fake, a, &fakeEnumerator{refs: refs(financeURL)})
	_, err := session.Run(context.Background())
	require.NoError(t, err)

	web.redirectTo[financeURL] = loginURL
	a.signInErr = fmt.Errorf("%w: password field missing", auth.ErrLoginExhausted)
	_, err = session.Run(context.Background())
	require.ErrorIs(t, err, auth.ErrLoginExhausted)

	require.Contains(t, session.Snapshot(), runTS)
	assert.Contains(t, session.Snapshot()[runTS], "Finance")
}

func TestPageScraperRenderTimeout(t *testing.T) {
	web := newSite()
	fake := web.browser()
	drv := browser.NewDriver(fake, logger.NoopLogger{})

	p := NewPageScraper(drv, &fakeAuthenticator{}, logger.NoopLogger{})
	p.RetryDelay = time.Millisecond

	data, err := p.Scrape(context.Background(), powerbi.WorkspaceRef{URL: financeURL}, runTS)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWorkspaceFailed)
	assert.ErrorIs(t, err, browser.ErrUITimeout)
	assert.Nil(t, data)
	assert.Equal(t, 3, web.visits(financeURL))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(fmt.Errorf("wrapped: %w", auth.ErrLoginExhausted)))
	assert.True(t, IsFatal(powerbi.ErrEnumeration))
	assert.True(t, IsFatal(context.Canceled))
	assert.False(t, IsFatal(browser.ErrTransientSession))
	assert.False(t, IsFatal(browser.ErrUITimeout))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "WAIT_RENDER", StateWaitRender.String())
	assert.Equal(t, "FAILED", StateFailed.String())
}
