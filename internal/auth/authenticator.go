// Package auth drives the browser half of Microsoft sign-in: completing the
// device-code verification page so the token poll can succeed, and logging
// back in when a workspace navigation is redirected to a sign-in page.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/tonimelisma/pbi-refresh-monitor/internal/browser"
	"github.com/tonimelisma/pbi-refresh-monitor/internal/logger"
	"github.com/tonimelisma/pbi-refresh-monitor/pkg/powerbi"
)

// ErrLoginExhausted means the redirect sign-in failed on every attempt. The
// run cannot continue.
var ErrLoginExhausted = errors.New("all sign-in attempts failed")

// DefaultSettleDelay is the pause between finishing the sign-in pages and
// the first token poll.
const DefaultSettleDelay = 3 * time.Second

// TokenClient is the network half of the device-code flow.
type TokenClient interface {
	RequestDeviceCode(ctx context.Context, tenantID, clientID, scope string) (*powerbi.DeviceCodeGrant, error)
	PollForToken(ctx context.Context, tenantID, clientID string, grant *powerbi.DeviceCodeGrant) (*powerbi.AccessToken, error)
}

// Credentials identify the app registration and the account that signs in.
type Credentials struct {
	TenantID string
	ClientID string
	Email    string
	Password string
}

// Authenticator obtains scoped access tokens by driving the device-code
// verification page in a browser session.
type Authenticator struct {
	client TokenClient
	creds  Credentials
	logger logger.Logger

	SettleDelay     time.Duration
	LoginAttempts   uint
	LoginRetryDelay time.Duration
}

// New creates an Authenticator with the default timings.
func New(client TokenClient, creds Credentials, log logger.Logger) *Authenticator {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &Authenticator{
		client:          client,
		creds:           creds,
		logger:          log,
		SettleDelay:     DefaultSettleDelay,
		LoginAttempts:   powerbi.DefaultRetryAttempts,
		LoginRetryDelay: powerbi.DefaultRetryDelay,
	}
}

// Authenticate runs the whole device-code flow for scope: request a code,
// complete sign-in in drv's session, wait for the page to settle, then poll
// for the token. A sign-in page that does not look as expected is logged and
// polling still runs, so the code can be confirmed by other means before it
// expires.
func (a *Authenticator) Authenticate(ctx context.Context, drv *browser.Driver, scope string) (*powerbi.AccessToken, error) {
	grant, err := a.client.RequestDeviceCode(ctx, a.creds.TenantID, a.creds.ClientID, scope)
	if err != nil {
		a.logger.Critical("Could not request a device code", "scope", scope, "error", err.Error())
		return nil, err
	}
	a.logger.Info("Device code issued", "scope", scope, "expires_in", grant.ExpiresIn.String())

	if err := a.CompleteInteractiveSignIn(ctx, drv, grant); err != nil {
		if !errors.Is(err, browser.ErrUITimeout) {
			return nil, err
		}
		a.logger.Error("Could not complete the sign-in pages", "error", err.Error())
	}

	if err := drv.WaitForPageReady(ctx); err != nil {
		a.logger.Warn("Sign-in page did not finish loading", "error", err.Error())
	}
	if err := sleep(ctx, a.SettleDelay); err != nil {
		return nil, err
	}

	token, err := a.client.PollForToken(ctx, a.creds.TenantID, a.creds.ClientID, grant)
	if err != nil {
		a.logger.Critical("Could not obtain an access token", "scope", scope, "error", err.Error())
		return nil, err
	}
	return token, nil
}

// AuthenticateInNewSession runs Authenticate in a browser session of its
// own, closed before returning. A browser failure restarts the flow in a
// fresh session, up to LoginAttempts times.
func (a *Authenticator) AuthenticateInNewSession(ctx context.Context, newBrowser browser.Factory, scope string) (*powerbi.AccessToken, error) {
	token, err := retry.DoWithData(
		func() (*powerbi.AccessToken, error) {
			return a.authenticateInSession(ctx, newBrowser, scope)
		},
		retry.Attempts(a.LoginAttempts),
		retry.Delay(a.LoginRetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, browser.ErrTransientSession)
		}),
		retry.OnRetry(func(n uint, err error) {
			a.logger.Error("Sign-in attempt failed", "scope", scope, "attempt", n+1, "error", err.Error())
		}),
	)
	if err != nil && errors.Is(err, browser.ErrTransientSession) {
		a.logger.Critical("Could not sign in", "scope", scope, "error", err.Error())
	}
	return token, err
}

func (a *Authenticator) authenticateInSession(ctx context.Context, newBrowser browser.Factory, scope string) (*powerbi.AccessToken, error) {
	b, err := newBrowser(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting browser: %w", err)
	}
	drv := browser.NewDriver(b, a.logger)
	defer drv.Quit()
	return a.Authenticate(ctx, drv, scope)
}

// CompleteInteractiveSignIn enters the user code on the verification page
// and confirms the account. A pre-authorized account tile is clicked when
// shown; otherwise the email and password are entered and the continue
// button pressed. The "stay signed in" prompt that may follow is optional.
func (a *Authenticator) CompleteInteractiveSignIn(ctx context.Context, drv *browser.Driver, grant *powerbi.DeviceCodeGrant) error {
	if err := drv.Navigate(ctx, grant.VerificationURI); err != nil {
		return err
	}
	if err := interactRequired(ctx, drv, selectorOTC, grant.UserCode); err != nil {
		return err
	}

	outcome, err := drv.Interact(ctx, selectorAccountTile)
	if err != nil {
		return err
	}
	if outcome == browser.Found {
		a.logger.Debug("Confirmed pre-authorized account tile")
		return nil
	}

	a.logger.Info("Entering email")
	if err := interactRequired(ctx, drv, selectorEmail, a.creds.Email); err != nil {
		return err
	}
	a.logger.Info("Entering password")
	if err := interactRequired(ctx, drv, selectorPassword, a.creds.Password); err != nil {
		return err
	}
	a.logger.Info("Clicking continue")
	if err := interactRequired(ctx, drv, selectorContinue); err != nil {
		return err
	}

	outcome, err = drv.Interact(ctx, selectorContinue)
	if err != nil {
		return err
	}
	if outcome == browser.TimedOut {
		a.logger.Info("No stay signed in prompt")
	}
	return nil
}

// SignInAt logs in on the sign-in page targetURL redirects to, leaving the
// session on targetURL's destination. The whole sequence is retried; when
// every attempt fails the error wraps ErrLoginExhausted.
func (a *Authenticator) SignInAt(ctx context.Context, drv *browser.Driver, targetURL string) error {
	err := retry.Do(
		func() error {
			return a.signInOnce(ctx, drv, targetURL)
		},
		retry.Attempts(a.LoginAttempts),
		retry.Delay(a.LoginRetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			a.logger.Error("Sign-in attempt failed", "attempt", n+1, "error", err.Error())
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.logger.Critical("All sign-in attempts failed", "url", targetURL)
		return fmt.Errorf("%w: %w", ErrLoginExhausted, err)
	}
	return nil
}

func (a *Authenticator) signInOnce(ctx context.Context, drv *browser.Driver, targetURL string) error {
	if err := drv.Navigate(ctx, targetURL); err != nil {
		return err
	}
	if err := interactRequired(ctx, drv, selectorRedirectEmail, a.creds.Email); err != nil {
		return err
	}
	if err := interactRequired(ctx, drv, selectorRedirectPassword, a.creds.Password); err != nil {
		return err
	}

	outcome, err := drv.Interact(ctx, selectorContinue)
	if err != nil {
		return err
	}
	if outcome == browser.Found {
		outcome, err = drv.Interact(ctx, selectorStaySignedInNo)
		if err != nil {
			return err
		}
	}
	if outcome == browser.TimedOut {
		a.logger.Info("No stay signed in prompt")
	}
	return nil
}

// interactRequired is Interact for an element the flow cannot do without.
func interactRequired(ctx context.Context, drv *browser.Driver, selector string, value ...string) error {
	outcome, err := drv.Interact(ctx, selector, value...)
	if err != nil {
		return err
	}
	return outcome.Require(selector)
}

// IsSignInURL reports whether u is a Microsoft sign-in page.
func IsSignInURL(u string) bool {
	for _, fragment := range signInURLFragments {
		if strings.Contains(u, fragment) {
			return true
		}
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
