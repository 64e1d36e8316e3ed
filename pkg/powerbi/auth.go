// Package powerbi (auth.go) implements the network half of the OAuth2 Device
// Code Flow against the Microsoft identity platform: requesting a device code
// and polling the token endpoint until the user has signed in. The browser
// half lives in internal/auth.
package powerbi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// tokenResponse covers both the success and the error shape of the token endpoint.
type tokenResponse struct {
	AccessToken      string      `json:"access_token"`
	TokenType        string      `json:"token_type"`
	ExpiresIn        json.Number `json:"expires_in"`
	Error            string      `json:"error"`
	ErrorDescription string      `json:"error_description"`
}

// oauthConfig builds the oauth2 configuration of one tenant/client/scope triple.
func (c *Client) oauthConfig(tenantID, clientID, scope string) *oauth2.Config {
	return &oauth2.Config{
		ClientID: clientID,
		Scopes:   []string{scope},
		Endpoint: oauth2.Endpoint{
			DeviceAuthURL: c.endpoints.DeviceCodeURL(tenantID),
			TokenURL:      c.endpoints.TokenURL(tenantID),
			AuthStyle:     oauth2.AuthStyleInParams,
		},
	}
}

// RequestDeviceCode posts client_id and scope to the tenant's device-code
// endpoint. A non-2xx answer or a body without device/user codes fails with
// ErrAuthRequest; there is no retry at this layer.
func (c *Client) RequestDeviceCode(ctx context.Context, tenantID, clientID, scope string) (*DeviceCodeGrant, error) {
	c.logger.Debugf("RequestDeviceCode called for scope '%s'", scope)

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	resp, err := c.oauthConfig(tenantID, clientID, scope).DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthRequest, err)
	}
	if resp.DeviceCode == "" || resp.UserCode == "" || resp.VerificationURI == "" {
		return nil, fmt.Errorf("%w: response is missing device_code, user_code or verification_uri", ErrAuthRequest)
	}

	grant := &DeviceCodeGrant{
		DeviceCode:      resp.DeviceCode,
		UserCode:        resp.UserCode,
		VerificationURI: resp.VerificationURI,
		ExpiresIn:       DefaultDeviceCodeExpiry,
		PollInterval:    DefaultPollInterval,
		Scope:           scope,
	}
	if !resp.Expiry.IsZero() {
		grant.ExpiresIn = time.Until(resp.Expiry).Round(time.Second)
	}
	if resp.Interval > 0 {
		grant.PollInterval = time.Duration(resp.Interval) * time.Second
	}
	return grant, nil
}

// RedeemDeviceCode makes a single token request for deviceCode. While the
// user has not finished signing in the error wraps ErrAuthorizationPending.
// Every failure wraps ErrTokenPoll; permanent ones additionally wrap
// ErrAuthorizationDeclined or ErrDeviceCodeExpired.
func (c *Client) RedeemDeviceCode(ctx context.Context, tenantID, clientID, deviceCode string) (*oauth2.Token, error) {
	data := url.Values{}
	data.Set("grant_type", DeviceCodeGrantType)
	data.Set("client_id", clientID)
	data.Set("device_code", deviceCode)

	tokenURL := c.endpoints.TokenURL(tenantID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: creating token request: %w", ErrTokenPoll, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	res, err := c.do(req, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenPoll, err)
	}
	defer closeBodySafely(res.Body, c.logger, "token")

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading token response: %w", ErrTokenPoll, err)
	}

	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: status %s with unparseable body", ErrTokenPoll, res.Status)
	}

	if parsed.AccessToken != "" {
		token := &oauth2.Token{
			AccessToken: parsed.AccessToken,
			TokenType:   parsed.TokenType,
		}
		if secs, err := parsed.ExpiresIn.Int64(); err == nil && secs > 0 {
			token.Expiry = time.Now().Add(time.Duration(secs) * time.Second)
		}
		return token, nil
	}

	switch parsed.Error {
	case "authorization_pending", "slow_down":
		return nil, fmt.Errorf("%w: %w", ErrTokenPoll, ErrAuthorizationPending)
	case "authorization_declined", "access_denied":
		return nil, fmt.Errorf("%w: %w: %s", ErrTokenPoll, ErrAuthorizationDeclined, parsed.ErrorDescription)
	case "expired_token":
		return nil, fmt.Errorf("%w: %w: %s", ErrTokenPoll, ErrDeviceCodeExpired, parsed.ErrorDescription)
	case "":
		return nil, fmt.Errorf("%w: status %s without access_token", ErrTokenPoll, res.Status)
	default:
		return nil, fmt.Errorf("%w: oauth error '%s': %s", ErrTokenPoll, parsed.Error, parsed.ErrorDescription)
	}
}

// PollForToken redeems grant every grant.PollInterval until a token is
// issued or grant.ExpiresIn has elapsed. Each request carries the client's
// own per-call timeout. A declined authorization stops polling at once;
// running out of time fails with ErrDeviceCodeExpired.
func (c *Client) PollForToken(ctx context.Context, tenantID, clientID string, grant *DeviceCodeGrant) (*AccessToken, error) {
	if grant == nil {
		return nil, fmt.Errorf("%w: nil device code grant", ErrAuthRequest)
	}

	start := time.Now()
	attempt := 0
	for time.Since(start) < grant.ExpiresIn {
		attempt++
		token, err := c.RedeemDeviceCode(ctx, tenantID, clientID, grant.DeviceCode)
		if err == nil {
			c.logger.Debugf("Token issued after %d poll(s)", attempt)
			return &AccessToken{Token: token, Scope: grant.Scope}, nil
		}

		switch {
		case errors.Is(err, ErrAuthorizationDeclined), errors.Is(err, ErrDeviceCodeExpired):
			return nil, err
		case errors.Is(err, ErrAuthorizationPending):
			c.logger.Debugf("Poll %d: authorization pending", attempt)
		default:
			c.logger.Errorf("Poll %d: %v", attempt, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(grant.PollInterval):
		}
	}

	return nil, fmt.Errorf("%w: no token issued within %s", ErrDeviceCodeExpired, grant.ExpiresIn)
}
