package powerbi

import (
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// DeviceCodeGrant is the answer to a device-code request. It is consumed once
// by PollForToken and discarded afterwards.
type DeviceCodeGrant struct {
	DeviceCode      string
	UserCode        string
	VerificationURI string
	ExpiresIn       time.Duration
	PollInterval    time.Duration
	// Scope the grant was requested for; carried onto the issued token.
	Scope string
}

// AccessToken is a bearer token bound to the single audience it was issued
// for. Tokens are requested per interaction and never refreshed.
type AccessToken struct {
	Token *oauth2.Token
	Scope string
}

// RequireScope fails with ErrScopeMismatch unless the token was issued for scope.
func (t *AccessToken) RequireScope(scope string) error {
	if t == nil || t.Token == nil || t.Token.AccessToken == "" {
		return fmt.Errorf("%w: missing token for %s", ErrScopeMismatch, scope)
	}
	if t.Scope != scope {
		return fmt.Errorf("%w: token issued for %q used against %q", ErrScopeMismatch, t.Scope, scope)
	}
	return nil
}

// SetAuthHeader sets the Authorization header on r.
func (t *AccessToken) SetAuthHeader(r *http.Request) {
	t.Token.SetAuthHeader(r)
}

// Group is one workspace descriptor as returned by GET /v1.0/myorg/groups.
type Group struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	Type                  string `json:"type,omitempty"`
	IsReadOnly            bool   `json:"isReadOnly"`
	IsOnDedicatedCapacity bool   `json:"isOnDedicatedCapacity"`
}

// GroupList is the collection envelope of the groups endpoint.
type GroupList struct {
	Value []Group `json:"value"`
}

// WorkspaceRef identifies one workspace and the UI page to visit for it.
type WorkspaceRef struct {
	ID   string
	Name string
	URL  string
}
