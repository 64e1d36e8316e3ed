package powerbi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/avast/retry-go/v4"
)

// ListWorkspaces returns every workspace visible to the token's user, one
// entry per group ID, in the order the API lists them. The request is
// retried with a fixed delay; once the attempts are exhausted the error
// wraps ErrEnumeration and no partial list is returned.
func (c *Client) ListWorkspaces(ctx context.Context, token *AccessToken) ([]WorkspaceRef, error) {
	if err := token.RequireScope(PowerBIScope); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEnumeration, err)
	}

	groups, err := retry.DoWithData(
		func() (GroupList, error) {
			return c.getGroups(ctx, token)
		},
		retry.Attempts(c.httpConfig.RetryAttempts),
		retry.Delay(c.httpConfig.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, ErrReauthRequired)
		}),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Errorf("Workspace listing attempt %d failed: %v", n+1, err)
		}),
	)
	if err != nil {
		c.logger.Critical("Could not list workspaces", "error", err.Error())
		return nil, fmt.Errorf("%w: %w", ErrEnumeration, err)
	}

	seen := make(map[string]bool, len(groups.Value))
	refs := make([]WorkspaceRef, 0, len(groups.Value))
	for _, g := range groups.Value {
		if g.ID == "" || seen[g.ID] {
			continue
		}
		seen[g.ID] = true
		refs = append(refs, WorkspaceRef{
			ID:   g.ID,
			Name: g.Name,
			URL:  c.endpoints.WorkspaceURL(g.ID),
		})
	}
	c.logger.Infof("Found %d workspace(s)", len(refs))
	return refs, nil
}

func (c *Client) getGroups(ctx context.Context, token *AccessToken) (GroupList, error) {
	var groups GroupList

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoints.GroupsURL(), nil)
	if err != nil {
		return groups, retry.Unrecoverable(fmt.Errorf("creating groups request: %w", err))
	}
	token.SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")

	res, err := c.do(req, true)
	if err != nil {
		return groups, err
	}
	defer closeBodySafely(res.Body, c.logger, "groups")

	switch {
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return groups, fmt.Errorf("%w: %s: %s", ErrReauthRequired, res.Status, readErrorBody(res.Body))
	case res.StatusCode >= http.StatusBadRequest:
		return groups, fmt.Errorf("listing groups failed with status %s: %s", res.Status, readErrorBody(res.Body))
	}

	if err := json.NewDecoder(res.Body).Decode(&groups); err != nil {
		return groups, fmt.Errorf("decoding groups response: %w", err)
	}
	return groups, nil
}
