package powerbi

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/tonimelisma/pbi-refresh-monitor/internal/logger"
)

// Endpoints holds the base URLs the SDK talks to. Tests point them at
// httptest servers.
type Endpoints struct {
	LoginBaseURL string
	APIBaseURL   string
	AppBaseURL   string
}

// DefaultEndpoints returns the public Microsoft cloud endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		LoginBaseURL: defaultLoginBaseURL,
		APIBaseURL:   defaultAPIBaseURL,
		AppBaseURL:   defaultAppBaseURL,
	}
}

// DeviceCodeURL is the tenant's device authorization endpoint.
func (e Endpoints) DeviceCodeURL(tenantID string) string {
	return fmt.Sprintf("%s/%s/oauth2/v2.0/devicecode", strings.TrimRight(e.LoginBaseURL, "/"), url.PathEscape(tenantID))
}

// TokenURL is the tenant's token endpoint.
func (e Endpoints) TokenURL(tenantID string) string {
	return fmt.Sprintf("%s/%s/oauth2/v2.0/token", strings.TrimRight(e.LoginBaseURL, "/"), url.PathEscape(tenantID))
}

// GroupsURL lists the workspaces visible to the signed-in user.
func (e Endpoints) GroupsURL() string {
	return strings.TrimRight(e.APIBaseURL, "/") + "/v1.0/myorg/groups"
}

// WorkspaceURL is the UI page of one workspace.
func (e Endpoints) WorkspaceURL(groupID string) string {
	return strings.TrimRight(e.AppBaseURL, "/") + "/groups/" + url.PathEscape(groupID)
}

// HTTPConfig holds the timeout and retry settings of the SDK.
type HTTPConfig struct {
	Timeout       time.Duration
	RetryAttempts uint
	RetryDelay    time.Duration
}

// DefaultHTTPConfig returns a 10 s per-call timeout and 3 attempts 5 s apart.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Timeout:       DefaultTimeout,
		RetryAttempts: DefaultRetryAttempts,
		RetryDelay:    DefaultRetryDelay,
	}
}

// NewConfiguredHTTPClient creates an http.Client with the configured timeout.
func NewConfiguredHTTPClient(config HTTPConfig) *http.Client {
	return &http.Client{Timeout: config.Timeout}
}

// Client talks to the Microsoft identity platform and the Power BI REST API.
// It is not tied to a token; callers pass the token per call.
type Client struct {
	endpoints  Endpoints
	httpClient *http.Client
	httpConfig HTTPConfig
	logger     logger.Logger
	debug      bool
}

// NewClient creates a Client. A nil logger discards output.
func NewClient(endpoints Endpoints, httpConfig HTTPConfig, log logger.Logger) *Client {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if httpConfig.RetryAttempts == 0 {
		httpConfig.RetryAttempts = 1
	}
	return &Client{
		endpoints:  endpoints,
		httpClient: NewConfiguredHTTPClient(httpConfig),
		httpConfig: httpConfig,
		logger:     log,
	}
}

// SetDebug enables request/response dumps at debug level.
func (c *Client) SetDebug(debug bool) {
	c.debug = debug
}

// Endpoints returns the endpoints the client was built with.
func (c *Client) Endpoints() Endpoints {
	return c.endpoints
}

// do sends req and dumps both directions when debug is on. Token bodies are
// never dumped.
func (c *Client) do(req *http.Request, dumpBody bool) (*http.Response, error) {
	if c.debug {
		if dump, err := httputil.DumpRequestOut(req, dumpBody); err == nil {
			c.logger.Debugf("Request:\n%s", dump)
		}
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("network error during %s %s: %w", req.Method, req.URL.Redacted(), err)
	}

	if c.debug {
		if dump, err := httputil.DumpResponse(res, dumpBody); err == nil {
			c.logger.Debugf("Response:\n%s", dump)
		}
	}
	return res, nil
}

// closeBodySafely closes an HTTP response body and logs any error.
func closeBodySafely(body io.Closer, log logger.Logger, operation string) {
	if err := body.Close(); err != nil {
		log.Warnf("Failed to close %s body: %v", operation, err)
	}
}

// readErrorBody reads and returns the error body from an HTTP response, with safe error handling.
func readErrorBody(body io.Reader) string {
	if body == nil {
		return ""
	}
	errorBody, _ := io.ReadAll(io.LimitReader(body, 4096))
	return string(errorBody)
}
