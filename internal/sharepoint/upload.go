// Package sharepoint publishes a run snapshot as an Excel workbook to a
// fixed file in a SharePoint document library.
package sharepoint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tonimelisma/pbi-refresh-monitor/internal/logger"
	"github.com/tonimelisma/pbi-refresh-monitor/pkg/powerbi"
)

// Sentinel errors
var (
	ErrInvalidTarget = errors.New("invalid sharepoint target")
	ErrUpload        = errors.New("sharepoint upload failed")
)

// Library folder and file name of the published workbook.
const (
	libraryFolder = "Shared Documents/Configurações - Monitoramento BIs"
	fileName      = "update-pbis-log.xlsx"
)

// placeholderName is what an unconfigured settings.ini holds.
const placeholderName = "none"

// Target is the SharePoint site the workbook is published to.
type Target struct {
	Domain string
	Site   string
}

// Validate rejects empty or placeholder names.
func (t Target) Validate() error {
	if t.Domain == "" || t.Domain == placeholderName {
		return fmt.Errorf("%w: domain name is not set", ErrInvalidTarget)
	}
	if t.Site == "" || t.Site == placeholderName {
		return fmt.Errorf("%w: site name is not set", ErrInvalidTarget)
	}
	return nil
}

// Scope is the token audience for the tenant's SharePoint.
func (t Target) Scope() string {
	return fmt.Sprintf("https://%s.sharepoint.com/.default", t.Domain)
}

// BaseURL is the tenant's SharePoint root.
func (t Target) BaseURL() string {
	return fmt.Sprintf("https://%s.sharepoint.com", t.Domain)
}

// FilePath is the server-relative path of the workbook.
func (t Target) FilePath() string {
	return fmt.Sprintf("/sites/%s/%s/%s", t.Site, libraryFolder, fileName)
}

// FileURL is the REST endpoint whose $value is the workbook content.
func (t Target) FileURL(baseURL string) string {
	return fmt.Sprintf("%s/sites/%s/_api/web/GetFileByServerRelativeUrl('%s')/$value",
		strings.TrimRight(baseURL, "/"), url.PathEscape(t.Site), escapePath(t.FilePath()))
}

// escapePath percent-encodes each segment, keeping the slashes.
func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

// Uploader replaces the workbook file with a single PUT.
type Uploader struct {
	target     Target
	baseURL    string
	httpClient *http.Client
	logger     logger.Logger
}

// NewUploader creates an Uploader for target. An empty baseURL means
// target.BaseURL().
func NewUploader(target Target, baseURL string, httpConfig powerbi.HTTPConfig, log logger.Logger) *Uploader {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if baseURL == "" {
		baseURL = target.BaseURL()
	}
	return &Uploader{
		target:     target,
		baseURL:    baseURL,
		httpClient: powerbi.NewConfiguredHTTPClient(httpConfig),
		logger:     log,
	}
}

// Upload PUTs content to the workbook URL. The token must have been issued
// for the target's SharePoint scope. Only 200, 201 and 204 count as success.
func (u *Uploader) Upload(ctx context.Context, token *powerbi.AccessToken, content []byte) error {
	if err := token.RequireScope(u.target.Scope()); err != nil {
		return fmt.Errorf("%w: %w", ErrUpload, err)
	}

	fileURL := u.target.FileURL(u.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, fileURL, bytes.NewReader(content))
	if err != nil {
		return fmt.Errorf("%w: creating request: %w", ErrUpload, err)
	}
	token.SetAuthHeader(req)

	res, err := u.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpload, err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		u.logger.Info("Workbook published", "path", u.target.FilePath(), "bytes", len(content))
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	return fmt.Errorf("%w: status %s: %s", ErrUpload, res.Status, body)
}

// TokenFunc obtains an access token for scope.
type TokenFunc func(ctx context.Context, scope string) (*powerbi.AccessToken, error)

// Publisher builds the workbook and uploads it with a token of its own.
type Publisher struct {
	target   Target
	token    TokenFunc
	uploader *Uploader
	logger   logger.Logger
}

// NewPublisher creates a Publisher.
func NewPublisher(target Target, token TokenFunc, uploader *Uploader, log logger.Logger) *Publisher {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &Publisher{target: target, token: token, uploader: uploader, logger: log}
}

// Publish requests a SharePoint token, renders snap and uploads it.
func (p *Publisher) Publish(ctx context.Context, snap powerbi.RunSnapshot) error {
	if err := p.target.Validate(); err != nil {
		return err
	}

	content, err := BuildWorkbook(snap)
	if err != nil {
		return err
	}

	token, err := p.token(ctx, p.target.Scope())
	if err != nil {
		return fmt.Errorf("obtaining sharepoint token: %w", err)
	}

	if err := p.uploader.Upload(ctx, token, content); err != nil {
		p.logger.Error("Could not publish workbook", "error", err.Error())
		return err
	}
	return nil
}
