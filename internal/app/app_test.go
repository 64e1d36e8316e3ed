package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/pbi-refresh-monitor/internal/browser"
	"github.com/tonimelisma/pbi-refresh-monitor/internal/browser/browsertest"
	"github.com/tonimelisma/pbi-refresh-monitor/internal/config"
	"github.com/tonimelisma/pbi-refresh-monitor/internal/session"
	"github.com/tonimelisma/pbi-refresh-monitor/internal/sharepoint"
	"github.com/tonimelisma/pbi-refresh-monitor/pkg/powerbi"
)

const financeURL = "https://app.example/groups/g1"

const financePage = `<html><body>
<h1 class="workspace-name">Finance</h1>
<cdk-virtual-scroll-viewport id="artifactContentView"><div class="cdk-virtual-scroll-content-wrapper">
<div role="row">
<span class="name-container"><a class="name">Sales</a></span>
<span data-testid="fluentListCell.type" title="Relatório">Relatório</span>
<span data-testid="fluentListCell.lastRefresh" title="05/03/2024 08:00"></span>
<span data-testid="fluentListCell.nextRefresh" title="06/03/2024 08:00"></span>
</div>
</div></cdk-virtual-scroll-viewport>
</body></html>`

// tenant fakes the identity platform, the Power BI API and SharePoint.
type tenant struct {
	mu      sync.Mutex
	scopes  []string
	uploads []string
}

func (tn *tenant) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/tenant-1/oauth2/v2.0/devicecode", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		tn.mu.Lock()
		tn.scopes = append(tn.scopes, r.PostForm.Get("scope"))
		tn.mu.Unlock()
		writeJSONResponse(w, map[string]any{
			"device_code":      "dev-1",
			"user_code":        "ABCD-EFGH",
			"verification_uri": "https://microsoft.com/devicelogin",
			"expires_in":       900,
			"interval":         1,
		})
	})
	mux.HandleFunc("/tenant-1/oauth2/v2.0/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(w, map[string]any{"access_token": "tok", "token_type": "Bearer", "expires_in": 3600})
	})
	mux.HandleFunc("/v1.0/myorg/groups", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		writeJSONResponse(w, map[string]any{"value": []map[string]string{{"id": "g1", "name": "Finance"}}})
	})
	mux.HandleFunc("/sites/BI/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.NotEmpty(t, body)
		tn.mu.Lock()
		tn.uploads = append(tn.uploads, r.URL.Path)
		tn.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	})
	return mux
}

func writeJSONResponse(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newPortal() *browsertest.Fake {
	fake := browsertest.New(
		"[id='otc']",
		"[class='table'][role='button'][aria-describedby='tileError loginHeader']",
	)
	fake.OnNavigate = func(f *browsertest.Fake, url string) error {
		if url == financeURL {
			f.SetSource(financePage)
			f.Show("cdk-virtual-scroll-viewport")
		} else {
			f.Hide("cdk-virtual-scroll-viewport")
		}
		return nil
	}
	return fake
}

func newTestApp(t *testing.T, serverURL string, fake *browsertest.Fake) *App {
	cfg := &config.Configuration{
		Credentials: config.Credentials{TenantID: "tenant-1", ClientID: "client-1", Email: "bi@contoso.com", Password: "secret"},
		Settings:    config.Settings{SiteName: "BI", DomainName: "contoso"},
	}
	a := New(cfg, session.NewManagerWithStateDir(t.TempDir()), fake.Factory(), Options{
		Endpoints:  powerbi.Endpoints{LoginBaseURL: serverURL, APIBaseURL: serverURL, AppBaseURL: "https://app.example"},
		HTTPConfig: powerbi.HTTPConfig{Timeout: 2 * time.Second, RetryAttempts: 3, RetryDelay: time.Millisecond},
	})
	a.Auth.SettleDelay = 0
	a.SharePointBaseURL = serverURL
	a.ConfigureDriver = func(d *browser.Driver) {
		d.ReadyTimeout = 10 * time.Millisecond
		d.ReadyPollInterval = time.Millisecond
	}
	return a
}

func TestRunScrapesArchivesAndPublishes(t *testing.T) {
	tn := &tenant{}
	ts := httptest.NewServer(tn.handler(t))
	defer ts.Close()
	fake := newPortal()
	a := newTestApp(t, ts.URL, fake)

	out := filepath.Join(t.TempDir(), "run.json")
	snap, err := a.Run(context.Background(), RunOptions{Publish: true, OutputPath: out})
	require.NoError(t, err)

	require.Len(t, snap, 1)
	for _, run := range snap {
		require.Contains(t, run, "Finance")
		assert.Equal(t, "Relatório", run["Finance"]["Sales"].ItemType)
	}

	archived, err := a.State.LoadSnapshots()
	require.NoError(t, err)
	assert.Equal(t, snap, archived)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var written powerbi.RunSnapshot
	require.NoError(t, json.Unmarshal(data, &written))
	assert.Equal(t, snap, written)

	assert.Equal(t, []string{powerbi.PowerBIScope, "https://contoso.sharepoint.com/.default"}, tn.scopes)
	require.Len(t, tn.uploads, 1)
	assert.True(t, strings.HasPrefix(tn.uploads[0], "/sites/BI/_api/web/GetFileByServerRelativeUrl"))
	assert.Equal(t, 2, fake.QuitCalls(), "scrape and publish sessions are both closed")
}

func TestRunWithoutPublish(t *testing.T) {
	tn := &tenant{}
	ts := httptest.NewServer(tn.handler(t))
	defer ts.Close()
	a := newTestApp(t, ts.URL, newPortal())

	_, err := a.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Empty(t, tn.uploads)
	assert.Equal(t, []string{powerbi.PowerBIScope}, tn.scopes)
}

func TestRunRejectsInvalidTargetBeforeScraping(t *testing.T) {
	fake := newPortal()
	a := newTestApp(t, "http://127.0.0.1:0", fake)
	a.Config.Settings.SiteName = "none"

	_, err := a.Run(context.Background(), RunOptions{Publish: true})
	assert.ErrorIs(t, err, sharepoint.ErrInvalidTarget)
	assert.Empty(t, fake.Navigations())
}

func TestRunHonoursRunLock(t *testing.T) {
	fake := newPortal()
	a := newTestApp(t, "http://127.0.0.1:0", fake)

	lock, err := a.State.AcquireRunLock()
	require.NoError(t, err)
	defer lock.Release()

	_, err = a.Run(context.Background(), RunOptions{})
	assert.ErrorIs(t, err, session.ErrLocked)
	assert.Empty(t, fake.Navigations())
}

func TestListWorkspaces(t *testing.T) {
	ts := httptest.NewServer((&tenant{}).handler(t))
	defer ts.Close()
	a := newTestApp(t, ts.URL, newPortal())

	refs, err := a.ListWorkspaces(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []powerbi.WorkspaceRef{{ID: "g1", Name: "Finance", URL: financeURL}}, refs)
}

func TestCloseIsIdempotent(t *testing.T) {
	a := newTestApp(t, "http://127.0.0.1:0", newPortal())
	assert.NoError(t, a.Close())
	assert.NoError(t, a.Close())
}

func TestNewSessionNeverRetriesForever(t *testing.T) {
	cfg := &config.Configuration{}
	a := New(cfg, session.NewManagerWithStateDir(t.TempDir()), newPortal().Factory(), Options{
		HTTPConfig: powerbi.HTTPConfig{Timeout: time.Second},
	})

	s := a.NewSession()
	assert.Equal(t, uint(1), s.RetryAttempts)
	assert.Equal(t, time.Duration(0), s.RetryDelay)
}
