//go:build e2e

package e2e

import (
	"context"
	"errors"
	"testing"

	"github.com/tonimelisma/pbi-refresh-monitor/internal/app"
	"github.com/tonimelisma/pbi-refresh-monitor/internal/browser"
	"github.com/tonimelisma/pbi-refresh-monitor/internal/config"
	"github.com/tonimelisma/pbi-refresh-monitor/internal/logger"
	"github.com/tonimelisma/pbi-refresh-monitor/internal/session"
)

// E2ETestHelper drives a real Chrome against the configured tenant.
type E2ETestHelper struct {
	App    *app.App
	Config *Config
}

// NewE2ETestHelper builds an App from the repository's .env and
// settings.ini. The archive goes to a temporary directory.
func NewE2ETestHelper(t *testing.T) *E2ETestHelper {
	t.Helper()

	tc := LoadConfig()
	cfg, err := config.Load(tc.EnvFile, tc.SettingsFile)
	if errors.Is(err, config.ErrMissingCredentials) {
		t.Skip(`
E2E Testing Setup Required:

1. Put TENANT_ID, CLIENT_ID, EMAIL and PASSWORD in ./.env
2. Put the [INIT] section with site_name and domain_name in ./settings.ini
3. Run: go test -tags=e2e -v ./e2e/...
`)
	}
	if err != nil {
		t.Fatalf("Failed to load configuration: %v", err)
	}
	cfg.Settings.ShowScreen = tc.ShowScreen

	log := logger.NewDefaultLogger(true)
	factory := browser.NewRodFactory(browser.Options{ShowScreen: tc.ShowScreen}, log)
	a := app.New(cfg, session.NewManagerWithStateDir(t.TempDir()), factory, app.Options{Logger: log})

	return &E2ETestHelper{App: a, Config: tc}
}

// Context returns a context bounded by the configured timeout.
func (h *E2ETestHelper) Context(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), h.Config.Timeout)
	t.Cleanup(cancel)
	return ctx
}
