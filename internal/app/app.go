// Package app builds the components of a run from the configuration and
// wires them together. Nothing here is global: each command constructs an
// App, uses it and closes it.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/pbi-refresh-monitor/internal/auth"
	"github.com/tonimelisma/pbi-refresh-monitor/internal/browser"
	"github.com/tonimelisma/pbi-refresh-monitor/internal/config"
	"github.com/tonimelisma/pbi-refresh-monitor/internal/logger"
	"github.com/tonimelisma/pbi-refresh-monitor/internal/scraper"
	"github.com/tonimelisma/pbi-refresh-monitor/internal/session"
	"github.com/tonimelisma/pbi-refresh-monitor/internal/sharepoint"
	"github.com/tonimelisma/pbi-refresh-monitor/pkg/powerbi"
)

// App holds the components of one command invocation.
type App struct {
	Config   *config.Configuration
	Logger   logger.Logger
	Client   *powerbi.Client
	Auth     *auth.Authenticator
	Browsers browser.Factory
	State    *session.Manager

	// HTTPConfig also sets the retry policy of the workspace scraper.
	HTTPConfig powerbi.HTTPConfig
	// SharePointBaseURL overrides the tenant's SharePoint root.
	SharePointBaseURL string
	// ConfigureDriver, if set, adjusts every scraping driver.
	ConfigureDriver func(*browser.Driver)

	closers []io.Closer
}

// Options override the production defaults of New. Zero fields keep them.
type Options struct {
	Logger     logger.Logger
	Endpoints  powerbi.Endpoints
	HTTPConfig powerbi.HTTPConfig
}

// NewApp loads the configuration named by the command's persistent flags
// and builds the production components: a log file, the Power BI client and
// a Chrome launcher.
func NewApp(cmd *cobra.Command) (*App, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	settingsFile, _ := cmd.Flags().GetString("settings")
	debug, _ := cmd.Flags().GetBool("debug")

	cfg, err := config.Load(envFile, settingsFile)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	cfg.Debug = debug
	if stateDir, _ := cmd.Flags().GetString("state-dir"); stateDir != "" {
		cfg.Settings.StateDir = stateDir
	}

	log, closer, err := logger.NewFileLogger(cfg.Settings.LogFile, cfg.Debug)
	if err != nil {
		return nil, err
	}

	state, err := newStateManager(cfg.Settings.StateDir)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	opts := browser.Options{ShowScreen: cfg.Settings.ShowScreen}
	a := New(cfg, state, browser.NewRodFactory(opts, log), Options{Logger: log})
	a.closers = append(a.closers, closer)
	return a, nil
}

// New assembles an App from already built parts.
func New(cfg *config.Configuration, state *session.Manager, browsers browser.Factory, opts Options) *App {
	log := opts.Logger
	if log == nil {
		log = logger.NoopLogger{}
	}
	endpoints := opts.Endpoints
	if endpoints == (powerbi.Endpoints{}) {
		endpoints = powerbi.DefaultEndpoints()
	}
	httpConfig := opts.HTTPConfig
	if httpConfig == (powerbi.HTTPConfig{}) {
		httpConfig = powerbi.DefaultHTTPConfig()
	}

	client := powerbi.NewClient(endpoints, httpConfig, log)
	client.SetDebug(cfg.Debug)

	creds := auth.Credentials{
		TenantID: cfg.Credentials.TenantID,
		ClientID: cfg.Credentials.ClientID,
		Email:    cfg.Credentials.Email,
		Password: cfg.Credentials.Password,
	}

	return &App{
		Config:     cfg,
		Logger:     log,
		Client:     client,
		Auth:       auth.New(client, creds, log),
		Browsers:   browsers,
		State:      state,
		HTTPConfig: httpConfig,
	}
}

func newStateManager(dir string) (*session.Manager, error) {
	if dir != "" {
		return session.NewManagerWithStateDir(dir), nil
	}
	return session.NewManager()
}

// Close releases the log file.
func (a *App) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

// NewSession builds a scrape session over the App's components.
func (a *App) NewSession() *scraper.Session {
	s := scraper.NewSession(a.Browsers, a.Auth, a.Client, a.Logger)
	// retry-go treats zero attempts as unlimited.
	s.RetryAttempts = max(a.HTTPConfig.RetryAttempts, 1)
	s.RetryDelay = a.HTTPConfig.RetryDelay
	s.ConfigureDriver = a.ConfigureDriver
	return s
}

// Publisher builds the SharePoint publisher. Its token is requested in a
// browser session of its own.
func (a *App) Publisher() (*sharepoint.Publisher, error) {
	target := sharepoint.Target{
		Domain: a.Config.Settings.DomainName,
		Site:   a.Config.Settings.SiteName,
	}
	if err := target.Validate(); err != nil {
		return nil, err
	}

	tokens := func(ctx context.Context, scope string) (*powerbi.AccessToken, error) {
		return a.Auth.AuthenticateInNewSession(ctx, a.Browsers, scope)
	}
	uploader := sharepoint.NewUploader(target, a.SharePointBaseURL, a.HTTPConfig, a.Logger)
	return sharepoint.NewPublisher(target, tokens, uploader, a.Logger), nil
}

// RunOptions select what happens after the scrape.
type RunOptions struct {
	Publish    bool
	OutputPath string
	OnProgress scraper.ProgressFunc
}

// Run scrapes every workspace under the run lock, archives the snapshot,
// optionally writes it as JSON and publishes it. A publishing failure is
// returned after the snapshot has been archived.
func (a *App) Run(ctx context.Context, opts RunOptions) (powerbi.RunSnapshot, error) {
	var publisher *sharepoint.Publisher
	if opts.Publish {
		p, err := a.Publisher()
		if err != nil {
			return nil, err
		}
		publisher = p
	}

	lock, err := a.State.AcquireRunLock()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			a.Logger.Warn("Failed to release run lock", "error", err.Error())
		}
	}()

	s := a.NewSession()
	s.OnProgress = opts.OnProgress
	snap, err := s.Run(ctx)
	if err != nil {
		return nil, err
	}

	if err := a.State.SaveSnapshot(snap); err != nil {
		return snap, fmt.Errorf("archiving snapshot: %w", err)
	}

	if opts.OutputPath != "" {
		if err := writeJSON(opts.OutputPath, snap); err != nil {
			return snap, err
		}
	}

	if publisher != nil {
		if err := publisher.Publish(ctx, snap); err != nil {
			return snap, fmt.Errorf("publishing snapshot: %w", err)
		}
	}
	return snap, nil
}

// ListWorkspaces authenticates and returns the tenant's workspaces.
func (a *App) ListWorkspaces(ctx context.Context) ([]powerbi.WorkspaceRef, error) {
	return a.NewSession().ListWorkspaces(ctx)
}

func writeJSON(path string, snap powerbi.RunSnapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing snapshot to '%s': %w", path, err)
	}
	return nil
}
