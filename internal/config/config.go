// Package config loads the two configuration sources of a run: the account
// credentials from the environment (optionally seeded from a .env file) and
// the operational settings from the [INIT] section of settings.ini. Values
// in settings.ini can be overridden with PBI_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
	"gopkg.in/ini.v1"
)

// Default file locations, relative to the working directory.
const (
	DefaultEnvFile      = ".env"
	DefaultSettingsFile = "settings.ini"
	DefaultLogFile      = "logger.log"
)

const (
	settingsSection = "INIT"
	envPrefix       = "PBI"
)

// ErrMissingCredentials is returned when a required credential is unset.
var ErrMissingCredentials = errors.New("missing credentials")

// Credentials identify the app registration and the signing-in account.
type Credentials struct {
	TenantID string `envconfig:"TENANT_ID" required:"true"`
	ClientID string `envconfig:"CLIENT_ID" required:"true"`
	Email    string `envconfig:"EMAIL" required:"true"`
	Password string `envconfig:"PASSWORD" required:"true"`
}

// Settings are the operational options of settings.ini.
type Settings struct {
	ShowScreen bool   `mapstructure:"show_screen"`
	SiteName   string `mapstructure:"site_name"`
	DomainName string `mapstructure:"domain_name"`
	LogFile    string `mapstructure:"log_file"`
	StateDir   string `mapstructure:"state_dir"`
}

// Configuration is everything one run needs to know.
type Configuration struct {
	Credentials Credentials
	Settings    Settings
	Debug       bool
}

// Load reads credentials and settings. A missing .env or settings file is
// not an error; missing credentials are.
func Load(envPath, settingsPath string) (*Configuration, error) {
	creds, err := LoadCredentials(envPath)
	if err != nil {
		return nil, err
	}
	settings, err := LoadSettings(settingsPath)
	if err != nil {
		return nil, err
	}
	return &Configuration{Credentials: creds, Settings: settings}, nil
}

// LoadCredentials seeds the environment from envPath, if it exists, and
// binds the credential variables. Variables already set take precedence
// over the file.
func LoadCredentials(envPath string) (Credentials, error) {
	if envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err != nil {
				return Credentials{}, fmt.Errorf("loading env file '%s': %w", envPath, err)
			}
		}
	}

	var creds Credentials
	if err := envconfig.Process("", &creds); err != nil {
		return Credentials{}, fmt.Errorf("%w: %w", ErrMissingCredentials, err)
	}

	var missing []string
	for name, value := range map[string]string{
		"TENANT_ID": creds.TenantID,
		"CLIENT_ID": creds.ClientID,
		"EMAIL":     creds.Email,
		"PASSWORD":  creds.Password,
	} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return Credentials{}, fmt.Errorf("%w: %s empty", ErrMissingCredentials, strings.Join(missing, ", "))
	}
	return creds, nil
}

// LoadSettings reads the [INIT] section of path and applies PBI_* overrides.
func LoadSettings(path string) (Settings, error) {
	v := viper.New()
	v.SetDefault("show_screen", false)
	v.SetDefault("site_name", "")
	v.SetDefault("domain_name", "")
	v.SetDefault("log_file", DefaultLogFile)
	v.SetDefault("state_dir", "")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	values, err := readINISection(path, settingsSection)
	if err != nil {
		return Settings{}, err
	}
	if err := v.MergeConfigMap(values); err != nil {
		return Settings{}, fmt.Errorf("merging settings: %w", err)
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("decoding settings from '%s': %w", path, err)
	}
	return s, nil
}

// readINISection returns the keys of one section, lowercased. A missing
// file yields no keys.
func readINISection(path, section string) (map[string]any, error) {
	values := map[string]any{}
	if path == "" {
		return values, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return values, nil
	}

	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("reading settings file '%s': %w", path, err)
	}
	for _, key := range file.Section(section).Keys() {
		values[strings.ToLower(key.Name())] = key.String()
	}
	return values, nil
}
