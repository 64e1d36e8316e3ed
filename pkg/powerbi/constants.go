// Package powerbi provides constants used throughout the Power BI SDK.
package powerbi

import "time"

// Default HTTP Configuration Constants
const (
	DefaultTimeout       = 10 * time.Second
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = 5 * time.Second
)

// Device-code flow defaults, used when the authorization server omits them.
const (
	DefaultPollInterval     = 5 * time.Second
	DefaultDeviceCodeExpiry = 15 * time.Minute
)

// Endpoints
const (
	defaultLoginBaseURL = "https://login.microsoftonline.com"
	defaultAPIBaseURL   = "https://api.powerbi.com"
	defaultAppBaseURL   = "https://app.powerbi.com"
)

// PowerBIScope is the audience for the Power BI REST API and the workspace UI.
const PowerBIScope = "https://analysis.windows.net/powerbi/api/.default"

// DeviceCodeGrantType is the grant_type sent while redeeming a device code.
const DeviceCodeGrantType = "urn:ietf:params:oauth:grant-type:device_code"
