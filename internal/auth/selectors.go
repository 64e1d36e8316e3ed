package auth

// Microsoft sign-in page selectors.
const (
	// device login page
	selectorOTC         = "[id='otc']"
	selectorAccountTile = "[class='table'][role='button'][aria-describedby='tileError loginHeader']"
	selectorEmail       = "[type='email'][id='i0116']"
	selectorPassword    = "[type='password'][id='i0118']"
	selectorContinue    = "[id='idSIButton9']"

	// login page shown when a workspace navigation is redirected
	selectorRedirectEmail    = "[id='email']"
	selectorRedirectPassword = "[id='i0118']"
	selectorStaySignedInNo   = "[id='idBtn_Back']"
)

// signInURLFragments mark a URL as a sign-in page.
var signInURLFragments = []string{"singleSignOn", "signin", "login"}
