package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"runtime"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Environment variables holding the OAuth client registered in the Google
// Cloud console.
const (
	EnvClientID     = "CALMERGE_GOOGLE_CLIENT_ID"
	EnvClientSecret = "CALMERGE_GOOGLE_CLIENT_SECRET"
	EnvRedirectURL  = "CALMERGE_GOOGLE_REDIRECT_URL"
)

// DefaultAccount is used when no account name is given.
const DefaultAccount = "default"

const oobRedirectURL = "urn:ietf:wg:oauth:2.0:oob"

var (
	// ErrNoToken is returned when no token has been stored for an account.
	ErrNoToken = errors.New("no Google OAuth token stored")

	// ErrMissingClient is returned when the OAuth client env vars are unset.
	ErrMissingClient = fmt.Errorf("google OAuth client not configured; set %s and %s", EnvClientID, EnvClientSecret)

	accountNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

func validateAccountName(account string) error {
	if account == "" {
		return errors.New("account name cannot be empty")
	}
	if !accountNamePattern.MatchString(account) {
		return fmt.Errorf("invalid account name %q: only letters, digits, '-' and '_' are allowed", account)
	}
	return nil
}

// TokenDir returns the directory holding per-account token files.
func TokenDir() string {
	return filepath.Join(userCacheDir(), "calmerge")
}

func getTokenFilePath(account string) string {
	return filepath.Join(TokenDir(), "google-"+account+".token")
}

// HasTokenForAccount reports whether a token file exists for account.
func HasTokenForAccount(account string) bool {
	if validateAccountName(account) != nil {
		return false
	}
	_, err := os.Stat(getTokenFilePath(account))
	return err == nil
}

// OAuthConfig returns the OAuth2 configuration for read-only calendar
// access, or ErrMissingClient.
func OAuthConfig() (*oauth2.Config, error) {
	clientID := os.Getenv(EnvClientID)
	clientSecret := os.Getenv(EnvClientSecret)
	if clientID == "" || clientSecret == "" {
		return nil, ErrMissingClient
	}

	redirect := os.Getenv(EnvRedirectURL)
	if redirect == "" {
		redirect = oobRedirectURL
	}

	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  redirect,
		Scopes:       CalendarScopes,
	}, nil
}

// GetAuthURL returns the consent URL for account. Offline access is
// requested so a refresh token is issued.
func GetAuthURL(account string) (string, error) {
	if err := validateAccountName(account); err != nil {
		return "", err
	}
	conf, err := OAuthConfig()
	if err != nil {
		return "", err
	}
	return conf.AuthCodeURL(account, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// SaveTokenForAccount exchanges an authorization code and stores the
// resulting token for account.
func SaveTokenForAccount(ctx context.Context, account, authCode string) error {
	if err := validateAccountName(account); err != nil {
		return err
	}
	conf, err := OAuthConfig()
	if err != nil {
		return err
	}

	t, err := conf.Exchange(ctx, authCode)
	if err != nil {
		return fmt.Errorf("failed to exchange auth code: %w", err)
	}
	return writeToken(account, t)
}

func writeToken(account string, t *oauth2.Token) error {
	if err := os.MkdirAll(TokenDir(), 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := os.WriteFile(getTokenFilePath(account), data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

func readToken(account string) (*oauth2.Token, error) {
	if err := validateAccountName(account); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(getTokenFilePath(account))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w for account %q", ErrNoToken, account)
		}
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var t oauth2.Token
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("invalid token file for account %q: %w", account, err)
	}
	return &t, nil
}

// GetTokenSourceForAccount returns a refreshing token source built from
// the stored token of account.
func GetTokenSourceForAccount(ctx context.Context, account string) (oauth2.TokenSource, error) {
	t, err := readToken(account)
	if err != nil {
		return nil, err
	}
	conf, err := OAuthConfig()
	if err != nil {
		return nil, err
	}
	return conf.TokenSource(ctx, t), nil
}

// GetHTTPClientForAccount returns an HTTP client authorized as account.
// HTTP/2 is disabled on the base transport.
func GetHTTPClientForAccount(ctx context.Context, provider TokenProvider, account string) (*http.Client, error) {
	t, err := provider.GetTokenForAccount(ctx, account)
	if err != nil {
		return nil, err
	}

	ts := oauth2.StaticTokenSource(t)
	if conf, err := OAuthConfig(); err == nil {
		ts = conf.TokenSource(ctx, t)
	}

	return &http.Client{
		Transport: &oauth2.Transport{
			Source: ts,
			Base:   &http.Transport{ForceAttemptHTTP2: false},
		},
	}, nil
}

// GetAuthenticationErrorMessage explains how to authorize account.
func GetAuthenticationErrorMessage(account string) string {
	return fmt.Sprintf("Google OAuth token missing or expired for account %q. Run `calmerge auth --account %s` to authorize read access to the calendar.", account, account)
}

func userCacheDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Caches")
	case "windows":
		for _, ev := range []string{"TEMP", "TMP"} {
			if v := os.Getenv(ev); v != "" {
				return v
			}
		}
		return os.TempDir()
	}
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return xdg
	}
	return filepath.Join(homeDir(), ".cache")
}

func homeDir() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("HOMEDRIVE") + os.Getenv("HOMEPATH")
	}
	return os.Getenv("HOME")
}
