// Package google adapts Google Calendar and Google Docs to the optimizer's
// capability interfaces and manages the OAuth2 credentials they share.
package google

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
)

// DocumentsReadonlyScope grants read access to Google Docs.
const DocumentsReadonlyScope = "https://www.googleapis.com/auth/documents.readonly"

// Scopes are requested on consent and required of a stored token.
var Scopes = []string{calendar.CalendarScope, DocumentsReadonlyScope}

// ErrAuthorizationRequired is returned when no usable token exists and
// interactive consent is not allowed.
var ErrAuthorizationRequired = errors.New("authorization required: run `meeting-optimizer auth`")

// LoadConfig reads an installed-app client secret file.
func LoadConfig(path string) (*oauth2.Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("credentials file %s not found: create an OAuth client ID "+
			"(Desktop app) in the Google Cloud Console under APIs & Services > Credentials, "+
			"enable the Calendar and Docs APIs, and download the JSON to this path", path)
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	cfg, err := google.ConfigFromJSON(data, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse credentials %s: %w", path, err)
	}
	return cfg, nil
}

// storedToken is the on-disk token format.
type storedToken struct {
	Token  *oauth2.Token `json:"token"`
	Scopes []string      `json:"scopes"`
}

// TokenStore persists the OAuth2 token with the scopes it was granted for.
type TokenStore struct {
	path   string
	logger *slog.Logger
}

// NewTokenStore creates a store backed by path.
func NewTokenStore(path string, logger *slog.Logger) *TokenStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenStore{path: path, logger: logger}
}

// Load returns the stored token. A missing, corrupt, or under-scoped file
// yields ErrAuthorizationRequired; the latter two are discarded.
func (s *TokenStore) Load() (*oauth2.Token, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrAuthorizationRequired
	}
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}

	var st storedToken
	if err := json.Unmarshal(data, &st); err != nil || st.Token == nil {
		s.logger.Warn("token file is corrupt, discarding", "path", s.path)
		s.Discard()
		return nil, ErrAuthorizationRequired
	}
	for _, scope := range Scopes {
		if !slices.Contains(st.Scopes, scope) {
			s.logger.Warn("token is missing a required scope, discarding", "path", s.path, "scope", scope)
			s.Discard()
			return nil, ErrAuthorizationRequired
		}
	}
	return st.Token, nil
}

// Save writes tok readable by the owner only.
func (s *TokenStore) Save(tok *oauth2.Token) error {
	data, err := json.MarshalIndent(storedToken{Token: tok, Scopes: Scopes}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(s.path, 0600); err != nil {
		return fmt.Errorf("chmod token: %w", err)
	}
	return nil
}

// Discard removes the stored token.
func (s *TokenStore) Discard() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token: %w", err)
	}
	return nil
}

// persistingSource saves every newly minted token.
type persistingSource struct {
	base   oauth2.TokenSource
	store  *TokenStore
	logger *slog.Logger

	mu   sync.Mutex
	last string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken != p.last {
		if err := p.store.Save(tok); err != nil {
			p.logger.Warn("could not persist refreshed token", "error", err)
		}
		p.last = tok.AccessToken
	}
	return tok, nil
}

// Authorizer produces authenticated HTTP clients.
type Authorizer struct {
	Config *oauth2.Config
	Store  *TokenStore

	// Interactive allows the consent flow when no usable token exists.
	Interactive bool
	In          io.Reader
	Out         io.Writer

	// Timeout bounds each HTTP request, token refreshes included.
	Timeout time.Duration

	Logger *slog.Logger
}

func (a *Authorizer) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}

func (a *Authorizer) withTransport(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: a.Timeout})
}

// Client returns an HTTP client carrying a valid token, refreshing or
// re-authorizing as needed.
func (a *Authorizer) Client(ctx context.Context) (*http.Client, error) {
	ctx = a.withTransport(ctx)

	tok, err := a.token(ctx)
	if errors.Is(err, ErrAuthorizationRequired) {
		if !a.Interactive {
			return nil, err
		}
		tok, err = a.Consent(ctx)
	}
	if err != nil {
		return nil, err
	}

	src := &persistingSource{
		base:   a.Config.TokenSource(ctx, tok),
		store:  a.Store,
		logger: a.logger(),
		last:   tok.AccessToken,
	}
	return oauth2.NewClient(ctx, src), nil
}

// token loads the stored token and refreshes it when expired. A refresh
// rejected by the token endpoint discards the stored token.
func (a *Authorizer) token(ctx context.Context) (*oauth2.Token, error) {
	tok, err := a.Store.Load()
	if err != nil {
		return nil, err
	}
	if tok.Valid() {
		return tok, nil
	}
	if tok.RefreshToken == "" {
		a.Store.Discard()
		return nil, ErrAuthorizationRequired
	}

	fresh, err := a.Config.TokenSource(ctx, tok).Token()
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			a.logger().Warn("token refresh rejected, discarding stored token", "error_code", rerr.ErrorCode)
			a.Store.Discard()
			return nil, ErrAuthorizationRequired
		}
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	if err := a.Store.Save(fresh); err != nil {
		a.logger().Warn("could not persist refreshed token", "error", err)
	}
	return fresh, nil
}

// Consent runs the installed-app consent flow: it prints the consent URL and
// reads back either the code or the full redirect URL.
func (a *Authorizer) Consent(ctx context.Context) (*oauth2.Token, error) {
	if a.In == nil || a.Out == nil {
		return nil, ErrAuthorizationRequired
	}
	ctx = a.withTransport(ctx)

	state := uuid.NewString()
	authURL := a.Config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Fprintf(a.Out, "Open this URL in your browser and grant access:\n\n  %s\n\n", authURL)
	fmt.Fprint(a.Out, "Paste the authorization code or the full redirect URL: ")

	line, err := bufio.NewReader(a.In).ReadString('\n')
	if err != nil && line == "" {
		return nil, fmt.Errorf("read authorization code: %w", err)
	}
	code, err := parseAuthCode(strings.TrimSpace(line), state)
	if err != nil {
		return nil, err
	}

	tok, err := a.Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	if err := a.Store.Save(tok); err != nil {
		return nil, err
	}
	a.logger().Info("authorization complete")
	return tok, nil
}

func parseAuthCode(input, state string) (string, error) {
	if input == "" {
		return "", errors.New("empty authorization code")
	}
	if !strings.Contains(input, "code=") {
		return input, nil
	}
	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("parse redirect URL: %w", err)
	}
	q := u.Query()
	if got := q.Get("state"); got != "" && got != state {
		return "", errors.New("state mismatch in redirect URL")
	}
	code := q.Get("code")
	if code == "" {
		return "", errors.New("redirect URL has no code")
	}
	return code, nil
}
