package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/sheets/v4"

	"employee-manager/internal/common"
)

// stateTTL bounds how long a consent URL stays usable.
const stateTTL = 10 * time.Minute

var ErrInvalidState = fmt.Errorf("unknown or expired oauth state: %w", common.ErrValidation)

// OAuthConfig builds the Google OAuth client configuration for spreadsheet
// access.
func OAuthConfig(clientID, clientSecret, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Endpoint:     google.Endpoint,
		Scopes:       []string{sheets.SpreadsheetsScope},
	}
}

// Authorizer runs the out-of-band authorization code flow and keeps the
// resulting token in a TokenStore. Tokens are never refreshed implicitly;
// Refresh has to be called.
type Authorizer struct {
	config     *oauth2.Config
	store      TokenStore
	httpClient *http.Client
	logger     *zap.Logger

	mu     sync.Mutex
	states map[string]time.Time // state -> expiry
	now    func() time.Time
}

func NewAuthorizer(config *oauth2.Config, store TokenStore, httpClient *http.Client, logger *zap.Logger) *Authorizer {
	return &Authorizer{
		config:     config,
		store:      store,
		httpClient: httpClient,
		logger:     logger,
		states:     make(map[string]time.Time),
		now:        time.Now,
	}
}

// AuthCodeURL returns the consent page URL and the single-use state bound to
// it. Offline access with forced consent makes Google issue a refresh token.
func (a *Authorizer) AuthCodeURL() (string, string) {
	state := uuid.NewString()

	a.mu.Lock()
	now := a.now()
	for s, exp := range a.states {
		if now.After(exp) {
			delete(a.states, s)
		}
	}
	a.states[state] = now.Add(stateTTL)
	a.mu.Unlock()

	return a.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), state
}

func (a *Authorizer) consumeState(state string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	exp, ok := a.states[state]
	if !ok {
		return false
	}
	delete(a.states, state)
	return !a.now().After(exp)
}

// Exchange trades an authorization code for a token pair and stores it.
func (a *Authorizer) Exchange(ctx context.Context, state, code string) (*oauth2.Token, error) {
	if !a.consumeState(state) {
		return nil, ErrInvalidState
	}
	if code == "" {
		return nil, fmt.Errorf("authorization code is required: %w", common.ErrValidation)
	}

	tok, err := a.config.Exchange(a.clientContext(ctx), code)
	if err != nil {
		a.logger.Error("OAuth code exchange failed", zap.Error(err))
		return nil, fmt.Errorf("exchange authorization code: %w: %w", common.ErrServiceUnavailable, err)
	}
	if err := a.store.Set(ctx, tok); err != nil {
		return nil, fmt.Errorf("store token: %w", err)
	}

	a.logger.Info("Spreadsheet service authorized",
		zap.Time("expiry", tok.Expiry),
		zap.Bool("has_refresh_token", tok.RefreshToken != ""))
	return tok, nil
}

// Refresh obtains a new access token with the stored refresh token and
// stores it.
func (a *Authorizer) Refresh(ctx context.Context) (*oauth2.Token, error) {
	current, err := a.store.Get(ctx)
	if err != nil {
		if errors.Is(err, ErrNoToken) {
			return nil, fmt.Errorf("%w: %w", common.ErrUnauthorized, err)
		}
		return nil, fmt.Errorf("load token: %w", err)
	}
	if current.RefreshToken == "" {
		return nil, fmt.Errorf("stored token has no refresh token: %w", common.ErrUnauthorized)
	}

	// an empty access token forces the source to hit the token endpoint
	src := a.config.TokenSource(a.clientContext(ctx), &oauth2.Token{RefreshToken: current.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		a.logger.Error("OAuth token refresh failed", zap.Error(err))
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil &&
			retrieveErr.Response.StatusCode >= 400 && retrieveErr.Response.StatusCode < 500 {
			return nil, fmt.Errorf("refresh token rejected: %w: %w", common.ErrUnauthorized, err)
		}
		return nil, fmt.Errorf("refresh token: %w: %w", common.ErrServiceUnavailable, err)
	}
	if err := a.store.Set(ctx, tok); err != nil {
		return nil, fmt.Errorf("store token: %w", err)
	}

	a.logger.Info("Spreadsheet token refreshed", zap.Time("expiry", tok.Expiry))
	return tok, nil
}

// Status returns the stored token, or nil when none is stored.
func (a *Authorizer) Status(ctx context.Context) (*oauth2.Token, error) {
	tok, err := a.store.Get(ctx)
	if errors.Is(err, ErrNoToken) {
		return nil, nil
	}
	return tok, err
}

func (a *Authorizer) clientContext(ctx context.Context) context.Context {
	if a.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
}
