package sheets

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/oauth2"
)

// ErrNoToken is returned by a TokenStore before the manual authorization step
// has completed.
var ErrNoToken = errors.New("spreadsheet service is not authorized")

// TokenStore holds the OAuth token used for spreadsheet calls. It is set
// after the authorization code exchange and read on every call.
type TokenStore interface {
	Get(ctx context.Context) (*oauth2.Token, error)
	Set(ctx context.Context, token *oauth2.Token) error
}

// MemoryTokenStore keeps the token for the lifetime of the process.
type MemoryTokenStore struct {
	mu    sync.RWMutex
	token *oauth2.Token
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) Get(_ context.Context) (*oauth2.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == nil {
		return nil, ErrNoToken
	}
	tok := *s.token
	return &tok, nil
}

func (s *MemoryTokenStore) Set(_ context.Context, token *oauth2.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok := *token
	s.token = &tok
	return nil
}
