package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"employee-manager/internal/crypto"
	"employee-manager/internal/sheets"
)

var _ sheets.TokenStore = (*TokenRepository)(nil)

const googleProvider = "google"

// TokenRepository keeps the spreadsheet OAuth token across restarts. The
// token is stored sealed under the master key.
type TokenRepository struct {
	db     *sqlx.DB
	sealer *crypto.Sealer
	logger *zap.Logger
}

func NewTokenRepository(db *sqlx.DB, sealer *crypto.Sealer, logger *zap.Logger) *TokenRepository {
	return &TokenRepository{db: db, sealer: sealer, logger: logger}
}

// Get returns sheets.ErrNoToken when no token has been saved yet.
func (r *TokenRepository) Get(ctx context.Context) (*oauth2.Token, error) {
	var sealed string
	query := r.db.Rebind(`SELECT sealed_token FROM oauth_tokens WHERE provider = ?`)
	if err := r.db.GetContext(ctx, &sealed, query, googleProvider); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sheets.ErrNoToken
		}
		return nil, fmt.Errorf("load oauth token: %w", err)
	}

	raw, err := r.sealer.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("open oauth token: %w", err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("decode oauth token: %w", err)
	}
	return &tok, nil
}

// Set replaces the stored token.
func (r *TokenRepository) Set(ctx context.Context, tok *oauth2.Token) error {
	raw, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode oauth token: %w", err)
	}
	sealed, err := r.sealer.Seal(raw)
	if err != nil {
		return fmt.Errorf("seal oauth token: %w", err)
	}

	query := r.db.Rebind(`INSERT INTO oauth_tokens (provider, sealed_token) VALUES (?, ?)
	ON CONFLICT (provider) DO UPDATE SET sealed_token = excluded.sealed_token, updated_at = CURRENT_TIMESTAMP`)
	if _, err := r.db.ExecContext(ctx, query, googleProvider, sealed); err != nil {
		r.logger.Error("Failed to save oauth token", zap.Error(err))
		return fmt.Errorf("save oauth token: %w", err)
	}
	return nil
}
