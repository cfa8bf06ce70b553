// Package sheets reads and appends employee rows in a Google spreadsheet.
// Calls are authorized with the token held in a TokenStore.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"employee-manager/internal/common"
)

type Config struct {
	SpreadsheetID string
	// Endpoint overrides the Sheets API base URL, for tests.
	Endpoint string
}

// Client is built once at startup and shared by every request.
type Client struct {
	svc           *sheets.Service
	spreadsheetID string
	store         TokenStore
	logger        *zap.Logger
}

// NewClient builds the Sheets service on top of httpClient. The token is
// looked up in store for every request.
func NewClient(ctx context.Context, cfg Config, store TokenStore, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	if cfg.SpreadsheetID == "" {
		return nil, errors.New("spreadsheet id is required")
	}

	base := http.DefaultTransport
	if httpClient != nil && httpClient.Transport != nil {
		base = httpClient.Transport
	}
	authorized := &http.Client{
		Transport: &storeTransport{store: store, base: base},
	}
	if httpClient != nil {
		authorized.Timeout = httpClient.Timeout
	}

	opts := []option.ClientOption{option.WithHTTPClient(authorized)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		store:         store,
		logger:        logger,
	}, nil
}

// FetchRows returns the rows in rng as strings. An empty range yields an
// empty slice.
func (c *Client) FetchRows(ctx context.Context, rng string) ([][]string, error) {
	if err := c.checkAuthorized(ctx); err != nil {
		return nil, err
	}

	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, c.mapError("fetch rows", err)
	}

	rows := make([][]string, 0, len(resp.Values))
	for _, values := range resp.Values {
		row := make([]string, len(values))
		for i, v := range values {
			row[i] = fmt.Sprint(v)
		}
		rows = append(rows, row)
	}

	c.logger.Debug("Fetched spreadsheet rows", zap.String("range", rng), zap.Int("rows", len(rows)))
	return rows, nil
}

// AppendRow appends row after the last row of rng. Values are stored as
// entered.
func (c *Client) AppendRow(ctx context.Context, rng string, row []string) error {
	if err := c.checkAuthorized(ctx); err != nil {
		return err
	}

	values := make([]interface{}, len(row))
	for i, v := range row {
		values[i] = v
	}

	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, &sheets.ValueRange{
		Values: [][]interface{}{values},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return c.mapError("append row", err)
	}

	c.logger.Debug("Appended spreadsheet row", zap.String("range", rng))
	return nil
}

func (c *Client) checkAuthorized(ctx context.Context) error {
	if _, err := c.store.Get(ctx); err != nil {
		if errors.Is(err, ErrNoToken) {
			return fmt.Errorf("%w: %w", common.ErrUnauthorized, err)
		}
		return fmt.Errorf("load token: %w", err)
	}
	return nil
}

func (c *Client) mapError(op string, err error) error {
	if errors.Is(err, ErrNoToken) {
		return fmt.Errorf("%s: %w: %w", op, common.ErrUnauthorized, err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%s: %w: %v", op, common.ErrUnauthorized, apiErr.Message)
		}
	}

	c.logger.Error("Spreadsheet call failed", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%s: %w: %v", op, common.ErrServiceUnavailable, err)
}

// storeTransport sets the Authorization header from the stored token.
type storeTransport struct {
	store TokenStore
	base  http.RoundTripper
}

func (t *storeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	tok, err := t.store.Get(req.Context())
	if err != nil {
		return nil, err
	}
	r := req.Clone(req.Context())
	tok.SetAuthHeader(r)
	return t.base.RoundTrip(r)
}
