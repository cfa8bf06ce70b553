package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"employee-manager/internal/common"
)

// SheetsAuthorizer runs the manual spreadsheet authorization step.
type SheetsAuthorizer interface {
	AuthCodeURL() (string, string)
	Exchange(ctx context.Context, state, code string) (*oauth2.Token, error)
	Refresh(ctx context.Context) (*oauth2.Token, error)
	Status(ctx context.Context) (*oauth2.Token, error)
}

type SheetsHandler struct {
	authorizer SheetsAuthorizer // nil when the spreadsheet is not configured
	logger     *zap.Logger
}

func NewSheetsHandler(authorizer SheetsAuthorizer, logger *zap.Logger) *SheetsHandler {
	return &SheetsHandler{authorizer: authorizer, logger: logger}
}

func (h *SheetsHandler) configured(c *gin.Context) bool {
	if h.authorizer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Spreadsheet service is not configured"})
		return false
	}
	return true
}

// AuthURL returns the Google consent page the operator has to visit once.
func (h *SheetsHandler) AuthURL(c *gin.Context) {
	if !h.configured(c) {
		return
	}
	authURL, state := h.authorizer.AuthCodeURL()
	c.JSON(http.StatusOK, gin.H{
		"auth_url": authURL,
		"state":    state,
	})
}

// Callback receives the redirect from the consent page.
func (h *SheetsHandler) Callback(c *gin.Context) {
	if !h.configured(c) {
		return
	}
	if reason := c.Query("error"); reason != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Authorization denied: " + reason})
		return
	}

	tok, err := h.authorizer.Exchange(c.Request.Context(), c.Query("state"), c.Query("code"))
	if err != nil {
		switch {
		case errors.Is(err, common.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, common.ErrServiceUnavailable):
			c.JSON(http.StatusBadGateway, gin.H{"error": "Authorization code exchange failed"})
		default:
			respondError(c, h.logger, err, "Failed to store spreadsheet authorization")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Spreadsheet access authorized.",
		"expiry":  tok.Expiry,
	})
}

func (h *SheetsHandler) Refresh(c *gin.Context) {
	if !h.configured(c) {
		return
	}

	tok, err := h.authorizer.Refresh(c.Request.Context())
	if err != nil {
		switch {
		case errors.Is(err, common.ErrUnauthorized):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Spreadsheet access is not authorized"})
		case errors.Is(err, common.ErrServiceUnavailable):
			c.JSON(http.StatusBadGateway, gin.H{"error": "Token refresh failed"})
		default:
			respondError(c, h.logger, err, "Failed to refresh spreadsheet token")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"expiry": tok.Expiry})
}

func (h *SheetsHandler) Status(c *gin.Context) {
	if h.authorizer == nil {
		c.JSON(http.StatusOK, gin.H{"configured": false, "authorized": false})
		return
	}

	tok, err := h.authorizer.Status(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err, "Failed to read spreadsheet authorization")
		return
	}

	body := gin.H{"configured": true, "authorized": tok != nil}
	if tok != nil {
		body["expiry"] = tok.Expiry
	}
	c.JSON(http.StatusOK, body)
}
