package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/agriledger/internal/archive"
	"github.com/jmerrifield20/agriledger/internal/certification/model"
	"github.com/jmerrifield20/agriledger/internal/identity"
)

// ArchiveRunner is satisfied by *archive.Archiver.
type ArchiveRunner interface {
	Run(ctx context.Context) (archive.Result, error)
}

// AdminHandler serves operator endpoints: minting role tokens and forcing
// an archive run. Every route requires the admin role.
type AdminHandler struct {
	tokens   *identity.TokenIssuer
	archiver ArchiveRunner
	auth     *identity.Authenticator
	maxTTL   time.Duration
	logger   *zap.Logger
}

// NewAdminHandler creates an AdminHandler. tokens or archiver may be nil, in
// which case the matching route answers 503.
func NewAdminHandler(tokens *identity.TokenIssuer, archiver ArchiveRunner, auth *identity.Authenticator, maxTTL time.Duration, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{tokens: tokens, archiver: archiver, auth: auth, maxTTL: maxTTL, logger: logger}
}

// Register mounts the admin routes.
func (h *AdminHandler) Register(rg *gin.RouterGroup) {
	admin := rg.Group("", h.auth.RequireAdmin())
	admin.POST("/tokens", h.IssueToken)
	admin.POST("/admin/archive", h.Archive)
}

// IssueTokenRequest is the body of POST /tokens.
type IssueTokenRequest struct {
	Subject string `json:"subject" binding:"required"`
	Role    string `json:"role" binding:"required"`
	TTL     string `json:"ttl"`
}

// IssueToken handles POST /tokens.
func (h *AdminHandler) IssueToken(c *gin.Context) {
	if h.tokens == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "token issuance is not configured"})
		return
	}
	var req IssueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	role, err := model.ParseRole(req.Role)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var ttl time.Duration
	if req.TTL != "" {
		ttl, err = time.ParseDuration(req.TTL)
		if err != nil || ttl <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ttl must be a positive duration"})
			return
		}
		if h.maxTTL > 0 && ttl > h.maxTTL {
			ttl = h.maxTTL
		}
	}

	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subject is required"})
		return
	}
	tok, err := h.tokens.Issue(subject, role, ttl)
	if err != nil {
		h.logger.Error("issue role token", zap.String("subject", subject), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}
	caller, _ := identity.IdentityFromCtx(c)
	h.logger.Info("role token issued",
		zap.String("subject", subject),
		zap.String("role", string(role)),
		zap.String("by", caller.Subject),
	)
	c.JSON(http.StatusCreated, gin.H{
		"token":   tok,
		"subject": subject,
		"role":    role,
		"address": model.AddressOf(subject),
	})
}

// Archive handles POST /admin/archive.
func (h *AdminHandler) Archive(c *gin.Context) {
	if h.archiver == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "archiving is not configured"})
		return
	}
	res, err := h.archiver.Run(c.Request.Context())
	RecordArchiveRun(err == nil)
	if err != nil {
		h.logger.Error("archive run", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "archive upload failed"})
		return
	}
	c.JSON(http.StatusAccepted, res)
}
