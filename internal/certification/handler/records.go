// Package handler exposes the certification ledger over HTTP.
package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jmerrifield20/agriledger/internal/certification/model"
	"github.com/jmerrifield20/agriledger/internal/certification/service"
	"github.com/jmerrifield20/agriledger/internal/identity"
	"github.com/jmerrifield20/agriledger/internal/trustledger"
)

// RecordHandler handles HTTP requests for certification records.
type RecordHandler struct {
	ledger *service.Ledger
	auth   *identity.Authenticator
	logger *zap.Logger
}

// NewRecordHandler creates a new RecordHandler.
func NewRecordHandler(ledger *service.Ledger, auth *identity.Authenticator, logger *zap.Logger) *RecordHandler {
	return &RecordHandler{ledger: ledger, auth: auth, logger: logger}
}

// Register mounts the record routes on the given router group. Reads are
// public; writes require an identity.
func (h *RecordHandler) Register(rg *gin.RouterGroup) {
	records := rg.Group("/records")
	{
		records.GET("", h.List)
		records.GET("/:id", h.Get)
		records.GET("/:id/history", h.History)
		records.GET("/:id/integrity", h.Integrity)

		authed := records.Group("", h.auth.RequireIdentity())
		authed.POST("", h.Create)
		authed.POST("/:id/verify", h.Verify)
		authed.POST("/:id/dispute", h.Dispute)
	}
	rg.GET("/metrics/summary", h.Summary)
}

// DisputeRequest is the body of POST /records/:id/dispute.
type DisputeRequest struct {
	Reason string `json:"reason"`
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
		return uuid.Nil, false
	}
	return id, true
}

func caller(c *gin.Context) (model.Identity, bool) {
	id, ok := identity.IdentityFromCtx(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
	}
	return id, ok
}

// Create handles POST /records.
func (h *RecordHandler) Create(c *gin.Context) {
	issuer, ok := caller(c)
	if !ok {
		return
	}
	var input model.RecordInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.ledger.CreateRecord(c.Request.Context(), input, issuer)
	if err != nil {
		respondError(c, h.logger, "create record", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"record": rec})
}

// List handles GET /records?category=&status=.
func (h *RecordHandler) List(c *gin.Context) {
	filter, err := service.ParseFilter(c.Query("category"), c.Query("status"))
	if err != nil {
		respondError(c, h.logger, "list records", err)
		return
	}
	records, err := h.ledger.ListRecords(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, "list records", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}

// Get handles GET /records/:id.
func (h *RecordHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	rec, err := h.ledger.GetRecord(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, "get record", err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Verify handles POST /records/:id/verify.
func (h *RecordHandler) Verify(c *gin.Context) {
	verifier, ok := caller(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}
	rec, err := h.ledger.VerifyRecord(c.Request.Context(), id, verifier)
	if err != nil {
		respondError(c, h.logger, "verify record", err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Dispute handles POST /records/:id/dispute.
func (h *RecordHandler) Dispute(c *gin.Context) {
	actor, ok := caller(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req DisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := h.ledger.DisputeRecord(c.Request.Context(), id, actor, req.Reason)
	if err != nil {
		respondError(c, h.logger, "dispute record", err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// History handles GET /records/:id/history.
func (h *RecordHandler) History(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	entries, err := h.ledger.History(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, "record history", err)
		return
	}
	if entries == nil {
		entries = []*trustledger.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

// Integrity handles GET /records/:id/integrity.
func (h *RecordHandler) Integrity(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	report, err := h.ledger.CheckIntegrity(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, "check integrity", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Summary handles GET /metrics/summary.
func (h *RecordHandler) Summary(c *gin.Context) {
	c.JSON(http.StatusOK, h.ledger.GetMetrics(c.Request.Context()))
}
