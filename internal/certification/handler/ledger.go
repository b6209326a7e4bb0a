package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/agriledger/internal/trustledger"
)

const maxEntriesPage = 500

// LedgerHandler exposes read-only HTTP endpoints for the event log.
type LedgerHandler struct {
	log    trustledger.Ledger
	logger *zap.Logger
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(log trustledger.Ledger, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{log: log, logger: logger}
}

// Register mounts the event log routes on the given router group.
func (h *LedgerHandler) Register(rg *gin.RouterGroup) {
	l := rg.Group("/ledger")
	{
		l.GET("", h.Overview)
		l.GET("/verify", h.Verify)
		l.GET("/entries", h.ListEntries)
		l.GET("/entries/:idx", h.GetEntry)
	}
}

// Overview handles GET /ledger and reports the chain length and head hash.
func (h *LedgerHandler) Overview(c *gin.Context) {
	ctx := c.Request.Context()

	n, err := h.log.Len(ctx)
	if err != nil {
		h.logger.Error("event log length", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read event log"})
		return
	}
	root, err := h.log.Root(ctx)
	if err != nil {
		h.logger.Error("event log root", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read event log root"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": n, "root": root})
}

// Verify handles GET /ledger/verify. A broken chain is reported in the body,
// not as an HTTP error.
func (h *LedgerHandler) Verify(c *gin.Context) {
	if err := h.log.Verify(c.Request.Context()); err != nil {
		h.logger.Warn("event log verification failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"valid": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

// ListEntries handles GET /ledger/entries?from=&limit=.
func (h *LedgerHandler) ListEntries(c *gin.Context) {
	from, err := strconv.Atoi(c.DefaultQuery("from", "0"))
	if err != nil || from < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from must be a non-negative integer"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	limit = min(limit, maxEntriesPage)

	entries, err := h.log.Entries(c.Request.Context(), from, limit)
	if err != nil {
		h.logger.Error("event log entries", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read event log"})
		return
	}
	if entries == nil {
		entries = []*trustledger.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

// GetEntry handles GET /ledger/entries/:idx.
func (h *LedgerHandler) GetEntry(c *gin.Context) {
	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil || idx < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "idx must be a non-negative integer"})
		return
	}

	entry, err := h.log.Get(c.Request.Context(), idx)
	if errors.Is(err, trustledger.ErrEntryNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
		return
	}
	if err != nil {
		h.logger.Error("event log get", zap.Int("idx", idx), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read event log"})
		return
	}
	c.JSON(http.StatusOK, entry)
}
