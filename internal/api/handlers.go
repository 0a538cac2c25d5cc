package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rawblock/wallet-risk-engine/internal/heuristics"
	"github.com/rawblock/wallet-risk-engine/internal/logger"
	"github.com/rawblock/wallet-risk-engine/internal/service"
	"github.com/rawblock/wallet-risk-engine/pkg/models"
)

// maxBatchSize bounds POST /evaluate bodies.
const maxBatchSize = 10000

// handleHealth returns engine status for service discovery
func (h *APIHandler) handleHealth(c *gin.Context) {
	clients := 0
	if h.hub != nil {
		clients = h.hub.ClientCount()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":           "operational",
		"engine":           "Wallet Risk Engine",
		"dbConnected":      h.cfg.DBConnected,
		"kafkaEnabled":     h.cfg.KafkaEnabled,
		"streamClients":    clients,
		"blacklistEntries": len(h.svc.Blacklist()),
		"stats":            h.svc.Stats(),
	})
}

// GET /api/v1/categories
// Returns the taxonomy in reporting order.
func (h *APIHandler) handleCategories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"categories": models.AllCategories()})
}

// GET /api/v1/thresholds
func (h *APIHandler) handleThresholds(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Thresholds())
}

type evaluateRequest struct {
	Wallet       models.WalletContext    `json:"wallet"`
	Transactions []models.RawTransaction `json:"transactions"`
}

// POST /api/v1/evaluate
// Evaluates caller-supplied wallet context and transactions.
func (h *APIHandler) handleEvaluate(c *gin.Context) {
	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if !service.IsAddress(req.Wallet.Address) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "wallet.address must be a 0x-prefixed 20-byte hex address"})
		return
	}
	if req.Wallet.CreationDate.IsZero() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "wallet.creationDate is required"})
		return
	}
	if len(req.Transactions) > maxBatchSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Too many transactions", "details": "limit is " + strconv.Itoa(maxBatchSize)})
		return
	}

	a, err := h.svc.AssessBatch(c.Request.Context(), req.Wallet, req.Transactions)
	if err != nil {
		h.respondError(c, err, "Evaluation failed")
		return
	}
	c.JSON(http.StatusOK, a)
}

// GET /api/v1/wallets/:address/assess
// Fetches live data for the wallet and evaluates it.
func (h *APIHandler) handleAssessWallet(c *gin.Context) {
	a, err := h.svc.AssessWallet(c.Request.Context(), c.Param("address"))
	if err != nil {
		h.respondError(c, err, "Failed to assess wallet")
		return
	}
	c.JSON(http.StatusOK, a)
}

// GET /api/v1/history/:address?page=1&limit=50
func (h *APIHandler) handleHistory(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	entries, totalCount, err := h.svc.History(c.Request.Context(), c.Param("address"), page, limit)
	if err != nil {
		h.respondError(c, err, "Failed to fetch assessment history")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":       entries,
		"totalCount": totalCount,
		"page":       page,
		"limit":      limit,
	})
}

// GET /api/v1/assessments/:id
func (h *APIHandler) handleGetAssessment(c *gin.Context) {
	a, err := h.svc.GetAssessment(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "Failed to fetch assessment")
		return
	}
	c.JSON(http.StatusOK, a)
}

// GET /api/v1/blacklist
func (h *APIHandler) handleListBlacklist(c *gin.Context) {
	entries := h.svc.Blacklist()
	c.JSON(http.StatusOK, gin.H{"data": entries, "totalCount": len(entries)})
}

// POST /api/v1/blacklist {"address": "0x...", "label": "..."}
func (h *APIHandler) handleAddBlacklist(c *gin.Context) {
	var req struct {
		Address string `json:"address" binding:"required"`
		Label   string `json:"label"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	added, err := h.svc.AddToBlacklist(c.Request.Context(), req.Address, strings.TrimSpace(req.Label))
	if err != nil {
		h.respondError(c, err, "Failed to add blacklist entry")
		return
	}
	status, state := http.StatusOK, "updated"
	if added {
		status, state = http.StatusCreated, "created"
	}
	c.JSON(status, gin.H{"status": state, "address": heuristics.NormalizeAddress(req.Address)})
}

// DELETE /api/v1/blacklist/:address
func (h *APIHandler) handleRemoveBlacklist(c *gin.Context) {
	if err := h.svc.RemoveFromBlacklist(c.Request.Context(), c.Param("address")); err != nil {
		h.respondError(c, err, "Failed to remove blacklist entry")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed", "removedAt": time.Now().UTC()})
}

// respondError maps service and engine errors onto HTTP statuses.
func (h *APIHandler) respondError(c *gin.Context, err error, msg string) {
	var (
		cfgErr *heuristics.ConfigurationError
		status int
	)
	switch {
	case errors.Is(err, service.ErrInvalidAddress):
		status = http.StatusBadRequest
	case errors.As(err, &cfgErr):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrFetcherUnavailable), errors.Is(err, service.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, service.ErrUpstream):
		status = http.StatusBadGateway
	default:
		status = http.StatusInternalServerError
	}

	if status >= http.StatusInternalServerError {
		log := logger.FromContext(c.Request.Context())
		log.Error().Err(err).Msg(msg)
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": msg, "details": err.Error()})
}
