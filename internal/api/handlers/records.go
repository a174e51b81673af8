package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"cattle-worker-go/internal/logging"
	"cattle-worker-go/internal/models"
	"cattle-worker-go/internal/services/identity"
)

const maxMovementsLimit = 500

// MovementLister reads the movement log newest first.
type MovementLister interface {
	ListMovements(ctx context.Context, tenantID int64, limit int) ([]models.Movement, error)
}

// RecordsHandler serves read-only views of the movement log and identity banks.
type RecordsHandler struct {
	movements MovementLister
	registry  *identity.Registry
}

func NewRecordsHandler(movements MovementLister, registry *identity.Registry) *RecordsHandler {
	return &RecordsHandler{movements: movements, registry: registry}
}

// ListMovements returns recent movements
// @Summary Recent movements
// @Tags records
// @Produce json
// @Param limit query int false "Max rows (default 50, max 500)"
// @Param tenant_id query int false "Tenant filter, 0 for all"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Router /api/movements [get]
func (h *RecordsHandler) ListMovements(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
		return
	}
	if limit > maxMovementsLimit {
		limit = maxMovementsLimit
	}
	tenantID, err := strconv.ParseInt(c.DefaultQuery("tenant_id", "0"), 10, 64)
	if err != nil || tenantID < 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "tenant_id must be a non-negative integer"})
		return
	}

	movements, err := h.movements.ListMovements(c.Request.Context(), tenantID, limit)
	if err != nil {
		logging.Error(c).Err(err).Msg("Failed to list movements")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"movements": movements, "count": len(movements)})
}

// IdentityStats returns bank sizes per tenant and category
// @Summary Identity bank sizes
// @Tags records
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/identity/stats [get]
func (h *RecordsHandler) IdentityStats(c *gin.Context) {
	stats := h.registry.Stats()
	total := 0
	for _, s := range stats {
		total += s.Size
	}
	c.JSON(http.StatusOK, gin.H{
		"banks":         stats,
		"total":         total,
		"unknown_label": h.registry.UnknownLabel(),
	})
}
