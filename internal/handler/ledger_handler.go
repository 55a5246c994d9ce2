package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/examsync/exam-bridge-api/internal/models"
	"github.com/examsync/exam-bridge-api/pkg/response"
)

type ledgerReader interface {
	List(ctx context.Context, filter models.LedgerFilter) ([]models.LedgerEntry, error)
	ListByArtifact(ctx context.Context, artifactID string) ([]models.LedgerEntry, error)
}

// LedgerHandler exposes the read side of the audit ledger. There is no write
// surface: entries are appended by the services as side effects.
type LedgerHandler struct {
	ledger ledgerReader
}

// NewLedgerHandler constructs LedgerHandler.
func NewLedgerHandler(ledger ledgerReader) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

// List godoc
// @Summary List audit ledger entries
// @Tags Ledger
// @Produce json
// @Param artifactId query string false "Filter by artifact"
// @Param actor query string false "Filter by actor username"
// @Param action query string false "Filter by action"
// @Param category query string false "Filter by category"
// @Param from query string false "RFC3339 lower bound"
// @Param to query string false "RFC3339 upper bound"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /ledger [get]
func (h *LedgerHandler) List(c *gin.Context) {
	var filter models.LedgerFilter
	filter.ArtifactID = strings.TrimSpace(c.Query("artifactId"))
	filter.ActorUsername = strings.TrimSpace(c.Query("actor"))
	filter.Action = strings.TrimSpace(c.Query("action"))
	filter.Category = strings.TrimSpace(c.Query("category"))
	if from, err := time.Parse(time.RFC3339, c.Query("from")); err == nil {
		filter.From = &from
	}
	if to, err := time.Parse(time.RFC3339, c.Query("to")); err == nil {
		filter.To = &to
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(c.DefaultQuery("offset", "0")); err == nil {
		filter.Offset = offset
	}

	entries, err := h.ledger.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// ListForArtifact godoc
// @Summary Full ledger history of one artifact
// @Tags Ledger
// @Produce json
// @Param id path string true "Artifact ID"
// @Success 200 {object} response.Envelope
// @Router /artifacts/{id}/ledger [get]
func (h *LedgerHandler) ListForArtifact(c *gin.Context) {
	entries, err := h.ledger.ListByArtifact(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}
