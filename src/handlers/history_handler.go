package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/secsift/secsift/src/models"
)

// HistoryHandler exposes stored analysis runs.
type HistoryHandler struct {
	history models.HistoryStore
}

func NewHistoryHandler(history models.HistoryStore) *HistoryHandler {
	return &HistoryHandler{history: history}
}

func (h *HistoryHandler) ListAnalyses(c *gin.Context) {
	records, err := h.history.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list runs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  records,
		"count": len(records),
	})
}

func (h *HistoryHandler) GetAnalysis(c *gin.Context) {
	runID := c.Param("run_id")

	record, err := h.history.Get(c.Request.Context(), runID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}

	c.JSON(http.StatusOK, record)
}

func (h *HistoryHandler) DeleteAnalysis(c *gin.Context) {
	runID := c.Param("run_id")

	if err := h.history.Delete(c.Request.Context(), runID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete run"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": runID})
}
