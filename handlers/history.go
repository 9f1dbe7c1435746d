package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/fa-sharp/cs50-finance-plus/errs"
	"github.com/fa-sharp/cs50-finance-plus/middleware"
	"github.com/gin-gonic/gin"
)

// GetHistory renders ?page=N of the transaction history. The balance
// checkpoints that make paging possible are kept per session.
func (h *Handler) GetHistory(c *gin.Context) {
	page := 1
	if raw := c.Query("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "page must be a positive integer")
			return
		}
		page = n
	}

	ctx := c.Request.Context()
	sid := middleware.SessionID(c)
	cps, err := h.sessions.Checkpoints(ctx, sid)
	if err != nil {
		respondError(c, errs.Persistence("error loading history state", err))
		return
	}

	result, err := h.portfolio.History(ctx, middleware.UserID(c), page, cps)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.sessions.SaveCheckpoints(ctx, sid, result.Checkpoints); err != nil {
		slog.Warn("Failed to save history checkpoints", "session_id", sid, "error", err)
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) GetHistoryKeyset(c *gin.Context) {
	result, err := h.portfolio.HistoryAfter(c.Request.Context(), middleware.UserID(c), c.Query("cursor"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
