package handlers

import (
	"net/http"
	"strconv"

	"github.com/fa-sharp/cs50-finance-plus/errs"
	"github.com/fa-sharp/cs50-finance-plus/quote"
	"github.com/gin-gonic/gin"
)

const (
	defaultPriceHistory = 50
	maxPriceHistory     = 500
)

func (h *Handler) GetQuote(c *gin.Context) {
	symbol := quote.Normalize(c.Param("symbol"))
	q := h.quotes.Lookup(c.Request.Context(), symbol)
	if q == nil {
		respondError(c, errs.New(errs.KindQuoteUnavailable, "not a valid stock symbol: %s", symbol))
		return
	}
	c.JSON(http.StatusOK, q)
}

// GetPriceHistory returns the recorded price snapshots of a symbol, newest
// first.
func (h *Handler) GetPriceHistory(c *gin.Context) {
	symbol := quote.Normalize(c.Param("symbol"))
	limit := defaultPriceHistory
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			badRequest(c, "limit must be a positive integer")
			return
		}
		limit = min(n, maxPriceHistory)
	}

	prices, err := h.quotes.History(c.Request.Context(), symbol, limit)
	if err != nil {
		respondError(c, errs.Persistence("error loading price history", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "prices": prices})
}
