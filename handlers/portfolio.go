package handlers

import (
	"context"
	"net/http"

	"github.com/fa-sharp/cs50-finance-plus/middleware"
	"github.com/fa-sharp/cs50-finance-plus/portfolio"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type TradeInput struct {
	Symbol string `json:"symbol"`
	Shares int64  `json:"shares"`
}

type DepositInput struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h *Handler) GetPortfolio(c *gin.Context) {
	valuation, err := h.portfolio.Valuate(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, valuation)
}

func (h *Handler) Buy(c *gin.Context) {
	h.trade(c, h.portfolio.Buy)
}

func (h *Handler) Sell(c *gin.Context) {
	h.trade(c, h.portfolio.Sell)
}

type tradeFunc = func(ctx context.Context, userID uint, symbol string, shares int64) (*portfolio.TradeResult, error)

func (h *Handler) trade(c *gin.Context, execute tradeFunc) {
	var input TradeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "must provide a stock symbol and a whole number of shares")
		return
	}

	result, err := execute(c.Request.Context(), middleware.UserID(c), input.Symbol, input.Shares)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": result.Message(), "trade": result})
}

func (h *Handler) Deposit(c *gin.Context) {
	var input DepositInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "must enter a number for amount to deposit")
		return
	}

	result, err := h.portfolio.Deposit(c.Request.Context(), middleware.UserID(c), input.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": result.Message(), "trade": result})
}
