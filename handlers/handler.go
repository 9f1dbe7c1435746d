package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/fa-sharp/cs50-finance-plus/errs"
	"github.com/fa-sharp/cs50-finance-plus/ledger"
	"github.com/fa-sharp/cs50-finance-plus/middleware"
	"github.com/fa-sharp/cs50-finance-plus/models"
	"github.com/fa-sharp/cs50-finance-plus/portfolio"
	"github.com/fa-sharp/cs50-finance-plus/quote"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Portfolio is the ledger service behind the handlers.
type Portfolio interface {
	Register(ctx context.Context, username, password, confirmation string) (*models.User, error)
	Authenticate(ctx context.Context, username, password string) (*models.User, error)
	DeleteAccount(ctx context.Context, userID uint) error
	Valuate(ctx context.Context, userID uint) (*portfolio.Valuation, error)
	Buy(ctx context.Context, userID uint, symbol string, shares int64) (*portfolio.TradeResult, error)
	Sell(ctx context.Context, userID uint, symbol string, shares int64) (*portfolio.TradeResult, error)
	Deposit(ctx context.Context, userID uint, amount decimal.Decimal) (*portfolio.TradeResult, error)
	History(ctx context.Context, userID uint, page int, cps ledger.Checkpoints) (*portfolio.HistoryPage, error)
	HistoryAfter(ctx context.Context, userID uint, cursor string) (*portfolio.KeysetPage, error)
}

type Quotes interface {
	Lookup(ctx context.Context, symbol string) *quote.Quote
	History(ctx context.Context, symbol string, limit int) ([]models.StockPrice, error)
}

// Sessions stores per-login state.
type Sessions interface {
	Checkpoints(ctx context.Context, sid string) (ledger.Checkpoints, error)
	SaveCheckpoints(ctx context.Context, sid string, cps ledger.Checkpoints) error
	SaveRefreshToken(ctx context.Context, sid, token string) error
	RefreshToken(ctx context.Context, sid string) (string, error)
	End(ctx context.Context, sid string) error
	Active(ctx context.Context, sid string) (bool, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Config struct {
	JWTSecret  string
	SessionTTL time.Duration
	RefreshTTL time.Duration
	Checks     map[string]HealthCheck
}

type Handler struct {
	portfolio Portfolio
	quotes    Quotes
	sessions  Sessions
	cfg       Config
}

func New(p Portfolio, q Quotes, s Sessions, cfg Config) *Handler {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	return &Handler{portfolio: p, quotes: q, sessions: s, cfg: cfg}
}

// SetupRoutes registers every endpoint on router.
func SetupRoutes(router *gin.Engine, h *Handler) {
	// Public routes
	router.POST("/register", h.Register)
	router.POST("/login", h.Login)
	router.POST("/refresh", h.Refresh)

	// Protected routes
	auth := router.Group("/")
	auth.Use(middleware.JWTAuth(h.cfg.JWTSecret, h.sessions))
	{
		auth.POST("/logout", h.Logout)
		auth.DELETE("/account", h.DeleteAccount)
		auth.GET("/portfolio", h.GetPortfolio)
		auth.POST("/buy", h.Buy)
		auth.POST("/sell", h.Sell)
		auth.POST("/deposit", h.Deposit)
		auth.GET("/quote/:symbol", h.GetQuote)
		auth.GET("/prices/:symbol/history", h.GetPriceHistory)
		auth.GET("/history", h.GetHistory)
		auth.GET("/history/keyset", h.GetHistoryKeyset)
		auth.GET("/health", h.Health)
	}
}

func statusFor(kind errs.Kind) int {
	switch kind {
	case errs.KindValidation, errs.KindInsufficientFunds, errs.KindInsufficientShares, errs.KindQuoteUnavailable:
		return http.StatusBadRequest
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindUnauthorized:
		return http.StatusUnauthorized
	case errs.KindPaginationState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error": kind, "message": msg}. Anything that
// is not a structured error is logged and reported as a generic failure.
func respondError(c *gin.Context, err error) {
	var e *errs.Error
	if !errors.As(err, &e) {
		slog.Error("Unhandled error", "path", c.FullPath(), "error", err)
		e = errs.Persistence("internal server error", err)
	}
	c.AbortWithStatusJSON(statusFor(e.Kind), gin.H{"error": e.Kind, "message": e.Message})
}

func badRequest(c *gin.Context, message string) {
	respondError(c, errs.Validation("%s", message))
}
