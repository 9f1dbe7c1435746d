package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/fa-sharp/cs50-finance-plus/errs"
	"github.com/fa-sharp/cs50-finance-plus/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type RegisterInput struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	Confirmation string `json:"confirmation"`
}

type LoginInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RefreshInput struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func (h *Handler) Register(c *gin.Context) {
	var input RegisterInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	user, err := h.portfolio.Register(c.Request.Context(), input.Username, input.Password, input.Confirmation)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Registered!", "user": user})
}

// Login starts a session and returns an access token with a refresh token
// bound to it.
func (h *Handler) Login(c *gin.Context) {
	var input LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	user, err := h.portfolio.Authenticate(c.Request.Context(), input.Username, input.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	sid := uuid.NewString()
	accessToken, err := middleware.IssueToken(h.cfg.JWTSecret, middleware.TokenAccess, user.ID, sid, h.cfg.SessionTTL)
	if err != nil {
		respondError(c, errs.Persistence("error generating token", err))
		return
	}
	refreshToken, err := middleware.IssueToken(h.cfg.JWTSecret, middleware.TokenRefresh, user.ID, sid, h.cfg.RefreshTTL)
	if err != nil {
		respondError(c, errs.Persistence("error generating refresh token", err))
		return
	}

	if err := h.sessions.SaveRefreshToken(c.Request.Context(), sid, refreshToken); err != nil {
		respondError(c, errs.Persistence("error storing refresh token", err))
		return
	}

	slog.Info("User logged in", "user_id", user.ID, "session_id", sid)
	c.JSON(http.StatusOK, gin.H{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"user":          user,
	})
}

// Refresh trades a live refresh token for a new access token in the same
// session.
func (h *Handler) Refresh(c *gin.Context) {
	var input RefreshInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "refresh_token is required")
		return
	}

	claims, err := middleware.ParseToken(h.cfg.JWTSecret, middleware.TokenRefresh, input.RefreshToken)
	if err != nil {
		respondError(c, err)
		return
	}

	stored, err := h.sessions.RefreshToken(c.Request.Context(), claims.SessionID)
	if errors.Is(err, errs.ErrRecordNotFound) || (err == nil && stored != input.RefreshToken) {
		respondError(c, errs.New(errs.KindUnauthorized, "session has ended, log in again"))
		return
	}
	if err != nil {
		respondError(c, errs.Persistence("error reading refresh token", err))
		return
	}

	accessToken, err := middleware.IssueToken(h.cfg.JWTSecret, middleware.TokenAccess, claims.UserID, claims.SessionID, h.cfg.SessionTTL)
	if err != nil {
		respondError(c, errs.Persistence("error generating token", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"access_token": accessToken})
}

func (h *Handler) Logout(c *gin.Context) {
	sid := middleware.SessionID(c)
	if err := h.sessions.End(c.Request.Context(), sid); err != nil {
		respondError(c, errs.Persistence("error ending session", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

func (h *Handler) DeleteAccount(c *gin.Context) {
	if err := h.portfolio.DeleteAccount(c.Request.Context(), middleware.UserID(c)); err != nil {
		respondError(c, err)
		return
	}
	if err := h.sessions.End(c.Request.Context(), middleware.SessionID(c)); err != nil {
		slog.Warn("Failed to end session of deleted account", "session_id", middleware.SessionID(c), "error", err)
	}
	c.JSON(http.StatusOK, gin.H{"message": "Account deleted"})
}
