package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fa-sharp/cs50-finance-plus/errs"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
)

// Claims identify a user and the login session a token belongs to.
type Claims struct {
	UserID    uint   `json:"user_id"`
	SessionID string `json:"sid"`
	Type      string `json:"typ"`
	jwt.RegisteredClaims
}

// IssueToken signs a token of the given type valid for ttl.
func IssueToken(secret string, typ string, userID uint, sessionID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:    userID,
		SessionID: sessionID,
		Type:      typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken verifies tokenString and checks that it is of the given type.
func ParseToken(secret, typ, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errs.New(errs.KindUnauthorized, "token expired")
		}
		return nil, errs.New(errs.KindUnauthorized, "invalid token")
	}
	if !token.Valid || claims.Type != typ || claims.UserID == 0 || claims.SessionID == "" {
		return nil, errs.New(errs.KindUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// SessionChecker reports whether a login session is still open.
type SessionChecker interface {
	Active(ctx context.Context, sid string) (bool, error)
}

// JWTAuth requires a valid bearer access token and stores its user and
// session ids in the context. With a non-nil sessions, tokens of ended
// sessions are rejected before they expire.
func JWTAuth(secret string, sessions SessionChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   errs.KindUnauthorized,
				"message": "authorization header required",
			})
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := ParseToken(secret, TokenAccess, tokenString)
		if err != nil {
			message := "invalid token"
			var e *errs.Error
			if errors.As(err, &e) {
				message = e.Message
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errs.KindUnauthorized, "message": message})
			return
		}

		if sessions != nil {
			active, err := sessions.Active(c.Request.Context(), claims.SessionID)
			if err != nil {
				slog.Error("Failed to check session", "session_id", claims.SessionID, "error", err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": errs.KindPersistence, "message": "error checking session"})
				return
			}
			if !active {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errs.KindUnauthorized, "message": "session has ended, log in again"})
				return
			}
		}

		c.Set("user_id", claims.UserID)
		c.Set("session_id", claims.SessionID)
		c.Next()
	}
}

func UserID(c *gin.Context) uint {
	return c.GetUint("user_id")
}

func SessionID(c *gin.Context) string {
	return c.GetString("session_id")
}
