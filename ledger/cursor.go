package ledger

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/fa-sharp/cs50-finance-plus/errs"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
)

// Cursor is a stateless keyset position in a user's history: the last row
// already shown and the running balance after it. The zero Cursor is the
// start of the history.
type Cursor struct {
	AfterID   uint
	AfterTime time.Time
	Balance   decimal.Decimal
}

func (c Cursor) IsStart() bool { return c.AfterID == 0 }

type cursorClaims struct {
	AfterID   uint   `json:"aid"`
	AfterTime string `json:"ats"`
	Balance   string `json:"bal"`
	jwt.RegisteredClaims
}

// CursorCodec signs cursors so the balance they carry cannot be forged.
type CursorCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewCursorCodec(secret string, ttl time.Duration) *CursorCodec {
	return &CursorCodec{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Encode returns an opaque token for cur, bound to userID.
func (c *CursorCodec) Encode(userID uint, cur Cursor) (string, error) {
	now := c.now()
	claims := cursorClaims{
		AfterID:   cur.AfterID,
		AfterTime: cur.AfterTime.UTC().Format(time.RFC3339Nano),
		Balance:   cur.Balance.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign cursor: %w", err)
	}
	return token, nil
}

// Decode verifies token and returns its cursor. An empty token is the start.
func (c *CursorCodec) Decode(userID uint, token string) (Cursor, error) {
	if token == "" {
		return Cursor{Balance: decimal.Zero}, nil
	}

	var claims cursorClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(c.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Cursor{}, errs.PaginationState("history cursor expired, restart from the beginning")
		}
		return Cursor{}, errs.PaginationState("invalid history cursor")
	}
	if claims.Subject != strconv.FormatUint(uint64(userID), 10) {
		return Cursor{}, errs.PaginationState("history cursor belongs to another user")
	}

	after, err := time.Parse(time.RFC3339Nano, claims.AfterTime)
	if err != nil {
		return Cursor{}, errs.PaginationState("invalid history cursor timestamp")
	}
	balance, err := decimal.NewFromString(claims.Balance)
	if err != nil {
		return Cursor{}, errs.PaginationState("invalid history cursor balance")
	}
	return Cursor{AfterID: claims.AfterID, AfterTime: after, Balance: balance}, nil
}
