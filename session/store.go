// Package session keeps per-login state in Redis: the refresh token issued
// at login and the history checkpoints of the browsing session.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fa-sharp/cs50-finance-plus/errs"
	"github.com/fa-sharp/cs50-finance-plus/ledger"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
)

type Store struct {
	rdb        redis.Cmdable
	sessionTTL time.Duration
	refreshTTL time.Duration
}

func NewStore(rdb redis.Cmdable, sessionTTL, refreshTTL time.Duration) *Store {
	return &Store{rdb: rdb, sessionTTL: sessionTTL, refreshTTL: refreshTTL}
}

func historyKey(sid string) string { return "history:" + sid }
func refreshKey(sid string) string { return "refresh:" + sid }

// Checkpoints returns the saved history checkpoints, or nil when the session
// has none yet.
func (s *Store) Checkpoints(ctx context.Context, sid string) (ledger.Checkpoints, error) {
	raw, err := s.rdb.Get(ctx, historyKey(sid)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errs.ErrDB, err.Error())
	}
	cps, err := DecodeCheckpoints(raw)
	if err != nil {
		// a corrupt entry behaves like a fresh session
		return nil, nil
	}
	return cps, nil
}

func (s *Store) SaveCheckpoints(ctx context.Context, sid string, cps ledger.Checkpoints) error {
	raw, err := EncodeCheckpoints(cps)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, historyKey(sid), raw, s.sessionTTL).Err(); err != nil {
		return fmt.Errorf("%w: %s", errs.ErrDB, err.Error())
	}
	return nil
}

func (s *Store) SaveRefreshToken(ctx context.Context, sid, token string) error {
	if err := s.rdb.Set(ctx, refreshKey(sid), token, s.refreshTTL).Err(); err != nil {
		return fmt.Errorf("%w: %s", errs.ErrDB, err.Error())
	}
	return nil
}

// RefreshToken returns the refresh token currently valid for sid.
func (s *Store) RefreshToken(ctx context.Context, sid string) (string, error) {
	token, err := s.rdb.Get(ctx, refreshKey(sid)).Result()
	if errors.Is(err, redis.Nil) {
		return "", errs.ErrRecordNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: %s", errs.ErrDB, err.Error())
	}
	return token, nil
}

// Active reports whether sid still holds a refresh token, i.e. has not been
// logged out or expired.
func (s *Store) Active(ctx context.Context, sid string) (bool, error) {
	n, err := s.rdb.Exists(ctx, refreshKey(sid)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %s", errs.ErrDB, err.Error())
	}
	return n > 0, nil
}

// End forgets everything stored for sid.
func (s *Store) End(ctx context.Context, sid string) error {
	if err := s.rdb.Del(ctx, refreshKey(sid), historyKey(sid)).Err(); err != nil {
		return fmt.Errorf("%w: %s", errs.ErrDB, err.Error())
	}
	return nil
}

// EncodeCheckpoints serializes cps as a JSON array of decimal strings.
func EncodeCheckpoints(cps ledger.Checkpoints) (string, error) {
	raw, err := json.Marshal(cps)
	if err != nil {
		return "", fmt.Errorf("encode checkpoints: %w", err)
	}
	return string(raw), nil
}

func DecodeCheckpoints(raw string) (ledger.Checkpoints, error) {
	var cps []decimal.Decimal
	if err := json.Unmarshal([]byte(raw), &cps); err != nil {
		return nil, fmt.Errorf("decode checkpoints: %w", err)
	}
	return cps, nil
}
