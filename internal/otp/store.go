package otp

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bell-ha/artist-promotion-platform/internal/apperror"
)

const (
	codeKeyPrefix     = "otp"
	verifiedKeyPrefix = "otpok"
	attemptsKeyPrefix = "otpattempts"

	// maxAttempts caps confirmation tries per challenge. A fresh send resets
	// the counter.
	maxAttempts = 5

	// verifiedTTL bounds how long a confirmed challenge stays usable by the
	// downstream action (sign-up submit, password reset).
	verifiedTTL = 15 * time.Minute
)

// Store keeps verification challenges in Redis, keyed by purpose and email.
// Challenges expire on their TTL; a confirmed challenge leaves a short-lived
// verified marker that the owning flow consumes exactly once.
type Store struct {
	rdb *redis.Client
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func codeKey(purpose Purpose, email string) string {
	return fmt.Sprintf("%s:%s:%s", codeKeyPrefix, purpose, email)
}

func verifiedKey(purpose Purpose, email string) string {
	return fmt.Sprintf("%s:%s:%s", verifiedKeyPrefix, purpose, email)
}

func attemptsKey(purpose Purpose, email string) string {
	return fmt.Sprintf("%s:%s:%s", attemptsKeyPrefix, purpose, email)
}

// Create stores a fresh challenge, replacing any prior one for the same
// purpose and email. The attempt counter is reset to zero and shares the
// challenge's TTL, so it can never outlive the code it counts for; any
// verified marker from the previous round is discarded — re-sending starts
// over.
func (s *Store) Create(ctx context.Context, purpose Purpose, email, code string, ttl time.Duration) error {
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, codeKey(purpose, email), code, ttl)
	pipe.Set(ctx, attemptsKey(purpose, email), 0, ttl)
	pipe.Del(ctx, verifiedKey(purpose, email))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("otp: storing challenge: %w", err)
	}
	return nil
}

// Verify checks a submitted code against the stored challenge.
//
// Returns (true, nil) on a match, after recording a verified marker.
// Returns (false, nil) on a plain mismatch — the challenge stays open so the
// user can retry. Expired/absent challenges and exhausted attempt budgets
// surface as apperror.VerificationFailed with a message saying what to do.
func (s *Store) Verify(ctx context.Context, purpose Purpose, email, code string) (bool, error) {
	stored, err := s.rdb.Get(ctx, codeKey(purpose, email)).Result()
	if errors.Is(err, redis.Nil) {
		return false, apperror.VerificationFailed("verification code expired or was never sent — request a new one")
	}
	if err != nil {
		return false, fmt.Errorf("otp: loading challenge: %w", err)
	}

	// The counter was created alongside the code with the same TTL, so Incr
	// inherits the challenge's remaining lifetime.
	attempts, err := s.rdb.Incr(ctx, attemptsKey(purpose, email)).Result()
	if err != nil {
		return false, fmt.Errorf("otp: counting attempts: %w", err)
	}
	if attempts > maxAttempts {
		return false, apperror.VerificationFailed("too many attempts — request a new code")
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return false, nil
	}

	if err := s.rdb.Set(ctx, verifiedKey(purpose, email), "1", verifiedTTL).Err(); err != nil {
		return false, fmt.Errorf("otp: marking challenge verified: %w", err)
	}

	return true, nil
}

// ConsumeVerified atomically takes the verified marker for a challenge.
// Returns true exactly once per confirmed round; the downstream action
// (sign-up, password reset) calls this right before committing.
func (s *Store) ConsumeVerified(ctx context.Context, purpose Purpose, email string) (bool, error) {
	n, err := s.rdb.Del(ctx, verifiedKey(purpose, email)).Result()
	if err != nil {
		return false, fmt.Errorf("otp: consuming verified marker: %w", err)
	}
	return n > 0, nil
}

// Invalidate discards a challenge and everything attached to it.
func (s *Store) Invalidate(ctx context.Context, purpose Purpose, email string) error {
	if err := s.rdb.Del(ctx,
		codeKey(purpose, email),
		attemptsKey(purpose, email),
		verifiedKey(purpose, email),
	).Err(); err != nil {
		return fmt.Errorf("otp: invalidating challenge: %w", err)
	}
	return nil
}
