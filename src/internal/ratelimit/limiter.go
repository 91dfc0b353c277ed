package ratelimit

import (
	"sync"
	"time"

	"budgetbook-svc/src/internal/config"
	"budgetbook-svc/src/internal/models"

	"github.com/sirupsen/logrus"
)

type attemptRecord struct {
	count       int
	lastAttempt time.Time
}

// Limiter counts authentication attempts per identifier (username:ip) in a
// sliding window and blocks the identifier once the attempt budget is spent.
// State is process local; a multi-process deployment needs a shared store
// behind the same interface.
type Limiter struct {
	mu          sync.Mutex
	attempts    map[string]*attemptRecord
	maxAttempts int
	window      time.Duration
	blockFor    time.Duration
	now         func() time.Time
}

func New(cfg config.RateLimitConfig) *Limiter {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	window := time.Duration(cfg.WindowMinutes) * time.Minute
	if window <= 0 {
		window = 15 * time.Minute
	}
	blockFor := time.Duration(cfg.BlockMinutes) * time.Minute
	if blockFor <= 0 {
		blockFor = 30 * time.Minute
	}

	return &Limiter{
		attempts:    make(map[string]*attemptRecord),
		maxAttempts: maxAttempts,
		window:      window,
		blockFor:    blockFor,
		now:         time.Now,
	}
}

// Check records an attempt for identifier. Once maxAttempts have been made
// inside the window, it returns a RateLimitError with the remaining block
// time until the block duration has elapsed, after which the counter resets.
func (l *Limiter) Check(identifier string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	record, ok := l.attempts[identifier]
	if !ok || now.Sub(record.lastAttempt) > l.window {
		l.attempts[identifier] = &attemptRecord{count: 1, lastAttempt: now}
		return nil
	}

	if record.count >= l.maxAttempts {
		remaining := l.blockFor - now.Sub(record.lastAttempt)
		if remaining > 0 {
			logrus.WithFields(logrus.Fields{
				"identifier":        identifier,
				"remaining_seconds": int(remaining.Seconds()),
			}).Warn("Login attempts rate limited")
			return &models.RateLimitError{RetryAfter: remaining}
		}
		// Block elapsed, start a fresh window.
		l.attempts[identifier] = &attemptRecord{count: 1, lastAttempt: now}
		return nil
	}

	record.count++
	record.lastAttempt = now
	return nil
}

// Clear removes tracking for identifier, called on successful authentication.
func (l *Limiter) Clear(identifier string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, identifier)
}
