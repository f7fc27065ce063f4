package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ncruces/go-sqlite3"

	"github.com/steveyegge/newsdedup/internal/types"
)

// RetryConfig controls how transient store errors are retried
type RetryConfig struct {
	MaxAttempts int           // total attempts including the first
	BaseDelay   time.Duration // delay before the second attempt
	MaxDelay    time.Duration // cap on any single delay
}

// DefaultRetryConfig retries three times with 1s, 2s, ... capped at 10s
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    10 * time.Second,
	}
}

// delay returns the wait after the given failed attempt (1-based)
func (c RetryConfig) delay(attempt int) time.Duration {
	d := c.BaseDelay << (attempt - 1)
	if d > c.MaxDelay || d <= 0 {
		return c.MaxDelay
	}
	return d
}

// RetryingStore wraps an ArticleStore and retries connection-type failures.
// Any other error is returned on the first attempt.
type RetryingStore struct {
	inner  ArticleStore
	config RetryConfig
}

// NewRetryingStore wraps inner with the given retry policy
func NewRetryingStore(inner ArticleStore, config RetryConfig) *RetryingStore {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	return &RetryingStore{inner: inner, config: config}
}

// Unwrap returns the wrapped store
func (r *RetryingStore) Unwrap() ArticleStore {
	return r.inner
}

func retryValue[T any](ctx context.Context, r *RetryingStore, op string, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		lastErr = err

		if !IsTransient(err) || ctx.Err() != nil || attempt == r.config.MaxAttempts {
			break
		}

		wait := r.config.delay(attempt)
		slog.Warn("transient store error, retrying",
			"op", op, "attempt", attempt, "max_attempts", r.config.MaxAttempts, "delay", wait, "error", err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("%s: %w (last error: %v)", op, ctx.Err(), lastErr)
		case <-timer.C:
		}
	}
	return zero, lastErr
}

func retryErr(ctx context.Context, r *RetryingStore, op string, fn func() error) error {
	_, err := retryValue(ctx, r, op, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func (r *RetryingStore) FindByURL(ctx context.Context, url string) (*types.StoredArticle, error) {
	return retryValue(ctx, r, "find by url", func() (*types.StoredArticle, error) {
		return r.inner.FindByURL(ctx, url)
	})
}

func (r *RetryingStore) FindByContentFingerprint(ctx context.Context, fp string) (*types.StoredArticle, error) {
	return retryValue(ctx, r, "find by content fingerprint", func() (*types.StoredArticle, error) {
		return r.inner.FindByContentFingerprint(ctx, fp)
	})
}

func (r *RetryingStore) FindCandidates(ctx context.Context, title string, published time.Time, window time.Duration, limit int) ([]types.DuplicateCandidate, error) {
	return retryValue(ctx, r, "find candidates", func() ([]types.DuplicateCandidate, error) {
		return r.inner.FindCandidates(ctx, title, published, window, limit)
	})
}

func (r *RetryingStore) InsertArticle(ctx context.Context, article *types.IncomingArticle) (*types.StoredArticle, error) {
	return retryValue(ctx, r, "insert article", func() (*types.StoredArticle, error) {
		return r.inner.InsertArticle(ctx, article)
	})
}

func (r *RetryingStore) UpdateContentFields(ctx context.Context, id int64, update types.ContentUpdate) error {
	return retryErr(ctx, r, "update content fields", func() error {
		return r.inner.UpdateContentFields(ctx, id, update)
	})
}

func (r *RetryingStore) RecordDuplicateCheck(ctx context.Context, id int64) error {
	return retryErr(ctx, r, "record duplicate check", func() error {
		return r.inner.RecordDuplicateCheck(ctx, id)
	})
}

func (r *RetryingStore) GetDuplicateStats(ctx context.Context) (*types.DuplicateStats, error) {
	return retryValue(ctx, r, "get duplicate stats", func() (*types.DuplicateStats, error) {
		return r.inner.GetDuplicateStats(ctx)
	})
}

func (r *RetryingStore) Close() error {
	return r.inner.Close()
}

// IsTransient reports whether err looks like a dropped or refused database
// connection, a timeout, or a busy SQLite file.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EADDRNOTAVAIL) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	if pgconn.Timeout(err) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// class 08 is connection exception; 57P01-03 are shutdown/startup
		switch {
		case strings.HasPrefix(pgErr.Code, "08"):
			return true
		case pgErr.Code == "57P01", pgErr.Code == "57P02", pgErr.Code == "57P03":
			return true
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, sqlite3.BUSY) || errors.Is(err, sqlite3.LOCKED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection terminated", "connection reset", "connection refused", "conn closed", "unexpected eof"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
