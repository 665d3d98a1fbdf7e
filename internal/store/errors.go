package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// The four error kinds the gateway is allowed to surface. Store-native error
// types never cross this package boundary.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	// ErrTransient covers timeouts and connectivity; the operation may be
	// retried by a higher layer.
	ErrTransient = errors.New("store transient failure")
	// ErrPermanent covers corrupted documents and command-level rejections.
	ErrPermanent = errors.New("store permanent failure")
)

// classify wraps a raw store error with the matching kind. Server-side
// command errors (WRONGTYPE, NOPERM, script failures) are permanent: retrying
// the same call cannot succeed. Everything else reaching us from the client —
// dial failures, pool exhaustion, deadlines — is transient.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w: %v", op, ErrTransient, err)
	}
	var redisErr redis.Error
	if errors.As(err, &redisErr) && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%s: %w: %v", op, ErrPermanent, err)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrTransient, err)
}

func permanent(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrPermanent, err)
}
