package payments

import (
	"context"
	"fmt"
	"time"

	pkgerrors "github.com/candemirel/vitrin-backend/pkg/errors"
	"github.com/candemirel/vitrin-backend/pkg/redis"
)

// IdempotencyGuard short-circuits redelivered webhook callbacks with a
// Redis SetNX mark, keeping repeats away from the database entirely. The
// settlement pipeline stays replay-safe on its own; the guard is a fast
// path, not the correctness gate.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

// NewIdempotencyGuard builds a guard writing marks under the given scope.
func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, fmt.Errorf("idempotency store required")
	}
	if ttl < 0 {
		return nil, fmt.Errorf("ttl must be non-negative")
	}
	if scope == "" {
		return nil, fmt.Errorf("scope required")
	}
	return &IdempotencyGuard{
		store: store,
		ttl:   ttl,
		scope: scope,
	}, nil
}

// CheckAndMark atomically marks the event and reports whether it was
// already marked. Callers must Delete the mark if processing then fails,
// or the provider's retries would be swallowed.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	key := g.store.IdempotencyKey(g.scope, eventID)
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "set idempotency mark")
	}
	return !set, nil
}

// Delete removes the mark so a later redelivery is processed again.
func (g *IdempotencyGuard) Delete(ctx context.Context, eventID string) error {
	if eventID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	key := g.store.IdempotencyKey(g.scope, eventID)
	if err := g.store.Del(ctx, key); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete idempotency mark")
	}
	return nil
}
