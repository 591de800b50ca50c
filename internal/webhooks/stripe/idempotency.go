package stripewebhook

import (
	"context"
	"time"

	pkgerrors "github.com/teamlumen/lumen-backend/pkg/errors"
	"github.com/teamlumen/lumen-backend/pkg/redis"
)

// IdempotencyGuard marks Stripe event ids in Redis so each delivery is
// processed at most once per retention window. Marks are written with SetNX,
// so concurrent deliveries of the same event race safely: exactly one wins.
type IdempotencyGuard struct {
	marks     redis.IdempotencyStore
	retention time.Duration
	scope     string
}

// NewIdempotencyGuard builds a guard keyed under the given scope. The
// retention window should exceed Stripe's redelivery horizon so late
// duplicates still hit an existing mark.
func NewIdempotencyGuard(store redis.IdempotencyStore, retention time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "idempotency store required")
	}
	if retention < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "idempotency retention must be non-negative")
	}
	if scope == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "idempotency scope required")
	}
	return &IdempotencyGuard{marks: store, retention: retention, scope: scope}, nil
}

// CheckAndMark records the event id and reports whether it was already
// marked. True means the delivery is a duplicate and must be acknowledged
// without reprocessing.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}

	fresh, err := g.marks.SetNX(ctx, g.marks.IdempotencyKey(g.scope, eventID), "1", g.retention)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark event delivery")
	}
	return !fresh, nil
}

// Delete releases the mark after a failed handler run so Stripe's redelivery
// gets a fresh attempt instead of a duplicate acknowledgment.
func (g *IdempotencyGuard) Delete(ctx context.Context, eventID string) error {
	if eventID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	return g.marks.Del(ctx, g.marks.IdempotencyKey(g.scope, eventID))
}
