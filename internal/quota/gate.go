package quota

import (
	"context"
	"fmt"

	"tubebrief/internal/storage"
)

// UsageStore is the slice of storage the gate needs.
type UsageStore interface {
	GetUsage(ctx context.Context, userID string) (storage.Usage, error)
	IncrementUsage(ctx context.Context, userID string) (storage.Usage, error)
}

type Decision struct {
	Allowed bool
	Current int
	Limit   int
	Tier    string
}

type Gate struct {
	store     UsageStore
	freeLimit int
}

func New(store UsageStore, freeLimit int) *Gate {
	return &Gate{store: store, freeLimit: freeLimit}
}

// Check decides whether a generation may proceed. BYOK accounts are never
// capped; free accounts are capped at the monthly limit. If the store is
// unreachable the gate fails closed: the caller gets an error and must not
// contact the provider.
func (g *Gate) Check(ctx context.Context, userID string) (Decision, error) {
	usage, err := g.store.GetUsage(ctx, userID)
	if err != nil {
		return Decision{}, fmt.Errorf("usage check: %w", err)
	}

	d := Decision{
		Current: usage.SummaryCount,
		Limit:   g.freeLimit,
		Tier:    usage.AccountTier,
	}
	if usage.AccountTier == "byok" {
		d.Allowed = true
		return d, nil
	}
	d.Allowed = usage.SummaryCount < g.freeLimit
	return d, nil
}

// Consume records one completed generation. Called only after the downstream
// call finished successfully. BYOK usage is counted too so dashboards stay
// meaningful, it just never gates.
func (g *Gate) Consume(ctx context.Context, userID string) (storage.Usage, error) {
	usage, err := g.store.IncrementUsage(ctx, userID)
	if err != nil {
		return storage.Usage{}, fmt.Errorf("consume usage: %w", err)
	}
	return usage, nil
}
