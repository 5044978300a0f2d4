// Package exec submits signed order intents to venues with bounded retry,
// restart-safe idempotency and a hard wait limit. A submission that
// neither fills nor rejects in time is reconciled against the venue's
// status query; only an outcome that stays ambiguous after that surfaces
// ErrSubmissionTimeout.
package exec

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"stark-arb-bot/internal/state"
	"stark-arb-bot/internal/venue"
)

var ErrSubmissionTimeout = errors.New("order submission timed out")

const (
	maxAttempts    = 5
	initialBackoff = 200 * time.Millisecond

	reconcileAttempts = 3
	reconcileDelay    = 500 * time.Millisecond
)

// Client is one venue's order API: a synchronous submit that resolves to a
// fill or an error, plus the status query used for reconciliation.
type Client interface {
	SubmitOrder(ctx context.Context, order venue.Order) (venue.FillResult, error)
	OrderStatus(ctx context.Context, orderID string) (venue.OrderStatus, error)
}

type Executor struct {
	clients map[venue.ID]Client
	store   state.Store
	log     *zap.Logger
	timeout time.Duration

	mu    sync.Mutex
	cache map[string]string
}

func New(clients map[venue.ID]Client, store state.Store, timeout time.Duration, log *zap.Logger) *Executor {
	return &Executor{
		clients: clients,
		store:   store,
		log:     log,
		timeout: timeout,
		cache:   make(map[string]string),
	}
}

// Submit places the order and waits up to the configured timeout for its
// outcome. A client order id makes the call idempotent across restarts:
// an already-submitted id resolves through the venue's status query
// instead of placing a duplicate.
func (e *Executor) Submit(ctx context.Context, order venue.Order) (venue.FillResult, error) {
	client, ok := e.clients[order.Venue]
	if !ok {
		return venue.FillResult{}, fmt.Errorf("no client for venue %q", order.Venue)
	}
	if order.ClientOrderID != "" {
		if oid, ok, err := e.knownOrderID(ctx, order.ClientOrderID); err != nil {
			return venue.FillResult{}, err
		} else if ok {
			e.log.Info("duplicate client order id, reconciling instead of resubmitting",
				zap.String("client_order_id", order.ClientOrderID),
				zap.String("order_id", oid),
			)
			return e.resolveKnown(ctx, client, oid)
		}
	}
	subCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		subCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	fill, err := e.submitWithRetry(subCtx, client, order)
	if err != nil {
		var timeoutErr *venue.OrderTimeoutError
		if errors.As(err, &timeoutErr) && ctx.Err() == nil {
			if order.ClientOrderID != "" && timeoutErr.OrderID != "" {
				e.remember(ctx, order.ClientOrderID, timeoutErr.OrderID)
			}
			return e.reconcileTimeout(ctx, order, timeoutErr.OrderID)
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return venue.FillResult{}, fmt.Errorf("%w: %s on %s", ErrSubmissionTimeout, order.ClientOrderID, order.Venue)
		}
		return venue.FillResult{}, err
	}
	if order.ClientOrderID != "" && fill.OrderID != "" {
		e.remember(ctx, order.ClientOrderID, fill.OrderID)
	}
	return fill, nil
}

// Reconcile queries the venue for the authoritative outcome of an order
// whose submission timed out.
func (e *Executor) Reconcile(ctx context.Context, v venue.ID, orderID string) (venue.OrderStatus, error) {
	client, ok := e.clients[v]
	if !ok {
		return venue.OrderStatus{}, fmt.Errorf("no client for venue %q", v)
	}
	return client.OrderStatus(ctx, orderID)
}

// reconcileTimeout resolves a timed-out submission before the caller can
// act again: a filled order becomes a fill, a dead unfilled one a
// rejection. Anything still ambiguous after the retries surfaces
// ErrSubmissionTimeout, with the order id already persisted under the
// client order id so a repeat submit resolves through the status query.
func (e *Executor) reconcileTimeout(ctx context.Context, order venue.Order, orderID string) (venue.FillResult, error) {
	for attempt := 0; attempt < reconcileAttempts; attempt++ {
		status, err := e.Reconcile(ctx, order.Venue, orderID)
		if err == nil && !status.Open {
			if status.FilledSize <= 0 {
				return venue.FillResult{}, fmt.Errorf("%w: order %s timed out unfilled", venue.ErrRejected, orderID)
			}
			e.log.Info("timed-out order resolved as filled",
				zap.String("order_id", orderID),
				zap.Float64("size", status.FilledSize),
			)
			return venue.FillResult{
				OrderID: orderID,
				Size:    status.FilledSize,
				Price:   status.AvgPrice,
				Time:    time.Now().UTC(),
			}, nil
		}
		if err != nil {
			e.log.Warn("timeout reconciliation query failed",
				zap.String("order_id", orderID),
				zap.Error(err),
			)
		}
		select {
		case <-ctx.Done():
			return venue.FillResult{}, ctx.Err()
		case <-time.After(reconcileDelay):
		}
	}
	return venue.FillResult{}, fmt.Errorf("%w: order %s on %s unresolved after reconciliation", ErrSubmissionTimeout, orderID, order.Venue)
}

func (e *Executor) submitWithRetry(ctx context.Context, client Client, order venue.Order) (venue.FillResult, error) {
	backoff := initialBackoff
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		fill, err := client.SubmitOrder(ctx, order)
		if err == nil {
			return fill, nil
		}
		// Rejections are authoritative, retrying them only duplicates risk.
		if errors.Is(err, venue.ErrRejected) {
			return venue.FillResult{}, err
		}
		// Context expiry means the order may exist on the venue; surface
		// it unwrapped so the caller sees the order id for reconciliation.
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return venue.FillResult{}, err
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return venue.FillResult{}, ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return venue.FillResult{}, fmt.Errorf("submit retries exhausted: %w", lastErr)
}

func (e *Executor) knownOrderID(ctx context.Context, clientOrderID string) (string, bool, error) {
	key := "cloid:" + clientOrderID
	e.mu.Lock()
	if oid, ok := e.cache[key]; ok {
		e.mu.Unlock()
		return oid, true, nil
	}
	e.mu.Unlock()
	if e.store == nil {
		return "", false, nil
	}
	oid, ok, err := e.store.Get(ctx, key)
	if err != nil || !ok {
		return "", false, err
	}
	e.mu.Lock()
	e.cache[key] = oid
	e.mu.Unlock()
	return oid, true, nil
}

func (e *Executor) remember(ctx context.Context, clientOrderID, orderID string) {
	key := "cloid:" + clientOrderID
	e.mu.Lock()
	e.cache[key] = orderID
	e.mu.Unlock()
	if e.store == nil {
		return
	}
	if err := e.store.Set(ctx, key, orderID); err != nil {
		e.log.Warn("failed to persist order id", zap.Error(err))
	}
}

func (e *Executor) resolveKnown(ctx context.Context, client Client, orderID string) (venue.FillResult, error) {
	status, err := client.OrderStatus(ctx, orderID)
	if err != nil {
		return venue.FillResult{}, err
	}
	if status.FilledSize <= 0 {
		return venue.FillResult{}, fmt.Errorf("%w: known order %s unfilled", venue.ErrRejected, orderID)
	}
	return venue.FillResult{
		OrderID: status.OrderID,
		Size:    status.FilledSize,
		Price:   status.AvgPrice,
		Time:    time.Now().UTC(),
	}, nil
}
