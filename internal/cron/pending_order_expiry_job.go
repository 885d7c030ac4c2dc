package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/koipond/koipond-backend/internal/orders"
	"github.com/koipond/koipond-backend/pkg/enums"
	pkgerrors "github.com/koipond/koipond-backend/pkg/errors"
	"github.com/koipond/koipond-backend/pkg/logger"
)

const (
	defaultPendingOrderTTL = 10 * 24 * time.Hour
	expiryBatchSize        = 200
	expiryReason           = "expired: not confirmed by the shop in time"
)

type pendingOrderReader interface {
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
}

type orderCanceller interface {
	Cancel(ctx context.Context, input orders.CancelInput) (*orders.TransitionResult, error)
}

type PendingOrderExpiryJobParams struct {
	Logger    *logger.Logger
	Orders    pendingOrderReader
	Canceller orderCanceller
	SystemID  uuid.UUID
	TTL       time.Duration
}

// NewPendingOrderExpiryJob cancels orders that stayed pending past the TTL.
// Cancellation goes through the order service so stock is restored and any
// captured payment is refunded exactly as for a buyer cancel.
func NewPendingOrderExpiryJob(params PendingOrderExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("pending order reader required")
	}
	if params.Canceller == nil {
		return nil, fmt.Errorf("order canceller required")
	}
	if params.SystemID == uuid.Nil {
		return nil, fmt.Errorf("system actor id required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultPendingOrderTTL
	}
	return &pendingOrderExpiryJob{
		logg:      params.Logger,
		orders:    params.Orders,
		canceller: params.Canceller,
		actor:     orders.Actor{UserID: params.SystemID, Role: enums.UserRoleAdmin},
		ttl:       ttl,
		now:       time.Now,
	}, nil
}

type pendingOrderExpiryJob struct {
	logg      *logger.Logger
	orders    pendingOrderReader
	canceller orderCanceller
	actor     orders.Actor
	ttl       time.Duration
	now       func() time.Time
}

func (j *pendingOrderExpiryJob) Name() string { return "pending-order-expiry" }

func (j *pendingOrderExpiryJob) Run(ctx context.Context) (int64, error) {
	cutoff := j.now().UTC().Add(-j.ttl)
	ids, err := j.orders.ListPendingBefore(ctx, cutoff, expiryBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending orders: %w", err)
	}

	var (
		expired int64
		skipped int
		errs    error
	)
	for _, id := range ids {
		orderCtx := j.logg.WithOrderID(ctx, id.String())
		result, err := j.canceller.Cancel(orderCtx, orders.CancelInput{
			OrderID: id,
			Reason:  expiryReason,
			Actor:   j.actor,
		})
		switch {
		case pkgerrors.IsCode(err, pkgerrors.CodeStateConflict):
			// moved on or under report since it was listed
			skipped++
			continue
		case err != nil:
			errs = multierr.Append(errs, fmt.Errorf("expire order %s: %w", id, err))
			continue
		}
		if result != nil && result.Changed {
			expired++
			j.logg.Info(j.logg.WithField(orderCtx, "refunded", result.Refunded), "pending order expired")
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"listed":  len(ids),
		"expired": expired,
		"skipped": skipped,
	}), "pending order expiry complete")
	return expired, errs
}
