package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/koipond/koipond-backend/internal/ledger"
	"github.com/koipond/koipond-backend/internal/products"
	"github.com/koipond/koipond-backend/internal/shipping"
	"github.com/koipond/koipond-backend/pkg/db/models"
	"github.com/koipond/koipond-backend/pkg/enums"
	pkgerrors "github.com/koipond/koipond-backend/pkg/errors"
	"github.com/koipond/koipond-backend/pkg/logger"
	"github.com/koipond/koipond-backend/pkg/outbox"
	"github.com/koipond/koipond-backend/pkg/pagination"
	"github.com/koipond/koipond-backend/pkg/types"
)

const (
	refundSourceStatus = "order_status"
	refundSourceCancel = "cancel"
	onlinePayment      = "GATEWAY"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type shopReader interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Shop, error)
}

// Service defines the order lifecycle operations.
type Service interface {
	Get(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*pagination.Page[models.Order], error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*TransitionResult, error)
	Cancel(ctx context.Context, input CancelInput) (*TransitionResult, error)
	RecordPayment(ctx context.Context, input RecordPaymentInput) (*TransitionResult, error)
	Update(ctx context.Context, input UpdateOrderInput) (*UpdateResult, error)
}

type service struct {
	repo      Repository
	tx        txRunner
	outbox    outboxPublisher
	ledger    ledger.Service
	stock     products.StockRepository
	shops     shopReader
	estimator shipping.Estimator
	logg      *logger.Logger
}

// NewService builds the order service with the required dependencies.
func NewService(
	repo Repository,
	tx txRunner,
	publisher outboxPublisher,
	ledgerSvc ledger.Service,
	stock products.StockRepository,
	shops shopReader,
	estimator shipping.Estimator,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock repository required")
	}
	if shops == nil {
		return nil, fmt.Errorf("shop reader required")
	}
	if estimator == nil {
		return nil, fmt.Errorf("shipping estimator required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:      repo,
		tx:        tx,
		outbox:    publisher,
		ledger:    ledgerSvc,
		stock:     stock,
		shops:     shops,
		estimator: estimator,
		logg:      logg,
	}, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, notFoundOr(err, "load order")
	}
	if actor.IsAdmin() || order.BuyerID == actor.UserID {
		return order, nil
	}
	shops, err := s.shops.FindByIDs(ctx, []uuid.UUID{order.ShopID})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load shop")
	}
	if shop, ok := shops[order.ShopID]; ok && shop.OwnerID == actor.UserID {
		return order, nil
	}
	// hide other users' orders entirely
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}

func (s *service) ListByBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*pagination.Page[models.Order], error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	page, err := s.repo.ListByBuyer(ctx, buyerID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "list orders")
	}
	return page, nil
}

// UpdateStatus moves an order to a new status and applies the ledger effect
// the target status implies. A repeated request returns Changed=false and
// never writes a second receipt.
func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*TransitionResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	target, err := enums.ParseOrderStatus(input.Status)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order status")
	}

	var result *TransitionResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByIDForUpdate(ctx, input.OrderID)
		if err != nil {
			return notFoundOr(err, "load order")
		}
		txn, err := s.ledger.LockForOrder(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if txn != nil && txn.State == enums.LedgerStateReport {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order has an open report")
		}
		if err := checkTransition(order.Status, target); err != nil {
			return err
		}

		result = &TransitionResult{Order: order, Transaction: txn}
		ledgerChanged, refunded, err := s.applyLedgerEffect(ctx, tx, order, txn, target)
		if err != nil {
			return err
		}
		result.Refunded = refunded

		from := order.Status
		if from == target && !ledgerChanged {
			return nil
		}
		order.Status = target
		if err := repo.UpdateStatus(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "update order status")
		}
		result.Changed = true
		return s.emit(ctx, tx, enums.EventOrderStatusChanged, order, input.Actor, StatusChangedEvent{
			OrderID:  order.ID,
			ShopID:   order.ShopID,
			BuyerID:  order.BuyerID,
			From:     from,
			To:       target,
			Refunded: refunded,
		})
	})
	if err != nil {
		return nil, pkgerrors.WrapUntyped(pkgerrors.CodePersistence, err, "update order status")
	}
	if result.Changed {
		s.logg.Info(s.logg.WithFields(s.logg.WithOrderID(ctx, input.OrderID.String()), map[string]any{
			"status":   result.Order.Status,
			"refunded": result.Refunded,
		}), "order status updated")
	}
	return result, nil
}

// checkTransition rejects moves out of a closed status and limits a completed
// order to the refund statuses. Repeating the current status is always
// allowed so retries stay no-ops.
func checkTransition(from, to enums.OrderStatus) error {
	if from == to {
		return nil
	}
	allowed := !from.IsClosed()
	if from == enums.OrderStatusComplete {
		allowed = to == enums.OrderStatusFail || to == enums.OrderStatusReturn
	}
	if allowed {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, "order status can no longer change").
		WithDetails(map[string]any{"from": from, "to": to})
}

// applyLedgerEffect reports whether the transaction changed and whether money
// was refunded.
func (s *service) applyLedgerEffect(ctx context.Context, tx *gorm.DB, order *models.Order, txn *models.Transaction, target enums.OrderStatus) (bool, bool, error) {
	if txn == nil {
		return false, false, nil
	}
	switch target {
	case enums.OrderStatusComplete:
		changed, err := s.ledger.Settle(ctx, tx, txn, order.Total, types.MethodCOD, nil)
		return changed, false, err
	case enums.OrderStatusFail, enums.OrderStatusReturn:
		if txn.State == enums.LedgerStateCancel {
			return false, false, nil
		}
		if txn.Payment != nil {
			refunded, err := s.ledger.Refund(ctx, tx, txn, ledger.RefundInput{
				Amount:      order.Total,
				Description: refundDescription(target),
				Source:      refundSourceStatus,
			})
			return refunded, refunded, err
		}
		if target == enums.OrderStatusReturn {
			changed, err := s.ledger.Void(ctx, tx, txn)
			return changed, false, err
		}
	}
	return false, false, nil
}

func refundDescription(target enums.OrderStatus) string {
	if target == enums.OrderStatusReturn {
		return "order returned"
	}
	return "order failed"
}

// Cancel cancels a pending order, refunding anything already collected and
// returning its stock.
func (s *service) Cancel(ctx context.Context, input CancelInput) (*TransitionResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.Actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	var result *TransitionResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByIDForUpdate(ctx, input.OrderID)
		if err != nil {
			return notFoundOr(err, "load order")
		}
		if !input.Actor.IsAdmin() && order.BuyerID != input.Actor.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
		}
		result = &TransitionResult{Order: order}
		if order.Status == enums.OrderStatusCancel {
			return nil
		}
		if order.Status != enums.OrderStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only pending orders can be cancelled").
				WithDetails(map[string]any{"status": order.Status})
		}

		txn, err := s.ledger.LockForOrder(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if txn != nil && txn.State == enums.LedgerStateReport {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order has an open report")
		}
		result.Transaction = txn

		refunded, err := s.ledger.Refund(ctx, tx, txn, ledger.RefundInput{
			Amount:      order.Total,
			Description: "order cancelled",
			Source:      refundSourceCancel,
		})
		if err != nil {
			return err
		}
		if !refunded {
			if _, err := s.ledger.Void(ctx, tx, txn); err != nil {
				return err
			}
		}
		result.Refunded = refunded

		stock := s.stock.WithTx(tx)
		for _, d := range order.Details {
			if err := stock.Restock(ctx, d.ProductID, d.Quantity); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "restock product")
			}
		}

		if reason := strings.TrimSpace(input.Reason); reason != "" {
			order.Note = &reason
		}
		from := order.Status
		order.Status = enums.OrderStatusCancel
		if err := repo.UpdateStatus(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "cancel order")
		}
		result.Changed = true
		return s.emit(ctx, tx, enums.EventOrderCancelled, order, input.Actor, StatusChangedEvent{
			OrderID:  order.ID,
			ShopID:   order.ShopID,
			BuyerID:  order.BuyerID,
			From:     from,
			To:       order.Status,
			Refunded: refunded,
		})
	})
	if err != nil {
		return nil, pkgerrors.WrapUntyped(pkgerrors.CodePersistence, err, "cancel order")
	}
	return result, nil
}

// RecordPayment stores an online payment for an open order. A second report
// of the same payment is a no-op.
func (s *service) RecordPayment(ctx context.Context, input RecordPaymentInput) (*TransitionResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if strings.TrimSpace(input.GatewayRef) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway reference required")
	}
	method := strings.TrimSpace(input.Method)
	if method == "" {
		method = onlinePayment
	}

	var result *TransitionResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.repo.WithTx(tx).FindByIDForUpdate(ctx, input.OrderID)
		if err != nil {
			return notFoundOr(err, "load order")
		}
		if order.Status.IsClosed() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is closed")
		}
		txn, err := s.ledger.LockForOrder(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if txn == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order has no transaction")
		}
		if txn.State == enums.LedgerStateReport {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order has an open report")
		}

		ref := strings.TrimSpace(input.GatewayRef)
		changed, err := s.ledger.Settle(ctx, tx, txn, txn.Amount, method, &ref)
		if err != nil {
			return err
		}
		result = &TransitionResult{Order: order, Transaction: txn, Changed: changed}
		if !changed {
			return nil
		}
		return s.emit(ctx, tx, enums.EventOrderPaid, order, input.Actor, map[string]any{
			"order_id":    order.ID,
			"amount":      txn.Amount.String(),
			"method":      method,
			"gateway_ref": ref,
		})
	})
	if err != nil {
		return nil, pkgerrors.WrapUntyped(pkgerrors.CodePersistence, err, "record order payment")
	}
	return result, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, order *models.Order, actor Actor, data any) error {
	event := outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         buildActor(actor),
		Data:          data,
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "emit order event")
	}
	return nil
}

func buildActor(actor Actor) *outbox.ActorRef {
	if actor.UserID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)}
}

func notFoundOr(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodePersistence, err, msg)
}
