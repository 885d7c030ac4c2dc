package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/koipond/koipond-backend/internal/checkout/helpers"
	"github.com/koipond/koipond-backend/internal/ledger"
	"github.com/koipond/koipond-backend/internal/orders"
	"github.com/koipond/koipond-backend/internal/products"
	"github.com/koipond/koipond-backend/internal/shipping"
	"github.com/koipond/koipond-backend/pkg/db/models"
	"github.com/koipond/koipond-backend/pkg/enums"
	pkgerrors "github.com/koipond/koipond-backend/pkg/errors"
	"github.com/koipond/koipond-backend/pkg/logger"
	"github.com/koipond/koipond-backend/pkg/metrics"
	"github.com/koipond/koipond-backend/pkg/outbox"
	"github.com/koipond/koipond-backend/pkg/types"
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

// Service executes checkout orchestration.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) ([]VendorResult, error)
}

// CreateOrderInput is a buyer checkout across any number of shops.
type CreateOrderInput struct {
	BuyerID       uuid.UUID
	BuyerName     string
	BuyerPhone    string
	Address       types.ShippingAddress
	ShipType      string
	InitialStatus string
	Note          *string
	Items         []orders.LineInput
}

// VendorResult is the outcome for one shop. Exactly one of Order and Err is
// set.
type VendorResult struct {
	ShopID uuid.UUID
	Order  *models.Order
	Err    error
}

// OrderCreatedEvent is emitted once per committed vendor order.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID `json:"order_id"`
	ShopID        uuid.UUID `json:"shop_id"`
	BuyerID       uuid.UUID `json:"buyer_id"`
	TransactionID uuid.UUID `json:"transaction_id"`
	Total         string    `json:"total"`
	ShippingFee   string    `json:"shipping_fee"`
}

type service struct {
	tx         txRunner
	ordersRepo orders.Repository
	stock      products.StockRepository
	shops      shopReader
	estimator  shipping.Estimator
	ledger     ledger.Service
	outbox     outboxPublisher
	metrics    *metrics.SettlementMetrics
	logg       *logger.Logger
}

// NewService builds the checkout service.
func NewService(
	tx txRunner,
	ordersRepo orders.Repository,
	stock products.StockRepository,
	shops shopReader,
	estimator shipping.Estimator,
	ledgerSvc ledger.Service,
	publisher outboxPublisher,
	m *metrics.SettlementMetrics,
	logg *logger.Logger,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
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
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		tx:         tx,
		ordersRepo: ordersRepo,
		stock:      stock,
		shops:      shops,
		estimator:  estimator,
		ledger:     ledgerSvc,
		outbox:     publisher,
		metrics:    m,
		logg:       logg,
	}, nil
}

type checkoutRequest struct {
	input    CreateOrderInput
	shipType enums.ShipType
	status   enums.OrderStatus
}

// CreateOrder splits the checkout by shop and commits each shop's order on
// its own. A failing shop never rolls back another shop's order; the
// returned slice carries one result per shop in first-seen order.
func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) ([]VendorResult, error) {
	req, lines, err := validate(input)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	catalog, err := s.stock.GetByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load products")
	}
	refs := make([]helpers.LineRef, 0, len(lines))
	for _, line := range lines {
		if _, ok := catalog[line.ProductID]; !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
				WithDetails(map[string]any{"product_id": line.ProductID})
		}
		refs = append(refs, helpers.LineRef{ProductID: line.ProductID, Quantity: line.Quantity})
	}

	groups := helpers.GroupByShop(refs, catalog)
	shopIDs := make([]uuid.UUID, 0, len(groups))
	for _, g := range groups {
		shopIDs = append(shopIDs, g.ShopID)
	}
	shops, err := s.shops.FindByIDs(ctx, shopIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load shops")
	}

	results := make([]VendorResult, 0, len(groups))
	for _, group := range groups {
		order, err := s.placeGroup(ctx, req, group, shops)
		result := VendorResult{ShopID: group.ShopID, Order: order, Err: err}
		if err != nil {
			s.metrics.VendorGroup("error")
			s.logg.Warn(s.logg.WithFields(s.logg.WithShopID(ctx, group.ShopID.String()), map[string]any{
				"buyer_id": input.BuyerID.String(),
				"error":    err.Error(),
			}), "vendor group not placed")
		} else {
			s.metrics.VendorGroup("ok")
			s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "vendor order placed")
		}
		results = append(results, result)
	}
	return results, nil
}

func validate(input CreateOrderInput) (checkoutRequest, []orders.LineInput, error) {
	if input.BuyerID == uuid.Nil {
		return checkoutRequest{}, nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	if len(input.Items) == 0 {
		return checkoutRequest{}, nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout contains no items")
	}
	lines, err := orders.NormalizeLines(input.Items)
	if err != nil {
		return checkoutRequest{}, nil, err
	}
	if err := input.Address.Validate(); err != nil {
		return checkoutRequest{}, nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shipping address")
	}
	shipType, err := enums.ParseShipType(strings.TrimSpace(input.ShipType))
	if err != nil {
		return checkoutRequest{}, nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid ship type")
	}
	status := enums.OrderStatusPending
	if raw := strings.TrimSpace(input.InitialStatus); raw != "" {
		status, err = enums.ParseOrderStatus(raw)
		if err != nil {
			return checkoutRequest{}, nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid initial status")
		}
		if status != enums.OrderStatusPending && status != enums.OrderStatusProcessing {
			return checkoutRequest{}, nil, pkgerrors.New(pkgerrors.CodeValidation, "orders start as pending or processing")
		}
	}
	return checkoutRequest{input: input, shipType: shipType, status: status}, lines, nil
}

// placeGroup quotes shipping outside the transaction, then commits stock,
// order, lines, seed transaction and event together.
func (s *service) placeGroup(ctx context.Context, req checkoutRequest, group helpers.VendorGroup, shops map[uuid.UUID]models.Shop) (*models.Order, error) {
	shop, ok := shops[group.ShopID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shop not found")
	}
	if productID, short := group.ShortOfStock(); short {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "insufficient stock").
			WithDetails(map[string]any{"product_id": productID})
	}

	quote, err := shipping.NewQuoteRequest(shop, req.input.Address, req.shipType, group.Lines)
	if err != nil {
		return nil, err
	}
	fee, err := s.estimator.Quote(ctx, quote)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		ShopID:      group.ShopID,
		BuyerID:     req.input.BuyerID,
		Status:      req.status,
		ShipType:    req.shipType,
		ShippingFee: fee,
		Total:       group.Total(),
		Address:     req.input.Address,
		BuyerName:   strings.TrimSpace(req.input.BuyerName),
		BuyerPhone:  strings.TrimSpace(req.input.BuyerPhone),
		Note:        req.input.Note,
		Details:     group.Details(),
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		stock := s.stock.WithTx(tx)
		for _, line := range group.Lines {
			if err := stock.DecrementStock(ctx, line.Product.ID, line.Quantity); err != nil {
				if errors.Is(err, products.ErrInsufficientStock) {
					return pkgerrors.New(pkgerrors.CodeValidation, "insufficient stock").
						WithDetails(map[string]any{"product_id": line.Product.ID})
				}
				return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "decrement stock")
			}
		}
		if err := s.ordersRepo.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "create order")
		}
		txn, err := s.ledger.OpenForOrder(ctx, tx, order)
		if err != nil {
			return err
		}
		event := outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: req.input.BuyerID, Role: string(enums.UserRoleBuyer)},
			Data: OrderCreatedEvent{
				OrderID:       order.ID,
				ShopID:        order.ShopID,
				BuyerID:       order.BuyerID,
				TransactionID: txn.ID,
				Total:         order.Total.String(),
				ShippingFee:   order.ShippingFee.String(),
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "emit order created")
		}
		return nil
	})
	if err != nil {
		return nil, pkgerrors.WrapUntyped(pkgerrors.CodePersistence, err, "place vendor order")
	}
	return order, nil
}
