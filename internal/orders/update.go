package orders

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/koipond/koipond-backend/internal/products"
	"github.com/koipond/koipond-backend/internal/shipping"
	"github.com/koipond/koipond-backend/pkg/db/models"
	"github.com/koipond/koipond-backend/pkg/enums"
	pkgerrors "github.com/koipond/koipond-backend/pkg/errors"
)

// NormalizeLines validates quantities and merges repeated products,
// keeping first-seen order.
func NormalizeLines(items []LineInput) ([]LineInput, error) {
	out := make([]LineInput, 0, len(items))
	index := make(map[uuid.UUID]int, len(items))
	for _, item := range items {
		if item.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
		}
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
				WithDetails(map[string]any{"product_id": item.ProductID})
		}
		if i, ok := index[item.ProductID]; ok {
			out[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(out)
		out = append(out, item)
	}
	return out, nil
}

// Update reconciles a pending, unpaid order with a new set of lines. Stock
// moves by the difference only; an empty set deletes the order.
func (s *service) Update(ctx context.Context, input UpdateOrderInput) (*UpdateResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	lines, err := NormalizeLines(input.Items)
	if err != nil {
		return nil, err
	}
	shipType, err := enums.ParseShipType(input.ShipType)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid ship type")
	}
	if len(lines) > 0 {
		if err := input.Address.Validate(); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shipping address")
		}
	}

	current, err := s.repo.FindByID(ctx, input.OrderID)
	if err != nil {
		return nil, notFoundOr(err, "load order")
	}
	if current.BuyerID != input.Actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
	}
	if current.Status != enums.OrderStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only pending orders can be edited")
	}

	// the carrier is called before any row is locked
	fee := decimal.Zero
	var catalog map[uuid.UUID]models.Product
	if len(lines) > 0 {
		catalog, fee, err = s.priceLines(ctx, current, lines, input, shipType)
		if err != nil {
			return nil, err
		}
	}

	var result *UpdateResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		stock := s.stock.WithTx(tx)

		order, err := repo.FindByIDForUpdate(ctx, input.OrderID)
		if err != nil {
			return notFoundOr(err, "load order")
		}
		if order.Status != enums.OrderStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only pending orders can be edited")
		}
		txn, err := s.ledger.LockForOrder(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if txn != nil {
			if txn.Payment != nil {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "paid orders cannot be edited")
			}
			if txn.State == enums.LedgerStateReport {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "order has an open report")
			}
		}

		desired := make(map[uuid.UUID]int, len(lines))
		for _, line := range lines {
			desired[line.ProductID] = line.Quantity
		}
		existing := make(map[uuid.UUID]models.OrderDetail, len(order.Details))
		var removed []uuid.UUID
		for _, d := range order.Details {
			existing[d.ProductID] = d
			if _, keep := desired[d.ProductID]; keep {
				continue
			}
			if err := stock.Restock(ctx, d.ProductID, d.Quantity); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "restock product")
			}
			removed = append(removed, d.ID)
		}

		if len(lines) == 0 {
			if err := repo.Delete(ctx, order.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "delete order")
			}
			if err := s.ledger.Discard(ctx, tx, txn); err != nil {
				return err
			}
			result = &UpdateResult{Deleted: true}
			return s.emit(ctx, tx, enums.EventOrderUpdated, order, input.Actor, map[string]any{
				"order_id": order.ID,
				"deleted":  true,
			})
		}

		total := decimal.Zero
		details := make([]models.OrderDetail, 0, len(lines))
		var created []models.OrderDetail
		for _, line := range lines {
			product := catalog[line.ProductID]
			detail, had := existing[line.ProductID]
			delta := line.Quantity
			if had {
				delta = line.Quantity - detail.Quantity
			}
			switch {
			case delta > 0:
				if err := stock.DecrementStock(ctx, line.ProductID, delta); err != nil {
					return stockError(err, line.ProductID)
				}
			case delta < 0:
				if err := stock.Restock(ctx, line.ProductID, -delta); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "restock product")
				}
			}

			detail.Quantity = line.Quantity
			detail.UnitPrice = product.Price
			detail.UnitWeightGrams = product.WeightGrams
			if had {
				if err := repo.UpdateDetail(ctx, &detail); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "update order detail")
				}
				details = append(details, detail)
			} else {
				detail.OrderID = order.ID
				detail.ProductID = line.ProductID
				created = append(created, detail)
			}
			total = total.Add(detail.LineTotal())
		}
		if err := repo.DeleteDetails(ctx, removed); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "delete order details")
		}
		if err := repo.CreateDetails(ctx, created); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "create order details")
		}

		order.Total = total
		order.ShippingFee = fee
		order.ShipType = shipType
		order.Address = input.Address
		if name := strings.TrimSpace(input.BuyerName); name != "" {
			order.BuyerName = name
		}
		if phone := strings.TrimSpace(input.BuyerPhone); phone != "" {
			order.BuyerPhone = phone
		}
		if input.Note != nil {
			order.Note = input.Note
		}
		if err := repo.UpdateEditable(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "update order")
		}
		if err := s.ledger.Reprice(ctx, tx, txn, order.GrandTotal()); err != nil {
			return err
		}
		order.Details = append(details, created...)

		result = &UpdateResult{Order: order}
		return s.emit(ctx, tx, enums.EventOrderUpdated, order, input.Actor, map[string]any{
			"order_id":     order.ID,
			"total":        order.Total.String(),
			"shipping_fee": order.ShippingFee.String(),
			"lines":        len(order.Details),
		})
	})
	if err != nil {
		return nil, pkgerrors.WrapUntyped(pkgerrors.CodePersistence, err, "update order")
	}
	return result, nil
}

// priceLines loads the products, checks they belong to the order's shop and
// quotes the new parcel.
func (s *service) priceLines(ctx context.Context, order *models.Order, lines []LineInput, input UpdateOrderInput, shipType enums.ShipType) (map[uuid.UUID]models.Product, decimal.Decimal, error) {
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	catalog, err := s.stock.GetByIDs(ctx, ids)
	if err != nil {
		return nil, decimal.Zero, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load products")
	}

	held := make(map[uuid.UUID]int, len(order.Details))
	for _, d := range order.Details {
		held[d.ProductID] = d.Quantity
	}
	parcel := make([]shipping.Line, 0, len(lines))
	for _, line := range lines {
		product, ok := catalog[line.ProductID]
		if !ok {
			return nil, decimal.Zero, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
				WithDetails(map[string]any{"product_id": line.ProductID})
		}
		if product.ShopID != order.ShopID {
			return nil, decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "product belongs to another shop").
				WithDetails(map[string]any{"product_id": line.ProductID})
		}
		if extra := line.Quantity - held[line.ProductID]; extra > product.StockQuantity {
			return nil, decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "insufficient stock").
				WithDetails(map[string]any{"product_id": line.ProductID})
		}
		parcel = append(parcel, shipping.Line{Product: product, Quantity: line.Quantity})
	}

	shops, err := s.shops.FindByIDs(ctx, []uuid.UUID{order.ShopID})
	if err != nil {
		return nil, decimal.Zero, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load shop")
	}
	shop, ok := shops[order.ShopID]
	if !ok {
		return nil, decimal.Zero, pkgerrors.New(pkgerrors.CodeNotFound, "shop not found")
	}
	req, err := shipping.NewQuoteRequest(shop, input.Address, shipType, parcel)
	if err != nil {
		return nil, decimal.Zero, err
	}
	fee, err := s.estimator.Quote(ctx, req)
	if err != nil {
		return nil, decimal.Zero, err
	}
	return catalog, fee, nil
}

func stockError(err error, productID uuid.UUID) error {
	if errors.Is(err, products.ErrInsufficientStock) {
		return pkgerrors.New(pkgerrors.CodeValidation, "insufficient stock").
			WithDetails(map[string]any{"product_id": productID})
	}
	return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "decrement stock")
}
