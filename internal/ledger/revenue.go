package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/koipond/koipond-backend/pkg/enums"
	pkgerrors "github.com/koipond/koipond-backend/pkg/errors"
)

// Period is a half-open [From, To) window over transaction creation time.
// A zero bound is unbounded.
type Period struct {
	From time.Time
	To   time.Time
}

// PlatformRevenue is what the marketplace earned in a period.
type PlatformRevenue struct {
	OrderFees      decimal.Decimal `json:"order_fees"`
	PackageRevenue decimal.Decimal `json:"package_revenue"`
	Total          decimal.Decimal `json:"total"`
	OrderCount     int             `json:"order_count"`
	PackageCount   int             `json:"package_count"`
}

// ShopRevenue is one shop's share of completed orders.
type ShopRevenue struct {
	ShopID      uuid.UUID       `json:"shop_id"`
	Gross       decimal.Decimal `json:"gross"`
	PlatformFee decimal.Decimal `json:"platform_fee"`
	Net         decimal.Decimal `json:"net"`
	OrderCount  int             `json:"order_count"`
}

// RevenueService aggregates settled ledger rows.
type RevenueService struct {
	db      *gorm.DB
	feeRate decimal.Decimal
}

// NewRevenueService builds the aggregator with the platform fee rate.
func NewRevenueService(db *gorm.DB, feeRate decimal.Decimal) (*RevenueService, error) {
	if db == nil {
		return nil, fmt.Errorf("database required")
	}
	if feeRate.IsNegative() || feeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("fee rate must be in [0, 1)")
	}
	return &RevenueService{db: db, feeRate: feeRate}, nil
}

type completedOrderRow struct {
	ShopID uuid.UUID
	Total  decimal.Decimal
}

// completedOrders returns the order ledger rows whose order reached
// complete and was never refunded or voided, one entry per order.
func (s *RevenueService) completedOrders(ctx context.Context, period Period, shopID *uuid.UUID) ([]completedOrderRow, error) {
	q := s.db.WithContext(ctx).
		Table("transactions AS t").
		Select("o.shop_id AS shop_id, o.total AS total").
		Joins("JOIN orders o ON o.id = t.doc_no").
		Where("t.source_kind = ? AND o.status = ?", enums.SourceKindOrder, enums.OrderStatusComplete).
		Where("t.refund IS NULL AND t.state <> ?", enums.LedgerStateCancel)
	q = applyPeriod(q, "t.created_at", period)
	if shopID != nil {
		q = q.Where("o.shop_id = ?", *shopID)
	}
	var rows []completedOrderRow
	if err := q.Scan(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load completed orders")
	}
	return rows, nil
}

func applyPeriod(q *gorm.DB, column string, period Period) *gorm.DB {
	if !period.From.IsZero() {
		q = q.Where(column+" >= ?", period.From.UTC())
	}
	if !period.To.IsZero() {
		q = q.Where(column+" < ?", period.To.UTC())
	}
	return q
}

// Platform sums the fee taken on completed orders and all settled package
// purchases.
func (s *RevenueService) Platform(ctx context.Context, period Period) (*PlatformRevenue, error) {
	orders, err := s.completedOrders(ctx, period, nil)
	if err != nil {
		return nil, err
	}
	out := &PlatformRevenue{OrderFees: decimal.Zero, PackageRevenue: decimal.Zero}
	for _, row := range orders {
		out.OrderFees = out.OrderFees.Add(s.fee(row.Total))
	}
	out.OrderCount = len(orders)

	var amounts []decimal.Decimal
	q := s.db.WithContext(ctx).
		Table("transactions").
		Where("source_kind = ? AND state = ?", enums.SourceKindPackage, enums.LedgerStateSuccess)
	q = applyPeriod(q, "created_at", period)
	if err := q.Pluck("amount", &amounts).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load package revenue")
	}
	for _, amount := range amounts {
		out.PackageRevenue = out.PackageRevenue.Add(amount)
	}
	out.PackageCount = len(amounts)
	out.Total = out.OrderFees.Add(out.PackageRevenue)
	return out, nil
}

// ForShop reports a single shop's gross, fee and net.
func (s *RevenueService) ForShop(ctx context.Context, shopID uuid.UUID, period Period) (*ShopRevenue, error) {
	if shopID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop id is required")
	}
	rows, err := s.completedOrders(ctx, period, &shopID)
	if err != nil {
		return nil, err
	}
	out := &ShopRevenue{ShopID: shopID, Gross: decimal.Zero, PlatformFee: decimal.Zero}
	for _, row := range rows {
		s.add(out, row.Total)
	}
	out.Net = out.Gross.Sub(out.PlatformFee)
	return out, nil
}

// ByShop reports every shop with at least one completed order, highest
// gross first.
func (s *RevenueService) ByShop(ctx context.Context, period Period) ([]ShopRevenue, error) {
	rows, err := s.completedOrders(ctx, period, nil)
	if err != nil {
		return nil, err
	}
	byShop := make(map[uuid.UUID]*ShopRevenue)
	for _, row := range rows {
		entry, ok := byShop[row.ShopID]
		if !ok {
			entry = &ShopRevenue{ShopID: row.ShopID, Gross: decimal.Zero, PlatformFee: decimal.Zero}
			byShop[row.ShopID] = entry
		}
		s.add(entry, row.Total)
	}
	out := make([]ShopRevenue, 0, len(byShop))
	for _, entry := range byShop {
		entry.Net = entry.Gross.Sub(entry.PlatformFee)
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Gross.Cmp(out[j].Gross); c != 0 {
			return c > 0
		}
		return out[i].ShopID.String() < out[j].ShopID.String()
	})
	return out, nil
}

func (s *RevenueService) fee(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(s.feeRate).Round(2)
}

// fees are rounded per order so shop and platform totals agree
func (s *RevenueService) add(r *ShopRevenue, orderTotal decimal.Decimal) {
	r.Gross = r.Gross.Add(orderTotal)
	r.PlatformFee = r.PlatformFee.Add(s.fee(orderTotal))
	r.OrderCount++
}
