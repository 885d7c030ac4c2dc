package helpers

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/koipond/koipond-backend/internal/shipping"
	"github.com/koipond/koipond-backend/pkg/db/models"
)

// VendorGroup is the slice of a checkout that one shop fulfils.
type VendorGroup struct {
	ShopID uuid.UUID
	Lines  []shipping.Line
}

// GroupByShop splits lines by the owning shop of each product, keeping the
// order in which shops were first seen. Every product must be present in
// catalog.
func GroupByShop(lines []LineRef, catalog map[uuid.UUID]models.Product) []VendorGroup {
	index := make(map[uuid.UUID]int)
	groups := make([]VendorGroup, 0)
	for _, line := range lines {
		product := catalog[line.ProductID]
		i, ok := index[product.ShopID]
		if !ok {
			i = len(groups)
			index[product.ShopID] = i
			groups = append(groups, VendorGroup{ShopID: product.ShopID})
		}
		groups[i].Lines = append(groups[i].Lines, shipping.Line{Product: product, Quantity: line.Quantity})
	}
	return groups
}

// LineRef is a requested product and quantity.
type LineRef struct {
	ProductID uuid.UUID
	Quantity  int
}

// Total sums price times quantity over the group.
func (g VendorGroup) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range g.Lines {
		total = total.Add(line.Product.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return total
}

// ShortOfStock returns the first product whose stock cannot cover its line.
func (g VendorGroup) ShortOfStock() (uuid.UUID, bool) {
	for _, line := range g.Lines {
		if line.Product.StockQuantity < line.Quantity {
			return line.Product.ID, true
		}
	}
	return uuid.Nil, false
}

// Details converts the group into order lines with price and weight
// snapshots.
func (g VendorGroup) Details() []models.OrderDetail {
	details := make([]models.OrderDetail, 0, len(g.Lines))
	for _, line := range g.Lines {
		details = append(details, models.OrderDetail{
			ProductID:       line.Product.ID,
			Quantity:        line.Quantity,
			UnitPrice:       line.Product.Price,
			UnitWeightGrams: line.Product.WeightGrams,
		})
	}
	return details
}
