package shipping

import (
	"github.com/koipond/koipond-backend/pkg/db/models"
	"github.com/koipond/koipond-backend/pkg/enums"
	pkgerrors "github.com/koipond/koipond-backend/pkg/errors"
	"github.com/koipond/koipond-backend/pkg/types"
)

// Line is a product and the quantity being shipped.
type Line struct {
	Product  models.Product
	Quantity int
}

// NewQuoteRequest packs one shop's lines into a single parcel bound for addr.
// Items are stacked: height adds up, length and width take the largest item.
func NewQuoteRequest(shop models.Shop, addr types.ShippingAddress, shipType enums.ShipType, lines []Line) (QuoteRequest, error) {
	if len(lines) == 0 {
		return QuoteRequest{}, pkgerrors.New(pkgerrors.CodeValidation, "parcel has no items")
	}
	districtID, err := addr.DistrictID()
	if err != nil {
		return QuoteRequest{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shipping address")
	}
	if addr.WardCode() == "" {
		return QuoteRequest{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid shipping address: ward code missing")
	}

	req := QuoteRequest{
		ShopAccountID: shop.CarrierShopID,
		ToDistrictID:  districtID,
		ToWardCode:    addr.WardCode(),
		ShipType:      shipType,
		Items:         make([]Item, 0, len(lines)),
	}
	for _, line := range lines {
		p := line.Product
		req.WeightGrams += p.WeightGrams * line.Quantity
		req.Parcel.Length = max(req.Parcel.Length, p.LengthCm)
		req.Parcel.Width = max(req.Parcel.Width, p.WidthCm)
		req.Parcel.Height += p.HeightCm * line.Quantity
		req.Items = append(req.Items, Item{Name: p.Name, Quantity: line.Quantity, WeightGrams: p.WeightGrams})
	}
	return req, nil
}
