package shipping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koipond/koipond-backend/pkg/db/models"
	"github.com/koipond/koipond-backend/pkg/enums"
	pkgerrors "github.com/koipond/koipond-backend/pkg/errors"
	"github.com/koipond/koipond-backend/pkg/types"
)

func destination() types.ShippingAddress {
	return types.ShippingAddress{
		Detail:   "1 Pond Lane",
		District: types.AddressPart{ID: "1442", Name: "District 1"},
		Ward:     types.AddressPart{ID: "20109", Name: "Ben Nghe"},
	}
}

func TestNewQuoteRequestStacksItems(t *testing.T) {
	shop := models.Shop{CarrierShopID: "885"}
	lines := []Line{
		{Product: models.Product{Name: "pellets", WeightGrams: 500, LengthCm: 20, WidthCm: 10, HeightCm: 5}, Quantity: 2},
		{Product: models.Product{Name: "net", WeightGrams: 300, LengthCm: 30, WidthCm: 5, HeightCm: 2}, Quantity: 1},
	}

	req, err := NewQuoteRequest(shop, destination(), enums.ShipTypeHeavy, lines)
	require.NoError(t, err)
	assert.Equal(t, "885", req.ShopAccountID)
	assert.Equal(t, 1442, req.ToDistrictID)
	assert.Equal(t, "20109", req.ToWardCode)
	assert.Equal(t, 1300, req.WeightGrams)
	assert.Equal(t, Parcel{Length: 30, Width: 10, Height: 12}, req.Parcel)
	assert.Len(t, req.Items, 2)
	assert.Equal(t, enums.ShipTypeHeavy, req.ShipType)
}

func TestNewQuoteRequestRejectsBadInput(t *testing.T) {
	_, err := NewQuoteRequest(models.Shop{}, destination(), enums.ShipTypeStandard, nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = NewQuoteRequest(models.Shop{}, types.PlaceholderAddress, enums.ShipTypeStandard, []Line{{Quantity: 1}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
