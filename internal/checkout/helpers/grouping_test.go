package helpers

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koipond/koipond-backend/pkg/db/models"
)

func TestGroupByShopKeepsFirstSeenOrder(t *testing.T) {
	shopA, shopB := uuid.New(), uuid.New()
	p1 := models.Product{ID: uuid.New(), ShopID: shopB, Price: decimal.NewFromInt(4), StockQuantity: 5}
	p2 := models.Product{ID: uuid.New(), ShopID: shopA, Price: decimal.NewFromInt(10), StockQuantity: 1}
	p3 := models.Product{ID: uuid.New(), ShopID: shopB, Price: decimal.NewFromInt(1), StockQuantity: 5}
	catalog := map[uuid.UUID]models.Product{p1.ID: p1, p2.ID: p2, p3.ID: p3}

	groups := GroupByShop([]LineRef{
		{ProductID: p1.ID, Quantity: 2},
		{ProductID: p2.ID, Quantity: 2},
		{ProductID: p3.ID, Quantity: 3},
	}, catalog)

	require.Len(t, groups, 2)
	assert.Equal(t, shopB, groups[0].ShopID)
	assert.Equal(t, shopA, groups[1].ShopID)
	assert.Len(t, groups[0].Lines, 2)
	assert.True(t, groups[0].Total().Equal(decimal.NewFromInt(11)))

	short, ok := groups[1].ShortOfStock()
	assert.True(t, ok)
	assert.Equal(t, p2.ID, short)
	_, ok = groups[0].ShortOfStock()
	assert.False(t, ok)

	details := groups[0].Details()
	require.Len(t, details, 2)
	assert.Equal(t, p1.ID, details[0].ProductID)
	assert.True(t, details[0].UnitPrice.Equal(decimal.NewFromInt(4)))
}
