// Package testutil provides database fixtures shared by package tests.
package testutil

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/koipond/koipond-backend/pkg/db/models"
	"github.com/koipond/koipond-backend/pkg/enums"
	"github.com/koipond/koipond-backend/pkg/types"
)

// OpenDB returns an isolated in-memory database with every model migrated.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:koipond_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Discard,
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	// a single connection keeps the shared in-memory database alive and
	// serialises writers the way row locks would on Postgres
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, conn.AutoMigrate(models.All()...))
	return conn
}

// Money parses a decimal literal for fixtures.
func Money(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

// SeedShop inserts a shop.
func SeedShop(t *testing.T, db *gorm.DB, name string) models.Shop {
	t.Helper()
	shop := models.Shop{OwnerID: uuid.New(), Name: name, CarrierShopID: "88" + name}
	require.NoError(t, db.Create(&shop).Error)
	return shop
}

// SeedProduct inserts a product owned by shopID.
func SeedProduct(t *testing.T, db *gorm.DB, shopID uuid.UUID, price string, weight, stock int) models.Product {
	t.Helper()
	p := models.Product{
		ShopID:        shopID,
		Name:          "koi food " + uuid.NewString()[:8],
		Price:         Money(price),
		WeightGrams:   weight,
		LengthCm:      10,
		WidthCm:       10,
		HeightCm:      10,
		StockQuantity: stock,
	}
	require.NoError(t, db.Create(&p).Error)
	return p
}

// Address returns a quotable destination.
func Address() types.ShippingAddress {
	return types.ShippingAddress{
		Detail:   "1 Pond Lane",
		Province: types.AddressPart{ID: "202", Name: "Ho Chi Minh"},
		District: types.AddressPart{ID: "1442", Name: "District 1"},
		Ward:     types.AddressPart{ID: "20109", Name: "Ben Nghe"},
	}
}

// SeedOrder inserts an order with one detail line and its seed transaction.
func SeedOrder(t *testing.T, db *gorm.DB, buyerID uuid.UUID, total string, status enums.OrderStatus) (models.Order, models.Transaction) {
	t.Helper()
	shop := SeedShop(t, db, "seed")
	product := SeedProduct(t, db, shop.ID, total, 500, 10)

	order := models.Order{
		ShopID:      shop.ID,
		BuyerID:     buyerID,
		Status:      status,
		ShipType:    enums.ShipTypeStandard,
		ShippingFee: decimal.Zero,
		Total:       Money(total),
		Address:     Address(),
	}
	require.NoError(t, db.Create(&order).Error)
	detail := models.OrderDetail{OrderID: order.ID, ProductID: product.ID, Quantity: 1, UnitPrice: product.Price, UnitWeightGrams: 500}
	require.NoError(t, db.Create(&detail).Error)
	order.Details = []models.OrderDetail{detail}

	docNo := order.ID
	txn := models.Transaction{
		DocNo:      &docNo,
		SourceKind: enums.SourceKindOrder,
		State:      enums.LedgerStatePending,
		UserID:     buyerID,
		Amount:     order.GrandTotal(),
	}
	require.NoError(t, db.Create(&txn).Error)
	return order, txn
}
