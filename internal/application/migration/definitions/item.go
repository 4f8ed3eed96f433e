package definitions

import (
	"context"

	"github.com/shopspring/decimal"

	migrationapp "github.com/erp/weclapp-migration/internal/application/migration"
	"github.com/erp/weclapp-migration/internal/domain/mapping"
	"github.com/erp/weclapp-migration/internal/domain/migration"
)

// Item migrates WeClapp articles as non-stock items
type Item struct {
	migrationapp.Base
}

func (Item) Kind() string            { return KindItem }
func (Item) SourceType() string      { return "article" }
func (Item) DestinationType() string { return "Item" }
func (Item) DependsOn() []string     { return []string{KindUOM} }

func (Item) Transform(_ context.Context, m *migrationapp.Migration, e migration.Entity) (migration.Fields, error) {
	return migration.Fields{
		"item_group":    m.Settings().DefaultItemGroup,
		"is_stock_item": false,
		"item_code":     mapping.Optional(e.String("articleNumber")),
		"item_name":     mapping.Optional(e.String("name")),
		"stock_uom":     mapping.Optional(e.String("unitName")),
		"description":   mapping.Optional(e.String("description")),
		"standard_rate": salePrice(e).InexactFloat64(),
	}, nil
}

// salePrice is the last entry of the article price list, or zero.
func salePrice(e migration.Entity) decimal.Decimal {
	prices := e.List("articlePrices")
	if len(prices) == 0 {
		return decimal.Zero
	}
	price, ok := number(prices[len(prices)-1], "price")
	if !ok {
		return decimal.Zero
	}
	return price.Round(2)
}
