package payment

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/breeze-gateway/internal/breeze"
	"github.com/xenking/breeze-gateway/internal/domain/order"
)

var hundred = decimal.NewFromInt(100)

// MinorUnits converts a major unit amount to minor units, rounding half away
// from zero.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// BuildLineItems converts an order into provider line items. Unit amounts are
// derived from post-discount line totals. Tax is never forwarded.
func BuildLineItems(o *order.Order) ([]breeze.Product, error) {
	products := make([]breeze.Product, 0, len(o.Items)+1)
	for _, item := range o.Items {
		if item.ProductDeleted {
			continue
		}

		var amount int64
		if item.Quantity > 0 {
			// Single rounding on the exact unit price.
			unit := item.LineTotal.Mul(hundred).Div(decimal.NewFromInt(int64(item.Quantity)))
			amount = unit.Round(0).IntPart()
		} else {
			amount = MinorUnits(item.CatalogPrice)
		}

		description := item.Description
		if description == "" {
			description = item.Name
		}

		p := breeze.Product{
			Name:        item.Name,
			Description: description,
			Currency:    o.Currency,
			Amount:      amount,
			Quantity:    item.Quantity,
		}
		if item.ImageURL != "" {
			p.Images = []string{item.ImageURL}
		}
		if item.ProductID != "" && item.ProductID != "0" {
			p.ID = item.ProductID
		}
		products = append(products, p)
	}

	if o.ShippingTotal.IsPositive() {
		products = append(products, breeze.Product{
			Name:        "Shipping",
			Description: o.ShippingMethod,
			Currency:    o.Currency,
			Amount:      MinorUnits(o.ShippingTotal),
			Quantity:    1,
		})
	}

	if len(products) == 0 {
		return nil, &LineItemBuildError{OrderID: o.ID}
	}
	return products, nil
}
