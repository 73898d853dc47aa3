// Package pricing derives discount information and display strings from the
// stored price fields of a product. Nothing here touches the store.
package pricing

import (
	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/judyrop/storefront/models"
)

var hundred = decimal.NewFromInt(100)

// HasDiscount reports whether the product has a previous price above its
// current price.
func HasDiscount(p *models.Product) bool {
	return p.PreviousPrice.Valid && p.PreviousPrice.Decimal.GreaterThan(p.Price)
}

// DiscountPercent is the discount as a whole percentage, truncated toward
// zero: 999.99 -> 899.99 yields 10.
func DiscountPercent(p *models.Product) int {
	if !HasDiscount(p) {
		return 0
	}
	prev := p.PreviousPrice.Decimal
	return int(prev.Sub(p.Price).Mul(hundred).Div(prev).IntPart())
}

// Savings is previous price minus price, or zero without a discount.
func Savings(p *models.Product) decimal.Decimal {
	if !HasDiscount(p) {
		return decimal.Zero
	}
	return p.PreviousPrice.Decimal.Sub(p.Price)
}

// FormatAmount renders the integral part of an amount with "." as the
// thousands separator. Cents are dropped, not rounded.
func FormatAmount(d decimal.Decimal) string {
	return humanize.FormatInteger("#.###,", int(d.IntPart()))
}

// ProductView is the product as shown to shoppers.
type ProductView struct {
	ID                   uint            `json:"id"`
	Name                 string          `json:"name"`
	Description          string          `json:"description"`
	CategoryID           uint            `json:"category_id"`
	CategoryName         string          `json:"category_name,omitempty"`
	Price                decimal.Decimal `json:"price"`
	PriceDisplay         string          `json:"price_display"`
	PreviousPrice        *string         `json:"previous_price,omitempty"`
	PreviousPriceDisplay string          `json:"previous_price_display,omitempty"`
	HasDiscount          bool            `json:"has_discount"`
	DiscountPercent      int             `json:"discount_percent"`
	Stock                int             `json:"stock"`
	InStock              bool            `json:"in_stock"`
	Featured             bool            `json:"featured"`
}

func View(p *models.Product) ProductView {
	v := ProductView{
		ID:              p.ID,
		Name:            p.Name,
		Description:     p.Description,
		CategoryID:      p.CategoryID,
		CategoryName:    p.Category.Name,
		Price:           p.Price,
		PriceDisplay:    FormatAmount(p.Price),
		HasDiscount:     HasDiscount(p),
		DiscountPercent: DiscountPercent(p),
		Stock:           p.Stock,
		InStock:         p.Stock > 0,
		Featured:        p.Featured,
	}
	if p.PreviousPrice.Valid {
		prev := p.PreviousPrice.Decimal.StringFixed(2)
		v.PreviousPrice = &prev
		v.PreviousPriceDisplay = FormatAmount(p.PreviousPrice.Decimal)
	}
	return v
}

func Views(products []models.Product) []ProductView {
	views := make([]ProductView, 0, len(products))
	for i := range products {
		views = append(views, View(&products[i]))
	}
	return views
}
