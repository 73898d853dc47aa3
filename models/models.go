package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Category struct {
	gorm.Model
	Name        string    `gorm:"size:100;not null;uniqueIndex" json:"name"`
	Description string    `json:"description"`
	Active      bool      `gorm:"not null" json:"active"`
	Products    []Product `json:"products,omitempty"`
}

type Product struct {
	gorm.Model
	Name          string              `gorm:"size:200;not null;index" json:"name"`
	Description   string              `json:"description"`
	Price         decimal.Decimal     `gorm:"type:decimal(10,2);not null" json:"price"`
	PreviousPrice decimal.NullDecimal `gorm:"type:decimal(10,2)" json:"previous_price"`
	Stock         int                 `gorm:"not null;default:0" json:"stock"`
	Active        bool                `gorm:"not null;index" json:"active"`
	Featured      bool                `gorm:"not null" json:"featured"`
	CategoryID    uint                `gorm:"not null;index" json:"category_id"`
	Category      Category            `json:"category,omitempty"`
}

// Cart rows are hard-deleted, so no gorm.Model here.
type Cart struct {
	ID        uint       `gorm:"primarykey" json:"id"`
	UserID    *string    `gorm:"size:255;uniqueIndex" json:"user_id,omitempty"`
	Items     []CartItem `json:"items"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Total is the sum of the item subtotals at current product prices.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for i := range c.Items {
		total = total.Add(c.Items[i].Subtotal())
	}
	return total
}

func (c *Cart) ItemCount() int {
	count := 0
	for i := range c.Items {
		count += c.Items[i].Quantity
	}
	return count
}

type CartItem struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CartID    uint      `gorm:"not null;uniqueIndex:idx_cart_product" json:"cart_id"`
	ProductID uint      `gorm:"not null;uniqueIndex:idx_cart_product" json:"product_id"`
	Product   Product   `json:"product"`
	Quantity  int       `gorm:"not null" json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (i *CartItem) Subtotal() decimal.Decimal {
	return i.Product.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusConfirmed OrderStatus = "confirmed"
	StatusShipped   OrderStatus = "shipped"
	StatusDelivered OrderStatus = "delivered"
	StatusCancelled OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	default:
		return false
	}
}

const (
	PaymentBankTransfer   = "bank_transfer"
	PaymentCreditCard     = "credit_card"
	PaymentDebitCard      = "debit_card"
	PaymentCashOnDelivery = "cash_on_delivery"
)

var PaymentMethods = []string{PaymentBankTransfer, PaymentCreditCard, PaymentDebitCard, PaymentCashOnDelivery}

type Order struct {
	gorm.Model
	UserID string          `gorm:"size:255;not null;index" json:"user_id"`
	Status OrderStatus     `gorm:"size:20;not null;default:pending" json:"status"`
	Total  decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"total"`

	FullName   string `gorm:"size:200;not null" json:"full_name"`
	Email      string `gorm:"size:254;not null" json:"email"`
	Phone      string `gorm:"size:20;not null" json:"phone"`
	Address    string `gorm:"not null" json:"address"`
	City       string `gorm:"size:100;not null" json:"city"`
	PostalCode string `gorm:"size:10;not null" json:"postal_code"`

	PaymentMethod string     `gorm:"size:50;not null" json:"payment_method"`
	Paid          bool       `gorm:"not null" json:"paid"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`

	Items []OrderItem `json:"items"`
}

type OrderItem struct {
	gorm.Model
	OrderID     uint            `gorm:"not null;index" json:"order_id"`
	ProductID   uint            `gorm:"not null;index" json:"product_id"`
	ProductName string          `gorm:"size:200;not null" json:"product_name"`
	Quantity    int             `gorm:"not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"unit_price"`
	Subtotal    decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"subtotal"`
}

// BeforeSave keeps Subtotal in step with Quantity and UnitPrice on every write.
func (i *OrderItem) BeforeSave(tx *gorm.DB) error {
	i.Subtotal = i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
	return nil
}

// CartSession maps an anonymous session token to its cart.
type CartSession struct {
	Token     string    `gorm:"primaryKey;size:64"`
	CartID    uint      `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// All lists every model in migration order.
func All() []interface{} {
	return []interface{}{
		&Category{}, &Product{}, &Cart{}, &CartItem{}, &Order{}, &OrderItem{}, &CartSession{},
	}
}
