// Package checkout converts a user's cart into an order in one transaction:
// order and line item creation, stock decrement and cart clearing either all
// apply or none do.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/judyrop/storefront/internal/cart"
	"github.com/judyrop/storefront/internal/domain"
	"github.com/judyrop/storefront/internal/metrics"
	"github.com/judyrop/storefront/internal/session"
	"github.com/judyrop/storefront/models"
)

// Input holds the shipping and payment details captured on the order.
type Input struct {
	FullName      string `json:"full_name" form:"full_name" validate:"required,max=200"`
	Email         string `json:"email" form:"email" validate:"required,email,max=254"`
	Phone         string `json:"phone" form:"phone" validate:"required,max=20,phone"`
	Address       string `json:"address" form:"address" validate:"required"`
	City          string `json:"city" form:"city" validate:"required,max=100"`
	PostalCode    string `json:"postal_code" form:"postal_code" validate:"required,max=10"`
	PaymentMethod string `json:"payment_method" form:"payment_method" validate:"payment_method"`
}

func (in *Input) normalize() {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Address = strings.TrimSpace(in.Address)
	in.City = strings.TrimSpace(in.City)
	in.PostalCode = strings.TrimSpace(in.PostalCode)
	in.PaymentMethod = strings.TrimSpace(in.PaymentMethod)
	if in.PaymentMethod == "" {
		in.PaymentMethod = models.PaymentBankTransfer
	}
}

type Engine struct {
	db       *gorm.DB
	carts    *cart.Service
	sessions session.Store
	validate *validator.Validate
	metrics  *metrics.Metrics
	log      *logrus.Logger
	now      func() time.Time
}

func NewEngine(db *gorm.DB, carts *cart.Service, sessions session.Store, m *metrics.Metrics, log *logrus.Logger) *Engine {
	return &Engine{
		db:       db,
		carts:    carts,
		sessions: sessions,
		validate: newValidator(),
		metrics:  m,
		log:      log,
		now:      time.Now,
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		digits := 0
		for _, r := range fl.Field().String() {
			switch {
			case r >= '0' && r <= '9':
				digits++
			case strings.ContainsRune("+-() ", r):
			default:
				return false
			}
		}
		return digits >= 6
	})
	_ = v.RegisterValidation("payment_method", func(fl validator.FieldLevel) bool {
		for _, m := range models.PaymentMethods {
			if fl.Field().String() == m {
				return true
			}
		}
		return false
	})
	return v
}

// Validate reports every rejected field of in at once.
func (e *Engine) Validate(in Input) error {
	in.normalize()
	err := e.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			fields[field] = fmt.Sprintf("%s is required", field)
		case "max":
			fields[field] = fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		case "email":
			fields[field] = fmt.Sprintf("%s must be a valid email address", field)
		case "payment_method":
			fields[field] = fmt.Sprintf("%s must be one of %s", field, strings.Join(models.PaymentMethods, ", "))
		default:
			fields[field] = fmt.Sprintf("%s is invalid", field)
		}
	}
	return &domain.ValidationError{Fields: fields}
}

// Prepare returns the cart a user is about to check out.
func (e *Engine) Prepare(ctx context.Context, p domain.Principal) (*models.Cart, error) {
	if !p.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}
	c, err := e.carts.Peek(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	if c.ItemCount() == 0 {
		return nil, domain.ErrEmptyCart
	}
	return c, nil
}

// Checkout places an order for the user's cart. Stock is re-checked at
// commit time by a guarded decrement, so a line that can no longer be
// covered rolls back the whole order.
func (e *Engine) Checkout(ctx context.Context, p domain.Principal, in Input) (*models.Order, error) {
	if !p.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}
	c, err := e.carts.Peek(ctx, p.UserID)
	if err != nil {
		e.metrics.CheckoutFailed("error")
		return nil, err
	}
	if c.ItemCount() == 0 {
		e.metrics.CheckoutFailed("empty_cart")
		e.log.WithField("user", p.UserID).Warn("Checkout rejected: cart is empty")
		return nil, domain.ErrEmptyCart
	}

	in.normalize()
	if err := e.Validate(in); err != nil {
		e.metrics.CheckoutFailed("invalid_input")
		e.log.WithField("user", p.UserID).Warnf("Checkout rejected: %v", err)
		return nil, err
	}

	var order *models.Order
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = e.placeOrder(tx, p.UserID, c.ID, in)
		return err
	})
	if err != nil {
		e.metrics.CheckoutFailed(failureReason(err))
		fields := logrus.Fields{"user": p.UserID, "cart": c.ID}
		if errors.Is(err, domain.ErrEmptyCart) || errors.Is(err, domain.ErrInsufficientStock) {
			e.log.WithFields(fields).Warnf("Checkout rejected: %v", err)
		} else {
			e.log.WithFields(fields).Errorf("Failed to check out: %v", err)
		}
		return nil, err
	}

	if p.SessionToken != "" {
		if err := e.sessions.Forget(ctx, p.SessionToken); err != nil {
			e.log.Warnf("Failed to forget cart reference of session %s: %v", p.SessionToken, err)
		}
	}

	e.metrics.ObserveOrder(order.Total)
	e.log.WithFields(logrus.Fields{
		"user":  p.UserID,
		"order": order.ID,
		"total": order.Total.StringFixed(2),
		"items": len(order.Items),
	}).Info("Order created")
	return order, nil
}

func (e *Engine) placeOrder(tx *gorm.DB, userID string, cartID uint, in Input) (*models.Order, error) {
	var items []models.CartItem
	err := tx.Preload("Product").Where("cart_id = ?", cartID).Order("id ASC").Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("could not load cart %d: %w", cartID, err)
	}
	if len(items) == 0 {
		return nil, domain.ErrEmptyCart
	}

	total := decimal.Zero
	for i := range items {
		total = total.Add(items[i].Subtotal())
	}

	paidAt := e.now()
	order := &models.Order{
		UserID:        userID,
		Status:        models.StatusPending,
		Total:         total,
		FullName:      in.FullName,
		Email:         in.Email,
		Phone:         in.Phone,
		Address:       in.Address,
		City:          in.City,
		PostalCode:    in.PostalCode,
		PaymentMethod: in.PaymentMethod,
		Paid:          true,
		PaidAt:        &paidAt,
	}
	if err := tx.Create(order).Error; err != nil {
		return nil, fmt.Errorf("could not create order: %w", err)
	}

	for i := range items {
		ci := &items[i]
		oi := models.OrderItem{
			OrderID:     order.ID,
			ProductID:   ci.ProductID,
			ProductName: ci.Product.Name,
			Quantity:    ci.Quantity,
			UnitPrice:   ci.Product.Price,
		}
		if err := tx.Create(&oi).Error; err != nil {
			return nil, fmt.Errorf("could not create order item for product %d: %w", ci.ProductID, err)
		}
		if err := decrementStock(tx, &ci.Product, ci.Quantity); err != nil {
			return nil, err
		}
		order.Items = append(order.Items, oi)
	}

	if err := tx.Where("cart_id = ?", cartID).Delete(&models.CartItem{}).Error; err != nil {
		return nil, fmt.Errorf("could not empty cart %d: %w", cartID, err)
	}
	return order, nil
}

// decrementStock takes quantity units only if they are still there.
func decrementStock(tx *gorm.DB, p *models.Product, quantity int) error {
	res := tx.Model(&models.Product{}).
		Where("id = ? AND stock >= ?", p.ID, quantity).
		Update("stock", gorm.Expr("stock - ?", quantity))
	if res.Error != nil {
		return fmt.Errorf("could not decrement stock of product %d: %w", p.ID, res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var live models.Product
	if err := tx.Unscoped().Select("stock").First(&live, p.ID).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("could not read stock of product %d: %w", p.ID, err)
	}
	return &domain.InsufficientStockError{
		ProductID:   p.ID,
		ProductName: p.Name,
		Requested:   quantity,
		Available:   live.Stock,
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	default:
		return "error"
	}
}
