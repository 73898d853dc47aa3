// Package cart keeps the line items of one shopper, bound either to a user
// or to an anonymous session.
package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/judyrop/storefront/internal/domain"
	"github.com/judyrop/storefront/internal/metrics"
	"github.com/judyrop/storefront/internal/session"
	"github.com/judyrop/storefront/models"
)

// Summary is the cart state reported after every mutation.
type Summary struct {
	Total        decimal.Decimal
	ItemCount    int
	ItemSubtotal decimal.Decimal
}

type Service struct {
	db       *gorm.DB
	sessions session.Store
	metrics  *metrics.Metrics
	log      *logrus.Logger
}

func NewService(db *gorm.DB, sessions session.Store, m *metrics.Metrics, log *logrus.Logger) *Service {
	return &Service{db: db, sessions: sessions, metrics: m, log: log}
}

// Resolve returns the cart of the principal, creating it on first use. A
// user has exactly one cart; an anonymous session references its cart
// through the session store.
func (s *Service) Resolve(ctx context.Context, p domain.Principal) (*models.Cart, error) {
	if p.Authenticated() {
		return s.userCart(ctx, p.UserID)
	}
	return s.sessionCart(ctx, p.SessionToken)
}

// Peek returns the user's cart without creating it. A user who never had a
// cart gets an unsaved empty one.
func (s *Service) Peek(ctx context.Context, userID string) (*models.Cart, error) {
	cart, err := s.load(ctx, s.db.WithContext(ctx).Where("user_id = ?", userID))
	if errors.Is(err, domain.ErrNotFound) {
		uid := userID
		return &models.Cart{UserID: &uid, Items: []models.CartItem{}}, nil
	}
	return cart, err
}

func (s *Service) userCart(ctx context.Context, userID string) (*models.Cart, error) {
	uid := userID
	cart := models.Cart{UserID: &uid}
	// Concurrent first requests race on the unique user_id index; the loser
	// inserts nothing and reads the winner's row.
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&cart).Error
	if err != nil {
		s.log.Errorf("Failed to create cart for user %s: %v", userID, err)
		return nil, fmt.Errorf("could not create cart: %w", err)
	}
	return s.load(ctx, s.db.WithContext(ctx).Where("user_id = ?", userID))
}

func (s *Service) sessionCart(ctx context.Context, token string) (*models.Cart, error) {
	if token == "" {
		return nil, errors.New("anonymous principal without session token")
	}

	cartID, ok, err := s.sessions.CartID(ctx, token)
	if err != nil {
		return nil, err
	}
	if ok {
		cart, err := s.load(ctx, s.db.WithContext(ctx).Where("id = ? AND user_id IS NULL", cartID))
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		s.log.Warnf("Session %s referenced missing cart %d, starting a new one", token, cartID)
	}

	cart := models.Cart{}
	if err := s.db.WithContext(ctx).Create(&cart).Error; err != nil {
		s.log.Errorf("Failed to create anonymous cart: %v", err)
		return nil, fmt.Errorf("could not create cart: %w", err)
	}
	if err := s.sessions.SetCartID(ctx, token, cart.ID); err != nil {
		return nil, err
	}
	s.log.Infof("Created anonymous cart %d", cart.ID)
	cart.Items = []models.CartItem{}
	return &cart, nil
}

// Load returns a cart with its items and their products, items in
// insertion order.
func (s *Service) Load(ctx context.Context, cartID uint) (*models.Cart, error) {
	return s.load(ctx, s.db.WithContext(ctx).Where("id = ?", cartID))
}

func (s *Service) load(ctx context.Context, q *gorm.DB) (*models.Cart, error) {
	var cart models.Cart
	err := q.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("cart_items.id ASC")
	}).Preload("Items.Product").First(&cart).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("cart: %w", domain.ErrNotFound)
	}
	if err != nil {
		s.log.Errorf("Failed to load cart: %v", err)
		return nil, fmt.Errorf("could not load cart: %w", err)
	}
	return &cart, nil
}

func (s *Service) summary(ctx context.Context, cartID uint) (*Summary, error) {
	cart, err := s.Load(ctx, cartID)
	if err != nil {
		return nil, err
	}
	return &Summary{Total: cart.Total(), ItemCount: cart.ItemCount(), ItemSubtotal: decimal.Zero}, nil
}

func (s *Service) activeProduct(ctx context.Context, productID uint) (*models.Product, error) {
	var p models.Product
	err := s.db.WithContext(ctx).Where("active = ?", true).First(&p, productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("product %d: %w", productID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("could not get product %d: %w", productID, err)
	}
	return &p, nil
}

// AddItem puts quantity units of a product in the cart, merging with an
// existing line for the same product. Stock is checked against quantity
// only and is not reserved.
func (s *Service) AddItem(ctx context.Context, cart *models.Cart, productID uint, quantity int) (*Summary, error) {
	if quantity < 1 {
		s.metrics.CartMutation("add", "rejected")
		return nil, fmt.Errorf("quantity %d: %w", quantity, domain.ErrInvalidQuantity)
	}

	product, err := s.activeProduct(ctx, productID)
	if err != nil {
		s.metrics.CartMutation("add", "rejected")
		return nil, err
	}
	if product.Stock < quantity {
		s.metrics.CartMutation("add", "insufficient_stock")
		s.log.WithFields(logrus.Fields{
			"cart": cart.ID, "product": product.ID, "requested": quantity, "available": product.Stock,
		}).Warn("Add to cart rejected: insufficient stock")
		return nil, &domain.InsufficientStockError{
			ProductID: product.ID, ProductName: product.Name, Requested: quantity, Available: product.Stock,
		}
	}

	item := models.CartItem{CartID: cart.ID, ProductID: product.ID, Quantity: quantity}
	err = s.db.WithContext(ctx).Omit("Product").Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "cart_id"}, {Name: "product_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"quantity":   gorm.Expr("cart_items.quantity + excluded.quantity"),
			"updated_at": gorm.Expr("excluded.updated_at"),
		}),
	}).Create(&item).Error
	if err != nil {
		s.metrics.CartMutation("add", "error")
		s.log.Errorf("Failed to add product %d to cart %d: %v", product.ID, cart.ID, err)
		return nil, fmt.Errorf("could not add item: %w", err)
	}

	s.metrics.CartMutation("add", "ok")
	s.log.WithFields(logrus.Fields{"cart": cart.ID, "product": product.ID, "quantity": quantity}).Info("Added to cart")
	return s.summary(ctx, cart.ID)
}

func (s *Service) ownedItem(ctx context.Context, cart *models.Cart, itemID uint) (*models.CartItem, error) {
	var item models.CartItem
	err := s.db.WithContext(ctx).Preload("Product").
		Where("id = ? AND cart_id = ?", itemID, cart.ID).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("cart item %d: %w", itemID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("could not get cart item %d: %w", itemID, err)
	}
	return &item, nil
}

// UpdateItem sets the quantity of a line; zero or less removes it.
func (s *Service) UpdateItem(ctx context.Context, cart *models.Cart, itemID uint, quantity int) (*Summary, error) {
	item, err := s.ownedItem(ctx, cart, itemID)
	if err != nil {
		s.metrics.CartMutation("update", "rejected")
		return nil, err
	}

	if quantity <= 0 {
		if err := s.db.WithContext(ctx).Delete(item).Error; err != nil {
			s.metrics.CartMutation("update", "error")
			return nil, fmt.Errorf("could not delete cart item %d: %w", item.ID, err)
		}
		s.metrics.CartMutation("update", "removed")
		s.log.WithFields(logrus.Fields{"cart": cart.ID, "item": item.ID}).Info("Removed cart item by zero quantity")
		return s.summary(ctx, cart.ID)
	}

	if item.Product.Stock < quantity {
		s.metrics.CartMutation("update", "insufficient_stock")
		s.log.WithFields(logrus.Fields{
			"cart": cart.ID, "item": item.ID, "requested": quantity, "available": item.Product.Stock,
		}).Warn("Cart update rejected: insufficient stock")
		return nil, &domain.InsufficientStockError{
			ProductID: item.ProductID, ProductName: item.Product.Name, Requested: quantity, Available: item.Product.Stock,
		}
	}

	if err := s.db.WithContext(ctx).Model(item).Update("quantity", quantity).Error; err != nil {
		s.metrics.CartMutation("update", "error")
		return nil, fmt.Errorf("could not update cart item %d: %w", item.ID, err)
	}
	item.Quantity = quantity

	sum, err := s.summary(ctx, cart.ID)
	if err != nil {
		return nil, err
	}
	sum.ItemSubtotal = item.Subtotal()
	s.metrics.CartMutation("update", "ok")
	s.log.WithFields(logrus.Fields{"cart": cart.ID, "item": item.ID, "quantity": quantity}).Info("Updated cart item")
	return sum, nil
}

func (s *Service) RemoveItem(ctx context.Context, cart *models.Cart, itemID uint) (*Summary, error) {
	res := s.db.WithContext(ctx).Where("id = ? AND cart_id = ?", itemID, cart.ID).Delete(&models.CartItem{})
	if res.Error != nil {
		s.metrics.CartMutation("remove", "error")
		return nil, fmt.Errorf("could not delete cart item %d: %w", itemID, res.Error)
	}
	if res.RowsAffected == 0 {
		s.metrics.CartMutation("remove", "rejected")
		return nil, fmt.Errorf("cart item %d: %w", itemID, domain.ErrNotFound)
	}
	s.metrics.CartMutation("remove", "ok")
	s.log.WithFields(logrus.Fields{"cart": cart.ID, "item": itemID}).Info("Removed cart item")
	return s.summary(ctx, cart.ID)
}
