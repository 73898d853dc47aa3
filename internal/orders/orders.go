// Package orders reads a user's order history and applies administrative
// status changes.
package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/judyrop/storefront/internal/domain"
	"github.com/judyrop/storefront/models"
)

type Service struct {
	db  *gorm.DB
	log *logrus.Logger
}

func NewService(db *gorm.DB, log *logrus.Logger) *Service {
	return &Service{db: db, log: log}
}

func withItems(db *gorm.DB) *gorm.DB {
	return db.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("order_items.id ASC")
	})
}

// List returns the orders of a user, most recent first.
func (s *Service) List(ctx context.Context, userID string) ([]models.Order, error) {
	var orders []models.Order
	err := withItems(s.db.WithContext(ctx)).
		Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		Find(&orders).Error
	if err != nil {
		s.log.Errorf("Failed to list orders of user %s: %v", userID, err)
		return nil, fmt.Errorf("could not list orders: %w", err)
	}
	return orders, nil
}

// Get returns an order only to the user who placed it. Someone else's order
// is reported as missing.
func (s *Service) Get(ctx context.Context, userID string, id uint) (*models.Order, error) {
	var order models.Order
	err := withItems(s.db.WithContext(ctx)).
		Where("id = ? AND user_id = ?", id, userID).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("order %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		s.log.Errorf("Failed to get order %d: %v", id, err)
		return nil, fmt.Errorf("could not get order %d: %w", id, err)
	}
	return &order, nil
}

func (s *Service) SetStatus(ctx context.Context, id uint, status models.OrderStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%q: %w", status, domain.ErrInvalidStatus)
	}
	res := s.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		s.log.Errorf("Failed to update status of order %d: %v", id, res.Error)
		return fmt.Errorf("could not update order %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("order %d: %w", id, domain.ErrNotFound)
	}
	s.log.WithFields(logrus.Fields{"order": id, "status": status}).Info("Order status updated")
	return nil
}
