package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/judyrop/storefront/models"
)

// DBStore keeps session references in the cart_sessions table. Used when
// no Redis address is configured.
type DBStore struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

func NewDBStore(db *gorm.DB, ttl time.Duration) *DBStore {
	return &DBStore{db: db, ttl: ttl, now: time.Now}
}

func (s *DBStore) CartID(ctx context.Context, token string) (uint, bool, error) {
	var row models.CartSession
	err := s.db.WithContext(ctx).
		Where("token = ? AND expires_at > ?", token, s.now()).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reading session %s: %w", token, err)
	}
	return row.CartID, true, nil
}

func (s *DBStore) SetCartID(ctx context.Context, token string, cartID uint) error {
	row := models.CartSession{Token: token, CartID: cartID, ExpiresAt: s.now().Add(s.ttl)}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"cart_id", "expires_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("writing session %s: %w", token, err)
	}
	return nil
}

func (s *DBStore) Forget(ctx context.Context, token string) error {
	if err := s.db.WithContext(ctx).Where("token = ?", token).Delete(&models.CartSession{}).Error; err != nil {
		return fmt.Errorf("deleting session %s: %w", token, err)
	}
	return nil
}

// Purge removes expired references and reports how many were dropped.
func (s *DBStore) Purge(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", s.now()).Delete(&models.CartSession{})
	if res.Error != nil {
		return 0, fmt.Errorf("purging sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}
