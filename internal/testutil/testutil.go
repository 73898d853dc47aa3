// Package testutil builds isolated in-memory stores and catalog fixtures for
// package tests.
package testutil

import (
	"fmt"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/judyrop/storefront/models"
)

// NewDB returns a migrated in-memory SQLite database private to the test.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get test database handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

func Logger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func Category(t testing.TB, db *gorm.DB, name string) *models.Category {
	t.Helper()

	c := &models.Category{Name: name, Active: true}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("failed to create category %q: %v", name, err)
	}
	return c
}

// Product creates an active product; price is a decimal literal.
func Product(t testing.TB, db *gorm.DB, category *models.Category, name, price string, stock int) *models.Product {
	t.Helper()

	p := &models.Product{
		Name:       name,
		Price:      decimal.RequireFromString(price),
		Stock:      stock,
		Active:     true,
		CategoryID: category.ID,
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("failed to create product %q: %v", name, err)
	}
	return p
}

// Stock reads the current stock of a product straight from the store.
func Stock(t testing.TB, db *gorm.DB, productID uint) int {
	t.Helper()

	var p models.Product
	if err := db.Unscoped().First(&p, productID).Error; err != nil {
		t.Fatalf("failed to read product %d: %v", productID, err)
	}
	return p.Stock
}

func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
