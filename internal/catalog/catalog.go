// Package catalog reads and maintains categories and products.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/judyrop/storefront/internal/domain"
	"github.com/judyrop/storefront/models"
)

const (
	SortName      = "name"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortNewest    = "newest"
)

type Filter struct {
	CategoryID uint
	Query      string
	Sort       string
	Page       int
}

type Page struct {
	Items      []models.Product
	Number     int
	TotalPages int
	Total      int64
}

func (p Page) HasNext() bool { return p.Number < p.TotalPages }
func (p Page) HasPrev() bool { return p.Number > 1 }

type Service struct {
	db       *gorm.DB
	log      *logrus.Logger
	pageSize int
}

func NewService(db *gorm.DB, log *logrus.Logger, pageSize int) *Service {
	if pageSize <= 0 {
		pageSize = 12
	}
	return &Service{db: db, log: log, pageSize: pageSize}
}

func (s *Service) activeProducts(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Model(&models.Product{}).Where("products.active = ?", true)
}

// Featured returns up to limit active featured products, newest first.
func (s *Service) Featured(ctx context.Context, limit int) ([]models.Product, error) {
	var products []models.Product
	err := s.activeProducts(ctx).
		Preload("Category").
		Where("products.featured = ?", true).
		Order("products.created_at DESC").Order("products.id DESC").
		Limit(limit).
		Find(&products).Error
	if err != nil {
		s.log.Errorf("Failed to list featured products: %v", err)
		return nil, fmt.Errorf("could not list featured products: %w", err)
	}
	return products, nil
}

// Categories returns the active categories ordered by name.
func (s *Service) Categories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	err := s.db.WithContext(ctx).Where("active = ?", true).Order("name ASC").Find(&categories).Error
	if err != nil {
		s.log.Errorf("Failed to list categories: %v", err)
		return nil, fmt.Errorf("could not list categories: %w", err)
	}
	return categories, nil
}

func (s *Service) ListProducts(ctx context.Context, f Filter) (Page, error) {
	q := s.activeProducts(ctx)
	if f.CategoryID != 0 {
		q = q.Where("products.category_id = ?", f.CategoryID)
	}
	if term := strings.TrimSpace(f.Query); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Joins("JOIN categories ON categories.id = products.category_id").
			Where("LOWER(products.name) LIKE ? OR LOWER(products.description) LIKE ? OR LOWER(categories.name) LIKE ?",
				like, like, like)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		s.log.Errorf("Failed to count products for filter %+v: %v", f, err)
		return Page{}, fmt.Errorf("could not count products: %w", err)
	}

	page := Page{Total: total, TotalPages: int((total + int64(s.pageSize) - 1) / int64(s.pageSize))}
	if page.TotalPages == 0 {
		page.TotalPages = 1
	}
	page.Number = f.Page
	if page.Number < 1 {
		page.Number = 1
	}
	if page.Number > page.TotalPages {
		page.Number = page.TotalPages
	}

	switch f.Sort {
	case SortPriceAsc:
		q = q.Order("products.price ASC")
	case SortPriceDesc:
		q = q.Order("products.price DESC")
	case SortNewest:
		q = q.Order("products.created_at DESC")
	default:
		q = q.Order("products.name ASC")
	}

	err := q.Preload("Category").
		Order("products.id ASC").
		Limit(s.pageSize).
		Offset((page.Number - 1) * s.pageSize).
		Find(&page.Items).Error
	if err != nil {
		s.log.Errorf("Failed to list products for filter %+v: %v", f, err)
		return Page{}, fmt.Errorf("could not list products: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"category": f.CategoryID,
		"query":    f.Query,
		"sort":     f.Sort,
		"page":     page.Number,
		"total":    total,
	}).Debug("Listed products")
	return page, nil
}

// Product returns an active product with its category.
func (s *Service) Product(ctx context.Context, id uint) (*models.Product, error) {
	var p models.Product
	err := s.activeProducts(ctx).Preload("Category").First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("product %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		s.log.Errorf("Failed to get product %d: %v", id, err)
		return nil, fmt.Errorf("could not get product %d: %w", id, err)
	}
	return &p, nil
}

// Related returns other active products of the same category.
func (s *Service) Related(ctx context.Context, p *models.Product, limit int) ([]models.Product, error) {
	var products []models.Product
	err := s.activeProducts(ctx).
		Where("products.category_id = ? AND products.id <> ?", p.CategoryID, p.ID).
		Order("products.created_at DESC").Order("products.id DESC").
		Limit(limit).
		Find(&products).Error
	if err != nil {
		s.log.Errorf("Failed to list products related to %d: %v", p.ID, err)
		return nil, fmt.Errorf("could not list related products: %w", err)
	}
	return products, nil
}

func (s *Service) CreateCategory(ctx context.Context, c *models.Category) error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("category name cannot be empty")
	}
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		s.log.Errorf("Failed to create category '%s': %v", c.Name, err)
		return fmt.Errorf("could not create category: %w", err)
	}
	s.log.Infof("Category created with ID %d, name %s", c.ID, c.Name)
	return nil
}

func (s *Service) CreateProduct(ctx context.Context, p *models.Product) error {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return errors.New("product name cannot be empty")
	case p.Price.IsNegative():
		return errors.New("product price cannot be negative")
	case p.PreviousPrice.Valid && p.PreviousPrice.Decimal.IsNegative():
		return errors.New("product previous price cannot be negative")
	case p.Stock < 0:
		return errors.New("product stock cannot be negative")
	}

	var category models.Category
	if err := s.db.WithContext(ctx).First(&category, p.CategoryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("category %d: %w", p.CategoryID, domain.ErrNotFound)
		}
		return fmt.Errorf("could not get category %d: %w", p.CategoryID, err)
	}

	p.Price = p.Price.Round(2)
	if err := s.db.WithContext(ctx).Omit("Category").Create(p).Error; err != nil {
		s.log.Errorf("Failed to create product '%s': %v", p.Name, err)
		return fmt.Errorf("could not create product: %w", err)
	}
	s.log.Infof("Product created with ID %d, name %s, price %s", p.ID, p.Name, p.Price.StringFixed(2))
	return nil
}

func (s *Service) FindCategoryByName(ctx context.Context, name string) (*models.Category, error) {
	var c models.Category
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("category %q: %w", name, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("could not get category %q: %w", name, err)
	}
	return &c, nil
}

func (s *Service) FindProductByName(ctx context.Context, name string) (*models.Product, error) {
	var p models.Product
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("product %q: %w", name, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("could not get product %q: %w", name, err)
	}
	return &p, nil
}

// SetPrice changes a product's current price. A previous price may be given
// to advertise a discount; nil clears it.
func (s *Service) SetPrice(ctx context.Context, id uint, price decimal.Decimal, previous *decimal.Decimal) error {
	if price.IsNegative() {
		return errors.New("product price cannot be negative")
	}
	prev := decimal.NullDecimal{}
	if previous != nil {
		prev = decimal.NewNullDecimal(previous.Round(2))
	}
	res := s.db.WithContext(ctx).Model(&models.Product{}).Where("id = ?", id).
		Updates(map[string]interface{}{"price": price.Round(2), "previous_price": prev})
	if res.Error != nil {
		return fmt.Errorf("could not update price of product %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("product %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// DeleteCategory removes a category together with its products. Children go
// first: cart lines pointing at the products, then the products, then the
// category. Rows are deleted outright so the category name is free for reuse.
func (s *Service) DeleteCategory(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var category models.Category
		if err := tx.First(&category, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("category %d: %w", id, domain.ErrNotFound)
			}
			return fmt.Errorf("could not get category %d: %w", id, err)
		}

		productIDs := tx.Model(&models.Product{}).Select("id").Where("category_id = ?", id)
		if err := tx.Where("product_id IN (?)", productIDs).Delete(&models.CartItem{}).Error; err != nil {
			return fmt.Errorf("could not delete cart items of category %d: %w", id, err)
		}
		res := tx.Unscoped().Where("category_id = ?", id).Delete(&models.Product{})
		if res.Error != nil {
			return fmt.Errorf("could not delete products of category %d: %w", id, res.Error)
		}
		if err := tx.Unscoped().Delete(&category).Error; err != nil {
			return fmt.Errorf("could not delete category %d: %w", id, err)
		}

		s.log.Infof("Category %d deleted with %d products", id, res.RowsAffected)
		return nil
	})
}

func (s *Service) DeleteProduct(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("product_id = ?", id).Delete(&models.CartItem{}).Error; err != nil {
			return fmt.Errorf("could not delete cart items of product %d: %w", id, err)
		}
		res := tx.Unscoped().Delete(&models.Product{}, id)
		if res.Error != nil {
			return fmt.Errorf("could not delete product %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("product %d: %w", id, domain.ErrNotFound)
		}
		s.log.Infof("Product %d deleted", id)
		return nil
	})
}
