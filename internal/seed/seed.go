// Package seed loads a catalog of categories and products from YAML. Seeding
// is idempotent: anything that already exists by name is left untouched.
package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/judyrop/storefront/internal/catalog"
	"github.com/judyrop/storefront/internal/domain"
	"github.com/judyrop/storefront/models"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Default returns the bundled sample catalog.
func Default() []byte {
	return defaultCatalog
}

type File struct {
	Categories []Category `yaml:"categories"`
}

type Category struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Inactive    bool      `yaml:"inactive"`
	Products    []Product `yaml:"products"`
}

type Product struct {
	Name          string `yaml:"name"`
	Description   string `yaml:"description"`
	Price         string `yaml:"price"`
	PreviousPrice string `yaml:"previous_price"`
	Stock         int    `yaml:"stock"`
	Featured      bool   `yaml:"featured"`
	Inactive      bool   `yaml:"inactive"`
}

func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing seed file: %w", err)
	}
	return &f, nil
}

// Result counts what a run created.
type Result struct {
	Categories int
	Products   int
}

type Seeder struct {
	catalog *catalog.Service
	log     *logrus.Logger
}

func NewSeeder(svc *catalog.Service, log *logrus.Logger) *Seeder {
	return &Seeder{catalog: svc, log: log}
}

func (s *Seeder) Run(ctx context.Context, f *File) (Result, error) {
	var res Result
	for _, fc := range f.Categories {
		category, err := s.catalog.FindCategoryByName(ctx, fc.Name)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			category = &models.Category{Name: fc.Name, Description: fc.Description, Active: !fc.Inactive}
			if err := s.catalog.CreateCategory(ctx, category); err != nil {
				return res, err
			}
			res.Categories++
		case err != nil:
			return res, err
		}

		for _, fp := range fc.Products {
			created, err := s.product(ctx, category, fp)
			if err != nil {
				return res, err
			}
			if created {
				res.Products++
			}
		}
	}

	s.log.WithFields(logrus.Fields{"categories": res.Categories, "products": res.Products}).Info("Catalog seeded")
	return res, nil
}

func (s *Seeder) product(ctx context.Context, category *models.Category, fp Product) (bool, error) {
	_, err := s.catalog.FindProductByName(ctx, fp.Name)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return false, err
	}

	price, err := decimal.NewFromString(fp.Price)
	if err != nil {
		return false, fmt.Errorf("product %q: invalid price %q: %w", fp.Name, fp.Price, err)
	}
	p := &models.Product{
		Name:        fp.Name,
		Description: fp.Description,
		Price:       price,
		Stock:       fp.Stock,
		Active:      !fp.Inactive,
		Featured:    fp.Featured,
		CategoryID:  category.ID,
	}
	if fp.PreviousPrice != "" {
		prev, err := decimal.NewFromString(fp.PreviousPrice)
		if err != nil {
			return false, fmt.Errorf("product %q: invalid previous price %q: %w", fp.Name, fp.PreviousPrice, err)
		}
		p.PreviousPrice = decimal.NewNullDecimal(prev)
	}
	if err := s.catalog.CreateProduct(ctx, p); err != nil {
		return false, err
	}
	return true, nil
}
