// Package dto holds the on-disk catalog import format.
package dto

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/flicky/go-ecommerce-core/internal/model"
)

// CatalogFile is a YAML (or JSON) document listing products keyed by SKU.
type CatalogFile struct {
	Products []ProductRecord `yaml:"products" json:"products"`
}

// ProductRecord keeps price as text so that values like "19.90" are not
// rounded through float parsing.
type ProductRecord struct {
	SKU             string `yaml:"sku" json:"sku"`
	Name            string `yaml:"name" json:"name"`
	Description     string `yaml:"description" json:"description"`
	Category        string `yaml:"category,omitempty" json:"category,omitempty"`
	Brand           string `yaml:"brand,omitempty" json:"brand,omitempty"`
	Price           string `yaml:"price" json:"price"`
	Stock           int    `yaml:"stock" json:"stock"`
	Active          *bool  `yaml:"active" json:"active"`
	ExpectedVersion int64  `yaml:"expected_version" json:"expected_version"`
}

// ToInput converts the record. Records are active unless they say otherwise.
func (r ProductRecord) ToInput() (model.ProductInput, error) {
	price, err := decimal.NewFromString(strings.TrimSpace(r.Price))
	if err != nil {
		return model.ProductInput{}, fmt.Errorf("sku %q: invalid price %q: %w", r.SKU, r.Price, err)
	}
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return model.ProductInput{
		SKU:             strings.TrimSpace(r.SKU),
		Name:            strings.TrimSpace(r.Name),
		Description:     r.Description,
		Category:        strings.TrimSpace(r.Category),
		Brand:           strings.TrimSpace(r.Brand),
		Price:           price,
		Stock:           r.Stock,
		Active:          active,
		ExpectedVersion: r.ExpectedVersion,
	}, nil
}

// FromProduct renders a stored product back into the import format.
// category is the name of p.CategoryID, empty when uncategorized.
func FromProduct(p model.Product, category string) ProductRecord {
	active := p.Active
	return ProductRecord{
		SKU:             p.SKU,
		Name:            p.Name,
		Description:     p.Description,
		Category:        category,
		Brand:           p.Brand,
		Price:           p.Price.String(),
		Stock:           p.Stock,
		Active:          &active,
		ExpectedVersion: p.Version,
	}
}
