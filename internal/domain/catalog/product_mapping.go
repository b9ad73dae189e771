// Package catalog holds the mapping between manufacturer part identity
// (brand + OEM code) and the canonical SKU the rest of the system keys on.
package catalog

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"github.com/partsbridge/backend/internal/domain/shared"
)

// Mapping-specific errors
var (
	// ErrMappingNotFound is the explicit not-found outcome of a lookup.
	// Callers decide whether it means "no results" or a hard failure.
	ErrMappingNotFound = shared.NewDomainError("MAPPING_NOT_FOUND", "No SKU mapping for brand and part code")

	ErrMappingInvalidBrand    = shared.NewDomainError("MAPPING_INVALID_BRAND", "Mapping brand is required")
	ErrMappingInvalidPartCode = shared.NewDomainError("MAPPING_INVALID_PART_CODE", "Mapping part code is required")
	ErrMappingInvalidSKU      = shared.NewDomainError("MAPPING_INVALID_SKU", "Mapping SKU is required")
)

var folder = cases.Fold()

// NormalizeBrand canonicalizes a human-entered brand name: case fold and
// trim surrounding whitespace.
func NormalizeBrand(brand string) string {
	return folder.String(strings.TrimSpace(brand))
}

// NormalizePartCode canonicalizes a manufacturer part code: case fold and
// drop every non-alphanumeric rune, so "0 986-424" and "0986424" collapse
// to the same key.
func NormalizePartCode(code string) string {
	folded := folder.String(strings.TrimSpace(code))
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ProductMapping links a normalized (brand, part code) pair to a SKU.
// It is an entity with identity but no lifecycle events of its own.
type ProductMapping struct {
	ID        uuid.UUID
	Brand     string
	PartCode  string
	SKU       string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewProductMapping creates a mapping, normalizing brand and part code so
// equivalent human-entered variants share one row.
func NewProductMapping(brand, partCode, sku string) (*ProductMapping, error) {
	normBrand := NormalizeBrand(brand)
	normCode := NormalizePartCode(partCode)

	if normBrand == "" {
		return nil, ErrMappingInvalidBrand
	}
	if normCode == "" {
		return nil, ErrMappingInvalidPartCode
	}
	if sku == "" {
		return nil, ErrMappingInvalidSKU
	}

	now := time.Now()
	return &ProductMapping{
		ID:        uuid.New(),
		Brand:     normBrand,
		PartCode:  normCode,
		SKU:       sku,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ProductMappingRepository defines the interface for mapping persistence.
// FindByBrandPartCode expects already-normalized inputs.
type ProductMappingRepository interface {
	// Save creates or updates a mapping
	Save(ctx context.Context, mapping *ProductMapping) error
	// FindByBrandPartCode finds the mapping for a normalized pair.
	// Returns ErrMappingNotFound when no mapping exists.
	FindByBrandPartCode(ctx context.Context, brand, partCode string) (*ProductMapping, error)
	// FindBySKU returns all mappings that resolve to the given SKU
	FindBySKU(ctx context.Context, sku string) ([]ProductMapping, error)
	// Delete removes a mapping
	Delete(ctx context.Context, id uuid.UUID) error
}
