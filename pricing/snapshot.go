// Package pricing computes the immutable price snapshot attached to every order.
package pricing

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aswathylr-builds/storefront-checkout/models"
)

// ErrMissingProduct is returned when a line item has no resolved product to price it
var ErrMissingProduct = errors.New("line item has no resolved product")

// Options carries store-wide pricing settings
type Options struct {
	Currency         string
	PricesIncludeTax bool
	// Now is the snapshot clock; nil uses time.Now.
	Now func() time.Time
}

// Catalog is the live product data a snapshot is priced from
type Catalog struct {
	Products   map[int64]models.ResolvedProduct
	Variations map[int64]models.ResolvedProduct
}

// BuildSnapshot prices every line item from live backend data. Client supplied
// prices are ignored. All arithmetic is fixed-point; amounts have two decimals.
func BuildSnapshot(catalog Catalog, items []models.LineItem, requestID string, opts Options) (models.PriceSnapshot, error) {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	subtotal := decimal.Zero
	snapItems := make([]models.PriceSnapshotItem, 0, len(items))

	for _, item := range items {
		source, ok := catalog.Products[item.ProductID]
		if !ok {
			return models.PriceSnapshot{}, fmt.Errorf("%w: product %d", ErrMissingProduct, item.ProductID)
		}
		name := source.Name
		var variationID *int64
		if item.HasVariation() {
			variation, ok := catalog.Variations[*item.VariationID]
			if !ok {
				return models.PriceSnapshot{}, fmt.Errorf("%w: variation %d", ErrMissingProduct, *item.VariationID)
			}
			source = variation
			id := *item.VariationID
			variationID = &id
			if variation.Name != "" {
				name = variation.Name
			}
		}

		unit, err := decimal.NewFromString(source.Price)
		if err != nil {
			return models.PriceSnapshot{}, fmt.Errorf("invalid price %q for product %d: %w", source.Price, item.ProductID, err)
		}
		// The unit price is recorded as the backend reported it; only the line total is rounded.
		line := unit.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2)
		subtotal = subtotal.Add(line)

		snapItems = append(snapItems, models.PriceSnapshotItem{
			ProductID:   item.ProductID,
			VariationID: variationID,
			Name:        name,
			Quantity:    item.Quantity,
			UnitPrice:   source.Price,
			TotalPrice:  line.StringFixed(2),
			TaxClass:    source.TaxClass,
			TaxStatus:   source.TaxStatus,
		})
	}

	subtotal = subtotal.Round(2)
	// Tax is computed by the backend after the order is created.
	totalTax := decimal.Zero

	return models.PriceSnapshot{
		Version:          models.PriceSnapshotVersion,
		CreatedAt:        now().UTC(),
		RequestID:        requestID,
		Items:            snapItems,
		Subtotal:         subtotal.StringFixed(2),
		TotalTax:         totalTax.StringFixed(2),
		Total:            subtotal.Add(totalTax).StringFixed(2),
		Currency:         opts.Currency,
		PricesIncludeTax: opts.PricesIncludeTax,
	}, nil
}
