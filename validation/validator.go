package validation

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"go.temporal.io/sdk/log"
	"golang.org/x/sync/errgroup"

	"github.com/aswathylr-builds/storefront-checkout/commerce"
	"github.com/aswathylr-builds/storefront-checkout/logging"
	"github.com/aswathylr-builds/storefront-checkout/models"
)

// Gateway is the read side of the commerce backend used during validation
type Gateway interface {
	FetchProduct(ctx context.Context, productID int64) (*commerce.Product, error)
	FetchVariation(ctx context.Context, productID, variationID int64) (*commerce.Product, error)
}

// Result is the outcome of validating a cart against live backend state
type Result struct {
	Errors []models.ValidationError
	// Resolved holds every product that was fetched successfully, by product id.
	Resolved map[int64]models.ResolvedProduct
	// Variations holds every variation that was fetched successfully, by variation id.
	Variations map[int64]models.ResolvedProduct
}

// Blocked reports whether the result forbids creating an order
func (r Result) Blocked() bool {
	return models.HasBlocking(r.Errors)
}

// Validator re-checks line items against the backend before an order is committed
type Validator struct {
	gateway  Gateway
	logger   log.Logger
	maxFetch int
}

// NewValidator creates a validator. maxConcurrent caps in-flight fetches; zero means no cap.
func NewValidator(gateway Gateway, logger log.Logger, maxConcurrent int) *Validator {
	return &Validator{
		gateway:  gateway,
		logger:   logging.OrNop(logger),
		maxFetch: maxConcurrent,
	}
}

type fetchResult struct {
	product *commerce.Product
	err     error
}

// Validate fetches every referenced product and variation concurrently and
// collects all validation errors in line-item order. It never stops at the first error.
func (v *Validator) Validate(ctx context.Context, items []models.LineItem) Result {
	productIDs := distinctProductIDs(items)
	products := make([]fetchResult, len(productIDs))
	variations := make([]fetchResult, len(items))

	var g errgroup.Group
	if v.maxFetch > 0 {
		g.SetLimit(v.maxFetch)
	}

	for i, id := range productIDs {
		g.Go(func() error {
			p, err := v.gateway.FetchProduct(ctx, id)
			products[i] = fetchResult{product: p, err: err}
			return nil
		})
	}
	for i, item := range items {
		if !item.HasVariation() {
			continue
		}
		g.Go(func() error {
			p, err := v.gateway.FetchVariation(ctx, item.ProductID, *item.VariationID)
			variations[i] = fetchResult{product: p, err: err}
			return nil
		})
	}
	_ = g.Wait()

	res := Result{
		Resolved:   make(map[int64]models.ResolvedProduct, len(productIDs)),
		Variations: make(map[int64]models.ResolvedProduct),
	}
	fetched := make(map[int64]fetchResult, len(productIDs))
	for i, id := range productIDs {
		fr := products[i]
		fetched[id] = fr
		if fr.err != nil {
			v.logger.Warn("Product fetch failed", "product_id", id, "error", fr.err)
			continue
		}
		if fr.product != nil {
			res.Resolved[id] = fr.product.Resolved()
		}
	}

	for i, item := range items {
		fr := fetched[item.ProductID]
		if fr.err != nil {
			res.Errors = append(res.Errors, unverifiable(item.ProductID, productLabel(item.ProductID)))
			continue
		}
		product, ok := res.Resolved[item.ProductID]
		if !ok {
			res.Errors = append(res.Errors, models.ValidationError{
				Field:       models.FieldAvailability,
				ProductID:   item.ProductID,
				ProductName: productLabel(item.ProductID),
				Message:     "Product is no longer available",
			})
			continue
		}

		target := product
		if item.HasVariation() {
			vr := variations[i]
			if vr.err != nil {
				v.logger.Warn("Variation fetch failed", "product_id", item.ProductID, "variation_id", *item.VariationID, "error", vr.err)
				res.Errors = append(res.Errors, unverifiable(item.ProductID, product.Name))
				continue
			}
			if vr.product == nil {
				res.Errors = append(res.Errors, models.ValidationError{
					Field:       models.FieldVariation,
					ProductID:   item.ProductID,
					ProductName: product.Name,
					Message:     "Selected product option is no longer available",
					Expected:    strconv.FormatInt(*item.VariationID, 10),
				})
				continue
			}
			target = vr.product.Resolved()
			res.Variations[*item.VariationID] = target
		}

		if verr, bad := checkStock(item, target); bad {
			res.Errors = append(res.Errors, verr)
			continue
		}
		if verr, drift := checkPrice(item, target); drift {
			res.Errors = append(res.Errors, verr)
		}
	}

	if len(res.Errors) > 0 {
		v.logger.Info("Cart validation found problems",
			"line_items", len(items), "errors", len(res.Errors), "blocked", res.Blocked())
	}
	return res
}

// checkStock applies purchasability, stock status and stock quantity rules
func checkStock(item models.LineItem, p models.ResolvedProduct) (models.ValidationError, bool) {
	if !p.CanPurchase() {
		return models.ValidationError{
			Field:       models.FieldAvailability,
			ProductID:   item.ProductID,
			ProductName: p.Name,
			Message:     "Product is not available for purchase",
		}, true
	}
	if p.StockStatus == models.StockStatusOutOfStock {
		return models.ValidationError{
			Field:       models.FieldStock,
			ProductID:   item.ProductID,
			ProductName: p.Name,
			Message:     "Product is out of stock",
		}, true
	}
	if p.StockQuantity != nil && *p.StockQuantity < item.Quantity {
		return models.ValidationError{
			Field:       models.FieldStock,
			ProductID:   item.ProductID,
			ProductName: p.Name,
			Message:     fmt.Sprintf("Only %d left in stock", *p.StockQuantity),
			Expected:    strconv.Itoa(item.Quantity),
			Actual:      strconv.Itoa(*p.StockQuantity),
		}, true
	}
	return models.ValidationError{}, false
}

// checkPrice reports drift between the price the client showed and the live price
func checkPrice(item models.LineItem, p models.ResolvedProduct) (models.ValidationError, bool) {
	if item.ExpectedPrice == "" {
		return models.ValidationError{}, false
	}
	expected, err1 := decimal.NewFromString(item.ExpectedPrice)
	actual, err2 := decimal.NewFromString(p.Price)
	if err1 == nil && err2 == nil && expected.Equal(actual) {
		return models.ValidationError{}, false
	}
	return models.ValidationError{
		Field:       models.FieldPrice,
		ProductID:   item.ProductID,
		ProductName: p.Name,
		Message:     "Price has changed since the item was added to the cart",
		Expected:    item.ExpectedPrice,
		Actual:      p.Price,
	}, true
}

func unverifiable(productID int64, name string) models.ValidationError {
	return models.ValidationError{
		Field:       models.FieldAvailability,
		ProductID:   productID,
		ProductName: name,
		Message:     "Product availability could not be verified",
	}
}

func productLabel(id int64) string {
	return "Product #" + strconv.FormatInt(id, 10)
}

func distinctProductIDs(items []models.LineItem) []int64 {
	seen := make(map[int64]struct{}, len(items))
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}
