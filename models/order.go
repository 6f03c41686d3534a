package models

// LineItem is a single cart line submitted by the client
type LineItem struct {
	ProductID   int64  `json:"product_id"`
	Quantity    int    `json:"quantity"`
	VariationID *int64 `json:"variation_id,omitempty"`
	// ExpectedPrice is the unit price the client displayed, if it sent one.
	// It is only used to report price drift and never becomes the charged price.
	ExpectedPrice string `json:"price,omitempty"`
}

// HasVariation reports whether the line item references a product variation
func (li LineItem) HasVariation() bool {
	return li.VariationID != nil && *li.VariationID > 0
}

// BillingAddress is the customer billing block forwarded to the commerce backend
type BillingAddress struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company,omitempty"`
	Address1  string `json:"address_1"`
	Address2  string `json:"address_2,omitempty"`
	City      string `json:"city"`
	State     string `json:"state,omitempty"`
	Postcode  string `json:"postcode"`
	Country   string `json:"country"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
}

// ShippingAddress is the shipping block; it defaults to the billing address
type ShippingAddress struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company,omitempty"`
	Address1  string `json:"address_1"`
	Address2  string `json:"address_2,omitempty"`
	City      string `json:"city"`
	State     string `json:"state,omitempty"`
	Postcode  string `json:"postcode"`
	Country   string `json:"country"`
}

// ShippingFromBilling copies the address fields of a billing block
func ShippingFromBilling(b BillingAddress) ShippingAddress {
	return ShippingAddress{
		FirstName: b.FirstName,
		LastName:  b.LastName,
		Company:   b.Company,
		Address1:  b.Address1,
		Address2:  b.Address2,
		City:      b.City,
		State:     b.State,
		Postcode:  b.Postcode,
		Country:   b.Country,
	}
}

// Stock statuses reported by the commerce backend
const (
	StockStatusInStock     = "instock"
	StockStatusOutOfStock  = "outofstock"
	StockStatusOnBackorder = "onbackorder"
)

// ResolvedProduct is the live state of a product or variation fetched for one checkout request.
// It must never be cached across requests.
type ResolvedProduct struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Price         string `json:"price"`
	Purchasable   *bool  `json:"purchasable"`
	StockStatus   string `json:"stock_status"`
	StockQuantity *int   `json:"stock_quantity"`
	TaxClass      string `json:"tax_class"`
	TaxStatus     string `json:"tax_status"`
}

// CanPurchase reports whether the product may be bought. Only an explicit
// purchasable=false blocks it; a record without the field is purchasable.
func (p ResolvedProduct) CanPurchase() bool {
	return p.Purchasable == nil || *p.Purchasable
}

// ValidationField tags which rule a line item failed
type ValidationField string

const (
	FieldPrice        ValidationField = "price"
	FieldStock        ValidationField = "stock"
	FieldVariation    ValidationField = "variation"
	FieldAvailability ValidationField = "availability"
)

// Blocking reports whether an error on this field prevents order creation
func (f ValidationField) Blocking() bool {
	switch f {
	case FieldStock, FieldVariation, FieldAvailability:
		return true
	default:
		return false
	}
}

// ValidationError describes one problem with one line item
type ValidationError struct {
	Field       ValidationField `json:"field"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Message     string          `json:"message"`
	Expected    string          `json:"expected,omitempty"`
	Actual      string          `json:"actual,omitempty"`
}

// Error implements error so a single ValidationError can be logged or wrapped
func (e ValidationError) Error() string {
	return string(e.Field) + ": " + e.Message
}

// HasBlocking reports whether any error in the list aborts order creation
func HasBlocking(errs []ValidationError) bool {
	for _, e := range errs {
		if e.Field.Blocking() {
			return true
		}
	}
	return false
}

// UnavailableProductIDs returns the distinct product ids with blocking errors, in first-seen order
func UnavailableProductIDs(errs []ValidationError) []int64 {
	seen := make(map[int64]struct{}, len(errs))
	ids := make([]int64, 0, len(errs))
	for _, e := range errs {
		if !e.Field.Blocking() {
			continue
		}
		if _, ok := seen[e.ProductID]; ok {
			continue
		}
		seen[e.ProductID] = struct{}{}
		ids = append(ids, e.ProductID)
	}
	return ids
}

// Order metadata keys written alongside every created order
const (
	MetaRequestID      = "_request_id"
	MetaIdempotencyKey = "_idempotency_key"
	MetaStatusHistory  = "_status_history"
	MetaPriceSnapshot  = "_price_snapshot"
	MetaOrderStatus    = "_order_status"
	MetaStatusSequence = "_status_sequence"
)

// Payment method used by the storefront
const (
	PaymentMethodBankTransfer      = "bacs"
	PaymentMethodBankTransferTitle = "Direct Bank Transfer"
)
