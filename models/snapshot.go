package models

import "time"

// PriceSnapshotVersion is bumped whenever the snapshot shape changes
const PriceSnapshotVersion = "1.0.0"

// PriceSnapshotItem is the charged price of one line item at commit time
type PriceSnapshotItem struct {
	ProductID   int64  `json:"product_id"`
	VariationID *int64 `json:"variation_id,omitempty"`
	Name        string `json:"name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	TotalPrice  string `json:"total_price"`
	TaxClass    string `json:"tax_class"`
	TaxStatus   string `json:"tax_status"`
}

// PriceSnapshot is the permanent record of what the customer was charged.
// It is created once per order and never modified afterwards.
type PriceSnapshot struct {
	Version          string              `json:"version"`
	CreatedAt        time.Time           `json:"created_at"`
	RequestID        string              `json:"request_id"`
	Items            []PriceSnapshotItem `json:"items"`
	Subtotal         string              `json:"subtotal"`
	TotalTax         string              `json:"total_tax"`
	Total            string              `json:"total"`
	Currency         string              `json:"currency"`
	PricesIncludeTax bool                `json:"prices_include_tax"`
}
