package commerce

import "github.com/aswathylr-builds/storefront-checkout/models"

// Product is a product or variation record as returned by the backend
type Product struct {
	ID            int64  `json:"id"`
	ParentID      int64  `json:"parent_id,omitempty"`
	Name          string `json:"name"`
	Type          string `json:"type,omitempty"`
	Price         string `json:"price"`
	Purchasable   *bool  `json:"purchasable"`
	StockStatus   string `json:"stock_status"`
	StockQuantity *int   `json:"stock_quantity"`
	TaxClass      string `json:"tax_class"`
	TaxStatus     string `json:"tax_status"`
}

// Resolved converts the backend record into the per-request product view
func (p Product) Resolved() models.ResolvedProduct {
	return models.ResolvedProduct{
		ID:            p.ID,
		Name:          p.Name,
		Price:         p.Price,
		Purchasable:   p.Purchasable,
		StockStatus:   p.StockStatus,
		StockQuantity: p.StockQuantity,
		TaxClass:      p.TaxClass,
		TaxStatus:     p.TaxStatus,
	}
}

// MetaData is an opaque key/value pair stored on an order
type MetaData struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// OrderLineItem is a line of an order creation payload
type OrderLineItem struct {
	ProductID   int64  `json:"product_id"`
	VariationID *int64 `json:"variation_id,omitempty"`
	Quantity    int    `json:"quantity"`
}

// OrderRequest is the POST /orders payload
type OrderRequest struct {
	Status             string                 `json:"status,omitempty"`
	PaymentMethod      string                 `json:"payment_method"`
	PaymentMethodTitle string                 `json:"payment_method_title"`
	SetPaid            bool                   `json:"set_paid"`
	Billing            models.BillingAddress  `json:"billing"`
	Shipping           models.ShippingAddress `json:"shipping"`
	LineItems          []OrderLineItem        `json:"line_items"`
	MetaData           []MetaData             `json:"meta_data"`
}

// Order is the subset of the backend order record the storefront reads back
type Order struct {
	ID       int64      `json:"id"`
	Status   string     `json:"status"`
	Currency string     `json:"currency"`
	Total    string     `json:"total"`
	OrderKey string     `json:"order_key"`
	MetaData []MetaData `json:"meta_data,omitempty"`
}

// OrderUpdate is the PUT /orders/{id} payload
type OrderUpdate struct {
	Status   string     `json:"status,omitempty"`
	MetaData []MetaData `json:"meta_data,omitempty"`
}

// orderNote is the POST /orders/{id}/notes payload
type orderNote struct {
	Note         string `json:"note"`
	CustomerNote bool   `json:"customer_note"`
}

// errorBody is the backend's error envelope
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Status int `json:"status"`
	} `json:"data"`
}

// BackendStatus maps a lifecycle status onto the backend's own order statuses
func BackendStatus(s models.OrderStatus) string {
	switch s {
	case models.StatusPending:
		return "on-hold"
	case models.StatusPaid:
		return "processing"
	case models.StatusFailed:
		return "failed"
	case models.StatusCancelled:
		return "cancelled"
	case models.StatusRefunded:
		return "refunded"
	case models.StatusFulfilled, models.StatusCompleted:
		return "completed"
	default:
		return ""
	}
}
