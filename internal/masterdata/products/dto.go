package products

// CreateProductRequest is the payload for creating or replacing a product.
type CreateProductRequest struct {
	Code          string  `json:"code" validate:"required,max=64"`
	Name          string  `json:"name" validate:"required,max=255"`
	Type          string  `json:"type" validate:"required,oneof=RAW_MATERIAL WIP FINISHED_GOOD CONSUMABLE"`
	Unit          string  `json:"unit" validate:"required,max=20"`
	SalesPrice    float64 `json:"sales_price" validate:"gte=0"`
	PurchasePrice float64 `json:"purchase_price" validate:"gte=0"`
	ReorderPoint  float64 `json:"reorder_point" validate:"gte=0"`
	Category      string  `json:"category" validate:"max=100"`
	IsActive      *bool   `json:"is_active,omitempty"`
}

// ListProductsResponse wraps a paginated product listing.
type ListProductsResponse struct {
	Items []Product `json:"items"`
	Total int       `json:"total"`
}
