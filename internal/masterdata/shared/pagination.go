package shared

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 200

	SortAsc  = "asc"
	SortDesc = "desc"
)

// ListFilters carries the query string filters the product and work center
// list endpoints accept. ProductType, Category, and BelowReorder only apply
// to products.
type ListFilters struct {
	Page     int
	Limit    int
	Search   string
	SortBy   string
	SortDir  string
	IsActive *bool

	ProductType  *string
	Category     *string
	BelowReorder bool
}

// Normalize clamps paging so a missing page or an oversized limit cannot
// turn a list call into a full table scan.
func (f *ListFilters) Normalize() {
	if f.Page < DefaultPage {
		f.Page = DefaultPage
	}
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
}
