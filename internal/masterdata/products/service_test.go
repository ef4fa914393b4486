package products

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fabrica-mrp/fabrica/internal/masterdata/shared"
)

type memoryRepo struct {
	items  map[int64]Product
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: make(map[int64]Product)}
}

func (r *memoryRepo) List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error) {
	var result []Product
	for _, p := range r.items {
		result = append(result, p)
	}
	return result, len(result), nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Product, error) {
	p, ok := r.items[id]
	if !ok {
		return Product{}, shared.ErrNotFound
	}
	return p, nil
}

func (r *memoryRepo) Create(ctx context.Context, product Product) (Product, error) {
	for _, existing := range r.items {
		if existing.Code == product.Code {
			return Product{}, shared.ErrDuplicate
		}
	}
	r.nextID++
	product.ID = r.nextID
	r.items[product.ID] = product
	return product, nil
}

func (r *memoryRepo) Update(ctx context.Context, id int64, product Product) error {
	if _, ok := r.items[id]; !ok {
		return shared.ErrNotFound
	}
	product.ID = id
	r.items[id] = product
	return nil
}

func (r *memoryRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := r.items[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func TestCreateProductValidation(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, Product{Name: "Steel Sheet", Type: TypeRawMaterial, Unit: "KG"})
	require.ErrorIs(t, err, shared.ErrRequiredField)

	_, err = svc.Create(ctx, Product{Code: "RM-001", Name: "Steel Sheet", Type: "GADGET", Unit: "KG"})
	require.ErrorIs(t, err, shared.ErrValidation)

	created, err := svc.Create(ctx, Product{Code: "RM-001", Name: "Steel Sheet", Type: TypeRawMaterial, Unit: "KG", PurchasePrice: 12.5, ReorderPoint: 50})
	require.NoError(t, err)
	require.NotZero(t, created.ID)
}

func TestCreateProductDuplicateCode(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, Product{Code: "RM-001", Name: "Steel Sheet", Type: TypeRawMaterial, Unit: "KG"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, Product{Code: "RM-001", Name: "Steel Coil", Type: TypeRawMaterial, Unit: "KG"})
	require.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestCreateProductNormalizesCode(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	created, err := svc.Create(ctx, Product{Code: " rm-001 ", Name: "Steel Sheet", Type: TypeRawMaterial, Unit: "KG"})
	require.NoError(t, err)
	require.Equal(t, "RM-001", created.Code)

	// The normalized code collides with its shouty twin.
	_, err = svc.Create(ctx, Product{Code: "RM-001", Name: "Steel Coil", Type: TypeRawMaterial, Unit: "KG"})
	require.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestCreateFinishedGoodRequiresSalesPrice(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, Product{Code: "FG-CHAIR", Name: "Workshop Chair", Type: TypeFinishedGood, Unit: "PCS"})
	require.ErrorIs(t, err, shared.ErrValidation)

	created, err := svc.Create(ctx, Product{Code: "FG-CHAIR", Name: "Workshop Chair", Type: TypeFinishedGood, Unit: "PCS", SalesPrice: 89})
	require.NoError(t, err)
	require.NotZero(t, created.ID)
}

func TestGetProductInvalidID(t *testing.T) {
	svc := NewService(newMemoryRepo())

	_, err := svc.Get(context.Background(), 0)
	require.ErrorIs(t, err, shared.ErrInvalidID)

	_, err = svc.Get(context.Background(), 99)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
