package application

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"orderops/internal/bom/domain"
	catalogdomain "orderops/internal/catalog/domain"
)

type bomKey struct {
	kit     catalogdomain.KitID
	product catalogdomain.ProductID
}

// memBomStore store BOM en mémoire
type memBomStore struct {
	mu       sync.Mutex
	items    map[bomKey]int
	failWith error
	replaced int
}

func newMemBomStore() *memBomStore {
	return &memBomStore{items: make(map[bomKey]int)}
}

func (m *memBomStore) UpsertItems(_ context.Context, items []domain.ParsedItem) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return 0, m.failWith
	}
	for _, it := range items {
		m.items[bomKey{it.KitID, it.ProductID}] = it.Quantity.Value()
	}
	return len(items), nil
}

func (m *memBomStore) ReplaceKits(ctx context.Context, items []domain.ParsedItem) (int, error) {
	m.mu.Lock()
	kits := make(map[catalogdomain.KitID]bool)
	for _, it := range items {
		kits[it.KitID] = true
	}
	for k := range m.items {
		if kits[k.kit] {
			delete(m.items, k)
			m.replaced++
		}
	}
	m.mu.Unlock()
	return m.UpsertItems(ctx, items)
}

func (m *memBomStore) Expand(_ context.Context, kit catalogdomain.KitID) ([]domain.BomLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var lines []domain.BomLine
	for k, q := range m.items {
		if k.kit == kit {
			lines = append(lines, domain.BomLine{SKU: k.product, Quantity: q})
		}
	}
	if len(lines) == 0 {
		return nil, domain.ErrEmptyBom
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].SKU < lines[j].SKU })
	return lines, nil
}

func (m *memBomStore) AddItem(_ context.Context, item *domain.BomItem) (*domain.BomItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := bomKey{item.KitID(), item.ProductID()}
	if _, ok := m.items[k]; ok {
		return nil, domain.ErrBomItemExists
	}
	m.items[k] = item.Quantity().Value()
	return item, nil
}

func (m *memBomStore) UpdateMultiplier(_ context.Context, item *domain.BomItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := bomKey{item.KitID(), item.ProductID()}
	if _, ok := m.items[k]; !ok {
		return domain.ErrBomItemNotFound
	}
	m.items[k] = item.Quantity().Value()
	return nil
}

func (m *memBomStore) RemoveItem(_ context.Context, kit catalogdomain.KitID, product catalogdomain.ProductID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := bomKey{kit, product}
	if _, ok := m.items[k]; !ok {
		return domain.ErrBomItemNotFound
	}
	delete(m.items, k)
	return nil
}

func (m *memBomStore) KitsWithoutBom(context.Context, int) ([]domain.KitWithoutBom, error) {
	return []domain.KitWithoutBom{{KitID: "KIT-X", OrderLines: 3}}, nil
}

func bomSheet(data ...[]string) [][]string {
	return append([][]string{{"BOM"}, {}, {"세트코드", "세트명", "품목코드", "품목명", "수량"}}, data...)
}

func TestBomService_ImportThenExpand(t *testing.T) {
	store := newMemBomStore()
	svc := NewBomService(store, nil, zap.NewNop())
	ctx := context.Background()

	report, err := svc.Import(ctx, bomSheet(
		[]string{"KIT-001", "세트", "SKU-2", "토너", "1", "SKU-1", "세럼", "2"},
		[]string{"KIT-001", "세트", "SKU-1", "세럼", "1"},
		[]string{"", "", "SKU-42", "앰플", "3"},
	), false)
	require.NoError(t, err)

	assert.Equal(t, 4, report.Stats.SourceCells)
	assert.Equal(t, 2, report.Stats.Derived)
	assert.Equal(t, 1, report.Stats.MergedDuplicates)
	assert.Equal(t, 1, report.Stats.EmptyKitCells)
	assert.Equal(t, []catalogdomain.KitID{"KIT-001"}, report.KitIDs)
	assert.Equal(t, 2, report.Written)
	assert.Len(t, report.Warnings, 1)

	lines, err := svc.Expand(ctx, " KIT-001 ")
	require.NoError(t, err)
	assert.Equal(t, []domain.BomLine{{SKU: "SKU-1", Quantity: 3}, {SKU: "SKU-2", Quantity: 1}}, lines)
	for _, l := range lines {
		assert.Positive(t, l.Quantity)
	}

	exploded, err := svc.ExpandOrder(ctx, "KIT-001", 2)
	require.NoError(t, err)
	assert.Equal(t, 6, exploded[0].Quantity)
}

func TestBomService_ImportReplaceDropsStaleLines(t *testing.T) {
	store := newMemBomStore()
	svc := NewBomService(store, nil, nil)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "KIT-001", "SKU-OLD", 1)
	require.NoError(t, err)

	report, err := svc.Import(ctx, bomSheet([]string{"KIT-001", "세트", "SKU-1", "세럼", "1"}), true)
	require.NoError(t, err)
	assert.True(t, report.Replaced)
	assert.Equal(t, 1, store.replaced)

	lines, err := svc.Expand(ctx, "KIT-001")
	require.NoError(t, err)
	assert.Equal(t, []domain.BomLine{{SKU: "SKU-1", Quantity: 1}}, lines)
}

func TestBomService_ImportStoreFailure(t *testing.T) {
	store := newMemBomStore()
	store.failWith = errors.New("db down")
	svc := NewBomService(store, nil, nil)

	_, err := svc.Import(context.Background(), bomSheet([]string{"KIT-1", "", "SKU-1", "", "1"}), false)
	assert.ErrorIs(t, err, store.failWith)
}

func TestBomService_ExpandErrors(t *testing.T) {
	svc := NewBomService(newMemBomStore(), nil, nil)
	ctx := context.Background()

	_, err := svc.Expand(ctx, "  ")
	assert.ErrorIs(t, err, catalogdomain.ErrEmptyKitID)

	_, err = svc.Expand(ctx, "KIT-404")
	assert.ErrorIs(t, err, domain.ErrEmptyBom)

	_, err = svc.ExpandOrder(ctx, "KIT-404", 0)
	assert.Error(t, err)
}

func TestBomService_ItemCRUD(t *testing.T) {
	svc := NewBomService(newMemBomStore(), nil, nil)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "KIT-1", "SKU-1", 2)
	require.NoError(t, err)

	_, err = svc.AddItem(ctx, "KIT-1", "SKU-1", 5)
	assert.ErrorIs(t, err, domain.ErrBomItemExists)

	require.NoError(t, svc.UpdateMultiplier(ctx, "KIT-1", "SKU-1", 4))
	lines, err := svc.Expand(ctx, "KIT-1")
	require.NoError(t, err)
	assert.Equal(t, 4, lines[0].Quantity)

	assert.Error(t, svc.UpdateMultiplier(ctx, "KIT-1", "SKU-1", 0))
	require.NoError(t, svc.RemoveItem(ctx, "KIT-1", "SKU-1"))
	assert.ErrorIs(t, svc.RemoveItem(ctx, "KIT-1", "SKU-1"), domain.ErrBomItemNotFound)
}

func TestBomService_KitsWithoutBom(t *testing.T) {
	svc := NewBomService(newMemBomStore(), nil, nil)

	kits, err := svc.KitsWithoutBom(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []domain.KitWithoutBom{{KitID: "KIT-X", OrderLines: 3}}, kits)
}

type stubProducts map[catalogdomain.ProductID]*catalogdomain.Product

func (s stubProducts) FindProduct(_ context.Context, id catalogdomain.ProductID) (*catalogdomain.Product, error) {
	return s[id], nil
}

func TestBomService_ExpandWithStock(t *testing.T) {
	serum, err := catalogdomain.NewProduct("SKU-1", "세럼", "50ml", 5)
	require.NoError(t, err)

	svc := NewBomService(newMemBomStore(), nil, nil).WithProducts(stubProducts{"SKU-1": serum})
	ctx := context.Background()
	_, err = svc.AddItem(ctx, "KIT-1", "SKU-1", 2)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, "KIT-1", "SKU-9", 1)
	require.NoError(t, err)

	lines, err := svc.ExpandWithStock(ctx, "KIT-1", 3)
	require.NoError(t, err)
	require.Len(t, lines, 2)

	assert.Equal(t, StockLine{SKU: "SKU-1", Quantity: 6, Known: true, Name: "세럼", Spec: "50ml", Available: 5, Shortage: 1}, lines[0])
	assert.False(t, lines[1].Known)
	assert.Equal(t, 3, lines[1].Shortage)
}

func TestBomService_ExpandWithStockWithoutCatalog(t *testing.T) {
	_, err := NewBomService(newMemBomStore(), nil, nil).ExpandWithStock(context.Background(), "KIT-1", 1)
	assert.Error(t, err)
}
