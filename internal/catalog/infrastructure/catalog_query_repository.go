package infrastructure

import (
	"context"
	"database/sql"
	"errors"

	"orderops/internal/catalog/domain"
	"orderops/internal/shared/infrastructure"
)

// CatalogQueryRepository lecture seule sur le catalogue de kits et produits ERP
type CatalogQueryRepository struct {
	infrastructure.BaseRepository
}

// NewCatalogQueryRepository crée un nouveau repository de lecture pour le catalogue
func NewCatalogQueryRepository(db *sql.DB) *CatalogQueryRepository {
	return &CatalogQueryRepository{
		BaseRepository: infrastructure.NewBaseRepository(db),
	}
}

// KitExists vérifie qu'un kit est connu, soit du catalogue, soit par sa BOM
func (r *CatalogQueryRepository) KitExists(ctx context.Context, id domain.KitID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM cm_kits WHERE kit_id = $1
			UNION ALL
			SELECT 1 FROM cm_kit_bom_items WHERE kit_id = $1
		)
	`

	var exists bool
	if err := r.QueryRow(ctx, query, string(id)).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// FindProduct trouve un produit ERP par son code; nil si absent
func (r *CatalogQueryRepository) FindProduct(ctx context.Context, id domain.ProductID) (*domain.Product, error) {
	query := `
		SELECT product_id, name, COALESCE(spec, ''), COALESCE(bal_qty, 0)
		FROM cm_erp_products
		WHERE product_id = $1
	`

	var (
		pid        string
		name       string
		spec       string
		balanceQty int
	)

	err := r.QueryRow(ctx, query, string(id)).Scan(&pid, &name, &spec, &balanceQty)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return domain.NewProduct(domain.ProductID(pid), name, spec, balanceQty)
}
