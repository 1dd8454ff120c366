package infrastructure

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"orderops/internal/bom/domain"
	catalogdomain "orderops/internal/catalog/domain"
	"orderops/internal/shared/infrastructure"
)

// DefaultBatchSize nombre de lignes par INSERT multi-valeurs
const DefaultBatchSize = 1000

// BomRepository repository des nomenclatures (cm_kit_bom_items)
type BomRepository struct {
	infrastructure.BaseRepository
	uow       infrastructure.UnitOfWork
	batchSize int
}

// NewBomRepository crée un nouveau repository BOM
func NewBomRepository(db *sql.DB) *BomRepository {
	return &BomRepository{
		BaseRepository: infrastructure.NewBaseRepository(db),
		uow:            infrastructure.NewUnitOfWork(db),
		batchSize:      DefaultBatchSize,
	}
}

// UpsertItems écrit les lignes par lots dans une seule transaction.
// Une ligne existante (kit_id, product_id) voit son multiplicateur remplacé.
func (r *BomRepository) UpsertItems(ctx context.Context, items []domain.ParsedItem) (int, error) {
	return r.write(ctx, items, false)
}

// ReplaceKits remplace la BOM complète des kits présents dans items:
// les lignes absentes de l'import sont supprimées dans la même transaction.
func (r *BomRepository) ReplaceKits(ctx context.Context, items []domain.ParsedItem) (int, error) {
	return r.write(ctx, items, true)
}

func (r *BomRepository) write(ctx context.Context, items []domain.ParsedItem, replace bool) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	written := 0
	err := r.uow.Execute(ctx, func(tx *sql.Tx) error {
		txRepo := r.BaseRepository.WithTx(tx)
		if replace {
			if _, err := txRepo.Exec(ctx, `DELETE FROM cm_kit_bom_items WHERE kit_id = ANY($1)`,
				pq.Array(kitIDs(items))); err != nil {
				return fmt.Errorf("clear BOM of imported kits: %w", err)
			}
		}
		for start := 0; start < len(items); start += r.batchSize {
			end := min(start+r.batchSize, len(items))
			query, args := buildUpsert(items[start:end])
			res, err := txRepo.Exec(ctx, query, args...)
			if err != nil {
				return fmt.Errorf("upsert BOM batch %d-%d: %w", start, end, err)
			}
			if n, err := res.RowsAffected(); err == nil {
				written += int(n)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

func kitIDs(items []domain.ParsedItem) []string {
	seen := make(map[catalogdomain.KitID]struct{}, len(items))
	var ids []string
	for _, it := range items {
		if _, ok := seen[it.KitID]; !ok {
			seen[it.KitID] = struct{}{}
			ids = append(ids, string(it.KitID))
		}
	}
	return ids
}

func buildUpsert(batch []domain.ParsedItem) (string, []any) {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO cm_kit_bom_items (kit_id, product_id, multiplier) VALUES `)
	args := make([]any, 0, len(batch)*3)
	for i, it := range batch {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "($%d, $%d, $%d)", i*3+1, i*3+2, i*3+3)
		args = append(args, string(it.KitID), string(it.ProductID), it.Quantity.Value())
	}
	sb.WriteString(` ON CONFLICT (kit_id, product_id) DO UPDATE SET multiplier = EXCLUDED.multiplier`)
	return sb.String(), args
}

// Expand retourne la BOM d'un kit triée par produit; ErrEmptyBom si aucune ligne
func (r *BomRepository) Expand(ctx context.Context, kit catalogdomain.KitID) ([]domain.BomLine, error) {
	rows, err := r.Query(ctx, `
		SELECT product_id, multiplier
		FROM cm_kit_bom_items
		WHERE kit_id = $1 AND multiplier > 0
		ORDER BY product_id
	`, string(kit))
	if err != nil {
		return nil, fmt.Errorf("expand kit %s: %w", kit, err)
	}
	defer rows.Close()

	var lines []domain.BomLine
	for rows.Next() {
		var l domain.BomLine
		if err := rows.Scan(&l.SKU, &l.Quantity); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, domain.ErrEmptyBom
	}
	return lines, nil
}

// CountForKits compte les lignes stockées pour un ensemble de kits
func (r *BomRepository) CountForKits(ctx context.Context, kits []catalogdomain.KitID) (int, error) {
	if len(kits) == 0 {
		return 0, nil
	}
	ids := make([]string, len(kits))
	for i, k := range kits {
		ids[i] = string(k)
	}
	return r.Count(ctx, `SELECT COUNT(*) FROM cm_kit_bom_items WHERE kit_id = ANY($1)`, pq.Array(ids))
}

// AddItem ajoute une ligne; ErrBomItemExists si le couple existe déjà
func (r *BomRepository) AddItem(ctx context.Context, item *domain.BomItem) (*domain.BomItem, error) {
	var id int64
	err := r.QueryRow(ctx, `
		INSERT INTO cm_kit_bom_items (kit_id, product_id, multiplier)
		VALUES ($1, $2, $3)
		ON CONFLICT (kit_id, product_id) DO NOTHING
		RETURNING id
	`, string(item.KitID()), string(item.ProductID()), item.Quantity().Value()).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrBomItemExists
	}
	if err != nil {
		return nil, err
	}
	return domain.RehydrateBomItem(domain.BomItemID(id), item.KitID(), item.ProductID(), item.Quantity().Value())
}

// UpdateMultiplier change le multiplicateur d'une ligne existante
func (r *BomRepository) UpdateMultiplier(ctx context.Context, item *domain.BomItem) error {
	res, err := r.Exec(ctx, `
		UPDATE cm_kit_bom_items SET multiplier = $1
		WHERE kit_id = $2 AND product_id = $3
	`, item.Quantity().Value(), string(item.KitID()), string(item.ProductID()))
	return requireAffected(res, err)
}

// RemoveItem supprime une ligne de BOM
func (r *BomRepository) RemoveItem(ctx context.Context, kit catalogdomain.KitID, product catalogdomain.ProductID) error {
	res, err := r.Exec(ctx, `DELETE FROM cm_kit_bom_items WHERE kit_id = $1 AND product_id = $2`,
		string(kit), string(product))
	return requireAffected(res, err)
}

func requireAffected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrBomItemNotFound
	}
	return nil
}

// KitsWithoutBom liste les kits rapprochés qui ne peuvent pas être éclatés
func (r *BomRepository) KitsWithoutBom(ctx context.Context, limit int) ([]domain.KitWithoutBom, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.Query(ctx, `
		SELECT l.matched_kit_id, COUNT(*) AS lines
		FROM cm_raw_order_lines l
		WHERE l.matched_kit_id IS NOT NULL
		  AND NOT EXISTS (SELECT 1 FROM cm_kit_bom_items b WHERE b.kit_id = l.matched_kit_id)
		GROUP BY l.matched_kit_id
		ORDER BY lines DESC, l.matched_kit_id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.KitWithoutBom
	for rows.Next() {
		var k domain.KitWithoutBom
		if err := rows.Scan(&k.KitID, &k.OrderLines); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// StreamItems parcourt toutes les lignes triées (kit, produit) pour l'export
func (r *BomRepository) StreamItems(ctx context.Context, fn func(*domain.BomItem) error) error {
	rows, err := r.Query(ctx, `
		SELECT id, kit_id, product_id, multiplier
		FROM cm_kit_bom_items
		ORDER BY kit_id, product_id
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id      int64
			kit     string
			product string
			qty     int
		)
		if err := rows.Scan(&id, &kit, &product, &qty); err != nil {
			return err
		}
		item, err := domain.RehydrateBomItem(domain.BomItemID(id), catalogdomain.KitID(kit), catalogdomain.ProductID(product), qty)
		if err != nil {
			return fmt.Errorf("bom item %d: %w", id, err)
		}
		if err := fn(item); err != nil {
			return err
		}
	}
	return rows.Err()
}
