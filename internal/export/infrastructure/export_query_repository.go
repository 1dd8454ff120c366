package infrastructure

import (
	"context"
	"database/sql"

	"orderops/internal/export/domain"
	ordersdomain "orderops/internal/orders/domain"
	"orderops/internal/shared/infrastructure"
)

// ExportQueryRepository repository pour les requêtes d'export
type ExportQueryRepository struct {
	infrastructure.BaseRepository
}

// NewExportQueryRepository crée un nouveau repository d'export
func NewExportQueryRepository(db *sql.DB) *ExportQueryRepository {
	return &ExportQueryRepository{
		BaseRepository: infrastructure.NewBaseRepository(db),
	}
}

// StreamOrderLines parcourt les lignes de commande avec le nom du kit rapproché,
// en une seule requête. status nil exporte tous les statuts.
func (r *ExportQueryRepository) StreamOrderLines(
	ctx context.Context,
	status *ordersdomain.ProcessStatus,
	fn func(*domain.OrderLineExportRow) error,
) error {
	// $1 = false: pas de filtre; sinon IS NOT DISTINCT FROM pour inclure NULL (NEW)
	query := `
		SELECT
			l.id,
			COALESCE(l.site_order_no, ''),
			COALESCE(l.platform_name, ''),
			COALESCE(l.product_name, ''),
			COALESCE(l.option_text, ''),
			COALESCE(l.site_product_code, ''),
			COALESCE(l.master_product_code, ''),
			COALESCE(l.qty, 1),
			l.paid_at,
			COALESCE(l.matched_kit_id, ''),
			COALESCE(k.kit_name, ''),
			COALESCE(l.process_status, '')
		FROM cm_raw_order_lines l
		LEFT JOIN cm_kits k ON k.kit_id = l.matched_kit_id
		WHERE NOT $1 OR l.process_status IS NOT DISTINCT FROM $2
		ORDER BY l.id
	`

	filter := status != nil
	var value sql.NullString
	if filter && *status != ordersdomain.StatusNew {
		value = sql.NullString{String: string(*status), Valid: true}
	}

	rows, err := r.Query(ctx, query, filter, value)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			row    domain.OrderLineExportRow
			paidAt sql.NullTime
		)
		if err := rows.Scan(
			&row.LineID,
			&row.SiteOrderNo,
			&row.Platform,
			&row.ProductName,
			&row.OptionText,
			&row.SiteProductCode,
			&row.MasterCode,
			&row.Quantity,
			&paidAt,
			&row.MatchedKitID,
			&row.KitName,
			&row.Status,
		); err != nil {
			return err
		}
		row.PaidAt = paidAt.Time
		if err := fn(&row); err != nil {
			return err
		}
	}
	return rows.Err()
}
