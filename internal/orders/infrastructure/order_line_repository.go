package infrastructure

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	catalogdomain "orderops/internal/catalog/domain"
	"orderops/internal/orders/domain"
	"orderops/internal/shared/infrastructure"
)

// OrderLineRepository repository des lignes importées (cm_raw_order_lines)
type OrderLineRepository struct {
	infrastructure.BaseRepository
}

// NewOrderLineRepository crée un nouveau repository de lignes de commande
func NewOrderLineRepository(db *sql.DB) *OrderLineRepository {
	return &OrderLineRepository{
		BaseRepository: infrastructure.NewBaseRepository(db),
	}
}

const lineColumns = `id, site_order_no, platform_name, product_name, option_text,
	site_product_code, master_product_code, qty, paid_at, matched_kit_id, process_status`

// pendingPredicate est le prédicat "à traiter" partagé par toutes les requêtes
const pendingPredicate = `(process_status IS NULL OR process_status = 'UNMATCHED')`

// Insert enregistre une ligne avec son statut initial en une seule écriture
func (r *OrderLineRepository) Insert(ctx context.Context, line *domain.OrderLine) (domain.LineID, error) {
	query := `
		INSERT INTO cm_raw_order_lines (site_order_no, platform_name, product_name, option_text,
			site_product_code, master_product_code, qty, paid_at, matched_kit_id, process_status, upload_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		RETURNING id
	`

	var id int64
	err := r.QueryRow(ctx, query,
		line.SiteOrderNo(),
		nullString(line.Platform()),
		nullString(line.ProductName()),
		nullString(line.OptionText()),
		nullString(line.SiteProductCode()),
		nullString(line.MasterProductCode()),
		line.Quantity().Value(),
		nullTime(line.PaidAt()),
		nullString(string(line.MatchedKit())),
		nullString(string(line.Status())),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert order line %s: %w", line.SiteOrderNo(), err)
	}
	return domain.LineID(id), nil
}

// FindPending retourne jusqu'à limit lignes "à traiter" d'id > afterID (pagination par clé)
func (r *OrderLineRepository) FindPending(ctx context.Context, afterID domain.LineID, limit int) (domain.LinePage, error) {
	query := `
		SELECT ` + lineColumns + `
		FROM cm_raw_order_lines
		WHERE ` + pendingPredicate + ` AND id > $1
		ORDER BY id
		LIMIT $2
	`
	return r.queryLines(ctx, query, int64(afterID), limit)
}

// FindByStatus retourne jusqu'à limit lignes du statut donné d'id > afterID
func (r *OrderLineRepository) FindByStatus(ctx context.Context, status domain.ProcessStatus, afterID domain.LineID, limit int) (domain.LinePage, error) {
	query := `
		SELECT ` + lineColumns + `
		FROM cm_raw_order_lines
		WHERE process_status IS NOT DISTINCT FROM $1 AND id > $2
		ORDER BY id
		LIMIT $3
	`
	return r.queryLines(ctx, query, nullString(string(status)), int64(afterID), limit)
}

// UpdateResolution écrit le résultat d'une résolution de façon atomique et
// conditionnelle: la ligne n'est modifiée que si son statut vaut toujours
// expected. Retourne false si une autre écriture est passée avant.
func (r *OrderLineRepository) UpdateResolution(
	ctx context.Context,
	id domain.LineID,
	kit catalogdomain.KitID,
	status domain.ProcessStatus,
	expected domain.ProcessStatus,
) (bool, error) {
	query := `
		UPDATE cm_raw_order_lines
		SET matched_kit_id = $1, process_status = $2
		WHERE id = $3 AND process_status IS NOT DISTINCT FROM $4
	`

	res, err := r.Exec(ctx, query,
		nullString(string(kit)), nullString(string(status)), int64(id), nullString(string(expected)))
	if err != nil {
		return false, fmt.Errorf("update order line %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CountByStatus compte les lignes pour un statut (StatusNew = NULL)
func (r *OrderLineRepository) CountByStatus(ctx context.Context, status domain.ProcessStatus) (int, error) {
	return r.Count(ctx,
		`SELECT COUNT(*) FROM cm_raw_order_lines WHERE process_status IS NOT DISTINCT FROM $1`,
		nullString(string(status)))
}

// CountAll compte toutes les lignes
func (r *OrderLineRepository) CountAll(ctx context.Context) (int, error) {
	return r.Count(ctx, `SELECT COUNT(*) FROM cm_raw_order_lines`)
}

// CountInconsistent compte les lignes dont matched_kit_id et statut se contredisent
func (r *OrderLineRepository) CountInconsistent(ctx context.Context) (int, error) {
	return r.Count(ctx, `
		SELECT COUNT(*) FROM cm_raw_order_lines
		WHERE (matched_kit_id IS NULL) = (process_status IN ('MATCHED', 'GIFT_APPLIED', 'DONE'))
		   OR (process_status IS NULL AND matched_kit_id IS NOT NULL)
	`)
}

// MissingRulesSummary regroupe les lignes UNMATCHED par identifiant, les plus fréquentes d'abord
func (r *OrderLineRepository) MissingRulesSummary(ctx context.Context, limit int) ([]domain.MissingRule, error) {
	query := `
		SELECT COALESCE(option_text, ''), COALESCE(product_name, ''),
		       COUNT(*) AS missing_count, MIN(COALESCE(paid_at, upload_date)) AS first_seen
		FROM cm_raw_order_lines
		WHERE process_status = 'UNMATCHED'
		GROUP BY option_text, product_name
		ORDER BY missing_count DESC, first_seen
		LIMIT $1
	`

	rows, err := r.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.MissingRule
	for rows.Next() {
		var (
			m         domain.MissingRule
			firstSeen sql.NullTime
		)
		if err := rows.Scan(&m.OptionText, &m.ProductName, &m.MissingCount, &firstSeen); err != nil {
			return nil, err
		}
		m.FirstSeen = firstSeen.Time
		out = append(out, m)
	}
	return out, rows.Err()
}

// queryLines lit une page. Une ligne illisible (statut inconnu, kit absent
// pour un statut traité) est écartée dans Defects sans faire échouer la page.
func (r *OrderLineRepository) queryLines(ctx context.Context, query string, args ...any) (domain.LinePage, error) {
	var page domain.LinePage

	rows, err := r.Query(ctx, query, args...)
	if err != nil {
		return page, err
	}
	defer rows.Close()

	for rows.Next() {
		id, line, err := scanLine(rows)
		if err != nil && id == 0 {
			return page, err
		}
		if id > page.LastID {
			page.LastID = id
		}
		page.Rows++
		if err != nil {
			page.Defects = append(page.Defects, domain.LineDefect{ID: id, Reason: err.Error()})
			continue
		}
		page.Lines = append(page.Lines, line)
	}
	return page, rows.Err()
}

// scanLine scanne une ligne de résultat en OrderLine. L'id est retourné
// même quand la reconstruction échoue; 0 signifie une erreur de scan.
func scanLine(rows *sql.Rows) (domain.LineID, *domain.OrderLine, error) {
	var (
		id          int64
		siteOrderNo string
		platform    sql.NullString
		productName sql.NullString
		optionText  sql.NullString
		siteCode    sql.NullString
		masterCode  sql.NullString
		qty         sql.NullInt64
		paidAt      sql.NullTime
		matchedKit  sql.NullString
		status      sql.NullString
	)

	if err := rows.Scan(&id, &siteOrderNo, &platform, &productName, &optionText,
		&siteCode, &masterCode, &qty, &paidAt, &matchedKit, &status); err != nil {
		return 0, nil, err
	}

	line, err := domain.RehydrateOrderLine(
		domain.LineID(id),
		domain.OrderLineInput{
			SiteOrderNo:       siteOrderNo,
			Platform:          platform.String,
			ProductName:       productName.String,
			OptionText:        optionText.String,
			SiteProductCode:   siteCode.String,
			MasterProductCode: masterCode.String,
			Quantity:          int(qty.Int64),
			PaidAt:            paidAt.Time,
		},
		catalogdomain.KitID(matchedKit.String),
		domain.ProcessStatus(status.String),
	)
	return domain.LineID(id), line, err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
