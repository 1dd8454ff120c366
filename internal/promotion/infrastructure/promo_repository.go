package infrastructure

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	catalogdomain "orderops/internal/catalog/domain"
	"orderops/internal/promotion/domain"
	shareddomain "orderops/internal/shared/domain"
	"orderops/internal/shared/infrastructure"
)

const giftBatchSize = 500

// PromoRepository repository des promotions (cm_promo_rules) et des cadeaux (cm_order_gifts)
type PromoRepository struct {
	infrastructure.BaseRepository
	uow infrastructure.UnitOfWork
	loc *time.Location
}

// NewPromoRepository crée un nouveau repository. Les dates des règles sont
// interprétées comme des jours calendaires dans loc.
func NewPromoRepository(db *sql.DB, loc *time.Location) *PromoRepository {
	if loc == nil {
		loc = time.UTC
	}
	return &PromoRepository{
		BaseRepository: infrastructure.NewBaseRepository(db),
		uow:            infrastructure.NewUnitOfWork(db),
		loc:            loc,
	}
}

const promoColumns = `rule_id, promo_group_id, promo_name, promo_type, target_kit_ids,
	condition_qty, gift_qty, COALESCE(gift_kit_id, ''), start_date, end_date,
	COALESCE(platform_name, ''), created_at`

// Create insère une règle et retourne sa version persistée
func (r *PromoRepository) Create(ctx context.Context, rule *domain.PromoRule) (*domain.PromoRule, error) {
	query := `
		INSERT INTO cm_promo_rules (promo_group_id, promo_name, promo_type, target_kit_ids,
			condition_qty, gift_qty, gift_kit_id, start_date, end_date, platform_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, NULLIF($10, ''), NOW())
		RETURNING ` + promoColumns

	row := r.QueryRow(ctx, query,
		rule.GroupID().String(),
		rule.Name(),
		string(rule.Type()),
		pq.Array(kitStrings(rule.Targets())),
		rule.ConditionQty(),
		rule.GiftQty(),
		string(rule.GiftKitID()),
		rule.Period().Start().Format(time.DateOnly),
		rule.Period().End().Format(time.DateOnly),
		rule.Platform(),
	)
	saved, err := r.scanRule(row)
	if err != nil {
		return nil, fmt.Errorf("create promo rule %q: %w", rule.Name(), err)
	}
	return saved, nil
}

// Delete supprime une règle
func (r *PromoRepository) Delete(ctx context.Context, id domain.RuleID) error {
	res, err := r.Exec(ctx, `DELETE FROM cm_promo_rules WHERE rule_id = $1`, int64(id))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrPromoNotFound
	}
	return nil
}

// ListActive retourne les règles dont la période contient le jour de at
func (r *PromoRepository) ListActive(ctx context.Context, at time.Time) ([]*domain.PromoRule, error) {
	day := at.In(r.loc).Format(time.DateOnly)
	return r.list(ctx, `
		SELECT `+promoColumns+`
		FROM cm_promo_rules
		WHERE start_date <= $1::date AND end_date >= $1::date
		ORDER BY created_at DESC, rule_id DESC
	`, day)
}

// ListAll retourne toutes les règles, plus récentes d'abord
func (r *PromoRepository) ListAll(ctx context.Context) ([]*domain.PromoRule, error) {
	return r.list(ctx, `SELECT `+promoColumns+` FROM cm_promo_rules ORDER BY created_at DESC, rule_id DESC`)
}

// ListOverlapping retourne les règles dont la période recoupe [from, to]
func (r *PromoRepository) ListOverlapping(ctx context.Context, from, to time.Time) ([]*domain.PromoRule, error) {
	return r.list(ctx, `
		SELECT `+promoColumns+`
		FROM cm_promo_rules
		WHERE start_date <= $2::date AND end_date >= $1::date
		ORDER BY created_at DESC, rule_id DESC
	`, from.In(r.loc).Format(time.DateOnly), to.In(r.loc).Format(time.DateOnly))
}

func (r *PromoRepository) list(ctx context.Context, query string, args ...any) ([]*domain.PromoRule, error) {
	rows, err := r.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.PromoRule
	for rows.Next() {
		rule, err := r.scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// RecordGifts enregistre les cadeaux en brouillon (is_confirmed = false).
// Un couple (ligne, règle) déjà enregistré est ignoré: l'opération est rejouable.
func (r *PromoRepository) RecordGifts(ctx context.Context, gifts []domain.GiftAssignment) (int, error) {
	if len(gifts) == 0 {
		return 0, nil
	}

	inserted := 0
	err := r.uow.Execute(ctx, func(tx *sql.Tx) error {
		txRepo := r.BaseRepository.WithTx(tx)
		for start := 0; start < len(gifts); start += giftBatchSize {
			end := min(start+giftBatchSize, len(gifts))
			query, args := buildGiftInsert(gifts[start:end])
			res, err := txRepo.Exec(ctx, query, args...)
			if err != nil {
				return fmt.Errorf("record gifts %d-%d: %w", start, end, err)
			}
			if n, err := res.RowsAffected(); err == nil {
				inserted += int(n)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func buildGiftInsert(batch []domain.GiftAssignment) (string, []any) {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO cm_order_gifts (order_line_id, rule_id, gift_kit_id, gift_qty, is_confirmed, created_at) VALUES `)
	args := make([]any, 0, len(batch)*4)
	for i, g := range batch {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, FALSE, NOW())", i*4+1, i*4+2, i*4+3, i*4+4)
		args = append(args, g.LineID, int64(g.RuleID), string(g.GiftKitID), g.GiftQty)
	}
	sb.WriteString(` ON CONFLICT (order_line_id, rule_id) DO NOTHING`)
	return sb.String(), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PromoRepository) scanRule(row rowScanner) (*domain.PromoRule, error) {
	var (
		id        int64
		groupID   string
		name      string
		promoType string
		targets   pq.StringArray
		condition int
		giftQty   int
		giftKit   string
		start     time.Time
		end       time.Time
		platform  string
		createdAt time.Time
	)
	if err := row.Scan(&id, &groupID, &name, &promoType, &targets, &condition, &giftQty,
		&giftKit, &start, &end, &platform, &createdAt); err != nil {
		return nil, err
	}

	gid, err := uuid.Parse(groupID)
	if err != nil {
		return nil, fmt.Errorf("promo rule %d: group id: %w", id, err)
	}
	// DATE est renvoyé à minuit UTC: seul le jour calendaire compte
	period, err := shareddomain.ParseDateRange(start.Format(time.DateOnly), end.Format(time.DateOnly), r.loc)
	if err != nil {
		return nil, fmt.Errorf("promo rule %d: %w", id, err)
	}

	kits := make([]catalogdomain.KitID, 0, len(targets))
	for _, t := range targets {
		kits = append(kits, catalogdomain.KitID(t))
	}

	return domain.RehydratePromoRule(
		domain.RuleID(id),
		gid,
		name,
		domain.PromoType(promoType),
		kits,
		condition,
		giftQty,
		catalogdomain.KitID(giftKit),
		period,
		platform,
		createdAt,
	), nil
}

func kitStrings(kits []catalogdomain.KitID) []string {
	out := make([]string, len(kits))
	for i, k := range kits {
		out[i] = string(k)
	}
	return out
}
