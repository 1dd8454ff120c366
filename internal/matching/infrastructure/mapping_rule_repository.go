package infrastructure

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	catalogdomain "orderops/internal/catalog/domain"
	"orderops/internal/matching/domain"
	"orderops/internal/shared/infrastructure"
)

// MappingRuleRepository repository des règles de mapping (cm_raw_mapping_rules)
type MappingRuleRepository struct {
	infrastructure.BaseRepository
}

// NewMappingRuleRepository crée un nouveau repository de règles
func NewMappingRuleRepository(db *sql.DB) *MappingRuleRepository {
	return &MappingRuleRepository{
		BaseRepository: infrastructure.NewBaseRepository(db),
	}
}

const ruleColumns = `rule_id, key_kind, raw_identifier, canonical_key, kit_id, created_at, updated_at`

// Upsert crée ou remplace la règle sur sa clé naturelle (key_kind, raw_identifier).
// Deux upserts concurrents sont sérialisés par Postgres: le dernier écrit gagne.
func (r *MappingRuleRepository) Upsert(ctx context.Context, rule *domain.MappingRule) (*domain.MappingRule, error) {
	query := `
		INSERT INTO cm_raw_mapping_rules (key_kind, raw_identifier, canonical_key, kit_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (key_kind, raw_identifier)
		DO UPDATE SET kit_id = EXCLUDED.kit_id,
		              canonical_key = EXCLUDED.canonical_key,
		              updated_at = NOW()
		RETURNING ` + ruleColumns

	row := r.QueryRow(ctx, query,
		string(rule.Kind()), rule.RawIdentifier(), string(rule.CanonicalKey()), string(rule.KitID()))
	saved, err := scanRule(row)
	if err != nil {
		return nil, fmt.Errorf("upsert mapping rule %q: %w", rule.RawIdentifier(), err)
	}
	return saved, nil
}

// Create insère une règle et échoue avec ErrRuleExists si la clé existe déjà
func (r *MappingRuleRepository) Create(ctx context.Context, rule *domain.MappingRule) (*domain.MappingRule, error) {
	query := `
		INSERT INTO cm_raw_mapping_rules (key_kind, raw_identifier, canonical_key, kit_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (key_kind, raw_identifier) DO NOTHING
		RETURNING ` + ruleColumns

	row := r.QueryRow(ctx, query,
		string(rule.Kind()), rule.RawIdentifier(), string(rule.CanonicalKey()), string(rule.KitID()))
	saved, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRuleExists
	}
	if err != nil {
		return nil, fmt.Errorf("create mapping rule %q: %w", rule.RawIdentifier(), err)
	}
	return saved, nil
}

// UpdateKit change le kit cible d'une règle existante
func (r *MappingRuleRepository) UpdateKit(ctx context.Context, id domain.RuleID, kit catalogdomain.KitID) (*domain.MappingRule, error) {
	query := `
		UPDATE cm_raw_mapping_rules
		SET kit_id = $1, updated_at = NOW()
		WHERE rule_id = $2
		RETURNING ` + ruleColumns

	saved, err := scanRule(r.QueryRow(ctx, query, string(kit), int64(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRuleNotFound
	}
	return saved, err
}

// Delete supprime une règle (action opérateur uniquement)
func (r *MappingRuleRepository) Delete(ctx context.Context, id domain.RuleID) error {
	res, err := r.Exec(ctx, `DELETE FROM cm_raw_mapping_rules WHERE rule_id = $1`, int64(id))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrRuleNotFound
	}
	return nil
}

// List retourne une page de règles (plus récentes d'abord) et le total filtré
func (r *MappingRuleRepository) List(ctx context.Context, page, limit int, search string) ([]*domain.MappingRule, int, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + search + "%"

	total, err := r.Count(ctx, `
		SELECT COUNT(*) FROM cm_raw_mapping_rules
		WHERE $1 = '' OR raw_identifier ILIKE $2 OR kit_id ILIKE $2
	`, search, pattern)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM cm_raw_mapping_rules
		WHERE $1 = '' OR raw_identifier ILIKE $2 OR kit_id ILIKE $2
		ORDER BY created_at DESC, rule_id DESC
		LIMIT $3 OFFSET $4
	`, search, pattern, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	rules, err := scanRules(rows)
	if err != nil {
		return nil, 0, err
	}
	return rules, total, nil
}

// Snapshot charge toutes les règles dans un RuleSet pour une passe de résolution
func (r *MappingRuleRepository) Snapshot(ctx context.Context) (*domain.RuleSet, error) {
	rows, err := r.Query(ctx, `SELECT `+ruleColumns+` FROM cm_raw_mapping_rules WHERE kit_id IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("load mapping rules: %w", err)
	}
	defer rows.Close()

	rules, err := scanRules(rows)
	if err != nil {
		return nil, fmt.Errorf("load mapping rules: %w", err)
	}
	return domain.NewRuleSet(rules), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*domain.MappingRule, error) {
	var (
		id        int64
		kind      string
		raw       string
		key       string
		kit       sql.NullString
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&id, &kind, &raw, &key, &kit, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	return domain.RehydrateMappingRule(
		domain.RuleID(id),
		domain.KeyKind(kind),
		raw,
		domain.CanonicalKey(key),
		catalogdomain.KitID(kit.String),
		createdAt,
		updatedAt,
	), nil
}

func scanRules(rows *sql.Rows) ([]*domain.MappingRule, error) {
	var rules []*domain.MappingRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}
