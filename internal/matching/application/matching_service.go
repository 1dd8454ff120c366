package application

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	catalogdomain "orderops/internal/catalog/domain"
	"orderops/internal/matching/domain"
	ordersdomain "orderops/internal/orders/domain"
)

// RuleStore persistance des règles de mapping
type RuleStore interface {
	Upsert(ctx context.Context, rule *domain.MappingRule) (*domain.MappingRule, error)
	Create(ctx context.Context, rule *domain.MappingRule) (*domain.MappingRule, error)
	UpdateKit(ctx context.Context, id domain.RuleID, kit catalogdomain.KitID) (*domain.MappingRule, error)
	Delete(ctx context.Context, id domain.RuleID) error
	List(ctx context.Context, page, limit int, search string) ([]*domain.MappingRule, int, error)
	Snapshot(ctx context.Context) (*domain.RuleSet, error)
}

// LineStore persistance des lignes de commande
type LineStore interface {
	Insert(ctx context.Context, line *ordersdomain.OrderLine) (ordersdomain.LineID, error)
	FindPending(ctx context.Context, afterID ordersdomain.LineID, limit int) (ordersdomain.LinePage, error)
	UpdateResolution(ctx context.Context, id ordersdomain.LineID, kit catalogdomain.KitID,
		status, expected ordersdomain.ProcessStatus) (bool, error)
}

// KitCatalog vérifie qu'un kit existe dans le catalogue externe
type KitCatalog interface {
	KitExists(ctx context.Context, id catalogdomain.KitID) (bool, error)
}

// Options règle le service de matching
type Options struct {
	// RematchWorkers borne le nombre d'écritures concurrentes d'une passe
	RematchWorkers int
	// PageSize nombre de lignes lues par requête pendant une passe
	PageSize int
}

// MatchingService résout les identifiants bruts en kits et maintient
// l'état résolu des lignes de commande
type MatchingService struct {
	rules      RuleStore
	lines      LineStore
	catalog    KitCatalog
	normalizer *domain.Normalizer
	logger     *zap.Logger
	opts       Options
}

// NewMatchingService crée une nouvelle instance de MatchingService.
// catalog peut être nil: les kits ne sont alors pas vérifiés.
func NewMatchingService(
	rules RuleStore,
	lines LineStore,
	catalog KitCatalog,
	normalizer *domain.Normalizer,
	logger *zap.Logger,
	opts Options,
) *MatchingService {
	if opts.RematchWorkers <= 0 {
		opts.RematchWorkers = 4
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 500
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MatchingService{
		rules:      rules,
		lines:      lines,
		catalog:    catalog,
		normalizer: normalizer,
		logger:     logger,
		opts:       opts,
	}
}

// ResolveLine calcule la résolution d'une ligne contre un instantané de règles
func (s *MatchingService) ResolveLine(rules domain.RuleLookup, line *ordersdomain.OrderLine) domain.Resolution {
	keys := s.normalizer.IdentifierKeys(line.RawIdentifier(), line.Platform())
	return domain.ResolveKeys(rules, keys, line.MasterProductCode(), line.SiteProductCode())
}

// Preview résout un identifiant sans rien écrire
func (s *MatchingService) Preview(ctx context.Context, rawText, siteCode, masterCode, siteProductCode string) (domain.Resolution, domain.CanonicalKey, error) {
	rs, err := s.rules.Snapshot(ctx)
	if err != nil {
		return domain.Unmatched, "", err
	}
	keys := s.normalizer.IdentifierKeys(rawText, siteCode)
	return domain.ResolveKeys(rs, keys, masterCode, siteProductCode), keys[0], nil
}

// RuleWriteResult est le résultat d'une écriture de règle en deux phases:
// la règle est durable dès que Rule est non nil; RematchWarning signale un
// échec non fatal de la passe de rematch qui suit.
type RuleWriteResult struct {
	Rule           *domain.MappingRule
	Rematch        *RematchReport
	RematchWarning error
}

// AddRule crée ou remplace une règle (upsert) puis relance le matching des
// lignes en attente. Seul un échec de la phase 1 est retourné en erreur.
func (s *MatchingService) AddRule(ctx context.Context, kind domain.KeyKind, rawIdentifier, kitID string) (*RuleWriteResult, error) {
	rule, err := s.newRule(ctx, kind, rawIdentifier, kitID)
	if err != nil {
		return nil, err
	}
	saved, err := s.rules.Upsert(ctx, rule)
	if err != nil {
		return nil, err
	}
	return s.afterRuleWrite(ctx, saved), nil
}

// CreateRule crée une règle et refuse les doublons (ErrRuleExists)
func (s *MatchingService) CreateRule(ctx context.Context, kind domain.KeyKind, rawIdentifier, kitID string) (*RuleWriteResult, error) {
	rule, err := s.newRule(ctx, kind, rawIdentifier, kitID)
	if err != nil {
		return nil, err
	}
	saved, err := s.rules.Create(ctx, rule)
	if err != nil {
		return nil, err
	}
	return s.afterRuleWrite(ctx, saved), nil
}

// UpdateRuleKit change le kit d'une règle. Les lignes déjà MATCHED ne sont
// pas re-résolues: seules les lignes en attente profitent du rematch.
func (s *MatchingService) UpdateRuleKit(ctx context.Context, id domain.RuleID, kitID string) (*RuleWriteResult, error) {
	kit, err := s.checkKit(ctx, kitID)
	if err != nil {
		return nil, err
	}
	saved, err := s.rules.UpdateKit(ctx, id, kit)
	if err != nil {
		return nil, err
	}
	return s.afterRuleWrite(ctx, saved), nil
}

// DeleteRule supprime une règle. Les lignes déjà résolues ne changent pas.
func (s *MatchingService) DeleteRule(ctx context.Context, id domain.RuleID) error {
	return s.rules.Delete(ctx, id)
}

// ListRules retourne une page de règles et le total
func (s *MatchingService) ListRules(ctx context.Context, page, limit int, search string) ([]*domain.MappingRule, int, error) {
	return s.rules.List(ctx, page, limit, search)
}

func (s *MatchingService) newRule(ctx context.Context, kind domain.KeyKind, rawIdentifier, kitID string) (*domain.MappingRule, error) {
	kit, err := s.checkKit(ctx, kitID)
	if err != nil {
		return nil, err
	}
	return domain.NewMappingRule(s.normalizer, kind, rawIdentifier, string(kit))
}

func (s *MatchingService) checkKit(ctx context.Context, kitID string) (catalogdomain.KitID, error) {
	kit, err := catalogdomain.NewKitID(kitID)
	if err != nil {
		return "", err
	}
	if s.catalog == nil {
		return kit, nil
	}
	ok, err := s.catalog.KitExists(ctx, kit)
	if err != nil {
		return "", fmt.Errorf("check kit %s: %w", kit, err)
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrUnknownKit, kit)
	}
	return kit, nil
}

// afterRuleWrite est la phase 2: rematch best-effort, échec isolé et rapporté
func (s *MatchingService) afterRuleWrite(ctx context.Context, rule *domain.MappingRule) *RuleWriteResult {
	result := &RuleWriteResult{Rule: rule}

	report, err := s.Rematch(ctx)
	result.Rematch = report
	if err != nil {
		s.logger.Warn("rematch after rule write failed; rule is saved",
			zap.Int64("rule_id", int64(rule.ID())),
			zap.String("raw_identifier", rule.RawIdentifier()),
			zap.Error(err))
		result.RematchWarning = fmt.Errorf("rule saved but rematch failed: %w", err)
	}
	return result
}

// IsValidationError vérifie si err provient d'une entrée opérateur invalide
func IsValidationError(err error) bool {
	return errors.Is(err, domain.ErrEmptyIdentifier) ||
		errors.Is(err, domain.ErrUnknownKeyKind) ||
		errors.Is(err, domain.ErrUnknownKit) ||
		errors.Is(err, catalogdomain.ErrEmptyKitID)
}
