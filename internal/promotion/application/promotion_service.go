package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	ordersdomain "orderops/internal/orders/domain"
	"orderops/internal/promotion/domain"
	shareddomain "orderops/internal/shared/domain"
)

// PromoStore persistance des promotions et des cadeaux
type PromoStore interface {
	Create(ctx context.Context, rule *domain.PromoRule) (*domain.PromoRule, error)
	Delete(ctx context.Context, id domain.RuleID) error
	ListActive(ctx context.Context, at time.Time) ([]*domain.PromoRule, error)
	ListAll(ctx context.Context) ([]*domain.PromoRule, error)
	ListOverlapping(ctx context.Context, from, to time.Time) ([]*domain.PromoRule, error)
	RecordGifts(ctx context.Context, gifts []domain.GiftAssignment) (int, error)
}

// LineSource lecture paginée des lignes de commande par statut
type LineSource interface {
	FindByStatus(ctx context.Context, status ordersdomain.ProcessStatus, afterID ordersdomain.LineID, limit int) (ordersdomain.LinePage, error)
}

// ApplyReport résultat d'une passe d'attribution des cadeaux
type ApplyReport struct {
	Rules    int           `json:"rules"`
	Scanned  int           `json:"scanned"`
	Assigned int           `json:"assigned"`
	Recorded int           `json:"recorded"`
	Existing int           `json:"already_recorded"`
	Defects  int           `json:"defects"`
	Duration time.Duration `json:"duration_ns"`
}

// PromotionService gestion des promotions et attribution des cadeaux en brouillon
type PromotionService struct {
	store    PromoStore
	lines    LineSource
	loc      *time.Location
	logger   *zap.Logger
	pageSize int
	now      func() time.Time
}

// NewPromotionService crée une nouvelle instance de PromotionService
func NewPromotionService(store PromoStore, lines LineSource, loc *time.Location, logger *zap.Logger) *PromotionService {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PromotionService{
		store:    store,
		lines:    lines,
		loc:      loc,
		logger:   logger,
		pageSize: 500,
		now:      time.Now,
	}
}

// Create valide puis enregistre une promotion
func (s *PromotionService) Create(ctx context.Context, in domain.PromoRuleInput) (*domain.PromoRule, error) {
	rule, err := domain.NewPromoRule(in, s.loc)
	if err != nil {
		return nil, err
	}
	saved, err := s.store.Create(ctx, rule)
	if err != nil {
		return nil, err
	}
	s.logger.Info("promotion created",
		zap.Int64("rule_id", int64(saved.ID())),
		zap.String("group_id", saved.GroupID().String()),
		zap.String("type", string(saved.Type())))
	return saved, nil
}

// Delete supprime une promotion
func (s *PromotionService) Delete(ctx context.Context, id domain.RuleID) error {
	return s.store.Delete(ctx, id)
}

// ListActive retourne les promotions actives au jour de at (maintenant si zéro)
func (s *PromotionService) ListActive(ctx context.Context, at time.Time) ([]*domain.PromoRule, error) {
	if at.IsZero() {
		at = s.now()
	}
	return s.store.ListActive(ctx, at)
}

// ListInPeriod retourne les promotions dont la période recoupe [from, to]
// (dates "2006-01-02" dans le fuseau des promotions)
func (s *PromotionService) ListInPeriod(ctx context.Context, from, to string) ([]*domain.PromoRule, error) {
	period, err := shareddomain.ParseDateRange(from, to, s.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: period: %v", domain.ErrInvalidPromo, err)
	}
	return s.store.ListOverlapping(ctx, period.Start(), period.End())
}

// ApplyPending évalue toutes les lignes MATCHED contre les promotions et
// enregistre les cadeaux en brouillon. Rejouable sans doublon.
func (s *PromotionService) ApplyPending(ctx context.Context) (*ApplyReport, error) {
	start := time.Now()
	rules, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load promotions: %w", err)
	}
	report := &ApplyReport{Rules: len(rules)}
	if len(rules) == 0 {
		return report, nil
	}

	var after ordersdomain.LineID
	for {
		page, err := s.lines.FindByStatus(ctx, ordersdomain.StatusMatched, after, s.pageSize)
		if err != nil {
			return report, fmt.Errorf("read matched lines: %w", err)
		}
		if page.Rows == 0 {
			break
		}
		report.Defects += len(page.Defects)
		for _, d := range page.Defects {
			s.logger.Warn("unreadable order line skipped",
				zap.Int64("line_id", int64(d.ID)), zap.String("reason", d.Reason))
		}

		var gifts []domain.GiftAssignment
		for _, line := range page.Lines {
			report.Scanned++
			if gift, ok := domain.Resolve(OrderFromLine(line), rules); ok {
				gifts = append(gifts, gift)
			}
		}
		n, err := s.store.RecordGifts(ctx, gifts)
		if err != nil {
			return report, fmt.Errorf("record gifts: %w", err)
		}
		report.Assigned += len(gifts)
		report.Recorded += n

		after = page.LastID
		if page.Rows < s.pageSize {
			break
		}
	}

	report.Existing = report.Assigned - report.Recorded
	report.Duration = time.Since(start)
	s.logger.Info("promotions applied",
		zap.Int("rules", report.Rules),
		zap.Int("scanned", report.Scanned),
		zap.Int("assigned", report.Assigned),
		zap.Int("recorded", report.Recorded),
		zap.Int("defects", report.Defects),
		zap.Duration("duration", report.Duration))
	return report, nil
}

// OrderFromLine extrait les faits utiles à l'évaluation d'une ligne
func OrderFromLine(line *ordersdomain.OrderLine) domain.Order {
	return domain.Order{
		LineID:     int64(line.ID()),
		Platform:   line.Platform(),
		MatchedKit: line.MatchedKit(),
		MasterCode: line.MasterProductCode(),
		Quantity:   line.Quantity().Value(),
		PaidAt:     line.PaidAt(),
	}
}

// IsValidationError distingue une saisie invalide d'une erreur technique
func IsValidationError(err error) bool {
	return errors.Is(err, domain.ErrInvalidPromo) || errors.Is(err, domain.ErrUnknownPromoType)
}
