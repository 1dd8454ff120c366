package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	catalogdomain "orderops/internal/catalog/domain"
	shareddomain "orderops/internal/shared/domain"
)

var (
	ErrInvalidPromo     = errors.New("invalid promotion rule")
	ErrPromoNotFound    = errors.New("promotion rule not found")
	ErrUnknownPromoType = errors.New("unknown promotion type")
)

// RuleID identifiant d'une règle promotionnelle
type RuleID int64

// PromoType mode de calcul du cadeau
type PromoType string

const (
	// PriceOnly remise tarifaire, aucun cadeau
	PriceOnly PromoType = "PRICE_ONLY"
	// QuantityBased gift_qty par tranche complète de condition_qty
	QuantityBased PromoType = "Q_BASED"
	// AllGift gift_qty fixe dès que le seuil est atteint
	AllGift PromoType = "ALL_GIFT"
)

// Valid vérifie que le type est connu
func (t PromoType) Valid() bool {
	switch t {
	case PriceOnly, QuantityBased, AllGift:
		return true
	}
	return false
}

// Status état d'une règle par rapport à une date
type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusActive    Status = "ACTIVE"
	StatusEnded     Status = "ENDED"
)

// PromoRuleInput données saisies pour créer une règle
type PromoRuleInput struct {
	Name         string
	Type         PromoType
	TargetKitIDs []string
	ConditionQty int
	GiftQty      int
	GiftKitID    string
	StartDate    string
	EndDate      string
	Platform     string
}

// PromoRule règle promotionnelle: sur une période et éventuellement un site,
// l'achat d'un kit cible au-delà d'un seuil donne droit à un cadeau
type PromoRule struct {
	id           RuleID
	groupID      uuid.UUID
	name         string
	promoType    PromoType
	targets      []catalogdomain.KitID
	conditionQty int
	giftQty      int
	giftKitID    catalogdomain.KitID
	period       shareddomain.DateRange
	platform     string
	createdAt    time.Time
}

// NewPromoRule valide une saisie. Les dates sont des jours "2006-01-02" dans loc.
func NewPromoRule(in PromoRuleInput, loc *time.Location) (*PromoRule, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidPromo)
	}

	promoType := in.Type
	if promoType == "" {
		promoType = QuantityBased
	}
	if !promoType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPromoType, in.Type)
	}

	var targets []catalogdomain.KitID
	for _, raw := range in.TargetKitIDs {
		if kit, err := catalogdomain.NewKitID(raw); err == nil {
			targets = append(targets, kit)
		}
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: at least one target kit is required", ErrInvalidPromo)
	}

	gift := catalogdomain.KitID(strings.TrimSpace(in.GiftKitID))
	if promoType != PriceOnly && gift.IsEmpty() {
		return nil, fmt.Errorf("%w: gift kit is required", ErrInvalidPromo)
	}

	period, err := shareddomain.ParseDateRange(in.StartDate, in.EndDate, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: period: %v", ErrInvalidPromo, err)
	}

	condition := in.ConditionQty
	if condition <= 0 {
		condition = 1
	}
	if in.GiftQty < 0 {
		return nil, fmt.Errorf("%w: gift quantity cannot be negative", ErrInvalidPromo)
	}

	return &PromoRule{
		groupID:      uuid.New(),
		name:         name,
		promoType:    promoType,
		targets:      targets,
		conditionQty: condition,
		giftQty:      in.GiftQty,
		giftKitID:    gift,
		period:       period,
		platform:     strings.TrimSpace(in.Platform),
	}, nil
}

// RehydratePromoRule reconstruit une règle lue en base
func RehydratePromoRule(
	id RuleID,
	groupID uuid.UUID,
	name string,
	promoType PromoType,
	targets []catalogdomain.KitID,
	conditionQty, giftQty int,
	giftKitID catalogdomain.KitID,
	period shareddomain.DateRange,
	platform string,
	createdAt time.Time,
) *PromoRule {
	if conditionQty <= 0 {
		conditionQty = 1
	}
	return &PromoRule{
		id:           id,
		groupID:      groupID,
		name:         name,
		promoType:    promoType,
		targets:      targets,
		conditionQty: conditionQty,
		giftQty:      giftQty,
		giftKitID:    giftKitID,
		period:       period,
		platform:     platform,
		createdAt:    createdAt,
	}
}

// ID retourne l'identifiant
func (r *PromoRule) ID() RuleID {
	return r.id
}

// GroupID retourne le groupe de la promotion
func (r *PromoRule) GroupID() uuid.UUID {
	return r.groupID
}

// Name retourne le nom
func (r *PromoRule) Name() string {
	return r.name
}

// Type retourne le type de calcul
func (r *PromoRule) Type() PromoType {
	return r.promoType
}

// Targets retourne les kits ciblés
func (r *PromoRule) Targets() []catalogdomain.KitID {
	return r.targets
}

// ConditionQty retourne le seuil de quantité
func (r *PromoRule) ConditionQty() int {
	return r.conditionQty
}

// GiftQty retourne la quantité offerte par tranche
func (r *PromoRule) GiftQty() int {
	return r.giftQty
}

// GiftKitID retourne le kit offert
func (r *PromoRule) GiftKitID() catalogdomain.KitID {
	return r.giftKitID
}

// Period retourne la période de validité
func (r *PromoRule) Period() shareddomain.DateRange {
	return r.period
}

// Platform retourne le site visé, vide pour tous
func (r *PromoRule) Platform() string {
	return r.platform
}

// CreatedAt retourne la date de création
func (r *PromoRule) CreatedAt() time.Time {
	return r.createdAt
}

// IsPlatformSpecific vérifie si la règle vise un site précis
func (r *PromoRule) IsPlatformSpecific() bool {
	return r.platform != ""
}

// StatusAt situe la règle par rapport à l'instant t
func (r *PromoRule) StatusAt(t time.Time) Status {
	switch {
	case r.period.Contains(t):
		return StatusActive
	case t.Before(r.period.Start()):
		return StatusScheduled
	default:
		return StatusEnded
	}
}

// targetsOrder vérifie si la commande vise la règle: kit rapproché ou code maître
func (r *PromoRule) targetsOrder(o Order) bool {
	for _, k := range r.targets {
		if !o.MatchedKit.IsEmpty() && k == o.MatchedKit {
			return true
		}
		if o.MasterCode != "" && string(k) == o.MasterCode {
			return true
		}
	}
	return false
}

// giftFor calcule la quantité offerte; 0 si la règle n'offre rien
func (r *PromoRule) giftFor(qty int) int {
	switch r.promoType {
	case QuantityBased:
		return r.giftQty * (qty / r.conditionQty)
	case AllGift:
		return r.giftQty
	default:
		return 0
	}
}
