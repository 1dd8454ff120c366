package domain

import (
	"time"

	catalogdomain "orderops/internal/catalog/domain"
)

// Order faits d'une ligne de commande nécessaires à l'évaluation
type Order struct {
	LineID     int64
	Platform   string
	MatchedKit catalogdomain.KitID
	MasterCode string
	Quantity   int
	PaidAt     time.Time
}

// GiftAssignment cadeau attribué à une ligne
type GiftAssignment struct {
	LineID    int64               `json:"order_line_id"`
	RuleID    RuleID              `json:"rule_id"`
	GiftKitID catalogdomain.KitID `json:"gift_kit_id"`
	GiftQty   int                 `json:"gift_qty"`
}

// Applies vérifie toutes les conditions d'une règle pour une commande
func (r *PromoRule) Applies(o Order) bool {
	if o.PaidAt.IsZero() || !r.period.Contains(o.PaidAt) {
		return false
	}
	if r.IsPlatformSpecific() && r.platform != o.Platform {
		return false
	}
	if !r.targetsOrder(o) {
		return false
	}
	return o.Quantity >= r.conditionQty
}

// outranks ordre de priorité entre deux règles applicables:
// site précis avant règle générique, puis la plus récente, puis le plus grand id
func (r *PromoRule) outranks(other *PromoRule) bool {
	if r.IsPlatformSpecific() != other.IsPlatformSpecific() {
		return r.IsPlatformSpecific()
	}
	if !r.createdAt.Equal(other.createdAt) {
		return r.createdAt.After(other.createdAt)
	}
	return r.id > other.id
}

// Select retourne la règle applicable prioritaire, nil si aucune
func Select(o Order, rules []*PromoRule) *PromoRule {
	var best *PromoRule
	for _, r := range rules {
		if !r.Applies(o) {
			continue
		}
		if best == nil || r.outranks(best) {
			best = r
		}
	}
	return best
}

// Resolve attribue au plus un cadeau à une commande. La règle prioritaire
// décide seule: si elle n'offre rien (PRICE_ONLY, quantité nulle), pas de cadeau.
func Resolve(o Order, rules []*PromoRule) (GiftAssignment, bool) {
	best := Select(o, rules)
	if best == nil {
		return GiftAssignment{}, false
	}
	qty := best.giftFor(o.Quantity)
	if qty <= 0 || best.giftKitID.IsEmpty() {
		return GiftAssignment{}, false
	}
	return GiftAssignment{
		LineID:    o.LineID,
		RuleID:    best.id,
		GiftKitID: best.giftKitID,
		GiftQty:   qty,
	}, true
}
