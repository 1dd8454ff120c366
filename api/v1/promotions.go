package v1

import (
	"fmt"
	"net/http"
	"time"

	promodomain "orderops/internal/promotion/domain"
)

type promoRequest struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	TargetKitIDs []string `json:"target_kit_ids"`
	ConditionQty int      `json:"condition_qty"`
	GiftQty      int      `json:"gift_qty"`
	GiftKitID    string   `json:"gift_kit_id"`
	StartDate    string   `json:"start_date"`
	EndDate      string   `json:"end_date"`
	Platform     string   `json:"platform"`
}

type promoResponse struct {
	ID           int64     `json:"id"`
	GroupID      string    `json:"group_id"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	TargetKitIDs []string  `json:"target_kit_ids"`
	ConditionQty int       `json:"condition_qty"`
	GiftQty      int       `json:"gift_qty"`
	GiftKitID    string    `json:"gift_kit_id,omitempty"`
	StartDate    string    `json:"start_date"`
	EndDate      string    `json:"end_date"`
	Platform     string    `json:"platform,omitempty"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

func toPromoResponse(p *promodomain.PromoRule, now time.Time) promoResponse {
	targets := make([]string, 0, len(p.Targets()))
	for _, t := range p.Targets() {
		targets = append(targets, t.String())
	}
	return promoResponse{
		ID:           int64(p.ID()),
		GroupID:      p.GroupID().String(),
		Name:         p.Name(),
		Type:         string(p.Type()),
		TargetKitIDs: targets,
		ConditionQty: p.ConditionQty(),
		GiftQty:      p.GiftQty(),
		GiftKitID:    p.GiftKitID().String(),
		StartDate:    p.Period().Start().Format(time.DateOnly),
		EndDate:      p.Period().End().Format(time.DateOnly),
		Platform:     p.Platform(),
		Status:       string(p.StatusAt(now)),
		CreatedAt:    p.CreatedAt(),
	}
}

// ListPromotions handler pour GET /api/v1/promotions?date=2006-01-02
// ou ?from=&to= pour les promotions qui recoupent une période.
// Sans paramètre: promotions actives aujourd'hui.
func (h *Handlers) ListPromotions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	at := time.Now()

	var (
		rules []*promodomain.PromoRule
		err   error
	)
	switch {
	case q.Get("from") != "" || q.Get("to") != "":
		rules, err = h.promotions.ListInPeriod(r.Context(), q.Get("from"), q.Get("to"))
	case q.Get("date") != "":
		d, perr := time.ParseInLocation(time.DateOnly, q.Get("date"), h.loc)
		if perr != nil {
			h.writeError(w, r, fmt.Errorf("%w: invalid date %q", errBadRequest, q.Get("date")))
			return
		}
		at = d
		rules, err = h.promotions.ListActive(r.Context(), at)
	default:
		rules, err = h.promotions.ListActive(r.Context(), at)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]promoResponse, 0, len(rules))
	for _, p := range rules {
		out = append(out, toPromoResponse(p, at))
	}
	h.writeJSON(w, http.StatusOK, out)
}

// CreatePromotion handler pour POST /api/v1/promotions
func (h *Handlers) CreatePromotion(w http.ResponseWriter, r *http.Request) {
	var req promoRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	rule, err := h.promotions.Create(r.Context(), promodomain.PromoRuleInput{
		Name:         req.Name,
		Type:         promodomain.PromoType(req.Type),
		TargetKitIDs: req.TargetKitIDs,
		ConditionQty: req.ConditionQty,
		GiftQty:      req.GiftQty,
		GiftKitID:    req.GiftKitID,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		Platform:     req.Platform,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toPromoResponse(rule, time.Now()))
}

// DeletePromotion handler pour DELETE /api/v1/promotions/{id}
func (h *Handlers) DeletePromotion(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.promotions.Delete(r.Context(), promodomain.RuleID(id)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ApplyPromotions handler pour POST /api/v1/promotions/apply
// Les cadeaux sont enregistrés en brouillon; rejouer l'appel ne crée pas de doublon.
func (h *Handlers) ApplyPromotions(w http.ResponseWriter, r *http.Request) {
	report, err := h.promotions.ApplyPending(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}
