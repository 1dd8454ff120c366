package v1

import (
	"net/http"
	"time"

	matchingapp "orderops/internal/matching/application"
	matchingdomain "orderops/internal/matching/domain"
	ordersdomain "orderops/internal/orders/domain"
)

type ruleRequest struct {
	Kind          string `json:"kind"`
	RawIdentifier string `json:"raw_identifier"`
	KitID         string `json:"kit_id"`
}

// kind vide: règle sur l'identifiant normalisé
func (req ruleRequest) keyKind() matchingdomain.KeyKind {
	if req.Kind == "" {
		return matchingdomain.KeyIdentifier
	}
	return matchingdomain.KeyKind(req.Kind)
}

type ruleResponse struct {
	ID            int64     `json:"id"`
	Kind          string    `json:"kind"`
	RawIdentifier string    `json:"raw_identifier"`
	CanonicalKey  string    `json:"canonical_key"`
	KitID         string    `json:"kit_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toRuleResponse(r *matchingdomain.MappingRule) ruleResponse {
	return ruleResponse{
		ID:            int64(r.ID()),
		Kind:          string(r.Kind()),
		RawIdentifier: r.RawIdentifier(),
		CanonicalKey:  displayKey(r.CanonicalKey()),
		KitID:         r.KitID().String(),
		CreatedAt:     r.CreatedAt(),
		UpdatedAt:     r.UpdatedAt(),
	}
}

func displayKey(k matchingdomain.CanonicalKey) string {
	if k.IsEmpty() {
		return ""
	}
	return k.String()
}

// ruleWriteResponse la règle est enregistrée même si warning est renseigné
type ruleWriteResponse struct {
	Rule    ruleResponse               `json:"rule"`
	Rematch *matchingapp.RematchReport `json:"rematch,omitempty"`
	Warning string                     `json:"warning,omitempty"`
}

func toRuleWriteResponse(res *matchingapp.RuleWriteResult) ruleWriteResponse {
	resp := ruleWriteResponse{Rule: toRuleResponse(res.Rule), Rematch: res.Rematch}
	if res.RematchWarning != nil {
		resp.Warning = res.RematchWarning.Error()
	}
	return resp
}

// ListRules handler pour GET /api/v1/rules?page=&limit=&search=
func (h *Handlers) ListRules(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 50)

	rules, total, err := h.matching.ListRules(r.Context(), page, limit, r.URL.Query().Get("search"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	items := make([]ruleResponse, 0, len(rules))
	for _, rule := range rules {
		items = append(items, toRuleResponse(rule))
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"rules": items,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

// CreateRule handler pour POST /api/v1/rules (409 si la clé existe)
func (h *Handlers) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.matching.CreateRule(r.Context(), req.keyKind(), req.RawIdentifier, req.KitID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toRuleWriteResponse(res))
}

// UpsertRule handler pour PUT /api/v1/rules: crée ou remplace le kit de la clé
func (h *Handlers) UpsertRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.matching.AddRule(r.Context(), req.keyKind(), req.RawIdentifier, req.KitID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toRuleWriteResponse(res))
}

// UpdateRuleKit handler pour PATCH /api/v1/rules/{id}
func (h *Handlers) UpdateRuleKit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req struct {
		KitID string `json:"kit_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.matching.UpdateRuleKit(r.Context(), matchingdomain.RuleID(id), req.KitID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toRuleWriteResponse(res))
}

// DeleteRule handler pour DELETE /api/v1/rules/{id}
func (h *Handlers) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.matching.DeleteRule(r.Context(), matchingdomain.RuleID(id)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResolvePreview handler pour GET /api/v1/resolve?text=&site=&master_code=&site_product_code=
// Aucune écriture: montre la clé canonique et le kit qui serait retenu.
func (h *Handlers) ResolvePreview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, key, err := h.matching.Preview(r.Context(), q.Get("text"), q.Get("site"), q.Get("master_code"), q.Get("site_product_code"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"canonical_key": displayKey(key),
		"matched":       res.Matched(),
		"kit_id":        res.KitID.String(),
		"tier":          res.Tier.String(),
	})
}

// Rematch handler pour POST /api/v1/rematch
func (h *Handlers) Rematch(w http.ResponseWriter, r *http.Request) {
	report, err := h.matching.Rematch(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

type orderLineRequest struct {
	SiteOrderNo       string    `json:"site_order_no"`
	Platform          string    `json:"platform"`
	ProductName       string    `json:"product_name"`
	OptionText        string    `json:"option_text"`
	SiteProductCode   string    `json:"site_product_code"`
	MasterProductCode string    `json:"master_product_code"`
	Quantity          int       `json:"quantity"`
	PaidAt            time.Time `json:"paid_at"`
}

// ImportOrders handler pour POST /api/v1/orders/import (tableau JSON de lignes)
func (h *Handlers) ImportOrders(w http.ResponseWriter, r *http.Request) {
	var req []orderLineRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	inputs := make([]ordersdomain.OrderLineInput, 0, len(req))
	for _, l := range req {
		inputs = append(inputs, ordersdomain.OrderLineInput{
			SiteOrderNo:       l.SiteOrderNo,
			Platform:          l.Platform,
			ProductName:       l.ProductName,
			OptionText:        l.OptionText,
			SiteProductCode:   l.SiteProductCode,
			MasterProductCode: l.MasterProductCode,
			Quantity:          l.Quantity,
			PaidAt:            l.PaidAt,
		})
	}

	report, err := h.matching.ImportOrders(r.Context(), inputs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// MissingRules handler pour GET /api/v1/missing-rules?limit=
func (h *Handlers) MissingRules(w http.ResponseWriter, r *http.Request) {
	missing, err := h.recon.MissingRules(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if missing == nil {
		missing = []ordersdomain.MissingRule{}
	}
	h.writeJSON(w, http.StatusOK, missing)
}
