package v1

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	bomapp "orderops/internal/bom/application"
	bomdomain "orderops/internal/bom/domain"
	catalogdomain "orderops/internal/catalog/domain"
	exportdomain "orderops/internal/export/domain"
	matchingapp "orderops/internal/matching/application"
	matchingdomain "orderops/internal/matching/domain"
	ordersdomain "orderops/internal/orders/domain"
	promoapp "orderops/internal/promotion/application"
	promodomain "orderops/internal/promotion/domain"
	reconapp "orderops/internal/reconciliation/application"
	recondomain "orderops/internal/reconciliation/domain"
)

// Matcher règles de mapping, résolution et rematch
type Matcher interface {
	AddRule(ctx context.Context, kind matchingdomain.KeyKind, rawIdentifier, kitID string) (*matchingapp.RuleWriteResult, error)
	CreateRule(ctx context.Context, kind matchingdomain.KeyKind, rawIdentifier, kitID string) (*matchingapp.RuleWriteResult, error)
	UpdateRuleKit(ctx context.Context, id matchingdomain.RuleID, kitID string) (*matchingapp.RuleWriteResult, error)
	DeleteRule(ctx context.Context, id matchingdomain.RuleID) error
	ListRules(ctx context.Context, page, limit int, search string) ([]*matchingdomain.MappingRule, int, error)
	Preview(ctx context.Context, rawText, siteCode, masterCode, siteProductCode string) (matchingdomain.Resolution, matchingdomain.CanonicalKey, error)
	Rematch(ctx context.Context) (*matchingapp.RematchReport, error)
	ImportOrders(ctx context.Context, inputs []ordersdomain.OrderLineInput) (*matchingapp.ImportOrdersReport, error)
}

// BomManager import, édition et éclatement des nomenclatures
type BomManager interface {
	Import(ctx context.Context, rows [][]string, replace bool) (*bomapp.ImportReport, error)
	Expand(ctx context.Context, rawKit string) ([]bomdomain.BomLine, error)
	ExpandOrder(ctx context.Context, rawKit string, qty int) ([]bomdomain.BomLine, error)
	ExpandWithStock(ctx context.Context, rawKit string, qty int) ([]bomapp.StockLine, error)
	AddItem(ctx context.Context, kit, product string, qty int) (*bomdomain.BomItem, error)
	UpdateMultiplier(ctx context.Context, kit, product string, qty int) error
	RemoveItem(ctx context.Context, kit, product string) error
	KitsWithoutBom(ctx context.Context, limit int) ([]bomdomain.KitWithoutBom, error)
}

// Reconciler contrôles de cohérence en lecture seule
type Reconciler interface {
	VerifyBomImport(ctx context.Context, stats bomdomain.ImportStats, kits []catalogdomain.KitID) (recondomain.Report, error)
	OrderStatus(ctx context.Context, missingLimit int) (*reconapp.OrderStatusReport, error)
	MissingRules(ctx context.Context, limit int) ([]ordersdomain.MissingRule, error)
}

// Promotions gestion des règles promotionnelles
type Promotions interface {
	Create(ctx context.Context, in promodomain.PromoRuleInput) (*promodomain.PromoRule, error)
	Delete(ctx context.Context, id promodomain.RuleID) error
	ListActive(ctx context.Context, at time.Time) ([]*promodomain.PromoRule, error)
	ListInPeriod(ctx context.Context, from, to string) ([]*promodomain.PromoRule, error)
	ApplyPending(ctx context.Context) (*promoapp.ApplyReport, error)
}

// Exporter écrit un export dans un flux
type Exporter interface {
	Export(ctx context.Context, job *exportdomain.ExportJob, w io.Writer) (int, error)
}

// Handlers contient tous les handlers de l'API V1
type Handlers struct {
	matching   Matcher
	bom        BomManager
	recon      Reconciler
	promotions Promotions
	exports    Exporter
	loc        *time.Location
	logger     *zap.Logger
}

// NewHandlers crée une nouvelle instance des handlers V1
func NewHandlers(
	matching Matcher,
	bom BomManager,
	recon Reconciler,
	promotions Promotions,
	exports Exporter,
	loc *time.Location,
	logger *zap.Logger,
) *Handlers {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		matching:   matching,
		bom:        bom,
		recon:      recon,
		promotions: promotions,
		exports:    exports,
		loc:        loc,
		logger:     logger,
	}
}

// Register déclare toutes les routes V1 sur mux
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/rules", h.ListRules)
	mux.HandleFunc("POST /api/v1/rules", h.CreateRule)
	mux.HandleFunc("PUT /api/v1/rules", h.UpsertRule)
	mux.HandleFunc("PATCH /api/v1/rules/{id}", h.UpdateRuleKit)
	mux.HandleFunc("DELETE /api/v1/rules/{id}", h.DeleteRule)
	mux.HandleFunc("GET /api/v1/resolve", h.ResolvePreview)
	mux.HandleFunc("POST /api/v1/rematch", h.Rematch)
	mux.HandleFunc("POST /api/v1/orders/import", h.ImportOrders)
	mux.HandleFunc("GET /api/v1/missing-rules", h.MissingRules)

	mux.HandleFunc("POST /api/v1/bom/import", h.ImportBom)
	mux.HandleFunc("GET /api/v1/kits/{kit}/bom", h.ExpandKit)
	mux.HandleFunc("GET /api/v1/kits/{kit}/stock", h.KitStock)
	mux.HandleFunc("POST /api/v1/kits/{kit}/bom", h.AddBomItem)
	mux.HandleFunc("PATCH /api/v1/kits/{kit}/bom/{product}", h.UpdateBomItem)
	mux.HandleFunc("DELETE /api/v1/kits/{kit}/bom/{product}", h.RemoveBomItem)
	mux.HandleFunc("GET /api/v1/kits/without-bom", h.KitsWithoutBom)

	mux.HandleFunc("GET /api/v1/reconciliation/orders", h.OrderStatus)

	mux.HandleFunc("GET /api/v1/promotions", h.ListPromotions)
	mux.HandleFunc("POST /api/v1/promotions", h.CreatePromotion)
	mux.HandleFunc("DELETE /api/v1/promotions/{id}", h.DeletePromotion)
	mux.HandleFunc("POST /api/v1/promotions/apply", h.ApplyPromotions)

	mux.HandleFunc("GET /api/v1/export/bom", h.ExportBom)
	mux.HandleFunc("GET /api/v1/export/order-lines", h.ExportOrderLines)
}

// errBadRequest requête mal formée (JSON, paramètre de chemin)
var errBadRequest = errors.New("bad request")

// writeJSON encode directement dans le writer (streaming)
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("encode response", zap.Error(err))
	}
}

// writeError traduit une erreur métier en code HTTP. Les erreurs techniques
// sont journalisées et masquées au client.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		msg = "Internal server error"
	}
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, matchingdomain.ErrRuleNotFound),
		errors.Is(err, bomdomain.ErrEmptyBom),
		errors.Is(err, bomdomain.ErrBomItemNotFound),
		errors.Is(err, promodomain.ErrPromoNotFound):
		return http.StatusNotFound
	case errors.Is(err, matchingdomain.ErrRuleExists),
		errors.Is(err, bomdomain.ErrBomItemExists):
		return http.StatusConflict
	case errors.Is(err, errBadRequest),
		errors.Is(err, exportdomain.ErrInvalidExport),
		matchingapp.IsValidationError(err),
		bomapp.IsValidationError(err),
		promoapp.IsValidationError(err):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", errBadRequest, r.PathValue("id"))
	}
	return id, nil
}

// queryInt lit un entier positif, def sinon
func queryInt(r *http.Request, name string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
