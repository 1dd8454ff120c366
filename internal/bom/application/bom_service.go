package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"orderops/internal/bom/domain"
	catalogdomain "orderops/internal/catalog/domain"
	shareddomain "orderops/internal/shared/domain"
)

// BomStore persistance des nomenclatures
type BomStore interface {
	UpsertItems(ctx context.Context, items []domain.ParsedItem) (int, error)
	ReplaceKits(ctx context.Context, items []domain.ParsedItem) (int, error)
	Expand(ctx context.Context, kit catalogdomain.KitID) ([]domain.BomLine, error)
	AddItem(ctx context.Context, item *domain.BomItem) (*domain.BomItem, error)
	UpdateMultiplier(ctx context.Context, item *domain.BomItem) error
	RemoveItem(ctx context.Context, kit catalogdomain.KitID, product catalogdomain.ProductID) error
	KitsWithoutBom(ctx context.Context, limit int) ([]domain.KitWithoutBom, error)
}

// maxLoggedWarnings limite le bruit dans les logs; le rapport garde tout
const maxLoggedWarnings = 20

// ImportReport résultat d'un import de feuille BOM
type ImportReport struct {
	Stats    domain.ImportStats    `json:"stats"`
	Warnings []domain.Warning      `json:"warnings"`
	KitIDs   []catalogdomain.KitID `json:"kit_ids"`
	Written  int                   `json:"written"`
	Replaced bool                  `json:"replaced"`
	Duration time.Duration         `json:"duration_ns"`
}

// ProductLookup lecture des produits ERP (nom, stock)
type ProductLookup interface {
	FindProduct(ctx context.Context, id catalogdomain.ProductID) (*catalogdomain.Product, error)
}

// BomService import et éclatement des nomenclatures
type BomService struct {
	store    BomStore
	products ProductLookup
	importer *domain.Importer
	logger   *zap.Logger
}

// NewBomService crée une nouvelle instance de BomService
func NewBomService(store BomStore, layout *domain.CompiledLayout, logger *zap.Logger) *BomService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BomService{
		store:    store,
		importer: domain.NewImporter(layout),
		logger:   logger,
	}
}

// Import parse la feuille puis écrit les lignes dérivées.
// Les défauts d'entrée sont comptés et rapportés; seule une erreur du store est fatale.
func (s *BomService) Import(ctx context.Context, rows [][]string, replace bool) (*ImportReport, error) {
	start := time.Now()
	res := s.importer.Parse(rows)

	for i, w := range res.Warnings {
		if i == maxLoggedWarnings {
			s.logger.Warn("more BOM import warnings omitted", zap.Int("total", len(res.Warnings)))
			break
		}
		s.logger.Warn("BOM import defect",
			zap.String("kind", string(w.Kind)),
			zap.Int("row", w.Row),
			zap.Int("column", w.Column),
			zap.Int("slot", w.Slot),
			zap.String("detail", w.Message))
	}

	write := s.store.UpsertItems
	if replace {
		write = s.store.ReplaceKits
	}
	written, err := write(ctx, res.Items)
	if err != nil {
		return nil, fmt.Errorf("import BOM: %w", err)
	}

	report := &ImportReport{
		Stats:    res.Stats,
		Warnings: res.Warnings,
		KitIDs:   res.KitIDs(),
		Written:  written,
		Replaced: replace,
		Duration: time.Since(start),
	}
	s.logger.Info("BOM import completed",
		zap.Int("source_cells", res.Stats.SourceCells),
		zap.Int("derived", res.Stats.Derived),
		zap.Int("merged", res.Stats.MergedDuplicates),
		zap.Int("empty_kit_cells", res.Stats.EmptyKitCells),
		zap.Int("out_of_bound_cells", res.Stats.OutOfBoundCells),
		zap.Int("kits", len(report.KitIDs)),
		zap.Int("written", written),
		zap.Duration("duration", report.Duration))
	return report, nil
}

// Expand retourne la composition d'un kit (quantités > 0, triées par produit)
func (s *BomService) Expand(ctx context.Context, rawKit string) ([]domain.BomLine, error) {
	kit, err := catalogdomain.NewKitID(rawKit)
	if err != nil {
		return nil, err
	}
	return s.store.Expand(ctx, kit)
}

// ExpandOrder éclate une quantité commandée d'un kit en quantités produits
func (s *BomService) ExpandOrder(ctx context.Context, rawKit string, qty int) ([]domain.BomLine, error) {
	q, err := shareddomain.NewQuantity(qty)
	if err != nil {
		return nil, err
	}
	lines, err := s.Expand(ctx, rawKit)
	if err != nil {
		return nil, err
	}
	return domain.Explode(lines, q.Value()), nil
}

// WithProducts branche le catalogue ERP utilisé par ExpandWithStock
func (s *BomService) WithProducts(products ProductLookup) *BomService {
	s.products = products
	return s
}

// StockLine ligne d'éclatement enrichie du produit ERP.
// Known est faux si le SKU n'existe pas dans le catalogue.
type StockLine struct {
	SKU       catalogdomain.ProductID `json:"sku"`
	Quantity  int                     `json:"quantity"`
	Known     bool                    `json:"known"`
	Name      string                  `json:"name,omitempty"`
	Spec      string                  `json:"spec,omitempty"`
	Available int                     `json:"available"`
	Shortage  int                     `json:"shortage"`
}

// ExpandWithStock éclate une commande de qty kits et compare chaque besoin au stock ERP
func (s *BomService) ExpandWithStock(ctx context.Context, rawKit string, qty int) ([]StockLine, error) {
	if s.products == nil {
		return nil, errors.New("product catalog not configured")
	}
	lines, err := s.ExpandOrder(ctx, rawKit, qty)
	if err != nil {
		return nil, err
	}

	out := make([]StockLine, 0, len(lines))
	for _, l := range lines {
		line := StockLine{SKU: l.SKU, Quantity: l.Quantity, Shortage: l.Quantity}
		p, err := s.products.FindProduct(ctx, l.SKU)
		if err != nil {
			return nil, fmt.Errorf("find product %s: %w", l.SKU, err)
		}
		if p != nil {
			line.Known = true
			line.Name = p.Name()
			line.Spec = p.Spec()
			line.Available = p.BalanceQty()
			line.Shortage = max(0, l.Quantity-p.BalanceQty())
		}
		out = append(out, line)
	}
	return out, nil
}

// AddItem ajoute un produit à un kit
func (s *BomService) AddItem(ctx context.Context, kit, product string, qty int) (*domain.BomItem, error) {
	item, err := newItem(kit, product, qty)
	if err != nil {
		return nil, err
	}
	return s.store.AddItem(ctx, item)
}

// UpdateMultiplier change la quantité d'un produit dans un kit
func (s *BomService) UpdateMultiplier(ctx context.Context, kit, product string, qty int) error {
	item, err := newItem(kit, product, qty)
	if err != nil {
		return err
	}
	return s.store.UpdateMultiplier(ctx, item)
}

// RemoveItem retire un produit d'un kit
func (s *BomService) RemoveItem(ctx context.Context, kit, product string) error {
	item, err := newItem(kit, product, 1)
	if err != nil {
		return err
	}
	return s.store.RemoveItem(ctx, item.KitID(), item.ProductID())
}

// KitsWithoutBom rapporte les kits rapprochés sans nomenclature (anomalie, pas une erreur)
func (s *BomService) KitsWithoutBom(ctx context.Context, limit int) ([]domain.KitWithoutBom, error) {
	kits, err := s.store.KitsWithoutBom(ctx, limit)
	if err != nil {
		return nil, err
	}
	if len(kits) > 0 {
		s.logger.Warn("matched kits without BOM", zap.Int("kits", len(kits)))
	}
	return kits, nil
}

func newItem(kit, product string, qty int) (*domain.BomItem, error) {
	k, err := catalogdomain.NewKitID(kit)
	if err != nil {
		return nil, err
	}
	return domain.NewBomItem(k, catalogdomain.ProductID(strings.TrimSpace(product)), qty)
}

// IsValidationError vérifie si err provient d'une saisie invalide
func IsValidationError(err error) bool {
	return errors.Is(err, catalogdomain.ErrEmptyKitID) ||
		errors.Is(err, domain.ErrEmptyProductID) ||
		errors.Is(err, shareddomain.ErrNonPositiveQuantity)
}
