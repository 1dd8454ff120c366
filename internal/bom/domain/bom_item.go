package domain

import (
	"errors"

	catalogdomain "orderops/internal/catalog/domain"
	"orderops/internal/shared/domain"
)

var (
	ErrEmptyBom        = errors.New("kit has no BOM definition")
	ErrBomItemExists   = errors.New("item already exists in this kit")
	ErrBomItemNotFound = errors.New("BOM item not found")
	ErrEmptyProductID  = errors.New("product id cannot be empty")
)

// BomItemID identifiant technique d'une ligne de BOM
type BomItemID int64

// BomItem est une ligne de nomenclature: un kit contient Quantity fois ProductID
type BomItem struct {
	id        BomItemID
	kitID     catalogdomain.KitID
	productID catalogdomain.ProductID
	quantity  domain.Quantity
}

// NewBomItem crée une ligne de BOM validée
func NewBomItem(kit catalogdomain.KitID, product catalogdomain.ProductID, qty int) (*BomItem, error) {
	if kit.IsEmpty() {
		return nil, catalogdomain.ErrEmptyKitID
	}
	if product.IsEmpty() {
		return nil, ErrEmptyProductID
	}
	q, err := domain.NewQuantity(qty)
	if err != nil {
		return nil, err
	}
	return &BomItem{kitID: kit, productID: product, quantity: q}, nil
}

// RehydrateBomItem reconstruit une ligne lue en base
func RehydrateBomItem(id BomItemID, kit catalogdomain.KitID, product catalogdomain.ProductID, qty int) (*BomItem, error) {
	item, err := NewBomItem(kit, product, qty)
	if err != nil {
		return nil, err
	}
	item.id = id
	return item, nil
}

// ID retourne l'identifiant technique
func (b *BomItem) ID() BomItemID { return b.id }

// KitID retourne le kit
func (b *BomItem) KitID() catalogdomain.KitID { return b.kitID }

// ProductID retourne le produit
func (b *BomItem) ProductID() catalogdomain.ProductID { return b.productID }

// Quantity retourne le multiplicateur (> 0)
func (b *BomItem) Quantity() domain.Quantity { return b.quantity }

// BomLine est une ligne d'éclatement: (sku, quantité)
type BomLine struct {
	SKU      catalogdomain.ProductID `json:"sku"`
	Quantity int                     `json:"quantity"`
}

// Explode multiplie une BOM par une quantité commandée
func Explode(lines []BomLine, ordered int) []BomLine {
	out := make([]BomLine, len(lines))
	for i, l := range lines {
		out[i] = BomLine{SKU: l.SKU, Quantity: l.Quantity * ordered}
	}
	return out
}

// KitWithoutBom kit référencé par des commandes rapprochées mais sans BOM
type KitWithoutBom struct {
	KitID      catalogdomain.KitID `json:"kit_id"`
	OrderLines int                 `json:"order_lines"`
}
