package domain

import (
	"fmt"
	"strings"

	catalogdomain "orderops/internal/catalog/domain"
	"orderops/internal/shared/domain"
)

// WarningKind classe les anomalies relevées pendant l'import
type WarningKind string

const (
	// WarnBoundMismatch: l'en-tête annonce un emplacement au-delà de MaxSlots
	WarnBoundMismatch WarningKind = "BOUND_MISMATCH"
	// WarnOutOfBoundData: une cellule code est remplie au-delà de MaxSlots
	WarnOutOfBoundData WarningKind = "OUT_OF_BOUND_DATA"
	// WarnEmptyKit: ligne sans kit mais avec des produits
	WarnEmptyKit WarningKind = "EMPTY_KIT"
	// WarnDefaultedQuantity: quantité absente ou invalide remplacée par 1
	WarnDefaultedQuantity WarningKind = "DEFAULTED_QUANTITY"
	// WarnNameWithoutCode: nom produit renseigné sans code, inexploitable
	WarnNameWithoutCode WarningKind = "NAME_WITHOUT_CODE"
	// WarnQuantityOverflow: la fusion d'un doublon dépasserait la quantité maximale
	WarnQuantityOverflow WarningKind = "QUANTITY_OVERFLOW"
)

// Warning est une anomalie non bloquante; Row et Column sont indexés à partir de 0
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Row     int         `json:"row"`
	Column  int         `json:"column"`
	Slot    int         `json:"slot,omitempty"`
	Message string      `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s row=%d col=%d slot=%d: %s", w.Kind, w.Row, w.Column, w.Slot, w.Message)
}

// ImportStats compte chaque cellule code lue et ce qu'elle est devenue.
// SourceCells == Derived + MergedDuplicates + EmptyKitCells + OutOfBoundCells
type ImportStats struct {
	DataRows            int `json:"data_rows"`
	KitRows             int `json:"kit_rows"`
	SourceCells         int `json:"source_cells"`
	Derived             int `json:"derived"`
	MergedDuplicates    int `json:"merged_duplicates"`
	EmptyKitRows        int `json:"empty_kit_rows"`
	EmptyKitCells       int `json:"empty_kit_cells"`
	OutOfBoundCells     int `json:"out_of_bound_cells"`
	DefaultedQuantities int `json:"defaulted_quantities"`
	NameOnlyCells       int `json:"name_only_cells"`
	KitsWithoutItems    int `json:"kits_without_items"`
	HeaderMismatches    int `json:"header_mismatches"`
}

// ParsedItem est une ligne de BOM dérivée de la feuille
type ParsedItem struct {
	KitID     catalogdomain.KitID
	ProductID catalogdomain.ProductID
	Quantity  domain.Quantity
}

// ImportResult est le résultat complet d'un parsing
type ImportResult struct {
	Items    []ParsedItem
	Stats    ImportStats
	Warnings []Warning
}

// KitIDs retourne les kits distincts dérivés, dans l'ordre de première apparition
func (r ImportResult) KitIDs() []catalogdomain.KitID {
	seen := make(map[catalogdomain.KitID]struct{})
	var ids []catalogdomain.KitID
	for _, it := range r.Items {
		if _, ok := seen[it.KitID]; ok {
			continue
		}
		seen[it.KitID] = struct{}{}
		ids = append(ids, it.KitID)
	}
	return ids
}

// Importer transforme les lignes brutes de la feuille BOM en lignes normalisées
type Importer struct {
	layout *CompiledLayout
}

// NewImporter crée un importer; une disposition nil utilise la disposition par défaut
func NewImporter(layout *CompiledLayout) *Importer {
	if layout == nil {
		layout = MustCompileDefault()
	}
	return &Importer{layout: layout}
}

type itemKey struct {
	kit     catalogdomain.KitID
	product catalogdomain.ProductID
}

// Parse lit toutes les lignes de la feuille (en-têtes compris).
// Les anomalies sont comptées et signalées, jamais fatales.
func (im *Importer) Parse(rows [][]string) ImportResult {
	var res ImportResult
	l := im.layout.layout
	bound := im.layout.BoundColumn()

	if l.HeaderRow < len(rows) {
		res.Warnings = append(res.Warnings, im.checkHeader(rows[l.HeaderRow], bound)...)
		res.Stats.HeaderMismatches = len(res.Warnings)
	}

	index := make(map[itemKey]int)
	for r := l.DataStartRow; r < len(rows); r++ {
		row := rows[r]
		if isBlankRow(row) {
			continue
		}
		res.Stats.DataRows++

		kit := catalogdomain.KitID(strings.TrimSpace(cell(row, l.KitColumn)))
		if kit.IsEmpty() {
			im.countEmptyKitRow(&res, r, row)
			continue
		}
		res.Stats.KitRows++

		derived := 0
		for _, slot := range im.layout.slots {
			code := strings.TrimSpace(cell(row, slot.CodeOffset))
			if code == "" {
				if strings.TrimSpace(cell(row, slot.NameOffset)) != "" {
					res.Stats.NameOnlyCells++
					res.Warnings = append(res.Warnings, Warning{
						Kind: WarnNameWithoutCode, Row: r, Column: slot.NameOffset, Slot: slot.Index,
						Message: fmt.Sprintf("kit %s has a product name without code", kit),
					})
				}
				continue
			}
			res.Stats.SourceCells++
			derived++

			qty, defaulted := domain.ParseQuantityOrDefault(cell(row, slot.QtyOffset), domain.MustNewQuantity(1))
			if defaulted {
				res.Stats.DefaultedQuantities++
				res.Warnings = append(res.Warnings, Warning{
					Kind: WarnDefaultedQuantity, Row: r, Column: slot.QtyOffset, Slot: slot.Index,
					Message: fmt.Sprintf("quantity %q for %s/%s defaulted to 1", cell(row, slot.QtyOffset), kit, code),
				})
			}

			key := itemKey{kit: kit, product: catalogdomain.ProductID(code)}
			if i, ok := index[key]; ok {
				sum, err := res.Items[i].Quantity.Add(qty)
				if err != nil {
					// le doublon est compté fusionné, la quantité déjà retenue reste
					res.Warnings = append(res.Warnings, Warning{
						Kind: WarnQuantityOverflow, Row: r, Column: slot.QtyOffset, Slot: slot.Index,
						Message: fmt.Sprintf("merged quantity for %s/%s exceeds %d, kept %d",
							kit, code, domain.MaxQuantity, res.Items[i].Quantity.Value()),
					})
				} else {
					res.Items[i].Quantity = sum
				}
				res.Stats.MergedDuplicates++
				continue
			}
			index[key] = len(res.Items)
			res.Items = append(res.Items, ParsedItem{KitID: kit, ProductID: key.product, Quantity: qty})
			res.Stats.Derived++
		}

		for c := bound; c < len(row); c++ {
			slot, ok := im.layout.slotAt(c)
			if !ok || strings.TrimSpace(row[c]) == "" {
				continue
			}
			res.Stats.SourceCells++
			res.Stats.OutOfBoundCells++
			res.Warnings = append(res.Warnings, Warning{
				Kind: WarnOutOfBoundData, Row: r, Column: c, Slot: slot,
				Message: fmt.Sprintf("kit %s has data in slot %d beyond the %d configured slots", kit, slot, l.MaxSlots),
			})
		}

		if derived == 0 {
			res.Stats.KitsWithoutItems++
		}
	}
	return res
}

func (im *Importer) checkHeader(header []string, bound int) []Warning {
	var warnings []Warning
	marker := im.layout.layout.HeaderMarker
	for c := bound; c < len(header); c++ {
		if marker == "" || !strings.Contains(header[c], marker) {
			continue
		}
		slot := (c-im.layout.layout.BaseColumn)/im.layout.layout.Stride + 1
		warnings = append(warnings, Warning{
			Kind: WarnBoundMismatch, Row: im.layout.layout.HeaderRow, Column: c, Slot: slot,
			Message: fmt.Sprintf("header %q found past the last configured slot (%d)", strings.TrimSpace(header[c]), im.layout.layout.MaxSlots),
		})
	}
	return warnings
}

// countEmptyKitRow comptabilise toutes les cellules code d'une ligne sans kit
func (im *Importer) countEmptyKitRow(res *ImportResult, r int, row []string) {
	cells := 0
	for c := im.layout.layout.BaseColumn; c < len(row); c++ {
		if _, ok := im.layout.slotAt(c); ok && strings.TrimSpace(row[c]) != "" {
			cells++
		}
	}
	if cells == 0 {
		return
	}
	res.Stats.EmptyKitRows++
	res.Stats.EmptyKitCells += cells
	res.Stats.SourceCells += cells
	res.Warnings = append(res.Warnings, Warning{
		Kind: WarnEmptyKit, Row: r, Column: im.layout.layout.KitColumn,
		Message: fmt.Sprintf("row without kit id carries %d product cell(s), excluded", cells),
	})
}

func cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return row[col]
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
