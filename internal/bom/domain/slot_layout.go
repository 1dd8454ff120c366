package domain

import (
	"errors"
	"fmt"
)

// Disposition observée de la feuille "품목코드_DB": l'en-tête est la 3e ligne,
// les données commencent à la 4e; chaque ligne porte un kit en colonne 0 puis
// jusqu'à 10 triplets (code, nom, quantité) à partir de la colonne 2.
const (
	DefaultKitColumn    = 0
	DefaultBaseColumn   = 2
	DefaultSlotStride   = 3
	DefaultMaxSlots     = 10
	DefaultHeaderRow    = 2
	DefaultDataStartRow = 3
	DefaultHeaderMarker = "품목코드"
)

// SlotLayout décrit la structure de la feuille BOM. Tout changement de format
// se règle ici (ou dans le fichier YAML équivalent), jamais dans le parseur.
type SlotLayout struct {
	KitColumn    int    `yaml:"kit_column"`
	BaseColumn   int    `yaml:"base_column"`
	Stride       int    `yaml:"stride"`
	MaxSlots     int    `yaml:"max_slots"`
	HeaderRow    int    `yaml:"header_row"`
	DataStartRow int    `yaml:"data_start_row"`
	HeaderMarker string `yaml:"header_marker"`
}

// DefaultSlotLayout retourne la disposition observée
func DefaultSlotLayout() SlotLayout {
	return SlotLayout{
		KitColumn:    DefaultKitColumn,
		BaseColumn:   DefaultBaseColumn,
		Stride:       DefaultSlotStride,
		MaxSlots:     DefaultMaxSlots,
		HeaderRow:    DefaultHeaderRow,
		DataStartRow: DefaultDataStartRow,
		HeaderMarker: DefaultHeaderMarker,
	}
}

// SlotDescriptor donne les colonnes d'un emplacement produit (Index à partir de 1)
type SlotDescriptor struct {
	Index      int
	CodeOffset int
	NameOffset int
	QtyOffset  int
}

// CompiledLayout est une disposition validée, prête pour le parseur
type CompiledLayout struct {
	layout SlotLayout
	slots  []SlotDescriptor
}

var ErrInvalidLayout = errors.New("invalid BOM slot layout")

// Compile valide la disposition une fois et calcule les descripteurs
func (l SlotLayout) Compile() (*CompiledLayout, error) {
	switch {
	case l.MaxSlots <= 0:
		return nil, fmt.Errorf("%w: max_slots must be positive", ErrInvalidLayout)
	case l.Stride < 3:
		return nil, fmt.Errorf("%w: stride must hold code, name and quantity", ErrInvalidLayout)
	case l.KitColumn < 0 || l.BaseColumn < 0:
		return nil, fmt.Errorf("%w: negative column", ErrInvalidLayout)
	case l.KitColumn >= l.BaseColumn:
		return nil, fmt.Errorf("%w: kit column must precede the first slot", ErrInvalidLayout)
	case l.HeaderRow < 0 || l.DataStartRow <= l.HeaderRow:
		return nil, fmt.Errorf("%w: data must start after the header row", ErrInvalidLayout)
	}

	slots := make([]SlotDescriptor, l.MaxSlots)
	for i := range slots {
		code := l.BaseColumn + i*l.Stride
		slots[i] = SlotDescriptor{
			Index:      i + 1,
			CodeOffset: code,
			NameOffset: code + 1,
			QtyOffset:  code + 2,
		}
	}
	return &CompiledLayout{layout: l, slots: slots}, nil
}

// MustCompileDefault compile la disposition par défaut
func MustCompileDefault() *CompiledLayout {
	c, err := DefaultSlotLayout().Compile()
	if err != nil {
		panic(err)
	}
	return c
}

// Layout retourne la disposition source
func (c *CompiledLayout) Layout() SlotLayout {
	return c.layout
}

// Slots retourne une copie des descripteurs
func (c *CompiledLayout) Slots() []SlotDescriptor {
	return append([]SlotDescriptor(nil), c.slots...)
}

// BoundColumn est la première colonne après le dernier emplacement configuré
func (c *CompiledLayout) BoundColumn() int {
	return c.layout.BaseColumn + c.layout.MaxSlots*c.layout.Stride
}

// slotAt retourne l'index (à partir de 1) de l'emplacement dont col serait
// la colonne code, et false si col n'est pas une position de code
func (c *CompiledLayout) slotAt(col int) (int, bool) {
	rel := col - c.layout.BaseColumn
	if rel < 0 || rel%c.layout.Stride != 0 {
		return 0, false
	}
	return rel/c.layout.Stride + 1, true
}
