package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MaxQuantity plus grande quantité stockable (colonne INTEGER)
const MaxQuantity = math.MaxInt32

var (
	// ErrNonPositiveQuantity est retournée quand une quantité doit être strictement positive
	ErrNonPositiveQuantity = errors.New("quantity must be greater than zero")
	// ErrQuantityOverflow est retournée quand une quantité dépasse MaxQuantity
	ErrQuantityOverflow = errors.New("quantity exceeds maximum")
)

// Quantity représente une quantité strictement positive (multiplicateur BOM, qté commandée)
type Quantity struct {
	value int
}

// NewQuantity crée une nouvelle instance de Quantity avec validation
func NewQuantity(value int) (Quantity, error) {
	if value <= 0 {
		return Quantity{}, ErrNonPositiveQuantity
	}
	if value > MaxQuantity {
		return Quantity{}, ErrQuantityOverflow
	}
	return Quantity{value: value}, nil
}

// MustNewQuantity crée une Quantity en paniquant si invalide
func MustNewQuantity(value int) Quantity {
	q, err := NewQuantity(value)
	if err != nil {
		panic(fmt.Sprintf("invalid quantity: %v", err))
	}
	return q
}

// ParseQuantityOrDefault lit une cellule de tableur.
// Une cellule vide, non numérique, non entière, < 1 ou > MaxQuantity
// retourne fallback et defaulted=true.
func ParseQuantityOrDefault(cell string, fallback Quantity) (q Quantity, defaulted bool) {
	s := strings.TrimSpace(strings.ReplaceAll(cell, ",", ""))
	if s == "" {
		return fallback, true
	}
	// Les exports tableur écrivent parfois "2.0"
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || f < 1 || f > MaxQuantity {
		return fallback, true
	}
	return Quantity{value: int(f)}, false
}

// Value retourne la valeur
func (q Quantity) Value() int {
	return q.value
}

// Add additionne deux quantités; ErrQuantityOverflow au-delà de MaxQuantity
func (q Quantity) Add(other Quantity) (Quantity, error) {
	if other.value > MaxQuantity-q.value {
		return q, ErrQuantityOverflow
	}
	return Quantity{value: q.value + other.value}, nil
}

// IsZero vérifie si la quantité est la valeur zéro (non initialisée)
func (q Quantity) IsZero() bool {
	return q.value == 0
}
