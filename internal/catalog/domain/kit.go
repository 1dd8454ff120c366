package domain

import (
	"errors"
	"strings"
)

// ErrEmptyKitID est retournée quand un identifiant de kit est vide
var ErrEmptyKitID = errors.New("kit id cannot be empty")

// KitID identifie une unité vendable composée de produits ERP.
// Les kits appartiennent au catalogue externe: ce moteur les référence sans les créer.
type KitID string

// NewKitID valide et nettoie un identifiant de kit
func NewKitID(raw string) (KitID, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrEmptyKitID
	}
	return KitID(s), nil
}

// String retourne l'identifiant brut
func (id KitID) String() string {
	return string(id)
}

// IsEmpty vérifie si l'identifiant est vide
func (id KitID) IsEmpty() bool {
	return strings.TrimSpace(string(id)) == ""
}
