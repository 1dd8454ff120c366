package domain

import (
	"errors"
	"strings"
)

// ProductID représente le code ERP d'un produit unitaire (SKU)
type ProductID string

// String retourne le code brut
func (id ProductID) String() string {
	return string(id)
}

// IsEmpty vérifie si le code est vide après trim
func (id ProductID) IsEmpty() bool {
	return strings.TrimSpace(string(id)) == ""
}

// Product représente un produit ERP (lecture seule pour ce moteur)
type Product struct {
	id         ProductID
	name       string
	spec       string
	balanceQty int
}

// NewProduct crée une nouvelle instance de Product avec validation
func NewProduct(id ProductID, name, spec string, balanceQty int) (*Product, error) {
	if id.IsEmpty() {
		return nil, errors.New("product id cannot be empty")
	}
	if name == "" {
		return nil, errors.New("product name cannot be empty")
	}
	return &Product{
		id:         ProductID(strings.TrimSpace(string(id))),
		name:       name,
		spec:       spec,
		balanceQty: balanceQty,
	}, nil
}

// ID retourne le code du produit
func (p *Product) ID() ProductID {
	return p.id
}

// Name retourne le nom du produit
func (p *Product) Name() string {
	return p.name
}

// Spec retourne la spécification (contenance, couleur...)
func (p *Product) Spec() string {
	return p.spec
}

// BalanceQty retourne le stock ERP courant
func (p *Product) BalanceQty() int {
	return p.balanceQty
}
