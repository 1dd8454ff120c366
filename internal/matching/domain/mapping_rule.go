package domain

import (
	"errors"
	"strings"
	"time"

	catalogdomain "orderops/internal/catalog/domain"
)

// RuleID représente l'identifiant d'une règle de mapping
type RuleID int64

// KeyKind indique sur quel attribut de la ligne la règle s'applique
type KeyKind string

const (
	KeyIdentifier KeyKind = "IDENTIFIER"
	KeyMasterCode KeyKind = "MASTER_CODE"
	KeySiteCode   KeyKind = "SITE_CODE"
)

// Valid vérifie que le type de clé est connu
func (k KeyKind) Valid() bool {
	return k == KeyIdentifier || k == KeyMasterCode || k == KeySiteCode
}

var (
	ErrEmptyIdentifier = errors.New("raw identifier cannot be empty")
	ErrUnknownKeyKind  = errors.New("unknown rule key kind")
	ErrRuleExists      = errors.New("rule for this identifier already exists")
	ErrRuleNotFound    = errors.New("mapping rule not found")
	ErrUnknownKit      = errors.New("kit is not known to the catalog")
)

// MappingRule traduit un identifiant brut en kit.
// (kind, rawIdentifier) est la clé naturelle: un upsert remplace le kit.
type MappingRule struct {
	id            RuleID
	kind          KeyKind
	rawIdentifier string
	canonicalKey  CanonicalKey
	kitID         catalogdomain.KitID
	createdAt     time.Time
	updatedAt     time.Time
}

// NewMappingRule crée une règle et calcule sa clé de recherche
func NewMappingRule(n *Normalizer, kind KeyKind, rawIdentifier, kitID string) (*MappingRule, error) {
	if kind == "" {
		kind = KeyIdentifier
	}
	if !kind.Valid() {
		return nil, ErrUnknownKeyKind
	}
	kit, err := catalogdomain.NewKitID(kitID)
	if err != nil {
		return nil, err
	}
	key := LookupKey(n, kind, rawIdentifier)
	if key.IsEmpty() {
		return nil, ErrEmptyIdentifier
	}

	return &MappingRule{
		kind:          kind,
		rawIdentifier: strings.TrimSpace(rawIdentifier),
		canonicalKey:  key,
		kitID:         kit,
	}, nil
}

// RehydrateMappingRule reconstruit une règle lue en base
func RehydrateMappingRule(
	id RuleID,
	kind KeyKind,
	rawIdentifier string,
	canonicalKey CanonicalKey,
	kitID catalogdomain.KitID,
	createdAt, updatedAt time.Time,
) *MappingRule {
	return &MappingRule{
		id:            id,
		kind:          kind,
		rawIdentifier: rawIdentifier,
		canonicalKey:  canonicalKey,
		kitID:         kitID,
		createdAt:     createdAt,
		updatedAt:     updatedAt,
	}
}

// LookupKey calcule la clé de recherche pour un type de règle.
// Les identifiants texte sont normalisés; les codes sont seulement trimés.
func LookupKey(n *Normalizer, kind KeyKind, raw string) CanonicalKey {
	if kind == KeyIdentifier {
		return n.Normalize(raw, "")
	}
	code := strings.TrimSpace(raw)
	if code == "" {
		return EmptyKey
	}
	return CanonicalKey(code)
}

// ID retourne l'identifiant de la règle
func (r *MappingRule) ID() RuleID { return r.id }

// Kind retourne le type de clé
func (r *MappingRule) Kind() KeyKind { return r.kind }

// RawIdentifier retourne l'identifiant tel que saisi
func (r *MappingRule) RawIdentifier() string { return r.rawIdentifier }

// CanonicalKey retourne la clé de recherche
func (r *MappingRule) CanonicalKey() CanonicalKey { return r.canonicalKey }

// KitID retourne le kit cible
func (r *MappingRule) KitID() catalogdomain.KitID { return r.kitID }

// CreatedAt retourne la date de création
func (r *MappingRule) CreatedAt() time.Time { return r.createdAt }

// UpdatedAt retourne la date de dernière modification
func (r *MappingRule) UpdatedAt() time.Time { return r.updatedAt }
