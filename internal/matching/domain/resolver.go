package domain

import (
	"strings"

	catalogdomain "orderops/internal/catalog/domain"
)

// Tier indique quel niveau de règle a produit le match
type Tier int

const (
	TierNone Tier = iota
	TierIdentifier
	TierMasterCode
	TierSiteCode
)

// String retourne le nom du niveau
func (t Tier) String() string {
	switch t {
	case TierIdentifier:
		return "identifier"
	case TierMasterCode:
		return "master_code"
	case TierSiteCode:
		return "site_code"
	}
	return "none"
}

// Resolution est le résultat d'une résolution: Matched ou Unmatched
type Resolution struct {
	KitID catalogdomain.KitID
	Tier  Tier
}

// Unmatched est la résolution sans règle
var Unmatched = Resolution{Tier: TierNone}

// Matched vérifie si un kit a été trouvé
func (r Resolution) Matched() bool {
	return r.Tier != TierNone
}

// RuleLookup recherche un kit par type de clé. L'implémentation en mémoire
// (RuleSet) ne peut pas échouer, ce qui rend Resolve total.
type RuleLookup interface {
	Lookup(kind KeyKind, key CanonicalKey) (catalogdomain.KitID, bool)
}

// Resolve applique les niveaux dans l'ordre, le premier trouvé gagne:
// clé canonique, puis code maître, puis code produit du site.
func Resolve(rules RuleLookup, key CanonicalKey, masterCode, siteProductCode string) Resolution {
	return ResolveKeys(rules, []CanonicalKey{key}, masterCode, siteProductCode)
}

// ResolveKeys comme Resolve, avec plusieurs clés identifiant essayées dans
// l'ordre au premier niveau
func ResolveKeys(rules RuleLookup, keys []CanonicalKey, masterCode, siteProductCode string) Resolution {
	for _, key := range keys {
		if key.IsEmpty() {
			continue
		}
		if kit, ok := rules.Lookup(KeyIdentifier, key); ok {
			return Resolution{KitID: kit, Tier: TierIdentifier}
		}
	}
	if code := strings.TrimSpace(masterCode); code != "" {
		if kit, ok := rules.Lookup(KeyMasterCode, CanonicalKey(code)); ok {
			return Resolution{KitID: kit, Tier: TierMasterCode}
		}
	}
	if code := strings.TrimSpace(siteProductCode); code != "" {
		if kit, ok := rules.Lookup(KeySiteCode, CanonicalKey(code)); ok {
			return Resolution{KitID: kit, Tier: TierSiteCode}
		}
	}
	return Unmatched
}

// RuleSet est un instantané en mémoire des règles, construit pour une passe
// de résolution puis jeté.
type RuleSet struct {
	byKind map[KeyKind]map[CanonicalKey]*MappingRule
	size   int
}

// NewRuleSet indexe les règles. Si plusieurs règles d'un même type partagent
// une clé, la plus récemment modifiée gagne (puis le plus grand id).
func NewRuleSet(rules []*MappingRule) *RuleSet {
	rs := &RuleSet{byKind: make(map[KeyKind]map[CanonicalKey]*MappingRule, 3)}
	for _, r := range rules {
		rs.Add(r)
	}
	return rs
}

// Add ajoute une règle à l'instantané
func (rs *RuleSet) Add(r *MappingRule) {
	if r == nil || r.canonicalKey.IsEmpty() {
		return
	}
	m, ok := rs.byKind[r.kind]
	if !ok {
		m = make(map[CanonicalKey]*MappingRule)
		rs.byKind[r.kind] = m
	}
	cur, exists := m[r.canonicalKey]
	if !exists {
		rs.size++
		m[r.canonicalKey] = r
		return
	}
	if r.updatedAt.After(cur.updatedAt) || (r.updatedAt.Equal(cur.updatedAt) && r.id > cur.id) {
		m[r.canonicalKey] = r
	}
}

// Lookup implémente RuleLookup
func (rs *RuleSet) Lookup(kind KeyKind, key CanonicalKey) (catalogdomain.KitID, bool) {
	r, ok := rs.byKind[kind][key]
	if !ok {
		return "", false
	}
	return r.kitID, true
}

// Len retourne le nombre de clés distinctes indexées
func (rs *RuleSet) Len() int {
	return rs.size
}
