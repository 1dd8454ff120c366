package domain

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// CanonicalKey est la forme comparable d'un identifiant marketplace brut
type CanonicalKey string

// EmptyKey est la sentinelle des identifiants vides. Elle contient un octet NUL,
// que Normalize retire toujours: aucune clé réelle ne peut lui être égale.
const EmptyKey CanonicalKey = "\x00empty"

// IsEmpty vérifie si la clé est la sentinelle vide
func (k CanonicalKey) IsEmpty() bool {
	return k == EmptyKey || k == ""
}

// String retourne la clé brute
func (k CanonicalKey) String() string {
	return string(k)
}

// Décorations promotionnelles entre crochets: [특가], 【1+1】, <사은품>
var bracketTag = regexp.MustCompile(`\[[^\]]*\]|【[^】]*】|〔[^〕]*〕|<[^>]*>`)

// Normalizer canonise les identifiants bruts. Il est immuable après construction
// et peut être partagé entre goroutines.
type Normalizer struct {
	siteDecorations map[string][]*regexp.Regexp
}

// NewNormalizer compile les motifs de décoration propres à chaque site.
// Les clés de la map sont des codes de site, comparés après repli de casse.
func NewNormalizer(siteDecorations map[string][]string) (*Normalizer, error) {
	n := &Normalizer{siteDecorations: make(map[string][]*regexp.Regexp, len(siteDecorations))}
	for site, patterns := range siteDecorations {
		key := foldSite(site)
		for _, p := range patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("site %q decoration %q: %w", site, p, err)
			}
			n.siteDecorations[key] = append(n.siteDecorations[key], re)
		}
	}
	return n, nil
}

// Normalize retourne la clé canonique de rawText pour le site siteCode.
// Pur et déterministe: NFKC, suppression des décorations, repli de casse
// Unicode indépendant de la locale, espaces compactés.
func (n *Normalizer) Normalize(rawText, siteCode string) CanonicalKey {
	s := norm.NFKC.String(rawText)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
	s = bracketTag.ReplaceAllString(s, " ")

	if n != nil {
		for _, re := range n.siteDecorations[foldSite(siteCode)] {
			s = re.ReplaceAllString(s, " ")
		}
	}

	s = cases.Fold().String(s)
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return EmptyKey
	}
	return CanonicalKey(s)
}

// IdentifierKeys retourne les clés à essayer pour une ligne du site siteCode:
// la clé sans décorations du site, puis la clé sans site si elle diffère.
// Une règle saisie telle que la marketplace l'écrit est normalisée sans site
// et garde donc la décoration.
func (n *Normalizer) IdentifierKeys(rawText, siteCode string) []CanonicalKey {
	key := n.Normalize(rawText, siteCode)
	if strings.TrimSpace(siteCode) == "" {
		return []CanonicalKey{key}
	}
	plain := n.Normalize(rawText, "")
	if plain == key || plain.IsEmpty() {
		return []CanonicalKey{key}
	}
	return []CanonicalKey{key, plain}
}

func foldSite(site string) string {
	return cases.Fold().String(strings.TrimSpace(site))
}
