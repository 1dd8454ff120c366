package domain

import (
	"errors"
	"strings"
	"time"

	catalogdomain "orderops/internal/catalog/domain"
	"orderops/internal/shared/domain"
)

// LineID représente l'identifiant unique d'une ligne de commande importée
type LineID int64

// ProcessStatus représente l'état de traitement d'une ligne.
// La valeur vide correspond au NULL en base: ligne jamais tentée.
type ProcessStatus string

const (
	StatusNew         ProcessStatus = ""
	StatusUnmatched   ProcessStatus = "UNMATCHED"
	StatusMatched     ProcessStatus = "MATCHED"
	StatusGiftApplied ProcessStatus = "GIFT_APPLIED"
	StatusDone        ProcessStatus = "DONE"
)

// NeedsProcessing est le prédicat "à traiter": nouvelles lignes et lignes
// déjà tentées sans règle. Les lignes UNMATCHED restent rematchables.
func (s ProcessStatus) NeedsProcessing() bool {
	return s == StatusNew || s == StatusUnmatched
}

// CarriesKit indique si le statut implique un matched_kit_id non nul
func (s ProcessStatus) CarriesKit() bool {
	return s == StatusMatched || s == StatusGiftApplied || s == StatusDone
}

// Valid vérifie que le statut fait partie de l'énumération
func (s ProcessStatus) Valid() bool {
	switch s {
	case StatusNew, StatusUnmatched, StatusMatched, StatusGiftApplied, StatusDone:
		return true
	}
	return false
}

var (
	ErrEmptyIdentifier    = errors.New("order line has neither option text nor product name")
	ErrEmptySiteOrderNo   = errors.New("site order number cannot be empty")
	ErrInconsistentStatus = errors.New("matched_kit_id must be set iff status carries a kit")
	ErrAlreadyProcessed   = errors.New("order line already processed")
)

// LineDefect ligne illisible écartée d'une page de lecture
type LineDefect struct {
	ID     LineID `json:"id"`
	Reason string `json:"reason"`
}

// LinePage page de lignes lue par clé. Rows compte aussi les lignes écartées,
// LastID est le plus grand id lu: la page suivante commence après.
type LinePage struct {
	Lines   []*OrderLine
	Defects []LineDefect
	LastID  LineID
	Rows    int
}

// OrderLine représente une ligne importée depuis un export marketplace (aggregate root)
type OrderLine struct {
	id                LineID
	siteOrderNo       string
	platform          string
	productName       string
	optionText        string
	siteProductCode   string
	masterProductCode string
	quantity          domain.Quantity
	paidAt            time.Time
	matchedKit        catalogdomain.KitID
	status            ProcessStatus
}

// OrderLineInput regroupe les champs bruts d'une ligne à importer
type OrderLineInput struct {
	SiteOrderNo       string
	Platform          string
	ProductName       string
	OptionText        string
	SiteProductCode   string
	MasterProductCode string
	Quantity          int
	PaidAt            time.Time
}

// NewOrderLine crée une nouvelle ligne (statut NEW) avec validation
func NewOrderLine(in OrderLineInput) (*OrderLine, error) {
	if strings.TrimSpace(in.SiteOrderNo) == "" {
		return nil, ErrEmptySiteOrderNo
	}
	if strings.TrimSpace(in.OptionText) == "" && strings.TrimSpace(in.ProductName) == "" &&
		strings.TrimSpace(in.SiteProductCode) == "" && strings.TrimSpace(in.MasterProductCode) == "" {
		return nil, ErrEmptyIdentifier
	}
	qty, err := domain.NewQuantity(in.Quantity)
	if err != nil {
		return nil, err
	}

	return &OrderLine{
		siteOrderNo:       strings.TrimSpace(in.SiteOrderNo),
		platform:          strings.TrimSpace(in.Platform),
		productName:       in.ProductName,
		optionText:        in.OptionText,
		siteProductCode:   strings.TrimSpace(in.SiteProductCode),
		masterProductCode: strings.TrimSpace(in.MasterProductCode),
		quantity:          qty,
		paidAt:            in.PaidAt,
		status:            StatusNew,
	}, nil
}

// RehydrateOrderLine reconstruit une ligne depuis la base
func RehydrateOrderLine(
	id LineID,
	in OrderLineInput,
	matchedKit catalogdomain.KitID,
	status ProcessStatus,
) (*OrderLine, error) {
	if !status.Valid() {
		return nil, errors.New("unknown process status: " + string(status))
	}
	if status.NeedsProcessing() {
		// Ancien matcher: kit posé sans statut. La ligne reste à traiter et
		// le prochain rematch réécrit le kit.
		matchedKit = ""
	} else if matchedKit.IsEmpty() {
		return nil, ErrInconsistentStatus
	}
	qty := in.Quantity
	if qty <= 0 {
		// Les exports anciens contiennent des qty NULL; la ligne compte pour 1
		qty = 1
	}
	return &OrderLine{
		id:                id,
		siteOrderNo:       in.SiteOrderNo,
		platform:          in.Platform,
		productName:       in.ProductName,
		optionText:        in.OptionText,
		siteProductCode:   in.SiteProductCode,
		masterProductCode: in.MasterProductCode,
		quantity:          domain.MustNewQuantity(qty),
		paidAt:            in.PaidAt,
		matchedKit:        matchedKit,
		status:            status,
	}, nil
}

// ID retourne l'identifiant de la ligne
func (l *OrderLine) ID() LineID { return l.id }

// SiteOrderNo retourne le numéro de commande marketplace
func (l *OrderLine) SiteOrderNo() string { return l.siteOrderNo }

// Platform retourne le code du site (marketplace)
func (l *OrderLine) Platform() string { return l.platform }

// ProductName retourne le nom de produit brut
func (l *OrderLine) ProductName() string { return l.productName }

// OptionText retourne le texte d'option brut
func (l *OrderLine) OptionText() string { return l.optionText }

// SiteProductCode retourne le code produit propre au site
func (l *OrderLine) SiteProductCode() string { return l.siteProductCode }

// MasterProductCode retourne le code produit maître (peut être vide)
func (l *OrderLine) MasterProductCode() string { return l.masterProductCode }

// Quantity retourne la quantité commandée
func (l *OrderLine) Quantity() domain.Quantity { return l.quantity }

// PaidAt retourne la date de paiement
func (l *OrderLine) PaidAt() time.Time { return l.paidAt }

// MatchedKit retourne le kit associé (vide si non matché)
func (l *OrderLine) MatchedKit() catalogdomain.KitID { return l.matchedKit }

// Status retourne le statut de traitement
func (l *OrderLine) Status() ProcessStatus { return l.status }

// RawIdentifier retourne le texte servant de clé de mapping:
// l'option si présente, sinon le nom du produit
func (l *OrderLine) RawIdentifier() string {
	if strings.TrimSpace(l.optionText) != "" {
		return l.optionText
	}
	return l.productName
}

// ApplyMatch associe un kit à une ligne en attente de traitement
func (l *OrderLine) ApplyMatch(kit catalogdomain.KitID) error {
	if kit.IsEmpty() {
		return catalogdomain.ErrEmptyKitID
	}
	if !l.status.NeedsProcessing() {
		return ErrAlreadyProcessed
	}
	l.matchedKit = kit
	l.status = StatusMatched
	return nil
}

// MarkUnmatched enregistre une tentative sans règle sur une ligne NEW.
// Retourne false si la ligne n'est pas NEW (déjà UNMATCHED: aucune écriture nécessaire).
func (l *OrderLine) MarkUnmatched() bool {
	if l.status != StatusNew {
		return false
	}
	l.matchedKit = ""
	l.status = StatusUnmatched
	return true
}

// MissingRule résume un identifiant resté sans règle
type MissingRule struct {
	OptionText   string    `json:"option_text"`
	ProductName  string    `json:"product_name"`
	MissingCount int       `json:"missing_count"`
	FirstSeen    time.Time `json:"first_seen"`
}
