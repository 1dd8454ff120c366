package v1

import (
	"fmt"
	"mime"
	"net/http"
	"strconv"

	bomapp "orderops/internal/bom/application"
	bomdomain "orderops/internal/bom/domain"
	bominfra "orderops/internal/bom/infrastructure"
	recondomain "orderops/internal/reconciliation/domain"
)

// maxSheetBytes taille maximale d'une feuille BOM envoyée
const maxSheetBytes = 32 << 20

type bomImportResponse struct {
	Import         *bomapp.ImportReport `json:"import"`
	Reconciliation recondomain.Report   `json:"reconciliation"`
}

// ImportBom handler pour POST /api/v1/bom/import?replace=true
// Le corps est le CSV brut ou un formulaire multipart avec le champ "file".
// La réponse contient le contrôle de cohérence calculé après écriture.
func (h *Handlers) ImportBom(w http.ResponseWriter, r *http.Request) {
	replace, _ := strconv.ParseBool(r.URL.Query().Get("replace"))
	body := http.MaxBytesReader(w, r.Body, maxSheetBytes)

	var rows [][]string
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		r.Body = body
		file, _, err := r.FormFile("file")
		if err != nil {
			h.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
		defer file.Close()
		rows, err = bominfra.ReadSheet(file)
		if err != nil {
			h.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
	} else {
		var err error
		rows, err = bominfra.ReadSheet(body)
		if err != nil {
			h.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
	}

	report, err := h.bom.Import(r.Context(), rows, replace)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	recon, err := h.recon.VerifyBomImport(r.Context(), report.Stats, report.KitIDs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, bomImportResponse{Import: report, Reconciliation: recon})
}

// ExpandKit handler pour GET /api/v1/kits/{kit}/bom?qty=
// Sans qty: composition unitaire. Avec qty: quantités produits pour la commande.
func (h *Handlers) ExpandKit(w http.ResponseWriter, r *http.Request) {
	kit := r.PathValue("kit")

	var (
		lines []bomdomain.BomLine
		err   error
	)
	if raw := r.URL.Query().Get("qty"); raw != "" {
		qty, convErr := strconv.Atoi(raw)
		if convErr != nil {
			h.writeError(w, r, fmt.Errorf("%w: invalid qty %q", errBadRequest, raw))
			return
		}
		lines, err = h.bom.ExpandOrder(r.Context(), kit, qty)
	} else {
		lines, err = h.bom.Expand(r.Context(), kit)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"kit_id": kit,
		"items":  lines,
	})
}

// KitStock handler pour GET /api/v1/kits/{kit}/stock?qty=
// Besoin en produits pour qty kits (1 par défaut) comparé au stock ERP.
func (h *Handlers) KitStock(w http.ResponseWriter, r *http.Request) {
	lines, err := h.bom.ExpandWithStock(r.Context(), r.PathValue("kit"), queryInt(r, "qty", 1))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	shortages := 0
	for _, l := range lines {
		if l.Shortage > 0 {
			shortages++
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"kit_id":    r.PathValue("kit"),
		"items":     lines,
		"shortages": shortages,
	})
}

type bomItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// AddBomItem handler pour POST /api/v1/kits/{kit}/bom
func (h *Handlers) AddBomItem(w http.ResponseWriter, r *http.Request) {
	var req bomItemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	item, err := h.bom.AddItem(r.Context(), r.PathValue("kit"), req.ProductID, req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]any{
		"id":         int64(item.ID()),
		"kit_id":     item.KitID().String(),
		"product_id": item.ProductID().String(),
		"quantity":   item.Quantity().Value(),
	})
}

// UpdateBomItem handler pour PATCH /api/v1/kits/{kit}/bom/{product}
func (h *Handlers) UpdateBomItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.bom.UpdateMultiplier(r.Context(), r.PathValue("kit"), r.PathValue("product"), req.Quantity); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveBomItem handler pour DELETE /api/v1/kits/{kit}/bom/{product}
func (h *Handlers) RemoveBomItem(w http.ResponseWriter, r *http.Request) {
	if err := h.bom.RemoveItem(r.Context(), r.PathValue("kit"), r.PathValue("product")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// KitsWithoutBom handler pour GET /api/v1/kits/without-bom?limit=
func (h *Handlers) KitsWithoutBom(w http.ResponseWriter, r *http.Request) {
	kits, err := h.bom.KitsWithoutBom(r.Context(), queryInt(r, "limit", 100))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if kits == nil {
		kits = []bomdomain.KitWithoutBom{}
	}
	h.writeJSON(w, http.StatusOK, kits)
}
