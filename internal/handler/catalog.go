package handler

import (
	"net/http"

	"github.com/go-faster/errors"

	"github.com/uzpos/kassa/internal/domain/catalog"
)

// searchProducts runs a keyword search. An empty keyword returns an empty
// list (the terminal clears its results); keywords of one to three characters
// return 204 and the terminal keeps whatever it was showing.
func (h *Handler) searchProducts(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.Search(r.Context(), r.URL.Query().Get("keyword"))
	if err != nil {
		if errors.Is(err, catalog.ErrKeywordTooShort) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeItems(items))
}

// scanBarcode resolves a scanned barcode to catalog items. Codes the bloom
// filter has definitely never seen come back empty without a backend call.
func (h *Handler) scanBarcode(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.Scan(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeItems(items))
}
