package handler

import (
	"net/http"

	"github.com/go-faster/jx"
)

func (h *Handler) getRate(w http.ResponseWriter, _ *http.Request) {
	h.writeRate(w)
}

// refreshRate pulls the current rate from the backend. A failed or
// non-positive refresh keeps the previous rate; the response always carries
// the rate in effect.
func (h *Handler) refreshRate(w http.ResponseWriter, r *http.Request) {
	if err := h.conv.Refresh(r.Context(), h.rates); err != nil {
		respondError(w, r, err)
		return
	}
	h.writeRate(w)
}

func (h *Handler) writeRate(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("rate", func(e *jx.Encoder) { e.Float64(h.conv.Rate()) })
		})
	})
}
