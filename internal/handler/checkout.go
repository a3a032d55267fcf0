package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-faster/jx"

	"github.com/uzpos/kassa/internal/domain/checkout"
)

// updateDraft replaces the checkout draft fields that are present in the
// body. Absent fields keep their current value; an explicit null client
// deselects the client.
func (h *Handler) updateDraft(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed draft payload")
		return
	}

	// Validate against a copy first so a malformed payload cannot leave the
	// draft half-applied.
	draft := s.Draft()
	if err := decodeDraftInto(body, &draft); err != nil {
		writeError(w, http.StatusBadRequest, "malformed draft payload")
		return
	}
	s.UpdateDraft(func(d *checkout.Draft) { *d = draft })
	h.writeDraft(w, draft)
}

func (h *Handler) getDraft(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.writeDraft(w, s.Draft())
}

// submitOrder runs the full submission flow and returns the receipt
// view-model plus its hand-off token.
func (h *Handler) submitOrder(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	receipt, err := s.Submit(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	token, err := receipt.Token()
	if err != nil {
		respondError(w, r, err)
		return
	}

	receiptJSON, err := json.Marshal(receipt)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.FieldStart("receipt")
			e.Raw(receiptJSON)
			e.Field("token", func(e *jx.Encoder) { e.Str(token) })
		})
	})
}

func (h *Handler) writeDraft(w http.ResponseWriter, d checkout.Draft) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("is_debt", func(e *jx.Encoder) { e.Bool(d.IsDebt) })
			if d.Client != nil {
				e.Field("client", func(e *jx.Encoder) {
					e.Obj(func(e *jx.Encoder) {
						e.Field("id", func(e *jx.Encoder) { e.Str(d.Client.ID) })
						e.Field("name", func(e *jx.Encoder) { e.Str(d.Client.Name) })
					})
				})
			}
			e.Field("discount", func(e *jx.Encoder) { e.Int64(d.DiscountLocal) })
			if d.Comment != "" {
				e.Field("comment", func(e *jx.Encoder) { e.Str(d.Comment) })
			}
		})
	})
}

// decodeDraftInto applies the fields present in body to d.
func decodeDraftInto(body []byte, d *checkout.Draft) error {
	dec := jx.DecodeBytes(body)
	return dec.Obj(func(dec *jx.Decoder, key string) error {
		switch key {
		case "is_debt":
			b, err := dec.Bool()
			d.IsDebt = b
			return err
		case "client":
			if dec.Next() == jx.Null {
				d.Client = nil
				return dec.Null()
			}
			c := &checkout.Client{}
			err := dec.Obj(func(dec *jx.Decoder, key string) error {
				switch key {
				case "id":
					s, err := dec.Str()
					c.ID = s
					return err
				case "name":
					s, err := dec.Str()
					c.Name = s
					return err
				default:
					return dec.Skip()
				}
			})
			if err != nil {
				return err
			}
			d.Client = c
			return nil
		case "discount":
			n, err := dec.Int64()
			d.DiscountLocal = n
			return err
		case "comment":
			s, err := dec.Str()
			d.Comment = s
			return err
		default:
			return dec.Skip()
		}
	})
}
