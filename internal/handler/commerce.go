package handler

import (
	"net/http"

	"github.com/earnhub/ledger-engine/internal/model"
)

type purchaseRequest struct {
	ItemKind model.ItemKind `json:"item_kind"`
	ItemID   int64          `json:"item_id"`
	Quantity int            `json:"quantity"`
}

// Purchase оплачивает товар или курс с основного баланса текущего пользователя.
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var req purchaseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	res, err := h.service.Purchase(r.Context(), uid, req.ItemKind, req.ItemID, req.Quantity)
	if err != nil {
		h.writeError(w, r, "purchase", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

// RefundPurchase возвращает покупателю стоимость покупки.
func (h *Handler) RefundPurchase(w http.ResponseWriter, r *http.Request) {
	aid, ok := adminID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req reasonRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.service.RefundPurchase(r.Context(), id, aid, req.Reason)
	if err != nil {
		h.writeError(w, r, "refund purchase", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
