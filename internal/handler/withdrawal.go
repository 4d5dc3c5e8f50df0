package handler

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/earnhub/ledger-engine/internal/model"
)

type withdrawRequest struct {
	Amount decimal.Decimal   `json:"amount"`
	Source model.BalanceKind `json:"source_balance"`
}

// RequestWithdrawal создаёт заявку на вывод средств текущего пользователя.
func (h *Handler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var req withdrawRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	wr, err := h.service.RequestWithdrawal(r.Context(), uid, req.Amount, req.Source)
	if err != nil {
		h.writeError(w, r, "request withdrawal", err)
		return
	}
	writeJSON(w, http.StatusCreated, wr)
}

func withdrawalFilter(w http.ResponseWriter, r *http.Request) (model.WithdrawalFilter, bool) {
	limit, offset, err := pagination(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return model.WithdrawalFilter{}, false
	}
	return model.WithdrawalFilter{
		Status: model.WithdrawalStatus(r.URL.Query().Get("status")),
		Limit:  limit,
		Offset: offset,
	}, true
}

// ListWithdrawals возвращает историю заявок текущего пользователя.
func (h *Handler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	f, ok := withdrawalFilter(w, r)
	if !ok {
		return
	}

	res, err := h.service.ListWithdrawals(r.Context(), uid, f)
	if err != nil {
		h.writeError(w, r, "list withdrawals", err)
		return
	}

	if len(res) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// CancelWithdrawal отменяет ожидающую заявку владельцем.
func (h *Handler) CancelWithdrawal(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	wr, err := h.service.CancelWithdrawal(r.Context(), id, uid)
	if err != nil {
		h.writeError(w, r, "cancel withdrawal", err)
		return
	}
	writeJSON(w, http.StatusOK, wr)
}

// GetWithdrawal возвращает заявку текущего пользователя.
func (h *Handler) GetWithdrawal(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	wr, err := h.service.GetWithdrawal(r.Context(), id, uid)
	if err != nil {
		h.writeError(w, r, "get withdrawal", err)
		return
	}
	writeJSON(w, http.StatusOK, wr)
}
