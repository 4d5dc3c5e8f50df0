package handler

import (
	"net/http"
	"time"

	"github.com/earnhub/ledger-engine/internal/model"
)

// GetWallet возвращает балансы текущего пользователя.
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	wallet, err := h.service.GetWallet(r.Context(), uid)
	if err != nil {
		h.writeError(w, r, "get wallet", err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

// ListEntries возвращает страницу истории операций текущего пользователя.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	limit, offset, err := pagination(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	q := r.URL.Query()
	f := model.EntryFilter{
		Kind:   model.EntryKind(q.Get("kind")),
		Status: model.EntryStatus(q.Get("status")),
		Limit:  limit,
		Offset: offset,
	}
	for name, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid "+name+": expected RFC3339 time")
			return
		}
		*dst = &t
	}

	page, err := h.service.ListEntries(r.Context(), uid, f)
	if err != nil {
		h.writeError(w, r, "list entries", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// BindBankAccount сохраняет банковские реквизиты текущего пользователя.
func (h *Handler) BindBankAccount(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var req model.BankAccount
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.BindBankAccount(r.Context(), uid, req); err != nil {
		h.writeError(w, r, "bind bank account", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
