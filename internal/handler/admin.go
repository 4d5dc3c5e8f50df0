package handler

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/earnhub/ledger-engine/internal/model"
)

type createUserRequest struct {
	Login      string `json:"login"`
	ReferrerID *int64 `json:"referrer_id"`
}

type createUserResponse struct {
	ID int64 `json:"id"`
}

// CreateUser заводит пользователя вместе с пустым кошельком.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	if _, ok := adminID(w, r); !ok {
		return
	}

	var req createUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	id, err := h.service.RegisterUser(r.Context(), req.Login, req.ReferrerID)
	if err != nil {
		h.writeError(w, r, "create user", err)
		return
	}
	writeJSON(w, http.StatusCreated, createUserResponse{ID: id})
}

type recordRequest struct {
	UserID      int64             `json:"user_id"`
	Kind        model.EntryKind   `json:"kind"`
	Balance     model.BalanceKind `json:"balance"`
	Amount      decimal.Decimal   `json:"amount"`
	Description string            `json:"description"`
	Pending     bool              `json:"pending"`
}

// RecordEntry проводит ручную запись леджера: пополнение, списание или отложенное начисление.
func (h *Handler) RecordEntry(w http.ResponseWriter, r *http.Request) {
	aid, ok := adminID(w, r)
	if !ok {
		return
	}

	var req recordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	entry, err := h.service.Record(r.Context(), model.EntryInput{
		UserID:      req.UserID,
		Kind:        req.Kind,
		Balance:     req.Balance,
		Amount:      req.Amount,
		Description: req.Description,
		Reference:   model.NoReference(),
		Metadata:    map[string]string{"admin_id": strconv.FormatInt(aid, 10)},
		Pending:     req.Pending,
	})
	if err != nil {
		h.writeError(w, r, "record entry", err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

type settleRequest struct {
	Status model.EntryStatus `json:"status"`
}

// SettleEntry переводит ожидающую запись в completed или failed.
func (h *Handler) SettleEntry(w http.ResponseWriter, r *http.Request) {
	if _, ok := adminID(w, r); !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req settleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	entry, err := h.service.SettleEntry(r.Context(), id, req.Status)
	if err != nil {
		h.writeError(w, r, "settle entry", err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// WithdrawalQueue возвращает заявки всех пользователей в указанном статусе.
func (h *Handler) WithdrawalQueue(w http.ResponseWriter, r *http.Request) {
	if _, ok := adminID(w, r); !ok {
		return
	}
	f, ok := withdrawalFilter(w, r)
	if !ok {
		return
	}
	if f.Status == "" {
		f.Status = model.WithdrawalPending
	}

	res, err := h.service.ListWithdrawalsByStatus(r.Context(), f.Status, f)
	if err != nil {
		h.writeError(w, r, "withdrawal queue", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type approveRequest struct {
	TransactionID string `json:"transaction_id"`
}

// ApproveWithdrawal подтверждает выплату по заявке.
func (h *Handler) ApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	aid, ok := adminID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req approveRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	wr, err := h.service.ApproveWithdrawal(r.Context(), id, aid, req.TransactionID)
	if err != nil {
		h.writeError(w, r, "approve withdrawal", err)
		return
	}
	writeJSON(w, http.StatusOK, wr)
}

// RejectWithdrawal отклоняет заявку и возвращает сумму на исходный баланс.
func (h *Handler) RejectWithdrawal(w http.ResponseWriter, r *http.Request) {
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

	wr, err := h.service.RejectWithdrawal(r.Context(), id, aid, req.Reason)
	if err != nil {
		h.writeError(w, r, "reject withdrawal", err)
		return
	}
	writeJSON(w, http.StatusOK, wr)
}

type reconciliationResponse struct {
	Consistent    bool                `json:"consistent"`
	Discrepancies []model.Discrepancy `json:"discrepancies"`
}

// Reconciliation сверяет сохранённые балансы с суммой завершённых записей.
func (h *Handler) Reconciliation(w http.ResponseWriter, r *http.Request) {
	if _, ok := adminID(w, r); !ok {
		return
	}

	res, err := h.service.Reconcile(r.Context())
	if err != nil {
		h.writeError(w, r, "reconcile", err)
		return
	}
	writeJSON(w, http.StatusOK, reconciliationResponse{Consistent: len(res) == 0, Discrepancies: res})
}
