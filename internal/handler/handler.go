// Package handler содержит HTTP-обработчики API движка кошельков.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/earnhub/ledger-engine/internal/middleware"
	"github.com/earnhub/ledger-engine/internal/model"
	"github.com/earnhub/ledger-engine/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, login string, referrerID *int64) (int64, error)
	GetWallet(ctx context.Context, userID int64) (*model.Wallet, error)
	ListEntries(ctx context.Context, userID int64, f model.EntryFilter) (*model.EntryPage, error)
	Record(ctx context.Context, in model.EntryInput) (*model.LedgerEntry, error)
	SettleEntry(ctx context.Context, entryID int64, status model.EntryStatus) (*model.LedgerEntry, error)
	BindBankAccount(ctx context.Context, userID int64, account model.BankAccount) error

	ClaimAd(ctx context.Context, userID, adID int64, typ model.InteractionType) (*service.ClaimResult, error)
	SubmitAnswer(ctx context.Context, userID, teaserID int64, answer string) (*service.ClaimResult, error)

	Purchase(ctx context.Context, buyerID int64, kind model.ItemKind, itemID int64, quantity int) (*service.PurchaseResult, error)
	RefundPurchase(ctx context.Context, purchaseID, adminID int64, reason string) (*model.Purchase, error)

	RequestWithdrawal(ctx context.Context, userID int64, amount decimal.Decimal, source model.BalanceKind) (*model.WithdrawalRequest, error)
	GetWithdrawal(ctx context.Context, id, ownerID int64) (*model.WithdrawalRequest, error)
	ListWithdrawals(ctx context.Context, userID int64, f model.WithdrawalFilter) ([]model.WithdrawalRequest, error)
	ListWithdrawalsByStatus(ctx context.Context, status model.WithdrawalStatus, f model.WithdrawalFilter) ([]model.WithdrawalRequest, error)
	CancelWithdrawal(ctx context.Context, id, userID int64) (*model.WithdrawalRequest, error)
	ApproveWithdrawal(ctx context.Context, id, adminID int64, transactionID string) (*model.WithdrawalRequest, error)
	RejectWithdrawal(ctx context.Context, id, adminID int64, reason string) (*model.WithdrawalRequest, error)

	Reconcile(ctx context.Context) ([]model.Discrepancy, error)
}

// Handler реализует HTTP-обработчики API движка кошельков.
type Handler struct {
	service Service
	logger  *zap.Logger
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: s,
		logger:  logger,
	}
}

const temporaryFailure = "temporary failure, try again"

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor сопоставляет ошибку сервиса с HTTP-статусом.
func statusFor(err error) int {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrEntitlementDenied):
		return http.StatusForbidden
	case errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrItemNotFound),
		errors.Is(err, service.ErrWithdrawalNotFound),
		errors.Is(err, service.ErrPurchaseNotFound),
		errors.Is(err, service.ErrEntryNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, service.ErrInvalidState),
		errors.Is(err, service.ErrDailyCapReached),
		errors.Is(err, service.ErrAlreadyAttempted),
		errors.Is(err, service.ErrAlreadyEnrolled),
		errors.Is(err, service.ErrInsufficientStock),
		errors.Is(err, service.ErrSubjectNotActive),
		errors.Is(err, service.ErrSelfPurchaseForbidden),
		errors.Is(err, service.ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, service.ErrBankAccountMissing):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrWithdrawalsDisabled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(op+" error",
			zap.Error(err),
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
		)
		writeMessage(w, status, temporaryFailure)
		return
	}

	msg := err.Error()
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		msg = verr.Error()
	}
	writeMessage(w, status, msg)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeMessage(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	}
	return id, ok
}

func adminID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := middleware.GetAdminIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	}
	return id, ok
}

// pagination читает limit и offset из строки запроса.
func pagination(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			return 0, 0, errors.New("invalid limit")
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil {
			return 0, 0, errors.New("invalid offset")
		}
	}
	return limit, offset, nil
}
