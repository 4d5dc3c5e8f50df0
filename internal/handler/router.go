package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/earnhub/ledger-engine/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware движка кошельков.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(custommiddleware.UserIdentity)

			r.Get("/wallet", h.GetWallet)
			r.Get("/wallet/entries", h.ListEntries)
			r.Put("/wallet/bank-account", h.BindBankAccount)

			r.Post("/engagement/ads/{id}/claim", h.ClaimAd)
			r.Post("/engagement/teasers/{id}/answer", h.SubmitAnswer)

			r.Post("/commerce/purchases", h.Purchase)

			r.Post("/withdrawals", h.RequestWithdrawal)
			r.Get("/withdrawals", h.ListWithdrawals)
			r.Get("/withdrawals/{id}", h.GetWithdrawal)
			r.Post("/withdrawals/{id}/cancel", h.CancelWithdrawal)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(custommiddleware.AdminIdentity)

			r.Post("/users", h.CreateUser)
			r.Post("/entries", h.RecordEntry)
			r.Post("/entries/{id}/settle", h.SettleEntry)

			r.Get("/withdrawals", h.WithdrawalQueue)
			r.Post("/withdrawals/{id}/approve", h.ApproveWithdrawal)
			r.Post("/withdrawals/{id}/reject", h.RejectWithdrawal)

			r.Post("/purchases/{id}/refund", h.RefundPurchase)

			r.Get("/reconciliation", h.Reconciliation)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
