package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/earnhub/ledger-engine/internal/model"
	"github.com/earnhub/ledger-engine/internal/repository"
	"github.com/earnhub/ledger-engine/internal/validation"
)

// BindBankAccount проверяет и сохраняет банковские реквизиты пользователя.
// Реквизиты уже созданных заявок не меняются.
func (s *Service) BindBankAccount(ctx context.Context, userID int64, account model.BankAccount) error {
	account.BankCode = strings.TrimSpace(account.BankCode)
	account.BankName = strings.TrimSpace(account.BankName)
	account.AccountNumber = strings.TrimSpace(account.AccountNumber)
	account.AccountName = strings.TrimSpace(account.AccountName)

	if account.AccountName == "" {
		return invalid("account_name", "must not be empty")
	}
	if !validation.IsValidNUBAN(account.BankCode, account.AccountNumber) {
		return invalid("account_number", "not a valid NUBAN for the bank code")
	}

	return s.inTx(ctx, "bind bank account", func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.GetUser(ctx, userID); err != nil {
			return userNotFound(err)
		}
		return tx.SetBankAccount(ctx, userID, account)
	})
}

func (s *Service) validateWithdrawalAmount(settings model.WithdrawalSettings, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return invalid("amount", "must be positive")
	}
	if !model.Money(amount).Equal(amount) {
		return invalid("amount", "at most two decimal places allowed")
	}
	if settings.MinAmount.IsPositive() && amount.LessThan(settings.MinAmount) {
		return invalid("amount", "below minimum of "+settings.MinAmount.StringFixed(model.MoneyPlaces))
	}
	if settings.MaxAmount.IsPositive() && amount.GreaterThan(settings.MaxAmount) {
		return invalid("amount", "above maximum of "+settings.MaxAmount.StringFixed(model.MoneyPlaces))
	}
	return nil
}

// RequestWithdrawal создаёт заявку на вывод и сразу списывает сумму с выбранного баланса.
func (s *Service) RequestWithdrawal(ctx context.Context, userID int64, amount decimal.Decimal, source model.BalanceKind) (*model.WithdrawalRequest, error) {
	settings, err := s.settings.WithdrawalSettings(ctx)
	if err != nil {
		return nil, classify("load withdrawal settings", err)
	}
	if !settings.Enabled {
		return nil, ErrWithdrawalsDisabled
	}
	if source == "" {
		source = model.BalanceSpendable
	}
	if !source.Valid() {
		return nil, invalid("source_balance", "must be spendable or referral")
	}
	if err := s.validateWithdrawalAmount(settings, amount); err != nil {
		return nil, err
	}

	now := s.now()
	var req *model.WithdrawalRequest
	err = s.inTx(ctx, "request withdrawal", func(ctx context.Context, tx repository.Tx) error {
		user, err := tx.GetUser(ctx, userID)
		if err != nil {
			return userNotFound(err)
		}
		if user.BankAccount == nil {
			return ErrBankAccountMissing
		}
		if !user.WithdrawalAccess {
			return ErrEntitlementDenied
		}

		w := &model.WithdrawalRequest{
			Reference:   uuid.New(),
			UserID:      userID,
			Amount:      amount,
			Source:      source,
			Status:      model.WithdrawalPending,
			Account:     *user.BankAccount,
			RequestedAt: now,
		}
		if err := tx.InsertWithdrawal(ctx, w); err != nil {
			return err
		}

		entry, err := s.record(ctx, tx, model.EntryInput{
			UserID:      userID,
			Kind:        model.EntryWithdrawalRequest,
			Balance:     source,
			Amount:      amount.Neg(),
			Description: "Withdrawal to " + w.Account.BankName + " " + w.Account.AccountNumber,
			Reference:   model.WithdrawalRef(w.ID),
			Metadata: map[string]string{
				"payout_reference": w.Reference.String(),
				"bank_code":        w.Account.BankCode,
			},
		})
		if err != nil {
			return err
		}
		w.LedgerEntryID = entry.ID
		if err := tx.UpdateWithdrawal(ctx, w); err != nil {
			return err
		}
		req = w
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("withdrawal requested",
		zap.Int64("withdrawal_id", req.ID),
		zap.Int64("user_id", userID),
		zap.String("amount", amount.StringFixed(model.MoneyPlaces)),
		zap.String("source", string(source)),
	)
	return req, nil
}

// transition блокирует заявку и применяет к ней изменение, если она ещё в статусе pending.
// ownerID > 0 ограничивает доступ владельцем заявки.
func (s *Service) transition(ctx context.Context, op string, id, ownerID int64, apply func(ctx context.Context, tx repository.Tx, w *model.WithdrawalRequest) error) (*model.WithdrawalRequest, error) {
	var res *model.WithdrawalRequest
	err := s.inTx(ctx, op, func(ctx context.Context, tx repository.Tx) error {
		w, err := tx.LockWithdrawal(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrWithdrawalNotFound
			}
			return err
		}
		if ownerID > 0 && w.UserID != ownerID {
			return ErrWithdrawalNotFound
		}
		if w.Status != model.WithdrawalPending {
			return ErrInvalidState
		}
		if err := apply(ctx, tx, w); err != nil {
			return err
		}
		if err := tx.UpdateWithdrawal(ctx, w); err != nil {
			return err
		}
		res = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// refundWithdrawal возвращает зарезервированную сумму на исходный баланс.
func (s *Service) refundWithdrawal(ctx context.Context, tx repository.Tx, w *model.WithdrawalRequest, description string) error {
	entry, err := s.record(ctx, tx, model.EntryInput{
		UserID:      w.UserID,
		Kind:        model.EntryRefund,
		Balance:     w.Source,
		Amount:      w.Amount,
		Description: description,
		Reference:   model.WithdrawalRef(w.ID),
		Metadata:    map[string]string{"payout_reference": w.Reference.String()},
	})
	if err != nil {
		return err
	}
	w.RefundEntryID = &entry.ID
	return nil
}

// ApproveWithdrawal подтверждает выплату. Баланс не меняется: сумма списана при создании заявки.
func (s *Service) ApproveWithdrawal(ctx context.Context, id, adminID int64, transactionID string) (*model.WithdrawalRequest, error) {
	now := s.now()
	w, err := s.transition(ctx, "approve withdrawal", id, 0, func(_ context.Context, _ repository.Tx, w *model.WithdrawalRequest) error {
		w.Status = model.WithdrawalApproved
		w.ProcessedAt = &now
		w.ProcessedBy = &adminID
		w.TransactionID = strings.TrimSpace(transactionID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("withdrawal approved", zap.Int64("withdrawal_id", id), zap.Int64("admin_id", adminID))
	return w, nil
}

// RejectWithdrawal отклоняет заявку и возвращает сумму на исходный баланс.
func (s *Service) RejectWithdrawal(ctx context.Context, id, adminID int64, reason string) (*model.WithdrawalRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, invalid("reason", "must not be empty")
	}
	now := s.now()
	w, err := s.transition(ctx, "reject withdrawal", id, 0, func(ctx context.Context, tx repository.Tx, w *model.WithdrawalRequest) error {
		if err := s.refundWithdrawal(ctx, tx, w, "Withdrawal rejected: "+reason); err != nil {
			return err
		}
		w.Status = model.WithdrawalRejected
		w.ProcessedAt = &now
		w.ProcessedBy = &adminID
		w.RejectionReason = reason
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("withdrawal rejected", zap.Int64("withdrawal_id", id), zap.Int64("admin_id", adminID))
	return w, nil
}

// CancelWithdrawal отменяет собственную заявку пользователя и возвращает сумму.
func (s *Service) CancelWithdrawal(ctx context.Context, id, userID int64) (*model.WithdrawalRequest, error) {
	if userID <= 0 {
		return nil, invalid("user_id", "must be positive")
	}
	now := s.now()
	w, err := s.transition(ctx, "cancel withdrawal", id, userID, func(ctx context.Context, tx repository.Tx, w *model.WithdrawalRequest) error {
		if err := s.refundWithdrawal(ctx, tx, w, "Withdrawal cancelled"); err != nil {
			return err
		}
		w.Status = model.WithdrawalCancelled
		w.ProcessedAt = &now
		w.ProcessedBy = &userID
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("withdrawal cancelled", zap.Int64("withdrawal_id", id), zap.Int64("user_id", userID))
	return w, nil
}

// GetWithdrawal возвращает заявку. ownerID > 0 скрывает чужие заявки.
func (s *Service) GetWithdrawal(ctx context.Context, id, ownerID int64) (*model.WithdrawalRequest, error) {
	w, err := s.repo.GetWithdrawal(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, classify("get withdrawal", err)
	}
	if ownerID > 0 && w.UserID != ownerID {
		return nil, ErrWithdrawalNotFound
	}
	return w, nil
}

func validateWithdrawalFilter(f model.WithdrawalFilter) error {
	if f.Status != "" && !f.Status.Valid() {
		return invalid("status", "unknown withdrawal status")
	}
	if f.Limit < 0 || f.Offset < 0 {
		return invalid("limit", "limit and offset must not be negative")
	}
	return nil
}

// ListWithdrawals возвращает историю заявок пользователя, новые первыми.
func (s *Service) ListWithdrawals(ctx context.Context, userID int64, f model.WithdrawalFilter) ([]model.WithdrawalRequest, error) {
	if userID <= 0 {
		return nil, invalid("user_id", "must be positive")
	}
	if err := validateWithdrawalFilter(f); err != nil {
		return nil, err
	}
	res, err := s.repo.ListWithdrawals(ctx, userID, f)
	if err != nil {
		return nil, classify("list withdrawals", err)
	}
	return res, nil
}

// ListWithdrawalsByStatus возвращает очередь заявок всех пользователей, старые первыми.
func (s *Service) ListWithdrawalsByStatus(ctx context.Context, status model.WithdrawalStatus, f model.WithdrawalFilter) ([]model.WithdrawalRequest, error) {
	f.Status = status
	if err := validateWithdrawalFilter(f); err != nil {
		return nil, err
	}
	res, err := s.repo.ListWithdrawals(ctx, 0, f)
	if err != nil {
		return nil, classify("list withdrawal queue", err)
	}
	return res, nil
}
