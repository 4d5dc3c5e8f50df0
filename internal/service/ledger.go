package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/earnhub/ledger-engine/internal/model"
	"github.com/earnhub/ledger-engine/internal/repository"
)

// validateEntry нормализует вход и проверяет знак суммы относительно вида записи.
func validateEntry(in model.EntryInput) (model.EntryInput, error) {
	if in.UserID <= 0 {
		return in, invalid("user_id", "must be positive")
	}
	if !in.Kind.Valid() {
		return in, invalid("kind", "unknown entry kind")
	}
	if in.Balance == "" {
		in.Balance = in.Kind.DefaultBalance()
	}
	if !in.Balance.Valid() {
		return in, invalid("balance", "unknown balance kind")
	}
	if !model.Money(in.Amount).Equal(in.Amount) {
		return in, invalid("amount", "at most two decimal places allowed")
	}
	switch {
	case in.Amount.IsZero():
		return in, invalid("amount", "must not be zero")
	case in.Kind.Credit() && in.Amount.IsNegative():
		return in, invalid("amount", "must be positive for "+string(in.Kind))
	case !in.Kind.Credit() && in.Amount.IsPositive():
		return in, invalid("amount", "must be negative for "+string(in.Kind))
	}
	if err := in.Reference.Validate(); err != nil {
		return in, invalid("reference", err.Error())
	}
	if in.Reference.Kind == "" {
		in.Reference = model.NoReference()
	}
	if in.Metadata == nil {
		in.Metadata = map[string]string{}
	}
	return in, nil
}

// applyDelta меняет баланс кошелька на delta под блокировкой строки кошелька.
func applyDelta(ctx context.Context, tx repository.Tx, userID int64, kind model.BalanceKind, delta decimal.Decimal) (decimal.Decimal, error) {
	w, err := tx.LockWallet(ctx, userID)
	if err != nil {
		return decimal.Zero, userNotFound(err)
	}
	next := w.Balance(kind).Add(delta)
	if next.IsNegative() {
		return decimal.Zero, ErrInsufficientFunds
	}
	if err := tx.SetBalance(ctx, userID, kind, next); err != nil {
		return decimal.Zero, err
	}
	return next, nil
}

// record добавляет запись леджера внутри транзакции вызывающего и, если запись не отложена,
// сразу меняет соответствующий баланс.
func (s *Service) record(ctx context.Context, tx repository.Tx, in model.EntryInput) (*model.LedgerEntry, error) {
	in, err := validateEntry(in)
	if err != nil {
		return nil, err
	}

	status := model.EntryCompleted
	if in.Pending {
		// Кошелёк блокируется и для отложенной записи: так проверяется существование пользователя.
		if _, err := tx.LockWallet(ctx, in.UserID); err != nil {
			return nil, userNotFound(err)
		}
		status = model.EntryPending
	} else if _, err := applyDelta(ctx, tx, in.UserID, in.Balance, in.Amount); err != nil {
		return nil, err
	}

	e := &model.LedgerEntry{
		UserID:      in.UserID,
		Kind:        in.Kind,
		Balance:     in.Balance,
		Amount:      in.Amount,
		Description: in.Description,
		Status:      status,
		Reference:   in.Reference,
		Metadata:    in.Metadata,
	}
	if err := tx.InsertEntry(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Record добавляет запись леджера в отдельной транзакции.
func (s *Service) Record(ctx context.Context, in model.EntryInput) (*model.LedgerEntry, error) {
	var entry *model.LedgerEntry
	err := s.inTx(ctx, "record entry", func(ctx context.Context, tx repository.Tx) error {
		var err error
		entry, err = s.record(ctx, tx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("ledger entry recorded",
		zap.Int64("entry_id", entry.ID),
		zap.Int64("user_id", entry.UserID),
		zap.String("kind", string(entry.Kind)),
		zap.String("amount", entry.Amount.StringFixed(model.MoneyPlaces)),
		zap.String("status", string(entry.Status)),
	)
	return entry, nil
}

// SettleEntry переводит отложенную запись в completed (с изменением баланса) или failed.
func (s *Service) SettleEntry(ctx context.Context, entryID int64, status model.EntryStatus) (*model.LedgerEntry, error) {
	if status != model.EntryCompleted && status != model.EntryFailed {
		return nil, invalid("status", "must be completed or failed")
	}

	var entry *model.LedgerEntry
	err := s.inTx(ctx, "settle entry", func(ctx context.Context, tx repository.Tx) error {
		e, err := tx.LockEntry(ctx, entryID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrEntryNotFound
			}
			return err
		}
		if e.Status != model.EntryPending {
			return ErrInvalidState
		}
		if status == model.EntryCompleted {
			if _, err := applyDelta(ctx, tx, e.UserID, e.Balance, e.Amount); err != nil {
				return err
			}
		}
		if err := tx.UpdateEntryStatus(ctx, e.ID, status); err != nil {
			return err
		}
		e.Status = status
		entry = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// GetWallet возвращает текущие балансы пользователя.
func (s *Service) GetWallet(ctx context.Context, userID int64) (*model.Wallet, error) {
	w, err := s.repo.GetWallet(ctx, userID)
	if err != nil {
		return nil, classify("get wallet", userNotFound(err))
	}
	return w, nil
}

// ListEntries возвращает страницу истории операций пользователя.
func (s *Service) ListEntries(ctx context.Context, userID int64, f model.EntryFilter) (*model.EntryPage, error) {
	if f.Kind != "" && !f.Kind.Valid() {
		return nil, invalid("kind", "unknown entry kind")
	}
	switch f.Status {
	case "", model.EntryPending, model.EntryCompleted, model.EntryFailed:
	default:
		return nil, invalid("status", "unknown entry status")
	}
	if f.Limit < 0 || f.Offset < 0 {
		return nil, invalid("limit", "limit and offset must not be negative")
	}
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return nil, invalid("from", "must be before to")
	}
	if _, err := s.GetWallet(ctx, userID); err != nil {
		return nil, err
	}

	page, err := s.repo.ListEntries(ctx, userID, f)
	if err != nil {
		return nil, classify("list entries", err)
	}
	return page, nil
}

// DescribeReference возвращает название сущности, вызвавшей запись.
func (s *Service) DescribeReference(ctx context.Context, ref model.Reference) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", invalid("reference", err.Error())
	}
	title, err := s.repo.ResolveReference(ctx, ref)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrItemNotFound
		}
		return "", classify("resolve reference", err)
	}
	return title, nil
}
