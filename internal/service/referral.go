package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/earnhub/ledger-engine/internal/model"
	"github.com/earnhub/ledger-engine/internal/repository"
)

// seedsReferral сообщает, порождает ли запись данного вида реферальные начисления.
// Начисления идут только от вознаграждений за вовлечённость.
func seedsReferral(kind model.EntryKind) bool {
	return kind == model.EntryEarning
}

// Distribute начисляет предкам sourceUserID долю суммы sourceAmount в отдельной транзакции.
func (s *Service) Distribute(ctx context.Context, sourceUserID int64, sourceAmount decimal.Decimal, sourceKind model.EntryKind) ([]model.LedgerEntry, error) {
	if !sourceKind.Valid() {
		return nil, invalid("kind", "unknown entry kind")
	}
	if !sourceAmount.IsPositive() {
		return nil, invalid("amount", "must be positive")
	}

	var credited []model.LedgerEntry
	err := s.inTx(ctx, "distribute referral", func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.GetUser(ctx, sourceUserID); err != nil {
			return userNotFound(err)
		}
		var err error
		credited, err = s.distribute(ctx, tx, sourceUserID, sourceAmount, sourceKind, model.NoReference())
		return err
	})
	if err != nil {
		return nil, err
	}
	return credited, nil
}

// distribute проходит по цепочке пригласивших не глубже числа ставок и пишет записи
// referral_earning на реферальные балансы. Повторно встреченный пользователь обрывает обход.
func (s *Service) distribute(ctx context.Context, tx repository.Tx, sourceUserID int64, amount decimal.Decimal,
	kind model.EntryKind, ref model.Reference,
) ([]model.LedgerEntry, error) {
	if !seedsReferral(kind) || !amount.IsPositive() || len(s.referralRates) == 0 {
		return nil, nil
	}

	chain, err := tx.ReferralChain(ctx, sourceUserID, len(s.referralRates))
	if err != nil {
		return nil, err
	}

	visited := map[int64]bool{sourceUserID: true}
	var credited []model.LedgerEntry
	for level, ancestor := range chain {
		if level >= len(s.referralRates) || visited[ancestor] {
			break
		}
		visited[ancestor] = true

		rate := s.referralRates[level]
		bonus := model.Money(amount.Mul(rate))
		if !bonus.IsPositive() {
			continue
		}
		e, err := s.record(ctx, tx, model.EntryInput{
			UserID:      ancestor,
			Kind:        model.EntryReferralEarning,
			Balance:     model.BalanceReferral,
			Amount:      bonus,
			Description: fmt.Sprintf("Level %d referral bonus", level+1),
			Reference:   ref,
			Metadata: map[string]string{
				"source_user_id": formatID(sourceUserID),
				"level":          strconv.Itoa(level + 1),
				"rate":           rate.String(),
				"source_amount":  amount.StringFixed(model.MoneyPlaces),
			},
		})
		if err != nil {
			return nil, err
		}
		credited = append(credited, *e)
	}

	if len(credited) > 0 {
		s.logger.Debug("referral bonuses distributed",
			zap.Int64("source_user_id", sourceUserID),
			zap.Int("levels", len(credited)),
		)
	}
	return credited, nil
}
