package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/earnhub/ledger-engine/internal/model"
)

// Reconcile сверяет каждый баланс кошелька с суммой проведённых записей леджера
// и возвращает найденные расхождения.
func (s *Service) Reconcile(ctx context.Context) ([]model.Discrepancy, error) {
	res, err := s.repo.ReconcileBalances(ctx)
	if err != nil {
		return nil, classify("reconcile balances", err)
	}
	for _, d := range res {
		s.logger.Warn("balance discrepancy",
			zap.Int64("user_id", d.UserID),
			zap.String("balance", string(d.Balance)),
			zap.String("stored", d.Stored.StringFixed(model.MoneyPlaces)),
			zap.String("computed", d.Computed.StringFixed(model.MoneyPlaces)),
		)
	}
	if res == nil {
		res = []model.Discrepancy{}
	}
	return res, nil
}
