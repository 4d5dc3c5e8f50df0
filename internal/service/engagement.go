package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/earnhub/ledger-engine/internal/model"
	"github.com/earnhub/ledger-engine/internal/repository"
)

// AdClaimsPerDay ограничивает число вознаграждаемых взаимодействий с рекламой за календарный день.
const AdClaimsPerDay = 1

// ClaimResult содержит итог вознаграждаемого действия.
type ClaimResult struct {
	RewardEarned decimal.Decimal     `json:"reward_earned"`
	Remaining    int                 `json:"remaining"`
	Correct      *bool               `json:"correct,omitempty"`
	Entry        *model.LedgerEntry  `json:"entry,omitempty"`
	Referrals    []model.LedgerEntry `json:"referrals,omitempty"`
}

// ClaimAd засчитывает взаимодействие с объявлением. Первое взаимодействие за день
// приносит весь дневной лимит пакета, остальные отклоняются с ErrDailyCapReached.
func (s *Service) ClaimAd(ctx context.Context, userID, adID int64, typ model.InteractionType) (*ClaimResult, error) {
	if !typ.Valid() {
		return nil, invalid("type", "must be view or click")
	}
	pkg, err := s.userPackage(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	day := s.calendarDay(now)
	reward := model.Money(pkg.DailyEarningLimit)
	if reward.IsNegative() {
		reward = decimal.Zero
	}

	var res *ClaimResult
	err = s.inTx(ctx, "claim ad", func(ctx context.Context, tx repository.Tx) error {
		res = &ClaimResult{RewardEarned: decimal.Zero}
		if _, err := tx.GetUser(ctx, userID); err != nil {
			return userNotFound(err)
		}
		ad, err := tx.GetAdvertisement(ctx, adID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrItemNotFound
			}
			return err
		}
		if !ad.Active(now) {
			return ErrSubjectNotActive
		}
		claimed, err := tx.HasAdInteraction(ctx, userID, day)
		if err != nil {
			return err
		}
		if claimed {
			return ErrDailyCapReached
		}

		// Повторная вставка за тот же день отсекается уникальным индексом хранилища.
		err = tx.InsertAdInteraction(ctx, &model.AdInteraction{
			UserID:          userID,
			AdvertisementID: ad.ID,
			Type:            typ,
			RewardEarned:    reward,
			Day:             day,
			InteractedAt:    now,
		})
		if err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrDailyCapReached
			}
			return err
		}

		if reward.IsPositive() {
			ref := model.AdvertisementRef(ad.ID)
			res.Entry, err = s.record(ctx, tx, model.EntryInput{
				UserID:      userID,
				Kind:        model.EntryEarning,
				Amount:      reward,
				Description: "Ad " + string(typ) + ": " + ad.Title,
				Reference:   ref,
				Metadata: map[string]string{
					"interaction_type": string(typ),
					"package":          pkg.Name,
					"day":              day.Format("2006-01-02"),
				},
			})
			if err != nil {
				return err
			}
			res.Referrals, err = s.distribute(ctx, tx, userID, reward, model.EntryEarning, ref)
			if err != nil {
				return err
			}
		}

		counter := repository.CounterImpressions
		if typ == model.InteractionClick {
			counter = repository.CounterClicks
		}
		if err := tx.IncrementAdCounter(ctx, ad.ID, counter); err != nil {
			return err
		}
		res.RewardEarned = reward
		res.Remaining = AdClaimsPerDay - 1
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("ad reward claimed",
		zap.Int64("user_id", userID),
		zap.Int64("ad_id", adID),
		zap.String("type", string(typ)),
		zap.String("reward", reward.StringFixed(model.MoneyPlaces)),
	)
	return res, nil
}

// SubmitAnswer принимает единственную попытку ответа на головоломку.
// Награда начисляется только при точном совпадении ответа с учётом регистра.
func (s *Service) SubmitAnswer(ctx context.Context, userID, teaserID int64, answer string) (*ClaimResult, error) {
	if answer == "" {
		return nil, invalid("answer", "must not be empty")
	}
	pkg, err := s.userPackage(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !pkg.BrainTeaserAccess {
		return nil, ErrEntitlementDenied
	}

	now := s.now()
	var res *ClaimResult
	err = s.inTx(ctx, "submit answer", func(ctx context.Context, tx repository.Tx) error {
		res = &ClaimResult{RewardEarned: decimal.Zero}
		if _, err := tx.GetUser(ctx, userID); err != nil {
			return userNotFound(err)
		}
		teaser, err := tx.GetBrainTeaser(ctx, teaserID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrItemNotFound
			}
			return err
		}
		if !teaser.Active(now) {
			return ErrSubjectNotActive
		}
		attempted, err := tx.HasTeaserAttempt(ctx, userID, teaser.ID)
		if err != nil {
			return err
		}
		if attempted {
			return ErrAlreadyAttempted
		}

		correct := answer == teaser.CorrectAnswer
		reward := decimal.Zero
		if correct && teaser.RewardAmount.IsPositive() {
			reward = model.Money(teaser.RewardAmount)
		}

		err = tx.InsertTeaserAttempt(ctx, &model.TeaserAttempt{
			UserID:        userID,
			BrainTeaserID: teaser.ID,
			Answer:        answer,
			Correct:       correct,
			RewardEarned:  reward,
			AttemptedAt:   now,
		})
		if err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrAlreadyAttempted
			}
			return err
		}

		if reward.IsPositive() {
			ref := model.BrainTeaserRef(teaser.ID)
			res.Entry, err = s.record(ctx, tx, model.EntryInput{
				UserID:      userID,
				Kind:        model.EntryEarning,
				Amount:      reward,
				Description: "Brain teaser reward",
				Reference:   ref,
				Metadata:    map[string]string{"package": pkg.Name},
			})
			if err != nil {
				return err
			}
			res.Referrals, err = s.distribute(ctx, tx, userID, reward, model.EntryEarning, ref)
			if err != nil {
				return err
			}
		}

		if err := tx.IncrementTeaserCounters(ctx, teaser.ID, correct); err != nil {
			return err
		}
		res.RewardEarned = reward
		res.Correct = &correct
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("brain teaser answered",
		zap.Int64("user_id", userID),
		zap.Int64("teaser_id", teaserID),
		zap.Bool("correct", *res.Correct),
	)
	return res, nil
}
