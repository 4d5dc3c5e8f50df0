// Package service реализует ядро движка кошельков: леджер, начисления за вовлечённость,
// расчёты по покупкам, жизненный цикл выводов и реферальные начисления.
package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/earnhub/ledger-engine/internal/model"
	"github.com/earnhub/ledger-engine/internal/repository"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	WithinTx(ctx context.Context, fn repository.TxFunc) error
	CreateUser(ctx context.Context, login string, referrerID *int64) (int64, error)
	GetWallet(ctx context.Context, userID int64) (*model.Wallet, error)
	GetEntry(ctx context.Context, id int64) (*model.LedgerEntry, error)
	ListEntries(ctx context.Context, userID int64, f model.EntryFilter) (*model.EntryPage, error)
	GetWithdrawal(ctx context.Context, id int64) (*model.WithdrawalRequest, error)
	ListWithdrawals(ctx context.Context, userID int64, f model.WithdrawalFilter) ([]model.WithdrawalRequest, error)
	ReconcileBalances(ctx context.Context) ([]model.Discrepancy, error)
	ReferenceResolver
}

// ReferenceResolver находит сущность каталога, на которую ссылается запись леджера.
type ReferenceResolver interface {
	ResolveReference(ctx context.Context, ref model.Reference) (string, error)
}

// PackageProvider отдаёт действующий пакет пользователя. Результат nil без ошибки означает, что пакета нет.
type PackageProvider interface {
	UserPackage(ctx context.Context, userID int64) (*model.Package, error)
}

// SettingsSource отдаёт платформенные настройки вывода средств.
type SettingsSource interface {
	WithdrawalSettings(ctx context.Context) (model.WithdrawalSettings, error)
}

// StaticSettings отдаёт неизменяемые настройки вывода из конфигурации.
type StaticSettings model.WithdrawalSettings

// WithdrawalSettings возвращает настройки как есть.
func (s StaticSettings) WithdrawalSettings(context.Context) (model.WithdrawalSettings, error) {
	return model.WithdrawalSettings(s), nil
}

// DefaultReferralRates — доли начисления предкам по уровням: 5%, 3%, 1%.
var DefaultReferralRates = []decimal.Decimal{
	decimal.RequireFromString("0.05"),
	decimal.RequireFromString("0.03"),
	decimal.RequireFromString("0.01"),
}

// MaxReferralLevels ограничивает глубину реферальной цепочки.
const MaxReferralLevels = 3

// Options задаёт необязательные параметры сервиса.
type Options struct {
	Settings      SettingsSource
	ReferralRates []decimal.Decimal
	// Location определяет границы календарного дня для дневных лимитов.
	Location *time.Location
	Now      func() time.Time
	Logger   *zap.Logger
}

// Service содержит бизнес-логику движка кошельков.
type Service struct {
	repo          Repository
	packages      PackageProvider
	settings      SettingsSource
	referralRates []decimal.Decimal
	loc           *time.Location
	now           func() time.Time
	logger        *zap.Logger
}

// NewService создаёт сервис поверх репозитория и источника тарифных пакетов.
func NewService(repo Repository, packages PackageProvider, opts Options) *Service {
	s := &Service{
		repo:          repo,
		packages:      packages,
		settings:      opts.Settings,
		referralRates: opts.ReferralRates,
		loc:           opts.Location,
		now:           opts.Now,
		logger:        opts.Logger,
	}
	if s.settings == nil {
		s.settings = StaticSettings{Enabled: true}
	}
	if s.referralRates == nil {
		s.referralRates = DefaultReferralRates
	}
	if len(s.referralRates) > MaxReferralLevels {
		s.referralRates = s.referralRates[:MaxReferralLevels]
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// inTx выполняет fn в одной транзакции и классифицирует ошибку.
func (s *Service) inTx(ctx context.Context, op string, fn repository.TxFunc) error {
	return classify(op, s.repo.WithinTx(ctx, fn))
}

// calendarDay возвращает дату момента t в часовом поясе платформы как полночь UTC.
func (s *Service) calendarDay(t time.Time) time.Time {
	y, m, d := t.In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *Service) userPackage(ctx context.Context, userID int64) (*model.Package, error) {
	if s.packages == nil {
		return nil, ErrEntitlementDenied
	}
	pkg, err := s.packages.UserPackage(ctx, userID)
	if err != nil {
		return nil, classify("load package", err)
	}
	if pkg == nil {
		return nil, ErrEntitlementDenied
	}
	return pkg, nil
}

// RegisterUser создаёт пользователя с нулевыми балансами.
func (s *Service) RegisterUser(ctx context.Context, login string, referrerID *int64) (int64, error) {
	if login == "" {
		return 0, invalid("login", "must not be empty")
	}
	id, err := s.repo.CreateUser(ctx, login, referrerID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrUserExists):
			return 0, ErrUserExists
		case errors.Is(err, repository.ErrUserNotFound):
			return 0, invalid("referrer_id", "referrer does not exist")
		}
		return 0, classify("create user", err)
	}
	return id, nil
}

func userNotFound(err error) error {
	if errors.Is(err, repository.ErrUserNotFound) {
		return ErrUserNotFound
	}
	return err
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
