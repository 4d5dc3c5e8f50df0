// Package repository содержит реализации хранилища движка кошельков: PostgreSQL и in-memory.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/earnhub/ledger-engine/internal/model"
)

var (
	// ErrUserExists возвращается при попытке создать пользователя с уже существующим логином.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь (и его кошелёк) не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrNotFound возвращается, если запрошенная запись отсутствует.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate возвращается при нарушении ограничения уникальности.
	ErrDuplicate = errors.New("duplicate record")
)

// AdCounter задаёт имя счётчика объявления.
type AdCounter string

const (
	CounterImpressions AdCounter = "impressions"
	CounterClicks      AdCounter = "clicks"
)

// Tx — единица работы. Все изменения внутри неё фиксируются вместе или не фиксируются вовсе.
// Методы Lock* берут эксклюзивную блокировку строки до конца транзакции.
type Tx interface {
	LockWallet(ctx context.Context, userID int64) (*model.Wallet, error)
	SetBalance(ctx context.Context, userID int64, kind model.BalanceKind, value decimal.Decimal) error
	InsertEntry(ctx context.Context, e *model.LedgerEntry) error
	LockEntry(ctx context.Context, id int64) (*model.LedgerEntry, error)
	UpdateEntryStatus(ctx context.Context, id int64, status model.EntryStatus) error
	ReferralChain(ctx context.Context, userID int64, depth int) ([]int64, error)

	GetUser(ctx context.Context, userID int64) (*model.User, error)
	SetBankAccount(ctx context.Context, userID int64, account model.BankAccount) error

	GetAdvertisement(ctx context.Context, id int64) (*model.Advertisement, error)
	HasAdInteraction(ctx context.Context, userID int64, day time.Time) (bool, error)
	InsertAdInteraction(ctx context.Context, in *model.AdInteraction) error
	IncrementAdCounter(ctx context.Context, id int64, counter AdCounter) error

	GetBrainTeaser(ctx context.Context, id int64) (*model.BrainTeaser, error)
	HasTeaserAttempt(ctx context.Context, userID, teaserID int64) (bool, error)
	InsertTeaserAttempt(ctx context.Context, a *model.TeaserAttempt) error
	IncrementTeaserCounters(ctx context.Context, id int64, correct bool) error

	LockProduct(ctx context.Context, id int64) (*model.Product, error)
	AdjustProductStock(ctx context.Context, id int64, stockDelta, salesDelta int) error
	LockCourse(ctx context.Context, id int64) (*model.Course, error)
	AdjustCourseEnrollments(ctx context.Context, id int64, delta int) error
	HasActiveEnrollment(ctx context.Context, courseID, userID int64) (bool, error)
	CountActiveEnrollments(ctx context.Context, userID int64) (int, error)
	InsertEnrollment(ctx context.Context, e *model.Enrollment) error
	RevokeEnrollment(ctx context.Context, purchaseID int64) error
	InsertPurchase(ctx context.Context, p *model.Purchase) error
	LockPurchase(ctx context.Context, id int64) (*model.Purchase, error)
	UpdatePurchase(ctx context.Context, p *model.Purchase) error

	InsertWithdrawal(ctx context.Context, w *model.WithdrawalRequest) error
	LockWithdrawal(ctx context.Context, id int64) (*model.WithdrawalRequest, error)
	UpdateWithdrawal(ctx context.Context, w *model.WithdrawalRequest) error
}

// TxFunc выполняется внутри транзакции и может вызываться повторно при конфликте сериализации.
type TxFunc func(ctx context.Context, tx Tx) error

func normalizeEntryFilter(f model.EntryFilter) model.EntryFilter {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

func normalizeWithdrawalFilter(f model.WithdrawalFilter) model.WithdrawalFilter {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
