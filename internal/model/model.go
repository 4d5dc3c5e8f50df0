// Package model содержит доменные сущности движка кошельков и леджера.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Currency задаёт единственную валюту платформы.
const Currency = "NGN"

// MoneyPlaces задаёт число знаков после запятой, с которым хранятся суммы.
const MoneyPlaces = 2

// Money округляет сумму до точности хранения.
func Money(v decimal.Decimal) decimal.Decimal {
	return v.Round(MoneyPlaces)
}

// User описывает пользователя в объёме, нужном ядру.
type User struct {
	ID               int64
	Login            string
	ReferrerID       *int64
	WithdrawalAccess bool
	BankAccount      *BankAccount
	CreatedAt        time.Time
}

// BankAccount содержит банковские реквизиты для вывода средств.
type BankAccount struct {
	BankCode      string `json:"bank_code"`
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
}

// BalanceKind определяет, какой из балансов кошелька затрагивает операция.
type BalanceKind string

const (
	BalanceSpendable BalanceKind = "spendable"
	BalanceReferral  BalanceKind = "referral"
)

// Valid сообщает, является ли значение известным видом баланса.
func (b BalanceKind) Valid() bool {
	return b == BalanceSpendable || b == BalanceReferral
}

// Wallet содержит балансы пользователя.
type Wallet struct {
	UserID    int64           `json:"user_id"`
	Spendable decimal.Decimal `json:"spendable_balance"`
	Referral  decimal.Decimal `json:"referral_balance"`
	Currency  string          `json:"currency"`
}

// Balance возвращает значение указанного баланса.
func (w *Wallet) Balance(kind BalanceKind) decimal.Decimal {
	if kind == BalanceReferral {
		return w.Referral
	}
	return w.Spendable
}

// SetBalance меняет значение указанного баланса в структуре.
func (w *Wallet) SetBalance(kind BalanceKind, v decimal.Decimal) {
	if kind == BalanceReferral {
		w.Referral = v
		return
	}
	w.Spendable = v
}

// Package описывает тарифный пакет пользователя.
// AdInteractionLimit хранится в пакете, но лимит рекламы фиксирован: одно взаимодействие в день.
type Package struct {
	ID                 int64           `json:"id"`
	Name               string          `json:"name"`
	DailyEarningLimit  decimal.Decimal `json:"daily_earning_limit"`
	AdInteractionLimit int             `json:"ad_interaction_limit"`
	BrainTeaserAccess  bool            `json:"brain_teaser_access"`
	CourseAccessLimit  int             `json:"course_access_limit"`
	MarketplaceAccess  bool            `json:"marketplace_access"`
}

// Window задаёт интервал активности сущности каталога. Пустые границы не ограничивают.
type Window struct {
	StartsAt *time.Time
	EndsAt   *time.Time
}

// Contains проверяет, попадает ли момент t в окно.
func (w Window) Contains(t time.Time) bool {
	if w.StartsAt != nil && t.Before(*w.StartsAt) {
		return false
	}
	if w.EndsAt != nil && t.After(*w.EndsAt) {
		return false
	}
	return true
}

// CatalogStatusActive обозначает опубликованную сущность каталога.
const CatalogStatusActive = "active"
