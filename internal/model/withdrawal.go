package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WithdrawalStatus описывает состояние заявки на вывод средств.
type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "pending"
	WithdrawalApproved  WithdrawalStatus = "approved"
	WithdrawalRejected  WithdrawalStatus = "rejected"
	WithdrawalCancelled WithdrawalStatus = "cancelled"
)

// Terminal сообщает, что из статуса больше нет переходов.
func (s WithdrawalStatus) Terminal() bool {
	return s != WithdrawalPending
}

// Valid сообщает, известен ли статус.
func (s WithdrawalStatus) Valid() bool {
	switch s {
	case WithdrawalPending, WithdrawalApproved, WithdrawalRejected, WithdrawalCancelled:
		return true
	}
	return false
}

// WithdrawalRequest описывает заявку на вывод средств. Сумма списывается в момент создания заявки.
type WithdrawalRequest struct {
	ID              int64            `json:"id"`
	Reference       uuid.UUID        `json:"reference"`
	UserID          int64            `json:"user_id"`
	Amount          decimal.Decimal  `json:"amount"`
	Source          BalanceKind      `json:"source_balance"`
	Status          WithdrawalStatus `json:"status"`
	Account         BankAccount      `json:"account"`
	LedgerEntryID   int64            `json:"ledger_entry_id"`
	RefundEntryID   *int64           `json:"refund_entry_id,omitempty"`
	RequestedAt     time.Time        `json:"requested_at"`
	ProcessedAt     *time.Time       `json:"processed_at,omitempty"`
	ProcessedBy     *int64           `json:"processed_by,omitempty"`
	TransactionID   string           `json:"transaction_id,omitempty"`
	RejectionReason string           `json:"rejection_reason,omitempty"`
}

// WithdrawalSettings содержит платформенные настройки вывода средств.
type WithdrawalSettings struct {
	Enabled   bool
	MinAmount decimal.Decimal
	MaxAmount decimal.Decimal
}

// WithdrawalFilter задаёт страницу истории заявок.
type WithdrawalFilter struct {
	Status WithdrawalStatus
	Limit  int
	Offset int
}
