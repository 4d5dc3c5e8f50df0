package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// EntryKind описывает экономический смысл записи леджера.
type EntryKind string

const (
	EntryEarning           EntryKind = "earning"
	EntryReferralEarning   EntryKind = "referral_earning"
	EntryPurchase          EntryKind = "purchase"
	EntryWithdrawalRequest EntryKind = "withdrawal_request"
	EntryWithdrawal        EntryKind = "withdrawal"
	EntryRefund            EntryKind = "refund"
)

// Credit сообщает, должна ли сумма записи этого вида быть положительной.
func (k EntryKind) Credit() bool {
	switch k {
	case EntryEarning, EntryReferralEarning, EntryRefund:
		return true
	}
	return false
}

// Valid сообщает, известен ли вид записи.
func (k EntryKind) Valid() bool {
	switch k {
	case EntryEarning, EntryReferralEarning, EntryPurchase,
		EntryWithdrawalRequest, EntryWithdrawal, EntryRefund:
		return true
	}
	return false
}

// DefaultBalance возвращает баланс, который затрагивает запись, если он не указан явно.
func (k EntryKind) DefaultBalance() BalanceKind {
	if k == EntryReferralEarning {
		return BalanceReferral
	}
	return BalanceSpendable
}

// EntryStatus описывает статус записи леджера.
type EntryStatus string

const (
	EntryPending   EntryStatus = "pending"
	EntryCompleted EntryStatus = "completed"
	EntryFailed    EntryStatus = "failed"
)

// RefKind перечисляет сущности, которые могут быть причиной записи.
type RefKind string

const (
	RefNone          RefKind = "none"
	RefAdvertisement RefKind = "advertisement"
	RefBrainTeaser   RefKind = "brain_teaser"
	RefCourse        RefKind = "course"
	RefProduct       RefKind = "product"
	RefWithdrawal    RefKind = "withdrawal"
	RefPurchase      RefKind = "purchase"
)

// Reference указывает на сущность, вызвавшую запись.
type Reference struct {
	Kind RefKind `json:"kind"`
	ID   int64   `json:"id,omitempty"`
}

// NoReference возвращает пустую ссылку для записей без источника.
func NoReference() Reference {
	return Reference{Kind: RefNone}
}

// AdvertisementRef ссылается на рекламное объявление.
func AdvertisementRef(id int64) Reference {
	return Reference{Kind: RefAdvertisement, ID: id}
}

// BrainTeaserRef ссылается на головоломку.
func BrainTeaserRef(id int64) Reference {
	return Reference{Kind: RefBrainTeaser, ID: id}
}

// CourseRef ссылается на курс.
func CourseRef(id int64) Reference {
	return Reference{Kind: RefCourse, ID: id}
}

// ProductRef ссылается на товар маркетплейса.
func ProductRef(id int64) Reference {
	return Reference{Kind: RefProduct, ID: id}
}

// WithdrawalRef ссылается на заявку на вывод средств.
func WithdrawalRef(id int64) Reference {
	return Reference{Kind: RefWithdrawal, ID: id}
}

// PurchaseRef ссылается на покупку.
func PurchaseRef(id int64) Reference {
	return Reference{Kind: RefPurchase, ID: id}
}

// IsZero сообщает, что ссылка не указывает ни на какую сущность.
func (r Reference) IsZero() bool {
	return r.Kind == "" || r.Kind == RefNone
}

// Validate проверяет согласованность вида ссылки и идентификатора.
func (r Reference) Validate() error {
	switch r.Kind {
	case "", RefNone:
		if r.ID != 0 {
			return fmt.Errorf("reference without kind has id %d", r.ID)
		}
		return nil
	case RefAdvertisement, RefBrainTeaser, RefCourse, RefProduct, RefWithdrawal, RefPurchase:
		if r.ID <= 0 {
			return fmt.Errorf("reference %s requires positive id", r.Kind)
		}
		return nil
	}
	return fmt.Errorf("unknown reference kind %q", r.Kind)
}

// String возвращает ссылку в виде kind#id.
func (r Reference) String() string {
	if r.IsZero() {
		return string(RefNone)
	}
	return fmt.Sprintf("%s#%d", r.Kind, r.ID)
}

// LedgerEntry описывает одно экономическое событие. После фиксации запись не меняется, кроме статуса pending.
type LedgerEntry struct {
	ID          int64             `json:"id"`
	UserID      int64             `json:"user_id"`
	Kind        EntryKind         `json:"kind"`
	Balance     BalanceKind       `json:"balance"`
	Amount      decimal.Decimal   `json:"amount"`
	Description string            `json:"description"`
	Status      EntryStatus       `json:"status"`
	Reference   Reference         `json:"reference"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// EntryInput содержит параметры новой записи леджера.
// Пустой Balance выводится из Kind. Pending создаёт запись без изменения баланса до её проведения.
type EntryInput struct {
	UserID      int64
	Kind        EntryKind
	Balance     BalanceKind
	Amount      decimal.Decimal
	Description string
	Reference   Reference
	Metadata    map[string]string
	Pending     bool
}

// EntryFilter ограничивает выборку истории операций.
type EntryFilter struct {
	Kind   EntryKind
	Status EntryStatus
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

// EntryPage содержит страницу истории операций и общее число записей.
type EntryPage struct {
	Entries []LedgerEntry `json:"entries"`
	Total   int           `json:"total"`
}

// Discrepancy описывает расхождение сохранённого баланса с суммой записей.
type Discrepancy struct {
	UserID   int64           `json:"user_id"`
	Balance  BalanceKind     `json:"balance"`
	Stored   decimal.Decimal `json:"stored"`
	Computed decimal.Decimal `json:"computed"`
}
