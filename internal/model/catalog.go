package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Advertisement описывает рекламное объявление, за взаимодействие с которым начисляется награда.
type Advertisement struct {
	ID          int64
	Title       string
	Status      string
	Window      Window
	Impressions int64
	Clicks      int64
}

// Active проверяет статус и окно показа объявления.
func (a *Advertisement) Active(now time.Time) bool {
	return a.Status == CatalogStatusActive && a.Window.Contains(now)
}

// InteractionType описывает вид взаимодействия с объявлением.
type InteractionType string

const (
	InteractionView  InteractionType = "view"
	InteractionClick InteractionType = "click"
)

// Valid сообщает, допустим ли вид взаимодействия для рекламы.
func (t InteractionType) Valid() bool {
	return t == InteractionView || t == InteractionClick
}

// AdInteraction фиксирует взаимодействие пользователя с рекламой за календарный день.
type AdInteraction struct {
	ID              int64
	UserID          int64
	AdvertisementID int64
	Type            InteractionType
	RewardEarned    decimal.Decimal
	Day             time.Time
	InteractedAt    time.Time
}

// BrainTeaser описывает головоломку с фиксированной наградой за верный ответ.
type BrainTeaser struct {
	ID              int64
	Question        string
	CorrectAnswer   string
	RewardAmount    decimal.Decimal
	Status          string
	Window          Window
	Attempts        int64
	CorrectAttempts int64
}

// Active проверяет статус и окно доступности головоломки.
func (b *BrainTeaser) Active(now time.Time) bool {
	return b.Status == CatalogStatusActive && b.Window.Contains(now)
}

// TeaserAttempt хранит единственную попытку пользователя ответить на головоломку.
type TeaserAttempt struct {
	ID            int64
	UserID        int64
	BrainTeaserID int64
	Answer        string
	Correct       bool
	RewardEarned  decimal.Decimal
	AttemptedAt   time.Time
}

// ItemKind описывает вид товара в коммерческих операциях.
type ItemKind string

const (
	ItemProduct ItemKind = "product"
	ItemCourse  ItemKind = "course"
)

// Product описывает товар маркетплейса.
type Product struct {
	ID         int64
	SellerID   int64
	Title      string
	Price      decimal.Decimal
	Stock      int
	Status     string
	SalesCount int64
}

// Course описывает платный курс.
type Course struct {
	ID              int64
	InstructorID    int64
	Title           string
	Price           decimal.Decimal
	Status          string
	EnrollmentCount int64
}

// EnrollmentStatus описывает состояние записи на курс.
type EnrollmentStatus string

const (
	EnrollmentActive   EnrollmentStatus = "active"
	EnrollmentRefunded EnrollmentStatus = "refunded"
)

// Enrollment связывает пользователя с оплаченным курсом.
type Enrollment struct {
	ID         int64
	CourseID   int64
	UserID     int64
	PurchaseID int64
	Status     EnrollmentStatus
	EnrolledAt time.Time
}

// PurchaseStatus описывает состояние покупки.
type PurchaseStatus string

const (
	PurchaseCompleted PurchaseStatus = "completed"
	PurchaseRefunded  PurchaseStatus = "refunded"
)

// Purchase хранит итог расчёта между покупателем, продавцом и платформой.
type Purchase struct {
	ID            int64           `json:"id"`
	BuyerID       int64           `json:"buyer_id"`
	SellerID      int64           `json:"seller_id"`
	ItemKind      ItemKind        `json:"item_kind"`
	ItemID        int64           `json:"item_id"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	Commission    decimal.Decimal `json:"platform_commission"`
	SellerAmount  decimal.Decimal `json:"seller_amount"`
	BuyerEntryID  int64           `json:"buyer_entry_id"`
	SellerEntryID int64           `json:"seller_entry_id"`
	Status        PurchaseStatus  `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	RefundedAt    *time.Time      `json:"refunded_at,omitempty"`
	RefundedBy    *int64          `json:"refunded_by,omitempty"`
	RefundReason  string          `json:"refund_reason,omitempty"`
}

// ItemReference возвращает ссылку на купленный товар.
func (p *Purchase) ItemReference() Reference {
	if p.ItemKind == ItemCourse {
		return CourseRef(p.ItemID)
	}
	return ProductRef(p.ItemID)
}
