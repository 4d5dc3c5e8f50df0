package service

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strconv"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/earnhub/ledger-engine/internal/model"
	"github.com/earnhub/ledger-engine/internal/repository"
)

var (
	productCommissionRate = decimal.RequireFromString("0.05")
	courseCommissionRate  = decimal.RequireFromString("0.10")
)

// CommissionRate возвращает долю платформы для вида товара.
func CommissionRate(kind model.ItemKind) decimal.Decimal {
	if kind == model.ItemCourse {
		return courseCommissionRate
	}
	return productCommissionRate
}

// SplitPayment делит сумму покупки на комиссию платформы и долю продавца.
// Комиссия округляется до копеек, продавец получает остаток, так что сумма частей равна total.
func SplitPayment(total, rate decimal.Decimal) (commission, seller decimal.Decimal) {
	commission = model.Money(total.Mul(rate))
	return commission, total.Sub(commission)
}

// PurchaseResult содержит итог покупки.
type PurchaseResult struct {
	Purchase      *model.Purchase `json:"purchase"`
	LedgerEntryID int64           `json:"ledger_entry_id"`
	NewBalance    decimal.Decimal `json:"new_balance"`
}

// item обобщает заблокированный товар или курс.
type item struct {
	sellerID int64
	title    string
	price    decimal.Decimal
}

func (s *Service) checkPurchaseAccess(ctx context.Context, buyerID int64, kind model.ItemKind) (*model.Package, error) {
	pkg, err := s.userPackage(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	if kind == model.ItemProduct && !pkg.MarketplaceAccess {
		return nil, ErrEntitlementDenied
	}
	return pkg, nil
}

// lockItem блокирует строку товара или курса и проверяет, что покупка возможна.
func lockItem(ctx context.Context, tx repository.Tx, pkg *model.Package, buyerID int64, kind model.ItemKind, itemID int64, quantity int) (*item, error) {
	switch kind {
	case model.ItemProduct:
		p, err := tx.LockProduct(ctx, itemID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrItemNotFound
			}
			return nil, err
		}
		if p.Status != model.CatalogStatusActive {
			return nil, ErrSubjectNotActive
		}
		if p.SellerID == buyerID {
			return nil, ErrSelfPurchaseForbidden
		}
		if p.Stock < quantity {
			return nil, ErrInsufficientStock
		}
		return &item{sellerID: p.SellerID, title: p.Title, price: p.Price}, nil

	case model.ItemCourse:
		c, err := tx.LockCourse(ctx, itemID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrItemNotFound
			}
			return nil, err
		}
		if c.Status != model.CatalogStatusActive {
			return nil, ErrSubjectNotActive
		}
		if c.InstructorID == buyerID {
			return nil, ErrSelfPurchaseForbidden
		}
		enrolled, err := tx.HasActiveEnrollment(ctx, c.ID, buyerID)
		if err != nil {
			return nil, err
		}
		if enrolled {
			return nil, ErrAlreadyEnrolled
		}
		if pkg.CourseAccessLimit > 0 {
			n, err := tx.CountActiveEnrollments(ctx, buyerID)
			if err != nil {
				return nil, err
			}
			if n >= pkg.CourseAccessLimit {
				return nil, ErrEntitlementDenied
			}
		}
		return &item{sellerID: c.InstructorID, title: c.Title, price: c.Price}, nil
	}
	return nil, invalid("item_kind", "must be product or course")
}

// lockWallets блокирует кошельки в порядке возрастания идентификаторов.
func lockWallets(ctx context.Context, tx repository.Tx, ids ...int64) error {
	ids = slices.Clone(ids)
	slices.Sort(ids)
	for _, id := range slices.Compact(ids) {
		if _, err := tx.LockWallet(ctx, id); err != nil {
			return userNotFound(err)
		}
	}
	return nil
}

// Purchase списывает стоимость товара с покупателя, зачисляет продавцу его долю за вычетом
// комиссии платформы и уменьшает остаток товара или создаёт запись на курс.
func (s *Service) Purchase(ctx context.Context, buyerID int64, kind model.ItemKind, itemID int64, quantity int) (*PurchaseResult, error) {
	if kind != model.ItemProduct && kind != model.ItemCourse {
		return nil, invalid("item_kind", "must be product or course")
	}
	if quantity < 1 {
		return nil, invalid("quantity", "must be at least 1")
	}
	if kind == model.ItemCourse && quantity != 1 {
		return nil, invalid("quantity", "course can be purchased only once")
	}
	pkg, err := s.checkPurchaseAccess(ctx, buyerID, kind)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var res *PurchaseResult
	err = s.inTx(ctx, "purchase", func(ctx context.Context, tx repository.Tx) error {
		it, err := lockItem(ctx, tx, pkg, buyerID, kind, itemID, quantity)
		if err != nil {
			return err
		}
		if !it.price.IsPositive() {
			return invalid("price", "item has no price")
		}
		if err := lockWallets(ctx, tx, buyerID, it.sellerID); err != nil {
			return err
		}

		total := model.Money(it.price.Mul(decimal.NewFromInt(int64(quantity))))
		rate := CommissionRate(kind)
		commission, sellerAmount := SplitPayment(total, rate)

		p := &model.Purchase{
			BuyerID:      buyerID,
			SellerID:     it.sellerID,
			ItemKind:     kind,
			ItemID:       itemID,
			Quantity:     quantity,
			UnitPrice:    it.price,
			TotalPrice:   total,
			Commission:   commission,
			SellerAmount: sellerAmount,
			Status:       model.PurchaseCompleted,
			CreatedAt:    now,
		}
		if err := tx.InsertPurchase(ctx, p); err != nil {
			return err
		}

		meta := map[string]string{
			"purchase_id":     formatID(p.ID),
			"quantity":        strconv.Itoa(quantity),
			"unit_price":      it.price.StringFixed(model.MoneyPlaces),
			"commission":      commission.StringFixed(model.MoneyPlaces),
			"commission_rate": rate.String(),
		}
		ref := p.ItemReference()

		buyerEntry, err := s.record(ctx, tx, model.EntryInput{
			UserID:      buyerID,
			Kind:        model.EntryPurchase,
			Amount:      total.Neg(),
			Description: "Purchase: " + it.title,
			Reference:   ref,
			Metadata:    meta,
		})
		if err != nil {
			return err
		}
		sellerMeta := map[string]string{"buyer_id": formatID(buyerID)}
		maps.Copy(sellerMeta, meta)
		sellerEntry, err := s.record(ctx, tx, model.EntryInput{
			UserID:      it.sellerID,
			Kind:        model.EntryEarning,
			Amount:      sellerAmount,
			Description: "Sale: " + it.title,
			Reference:   ref,
			Metadata:    sellerMeta,
		})
		if err != nil {
			return err
		}

		switch kind {
		case model.ItemProduct:
			if err := tx.AdjustProductStock(ctx, itemID, -quantity, quantity); err != nil {
				return err
			}
		case model.ItemCourse:
			err := tx.InsertEnrollment(ctx, &model.Enrollment{
				CourseID:   itemID,
				UserID:     buyerID,
				PurchaseID: p.ID,
				Status:     model.EnrollmentActive,
				EnrolledAt: now,
			})
			if err != nil {
				if errors.Is(err, repository.ErrDuplicate) {
					return ErrAlreadyEnrolled
				}
				return err
			}
			if err := tx.AdjustCourseEnrollments(ctx, itemID, 1); err != nil {
				return err
			}
		}

		p.BuyerEntryID = buyerEntry.ID
		p.SellerEntryID = sellerEntry.ID
		if err := tx.UpdatePurchase(ctx, p); err != nil {
			return err
		}

		w, err := tx.LockWallet(ctx, buyerID)
		if err != nil {
			return err
		}
		res = &PurchaseResult{Purchase: p, LedgerEntryID: buyerEntry.ID, NewBalance: w.Spendable}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("purchase settled",
		zap.Int64("purchase_id", res.Purchase.ID),
		zap.Int64("buyer_id", buyerID),
		zap.Int64("seller_id", res.Purchase.SellerID),
		zap.String("item_kind", string(kind)),
		zap.Int64("item_id", itemID),
		zap.String("total", res.Purchase.TotalPrice.StringFixed(model.MoneyPlaces)),
		zap.String("commission", res.Purchase.Commission.StringFixed(model.MoneyPlaces)),
	)
	return res, nil
}

// RefundPurchase возвращает покупателю полную стоимость, списывает с продавца его долю
// и восстанавливает остаток товара или отменяет запись на курс.
func (s *Service) RefundPurchase(ctx context.Context, purchaseID, adminID int64, reason string) (*model.Purchase, error) {
	if reason == "" {
		return nil, invalid("reason", "must not be empty")
	}

	now := s.now()
	var refunded *model.Purchase
	err := s.inTx(ctx, "refund purchase", func(ctx context.Context, tx repository.Tx) error {
		p, err := tx.LockPurchase(ctx, purchaseID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrPurchaseNotFound
			}
			return err
		}
		if p.Status != model.PurchaseCompleted {
			return ErrInvalidState
		}
		if err := lockWallets(ctx, tx, p.BuyerID, p.SellerID); err != nil {
			return err
		}

		meta := map[string]string{
			"purchase_id": formatID(p.ID),
			"reason":      reason,
		}
		ref := model.PurchaseRef(p.ID)
		if _, err := s.record(ctx, tx, model.EntryInput{
			UserID:      p.SellerID,
			Kind:        model.EntryPurchase,
			Amount:      p.SellerAmount.Neg(),
			Description: "Sale reversal",
			Reference:   ref,
			Metadata:    meta,
		}); err != nil {
			return err
		}
		if _, err := s.record(ctx, tx, model.EntryInput{
			UserID:      p.BuyerID,
			Kind:        model.EntryRefund,
			Amount:      p.TotalPrice,
			Description: "Purchase refund",
			Reference:   ref,
			Metadata:    meta,
		}); err != nil {
			return err
		}

		switch p.ItemKind {
		case model.ItemProduct:
			if err := tx.AdjustProductStock(ctx, p.ItemID, p.Quantity, -p.Quantity); err != nil {
				return err
			}
		case model.ItemCourse:
			if err := tx.RevokeEnrollment(ctx, p.ID); err != nil {
				return err
			}
			if err := tx.AdjustCourseEnrollments(ctx, p.ItemID, -1); err != nil {
				return err
			}
		}

		p.Status = model.PurchaseRefunded
		p.RefundedAt = &now
		p.RefundedBy = &adminID
		p.RefundReason = reason
		if err := tx.UpdatePurchase(ctx, p); err != nil {
			return err
		}
		refunded = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("purchase refunded",
		zap.Int64("purchase_id", purchaseID),
		zap.Int64("admin_id", adminID),
	)
	return refunded, nil
}
