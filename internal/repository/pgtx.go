package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/earnhub/ledger-engine/internal/model"
)

// pgTx реализует Tx поверх транзакции pgx.
type pgTx struct {
	q querier
}

func notFound(err error, target error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return target
	}
	return fmt.Errorf("%s: %w", op, err)
}

// nullID сохраняет ещё не назначенную ссылку на запись леджера как NULL.
func nullID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}

func (t *pgTx) LockWallet(ctx context.Context, userID int64) (*model.Wallet, error) {
	return scanWallet(t.q.QueryRow(ctx,
		`SELECT id, spendable_balance, referral_balance FROM users WHERE id = $1 FOR UPDATE`,
		userID,
	))
}

func (t *pgTx) SetBalance(ctx context.Context, userID int64, kind model.BalanceKind, value decimal.Decimal) error {
	column := "spendable_balance"
	if kind == model.BalanceReferral {
		column = "referral_balance"
	}
	tag, err := t.q.Exec(ctx, `UPDATE users SET `+column+` = $2 WHERE id = $1`, userID, value)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (t *pgTx) InsertEntry(ctx context.Context, e *model.LedgerEntry) error {
	var refID *int64
	if !e.Reference.IsZero() {
		refID = &e.Reference.ID
	}
	refKind := e.Reference.Kind
	if refKind == "" {
		refKind = model.RefNone
	}
	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	err := t.q.QueryRow(ctx,
		`INSERT INTO ledger_entries (user_id, kind, balance, amount, description, status, reference_kind, reference_id, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at`,
		e.UserID, string(e.Kind), string(e.Balance), e.Amount, e.Description, string(e.Status),
		string(refKind), refID, metadata,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

func (t *pgTx) LockEntry(ctx context.Context, id int64) (*model.LedgerEntry, error) {
	e, err := scanEntry(t.q.QueryRow(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err, ErrNotFound, "lock entry")
	}
	return e, nil
}

func (t *pgTx) UpdateEntryStatus(ctx context.Context, id int64, status model.EntryStatus) error {
	if _, err := t.q.Exec(ctx, `UPDATE ledger_entries SET status = $2 WHERE id = $1`, id, string(status)); err != nil {
		return fmt.Errorf("update entry status: %w", err)
	}
	return nil
}

// ReferralChain возвращает предков пользователя по цепочке referrer_id, ближайших первыми.
func (t *pgTx) ReferralChain(ctx context.Context, userID int64, depth int) ([]int64, error) {
	rows, err := t.q.Query(ctx,
		`WITH RECURSIVE chain (id, level, path) AS (
		     SELECT referrer_id, 1, ARRAY[id] FROM users WHERE id = $1 AND referrer_id IS NOT NULL
		     UNION ALL
		     SELECT u.referrer_id, c.level + 1, c.path || u.id
		     FROM chain c
		     JOIN users u ON u.id = c.id
		     WHERE u.referrer_id IS NOT NULL AND c.level < $2 AND NOT u.referrer_id = ANY(c.path || u.id)
		 )
		 SELECT id FROM chain ORDER BY level`,
		userID, depth,
	)
	if err != nil {
		return nil, fmt.Errorf("select referral chain: %w", err)
	}
	defer rows.Close()

	var res []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan referrer: %w", err)
		}
		res = append(res, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

func (t *pgTx) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	var (
		u                              model.User
		code, name, number, holderName *string
	)
	err := t.q.QueryRow(ctx,
		`SELECT id, login, referrer_id, withdrawal_access, bank_code, bank_name, bank_account_number, bank_account_name, created_at
		 FROM users WHERE id = $1`,
		userID,
	).Scan(&u.ID, &u.Login, &u.ReferrerID, &u.WithdrawalAccess, &code, &name, &number, &holderName, &u.CreatedAt)
	if err != nil {
		return nil, notFound(err, ErrUserNotFound, "get user")
	}
	if code != nil && number != nil && holderName != nil {
		u.BankAccount = &model.BankAccount{BankCode: *code, AccountNumber: *number, AccountName: *holderName}
		if name != nil {
			u.BankAccount.BankName = *name
		}
	}
	return &u, nil
}

func (t *pgTx) SetBankAccount(ctx context.Context, userID int64, a model.BankAccount) error {
	tag, err := t.q.Exec(ctx,
		`UPDATE users SET bank_code = $2, bank_name = $3, bank_account_number = $4, bank_account_name = $5 WHERE id = $1`,
		userID, a.BankCode, a.BankName, a.AccountNumber, a.AccountName,
	)
	if err != nil {
		return fmt.Errorf("update bank account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (t *pgTx) GetAdvertisement(ctx context.Context, id int64) (*model.Advertisement, error) {
	var a model.Advertisement
	err := t.q.QueryRow(ctx,
		`SELECT id, title, status, starts_at, ends_at, impressions, clicks FROM advertisements WHERE id = $1`,
		id,
	).Scan(&a.ID, &a.Title, &a.Status, &a.Window.StartsAt, &a.Window.EndsAt, &a.Impressions, &a.Clicks)
	if err != nil {
		return nil, notFound(err, ErrNotFound, "get advertisement")
	}
	return &a, nil
}

func (t *pgTx) HasAdInteraction(ctx context.Context, userID int64, day time.Time) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM ad_interactions WHERE user_id = $1 AND interaction_date = $2)`,
		userID, day,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check ad interaction: %w", err)
	}
	return exists, nil
}

func (t *pgTx) InsertAdInteraction(ctx context.Context, in *model.AdInteraction) error {
	err := t.q.QueryRow(ctx,
		`INSERT INTO ad_interactions (user_id, advertisement_id, type, reward_earned, interaction_date, interacted_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		in.UserID, in.AdvertisementID, string(in.Type), in.RewardEarned, in.Day, in.InteractedAt,
	).Scan(&in.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert ad interaction: %w", err)
	}
	return nil
}

func (t *pgTx) IncrementAdCounter(ctx context.Context, id int64, counter AdCounter) error {
	column := "impressions"
	if counter == CounterClicks {
		column = "clicks"
	}
	if _, err := t.q.Exec(ctx, `UPDATE advertisements SET `+column+` = `+column+` + 1 WHERE id = $1`, id); err != nil {
		return fmt.Errorf("increment ad counter: %w", err)
	}
	return nil
}

func (t *pgTx) GetBrainTeaser(ctx context.Context, id int64) (*model.BrainTeaser, error) {
	var b model.BrainTeaser
	err := t.q.QueryRow(ctx,
		`SELECT id, question, correct_answer, reward_amount, status, starts_at, ends_at, attempts, correct_attempts
		 FROM brain_teasers WHERE id = $1`,
		id,
	).Scan(&b.ID, &b.Question, &b.CorrectAnswer, &b.RewardAmount, &b.Status,
		&b.Window.StartsAt, &b.Window.EndsAt, &b.Attempts, &b.CorrectAttempts)
	if err != nil {
		return nil, notFound(err, ErrNotFound, "get brain teaser")
	}
	return &b, nil
}

func (t *pgTx) HasTeaserAttempt(ctx context.Context, userID, teaserID int64) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM brain_teaser_attempts WHERE user_id = $1 AND brain_teaser_id = $2)`,
		userID, teaserID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check teaser attempt: %w", err)
	}
	return exists, nil
}

func (t *pgTx) InsertTeaserAttempt(ctx context.Context, a *model.TeaserAttempt) error {
	err := t.q.QueryRow(ctx,
		`INSERT INTO brain_teaser_attempts (user_id, brain_teaser_id, answer, is_correct, reward_earned, attempted_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		a.UserID, a.BrainTeaserID, a.Answer, a.Correct, a.RewardEarned, a.AttemptedAt,
	).Scan(&a.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert teaser attempt: %w", err)
	}
	return nil
}

func (t *pgTx) IncrementTeaserCounters(ctx context.Context, id int64, correct bool) error {
	correctDelta := 0
	if correct {
		correctDelta = 1
	}
	_, err := t.q.Exec(ctx,
		`UPDATE brain_teasers SET attempts = attempts + 1, correct_attempts = correct_attempts + $2 WHERE id = $1`,
		id, correctDelta,
	)
	if err != nil {
		return fmt.Errorf("increment teaser counters: %w", err)
	}
	return nil
}

func (t *pgTx) LockProduct(ctx context.Context, id int64) (*model.Product, error) {
	var p model.Product
	err := t.q.QueryRow(ctx,
		`SELECT id, seller_id, title, price, stock, status, sales_count FROM products WHERE id = $1 FOR UPDATE`,
		id,
	).Scan(&p.ID, &p.SellerID, &p.Title, &p.Price, &p.Stock, &p.Status, &p.SalesCount)
	if err != nil {
		return nil, notFound(err, ErrNotFound, "lock product")
	}
	return &p, nil
}

func (t *pgTx) AdjustProductStock(ctx context.Context, id int64, stockDelta, salesDelta int) error {
	_, err := t.q.Exec(ctx,
		`UPDATE products SET stock = stock + $2, sales_count = sales_count + $3 WHERE id = $1`,
		id, stockDelta, salesDelta,
	)
	if err != nil {
		return fmt.Errorf("adjust product stock: %w", err)
	}
	return nil
}

func (t *pgTx) LockCourse(ctx context.Context, id int64) (*model.Course, error) {
	var c model.Course
	err := t.q.QueryRow(ctx,
		`SELECT id, instructor_id, title, price, status, enrollment_count FROM courses WHERE id = $1 FOR UPDATE`,
		id,
	).Scan(&c.ID, &c.InstructorID, &c.Title, &c.Price, &c.Status, &c.EnrollmentCount)
	if err != nil {
		return nil, notFound(err, ErrNotFound, "lock course")
	}
	return &c, nil
}

func (t *pgTx) AdjustCourseEnrollments(ctx context.Context, id int64, delta int) error {
	if _, err := t.q.Exec(ctx, `UPDATE courses SET enrollment_count = enrollment_count + $2 WHERE id = $1`, id, delta); err != nil {
		return fmt.Errorf("adjust course enrollments: %w", err)
	}
	return nil
}

func (t *pgTx) HasActiveEnrollment(ctx context.Context, courseID, userID int64) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM course_enrollments WHERE course_id = $1 AND user_id = $2 AND status = 'active')`,
		courseID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return exists, nil
}

func (t *pgTx) CountActiveEnrollments(ctx context.Context, userID int64) (int, error) {
	var n int
	err := t.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM course_enrollments WHERE user_id = $1 AND status = 'active'`,
		userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count enrollments: %w", err)
	}
	return n, nil
}

func (t *pgTx) InsertEnrollment(ctx context.Context, e *model.Enrollment) error {
	err := t.q.QueryRow(ctx,
		`INSERT INTO course_enrollments (course_id, user_id, purchase_id, status, enrolled_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		e.CourseID, e.UserID, e.PurchaseID, string(e.Status), e.EnrolledAt,
	).Scan(&e.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert enrollment: %w", err)
	}
	return nil
}

func (t *pgTx) RevokeEnrollment(ctx context.Context, purchaseID int64) error {
	_, err := t.q.Exec(ctx,
		`UPDATE course_enrollments SET status = $2 WHERE purchase_id = $1`,
		purchaseID, string(model.EnrollmentRefunded),
	)
	if err != nil {
		return fmt.Errorf("revoke enrollment: %w", err)
	}
	return nil
}

func (t *pgTx) InsertPurchase(ctx context.Context, p *model.Purchase) error {
	err := t.q.QueryRow(ctx,
		`INSERT INTO purchases (buyer_id, seller_id, item_kind, item_id, quantity, unit_price, total_price,
		                        commission, seller_amount, buyer_entry_id, seller_entry_id, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13) RETURNING id`,
		p.BuyerID, p.SellerID, string(p.ItemKind), p.ItemID, p.Quantity, p.UnitPrice, p.TotalPrice,
		p.Commission, p.SellerAmount, nullID(p.BuyerEntryID), nullID(p.SellerEntryID), string(p.Status), p.CreatedAt,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("insert purchase: %w", err)
	}
	return nil
}

func (t *pgTx) LockPurchase(ctx context.Context, id int64) (*model.Purchase, error) {
	var (
		p            model.Purchase
		kind, status string
	)
	err := t.q.QueryRow(ctx,
		`SELECT id, buyer_id, seller_id, item_kind, item_id, quantity, unit_price, total_price, commission,
		        seller_amount, COALESCE(buyer_entry_id, 0), COALESCE(seller_entry_id, 0), status, created_at,
		        refunded_at, refunded_by, refund_reason
		 FROM purchases WHERE id = $1 FOR UPDATE`,
		id,
	).Scan(&p.ID, &p.BuyerID, &p.SellerID, &kind, &p.ItemID, &p.Quantity, &p.UnitPrice, &p.TotalPrice, &p.Commission,
		&p.SellerAmount, &p.BuyerEntryID, &p.SellerEntryID, &status, &p.CreatedAt, &p.RefundedAt, &p.RefundedBy, &p.RefundReason)
	if err != nil {
		return nil, notFound(err, ErrNotFound, "lock purchase")
	}
	p.ItemKind = model.ItemKind(kind)
	p.Status = model.PurchaseStatus(status)
	return &p, nil
}

func (t *pgTx) UpdatePurchase(ctx context.Context, p *model.Purchase) error {
	_, err := t.q.Exec(ctx,
		`UPDATE purchases
		 SET buyer_entry_id = $2, seller_entry_id = $3, status = $4, refunded_at = $5, refunded_by = $6, refund_reason = $7
		 WHERE id = $1`,
		p.ID, nullID(p.BuyerEntryID), nullID(p.SellerEntryID), string(p.Status), p.RefundedAt, p.RefundedBy, p.RefundReason,
	)
	if err != nil {
		return fmt.Errorf("update purchase: %w", err)
	}
	return nil
}

func (t *pgTx) InsertWithdrawal(ctx context.Context, w *model.WithdrawalRequest) error {
	err := t.q.QueryRow(ctx,
		`INSERT INTO withdrawal_requests (reference, user_id, amount, source_balance, status, bank_code, bank_name,
		                                  bank_account_number, bank_account_name, ledger_entry_id, requested_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
		w.Reference, w.UserID, w.Amount, string(w.Source), string(w.Status), w.Account.BankCode, w.Account.BankName,
		w.Account.AccountNumber, w.Account.AccountName, nullID(w.LedgerEntryID), w.RequestedAt,
	).Scan(&w.ID)
	if err != nil {
		return fmt.Errorf("insert withdrawal: %w", err)
	}
	return nil
}

func (t *pgTx) LockWithdrawal(ctx context.Context, id int64) (*model.WithdrawalRequest, error) {
	w, err := scanWithdrawal(t.q.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err, ErrNotFound, "lock withdrawal")
	}
	return w, nil
}

func (t *pgTx) UpdateWithdrawal(ctx context.Context, w *model.WithdrawalRequest) error {
	_, err := t.q.Exec(ctx,
		`UPDATE withdrawal_requests
		 SET ledger_entry_id = $2, status = $3, refund_entry_id = $4, processed_at = $5, processed_by = $6,
		     transaction_id = $7, rejection_reason = $8
		 WHERE id = $1`,
		w.ID, nullID(w.LedgerEntryID), string(w.Status), w.RefundEntryID, w.ProcessedAt, w.ProcessedBy,
		w.TransactionID, w.RejectionReason,
	)
	if err != nil {
		return fmt.Errorf("update withdrawal: %w", err)
	}
	return nil
}
