package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/earnhub/ledger-engine/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// querier объединяет методы пула и транзакции, которыми пользуются запросы.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool        *pgxpool.Pool
	retryDelays []time.Duration
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{
		pool:        pool,
		retryDelays: []time.Duration{50 * time.Millisecond, 200 * time.Millisecond, 500 * time.Millisecond},
	}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет fn при конфликте сериализации, взаимоблокировке и обрыве соединения.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error

	for i := 0; i <= len(r.retryDelays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !isRetryable(err) || i == len(r.retryDelays) {
			break
		}

		timer := time.NewTimer(r.retryDelays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// WithinTx выполняет fn в сериализуемой транзакции. При конфликте сериализации
// транзакция повторяется целиком, поэтому fn не должна иметь внешних побочных эффектов.
func (r *PostgresRepository) WithinTx(ctx context.Context, fn TxFunc) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := fn(ctx, &pgTx{q: tx}); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// CreateUser создаёт пользователя вместе с нулевым кошельком.
func (r *PostgresRepository) CreateUser(ctx context.Context, login string, referrerID *int64) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (login, referrer_id) VALUES ($1, $2) RETURNING id`,
		login, referrerID,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, login)
		}
		if referrerID != nil && isForeignKeyViolation(err) {
			return 0, fmt.Errorf("create user: referrer %d: %w", *referrerID, ErrUserNotFound)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetWallet возвращает балансы пользователя.
func (r *PostgresRepository) GetWallet(ctx context.Context, userID int64) (*model.Wallet, error) {
	return scanWallet(r.pool.QueryRow(ctx,
		`SELECT id, spendable_balance, referral_balance FROM users WHERE id = $1`,
		userID,
	))
}

func scanWallet(row pgx.Row) (*model.Wallet, error) {
	w := model.Wallet{Currency: model.Currency}
	if err := row.Scan(&w.UserID, &w.Spendable, &w.Referral); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("scan wallet: %w", err)
	}
	return &w, nil
}

const entryColumns = `id, user_id, kind, balance, amount, description, status, reference_kind, reference_id, metadata, created_at`

func scanEntry(row pgx.Row) (*model.LedgerEntry, error) {
	var (
		e                           model.LedgerEntry
		kind, balance, status, rKnd string
		refID                       *int64
		metadata                    map[string]string
	)
	err := row.Scan(&e.ID, &e.UserID, &kind, &balance, &e.Amount, &e.Description, &status, &rKnd, &refID, &metadata, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.Kind = model.EntryKind(kind)
	e.Balance = model.BalanceKind(balance)
	e.Status = model.EntryStatus(status)
	e.Reference = model.Reference{Kind: model.RefKind(rKnd)}
	if refID != nil {
		e.Reference.ID = *refID
	}
	if len(metadata) > 0 {
		e.Metadata = metadata
	}
	return &e, nil
}

// GetEntry возвращает запись леджера по идентификатору.
func (r *PostgresRepository) GetEntry(ctx context.Context, id int64) (*model.LedgerEntry, error) {
	e, err := scanEntry(r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return e, nil
}

// ListEntries возвращает страницу истории операций пользователя, новые записи первыми.
func (r *PostgresRepository) ListEntries(ctx context.Context, userID int64, f model.EntryFilter) (*model.EntryPage, error) {
	f = normalizeEntryFilter(f)

	where := []string{"user_id = $1"}
	args := []any{userID}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Kind != "" {
		add("kind = $%d", string(f.Kind))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at < $%d", *f.To)
	}
	cond := strings.Join(where, " AND ")

	page := &model.EntryPage{Entries: []model.LedgerEntry{}}
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_entries WHERE `+cond, args...).Scan(&page.Total); err != nil {
		return nil, fmt.Errorf("count entries: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	rows, err := r.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM ledger_entries WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
			entryColumns, cond, len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("select entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		page.Entries = append(page.Entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return page, nil
}

const withdrawalColumns = `id, reference, user_id, amount, source_balance, status, bank_code, bank_name,
	bank_account_number, bank_account_name, COALESCE(ledger_entry_id, 0), refund_entry_id, requested_at,
	processed_at, processed_by, transaction_id, rejection_reason`

func scanWithdrawal(row pgx.Row) (*model.WithdrawalRequest, error) {
	var (
		w              model.WithdrawalRequest
		source, status string
	)
	err := row.Scan(&w.ID, &w.Reference, &w.UserID, &w.Amount, &source, &status,
		&w.Account.BankCode, &w.Account.BankName, &w.Account.AccountNumber, &w.Account.AccountName,
		&w.LedgerEntryID, &w.RefundEntryID, &w.RequestedAt,
		&w.ProcessedAt, &w.ProcessedBy, &w.TransactionID, &w.RejectionReason)
	if err != nil {
		return nil, err
	}
	w.Source = model.BalanceKind(source)
	w.Status = model.WithdrawalStatus(status)
	return &w, nil
}

// GetWithdrawal возвращает заявку на вывод по идентификатору.
func (r *PostgresRepository) GetWithdrawal(ctx context.Context, id int64) (*model.WithdrawalRequest, error) {
	w, err := scanWithdrawal(r.pool.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get withdrawal: %w", err)
	}
	return w, nil
}

// ListWithdrawals возвращает заявки пользователя (userID > 0) или всех пользователей, новые первыми.
// Для очереди модерации (только статус, без пользователя) порядок обратный: старые первыми.
func (r *PostgresRepository) ListWithdrawals(ctx context.Context, userID int64, f model.WithdrawalFilter) ([]model.WithdrawalRequest, error) {
	f = normalizeWithdrawalFilter(f)

	where := []string{"TRUE"}
	var args []any
	if userID > 0 {
		args = append(args, userID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	order := "requested_at DESC, id DESC"
	if userID == 0 {
		order = "requested_at, id"
	}
	args = append(args, f.Limit, f.Offset)

	rows, err := r.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM withdrawal_requests WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
			withdrawalColumns, strings.Join(where, " AND "), order, len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("select withdrawals: %w", err)
	}
	defer rows.Close()

	res := []model.WithdrawalRequest{}
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan withdrawal: %w", err)
		}
		res = append(res, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// UserPackage возвращает действующий пакет пользователя или nil, если пакета нет.
func (r *PostgresRepository) UserPackage(ctx context.Context, userID int64) (*model.Package, error) {
	var p model.Package
	err := r.pool.QueryRow(ctx,
		`SELECT p.id, p.name, p.daily_earning_limit, p.ad_interaction_limit,
		        p.brain_teaser_access, p.course_access_limit, p.marketplace_access
		 FROM user_packages up
		 JOIN packages p ON p.id = up.package_id
		 WHERE up.user_id = $1 AND (up.expires_at IS NULL OR up.expires_at > now())`,
		userID,
	).Scan(&p.ID, &p.Name, &p.DailyEarningLimit, &p.AdInteractionLimit,
		&p.BrainTeaserAccess, &p.CourseAccessLimit, &p.MarketplaceAccess)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user package: %w", err)
	}
	return &p, nil
}

// ReconcileBalances сравнивает балансы кошельков с суммой проведённых записей леджера.
func (r *PostgresRepository) ReconcileBalances(ctx context.Context) ([]model.Discrepancy, error) {
	rows, err := r.pool.Query(ctx,
		`WITH sums AS (
		     SELECT user_id,
		            COALESCE(SUM(amount) FILTER (WHERE balance = 'spendable'), 0) AS spendable,
		            COALESCE(SUM(amount) FILTER (WHERE balance = 'referral'), 0) AS referral
		     FROM ledger_entries
		     WHERE status = 'completed'
		     GROUP BY user_id
		 )
		 SELECT u.id, u.spendable_balance, COALESCE(s.spendable, 0), u.referral_balance, COALESCE(s.referral, 0)
		 FROM users u
		 LEFT JOIN sums s ON s.user_id = u.id
		 WHERE u.spendable_balance <> COALESCE(s.spendable, 0)
		    OR u.referral_balance <> COALESCE(s.referral, 0)
		 ORDER BY u.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("reconcile balances: %w", err)
	}
	defer rows.Close()

	var res []model.Discrepancy
	for rows.Next() {
		var (
			userID                       int64
			spendable, spendableComputed decimal.Decimal
			referral, referralComputed   decimal.Decimal
		)
		if err := rows.Scan(&userID, &spendable, &spendableComputed, &referral, &referralComputed); err != nil {
			return nil, fmt.Errorf("scan discrepancy: %w", err)
		}
		if !spendable.Equal(spendableComputed) {
			res = append(res, model.Discrepancy{UserID: userID, Balance: model.BalanceSpendable, Stored: spendable, Computed: spendableComputed})
		}
		if !referral.Equal(referralComputed) {
			res = append(res, model.Discrepancy{UserID: userID, Balance: model.BalanceReferral, Stored: referral, Computed: referralComputed})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ResolveReference возвращает название сущности, на которую указывает ссылка.
func (r *PostgresRepository) ResolveReference(ctx context.Context, ref model.Reference) (string, error) {
	var query string
	switch ref.Kind {
	case model.RefAdvertisement:
		query = `SELECT title FROM advertisements WHERE id = $1`
	case model.RefBrainTeaser:
		query = `SELECT question FROM brain_teasers WHERE id = $1`
	case model.RefCourse:
		query = `SELECT title FROM courses WHERE id = $1`
	case model.RefProduct:
		query = `SELECT title FROM products WHERE id = $1`
	case model.RefWithdrawal:
		query = `SELECT 'Withdrawal ' || reference::text FROM withdrawal_requests WHERE id = $1`
	case model.RefPurchase:
		query = `SELECT 'Purchase #' || id::text FROM purchases WHERE id = $1`
	default:
		return "", nil
	}

	var title string
	if err := r.pool.QueryRow(ctx, query, ref.ID).Scan(&title); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("resolve reference %s: %w", ref, err)
	}
	return title, nil
}
