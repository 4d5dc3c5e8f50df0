package repository

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/earnhub/ledger-engine/internal/model"
)

type adDayKey struct {
	userID int64
	day    string
}

type attemptKey struct {
	userID, teaserID int64
}

type assignment struct {
	packageID int64
	expiresAt *time.Time
}

// memState содержит полное состояние in-memory хранилища. Внутри транзакции изменяется его копия.
type memState struct {
	nextID map[string]int64

	users          map[int64]model.User
	wallets        map[int64]model.Wallet
	entries        map[int64]model.LedgerEntry
	packages       map[int64]model.Package
	assignments    map[int64]assignment
	ads            map[int64]model.Advertisement
	adInteractions map[adDayKey]model.AdInteraction
	teasers        map[int64]model.BrainTeaser
	attempts       map[attemptKey]model.TeaserAttempt
	products       map[int64]model.Product
	courses        map[int64]model.Course
	enrollments    map[int64]model.Enrollment
	purchases      map[int64]model.Purchase
	withdrawals    map[int64]model.WithdrawalRequest
}

func newMemState() *memState {
	return &memState{
		nextID:         map[string]int64{},
		users:          map[int64]model.User{},
		wallets:        map[int64]model.Wallet{},
		entries:        map[int64]model.LedgerEntry{},
		packages:       map[int64]model.Package{},
		assignments:    map[int64]assignment{},
		ads:            map[int64]model.Advertisement{},
		adInteractions: map[adDayKey]model.AdInteraction{},
		teasers:        map[int64]model.BrainTeaser{},
		attempts:       map[attemptKey]model.TeaserAttempt{},
		products:       map[int64]model.Product{},
		courses:        map[int64]model.Course{},
		enrollments:    map[int64]model.Enrollment{},
		purchases:      map[int64]model.Purchase{},
		withdrawals:    map[int64]model.WithdrawalRequest{},
	}
}

// clone копирует карты состояния. Значения заменяются целиком и на месте не изменяются.
func (s *memState) clone() *memState {
	return &memState{
		nextID:         maps.Clone(s.nextID),
		users:          maps.Clone(s.users),
		wallets:        maps.Clone(s.wallets),
		entries:        maps.Clone(s.entries),
		packages:       maps.Clone(s.packages),
		assignments:    maps.Clone(s.assignments),
		ads:            maps.Clone(s.ads),
		adInteractions: maps.Clone(s.adInteractions),
		teasers:        maps.Clone(s.teasers),
		attempts:       maps.Clone(s.attempts),
		products:       maps.Clone(s.products),
		courses:        maps.Clone(s.courses),
		enrollments:    maps.Clone(s.enrollments),
		purchases:      maps.Clone(s.purchases),
		withdrawals:    maps.Clone(s.withdrawals),
	}
}

func (s *memState) id(table string) int64 {
	s.nextID[table]++
	return s.nextID[table]
}

// MemoryRepository хранит данные в памяти процесса с тем же транзакционным контрактом, что и PostgreSQL.
// Транзакции выполняются строго по одной.
type MemoryRepository struct {
	mu     sync.Mutex
	state  *memState
	faults map[string]error
	now    func() time.Time
}

// NewMemoryRepository создаёт пустое in-memory хранилище.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		state:  newMemState(),
		faults: map[string]error{},
		now:    time.Now,
	}
}

// InjectFault заставляет операцию транзакции op завершаться ошибкой err. Пустой err снимает сбой.
func (m *MemoryRepository) InjectFault(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.faults, op)
		return
	}
	m.faults[op] = err
}

// Close ничего не освобождает и нужен для совместимости с PostgresRepository.
func (m *MemoryRepository) Close() error { return nil }

// WithinTx выполняет fn над копией состояния и публикует её только при успехе.
func (m *MemoryRepository) WithinTx(ctx context.Context, fn TxFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := m.state.clone()
	if err := fn(ctx, &memTx{st: snapshot, faults: m.faults, now: m.now}); err != nil {
		return err
	}
	m.state = snapshot
	return nil
}

func (m *MemoryRepository) locked(fn func(st *memState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.state)
}

// CreateUser создаёт пользователя вместе с нулевым кошельком.
func (m *MemoryRepository) CreateUser(_ context.Context, login string, referrerID *int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.state.users {
		if u.Login == login {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, login)
		}
	}
	if referrerID != nil {
		if _, ok := m.state.users[*referrerID]; !ok {
			return 0, fmt.Errorf("create user: referrer %d: %w", *referrerID, ErrUserNotFound)
		}
	}

	id := m.state.id("users")
	m.state.users[id] = model.User{
		ID:               id,
		Login:            login,
		ReferrerID:       referrerID,
		WithdrawalAccess: true,
		CreatedAt:        m.now(),
	}
	m.state.wallets[id] = model.Wallet{UserID: id, Currency: model.Currency}
	return id, nil
}

// SetWithdrawalAccess меняет признак доступа пользователя к выводу средств.
func (m *MemoryRepository) SetWithdrawalAccess(userID int64, allowed bool) {
	m.locked(func(st *memState) {
		if u, ok := st.users[userID]; ok {
			u.WithdrawalAccess = allowed
			st.users[userID] = u
		}
	})
}

// SetReferrer задаёт пригласившего пользователя без проверок, в том числе на циклы.
func (m *MemoryRepository) SetReferrer(userID, referrerID int64) {
	m.locked(func(st *memState) {
		if u, ok := st.users[userID]; ok {
			u.ReferrerID = &referrerID
			st.users[userID] = u
		}
	})
}

// AddPackage сохраняет пакет и возвращает его идентификатор.
func (m *MemoryRepository) AddPackage(p model.Package) int64 {
	var id int64
	m.locked(func(st *memState) {
		id = st.id("packages")
		p.ID = id
		st.packages[id] = p
	})
	return id
}

// AssignPackage назначает пользователю пакет. При expiresAt == nil пакет бессрочный.
func (m *MemoryRepository) AssignPackage(userID, packageID int64, expiresAt *time.Time) {
	m.locked(func(st *memState) {
		st.assignments[userID] = assignment{packageID: packageID, expiresAt: expiresAt}
	})
}

// AddAdvertisement сохраняет объявление и возвращает его идентификатор.
func (m *MemoryRepository) AddAdvertisement(a model.Advertisement) int64 {
	var id int64
	m.locked(func(st *memState) {
		id = st.id("advertisements")
		a.ID = id
		st.ads[id] = a
	})
	return id
}

// AddBrainTeaser сохраняет головоломку и возвращает её идентификатор.
func (m *MemoryRepository) AddBrainTeaser(b model.BrainTeaser) int64 {
	var id int64
	m.locked(func(st *memState) {
		id = st.id("brain_teasers")
		b.ID = id
		st.teasers[id] = b
	})
	return id
}

// AddProduct сохраняет товар и возвращает его идентификатор.
func (m *MemoryRepository) AddProduct(p model.Product) int64 {
	var id int64
	m.locked(func(st *memState) {
		id = st.id("products")
		p.ID = id
		st.products[id] = p
	})
	return id
}

// AddCourse сохраняет курс и возвращает его идентификатор.
func (m *MemoryRepository) AddCourse(c model.Course) int64 {
	var id int64
	m.locked(func(st *memState) {
		id = st.id("courses")
		c.ID = id
		st.courses[id] = c
	})
	return id
}

// Advertisement возвращает копию объявления.
func (m *MemoryRepository) Advertisement(id int64) (model.Advertisement, bool) {
	var (
		a  model.Advertisement
		ok bool
	)
	m.locked(func(st *memState) { a, ok = st.ads[id] })
	return a, ok
}

// BrainTeaser возвращает копию головоломки.
func (m *MemoryRepository) BrainTeaser(id int64) (model.BrainTeaser, bool) {
	var (
		b  model.BrainTeaser
		ok bool
	)
	m.locked(func(st *memState) { b, ok = st.teasers[id] })
	return b, ok
}

// Product возвращает копию товара.
func (m *MemoryRepository) Product(id int64) (model.Product, bool) {
	var (
		p  model.Product
		ok bool
	)
	m.locked(func(st *memState) { p, ok = st.products[id] })
	return p, ok
}

// Course возвращает копию курса.
func (m *MemoryRepository) Course(id int64) (model.Course, bool) {
	var (
		c  model.Course
		ok bool
	)
	m.locked(func(st *memState) { c, ok = st.courses[id] })
	return c, ok
}

// CountAdInteractions возвращает число сохранённых взаимодействий с рекламой.
func (m *MemoryRepository) CountAdInteractions() int {
	var n int
	m.locked(func(st *memState) { n = len(st.adInteractions) })
	return n
}

// GetWallet возвращает балансы пользователя.
func (m *MemoryRepository) GetWallet(_ context.Context, userID int64) (*model.Wallet, error) {
	var (
		w  model.Wallet
		ok bool
	)
	m.locked(func(st *memState) { w, ok = st.wallets[userID] })
	if !ok {
		return nil, ErrUserNotFound
	}
	return &w, nil
}

// GetEntry возвращает запись леджера по идентификатору.
func (m *MemoryRepository) GetEntry(_ context.Context, id int64) (*model.LedgerEntry, error) {
	var (
		e  model.LedgerEntry
		ok bool
	)
	m.locked(func(st *memState) { e, ok = st.entries[id] })
	if !ok {
		return nil, ErrNotFound
	}
	e.Metadata = maps.Clone(e.Metadata)
	return &e, nil
}

// ListEntries возвращает страницу истории операций пользователя, новые записи первыми.
func (m *MemoryRepository) ListEntries(_ context.Context, userID int64, f model.EntryFilter) (*model.EntryPage, error) {
	f = normalizeEntryFilter(f)

	var matched []model.LedgerEntry
	m.locked(func(st *memState) {
		for _, e := range st.entries {
			if e.UserID != userID ||
				(f.Kind != "" && e.Kind != f.Kind) ||
				(f.Status != "" && e.Status != f.Status) ||
				(f.From != nil && e.CreatedAt.Before(*f.From)) ||
				(f.To != nil && !e.CreatedAt.Before(*f.To)) {
				continue
			}
			e.Metadata = maps.Clone(e.Metadata)
			matched = append(matched, e)
		}
	})

	slices.SortFunc(matched, func(a, b model.LedgerEntry) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return int(b.ID - a.ID)
	})

	page := &model.EntryPage{Entries: []model.LedgerEntry{}, Total: len(matched)}
	if f.Offset < len(matched) {
		end := min(f.Offset+f.Limit, len(matched))
		page.Entries = append(page.Entries, matched[f.Offset:end]...)
	}
	return page, nil
}

// GetWithdrawal возвращает заявку на вывод по идентификатору.
func (m *MemoryRepository) GetWithdrawal(_ context.Context, id int64) (*model.WithdrawalRequest, error) {
	var (
		w  model.WithdrawalRequest
		ok bool
	)
	m.locked(func(st *memState) { w, ok = st.withdrawals[id] })
	if !ok {
		return nil, ErrNotFound
	}
	return &w, nil
}

// ListWithdrawals возвращает заявки пользователя (userID > 0) новыми первыми
// или очередь всех заявок старыми первыми.
func (m *MemoryRepository) ListWithdrawals(_ context.Context, userID int64, f model.WithdrawalFilter) ([]model.WithdrawalRequest, error) {
	f = normalizeWithdrawalFilter(f)

	var matched []model.WithdrawalRequest
	m.locked(func(st *memState) {
		for _, w := range st.withdrawals {
			if (userID > 0 && w.UserID != userID) || (f.Status != "" && w.Status != f.Status) {
				continue
			}
			matched = append(matched, w)
		}
	})

	slices.SortFunc(matched, func(a, b model.WithdrawalRequest) int {
		if userID > 0 {
			a, b = b, a
		}
		if c := a.RequestedAt.Compare(b.RequestedAt); c != 0 {
			return c
		}
		return int(a.ID - b.ID)
	})

	res := []model.WithdrawalRequest{}
	if f.Offset < len(matched) {
		res = append(res, matched[f.Offset:min(f.Offset+f.Limit, len(matched))]...)
	}
	return res, nil
}

// UserPackage возвращает действующий пакет пользователя или nil, если пакета нет.
func (m *MemoryRepository) UserPackage(_ context.Context, userID int64) (*model.Package, error) {
	var (
		p  model.Package
		ok bool
	)
	now := m.now()
	m.locked(func(st *memState) {
		a, assigned := st.assignments[userID]
		if !assigned || (a.expiresAt != nil && !a.expiresAt.After(now)) {
			return
		}
		p, ok = st.packages[a.packageID]
	})
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// ReconcileBalances сравнивает балансы кошельков с суммой проведённых записей леджера.
func (m *MemoryRepository) ReconcileBalances(_ context.Context) ([]model.Discrepancy, error) {
	var res []model.Discrepancy
	m.locked(func(st *memState) {
		sums := map[int64]*model.Wallet{}
		for _, e := range st.entries {
			if e.Status != model.EntryCompleted {
				continue
			}
			w, ok := sums[e.UserID]
			if !ok {
				w = &model.Wallet{}
				sums[e.UserID] = w
			}
			w.SetBalance(e.Balance, w.Balance(e.Balance).Add(e.Amount))
		}

		ids := slices.Sorted(maps.Keys(st.wallets))
		for _, id := range ids {
			stored := st.wallets[id]
			computed, ok := sums[id]
			if !ok {
				computed = &model.Wallet{}
			}
			for _, kind := range []model.BalanceKind{model.BalanceSpendable, model.BalanceReferral} {
				if !stored.Balance(kind).Equal(computed.Balance(kind)) {
					res = append(res, model.Discrepancy{
						UserID:   id,
						Balance:  kind,
						Stored:   stored.Balance(kind),
						Computed: computed.Balance(kind),
					})
				}
			}
		}
	})
	return res, nil
}

// ResolveReference возвращает название сущности, на которую указывает ссылка.
func (m *MemoryRepository) ResolveReference(_ context.Context, ref model.Reference) (string, error) {
	var (
		title string
		ok    bool
	)
	m.locked(func(st *memState) {
		switch ref.Kind {
		case model.RefAdvertisement:
			var a model.Advertisement
			a, ok = st.ads[ref.ID]
			title = a.Title
		case model.RefBrainTeaser:
			var b model.BrainTeaser
			b, ok = st.teasers[ref.ID]
			title = b.Question
		case model.RefCourse:
			var c model.Course
			c, ok = st.courses[ref.ID]
			title = c.Title
		case model.RefProduct:
			var p model.Product
			p, ok = st.products[ref.ID]
			title = p.Title
		case model.RefWithdrawal:
			var w model.WithdrawalRequest
			w, ok = st.withdrawals[ref.ID]
			title = "Withdrawal " + w.Reference.String()
		case model.RefPurchase:
			_, ok = st.purchases[ref.ID]
			title = fmt.Sprintf("Purchase #%d", ref.ID)
		default:
			ok = true
		}
	})
	if !ok {
		return "", ErrNotFound
	}
	return title, nil
}

// memTx реализует Tx над копией состояния.
type memTx struct {
	st     *memState
	faults map[string]error
	now    func() time.Time
}

func (t *memTx) fault(op string) error {
	if err, ok := t.faults[op]; ok {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (t *memTx) LockWallet(_ context.Context, userID int64) (*model.Wallet, error) {
	if err := t.fault("LockWallet"); err != nil {
		return nil, err
	}
	w, ok := t.st.wallets[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &w, nil
}

func (t *memTx) SetBalance(_ context.Context, userID int64, kind model.BalanceKind, value decimal.Decimal) error {
	if err := t.fault("SetBalance"); err != nil {
		return err
	}
	w, ok := t.st.wallets[userID]
	if !ok {
		return ErrUserNotFound
	}
	if value.IsNegative() {
		return fmt.Errorf("update balance: %s balance of user %d would be negative", kind, userID)
	}
	w.SetBalance(kind, value)
	t.st.wallets[userID] = w
	return nil
}

func (t *memTx) InsertEntry(_ context.Context, e *model.LedgerEntry) error {
	if err := t.fault("InsertEntry"); err != nil {
		return err
	}
	e.ID = t.st.id("ledger_entries")
	e.CreatedAt = t.now()
	if e.Reference.Kind == "" {
		e.Reference.Kind = model.RefNone
	}
	stored := *e
	stored.Metadata = maps.Clone(e.Metadata)
	t.st.entries[e.ID] = stored
	return nil
}

func (t *memTx) LockEntry(_ context.Context, id int64) (*model.LedgerEntry, error) {
	e, ok := t.st.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	e.Metadata = maps.Clone(e.Metadata)
	return &e, nil
}

func (t *memTx) UpdateEntryStatus(_ context.Context, id int64, status model.EntryStatus) error {
	if err := t.fault("UpdateEntryStatus"); err != nil {
		return err
	}
	e, ok := t.st.entries[id]
	if !ok {
		return ErrNotFound
	}
	e.Status = status
	t.st.entries[id] = e
	return nil
}

func (t *memTx) ReferralChain(_ context.Context, userID int64, depth int) ([]int64, error) {
	seen := map[int64]bool{userID: true}
	var res []int64
	cur := userID
	for len(res) < depth {
		u, ok := t.st.users[cur]
		if !ok || u.ReferrerID == nil || seen[*u.ReferrerID] {
			break
		}
		cur = *u.ReferrerID
		seen[cur] = true
		res = append(res, cur)
	}
	return res, nil
}

func (t *memTx) GetUser(_ context.Context, userID int64) (*model.User, error) {
	u, ok := t.st.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	if u.BankAccount != nil {
		account := *u.BankAccount
		u.BankAccount = &account
	}
	return &u, nil
}

func (t *memTx) SetBankAccount(_ context.Context, userID int64, account model.BankAccount) error {
	u, ok := t.st.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.BankAccount = &account
	t.st.users[userID] = u
	return nil
}

func (t *memTx) GetAdvertisement(_ context.Context, id int64) (*model.Advertisement, error) {
	a, ok := t.st.ads[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (t *memTx) HasAdInteraction(_ context.Context, userID int64, day time.Time) (bool, error) {
	_, ok := t.st.adInteractions[adDayKey{userID: userID, day: day.Format(time.DateOnly)}]
	return ok, nil
}

func (t *memTx) InsertAdInteraction(_ context.Context, in *model.AdInteraction) error {
	if err := t.fault("InsertAdInteraction"); err != nil {
		return err
	}
	key := adDayKey{userID: in.UserID, day: in.Day.Format(time.DateOnly)}
	if _, ok := t.st.adInteractions[key]; ok {
		return ErrDuplicate
	}
	in.ID = t.st.id("ad_interactions")
	t.st.adInteractions[key] = *in
	return nil
}

func (t *memTx) IncrementAdCounter(_ context.Context, id int64, counter AdCounter) error {
	if err := t.fault("IncrementAdCounter"); err != nil {
		return err
	}
	a, ok := t.st.ads[id]
	if !ok {
		return ErrNotFound
	}
	if counter == CounterClicks {
		a.Clicks++
	} else {
		a.Impressions++
	}
	t.st.ads[id] = a
	return nil
}

func (t *memTx) GetBrainTeaser(_ context.Context, id int64) (*model.BrainTeaser, error) {
	b, ok := t.st.teasers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (t *memTx) HasTeaserAttempt(_ context.Context, userID, teaserID int64) (bool, error) {
	_, ok := t.st.attempts[attemptKey{userID: userID, teaserID: teaserID}]
	return ok, nil
}

func (t *memTx) InsertTeaserAttempt(_ context.Context, a *model.TeaserAttempt) error {
	key := attemptKey{userID: a.UserID, teaserID: a.BrainTeaserID}
	if _, ok := t.st.attempts[key]; ok {
		return ErrDuplicate
	}
	a.ID = t.st.id("brain_teaser_attempts")
	t.st.attempts[key] = *a
	return nil
}

func (t *memTx) IncrementTeaserCounters(_ context.Context, id int64, correct bool) error {
	b, ok := t.st.teasers[id]
	if !ok {
		return ErrNotFound
	}
	b.Attempts++
	if correct {
		b.CorrectAttempts++
	}
	t.st.teasers[id] = b
	return nil
}

func (t *memTx) LockProduct(_ context.Context, id int64) (*model.Product, error) {
	p, ok := t.st.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (t *memTx) AdjustProductStock(_ context.Context, id int64, stockDelta, salesDelta int) error {
	if err := t.fault("AdjustProductStock"); err != nil {
		return err
	}
	p, ok := t.st.products[id]
	if !ok {
		return ErrNotFound
	}
	if p.Stock+stockDelta < 0 {
		return fmt.Errorf("adjust product stock: stock of product %d would be negative", id)
	}
	p.Stock += stockDelta
	p.SalesCount += int64(salesDelta)
	t.st.products[id] = p
	return nil
}

func (t *memTx) LockCourse(_ context.Context, id int64) (*model.Course, error) {
	c, ok := t.st.courses[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (t *memTx) AdjustCourseEnrollments(_ context.Context, id int64, delta int) error {
	c, ok := t.st.courses[id]
	if !ok {
		return ErrNotFound
	}
	c.EnrollmentCount += int64(delta)
	t.st.courses[id] = c
	return nil
}

func (t *memTx) HasActiveEnrollment(_ context.Context, courseID, userID int64) (bool, error) {
	for _, e := range t.st.enrollments {
		if e.CourseID == courseID && e.UserID == userID && e.Status == model.EnrollmentActive {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) CountActiveEnrollments(_ context.Context, userID int64) (int, error) {
	n := 0
	for _, e := range t.st.enrollments {
		if e.UserID == userID && e.Status == model.EnrollmentActive {
			n++
		}
	}
	return n, nil
}

func (t *memTx) InsertEnrollment(ctx context.Context, e *model.Enrollment) error {
	if exists, _ := t.HasActiveEnrollment(ctx, e.CourseID, e.UserID); exists {
		return ErrDuplicate
	}
	e.ID = t.st.id("course_enrollments")
	t.st.enrollments[e.ID] = *e
	return nil
}

func (t *memTx) RevokeEnrollment(_ context.Context, purchaseID int64) error {
	for id, e := range t.st.enrollments {
		if e.PurchaseID == purchaseID {
			e.Status = model.EnrollmentRefunded
			t.st.enrollments[id] = e
		}
	}
	return nil
}

func (t *memTx) InsertPurchase(_ context.Context, p *model.Purchase) error {
	if err := t.fault("InsertPurchase"); err != nil {
		return err
	}
	p.ID = t.st.id("purchases")
	t.st.purchases[p.ID] = *p
	return nil
}

func (t *memTx) LockPurchase(_ context.Context, id int64) (*model.Purchase, error) {
	p, ok := t.st.purchases[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (t *memTx) UpdatePurchase(_ context.Context, p *model.Purchase) error {
	if _, ok := t.st.purchases[p.ID]; !ok {
		return ErrNotFound
	}
	t.st.purchases[p.ID] = *p
	return nil
}

func (t *memTx) InsertWithdrawal(_ context.Context, w *model.WithdrawalRequest) error {
	if err := t.fault("InsertWithdrawal"); err != nil {
		return err
	}
	w.ID = t.st.id("withdrawal_requests")
	t.st.withdrawals[w.ID] = *w
	return nil
}

func (t *memTx) LockWithdrawal(_ context.Context, id int64) (*model.WithdrawalRequest, error) {
	w, ok := t.st.withdrawals[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &w, nil
}

func (t *memTx) UpdateWithdrawal(_ context.Context, w *model.WithdrawalRequest) error {
	if err := t.fault("UpdateWithdrawal"); err != nil {
		return err
	}
	if _, ok := t.st.withdrawals[w.ID]; !ok {
		return ErrNotFound
	}
	t.st.withdrawals[w.ID] = *w
	return nil
}
