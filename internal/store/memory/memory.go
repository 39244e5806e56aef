package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/store"
	"tillpoint/backend/internal/xid"
)

// Seed identifiers for the demo business.
const (
	DemoBusinessID    = "biz_demo"
	DeptGrocery       = "dept_grocery"
	DeptProduce       = "dept_produce"
	DeptAlcohol       = "dept_alcohol"
	DeptTobacco       = "dept_tobacco"
	UPCWater          = "049000028911"
	UPCCola           = "012000001291"
	UPCBananas        = "041303001806"
	UPCLager          = "018200000164"
	UPCCigars         = "012300000017"
	UPCChips          = "028400090896"
	demoPaymentAcctID = "acct_demo_connected"
)

type Store struct {
	mu               sync.RWMutex
	businesses       map[string]domain.Business
	departments      map[string]domain.Department
	productsByUPC    map[string]domain.Product
	transactionsByID map[string]*domain.Transaction
	shiftsByID       map[string]domain.Shift
	activeShiftByKey map[string]string
	auditLogs        []domain.AuditLog
	usersByUsername  map[string]domain.UserAccount
}

// New returns an empty store. Use the Put* helpers to load catalog data.
func New() *Store {
	return &Store{
		businesses:       make(map[string]domain.Business),
		departments:      make(map[string]domain.Department),
		productsByUPC:    make(map[string]domain.Product),
		transactionsByID: make(map[string]*domain.Transaction),
		shiftsByID:       make(map[string]domain.Shift),
		activeShiftByKey: make(map[string]string),
		auditLogs:        make([]domain.AuditLog, 0, 128),
		usersByUsername:  make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the demo owner, manager and cashier accounts. Passwords come
// from SEED_OWNER_PASSWORD, SEED_MANAGER_PASSWORD and SEED_CASHIER_PASSWORD;
// dev defaults are used with a warning when unset.
func seedUsers() []domain.UserAccount {
	ownerPwd := envOr("SEED_OWNER_PASSWORD", "owner123")
	managerPwd := envOr("SEED_MANAGER_PASSWORD", "manager123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_OWNER_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_OWNER_PASSWORD, SEED_MANAGER_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := make([]domain.UserAccount, 0, 3)
	for _, u := range []struct {
		id       string
		username string
		name     string
		password string
		role     string
	}{
		{"usr_owner", "owner", "Olivia Owner", ownerPwd, domain.RoleOwner},
		{"usr_manager", "manager", "Marcus Manager", managerPwd, domain.RoleManager},
		{"usr_cashier", "cashier", "Casey Cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users = append(users, domain.UserAccount{
			ID:         u.id,
			Username:   u.username,
			Password:   string(hash),
			Name:       u.name,
			Role:       u.role,
			BusinessID: DemoBusinessID,
			Active:     true,
			CreatedAt:  now,
		})
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with one demo business: taxed at 8%, connected to
// the payment platform, and stocked with age- and time-restricted departments.
func NewSeeded() *Store {
	s := New()

	s.PutBusiness(domain.Business{
		ID:                DemoBusinessID,
		Name:              "Corner Market",
		Address:           "100 Main St, Springfield",
		TaxRate:           decimal.RequireFromString("0.08"),
		Timezone:          "America/New_York",
		PaymentAccountID:  demoPaymentAcctID,
		PaymentsEnabled:   true,
		NotificationEmail: "owner@cornermarket.example",
	})

	age21, age18 := 21, 18
	for _, dept := range []domain.Department{
		{ID: DeptGrocery, Name: "Grocery", Taxable: true},
		{ID: DeptProduce, Name: "Produce", Taxable: false},
		{ID: DeptAlcohol, Name: "Beer & Wine", Taxable: true, AgeRestriction: &age21, TimeRestriction: &domain.TimeRestriction{StartHour: 2, EndHour: 6}},
		{ID: DeptTobacco, Name: "Tobacco", Taxable: true, AgeRestriction: &age18},
	} {
		dept.BusinessID = DemoBusinessID
		s.PutDepartment(dept)
	}

	for _, p := range []domain.Product{
		{ID: "prd_water", UPC: UPCWater, Name: "Spring Water 24pk", DepartmentID: DeptGrocery, PriceCents: 500},
		{ID: "prd_cola", UPC: UPCCola, Name: "Cola 12oz", DepartmentID: DeptGrocery, PriceCents: 199},
		{ID: "prd_chips", UPC: UPCChips, Name: "Potato Chips", DepartmentID: DeptGrocery, PriceCents: 349},
		{ID: "prd_bananas", UPC: UPCBananas, Name: "Bananas (lb)", DepartmentID: DeptProduce, PriceCents: 69},
		{ID: "prd_lager", UPC: UPCLager, Name: "Lager 6-Pack", DepartmentID: DeptAlcohol, PriceCents: 899},
		{ID: "prd_cigars", UPC: UPCCigars, Name: "Cigars 5ct", DepartmentID: DeptTobacco, PriceCents: 1200},
	} {
		p.BusinessID = DemoBusinessID
		p.Active = true
		s.PutProduct(p)
	}

	for _, user := range seedUsers() {
		s.usersByUsername[user.Username] = user
	}
	return s
}

func (s *Store) PutBusiness(business domain.Business) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.businesses[business.ID] = business
}

func (s *Store) PutDepartment(dept domain.Department) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.departments[scopedKey(dept.BusinessID, dept.ID)] = dept
}

func (s *Store) PutProduct(product domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.productsByUPC[scopedKey(product.BusinessID, product.UPC)] = product
}

func (s *Store) GetBusiness(_ context.Context, businessID string) (*domain.Business, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	business, ok := s.businesses[businessID]
	if !ok {
		return nil, domain.ErrBusinessNotFound
	}
	return &business, nil
}

func (s *Store) GetProductByUPC(_ context.Context, businessID string, upc string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.productsByUPC[scopedKey(businessID, upc)]
	if !ok || !product.Active {
		return nil, domain.ErrProductNotFound
	}
	return &product, nil
}

func (s *Store) GetDepartment(_ context.Context, businessID string, departmentID string) (*domain.Department, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dept, ok := s.departments[scopedKey(businessID, departmentID)]
	if !ok {
		return nil, domain.ErrDepartmentNotFound
	}
	return &dept, nil
}

func (s *Store) MarkDayClosed(_ context.Context, businessID string, at time.Time, summarySent bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	business, ok := s.businesses[businessID]
	if !ok {
		return domain.ErrBusinessNotFound
	}
	business.LastDayClosedAt = &at
	business.DailySummarySent = summarySent
	if summarySent {
		business.LastSummarySentAt = &at
	}
	s.businesses[businessID] = business
	return nil
}

func (s *Store) MarkSummarySent(_ context.Context, businessID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	business, ok := s.businesses[businessID]
	if !ok {
		return domain.ErrBusinessNotFound
	}
	business.DailySummarySent = true
	business.LastSummarySentAt = &at
	s.businesses[businessID] = business
	return nil
}

func (s *Store) ListBusinessesPendingSummary(_ context.Context, dayStart time.Time) ([]domain.Business, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Business, 0, len(s.businesses))
	for _, business := range s.businesses {
		if business.LastDayClosedAt != nil && !business.LastDayClosedAt.Before(dayStart) {
			continue
		}
		if business.LastSummarySentAt != nil && !business.LastSummarySentAt.Before(dayStart) {
			continue
		}
		result = append(result, business)
	}
	slices.SortFunc(result, func(a, b domain.Business) int {
		return strings.Compare(a.ID, b.ID)
	})
	return result, nil
}

func (s *Store) CreateTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if strings.TrimSpace(tx.BusinessID) == "" {
		return nil, fmt.Errorf("%w: business id is required", domain.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.ID == "" {
		tx.ID = xid.New("txn")
	}
	if _, exists := s.transactionsByID[tx.ID]; exists {
		return nil, store.ErrConflict
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	items := make([]domain.TransactionItem, len(tx.Items))
	for i, item := range tx.Items {
		if item.ID == "" {
			item.ID = xid.New("item")
		}
		item.TransactionID = tx.ID
		items[i] = item
	}
	tx.Items = items

	s.transactionsByID[tx.ID] = cloneTransaction(&tx)
	return cloneTransaction(&tx), nil
}

func (s *Store) DeleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.transactionsByID[id]; !ok {
		return domain.ErrTransactionNotFound
	}
	delete(s.transactionsByID, id)
	return nil
}

func (s *Store) FindTransaction(_ context.Context, businessID string, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactionsByID[id]
	if !ok || (businessID != "" && tx.BusinessID != businessID) {
		return nil, domain.ErrTransactionNotFound
	}
	return cloneTransaction(tx), nil
}

func (s *Store) FindTransactionByPaymentRef(_ context.Context, paymentRef string) (*domain.Transaction, error) {
	if paymentRef == "" {
		return nil, domain.ErrTransactionNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, tx := range s.transactionsByID {
		if tx.PaymentRef == paymentRef && tx.Type == domain.TxTypeSale {
			return cloneTransaction(tx), nil
		}
	}
	return nil, domain.ErrTransactionNotFound
}

func (s *Store) ListTransactions(_ context.Context, filter domain.TransactionFilter) ([]domain.Transaction, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.Transaction, 0, 64)
	for _, tx := range s.transactionsByID {
		if filter.BusinessID != "" && tx.BusinessID != filter.BusinessID {
			continue
		}
		if filter.From != nil && tx.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !tx.CreatedAt.Before(*filter.To) {
			continue
		}
		if filter.Type != "" && tx.Type != filter.Type {
			continue
		}
		if filter.PaymentMethod != "" && tx.PaymentMethod != filter.PaymentMethod {
			continue
		}
		if filter.CashierID != "" && tx.CashierID != filter.CashierID {
			continue
		}
		matched = append(matched, *cloneTransaction(tx))
	}
	sortNewestFirst(matched)

	total := len(matched)
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []domain.Transaction{}, total, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (s *Store) ListTransactionsSince(_ context.Context, businessID string, since time.Time, types []domain.TxType) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transaction, 0, 64)
	for _, tx := range s.transactionsByID {
		if tx.BusinessID != businessID || tx.CreatedAt.Before(since) {
			continue
		}
		if len(types) > 0 && !slices.Contains(types, tx.Type) {
			continue
		}
		result = append(result, *cloneTransaction(tx))
	}
	slices.SortFunc(result, func(a, b domain.Transaction) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return result, nil
}

func (s *Store) AttachPaymentIntent(_ context.Context, id string, paymentRef string, feeCents int64, netCents int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactionsByID[id]
	if !ok {
		return domain.ErrTransactionNotFound
	}
	if tx.Status != domain.TxStatusPending {
		return store.ErrConflict
	}
	tx.PaymentRef = paymentRef
	tx.ProcessingFeeCents = feeCents
	tx.NetCents = netCents
	return nil
}

func (s *Store) CompleteTransaction(_ context.Context, id string, chargeRef string, at time.Time) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactionsByID[id]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	if tx.Status != domain.TxStatusPending {
		return nil, fmt.Errorf("%w: transaction is %s", store.ErrConflict, tx.Status)
	}
	tx.Status = domain.TxStatusCompleted
	tx.ChargeRef = chargeRef
	tx.ErrorMessage = ""
	tx.CompletedAt = &at
	return cloneTransaction(tx), nil
}

func (s *Store) FailTransaction(_ context.Context, id string, message string) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactionsByID[id]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	if tx.Status != domain.TxStatusPending {
		return nil, fmt.Errorf("%w: transaction is %s", store.ErrConflict, tx.Status)
	}
	tx.Status = domain.TxStatusFailed
	tx.ErrorMessage = message
	return cloneTransaction(tx), nil
}

func (s *Store) CreateRefund(_ context.Context, originalID string, refund domain.Transaction, at time.Time) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.transactionsByID[originalID]
	if !ok || original.BusinessID != refund.BusinessID {
		return nil, domain.ErrTransactionNotFound
	}
	if err := refundable(original); err != nil {
		return nil, err
	}

	if refund.ID == "" {
		refund.ID = xid.New("txn")
	}
	if refund.CreatedAt.IsZero() {
		refund.CreatedAt = at
	}
	refund.OriginalTransactionID = originalID
	items := make([]domain.TransactionItem, len(refund.Items))
	for i, item := range refund.Items {
		if item.ID == "" {
			item.ID = xid.New("item")
		}
		item.TransactionID = refund.ID
		items[i] = item
	}
	refund.Items = items

	original.Refunded = true
	original.RefundedCents = -refund.TotalCents
	original.RefundedAt = &at
	s.transactionsByID[refund.ID] = cloneTransaction(&refund)
	return cloneTransaction(&refund), nil
}

func (s *Store) RollbackRefund(_ context.Context, originalID string, refundID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.transactionsByID, refundID)
	original, ok := s.transactionsByID[originalID]
	if !ok {
		return domain.ErrTransactionNotFound
	}
	original.Refunded = false
	original.RefundedCents = 0
	original.RefundedAt = nil
	return nil
}

func (s *Store) CompleteRefund(_ context.Context, refundID string, refundRef string, at time.Time) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactionsByID[refundID]
	if !ok || tx.Type != domain.TxTypeRefund {
		return nil, domain.ErrTransactionNotFound
	}
	tx.Status = domain.TxStatusCompleted
	tx.RefundRef = refundRef
	tx.CompletedAt = &at
	return cloneTransaction(tx), nil
}

func (s *Store) VoidTransaction(_ context.Context, businessID string, id string, by string, reason string, at time.Time, notBefore time.Time) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactionsByID[id]
	if !ok || (businessID != "" && tx.BusinessID != businessID) {
		return nil, domain.ErrTransactionNotFound
	}
	if err := voidable(tx, notBefore); err != nil {
		return nil, err
	}
	tx.Voided = true
	tx.VoidedAt = &at
	tx.VoidedBy = by
	tx.VoidReason = reason
	return cloneTransaction(tx), nil
}

func (s *Store) CreateShift(_ context.Context, shift domain.Shift) (*domain.Shift, error) {
	if strings.TrimSpace(shift.BusinessID) == "" || strings.TrimSpace(shift.CashierID) == "" {
		return nil, fmt.Errorf("%w: business and cashier are required", domain.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := shiftMapKey(shift.BusinessID, shift.CashierID)
	if _, exists := s.activeShiftByKey[key]; exists {
		return nil, domain.ErrShiftAlreadyOpen
	}
	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	if shift.StartedAt.IsZero() {
		shift.StartedAt = time.Now().UTC()
	}
	shift.EndedAt = nil

	s.shiftsByID[shift.ID] = shift
	s.activeShiftByKey[key] = shift.ID
	copyShift := shift
	return &copyShift, nil
}

func (s *Store) GetOpenShift(_ context.Context, businessID string, cashierID string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shiftID, exists := s.activeShiftByKey[shiftMapKey(businessID, cashierID)]
	if !exists {
		return nil, domain.ErrNoActiveShift
	}
	shift, exists := s.shiftsByID[shiftID]
	if !exists || !shift.IsOpen() {
		return nil, domain.ErrNoActiveShift
	}
	copyShift := shift
	return &copyShift, nil
}

func (s *Store) CloseShift(_ context.Context, shift domain.Shift) (*domain.Shift, error) {
	if shift.EndedAt == nil {
		return nil, fmt.Errorf("%w: ended_at is required to close a shift", domain.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.shiftsByID[shift.ID]
	if !exists || !current.IsOpen() {
		return nil, domain.ErrNoActiveShift
	}
	current.EndingCashCents = shift.EndingCashCents
	current.EndingCounts = shift.EndingCounts
	current.ExpectedCashCents = shift.ExpectedCashCents
	current.CashDifferenceCents = shift.CashDifferenceCents
	current.CashSalesCents = shift.CashSalesCents
	current.CardSalesCents = shift.CardSalesCents
	current.RefundsCents = shift.RefundsCents
	current.PayInsCents = shift.PayInsCents
	current.PayOutsCents = shift.PayOutsCents
	endedAt := *shift.EndedAt
	current.EndedAt = &endedAt

	delete(s.activeShiftByKey, shiftMapKey(current.BusinessID, current.CashierID))
	s.shiftsByID[current.ID] = current
	copyShift := current
	return &copyShift, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

// AuditLogs returns a copy of the recorded audit entries, oldest first.
func (s *Store) AuditLogs() []domain.AuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.auditLogs)
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return fmt.Errorf("%w: username and password are required", domain.ErrValidation)
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return fmt.Errorf("%w: username and password are required", domain.ErrValidation)
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func refundable(original *domain.Transaction) error {
	if original.Type != domain.TxTypeSale {
		return domain.ErrNotRefundable
	}
	if original.Refunded {
		return domain.ErrAlreadyRefunded
	}
	if original.Voided {
		return fmt.Errorf("%w: transaction was voided", domain.ErrNotRefundable)
	}
	if original.Status != domain.TxStatusCompleted {
		return fmt.Errorf("%w: transaction is %s", domain.ErrNotRefundable, original.Status)
	}
	return nil
}

func voidable(tx *domain.Transaction, notBefore time.Time) error {
	if tx.Status != domain.TxStatusCompleted || tx.Voided || tx.Refunded || tx.Type == domain.TxTypeRefund {
		return domain.ErrNotVoidable
	}
	if tx.CreatedAt.Before(notBefore) {
		return domain.ErrVoidWindowExpired
	}
	return nil
}

func shiftMapKey(businessID string, cashierID string) string {
	return businessID + "|" + cashierID
}

func scopedKey(businessID string, id string) string {
	return businessID + "|" + id
}

func sortNewestFirst(txs []domain.Transaction) {
	slices.SortFunc(txs, func(a, b domain.Transaction) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
}

func cloneTransaction(src *domain.Transaction) *domain.Transaction {
	if src == nil {
		return nil
	}
	dup := *src
	dup.Items = slices.Clone(src.Items)
	if dup.Items == nil {
		dup.Items = []domain.TransactionItem{}
	}
	return &dup
}
