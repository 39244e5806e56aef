package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/store"
	"tillpoint/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const businessColumns = `
	id, name, address, tax_rate, timezone, COALESCE(payment_account_id,''),
	payments_enabled, COALESCE(notification_email,''), last_day_closed_at,
	daily_summary_sent, last_summary_sent_at`

func scanBusiness(row rowScanner) (*domain.Business, error) {
	var b domain.Business
	var closedAt, summaryAt sql.NullTime
	if err := row.Scan(
		&b.ID, &b.Name, &b.Address, &b.TaxRate, &b.Timezone, &b.PaymentAccountID,
		&b.PaymentsEnabled, &b.NotificationEmail, &closedAt,
		&b.DailySummarySent, &summaryAt,
	); err != nil {
		return nil, err
	}
	b.LastDayClosedAt = timePtr(closedAt)
	b.LastSummarySentAt = timePtr(summaryAt)
	return &b, nil
}

func (s *Store) GetBusiness(ctx context.Context, businessID string) (*domain.Business, error) {
	b, err := scanBusiness(s.db.QueryRowContext(ctx, `SELECT `+businessColumns+` FROM businesses WHERE id = $1`, businessID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrBusinessNotFound
		}
		return nil, err
	}
	return b, nil
}

func (s *Store) GetProductByUPC(ctx context.Context, businessID string, upc string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, business_id, upc, name, department_id, price_cents, active
		FROM products
		WHERE business_id = $1 AND upc = $2 AND active = true
	`, businessID, upc).Scan(&p.ID, &p.BusinessID, &p.UPC, &p.Name, &p.DepartmentID, &p.PriceCents, &p.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrProductNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetDepartment(ctx context.Context, businessID string, departmentID string) (*domain.Department, error) {
	var dept domain.Department
	var ageRestriction, restrictStart, restrictEnd sql.NullInt32
	err := s.db.QueryRowContext(ctx, `
		SELECT id, business_id, name, taxable, age_restriction, time_restriction_start, time_restriction_end
		FROM departments
		WHERE business_id = $1 AND id = $2
	`, businessID, departmentID).Scan(&dept.ID, &dept.BusinessID, &dept.Name, &dept.Taxable, &ageRestriction, &restrictStart, &restrictEnd)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrDepartmentNotFound
		}
		return nil, err
	}
	if ageRestriction.Valid {
		age := int(ageRestriction.Int32)
		dept.AgeRestriction = &age
	}
	if restrictStart.Valid && restrictEnd.Valid {
		dept.TimeRestriction = &domain.TimeRestriction{StartHour: int(restrictStart.Int32), EndHour: int(restrictEnd.Int32)}
	}
	return &dept, nil
}

func (s *Store) MarkDayClosed(ctx context.Context, businessID string, at time.Time, summarySent bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE businesses
		SET last_day_closed_at = $2,
			daily_summary_sent = $3,
			last_summary_sent_at = CASE WHEN $3 THEN $2 ELSE last_summary_sent_at END
		WHERE id = $1
	`, businessID, at, summarySent)
	return expectAffected(res, err, domain.ErrBusinessNotFound)
}

func (s *Store) MarkSummarySent(ctx context.Context, businessID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE businesses
		SET daily_summary_sent = true, last_summary_sent_at = $2
		WHERE id = $1
	`, businessID, at)
	return expectAffected(res, err, domain.ErrBusinessNotFound)
}

func (s *Store) ListBusinessesPendingSummary(ctx context.Context, dayStart time.Time) ([]domain.Business, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+businessColumns+`
		FROM businesses
		WHERE (last_day_closed_at IS NULL OR last_day_closed_at < $1)
			AND (last_summary_sent_at IS NULL OR last_summary_sent_at < $1)
		ORDER BY id
	`, dayStart)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Business, 0, 16)
	for rows.Next() {
		b, err := scanBusiness(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}
	return result, rows.Err()
}

const transactionColumns = `
	id, business_id, cashier_id, cashier_name, type, COALESCE(payment_method,''),
	subtotal_cents, tax_cents, total_cents, processing_fee_cents, net_cents, status,
	COALESCE(payment_ref,''), COALESCE(charge_ref,''), COALESCE(refund_ref,''),
	COALESCE(original_transaction_id,''), refunded, refunded_cents, refunded_at,
	voided, voided_at, COALESCE(voided_by,''), COALESCE(void_reason,''),
	age_verified, COALESCE(note,''), COALESCE(error_message,''), created_at, completed_at`

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var refundedAt, voidedAt, completedAt sql.NullTime
	err := row.Scan(
		&tx.ID, &tx.BusinessID, &tx.CashierID, &tx.CashierName, &tx.Type, &tx.PaymentMethod,
		&tx.SubtotalCents, &tx.TaxCents, &tx.TotalCents, &tx.ProcessingFeeCents, &tx.NetCents, &tx.Status,
		&tx.PaymentRef, &tx.ChargeRef, &tx.RefundRef,
		&tx.OriginalTransactionID, &tx.Refunded, &tx.RefundedCents, &refundedAt,
		&tx.Voided, &voidedAt, &tx.VoidedBy, &tx.VoidReason,
		&tx.AgeVerified, &tx.Note, &tx.ErrorMessage, &tx.CreatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	tx.CreatedAt = tx.CreatedAt.UTC()
	tx.RefundedAt = timePtr(refundedAt)
	tx.VoidedAt = timePtr(voidedAt)
	tx.CompletedAt = timePtr(completedAt)
	tx.Items = []domain.TransactionItem{}
	return &tx, nil
}

func insertTransaction(ctx context.Context, q queryer, tx *domain.Transaction) error {
	if tx.ID == "" {
		tx.ID = xid.New("txn")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO transactions (
			id, business_id, cashier_id, cashier_name, type, payment_method,
			subtotal_cents, tax_cents, total_cents, processing_fee_cents, net_cents, status,
			payment_ref, charge_ref, refund_ref, original_transaction_id,
			age_verified, note, error_message, created_at, completed_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
	`, tx.ID, tx.BusinessID, tx.CashierID, tx.CashierName, tx.Type, nullIfEmpty(string(tx.PaymentMethod)),
		tx.SubtotalCents, tx.TaxCents, tx.TotalCents, tx.ProcessingFeeCents, tx.NetCents, tx.Status,
		nullIfEmpty(tx.PaymentRef), nullIfEmpty(tx.ChargeRef), nullIfEmpty(tx.RefundRef), nullIfEmpty(tx.OriginalTransactionID),
		tx.AgeVerified, nullIfEmpty(tx.Note), nullIfEmpty(tx.ErrorMessage), tx.CreatedAt, nullTime(tx.CompletedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}

	for i := range tx.Items {
		item := &tx.Items[i]
		if item.ID == "" {
			item.ID = xid.New("item")
		}
		item.TransactionID = tx.ID
		_, err := q.ExecContext(ctx, `
			INSERT INTO transaction_items (
				id, transaction_id, position, product_id, product_name, department_id,
				quantity, unit_price_cents, tax_cents, total_cents
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, item.ID, item.TransactionID, i, nullIfEmpty(item.ProductID), item.ProductName, item.DepartmentID,
			item.Quantity, item.UnitPriceCents, item.TaxCents, item.TotalCents)
		if err != nil {
			return err
		}
	}
	if tx.Items == nil {
		tx.Items = []domain.TransactionItem{}
	}
	return nil
}

func (s *Store) CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if strings.TrimSpace(tx.BusinessID) == "" {
		return nil, fmt.Errorf("%w: business id is required", domain.ErrValidation)
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	tx.Items = append([]domain.TransactionItem(nil), tx.Items...)
	if err := insertTransaction(ctx, pgTx, &tx); err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	return expectAffected(res, err, domain.ErrTransactionNotFound)
}

func (s *Store) FindTransaction(ctx context.Context, businessID string, id string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	args := []any{id}
	if businessID != "" {
		query += ` AND business_id = $2`
		args = append(args, businessID)
	}
	return s.findOne(ctx, query, args...)
}

func (s *Store) FindTransactionByPaymentRef(ctx context.Context, paymentRef string) (*domain.Transaction, error) {
	if paymentRef == "" {
		return nil, domain.ErrTransactionNotFound
	}
	return s.findOne(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE payment_ref = $1 AND type = 'sale'`, paymentRef)
}

func (s *Store) findOne(ctx context.Context, query string, args ...any) (*domain.Transaction, error) {
	tx, err := scanTransaction(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, err
	}
	if err := s.loadItems(ctx, []*domain.Transaction{tx}); err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *Store) loadItems(ctx context.Context, txs []*domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	byID := make(map[string]*domain.Transaction, len(txs))
	ids := make([]string, 0, len(txs))
	for _, tx := range txs {
		byID[tx.ID] = tx
		ids = append(ids, tx.ID)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, COALESCE(product_id,''), product_name, department_id,
			quantity, unit_price_cents, tax_cents, total_cents
		FROM transaction_items
		WHERE transaction_id = ANY($1)
		ORDER BY transaction_id, position
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.TransactionItem
		if err := rows.Scan(&item.ID, &item.TransactionID, &item.ProductID, &item.ProductName, &item.DepartmentID,
			&item.Quantity, &item.UnitPriceCents, &item.TaxCents, &item.TotalCents); err != nil {
			return err
		}
		if tx, ok := byID[item.TransactionID]; ok {
			tx.Items = append(tx.Items, item)
		}
	}
	return rows.Err()
}

func (s *Store) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, int, error) {
	where := make([]string, 0, 6)
	args := make([]any, 0, 8)
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.BusinessID != "" {
		add("business_id = $%d", filter.BusinessID)
	}
	if filter.From != nil {
		add("created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("created_at < $%d", *filter.To)
	}
	if filter.Type != "" {
		add("type = $%d", string(filter.Type))
	}
	if filter.PaymentMethod != "" {
		add("payment_method = $%d", string(filter.PaymentMethod))
	}
	if filter.CashierID != "" {
		add("cashier_id = $%d", filter.CashierID)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions` + clause + ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	txs, err := s.queryTransactions(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}

func (s *Store) ListTransactionsSince(ctx context.Context, businessID string, since time.Time, types []domain.TxType) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE business_id = $1 AND created_at >= $2`
	args := []any{businessID, since}
	if len(types) > 0 {
		names := make([]string, 0, len(types))
		for _, t := range types {
			names = append(names, string(t))
		}
		query += ` AND type = ANY($3)`
		args = append(args, names)
	}
	query += ` ORDER BY created_at ASC, id ASC`
	return s.queryTransactions(ctx, query, args...)
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	ptrs := make([]*domain.Transaction, 0, 32)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		ptrs = append(ptrs, tx)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if err := s.loadItems(ctx, ptrs); err != nil {
		return nil, err
	}
	result := make([]domain.Transaction, 0, len(ptrs))
	for _, tx := range ptrs {
		result = append(result, *tx)
	}
	return result, nil
}

func (s *Store) AttachPaymentIntent(ctx context.Context, id string, paymentRef string, feeCents int64, netCents int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET payment_ref = $2, processing_fee_cents = $3, net_cents = $4
		WHERE id = $1 AND status = 'pending'
	`, id, paymentRef, feeCents, netCents)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return s.explainMiss(ctx, id)
	}
	return nil
}

func (s *Store) CompleteTransaction(ctx context.Context, id string, chargeRef string, at time.Time) (*domain.Transaction, error) {
	return s.updateReturning(ctx, id, `
		UPDATE transactions
		SET status = 'completed', charge_ref = $2, completed_at = $3, error_message = NULL
		WHERE id = $1 AND status = 'pending'
		RETURNING `+transactionColumns, id, nullIfEmpty(chargeRef), at)
}

func (s *Store) FailTransaction(ctx context.Context, id string, message string) (*domain.Transaction, error) {
	return s.updateReturning(ctx, id, `
		UPDATE transactions
		SET status = 'failed', error_message = $2
		WHERE id = $1 AND status = 'pending'
		RETURNING `+transactionColumns, id, nullIfEmpty(message))
}

func (s *Store) updateReturning(ctx context.Context, id string, query string, args ...any) (*domain.Transaction, error) {
	tx, err := scanTransaction(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.explainMiss(ctx, id)
		}
		return nil, err
	}
	if err := s.loadItems(ctx, []*domain.Transaction{tx}); err != nil {
		return nil, err
	}
	return tx, nil
}

// explainMiss distinguishes a missing transaction from one that is no longer pending.
func (s *Store) explainMiss(ctx context.Context, id string) error {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM transactions WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrTransactionNotFound
		}
		return err
	}
	return fmt.Errorf("%w: transaction is %s", store.ErrConflict, status)
}

// CreateRefund claims the original sale and inserts the refund in one
// transaction. The row lock serializes competing claims, so it runs at read
// committed and a loser re-reads the claimed row.
func (s *Store) CreateRefund(ctx context.Context, originalID string, refund domain.Transaction, at time.Time) (*domain.Transaction, error) {
	created, err := s.createRefund(ctx, originalID, refund, at)
	if isSerializationFailure(err) {
		return nil, domain.ErrAlreadyRefunded
	}
	return created, err
}

func (s *Store) createRefund(ctx context.Context, originalID string, refund domain.Transaction, at time.Time) (*domain.Transaction, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var original domain.Transaction
	err = pgTx.QueryRowContext(ctx, `
		SELECT id, type, status, refunded, voided
		FROM transactions
		WHERE id = $1 AND business_id = $2
		FOR UPDATE
	`, originalID, refund.BusinessID).Scan(&original.ID, &original.Type, &original.Status, &original.Refunded, &original.Voided)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, err
	}
	if err := refundable(original); err != nil {
		return nil, err
	}

	res, err := pgTx.ExecContext(ctx, `
		UPDATE transactions
		SET refunded = true, refunded_cents = $2, refunded_at = $3
		WHERE id = $1 AND refunded = false
	`, originalID, -refund.TotalCents, at)
	if err != nil {
		return nil, err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if affected == 0 {
		return nil, domain.ErrAlreadyRefunded
	}

	refund.OriginalTransactionID = originalID
	if refund.CreatedAt.IsZero() {
		refund.CreatedAt = at
	}
	refund.Items = append([]domain.TransactionItem(nil), refund.Items...)
	if err := insertTransaction(ctx, pgTx, &refund); err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &refund, nil
}

func (s *Store) RollbackRefund(ctx context.Context, originalID string, refundID string) error {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	if _, err := pgTx.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1 AND type = 'refund'`, refundID); err != nil {
		return err
	}
	res, err := pgTx.ExecContext(ctx, `
		UPDATE transactions
		SET refunded = false, refunded_cents = 0, refunded_at = NULL
		WHERE id = $1
	`, originalID)
	if err := expectAffected(res, err, domain.ErrTransactionNotFound); err != nil {
		return err
	}
	return pgTx.Commit()
}

func (s *Store) CompleteRefund(ctx context.Context, refundID string, refundRef string, at time.Time) (*domain.Transaction, error) {
	return s.updateReturning(ctx, refundID, `
		UPDATE transactions
		SET status = 'completed', refund_ref = $2, completed_at = $3
		WHERE id = $1 AND type = 'refund'
		RETURNING `+transactionColumns, refundID, nullIfEmpty(refundRef), at)
}

func (s *Store) VoidTransaction(ctx context.Context, businessID string, id string, by string, reason string, at time.Time, notBefore time.Time) (*domain.Transaction, error) {
	tx, err := scanTransaction(s.db.QueryRowContext(ctx, `
		UPDATE transactions
		SET voided = true, voided_at = $3, voided_by = $4, void_reason = $5
		WHERE id = $1 AND business_id = $2
			AND status = 'completed' AND voided = false AND refunded = false AND type <> 'refund'
			AND created_at >= $6
		RETURNING `+transactionColumns, id, businessID, at, nullIfEmpty(by), nullIfEmpty(reason), notBefore))
	if err == nil {
		if err := s.loadItems(ctx, []*domain.Transaction{tx}); err != nil {
			return nil, err
		}
		return tx, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	current, err := s.FindTransaction(ctx, businessID, id)
	if err != nil {
		return nil, err
	}
	if err := voidable(*current, notBefore); err != nil {
		return nil, err
	}
	// The row changed between the update and the lookup; report it as a conflict.
	return nil, domain.ErrNotVoidable
}

func (s *Store) CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error) {
	if strings.TrimSpace(shift.BusinessID) == "" || strings.TrimSpace(shift.CashierID) == "" {
		return nil, fmt.Errorf("%w: business and cashier are required", domain.ErrValidation)
	}
	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	if shift.StartedAt.IsZero() {
		shift.StartedAt = time.Now().UTC()
	}
	shift.EndedAt = nil

	counts, err := json.Marshal(shift.StartingCounts)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO shifts (id, business_id, cashier_id, starting_cash_cents, starting_counts, started_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, shift.ID, shift.BusinessID, shift.CashierID, shift.StartingCashCents, string(counts), shift.StartedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrShiftAlreadyOpen
		}
		return nil, err
	}
	saved := shift
	return &saved, nil
}

const shiftColumns = `
	id, business_id, cashier_id, starting_cash_cents, starting_counts, started_at,
	ending_cash_cents, ending_counts, expected_cash_cents, cash_difference_cents,
	cash_sales_cents, card_sales_cents, refunds_cents, pay_ins_cents, pay_outs_cents, ended_at`

func scanShift(row rowScanner) (*domain.Shift, error) {
	var shift domain.Shift
	var startingCounts, endingCounts []byte
	var endedAt sql.NullTime
	err := row.Scan(
		&shift.ID, &shift.BusinessID, &shift.CashierID, &shift.StartingCashCents, &startingCounts, &shift.StartedAt,
		&shift.EndingCashCents, &endingCounts, &shift.ExpectedCashCents, &shift.CashDifferenceCents,
		&shift.CashSalesCents, &shift.CardSalesCents, &shift.RefundsCents, &shift.PayInsCents, &shift.PayOutsCents, &endedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(startingCounts) > 0 {
		if err := json.Unmarshal(startingCounts, &shift.StartingCounts); err != nil {
			return nil, err
		}
	}
	if len(endingCounts) > 0 {
		if err := json.Unmarshal(endingCounts, &shift.EndingCounts); err != nil {
			return nil, err
		}
	}
	shift.StartedAt = shift.StartedAt.UTC()
	shift.EndedAt = timePtr(endedAt)
	return &shift, nil
}

func (s *Store) GetOpenShift(ctx context.Context, businessID string, cashierID string) (*domain.Shift, error) {
	shift, err := scanShift(s.db.QueryRowContext(ctx, `
		SELECT `+shiftColumns+`
		FROM shifts
		WHERE business_id = $1 AND cashier_id = $2 AND ended_at IS NULL
	`, businessID, cashierID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNoActiveShift
		}
		return nil, err
	}
	return shift, nil
}

func (s *Store) CloseShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error) {
	if shift.EndedAt == nil {
		return nil, fmt.Errorf("%w: ended_at is required to close a shift", domain.ErrValidation)
	}
	counts, err := json.Marshal(shift.EndingCounts)
	if err != nil {
		return nil, err
	}

	closed, err := scanShift(s.db.QueryRowContext(ctx, `
		UPDATE shifts
		SET ending_cash_cents = $2, ending_counts = $3, expected_cash_cents = $4,
			cash_difference_cents = $5, cash_sales_cents = $6, card_sales_cents = $7,
			refunds_cents = $8, pay_ins_cents = $9, pay_outs_cents = $10, ended_at = $11
		WHERE id = $1 AND ended_at IS NULL
		RETURNING `+shiftColumns,
		shift.ID, shift.EndingCashCents, string(counts), shift.ExpectedCashCents,
		shift.CashDifferenceCents, shift.CashSalesCents, shift.CardSalesCents,
		shift.RefundsCents, shift.PayInsCents, shift.PayOutsCents, *shift.EndedAt))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNoActiveShift
		}
		return nil, err
	}
	return closed, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, business_id, actor_id, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.BusinessID, entry.ActorID, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return fmt.Errorf("%w: username and password are required", domain.ErrValidation)
	}
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (id, username, password, name, role, business_id, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
	`, user.ID, user.Username, user.Password, user.Name, user.Role, user.BusinessID, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, password, name, role, business_id, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.ID, &user.Username, &user.Password, &user.Name, &user.Role, &user.BusinessID, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return fmt.Errorf("%w: username and password are required", domain.ErrValidation)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	return expectAffected(res, err, store.ErrNotFound)
}

func refundable(original domain.Transaction) error {
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

func voidable(tx domain.Transaction, notBefore time.Time) error {
	if tx.Status != domain.TxStatusCompleted || tx.Voided || tx.Refunded || tx.Type == domain.TxTypeRefund {
		return domain.ErrNotVoidable
	}
	if tx.CreatedAt.Before(notBefore) {
		return domain.ErrVoidWindowExpired
	}
	return nil
}

func expectAffected(res sql.Result, err error, missing error) error {
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return missing
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

func timePtr(val sql.NullTime) *time.Time {
	if !val.Valid {
		return nil
	}
	at := val.Time.UTC()
	return &at
}
