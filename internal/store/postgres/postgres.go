package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"kasirinaja/terminal/internal/domain"
	"kasirinaja/terminal/internal/store"
	"kasirinaja/terminal/internal/xid"
)

type Store struct {
	db *sql.DB
}

// New opens the journal database and applies pending migrations.
func New(ctx context.Context, databaseURL string, logger logrus.FieldLogger) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(2)
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := Migrate(ctx, db, logger); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const attemptColumns = `id, idempotency_key, store_id, terminal_id, cashier, payment_method, state,
	invoice_id, invoice_number, order_id, payment_id, total_amount, last_error, created_at, updated_at`

func (s *Store) CreateAttempt(ctx context.Context, attempt domain.CheckoutAttempt) (*domain.CheckoutAttempt, error) {
	if attempt.ID == "" {
		attempt.ID = xid.New("att")
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}
	attempt.UpdatedAt = attempt.CreatedAt
	if !store.ValidAttempt(attempt) {
		return nil, store.ErrInvalidRecord
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkout_attempts (`+attemptColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, attempt.ID, attempt.IdempotencyKey, attempt.StoreID, attempt.TerminalID, attempt.Cashier,
		string(attempt.PaymentMethod), attempt.State, nullIfZero(attempt.InvoiceID), nullIfEmpty(attempt.InvoiceNumber),
		nullIfEmpty(attempt.OrderID), nullIfEmpty(attempt.PaymentID), attempt.TotalAmount.StringFixed(2),
		attempt.LastError, attempt.CreatedAt, attempt.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	saved := attempt
	return &saved, nil
}

func (s *Store) UpdateAttempt(ctx context.Context, attempt domain.CheckoutAttempt) (*domain.CheckoutAttempt, error) {
	if !store.ValidAttempt(attempt) {
		return nil, store.ErrInvalidRecord
	}
	attempt.UpdatedAt = time.Now().UTC()

	row := s.db.QueryRowContext(ctx, `
		UPDATE checkout_attempts
		SET state = $3, invoice_id = $4, invoice_number = $5, order_id = $6, payment_id = $7,
			total_amount = $8, last_error = $9, updated_at = $10
		WHERE id = $1 AND idempotency_key = $2
		RETURNING created_at
	`, attempt.ID, attempt.IdempotencyKey, attempt.State, nullIfZero(attempt.InvoiceID),
		nullIfEmpty(attempt.InvoiceNumber), nullIfEmpty(attempt.OrderID), nullIfEmpty(attempt.PaymentID),
		attempt.TotalAmount.StringFixed(2), attempt.LastError, attempt.UpdatedAt)
	if err := row.Scan(&attempt.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	attempt.CreatedAt = attempt.CreatedAt.UTC()
	return &attempt, nil
}

func (s *Store) FindAttempt(ctx context.Context, id string) (*domain.CheckoutAttempt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM checkout_attempts WHERE id = $1`, id)
	return scanAttempt(row)
}

func (s *Store) FindAttemptByIdempotency(ctx context.Context, key string) (*domain.CheckoutAttempt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM checkout_attempts WHERE idempotency_key = $1`, key)
	return scanAttempt(row)
}

func (s *Store) ListUnfinishedAttempts(ctx context.Context, storeID string, terminalID string, limit int) ([]domain.CheckoutAttempt, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+attemptColumns+`
		FROM checkout_attempts
		WHERE store_id = $1 AND terminal_id = $2
			AND state NOT IN ($3, $4, $5, $6)
		ORDER BY created_at DESC
		LIMIT $7
	`, storeID, terminalID, store.AttemptCompleted, store.AttemptVerified, store.AttemptCreateFailed, store.AttemptAbandoned, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attempts := make([]domain.CheckoutAttempt, 0, 16)
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return attempts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (*domain.CheckoutAttempt, error) {
	var attempt domain.CheckoutAttempt
	var method string
	var invoiceID sql.NullInt64
	var invoiceNumber, orderID, paymentID sql.NullString
	var total string
	err := row.Scan(
		&attempt.ID,
		&attempt.IdempotencyKey,
		&attempt.StoreID,
		&attempt.TerminalID,
		&attempt.Cashier,
		&method,
		&attempt.State,
		&invoiceID,
		&invoiceNumber,
		&orderID,
		&paymentID,
		&total,
		&attempt.LastError,
		&attempt.CreatedAt,
		&attempt.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	attempt.PaymentMethod = domain.PaymentMethod(method)
	attempt.InvoiceID = invoiceID.Int64
	attempt.InvoiceNumber = invoiceNumber.String
	attempt.OrderID = orderID.String
	attempt.PaymentID = paymentID.String
	attempt.TotalAmount, err = decimal.NewFromString(total)
	if err != nil {
		return nil, err
	}
	attempt.CreatedAt = attempt.CreatedAt.UTC()
	attempt.UpdatedAt = attempt.UpdatedAt.UTC()
	return &attempt, nil
}

func (s *Store) CreateHeldCart(ctx context.Context, held domain.HeldCart) (*domain.HeldCart, error) {
	if held.ID == "" {
		held.ID = xid.New("hold")
	}
	if held.HeldAt.IsZero() {
		held.HeldAt = time.Now().UTC()
	}
	if held.StoreID == "" || held.TerminalID == "" || len(held.Lines) == 0 {
		return nil, store.ErrInvalidRecord
	}

	linesJSON, err := json.Marshal(held.Lines)
	if err != nil {
		return nil, err
	}
	customerJSON, err := json.Marshal(held.Customer)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO held_carts (id, store_id, terminal_id, cashier, note, lines, customer, payment_method, held_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, held.ID, held.StoreID, held.TerminalID, held.Cashier, held.Note, linesJSON, customerJSON,
		string(held.PaymentMethod), held.HeldAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	saved := held
	return &saved, nil
}

const heldColumns = `id, store_id, terminal_id, cashier, note, lines, customer, payment_method, held_at`

func (s *Store) ListHeldCarts(ctx context.Context, storeID string, terminalID string, limit int) ([]domain.HeldCart, error) {
	if limit < 1 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+heldColumns+`
		FROM held_carts
		WHERE store_id = $1 AND terminal_id = $2
		ORDER BY held_at DESC
		LIMIT $3
	`, storeID, terminalID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	helds := make([]domain.HeldCart, 0, 16)
	for rows.Next() {
		held, err := scanHeldCart(rows)
		if err != nil {
			return nil, err
		}
		helds = append(helds, *held)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return helds, nil
}

func (s *Store) PopHeldCart(ctx context.Context, holdID string) (*domain.HeldCart, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	held, err := scanHeldCart(tx.QueryRowContext(ctx, `
		SELECT `+heldColumns+`
		FROM held_carts
		WHERE id = $1
		FOR UPDATE
	`, holdID))
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM held_carts WHERE id = $1`, holdID)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return held, nil
}

func scanHeldCart(row rowScanner) (*domain.HeldCart, error) {
	var held domain.HeldCart
	var linesRaw, customerRaw []byte
	var method string
	err := row.Scan(
		&held.ID,
		&held.StoreID,
		&held.TerminalID,
		&held.Cashier,
		&held.Note,
		&linesRaw,
		&customerRaw,
		&method,
		&held.HeldAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	held.HeldAt = held.HeldAt.UTC()
	held.PaymentMethod = domain.PaymentMethod(method)
	if len(linesRaw) > 0 {
		if err := json.Unmarshal(linesRaw, &held.Lines); err != nil {
			return nil, err
		}
	}
	if len(customerRaw) > 0 {
		_ = json.Unmarshal(customerRaw, &held.Customer)
	}
	return &held, nil
}

func (s *Store) DeleteHeldCart(ctx context.Context, holdID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM held_carts WHERE id = $1`, holdID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, store_id, terminal_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, entry.ID, entry.StoreID, entry.TerminalID, entry.ActorUsername, entry.ActorRole, entry.Action,
		entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, terminal_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE store_id = $1
			AND created_at >= $2
			AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4
	`, storeID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.StoreID, &entry.TerminalID, &entry.ActorUsername, &entry.ActorRole,
			&entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullIfZero(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}
