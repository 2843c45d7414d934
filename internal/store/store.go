package store

import (
	"context"
	"errors"
	"time"

	"kasirinaja/terminal/internal/domain"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidRecord = errors.New("invalid record")
	ErrDuplicate     = errors.New("duplicate record")
)

// Attempt states as journaled. create_unknown is a creation call that got no
// answer: the backend may hold the invoice.
const (
	AttemptSubmitting         = "submitting"
	AttemptCompleted          = "completed"
	AttemptAwaitingHosted     = "awaiting_hosted_payment"
	AttemptVerified           = "verified"
	AttemptCancelled          = "cancelled"
	AttemptVerificationFailed = "verification_failed"
	AttemptCreateFailed       = "create_failed"
	AttemptCreateUnknown      = "create_unknown"
	AttemptAbandoned          = "abandoned"
)

// Finished reports whether no further backend action is expected for an
// attempt in state.
func Finished(state string) bool {
	switch state {
	case AttemptCompleted, AttemptVerified, AttemptCreateFailed, AttemptAbandoned:
		return true
	default:
		return false
	}
}

// Repository is the terminal's local journal.
type Repository interface {
	CreateAttempt(ctx context.Context, attempt domain.CheckoutAttempt) (*domain.CheckoutAttempt, error)
	UpdateAttempt(ctx context.Context, attempt domain.CheckoutAttempt) (*domain.CheckoutAttempt, error)
	FindAttempt(ctx context.Context, id string) (*domain.CheckoutAttempt, error)
	FindAttemptByIdempotency(ctx context.Context, key string) (*domain.CheckoutAttempt, error)
	ListUnfinishedAttempts(ctx context.Context, storeID string, terminalID string, limit int) ([]domain.CheckoutAttempt, error)
	CreateHeldCart(ctx context.Context, held domain.HeldCart) (*domain.HeldCart, error)
	ListHeldCarts(ctx context.Context, storeID string, terminalID string, limit int) ([]domain.HeldCart, error)
	PopHeldCart(ctx context.Context, holdID string) (*domain.HeldCart, error)
	DeleteHeldCart(ctx context.Context, holdID string) error
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}

// ValidAttempt checks the fields every journaled attempt needs.
func ValidAttempt(a domain.CheckoutAttempt) bool {
	return a.ID != "" && a.IdempotencyKey != "" && a.StoreID != "" && a.TerminalID != "" && a.State != ""
}
