package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"kasirinaja/terminal/internal/domain"
	"kasirinaja/terminal/internal/store"
	"kasirinaja/terminal/internal/xid"
)

type Store struct {
	mu               sync.RWMutex
	attemptsByID     map[string]domain.CheckoutAttempt
	attemptIDsByIdem map[string]string
	heldCartsByID    map[string]domain.HeldCart
	auditLogs        []domain.AuditLog
}

func New() *Store {
	return &Store{
		attemptsByID:     make(map[string]domain.CheckoutAttempt),
		attemptIDsByIdem: make(map[string]string),
		heldCartsByID:    make(map[string]domain.HeldCart),
	}
}

func (s *Store) CreateAttempt(_ context.Context, attempt domain.CheckoutAttempt) (*domain.CheckoutAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if attempt.ID == "" {
		attempt.ID = xid.New("att")
	}
	now := time.Now().UTC()
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = now
	}
	attempt.UpdatedAt = attempt.CreatedAt
	if !store.ValidAttempt(attempt) {
		return nil, store.ErrInvalidRecord
	}
	if _, exists := s.attemptsByID[attempt.ID]; exists {
		return nil, store.ErrDuplicate
	}
	if _, exists := s.attemptIDsByIdem[attempt.IdempotencyKey]; exists {
		return nil, store.ErrDuplicate
	}

	s.attemptsByID[attempt.ID] = attempt
	s.attemptIDsByIdem[attempt.IdempotencyKey] = attempt.ID
	saved := attempt
	return &saved, nil
}

func (s *Store) UpdateAttempt(_ context.Context, attempt domain.CheckoutAttempt) (*domain.CheckoutAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.attemptsByID[attempt.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if attempt.IdempotencyKey != existing.IdempotencyKey || !store.ValidAttempt(attempt) {
		return nil, store.ErrInvalidRecord
	}
	attempt.CreatedAt = existing.CreatedAt
	attempt.UpdatedAt = time.Now().UTC()
	s.attemptsByID[attempt.ID] = attempt
	saved := attempt
	return &saved, nil
}

func (s *Store) FindAttempt(_ context.Context, id string) (*domain.CheckoutAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	attempt, exists := s.attemptsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &attempt, nil
}

func (s *Store) FindAttemptByIdempotency(_ context.Context, key string) (*domain.CheckoutAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.attemptIDsByIdem[key]
	if !exists {
		return nil, store.ErrNotFound
	}
	attempt := s.attemptsByID[id]
	return &attempt, nil
}

func (s *Store) ListUnfinishedAttempts(_ context.Context, storeID string, terminalID string, limit int) ([]domain.CheckoutAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.CheckoutAttempt, 0, 16)
	for _, attempt := range s.attemptsByID {
		if store.Finished(attempt.State) {
			continue
		}
		if storeID != "" && attempt.StoreID != storeID {
			continue
		}
		if terminalID != "" && attempt.TerminalID != terminalID {
			continue
		}
		result = append(result, attempt)
	}
	slices.SortFunc(result, func(a, b domain.CheckoutAttempt) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateHeldCart(_ context.Context, held domain.HeldCart) (*domain.HeldCart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if held.ID == "" {
		held.ID = xid.New("hold")
	}
	if held.HeldAt.IsZero() {
		held.HeldAt = time.Now().UTC()
	}
	if held.StoreID == "" || held.TerminalID == "" || len(held.Lines) == 0 {
		return nil, store.ErrInvalidRecord
	}

	s.heldCartsByID[held.ID] = cloneHeldCart(held)
	saved := cloneHeldCart(s.heldCartsByID[held.ID])
	return &saved, nil
}

func (s *Store) ListHeldCarts(_ context.Context, storeID string, terminalID string, limit int) ([]domain.HeldCart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.HeldCart, 0, 16)
	for _, held := range s.heldCartsByID {
		if storeID != "" && held.StoreID != storeID {
			continue
		}
		if terminalID != "" && held.TerminalID != terminalID {
			continue
		}
		result = append(result, cloneHeldCart(held))
	}
	slices.SortFunc(result, func(a, b domain.HeldCart) int {
		if a.HeldAt.Equal(b.HeldAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.HeldAt.After(b.HeldAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) PopHeldCart(_ context.Context, holdID string) (*domain.HeldCart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	held, exists := s.heldCartsByID[holdID]
	if !exists {
		return nil, store.ErrNotFound
	}
	delete(s.heldCartsByID, holdID)
	result := cloneHeldCart(held)
	return &result, nil
}

func (s *Store) DeleteHeldCart(_ context.Context, holdID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.heldCartsByID[holdID]; !exists {
		return store.ErrNotFound
	}
	delete(s.heldCartsByID, holdID)
	return nil
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

func (s *Store) ListAuditLogs(_ context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if storeID != "" && entry.StoreID != storeID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortStableFunc(result, func(a, b domain.AuditLog) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func cloneHeldCart(src domain.HeldCart) domain.HeldCart {
	dup := src
	lines := make([]domain.HeldLine, len(src.Lines))
	copy(lines, src.Lines)
	dup.Lines = lines
	return dup
}
