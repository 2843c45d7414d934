package coupon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"kasirinaja/terminal/internal/cache"
	"kasirinaja/terminal/internal/domain"
)

var (
	ErrInvalidCode     = errors.New("invalid discount code")
	ErrCodeEntryLocked = errors.New("discount code entry is locked while a coupon is selected")
	ErrCouponNotFound  = errors.New("coupon is not available for this cart")
)

type Source interface {
	AvailableCoupons(ctx context.Context, amount decimal.Decimal) ([]domain.Coupon, error)
	ValidateCoupon(ctx context.Context, code string, amount decimal.Decimal) (domain.CouponValidation, error)
}

// Selector keeps the eligible coupon list in step with the cart subtotal and
// owns the order discount. Exactly one of a selected coupon or a manually
// validated code drives the discount.
type Selector struct {
	source   Source
	cache    cache.LookupCache
	cacheTTL time.Duration
	log      logrus.FieldLogger

	coupons  []domain.Coupon
	selected *domain.Coupon
	code     string
	discount decimal.Decimal
	// codeSubtotal is the subtotal a typed code was last validated at.
	codeSubtotal decimal.Decimal
}

func NewSelector(source Source, lookupCache cache.LookupCache, cacheTTL time.Duration, logger logrus.FieldLogger) *Selector {
	if lookupCache == nil {
		lookupCache = cache.NoopLookupCache{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Selector{
		source:   source,
		cache:    lookupCache,
		cacheTTL: cacheTTL,
		log:      logger.WithField("module", "coupon"),
		discount: decimal.Zero,
	}
}

// Refresh re-reads the eligible coupons for subtotal. An empty cart clears
// everything without asking the backend. A failed read empties the list and
// is only logged. A typed code is validated again whenever the subtotal moves.
func (s *Selector) Refresh(ctx context.Context, subtotal decimal.Decimal, cartEmpty bool) {
	if cartEmpty {
		s.Reset()
		return
	}
	if s.selected == nil && s.code != "" && !subtotal.Equal(s.codeSubtotal) {
		s.revalidateCode(ctx, subtotal)
	}

	coupons, err := s.available(ctx, subtotal)
	if err != nil {
		s.log.WithError(err).WithField("amount", subtotal.StringFixed(2)).Warn("fetch available coupons failed")
		s.coupons = nil
		return
	}
	s.coupons = coupons

	if s.selected == nil {
		return
	}
	for _, c := range coupons {
		if c.ID == s.selected.ID {
			picked := c
			s.selected = &picked
			s.discount = c.CalculatedDiscount
			return
		}
	}
	s.log.WithField("code", s.selected.Code).Info("selected coupon no longer eligible")
	s.Clear()
}

// revalidateCode asks the backend about the typed code at the new subtotal.
// If the backend cannot answer, the discount stays only while it still fits
// under the subtotal.
func (s *Selector) revalidateCode(ctx context.Context, subtotal decimal.Decimal) {
	logger := s.log.WithField("code", s.code).WithField("amount", subtotal.StringFixed(2))
	result, err := s.source.ValidateCoupon(ctx, s.code, subtotal)
	switch {
	case err != nil:
		if subtotal.LessThan(s.codeSubtotal) && s.discount.GreaterThan(subtotal) {
			logger.WithError(err).Warn("revalidate discount code failed, dropping it")
			s.Clear()
			return
		}
		logger.WithError(err).Warn("revalidate discount code failed")
	case !result.Valid:
		logger.WithField("reason", result.Error).Info("discount code no longer valid")
		s.Clear()
	default:
		s.discount = result.DiscountAmount
		s.codeSubtotal = subtotal
	}
}

func (s *Selector) available(ctx context.Context, subtotal decimal.Decimal) ([]domain.Coupon, error) {
	key := "coupon:available:" + subtotal.StringFixed(2)
	var cached []domain.Coupon
	hit, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		s.log.WithError(err).Warn("coupon cache read failed")
	}
	if hit {
		return cached, nil
	}

	coupons, err := s.source.AvailableCoupons(ctx, subtotal)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, coupons, s.cacheTTL); err != nil {
		s.log.WithError(err).Warn("coupon cache write failed")
	}
	return coupons, nil
}

// Select applies a listed coupon. The discount is the backend's
// calculated_discount, taken as-is.
func (s *Selector) Select(id int64) error {
	for _, c := range s.coupons {
		if c.ID == id {
			picked := c
			s.selected = &picked
			s.code = c.Code
			s.discount = c.CalculatedDiscount
			return nil
		}
	}
	return fmt.Errorf("%w: id %d", ErrCouponNotFound, id)
}

// Clear drops the selected coupon, zeroes the discount and unlocks code entry.
func (s *Selector) Clear() {
	s.selected = nil
	s.code = ""
	s.discount = decimal.Zero
	s.codeSubtotal = decimal.Zero
}

// ApplyCode validates a typed discount code against subtotal. An invalid
// code leaves the current discount untouched.
func (s *Selector) ApplyCode(ctx context.Context, code string, subtotal decimal.Decimal) error {
	if s.Locked() {
		return ErrCodeEntryLocked
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil
	}

	result, err := s.source.ValidateCoupon(ctx, code, subtotal)
	if err != nil {
		return fmt.Errorf("validate discount code: %w", err)
	}
	if !result.Valid {
		if msg := strings.TrimSpace(result.Error); msg != "" {
			return fmt.Errorf("%w: %s", ErrInvalidCode, msg)
		}
		return ErrInvalidCode
	}
	s.code = code
	s.discount = result.DiscountAmount
	s.codeSubtotal = subtotal
	return nil
}

func (s *Selector) Reset() {
	s.coupons = nil
	s.Clear()
}

func (s *Selector) Coupons() []domain.Coupon {
	out := make([]domain.Coupon, len(s.coupons))
	copy(out, s.coupons)
	return out
}

func (s *Selector) Selected() (domain.Coupon, bool) {
	if s.selected == nil {
		return domain.Coupon{}, false
	}
	return *s.selected, true
}

// Locked reports whether manual code entry is disabled.
func (s *Selector) Locked() bool {
	return s.selected != nil
}

func (s *Selector) Code() string {
	return s.code
}

func (s *Selector) Discount() decimal.Decimal {
	return s.discount
}
