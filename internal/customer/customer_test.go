package customer

import (
	"errors"
	"testing"

	"kasirinaja/terminal/internal/domain"
)

func TestNormalizeAcceptsEmptyDraft(t *testing.T) {
	v := NewValidator("IN")
	out, err := v.Normalize(domain.CustomerDraft{Name: "  "})
	if err != nil {
		t.Fatalf("empty draft must be valid: %v", err)
	}
	if !out.IsZero() {
		t.Fatalf("expected zero draft, got %+v", out)
	}
}

func TestNormalizeCompactsPhoneAndEmail(t *testing.T) {
	v := NewValidator("IN")
	out, err := v.Normalize(domain.CustomerDraft{
		Name:  " Ravi Kumar ",
		Phone: "98765 43210",
		Email: " Ravi@Example.com ",
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if out.Name != "Ravi Kumar" || out.Phone != "9876543210" || out.Email != "ravi@example.com" {
		t.Fatalf("unexpected draft %+v", out)
	}
}

func TestNormalizeReportsViolations(t *testing.T) {
	v := NewValidator("IN")
	_, err := v.Normalize(domain.CustomerDraft{Phone: "12345", Email: "not-an-email"})
	if !errors.Is(err, ErrInvalidCustomer) {
		t.Fatalf("expected ErrInvalidCustomer, got %v", err)
	}
	var violations Violations
	if !errors.As(err, &violations) {
		t.Fatalf("expected violations in error chain")
	}
	if violations["email"] != "email" || violations["phone"] != "phone" {
		t.Fatalf("unexpected violations %v", violations)
	}
}

func TestE164(t *testing.T) {
	if got := E164("9876543210", "IN"); got != "+919876543210" {
		t.Fatalf("expected +919876543210, got %s", got)
	}
	if got := E164("abc", "IN"); got != "abc" {
		t.Fatalf("expected raw fallback, got %s", got)
	}
}
