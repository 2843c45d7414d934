package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestFromResponsePrefersDetail(t *testing.T) {
	err := FromResponse(http.StatusBadRequest, []byte(`{"error":"second","detail":"Insufficient stock for Teh Botol"}`))
	if err.Message != "Insufficient stock for Teh Botol" {
		t.Fatalf("expected detail message, got %q", err.Message)
	}
	if !err.ServerProvided {
		t.Fatalf("expected server provided message")
	}
}

func TestFromResponseFallsBackToError(t *testing.T) {
	err := FromResponse(http.StatusBadRequest, []byte(`{"error":["Coupon expired"]}`))
	if err.Message != "Coupon expired" {
		t.Fatalf("expected error field, got %q", err.Message)
	}
}

func TestFromResponseFlattensFieldErrors(t *testing.T) {
	cases := []struct{ body, want string }{
		{`{"items":["This field is required."]}`, "items: This field is required."},
		{`{"total_amount":["Ensure this value is positive."],"customer_phone":"Invalid."}`, "customer_phone: Invalid."},
		{`{"non_field_errors":["Coupon not applicable."]}`, "Coupon not applicable."},
		{`{"items":[{"quantity":["Must be at least 1."]}]}`, "items: quantity: Must be at least 1."},
	}
	for _, tc := range cases {
		err := FromResponse(http.StatusBadRequest, []byte(tc.body))
		if err.Message != tc.want || !err.ServerProvided {
			t.Fatalf("%s: expected %q, got %+v", tc.body, tc.want, err)
		}
	}
}

func TestFromResponseGenericFallback(t *testing.T) {
	err := FromResponse(http.StatusBadGateway, []byte(`<html>bad gateway</html>`))
	if err.Message != GenericMessage || err.ServerProvided {
		t.Fatalf("expected generic fallback, got %+v", err)
	}
}

func TestIsMatchesStatusCode(t *testing.T) {
	wrapped := fmt.Errorf("lookup: %w", FromResponse(http.StatusNotFound, nil))
	if !errors.Is(wrapped, ErrNotFound) {
		t.Fatalf("expected wrapped 404 to match ErrNotFound")
	}
	if errors.Is(wrapped, ErrForbidden) {
		t.Fatalf("404 must not match ErrForbidden")
	}
	if Message(wrapped) != GenericMessage {
		t.Fatalf("expected generic message for empty body, got %q", Message(wrapped))
	}
	if Message(errors.New("dial tcp: refused")) != GenericMessage {
		t.Fatalf("expected generic message for transport error")
	}
}
