package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParsePaymentMethod(t *testing.T) {
	m, err := ParsePaymentMethod(" Credit ")
	if err != nil {
		t.Fatalf("parse credit: %v", err)
	}
	if m != PaymentCredit {
		t.Fatalf("expected credit, got %s", m)
	}
	if _, err := ParsePaymentMethod("bitcoin"); !errors.Is(err, ErrUnknownPaymentMethod) {
		t.Fatalf("expected ErrUnknownPaymentMethod, got %v", err)
	}
}

func TestOnlineIsSentAsUPI(t *testing.T) {
	if got := PaymentOnline.WireValue(); got != "upi" {
		t.Fatalf("expected upi, got %s", got)
	}
	if got := PaymentCard.WireValue(); got != "card" {
		t.Fatalf("expected card, got %s", got)
	}
}

func TestInitialSettlement(t *testing.T) {
	total := decimal.RequireFromString("220")
	paid, status := PaymentCash.InitialSettlement(total)
	if !paid.Equal(total) || status != InvoiceStatusPaid {
		t.Fatalf("cash: got %s %s", paid, status)
	}
	for _, m := range []PaymentMethod{PaymentCredit, PaymentCard, PaymentUPI, PaymentOnline} {
		paid, status := m.InitialSettlement(total)
		if !paid.IsZero() || status != InvoiceStatusPending {
			t.Fatalf("%s: got %s %s", m, paid, status)
		}
	}
}

func TestCustomerRefAcceptsIDOrObject(t *testing.T) {
	var inv Invoice
	if err := json.Unmarshal([]byte(`{"id":1,"customer":7}`), &inv); err != nil {
		t.Fatalf("unmarshal id: %v", err)
	}
	if inv.Customer == nil || inv.Customer.ID != 7 {
		t.Fatalf("expected customer id 7, got %+v", inv.Customer)
	}

	inv = Invoice{}
	payload := `{"id":2,"customer":{"id":9,"name":"Ani","email":"ani@example.com"},"total_amount":"220.00"}`
	if err := json.Unmarshal([]byte(payload), &inv); err != nil {
		t.Fatalf("unmarshal object: %v", err)
	}
	if inv.RecipientEmail() != "ani@example.com" {
		t.Fatalf("expected customer email, got %q", inv.RecipientEmail())
	}
	if !inv.TotalAmount.Equal(decimal.RequireFromString("220")) {
		t.Fatalf("expected total 220, got %s", inv.TotalAmount)
	}

	inv = Invoice{}
	if err := json.Unmarshal([]byte(`{"id":3,"customer":null}`), &inv); err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}
	if inv.RecipientEmail() != "" {
		t.Fatalf("expected no recipient")
	}
}

func TestCouponLabel(t *testing.T) {
	c := Coupon{
		Code:              "HEMAT10",
		Name:              "Hemat",
		DiscountType:      DiscountTypePercentage,
		DiscountValue:     decimal.NewFromInt(10),
		MaxDiscount:       decimal.NewNullDecimal(decimal.NewFromInt(50)),
		MinPurchaseAmount: decimal.NewFromInt(100),
	}
	want := "HEMAT10 - Hemat (10% off (max 50.00) - Min: 100.00)"
	if got := c.Label(); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
