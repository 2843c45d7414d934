package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentOnline PaymentMethod = "online"
	PaymentCard   PaymentMethod = "card"
	PaymentUPI    PaymentMethod = "upi"
	PaymentCredit PaymentMethod = "credit"
)

var ErrUnknownPaymentMethod = errors.New("unknown payment method")

func PaymentMethods() []PaymentMethod {
	return []PaymentMethod{PaymentCash, PaymentOnline, PaymentCard, PaymentUPI, PaymentCredit}
}

func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToLower(strings.TrimSpace(raw)))
	switch m {
	case PaymentCash, PaymentOnline, PaymentCard, PaymentUPI, PaymentCredit:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPaymentMethod, raw)
	}
}

// WireValue is the payment_method the backend stores. The backend has no
// separate online method; hosted checkout invoices are recorded as upi.
func (m PaymentMethod) WireValue() string {
	switch m {
	case PaymentOnline:
		return string(PaymentUPI)
	case PaymentCash, PaymentCard, PaymentUPI, PaymentCredit:
		return string(m)
	default:
		panic(fmt.Sprintf("domain: unhandled payment method %q", string(m)))
	}
}

// Hosted reports whether the sale finishes in the hosted checkout widget.
func (m PaymentMethod) Hosted() bool {
	return m == PaymentOnline
}

// InitialSettlement returns what the invoice records as paid at creation.
// Only cash is settled at the counter.
func (m PaymentMethod) InitialSettlement(total decimal.Decimal) (decimal.Decimal, string) {
	switch m {
	case PaymentCash:
		return total, InvoiceStatusPaid
	case PaymentOnline, PaymentCard, PaymentUPI, PaymentCredit:
		return decimal.Zero, InvoiceStatusPending
	default:
		panic(fmt.Sprintf("domain: unhandled payment method %q", string(m)))
	}
}
