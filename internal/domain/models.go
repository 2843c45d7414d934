package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	SKU          string          `json:"sku"`
	Barcode      string          `json:"barcode,omitempty"`
	QRCode       string          `json:"qr_code,omitempty"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	TaxRate      decimal.Decimal `json:"tax_rate"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
	Role    string `json:"role,omitempty"`
	User    *User  `json:"user,omitempty"`
}

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

const (
	DiscountTypePercentage = "percentage"
	DiscountTypeFixed      = "fixed"
)

type Coupon struct {
	ID                 int64               `json:"id"`
	Code               string              `json:"code"`
	Name               string              `json:"name"`
	DiscountType       string              `json:"discount_type"`
	DiscountValue      decimal.Decimal     `json:"discount_value"`
	MaxDiscount        decimal.NullDecimal `json:"max_discount"`
	MinPurchaseAmount  decimal.Decimal     `json:"min_purchase_amount"`
	CalculatedDiscount decimal.Decimal     `json:"calculated_discount"`
}

// Label renders the coupon the way the register shows it in the picker.
func (c Coupon) Label() string {
	var off string
	if c.DiscountType == DiscountTypePercentage {
		off = c.DiscountValue.String() + "% off"
		if c.MaxDiscount.Valid {
			off += " (max " + c.MaxDiscount.Decimal.StringFixed(2) + ")"
		}
	} else {
		off = c.DiscountValue.StringFixed(2) + " off"
	}
	minPurchase := ""
	if c.MinPurchaseAmount.IsPositive() {
		minPurchase = " - Min: " + c.MinPurchaseAmount.StringFixed(2)
	}
	return fmt.Sprintf("%s - %s (%s%s)", c.Code, c.Name, off, minPurchase)
}

type CouponValidation struct {
	Valid          bool            `json:"valid"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Coupon         *Coupon         `json:"coupon,omitempty"`
	Error          string          `json:"error,omitempty"`
}

type CustomerDraft struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

func (d CustomerDraft) IsZero() bool {
	return strings.TrimSpace(d.Name) == "" && strings.TrimSpace(d.Phone) == "" && strings.TrimSpace(d.Email) == ""
}

type Customer struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type CustomerList struct {
	Results []Customer `json:"results"`
}

// CustomerRef is the invoice's customer field. The backend sends either a
// bare id or an expanded customer object.
type CustomerRef struct {
	ID    int64
	Email string
	Name  string
}

func (r *CustomerRef) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '{' {
		var c Customer
		if err := json.Unmarshal(trimmed, &c); err != nil {
			return err
		}
		r.ID, r.Email, r.Name = c.ID, c.Email, c.Name
		return nil
	}
	return json.Unmarshal(trimmed, &r.ID)
}

func (r CustomerRef) MarshalJSON() ([]byte, error) {
	if r.ID == 0 {
		return []byte("null"), nil
	}
	return json.Marshal(r.ID)
}

const (
	InvoiceStatusPaid    = "paid"
	InvoiceStatusPending = "pending"
	InvoiceStatusPartial = "partial"
)

type InvoiceItem struct {
	ID          int64           `json:"id,omitempty"`
	Product     int64           `json:"product"`
	ProductName string          `json:"product_name,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Discount    decimal.Decimal `json:"discount"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
	Total       decimal.Decimal `json:"total,omitempty"`
}

// Invoice is the server's copy of a sale. The terminal never recomputes its
// amounts after creation.
type Invoice struct {
	ID             int64           `json:"id"`
	InvoiceNumber  string          `json:"invoice_number"`
	Customer       *CustomerRef    `json:"customer,omitempty"`
	CustomerName   string          `json:"customer_name"`
	CustomerPhone  string          `json:"customer_phone"`
	CustomerEmail  string          `json:"customer_email"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	BalanceAmount  decimal.Decimal `json:"balance_amount"`
	PaymentMethod  string          `json:"payment_method"`
	Status         string          `json:"status"`
	Items          []InvoiceItem   `json:"items"`
	CreatedAt      *time.Time      `json:"created_at,omitempty"`
}

// RecipientEmail is the address the backend mails the invoice to, if any.
func (inv Invoice) RecipientEmail() string {
	if email := strings.TrimSpace(inv.CustomerEmail); email != "" {
		return email
	}
	if inv.Customer != nil {
		return strings.TrimSpace(inv.Customer.Email)
	}
	return ""
}

type InvoiceItemRequest struct {
	Product   int64  `json:"product"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Discount  string `json:"discount"`
	TaxRate   string `json:"tax_rate"`
}

type InvoiceRequest struct {
	Customer       *int64               `json:"customer"`
	CustomerName   string               `json:"customer_name"`
	CustomerPhone  string               `json:"customer_phone"`
	CustomerEmail  string               `json:"customer_email"`
	Subtotal       string               `json:"subtotal"`
	DiscountAmount string               `json:"discount_amount"`
	TaxAmount      string               `json:"tax_amount"`
	TotalAmount    string               `json:"total_amount"`
	PaidAmount     string               `json:"paid_amount"`
	PaymentMethod  string               `json:"payment_method"`
	Status         string               `json:"status"`
	Items          []InvoiceItemRequest `json:"items"`
}

type CreateOrderRequest struct {
	InvoiceID int64  `json:"invoice_id"`
	KeyID     string `json:"key_id"`
}

// Order is the hosted-checkout order. Amount is in minor units.
type Order struct {
	OrderID     string          `json:"order_id"`
	Amount      int64           `json:"amount"`
	Currency    string          `json:"currency"`
	AmountToPay decimal.Decimal `json:"amount_to_pay,omitempty"`
}

type HostedPaymentResult struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Signature string `json:"signature"`
}

type VerifyPaymentRequest struct {
	InvoiceID int64  `json:"invoice_id"`
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Signature string `json:"signature"`
}

type VerifyPaymentResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type Actor struct {
	Username string
	Role     string
}

type CheckoutAttempt struct {
	ID             string          `json:"id"`
	IdempotencyKey string          `json:"idempotency_key"`
	StoreID        string          `json:"store_id"`
	TerminalID     string          `json:"terminal_id"`
	Cashier        string          `json:"cashier"`
	PaymentMethod  PaymentMethod   `json:"payment_method"`
	State          string          `json:"state"`
	InvoiceID      int64           `json:"invoice_id,omitempty"`
	InvoiceNumber  string          `json:"invoice_number,omitempty"`
	OrderID        string          `json:"order_id,omitempty"`
	PaymentID      string          `json:"payment_id,omitempty"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	LastError      string          `json:"last_error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// HeldLine is the persisted form of a cart line.
type HeldLine struct {
	Product        Product         `json:"product"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	LineDiscount   decimal.Decimal `json:"line_discount"`
	TaxRatePercent decimal.Decimal `json:"tax_rate_percent"`
}

type HeldCart struct {
	ID            string        `json:"id"`
	StoreID       string        `json:"store_id"`
	TerminalID    string        `json:"terminal_id"`
	Cashier       string        `json:"cashier"`
	Note          string        `json:"note"`
	Lines         []HeldLine    `json:"lines"`
	Customer      CustomerDraft `json:"customer"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	HeldAt        time.Time     `json:"held_at"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	StoreID       string    `json:"store_id"`
	TerminalID    string    `json:"terminal_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
