package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"

	"kasirinaja/terminal/internal/domain"
)

func (c *Client) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	var resp domain.LoginResponse
	err := c.do(ctx, request{method: http.MethodPost, path: "/auth/login/", body: req}, &resp)
	return resp, err
}

func (c *Client) SearchProducts(ctx context.Context, query string) ([]domain.Product, error) {
	raw, err := c.doRaw(ctx, request{
		method: http.MethodGet,
		path:   "/products/products/search/",
		query:  url.Values{"q": {query}},
	})
	if err != nil {
		return nil, err
	}
	products, err := decodeList[domain.Product](raw)
	if err != nil {
		return nil, fmt.Errorf("search products: decode response: %w", err)
	}
	return products, nil
}

func (c *Client) ProductByQR(ctx context.Context, code string) (domain.Product, error) {
	var p domain.Product
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/products/products/by_qr/",
		query:  url.Values{"qr": {code}},
	}, &p)
	return p, err
}

func (c *Client) ProductByBarcode(ctx context.Context, code string) (domain.Product, error) {
	var p domain.Product
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/products/products/by_barcode/",
		query:  url.Values{"barcode": {code}},
	}, &p)
	return p, err
}

func (c *Client) AvailableCoupons(ctx context.Context, amount decimal.Decimal) ([]domain.Coupon, error) {
	raw, err := c.doRaw(ctx, request{
		method: http.MethodGet,
		path:   "/discounts/coupons/available/",
		query:  url.Values{"amount": {amount.StringFixed(2)}},
	})
	if err != nil {
		return nil, err
	}
	coupons, err := decodeList[domain.Coupon](raw)
	if err != nil {
		return nil, fmt.Errorf("available coupons: decode response: %w", err)
	}
	return coupons, nil
}

func (c *Client) ValidateCoupon(ctx context.Context, code string, amount decimal.Decimal) (domain.CouponValidation, error) {
	var v domain.CouponValidation
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/discounts/coupons/validate/",
		query:  url.Values{"code": {code}, "amount": {amount.StringFixed(2)}},
	}, &v)
	return v, err
}

// FindCustomerByPhone returns nil when no customer has the phone number.
func (c *Client) FindCustomerByPhone(ctx context.Context, phone string) (*domain.Customer, error) {
	raw, err := c.doRaw(ctx, request{
		method: http.MethodGet,
		path:   "/billing/customers/",
		query:  url.Values{"phone": {phone}},
	})
	if err != nil {
		return nil, err
	}
	customers, err := decodeList[domain.Customer](raw)
	if err != nil {
		return nil, fmt.Errorf("find customer: decode response: %w", err)
	}
	if len(customers) == 0 {
		return nil, nil
	}
	return &customers[0], nil
}

func (c *Client) CreateCustomer(ctx context.Context, draft domain.CustomerDraft) (domain.Customer, error) {
	var customer domain.Customer
	err := c.do(ctx, request{method: http.MethodPost, path: "/billing/customers/", body: draft}, &customer)
	return customer, err
}

// CreateInvoice posts a new invoice. idempotencyKey is sent as the
// Idempotency-Key header when non-empty.
func (c *Client) CreateInvoice(ctx context.Context, req domain.InvoiceRequest, idempotencyKey string) (domain.Invoice, error) {
	var inv domain.Invoice
	err := c.do(ctx, request{
		method:         http.MethodPost,
		path:           "/billing/invoices/",
		body:           req,
		idempotencyKey: idempotencyKey,
	}, &inv)
	return inv, err
}

func (c *Client) GetInvoice(ctx context.Context, id int64) (domain.Invoice, error) {
	var inv domain.Invoice
	err := c.do(ctx, request{method: http.MethodGet, path: invoicePath(id, "")}, &inv)
	return inv, err
}

func (c *Client) InvoicePDF(ctx context.Context, id int64) ([]byte, error) {
	return c.doRaw(ctx, request{method: http.MethodGet, path: invoicePath(id, "pdf/")})
}

func (c *Client) SendInvoiceEmail(ctx context.Context, id int64) (domain.MessageResponse, error) {
	var resp domain.MessageResponse
	err := c.do(ctx, request{method: http.MethodPost, path: invoicePath(id, "send_email/")}, &resp)
	return resp, err
}

func (c *Client) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (domain.Order, error) {
	var order domain.Order
	err := c.do(ctx, request{method: http.MethodPost, path: "/payments/transactions/create_order/", body: req}, &order)
	return order, err
}

func (c *Client) VerifyPayment(ctx context.Context, req domain.VerifyPaymentRequest) (domain.VerifyPaymentResponse, error) {
	var resp domain.VerifyPaymentResponse
	err := c.do(ctx, request{method: http.MethodPost, path: "/payments/transactions/verify_payment/", body: req}, &resp)
	return resp, err
}

func invoicePath(id int64, suffix string) string {
	return "/billing/invoices/" + strconv.FormatInt(id, 10) + "/" + suffix
}
