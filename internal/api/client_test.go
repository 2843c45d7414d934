package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"kasirinaja/terminal/internal/apperror"
	"kasirinaja/terminal/internal/domain"
	"kasirinaja/terminal/internal/session"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{"user_id": 3}).SignedString([]byte("x"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	auth, err := session.New(token, "employee", "kasir")
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	return NewClient(srv.URL+"/api/", 1000, srv.Client(), logger).WithAuth(auth)
}

func TestSearchProductsSendsBearerAndDecodesPage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/products/products/search/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("q") != "teh botol" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		if r.Header.Get("Authorization") == "" {
			t.Errorf("expected bearer token")
		}
		_, _ = io.WriteString(w, `{"results":[{"id":1,"name":"Teh Botol","sku":"TB-1","selling_price":"5000.00","tax_rate":"11.00"}]}`)
	})

	products, err := client.SearchProducts(context.Background(), "teh botol")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(products) != 1 || !products[0].SellingPrice.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("unexpected products %+v", products)
	}
}

func TestProductByQRNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"Product not found"}`)
	})

	_, err := client.ProductByQR(context.Background(), "QR-404")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if apperror.Message(err) != "Product not found" {
		t.Fatalf("expected server message, got %q", apperror.Message(err))
	}
}

func TestAvailableCouponsAcceptsBareList(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("amount") != "200.00" {
			t.Errorf("expected 2dp amount, got %s", r.URL.RawQuery)
		}
		_, _ = io.WriteString(w, `[{"id":5,"code":"HEMAT10","discount_type":"percentage","discount_value":"10","max_discount":null,"min_purchase_amount":"100","calculated_discount":"20.00"}]`)
	})

	coupons, err := client.AvailableCoupons(context.Background(), decimal.NewFromInt(200))
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	if len(coupons) != 1 || coupons[0].MaxDiscount.Valid || !coupons[0].CalculatedDiscount.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("unexpected coupons %+v", coupons)
	}
}

func TestCreateInvoiceSendsIdempotencyKey(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/billing/invoices/" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Idempotency-Key") != "key-1" {
			t.Errorf("expected idempotency key header")
		}
		var body domain.InvoiceRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.TotalAmount != "220.00" || body.Customer != nil {
			t.Errorf("unexpected body %+v", body)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":77,"invoice_number":"INV-77","total_amount":"220.00","status":"paid"}`)
	})

	inv, err := client.CreateInvoice(context.Background(), domain.InvoiceRequest{TotalAmount: "220.00"}, "key-1")
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if inv.ID != 77 || inv.InvoiceNumber != "INV-77" {
		t.Fatalf("unexpected invoice %+v", inv)
	}
}

func TestServerErrorPrefersDetail(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"detail":"Insufficient stock","error":"ignored"}`)
	})

	_, err := client.CreateInvoice(context.Background(), domain.InvoiceRequest{}, "")
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || appErr.Message != "Insufficient stock" || appErr.Code != http.StatusBadRequest {
		t.Fatalf("expected detail message, got %v", err)
	}
	if errors.Is(err, ErrTransport) {
		t.Fatalf("server answer must not be a transport error")
	}
}

func TestTransportFailureIsMarked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	client := NewClient(url, 100, nil, logger)

	_, err := client.GetInvoice(context.Background(), 1)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestFindCustomerByPhone(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("phone") == "0811" {
			_, _ = io.WriteString(w, `{"results":[{"id":12,"name":"Ani","phone":"0811"}]}`)
			return
		}
		_, _ = io.WriteString(w, `{"results":[]}`)
	})

	found, err := client.FindCustomerByPhone(context.Background(), "0811")
	if err != nil || found == nil || found.ID != 12 {
		t.Fatalf("expected customer 12, got %+v err=%v", found, err)
	}
	missing, err := client.FindCustomerByPhone(context.Background(), "0999")
	if err != nil || missing != nil {
		t.Fatalf("expected no customer, got %+v err=%v", missing, err)
	}
}

func TestInvoiceSubresourcePaths(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/billing/invoices/9/pdf/":
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = io.WriteString(w, "%PDF-1.4")
		case "/api/billing/invoices/9/send_email/":
			_, _ = io.WriteString(w, `{"message":"Invoice sent"}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	pdf, err := client.InvoicePDF(context.Background(), 9)
	if err != nil || string(pdf) != "%PDF-1.4" {
		t.Fatalf("unexpected pdf %q err=%v", pdf, err)
	}
	msg, err := client.SendInvoiceEmail(context.Background(), 9)
	if err != nil || msg.Message != "Invoice sent" {
		t.Fatalf("unexpected email response %+v err=%v", msg, err)
	}
}
