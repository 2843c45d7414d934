package checkout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"kasirinaja/terminal/internal/api"
	"kasirinaja/terminal/internal/apperror"
	"kasirinaja/terminal/internal/cart"
	"kasirinaja/terminal/internal/domain"
	"kasirinaja/terminal/internal/store"
	"kasirinaja/terminal/internal/store/memory"
)

type fakeBackend struct {
	calls []string

	createErrs    []error
	createReqs    []domain.InvoiceRequest
	createKeys    []string
	getErr        error
	orderErr      error
	verifyResp    domain.VerifyPaymentResponse
	verifyErr     error
	verifyReqs    []domain.VerifyPaymentRequest
	emailErr      error
	customer      *domain.Customer
	findErr       error
	createdDrafts []domain.CustomerDraft
	nextInvoiceID int64
}

func (f *fakeBackend) FindCustomerByPhone(_ context.Context, phone string) (*domain.Customer, error) {
	f.calls = append(f.calls, "find_customer")
	return f.customer, f.findErr
}

func (f *fakeBackend) CreateCustomer(_ context.Context, draft domain.CustomerDraft) (domain.Customer, error) {
	f.calls = append(f.calls, "create_customer")
	f.createdDrafts = append(f.createdDrafts, draft)
	return domain.Customer{ID: 77, Name: draft.Name, Phone: draft.Phone, Email: draft.Email}, nil
}

func (f *fakeBackend) CreateInvoice(_ context.Context, req domain.InvoiceRequest, key string) (domain.Invoice, error) {
	f.calls = append(f.calls, "create_invoice")
	f.createReqs = append(f.createReqs, req)
	f.createKeys = append(f.createKeys, key)
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		if err != nil {
			return domain.Invoice{}, err
		}
	}
	f.nextInvoiceID++
	return domain.Invoice{
		ID:            f.nextInvoiceID,
		InvoiceNumber: fmt.Sprintf("INV-%04d", f.nextInvoiceID),
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		CustomerEmail: req.CustomerEmail,
		TotalAmount:   decimal.RequireFromString(req.TotalAmount),
		PaidAmount:    decimal.RequireFromString(req.PaidAmount),
		Status:        req.Status,
		PaymentMethod: req.PaymentMethod,
	}, nil
}

func (f *fakeBackend) GetInvoice(_ context.Context, id int64) (domain.Invoice, error) {
	f.calls = append(f.calls, "get_invoice")
	if f.getErr != nil {
		return domain.Invoice{}, f.getErr
	}
	return domain.Invoice{
		ID:            id,
		InvoiceNumber: fmt.Sprintf("INV-%04d", id),
		Status:        domain.InvoiceStatusPaid,
		Items:         []domain.InvoiceItem{{Product: 1, ProductName: "Tea", Quantity: 2}},
	}, nil
}

func (f *fakeBackend) CreateOrder(_ context.Context, req domain.CreateOrderRequest) (domain.Order, error) {
	f.calls = append(f.calls, "create_order")
	if f.orderErr != nil {
		return domain.Order{}, f.orderErr
	}
	return domain.Order{OrderID: fmt.Sprintf("order_%d", req.InvoiceID), Amount: 22000, Currency: "INR"}, nil
}

func (f *fakeBackend) VerifyPayment(_ context.Context, req domain.VerifyPaymentRequest) (domain.VerifyPaymentResponse, error) {
	f.calls = append(f.calls, "verify_payment")
	f.verifyReqs = append(f.verifyReqs, req)
	return f.verifyResp, f.verifyErr
}

func (f *fakeBackend) SendInvoiceEmail(_ context.Context, id int64) (domain.MessageResponse, error) {
	f.calls = append(f.calls, "send_email")
	return domain.MessageResponse{Message: "sent"}, f.emailErr
}

func (f *fakeBackend) called(name string) int {
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

type fakeWidget struct {
	opened []HostedCheckout
	err    error
}

func (w *fakeWidget) Open(_ context.Context, checkout HostedCheckout) error {
	w.opened = append(w.opened, checkout)
	return w.err
}

func newTestMachine(backend *fakeBackend, widget *fakeWidget) (*Machine, *memory.Store) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	journal := memory.New()
	m := New(backend, widget, journal, Config{
		StoreID:             "main-store",
		TerminalID:          "terminal-1",
		HostedCheckoutKeyID: "rzp_test_key",
		PhoneRegion:         "IN",
	}, logger)
	return m, journal
}

func teaSale(method domain.PaymentMethod) Sale {
	c := cart.New()
	tea := domain.Product{
		ID:           1,
		Name:         "Tea",
		SellingPrice: decimal.NewFromInt(100),
		TaxRate:      decimal.NewFromInt(10),
	}
	c.AddItem(tea)
	c.AddItem(tea)
	return Sale{
		Lines:         c.Lines(),
		OrderDiscount: decimal.Zero,
		Method:        method,
		Actor:         domain.Actor{Username: "kasir", Role: "employee"},
	}
}

func TestCashSaleCompletesPaid(t *testing.T) {
	backend := &fakeBackend{}
	m, _ := newTestMachine(backend, &fakeWidget{})

	out, err := m.Submit(context.Background(), teaSale(domain.PaymentCash))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if out.State != Completed || !out.ResetCart {
		t.Fatalf("expected completed with cart reset, got %+v", out)
	}

	req := backend.createReqs[0]
	if req.Subtotal != "200.00" || req.TaxAmount != "20.00" || req.TotalAmount != "220.00" {
		t.Fatalf("unexpected amounts %+v", req)
	}
	if req.PaidAmount != "220.00" || req.Status != domain.InvoiceStatusPaid || req.PaymentMethod != "cash" {
		t.Fatalf("unexpected settlement %+v", req)
	}
	if req.CustomerName != "Walk-in Customer" || req.Customer != nil {
		t.Fatalf("expected walk-in guest, got %+v", req)
	}
	if backend.called("create_order") != 0 || backend.called("find_customer") != 0 {
		t.Fatalf("unexpected calls %v", backend.calls)
	}
	if out.Invoice == nil || len(out.Invoice.Items) != 1 {
		t.Fatalf("expected refetched invoice, got %+v", out.Invoice)
	}
}

func TestCreditSaleIsPendingWithoutHostedOrder(t *testing.T) {
	backend := &fakeBackend{}
	m, _ := newTestMachine(backend, &fakeWidget{})

	out, err := m.Submit(context.Background(), teaSale(domain.PaymentCredit))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	req := backend.createReqs[0]
	if req.PaidAmount != "0.00" || req.Status != domain.InvoiceStatusPending || req.PaymentMethod != "credit" {
		t.Fatalf("unexpected credit settlement %+v", req)
	}
	if out.State != Completed || backend.called("create_order") != 0 {
		t.Fatalf("credit should complete without an order: %+v calls=%v", out, backend.calls)
	}
}

func TestCreateFailureKeepsSaleAndReportsServerMessage(t *testing.T) {
	backend := &fakeBackend{createErrs: []error{apperror.NewAppError(400, "Product out of stock")}}
	m, journal := newTestMachine(backend, &fakeWidget{})

	out, err := m.Submit(context.Background(), teaSale(domain.PaymentCash))
	var createErr *CreateError
	if !errors.As(err, &createErr) {
		t.Fatalf("expected CreateError, got %v", err)
	}
	if createErr.Message() != "Product out of stock" {
		t.Fatalf("unexpected message %q", createErr.Message())
	}
	if out.ResetCart || m.State() != Idle {
		t.Fatalf("cart must survive a failed create: %+v", out)
	}
	saved, ferr := journal.FindAttempt(context.Background(), m.AttemptID())
	if ferr != nil || saved.State != store.AttemptCreateFailed {
		t.Fatalf("expected create_failed attempt, got %+v err=%v", saved, ferr)
	}
}

func TestCreateFailureWithoutServerMessageUsesFallback(t *testing.T) {
	backend := &fakeBackend{createErrs: []error{apperror.FromResponse(500, []byte("oops"))}}
	m, _ := newTestMachine(backend, &fakeWidget{})

	_, err := m.Submit(context.Background(), teaSale(domain.PaymentCard))
	var createErr *CreateError
	if !errors.As(err, &createErr) || createErr.Message() != "Failed to create invoice" {
		t.Fatalf("expected fallback message, got %v", err)
	}
}

func TestEmptySaleMakesNoCalls(t *testing.T) {
	backend := &fakeBackend{}
	m, _ := newTestMachine(backend, &fakeWidget{})

	sale := teaSale(domain.PaymentCash)
	sale.Lines = nil
	_, err := m.Submit(context.Background(), sale)
	if !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
	if len(backend.calls) != 0 {
		t.Fatalf("expected no backend calls, got %v", backend.calls)
	}
}

func TestCustomerResolvedOnlyWithNameAndPhone(t *testing.T) {
	backend := &fakeBackend{}
	m, _ := newTestMachine(backend, &fakeWidget{})

	sale := teaSale(domain.PaymentCash)
	sale.Customer = domain.CustomerDraft{Phone: "9876543210"}
	if _, err := m.Submit(context.Background(), sale); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if backend.called("find_customer") != 0 {
		t.Fatalf("phone alone must not resolve a customer")
	}

	sale.Customer = domain.CustomerDraft{Name: "Asha", Phone: "9876543210", Email: "asha@example.com"}
	if _, err := m.Submit(context.Background(), sale); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	req := backend.createReqs[1]
	if req.Customer == nil || *req.Customer != 77 {
		t.Fatalf("expected created customer id, got %+v", req.Customer)
	}
	if len(backend.createdDrafts) != 1 || backend.createdDrafts[0].Email != "asha@example.com" {
		t.Fatalf("unexpected customer create %+v", backend.createdDrafts)
	}
}

func TestCustomerLookupFailureFallsBackToGuest(t *testing.T) {
	backend := &fakeBackend{findErr: errors.New("boom")}
	m, _ := newTestMachine(backend, &fakeWidget{})

	sale := teaSale(domain.PaymentCash)
	sale.Customer = domain.CustomerDraft{Name: "Asha", Phone: "9876543210"}
	if _, err := m.Submit(context.Background(), sale); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if backend.createReqs[0].Customer != nil || backend.createReqs[0].CustomerName != "Asha" {
		t.Fatalf("expected guest sale under typed name, got %+v", backend.createReqs[0])
	}
}

func TestRecipientReportedWithoutResendingEmail(t *testing.T) {
	backend := &fakeBackend{}
	m, _ := newTestMachine(backend, &fakeWidget{})

	sale := teaSale(domain.PaymentCash)
	sale.Customer = domain.CustomerDraft{Email: "asha@example.com"}
	out, err := m.Submit(context.Background(), sale)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if out.State != Completed || out.EmailRecipient != "asha@example.com" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if n := backend.called("send_email"); n != 0 || out.EmailSent {
		t.Fatalf("backend already mails the invoice, got %d send calls", n)
	}
}

func TestAutoSendEmailFailureKeepsSale(t *testing.T) {
	backend := &fakeBackend{emailErr: errors.New("smtp down")}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	m := New(backend, &fakeWidget{}, memory.New(), Config{
		StoreID:       "main-store",
		TerminalID:    "terminal-1",
		PhoneRegion:   "IN",
		AutoSendEmail: true,
	}, logger)

	sale := teaSale(domain.PaymentCash)
	sale.Customer = domain.CustomerDraft{Email: "asha@example.com"}
	out, err := m.Submit(context.Background(), sale)
	if err != nil {
		t.Fatalf("email failure must not fail the sale: %v", err)
	}
	if backend.called("send_email") != 1 {
		t.Fatalf("expected one send call, got %v", backend.calls)
	}
	if out.EmailSent || out.EmailErr == nil || out.EmailRecipient != "asha@example.com" {
		t.Fatalf("unexpected email outcome %+v", out)
	}
	if out.State != Completed {
		t.Fatalf("expected completed, got %s", out.State)
	}
}

func TestSubmitNormalizesPaymentMethod(t *testing.T) {
	for _, raw := range []domain.PaymentMethod{"CASH", " Cash "} {
		backend := &fakeBackend{}
		m, _ := newTestMachine(backend, &fakeWidget{})

		out, err := m.Submit(context.Background(), teaSale(raw))
		if err != nil {
			t.Fatalf("%q: submit failed: %v", raw, err)
		}
		if out.State != Completed {
			t.Fatalf("%q: expected completed, got %s", raw, out.State)
		}
		req := backend.createReqs[0]
		if req.PaymentMethod != "cash" || req.Status != domain.InvoiceStatusPaid {
			t.Fatalf("%q: unexpected request %+v", raw, req)
		}
	}
}

func TestRefetchFailureFallsBackToCreatedInvoice(t *testing.T) {
	backend := &fakeBackend{getErr: errors.New("timeout")}
	m, _ := newTestMachine(backend, &fakeWidget{})

	out, err := m.Submit(context.Background(), teaSale(domain.PaymentUPI))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if out.Invoice == nil || out.Invoice.InvoiceNumber != "INV-0001" || out.Invoice.PaymentMethod != "upi" {
		t.Fatalf("expected creation response, got %+v", out.Invoice)
	}
}

func TestOnlineSaleVerifiedAfterHostedSuccess(t *testing.T) {
	backend := &fakeBackend{verifyResp: domain.VerifyPaymentResponse{Success: true}}
	widget := &fakeWidget{}
	m, _ := newTestMachine(backend, widget)

	sale := teaSale(domain.PaymentOnline)
	sale.Customer = domain.CustomerDraft{Name: "Asha", Phone: "98765 43210"}
	out, err := m.Submit(context.Background(), sale)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if out.State != AwaitingHostedPayment || out.ResetCart {
		t.Fatalf("expected awaiting hosted payment, got %+v", out)
	}
	req := backend.createReqs[0]
	if req.PaymentMethod != "upi" || req.PaidAmount != "0.00" || req.Status != domain.InvoiceStatusPending {
		t.Fatalf("online invoice must be sent pending as upi: %+v", req)
	}
	if len(widget.opened) != 1 {
		t.Fatalf("expected widget opened once")
	}
	opened := widget.opened[0]
	if opened.KeyID != "rzp_test_key" || opened.Description != "Payment for Invoice INV-0001" {
		t.Fatalf("unexpected hosted checkout %+v", opened)
	}
	if opened.Prefill.Name != "Asha" || opened.Prefill.Contact != "+919876543210" {
		t.Fatalf("unexpected prefill %+v", opened.Prefill)
	}

	out, err = m.HostedSucceeded(context.Background(), domain.HostedPaymentResult{
		OrderID:   "order_1",
		PaymentID: "pay_1",
		Signature: "sig",
	})
	if err != nil {
		t.Fatalf("hosted success failed: %v", err)
	}
	if out.State != Verified || !out.ResetCart {
		t.Fatalf("expected verified with cart reset, got %+v", out)
	}
	if backend.called("get_invoice") != 1 {
		t.Fatalf("expected one refetch after verification, calls=%v", backend.calls)
	}
	v := backend.verifyReqs[0]
	if v.InvoiceID != 1 || v.OrderID != "order_1" || v.PaymentID != "pay_1" || v.Signature != "sig" {
		t.Fatalf("unexpected verification %+v", v)
	}
}

func TestOnlineVerificationFailureNamesPayment(t *testing.T) {
	backend := &fakeBackend{verifyResp: domain.VerifyPaymentResponse{Success: false, Message: "bad signature"}}
	m, journal := newTestMachine(backend, &fakeWidget{})

	if _, err := m.Submit(context.Background(), teaSale(domain.PaymentOnline)); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	out, err := m.HostedSucceeded(context.Background(), domain.HostedPaymentResult{OrderID: "order_1", PaymentID: "pay_X", Signature: "sig"})
	var verr *VerificationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected VerificationError, got %v", err)
	}
	if !strings.Contains(err.Error(), "pay_X") {
		t.Fatalf("error must name the payment id: %q", err.Error())
	}
	if out.ResetCart || out.State != VerificationFailed {
		t.Fatalf("cart must be kept after failed verification: %+v", out)
	}
	saved, _ := journal.FindAttempt(context.Background(), m.AttemptID())
	if saved == nil || saved.State != store.AttemptVerificationFailed || saved.PaymentID != "pay_X" {
		t.Fatalf("unexpected journaled attempt %+v", saved)
	}

	if _, err := m.Submit(context.Background(), teaSale(domain.PaymentCash)); !errors.Is(err, ErrUnfinishedSale) {
		t.Fatalf("expected ErrUnfinishedSale, got %v", err)
	}

	backend.verifyResp = domain.VerifyPaymentResponse{Success: true}
	out, err = m.RetryVerification(context.Background())
	if err != nil || out.State != Verified {
		t.Fatalf("retry verification: state=%s err=%v", out.State, err)
	}
	if len(backend.verifyReqs) != 2 || backend.verifyReqs[1].PaymentID != "pay_X" {
		t.Fatalf("retry must resend the stored verification")
	}
}

func TestHostedDismissCancelsAndCanReopen(t *testing.T) {
	backend := &fakeBackend{verifyResp: domain.VerifyPaymentResponse{Success: true}}
	widget := &fakeWidget{}
	m, _ := newTestMachine(backend, widget)

	if _, err := m.Submit(context.Background(), teaSale(domain.PaymentOnline)); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	out, err := m.HostedDismissed(context.Background())
	if err != nil || out.State != Cancelled || out.ResetCart {
		t.Fatalf("expected cancelled keeping the cart, got %+v err=%v", out, err)
	}
	if backend.called("verify_payment") != 0 {
		t.Fatalf("dismiss must not verify")
	}

	out, err = m.RetryHosted(context.Background())
	if err != nil || out.State != AwaitingHostedPayment {
		t.Fatalf("retry hosted: %+v err=%v", out, err)
	}
	if backend.called("create_invoice") != 1 || len(widget.opened) != 2 {
		t.Fatalf("reopen must reuse the invoice, calls=%v", backend.calls)
	}
}

func TestMissingHostedKeyCancels(t *testing.T) {
	backend := &fakeBackend{}
	m, _ := newTestMachine(backend, &fakeWidget{})
	m.cfg.HostedCheckoutKeyID = ""

	out, err := m.Submit(context.Background(), teaSale(domain.PaymentOnline))
	if err == nil || err.Error() != "Hosted checkout key not configured. Please contact administrator." {
		t.Fatalf("unexpected error %v", err)
	}
	if out.State != Cancelled || backend.called("create_order") != 0 {
		t.Fatalf("expected cancelled without an order, got %+v", out)
	}
}

func TestOrderFailureUsesFallbackMessage(t *testing.T) {
	backend := &fakeBackend{orderErr: fmt.Errorf("%w: dial tcp", api.ErrTransport)}
	m, _ := newTestMachine(backend, &fakeWidget{})

	_, err := m.Submit(context.Background(), teaSale(domain.PaymentOnline))
	var herr *HostedCheckoutError
	if !errors.As(err, &herr) || err.Error() != "Failed to initiate payment. Please try again." {
		t.Fatalf("unexpected error %v", err)
	}
	if m.State() != Cancelled {
		t.Fatalf("expected cancelled, got %s", m.State())
	}
}

func TestTransportFailureRetryReusesIdempotencyKey(t *testing.T) {
	backend := &fakeBackend{createErrs: []error{fmt.Errorf("%w: connection reset", api.ErrTransport)}}
	m, journal := newTestMachine(backend, &fakeWidget{})
	ctx := context.Background()

	if _, err := m.Submit(ctx, teaSale(domain.PaymentCash)); err == nil {
		t.Fatalf("expected create error")
	}
	unknown, err := journal.ListUnfinishedAttempts(ctx, "main-store", "terminal-1", 10)
	if err != nil || len(unknown) != 1 || unknown[0].State != store.AttemptCreateUnknown {
		t.Fatalf("expected one create_unknown attempt, got %+v err=%v", unknown, err)
	}

	out, err := m.Submit(ctx, teaSale(domain.PaymentCash))
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if backend.createKeys[0] != backend.createKeys[1] {
		t.Fatalf("retry must reuse key: %q vs %q", backend.createKeys[0], backend.createKeys[1])
	}
	if out.Attempt == nil || out.Attempt.State != store.AttemptCompleted {
		t.Fatalf("unexpected attempt %+v", out.Attempt)
	}

	if _, err := m.Submit(ctx, teaSale(domain.PaymentCash)); err != nil {
		t.Fatalf("third sale failed: %v", err)
	}
	if backend.createKeys[2] == backend.createKeys[1] {
		t.Fatalf("a new sale must get a fresh key")
	}
}

func TestTransportFailureWithChangedSaleGetsFreshKey(t *testing.T) {
	backend := &fakeBackend{createErrs: []error{fmt.Errorf("%w: timeout", api.ErrTransport)}}
	m, _ := newTestMachine(backend, &fakeWidget{})
	ctx := context.Background()

	_, _ = m.Submit(ctx, teaSale(domain.PaymentCash))
	if _, err := m.Submit(ctx, teaSale(domain.PaymentCard)); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if backend.createKeys[0] == backend.createKeys[1] {
		t.Fatalf("a different sale must not reuse the key")
	}
}

func TestAbandonUnfinishedSale(t *testing.T) {
	backend := &fakeBackend{}
	m, journal := newTestMachine(backend, &fakeWidget{})
	ctx := context.Background()

	if _, err := m.Abandon(ctx, "nothing"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState when idle, got %v", err)
	}
	if _, err := m.Submit(ctx, teaSale(domain.PaymentOnline)); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	id := m.AttemptID()
	out, err := m.Abandon(ctx, "customer left")
	if err != nil || out.State != Idle || !out.ResetCart {
		t.Fatalf("unexpected abandon outcome %+v err=%v", out, err)
	}
	saved, _ := journal.FindAttempt(ctx, id)
	if saved == nil || saved.State != store.AttemptAbandoned {
		t.Fatalf("expected abandoned attempt, got %+v", saved)
	}
	if _, err := m.Submit(ctx, teaSale(domain.PaymentCash)); err != nil {
		t.Fatalf("submit after abandon failed: %v", err)
	}
}

func TestHostedCallbacksRejectedOutsideAwaiting(t *testing.T) {
	m, _ := newTestMachine(&fakeBackend{}, &fakeWidget{})
	if _, err := m.HostedSucceeded(context.Background(), domain.HostedPaymentResult{PaymentID: "pay"}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if _, err := m.HostedDismissed(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestAuditTrailRecorded(t *testing.T) {
	m, journal := newTestMachine(&fakeBackend{}, &fakeWidget{})
	ctx := context.Background()
	if _, err := m.Submit(ctx, teaSale(domain.PaymentCash)); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	logs, err := journal.ListAuditLogs(ctx, "main-store", m.now().AddDate(0, 0, -1), m.now().AddDate(0, 0, 1), 10)
	if err != nil || len(logs) != 1 || logs[0].Action != "checkout.completed" || logs[0].ActorUsername != "kasir" {
		t.Fatalf("unexpected audit logs %+v err=%v", logs, err)
	}
}
