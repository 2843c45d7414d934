package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"kasirinaja/terminal/internal/api"
	"kasirinaja/terminal/internal/cart"
	"kasirinaja/terminal/internal/customer"
	"kasirinaja/terminal/internal/domain"
	"kasirinaja/terminal/internal/store"
	"kasirinaja/terminal/internal/xid"
)

type State string

const (
	Idle                  State = "idle"
	Submitting            State = "submitting"
	Completed             State = "completed"
	AwaitingHostedPayment State = "awaiting_hosted_payment"
	Verified              State = "verified"
	Cancelled             State = "cancelled"
	VerificationFailed    State = "verification_failed"
)

// Backend is the slice of the REST API the checkout needs.
type Backend interface {
	FindCustomerByPhone(ctx context.Context, phone string) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, draft domain.CustomerDraft) (domain.Customer, error)
	CreateInvoice(ctx context.Context, req domain.InvoiceRequest, idempotencyKey string) (domain.Invoice, error)
	GetInvoice(ctx context.Context, id int64) (domain.Invoice, error)
	CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (domain.Order, error)
	VerifyPayment(ctx context.Context, req domain.VerifyPaymentRequest) (domain.VerifyPaymentResponse, error)
	SendInvoiceEmail(ctx context.Context, id int64) (domain.MessageResponse, error)
}

type Prefill struct {
	Name    string
	Email   string
	Contact string
}

// HostedCheckout is what the hosted widget is opened with.
type HostedCheckout struct {
	AttemptID   string
	KeyID       string
	Order       domain.Order
	InvoiceID   int64
	Description string
	Prefill     Prefill
}

// HostedWidget starts the third-party payment UI. Its success and dismiss
// outcomes come back later through HostedSucceeded and HostedDismissed;
// Open must not deliver them before it returns.
type HostedWidget interface {
	Open(ctx context.Context, checkout HostedCheckout) error
}

// Journal records attempts and audit entries on the terminal.
type Journal interface {
	CreateAttempt(ctx context.Context, attempt domain.CheckoutAttempt) (*domain.CheckoutAttempt, error)
	UpdateAttempt(ctx context.Context, attempt domain.CheckoutAttempt) (*domain.CheckoutAttempt, error)
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
}

type Config struct {
	StoreID             string
	TerminalID          string
	HostedCheckoutKeyID string
	ShopName            string
	PhoneRegion         string
	// AutoSendEmail asks the backend to mail the invoice again after a sale
	// completes. Off by default since the backend already sends it.
	AutoSendEmail bool
}

// Outcome describes where a checkout step left the sale.
type Outcome struct {
	State          State
	Invoice        *domain.Invoice
	Order          *domain.Order
	Attempt        *domain.CheckoutAttempt
	ResetCart      bool
	EmailSent      bool
	EmailRecipient string
	EmailErr       error
}

type retryState struct {
	attempt     domain.CheckoutAttempt
	fingerprint string
}

// Machine drives one sale at a time from invoice creation to a terminal
// state. It is not safe for concurrent use; the billing controller
// serialises every call.
type Machine struct {
	backend Backend
	widget  HostedWidget
	journal Journal
	cfg     Config
	log     logrus.FieldLogger
	now     func() time.Time

	state     State
	sale      Sale
	attempt   domain.CheckoutAttempt
	invoice   *domain.Invoice
	order     *domain.Order
	verifyReq *domain.VerifyPaymentRequest
	retry     *retryState
}

func New(backend Backend, widget HostedWidget, journal Journal, cfg Config, logger logrus.FieldLogger) *Machine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cfg.ShopName == "" {
		cfg.ShopName = "POS Billing System"
	}
	return &Machine{
		backend: backend,
		widget:  widget,
		journal: journal,
		cfg:     cfg,
		log:     logger.WithField("module", "checkout"),
		now:     func() time.Time { return time.Now().UTC() },
		state:   Idle,
	}
}

func (m *Machine) State() State {
	return m.state
}

// AttemptID is the id of the current attempt, empty before the first one.
func (m *Machine) AttemptID() string {
	return m.attempt.ID
}

// Invoice is the server copy of the current sale's invoice, if one exists.
func (m *Machine) Invoice() (domain.Invoice, bool) {
	if m.invoice == nil {
		return domain.Invoice{}, false
	}
	return *m.invoice, true
}

// Unfinished reports whether a created invoice still awaits payment or a
// decision from the operator.
func (m *Machine) Unfinished() bool {
	switch m.state {
	case AwaitingHostedPayment, Cancelled, VerificationFailed:
		return true
	default:
		return false
	}
}

// Submit creates the invoice for sale and runs the branch of its payment
// method. An empty sale is rejected before any backend call.
func (m *Machine) Submit(ctx context.Context, sale Sale) (Outcome, error) {
	switch m.state {
	case Submitting:
		return m.outcome(false), ErrInProgress
	case AwaitingHostedPayment, Cancelled, VerificationFailed:
		return m.outcome(false), ErrUnfinishedSale
	}
	if len(sale.Lines) == 0 {
		return m.outcome(false), ErrEmptyCart
	}
	method, err := domain.ParsePaymentMethod(string(sale.Method))
	if err != nil {
		return m.outcome(false), err
	}
	sale.Method = method

	m.state = Submitting
	m.sale = sale
	m.invoice = nil
	m.order = nil
	m.verifyReq = nil

	customerID := m.resolveCustomer(ctx, sale.Customer)
	req := BuildInvoiceRequest(sale, customerID)
	m.beginAttempt(ctx, sale, req)

	inv, err := m.backend.CreateInvoice(ctx, req, m.attempt.IdempotencyKey)
	if err != nil {
		m.state = Idle
		m.attempt.LastError = err.Error()
		if errors.Is(err, api.ErrTransport) {
			m.attempt.State = store.AttemptCreateUnknown
			m.retry = &retryState{attempt: m.attempt, fingerprint: fingerprint(req)}
		} else {
			m.attempt.State = store.AttemptCreateFailed
			m.retry = nil
		}
		m.saveAttempt(ctx)
		m.audit(ctx, "checkout.create_failed", err.Error())
		return m.outcome(false), &CreateError{Err: err}
	}

	m.retry = nil
	m.invoice = &inv
	m.attempt.InvoiceID = inv.ID
	m.attempt.InvoiceNumber = inv.InvoiceNumber

	switch sale.Method {
	case domain.PaymentCash, domain.PaymentCard, domain.PaymentUPI, domain.PaymentCredit:
		return m.complete(ctx, m.refetch(ctx, inv), Completed), nil
	case domain.PaymentOnline:
		return m.openHosted(ctx, inv)
	default:
		panic(fmt.Sprintf("checkout: unhandled payment method %q", string(sale.Method)))
	}
}

// HostedSucceeded handles the widget's success callback.
func (m *Machine) HostedSucceeded(ctx context.Context, result domain.HostedPaymentResult) (Outcome, error) {
	if m.state != AwaitingHostedPayment {
		return m.outcome(false), fmt.Errorf("%w: hosted success in %s", ErrInvalidState, m.state)
	}

	orderID := strings.TrimSpace(result.OrderID)
	if orderID == "" && m.order != nil {
		orderID = m.order.OrderID
	}
	m.verifyReq = &domain.VerifyPaymentRequest{
		InvoiceID: m.invoice.ID,
		OrderID:   orderID,
		PaymentID: strings.TrimSpace(result.PaymentID),
		Signature: result.Signature,
	}
	m.attempt.PaymentID = m.verifyReq.PaymentID
	return m.verify(ctx)
}

// HostedDismissed handles the widget being closed without paying. The
// pending invoice stays as the backend has it.
func (m *Machine) HostedDismissed(ctx context.Context) (Outcome, error) {
	if m.state != AwaitingHostedPayment {
		return m.outcome(false), fmt.Errorf("%w: hosted dismiss in %s", ErrInvalidState, m.state)
	}
	m.cancel(ctx, "hosted checkout dismissed")
	return m.outcome(false), nil
}

// RetryVerification re-sends the stored verification after a failure.
func (m *Machine) RetryVerification(ctx context.Context) (Outcome, error) {
	if m.state != VerificationFailed || m.verifyReq == nil {
		return m.outcome(false), fmt.Errorf("%w: retry verification in %s", ErrInvalidState, m.state)
	}
	return m.verify(ctx)
}

// RetryHosted opens the hosted widget again for a cancelled online sale,
// reusing the invoice that already exists.
func (m *Machine) RetryHosted(ctx context.Context) (Outcome, error) {
	if m.state != Cancelled || m.invoice == nil || !m.sale.Method.Hosted() {
		return m.outcome(false), fmt.Errorf("%w: retry hosted payment in %s", ErrInvalidState, m.state)
	}
	return m.openHosted(ctx, *m.invoice)
}

// Abandon gives up on an unfinished sale, or on a creation call that got no
// answer. The backend invoice, if any, is left for reconciliation.
func (m *Machine) Abandon(ctx context.Context, reason string) (Outcome, error) {
	switch {
	case m.Unfinished():
	case m.state == Idle && m.retry != nil:
		m.attempt = m.retry.attempt
	default:
		return m.outcome(false), fmt.Errorf("%w: abandon in %s", ErrInvalidState, m.state)
	}

	m.attempt.State = store.AttemptAbandoned
	m.attempt.LastError = reason
	m.saveAttempt(ctx)
	m.audit(ctx, "checkout.abandoned", reason)

	out := m.outcome(true)
	out.State = Idle
	m.state = Idle
	m.invoice = nil
	m.order = nil
	m.verifyReq = nil
	m.retry = nil
	return out, nil
}

func (m *Machine) openHosted(ctx context.Context, inv domain.Invoice) (Outcome, error) {
	if m.cfg.HostedCheckoutKeyID == "" {
		m.cancel(ctx, errMissingKeyID.Error())
		return m.outcome(false), &HostedCheckoutError{InvoiceID: inv.ID, Err: errMissingKeyID}
	}

	order, err := m.backend.CreateOrder(ctx, domain.CreateOrderRequest{
		InvoiceID: inv.ID,
		KeyID:     m.cfg.HostedCheckoutKeyID,
	})
	if err != nil {
		m.cancel(ctx, err.Error())
		return m.outcome(false), &HostedCheckoutError{InvoiceID: inv.ID, Err: err}
	}
	m.order = &order
	m.attempt.OrderID = order.OrderID

	m.state = AwaitingHostedPayment
	m.attempt.State = store.AttemptAwaitingHosted
	m.attempt.LastError = ""
	m.saveAttempt(ctx)

	err = m.widget.Open(ctx, HostedCheckout{
		AttemptID:   m.attempt.ID,
		KeyID:       m.cfg.HostedCheckoutKeyID,
		Order:       order,
		InvoiceID:   inv.ID,
		Description: fmt.Sprintf("Payment for Invoice %s", inv.InvoiceNumber),
		Prefill:     m.prefill(inv),
	})
	if err != nil {
		m.cancel(ctx, err.Error())
		return m.outcome(false), &HostedCheckoutError{InvoiceID: inv.ID, Err: err}
	}
	m.audit(ctx, "checkout.hosted_opened", order.OrderID)
	return m.outcome(false), nil
}

func (m *Machine) verify(ctx context.Context) (Outcome, error) {
	req := *m.verifyReq
	resp, err := m.backend.VerifyPayment(ctx, req)
	if err == nil && !resp.Success {
		msg := strings.TrimSpace(resp.Message)
		if msg == "" {
			msg = "payment not verified"
		}
		err = errors.New(msg)
	}
	if err != nil {
		m.state = VerificationFailed
		m.attempt.State = store.AttemptVerificationFailed
		m.attempt.LastError = err.Error()
		m.saveAttempt(ctx)
		m.audit(ctx, "checkout.verification_failed", req.PaymentID)
		m.log.WithError(err).WithFields(logrus.Fields{
			"invoice_id": req.InvoiceID,
			"payment_id": req.PaymentID,
		}).Warn("payment verification failed")
		return m.outcome(false), &VerificationError{PaymentID: req.PaymentID, Err: err}
	}
	return m.complete(ctx, m.refetch(ctx, *m.invoice), Verified), nil
}

// complete moves to a terminal success state and reports the invoice
// recipient. The backend mails paid and credit invoices on creation and
// hosted ones on verification, so the terminal only asks for another send
// when AutoSendEmail is set. An email failure is reported in the outcome only.
func (m *Machine) complete(ctx context.Context, inv domain.Invoice, state State) Outcome {
	m.state = state
	m.invoice = &inv
	m.attempt.InvoiceID = inv.ID
	m.attempt.InvoiceNumber = inv.InvoiceNumber
	m.attempt.LastError = ""
	if state == Verified {
		m.attempt.State = store.AttemptVerified
	} else {
		m.attempt.State = store.AttemptCompleted
	}
	m.saveAttempt(ctx)
	m.audit(ctx, "checkout."+string(state), inv.InvoiceNumber)

	out := m.outcome(true)
	recipient := strings.TrimSpace(m.sale.Customer.Email)
	if recipient == "" {
		recipient = inv.RecipientEmail()
	}
	if recipient == "" || inv.ID == 0 {
		return out
	}
	out.EmailRecipient = recipient
	if !m.cfg.AutoSendEmail {
		return out
	}
	if _, err := m.backend.SendInvoiceEmail(ctx, inv.ID); err != nil {
		out.EmailErr = err
		m.log.WithError(err).WithField("invoice_id", inv.ID).Warn("send invoice email failed")
		return out
	}
	out.EmailSent = true
	return out
}

func (m *Machine) cancel(ctx context.Context, reason string) {
	m.state = Cancelled
	m.attempt.State = store.AttemptCancelled
	m.attempt.LastError = reason
	m.saveAttempt(ctx)
	m.audit(ctx, "checkout.cancelled", reason)
}

// refetch reads the full invoice back, falling back to what creation
// returned when the read fails.
func (m *Machine) refetch(ctx context.Context, inv domain.Invoice) domain.Invoice {
	if inv.ID == 0 {
		return inv
	}
	full, err := m.backend.GetInvoice(ctx, inv.ID)
	if err != nil {
		m.log.WithError(err).WithField("invoice_id", inv.ID).Warn("refetch invoice failed, using creation response")
		return inv
	}
	return full
}

// resolveCustomer finds or creates the backend customer when both name and
// phone are known. Any failure leaves the sale as a guest sale.
func (m *Machine) resolveCustomer(ctx context.Context, draft domain.CustomerDraft) *int64 {
	name := strings.TrimSpace(draft.Name)
	phone := strings.TrimSpace(draft.Phone)
	if name == "" || phone == "" {
		return nil
	}

	found, err := m.backend.FindCustomerByPhone(ctx, phone)
	if err != nil {
		m.log.WithError(err).Warn("customer lookup failed, continuing as guest")
		return nil
	}
	if found != nil {
		id := found.ID
		return &id
	}

	created, err := m.backend.CreateCustomer(ctx, domain.CustomerDraft{
		Name:  name,
		Phone: phone,
		Email: strings.TrimSpace(draft.Email),
	})
	if err != nil {
		m.log.WithError(err).Warn("customer create failed, continuing as guest")
		return nil
	}
	return &created.ID
}

// beginAttempt journals the attempt before the creation call. A retry of
// the exact same sale after a transport failure keeps its idempotency key.
func (m *Machine) beginAttempt(ctx context.Context, sale Sale, req domain.InvoiceRequest) {
	if m.retry != nil && m.retry.fingerprint == fingerprint(req) {
		m.attempt = m.retry.attempt
		m.attempt.State = store.AttemptSubmitting
		m.attempt.LastError = ""
		m.log.WithFields(logrus.Fields{
			"attempt_id":      m.attempt.ID,
			"idempotency_key": m.attempt.IdempotencyKey,
		}).Info("retrying unanswered invoice creation with the same key")
		m.saveAttempt(ctx)
		return
	}

	m.attempt = domain.CheckoutAttempt{
		ID:             xid.New("att"),
		IdempotencyKey: xid.IdempotencyKey(),
		StoreID:        m.cfg.StoreID,
		TerminalID:     m.cfg.TerminalID,
		Cashier:        sale.Actor.Username,
		PaymentMethod:  sale.Method,
		State:          store.AttemptSubmitting,
		TotalAmount:    cart.ComputeTotals(sale.Lines, sale.OrderDiscount).Total,
		CreatedAt:      m.now(),
	}
	if m.journal == nil {
		return
	}
	if _, err := m.journal.CreateAttempt(ctx, m.attempt); err != nil {
		m.log.WithError(err).WithField("attempt_id", m.attempt.ID).Warn("journal attempt failed")
	}
}

func (m *Machine) saveAttempt(ctx context.Context) {
	if m.journal == nil || m.attempt.ID == "" {
		return
	}
	if _, err := m.journal.UpdateAttempt(ctx, m.attempt); err != nil {
		m.log.WithError(err).WithField("attempt_id", m.attempt.ID).Warn("journal attempt update failed")
	}
}

func (m *Machine) audit(ctx context.Context, action string, detail string) {
	if m.journal == nil {
		return
	}
	err := m.journal.CreateAuditLog(ctx, domain.AuditLog{
		StoreID:       m.cfg.StoreID,
		TerminalID:    m.cfg.TerminalID,
		ActorUsername: m.sale.Actor.Username,
		ActorRole:     m.sale.Actor.Role,
		Action:        action,
		EntityType:    "checkout_attempt",
		EntityID:      m.attempt.ID,
		Detail:        detail,
		CreatedAt:     m.now(),
	})
	if err != nil {
		m.log.WithError(err).WithField("action", action).Warn("audit write failed")
	}
}

func (m *Machine) prefill(inv domain.Invoice) Prefill {
	name := strings.TrimSpace(inv.CustomerName)
	if name == "" {
		name = "Customer"
	}
	contact := strings.TrimSpace(inv.CustomerPhone)
	if contact != "" {
		contact = customer.E164(contact, m.cfg.PhoneRegion)
	}
	return Prefill{Name: name, Email: strings.TrimSpace(inv.CustomerEmail), Contact: contact}
}

func (m *Machine) outcome(resetCart bool) Outcome {
	out := Outcome{State: m.state, ResetCart: resetCart}
	if m.invoice != nil {
		inv := *m.invoice
		out.Invoice = &inv
	}
	if m.order != nil {
		order := *m.order
		out.Order = &order
	}
	if m.attempt.ID != "" {
		attempt := m.attempt
		out.Attempt = &attempt
	}
	return out
}
