package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"kasirinaja/terminal/internal/cache"
	"kasirinaja/terminal/internal/cart"
	"kasirinaja/terminal/internal/checkout"
	"kasirinaja/terminal/internal/coupon"
	"kasirinaja/terminal/internal/customer"
	"kasirinaja/terminal/internal/domain"
	"kasirinaja/terminal/internal/scanner"
	"kasirinaja/terminal/internal/session"
	"kasirinaja/terminal/internal/store"
	"kasirinaja/terminal/internal/store/memory"
)

var (
	ErrCartNotEmpty        = errors.New("current cart is not empty")
	ErrOverrideUnavailable = errors.New("manager override is not configured")
	ErrInvalidManagerPIN   = errors.New("invalid manager PIN")
	// ErrStaleAttempt is a hosted callback for an attempt that is no
	// longer the current one.
	ErrStaleAttempt = errors.New("callback does not match the current checkout attempt")
)

// Backend is everything the billing screen needs from the REST API.
type Backend interface {
	Catalog
	coupon.Source
	checkout.Backend
}

type Deps struct {
	Backend Backend
	Widget  checkout.HostedWidget
	// Camera is the scanner device. Nil means codes are typed in.
	Camera scanner.Camera
	Store  store.Repository
	Cache  cache.LookupCache
	Auth   session.AuthContext
	Logger logrus.FieldLogger
	// OnScan, if set, is told about every decode the camera delivers.
	OnScan func(domain.Product, error)
}

type Config struct {
	StoreID             string
	TerminalID          string
	HostedCheckoutKeyID string
	PhoneRegion         string
	ShopName            string
	ManagerPIN          string
	LookupCacheTTL      time.Duration
	AutoSendEmail       bool
}

// Controller is the billing screen. Every event, whether from the operator,
// the camera or a hosted callback, goes through its mutex so one sale is
// mutated by one event at a time.
type Controller struct {
	mu sync.Mutex

	catalog   *cachedCatalog
	store     store.Repository
	auth      session.AuthContext
	cfg       Config
	log       logrus.FieldLogger
	validator *customer.Validator
	pinHash   []byte
	onScan    func(domain.Product, error)

	cart     *cart.Cart
	coupons  *coupon.Selector
	machine  *checkout.Machine
	scanner  *scanner.Session
	scanCtx  context.Context
	customer domain.CustomerDraft
	method   domain.PaymentMethod
}

func New(deps Deps, cfg Config) (*Controller, error) {
	if err := deps.Auth.RequireBilling(); err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if deps.Store == nil {
		deps.Store = memory.New()
	}
	if cfg.LookupCacheTTL <= 0 {
		cfg.LookupCacheTTL = 20 * time.Second
	}

	c := &Controller{
		catalog:   newCachedCatalog(deps.Backend, deps.Cache, cfg.LookupCacheTTL, logger.WithField("module", "billing")),
		store:     deps.Store,
		auth:      deps.Auth,
		cfg:       cfg,
		log:       logger.WithField("module", "billing"),
		validator: customer.NewValidator(cfg.PhoneRegion),
		onScan:    deps.OnScan,
		cart:      cart.New(),
		coupons:   coupon.NewSelector(deps.Backend, deps.Cache, cfg.LookupCacheTTL, logger),
		method:    domain.PaymentCash,
		scanCtx:   context.Background(),
	}

	if pin := strings.TrimSpace(cfg.ManagerPIN); pin != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash manager PIN: %w", err)
		}
		c.pinHash = hash
	}

	c.machine = checkout.New(deps.Backend, deps.Widget, deps.Store, checkout.Config{
		StoreID:             cfg.StoreID,
		TerminalID:          cfg.TerminalID,
		HostedCheckoutKeyID: cfg.HostedCheckoutKeyID,
		ShopName:            cfg.ShopName,
		PhoneRegion:         cfg.PhoneRegion,
		AutoSendEmail:       cfg.AutoSendEmail,
	}, logger)

	camera := deps.Camera
	if camera == nil {
		camera = scanner.ManualCamera{}
	}
	c.scanner = scanner.New(camera, c.catalog, c.addScanned, c.reportScan, logger)
	return c, nil
}

func (c *Controller) authorize() error {
	if err := c.auth.Valid(time.Now()); err != nil {
		return err
	}
	return c.auth.RequireBilling()
}

// Search returns products matching query. A blank query returns nothing
// without a request.
func (c *Controller) Search(ctx context.Context, query string) ([]domain.Product, error) {
	if err := c.authorize(); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	return c.catalog.SearchProducts(ctx, query)
}

func (c *Controller) AddProduct(ctx context.Context, p domain.Product) error {
	if err := c.authorize(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cart.AddItem(p)
	c.refreshCouponsLocked(ctx)
	return nil
}

// AddByBarcode looks a typed barcode up and adds the product.
func (c *Controller) AddByBarcode(ctx context.Context, code string) (domain.Product, error) {
	if err := c.authorize(); err != nil {
		return domain.Product{}, err
	}
	code = scanner.Normalize(code)
	if code == "" {
		return domain.Product{}, scanner.ErrEmptyPayload
	}
	product, err := c.catalog.ProductByBarcode(ctx, code)
	if err != nil {
		return domain.Product{}, fmt.Errorf("lookup barcode %s: %w", code, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cart.AddItem(product)
	c.refreshCouponsLocked(ctx)
	return product, nil
}

func (c *Controller) SetQuantity(ctx context.Context, index int, qty int) error {
	return c.mutateCart(ctx, func() error { return c.cart.SetQuantity(index, qty) })
}

func (c *Controller) Remove(ctx context.Context, index int) error {
	return c.mutateCart(ctx, func() error { return c.cart.RemoveItem(index) })
}

func (c *Controller) SetLineDiscount(ctx context.Context, index int, amount decimal.Decimal) error {
	return c.mutateCart(ctx, func() error { return c.cart.SetLineDiscount(index, amount) })
}

func (c *Controller) mutateCart(ctx context.Context, fn func() error) error {
	if err := c.authorize(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := fn(); err != nil {
		return err
	}
	c.refreshCouponsLocked(ctx)
	return nil
}

func (c *Controller) refreshCouponsLocked(ctx context.Context) {
	c.coupons.Refresh(ctx, c.cart.Subtotal(), c.cart.Empty())
}

func (c *Controller) Lines() []cart.Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cart.Lines()
}

func (c *Controller) Totals() cart.Totals {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cart.Totals(c.coupons.Discount())
}

func (c *Controller) Coupons() []domain.Coupon {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.coupons.Coupons()
}

func (c *Controller) SelectedCoupon() (domain.Coupon, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.coupons.Selected()
}

func (c *Controller) SelectCoupon(id int64) error {
	if err := c.authorize(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.coupons.Select(id)
}

func (c *Controller) ClearCoupon() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.coupons.Clear()
}

// CodeEntryLocked reports whether a selected coupon disables manual codes.
func (c *Controller) CodeEntryLocked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.coupons.Locked()
}

func (c *Controller) ApplyCode(ctx context.Context, code string) error {
	if err := c.authorize(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.coupons.ApplyCode(ctx, code, c.cart.Subtotal())
}

// SetCustomer validates and stores the customer fields. A rejected draft
// leaves the previous one in place.
func (c *Controller) SetCustomer(draft domain.CustomerDraft) error {
	normalized, err := c.validator.Normalize(draft)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.customer = normalized
	return nil
}

func (c *Controller) Customer() domain.CustomerDraft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.customer
}

func (c *Controller) SetPaymentMethod(raw string) error {
	method, err := domain.ParsePaymentMethod(raw)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.method = method
	return nil
}

func (c *Controller) PaymentMethod() domain.PaymentMethod {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.method
}

func (c *Controller) CheckoutState() checkout.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.State()
}

// AttemptID is the current checkout attempt, the key hosted callbacks
// must carry.
func (c *Controller) AttemptID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.AttemptID()
}

// CurrentInvoice is the invoice of the sale in progress or just finished.
func (c *Controller) CurrentInvoice() (domain.Invoice, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.Invoice()
}

// Checkout submits the current sale.
func (c *Controller) Checkout(ctx context.Context) (checkout.Outcome, error) {
	if err := c.authorize(); err != nil {
		return checkout.Outcome{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	out, err := c.machine.Submit(ctx, checkout.Sale{
		Lines:         c.cart.Lines(),
		OrderDiscount: c.coupons.Discount(),
		Customer:      c.customer,
		Method:        c.method,
		Actor:         c.auth.Actor(),
	})
	c.afterOutcomeLocked(out)
	return out, err
}

// HostedSucceeded delivers the widget's success callback for attemptID.
func (c *Controller) HostedSucceeded(ctx context.Context, attemptID string, result domain.HostedPaymentResult) (checkout.Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if attemptID != c.machine.AttemptID() {
		return checkout.Outcome{}, ErrStaleAttempt
	}
	out, err := c.machine.HostedSucceeded(ctx, result)
	c.afterOutcomeLocked(out)
	return out, err
}

func (c *Controller) HostedDismissed(ctx context.Context, attemptID string) (checkout.Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if attemptID != c.machine.AttemptID() {
		return checkout.Outcome{}, ErrStaleAttempt
	}
	return c.machine.HostedDismissed(ctx)
}

func (c *Controller) RetryVerification(ctx context.Context) (checkout.Outcome, error) {
	if err := c.authorize(); err != nil {
		return checkout.Outcome{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out, err := c.machine.RetryVerification(ctx)
	c.afterOutcomeLocked(out)
	return out, err
}

func (c *Controller) RetryHosted(ctx context.Context) (checkout.Outcome, error) {
	if err := c.authorize(); err != nil {
		return checkout.Outcome{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.RetryHosted(ctx)
}

// AbandonSale drops an unfinished sale after a manager PIN check. The
// pending invoice stays on the backend.
func (c *Controller) AbandonSale(ctx context.Context, pin string) (checkout.Outcome, error) {
	if err := c.authorize(); err != nil {
		return checkout.Outcome{}, err
	}
	if len(c.pinHash) == 0 {
		return checkout.Outcome{}, ErrOverrideUnavailable
	}
	input := strings.TrimSpace(pin)
	if input == "" || bcrypt.CompareHashAndPassword(c.pinHash, []byte(input)) != nil {
		return checkout.Outcome{}, ErrInvalidManagerPIN
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	out, err := c.machine.Abandon(ctx, "abandoned by "+c.auth.Actor().Username+" with manager override")
	if err != nil {
		return out, err
	}
	c.afterOutcomeLocked(out)
	return out, nil
}

// UnfinishedAttempts lists this terminal's attempts that still need a
// decision or reconciliation.
func (c *Controller) UnfinishedAttempts(ctx context.Context) ([]domain.CheckoutAttempt, error) {
	if err := c.authorize(); err != nil {
		return nil, err
	}
	return c.store.ListUnfinishedAttempts(ctx, c.cfg.StoreID, c.cfg.TerminalID, 50)
}

func (c *Controller) afterOutcomeLocked(out checkout.Outcome) {
	if !out.ResetCart {
		return
	}
	c.resetFormLocked()
}

func (c *Controller) resetFormLocked() {
	c.cart.Reset()
	c.coupons.Reset()
	c.customer = domain.CustomerDraft{}
	c.method = domain.PaymentCash
}

// HoldCart parks the current sale on this terminal and clears the screen.
func (c *Controller) HoldCart(ctx context.Context, note string) (domain.HeldCart, error) {
	if err := c.authorize(); err != nil {
		return domain.HeldCart{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cart.Empty() {
		return domain.HeldCart{}, checkout.ErrEmptyCart
	}
	if c.machine.Unfinished() {
		return domain.HeldCart{}, checkout.ErrUnfinishedSale
	}

	saved, err := c.store.CreateHeldCart(ctx, domain.HeldCart{
		StoreID:       c.cfg.StoreID,
		TerminalID:    c.cfg.TerminalID,
		Cashier:       c.auth.Actor().Username,
		Note:          strings.TrimSpace(note),
		Lines:         cart.ToHeld(c.cart.Lines()),
		Customer:      c.customer,
		PaymentMethod: c.method,
		HeldAt:        time.Now().UTC(),
	})
	if err != nil {
		return domain.HeldCart{}, fmt.Errorf("hold cart: %w", err)
	}
	c.audit(ctx, "cart_hold", saved.ID, fmt.Sprintf("items=%d", len(saved.Lines)))
	c.resetFormLocked()
	return *saved, nil
}

func (c *Controller) HeldCarts(ctx context.Context) ([]domain.HeldCart, error) {
	if err := c.authorize(); err != nil {
		return nil, err
	}
	return c.store.ListHeldCarts(ctx, c.cfg.StoreID, c.cfg.TerminalID, 200)
}

// ResumeHeld restores a parked sale into an empty cart. Coupons are
// re-read for the restored subtotal; the earlier discount is not kept.
func (c *Controller) ResumeHeld(ctx context.Context, holdID string) (domain.HeldCart, error) {
	if err := c.authorize(); err != nil {
		return domain.HeldCart{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.cart.Empty() {
		return domain.HeldCart{}, ErrCartNotEmpty
	}
	if c.machine.Unfinished() {
		return domain.HeldCart{}, checkout.ErrUnfinishedSale
	}
	held, err := c.store.PopHeldCart(ctx, strings.TrimSpace(holdID))
	if err != nil {
		return domain.HeldCart{}, err
	}

	c.cart.Restore(cart.FromHeld(held.Lines))
	c.customer = held.Customer
	c.method = held.PaymentMethod
	if _, err := domain.ParsePaymentMethod(string(c.method)); err != nil {
		c.method = domain.PaymentCash
	}
	c.coupons.Reset()
	c.refreshCouponsLocked(ctx)
	c.audit(ctx, "cart_resume", held.ID, fmt.Sprintf("items=%d", len(held.Lines)))
	return *held, nil
}

func (c *Controller) DiscardHeld(ctx context.Context, holdID string) error {
	if err := c.authorize(); err != nil {
		return err
	}
	holdID = strings.TrimSpace(holdID)
	if err := c.store.DeleteHeldCart(ctx, holdID); err != nil {
		return err
	}
	c.audit(ctx, "cart_discard", holdID, "discarded")
	return nil
}

// OpenScanner acquires the scanner for this screen.
func (c *Controller) OpenScanner(ctx context.Context) error {
	if err := c.authorize(); err != nil {
		return err
	}
	c.mu.Lock()
	c.scanCtx = ctx
	c.mu.Unlock()
	return c.scanner.Open(ctx)
}

func (c *Controller) CloseScanner() {
	c.scanner.Close()
}

func (c *Controller) ScannerState() scanner.State {
	return c.scanner.State()
}

// ScanCode feeds a typed or pasted code through the open scan session. It
// runs outside the controller lock so a decode already resolving makes
// this one drop.
func (c *Controller) ScanCode(ctx context.Context, payload string) (domain.Product, error) {
	if err := c.authorize(); err != nil {
		return domain.Product{}, err
	}
	return c.scanner.Decode(ctx, payload)
}

// Teardown releases everything the screen acquired.
func (c *Controller) Teardown() {
	c.scanner.Close()
}

func (c *Controller) addScanned(p domain.Product) {
	c.mu.Lock()
	c.cart.AddItem(p)
	c.refreshCouponsLocked(c.scanCtx)
	c.mu.Unlock()
	if c.onScan != nil {
		c.onScan(p, nil)
	}
}

func (c *Controller) reportScan(err error) {
	c.log.WithError(err).Info("scan not added")
	if c.onScan != nil {
		c.onScan(domain.Product{}, err)
	}
}

func (c *Controller) audit(ctx context.Context, action string, entityID string, detail string) {
	actor := c.auth.Actor()
	if err := c.store.CreateAuditLog(ctx, domain.AuditLog{
		StoreID:       c.cfg.StoreID,
		TerminalID:    c.cfg.TerminalID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    "held_cart",
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		c.log.WithError(err).WithField("action", action).Warn("audit write failed")
	}
}
