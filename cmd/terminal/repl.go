package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"kasirinaja/terminal/internal/billing"
	"kasirinaja/terminal/internal/callback"
	"kasirinaja/terminal/internal/checkout"
	"kasirinaja/terminal/internal/config"
	"kasirinaja/terminal/internal/domain"
	"kasirinaja/terminal/internal/scanner"
)

const shellHelp = `commands:
  search <text>             find products
  add <n>                   add result n of the last search
  barcode <code>            add a product by barcode
  scan [code|off]           open the scanner, feed a code, or close it
  qty <line> <n>            set a line quantity
  rm <line>                 remove a line
  disc <line> <amount>      set a line discount
  coupons                   list eligible coupons
  coupon <id|none>          select or clear a coupon
  code <CODE>               apply a coupon code
  customer name|phone|email <value>
  pay cash|card|upi|credit|online
  checkout                  submit the sale
  paid <payment_id> [order_id] [signature]
  dismiss                   the customer closed the payment page
  retry                     retry verification or reopen payment
  abandon <manager pin>     drop an unfinished sale
  hold [note] | held | resume <id> | discard <id>
  attempts                  unfinished checkout attempts
  cart | totals | quit`

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "start the interactive billing screen",
		Action: withRuntime(func(c *cli.Context, rt *runtime) error {
			return runShell(c.Context, rt, os.Stdin, c.App.Writer)
		}),
	}
}

func runShell(ctx context.Context, rt *runtime, in io.Reader, out io.Writer) error {
	console := &syncWriter{w: out}
	widget := &consoleWidget{out: console, baseURL: rt.cfg.CallbackBaseURL()}

	var camera scanner.Camera
	if rt.cfg.ScannerDevice != "" {
		dev, err := os.Open(rt.cfg.ScannerDevice)
		if err != nil {
			return fmt.Errorf("open scanner device: %w", err)
		}
		defer dev.Close()
		camera = scanner.NewLineCamera(dev, rt.log)
	}

	ctrl, err := billing.New(billing.Deps{
		Backend: rt.client,
		Widget:  widget,
		Camera:  camera,
		Store:   rt.repo,
		Cache:   rt.cache,
		Auth:    rt.auth,
		Logger:  rt.log,
		OnScan: func(p domain.Product, err error) {
			if err != nil {
				fmt.Fprintf(console, "scan: %v\n", err)
				return
			}
			fmt.Fprintf(console, "scanned %s\n", p.Name)
		},
	}, billing.Config{
		StoreID:             rt.cfg.StoreID,
		TerminalID:          rt.cfg.TerminalID,
		HostedCheckoutKeyID: rt.cfg.HostedCheckoutKeyID,
		PhoneRegion:         rt.cfg.PhoneRegion,
		ShopName:            rt.cfg.ShopName,
		ManagerPIN:          rt.cfg.ManagerPIN,
		LookupCacheTTL:      rt.cfg.LookupCacheTTL,
		AutoSendEmail:       rt.cfg.AutoSendEmail,
	})
	if err != nil {
		return err
	}
	defer ctrl.Teardown()

	serverCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()
	cb := callback.New(ctrl, rt.log, func(o checkout.Outcome, err error) {
		if err != nil {
			fmt.Fprintf(console, "payment callback: %v\n", err)
			return
		}
		printOutcome(console, o)
	})
	go func() {
		if err := cb.ListenAndServe(serverCtx, rt.cfg.CallbackAddr); err != nil {
			config.LogError(rt.log, "callback", "ListenAndServe", rt.cfg.CallbackAddr, err)
		}
	}()

	if unfinished, err := ctrl.UnfinishedAttempts(ctx); err == nil && len(unfinished) > 0 {
		fmt.Fprintf(console, "%d checkout attempt(s) need reconciliation, see `attempts`\n", len(unfinished))
	}

	sh := &shell{ctrl: ctrl, out: console}
	fmt.Fprintf(console, "%s ready (%s/%s). type help for commands\n", rt.cfg.ShopName, rt.cfg.StoreID, rt.cfg.TerminalID)

	lines := make(chan string)
	go func() {
		defer close(lines)
		reader := bufio.NewScanner(in)
		for reader.Scan() {
			lines <- reader.Text()
		}
	}()

	for {
		fmt.Fprint(console, "> ")
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := sh.dispatch(ctx, line)
			if err != nil {
				fmt.Fprintf(console, "error: %s\n", errorText(err))
			}
			if quit {
				return nil
			}
		}
	}
}

// shell maps typed commands onto the billing controller.
type shell struct {
	ctrl    *billing.Controller
	out     io.Writer
	results []domain.Product
}

var errUsage = errors.New("bad arguments, type help")

func (s *shell) dispatch(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "quit", "exit":
		return true, nil
	case "help", "?":
		fmt.Fprintln(s.out, shellHelp)
	case "search":
		products, err := s.ctrl.Search(ctx, strings.Join(args, " "))
		if err != nil {
			return false, err
		}
		s.results = products
		for i, p := range products {
			fmt.Fprintf(s.out, "%2d. %-24s %10s  %s\n", i+1, p.Name, p.SellingPrice.StringFixed(2), p.SKU)
		}
		if len(products) == 0 {
			fmt.Fprintln(s.out, "no products found")
		}
	case "add":
		n, err := intArg(args, 0)
		if err != nil || n < 1 || n > len(s.results) {
			return false, errUsage
		}
		if err := s.ctrl.AddProduct(ctx, s.results[n-1]); err != nil {
			return false, err
		}
		s.printCart()
	case "barcode":
		if len(args) != 1 {
			return false, errUsage
		}
		p, err := s.ctrl.AddByBarcode(ctx, args[0])
		if err != nil {
			return false, err
		}
		fmt.Fprintf(s.out, "added %s\n", p.Name)
	case "scan":
		return false, s.scan(ctx, args)
	case "qty":
		line, err1 := intArg(args, 0)
		qty, err2 := intArg(args, 1)
		if err1 != nil || err2 != nil {
			return false, errUsage
		}
		if err := s.ctrl.SetQuantity(ctx, line-1, qty); err != nil {
			return false, err
		}
		s.printCart()
	case "rm":
		line, err := intArg(args, 0)
		if err != nil {
			return false, errUsage
		}
		if err := s.ctrl.Remove(ctx, line-1); err != nil {
			return false, err
		}
		s.printCart()
	case "disc":
		line, err := intArg(args, 0)
		if err != nil || len(args) != 2 {
			return false, errUsage
		}
		amount, err := decimal.NewFromString(args[1])
		if err != nil {
			return false, errUsage
		}
		if err := s.ctrl.SetLineDiscount(ctx, line-1, amount); err != nil {
			return false, err
		}
		s.printCart()
	case "coupons":
		s.printCoupons()
	case "coupon":
		if len(args) != 1 {
			return false, errUsage
		}
		if args[0] == "none" {
			s.ctrl.ClearCoupon()
		} else {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return false, errUsage
			}
			if err := s.ctrl.SelectCoupon(id); err != nil {
				return false, err
			}
		}
		s.printTotals()
	case "code":
		if len(args) != 1 {
			return false, errUsage
		}
		if err := s.ctrl.ApplyCode(ctx, args[0]); err != nil {
			return false, err
		}
		s.printTotals()
	case "customer":
		if len(args) < 1 {
			return false, errUsage
		}
		draft := s.ctrl.Customer()
		value := strings.Join(args[1:], " ")
		switch strings.ToLower(args[0]) {
		case "name":
			draft.Name = value
		case "phone":
			draft.Phone = value
		case "email":
			draft.Email = value
		case "clear":
			draft = domain.CustomerDraft{}
		default:
			return false, errUsage
		}
		if err := s.ctrl.SetCustomer(draft); err != nil {
			return false, err
		}
		d := s.ctrl.Customer()
		fmt.Fprintf(s.out, "customer: %q %q %q\n", d.Name, d.Phone, d.Email)
	case "pay":
		if len(args) != 1 {
			return false, errUsage
		}
		if err := s.ctrl.SetPaymentMethod(args[0]); err != nil {
			return false, err
		}
		fmt.Fprintf(s.out, "payment method: %s\n", s.ctrl.PaymentMethod())
	case "checkout":
		out, err := s.ctrl.Checkout(ctx)
		printOutcome(s.out, out)
		return false, err
	case "paid":
		if len(args) < 1 {
			return false, errUsage
		}
		result := domain.HostedPaymentResult{PaymentID: args[0]}
		if len(args) > 1 {
			result.OrderID = args[1]
		}
		if len(args) > 2 {
			result.Signature = args[2]
		}
		out, err := s.ctrl.HostedSucceeded(ctx, s.ctrl.AttemptID(), result)
		printOutcome(s.out, out)
		return false, err
	case "dismiss":
		out, err := s.ctrl.HostedDismissed(ctx, s.ctrl.AttemptID())
		printOutcome(s.out, out)
		return false, err
	case "retry":
		var (
			out checkout.Outcome
			err error
		)
		if s.ctrl.CheckoutState() == checkout.VerificationFailed {
			out, err = s.ctrl.RetryVerification(ctx)
		} else {
			out, err = s.ctrl.RetryHosted(ctx)
		}
		printOutcome(s.out, out)
		return false, err
	case "abandon":
		if len(args) != 1 {
			return false, errUsage
		}
		out, err := s.ctrl.AbandonSale(ctx, args[0])
		if err != nil {
			return false, err
		}
		printOutcome(s.out, out)
	case "hold":
		held, err := s.ctrl.HoldCart(ctx, strings.Join(args, " "))
		if err != nil {
			return false, err
		}
		fmt.Fprintf(s.out, "held %s (%d items)\n", held.ID, len(held.Lines))
	case "held":
		held, err := s.ctrl.HeldCarts(ctx)
		if err != nil {
			return false, err
		}
		printHeld(s.out, held)
	case "resume":
		if len(args) != 1 {
			return false, errUsage
		}
		if _, err := s.ctrl.ResumeHeld(ctx, args[0]); err != nil {
			return false, err
		}
		s.printCart()
	case "discard":
		if len(args) != 1 {
			return false, errUsage
		}
		if err := s.ctrl.DiscardHeld(ctx, args[0]); err != nil {
			return false, err
		}
		fmt.Fprintln(s.out, "discarded")
	case "attempts":
		attempts, err := s.ctrl.UnfinishedAttempts(ctx)
		if err != nil {
			return false, err
		}
		for _, a := range attempts {
			fmt.Fprintf(s.out, "%s  %-16s %10s  %s %s\n", a.ID, a.State, a.TotalAmount.StringFixed(2), a.InvoiceNumber, a.LastError)
		}
		if len(attempts) == 0 {
			fmt.Fprintln(s.out, "no unfinished attempts")
		}
	case "cart":
		s.printCart()
	case "totals":
		s.printTotals()
	default:
		return false, fmt.Errorf("unknown command %q, type help", cmd)
	}
	return false, nil
}

func (s *shell) scan(ctx context.Context, args []string) error {
	if len(args) == 1 && args[0] == "off" {
		s.ctrl.CloseScanner()
		fmt.Fprintln(s.out, "scanner closed")
		return nil
	}
	if s.ctrl.ScannerState() == scanner.Closed {
		if err := s.ctrl.OpenScanner(ctx); err != nil {
			return err
		}
		fmt.Fprintln(s.out, "scanner open")
	}
	if len(args) == 0 {
		return nil
	}
	p, err := s.ctrl.ScanCode(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "added %s\n", p.Name)
	return nil
}

func (s *shell) printCart() {
	lines := s.ctrl.Lines()
	if len(lines) == 0 {
		fmt.Fprintln(s.out, "cart is empty")
		return
	}
	for i, l := range lines {
		fmt.Fprintf(s.out, "%2d. %-24s %3d x %9s", i+1, l.Product.Name, l.Quantity, l.UnitPrice.StringFixed(2))
		if l.LineDiscount.IsPositive() {
			fmt.Fprintf(s.out, "  -%s", l.LineDiscount.StringFixed(2))
		}
		fmt.Fprintf(s.out, "  = %s\n", l.Net().StringFixed(2))
	}
	s.printTotals()
}

func (s *shell) printTotals() {
	t := s.ctrl.Totals()
	fmt.Fprintf(s.out, "subtotal %s  tax %s  discount %s  total %s\n",
		t.Subtotal.StringFixed(2), t.Tax.StringFixed(2), t.OrderDiscount.StringFixed(2), t.Total.StringFixed(2))
	if cp, ok := s.ctrl.SelectedCoupon(); ok {
		fmt.Fprintf(s.out, "coupon %s\n", cp.Label())
	}
}

func (s *shell) printCoupons() {
	coupons := s.ctrl.Coupons()
	if len(coupons) == 0 {
		fmt.Fprintln(s.out, "no coupons available")
		return
	}
	selected, hasSelected := s.ctrl.SelectedCoupon()
	for _, cp := range coupons {
		mark := " "
		if hasSelected && cp.ID == selected.ID {
			mark = "*"
		}
		fmt.Fprintf(s.out, "%s %d  %s  -%s\n", mark, cp.ID, cp.Label(), cp.CalculatedDiscount.StringFixed(2))
	}
	if s.ctrl.CodeEntryLocked() {
		fmt.Fprintln(s.out, "code entry locked while a coupon is selected")
	}
}

// consoleWidget stands in for the hosted payment page: it prints the order
// and the URLs the page reports back to. Callbacks arrive later through
// the callback listener or the paid/dismiss commands.
type consoleWidget struct {
	out     io.Writer
	baseURL string
}

func (w *consoleWidget) Open(_ context.Context, hc checkout.HostedCheckout) error {
	amount := hc.Order.AmountToPay
	if amount.IsZero() {
		amount = decimal.New(hc.Order.Amount, -2)
	}
	fmt.Fprintf(w.out, "%s\n  order %s  %s %s  key %s\n", hc.Description, hc.Order.OrderID, amount.StringFixed(2), hc.Order.Currency, hc.KeyID)
	if hc.Prefill.Contact != "" || hc.Prefill.Email != "" {
		fmt.Fprintf(w.out, "  customer %s %s %s\n", hc.Prefill.Name, hc.Prefill.Contact, hc.Prefill.Email)
	}
	fmt.Fprintf(w.out, "  success: POST %s/hosted/%s/success\n", w.baseURL, hc.AttemptID)
	fmt.Fprintf(w.out, "  dismiss: POST %s/hosted/%s/dismiss\n", w.baseURL, hc.AttemptID)
	return nil
}

// syncWriter serialises console output from the shell, the scanner and the
// callback listener.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func printOutcome(w io.Writer, out checkout.Outcome) {
	if out.State == "" {
		return
	}
	if out.Invoice != nil {
		inv := out.Invoice
		fmt.Fprintf(w, "%s: invoice %s  total %s  paid %s  %s\n", out.State, inv.InvoiceNumber,
			inv.TotalAmount.StringFixed(2), inv.PaidAmount.StringFixed(2), inv.Status)
	} else {
		fmt.Fprintf(w, "%s\n", out.State)
	}
	switch {
	case out.EmailSent:
		fmt.Fprintf(w, "invoice emailed to %s\n", out.EmailRecipient)
	case out.EmailErr != nil:
		fmt.Fprintf(w, "invoice email failed: %v\n", out.EmailErr)
	case out.EmailRecipient != "":
		fmt.Fprintf(w, "invoice sent to %s\n", out.EmailRecipient)
	}
}

func printInvoice(w io.Writer, inv domain.Invoice) {
	fmt.Fprintf(w, "invoice %s (#%d)  %s  %s\n", inv.InvoiceNumber, inv.ID, strings.ToUpper(inv.PaymentMethod), inv.Status)
	if inv.CustomerName != "" {
		fmt.Fprintf(w, "customer %s %s %s\n", inv.CustomerName, inv.CustomerPhone, inv.CustomerEmail)
	}
	for _, item := range inv.Items {
		name := item.ProductName
		if name == "" {
			name = fmt.Sprintf("product #%d", item.Product)
		}
		fmt.Fprintf(w, "  %-24s %3d x %9s\n", name, item.Quantity, item.UnitPrice.StringFixed(2))
	}
	fmt.Fprintf(w, "subtotal %s  discount %s  tax %s  total %s  paid %s  balance %s\n",
		inv.Subtotal.StringFixed(2), inv.DiscountAmount.StringFixed(2), inv.TaxAmount.StringFixed(2),
		inv.TotalAmount.StringFixed(2), inv.PaidAmount.StringFixed(2), inv.BalanceAmount.StringFixed(2))
}

func printHeld(w io.Writer, held []domain.HeldCart) {
	if len(held) == 0 {
		fmt.Fprintln(w, "no held carts")
		return
	}
	for _, h := range held {
		fmt.Fprintf(w, "%s  %s  %-10s %2d items  %s\n", h.ID, h.HeldAt.Format("15:04"), h.Cashier, len(h.Lines), h.Note)
	}
}

func intArg(args []string, i int) (int, error) {
	if i >= len(args) {
		return 0, errUsage
	}
	return strconv.Atoi(args[i])
}

// errorText prefers the message an operator can act on.
func errorText(err error) string {
	var createErr *checkout.CreateError
	if errors.As(err, &createErr) {
		return createErr.Message()
	}
	return err.Error()
}

func printAttempt(w io.Writer, a domain.CheckoutAttempt) {
	fmt.Fprintf(w, "attempt %s  %s  %s\n", a.ID, a.State, a.PaymentMethod)
	fmt.Fprintf(w, "  key %s  cashier %s  total %s\n", a.IdempotencyKey, a.Cashier, a.TotalAmount.StringFixed(2))
	if a.InvoiceID != 0 {
		fmt.Fprintf(w, "  invoice %s (#%d)\n", a.InvoiceNumber, a.InvoiceID)
	}
	if a.OrderID != "" || a.PaymentID != "" {
		fmt.Fprintf(w, "  order %s  payment %s\n", a.OrderID, a.PaymentID)
	}
	if a.LastError != "" {
		fmt.Fprintf(w, "  last error: %s\n", a.LastError)
	}
	fmt.Fprintf(w, "  created %s  updated %s\n", a.CreatedAt.Format("2006-01-02 15:04:05"), a.UpdatedAt.Format("2006-01-02 15:04:05"))
}
