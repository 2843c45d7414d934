package receipt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"kasirinaja/terminal/internal/domain"
)

const width = 32

var (
	escInit    = []byte{0x1b, 0x40}
	escCut     = []byte{0x1d, 0x56, 0x41, 0x10}
	escDrawer  = []byte{0x1b, 0x70, 0x00, 0x19, 0xfa}
	ErrNoItems = errors.New("invoice has no items to print")
)

type Options struct {
	ShopName   string
	TerminalID string
	// OpenDrawer adds the drawer-kick pulse before the cut.
	OpenDrawer bool
}

type Receipt struct {
	InvoiceNumber string
	ESCPOS        []byte
	Preview       string
	FileName      string
}

// Build renders a server invoice for a thermal printer. Amounts are printed
// as the backend sent them.
func Build(inv domain.Invoice, opts Options) (Receipt, error) {
	if len(inv.Items) == 0 {
		return Receipt{}, ErrNoItems
	}
	shop := strings.TrimSpace(opts.ShopName)
	if shop == "" {
		shop = "POS Billing System"
	}

	rule := strings.Repeat("=", width)
	thin := strings.Repeat("-", width)
	lines := []string{shop, rule, "Invoice: " + inv.InvoiceNumber}
	if opts.TerminalID != "" {
		lines = append(lines, "Terminal: "+opts.TerminalID)
	}
	created := time.Now()
	if inv.CreatedAt != nil {
		created = *inv.CreatedAt
	}
	lines = append(lines, "Date: "+created.Format("2006-01-02 15:04:05"))
	if name := strings.TrimSpace(inv.CustomerName); name != "" {
		lines = append(lines, "Customer: "+name)
	}
	lines = append(lines, thin)

	for _, item := range inv.Items {
		name := item.ProductName
		if name == "" {
			name = fmt.Sprintf("Product #%d", item.Product)
		}
		lines = append(lines, fmt.Sprintf("%s x%d", name, item.Quantity))
		amount := item.Total
		if amount.IsZero() {
			amount = item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))).Sub(item.Discount)
		}
		lines = append(lines, row("", amount))
	}

	lines = append(lines,
		thin,
		row("Subtotal", inv.Subtotal),
		row("Discount", inv.DiscountAmount),
		row("Tax", inv.TaxAmount),
		row("Total", inv.TotalAmount),
		row("Paid", inv.PaidAmount),
		row("Balance", inv.BalanceAmount),
		"Payment: "+strings.ToUpper(inv.PaymentMethod)+" ("+inv.Status+")",
		rule,
		"Thank you",
		"",
	)

	escpos := append([]byte{}, escInit...)
	for _, line := range lines {
		escpos = append(escpos, []byte(line)...)
		escpos = append(escpos, '\n')
	}
	if opts.OpenDrawer {
		escpos = append(escpos, escDrawer...)
	}
	escpos = append(escpos, escCut...)

	return Receipt{
		InvoiceNumber: inv.InvoiceNumber,
		ESCPOS:        escpos,
		Preview:       strings.Join(lines, "\n"),
		FileName:      fmt.Sprintf("receipt-%s.bin", inv.InvoiceNumber),
	}, nil
}

func row(label string, amount decimal.Decimal) string {
	value := amount.StringFixed(2)
	pad := width - len(label) - len(value)
	if pad < 1 {
		pad = 1
	}
	return label + strings.Repeat(" ", pad) + value
}
