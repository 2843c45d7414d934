package checkout

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"kasirinaja/terminal/internal/cart"
	"kasirinaja/terminal/internal/domain"
)

const walkInName = "Walk-in Customer"

// Sale is everything the billing screen hands over at checkout.
type Sale struct {
	Lines         []cart.Line
	OrderDiscount decimal.Decimal
	Customer      domain.CustomerDraft
	Method        domain.PaymentMethod
	Actor         domain.Actor
}

// BuildInvoiceRequest turns a sale into the invoice creation body. Amounts
// are rendered with two decimals here and nowhere earlier.
func BuildInvoiceRequest(sale Sale, customerID *int64) domain.InvoiceRequest {
	totals := cart.ComputeTotals(sale.Lines, sale.OrderDiscount)
	paid, status := sale.Method.InitialSettlement(totals.Total)

	name := strings.TrimSpace(sale.Customer.Name)
	if name == "" {
		name = walkInName
	}

	items := make([]domain.InvoiceItemRequest, 0, len(sale.Lines))
	for _, l := range sale.Lines {
		items = append(items, domain.InvoiceItemRequest{
			Product:   l.Product.ID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice.StringFixed(2),
			Discount:  l.LineDiscount.StringFixed(2),
			TaxRate:   l.TaxRatePercent.StringFixed(2),
		})
	}

	return domain.InvoiceRequest{
		Customer:       customerID,
		CustomerName:   name,
		CustomerPhone:  strings.TrimSpace(sale.Customer.Phone),
		CustomerEmail:  strings.TrimSpace(sale.Customer.Email),
		Subtotal:       totals.Subtotal.StringFixed(2),
		DiscountAmount: totals.OrderDiscount.StringFixed(2),
		TaxAmount:      totals.Tax.StringFixed(2),
		TotalAmount:    totals.Total.StringFixed(2),
		PaidAmount:     paid.StringFixed(2),
		PaymentMethod:  sale.Method.WireValue(),
		Status:         status,
		Items:          items,
	}
}

// fingerprint identifies a request body so a manual retry of the same sale
// can be recognised.
func fingerprint(req domain.InvoiceRequest) string {
	payload, err := json.Marshal(req)
	if err != nil {
		return ""
	}
	sum := sha1.Sum(payload)
	return hex.EncodeToString(sum[:])
}
