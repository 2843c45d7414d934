package cart

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"kasirinaja/terminal/internal/domain"
)

var (
	ErrLineNotFound     = errors.New("cart line not found")
	ErrNegativeDiscount = errors.New("line discount must not be negative")
)

var hundred = decimal.NewFromInt(100)

type Line struct {
	Product        domain.Product
	Quantity       int
	UnitPrice      decimal.Decimal
	LineDiscount   decimal.Decimal
	TaxRatePercent decimal.Decimal
}

// Net is unit price times quantity less the line discount.
func (l Line) Net() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))).Sub(l.LineDiscount)
}

func (l Line) Tax() decimal.Decimal {
	return l.Net().Mul(l.TaxRatePercent).Div(hundred)
}

type Totals struct {
	Subtotal      decimal.Decimal
	Tax           decimal.Decimal
	OrderDiscount decimal.Decimal
	Total         decimal.Decimal
}

// ComputeTotals derives the cart totals. Nothing is rounded here.
func ComputeTotals(lines []Line, orderDiscount decimal.Decimal) Totals {
	subtotal := decimal.Zero
	tax := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.Net())
		tax = tax.Add(l.Tax())
	}
	return Totals{
		Subtotal:      subtotal,
		Tax:           tax,
		OrderDiscount: orderDiscount,
		Total:         subtotal.Add(tax).Sub(orderDiscount),
	}
}

// Cart is the in-progress sale. Insertion order is display order. It is not
// safe for concurrent use; the billing controller serialises access.
type Cart struct {
	lines []Line
}

func New() *Cart {
	return &Cart{}
}

// AddItem bumps the quantity of an existing line for the product, or appends
// a new line at the product's selling price.
func (c *Cart) AddItem(p domain.Product) {
	for i := range c.lines {
		if c.lines[i].Product.ID == p.ID {
			c.lines[i].Quantity++
			return
		}
	}
	c.lines = append(c.lines, Line{
		Product:        p,
		Quantity:       1,
		UnitPrice:      p.SellingPrice,
		LineDiscount:   decimal.Zero,
		TaxRatePercent: p.TaxRate,
	})
}

// SetQuantity replaces the quantity of line index. qty <= 0 removes it.
func (c *Cart) SetQuantity(index int, qty int) error {
	if err := c.checkIndex(index); err != nil {
		return err
	}
	if qty <= 0 {
		c.remove(index)
		return nil
	}
	c.lines[index].Quantity = qty
	return nil
}

func (c *Cart) RemoveItem(index int) error {
	if err := c.checkIndex(index); err != nil {
		return err
	}
	c.remove(index)
	return nil
}

func (c *Cart) SetLineDiscount(index int, amount decimal.Decimal) error {
	if err := c.checkIndex(index); err != nil {
		return err
	}
	if amount.IsNegative() {
		return ErrNegativeDiscount
	}
	c.lines[index].LineDiscount = amount
	return nil
}

// Lines returns a copy of the current lines.
func (c *Cart) Lines() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Cart) Len() int {
	return len(c.lines)
}

func (c *Cart) Empty() bool {
	return len(c.lines) == 0
}

func (c *Cart) Reset() {
	c.lines = nil
}

// Restore replaces the cart contents, dropping lines with a non-positive
// quantity.
func (c *Cart) Restore(lines []Line) {
	c.lines = make([]Line, 0, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 {
			continue
		}
		c.lines = append(c.lines, l)
	}
}

func (c *Cart) Subtotal() decimal.Decimal {
	return ComputeTotals(c.lines, decimal.Zero).Subtotal
}

func (c *Cart) Totals(orderDiscount decimal.Decimal) Totals {
	return ComputeTotals(c.lines, orderDiscount)
}

func (c *Cart) checkIndex(index int) error {
	if index < 0 || index >= len(c.lines) {
		return fmt.Errorf("%w: index %d of %d", ErrLineNotFound, index, len(c.lines))
	}
	return nil
}

func (c *Cart) remove(index int) {
	c.lines = append(c.lines[:index], c.lines[index+1:]...)
}

// ToHeld converts lines for the local journal.
func ToHeld(lines []Line) []domain.HeldLine {
	out := make([]domain.HeldLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, domain.HeldLine{
			Product:        l.Product,
			Quantity:       l.Quantity,
			UnitPrice:      l.UnitPrice,
			LineDiscount:   l.LineDiscount,
			TaxRatePercent: l.TaxRatePercent,
		})
	}
	return out
}

func FromHeld(lines []domain.HeldLine) []Line {
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		out = append(out, Line{
			Product:        l.Product,
			Quantity:       l.Quantity,
			UnitPrice:      l.UnitPrice,
			LineDiscount:   l.LineDiscount,
			TaxRatePercent: l.TaxRatePercent,
		})
	}
	return out
}
