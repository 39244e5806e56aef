// Package cart models the in-progress sale on a terminal. A Cart is owned by
// one cashier session and is not safe for concurrent use.
package cart

import (
	"fmt"

	"github.com/shopspring/decimal"

	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/money"
)

// Line is the priced snapshot of an item at the moment it was added.
type Line struct {
	ProductID      string
	Name           string
	DepartmentID   string
	UnitPriceCents int64
	Taxable        bool
	TaxRate        decimal.Decimal
	AgeRestriction *int
}

type Item struct {
	Line
	Quantity int
}

func (i Item) SubtotalCents() int64 {
	return i.UnitPriceCents * int64(i.Quantity)
}

func (i Item) TaxCents() int64 {
	if !i.Taxable {
		return 0
	}
	tax, err := money.Tax(i.SubtotalCents(), i.TaxRate)
	if err != nil {
		return 0
	}
	return tax
}

func (i Item) TotalCents() int64 {
	return i.SubtotalCents() + i.TaxCents()
}

type Cart struct {
	items       []Item
	byProduct   map[string]int
	ageVerified bool
	verifiedAge int
}

func New() *Cart {
	return &Cart{byProduct: make(map[string]int)}
}

// Add merges into an existing line for the same product, otherwise appends.
// Manual entries (no product id) always get their own line.
func (c *Cart) Add(line Line, quantity int) error {
	if quantity <= 0 {
		return domain.ErrInvalidQuantity
	}
	if line.UnitPriceCents < 0 {
		return money.ErrNegativeAmount
	}
	if err := money.ValidateRate(line.TaxRate); err != nil {
		return err
	}

	if line.ProductID != "" {
		if idx, ok := c.byProduct[line.ProductID]; ok {
			c.items[idx].Quantity += quantity
			return nil
		}
		c.byProduct[line.ProductID] = len(c.items)
	}
	c.items = append(c.items, Item{Line: line, Quantity: quantity})
	return nil
}

func (c *Cart) Remove(index int) error {
	if index < 0 || index >= len(c.items) {
		return fmt.Errorf("%w: cart index %d out of range", domain.ErrValidation, index)
	}
	c.items = append(c.items[:index], c.items[index+1:]...)
	c.reindex()
	return nil
}

// UpdateQuantity sets a line's quantity; zero or less removes the line.
func (c *Cart) UpdateQuantity(index int, quantity int) error {
	if index < 0 || index >= len(c.items) {
		return fmt.Errorf("%w: cart index %d out of range", domain.ErrValidation, index)
	}
	if quantity <= 0 {
		return c.Remove(index)
	}
	c.items[index].Quantity = quantity
	return nil
}

func (c *Cart) Clear() {
	c.items = nil
	c.byProduct = make(map[string]int)
	c.ageVerified = false
	c.verifiedAge = 0
}

// VerifyAge records the cashier's attestation of the customer's age.
func (c *Cart) VerifyAge(age int) {
	c.ageVerified = true
	c.verifiedAge = age
}

func (c *Cart) Items() []Item {
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Cart) Len() int {
	return len(c.items)
}

func (c *Cart) SubtotalCents() int64 {
	var total int64
	for _, item := range c.items {
		total += item.SubtotalCents()
	}
	return total
}

func (c *Cart) TaxCents() int64 {
	var total int64
	for _, item := range c.items {
		total += item.TaxCents()
	}
	return total
}

func (c *Cart) TotalCents() int64 {
	return c.SubtotalCents() + c.TaxCents()
}

// ItemCount is the number of units, not lines.
func (c *Cart) ItemCount() int {
	count := 0
	for _, item := range c.items {
		count += item.Quantity
	}
	return count
}

func (c *Cart) RequiresAgeVerification() bool {
	_, ok := c.HighestAgeRequirement()
	return ok
}

func (c *Cart) HighestAgeRequirement() (int, bool) {
	highest, found := 0, false
	for _, item := range c.items {
		if item.AgeRestriction == nil || *item.AgeRestriction <= 0 {
			continue
		}
		if !found || *item.AgeRestriction > highest {
			highest = *item.AgeRestriction
			found = true
		}
	}
	return highest, found
}

func (c *Cart) AgeVerified() bool {
	return c.ageVerified
}

func (c *Cart) VerifiedAge() int {
	return c.verifiedAge
}

// AgeGateSatisfied is true when no item is age restricted, or the customer's
// age was verified and meets the highest requirement in the cart.
func (c *Cart) AgeGateSatisfied() bool {
	required, ok := c.HighestAgeRequirement()
	if !ok {
		return true
	}
	return c.ageVerified && c.verifiedAge >= required
}

func (c *Cart) reindex() {
	c.byProduct = make(map[string]int, len(c.items))
	for idx, item := range c.items {
		if item.ProductID != "" {
			c.byProduct[item.ProductID] = idx
		}
	}
}
