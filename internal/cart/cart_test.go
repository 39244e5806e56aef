package cart

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/money"
)

var rate8 = decimal.RequireFromString("0.08")

func intPtr(v int) *int { return &v }

func taxable(id string, price int64) Line {
	return Line{ProductID: id, Name: id, DepartmentID: "dept-taxable", UnitPriceCents: price, Taxable: true, TaxRate: rate8}
}

func TestSingleTaxableLineTotals(t *testing.T) {
	c := New()
	require.NoError(t, c.Add(taxable("p1", 500), 2))

	assert.Equal(t, int64(1000), c.SubtotalCents())
	assert.Equal(t, int64(80), c.TaxCents())
	assert.Equal(t, int64(1080), c.TotalCents())
	assert.Equal(t, 2, c.ItemCount())
}

func TestAddMergesSameProduct(t *testing.T) {
	c := New()
	require.NoError(t, c.Add(taxable("p1", 250), 1))
	require.NoError(t, c.Add(taxable("p2", 100), 1))
	require.NoError(t, c.Add(taxable("p1", 250), 3))

	items := c.Items()
	require.Len(t, items, 2)
	assert.Equal(t, 4, items[0].Quantity)
	assert.Equal(t, 5, c.ItemCount())
}

func TestManualEntriesNeverMerge(t *testing.T) {
	c := New()
	manual := Line{Name: "Grocery Item", DepartmentID: "dept-grocery", UnitPriceCents: 199, TaxRate: rate8}
	require.NoError(t, c.Add(manual, 1))
	require.NoError(t, c.Add(manual, 1))
	assert.Equal(t, 2, c.Len())
}

func TestTotalsInvariantAcrossMutations(t *testing.T) {
	c := New()
	require.NoError(t, c.Add(taxable("p1", 333), 3))
	require.NoError(t, c.Add(Line{ProductID: "p2", UnitPriceCents: 1299, TaxRate: rate8}, 2))
	require.NoError(t, c.Add(taxable("p3", 1), 7))

	check := func() {
		var wantTax int64
		for _, item := range c.Items() {
			if item.Taxable {
				tax, err := money.Tax(item.SubtotalCents(), item.TaxRate)
				require.NoError(t, err)
				wantTax += tax
			}
		}
		assert.Equal(t, wantTax, c.TaxCents())
		assert.Equal(t, c.SubtotalCents()+c.TaxCents(), c.TotalCents())
	}

	check()
	require.NoError(t, c.UpdateQuantity(0, 5))
	check()
	require.NoError(t, c.Remove(1))
	check()
	require.NoError(t, c.UpdateQuantity(0, 0))
	check()
	assert.Equal(t, 1, c.Len())
}

func TestRemoveKeepsProductIndexConsistent(t *testing.T) {
	c := New()
	require.NoError(t, c.Add(taxable("p1", 100), 1))
	require.NoError(t, c.Add(taxable("p2", 200), 1))
	require.NoError(t, c.Remove(0))
	require.NoError(t, c.Add(taxable("p2", 200), 2))

	items := c.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Quantity)
}

func TestInvalidOperations(t *testing.T) {
	c := New()
	assert.ErrorIs(t, c.Add(taxable("p1", 100), 0), domain.ErrInvalidQuantity)
	assert.ErrorIs(t, c.Remove(0), domain.ErrValidation)
	assert.ErrorIs(t, c.UpdateQuantity(3, 1), domain.ErrValidation)
	assert.ErrorIs(t, c.Add(Line{ProductID: "x", UnitPriceCents: 1, TaxRate: decimal.NewFromInt(2)}, 1), money.ErrInvalidRate)
}

func TestAgeGate(t *testing.T) {
	c := New()
	require.NoError(t, c.Add(taxable("soda", 150), 1))
	assert.False(t, c.RequiresAgeVerification())
	assert.True(t, c.AgeGateSatisfied())

	beer := taxable("beer", 899)
	beer.AgeRestriction = intPtr(21)
	tobacco := taxable("cigars", 1200)
	tobacco.AgeRestriction = intPtr(18)
	require.NoError(t, c.Add(tobacco, 1))
	require.NoError(t, c.Add(beer, 1))

	highest, ok := c.HighestAgeRequirement()
	require.True(t, ok)
	assert.Equal(t, 21, highest)
	assert.True(t, c.RequiresAgeVerification())
	assert.False(t, c.AgeGateSatisfied())

	c.VerifyAge(19)
	assert.True(t, c.AgeVerified())
	assert.False(t, c.AgeGateSatisfied())

	c.VerifyAge(25)
	assert.True(t, c.AgeGateSatisfied())
}

func TestClearResetsVerification(t *testing.T) {
	c := New()
	require.NoError(t, c.Add(taxable("p1", 100), 1))
	c.VerifyAge(30)
	c.Clear()

	assert.Zero(t, c.Len())
	assert.False(t, c.AgeVerified())
	assert.Zero(t, c.TotalCents())
	require.NoError(t, c.Add(taxable("p1", 100), 1))
	assert.Equal(t, 1, c.Len())
}
