package pricing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		FirstBoardGamePrice:      4000,
		AdditionalBoardGamePrice: 2500,
		FreeShippingThreshold:    5000,
		StandardShippingCost:     599,
		TaxRateBps:               2000,
		Currency:                 "EUR",
	}
}

func snapshot(products ...Product) LookupFn {
	byID := make(map[string]Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return func(id string) (Product, bool) {
		p, ok := byID[id]
		return p, ok
	}
}

func TestComputeAccessoryCart(t *testing.T) {
	lookup := snapshot(Product{ID: "A", Price: 1000, Type: "accessory", Active: true})

	res, err := Compute([]CartItem{{ProductID: "A", Qty: 1}}, lookup, testConfig())
	require.NoError(t, err)
	require.Equal(t, Money(1000), res.Subtotal)
	require.Equal(t, Money(599), res.Shipping)
	require.Equal(t, Money(319), res.Tax)
	require.Equal(t, Money(1918), res.Total)
	require.Equal(t, 0, res.BoardGameCount)
	require.False(t, res.GrantsPremiumAccess)
	require.Equal(t, "EUR", res.Currency)
}

func TestComputeTotalInvariant(t *testing.T) {
	lookup := snapshot(
		Product{ID: "A", Price: 1234, Type: "accessory", Active: true},
		Product{ID: "B", Price: 999, Type: "digital", Active: true},
		Product{ID: "BG", Price: 7000, Type: ProductTypeBoardGame, Active: true},
	)
	carts := [][]CartItem{
		{{ProductID: "A", Qty: 1}},
		{{ProductID: "A", Qty: 3}, {ProductID: "B", Qty: 2}},
		{{ProductID: "BG", Qty: 1}, {ProductID: "A", Qty: 1}},
		{{ProductID: "B", Qty: 7}, {ProductID: "BG", Qty: 2}, {ProductID: "BG", Qty: 1}},
	}
	for _, cart := range carts {
		res, err := Compute(cart, lookup, testConfig())
		require.NoError(t, err)
		require.Equal(t, res.Subtotal+res.Shipping+res.Tax, res.Total)
	}
}

func TestComputeBoardGameTieringIsPositional(t *testing.T) {
	lookup := snapshot(
		Product{ID: "BG1", Price: 9999, Type: ProductTypeBoardGame, Active: true},
		Product{ID: "BG2", Price: 8888, Type: ProductTypeBoardGame, Active: true},
	)

	res, err := Compute([]CartItem{
		{ProductID: "BG1", Qty: 1},
		{ProductID: "BG2", Qty: 1},
	}, lookup, testConfig())
	require.NoError(t, err)
	require.Equal(t, Money(4000), res.Items[0].UnitPrice)
	require.Equal(t, Money(2500), res.Items[1].UnitPrice)
	require.Equal(t, Money(6500), res.Subtotal)
	require.Equal(t, 2, res.BoardGameCount)
	require.True(t, res.GrantsPremiumAccess)

	// Swapping the entries moves the "first" tier to the other product.
	res, err = Compute([]CartItem{
		{ProductID: "BG2", Qty: 1},
		{ProductID: "BG1", Qty: 1},
	}, lookup, testConfig())
	require.NoError(t, err)
	require.Equal(t, "BG2", res.Items[0].ProductID)
	require.Equal(t, Money(4000), res.Items[0].UnitPrice)
	require.Equal(t, Money(2500), res.Items[1].UnitPrice)
}

func TestComputeBoardGameCountMatchesEntries(t *testing.T) {
	lookup := snapshot(
		Product{ID: "BG", Price: 9000, Type: ProductTypeBoardGame, Active: true},
		Product{ID: "DICE", Price: 500, Type: "accessory", Active: true},
	)
	res, err := Compute([]CartItem{
		{ProductID: "DICE", Qty: 4},
		{ProductID: "BG", Qty: 2},
		{ProductID: "DICE", Qty: 1},
		{ProductID: "BG", Qty: 1},
	}, lookup, testConfig())
	require.NoError(t, err)
	require.Equal(t, 2, res.BoardGameCount)
	// First board-game entry priced at the first tier for its full quantity.
	require.Equal(t, Money(4000), res.Items[1].UnitPrice)
	require.Equal(t, Money(8000), res.Items[1].Total)
	require.Equal(t, Money(2500), res.Items[3].UnitPrice)
}

func TestComputeSalePriceOverridesPrice(t *testing.T) {
	sale := Money(750)
	lookup := snapshot(Product{ID: "A", Price: 1000, SalePrice: &sale, Type: "accessory", Active: true})

	res, err := Compute([]CartItem{{ProductID: "A", Qty: 2}}, lookup, testConfig())
	require.NoError(t, err)
	require.Equal(t, Money(750), res.Items[0].UnitPrice)
	require.Equal(t, Money(1500), res.Subtotal)
}

func TestComputeSalePriceIgnoredForBoardGames(t *testing.T) {
	sale := Money(100)
	lookup := snapshot(Product{ID: "BG", Price: 9000, SalePrice: &sale, Type: ProductTypeBoardGame, Active: true})

	res, err := Compute([]CartItem{{ProductID: "BG", Qty: 1}}, lookup, testConfig())
	require.NoError(t, err)
	require.Equal(t, Money(4000), res.Items[0].UnitPrice)
}

func TestComputeFreeShippingBoundary(t *testing.T) {
	lookup := snapshot(
		Product{ID: "AT", Price: 5000, Type: "accessory", Active: true},
		Product{ID: "UNDER", Price: 4999, Type: "accessory", Active: true},
	)

	res, err := Compute([]CartItem{{ProductID: "AT", Qty: 1}}, lookup, testConfig())
	require.NoError(t, err)
	require.Equal(t, Money(0), res.Shipping, "threshold is inclusive")

	res, err = Compute([]CartItem{{ProductID: "UNDER", Qty: 1}}, lookup, testConfig())
	require.NoError(t, err)
	require.Equal(t, Money(599), res.Shipping)
}

func TestComputeEmptyCart(t *testing.T) {
	_, err := Compute(nil, snapshot(), testConfig())
	require.ErrorIs(t, err, ErrItemsRequired)
	require.True(t, IsValidation(err))

	_, err = Compute([]CartItem{}, snapshot(), testConfig())
	require.ErrorIs(t, err, ErrItemsRequired)
}

func TestComputeInvalidQuantity(t *testing.T) {
	lookup := snapshot(Product{ID: "A", Price: 1000, Type: "accessory", Active: true})
	_, err := Compute([]CartItem{{ProductID: "A", Qty: 0}}, lookup, testConfig())
	require.ErrorIs(t, err, ErrInvalidQuantity)
	require.True(t, IsValidation(err))
}

func TestComputeFailsFastOnUnavailableProduct(t *testing.T) {
	lookup := snapshot(
		Product{ID: "OK", Price: 1000, Type: "accessory", Active: true},
		Product{ID: "GONE", Price: 1000, Type: "accessory", Active: false},
	)

	_, err := Compute([]CartItem{
		{ProductID: "OK", Qty: 1},
		{ProductID: "GONE", Qty: 1},
	}, lookup, testConfig())
	id, ok := IsUnavailable(err)
	require.True(t, ok)
	require.Equal(t, "GONE", id)

	_, err = Compute([]CartItem{{ProductID: "MISSING", Qty: 1}}, lookup, testConfig())
	id, ok = IsUnavailable(err)
	require.True(t, ok)
	require.Equal(t, "MISSING", id)
	require.False(t, errors.Is(err, ErrItemsRequired))
}

func TestComputeGrantsPremiumOnlyWithBoardGame(t *testing.T) {
	lookup := snapshot(
		Product{ID: "DICE", Price: 500, Type: "accessory", Active: true},
		Product{ID: "BG", Price: 9000, Type: ProductTypeBoardGame, Active: true},
	)

	res, err := Compute([]CartItem{{ProductID: "DICE", Qty: 3}}, lookup, testConfig())
	require.NoError(t, err)
	require.False(t, res.GrantsPremiumAccess)

	res, err = Compute([]CartItem{{ProductID: "DICE", Qty: 1}, {ProductID: "BG", Qty: 1}}, lookup, testConfig())
	require.NoError(t, err)
	require.True(t, res.GrantsPremiumAccess)
}
