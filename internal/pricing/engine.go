package pricing

import (
	"errors"
	"fmt"
)

// Money represents a monetary value stored in minor units.
type Money = int64

// Product type enum. Board games are the distinguished category that
// receives tiered pricing and grants premium access.
const (
	ProductTypeBoardGame = "board_game"
	ProductTypeExpansion = "expansion"
	ProductTypeAccessory = "accessory"
	ProductTypeGiftCard  = "gift_card"
)

// ValidProductType reports whether t is a known product type.
func ValidProductType(t string) bool {
	switch t {
	case ProductTypeBoardGame, ProductTypeExpansion, ProductTypeAccessory, ProductTypeGiftCard:
		return true
	}
	return false
}

var (
	// ErrItemsRequired is returned when the cart is empty or missing.
	ErrItemsRequired = errors.New("items required")
	// ErrInvalidQuantity is returned when an item quantity is not positive.
	ErrInvalidQuantity = errors.New("quantity must be positive")
)

// ProductUnavailableError indicates the referenced product does not exist
// or is not currently purchasable. The whole computation is aborted.
type ProductUnavailableError struct {
	ProductID string
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product unavailable: %s", e.ProductID)
}

// IsValidation reports whether the error is a caller-correctable input error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrItemsRequired) || errors.Is(err, ErrInvalidQuantity)
}

// IsUnavailable reports whether the error is a ProductUnavailableError and
// returns the offending product identifier.
func IsUnavailable(err error) (string, bool) {
	var target *ProductUnavailableError
	if errors.As(err, &target) {
		return target.ProductID, true
	}
	return "", false
}

// CartItem is one line of the cart as supplied by the caller. Order matters:
// board-game tiering is positional across the whole cart.
type CartItem struct {
	ProductID string
	Qty       int
}

// Product is the catalog snapshot consumed by the engine.
type Product struct {
	ID        string
	Name      string
	Price     Money
	SalePrice *Money
	Type      string
	Active    bool
}

// LookupFn resolves a product identifier against an immutable catalog
// snapshot taken once per request.
type LookupFn func(productID string) (Product, bool)

// Config carries the shop-wide pricing settings. Tax is expressed in
// basis points so all arithmetic stays in integer minor units.
type Config struct {
	FirstBoardGamePrice      Money
	AdditionalBoardGamePrice Money
	FreeShippingThreshold    Money
	StandardShippingCost     Money
	TaxRateBps               int
	Currency                 string
}

// PricedItem is one computed line of the result.
type PricedItem struct {
	ProductID string
	Product   Product
	Qty       int
	UnitPrice Money
	Total     Money
}

// Result aggregates the computed pricing components for a cart.
type Result struct {
	Items               []PricedItem
	Subtotal            Money
	Shipping            Money
	Tax                 Money
	Total               Money
	Currency            string
	BoardGameCount      int
	GrantsPremiumAccess bool
}

// Compute prices the cart against the provided catalog snapshot and shop
// configuration. It is pure: no retries, no partial results. The first
// board-game entry in cart order is charged cfg.FirstBoardGamePrice, every
// subsequent board-game entry cfg.AdditionalBoardGamePrice, regardless of
// product identity.
func Compute(items []CartItem, lookup LookupFn, cfg Config) (Result, error) {
	if len(items) == 0 {
		return Result{}, ErrItemsRequired
	}
	if lookup == nil {
		return Result{}, errors.New("pricing: lookup is required")
	}

	boardGameCount := 0
	var subtotal Money
	priced := make([]PricedItem, 0, len(items))

	for _, it := range items {
		if it.Qty <= 0 {
			return Result{}, fmt.Errorf("item %s: %w", it.ProductID, ErrInvalidQuantity)
		}
		product, ok := lookup(it.ProductID)
		if !ok || !product.Active {
			return Result{}, &ProductUnavailableError{ProductID: it.ProductID}
		}
		unitPrice := product.Price
		if product.SalePrice != nil {
			unitPrice = *product.SalePrice
		}
		if product.Type == ProductTypeBoardGame {
			if boardGameCount == 0 {
				unitPrice = cfg.FirstBoardGamePrice
			} else {
				unitPrice = cfg.AdditionalBoardGamePrice
			}
			boardGameCount++
		}
		total := unitPrice * Money(it.Qty)
		subtotal += total
		priced = append(priced, PricedItem{
			ProductID: it.ProductID,
			Product:   product,
			Qty:       it.Qty,
			UnitPrice: unitPrice,
			Total:     total,
		})
	}

	var shipping Money
	if subtotal < cfg.FreeShippingThreshold {
		shipping = cfg.StandardShippingCost
	}
	tax := ((subtotal + shipping) * Money(cfg.TaxRateBps)) / 10000
	total := subtotal + shipping + tax

	return Result{
		Items:               priced,
		Subtotal:            subtotal,
		Shipping:            shipping,
		Tax:                 tax,
		Total:               total,
		Currency:            cfg.Currency,
		BoardGameCount:      boardGameCount,
		GrantsPremiumAccess: boardGameCount > 0,
	}, nil
}
