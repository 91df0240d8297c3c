// Package basket holds the client-owned shopping basket. A Basket is a value:
// every operation returns a new Basket and leaves the receiver untouched, so a
// basket can be round-tripped through stateless HTTP calls.
package basket

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/example/machikart/internal/models"
)

// Pricing holds the charges applied on top of the per-kg price.
type Pricing struct {
	CleaningSurcharge decimal.Decimal
}

// DefaultPricing charges 30 per kg for cleaning.
var DefaultPricing = Pricing{CleaningSurcharge: decimal.NewFromInt(30)}

// LineItem is one basket slot.
type LineItem struct {
	ProductID  string
	FishName   string
	PricePerKg decimal.Decimal
	Quantity   decimal.Decimal
	Cleaning   bool
}

// Subtotal is price × quantity plus the cleaning surcharge when set.
func (li LineItem) Subtotal(p Pricing) decimal.Decimal {
	sum := li.PricePerKg.Mul(li.Quantity)
	if li.Cleaning {
		sum = sum.Add(p.CleaningSurcharge.Mul(li.Quantity))
	}
	return sum
}

// Basket is an ordered collection of slots.
type Basket struct {
	items []LineItem
}

// New builds a basket from raw items, merging any repeated slots.
func New(items ...LineItem) Basket {
	return Basket{items: merge(items)}
}

// Items returns a copy of the slots in insertion order.
func (b Basket) Items() []LineItem {
	out := make([]LineItem, len(b.items))
	copy(out, b.items)
	return out
}

// Len returns the number of slots.
func (b Basket) Len() int { return len(b.items) }

// IsEmpty reports whether the basket has no slots.
func (b Basket) IsEmpty() bool { return len(b.items) == 0 }

// Slot returns the slot for (productID, cleaning).
func (b Basket) Slot(productID string, cleaning bool) (LineItem, bool) {
	if i := find(b.items, productID, cleaning); i >= 0 {
		return b.items[i], true
	}
	return LineItem{}, false
}

// Add merges one unit of product into the matching slot or appends a new slot
// snapshotting the product's current name and price.
func (b Basket) Add(p models.Product, cleaning bool) Basket {
	items := b.Items()
	if i := find(items, p.Key(), cleaning); i >= 0 {
		items[i].Quantity = normalizeQuantity(items[i].Quantity.Add(AddStep))
		return Basket{items: items}
	}
	items = append(items, LineItem{
		ProductID:  p.Key(),
		FishName:   p.FishName,
		PricePerKg: decimal.NewFromFloat(p.PricePerKg),
		Quantity:   AddStep,
		Cleaning:   cleaning,
	})
	return Basket{items: items}
}

// Remove drops the slot for (productID, cleaning).
func (b Basket) Remove(productID string, cleaning bool) Basket {
	i := find(b.items, productID, cleaning)
	if i < 0 {
		return b
	}
	items := make([]LineItem, 0, len(b.items)-1)
	items = append(items, b.items[:i]...)
	items = append(items, b.items[i+1:]...)
	return Basket{items: items}
}

// AdjustQuantity adds a signed delta to a slot. The result never drops below
// MinQuantity.
func (b Basket) AdjustQuantity(productID string, cleaning bool, delta decimal.Decimal) Basket {
	i := find(b.items, productID, cleaning)
	if i < 0 {
		return b
	}
	items := b.Items()
	items[i].Quantity = normalizeQuantity(items[i].Quantity.Add(delta))
	return Basket{items: items}
}

// ToggleModifier flips the cleaning flag of a slot in place. It does not merge
// with a slot that already holds the same product with the opposite flag, so
// both variants may coexist afterwards.
func (b Basket) ToggleModifier(productID string, cleaning bool) Basket {
	i := find(b.items, productID, cleaning)
	if i < 0 {
		return b
	}
	items := b.Items()
	items[i].Cleaning = !items[i].Cleaning
	return Basket{items: items}
}

// Clear returns an empty basket.
func (b Basket) Clear() Basket {
	return Basket{}
}

// Total sums every slot's subtotal, rounded to cents.
func (b Basket) Total(p Pricing) decimal.Decimal {
	total := decimal.Zero
	for _, li := range b.items {
		total = total.Add(li.Subtotal(p))
	}
	return total.Round(2)
}

type lineItemJSON struct {
	ProductID  string  `json:"product_id"`
	FishName   string  `json:"fish_name"`
	PricePerKg float64 `json:"price_per_kg"`
	Quantity   float64 `json:"quantity"`
	Cleaning   bool    `json:"cleaning"`
}

// MarshalJSON encodes the basket as a plain array of slots.
func (b Basket) MarshalJSON() ([]byte, error) {
	out := make([]lineItemJSON, 0, len(b.items))
	for _, li := range b.items {
		out = append(out, lineItemJSON{
			ProductID:  li.ProductID,
			FishName:   li.FishName,
			PricePerKg: li.PricePerKg.InexactFloat64(),
			Quantity:   li.Quantity.InexactFloat64(),
			Cleaning:   li.Cleaning,
		})
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a client-held basket. Duplicate slots are merged and
// quantities normalized, so a decoded basket always satisfies the slot
// invariant.
func (b *Basket) UnmarshalJSON(data []byte) error {
	var raw []lineItemJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	items := make([]LineItem, 0, len(raw))
	for _, r := range raw {
		items = append(items, LineItem{
			ProductID:  r.ProductID,
			FishName:   r.FishName,
			PricePerKg: decimal.NewFromFloat(r.PricePerKg),
			Quantity:   decimal.NewFromFloat(r.Quantity),
			Cleaning:   r.Cleaning,
		})
	}
	*b = New(items...)
	return nil
}
