package basket

import "github.com/shopspring/decimal"

var (
	// AddStep is the quantity added when a product is added again.
	AddStep = decimal.NewFromInt(1)
	// MinQuantity is the smallest quantity a slot may hold.
	MinQuantity = decimal.RequireFromString("0.5")
)

// slotKey identifies a basket slot: the same product with and without
// cleaning occupies two different slots.
type slotKey struct {
	productID string
	cleaning  bool
}

func keyOf(li LineItem) slotKey {
	return slotKey{productID: li.ProductID, cleaning: li.Cleaning}
}

// find returns the index of the slot for (productID, cleaning) or -1.
func find(items []LineItem, productID string, cleaning bool) int {
	want := slotKey{productID: productID, cleaning: cleaning}
	for i := range items {
		if keyOf(items[i]) == want {
			return i
		}
	}
	return -1
}

// normalizeQuantity rounds to one decimal and clamps to MinQuantity.
func normalizeQuantity(q decimal.Decimal) decimal.Decimal {
	q = q.Round(1)
	if q.LessThan(MinQuantity) {
		return MinQuantity
	}
	return q
}

// merge folds items into slots, summing the quantities of repeated keys and
// keeping first-seen order.
func merge(items []LineItem) []LineItem {
	out := make([]LineItem, 0, len(items))
	for _, li := range items {
		if li.ProductID == "" {
			continue
		}
		if i := find(out, li.ProductID, li.Cleaning); i >= 0 {
			out[i].Quantity = normalizeQuantity(out[i].Quantity.Add(li.Quantity))
			continue
		}
		li.Quantity = normalizeQuantity(li.Quantity)
		out = append(out, li)
	}
	return out
}
