package pricing

import (
	"github.com/google/uuid"
)

// Money represents a monetary value stored in minor units (paise).
type Money = int64

// LineItem is an immutable snapshot of a cart line taken at pricing time.
// Later changes to the underlying product must not affect an already
// summarised order, so the snapshot carries everything pricing needs.
type LineItem struct {
	ProductID   uuid.UUID
	Title       string
	Qty         int
	UnitPrice   Money
	WeightGrams int
	VendorID    uuid.UUID
	CategoryID  uuid.UUID
}

// MRP returns the line total before any discount.
func (li LineItem) MRP() Money {
	if li.Qty <= 0 || li.UnitPrice <= 0 {
		return 0
	}
	return Money(li.Qty) * li.UnitPrice
}

// TotalMRP sums the pre-discount totals of all lines.
func TotalMRP(items []LineItem) Money {
	var total Money
	for _, it := range items {
		total += it.MRP()
	}
	return total
}

// TotalWeightGrams sums parcel weight across all lines. Lines with an
// unknown weight contribute defaultGrams per unit.
func TotalWeightGrams(items []LineItem, defaultGrams int) int {
	var total int
	for _, it := range items {
		if it.Qty <= 0 {
			continue
		}
		grams := it.WeightGrams
		if grams <= 0 {
			grams = defaultGrams
		}
		total += it.Qty * grams
	}
	return total
}

// ItemSummary is the priced outcome for a single line.
type ItemSummary struct {
	ProductID uuid.UUID `json:"productId"`
	MRP       Money     `json:"mrp"`
	Discount  Money     `json:"discount"`
	Total     Money     `json:"total"`
}

// Summary aggregates the priced outcome of a cart. It is computed fresh on
// every view and never persisted or cached.
type Summary struct {
	Items          []ItemSummary `json:"items"`
	TotalMRP       Money         `json:"totalMrp"`
	TotalDiscount  Money         `json:"totalDiscount"`
	DeliveryCharge Money         `json:"deliveryCharge"`
	GrandTotal     Money         `json:"grandTotal"`
}

// Assemble combines line items, a per-item discount allocation and a
// delivery charge into a full order summary. Per-item discounts are
// clamped to the item MRP, which keeps the grand total at or above the
// delivery charge. The function is pure: calling it twice with identical
// inputs yields identical output.
func Assemble(items []LineItem, discounts map[uuid.UUID]Money, deliveryCharge Money) Summary {
	if deliveryCharge < 0 {
		deliveryCharge = 0
	}
	summary := Summary{
		Items:          make([]ItemSummary, 0, len(items)),
		DeliveryCharge: deliveryCharge,
	}
	for _, it := range items {
		mrp := it.MRP()
		var discount Money
		if discounts != nil {
			discount = discounts[it.ProductID]
		}
		if discount < 0 {
			discount = 0
		}
		if discount > mrp {
			discount = mrp
		}
		summary.Items = append(summary.Items, ItemSummary{
			ProductID: it.ProductID,
			MRP:       mrp,
			Discount:  discount,
			Total:     mrp - discount,
		})
		summary.TotalMRP += mrp
		summary.TotalDiscount += discount
	}
	summary.GrandTotal = summary.TotalMRP - summary.TotalDiscount + summary.DeliveryCharge
	return summary
}
