package service

import "expense-bot/internal/model"

// Pricing is the reconciled view of a line item. Quantity is nil unless the
// item carried a positive quantity.
type Pricing struct {
	Quantity  *float64
	UnitPrice *float64
	Total     *float64
}

// EffectiveQuantity is the quantity used for arithmetic.
func (p Pricing) EffectiveQuantity() float64 {
	if p.Quantity != nil {
		return *p.Quantity
	}
	return 1
}

// LineAmount is the amount an item contributes: total, else unit price, else 0.
func (p Pricing) LineAmount() float64 {
	switch {
	case p.Total != nil:
		return *p.Total
	case p.UnitPrice != nil:
		return *p.UnitPrice
	}
	return 0
}

// ResolvePricing fills the missing one of unit price and line total from the
// other. Unparsable numbers are treated as absent.
func ResolvePricing(item model.DraftItem) Pricing {
	var p Pricing
	if q, ok := item.Qty.Float(); ok && q > 0 {
		p.Quantity = &q
	}
	p.UnitPrice = item.Price.Ptr()
	p.Total = item.Total.Ptr()

	qty := p.EffectiveQuantity()
	switch {
	case p.Total == nil && p.UnitPrice != nil:
		t := *p.UnitPrice * qty
		p.Total = &t
	case p.UnitPrice == nil && p.Total != nil:
		u := *p.Total / qty
		p.UnitPrice = &u
	}
	return p
}

// NormalizedItem returns a copy of item with resolved pricing written back.
func NormalizedItem(item model.DraftItem) model.DraftItem {
	p := ResolvePricing(item)
	out := item
	out.Qty = model.NumberOf(p.EffectiveQuantity())
	if p.UnitPrice != nil {
		out.Price = model.NumberOf(*p.UnitPrice)
	}
	if p.Total != nil {
		out.Total = model.NumberOf(*p.Total)
	}
	return out
}
