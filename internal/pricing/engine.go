package pricing

// Money represents a monetary value stored in minor units.
type Money = int64

// Summary aggregates computed cart totals.
type Summary struct {
	Subtotal Money `json:"subtotal"`
	Discount Money `json:"discount"`
	Total    Money `json:"total"`
}

// Subtotal sums the provided prices. Negative prices contribute nothing.
func Subtotal(prices []Money) Money {
	var subtotal Money
	for _, p := range prices {
		if p <= 0 {
			continue
		}
		subtotal += p
	}
	return subtotal
}

// Compute calculates the cart summary. The total never drops below zero even
// when the discount exceeds the subtotal.
func Compute(prices []Money, discount Money) Summary {
	subtotal := Subtotal(prices)
	if discount < 0 {
		discount = 0
	}
	total := subtotal - discount
	if total < 0 {
		total = 0
	}
	return Summary{
		Subtotal: subtotal,
		Discount: discount,
		Total:    total,
	}
}
