package match

// CheckPositionLimit applies the all-or-nothing position gate to one
// instrument's batch. Buys and sells are summed separately; if the buy total
// would take the position above limit the whole buy side is dropped, and if
// the sell total would take it below -limit the whole sell side is dropped.
// Accepted orders are returned buys first, each side keeping submission order.
// Zero-quantity orders are discarded and appear in neither result.
func CheckPositionLimit(position, limit int64, orders []Order) (accepted []Order, rejected []Order) {
	buys := make([]Order, 0, len(orders))
	sells := make([]Order, 0, len(orders))
	var totalBuy, totalSell int64

	for _, o := range orders {
		switch {
		case o.Quantity > 0:
			totalBuy += o.Quantity
			buys = append(buys, o)
		case o.Quantity < 0:
			totalSell += o.Quantity
			sells = append(sells, o)
		}
	}

	accepted = make([]Order, 0, len(buys)+len(sells))

	if position+totalBuy > limit {
		rejected = append(rejected, buys...)
	} else {
		accepted = append(accepted, buys...)
	}

	if position+totalSell < -limit {
		rejected = append(rejected, sells...)
	} else {
		accepted = append(accepted, sells...)
	}

	return accepted, rejected
}
