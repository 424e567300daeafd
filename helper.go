package match

// CalculateDepthChange calculates the depth change based on the book log.
// It returns a DepthChange struct indicating which side and price level should be updated.
// Note: For LogTypeMatch, the side returned is the Maker's side (opposite of the log's side).
func CalculateDepthChange(log *BookLog) DepthChange {
	switch log.Type {
	case LogTypeOpen:
		return DepthChange{
			Side:     log.Side,
			Price:    log.Price,
			SizeDiff: log.Size,
		}
	case LogTypeMatch:
		// Match reduces liquidity from the Maker side.
		return DepthChange{
			Side:     oppositeSide(log.Side),
			Price:    log.Price,
			SizeDiff: -log.Size,
		}
	case LogTypeReject:
		// Rejected orders never entered the book, so no depth change.
		return DepthChange{}
	}

	return DepthChange{}
}

func oppositeSide(side Side) Side {
	if side == Buy {
		return Sell
	}
	return Buy
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
