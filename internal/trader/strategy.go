package trader

// minBuyDropPercent is how far the price must fall below the last buy before
// another buy is considered while a position is open.
const minBuyDropPercent = 2.0

// maxConfirmDriftPercent bounds how far the price may move between proposing
// and confirming a pending buy.
const maxConfirmDriftPercent = 1.0

const (
	sellReasonThreshold = "sell threshold reached"
	sellReasonStopLoss  = "stop loss triggered"
)

// canBuy applies the buy threshold and, with an open position, the anti-chase rule.
func canBuy(current, buyThreshold, lastBuyPrice float64) bool {
	if current > buyThreshold {
		return false
	}
	if lastBuyPrice == 0 {
		return true
	}
	return current <= lastBuyPrice*(1-minBuyDropPercent/100)
}

// stopLossPrice returns the price at or below which the position is sold.
// ok is false when there is no position or the stop loss is disabled.
func stopLossPrice(lastBuyPrice, sellAllPercentage float64) (float64, bool) {
	if lastBuyPrice <= 0 || sellAllPercentage <= 0 {
		return 0, false
	}
	return lastBuyPrice * (1 - sellAllPercentage/100), true
}

// sellReason reports why the position should be sold, or "" to hold.
func sellReason(current, sellThreshold, lastBuyPrice, sellAllPercentage float64) string {
	if current >= sellThreshold {
		return sellReasonThreshold
	}
	if stop, ok := stopLossPrice(lastBuyPrice, sellAllPercentage); ok && current <= stop {
		return sellReasonStopLoss
	}
	return ""
}

// priceDrift returns the signed percentage move from proposed to current.
func priceDrift(proposed, current float64) float64 {
	return (current - proposed) / proposed * 100
}
