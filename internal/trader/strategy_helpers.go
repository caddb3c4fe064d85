package trader

import (
	"btc-threshold-trader/internal/binance"
	"btc-threshold-trader/internal/models"
)

// calculateProfit is the realized profit of selling amount at sellPrice.
func calculateProfit(buyPrice, sellPrice, amount float64) float64 {
	return (sellPrice - buyPrice) * amount
}

// credentials extracts the exchange key pair of a user.
func credentials(user *models.User) binance.Credentials {
	return binance.Credentials{APIKey: user.APIKey, APISecret: user.APISecret}
}

// orderRequest builds an order for the user's current mode and demo ledger.
func orderRequest(user *models.User, s *models.Settings, side string, quantity, p float64) OrderRequest {
	return OrderRequest{
		Side:        side,
		Quantity:    quantity,
		Demo:        s.DemoMode,
		Credentials: credentials(user),
		DemoBTC:     s.DemoBTCBalance,
		DemoUSDT:    s.DemoUSDTBalance,
		Price:       p,
	}
}

// applyFill moves a fill into the ledger and the working balances. Demo fills
// carry the new simulated balances; live balances are adjusted locally so
// later checks in the same evaluation see the traded amounts.
func applyFill(s *models.Settings, balances *binance.Balances, fill *Fill) {
	if s.DemoMode {
		s.DemoBTCBalance = fill.DemoBTC
		s.DemoUSDTBalance = fill.DemoUSDT
		balances.BTC = fill.DemoBTC
		balances.USDT = fill.DemoUSDT
		return
	}
	value := fill.Quantity * fill.Price
	if fill.Side == binance.OrderSideBuy {
		balances.BTC += fill.Quantity
		balances.USDT -= value
	} else {
		balances.BTC -= fill.Quantity
		balances.USDT += value
	}
}
