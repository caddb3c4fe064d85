package trader

import (
	"context"
	"fmt"

	"btc-threshold-trader/internal/binance"
	"btc-threshold-trader/internal/price"
	"go.uber.org/zap"
)

// PriceOracle supplies the current spot price. ok is false when no
// provider could answer.
type PriceOracle interface {
	SpotPrice(ctx context.Context) (price.Quote, bool)
}

// OrderRequest describes a market order for one user.
type OrderRequest struct {
	Side        string
	Quantity    float64
	Demo        bool
	Credentials binance.Credentials
	DemoBTC     float64
	DemoUSDT    float64
	// Price is the tick-sampled price. When it is not positive a demo
	// order samples the oracle itself.
	Price float64
}

// Fill is the outcome of an executed order. For demo orders DemoBTC and
// DemoUSDT hold the resulting balances; live orders carry the exchange reply.
type Fill struct {
	Side     string
	Quantity float64
	Price    float64
	DemoBTC  float64
	DemoUSDT float64
	Order    *binance.CreateOrderResponse
}

// Executor places orders against the simulated ledger or the exchange.
// It never touches persisted state; callers apply the fill.
type Executor struct {
	exchange binance.RestClientInterface
	oracle   PriceOracle
	logger   *zap.Logger
}

func NewExecutor(exchange binance.RestClientInterface, oracle PriceOracle, logger *zap.Logger) *Executor {
	return &Executor{exchange: exchange, oracle: oracle, logger: logger}
}

// PlaceOrder executes req. Demo orders that the balances cannot cover fail
// with ErrInsufficientBalance; rejected live orders wrap binance.ErrOrderRejected.
func (e *Executor) PlaceOrder(ctx context.Context, req OrderRequest) (*Fill, error) {
	if req.Demo {
		return e.placeDemo(ctx, req)
	}
	return e.placeLive(ctx, req)
}

func (e *Executor) placeDemo(ctx context.Context, req OrderRequest) (*Fill, error) {
	p := req.Price
	if p <= 0 {
		quote, ok := e.oracle.SpotPrice(ctx)
		if !ok {
			return nil, ErrPriceUnavailable
		}
		p = quote.Value
	}

	fill := &Fill{Side: req.Side, Quantity: req.Quantity, Price: p}
	switch req.Side {
	case binance.OrderSideBuy:
		cost := req.Quantity * p
		if cost > req.DemoUSDT {
			return nil, fmt.Errorf("%w: need %.2f USDT, have %.2f", ErrInsufficientBalance, cost, req.DemoUSDT)
		}
		fill.DemoBTC = req.DemoBTC + req.Quantity
		fill.DemoUSDT = req.DemoUSDT - cost
	case binance.OrderSideSell:
		if req.Quantity > req.DemoBTC {
			return nil, fmt.Errorf("%w: need %.8f BTC, have %.8f", ErrInsufficientBalance, req.Quantity, req.DemoBTC)
		}
		fill.DemoBTC = req.DemoBTC - req.Quantity
		fill.DemoUSDT = req.DemoUSDT + req.Quantity*p
	default:
		return nil, fmt.Errorf("unknown order side %q", req.Side)
	}

	e.logger.Info("Demo order filled",
		zap.String("side", req.Side),
		zap.Float64("quantity", req.Quantity),
		zap.Float64("price", p),
		zap.Float64("demo_btc", fill.DemoBTC),
		zap.Float64("demo_usdt", fill.DemoUSDT))
	return fill, nil
}

func (e *Executor) placeLive(ctx context.Context, req OrderRequest) (*Fill, error) {
	if req.Credentials.APIKey == "" || req.Credentials.APISecret == "" {
		return nil, ErrMissingCredentials
	}
	order, err := e.exchange.CreateOrder(ctx, req.Credentials, req.Side, req.Quantity)
	if err != nil {
		return nil, err
	}
	return &Fill{Side: req.Side, Quantity: req.Quantity, Price: req.Price, Order: order}, nil
}
