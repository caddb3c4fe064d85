package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"btc-threshold-trader/internal/config"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	baseURL         = "https://api.binance.com/api/v3"
	testnetBaseURL  = "https://testnet.binance.vision/api/v3"
	apiKeyHeader    = "X-MBX-APIKEY"
	Symbol          = "BTCUSDT"
	BaseAsset       = "BTC"
	QuoteAsset      = "USDT"
	OrderTypeMarket = "MARKET"
	OrderSideBuy    = "BUY"
	OrderSideSell   = "SELL"
)

var (
	// ErrRequestFailed is returned when Binance answers with anything but HTTP 200.
	ErrRequestFailed = errors.New("binance request failed")
	// ErrOrderRejected is returned when an order submission is not accepted.
	ErrOrderRejected = errors.New("order rejected by exchange")
)

// Credentials are a user's Binance API key pair.
type Credentials struct {
	APIKey    string
	APISecret string
}

// Balances holds the free balances of the traded assets.
type Balances struct {
	BTC  float64 `json:"btc"`
	USDT float64 `json:"usdt"`
}

// RestClientInterface defines the interface for the Binance REST API client.
type RestClientInterface interface {
	GetTickerPrice(ctx context.Context, symbol string) (float64, error)
	GetAccountBalances(ctx context.Context, creds Credentials) (Balances, error)
	CreateOrder(ctx context.Context, creds Credentials, side string, quantity float64) (*CreateOrderResponse, error)
}

// RestClient is a client for the Binance REST API.
// Signed calls take the credentials of the user they act for.
type RestClient struct {
	client  *resty.Client
	logger  *zap.Logger
	limiter *rate.Limiter
	now     func() time.Time
}

// ensure RestClient implements the interface
var _ RestClientInterface = (*RestClient)(nil)

// NewRestClient creates a new Binance REST API client.
func NewRestClient(cfg *config.Binance, logger *zap.Logger) *RestClient {
	url := cfg.BaseURL
	if cfg.Testnet {
		url = testnetBaseURL
		logger.Warn("Using Binance Testnet")
	} else {
		if url == "" {
			url = baseURL
		}
		logger.Info("Using Binance API", zap.String("base_url", url))
	}

	client := resty.New().SetBaseURL(url)
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}

	return &RestClient{
		client:  client,
		logger:  logger,
		limiter: rate.NewLimiter(limit, burst),
		now:     time.Now,
	}
}

// Sign creates the hex HMAC-SHA256 signature of payload keyed by secret.
func Sign(secret, payload string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

// FormatQuantity renders a quantity with the 8 decimal places Binance expects.
func FormatQuantity(quantity float64) string {
	return decimal.NewFromFloat(quantity).StringFixed(8)
}

// signedPath appends the signature of the literal query string to path.
func signedPath(path, query, secret string) string {
	return path + "?" + query + "&signature=" + Sign(secret, query)
}

// doRequest executes a single rate limited request. There is no retry:
// anything but HTTP 200 is reported as ErrRequestFailed.
func (c *RestClient) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
	resp, err := req.SetContext(ctx).Execute(method, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrRequestFailed, method, url, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return resp, fmt.Errorf("%w: status %s: %s", ErrRequestFailed, resp.Status(), resp.String())
	}
	return resp, nil
}

// TickerPrice represents the response for a single ticker price.
type TickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// GetTickerPrice fetches the latest price for symbol from the public ticker.
func (c *RestClient) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	req := c.client.R().
		SetQueryParam("symbol", symbol).
		SetResult(&TickerPrice{})

	resp, err := c.doRequest(ctx, http.MethodGet, "/ticker/price", req)
	if err != nil {
		return 0, fmt.Errorf("failed to get ticker price: %w", err)
	}

	result := resp.Result().(*TickerPrice)
	if result.Price == "" {
		return 0, fmt.Errorf("ticker response for %s has no price", symbol)
	}
	price, err := strconv.ParseFloat(result.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid ticker price %q: %w", result.Price, err)
	}
	if price <= 0 {
		return 0, fmt.Errorf("invalid ticker price %v", price)
	}
	return price, nil
}

// AccountResponse is the subset of the /account response we read.
type AccountResponse struct {
	Balances []AssetBalance `json:"balances"`
}

// AssetBalance is a single asset entry of an account.
type AssetBalance struct {
	Asset  string `json:"asset"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
}

// GetAccountBalances fetches the free BTC and USDT balances of an account.
// Assets missing from the response count as zero.
func (c *RestClient) GetAccountBalances(ctx context.Context, creds Credentials) (Balances, error) {
	query := fmt.Sprintf("timestamp=%d", c.now().UnixMilli())

	req := c.client.R().
		SetHeader(apiKeyHeader, creds.APIKey).
		SetResult(&AccountResponse{})

	resp, err := c.doRequest(ctx, http.MethodGet, signedPath("/account", query, creds.APISecret), req)
	if err != nil {
		return Balances{}, fmt.Errorf("failed to get account balances: %w", err)
	}

	var balances Balances
	for _, b := range resp.Result().(*AccountResponse).Balances {
		var target *float64
		switch b.Asset {
		case BaseAsset:
			target = &balances.BTC
		case QuoteAsset:
			target = &balances.USDT
		default:
			continue
		}
		free, err := strconv.ParseFloat(b.Free, 64)
		if err != nil {
			return Balances{}, fmt.Errorf("invalid %s balance %q: %w", b.Asset, b.Free, err)
		}
		*target = free
	}
	return balances, nil
}

// CreateOrderResponse represents the response from creating a new order.
type CreateOrderResponse struct {
	Symbol              string `json:"symbol"`
	OrderID             int64  `json:"orderId"`
	ClientOrderID       string `json:"clientOrderId"`
	TransactTime        int64  `json:"transactTime"`
	Price               string `json:"price"`
	OrigQuantity        string `json:"origQty"`
	ExecutedQuantity    string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	Status              string `json:"status"`
	Type                string `json:"type"`
	Side                string `json:"side"`
}

// CreateOrder places a full-quantity MARKET order for BTCUSDT. The signature
// covers the literal query string, which is sent unchanged.
func (c *RestClient) CreateOrder(ctx context.Context, creds Credentials, side string, quantity float64) (*CreateOrderResponse, error) {
	query := fmt.Sprintf("symbol=%s&side=%s&type=%s&quantity=%s&timestamp=%d",
		Symbol, side, OrderTypeMarket, FormatQuantity(quantity), c.now().UnixMilli())

	req := c.client.R().
		SetHeader(apiKeyHeader, creds.APIKey).
		SetResult(&CreateOrderResponse{})

	l := c.logger.With(zap.String("side", side), zap.String("quantity", FormatQuantity(quantity)))
	l.Info("Sending order to Binance")

	resp, err := c.doRequest(ctx, http.MethodPost, signedPath("/order", query, creds.APISecret), req)
	if err != nil {
		l.Error("Live order failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrOrderRejected, err)
	}

	result := resp.Result().(*CreateOrderResponse)
	l.Info("Live order successful", zap.Int64("order_id", result.OrderID), zap.String("status", result.Status))
	return result, nil
}
