package price

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"btc-threshold-trader/internal/binance"
	"github.com/go-resty/resty/v2"
)

// ErrMissingPrice is returned when a provider response lacks the price field.
var ErrMissingPrice = errors.New("price field missing from response")

// Provider is a single spot price source. Each adapter fails on its own;
// the Oracle decides what to try next.
type Provider interface {
	Name() string
	FetchPrice(ctx context.Context) (float64, error)
}

func validPrice(v float64) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, fmt.Errorf("invalid price %v", v)
	}
	return v, nil
}

func parsePrice(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("non-numeric price %q: %w", s, err)
	}
	return validPrice(v)
}

// getJSON performs a GET and decodes a 2xx JSON body into result.
func getJSON(ctx context.Context, req *resty.Request, url string, result interface{}) error {
	resp, err := req.SetContext(ctx).
		SetResult(result).
		ForceContentType("application/json").
		Get(url)
	if err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %s", url, resp.Status())
	}
	return nil
}

// CoinPaprika reads quotes.USD.price from the btc-bitcoin ticker.
type CoinPaprika struct {
	client *resty.Client
}

func NewCoinPaprika(baseURL string) *CoinPaprika {
	return &CoinPaprika{client: resty.New().SetBaseURL(baseURL)}
}

func (p *CoinPaprika) Name() string { return "coinpaprika" }

func (p *CoinPaprika) FetchPrice(ctx context.Context) (float64, error) {
	var body struct {
		Quotes map[string]struct {
			Price *float64 `json:"price"`
		} `json:"quotes"`
	}
	if err := getJSON(ctx, p.client.R(), "/tickers/btc-bitcoin", &body); err != nil {
		return 0, err
	}
	usd, ok := body.Quotes["USD"]
	if !ok || usd.Price == nil {
		return 0, ErrMissingPrice
	}
	return validPrice(*usd.Price)
}

// CoinCap reads data.priceUsd. It sends a browser-like User-Agent, without
// which the API intermittently answers 404.
type CoinCap struct {
	client    *resty.Client
	userAgent string
}

func NewCoinCap(baseURL, userAgent string) *CoinCap {
	return &CoinCap{client: resty.New().SetBaseURL(baseURL), userAgent: userAgent}
}

func (p *CoinCap) Name() string { return "coincap" }

func (p *CoinCap) FetchPrice(ctx context.Context) (float64, error) {
	var body struct {
		Data struct {
			PriceUSD *string `json:"priceUsd"`
		} `json:"data"`
	}
	req := p.client.R().SetHeader("User-Agent", p.userAgent)
	if err := getJSON(ctx, req, "/assets/bitcoin", &body); err != nil {
		return 0, err
	}
	if body.Data.PriceUSD == nil {
		return 0, ErrMissingPrice
	}
	return parsePrice(*body.Data.PriceUSD)
}

// CoinGecko reads bitcoin.usd from the simple price endpoint.
type CoinGecko struct {
	client *resty.Client
}

func NewCoinGecko(baseURL string) *CoinGecko {
	return &CoinGecko{client: resty.New().SetBaseURL(baseURL)}
}

func (p *CoinGecko) Name() string { return "coingecko" }

func (p *CoinGecko) FetchPrice(ctx context.Context) (float64, error) {
	var body map[string]map[string]*float64
	req := p.client.R().SetQueryParams(map[string]string{"ids": "bitcoin", "vs_currencies": "usd"})
	if err := getJSON(ctx, req, "/simple/price", &body); err != nil {
		return 0, err
	}
	usd := body["bitcoin"]["usd"]
	if usd == nil {
		return 0, ErrMissingPrice
	}
	return validPrice(*usd)
}

// BinanceTicker reads the BTCUSDT public ticker through the exchange client.
type BinanceTicker struct {
	client binance.RestClientInterface
}

func NewBinanceTicker(client binance.RestClientInterface) *BinanceTicker {
	return &BinanceTicker{client: client}
}

func (p *BinanceTicker) Name() string { return "binance" }

func (p *BinanceTicker) FetchPrice(ctx context.Context) (float64, error) {
	v, err := p.client.GetTickerPrice(ctx, binance.Symbol)
	if err != nil {
		return 0, err
	}
	return validPrice(v)
}
