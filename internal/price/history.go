package price

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-resty/resty/v2"
)

// Point is one daily sample. It encodes as [timestampMs, price].
type Point struct {
	Timestamp int64
	Price     float64
}

func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{float64(p.Timestamp), p.Price})
}

func (p *Point) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("expected [timestamp, price], got %d values", len(pair))
	}
	p.Timestamp = int64(pair[0])
	p.Price = pair[1]
	return nil
}

// HistorySource returns daily closing prices, oldest first.
type HistorySource interface {
	Name() string
	FetchDaily(ctx context.Context, days int) ([]Point, error)
}

var errNoHistory = errors.New("no historical prices in response")

// YahooChart reads the BTC-USD daily chart.
type YahooChart struct {
	client *resty.Client
}

func NewYahooChart(baseURL string) *YahooChart {
	return &YahooChart{client: resty.New().SetBaseURL(baseURL)}
}

func (s *YahooChart) Name() string { return "yahoo" }

func (s *YahooChart) FetchDaily(ctx context.Context, days int) ([]Point, error) {
	var body struct {
		Chart struct {
			Result []struct {
				Timestamp  []int64 `json:"timestamp"`
				Indicators struct {
					Quote []struct {
						Close []*float64 `json:"close"`
					} `json:"quote"`
				} `json:"indicators"`
			} `json:"result"`
		} `json:"chart"`
	}
	req := s.client.R().SetQueryParams(map[string]string{
		"interval": "1d",
		"range":    strconv.Itoa(days) + "d",
	})
	if err := getJSON(ctx, req, "/BTC-USD", &body); err != nil {
		return nil, err
	}
	if len(body.Chart.Result) == 0 || len(body.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, errNoHistory
	}

	result := body.Chart.Result[0]
	closes := result.Indicators.Quote[0].Close
	points := make([]Point, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		points = append(points, Point{Timestamp: ts * 1000, Price: *closes[i]})
	}
	if len(points) == 0 {
		return nil, errNoHistory
	}
	return points, nil
}

// CoinGeckoChart reads the bitcoin market chart with daily granularity.
type CoinGeckoChart struct {
	client *resty.Client
}

func NewCoinGeckoChart(baseURL string) *CoinGeckoChart {
	return &CoinGeckoChart{client: resty.New().SetBaseURL(baseURL)}
}

func (s *CoinGeckoChart) Name() string { return "coingecko" }

func (s *CoinGeckoChart) FetchDaily(ctx context.Context, days int) ([]Point, error) {
	var body struct {
		Prices []Point `json:"prices"`
	}
	req := s.client.R().SetQueryParams(map[string]string{
		"vs_currency": "usd",
		"days":        strconv.Itoa(days),
		"interval":    "daily",
	})
	if err := getJSON(ctx, req, "/coins/bitcoin/market_chart", &body); err != nil {
		return nil, err
	}
	if len(body.Prices) == 0 {
		return nil, errNoHistory
	}
	return body.Prices, nil
}
