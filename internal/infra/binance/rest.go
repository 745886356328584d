package binance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hashimhashmi02/Exness-be/internal/domain"
	"github.com/hashimhashmi02/Exness-be/internal/infra"
	"github.com/hashimhashmi02/Exness-be/pkg/quant"
)

// RestClient fetches historical klines from the Binance REST API for candle
// backfill. Calls carry a bounded timeout and surface failures to the caller
// instead of hanging.
type RestClient struct {
	baseURL  string
	decimals int32
	client   *http.Client
	limiter  *infra.RateLimiter
	breaker  *infra.CircuitBreaker
}

func NewRestClient(baseURL string, decimals int32) *RestClient {
	return &RestClient{
		baseURL:  baseURL,
		decimals: decimals,
		client:   &http.Client{Timeout: 10 * time.Second},
		limiter:  infra.GetBinanceMarketLimiter(),
		breaker:  infra.NewCircuitBreaker(infra.DefaultCircuitBreakerConfig("binance-rest")),
	}
}

// Klines fetches up to limit bars of the given interval starting at startMs
// (0 means from the oldest available).
//
// A kline row is a mixed-type array:
//
//	[openTime, "open", "high", "low", "close", "volume", closeTime, ...]
func (c *RestClient) Klines(ctx context.Context, symbol, interval string, startMs int64, limit int) ([]domain.Candle, error) {
	if !c.breaker.Allow() {
		return nil, fmt.Errorf("klines: upstream circuit open")
	}
	c.limiter.Wait()

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))
	if startMs > 0 {
		q.Set("startTime", strconv.FormatInt(startMs, 10))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/v3/klines?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		return nil, fmt.Errorf("klines request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.breaker.RecordFailure()
		return nil, fmt.Errorf("klines read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.breaker.RecordFailure()
		return nil, fmt.Errorf("klines status %d: %s", resp.StatusCode, body)
	}
	c.breaker.RecordSuccess()

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var rows [][]any
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("klines decode: %w", err)
	}

	bars := make([]domain.Candle, 0, len(rows))
	for _, row := range rows {
		bar, err := c.parseKline(symbol, interval, row)
		if err != nil {
			return nil, err
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func (c *RestClient) parseKline(symbol, interval string, row []any) (domain.Candle, error) {
	if len(row) < 6 {
		return domain.Candle{}, fmt.Errorf("kline row too short: %d fields", len(row))
	}

	openTime, ok := row[0].(json.Number)
	if !ok {
		return domain.Candle{}, fmt.Errorf("kline open time is %T", row[0])
	}
	bucket, err := openTime.Int64()
	if err != nil {
		return domain.Candle{}, fmt.Errorf("kline open time: %w", err)
	}

	prices := make([]quant.Price, 4)
	for i := 1; i <= 4; i++ {
		s, ok := row[i].(string)
		if !ok {
			return domain.Candle{}, fmt.Errorf("kline field %d is %T", i, row[i])
		}
		p, err := quant.ParsePrice(s, c.decimals)
		if err != nil {
			return domain.Candle{}, err
		}
		prices[i-1] = p
	}

	var volume int64
	if s, ok := row[5].(string); ok {
		if v, err := quant.ParseQty(s); err == nil {
			volume = v
		}
	}

	return domain.Candle{
		Symbol:      symbol,
		Interval:    interval,
		BucketStart: bucket,
		Open:        prices[0],
		High:        prices[1],
		Low:         prices[2],
		Close:       prices[3],
		VolumeQty:   volume,
	}, nil
}
