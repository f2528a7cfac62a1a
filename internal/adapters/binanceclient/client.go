package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cryptoLedger/internal/domain"
	"cryptoLedger/internal/ports"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"
)

const (
	// Base URLs
	baseURLProduction = "https://api.binance.com"
	baseURLTestnet    = "https://testnet.binance.vision"

	// Binance caps a single klines request at 1000 rows on spot.
	klinesPageLimit = 1000
)

// Client implements ports.PriceFeed against the Binance spot REST API.
type Client struct {
	spotClient *binance.Client
	logger     ports.Logger
	pairs      map[string]string
	quote      string
	retry      retryPolicy
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	BaseURL    string // Overrides the production/testnet URL when set
	Logger     ports.Logger

	// Pairs maps asset symbols to exchange pairs. Assets missing here
	// fall back to asset+QuoteAsset.
	Pairs      map[string]string
	QuoteAsset string

	MaxRetries int
	BackoffMin time.Duration
	BackoffMax time.Duration
}

// New creates a new Binance spot client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}

	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	switch {
	case cfg.BaseURL != "":
		client.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	case cfg.UseTestnet:
		client.BaseURL = baseURLTestnet
	default:
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance spot client configured", map[string]interface{}{"baseURL": client.BaseURL})

	quote := strings.ToUpper(cfg.QuoteAsset)
	if quote == "" {
		quote = "USDT"
	}
	pairs := make(map[string]string, len(cfg.Pairs))
	for asset, pair := range cfg.Pairs {
		pairs[domain.NormalizeSymbol(asset)] = strings.ToUpper(pair)
	}

	return &Client{
		spotClient: client,
		logger:     cfg.Logger,
		pairs:      pairs,
		quote:      quote,
		retry:      newRetryPolicy(cfg.MaxRetries, cfg.BackoffMin, cfg.BackoffMax),
	}, nil
}

// Pair returns the exchange pair used for an asset symbol.
func (c *Client) Pair(symbol string) string {
	asset := domain.NormalizeSymbol(symbol)
	if pair, ok := c.pairs[asset]; ok {
		return pair
	}
	return asset + c.quote
}

// GetSpotPrice returns the last traded price of the asset's pair.
func (c *Client) GetSpotPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	op := "GetSpotPrice"
	pair := c.Pair(symbol)

	var prices []*binance.SymbolPrice
	err := c.retry.do(ctx, c.logger, op, func() error {
		var err error
		prices, err = c.spotClient.NewListPricesService().Symbol(pair).Do(ctx)
		if err != nil {
			return c.handleError(ctx, err, op)
		}
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}

	for _, p := range prices {
		if p == nil || !strings.EqualFold(p.Symbol, pair) {
			continue
		}
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%s failed: %w: could not parse price '%s' for %s", op, ports.ErrPriceUnavailable, p.Price, pair)
		}
		if !price.IsPositive() {
			return decimal.Zero, fmt.Errorf("%s failed: %w: non-positive price for %s", op, ports.ErrPriceUnavailable, pair)
		}
		return price, nil
	}
	return decimal.Zero, fmt.Errorf("%s failed: %w: no price returned for %s", op, ports.ErrPriceUnavailable, pair)
}

// GetCandles fetches all candles for symbol/interval with open time in [start, end].
// Requests are paged, each page starting 1ms after the previous page's last close.
func (c *Client) GetCandles(ctx context.Context, symbol, interval string, start, end time.Time) ([]*domain.Candle, error) {
	op := "GetCandles"
	if end.Before(start) {
		return nil, fmt.Errorf("%s failed: %w: end %s before start %s", op, ports.ErrInvalidRequest, end, start)
	}
	asset := domain.NormalizeSymbol(symbol)
	pair := c.Pair(asset)

	var all []*domain.Candle
	from := start
	for {
		var page []*binance.Kline
		err := c.retry.do(ctx, c.logger, op, func() error {
			var err error
			page, err = c.spotClient.NewKlinesService().
				Symbol(pair).
				Interval(interval).
				StartTime(from.UnixMilli()).
				EndTime(end.UnixMilli()).
				Limit(klinesPageLimit).
				Do(ctx)
			if err != nil {
				return c.handleError(ctx, err, op)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}

		for _, bk := range page {
			candle, err := translateKline(bk, asset, interval)
			if err != nil {
				return nil, fmt.Errorf("%s failed: %w: %w", op, ports.ErrUnknown, err)
			}
			all = append(all, candle)
		}

		last := page[len(page)-1]
		from = time.UnixMilli(last.CloseTime + 1)
		if from.After(end) || len(page) < klinesPageLimit {
			break
		}
	}

	c.logger.Debug(ctx, op+" complete", map[string]interface{}{"symbol": asset, "pair": pair, "interval": interval, "candles": len(all)})
	return all, nil
}

// handleError translates Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003, -1015: // Too many requests / orders
			mappedErr = ports.ErrRateLimited
		case -1000, -1001, -1008: // Unknown / disconnected / server busy
			mappedErr = ports.ErrExchangeUnavailable
		case -1007, -1021: // Backend timeout / recvWindow
			mappedErr = ports.ErrTimeout
		case -1002, -1022, -2014, -2015: // Unauthorized / bad signature / bad key
			mappedErr = ports.ErrAuthenticationFailed
		case -1121: // Invalid symbol
			mappedErr = ports.ErrUnknownSymbol
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1120, -1125, -1127, -1128, -1130:
			mappedErr = ports.ErrInvalidRequest
		case 0: // Non-JSON error body, typically a gateway 5xx
			mappedErr = ports.ErrExchangeUnavailable
		default:
			mappedErr = ports.ErrUnknown
		}
		c.logger.Warn(ctx, fmt.Sprintf("%s failed with API error", operation), fields)
		return fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
	}

	var finalErr error
	msg := err.Error()
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	case strings.Contains(msg, "use of closed network connection"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset by peer"),
		strings.Contains(msg, "EOF"),
		strings.Contains(msg, "no such host"):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	default:
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Warn(ctx, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

func translateKline(bk *binance.Kline, symbol, interval string) (*domain.Candle, error) {
	if bk == nil {
		return nil, errors.New("received nil historical kline")
	}
	open, err := decimal.NewFromString(bk.Open)
	if err != nil {
		return nil, fmt.Errorf("parsing open price '%s': %w", bk.Open, err)
	}
	high, err := decimal.NewFromString(bk.High)
	if err != nil {
		return nil, fmt.Errorf("parsing high price '%s': %w", bk.High, err)
	}
	low, err := decimal.NewFromString(bk.Low)
	if err != nil {
		return nil, fmt.Errorf("parsing low price '%s': %w", bk.Low, err)
	}
	cls, err := decimal.NewFromString(bk.Close)
	if err != nil {
		return nil, fmt.Errorf("parsing close price '%s': %w", bk.Close, err)
	}
	vol, err := decimal.NewFromString(bk.Volume)
	if err != nil {
		return nil, fmt.Errorf("parsing volume '%s': %w", bk.Volume, err)
	}

	return &domain.Candle{
		Symbol:    symbol,
		Interval:  interval,
		OpenTime:  time.UnixMilli(bk.OpenTime).UTC(),
		CloseTime: time.UnixMilli(bk.CloseTime).UTC(),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     cls,
		Volume:    vol,
	}, nil
}
