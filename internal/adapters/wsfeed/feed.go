// Package wsfeed serves spot prices from the Binance combined bookTicker stream.
package wsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"cryptoLedger/internal/domain"
	"cryptoLedger/internal/ports"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const (
	defaultStreamURL  = "wss://stream.binance.com:9443/stream"
	testnetStreamURL  = "wss://stream.testnet.binance.vision/stream"
	defaultStale      = 10 * time.Second
	defaultReconnect  = 2 * time.Second
	readDeadlineSlack = 10 * time.Second
)

// Config holds configuration for the streaming feed.
type Config struct {
	StreamURL  string // Combined stream endpoint; testnet/production default when empty
	UseTestnet bool
	Logger     ports.Logger

	// Pairs maps asset symbols to exchange pairs, e.g. BTC -> BTCUSDT.
	Pairs map[string]string

	// Candles serves GetCandles, streams carry no history.
	Candles ports.CandleSource

	StaleAfter     time.Duration
	ReconnectDelay time.Duration
}

type quote struct {
	mid     decimal.Decimal
	updated time.Time
}

// Feed implements ports.PriceFeed. Spot prices come from the stream, candles from Candles.
type Feed struct {
	url       string
	logger    ports.Logger
	candles   ports.CandleSource
	stale     time.Duration
	reconnect time.Duration
	now       func() time.Time

	pairToAsset map[string]string
	assetToPair map[string]string

	mu     sync.RWMutex
	quotes map[string]quote // keyed by asset
}

// New creates a streaming feed. Run must be started for prices to arrive.
func New(cfg Config) (*Feed, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for stream feed")
	}
	if len(cfg.Pairs) == 0 {
		return nil, fmt.Errorf("%w: stream feed needs at least one pair", ports.ErrConfigurationError)
	}

	url := cfg.StreamURL
	if url == "" {
		url = defaultStreamURL
		if cfg.UseTestnet {
			url = testnetStreamURL
		}
	}

	f := &Feed{
		url:         url,
		logger:      cfg.Logger,
		candles:     cfg.Candles,
		stale:       cfg.StaleAfter,
		reconnect:   cfg.ReconnectDelay,
		now:         time.Now,
		pairToAsset: make(map[string]string, len(cfg.Pairs)),
		assetToPair: make(map[string]string, len(cfg.Pairs)),
		quotes:      make(map[string]quote),
	}
	if f.stale <= 0 {
		f.stale = defaultStale
	}
	if f.reconnect <= 0 {
		f.reconnect = defaultReconnect
	}
	for asset, pair := range cfg.Pairs {
		a := domain.NormalizeSymbol(asset)
		p := strings.ToUpper(pair)
		f.assetToPair[a] = p
		f.pairToAsset[p] = a
	}
	return f, nil
}

// streamURL builds the combined stream URL, e.g. .../stream?streams=btcusdt@bookTicker/ethusdt@bookTicker.
func (f *Feed) streamURL() string {
	streams := make([]string, 0, len(f.assetToPair))
	for _, pair := range f.assetToPair {
		streams = append(streams, strings.ToLower(pair)+"@bookTicker")
	}
	sort.Strings(streams)
	return f.url + "?streams=" + strings.Join(streams, "/")
}

// Run connects to the stream and keeps reconnecting until ctx is done.
func (f *Feed) Run(ctx context.Context) error {
	for {
		if err := f.connect(ctx); err != nil && ctx.Err() == nil {
			f.logger.Warn(ctx, "price stream disconnected", map[string]interface{}{"error": err.Error()})
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.reconnect):
			f.logger.Info(ctx, "price stream reconnecting")
		}
	}
}

type combinedMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type bookTicker struct {
	Symbol       string `json:"s"`
	BestBidPrice string `json:"b"`
	BestAskPrice string `json:"a"`
}

func (f *Feed) connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.streamURL(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Unblock ReadMessage when ctx is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	f.logger.Info(ctx, "price stream connected", map[string]interface{}{"pairs": len(f.assetToPair)})
	return f.readLoop(conn)
}

// messageReader is the part of *websocket.Conn the read loop uses.
type messageReader interface {
	SetReadDeadline(t time.Time) error
	ReadMessage() (messageType int, p []byte, err error)
}

// readLoop handles messages until a read fails. A silent stream fails after readDeadlineSlack.
func (f *Feed) readLoop(conn messageReader) error {
	for {
		if err := conn.SetReadDeadline(time.Now().Add(readDeadlineSlack)); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		f.handleMessage(msg)
	}
}

func (f *Feed) handleMessage(msg []byte) {
	var env combinedMessage
	if err := json.Unmarshal(msg, &env); err != nil || len(env.Data) == 0 {
		return
	}
	var ticker bookTicker
	if err := json.Unmarshal(env.Data, &ticker); err != nil {
		return
	}

	asset, ok := f.pairToAsset[strings.ToUpper(ticker.Symbol)]
	if !ok {
		return
	}
	bid, err1 := decimal.NewFromString(ticker.BestBidPrice)
	ask, err2 := decimal.NewFromString(ticker.BestAskPrice)
	if err1 != nil || err2 != nil || !bid.IsPositive() || !ask.IsPositive() {
		return
	}

	mid := bid.Add(ask).Div(decimal.NewFromInt(2))
	f.mu.Lock()
	f.quotes[asset] = quote{mid: mid, updated: f.now()}
	f.mu.Unlock()
}

// GetSpotPrice returns the latest mid price for the asset, unless it is stale.
func (f *Feed) GetSpotPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	asset := domain.NormalizeSymbol(symbol)
	if _, ok := f.assetToPair[asset]; !ok {
		return decimal.Zero, fmt.Errorf("GetSpotPrice failed: %w: %s is not streamed", ports.ErrUnknownSymbol, asset)
	}

	f.mu.RLock()
	q, ok := f.quotes[asset]
	f.mu.RUnlock()
	if !ok {
		return decimal.Zero, fmt.Errorf("GetSpotPrice failed: %w: no quote yet for %s", ports.ErrPriceUnavailable, asset)
	}
	if age := f.now().Sub(q.updated); age > f.stale {
		return decimal.Zero, fmt.Errorf("GetSpotPrice failed: %w: quote for %s is %s old", ports.ErrPriceUnavailable, asset, age.Round(time.Millisecond))
	}
	return q.mid, nil
}

// GetCandles delegates to the configured candle source.
func (f *Feed) GetCandles(ctx context.Context, symbol, interval string, start, end time.Time) ([]*domain.Candle, error) {
	if f.candles == nil {
		return nil, fmt.Errorf("GetCandles failed: %w: stream feed has no candle source", ports.ErrConfigurationError)
	}
	return f.candles.GetCandles(ctx, symbol, interval, start, end)
}
