package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cryptoLedger/internal/domain"
	"cryptoLedger/internal/id"
	"cryptoLedger/internal/ports"
)

// TradeEntryService appends manually entered trades to the trade log.
type TradeEntryService struct {
	logger ports.Logger
	log    ports.TradeLog
	now    func() time.Time
	newRef func(time.Time) string
}

// NewTradeEntryService creates a TradeEntryService.
func NewTradeEntryService(logger ports.Logger, log ports.TradeLog) (*TradeEntryService, error) {
	if logger == nil || log == nil {
		return nil, fmt.Errorf("missing required dependencies for TradeEntryService")
	}
	return &TradeEntryService{logger: logger, log: log, now: time.Now, newRef: id.At}, nil
}

// AddTrade trims the entered fields, fills a missing time and reference, and appends the trade.
// Values are not validated here; the ledger rebuild skips anything malformed.
func (s *TradeEntryService) AddTrade(ctx context.Context, raw domain.RawTrade) (domain.RawTrade, error) {
	t := domain.RawTrade{
		Ref:      strings.TrimSpace(raw.Ref),
		Time:     raw.Time,
		Symbol:   domain.NormalizeSymbol(raw.Symbol),
		Side:     strings.ToUpper(strings.TrimSpace(raw.Side)),
		Price:    strings.TrimSpace(raw.Price),
		Quantity: strings.TrimSpace(raw.Quantity),
		Note:     strings.TrimSpace(raw.Note),
	}
	if t.Time.IsZero() {
		t.Time = s.now().UTC()
	}
	if t.Ref == "" {
		t.Ref = s.newRef(t.Time)
	}

	if _, err := s.log.AppendTrade(ctx, &t); err != nil {
		return domain.RawTrade{}, fmt.Errorf("add trade: %w", err)
	}
	s.logger.Info(ctx, "Trade recorded", map[string]interface{}{
		"tradeID":  t.ID,
		"ref":      t.Ref,
		"symbol":   t.Symbol,
		"side":     t.Side,
		"price":    t.Price,
		"quantity": t.Quantity,
	})
	return t, nil
}

// ListTrades returns the trade log in entry order.
func (s *TradeEntryService) ListTrades(ctx context.Context) ([]domain.RawTrade, error) {
	trades, err := s.log.ListTrades(ctx)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w: %w", ports.ErrTradeLogUnavailable, err)
	}
	return trades, nil
}
