package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"cryptoLedger/internal/domain"
	"cryptoLedger/internal/ports"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// setupTestStore connects to TEST_DATABASE_URL and empties every table.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := New(ctx, Config{DatabaseURL: url, Logger: &mockLogger{}})
	require.NoError(t, err)
	_, err = s.pool.Exec(ctx, `truncate trades, price_snapshots, ledger_rows, ledger_summary, candles, rolling_summary restart identity`)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNullHelpers(t *testing.T) {
	assert.Nil(t, nullNumeric(decimal.NullDecimal{}))
	got := nullNumeric(decimal.NewNullDecimal(d("-1.50")))
	require.NotNil(t, got)
	assert.Equal(t, "-1.5", *got)

	nd, err := parseNullNumeric(nil)
	require.NoError(t, err)
	assert.False(t, nd.Valid)
	s := "42.000"
	nd, err = parseNullNumeric(&s)
	require.NoError(t, err)
	assert.True(t, d("42").Equal(nd.Decimal))
	bad := "x"
	_, err = parseNullNumeric(&bad)
	assert.Error(t, err)

	assert.Nil(t, nullTime(time.Time{}))
	assert.True(t, fromNullTime(nil).IsZero())

	var a, b decimal.Decimal
	require.NoError(t, decimals([]string{"1", "2.5"}, &a, &b))
	assert.True(t, d("2.5").Equal(b))
}

func TestNew_RequiresURL(t *testing.T) {
	_, err := New(context.Background(), Config{Logger: &mockLogger{}})
	assert.Error(t, err)
}

func TestStore_TradesAndPrices(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	ts := time.Date(2024, 2, 1, 9, 30, 0, 0, time.UTC)
	_, err := s.AppendTrade(ctx, &domain.RawTrade{Ref: "r1", Time: ts, Symbol: "BTC", Side: "BUY", Price: "100", Quantity: "1"})
	require.NoError(t, err)
	_, err = s.AppendTrade(ctx, &domain.RawTrade{Symbol: "ETH", Side: "SELL", Price: "oops", Quantity: "1"})
	require.NoError(t, err)

	trades, err := s.ListTrades(ctx)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.True(t, ts.Equal(trades[0].Time))
	assert.True(t, trades[1].Time.IsZero())
	assert.Equal(t, "oops", trades[1].Price)

	require.NoError(t, s.SaveSnapshot(ctx, domain.PriceSnapshot{TakenAt: ts, Prices: map[string]decimal.Decimal{"BTC": d("1"), "ETH": d("2")}}))
	require.NoError(t, s.SaveSnapshot(ctx, domain.PriceSnapshot{TakenAt: ts.Add(time.Minute), Prices: map[string]decimal.Decimal{"BTC": d("1.5")}}))
	book, err := s.LatestPrices(ctx)
	require.NoError(t, err)
	assert.Len(t, book, 1)
	assert.True(t, d("1.5").Equal(book["BTC"]))
}

func TestStore_LedgerAndCandles(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	rows := []domain.LedgerRow{{
		TradeRecord:     domain.TradeRecord{ID: 1, Symbol: "BTC", Side: domain.Buy, Price: d("100"), Quantity: d("2")},
		TradeAmount:     d("200"),
		RunningPosition: d("2"),
		AverageCost:     d("100"),
	}}
	summary := []domain.SummaryRow{{Symbol: "BTC", Position: d("2"), AverageCost: d("100"), TradeCount: 1}}
	require.NoError(t, s.ReplaceLedger(ctx, rows, summary))
	require.NoError(t, s.ReplaceLedger(ctx, rows, summary))

	gotRows, err := s.LedgerRows(ctx)
	require.NoError(t, err)
	require.Len(t, gotRows, 1)
	assert.False(t, gotRows[0].FloatingPnL.Valid)
	assert.True(t, d("200").Equal(gotRows[0].TradeAmount))

	gotSummary, err := s.SummaryRows(ctx)
	require.NoError(t, err)
	require.Len(t, gotSummary, 1)
	assert.False(t, gotSummary[0].LatestPrice.Valid)

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &domain.Candle{Symbol: "BTC", Interval: "1m", OpenTime: t0, CloseTime: t0.Add(time.Minute), Open: d("1"), High: d("2"), Low: d("1"), Close: d("1.5"), Volume: d("3")}
	require.NoError(t, s.UpsertCandles(ctx, []*domain.Candle{c}))
	c.Close = d("1.75")
	require.NoError(t, s.UpsertCandles(ctx, []*domain.Candle{c}))
	got, err := s.CandlesBetween(ctx, "BTC", "1m", t0, t0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, d("1.75").Equal(got[0].Close))

	require.NoError(t, s.ReplaceRollingSummaries(ctx, []domain.RollingSummary{{Symbol: "BTC", WindowStart: t0, WindowEnd: t0, ChangePct: d("0"), EMA: decimal.NewNullDecimal(d("1.6")), CandleCount: 1}}))
	sums, err := s.RollingSummaries(ctx)
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.True(t, sums[0].EMA.Valid)
	assert.False(t, sums[0].SMA.Valid)
}

func placeholderRows(trades []domain.RawTrade) []domain.LedgerRow {
	rows := make([]domain.LedgerRow, len(trades))
	for i, tr := range trades {
		rows[i] = domain.LedgerRow{TradeRecord: domain.TradeRecord{ID: tr.ID, Symbol: tr.Symbol, Side: domain.Buy}}
	}
	return rows
}

func TestStore_WithLedgerLockSerializesAcrossStores(t *testing.T) {
	scheduler := setupTestStore(t)
	ctx := context.Background()
	cli, err := New(ctx, Config{DatabaseURL: os.Getenv("TEST_DATABASE_URL"), Logger: &mockLogger{}})
	require.NoError(t, err)
	t.Cleanup(func() { cli.Close() })

	_, err = scheduler.AppendTrade(ctx, &domain.RawTrade{Symbol: "BTC", Side: "BUY", Price: "1", Quantity: "1"})
	require.NoError(t, err)

	cliDone := make(chan error, 1)
	err = scheduler.WithLedgerLock(ctx, func(ctx context.Context, sess ports.LedgerSession) error {
		trades, err := sess.ListTrades(ctx)
		if err != nil {
			return err
		}
		go func() {
			if _, err := cli.AppendTrade(ctx, &domain.RawTrade{Symbol: "ETH", Side: "BUY", Price: "2", Quantity: "1"}); err != nil {
				cliDone <- err
				return
			}
			cliDone <- cli.WithLedgerLock(ctx, func(ctx context.Context, sess ports.LedgerSession) error {
				trades, err := sess.ListTrades(ctx)
				if err != nil {
					return err
				}
				return sess.ReplaceLedger(ctx, placeholderRows(trades), nil)
			})
		}()
		select {
		case err := <-cliDone:
			t.Errorf("second rebuild finished while the lock was held: %v", err)
		case <-time.After(200 * time.Millisecond):
		}
		return sess.ReplaceLedger(ctx, placeholderRows(trades), nil)
	})
	require.NoError(t, err)

	select {
	case err := <-cliDone:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("second rebuild never acquired the lock")
	}
	rows, err := scheduler.LedgerRows(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
