package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoLedger/internal/domain"
	"cryptoLedger/internal/ports"
)

// Mock implementations
type mockLogger struct {
	mu        sync.Mutex
	debugMsgs []string
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debugMsgs = append(m.debugMsgs, msg)
}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

func (m *mockLogger) warnings() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.warnMsgs...)
}

// mockStore is an in-memory TradeLog, PriceStore, LedgerSink, LedgerLocker and CandleStore.
// Services sharing one mockStore behave like processes sharing one database.
type mockStore struct {
	mu        sync.Mutex
	lock      sync.Mutex // Store-wide rebuild lock
	trades    []domain.RawTrade
	snapshots []domain.PriceSnapshot
	rows      []domain.LedgerRow
	summary   []domain.SummaryRow
	candles   []*domain.Candle
	rolling   []domain.RollingSummary
	replaced  int
	writes    []int // Row count of every ReplaceLedger, in commit order

	afterList func() // Runs once after the next ListTrades returns its rows
	listErr   error
	latestErr error
	writeErr  error
	saveErr   error
	lockErr   error
}

func (m *mockStore) WithLedgerLock(ctx context.Context, fn func(ctx context.Context, s ports.LedgerSession) error) error {
	if m.lockErr != nil {
		return m.lockErr
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	return fn(ctx, m)
}

func (m *mockStore) AppendTrade(ctx context.Context, trade *domain.RawTrade) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	trade.ID = int64(len(m.trades) + 1)
	m.trades = append(m.trades, *trade)
	return trade.ID, nil
}

func (m *mockStore) ListTrades(ctx context.Context) ([]domain.RawTrade, error) {
	m.mu.Lock()
	if m.listErr != nil {
		m.mu.Unlock()
		return nil, m.listErr
	}
	trades := append([]domain.RawTrade(nil), m.trades...)
	hook := m.afterList
	m.afterList = nil
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	return trades, nil
}

func (m *mockStore) SaveSnapshot(ctx context.Context, snap domain.PriceSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.snapshots = append(m.snapshots, snap)
	return nil
}

func (m *mockStore) LatestPrices(ctx context.Context) (domain.PriceBook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latestErr != nil {
		return nil, m.latestErr
	}
	if len(m.snapshots) == 0 {
		return domain.PriceBook{}, nil
	}
	return m.snapshots[len(m.snapshots)-1].Book(), nil
}

func (m *mockStore) ReplaceLedger(ctx context.Context, rows []domain.LedgerRow, summary []domain.SummaryRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.rows, m.summary = rows, summary
	m.replaced++
	m.writes = append(m.writes, len(rows))
	return nil
}

func (m *mockStore) UpsertCandles(ctx context.Context, candles []*domain.Candle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candles = append(m.candles, candles...)
	return nil
}

func (m *mockStore) CandlesBetween(ctx context.Context, symbol, interval string, start, end time.Time) ([]*domain.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Candle
	for _, c := range m.candles {
		if c.Symbol == symbol && c.Interval == interval && !c.OpenTime.Before(start) && !c.OpenTime.After(end) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockStore) ReplaceRollingSummaries(ctx context.Context, summaries []domain.RollingSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolling = summaries
	return nil
}

func (m *mockStore) RollingSummaries(ctx context.Context) ([]domain.RollingSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rolling, nil
}

type mockFeed struct {
	prices     map[string]decimal.Decimal
	candles    map[string][]*domain.Candle
	candleErr  map[string]error
	spotCalls  int
	candleReqs []string
}

func (m *mockFeed) GetSpotPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	m.spotCalls++
	p, ok := m.prices[symbol]
	if !ok {
		return decimal.Zero, ports.ErrPriceUnavailable
	}
	return p, nil
}

func (m *mockFeed) GetCandles(ctx context.Context, symbol, interval string, start, end time.Time) ([]*domain.Candle, error) {
	m.candleReqs = append(m.candleReqs, symbol)
	if err := m.candleErr[symbol]; err != nil {
		return nil, err
	}
	return m.candles[symbol], nil
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// --- LedgerService ---

func TestNewLedgerService(t *testing.T) {
	store := &mockStore{}
	log := &mockLogger{}

	_, err := NewLedgerService(nil, store, domain.WeightedAverage)
	assert.Error(t, err)

	_, err = NewLedgerService(log, store, "lifo")
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	svc, err := NewLedgerService(log, store, "")
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestLedgerService_Rebuild(t *testing.T) {
	store := &mockStore{
		trades: []domain.RawTrade{
			{ID: 1, Symbol: "BTC", Side: "BUY", Quantity: "1", Price: "100"},
			{ID: 2, Symbol: "BTC", Side: "BUY", Quantity: "oops", Price: "100"},
			{ID: 3, Symbol: "BTC", Side: "SELL", Quantity: "0.5", Price: "120"},
			{ID: 4, Symbol: "ETH", Side: "BUY", Quantity: "2", Price: "10"},
		},
		snapshots: []domain.PriceSnapshot{
			{TakenAt: fixedNow, Prices: map[string]decimal.Decimal{"BTC": d("130")}},
		},
	}
	log := &mockLogger{}
	svc, err := NewLedgerService(log, store, domain.WeightedAverage)
	require.NoError(t, err)

	res, err := svc.Rebuild(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Rows, 3)
	assert.Equal(t, res.Rows, store.rows)
	assert.Equal(t, res.Summary, store.summary)
	assert.Equal(t, 1, store.replaced)
	assert.Equal(t, []string{"Skipping invalid trade"}, log.warnings())

	require.Len(t, store.summary, 2)
	btc := store.summary[0]
	assert.True(t, btc.FloatingPnL.Valid)
	assert.True(t, d("15").Equal(btc.FloatingPnL.Decimal), btc.FloatingPnL.Decimal.String())
	assert.False(t, store.summary[1].FloatingPnL.Valid, "ETH has no snapshot price")
}

func TestLedgerService_RebuildErrors(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name    string
		store   *mockStore
		wantErr error
	}{
		{"trade log", &mockStore{listErr: boom}, ports.ErrTradeLogUnavailable},
		{"price store", &mockStore{latestErr: boom}, ports.ErrPriceStoreUnavailable},
		{"ledger write", &mockStore{writeErr: boom}, ports.ErrLedgerWriteFailed},
		{"rebuild lock", &mockStore{lockErr: boom}, ports.ErrLedgerLockFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewLedgerService(&mockLogger{}, tt.store, domain.WeightedAverage)
			require.NoError(t, err)

			_, err = svc.Rebuild(context.Background())
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, boom)
			assert.Zero(t, tt.store.replaced)
		})
	}
}

func TestLedgerService_RebuildsInOtherProcessWaitForLock(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{
		trades: []domain.RawTrade{{ID: 1, Symbol: "BTC", Side: "BUY", Quantity: "1", Price: "100"}},
	}
	// Two services on one store stand in for the scheduler and ledgerctl.
	scheduler, err := NewLedgerService(&mockLogger{}, store, domain.WeightedAverage)
	require.NoError(t, err)
	cli, err := NewLedgerService(&mockLogger{}, store, domain.WeightedAverage)
	require.NoError(t, err)

	cliDone := make(chan error, 1)
	store.afterList = func() {
		// A trade lands and ledgerctl rebuilds between the scheduler's read and its write.
		_, err := store.AppendTrade(ctx, &domain.RawTrade{Symbol: "ETH", Side: "BUY", Quantity: "2", Price: "10"})
		assert.NoError(t, err)
		go func() {
			_, err := cli.Rebuild(ctx)
			cliDone <- err
		}()
		select {
		case <-cliDone:
			t.Error("second rebuild finished while the first held the rebuild lock")
		case <-time.After(50 * time.Millisecond):
		}
	}

	res, err := scheduler.Rebuild(ctx)
	require.NoError(t, err)
	assert.Len(t, res.Rows, 1)

	select {
	case err := <-cliDone:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("second rebuild never completed")
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, []int{1, 2}, store.writes)
	assert.Len(t, store.rows, len(store.trades), "stored ledger must cover the whole trade log")
}

func TestLedgerService_ConcurrentRebuildsNeverWriteOlderLedger(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{}
	services := make([]*LedgerService, 3)
	for i := range services {
		svc, err := NewLedgerService(&mockLogger{}, store, domain.WeightedAverage)
		require.NoError(t, err)
		services[i] = svc
	}

	const rounds = 20
	var wg sync.WaitGroup
	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := store.AppendTrade(ctx, &domain.RawTrade{Symbol: "SOL", Side: "BUY", Quantity: "1", Price: "150"})
			assert.NoError(t, err)
		}()
		go func(svc *LedgerService) {
			defer wg.Done()
			_, err := svc.Rebuild(ctx)
			assert.NoError(t, err)
		}(services[i%len(services)])
	}
	wg.Wait()

	_, err := services[0].Rebuild(ctx)
	require.NoError(t, err)

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.writes, rounds+1)
	for i := 1; i < len(store.writes); i++ {
		assert.GreaterOrEqualf(t, store.writes[i], store.writes[i-1], "write %d replaced a newer ledger with an older one", i)
	}
	assert.Equal(t, rounds, store.writes[len(store.writes)-1])
}

// --- SnapshotService ---

func TestSnapshotService_SnapshotOnce(t *testing.T) {
	store := &mockStore{}
	feed := &mockFeed{prices: map[string]decimal.Decimal{"BTC": d("65000"), "SOL": d("150")}}
	log := &mockLogger{}

	svc, err := NewSnapshotService(log, feed, store, []string{"BTC", "ETH", "SOL"})
	require.NoError(t, err)
	svc.now = func() time.Time { return fixedNow }

	snap, err := svc.SnapshotOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fixedNow, snap.TakenAt)
	assert.Equal(t, []string{"BTC", "SOL"}, snap.Symbols())
	assert.Equal(t, 3, feed.spotCalls)
	require.Len(t, store.snapshots, 1)
	assert.Len(t, log.warnings(), 1)
}

func TestSnapshotService_NothingFetched(t *testing.T) {
	store := &mockStore{}
	svc, err := NewSnapshotService(&mockLogger{}, &mockFeed{}, store, []string{"BTC"})
	require.NoError(t, err)

	_, err = svc.SnapshotOnce(context.Background())
	assert.ErrorIs(t, err, ports.ErrPriceUnavailable)
	assert.Empty(t, store.snapshots)
}

func TestNewSnapshotService_RequiresAssets(t *testing.T) {
	_, err := NewSnapshotService(&mockLogger{}, &mockFeed{}, &mockStore{}, nil)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}

// --- TradeEntryService ---

func TestTradeEntryService_AddTrade(t *testing.T) {
	store := &mockStore{}
	svc, err := NewTradeEntryService(&mockLogger{}, store)
	require.NoError(t, err)
	svc.now = func() time.Time { return fixedNow }
	svc.newRef = func(time.Time) string { return "REF-1" }

	got, err := svc.AddTrade(context.Background(), domain.RawTrade{
		Symbol:   " btc ",
		Side:     "buy ",
		Price:    " 100.5",
		Quantity: "0.25 ",
		Note:     "  dip  ",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), got.ID)
	assert.Equal(t, "REF-1", got.Ref)
	assert.Equal(t, fixedNow, got.Time)
	assert.Equal(t, "BTC", got.Symbol)
	assert.Equal(t, "BUY", got.Side)
	assert.Equal(t, "100.5", got.Price)
	assert.Equal(t, "0.25", got.Quantity)
	assert.Equal(t, "dip", got.Note)

	listed, err := svc.ListTrades(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.RawTrade{got}, listed)
}

func TestTradeEntryService_KeepsGivenTimeAndRef(t *testing.T) {
	store := &mockStore{}
	svc, err := NewTradeEntryService(&mockLogger{}, store)
	require.NoError(t, err)

	when := time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)
	got, err := svc.AddTrade(context.Background(), domain.RawTrade{
		Ref: "manual", Time: when, Symbol: "ETH", Side: "SELL", Price: "x", Quantity: "1",
	})
	require.NoError(t, err)
	assert.Equal(t, "manual", got.Ref)
	assert.Equal(t, when, got.Time)
	assert.Equal(t, "x", got.Price, "malformed values are left for the rebuild to skip")
}

// --- CandleService ---

func candle(symbol string, open time.Time, o, h, l, c string) *domain.Candle {
	return &domain.Candle{
		Symbol: symbol, Interval: "1m", OpenTime: open, CloseTime: open.Add(time.Minute - time.Millisecond),
		Open: d(o), High: d(h), Low: d(l), Close: d(c), Volume: d("1"),
	}
}

func TestCandleService_RefreshAndRollup(t *testing.T) {
	store := &mockStore{}
	start := fixedNow.Add(-30 * time.Minute)
	feed := &mockFeed{
		candles: map[string][]*domain.Candle{
			"BTC": {
				candle("BTC", start, "100", "110", "95", "105"),
				candle("BTC", start.Add(time.Minute), "105", "120", "100", "110"),
			},
		},
		candleErr: map[string]error{"ETH": ports.ErrRateLimited},
	}
	log := &mockLogger{}

	svc, err := NewCandleService(log, feed, store, CandleConfig{Assets: []string{"BTC", "ETH"}, Window: time.Hour})
	require.NoError(t, err)
	svc.now = func() time.Time { return fixedNow }

	err = svc.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrRateLimited)
	assert.Equal(t, []string{"BTC", "ETH"}, feed.candleReqs)
	assert.Len(t, store.candles, 2)

	summaries, err := svc.Rollup(context.Background(), fixedNow)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	s := summaries[0]
	assert.Equal(t, "BTC", s.Symbol)
	assert.Equal(t, 2, s.CandleCount)
	assert.True(t, d("100").Equal(s.Open))
	assert.True(t, d("110").Equal(s.Close))
	assert.True(t, d("120").Equal(s.High))
	assert.True(t, d("95").Equal(s.Low))
	assert.True(t, d("10").Equal(s.ChangePct), s.ChangePct.String())
	assert.False(t, s.SMA.Valid, "too few candles for the default period")
	assert.Equal(t, summaries, store.rolling)
}

func TestCandleService_Backfill(t *testing.T) {
	store := &mockStore{}
	feed := &mockFeed{candles: map[string][]*domain.Candle{
		"SOL": {candle("SOL", fixedNow, "1", "1", "1", "1")},
	}}
	svc, err := NewCandleService(&mockLogger{}, feed, store, CandleConfig{Assets: []string{"SOL"}})
	require.NoError(t, err)

	n, err := svc.Backfill(context.Background(), "SOL", "", fixedNow, fixedNow.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, store.candles, 1)
}

// --- Scheduler ---

type countingRunner struct {
	started chan struct{}
}

func (r *countingRunner) Run(ctx context.Context) error {
	close(r.started)
	<-ctx.Done()
	return ctx.Err()
}

func TestScheduler_RunsJobsUntilCancelled(t *testing.T) {
	store := &mockStore{
		trades: []domain.RawTrade{{ID: 1, Symbol: "BTC", Side: "BUY", Quantity: "1", Price: "100"}},
	}
	feed := &mockFeed{prices: map[string]decimal.Decimal{"BTC": d("110")}}
	log := &mockLogger{}

	snaps, err := NewSnapshotService(log, feed, store, []string{"BTC"})
	require.NoError(t, err)
	ledgerSvc, err := NewLedgerService(log, store, domain.WeightedAverage)
	require.NoError(t, err)
	runner := &countingRunner{started: make(chan struct{})}

	sched, err := NewScheduler(log, snaps, nil, ledgerSvc, SchedulerConfig{
		SnapshotInterval: 10 * time.Millisecond,
		Background:       []Runner{runner},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	<-runner.started
	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.replaced >= 2
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	require.NotEmpty(t, store.summary)
	assert.True(t, store.summary[0].FloatingPnL.Valid)
}

func TestNewScheduler_Validation(t *testing.T) {
	store := &mockStore{}
	log := &mockLogger{}
	snaps, err := NewSnapshotService(log, &mockFeed{}, store, []string{"BTC"})
	require.NoError(t, err)
	ledgerSvc, err := NewLedgerService(log, store, "")
	require.NoError(t, err)
	candleSvc, err := NewCandleService(log, &mockFeed{}, store, CandleConfig{Assets: []string{"BTC"}})
	require.NoError(t, err)

	_, err = NewScheduler(log, snaps, nil, ledgerSvc, SchedulerConfig{})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	_, err = NewScheduler(log, snaps, candleSvc, ledgerSvc, SchedulerConfig{SnapshotInterval: time.Second})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	_, err = NewScheduler(log, nil, nil, ledgerSvc, SchedulerConfig{SnapshotInterval: time.Second})
	assert.Error(t, err)
}
