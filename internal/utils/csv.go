package utils

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"cryptoLedger/internal/domain"

	"github.com/shopspring/decimal"
)

// Unavailable is written in place of a value that could not be computed.
const Unavailable = "N/A"

// WriteCandles writes candles as CSV to w.
func WriteCandles(w io.Writer, candles []*domain.Candle) error {
	writer := csv.NewWriter(w)
	writer.Write([]string{"open_time", "close_time", "symbol", "interval", "open", "high", "low", "close", "volume"})

	for _, k := range candles {
		writer.Write([]string{
			k.OpenTime.UTC().Format(time.RFC3339),
			k.CloseTime.UTC().Format(time.RFC3339),
			k.Symbol,
			k.Interval,
			k.Open.String(),
			k.High.String(),
			k.Low.String(),
			k.Close.String(),
			k.Volume.String(),
		})
	}
	writer.Flush()
	return writer.Error()
}

// WriteLedgerRows writes ledger rows as CSV to w.
func WriteLedgerRows(w io.Writer, rows []domain.LedgerRow) error {
	writer := csv.NewWriter(w)
	writer.Write([]string{
		"id", "ref", "time", "symbol", "side", "price", "quantity", "trade_amount",
		"running_position", "average_cost", "floating_pnl", "realized_pnl", "cumulative_realized_pnl", "note",
	})

	for _, r := range rows {
		writer.Write([]string{
			strconv.FormatInt(r.ID, 10),
			r.Ref,
			formatTime(r.Time),
			r.Symbol,
			string(r.Side),
			r.Price.String(),
			r.Quantity.String(),
			r.TradeAmount.String(),
			r.RunningPosition.String(),
			r.AverageCost.String(),
			FormatNullable(r.FloatingPnL),
			r.RealizedPnL.String(),
			r.CumulativeRealizedPnL.String(),
			r.Note,
		})
	}
	writer.Flush()
	return writer.Error()
}

// WriteSummaryRows writes per-symbol summary rows as CSV to w.
func WriteSummaryRows(w io.Writer, rows []domain.SummaryRow) error {
	writer := csv.NewWriter(w)
	writer.Write([]string{"symbol", "position", "average_cost", "latest_price", "floating_pnl", "realized_pnl", "trades"})

	for _, s := range rows {
		writer.Write([]string{
			s.Symbol,
			s.Position.String(),
			s.AverageCost.String(),
			FormatNullable(s.LatestPrice),
			FormatNullable(s.FloatingPnL),
			s.RealizedPnL.String(),
			strconv.Itoa(s.TradeCount),
		})
	}
	writer.Flush()
	return writer.Error()
}

// WriteCandlesToCSV writes candles to filename, creating its directory.
func WriteCandlesToCSV(candles []*domain.Candle, filename string) error {
	return writeFile(filename, func(w io.Writer) error { return WriteCandles(w, candles) })
}

// WriteLedgerToCSV writes ledger rows to filename, creating its directory.
func WriteLedgerToCSV(rows []domain.LedgerRow, filename string) error {
	return writeFile(filename, func(w io.Writer) error { return WriteLedgerRows(w, rows) })
}

// WriteSummaryToCSV writes summary rows to filename, creating its directory.
func WriteSummaryToCSV(rows []domain.SummaryRow, filename string) error {
	return writeFile(filename, func(w io.Writer) error { return WriteSummaryRows(w, rows) })
}

// FormatNullable renders an invalid value as Unavailable.
func FormatNullable(v decimal.NullDecimal) string {
	if !v.Valid {
		return Unavailable
	}
	return v.Decimal.String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func writeFile(filename string, write func(io.Writer) error) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory for %s: %w", filename, err)
		}
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := write(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
