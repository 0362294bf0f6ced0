// Package persist implements durable storage for finalized candles and
// emitted signals, grounded on internal/store/sqlite/writer.go's
// WAL-mode, single-writer-connection SQLite pattern (spec §6).
package persist

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"

	"indexpanic-sysv1/internal/model"
)

// SQLiteStore implements model.CandleStore and model.SignalStore against a
// single SQLite database file opened in WAL mode with one writer
// connection, matching the teacher's single-writer-goroutine convention.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite database at path and ensures
// the schema from spec §6 exists.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("persist: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("persist: schema: %w", err)
	}

	slog.Info("opened sqlite database", "path", path)
	return &SQLiteStore{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			instrument_key   TEXT    NOT NULL,
			candle_timestamp TIMESTAMP NOT NULL,
			open             NUM,
			high             NUM,
			low              NUM,
			close            NUM,
			previous_close   NUM,
			volume           INT,
			oi               INT,
			oi_change        INT,
			oi_change_pct    NUM,
			vwap             NUM,
			support_level_1  NUM, support_level_2  NUM, support_level_3  NUM,
			support_qty_1    INT, support_qty_2    INT, support_qty_3    INT,
			support          NUM,
			resistance_level_1 NUM, resistance_level_2 NUM, resistance_level_3 NUM,
			resistance_qty_1   INT, resistance_qty_2   INT, resistance_qty_3   INT,
			resistance       NUM,
			tbq              INT,
			tsq              INT,
			order_book_ratio NUM,
			bid_ask_spread   NUM,
			big_bid_count    INT,
			big_ask_count    INT,
			avg_delta NUM, avg_gamma NUM, avg_theta NUM, avg_vega NUM, avg_rho NUM, avg_iv NUM,
			gamma_spike      NUM,
			candle_score     NUM,
			tick_count       INT,
			UNIQUE (instrument_key, candle_timestamp)
		);

		CREATE TABLE IF NOT EXISTS signals (
			id                  INTEGER PRIMARY KEY AUTOINCREMENT,
			instrument_key      TEXT NOT NULL,
			candle_timestamp    TIMESTAMP NOT NULL,
			signal_timestamp    TIMESTAMP NOT NULL,
			seller_state        TEXT NOT NULL,
			recommendation      TEXT NOT NULL,
			confidence          NUM,
			panic_score         NUM,
			short_covering      BOOLEAN,
			gamma_spike_detected BOOLEAN,
			order_book_panic    BOOLEAN,
			liquidity_drying    BOOLEAN,
			strong_buying       BOOLEAN,
			fired_signals       TEXT,
			entry_price         NUM,
			support             NUM,
			resistance          NUM,
			candle_score        NUM,
			oi_change           INT,
			oi_change_pct       NUM
		);
	`)
	return err
}

// InsertCandle performs an idempotent upsert keyed on (instrument_key,
// candle_timestamp), satisfying model.CandleStore's at-least-once contract.
func (s *SQLiteStore) InsertCandle(ctx context.Context, c model.Candle) error {
	var previousClose, oiChangePct interface{}
	if c.PreviousClose != nil {
		previousClose = c.PreviousClose.String()
	}
	if c.OIChangePct != nil {
		oiChangePct = c.OIChangePct.String()
	}
	var oiChange interface{}
	if c.OIChange != nil {
		oiChange = *c.OIChange
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO candles (
			instrument_key, candle_timestamp, open, high, low, close, previous_close,
			volume, oi, oi_change, oi_change_pct, vwap,
			support_level_1, support_level_2, support_level_3,
			support_qty_1, support_qty_2, support_qty_3, support,
			resistance_level_1, resistance_level_2, resistance_level_3,
			resistance_qty_1, resistance_qty_2, resistance_qty_3, resistance,
			tbq, tsq, order_book_ratio, bid_ask_spread, big_bid_count, big_ask_count,
			avg_delta, avg_gamma, avg_theta, avg_vega, avg_rho, avg_iv,
			gamma_spike, candle_score, tick_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.InstrumentKey, c.CandleTimestamp, c.Open.String(), c.High.String(), c.Low.String(), c.Close.String(), previousClose,
		c.Volume, c.OI, oiChange, oiChangePct, c.VWAP.String(),
		c.SupportLevels[0].Price.String(), c.SupportLevels[1].Price.String(), c.SupportLevels[2].Price.String(),
		c.SupportLevels[0].Qty, c.SupportLevels[1].Qty, c.SupportLevels[2].Qty, c.Support.String(),
		c.ResistanceLevels[0].Price.String(), c.ResistanceLevels[1].Price.String(), c.ResistanceLevels[2].Price.String(),
		c.ResistanceLevels[0].Qty, c.ResistanceLevels[1].Qty, c.ResistanceLevels[2].Qty, c.Resistance.String(),
		c.TBQ, c.TSQ, c.OrderBookRatio.String(), c.BidAskSpread.String(), c.BigBidCount, c.BigAskCount,
		nullableFloat(c.AvgDelta), nullableFloat(c.AvgGamma), nullableFloat(c.AvgTheta),
		nullableFloat(c.AvgVega), nullableFloat(c.AvgRho), nullableFloat(c.AvgIV),
		nullableFloat(c.GammaSpike), c.CandleScore.String(), c.TickCount,
	)
	if err != nil {
		return fmt.Errorf("persist: insert candle %s@%v: %w", c.InstrumentKey, c.CandleTimestamp, err)
	}
	return nil
}

// InsertSignal appends a signal row. Signals have no natural uniqueness key
// (spec §6), so duplicate inserts from at-least-once redelivery are expected
// and harmless — each is just another audit-trail row.
func (s *SQLiteStore) InsertSignal(ctx context.Context, sig model.Signal) error {
	var oiChange interface{}
	if sig.OIChange != nil {
		oiChange = *sig.OIChange
	}
	var oiChangePct interface{}
	if sig.OIChangePct != nil {
		oiChangePct = sig.OIChangePct.String()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO signals (
			instrument_key, candle_timestamp, signal_timestamp, seller_state, recommendation,
			confidence, panic_score, short_covering, gamma_spike_detected, order_book_panic,
			liquidity_drying, strong_buying, fired_signals, entry_price, support, resistance,
			candle_score, oi_change, oi_change_pct
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.InstrumentKey, sig.CandleTimestamp, sig.SignalTimestamp, string(sig.SellerState), string(sig.Recommendation),
		sig.Confidence, sig.PanicScore, sig.ShortCovering, sig.GammaSpikeDetected, sig.OrderBookPanic,
		sig.LiquidityDrying, sig.StrongBuying, joinSignals(sig.FiredSignals), sig.EntryPrice.String(), sig.Support.String(), sig.Resistance.String(),
		sig.CandleScore.String(), oiChange, oiChangePct,
	)
	if err != nil {
		return fmt.Errorf("persist: insert signal %s@%v: %w", sig.InstrumentKey, sig.CandleTimestamp, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullableFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

func joinSignals(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ","
		}
		out += n
	}
	return out
}

var (
	_ model.CandleStore = (*SQLiteStore)(nil)
	_ model.SignalStore = (*SQLiteStore)(nil)
)
