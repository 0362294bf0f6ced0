// Package ingest connects to the upstream tick feed over WebSocket,
// decodes frames, and publishes valid ticks to the event log (spec §4.2).
// Grounded on pkg/smartconnect/websocket.go's gorilla/websocket dialer
// usage and internal/marketdata/ws/ingest.go's OnOpen/OnData/OnClose
// callback shape, generalized from Angel One's binary protocol to the
// feed's JSON frames and from a direct channel hand-off to publishing
// onto the event log.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/gorilla/websocket"

	"indexpanic-sysv1/internal/eventlog"
	"indexpanic-sysv1/internal/logger"
	"indexpanic-sysv1/internal/markethours"
	"indexpanic-sysv1/internal/model"
)

// Config configures the Ingestor.
type Config struct {
	FeedURL      string
	Decoder      model.Decoder
	Log          eventlog.Log
	OutStream    string
	MinBackoff   time.Duration
	MaxBackoff   time.Duration

	OnTickDecoded func()
	OnTickDropped func()
	OnReconnect   func()
}

// Ingestor owns the WebSocket connection lifecycle: connect, read frames
// until the connection drops, then reconnect with exponential backoff
// bounded by [MinBackoff, MaxBackoff] (spec §4.2/§5).
type Ingestor struct {
	cfg Config
}

func New(cfg Config) *Ingestor {
	if cfg.MinBackoff == 0 {
		cfg.MinBackoff = 5 * time.Second
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = 60 * time.Second
	}
	return &Ingestor{cfg: cfg}
}

// Run connects and reconnects until ctx is cancelled.
func (in *Ingestor) Run(ctx context.Context) error {
	backoff := in.cfg.MinBackoff

	for {
		if ctx.Err() != nil {
			return nil
		}

		connected, err := in.runOnce(ctx)
		if err == nil || ctx.Err() != nil {
			return nil
		}
		if connected {
			backoff = in.cfg.MinBackoff
		}

		slog.Warn("connection lost, reconnecting", append(logger.LogWithTrace(ctx), "backoff", backoff, "error", err)...)
		if in.cfg.OnReconnect != nil {
			in.cfg.OnReconnect()
		}

		// Jitter of up to a quarter of the backoff, still capped at MaxBackoff.
		wait := backoff + time.Duration(rand.Int63n(int64(backoff/4)+1))
		if wait > in.cfg.MaxBackoff {
			wait = in.cfg.MaxBackoff
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}

		backoff *= 2
		if backoff > in.cfg.MaxBackoff {
			backoff = in.cfg.MaxBackoff
		}
	}
}

// runOnce dials the feed and reads frames until the connection errors or
// ctx is cancelled. A clean ctx cancellation returns (_, nil); any other
// return carries connected=true if the dial succeeded, so Run knows to
// reset its backoff to MinBackoff before the next reconnect attempt
// (spec §4.2/§5: backoff only escalates across consecutive failed dials).
func (in *Ingestor) runOnce(ctx context.Context) (connected bool, err error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, in.cfg.FeedURL, nil)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", in.cfg.FeedURL, err)
	}
	defer conn.Close()

	now := time.Now()
	slog.Info("connected to feed", append(logger.LogWithTrace(ctx), "url", in.cfg.FeedURL, "market_status", markethours.StatusString(now))...)
	if !markethours.IsTradingDay(now) {
		slog.Warn("connected outside a trading day", append(logger.LogWithTrace(ctx), "now", now.In(markethours.IST))...)
	} else if !markethours.IsMarketOpen(now) {
		slog.Warn("connected while market is closed", append(logger.LogWithTrace(ctx), "now", now.In(markethours.IST))...)
	}

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		conn.Close()
		close(done)
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
				return true, nil
			default:
			}
			return true, fmt.Errorf("read: %w", err)
		}

		tick, ok := in.cfg.Decoder.Decode(frame)
		if !ok {
			if in.cfg.OnTickDropped != nil {
				in.cfg.OnTickDropped()
			}
			continue
		}
		if in.cfg.OnTickDecoded != nil {
			in.cfg.OnTickDecoded()
		}

		payload, err := json.Marshal(tick)
		if err != nil {
			slog.Error("tick encode error", append(logger.LogWithTrace(ctx), "instrument_key", tick.InstrumentKey, "error", err)...)
			continue
		}
		if _, err := in.cfg.Log.Publish(ctx, in.cfg.OutStream, payload); err != nil {
			slog.Error("publish error", append(logger.LogWithTrace(ctx), "instrument_key", tick.InstrumentKey, "error", err)...)
		}
	}
}
