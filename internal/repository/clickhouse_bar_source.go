package repository

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"RegimeML/internal/domain/models"
	pkgch "RegimeML/pkg/clickhouse"
	applogger "RegimeML/pkg/logger"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// CHBarSource reads bars for one symbol from a ClickHouse table with columns
// ts, symbol, open, high, low, close, tick_volume, volume, spread.
type CHBarSource struct {
	client *pkgch.Client
	table  string
	symbol string
	l      *applogger.Logger
}

func NewCHBarSource(ch *pkgch.Client, table, symbol string) (*CHBarSource, error) {
	if !identRe.MatchString(table) {
		return nil, fmt.Errorf("invalid clickhouse table name %q", table)
	}
	return &CHBarSource{client: ch, table: table, symbol: symbol}, nil
}

// SetLogger injects a structured logger.
func (s *CHBarSource) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHBarSource) Name() string { return "clickhouse:" + s.table }

func (s *CHBarSource) Load(ctx context.Context) ([]models.Bar, error) {
	start := time.Now()
	const qtpl = `
        SELECT ts, open, high, low, close, tick_volume, volume, spread
        FROM %s
        WHERE symbol = ?
        ORDER BY ts ASC
    `
	rows, err := s.client.Query(ctx, fmt.Sprintf(qtpl, s.table), s.symbol)
	if err != nil {
		s.logError("clickhouse load_bars query error", err)
		return nil, fmt.Errorf("load bars: %w", err)
	}
	defer rows.Close()

	out := make([]models.Bar, 0, 4096)
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.Time, &b.Open, &b.High, &b.Low, &b.Close, &b.TickVolume, &b.Volume, &b.Spread); err != nil {
			s.logError("clickhouse load_bars scan error", err)
			return nil, &models.DataFormatError{Source: s.Name(), Line: len(out) + 1, Reason: err.Error()}
		}
		b.Time = b.Time.UTC()
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		s.logError("clickhouse load_bars rows error", err)
		return nil, fmt.Errorf("rows: %w", err)
	}
	if s.l != nil {
		s.l.Info("clickhouse load_bars ok",
			applogger.String("table", s.table),
			applogger.String("symbol", s.symbol),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

func (s *CHBarSource) logError(msg string, err error) {
	if s.l == nil {
		return
	}
	s.l.Error(msg,
		applogger.String("table", s.table),
		applogger.String("symbol", s.symbol),
		applogger.Error(err),
	)
}
