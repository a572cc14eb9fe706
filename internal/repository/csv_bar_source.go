package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"RegimeML/internal/domain/models"
	"RegimeML/pkg/util"
)

// CSVBarSource reads an MT5-style history export: tab separated with a
// header row such as <DATE> <TIME> <OPEN> <HIGH> <LOW> <CLOSE> <TICKVOL>
// <VOL> <SPREAD>. Comma separated files and bare header names are accepted
// too.
type CSVBarSource struct {
	path string
}

func NewCSVBarSource(path string) *CSVBarSource {
	return &CSVBarSource{path: path}
}

func (s *CSVBarSource) Name() string { return "csv:" + s.path }

func (s *CSVBarSource) Load(ctx context.Context) ([]models.Bar, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open bars: %w", err)
	}
	defer f.Close()
	return ParseBars(ctx, f, s.path)
}

var requiredBarColumns = []string{"date", "open", "high", "low", "close"}

// ParseBars decodes a bar table from r. The result is stably sorted by time.
func ParseBars(ctx context.Context, r io.Reader, source string) ([]models.Bar, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read bars: %w", err)
	}
	text := strings.TrimPrefix(string(data), "\ufeff")
	firstLine, _, _ := strings.Cut(text, "\n")

	cr := csv.NewReader(strings.NewReader(text))
	cr.Comma = '\t'
	if !strings.Contains(firstLine, "\t") && strings.Contains(firstLine, ",") {
		cr.Comma = ','
	}
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &models.DataFormatError{Source: source, Reason: "empty file"}
	}
	if err != nil {
		return nil, &models.DataFormatError{Source: source, Line: 1, Reason: err.Error()}
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[normalizeHeader(h)] = i
	}
	for _, name := range requiredBarColumns {
		if _, ok := cols[name]; !ok {
			return nil, &models.DataFormatError{Source: source, Line: 1, Column: name, Reason: "required column missing"}
		}
	}

	out := make([]models.Bar, 0, 4096)
	line := 1
	for {
		if line%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, err := cr.Read()
		line++
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &models.DataFormatError{Source: source, Line: line, Reason: err.Error()}
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		bar, err := parseBarRecord(rec, cols, source, line)
		if err != nil {
			return nil, err
		}
		out = append(out, bar)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

func parseBarRecord(rec []string, cols map[string]int, source string, line int) (models.Bar, error) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var b models.Bar
	ts, ok := util.ParseBarTime(field("date"), field("time"))
	if !ok {
		return b, &models.DataFormatError{Source: source, Line: line, Column: "date",
			Reason: fmt.Sprintf("unparseable timestamp %q %q", field("date"), field("time"))}
	}
	b.Time = ts

	targets := []struct {
		name     string
		dst      *float64
		required bool
	}{
		{"open", &b.Open, true},
		{"high", &b.High, true},
		{"low", &b.Low, true},
		{"close", &b.Close, true},
		{"tickvol", &b.TickVolume, false},
		{"vol", &b.Volume, false},
		{"spread", &b.Spread, false},
	}
	for _, t := range targets {
		raw := field(t.name)
		if raw == "" && t.required {
			return b, &models.DataFormatError{Source: source, Line: line, Column: t.name, Reason: "empty value"}
		}
		v, err := util.ParseFloatDefault(raw, 0)
		if err != nil {
			return b, &models.DataFormatError{Source: source, Line: line, Column: t.name,
				Reason: fmt.Sprintf("not a number: %q", raw)}
		}
		*t.dst = v
	}
	return b, nil
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.TrimPrefix(h, "<")
	h = strings.TrimSuffix(h, ">")
	switch h {
	case "tick_volume", "tickvolume":
		return "tickvol"
	case "volume", "real_volume":
		return "vol"
	}
	return h
}
