// Package data provides read access to the locally cached market data the
// external acquisition pipeline maintains: one CSV of hourly OHLCV bars per
// ticker. The engine itself never fetches anything; this package only reads
// what the collaborator has already written.
package data

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quillhaven/breakout-engine/internal/model"
)

// Source is the capability the batch driver and CLI depend on.
type Source interface {
	// Load returns the ticker's cached hourly bars, sorted by timestamp.
	Load(ctx context.Context, ticker string) ([]model.Bar, error)
	// Symbols lists every ticker present in the cache.
	Symbols() []string
}

// SymbolMetadata describes available data for a symbol, persisted as a
// JSON sidecar by the acquisition pipeline.
type SymbolMetadata struct {
	Symbol    string    `json:"symbol"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	BarCount  int       `json:"barCount"`
	Timeframe string    `json:"timeframe"`
}

// Store reads cached bar series from a data directory, keeping loaded
// series in memory for the lifetime of a sweep.
type Store struct {
	mu       sync.RWMutex
	logger   *zap.Logger
	dataDir  string
	cache    map[string][]model.Bar
	metadata map[string]*SymbolMetadata
}

// NewStore creates a store over dataDir and scans it for available
// symbols.
func NewStore(logger *zap.Logger, dataDir string) (*Store, error) {
	store := &Store{
		logger:   logger,
		dataDir:  dataDir,
		cache:    make(map[string][]model.Bar),
		metadata: make(map[string]*SymbolMetadata),
	}

	if err := store.scan(); err != nil {
		return nil, fmt.Errorf("scan data directory: %w", err)
	}

	return store, nil
}

// scan indexes the CSV files and their metadata sidecars.
func (s *Store) scan() error {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".csv") {
			continue
		}
		symbol := strings.TrimSuffix(name, ".csv")

		meta := &SymbolMetadata{Symbol: symbol}
		metaPath := filepath.Join(s.dataDir, symbol+".json")
		if raw, err := os.ReadFile(metaPath); err == nil {
			if err := json.Unmarshal(raw, meta); err != nil {
				s.logger.Warn("Invalid metadata sidecar",
					zap.String("symbol", symbol), zap.Error(err))
			}
		}
		s.metadata[symbol] = meta
	}

	s.logger.Info("Data cache scanned",
		zap.String("dir", s.dataDir),
		zap.Int("symbols", len(s.metadata)),
	)
	return nil
}

// Symbols returns the available tickers, sorted.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	symbols := make([]string, 0, len(s.metadata))
	for sym := range s.metadata {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return symbols
}

// Metadata returns the sidecar info for a symbol, if present.
func (s *Store) Metadata(symbol string) (*SymbolMetadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta, ok := s.metadata[symbol]
	return meta, ok
}

// Load returns a ticker's bars, reading and caching the CSV on first use.
// A missing or empty file is a data-unavailability error the caller
// reports per run without aborting the sweep.
func (s *Store) Load(ctx context.Context, ticker string) ([]model.Bar, error) {
	s.mu.RLock()
	bars, ok := s.cache[ticker]
	s.mu.RUnlock()
	if ok {
		return bars, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(s.dataDir, ticker+".csv")
	bars, err := readBarsCSV(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", ticker, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("load %s: no bars in cache", ticker)
	}

	sort.Slice(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})

	s.mu.Lock()
	s.cache[ticker] = bars
	s.mu.Unlock()

	s.logger.Debug("Bars loaded",
		zap.String("ticker", ticker),
		zap.Int("bars", len(bars)),
	)
	return bars, nil
}

// readBarsCSV parses a timestamp,open,high,low,close,volume file. The
// header row is optional; timestamps are RFC 3339 or epoch seconds.
func readBarsCSV(path string) ([]model.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 6

	var bars []model.Bar
	line := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		if line == 1 && strings.EqualFold(rec[0], "timestamp") {
			continue
		}

		ts, err := parseTimestamp(rec[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		var fields [5]decimal.Decimal
		for i := 0; i < 5; i++ {
			d, err := decimal.NewFromString(strings.TrimSpace(rec[i+1]))
			if err != nil {
				return nil, fmt.Errorf("line %d: field %d: %w", line, i+1, err)
			}
			fields[i] = d
		}

		bars = append(bars, model.Bar{
			Timestamp: ts,
			Open:      fields[0],
			High:      fields[1],
			Low:       fields[2],
			Close:     fields[3],
			Volume:    fields[4],
		})
	}
	return bars, nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	var epoch int64
	if _, err := fmt.Sscanf(s, "%d", &epoch); err == nil {
		return time.Unix(epoch, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}
