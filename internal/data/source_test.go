package data

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestStoreLoadCSV(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "EURUSD.csv",
		"timestamp,open,high,low,close,volume\n"+
			"2024-01-01T01:00:00Z,1.10,1.12,1.09,1.11,1000\n"+
			"2024-01-01T00:00:00Z,1.09,1.11,1.08,1.10,900\n")

	store, err := NewStore(zap.NewNop(), dir)
	if err != nil {
		t.Fatal(err)
	}

	bars, err := store.Load(context.Background(), "EURUSD")
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 2 {
		t.Fatalf("bars = %d", len(bars))
	}
	// Out-of-order rows are sorted on load.
	if !bars[0].Timestamp.Before(bars[1].Timestamp) {
		t.Fatal("bars not sorted by timestamp")
	}
	if !bars[0].Close.Equal(decimal.RequireFromString("1.10")) {
		t.Fatalf("close = %s", bars[0].Close)
	}

	// Second load hits the cache and returns the same series.
	again, err := store.Load(context.Background(), "EURUSD")
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 2 {
		t.Fatalf("cached bars = %d", len(again))
	}
}

func TestStoreLoadEpochTimestamps(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "BTCUSD.csv", "1704067200,42000,42500,41800,42300,15\n")

	store, err := NewStore(zap.NewNop(), dir)
	if err != nil {
		t.Fatal(err)
	}
	bars, err := store.Load(context.Background(), "BTCUSD")
	if err != nil {
		t.Fatal(err)
	}
	if bars[0].Timestamp.Year() != 2024 {
		t.Fatalf("timestamp = %v", bars[0].Timestamp)
	}
}

func TestStoreMissingTicker(t *testing.T) {
	store, err := NewStore(zap.NewNop(), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(context.Background(), "NOPE"); err == nil {
		t.Fatal("missing ticker must error")
	}
}

func TestStoreSymbols(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "XAUUSD.csv", "2024-01-01T00:00:00Z,2000,2010,1990,2005,10\n")
	writeFile(t, dir, "EURUSD.csv", "2024-01-01T00:00:00Z,1.10,1.11,1.09,1.10,10\n")
	writeFile(t, dir, "EURUSD.json", `{"symbol":"EURUSD","barCount":1,"timeframe":"1h"}`)

	store, err := NewStore(zap.NewNop(), dir)
	if err != nil {
		t.Fatal(err)
	}

	syms := store.Symbols()
	if len(syms) != 2 || syms[0] != "EURUSD" || syms[1] != "XAUUSD" {
		t.Fatalf("symbols = %v", syms)
	}

	meta, ok := store.Metadata("EURUSD")
	if !ok || meta.BarCount != 1 {
		t.Fatalf("metadata = %+v ok=%v", meta, ok)
	}
}

func TestStoreMalformedRow(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "BAD.csv", "2024-01-01T00:00:00Z,abc,1,1,1,1\n")

	store, err := NewStore(zap.NewNop(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(context.Background(), "BAD"); err == nil {
		t.Fatal("malformed row must error")
	}
}
