package writer

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tickflow/models"
)

func mdAt(symbol string, sec, nanos uint32) models.UnifiedMarketData {
	return models.UnifiedMarketData{
		Exchange:  models.Coinbase,
		Symbol:    symbol,
		Timestamp: sec,
		Nanos:     nanos,
		Price:     100,
		Volume:    1,
	}
}

func readTimes(t *testing.T, dir, symbol string) []uint32 {
	t.Helper()
	pattern := filepath.Join(dir, "coinbase", symbol, "MD", "time.*.bin")
	matches, err := filepath.Glob(pattern)
	if err != nil || len(matches) != 1 {
		t.Fatalf("glob %s: %v %v", pattern, matches, err)
	}
	raw, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	out := make([]uint32, 0, len(raw)/4)
	for i := 0; i+4 <= len(raw); i += 4 {
		out = append(out, binary.LittleEndian.Uint32(raw[i:]))
	}
	return out
}

func TestFlushWritesTimestampOrder(t *testing.T) {
	records := []models.UnifiedMarketData{
		mdAt("BTC-USD", 300, 0),
		mdAt("BTC-USD", 100, 500),
		mdAt("BTC-USD", 200, 0),
		mdAt("BTC-USD", 100, 100),
	}

	// Every insertion order drains identically.
	permutations := [][]int{
		{0, 1, 2, 3}, {3, 2, 1, 0}, {1, 3, 0, 2}, {2, 0, 3, 1},
	}
	for _, perm := range permutations {
		dir := t.TempDir()
		b := NewDataBuffer(dir)
		for _, i := range perm {
			b.AddMarketData(records[i])
		}

		if _, _, err := b.FlushToDisk(time.Now().UTC()); err != nil {
			t.Fatalf("flush: %v", err)
		}
		b.Close()

		got := readTimes(t, dir, "BTC-USD")
		want := []uint32{100, 100, 200, 300}
		if len(got) != len(want) {
			t.Fatalf("perm %v: %d records, want %d", perm, len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("perm %v: order %v, want %v", perm, got, want)
			}
		}
	}
}

func TestSameKeyLastWriteWins(t *testing.T) {
	b := NewDataBuffer(t.TempDir())

	first := mdAt("BTC-USD", 100, 100)
	first.Price = 1
	second := mdAt("BTC-USD", 100, 100)
	second.Price = 2

	b.AddMarketData(first)
	b.AddMarketData(second)
	if b.Len() != 1 {
		t.Fatalf("len = %d, want 1 after same-key insert", b.Len())
	}

	// A different exchange at the same instant is a distinct record.
	other := mdAt("BTC-USD", 100, 100)
	other.Exchange = models.Kraken
	b.AddMarketData(other)
	if b.Len() != 2 {
		t.Fatalf("len = %d, want 2 across exchanges", b.Len())
	}
	b.Close()
}

func TestFlushEmptiesBufferAndIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	b := NewDataBuffer(dir)

	b.AddMarketData(mdAt("BTC-USD", 100, 0))
	trade := models.NewTradeData(models.Coinbase, "BTC-USD", 7)
	trade.Price = 100
	trade.Size = 1
	b.AddTradeData(trade)

	records, bytes, err := b.FlushToDisk(time.Now().UTC())
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if records != 2 {
		t.Errorf("records = %d, want 2", records)
	}
	if bytes != mdRecordBytes+tradeRecordBytes {
		t.Errorf("bytes = %d, want %d", bytes, mdRecordBytes+tradeRecordBytes)
	}
	if b.Len() != 0 {
		t.Errorf("buffer not drained, len = %d", b.Len())
	}

	// Second flush with nothing buffered writes nothing.
	records, bytes, err = b.FlushToDisk(time.Now().UTC())
	if err != nil {
		t.Fatalf("idempotent flush: %v", err)
	}
	if records != 0 || bytes != 0 {
		t.Errorf("empty flush wrote records=%d bytes=%d", records, bytes)
	}

	got := readTimes(t, dir, "BTC-USD")
	if len(got) != 1 {
		t.Errorf("md time records = %d, want 1", len(got))
	}
	b.Close()
}

func TestTradesDistinctByID(t *testing.T) {
	b := NewDataBuffer(t.TempDir())

	for id := uint64(1); id <= 3; id++ {
		trade := models.UnifiedTradeData{
			Exchange:  models.Binance,
			Symbol:    "BTCUSDT",
			TradeID:   id,
			Timestamp: 100,
			Nanos:     100,
			Price:     5,
			Size:      1,
		}
		b.AddTradeData(trade)
	}
	if b.Len() != 3 {
		t.Fatalf("len = %d, want 3 distinct trades at one instant", b.Len())
	}
	b.Close()
}

func TestFlushFailureRetainsRecords(t *testing.T) {
	dir := t.TempDir()
	b := NewDataBuffer(dir)
	b.AddMarketData(mdAt("BTC-USD", 100, 0))

	// Make handler creation fail by replacing the data path with a file.
	b.files.basePath = filepath.Join(dir, "blocked")
	if err := os.WriteFile(b.files.basePath, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}

	if _, _, err := b.FlushToDisk(time.Now().UTC()); err == nil {
		t.Fatal("expected flush error")
	}
	if b.Len() != 1 {
		t.Fatalf("record lost on failed flush, len = %d", b.Len())
	}

	// Restore the path; the retry drains the buffer.
	os.Remove(b.files.basePath)
	if _, _, err := b.FlushToDisk(time.Now().UTC()); err != nil {
		t.Fatalf("retry flush: %v", err)
	}
	if b.Len() != 0 {
		t.Errorf("retry did not drain, len = %d", b.Len())
	}
	b.Close()
}
