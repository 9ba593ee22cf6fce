package replay

import (
	"compress/gzip"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeRecordedFile(t *testing.T, dir, name string, rows [][]string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	gz := gzip.NewWriter(f)
	w := csv.NewWriter(gz)
	if err := w.Write([]string{"timestamp", "kind", "price"}); err != nil {
		t.Fatalf("write header: %v", err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			t.Fatalf("write row: %v", err)
		}
	}
	w.Flush()
	gz.Close()
	f.Close()
	return path
}

func TestMergeOrdersAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	fileA := writeRecordedFile(t, dir, "a.csv.gz", [][]string{
		{base.Format(time.RFC3339Nano), "price_tick", "1"},
		{base.Add(3 * time.Second).Format(time.RFC3339Nano), "price_tick", "3"},
	})
	fileB := writeRecordedFile(t, dir, "b.csv.gz", [][]string{
		{base.Add(1 * time.Second).Format(time.RFC3339Nano), "price_tick", "2"},
		{base.Add(2 * time.Second).Format(time.RFC3339Nano), "price_tick", "2.5"},
	})

	r, err := Open([]string{fileA, fileB})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	var prices []string
	for {
		ev, ok, err := r.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		prices = append(prices, ev.Fields["price"])
	}

	want := []string{"1", "2", "2.5", "3"}
	if len(prices) != len(want) {
		t.Fatalf("got %v, want %v", prices, want)
	}
	for i := range want {
		if prices[i] != want[i] {
			t.Errorf("position %d: got %s, want %s", i, prices[i], want[i])
		}
	}
}

func TestEmptyInputsReturnsNoEvents(t *testing.T) {
	r, err := Open(nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_, ok, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if ok {
		t.Error("expected no events from an empty reader")
	}
}

func TestSingleFileInTimestampOrder(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	file := writeRecordedFile(t, dir, "only.csv.gz", [][]string{
		{base.Format(time.RFC3339Nano), "market_open", ""},
		{base.Add(time.Minute).Format(time.RFC3339Nano), "market_close", ""},
	})

	r, err := Open([]string{file})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	first, ok, _ := r.Next()
	if !ok || first.Kind != "market_open" {
		t.Errorf("expected market_open first, got %v ok=%v", first.Kind, ok)
	}
	second, ok, _ := r.Next()
	if !ok || second.Kind != "market_close" {
		t.Errorf("expected market_close second, got %v ok=%v", second.Kind, ok)
	}
	_, ok, _ = r.Next()
	if ok {
		t.Error("expected exhaustion after two events")
	}
}
