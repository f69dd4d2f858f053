package log

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"warehousesim/internal/sim/grid"
	"warehousesim/internal/sim/warehouse"
)

func TestTickLoggerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir)
	for i := 0; i < 3; i++ {
		err := l.WriteTick(warehouse.TickLogEntry{
			RunID:  "run",
			Tick:   uint64(i),
			Events: []warehouse.Event{{Type: warehouse.EventMove, Entity: 1, Pos: grid.Pos{X: i, Y: 2}, Dir: "UP"}},
			Digest: "d",
		})
		if err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := ListFiles(filepath.Join(dir, "events"), "events")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected one events file, got %v", files)
	}
	var got []warehouse.TickLogEntry
	if err := ScanTicks(files[0], func(e warehouse.TickLogEntry) error {
		got = append(got, e)
		return nil
	}); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(got) != 3 || got[2].Tick != 2 || got[2].Events[0].Pos.X != 2 {
		t.Fatalf("unexpected entries: %+v", got)
	}
}

func TestScanTicksStopsOnCallbackError(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir)
	_ = l.WriteTick(warehouse.TickLogEntry{Tick: 0})
	_ = l.WriteTick(warehouse.TickLogEntry{Tick: 1})
	_ = l.Close()

	files, _ := ListFiles(filepath.Join(dir, "events"), "events")
	stop := errors.New("stop")
	n := 0
	err := ScanTicks(files[0], func(warehouse.TickLogEntry) error {
		n++
		return stop
	})
	if !errors.Is(err, stop) || n != 1 {
		t.Fatalf("expected stop after first entry, n=%d err=%v", n, err)
	}
}

func TestWriterRotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "audit")
	now := time.Date(2024, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return now }
	var closed []string
	w.OnClose(func(path string) { closed = append(closed, filepath.Base(path)) })
	if err := w.Write(map[string]int{"a": 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if err := w.Write(map[string]int{"a": 2}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = w.Close()

	for _, name := range []string{"audit-2024-03-01-10.jsonl.zst", "audit-2024-03-01-11.jsonl.zst"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
	}
	files, _ := ListFiles(dir, "audit")
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %v", files)
	}
	if len(closed) != 2 || closed[0] != "audit-2024-03-01-10.jsonl.zst" {
		t.Fatalf("close hook saw %v", closed)
	}
}
