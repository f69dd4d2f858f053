package snapshot

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteReadSnapshot(t *testing.T) {
	dir := t.TempDir()
	snap := SnapshotV1{
		Header:   Header{Version: Version, RunID: "run-1", Tick: 12},
		Width:    3,
		Height:   2,
		MaxStack: 5,
		Seed:     42,
		Entities: []EntityV1{
			{ID: 0, Kind: "ROBOT", Placed: true, Pos: [2]int{1, 1}, Box: 1, Facing: "LEFT", Carrying: true},
			{ID: 1, Kind: "BOX", Placed: false},
		},
		Frames: []FrameV1{{Tick: 11, Cells: []float64{0, 20, 0, 0, 250, 0}}},
	}
	path := Path(filepath.Join(dir, "snapshots"), snap.Header.Tick)
	if err := WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Header != snap.Header || got.Seed != 42 || len(got.Entities) != 2 {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}
	if e := got.Entities[0]; e.Facing != "LEFT" || !e.Carrying || e.Pos != [2]int{1, 1} {
		t.Fatalf("entity mismatch: %+v", e)
	}
	if len(got.Frames) != 1 || got.Frames[0].Cells[1] != 20 {
		t.Fatalf("frame mismatch: %+v", got.Frames)
	}
}

func TestLatest(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"3.snap.zst", "12.snap.zst", "7.snap.zst", "notes.txt", "x.snap.zst"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if got, want := Latest(dir), filepath.Join(dir, "12.snap.zst"); got != want {
		t.Fatalf("latest: got %q want %q", got, want)
	}
	if got := Latest(filepath.Join(dir, "missing")); got != "" {
		t.Fatalf("expected empty result for missing dir, got %q", got)
	}
}
