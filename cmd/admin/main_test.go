package main

import (
	"path/filepath"
	"testing"

	"warehousesim/internal/persistence/archive"
	"warehousesim/internal/persistence/snapshot"
	"warehousesim/internal/sim/warehouse"
)

func writeRun(t *testing.T, dataDir, runID string, ticks int, finish bool) {
	t.Helper()
	w, err := warehouse.New(warehouse.Config{RunID: runID, Width: 10, Height: 10, Robots: 2, Boxes: 4, Seed: 3})
	if err != nil {
		t.Fatalf("warehouse: %v", err)
	}
	for i := 0; i < ticks; i++ {
		w.Step()
	}
	runDir := filepath.Join(dataDir, "runs", runID)
	snap := w.ExportSnapshot()
	path := snapshot.Path(filepath.Join(runDir, "snapshots"), snap.Header.Tick)
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write: %v", err)
	}
	if finish {
		snap.Finished = true
		if _, ok, err := archive.ArchiveRunSnapshot(runDir, path, snap); err != nil || !ok {
			t.Fatalf("archive: ok=%v err=%v", ok, err)
		}
	}
}

func TestListRuns(t *testing.T) {
	dataDir := t.TempDir()
	writeRun(t, dataDir, "alpha", 7, false)
	writeRun(t, dataDir, "beta", 3, true)

	runs, err := listRuns(dataDir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs=%+v", runs)
	}
	byID := map[string]runListing{}
	for _, r := range runs {
		byID[r.RunID] = r
	}
	if a := byID["alpha"]; a.Tick != 7 || a.Archived || a.Size == 0 {
		t.Fatalf("alpha=%+v", a)
	}
	if b := byID["beta"]; b.Tick != 3 || !b.Archived {
		t.Fatalf("beta=%+v", b)
	}
}

func TestListRunsMissingDir(t *testing.T) {
	if _, err := listRuns(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatalf("expected error for missing data dir")
	}
}
