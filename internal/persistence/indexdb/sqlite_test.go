package indexdb

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	plog "warehousesim/internal/persistence/log"
	"warehousesim/internal/persistence/snapshot"
	"warehousesim/internal/sim/grid"
	"warehousesim/internal/sim/tuning"
	"warehousesim/internal/sim/warehouse"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTick, tick: warehouse.TickLogEntry{Tick: 1}}

	s.RecordRun(RunInfo{RunID: "r"})
	_ = s.WriteTick(warehouse.TickLogEntry{Tick: 2})
	_ = s.WriteAudit(plog.AuditEntry{Tick: 2})
	s.RecordSnapshot("/tmp/2.snap.zst", snapshot.SnapshotV1{})
	s.RecordArchive("r", 2, "/tmp/2.snap.zst", 42)

	st := s.Stats()
	if st.DropRunTotal != 1 || st.DropTickTotal != 1 || st.DropAuditTotal != 1 || st.DropSnapshotTotal != 1 || st.DropArchiveTotal != 1 {
		t.Fatalf("unexpected drop stats: %+v", st)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_WritesRows(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index", "warehouse.sqlite")
	idx, err := OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	idx.RecordRun(RunInfo{RunID: "r1", CreatedAt: "now", Seed: 7, Width: 10, Height: 8, Robots: 2, Boxes: 3, Shelves: 2, MaxStack: 5})
	_ = idx.WriteTick(warehouse.TickLogEntry{
		RunID:  "r1",
		Tick:   0,
		Digest: "abc",
		Events: []warehouse.Event{
			{Type: warehouse.EventPick, Entity: 0, Target: 2, Pos: grid.Pos{X: 1, Y: 1}},
			{Type: warehouse.EventDepleted, Entity: 2, Pos: grid.Pos{X: 1, Y: 1}},
		},
	})
	_ = idx.WriteAudit(plog.AuditEntry{Time: time.Now(), RunID: "r1", Remote: "127.0.0.1", Method: "POST", Path: "/", Status: 200, Tick: 0})
	idx.RecordSnapshot("/data/runs/r1/snapshots/1.snap.zst", snapshot.SnapshotV1{
		Header: snapshot.Header{Version: snapshot.Version, RunID: "r1", Tick: 1},
		Seed:   7,
		Entities: []snapshot.EntityV1{
			{ID: 0, Kind: "ROBOT", Placed: true, Box: 1},
			{ID: 1, Kind: "BOX", Placed: true, Box: 2},
			{ID: 2, Kind: "BOX", Placed: false, Box: 0},
			{ID: 3, Kind: "SHELF", Placed: true, Box: 0},
		},
	})
	idx.RecordArchive("r1", 1, "/data/runs/r1/archive/1.snap.zst", 7)
	if err := idx.UpsertTuning(tuning.Defaults()); err != nil {
		t.Fatalf("tuning: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	count := func(q string, args ...any) int {
		t.Helper()
		var n int
		if err := db.QueryRow(q, args...).Scan(&n); err != nil {
			t.Fatalf("%s: %v", q, err)
		}
		return n
	}
	if n := count(`SELECT COUNT(*) FROM runs WHERE run_id=?`, "r1"); n != 1 {
		t.Fatalf("runs=%d", n)
	}
	if n := count(`SELECT COUNT(*) FROM events WHERE run_id=? AND tick=0`, "r1"); n != 2 {
		t.Fatalf("events=%d", n)
	}
	if n := count(`SELECT COUNT(*) FROM audits`); n != 1 {
		t.Fatalf("audits=%d", n)
	}
	if n := count(`SELECT COUNT(*) FROM archives`); n != 1 {
		t.Fatalf("archives=%d", n)
	}
	if n := count(`SELECT COUNT(*) FROM tuning`); n != 1 {
		t.Fatalf("tuning=%d", n)
	}

	var onStacks, carried, stacks int
	if err := db.QueryRow(`SELECT on_stacks,carried,stacks FROM snapshots WHERE run_id=? AND tick=1`, "r1").Scan(&onStacks, &carried, &stacks); err != nil {
		t.Fatalf("snapshot row: %v", err)
	}
	if onStacks != 2 || carried != 1 || stacks != 1 {
		t.Fatalf("snapshot counters: on_stacks=%d carried=%d stacks=%d", onStacks, carried, stacks)
	}
}

func TestSQLiteIndex_NilSafe(t *testing.T) {
	var s *SQLiteIndex
	if err := s.WriteTick(warehouse.TickLogEntry{}); err != nil {
		t.Fatalf("nil WriteTick: %v", err)
	}
	s.RecordSnapshot("", snapshot.SnapshotV1{})
	if err := s.UpsertTuning(tuning.Defaults()); err != nil {
		t.Fatalf("nil UpsertTuning: %v", err)
	}
}
