package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	plog "warehousesim/internal/persistence/log"
	"warehousesim/internal/persistence/snapshot"
	"warehousesim/internal/sim/tuning"
	"warehousesim/internal/sim/warehouse"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
	drops  dropCounters
}

type reqKind int

const (
	reqRun reqKind = iota + 1
	reqTick
	reqAudit
	reqSnapshot
	reqArchive
)

type req struct {
	kind reqKind

	run      RunInfo
	tick     warehouse.TickLogEntry
	audit    plog.AuditEntry
	snapshot snapshotRow
	archive  archiveRow
}

// RunInfo describes a run when it starts.
type RunInfo struct {
	RunID     string `json:"run_id"`
	CreatedAt string `json:"created_at"`
	Seed      int64  `json:"seed"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Robots    int    `json:"robots"`
	Boxes     int    `json:"boxes"`
	Shelves   int    `json:"shelves"`
	MaxStack  int    `json:"max_stack"`
}

// RunInfoFromConfig fills RunInfo from a normalized warehouse config.
func RunInfoFromConfig(cfg warehouse.Config) RunInfo {
	return RunInfo{
		RunID:     cfg.RunID,
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
		Seed:      cfg.Seed,
		Width:     cfg.Width,
		Height:    cfg.Height,
		Robots:    cfg.Robots,
		Boxes:     cfg.Boxes,
		Shelves:   cfg.Shelves,
		MaxStack:  cfg.MaxStack,
	}
}

type snapshotRow struct {
	RunID     string
	Tick      uint64
	Path      string
	Seed      int64
	OnStacks  int
	OnShelves int
	Carried   int
	Stacks    int
	Frames    int
	Finished  bool
}

type archiveRow struct {
	RunID      string
	EndTick    uint64
	Path       string
	Seed       int64
	RecordedAt string
}

// Stats reports queue pressure. Requests are dropped rather than blocking the sim.
type Stats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropRunTotal      uint64 `json:"drop_run_total"`
	DropTickTotal     uint64 `json:"drop_tick_total"`
	DropAuditTotal    uint64 `json:"drop_audit_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
	DropArchiveTotal  uint64 `json:"drop_archive_total"`
}

type dropCounters struct {
	run, tick, audit, snapshot, archive atomic.Uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tuning (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			seed INTEGER NOT NULL,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			robots INTEGER NOT NULL,
			boxes INTEGER NOT NULL,
			shelves INTEGER NOT NULL,
			max_stack INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			digest TEXT NOT NULL,
			events INTEGER NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (run_id, tick)
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			type TEXT NOT NULL,
			entity INTEGER NOT NULL,
			target INTEGER NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			dir TEXT,
			PRIMARY KEY (run_id, tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_entity_tick ON events(run_id, entity, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_events_type ON events(run_id, type);`,
		`CREATE TABLE IF NOT EXISTS audits (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			time TEXT NOT NULL,
			run_id TEXT,
			remote TEXT NOT NULL,
			method TEXT NOT NULL,
			path TEXT NOT NULL,
			status INTEGER NOT NULL,
			code TEXT,
			tick INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			path TEXT NOT NULL,
			seed INTEGER NOT NULL,
			on_stacks INTEGER NOT NULL,
			on_shelves INTEGER NOT NULL,
			carried INTEGER NOT NULL,
			stacks INTEGER NOT NULL,
			frames INTEGER NOT NULL,
			finished INTEGER NOT NULL,
			PRIMARY KEY (run_id, tick)
		);`,
		`CREATE TABLE IF NOT EXISTS archives (
			run_id TEXT PRIMARY KEY,
			end_tick INTEGER NOT NULL,
			seed INTEGER NOT NULL,
			snapshot_path TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		if s.db != nil {
			err = s.db.Close()
		}
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropRunTotal:      s.drops.run.Load(),
		DropTickTotal:     s.drops.tick.Load(),
		DropAuditTotal:    s.drops.audit.Load(),
		DropSnapshotTotal: s.drops.snapshot.Load(),
		DropArchiveTotal:  s.drops.archive.Load(),
	}
}

func (s *SQLiteIndex) enqueue(r req, drop *atomic.Uint64) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
		drop.Add(1)
	}
}

func (s *SQLiteIndex) RecordRun(run RunInfo) {
	if s == nil || run.RunID == "" {
		return
	}
	s.enqueue(req{kind: reqRun, run: run}, &s.drops.run)
}

func (s *SQLiteIndex) WriteTick(entry warehouse.TickLogEntry) error {
	if s == nil {
		return nil
	}
	s.enqueue(req{kind: reqTick, tick: entry}, &s.drops.tick)
	return nil
}

func (s *SQLiteIndex) WriteAudit(entry plog.AuditEntry) error {
	if s == nil {
		return nil
	}
	s.enqueue(req{kind: reqAudit, audit: entry}, &s.drops.audit)
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: snapshotRowFrom(path, snap)}, &s.drops.snapshot)
}

func (s *SQLiteIndex) RecordArchive(runID string, endTick uint64, archivedSnapshotPath string, seed int64) {
	if s == nil || runID == "" || archivedSnapshotPath == "" {
		return
	}
	r := archiveRow{
		RunID:      runID,
		EndTick:    endTick,
		Path:       archivedSnapshotPath,
		Seed:       seed,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	s.enqueue(req{kind: reqArchive, archive: r}, &s.drops.archive)
}

// UpsertTuning stores the tuning values actually applied, as canonical JSON. It writes
// synchronously; call it once at startup.
func (s *SQLiteIndex) UpsertTuning(tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO tuning(name,digest,json,updated_at) VALUES(?,?,?,?)`,
		"tuning", hex.EncodeToString(sum[:]), string(b), now); err != nil {
		return err
	}
	return tx.Commit()
}

func snapshotRowFrom(path string, snap snapshot.SnapshotV1) snapshotRow {
	r := snapshotRow{
		RunID:    snap.Header.RunID,
		Tick:     snap.Header.Tick,
		Path:     path,
		Seed:     snap.Seed,
		Frames:   len(snap.Frames),
		Finished: snap.Finished,
	}
	for _, e := range snap.Entities {
		switch e.Kind {
		case warehouse.KindBoxStack.String():
			if e.Placed {
				r.OnStacks += e.Box
				r.Stacks++
			}
		case warehouse.KindShelf.String():
			r.OnShelves += e.Box
		case warehouse.KindRobot.String():
			r.Carried += e.Box
		}
	}
	return r
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertRun, _ := s.db.Prepare(`INSERT OR REPLACE INTO runs(run_id,created_at,seed,width,height,robots,boxes,shelves,max_stack) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(run_id,tick,digest,events,raw_json) VALUES(?,?,?,?,?)`)
	insertEvent, _ := s.db.Prepare(`INSERT OR REPLACE INTO events(run_id,tick,seq,type,entity,target,x,y,dir) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertAudit, _ := s.db.Prepare(`INSERT INTO audits(time,run_id,remote,method,path,status,code,tick) VALUES(?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(run_id,tick,path,seed,on_stacks,on_shelves,carried,stacks,frames,finished) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	insertArchive, _ := s.db.Prepare(`INSERT OR REPLACE INTO archives(run_id,end_tick,seed,snapshot_path,recorded_at) VALUES(?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertRun, insertTick, insertEvent, insertAudit, insertSnapshot, insertArchive} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil {
			return true
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqRun:
			ru := r.run
			exec(insertRun, ru.RunID, ru.CreatedAt, ru.Seed, ru.Width, ru.Height, ru.Robots, ru.Boxes, ru.Shelves, ru.MaxStack)

		case reqTick:
			t := r.tick
			b, _ := json.Marshal(t)
			if !exec(insertTick, t.RunID, int64(t.Tick), t.Digest, len(t.Events), string(b)) {
				continue
			}
			for i, ev := range t.Events {
				if !exec(insertEvent, t.RunID, int64(t.Tick), i, string(ev.Type), ev.Entity, ev.Target, ev.Pos.X, ev.Pos.Y, ev.Dir) {
					break
				}
			}

		case reqAudit:
			a := r.audit
			exec(insertAudit, a.Time.UTC().Format(time.RFC3339Nano), a.RunID, a.Remote, a.Method, a.Path, a.Status, a.Code, int64(a.Tick))

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, sn.RunID, int64(sn.Tick), sn.Path, sn.Seed, sn.OnStacks, sn.OnShelves, sn.Carried, sn.Stacks, sn.Frames, boolInt(sn.Finished))

		case reqArchive:
			ar := r.archive
			exec(insertArchive, ar.RunID, int64(ar.EndTick), ar.Seed, ar.Path, ar.RecordedAt)
		}
		flushIfNeeded()
	}

	commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
