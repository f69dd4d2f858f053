package main

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"warehousesim/internal/persistence/archive"
	persistlog "warehousesim/internal/persistence/log"
	"warehousesim/internal/persistence/indexdb"
	"warehousesim/internal/persistence/r2s3"
	"warehousesim/internal/persistence/snapshot"
	"warehousesim/internal/sim/warehouse"
	"warehousesim/internal/transport/observer"
)

// runRuntime owns the per-run side effects of the live warehouse: the tick log, the
// snapshot writer, archiving and mirroring. The process serves a single run.
type runRuntime struct {
	dataDir string
	logger  *log.Logger
	idx     runtimeIndex
	mirror  *r2s3.Mirror
	hub     *observer.Hub

	mu       sync.Mutex
	runID    string
	runDir   string
	tickLog  *persistlog.TickLogger
	finished bool
}

func runDirFor(dataDir, runID string) string {
	return filepath.Join(dataDir, "runs", runID)
}

// attach wires w into persistence. It is called once, under the facade lock.
func (rt *runRuntime) attach(ctx context.Context, w *warehouse.Warehouse) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	rt.runID = w.RunID()
	rt.runDir = runDirFor(rt.dataDir, rt.runID)
	_ = os.MkdirAll(rt.runDir, 0o755)

	rt.tickLog = persistlog.NewTickLogger(rt.runDir)
	if rt.mirror != nil {
		runID, runDir := rt.runID, rt.runDir
		rt.tickLog.OnClose(func(path string) { rt.mirror.Enqueue(runID, runDir, path) })
	}
	w.SetTickLogger(multiTickLogger{a: rt.tickLog, b: rt.idx})
	if rt.idx != nil {
		rt.idx.RecordRun(indexdb.RunInfoFromConfig(w.Config()))
	}

	ch := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(ch)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-ch:
				if _, err := rt.save(snap); err != nil {
					rt.logger.Printf("snapshot write: %v", err)
				}
			}
		}
	}()

	rt.finished = w.AllShelved()
	rt.hub.Publish(observer.FrameFromWarehouse(w))
}

// afterStep runs under the facade lock after every tick.
func (rt *runRuntime) afterStep(w *warehouse.Warehouse) {
	rt.hub.Publish(observer.FrameFromWarehouse(w))

	rt.mu.Lock()
	justFinished := !rt.finished && w.AllShelved()
	if justFinished {
		rt.finished = true
	}
	rt.mu.Unlock()
	if justFinished {
		rt.logger.Printf("run %s finished at tick %d", w.RunID(), w.CurrentTick())
		if _, err := rt.save(w.ExportSnapshot()); err != nil {
			rt.logger.Printf("final snapshot: %v", err)
		}
	}
}

// save writes snap, indexes it, archives finished runs and mirrors the files.
func (rt *runRuntime) save(snap snapshot.SnapshotV1) (string, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.runDir == "" {
		return "", os.ErrInvalid
	}

	path := snapshot.Path(filepath.Join(rt.runDir, "snapshots"), snap.Header.Tick)
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		return "", err
	}
	rt.enqueueLocked(path)
	if rt.idx != nil {
		rt.idx.RecordSnapshot(path, snap)
	}

	archived, ok, err := archive.ArchiveRunSnapshot(rt.runDir, path, snap)
	if err != nil {
		rt.logger.Printf("archive run snapshot: %v", err)
		return path, nil
	}
	if ok {
		if rt.idx != nil {
			rt.idx.RecordArchive(snap.Header.RunID, snap.Header.Tick, archived, snap.Seed)
		}
		rt.enqueueLocked(archived)
		rt.enqueueLocked(filepath.Join(filepath.Dir(archived), "meta.json"))
	}
	return path, nil
}

func (rt *runRuntime) enqueueLocked(path string) {
	if rt.mirror == nil {
		return
	}
	if _, err := os.Stat(path); err == nil {
		rt.mirror.Enqueue(rt.runID, rt.runDir, path)
	}
}

func (rt *runRuntime) close() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.tickLog != nil {
		_ = rt.tickLog.Close()
	}
}

// latestRunSnapshot returns the newest snapshot across all runs under dataDir, judged by
// the modification time of each run's latest snapshot.
func latestRunSnapshot(dataDir string) string {
	runs, err := filepath.Glob(filepath.Join(dataDir, "runs", "*", "snapshots"))
	if err != nil || len(runs) == 0 {
		return ""
	}
	type cand struct {
		path string
		mod  int64
	}
	var cands []cand
	for _, dir := range runs {
		p := snapshot.Latest(dir)
		if p == "" {
			continue
		}
		st, err := os.Stat(p)
		if err != nil {
			continue
		}
		cands = append(cands, cand{p, st.ModTime().UnixNano()})
	}
	if len(cands) == 0 {
		return ""
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].mod > cands[j].mod })
	return cands[0].path
}
