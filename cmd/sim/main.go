package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"warehousesim/internal/persistence/archive"
	persistlog "warehousesim/internal/persistence/log"
	"warehousesim/internal/persistence/snapshot"
	"warehousesim/internal/sim/tuning"
	"warehousesim/internal/sim/warehouse"
)

func main() {
	var (
		tuningPath  = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
		dataDir     = flag.String("data", "./data", "runtime data directory")
		seed        = flag.Int64("seed", 1337, "placement seed")
		runID       = flag.String("run", "", "run id (default: random uuid)")
		width       = flag.Int("width", 0, "grid width (0: tuning)")
		height      = flag.Int("height", 0, "grid height (0: tuning)")
		robots      = flag.Int("robots", 0, "robot count (0: tuning)")
		boxes       = flag.Int("boxes", -1, "box count (-1: tuning)")
		generations = flag.Int("generations", 0, "max ticks (0: tuning)")
		stopName    = flag.String("stop", "", "stop check: shelved, robots or legacy (empty: tuning)")
		routeReport = flag.Bool("route_report", false, "print each robot's shortest route to its next target before and after the run")
		noPersist   = flag.Bool("no_persist", false, "do not write tick logs or snapshots")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[sim] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		tune = tuning.Defaults()
	}
	if *width > 0 {
		tune.Width = *width
	}
	if *height > 0 {
		tune.Height = *height
	}
	if *robots > 0 {
		tune.Robots = *robots
	}
	if *boxes >= 0 {
		tune.Boxes = *boxes
	}
	if *generations > 0 {
		tune.Generations = *generations
	}
	if s := strings.TrimSpace(*stopName); s != "" {
		tune.StopCheck = s
	}
	if err := tune.Validate(); err != nil {
		logger.Fatalf("tuning: %v", err)
	}
	stop, err := warehouse.ParseStopCheck(tune.StopCheck)
	if err != nil {
		logger.Fatalf("%v", err)
	}

	cfg := tune.Config(*seed)
	cfg.RunID = strings.TrimSpace(*runID)
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	w, err := warehouse.New(cfg)
	if err != nil {
		logger.Fatalf("warehouse: %v", err)
	}
	cfg = w.Config()
	logger.Printf("run %s grid=%dx%d robots=%d boxes=%d shelves=%d seed=%d stop=%s",
		cfg.RunID, cfg.Width, cfg.Height, cfg.Robots, cfg.Boxes, cfg.Shelves, cfg.Seed, tune.StopCheck)

	if *routeReport {
		printRouteReport(os.Stdout, w)
	}

	runDir := filepath.Join(*dataDir, "runs", cfg.RunID)
	var tickLog *persistlog.TickLogger
	snapCh := make(chan snapshot.SnapshotV1, 4)
	done := make(chan struct{})
	if !*noPersist {
		tickLog = persistlog.NewTickLogger(runDir)
		w.SetTickLogger(tickLog)
		w.SetSnapshotSink(snapCh)
		go func() {
			defer close(done)
			for snap := range snapCh {
				path := snapshot.Path(filepath.Join(runDir, "snapshots"), snap.Header.Tick)
				if err := snapshot.WriteSnapshot(path, snap); err != nil {
					logger.Printf("snapshot write: %v", err)
				}
			}
		}()
	} else {
		close(done)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ticks, err := warehouse.Drive(ctx, w, tune.Generations, stop)
	if err != nil {
		logger.Printf("stopped early: %v", err)
	}
	t := w.Totals()
	logger.Printf("ran %d ticks: stacks=%d on_stacks=%d on_shelves=%d carried=%d all_shelved=%v",
		ticks, t.Stacks, t.OnStacks, t.OnShelves, t.Carried, w.AllShelved())

	if *routeReport {
		printRouteReport(os.Stdout, w)
	}

	if *noPersist {
		return
	}
	w.SetSnapshotSink(nil)
	close(snapCh)
	<-done
	_ = tickLog.Close()

	snap := w.ExportSnapshot()
	path := snapshot.Path(filepath.Join(runDir, "snapshots"), snap.Header.Tick)
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		logger.Fatalf("final snapshot: %v", err)
	}
	logger.Printf("snapshot=%s", path)
	if archived, ok, err := archive.ArchiveRunSnapshot(runDir, path, snap); err != nil {
		logger.Printf("archive: %v", err)
	} else if ok {
		logger.Printf("archived=%s", archived)
	}
}
