package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	persistlog "warehousesim/internal/persistence/log"
	"warehousesim/internal/persistence/snapshot"
	"warehousesim/internal/sim/warehouse"
)

func main() {
	var (
		snapPath    = flag.String("snapshot", "", "path to .snap.zst")
		eventsDir   = flag.String("events", "", "events dir containing events-*.jsonl.zst (default: <run dir>/events)")
		fromInitial = flag.Bool("from_initial", true, "re-simulate from the run's initial layout; false resumes from the snapshot state")
		fromTick    = flag.Uint64("from_tick", 0, "start verifying from tick (inclusive, optional)")
		toTick      = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	if *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	fmt.Printf("snapshot v%d run=%s tick=%d seed=%d grid=%dx%d robots=%d boxes=%d shelves=%d frames=%d finished=%v\n",
		snap.Header.Version, snap.Header.RunID, snap.Header.Tick, snap.Seed, snap.Width, snap.Height,
		snap.Robots, snap.Boxes, snap.Shelves, len(snap.Frames), snap.Finished)

	var w *warehouse.Warehouse
	if *fromInitial {
		w, err = warehouse.Rewind(snap, 0)
	} else {
		w, err = warehouse.ImportSnapshot(snap)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "build warehouse:", err)
		os.Exit(1)
	}

	dir := *eventsDir
	if dir == "" {
		dir = filepath.Join(filepath.Dir(filepath.Dir(*snapPath)), "events")
	}
	files, err := persistlog.ListFiles(dir, "events")
	if err != nil {
		fmt.Fprintln(os.Stderr, "list events:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no events files found in", dir)
		os.Exit(1)
	}

	res, err := verify(w, files, *fromTick, *toTick)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	if *fromInitial && w.CurrentTick() == snap.Header.Tick {
		imported, err := warehouse.ImportSnapshot(snap)
		if err == nil && imported.StateDigest() != w.StateDigest() {
			fmt.Fprintf(os.Stderr, "replay: state at tick %d differs from the snapshot\n", snap.Header.Tick)
			os.Exit(1)
		}
	}
	fmt.Printf("replay ok: checked=%d ticks skipped=%d (run=%s, now at tick=%d)\n", res.Checked, res.Skipped, snap.Header.RunID, w.CurrentTick())
}
