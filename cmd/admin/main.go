package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"warehousesim/internal/persistence/archive"
	"warehousesim/internal/persistence/snapshot"
	"warehousesim/internal/sim/warehouse"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "rewind":
			rewindCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

type runListing struct {
	RunID    string
	Snapshot string
	Tick     uint64
	Size     int64
	ModUnix  int64
	Archived bool
}

func listRuns(dataDir string) ([]runListing, error) {
	base := filepath.Join(dataDir, "runs")
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, err
	}
	out := make([]runListing, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		runDir := filepath.Join(base, e.Name())
		r := runListing{RunID: e.Name()}
		if p := snapshot.Latest(filepath.Join(runDir, "snapshots")); p != "" {
			r.Snapshot = p
			if st, err := os.Stat(p); err == nil {
				r.Size = st.Size()
				r.ModUnix = st.ModTime().Unix()
			}
			if snap, err := snapshot.ReadSnapshot(p); err == nil {
				r.Tick = snap.Header.Tick
			}
		}
		if _, err := archive.ReadMeta(runDir); err == nil {
			r.Archived = true
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModUnix > out[j].ModUnix })
	return out, nil
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	runs, err := listRuns(*dataDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tTICK\tSNAPSHOT\tSIZE\tUPDATED\tARCHIVED")
	for _, r := range runs {
		if r.Snapshot == "" {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t-\t%v\n", r.RunID, r.Archived)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%v\n",
			r.RunID,
			humanize.Comma(int64(r.Tick)),
			filepath.Base(r.Snapshot),
			humanize.Bytes(uint64(r.Size)),
			humanize.Time(unixTime(r.ModUnix)),
			r.Archived,
		)
	}
	_ = tw.Flush()
}

// rewindCmd re-simulates a run from its initial layout and writes the state at -to_tick as
// a new snapshot the server can resume from.
func rewindCmd(args []string) {
	fs := flag.NewFlagSet("rewind", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	runID := fs.String("run", "", "run id")
	snapPath := fs.String("snapshot", "", "snapshot to rewind (optional; defaults to the run's latest)")
	toTick := fs.Uint64("to_tick", 0, "tick to rewind to (required, must not exceed the snapshot tick)")
	outPath := fs.String("out", "", "output snapshot path (optional)")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*snapPath)
	runDir := ""
	if strings.TrimSpace(*runID) != "" {
		runDir = filepath.Join(*dataDir, "runs", *runID)
		if path == "" {
			path = snapshot.Latest(filepath.Join(runDir, "snapshots"))
		}
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found; provide -run or -snapshot")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	if *toTick > snap.Header.Tick {
		fmt.Fprintf(os.Stderr, "-to_tick %d is past the snapshot tick %d\n", *toTick, snap.Header.Tick)
		os.Exit(2)
	}

	w, err := warehouse.Rewind(snap, *toTick)
	if err != nil {
		fmt.Fprintln(os.Stderr, "rewind:", err)
		os.Exit(1)
	}
	out := w.ExportSnapshot()

	if strings.TrimSpace(*outPath) == "" {
		dir := filepath.Dir(path)
		*outPath = filepath.Join(dir, fmt.Sprintf("%d.rewind%s", out.Header.Tick, snapshot.Ext))
	}
	if err := snapshot.WriteSnapshot(*outPath, out); err != nil {
		fmt.Fprintln(os.Stderr, "write snapshot:", err)
		os.Exit(1)
	}
	t := w.Totals()
	fmt.Printf("rewind ok: run=%s from=%s tick=%d stacks=%d on_shelves=%d carried=%d out=%s\n",
		out.Header.RunID, filepath.Base(path), out.Header.Tick, t.Stacks, t.OnShelves, t.Carried, *outPath)
}
