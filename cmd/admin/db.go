package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	_ "modernc.org/sqlite"
)

const dbUsage = "usage: admin db [-data ./data] [-db PATH] [-run RUN] [-tick T] [-type TYPE] runs|snapshots|ticks|events|archives|audits"

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional; defaults to <data>/index/warehouse.sqlite)")
	runID := fs.String("run", "", "run id (optional; defaults to the most recent run)")
	tick := fs.Int64("tick", -1, "tick filter for events (optional)")
	evType := fs.String("type", "", "event type filter, e.g. PICK (events)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "runs"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	if *limit <= 0 {
		*limit = 20
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "warehouse.sqlite")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	run := strings.TrimSpace(*runID)
	if run == "" && q != "runs" && q != "archives" && q != "audits" {
		run, err = latestRun(db)
		if err != nil {
			fmt.Fprintln(os.Stderr, "latest run:", err)
			os.Exit(1)
		}
		if run == "" {
			fmt.Fprintln(os.Stderr, "no runs indexed")
			os.Exit(2)
		}
	}

	switch q {
	case "runs":
		rows, err := db.Query(`SELECT run_id,created_at,seed,width,height,robots,boxes,shelves,max_stack FROM runs ORDER BY created_at DESC LIMIT ?`, *limit)
		exitOn("query", err)
		defer rows.Close()
		for rows.Next() {
			var r struct {
				RunID    string `json:"run_id"`
				Created  string `json:"created_at"`
				Age      string `json:"age"`
				Seed     int64  `json:"seed"`
				Width    int    `json:"width"`
				Height   int    `json:"height"`
				Robots   int    `json:"robots"`
				Boxes    int    `json:"boxes"`
				Shelves  int    `json:"shelves"`
				MaxStack int    `json:"max_stack"`
			}
			exitOn("scan", rows.Scan(&r.RunID, &r.Created, &r.Seed, &r.Width, &r.Height, &r.Robots, &r.Boxes, &r.Shelves, &r.MaxStack))
			if t, err := time.Parse(time.RFC3339Nano, r.Created); err == nil {
				r.Age = humanize.Time(t)
			}
			printJSON(r)
		}
		exitOn("rows", rows.Err())

	case "snapshots":
		rows, err := db.Query(`SELECT tick,path,seed,on_stacks,on_shelves,carried,stacks,frames,finished FROM snapshots WHERE run_id=? ORDER BY tick DESC LIMIT ?`, run, *limit)
		exitOn("query", err)
		defer rows.Close()
		for rows.Next() {
			var r struct {
				RunID     string `json:"run_id"`
				Tick      int64  `json:"tick"`
				Path      string `json:"path"`
				Size      string `json:"size,omitempty"`
				Seed      int64  `json:"seed"`
				OnStacks  int    `json:"on_stacks"`
				OnShelves int    `json:"on_shelves"`
				Carried   int    `json:"carried"`
				Stacks    int    `json:"stacks"`
				Frames    int    `json:"frames"`
				Finished  bool   `json:"finished"`
			}
			exitOn("scan", rows.Scan(&r.Tick, &r.Path, &r.Seed, &r.OnStacks, &r.OnShelves, &r.Carried, &r.Stacks, &r.Frames, &r.Finished))
			r.RunID = run
			if st, err := os.Stat(r.Path); err == nil {
				r.Size = humanize.Bytes(uint64(st.Size()))
			}
			printJSON(r)
		}
		exitOn("rows", rows.Err())

	case "ticks":
		rows, err := db.Query(`SELECT tick,digest,events FROM ticks WHERE run_id=? ORDER BY tick DESC LIMIT ?`, run, *limit)
		exitOn("query", err)
		defer rows.Close()
		for rows.Next() {
			var r struct {
				RunID  string `json:"run_id"`
				Tick   int64  `json:"tick"`
				Digest string `json:"digest"`
				Events int    `json:"events"`
			}
			exitOn("scan", rows.Scan(&r.Tick, &r.Digest, &r.Events))
			r.RunID = run
			printJSON(r)
		}
		exitOn("rows", rows.Err())

	case "events":
		where := []string{"run_id=?"}
		qargs := []any{run}
		if *tick >= 0 {
			where = append(where, "tick=?")
			qargs = append(qargs, *tick)
		}
		if t := strings.ToUpper(strings.TrimSpace(*evType)); t != "" {
			where = append(where, "type=?")
			qargs = append(qargs, t)
		}
		qargs = append(qargs, *limit)
		rows, err := db.Query(`SELECT tick,seq,type,entity,target,x,y,COALESCE(dir,'') FROM events WHERE `+
			strings.Join(where, " AND ")+` ORDER BY tick DESC, seq ASC LIMIT ?`, qargs...)
		exitOn("query", err)
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick   int64  `json:"tick"`
				Seq    int    `json:"seq"`
				Type   string `json:"type"`
				Entity int    `json:"entity"`
				Target int    `json:"target"`
				X      int    `json:"x"`
				Y      int    `json:"y"`
				Dir    string `json:"dir,omitempty"`
			}
			exitOn("scan", rows.Scan(&r.Tick, &r.Seq, &r.Type, &r.Entity, &r.Target, &r.X, &r.Y, &r.Dir))
			printJSON(r)
		}
		exitOn("rows", rows.Err())

	case "archives":
		rows, err := db.Query(`SELECT run_id,end_tick,seed,snapshot_path,recorded_at FROM archives ORDER BY recorded_at DESC LIMIT ?`, *limit)
		exitOn("query", err)
		defer rows.Close()
		for rows.Next() {
			var r struct {
				RunID      string `json:"run_id"`
				EndTick    int64  `json:"end_tick"`
				Seed       int64  `json:"seed"`
				Path       string `json:"snapshot_path"`
				RecordedAt string `json:"recorded_at"`
			}
			exitOn("scan", rows.Scan(&r.RunID, &r.EndTick, &r.Seed, &r.Path, &r.RecordedAt))
			printJSON(r)
		}
		exitOn("rows", rows.Err())

	case "audits":
		rows, err := db.Query(`SELECT time,COALESCE(run_id,''),remote,method,path,status,COALESCE(code,''),tick FROM audits ORDER BY seq DESC LIMIT ?`, *limit)
		exitOn("query", err)
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Time   string `json:"time"`
				RunID  string `json:"run_id,omitempty"`
				Remote string `json:"remote"`
				Method string `json:"method"`
				Path   string `json:"path"`
				Status int    `json:"status"`
				Code   string `json:"code,omitempty"`
				Tick   int64  `json:"tick"`
			}
			exitOn("scan", rows.Scan(&r.Time, &r.RunID, &r.Remote, &r.Method, &r.Path, &r.Status, &r.Code, &r.Tick))
			printJSON(r)
		}
		exitOn("rows", rows.Err())

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, dbUsage)
		os.Exit(2)
	}
}

func latestRun(db *sql.DB) (string, error) {
	var id sql.NullString
	err := db.QueryRow(`SELECT run_id FROM runs ORDER BY created_at DESC LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id.String, nil
}

func exitOn(what string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", what, err)
		os.Exit(1)
	}
}

func unixTime(sec int64) time.Time { return time.Unix(sec, 0) }

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
