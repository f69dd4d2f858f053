package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

// Ext is the file suffix of run snapshots: <tick>.snap.zst.
const Ext = ".snap.zst"

type Header struct {
	Version int    `json:"version"`
	RunID   string `json:"run_id"`
	Tick    uint64 `json:"tick"`
}

// SnapshotV1 is a complete, resumable run: parameters, the initial layout, the current
// entity state and the frame history collected so far.
type SnapshotV1 struct {
	Header Header `json:"header"`

	Width           int   `json:"width"`
	Height          int   `json:"height"`
	Robots          int   `json:"robots"`
	Boxes           int   `json:"boxes"`
	Shelves         int   `json:"shelves"`
	MaxStack        int   `json:"max_stack"`
	BoxInitialCount int   `json:"box_initial_count"`
	Seed            int64 `json:"seed"`

	Encoding EncodingV1 `json:"encoding"`

	// Entities are in registration order: robots, box stacks, shelves.
	Initial  []EntityV1 `json:"initial"`
	Entities []EntityV1 `json:"entities"`

	Frames   []FrameV1 `json:"frames,omitempty"`
	Finished bool      `json:"finished,omitempty"`
}

type EncodingV1 struct {
	Robot    float64 `json:"robot"`
	RobotBox float64 `json:"robot_box"`
	Box      float64 `json:"box"`
	Shelf    float64 `json:"shelf"`
	ShelfBox float64 `json:"shelf_box"`
}

type EntityV1 struct {
	ID       int    `json:"id"`
	Kind     string `json:"kind"`
	Placed   bool   `json:"placed"`
	Pos      [2]int `json:"pos"`
	Box      int    `json:"box"`
	Facing   string `json:"facing,omitempty"`
	Carrying bool   `json:"carrying,omitempty"`
}

// FrameV1 is one captured grid, flattened column by column (index x*height + y).
type FrameV1 struct {
	Tick  uint64    `json:"tick"`
	Cells []float64 `json:"cells"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// Header line is for tools that only want to peek; gob carries it too.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// Path returns dir/<tick>.snap.zst.
func Path(dir string, tick uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%d%s", tick, Ext))
}

// Latest returns the snapshot in dir with the highest tick, or "" if there is none.
func Latest(dir string) string {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, Ext) {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, Ext), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}
