package archive

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"warehousesim/internal/persistence/snapshot"
)

type RunArchiveMeta struct {
	RunID     string `json:"run_id"`
	EndTick   uint64 `json:"end_tick"`
	Seed      int64  `json:"seed"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Robots    int    `json:"robots"`
	Boxes     int    `json:"boxes"`
	Shelves   int    `json:"shelves"`
	Frames    int    `json:"frames"`
	Snapshot  string `json:"snapshot"`
	CreatedAt string `json:"created_at"`
}

// ArchiveRunSnapshot copies the snapshot of a finished run into `runDir/archive/`.
// It returns (archivedPath, archived=true) only when snap.Finished is set.
func ArchiveRunSnapshot(runDir, snapshotPath string, snap snapshot.SnapshotV1) (archivedPath string, archived bool, err error) {
	if !snap.Finished {
		return "", false, nil
	}
	archiveDir := filepath.Join(runDir, "archive")
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", false, err
	}

	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", false, err
	}

	meta := RunArchiveMeta{
		RunID:     snap.Header.RunID,
		EndTick:   snap.Header.Tick,
		Seed:      snap.Seed,
		Width:     snap.Width,
		Height:    snap.Height,
		Robots:    snap.Robots,
		Boxes:     snap.Boxes,
		Shelves:   snap.Shelves,
		Frames:    len(snap.Frames),
		Snapshot:  filepath.Base(dst),
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644)
	}

	return dst, true, nil
}

// ReadMeta loads the meta.json written next to an archived snapshot.
func ReadMeta(runDir string) (RunArchiveMeta, error) {
	var m RunArchiveMeta
	b, err := os.ReadFile(filepath.Join(runDir, "archive", "meta.json"))
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(b, &m)
	return m, err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
