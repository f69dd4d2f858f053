package main

import (
	"errors"
	"fmt"
	"path/filepath"

	persistlog "warehousesim/internal/persistence/log"
	"warehousesim/internal/sim/warehouse"
)

type verifyResult struct {
	Checked  uint64
	Skipped  uint64
	LastTick uint64
}

var errDone = errors.New("done")

// verify steps w once per logged tick and compares every digest from verifyFrom on.
// Entries before w's current tick are skipped; toTick 0 means no upper bound.
func verify(w *warehouse.Warehouse, files []string, verifyFrom, toTick uint64) (verifyResult, error) {
	var res verifyResult
	for _, path := range files {
		err := persistlog.ScanTicks(path, func(entry warehouse.TickLogEntry) error {
			if entry.Tick < w.CurrentTick() {
				res.Skipped++
				return nil
			}
			if toTick != 0 && entry.Tick > toTick {
				return errDone
			}
			if entry.Tick != w.CurrentTick() {
				return fmt.Errorf("tick gap: want=%d got=%d (file=%s)", w.CurrentTick(), entry.Tick, filepath.Base(path))
			}
			tick := w.Step()
			res.LastTick = tick
			if tick < verifyFrom {
				return nil
			}
			res.Checked++
			if got := w.LastDigest(); got != entry.Digest {
				return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", tick, got, entry.Digest)
			}
			return nil
		})
		if errors.Is(err, errDone) {
			return res, nil
		}
		if err != nil {
			return res, err
		}
	}
	return res, nil
}
