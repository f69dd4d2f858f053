package warehouse

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// StateDigest hashes the tick counter and every entity's state in registration order.
// Two warehouses with equal digests behave identically from here on.
func (w *Warehouse) StateDigest() string {
	h := sha256.New()
	var tmp [8]byte

	writeInt := func(v int64) {
		binary.LittleEndian.PutUint64(tmp[:], uint64(v))
		_, _ = h.Write(tmp[:])
	}

	writeInt(int64(w.tick))
	writeInt(int64(w.grid.Width()))
	writeInt(int64(w.grid.Height()))
	for _, e := range w.entities {
		writeInt(int64(e.ID()))
		writeInt(int64(e.Kind()))
		pos, ok := e.Position()
		if ok {
			writeInt(1)
			writeInt(int64(pos.X))
			writeInt(int64(pos.Y))
		} else {
			writeInt(0)
		}
		writeInt(int64(e.BoxCount()))
		if r, isRobot := e.(*Robot); isRobot {
			writeInt(int64(r.facing))
			writeInt(int64(boolByte(r.carrying)))
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
