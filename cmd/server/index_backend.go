package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	persistlog "warehousesim/internal/persistence/log"
	"warehousesim/internal/persistence/indexdb"
	"warehousesim/internal/persistence/snapshot"
	"warehousesim/internal/sim/tuning"
	"warehousesim/internal/sim/warehouse"
)

type runtimeIndex interface {
	warehouse.TickLogger
	WriteAudit(entry persistlog.AuditEntry) error
	Close() error
	Stats() indexdb.Stats
	RecordRun(run indexdb.RunInfo)
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
	RecordArchive(runID string, endTick uint64, archivedSnapshotPath string, seed int64)
	UpsertTuning(tune tuning.Tuning) error
}

func openRuntimeIndex(dataDir string, disableDB bool, logger *log.Logger) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("WAREHOUSE_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(filepath.Join(dataDir, "index", "warehouse.sqlite"))
	case "http":
		endpoint := strings.TrimSpace(os.Getenv("WAREHOUSE_INDEX_INGEST_URL"))
		if endpoint == "" {
			return nil, fmt.Errorf("WAREHOUSE_INDEX_BACKEND=http but WAREHOUSE_INDEX_INGEST_URL is empty")
		}
		return indexdb.OpenIngest(indexdb.IngestConfig{
			Endpoint:      endpoint,
			Token:         strings.TrimSpace(os.Getenv("WAREHOUSE_INDEX_INGEST_TOKEN")),
			BatchSize:     envInt("WAREHOUSE_INDEX_BATCH_SIZE", 128),
			FlushInterval: time.Duration(envInt("WAREHOUSE_INDEX_FLUSH_MS", 500)) * time.Millisecond,
			Logger:        logger,
		})
	default:
		return nil, fmt.Errorf("unsupported WAREHOUSE_INDEX_BACKEND: %s", backend)
	}
}

type multiTickLogger struct {
	a warehouse.TickLogger
	b warehouse.TickLogger
}

func (m multiTickLogger) WriteTick(entry warehouse.TickLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return nil
}

type auditWriter interface {
	WriteAudit(entry persistlog.AuditEntry) error
}

type multiAuditLogger struct {
	a auditWriter
	b auditWriter
}

func (m multiAuditLogger) WriteAudit(entry persistlog.AuditEntry) error {
	if m.a != nil {
		_ = m.a.WriteAudit(entry)
	}
	if m.b != nil {
		_ = m.b.WriteAudit(entry)
	}
	return nil
}
