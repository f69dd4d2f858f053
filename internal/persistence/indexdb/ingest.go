package indexdb

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	plog "warehousesim/internal/persistence/log"
	"warehousesim/internal/persistence/snapshot"
	"warehousesim/internal/sim/tuning"
	"warehousesim/internal/sim/warehouse"
)

// IngestConfig points the index at a remote HTTP endpoint that accepts batched events.
type IngestConfig struct {
	Endpoint      string
	Token         string
	BatchSize     int
	FlushInterval time.Duration
	HTTPTimeout   time.Duration
	Logger        *log.Logger
}

// IngestIndex ships index records to an HTTP collector in batches instead of a local db.
type IngestIndex struct {
	cfg        IngestConfig
	httpClient *http.Client

	ch   chan ingestEvent
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
}

type ingestEvent struct {
	Kind    string `json:"kind"`
	RunID   string `json:"run_id"`
	Payload any    `json:"payload"`
}

type ingestSnapshotPayload struct {
	Tick      uint64 `json:"tick"`
	Path      string `json:"path"`
	Seed      int64  `json:"seed"`
	OnStacks  int    `json:"on_stacks"`
	OnShelves int    `json:"on_shelves"`
	Carried   int    `json:"carried"`
	Stacks    int    `json:"stacks"`
	Frames    int    `json:"frames"`
	Finished  bool   `json:"finished"`
}

type ingestArchivePayload struct {
	EndTick    uint64 `json:"end_tick"`
	Path       string `json:"path"`
	Seed       int64  `json:"seed"`
	RecordedAt string `json:"recorded_at"`
}

type ingestTuningPayload struct {
	Digest    string `json:"digest"`
	JSON      string `json:"json"`
	UpdatedAt string `json:"updated_at"`
}

func OpenIngest(cfg IngestConfig) (*IngestIndex, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("empty ingest endpoint")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 128
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}

	d := &IngestIndex{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		ch:         make(chan ingestEvent, 32768),
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.loop()
	}()
	return d, nil
}

func (d *IngestIndex) Close() error {
	if d == nil {
		return nil
	}
	d.once.Do(func() {
		d.closed.Store(true)
		close(d.ch)
		d.wg.Wait()
	})
	return nil
}

func (d *IngestIndex) Stats() Stats {
	return Stats{
		QueueDepth:    len(d.ch),
		QueueCapacity: cap(d.ch),
		DropTickTotal: d.dropped.Load(),
	}
}

func (d *IngestIndex) RecordRun(run RunInfo) {
	d.enqueue(ingestEvent{Kind: "run", RunID: run.RunID, Payload: run})
}

func (d *IngestIndex) WriteTick(entry warehouse.TickLogEntry) error {
	d.enqueue(ingestEvent{Kind: "tick", RunID: entry.RunID, Payload: entry})
	return nil
}

func (d *IngestIndex) WriteAudit(entry plog.AuditEntry) error {
	d.enqueue(ingestEvent{Kind: "audit", RunID: entry.RunID, Payload: entry})
	return nil
}

func (d *IngestIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	r := snapshotRowFrom(path, snap)
	d.enqueue(ingestEvent{Kind: "snapshot", RunID: r.RunID, Payload: ingestSnapshotPayload{
		Tick:      r.Tick,
		Path:      r.Path,
		Seed:      r.Seed,
		OnStacks:  r.OnStacks,
		OnShelves: r.OnShelves,
		Carried:   r.Carried,
		Stacks:    r.Stacks,
		Frames:    r.Frames,
		Finished:  r.Finished,
	}})
}

func (d *IngestIndex) RecordArchive(runID string, endTick uint64, archivedSnapshotPath string, seed int64) {
	if runID == "" || strings.TrimSpace(archivedSnapshotPath) == "" {
		return
	}
	d.enqueue(ingestEvent{Kind: "archive", RunID: runID, Payload: ingestArchivePayload{
		EndTick:    endTick,
		Path:       archivedSnapshotPath,
		Seed:       seed,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}})
}

func (d *IngestIndex) UpsertTuning(tune tuning.Tuning) error {
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	d.enqueue(ingestEvent{Kind: "tuning", Payload: ingestTuningPayload{
		Digest:    hex.EncodeToString(sum[:]),
		JSON:      string(b),
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}})
	return nil
}

func (d *IngestIndex) enqueue(ev ingestEvent) {
	if d == nil || d.closed.Load() {
		return
	}
	select {
	case d.ch <- ev:
	default:
		d.dropped.Add(1)
		d.printf("ingest index queue full; drop kind=%s run=%s", ev.Kind, ev.RunID)
	}
}

func (d *IngestIndex) loop() {
	ticker := time.NewTicker(d.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]ingestEvent, 0, d.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := d.sendBatch(batch); err != nil {
			// Keep the batch; the next flush retries it.
			d.printf("ingest index flush failed batch=%d err=%v", len(batch), err)
			if len(batch) < 8*d.cfg.BatchSize {
				return
			}
			d.printf("ingest index dropping batch=%d after repeated failures", len(batch))
		}
		batch = batch[:0]
	}

	for {
		select {
		case ev, ok := <-d.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= d.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (d *IngestIndex) sendBatch(events []ingestEvent) error {
	body := struct {
		Events []ingestEvent `json:"events"`
	}{Events: events}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		req, err := http.NewRequest(http.MethodPost, d.cfg.Endpoint, bytes.NewReader(buf))
		if err != nil {
			return err
		}
		req.Header.Set("content-type", "application/json")
		if d.cfg.Token != "" {
			req.Header.Set("x-warehouse-index-token", d.cfg.Token)
		}

		resp, err := d.httpClient.Do(req)
		if err == nil {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
			_ = resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			err = fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		}
		lastErr = err
		time.Sleep(time.Duration(100*(1<<attempt)) * time.Millisecond)
	}
	return lastErr
}

func (d *IngestIndex) printf(format string, args ...any) {
	if d != nil && d.cfg.Logger != nil {
		d.cfg.Logger.Printf(format, args...)
	}
}
