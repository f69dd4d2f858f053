package r2s3

import (
	"context"
	"fmt"
	"log"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Stats struct {
	QueueDepth      int
	QueueCapacity   int
	EnqueuedTotal   uint64
	DroppedTotal    uint64
	UploadedTotal   uint64
	FailedTotal     uint64
	LastSuccessUnix int64
	LastErrorUnix   int64
}

type MirrorConfig struct {
	// Prefix is prepended to every key: <prefix>/runs/<run_id>/<path under run dir>.
	Prefix        string
	Workers       int
	QueueCapacity int
	// EnqueueWait bounds how long a full queue may block the caller before the job is dropped.
	EnqueueWait time.Duration
	Attempts    int
}

type uploader interface {
	PutFile(ctx context.Context, key, localPath string) error
}

type job struct {
	key   string
	local string
}

// Mirror copies finished run artifacts (snapshots, archived runs, rotated event logs) to
// object storage in the background. Upload failures are logged and counted, never fatal.
type Mirror struct {
	up     uploader
	cfg    MirrorConfig
	logger *log.Logger
	sleep  func(time.Duration)

	jobs chan job
	wg   sync.WaitGroup

	enqueued    atomic.Uint64
	dropped     atomic.Uint64
	uploaded    atomic.Uint64
	failed      atomic.Uint64
	lastSuccess atomic.Int64
	lastError   atomic.Int64
}

func NewMirror(client *Client, cfg MirrorConfig, logger *log.Logger) *Mirror {
	return newMirror(client, cfg, logger)
}

func newMirror(up uploader, cfg MirrorConfig, logger *log.Logger) *Mirror {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 256
	}
	if cfg.EnqueueWait <= 0 {
		cfg.EnqueueWait = 25 * time.Millisecond
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 4
	}
	cfg.Prefix = strings.Trim(strings.ReplaceAll(cfg.Prefix, "\\", "/"), "/")
	m := &Mirror{
		up:     up,
		cfg:    cfg,
		logger: logger,
		sleep:  time.Sleep,
		jobs:   make(chan job, cfg.QueueCapacity),
	}
	for i := 0; i < cfg.Workers; i++ {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			for j := range m.jobs {
				m.upload(j)
			}
		}()
	}
	return m
}

// Key maps a file inside runDir to its object key.
func (m *Mirror) Key(runID, runDir, localPath string) (string, error) {
	rel, err := filepath.Rel(runDir, localPath)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside run dir %s", localPath, runDir)
	}
	key := ObjectKey(path.Join(m.cfg.Prefix, "runs", runID, rel))
	if key == "" {
		return "", fmt.Errorf("bad key for %s", localPath)
	}
	return key, nil
}

// Enqueue schedules localPath for upload. It never blocks longer than EnqueueWait.
func (m *Mirror) Enqueue(runID, runDir, localPath string) {
	if m == nil {
		return
	}
	key, err := m.Key(runID, runDir, localPath)
	if err != nil {
		m.printf("mirror skip %s: %v", localPath, err)
		return
	}
	m.enqueued.Add(1)
	j := job{key: key, local: localPath}
	select {
	case m.jobs <- j:
		return
	default:
	}
	t := time.NewTimer(m.cfg.EnqueueWait)
	defer t.Stop()
	select {
	case m.jobs <- j:
	case <-t.C:
		n := m.dropped.Add(1)
		m.printf("mirror drop key=%s queue_full dropped_total=%d", key, n)
	}
}

func (m *Mirror) Close() {
	if m == nil {
		return
	}
	close(m.jobs)
	m.wg.Wait()
}

func (m *Mirror) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:      len(m.jobs),
		QueueCapacity:   cap(m.jobs),
		EnqueuedTotal:   m.enqueued.Load(),
		DroppedTotal:    m.dropped.Load(),
		UploadedTotal:   m.uploaded.Load(),
		FailedTotal:     m.failed.Load(),
		LastSuccessUnix: m.lastSuccess.Load(),
		LastErrorUnix:   m.lastError.Load(),
	}
}

func (m *Mirror) upload(j job) {
	var err error
	for attempt := 1; attempt <= m.cfg.Attempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		err = m.up.PutFile(ctx, j.key, j.local)
		cancel()
		if err == nil {
			m.uploaded.Add(1)
			m.lastSuccess.Store(time.Now().Unix())
			m.printf("mirror uploaded key=%s", j.key)
			return
		}
		if attempt < m.cfg.Attempts {
			m.sleep(time.Duration(attempt*attempt) * 200 * time.Millisecond)
		}
	}
	m.failed.Add(1)
	m.lastError.Store(time.Now().Unix())
	m.printf("mirror upload failed key=%s: %v", j.key, err)
}

func (m *Mirror) printf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	}
}
