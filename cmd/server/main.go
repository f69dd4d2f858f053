package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	persistlog "warehousesim/internal/persistence/log"
	"warehousesim/internal/persistence/snapshot"
	"warehousesim/internal/sim/tuning"
	"warehousesim/internal/sim/warehouse"
	"warehousesim/internal/transport/httpapi"
	"warehousesim/internal/transport/observer"
)

func main() {
	var (
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
		seed       = flag.Int64("seed", 1337, "placement seed for a fresh run when the init request has no SEED")
		adminAddr  = flag.String("admin_addr", "127.0.0.1:8586", "admin/observer listen address (empty to disable)")
		disableDB  = flag.Bool("disable_db", false, "disable indexing (ticks, audits, snapshot metadata)")

		snapPath   = flag.String("snapshot", "", "path to a run snapshot to resume (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", false, "resume the most recent run snapshot under the data dir (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	port := "8585"
	if flag.NArg() > 0 {
		port = strings.TrimSpace(flag.Arg(0))
	}
	addr := port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", *tuningPath)
		tune = tuning.Defaults()
	}

	_ = os.MkdirAll(*dataDir, 0o755)

	// Optional read-model index (does not affect sim determinism).
	idx, err := openRuntimeIndex(*dataDir, *disableDB, logger)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertTuning(tune); err != nil {
			logger.Printf("index backend: upsert tuning: %v", err)
		}
	}

	mirror, err := buildMirror(logger)
	if err != nil {
		logger.Fatalf("init mirror: %v", err)
	}
	defer mirror.Close()

	auditLog := persistlog.NewAuditLogger(*dataDir)
	defer auditLog.Close()

	ctx, cancel := signalContext()
	defer cancel()

	hub := observer.NewHub()
	rt := &runRuntime{dataDir: *dataDir, logger: logger, idx: idx, mirror: mirror, hub: hub}
	defer rt.close()

	api := httpapi.NewServer(httpapi.Options{
		Tuning: tune,
		Seed:   *seed,
		OnInit: func(w *warehouse.Warehouse) { rt.attach(ctx, w) },
		OnStep: rt.afterStep,
		Audit:  multiAuditLogger{a: auditLog, b: idx},
	}, logger)

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestRunSnapshot(*dataDir)
	}
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		w, err := warehouse.ImportSnapshot(snap)
		if err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		w.SetSnapshotEveryTicks(tune.SnapshotEveryTicks)
		api.Adopt(w)
		logger.Printf("resumed run=%s from snapshot=%s tick=%d", w.RunID(), filepath.Base(snapshotToLoad), w.CurrentTick())
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           api,
		ReadHeaderTimeout: 5 * time.Second,
	}
	servers := []*http.Server{srv}

	if *adminAddr != "" && envBool("WAREHOUSE_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		admin := &adminServer{api: api, rt: rt, hub: hub, idx: idx, mirror: mirror, logger: logger}
		servers = append(servers, &http.Server{
			Addr:              *adminAddr,
			Handler:           admin.mux(),
			ReadHeaderTimeout: 5 * time.Second,
		})
	} else {
		logger.Printf("admin endpoints disabled")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range servers {
		s := s
		g.Go(func() error {
			logger.Printf("listening on %s", s.Addr)
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		for _, s := range servers {
			_ = s.Shutdown(ctx2)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.Printf("server: %v", err)
	}

	// Leave a resumable snapshot behind.
	api.With(func(w *warehouse.Warehouse) {
		if path, err := rt.save(w.ExportSnapshot()); err != nil {
			logger.Printf("shutdown snapshot: %v", err)
		} else {
			logger.Printf("shutdown snapshot=%s", path)
		}
	})
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
