package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"blockhaven/internal/persistence/indexdb"
	persistlog "blockhaven/internal/persistence/log"
	"blockhaven/internal/persistence/store"
	"blockhaven/internal/protocol"
	"blockhaven/internal/sim/tuning"
	"blockhaven/internal/sim/world"
	"blockhaven/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		seed       = flag.Int64("seed", 0, "world seed override (0 keeps the tuning value)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite audit index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", tp)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}
	if *seed != 0 {
		tune.Seed = *seed
	}

	st, err := store.Open(filepath.Join(*dataDir, "world"), logger)
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	profiles := st.LoadProfiles()

	w := world.New(tune, st, profiles)

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index", "audit.db"))
		if err != nil {
			logger.Fatalf("open index db: %v", err)
		}
		defer idx.Close()
		if err := idx.RecordTuning(tune); err != nil {
			logger.Printf("index db: record tuning: %v", err)
		}
	}

	auditLog := persistlog.NewAuditLogger(filepath.Join(*dataDir, "logs"))
	defer auditLog.Close()
	w.SetAuditSink(multiAuditSink{a: auditLog, b: idx})

	// Flush writer. The sim hands over copied bytes; disk latency never
	// touches the tick loop.
	flushCh := make(chan store.FlushRequest, 4)
	w.SetFlushSink(flushCh)
	go st.Run(flushCh)

	ctx, cancel := signalContext()
	defer cancel()

	go w.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/status", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(w.CurrentStatus())
	})
	mux.HandleFunc("/join", func(rw http.ResponseWriter, r *http.Request) {
		scheme := "ws"
		if r.TLS != nil {
			scheme = "wss"
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{
			"ws_url":           fmt.Sprintf("%s://%s/v1/ws", scheme, r.Host),
			"protocol_version": protocol.Version,
			"first_message":    "AUTH",
			"note":             "send AUTH, wait for AUTH_OK, then JOIN",
		})
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		m := w.Metrics()
		fmt.Fprintf(rw, "# HELP blockhaven_world_tick Current world tick.\n")
		fmt.Fprintf(rw, "# TYPE blockhaven_world_tick gauge\n")
		fmt.Fprintf(rw, "blockhaven_world_tick %d\n", m.Tick)

		fmt.Fprintf(rw, "# HELP blockhaven_sessions Current number of connected sessions.\n")
		fmt.Fprintf(rw, "# TYPE blockhaven_sessions gauge\n")
		fmt.Fprintf(rw, "blockhaven_sessions %d\n", m.Sessions)

		fmt.Fprintf(rw, "# HELP blockhaven_creatures Current live creature count.\n")
		fmt.Fprintf(rw, "# TYPE blockhaven_creatures gauge\n")
		fmt.Fprintf(rw, "blockhaven_creatures %d\n", m.Creatures)

		fmt.Fprintf(rw, "# HELP blockhaven_loaded_chunks Loaded chunk count.\n")
		fmt.Fprintf(rw, "# TYPE blockhaven_loaded_chunks gauge\n")
		fmt.Fprintf(rw, "blockhaven_loaded_chunks %d\n", m.Chunks)

		fmt.Fprintf(rw, "# HELP blockhaven_step_ms Last tick step duration in milliseconds.\n")
		fmt.Fprintf(rw, "# TYPE blockhaven_step_ms gauge\n")
		fmt.Fprintf(rw, "blockhaven_step_ms %.3f\n", m.StepMS)
	})
	mux.HandleFunc("/v1/ws", ws.NewServer(w, logger).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	// The loop runs its final flush after cancellation; exiting before it
	// finishes would drop dirty chunks and profiles.
	cancel()
	<-w.Done()
	logger.Printf("shutdown complete")
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

type multiAuditSink struct {
	a world.AuditSink
	b *indexdb.SQLiteIndex
}

func (m multiAuditSink) WriteAudit(rec world.AuditRecord) error {
	if m.a != nil {
		_ = m.a.WriteAudit(rec)
	}
	if m.b != nil {
		_ = m.b.WriteAudit(rec)
	}
	return nil
}
