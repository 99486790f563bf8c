package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"fieldline.dev/internal/audit"
	"fieldline.dev/internal/authz"
	"fieldline.dev/internal/config"
	"fieldline.dev/internal/credential"
	"fieldline.dev/internal/obs"
	"fieldline.dev/internal/store/pg"
	"fieldline.dev/internal/token"
)

var version = "0.3.1"

func main() {
	cfg, err := config.Load()
	if err != nil {
		// No logger yet; configuration problems are fatal before anything runs.
		fallback := obs.NewLogger("production", "info")
		fallback.Fatal().Err(err).Msg("configuration invalid")
	}
	log := obs.NewLogger(cfg.Env, cfg.LogLevel)

	obs.Init()
	obs.InitBuildInfo(version)

	var db *sql.DB
	if cfg.PostgresDSN != "" {
		db, err = sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("open database")
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		defer db.Close()
	}

	var auditStore audit.Store
	var directory authz.Directory
	if db != nil {
		auditStore = pg.NewAuditStore(db)
		directory = pg.NewDirectory(db)
	} else {
		log.Warn().Msg("no database configured, using in-memory audit store")
		auditStore = audit.NewMemoryStore()
	}

	recorderOpts := []audit.Option{audit.WithLogger(log)}
	if !cfg.Strict() {
		recorderOpts = append(recorderOpts, audit.WithRelaxedMode())
	}
	recorder, err := audit.NewRecorder(auditStore, recorderOpts...)
	if err != nil {
		log.Fatal().Err(err).Msg("build audit recorder")
	}

	if _, err := credential.NewStore(cfg.HashIterations); err != nil {
		log.Fatal().Err(err).Msg("build credential store")
	}

	tokenOpts := []token.Option{
		token.WithTTL(cfg.TokenTTL),
		token.WithRefreshGrace(cfg.RefreshGrace),
		token.WithIssuer(cfg.Issuer),
	}
	if directory != nil {
		tokenOpts = append(tokenOpts, token.WithDirectory(directory))
	}
	if _, err := token.NewService(cfg.SigningKey, recorder, tokenOpts...); err != nil {
		log.Fatal().Err(err).Msg("build token service")
	}

	if directory != nil {
		if _, err := authz.NewEngine(directory, recorder); err != nil {
			log.Fatal().Err(err).Msg("build authorization engine")
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", obs.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				http.Error(w, "database unreachable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info().Str("version", version).Str("addr", srv.Addr).Str("audit_mode", cfg.AuditMode).Msg("fieldlined starting")

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
