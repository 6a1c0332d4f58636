package main

import (
	"flag"
	"log/slog"
	"net/http"
	"os"

	"github.com/zakirhyder/huddle/internal/config"
	"github.com/zakirhyder/huddle/internal/coordinator"
	"github.com/zakirhyder/huddle/internal/logging"
	"github.com/zakirhyder/huddle/internal/server"
	"github.com/zakirhyder/huddle/internal/store"
)

func main() {
	logging.Init(slog.LevelInfo)

	var (
		flagListen = flag.String("listen", "", "listen address (overrides HUDDLE_LISTEN)")
		flagStore  = flag.String("store", "", "store driver: sqlite or memory")
		flagDSN    = flag.String("dsn", "", "sqlite database path")
		flagConfig = flag.String("config", "", "config file path")
	)
	flag.Parse()

	cfg, err := config.Load(config.Options{
		ConfigFile:  *flagConfig,
		Listen:      *flagListen,
		StoreDriver: *flagStore,
		StoreDSN:    *flagDSN,
	})
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	st, closeStore, err := openStore(cfg)
	if err != nil {
		slog.Error("failed to open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	hub := coordinator.NewHub(st)
	go hub.Run()

	mux := server.NewMux(hub, st)

	slog.Info("starting coordinator", "listen", cfg.Listen, "store", cfg.StoreDriver)
	if err := http.ListenAndServe(cfg.Listen, mux); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func openStore(cfg *config.Config) (store.Store, func(), error) {
	if cfg.StoreDriver == "memory" {
		return store.NewMemoryStore(), func() {}, nil
	}
	st, err := store.OpenSQLite(cfg.StoreDSN)
	if err != nil {
		return nil, nil, err
	}
	return st, func() { st.Close() }, nil
}
