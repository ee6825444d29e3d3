// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/hastinyre/geogle/internal/auth"
	"github.com/hastinyre/geogle/internal/config"
	"github.com/hastinyre/geogle/internal/geodata"
	"github.com/hastinyre/geogle/internal/lobby"
	"github.com/hastinyre/geogle/internal/middleware"
	"github.com/hastinyre/geogle/internal/session"
)

func main() {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(config.LogLevel()); err == nil {
		logger.SetLevel(level)
	}

	if err := auth.Init(); err != nil {
		log.Fatalf("auth init: %v", err)
	}

	store, err := geodata.Load(config.DataDir())
	if err != nil {
		log.Fatalf("loading reference data from %s: %v", config.DataDir(), err)
	}
	logger.Infof("loaded %d countries, %d languages", len(store.Countries), len(store.Languages))

	lobbies := lobby.NewRegistry(store, logger)
	sessions := session.NewRegistry(lobbies, store, logger)
	lobbies.BroadcastAll = sessions.BroadcastAll

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go sessions.RunHeartbeat(ctx)

	mux := http.NewServeMux()
	mux.Handle("/ws", middleware.LogMiddleware(logger)(sessions.Handler()))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	addr := ":" + config.Port()
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		srv.Shutdown(context.Background())
	}()

	logger.Infof("Running on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server exited: %v", err)
	}
}
