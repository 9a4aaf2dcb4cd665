package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"quizsync/internal/broadcast"
	"quizsync/internal/clock"
	"quizsync/internal/config"
	"quizsync/internal/game"
	"quizsync/internal/players"
	"quizsync/internal/rooms"
	"quizsync/internal/wshub"
)

// Server ties the transport to the game core.
type Server struct {
	cfg  config.Config
	hub  *wshub.Hub
	core *game.Core
}

// Run wires everything up and serves until SIGINT/SIGTERM.
func Run() error {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}
	cfg := config.Load()
	setupLogger(cfg.LogLevel)

	clk := clockwork.NewRealClock()
	registry := players.NewRegistry(cfg.MinRoom, cfg.NumRooms)
	roomMgr := rooms.NewManager(cfg.MinRoom, cfg.NumRooms)
	hub := wshub.NewHub()
	bus := broadcast.NewBus(hub, roomMgr)
	ck := clock.New(cfg, clk)
	core := game.NewCore(cfg, clk, registry, roomMgr, bus, ck)

	ck.Start()
	core.SetInitialSeconds(ck.InitialSeconds())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go core.Run(ctx, ck.Ticks())

	srv := &Server{cfg: cfg, hub: hub, core: core}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.handleWS)
	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.Handle("/metrics", metricsHandler(hub, core, ck))

	handler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowCredentials: true,
	}).Handler(mux)

	httpSrv := &http.Server{
		Addr:    "0.0.0.0:" + cfg.Port,
		Handler: handler,
	}
	go func() {
		<-ctx.Done()
		ck.Stop()
		if err := httpSrv.Shutdown(context.Background()); err != nil {
			log.Error().Err(err).Msg("shutdown")
		}
	}()

	log.Info().Str("port", cfg.Port).Msg("server listening")
	if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func setupLogger(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}
