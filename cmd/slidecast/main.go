package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"slidecast/internal/api"
	"slidecast/internal/auth"
	"slidecast/internal/config"
	"slidecast/internal/database"
	"slidecast/internal/directory"
	"slidecast/internal/dispatcher"
	"slidecast/internal/session"
	"slidecast/internal/websocket"
)

// Application wires the components in dependency order:
// database → directory → store → rooms → dispatcher → API → HTTP.
type Application struct {
	config     *config.Config
	db         *database.Manager
	store      *session.Store
	rooms      *websocket.Rooms
	dispatcher *dispatcher.Dispatcher
	httpServer *http.Server

	reaperCancel context.CancelFunc
}

func NewApplication(cfg *config.Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	db, err := database.NewManager(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	dir := directory.NewSQL(db)
	store := session.NewStore(db, dir, dir, cfg.Session.IdleTTL)
	if err := store.Load(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load live sessions: %w", err)
	}

	rooms := websocket.NewRooms()
	disp := dispatcher.New(store, rooms, db)
	store.SetPresence(rooms.Count)

	tokens := auth.NewTokenParser(cfg.Auth.Secret)
	apiServer := api.NewServer(store, disp, db, rooms, tokens)
	wsHandler := websocket.NewHandler(tokens, disp, cfg.WebSocket)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)
	mux.Handle("/", apiServer)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		db:         db,
		store:      store,
		rooms:      rooms,
		dispatcher: disp,
		httpServer: httpServer,
	}, nil
}

func (app *Application) Start(ctx context.Context) error {
	log.Printf("starting slidecast: addr=%s db=%s", app.httpServer.Addr, app.config.Database.Path)

	reaperCtx, cancel := context.WithCancel(ctx)
	app.reaperCancel = cancel
	app.store.StartReaper(reaperCtx, app.config.Session.ReapInterval, app.dispatcher.Reap)

	errCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		cancel()
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("slidecast started: addr=%s", app.httpServer.Addr)
		return nil
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

// Stop tears components down in reverse order: HTTP first so no new
// connections arrive, then the reaper, then storage.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("shutting down slidecast")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("http shutdown error: err=%v", err)
	}
	if app.reaperCancel != nil {
		app.reaperCancel()
	}
	if err := app.db.Close(); err != nil {
		log.Printf("database shutdown error: err=%v", err)
	}

	log.Printf("slidecast shutdown complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("SLIDECAST_CONFIG_FILE"))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	app, err := NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	if err := app.Start(ctx); err != nil {
		return err
	}

	sig := <-signalCh
	log.Printf("received signal, shutting down: signal=%v", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	return app.Stop(shutdownCtx)
}
