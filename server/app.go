package server

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cardlink/config"
	"cardlink/internal/db"
	"cardlink/internal/directory"
	"cardlink/internal/health"
	"cardlink/internal/logs"
	"cardlink/internal/middleware"
	"cardlink/internal/models"
	"cardlink/internal/relay"

	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type App struct {
	cfg        *config.Config
	Router     *mux.Router
	Hub        *relay.Hub
	httpServer *http.Server

	db     *gorm.DB
	ctx    context.Context
	cancel context.CancelFunc
}

func (a *App) Initialize(cfg *config.Config) {
	a.cfg = cfg

	// 1) Логи
	logs.Init(logs.Options{
		Level:  a.cfg.Logging.Level,
		Format: a.cfg.Logging.Format,
		File:   a.cfg.Logging.File,
	})

	// 2) БД (опционально — relay умеет жить без справочника)
	if drv := a.cfg.Database.Driver; drv != "" {
		d, err := db.Open(drv, a.cfg.Database.DSN)
		if err != nil {
			log.Fatalf("db open failed: %v", err)
		}
		a.db = d
		if err := a.db.AutoMigrate(
			&models.Student{},
			&models.Card{},
		); err != nil {
			logs.Logger.Errorf("automigrate: %v", err)
		}
	}

	// 3) Роутер + middleware
	a.Router = mux.NewRouter()
	a.Router.Use(middleware.RequestID)
	a.Router.Use(middleware.Recoverer)
	a.Router.Use(middleware.LoggerMW)

	// 4) Health
	if a.db != nil {
		health.RegisterRoutesWithDB(a.Router, a.db) // /healthz и /readyz
	} else {
		health.RegisterRoutes(a.Router) // только /healthz
	}

	// 5) Справочник карт (если есть БД)
	var lookup directory.Lookup
	if a.db != nil {
		repo := directory.NewRepo(a.db)
		lookup = repo
		directory.NewHTTP(repo).RegisterRoutes(a.Router)
	}

	// 6) Relay: hub + websocket/REST ручки
	a.Hub = relay.NewHub(lookup, a.cfg.Relay.WriteTimeout)
	relay.NewHandler(a.Hub, a.cfg.Relay.AllowedOrigins).RegisterRoutes(a.Router)

	a.Router.Walk(func(rt *mux.Route, r *mux.Router, ancestors []*mux.Route) error {
		path, _ := rt.GetPathTemplate()
		methods, _ := rt.GetMethods()
		log.Printf("route: %-6v %s", methods, path)
		return nil
	})
}

func (a *App) Run() error {
	if a.Router == nil || a.cfg == nil {
		return ErrNotInitialized
	}
	bind := net.JoinHostPort(a.cfg.Server.Address, a.cfg.Server.HTTPPort)

	a.ctx, a.cancel = context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() { <-sigs; a.cancel() }()

	a.httpServer = &http.Server{
		Addr:        bind,
		Handler:     a.Router,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout не ставим: он убивал бы долгоживущие websocket-сессии
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("HTTP listening on %s", bind)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-a.ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.httpServer.Shutdown(ctx)
	return nil
}

var ErrNotInitialized = &initError{"server not initialized (call Initialize(cfg) first)"}

type initError struct{ s string }

func (e *initError) Error() string { return e.s }
