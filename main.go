package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ACBRI/veritas.ia/config"
	"github.com/ACBRI/veritas.ia/internal/client"
	"github.com/ACBRI/veritas.ia/internal/geo"
	"github.com/ACBRI/veritas.ia/internal/handler"
	"github.com/ACBRI/veritas.ia/internal/messaging"
	"github.com/ACBRI/veritas.ia/internal/offense"
	"github.com/ACBRI/veritas.ia/internal/repository"
	"github.com/ACBRI/veritas.ia/internal/service"
	"github.com/ACBRI/veritas.ia/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config/config.json", "path to the JSON config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Anonymous session
	sessionRepo, closeRepo, err := openSessionRepository(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open session store: %v", err)
	}
	defer closeRepo()

	sessionID, err := service.EnsureSession(ctx, sessionRepo)
	if err != nil {
		log.Fatalf("Failed to load session: %v", err)
	}
	log.Printf("Using session %s (%s store)", sessionID, cfg.Session.Store)

	// Backend client and store
	translator := offense.Default
	reportClient := client.NewReportClient(cfg.Backend.URL, cfg.Backend.Timeout.Duration, translator)
	reportClient.SetSessionID(sessionID)

	store := service.NewReportStore(reportClient, sessionID)

	changeHub := messaging.NewChangeHub()
	go changeHub.Run()
	defer changeHub.Stop()
	store.SetNotifier(changeHub)

	// Push updates
	var wsDialer *messaging.WebSocketDialer
	var dialer messaging.Dialer
	switch cfg.Push.Transport {
	case config.TransportWebSocket:
		wsDialer = messaging.NewWebSocketDialer(cfg.Push.URL)
		if cfg.Sync.InitialBounds != nil {
			wsDialer.SetBounds(*cfg.Sync.InitialBounds)
		}
		dialer = wsDialer
	case config.TransportRabbitMQ:
		rmq := cfg.Push.RabbitMQ
		dialer = messaging.NewRabbitMQDialer(rmq.Host, rmq.Port, rmq.User, rmq.Password)
	}

	if dialer != nil {
		pushClient := messaging.NewPushClient(dialer, translator, cfg.Push.ReconnectDelay.Duration)
		pushClient.SetHandler(store.ApplyPushEvent)
		pushClient.SetStateListener(func(s messaging.State) {
			store.SetConnection(s == messaging.StateConnected)
		})
		if err := pushClient.Start(ctx); err != nil {
			log.Fatalf("Failed to start push client: %v", err)
		}
		defer pushClient.Close()
	} else {
		log.Println("Push updates disabled")
	}

	// Periodic sync
	syncWorker := worker.NewSyncWorker(store, cfg.Sync.RefreshInterval.Duration, cfg.Sync.Retention.Duration)
	if b := cfg.Sync.InitialBounds; b != nil {
		if err := syncWorker.WarmUp(ctx, geo.Explicit(*b), nil); err != nil {
			log.Printf("sync: warm-up failed: %v", err)
		}
	}
	if err := syncWorker.Start(); err != nil {
		log.Fatalf("Failed to start sync worker: %v", err)
	}
	defer syncWorker.Stop()

	// HTTP bridge
	reportHandler := handler.NewReportHandler(store, reportClient)
	if wsDialer != nil {
		reportHandler.SetViewportListener(wsDialer.SetBounds)
	}
	streamHandler := handler.NewStreamHandler(store, changeHub, cfg.Stream.JWTSecret)

	r := gin.Default()
	handler.RegisterRoutes(r, reportHandler, streamHandler)

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		log.Printf("Veritas sync bridge starting on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutdown signal received...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown: %v", err)
	}
	log.Println("Veritas sync bridge stopped gracefully")
}

func openSessionRepository(ctx context.Context, cfg *config.Config) (service.SessionRepository, func(), error) {
	if cfg.Session.Store != config.SessionStorePostgres {
		return repository.NewFileSessionRepository(cfg.Session.Path), func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}
	log.Println("Connected to database")

	repo := repository.NewPostgresSessionRepository(db, cfg.Session.ClientKey)
	if err := repo.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("create session table: %w", err)
	}
	return repo, func() { db.Close() }, nil
}
