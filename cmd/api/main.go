package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"pustak/api/internal/accounts"
	"pustak/api/internal/app"
	"pustak/api/internal/config"
	"pustak/api/internal/gitrepo"
	"pustak/api/internal/media"
	"pustak/api/internal/search"
	"pustak/api/internal/store"
)

// backendStores groups the interfaces one backend satisfies.
type backendStores struct {
	catalog app.CatalogStore
	orders  app.OrderStore
	creds   accounts.CredentialStore
	history app.Historian
	close   func()
}

func main() {
	cfg := config.Load()
	ctx := context.Background()

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		log.Fatalf("store backend %q failed: %v", cfg.StoreBackend, err)
	}
	if backend.close != nil {
		defer backend.close()
	}

	accountsSvc := accounts.NewService(backend.creds)

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliKey)
		defer meiliClient.Close()
	}
	var searcher *search.Service
	if meiliClient != nil {
		searcher = search.NewService(meiliClient, backend.catalog)
	}

	var uploader *media.Uploader
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		uploader, err = media.NewUploader(ctx, media.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			PublicURL: cfg.MinioPublicURL,
		})
		if err != nil {
			log.Fatalf("cover storage failed: %v", err)
		}
	}

	service := app.NewService(backend.catalog, backend.orders, accountsSvc, cfg.JWTSecret, cfg.TokenTTL, app.Options{
		Searcher:      searcher,
		Uploader:      uploader,
		History:       backend.history,
		AdminUsername: cfg.AdminUsername,
		AdminPassword: cfg.AdminPassword,
	})
	if err := service.Bootstrap(ctx); err != nil {
		log.Printf("WARNING: bootstrap error (will retry on next restart): %v", err)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Pustak API listening on %s (backend: %s)", cfg.Addr, cfg.StoreBackend)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func openBackend(ctx context.Context, cfg config.Config) (backendStores, error) {
	switch cfg.StoreBackend {
	case "postgres":
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return backendStores{}, err
		}
		if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
			db.Close()
			return backendStores{}, err
		}
		pg := store.NewPostgresStore(db)
		return backendStores{catalog: pg, orders: pg, creds: pg, close: func() { db.Close() }}, nil

	case "file":
		var journal *gitrepo.Journal
		if strings.TrimSpace(cfg.CatalogRepoDir) != "" {
			var err error
			journal, err = gitrepo.Open(cfg.CatalogRepoDir)
			if err != nil {
				return backendStores{}, err
			}
		}
		fs, err := store.NewFileStore(cfg.DataFile, journal)
		if err != nil {
			return backendStores{}, err
		}
		return backendStores{catalog: fs, orders: fs, creds: fs, history: fs}, nil

	case "redis":
		rs, err := store.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return backendStores{}, err
		}
		return backendStores{catalog: rs, orders: rs, creds: rs, close: func() { _ = rs.Close() }}, nil

	case "memory":
		mem := store.NewMemoryStore()
		return backendStores{catalog: mem, orders: mem, creds: mem}, nil

	default:
		return backendStores{}, errUnknownBackend(cfg.StoreBackend)
	}
}

type errUnknownBackend string

func (e errUnknownBackend) Error() string {
	return "unknown store backend: " + string(e)
}
