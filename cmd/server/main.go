package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fileshare/backend/internal/config"
	"github.com/fileshare/backend/internal/database"
	"github.com/fileshare/backend/internal/handlers"
	"github.com/fileshare/backend/internal/middleware"
	"github.com/fileshare/backend/internal/services"
	"github.com/fileshare/backend/internal/storage"
	"github.com/fileshare/backend/pkg/logger"
	"github.com/fileshare/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	logger.Init()

	cfg := config.Load()
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	fileStore, logoStore, err := buildStorage(cfg.Storage)
	if err != nil {
		log.Fatalf("storage initialization failed: %v", err)
	}

	accessService := services.NewAccessService(db)

	authHandler := handlers.NewAuthHandler(db)
	filesHandler := handlers.NewFilesHandler(db, fileStore, accessService, cfg.Upload)
	bundlesHandler := handlers.NewBundlesHandler(db, fileStore, accessService)
	settingsHandler := handlers.NewSettingsHandler(db, logoStore)
	statsHandler := handlers.NewStatsHandler(db)

	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: int(cfg.Upload.MaxSize)})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)
	authRoutes.Put("/password", authMiddleware.RequireAuth, authHandler.ChangePassword)

	fileRoutes := api.Group("/files", authMiddleware.RequireAuth)
	fileRoutes.Post("/upload", filesHandler.UploadFile)
	fileRoutes.Get("/", filesHandler.List)
	fileRoutes.Get("/:id", filesHandler.Get)
	fileRoutes.Put("/:id/visibility", filesHandler.ToggleVisibility)
	fileRoutes.Put("/:id", filesHandler.Rename)
	fileRoutes.Delete("/:id", filesHandler.Delete)

	bundleRoutes := api.Group("/bundles", authMiddleware.RequireAuth)
	bundleRoutes.Post("/", bundlesHandler.Create)
	bundleRoutes.Get("/", bundlesHandler.List)
	bundleRoutes.Get("/:id", bundlesHandler.Get)
	bundleRoutes.Put("/:id/visibility", bundlesHandler.ToggleVisibility)
	bundleRoutes.Put("/:id", bundlesHandler.Update)
	bundleRoutes.Delete("/:id", bundlesHandler.Delete)

	// Share-link routes take OptionalAuth so owners keep access to their
	// private resources while anonymous callers are limited to public ones.
	sharedRoutes := api.Group("/shared", authMiddleware.OptionalAuth)
	sharedRoutes.Get("/files/:token", filesHandler.SharedGet)
	sharedRoutes.Get("/files/:token/view", filesHandler.SharedView)
	sharedRoutes.Get("/files/:token/download", filesHandler.SharedDownload)
	sharedRoutes.Get("/bundles/:token", bundlesHandler.SharedGet)
	sharedRoutes.Get("/bundles/:token/download", bundlesHandler.SharedDownload)

	api.Get("/settings/logo", settingsHandler.GetLogo)
	api.Post("/settings/logo", authMiddleware.RequireAuth, settingsHandler.UploadLogo)
	app.Get("/logo/:filename", settingsHandler.ServeLogo)

	api.Get("/stats", authMiddleware.RequireAuth, statsHandler.Me)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":           cfg.Server.Port,
		"address":        listenAddr,
		"storage_driver": cfg.Storage.Driver,
		"db_driver":      cfg.DB.Driver,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}

// buildStorage wires the configured backend for file blobs and logo blobs.
// The two stores are kept separate so user uploads can never shadow a logo
// name and vice versa.
func buildStorage(cfg config.StorageConfig) (storage.Backend, storage.Backend, error) {
	switch cfg.Driver {
	case "local", "":
		fileStore, err := storage.NewLocalBackend(cfg.Local.UploadDir)
		if err != nil {
			return nil, nil, fmt.Errorf("upload dir: %w", err)
		}
		logoStore, err := storage.NewLocalBackend(cfg.Local.LogoDir)
		if err != nil {
			return nil, nil, fmt.Errorf("logo dir: %w", err)
		}
		return fileStore, logoStore, nil
	case "minio":
		fileStore, err := storage.NewMinIOBackend(cfg.MinIO, "files")
		if err != nil {
			return nil, nil, err
		}
		if err := fileStore.EnsureBucket(context.Background()); err != nil {
			return nil, nil, err
		}
		logoStore, err := storage.NewMinIOBackend(cfg.MinIO, "logos")
		if err != nil {
			return nil, nil, err
		}
		return fileStore, logoStore, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}
