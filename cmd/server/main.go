// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Corphon/DialogWeaverMCP/internal/api"
	"github.com/Corphon/DialogWeaverMCP/internal/app"
	"github.com/Corphon/DialogWeaverMCP/internal/config"
	"github.com/Corphon/DialogWeaverMCP/internal/utils"
	"github.com/gin-gonic/gin"
)

func main() {
	log.Println("starting DialogWeaverMCP server...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("loading configuration failed: %v", err)
	}

	createDirectories(cfg)

	if err := utils.InitLogger(filepath.Join(cfg.LogDir, "server.log")); err != nil {
		log.Fatalf("initializing logger failed: %v", err)
	}
	logger := utils.GetLogger()
	if cfg.DebugMode {
		logger.SetLogLevel(utils.DEBUG)
	}

	if err := app.InitServices(cfg); err != nil {
		log.Fatalf("initializing services failed: %v", err)
	}

	if err := app.HealthCheck(); err != nil {
		log.Fatalf("service health check failed: %v", err)
	}

	router, err := api.SetupRouter(cfg)
	if err != nil {
		log.Fatalf("setting up routes failed: %v", err)
	}

	logger.Info("server listening", "port", cfg.Port)
	runWithGracefulShutdown(router, cfg.Port)
}

// runWithGracefulShutdown serves until SIGINT/SIGTERM, then drains
// in-flight requests before exiting
func runWithGracefulShutdown(router *gin.Engine, port string) {
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced server shutdown: %v", err)
	}

	log.Println("server stopped")
}

// createDirectories ensures the data layout exists before services
// touch it
func createDirectories(cfg *config.Config) {
	dirs := []string{
		cfg.DataDir,
		filepath.Join(cfg.DataDir, "dialogs"),
		filepath.Join(cfg.DataDir, "characters"),
		filepath.Join(cfg.DataDir, "scenes"),
		filepath.Join(cfg.DataDir, "exports"),
		cfg.LogDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("creating directory %s failed: %v", dir, err)
		}
	}
}
