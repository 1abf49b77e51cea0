package app

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"mediation-router/internal/common/logging"
	"mediation-router/internal/config"
	"mediation-router/internal/docs"
	"mediation-router/internal/server"
)

// Version is reported at startup
var Version = "dev"

// Run is the main entry point for the application
func Run() error {
	// Load environment variables
	_ = godotenv.Load()

	// Initialize logging
	if err := logging.InitGlobalLogger(); err != nil {
		return err
	}
	defer logging.MustSync()

	logging.Info("Starting mediation router",
		logging.Int("cpus", runtime.NumCPU()),
		logging.String("version", Version),
	)

	docs.SwaggerInfo.Version = Version

	// Load and validate configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logging.Error("Configuration validation failed", err)
		return err
	}

	// Initialize application
	app, err := New(cfg)
	if err != nil {
		logging.Error("Failed to initialize application", err)
		return err
	}
	defer app.Cleanup()

	if err := app.Start(context.Background()); err != nil {
		logging.Error("Failed to start application", err)
		return err
	}

	gateway, admin := app.Servers()
	if err := gateway.Start(); err != nil {
		logging.Error("Gateway failed to start", err)
		return err
	}
	if err := admin.Start(); err != nil {
		logging.Error("Admin server failed to start", err)
		return err
	}

	// Wait for interrupt signal or a listener failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	var serveErr error
	select {
	case <-quit:
	case serveErr = <-gateway.Errors():
	case serveErr = <-admin.Errors():
	}

	logging.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := gateway.Shutdown(ctx); err != nil {
		logging.Error("Gateway forced to shutdown", err)
	}
	if err := admin.Shutdown(ctx); err != nil {
		logging.Error("Admin server forced to shutdown", err)
	}

	// Shutdown application components
	if err := app.Shutdown(ctx); err != nil {
		logging.Warn("Error during app shutdown", logging.Err(err))
	}

	logging.Info("Server exited")
	return serveErr
}

// Servers builds the gateway and admin listeners. Neither is started.
func (app *App) Servers() (*server.Server, *server.Server) {
	gatewayRouter := mux.NewRouter()
	SetupGatewayRoutes(gatewayRouter, app.Handlers, app.Logger)

	adminRouter := mux.NewRouter()
	SetupAdminRoutes(adminRouter, app.Handlers, app.Metrics.Handler(), app.Logger)

	gateway := server.New("gateway", gatewayRouter, ":"+app.Config.Port, app.Config.TLSCert, app.Config.TLSKey, app.Logger)
	admin := server.New("admin", adminRouter, ":"+app.Config.AdminPort, "", "", app.Logger)
	return gateway, admin
}
