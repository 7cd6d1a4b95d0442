package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"blagajna/internal/database"
	"blagajna/internal/fiscal"
	"blagajna/internal/handler"
	"blagajna/internal/logger"
	"blagajna/internal/middleware"
	"blagajna/internal/repository"
	"blagajna/internal/sequencer"
	"blagajna/internal/service"
	"blagajna/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API that issues invoices and stornos, lists the invoice ledger and
pushes confirmed invoices to websocket clients.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	cfg := a.cfg

	db, err := database.NewConnection(cfg.DSN(), logger.WithComponent("database"))
	if err != nil {
		return err
	}
	a.log.Info().Str("host", cfg.DBHost).Str("db", cfg.DBName).Msg("Connected to PostgreSQL successfully.")

	// Set up WebSocket Hub
	wsHub := websocket.NewHub(logger.WithComponent("websocket"))
	go wsHub.Run()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	// Set up dependencies (Repository -> Service -> Handler)
	invoiceRepo := repository.NewInvoiceRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	txManager := repository.NewTransactionManager(db)

	invoiceService := service.NewInvoiceService(
		invoiceRepo,
		auditRepo,
		txManager,
		sequencer.New(invoiceRepo),
		fiscal.NewBuilder(a.identity, cfg.TaxNumber, loc),
		a.authority,
		wsHub,
		service.InvoiceConfig{
			PremiseID:          cfg.BusinessPremiseID,
			DeviceID:           cfg.ElectronicDeviceID,
			MaxConflictRetries: cfg.MaxConflictRetries,
		},
		logger.WithComponent("invoices"),
	)
	auditService := service.NewAuditService(auditRepo)

	// Initialize Handlers
	auth := middleware.NewAuth(cfg.JWTSecret)
	invoiceHandler := handler.NewInvoiceHandler(invoiceService, auth)
	auditHandler := handler.NewAuditHandler(auditService, auth)
	authorityHandler := handler.NewAuthorityHandler(a.authority, auth)

	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK", "ws_clients": wsHub.ClientCount()})
	})

	// WebSocket endpoint
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, auth.Secret(), middleware.RoleCashier, middleware.RoleManager, middleware.RoleAdmin)
	})

	// API Routing
	invoiceHandler.RegisterRoutes(router.Group(""))
	auditHandler.RegisterRoutes(router.Group(""))
	authorityHandler.RegisterRoutes(router.Group(""))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		a.log.Info().Str("port", cfg.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// In-flight submissions finish inside the shutdown window so no number is left
	// without a stored outcome.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.AuthorityTimeout+5*time.Second)
	defer cancel()
	a.log.Info().Msg("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func requestLogger() gin.HandlerFunc {
	log := logger.WithComponent("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	}
}
