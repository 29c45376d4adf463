package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/agents"
	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/auth"
	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/calllogs"
	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/database"
	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/export"
	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/health"
	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/metrics"
	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/middleware"
	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/models"
	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/roles"
	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/virtualization"
	"github.com/PYPE-AI-MAIN/whispey-sub003/pkg/utils"
)

func main() {
	log.Println("🚀 Starting Whispey Call Log API Server")
	startedAt := time.Now()

	// Initialize Sentry before other subsystems so we capture initialization errors
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		env := os.Getenv("SENTRY_ENVIRONMENT")
		release := os.Getenv("SENTRY_RELEASE")
		if release == "" {
			release = os.Getenv("GIT_COMMIT")
		}
		host, _ := os.Hostname()

		opts := sentry.ClientOptions{
			Dsn:         dsn,
			Environment: env,
			Release:     release,
		}
		if host != "" {
			opts.ServerName = host
		}

		if err := sentry.Init(opts); err != nil {
			log.Printf("Sentry initialization failed: %v", err)
		} else {
			sentry.ConfigureScope(func(scope *sentry.Scope) {
				scope.SetTag("service", "whispey-backend")
			})
			defer sentry.Flush(2 * time.Second)
		}
	}

	if os.Getenv("LOG_LEVEL") == "debug" {
		logrus.SetLevel(logrus.DebugLevel)
	}

	// Initialize database
	if err := database.InitDatabase(); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	if err := database.RunMigrations(
		&models.User{},
		&models.Project{},
		&models.ProjectMember{},
		&models.Agent{},
		&models.TokenBlacklist{},
	); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	// Redis backs view sessions and the role cache
	if err := database.InitRedis(); err != nil {
		log.Fatalf("Failed to initialize Redis: %v", err)
	}
	defer database.CloseRedis()

	auth.InitJWT()

	// Start background tasks
	middleware.StartCleanup()
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			auth.CleanupTokenBlacklist(database.DB)
		}
	}()

	// Call-log query engine wiring
	sessionStore := calllogs.NewSessionStore(database.RedisClient, 24*time.Hour)
	fetcher := calllogs.NewStoreFetcher(database.DB)
	exporter := export.NewExporter(export.NewStoreChunkFetcher(database.DB))
	roleLookup := roles.NewCachedLookup(roles.NewDBLookup(database.DB), database.RedisClient, 5*time.Minute)
	callLogHandlers := calllogs.NewHandlers(sessionStore, fetcher, exporter, roleLookup)
	callLogHandlers.StartCleanup(24 * time.Hour)

	// Set up router
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(sentrygin.New(sentrygin.Options{
		Repanic:         true,
		WaitForDelivery: false,
		Timeout:         2 * time.Second,
	}))
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	if os.Getenv("ENABLE_SENTRY_DEBUG_ENDPOINT") == "true" {
		router.GET("/internal/sentry-test", func(c *gin.Context) {
			const msg = "Sentry debug endpoint hit"
			utils.CaptureSentryError(c, nil, msg, nil)
			_ = sentry.Flush(2 * time.Second)
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
	}

	// CORS - MUST be first to handle OPTIONS requests
	corsConfig := middleware.SecureCORSConfig()
	router.Use(cors.New(corsConfig))

	// Security middleware - after CORS
	securityConfig := middleware.GetSecurityConfig()
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestSizeLimit(securityConfig.MaxRequestSize))
	router.Use(middleware.SecurityMonitoring())
	router.Use(middleware.GeneralRateLimit())
	router.Use(middleware.CSRFProtection(auth.AuthCookieName, auth.CSRFCookieName))

	// Health and telemetry endpoints
	router.GET("/health", health.HandleHealthCheck)
	router.GET("/ready", health.HandleSystemReady)
	router.GET("/metrics", metrics.HandlePrometheusMetrics())

	api := router.Group("/api/v1")
	{
		// Public auth routes
		authRoutes := api.Group("/auth")
		{
			authRoutes.GET("/csrf-token", auth.HandleCSRFToken)
			authRoutes.POST("/login", middleware.LoginRateLimit(), middleware.ValidateLoginInput(), auth.HandleLogin)
			authRoutes.POST("/logout", auth.HandleLogout)
		}

		// Protected routes
		protected := api.Group("")
		protected.Use(auth.Middleware(database.DB))
		protected.Use(middleware.APIRateLimit())
		{
			protected.GET("/me", auth.HandleMe)
			protected.GET("/system/metrics", metrics.HandleSystemMetrics)

			projectRoutes := protected.Group("/projects/:projectId")
			{
				projectRoutes.GET("/agents", agents.HandleListAgents)
				projectRoutes.GET("/agents/:agentId", agents.HandleGetAgent)

				agentRoutes := projectRoutes.Group("/agents/:agentId/call-logs")
				{
					agentRoutes.GET("/window", virtualization.HandleComputeWindow)
					agentRoutes.POST("/sessions", callLogHandlers.HandleCreateSession)
					agentRoutes.GET("/sessions/:sessionId", callLogHandlers.HandleGetSession)
					agentRoutes.DELETE("/sessions/:sessionId", callLogHandlers.HandleDeleteSession)
					agentRoutes.PUT("/sessions/:sessionId/filters", callLogHandlers.HandleSetFilters)
					agentRoutes.POST("/sessions/:sessionId/reset", callLogHandlers.HandleResetSession)
					agentRoutes.GET("/sessions/:sessionId/logs", callLogHandlers.HandleFetchPage)
					agentRoutes.GET("/sessions/:sessionId/columns", callLogHandlers.HandleGetColumns)
					agentRoutes.PUT("/sessions/:sessionId/columns", callLogHandlers.HandleSetColumns)
					agentRoutes.GET("/sessions/:sessionId/export", middleware.ExportRateLimit(), callLogHandlers.HandleExport)
				}
			}
		}
	}

	// Status metrics endpoint (outside API group)
	router.GET("/status/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"uptime":   time.Since(startedAt).Seconds(),
			"version":  "1.0.0",
			"status":   "healthy",
			"started":  startedAt,
			"database": database.DB != nil,
		})
	})

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("✅ Server starting on port %s", port)

	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
