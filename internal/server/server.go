package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/joaomazul/LinkedFlow-sub001/internal/ai"
	"github.com/joaomazul/LinkedFlow-sub001/internal/config"
	"github.com/joaomazul/LinkedFlow-sub001/internal/linkedin"
	"github.com/joaomazul/LinkedFlow-sub001/internal/ratelimit"
	"github.com/joaomazul/LinkedFlow-sub001/internal/service"
)

type Server struct {
	Config *config.Config
	DB     *gorm.DB
	Router *gin.Engine
	Logger *zap.Logger
	Server *http.Server

	// Services
	AuthService     *service.AuthService
	CampaignService *service.CampaignService
	LeadService     *service.LeadService
	PollerService   *service.PollerService
	ExecutorService *service.ExecutorService
	EventRecorder   *service.EventRecorder
	StatsUpdater    *service.StatsUpdater
	Scheduler       *service.Scheduler
}

func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	// Set gin mode
	gin.SetMode(cfg.Server.Mode)

	// Initialize database
	db, err := service.NewDatabase(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize clients and quota primitives
	linkedInClient := linkedin.NewClient(&cfg.LinkedIn, logger)
	aiClient := ai.NewClient(&cfg.AI, logger)
	limiter := ratelimit.NewFixedWindowLimiter()
	pacer := ratelimit.NewMemoryPacer()

	// Initialize services
	events := service.NewEventRecorder(db, logger)
	crm := service.NewCRMService(db, logger)
	authService := service.NewAuthService(&cfg.Trigger, logger)
	campaignService := service.NewCampaignService(&cfg.Campaigns, db, logger, linkedInClient, events)
	leadService := service.NewLeadService(&cfg.Executor, db, logger, events)
	pollerService := service.NewPollerService(&cfg.Poller, &cfg.AI, db, logger,
		linkedInClient, aiClient, campaignService, leadService, crm, events, limiter)
	executorService := service.NewExecutorService(&cfg.Executor, db, logger,
		linkedInClient, crm, events, limiter, pacer)
	statsUpdater := service.NewStatsUpdater(&cfg.Stats, db, logger, events)
	scheduler := service.NewScheduler(&cfg.Poller, &cfg.Executor, logger, pollerService, executorService)

	// Create router
	router := gin.New()

	srv := &Server{
		Config:          cfg,
		DB:              db,
		Router:          router,
		Logger:          logger,
		AuthService:     authService,
		CampaignService: campaignService,
		LeadService:     leadService,
		PollerService:   pollerService,
		ExecutorService: executorService,
		EventRecorder:   events,
		StatsUpdater:    statsUpdater,
		Scheduler:       scheduler,
	}

	// Setup middleware and routes
	srv.setupMiddleware()
	srv.setupRoutes()

	return srv, nil
}

func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.Router.Use(gin.Recovery())

	// Logger middleware
	s.Router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	// CORS middleware
	s.Router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Owner-Id, X-Totp-Code")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})
}

func (s *Server) setupRoutes() {
	// Health check
	s.Router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	// API routes
	api := s.Router.Group("/api/v1")
	{
		// Cron trigger routes, called by an external scheduler
		cron := api.Group("/cron")
		cron.Use(s.AuthService.TriggerAuthMiddleware())
		{
			cron.POST("/poll", s.handleTriggerPoll)
			cron.POST("/execute", s.handleTriggerExecute)
		}

		// Operator routes
		campaigns := api.Group("/campaigns")
		{
			campaigns.POST("", s.handleCreateCampaign)
			campaigns.GET("", s.handleListCampaigns)
			campaigns.GET("/:id", s.handleGetCampaign)
			campaigns.POST("/:id/close", s.AuthService.RequireTOTP(), s.handleCloseCampaign)
			campaigns.GET("/:id/leads", s.handleListLeads)
			campaigns.GET("/:id/events", s.handleListEvents)
			campaigns.GET("/:id/stats", s.handleCampaignStats)
		}

		leads := api.Group("/leads")
		{
			leads.POST("/:id/approve", s.handleApproveLead)
			leads.POST("/:id/skip", s.handleSkipLead)
			leads.POST("/:id/regenerate", s.handleRetryGeneration)
			leads.PATCH("/:id/content", s.handleEditLeadContent)
		}
	}
}

func (s *Server) Start(ctx context.Context) error {
	// Start background workers
	s.Scheduler.Start(ctx)
	s.StatsUpdater.Start(ctx)

	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)

	s.Server = &http.Server{
		Addr:    addr,
		Handler: s.Router,
	}

	s.Logger.Info("Starting HTTP server", zap.String("addr", addr))

	if s.Config.Server.CertFile != "" && s.Config.Server.KeyFile != "" {
		return s.Server.ListenAndServeTLS(s.Config.Server.CertFile, s.Config.Server.KeyFile)
	}

	return s.Server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	// Stop background workers first
	s.Scheduler.Stop()
	s.StatsUpdater.Stop()

	if s.Server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return s.Server.Shutdown(shutdownCtx)
}
