package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mediationai/mediator/internal/api/handlers"
	mw "github.com/mediationai/mediator/internal/api/middleware"
	"github.com/mediationai/mediator/internal/blob"
	"github.com/mediationai/mediator/internal/buildconfig"
	"github.com/mediationai/mediator/internal/config"
	"github.com/mediationai/mediator/internal/domain"
	"github.com/mediationai/mediator/internal/events"
	"github.com/mediationai/mediator/internal/llm"
	"github.com/mediationai/mediator/internal/payment"
	"github.com/mediationai/mediator/internal/service"
	"github.com/mediationai/mediator/internal/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Dependencies are the external systems the app runs against. Nil fields
// fall back to in-process implementations chosen by config.
type Dependencies struct {
	DB       *pgxpool.Pool
	Redis    *redis.Client
	LLM      domain.ResolutionClient
	Blobs    domain.BlobStore
	Payments domain.PaymentGateway
}

// App holds the router and background services for lifecycle management.
type App struct {
	Router      *chi.Mux
	Resolutions *service.ResolutionRunner
	Hub         *events.Hub
	Bridge      *events.RedisBridge

	db           *pgxpool.Pool
	metrics      *mw.MetricsCollector
	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
}

func NewApp(deps Dependencies, logger *zap.Logger) *App {
	// Stores
	var disputeStore domain.DisputeStore
	var userStore domain.UserStore
	if deps.DB != nil {
		disputeStore = store.NewDisputeStore(deps.DB)
		userStore = store.NewUserStore(deps.DB)
	} else {
		disputeStore = store.NewMemoryDisputeStore()
		userStore = store.NewMemoryUserStore()
	}

	// External clients via provider factory
	llmClient := deps.LLM
	if llmClient == nil {
		llmProvider := config.LLMProvider()
		var err error
		llmClient, err = llm.NewClient(llmProvider, config.LLMAPIKey())
		if err != nil {
			logger.Warn("LLM client initialization failed, using mock", zap.String("provider", llmProvider), zap.Error(err))
			llmClient = llm.NewMockClient()
		} else {
			logger.Info("LLM client initialized", zap.String("provider", llmProvider))
		}
		if mock, ok := llmClient.(*llm.MockClient); ok {
			mock.Delay = config.MockResolutionDelay()
		}
	}

	gateway := deps.Payments
	if gateway == nil {
		var err error
		gateway, err = payment.NewGateway(config.PaymentProvider())
		if err != nil {
			logger.Warn("payment gateway initialization failed, using mock", zap.Error(err))
			gateway = payment.NewMockGateway(true)
		}
	}

	blobs := deps.Blobs
	if blobs == nil {
		blobs = blob.NewMemoryStore()
	}

	// Events
	hub := events.NewHub(logger)
	var publisher domain.EventPublisher = hub
	var bridge *events.RedisBridge
	if deps.Redis != nil {
		bridge = events.NewRedisBridge(deps.Redis, hub, logger)
		publisher = bridge
	}

	// Services
	userSvc := service.NewUserService(userStore, logger)
	billing := service.NewBillingGate(userStore, gateway, config.FreeActions(), config.ActionPriceCents(), logger)
	runner := service.NewResolutionRunner(disputeStore, llmClient, publisher, logger)
	runner.SetTimeout(config.ResolutionTimeout())
	runner.SetMaxAttempts(config.ResolutionMaxAttempts())
	runner.SetSweepInterval(config.ResolutionSweepInterval())
	disputeSvc := service.NewDisputeService(disputeStore, billing, blobs, runner, publisher, service.DisputeOptions{
		PublicBaseURL:      config.PublicBaseURL(),
		MaxAttachmentBytes: config.MaxAttachmentBytes(),
	}, logger)

	// Handlers
	userHandler := handlers.NewUserHandler(userSvc, logger)
	disputeHandler := handlers.NewDisputeHandler(disputeSvc, logger)
	truthHandler := handlers.NewTruthHandler(disputeSvc, config.MaxAttachmentBytes(), logger)
	wsHandler := handlers.NewWSHandler(disputeSvc, hub, logger)
	adminHandler := handlers.NewAdminHandler(disputeSvc, logger)

	r := chi.NewRouter()

	app := &App{
		Router:      r,
		Resolutions: runner,
		Hub:         hub,
		Bridge:      bridge,
		db:          deps.DB,
		startTime:   time.Now(),
	}
	app.metrics = mw.NewMetricsCollector(&app.requestCount, &app.errorCount)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(app.metrics.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	// Health and metrics (no auth)
	r.Get("/health", app.healthHandler())
	r.Get("/metrics", app.metricsHandler())

	r.Route("/v1", func(r chi.Router) {
		// Account bootstrap (no auth)
		r.Post("/users", userHandler.SignUp)
		r.Post("/sessions", userHandler.SignIn)

		r.Group(func(r chi.Router) {
			r.Use(mw.TokenAuth(userSvc, logger))

			r.Get("/me", userHandler.Me)

			r.Route("/disputes", func(r chi.Router) {
				r.Post("/", disputeHandler.Create)
				r.Get("/", disputeHandler.List)
				r.Post("/join", disputeHandler.Join)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", disputeHandler.GetByID)
					r.Post("/truths", truthHandler.Submit)
					r.Get("/resolution", disputeHandler.GetResolution)
					r.Post("/resolution/retry", disputeHandler.RetryResolution)
					r.Get("/attachments/{attachmentID}", truthHandler.GetAttachment)
					r.Get("/ws", wsHandler.DisputeEvents)
				})
			})
		})

		// Admin console
		r.Route("/admin", func(r chi.Router) {
			r.Use(mw.AdminKeyAuth(config.AdminAPIKey()))
			r.Get("/disputes", adminHandler.ListDisputes)
			r.Get("/disputes/{id}", adminHandler.GetDispute)
			r.Get("/events/ws", wsHandler.AllEvents)
		})
	})

	return app
}

// Start launches the resolution sweep and the cross-instance event relay.
func (app *App) Start() {
	app.Resolutions.Start()
	if app.Bridge != nil {
		app.Bridge.Start()
	}
}

// Stop halts background work. In-flight resolutions stay pending and are
// picked up by the next sweep.
func (app *App) Stop() {
	if app.Bridge != nil {
		app.Bridge.Stop()
	}
	app.Resolutions.Stop()
}

func (app *App) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if app.db != nil {
			if err := app.db.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
				return
			}
		}

		info := buildconfig.VersionInfo()
		info["status"] = "ok"
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(info)
	}
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds":        uptime.Seconds(),
			"uptime_human":          uptime.Round(time.Second).String(),
			"request_count":         app.requestCount.Load(),
			"error_count":           app.errorCount.Load(),
			"server_error_count":    app.metrics.ServerErrors(),
			"websocket_upgrades":    app.metrics.Upgrades(),
			"event_subscribers":     app.Hub.SubscriberCount(),
			"resolutions_in_flight": app.Resolutions.InFlight(),
			"goroutines":            runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// Ensure stores and clients satisfy interfaces at compile time.
var (
	_ domain.DisputeStore     = (*store.DisputeStore)(nil)
	_ domain.DisputeStore     = (*store.MemoryDisputeStore)(nil)
	_ domain.UserStore        = (*store.UserStore)(nil)
	_ domain.UserStore        = (*store.MemoryUserStore)(nil)
	_ domain.ResolutionClient = (*llm.OpenAIClient)(nil)
	_ domain.ResolutionClient = (*llm.AnthropicClient)(nil)
	_ domain.ResolutionClient = (*llm.GeminiClient)(nil)
	_ domain.ResolutionClient = (*llm.MockClient)(nil)
	_ domain.PaymentGateway   = (*payment.MockGateway)(nil)
	_ domain.EventPublisher   = (*events.Hub)(nil)
	_ domain.EventPublisher   = (*events.RedisBridge)(nil)
	_ handlers.Subscriber     = (*events.Hub)(nil)
	_ mw.Authenticator        = (*service.UserService)(nil)
)
