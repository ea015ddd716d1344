package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/pantry/internal/config"
	flavordomain "github.com/smallbiznis/pantry/internal/flavor/domain"
	ingredientdomain "github.com/smallbiznis/pantry/internal/ingredient/domain"
	"github.com/smallbiznis/pantry/internal/kitchen/board"
	kitchendomain "github.com/smallbiznis/pantry/internal/kitchen/domain"
	"github.com/smallbiznis/pantry/internal/observability"
	obsmiddleware "github.com/smallbiznis/pantry/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/pantry/internal/observability/metrics"
	obstracing "github.com/smallbiznis/pantry/internal/observability/tracing"
	orderdomain "github.com/smallbiznis/pantry/internal/order/domain"
	outboxdomain "github.com/smallbiznis/pantry/internal/outbox/domain"
	stockdomain "github.com/smallbiznis/pantry/internal/stock/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module serves whichever services the app provides.
var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	RegisterValidators()
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(CORS(cfg))
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": cfg.AppName})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(cfg, obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	log    *zap.Logger

	ingredientSvc ingredientdomain.Service
	flavorSvc     flavordomain.Service
	stockSvc      stockdomain.Service
	orderSvc      orderdomain.Service
	kitchenSvc    kitchendomain.Service
	board         *board.Hub
	outbox        outboxdomain.Relay
}

// ServerParams takes every service as optional; each app provides its own
// and gets only the matching routes.
type ServerParams struct {
	fx.In

	Gin *gin.Engine
	Cfg config.Config
	Log *zap.Logger

	IngredientSvc ingredientdomain.Service `optional:"true"`
	FlavorSvc     flavordomain.Service     `optional:"true"`
	StockSvc      stockdomain.Service      `optional:"true"`
	OrderSvc      orderdomain.Service      `optional:"true"`
	KitchenSvc    kitchendomain.Service    `optional:"true"`
	Board         *board.Hub               `optional:"true"`
	Outbox        outboxdomain.Relay       `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("http"),
		ingredientSvc: p.IngredientSvc,
		flavorSvc:     p.FlavorSvc,
		stockSvc:      p.StockSvc,
		orderSvc:      p.OrderSvc,
		kitchenSvc:    p.KitchenSvc,
		board:         p.Board,
		outbox:        p.Outbox,
	}

	if svc.ingredientSvc != nil {
		svc.registerIngredientRoutes()
	}
	if svc.flavorSvc != nil {
		svc.registerFlavorRoutes()
	}
	if svc.stockSvc != nil {
		svc.registerStockRoutes()
	}
	if svc.orderSvc != nil {
		svc.registerOrderRoutes()
	}
	if svc.kitchenSvc != nil {
		svc.registerKitchenRoutes()
	}
	if svc.outbox != nil {
		svc.registerAdminRoutes()
	}
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")
	admin.POST("/process_outbox", s.ProcessOutbox)
	admin.GET("/outbox_status", s.OutboxStatus)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}

func (s *Server) ProcessOutbox(c *gin.Context) {
	result, err := s.outbox.ProcessPending(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, "Outbox processed", result)
}

func (s *Server) OutboxStatus(c *gin.Context) {
	status, err := s.outbox.Status(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}
