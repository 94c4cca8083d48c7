package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/perkly/internal/brand"
	branddomain "github.com/smallbiznis/perkly/internal/brand/domain"
	"github.com/smallbiznis/perkly/internal/card"
	carddomain "github.com/smallbiznis/perkly/internal/card/domain"
	"github.com/smallbiznis/perkly/internal/config"
	"github.com/smallbiznis/perkly/internal/customer"
	customerdomain "github.com/smallbiznis/perkly/internal/customer/domain"
	"github.com/smallbiznis/perkly/internal/events"
	"github.com/smallbiznis/perkly/internal/observability"
	obslogger "github.com/smallbiznis/perkly/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/perkly/internal/observability/metrics"
	obstracing "github.com/smallbiznis/perkly/internal/observability/tracing"
	"github.com/smallbiznis/perkly/internal/program"
	programdomain "github.com/smallbiznis/perkly/internal/program/domain"
	"github.com/smallbiznis/perkly/internal/ratelimit"
	"github.com/smallbiznis/perkly/internal/store"
	storedomain "github.com/smallbiznis/perkly/internal/store/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	events.Module,
	ratelimit.Module,
	brand.Module,
	store.Module,
	customer.Module,
	program.Module,
	card.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Log:             log,
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, log, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine) {
	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
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
	engine      *gin.Engine
	cfg         config.Config
	db          *gorm.DB
	genID       *snowflake.Node
	brandSvc    branddomain.Service
	storeSvc    storedomain.Service
	customerSvc customerdomain.Service
	programSvc  programdomain.Service
	cardSvc     carddomain.Service
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	DB          *gorm.DB
	GenID       *snowflake.Node
	BrandSvc    branddomain.Service
	StoreSvc    storedomain.Service
	CustomerSvc customerdomain.Service
	ProgramSvc  programdomain.Service
	CardSvc     carddomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		db:          p.DB,
		genID:       p.GenID,
		brandSvc:    p.BrandSvc,
		storeSvc:    p.StoreSvc,
		customerSvc: p.CustomerSvc,
		programSvc:  p.ProgramSvc,
		cardSvc:     p.CardSvc,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1", s.OrgRequired())

	// -------- Brands --------
	api.POST("/brands", s.CreateBrand)
	api.GET("/brands", s.ListBrands)
	api.GET("/brands/:id", s.GetBrandByID)
	api.PATCH("/brands/:id", s.UpdateBrand)

	// -------- Stores --------
	api.POST("/stores", s.CreateStore)
	api.GET("/stores", s.ListStores)
	api.GET("/stores/:id", s.GetStoreByID)
	api.PATCH("/stores/:id", s.UpdateStore)

	// -------- Customers --------
	api.POST("/customers", s.CreateCustomer)
	api.GET("/customers", s.ListCustomers)
	api.GET("/customers/:id", s.GetCustomerByID)

	// -------- Programs --------
	api.POST("/programs", s.CreateProgram)
	api.GET("/programs", s.ListPrograms)
	api.GET("/programs/:id", s.GetProgramByID)
	api.PATCH("/programs/:id", s.UpdateProgram)
	api.GET("/programs/:id/analytics", s.GetProgramAnalytics)

	// -------- Rewards --------
	api.POST("/programs/:id/rewards", s.CreateReward)
	api.GET("/programs/:id/rewards", s.ListRewards)
	api.PATCH("/rewards/:id", s.UpdateReward)

	// -------- Cards --------
	api.POST("/cards", s.IssueCard)
	api.GET("/cards", s.ListCards)
	api.GET("/cards/qr/:code", s.GetCardByQRCode)
	api.GET("/cards/:id", s.GetCardByID)
	api.POST("/cards/:id/stamps", s.IssueStamps)
	api.POST("/cards/:id/points", s.AddPoints)
	api.POST("/cards/:id/redeem", s.RedeemReward)
	api.POST("/cards/:id/suspend", s.SuspendCard)
	api.POST("/cards/:id/reactivate", s.ReactivateCard)
	api.GET("/cards/:id/transactions", s.ListCardTransactions)
}
