package api

import (
	"context"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/wms-platform/stock-ledger-service/internal/application"
	"github.com/wms-platform/stock-ledger-service/internal/projections"
	apperrors "github.com/wms-platform/stock-ledger-service/pkg/errors"
	"github.com/wms-platform/stock-ledger-service/pkg/logging"
	"github.com/wms-platform/stock-ledger-service/pkg/metrics"
)

const tracerName = "stock-ledger-service/api"

// Dependencies are what the HTTP surface serves
type Dependencies struct {
	ServiceName string
	Service     *application.MovementService
	Engine      *projections.Engine
	Reader      *projections.Reader
	Logger      *logging.Logger
	Metrics     *metrics.Metrics

	// Ready reports whether backing stores are reachable; nil means always ready.
	Ready func(ctx context.Context) error

	// AllowedOrigins turns on CORS for these origins; empty disables it.
	AllowedOrigins []string
}

// NewRouter builds the gin engine with middleware and every route
func NewRouter(deps Dependencies) *gin.Engine {
	logger := deps.Logger.WithComponent("http")
	h := &handlers{
		service: deps.Service,
		engine:  deps.Engine,
		reader:  deps.Reader,
	}

	router := gin.New()
	if len(deps.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:  deps.AllowedOrigins,
			AllowMethods:  []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", HeaderRequestID, HeaderCorrelationID, HeaderOperatorID},
			ExposeHeaders: []string{"Content-Length", HeaderRequestID, HeaderCorrelationID},
		}))
	}
	router.Use(Recovery(logger))
	router.Use(RequestID())
	router.Use(Logger(logger))
	router.Use(Metrics(deps.Metrics))
	router.Use(Tracing())
	router.Use(ErrorHandler())

	router.NoRoute(func(c *gin.Context) {
		respondError(c, apperrors.NewAppError("ROUTE_NOT_FOUND", "the requested resource was not found", http.StatusNotFound))
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": deps.ServiceName})
	})
	router.GET("/ready", func(c *gin.Context) {
		if deps.Ready != nil {
			if err := deps.Ready(c.Request.Context()); err != nil {
				respondError(c, apperrors.ErrServiceUnavailable("event store").
					WithDetail("service", deps.ServiceName).
					WithDetail("error", err.Error()).
					Wrap(err))
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "service": deps.ServiceName})
	})
	metricsHandler := deps.Metrics.Handler()
	router.GET("/metrics", func(c *gin.Context) {
		metricsHandler.ServeHTTP(c.Writer, c.Request)
	})

	v1 := router.Group("/api/v1")
	{
		v1.POST("/movements", wrap(h.recordMovement))

		v1.GET("/balances/:warehouse", wrap(h.listBalances))
		v1.GET("/balances/:warehouse/:location/:item", wrap(h.getBalance))

		v1.POST("/reservations", wrap(h.createReservation))
		v1.POST("/reservations/:id/allocate", wrap(h.allocateReservation))
		v1.POST("/reservations/:id/start-picking", wrap(h.startPicking))
		v1.POST("/reservations/:id/consume", wrap(h.consumeReservation))
		v1.POST("/reservations/:id/cancel", wrap(h.cancelReservation))
		v1.POST("/reservations/:id/bump", wrap(h.bumpReservation))

		v1.POST("/handling-units", wrap(h.createHandlingUnit))
		v1.POST("/handling-units/:id/seal", wrap(h.sealHandlingUnit))

		views := v1.Group("/views")
		views.GET("/available-stock/:warehouse/:location/:item", wrap(h.getAvailableStock))
		views.GET("/handling-units/:id", wrap(h.getHandlingUnit))
		views.GET("/reservations/:id", wrap(h.getReservationSummary))
		views.GET("/hard-locks/:id/:location/:item", wrap(h.getHardLock))

		v1.GET("/projections", wrap(h.listProjections))
		v1.POST("/projections/:name/rebuild", wrap(h.rebuildProjection))
	}

	return router
}

// wrap lets handlers return errors; ErrorHandler renders them
func wrap(fn func(*gin.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := fn(c); err != nil {
			_ = c.Error(err)
		}
	}
}
