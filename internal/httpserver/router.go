package httpserver

import (
	"log"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
)

// Deps carries the services the router exposes.
type Deps struct {
	Abandoned AbandonedService
	Todos     TodoService
	Metrics   MetricsQueue
}

// MetricsQueue exposes the scheduler's buffered depth for health checks.
type MetricsQueue interface {
	Pending() int
}

// buildRouter wires routes for the API.
func buildRouter(logger *log.Logger, client *mongo.Client, deps Deps, corsOrigins []string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.LoggerWithWriter(logger.Writer()), gin.Recovery())

	if len(corsOrigins) > 0 {
		router.Use(cors.New(corsConfig(corsOrigins)))
	}

	router.GET("/healthz", healthHandler(deps.Metrics))
	router.GET("/readyz", readyHandler(client))

	abandoned := &abandonedHandlers{svc: deps.Abandoned, logger: logger}
	router.POST("/:sellerId/abandoned/cart", abandoned.createCart)
	router.PUT("/:sellerId/abandoned/cart/:cartId", abandoned.updateCart)
	router.POST("/:sellerId/abandoned/checkout", abandoned.createCheckout)
	router.PUT("/:sellerId/abandoned/checkout/:checkoutUlid", abandoned.updateCheckout)
	router.PATCH("/:sellerId/abandoned/recover", abandoned.markAsRecovered)
	router.POST("/abandoned/flat-batch", abandoned.flatBatch)

	todos := &todoHandlers{svc: deps.Todos}
	router.GET("/todos", todos.list)
	router.POST("/todos", todos.create)
	router.GET("/todos/:id", todos.get)
	router.PUT("/todos/:id", todos.update)
	router.DELETE("/todos/:id", todos.remove)

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization"},
	}
	for _, origin := range origins {
		if origin == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	return cfg
}
