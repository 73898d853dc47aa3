package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/judyrop/storefront/internal/auth"
	"github.com/judyrop/storefront/internal/cart"
	"github.com/judyrop/storefront/internal/catalog"
	"github.com/judyrop/storefront/internal/checkout"
	"github.com/judyrop/storefront/internal/config"
	"github.com/judyrop/storefront/internal/handlers"
	"github.com/judyrop/storefront/internal/metrics"
	"github.com/judyrop/storefront/internal/orders"
	"github.com/judyrop/storefront/internal/session"
)

// Deps is everything the router needs from the outside world.
type Deps struct {
	DB       *gorm.DB
	Config   *config.Config
	Log      *logrus.Logger
	Metrics  *metrics.Metrics
	Sessions session.Store
	Verifier auth.TokenVerifier
}

func SetupRouter(d Deps) *gin.Engine {
	cfg := d.Config

	catalogSvc := catalog.NewService(d.DB, d.Log, cfg.PageSize)
	carts := cart.NewService(d.DB, d.Sessions, d.Metrics, d.Log)
	engine := checkout.NewEngine(d.DB, carts, d.Sessions, d.Metrics, d.Log)
	orderSvc := orders.NewService(d.DB, d.Log)

	r := gin.New()
	r.Use(gin.Recovery(), handlers.RequestLogger(d.Log), d.Metrics.Middleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		sqlDB, err := d.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			d.Log.Errorf("Health check failed: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", d.Metrics.Handler())

	shop := r.Group("/")
	shop.Use(auth.Middleware(d.Verifier, auth.CookieConfig{
		Name:   cfg.SessionCookie,
		TTL:    cfg.SessionTTL,
		Secure: cfg.CookieSecure,
	}, d.Log))

	handlers.NewCatalogHandler(catalogSvc, cfg.FeaturedLimit, cfg.RelatedLimit, d.Log).RegisterRoutes(shop)
	handlers.NewCartHandler(carts, d.Log).RegisterRoutes(shop)
	handlers.NewCheckoutHandler(engine, d.Log).RegisterRoutes(shop)
	handlers.NewOrdersHandler(orderSvc, d.Log).RegisterRoutes(shop)

	return r
}
