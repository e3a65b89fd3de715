// README: API gateway; registers HTTP routes on gin and delegates to module services.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/tejith7/project-bolt/internal/http/handlers"
	"github.com/tejith7/project-bolt/internal/http/middleware"
	"github.com/tejith7/project-bolt/internal/infra"
	"github.com/tejith7/project-bolt/internal/logger"
	"github.com/tejith7/project-bolt/internal/types"
)

type ServerDeps struct {
	Rides        handlers.RideEngine
	Observer     handlers.Observer
	Dispatch     handlers.Dispatcher
	Availability handlers.Availability
	Pricing      handlers.Pricer
	History      handlers.HistoryReader
	Profiles     handlers.ProfileService
	Geocoder     handlers.Geocoder
	Verifier     infra.TokenVerifier
	// Health reports dependency problems; nil means always healthy.
	Health         func(ctx context.Context) error
	AllowedOrigins []string
	Log            logger.Logger
}

type Server struct {
	deps ServerDeps
}

func NewServer(deps ServerDeps) *Server {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	return &Server{deps: deps}
}

func (s *Server) Routes() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Recovery(s.deps.Log), middleware.Logging(s.deps.Log))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     s.deps.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", s.health)

	api := r.Group("/api", middleware.Auth(s.deps.Verifier), middleware.ResolveRole(s.roleOf))

	quotes := handlers.NewQuoteHandler(s.deps.Pricing)
	api.POST("/quotes", quotes.Create)

	rides := handlers.NewRideHandler(s.deps.Rides, s.deps.Observer)
	api.POST("/rides", rides.Request)
	api.GET("/rides/current", rides.Current)
	api.GET("/rides/:id", rides.Get)
	api.POST("/rides/:id/cancel", rides.Cancel)

	hist := handlers.NewHistoryHandler(s.deps.History)
	api.GET("/history", hist.List)
	api.GET("/history/:id", hist.Get)

	driver := handlers.NewDriverHandler(s.deps.Dispatch, s.deps.Availability)
	drivers := api.Group("/driver", middleware.RequireRole("driver"))
	drivers.GET("/rides/pending", driver.ListPending)
	drivers.POST("/rides/:id/accept", driver.Accept)
	drivers.POST("/availability", driver.SetAvailability)

	places := handlers.NewPlacesHandler(s.deps.Geocoder)
	api.GET("/places/search", places.Search)
	api.GET("/places/reverse", places.Reverse)

	me := handlers.NewProfileHandler(s.deps.Profiles)
	api.GET("/me", me.Me)
	api.PUT("/me", me.Update)

	return r
}

func (s *Server) roleOf(ctx context.Context, uid string) (string, error) {
	p, err := s.deps.Profiles.Get(ctx, types.ID(uid))
	if err != nil {
		return "", err
	}
	return string(p.Role), nil
}

func (s *Server) health(c *gin.Context) {
	if s.deps.Health != nil {
		if err := s.deps.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
