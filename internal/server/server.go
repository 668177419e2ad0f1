package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"foodrun/internal/config"
	"foodrun/internal/usecase"

	"github.com/gin-gonic/gin"
)

type Server struct {
	cfg    config.Config
	orders *usecase.OrderService
	auth   *usecase.AuthService
	dishes *usecase.DishService
	log    *slog.Logger
	engine *gin.Engine
}

type Deps struct {
	Orders *usecase.OrderService
	Auth   *usecase.AuthService
	Dishes *usecase.DishService
	Log    *slog.Logger
}

func New(cfg config.Config, d Deps) *Server {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		orders: d.Orders,
		auth:   d.Auth,
		dishes: d.Dishes,
		log:    log,
		engine: gin.New(),
	}
	s.engine.Use(gin.Recovery(), corsMiddleware(), s.requestLogger())
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	r := s.engine
	r.GET("/health", func(c *gin.Context) { ok(c, gin.H{"status": "up"}) })

	authAPI := r.Group("/api/v1/auth")
	authAPI.POST("/register", s.handleRegister)
	authAPI.POST("/login", s.handleLogin)

	r.GET("/restaurants", s.handleListRestaurants)
	r.GET("/kitchen/dishes/restaurant/:restaurantId", s.handleListDishes)
	kitchen := r.Group("/kitchen/dishes", s.requireAuth(chef))
	kitchen.POST("", s.handleCreateDish)
	kitchen.PATCH("/:id", s.handleUpdateDish)
	kitchen.DELETE("/:id", s.handleDeleteDish)

	orders := r.Group("/orders")
	orders.POST("", s.requireAuth(client), s.handleCreateOrder)
	orders.GET("/ByIdClient/:customerId", s.requireAuth(client), s.handleListClientOrders)
	orders.GET("/restaurant/:restaurantId", s.requireAuth(chef), s.handleListRestaurantOrders)
	orders.PATCH("/byId/:orderId", s.requireAuth(chef, courier), s.handleUpdateOrder)

	delivery := r.Group("/delivery", s.requireAuth(courier))
	delivery.GET("", s.handleListReadyDeliveries)
	delivery.POST("/assign/:orderId", s.handleAssignDelivery)
	delivery.GET("/deliveryPerson/:courierId", s.handleListCourierDeliveries)
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "action", "server_start", "port", s.cfg.Port)
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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info("http server stopping", "action", "server_stop")
	return srv.Shutdown(shutdownCtx)
}
