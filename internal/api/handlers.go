package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ezelectronics/ezelectronics-go-app/internal/db"
	"github.com/ezelectronics/ezelectronics-go-app/internal/metrics"
	"github.com/ezelectronics/ezelectronics-go-app/internal/middleware"
	"github.com/ezelectronics/ezelectronics-go-app/internal/models"
	"github.com/ezelectronics/ezelectronics-go-app/internal/services"
	"github.com/ezelectronics/ezelectronics-go-app/pkg/config"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// App holds application dependencies
type App struct {
	config        *config.Config
	db            *db.DB
	metrics       *metrics.AppMetrics
	ledgerService *services.LedgerService
	cartService   *services.CartService
	userService   *services.UserService
	logger        *zap.Logger
}

// NewApp creates a new application instance
func NewApp(
	cfg *config.Config,
	database *db.DB,
	m *metrics.AppMetrics,
	ls *services.LedgerService,
	cs *services.CartService,
	us *services.UserService,
	logger *zap.Logger,
) *App {
	return &App{
		config:        cfg,
		db:            database,
		metrics:       m,
		ledgerService: ls,
		cartService:   cs,
		userService:   us,
		logger:        logger,
	}
}

// SetupRoutes configures the HTTP routes
func (a *App) SetupRoutes(r *mux.Router) {
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.CORSMiddleware)
	r.Use(middleware.RecoverMiddleware(a.logger))
	r.Use(middleware.MetricsMiddleware(a.metrics, a.logger))

	api := r.PathPrefix("/api/v1").Subrouter()

	staff := []string{models.RoleManager, models.RoleAdmin}

	// Users
	api.HandleFunc("/users", a.CreateUserHandler).Methods("POST")
	api.HandleFunc("/users/{username}", a.authorize(a.GetUserHandler, models.RoleAdmin)).Methods("GET")

	// Products
	api.HandleFunc("/products", a.authorize(a.RegisterProductHandler, staff...)).Methods("POST")
	api.HandleFunc("/products", a.authorize(a.ListProductsHandler, staff...)).Methods("GET")
	api.HandleFunc("/products", a.authorize(a.DeleteAllProductsHandler, staff...)).Methods("DELETE")
	api.HandleFunc("/products/available", a.authorize(a.ListAvailableProductsHandler)).Methods("GET")
	api.HandleFunc("/products/{model}", a.authorize(a.RestockProductHandler, staff...)).Methods("PATCH")
	api.HandleFunc("/products/{model}/sell", a.authorize(a.SellProductHandler, staff...)).Methods("PATCH")
	api.HandleFunc("/products/{model}", a.authorize(a.DeleteProductHandler, staff...)).Methods("DELETE")

	// Carts
	api.HandleFunc("/carts", a.authorize(a.GetCartHandler, models.RoleCustomer)).Methods("GET")
	api.HandleFunc("/carts", a.authorize(a.AddToCartHandler, models.RoleCustomer)).Methods("POST")
	api.HandleFunc("/carts", a.authorize(a.CheckoutHandler, models.RoleCustomer)).Methods("PATCH")
	api.HandleFunc("/carts", a.authorize(a.DeleteAllCartsHandler, staff...)).Methods("DELETE")
	api.HandleFunc("/carts/history", a.authorize(a.CartHistoryHandler, models.RoleCustomer)).Methods("GET")
	api.HandleFunc("/carts/all", a.authorize(a.ListAllCartsHandler, staff...)).Methods("GET")
	api.HandleFunc("/carts/current", a.authorize(a.ClearCartHandler, models.RoleCustomer)).Methods("DELETE")
	api.HandleFunc("/carts/products/{model}", a.authorize(a.RemoveFromCartHandler, models.RoleCustomer)).Methods("DELETE")

	// Health
	r.HandleFunc("/health", a.HealthHandler).Methods("GET")
}

// HealthHandler handles health check requests
func (a *App) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.PingContext(ctx); err != nil {
		a.logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// CreateUserHandler handles POST /api/v1/users
func (a *App) CreateUserHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, r, fmt.Errorf("%w: invalid request body", errInvalidInput))
		return
	}
	if req.Username == "" {
		a.writeError(w, r, fmt.Errorf("%w: username is required", errInvalidInput))
		return
	}

	user, err := a.userService.CreateUser(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// GetUserHandler handles GET /api/v1/users/{username}
func (a *App) GetUserHandler(w http.ResponseWriter, r *http.Request, _ *models.User) {
	user, err := a.userService.GetByUsername(r.Context(), mux.Vars(r)["username"])
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}
