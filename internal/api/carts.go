package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ezelectronics/ezelectronics-go-app/internal/models"
	"github.com/gorilla/mux"
)

// GetCartHandler handles GET /api/v1/carts
func (a *App) GetCartHandler(w http.ResponseWriter, r *http.Request, user *models.User) {
	cart, err := a.cartService.GetCart(r.Context(), user)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, cart)
}

// AddToCartHandler handles POST /api/v1/carts
func (a *App) AddToCartHandler(w http.ResponseWriter, r *http.Request, user *models.User) {
	var req models.AddToCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, r, fmt.Errorf("%w: invalid request body", errInvalidInput))
		return
	}
	if req.Model == "" {
		a.writeError(w, r, fmt.Errorf("%w: model is required", errInvalidInput))
		return
	}

	if err := a.cartService.AddProduct(r.Context(), user, req.Model); err != nil {
		a.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// CheckoutHandler handles PATCH /api/v1/carts
func (a *App) CheckoutHandler(w http.ResponseWriter, r *http.Request, user *models.User) {
	if err := a.cartService.Checkout(r.Context(), user); err != nil {
		a.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// CartHistoryHandler handles GET /api/v1/carts/history
func (a *App) CartHistoryHandler(w http.ResponseWriter, r *http.Request, user *models.User) {
	carts, err := a.cartService.GetPaidCarts(r.Context(), user)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, carts)
}

// RemoveFromCartHandler handles DELETE /api/v1/carts/products/{model}
func (a *App) RemoveFromCartHandler(w http.ResponseWriter, r *http.Request, user *models.User) {
	if err := a.cartService.RemoveProduct(r.Context(), user, mux.Vars(r)["model"]); err != nil {
		a.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// ClearCartHandler handles DELETE /api/v1/carts/current
func (a *App) ClearCartHandler(w http.ResponseWriter, r *http.Request, user *models.User) {
	if err := a.cartService.ClearCart(r.Context(), user); err != nil {
		a.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// DeleteAllCartsHandler handles DELETE /api/v1/carts
func (a *App) DeleteAllCartsHandler(w http.ResponseWriter, r *http.Request, _ *models.User) {
	if err := a.cartService.DeleteAllCarts(r.Context()); err != nil {
		a.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// ListAllCartsHandler handles GET /api/v1/carts/all
func (a *App) ListAllCartsHandler(w http.ResponseWriter, r *http.Request, _ *models.User) {
	carts, err := a.cartService.GetAllCarts(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, carts)
}
