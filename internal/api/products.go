package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ezelectronics/ezelectronics-go-app/internal/models"
	"github.com/gorilla/mux"
)

// RegisterProductHandler handles POST /api/v1/products
func (a *App) RegisterProductHandler(w http.ResponseWriter, r *http.Request, _ *models.User) {
	var req models.RegisterProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, r, fmt.Errorf("%w: invalid request body", errInvalidInput))
		return
	}
	if req.Model == "" {
		a.writeError(w, r, fmt.Errorf("%w: model is required", errInvalidInput))
		return
	}
	arrival, err := parseDate(req.ArrivalDate)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	product := models.Product{
		Model:        req.Model,
		Category:     req.Category,
		Quantity:     req.Quantity,
		Details:      req.Details,
		SellingPrice: req.SellingPrice,
	}
	if arrival != nil {
		product.ArrivalDate = *arrival
	}

	if err := a.ledgerService.Register(r.Context(), product); err != nil {
		a.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

// ListProductsHandler handles GET /api/v1/products. The optional category
// or model query parameter narrows the result.
func (a *App) ListProductsHandler(w http.ResponseWriter, r *http.Request, _ *models.User) {
	category := r.URL.Query().Get("category")
	model := r.URL.Query().Get("model")

	var (
		products []models.Product
		err      error
	)
	switch {
	case category != "" && model != "":
		err = fmt.Errorf("%w: category and model are exclusive", errInvalidInput)
	case model != "":
		var p *models.Product
		if p, err = a.ledgerService.GetByModel(r.Context(), model); err == nil {
			products = []models.Product{*p}
		}
	case category != "":
		products, err = a.ledgerService.GetByCategory(r.Context(), category)
	default:
		products, err = a.ledgerService.GetAll(r.Context())
	}
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, products)
}

// ListAvailableProductsHandler handles GET /api/v1/products/available
func (a *App) ListAvailableProductsHandler(w http.ResponseWriter, r *http.Request, _ *models.User) {
	category := r.URL.Query().Get("category")
	model := r.URL.Query().Get("model")
	if category != "" && model != "" {
		a.writeError(w, r, fmt.Errorf("%w: category and model are exclusive", errInvalidInput))
		return
	}

	products, err := a.ledgerService.GetAvailable(r.Context(), category, model)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, products)
}

// RestockProductHandler handles PATCH /api/v1/products/{model}
func (a *App) RestockProductHandler(w http.ResponseWriter, r *http.Request, _ *models.User) {
	var req models.ChangeQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, r, fmt.Errorf("%w: invalid request body", errInvalidInput))
		return
	}
	date, err := parseDate(req.ChangeDate)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	quantity, err := a.ledgerService.Restock(r.Context(), mux.Vars(r)["model"], req.Quantity, date)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.QuantityResponse{Quantity: quantity})
}

// SellProductHandler handles PATCH /api/v1/products/{model}/sell
func (a *App) SellProductHandler(w http.ResponseWriter, r *http.Request, _ *models.User) {
	var req models.SellProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, r, fmt.Errorf("%w: invalid request body", errInvalidInput))
		return
	}
	date, err := parseDate(req.SellingDate)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	quantity, err := a.ledgerService.Sell(r.Context(), mux.Vars(r)["model"], req.Quantity, date)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.QuantityResponse{Quantity: quantity})
}

// DeleteProductHandler handles DELETE /api/v1/products/{model}
func (a *App) DeleteProductHandler(w http.ResponseWriter, r *http.Request, _ *models.User) {
	if err := a.ledgerService.Delete(r.Context(), mux.Vars(r)["model"]); err != nil {
		a.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// DeleteAllProductsHandler handles DELETE /api/v1/products
func (a *App) DeleteAllProductsHandler(w http.ResponseWriter, r *http.Request, _ *models.User) {
	if err := a.ledgerService.DeleteAll(r.Context()); err != nil {
		a.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}
