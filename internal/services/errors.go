package services

import "errors"

// Business errors returned by the services. Callers match them with
// errors.Is; the returned error usually wraps one of these with the
// offending model or customer.
var (
	ErrProductNotFound      = errors.New("product not found")
	ErrProductAlreadyExists = errors.New("product already exists")
	ErrEmptyProductStock    = errors.New("product stock is empty")
	ErrLowProductStock      = errors.New("product stock is lower than requested")
	ErrArrivalDate          = errors.New("date is before the product arrival date or in the future")
	ErrInvalidQuantity      = errors.New("quantity must be positive")
	ErrInvalidPrice         = errors.New("selling price must be positive")
	ErrInvalidCategory      = errors.New("unknown product category")

	ErrCartNotFound     = errors.New("cart not found")
	ErrEmptyCart        = errors.New("cart is empty")
	ErrProductNotInCart = errors.New("product not in cart")

	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrInvalidRole       = errors.New("unknown user role")
)
