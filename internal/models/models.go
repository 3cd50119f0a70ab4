package models

import "time"

// Product categories accepted by the catalog
const (
	CategorySmartphone = "Smartphone"
	CategoryLaptop     = "Laptop"
	CategoryAppliance  = "Appliance"
)

// User roles
const (
	RoleCustomer = "Customer"
	RoleManager  = "Manager"
	RoleAdmin    = "Admin"
)

// ValidCategory reports whether category is one of the catalog categories
func ValidCategory(category string) bool {
	switch category {
	case CategorySmartphone, CategoryLaptop, CategoryAppliance:
		return true
	}
	return false
}

// ValidRole reports whether role is a known user role
func ValidRole(role string) bool {
	switch role {
	case RoleCustomer, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// Product represents a product in the catalog
type Product struct {
	Model        string    `json:"model"`
	Category     string    `json:"category"`
	Quantity     int       `json:"quantity"`
	Details      string    `json:"details,omitempty"`
	SellingPrice float64   `json:"sellingPrice"`
	ArrivalDate  time.Time `json:"arrivalDate"`
}

// User represents an entry of the user directory
type User struct {
	Username  string     `json:"username"`
	Name      string     `json:"name"`
	Surname   string     `json:"surname"`
	Role      string     `json:"role"`
	Address   string     `json:"address,omitempty"`
	Birthdate *time.Time `json:"birthdate,omitempty"`
}

// Cart represents a shopping cart with its line items
type Cart struct {
	ID          int64           `json:"id"`
	Customer    string          `json:"customer"`
	Paid        bool            `json:"paid"`
	PaymentDate *time.Time      `json:"paymentDate"`
	Total       float64         `json:"total"`
	Products    []ProductInCart `json:"products"`
}

// ProductInCart is a cart line item. Category and Price come from the
// catalog at read time.
type ProductInCart struct {
	Model    string  `json:"model"`
	Quantity int     `json:"quantity"`
	Category string  `json:"category"`
	Price    float64 `json:"price"`
}

// EmptyCart returns the in-memory cart used when a customer has no open
// cart stored
func EmptyCart(customer string) *Cart {
	return &Cart{
		Customer: customer,
		Products: []ProductInCart{},
	}
}

// RegisterProductRequest represents a request to register a product
type RegisterProductRequest struct {
	Model        string  `json:"model"`
	Category     string  `json:"category"`
	Quantity     int     `json:"quantity"`
	Details      string  `json:"details"`
	SellingPrice float64 `json:"sellingPrice"`
	ArrivalDate  string  `json:"arrivalDate"`
}

// ChangeQuantityRequest represents a restock request
type ChangeQuantityRequest struct {
	Quantity   int    `json:"quantity"`
	ChangeDate string `json:"changeDate"`
}

// SellProductRequest represents a sale request
type SellProductRequest struct {
	Quantity    int    `json:"quantity"`
	SellingDate string `json:"sellingDate"`
}

// QuantityResponse carries a product's stock after a change
type QuantityResponse struct {
	Quantity int `json:"quantity"`
}

// AddToCartRequest represents a request to add a product to the cart
type AddToCartRequest struct {
	Model string `json:"model"`
}

// CreateUserRequest represents a request to create a user
type CreateUserRequest struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Surname  string `json:"surname"`
	Role     string `json:"role"`
	Address  string `json:"address"`
}

// HasRole reports whether the user holds one of roles
func (u *User) HasRole(roles ...string) bool {
	for _, role := range roles {
		if u.Role == role {
			return true
		}
	}
	return false
}
