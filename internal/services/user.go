package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ezelectronics/ezelectronics-go-app/internal/db"
	"github.com/ezelectronics/ezelectronics-go-app/internal/metrics"
	"github.com/ezelectronics/ezelectronics-go-app/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// UserService is the user directory the HTTP layer resolves callers against
type UserService struct {
	db      *db.DB
	metrics *metrics.AppMetrics
}

// NewUserService creates a new user service
func NewUserService(db *db.DB, metrics *metrics.AppMetrics) *UserService {
	return &UserService{
		db:      db,
		metrics: metrics,
	}
}

// CreateUser creates a new user
func (s *UserService) CreateUser(ctx context.Context, req models.CreateUserRequest) (*models.User, error) {
	if !models.ValidRole(req.Role) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRole, req.Role)
	}

	start := time.Now()
	query := "INSERT INTO users (username, name, surname, role, address) VALUES (?, ?, ?, ?, ?)"
	_, err := s.db.ExecContext(ctx, query,
		req.Username, req.Name, req.Surname, req.Role,
		sql.NullString{String: req.Address, Valid: req.Address != ""},
	)
	s.metrics.RecordDBQuery(ctx, "INSERT", "users", query, start, err == nil)
	if err != nil {
		if isDuplicateEntry(err) {
			return nil, fmt.Errorf("%w: %s", ErrUserAlreadyExists, req.Username)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.metrics.ActiveUsersCount.Record(ctx, 1, metric.WithAttributes(s.metrics.WithServiceName([]attribute.KeyValue{
		attribute.String("session_type", "registered"),
		attribute.String("role", req.Role),
	})...))

	return &models.User{
		Username: req.Username,
		Name:     req.Name,
		Surname:  req.Surname,
		Role:     req.Role,
		Address:  req.Address,
	}, nil
}

// GetByUsername returns a user by username
func (s *UserService) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	start := time.Now()

	query := "SELECT username, name, surname, role, address, birthdate FROM users WHERE username = ?"
	var user models.User
	var address sql.NullString
	var birthdate sql.NullTime
	err := s.db.QueryRowContext(ctx, query, username).Scan(
		&user.Username, &user.Name, &user.Surname, &user.Role, &address, &birthdate,
	)

	s.metrics.RecordDBQuery(ctx, "SELECT", "users", query, start, err == nil || errors.Is(err, sql.ErrNoRows))

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user.Address = address.String
	if birthdate.Valid {
		t := birthdate.Time
		user.Birthdate = &t
	}
	return &user, nil
}
