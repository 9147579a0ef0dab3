// Package postgres provides PostgreSQL implementation of subscriptions repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/subscription-garden/internal/domain"
	"github.com/bissquit/subscription-garden/internal/subscriptions"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

const selectColumns = `id, email, category, created_at, deleted_at`

// Repository implements subscriptions.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts a new active subscription.
func (r *Repository) Create(ctx context.Context, sub *domain.Subscription) error {
	query := `
		INSERT INTO subscriptions (id, email, category, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.Exec(ctx, query, sub.ID, sub.Email, sub.Category, sub.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return subscriptions.ErrAlreadySubscribed
		}
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

// FindActive returns the active record for (email, category).
func (r *Repository) FindActive(ctx context.Context, email string, category domain.Category) (*domain.Subscription, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM subscriptions
		WHERE email = $1 AND category = $2 AND deleted_at IS NULL
		LIMIT 1
	`
	return r.queryOne(ctx, query, email, category)
}

// FindLatest returns the newest record for (email, category).
func (r *Repository) FindLatest(ctx context.Context, email string, category domain.Category) (*domain.Subscription, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM subscriptions
		WHERE email = $1 AND category = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	return r.queryOne(ctx, query, email, category)
}

// Delete removes a record by id.
func (r *Repository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM subscriptions WHERE id = $1`
	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}

	if result.RowsAffected() == 0 {
		return subscriptions.ErrSubscriptionNotFound
	}
	return nil
}

// MarkDeleted stamps deleted_at on an active record.
func (r *Repository) MarkDeleted(ctx context.Context, id string, at time.Time) (*domain.Subscription, error) {
	query := `
		UPDATE subscriptions
		SET deleted_at = $2
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING ` + selectColumns

	sub, err := r.queryOne(ctx, query, id, at)
	if errors.Is(err, subscriptions.ErrSubscriptionNotFound) {
		return nil, subscriptions.ErrAlreadyUnsubscribed
	}
	return sub, err
}

// ListByEmail returns records for email, newest first.
func (r *Repository) ListByEmail(ctx context.Context, email string, includeDeleted bool) ([]domain.Subscription, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM subscriptions
		WHERE email = $1 AND ($2 OR deleted_at IS NULL)
		ORDER BY created_at DESC, id DESC
	`
	rows, err := r.db.Query(ctx, query, email, includeDeleted)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	subs := make([]domain.Subscription, 0)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}

	return subs, nil
}

func (r *Repository) queryOne(ctx context.Context, query string, args ...any) (*domain.Subscription, error) {
	sub, err := scanSubscription(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, subscriptions.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("query subscription: %w", err)
	}
	return sub, nil
}

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := row.Scan(
		&sub.ID,
		&sub.Email,
		&sub.Category,
		&sub.CreatedAt,
		&sub.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}
