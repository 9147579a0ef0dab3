// Package subscriptions manages category email subscriptions.
package subscriptions

import (
	"context"
	"time"

	"github.com/bissquit/subscription-garden/internal/domain"
)

// Repository defines the interface for subscription data access.
//
// Lookups that match nothing return ErrSubscriptionNotFound.
type Repository interface {
	// Create persists a new active subscription.
	// Returns ErrAlreadySubscribed if an active record for the pair already exists.
	Create(ctx context.Context, sub *domain.Subscription) error

	// FindActive returns the active record for (email, category).
	FindActive(ctx context.Context, email string, category domain.Category) (*domain.Subscription, error)

	// FindLatest returns the most recently created record for (email, category),
	// active or not. Ties on created_at are broken by id, descending.
	FindLatest(ctx context.Context, email string, category domain.Category) (*domain.Subscription, error)

	// Delete removes a record by id.
	Delete(ctx context.Context, id string) error

	// MarkDeleted stamps deleted_at on an active record and returns it.
	// Returns ErrAlreadyUnsubscribed if the record was already cancelled.
	MarkDeleted(ctx context.Context, id string, at time.Time) (*domain.Subscription, error)

	// ListByEmail returns records for email, newest first.
	ListByEmail(ctx context.Context, email string, includeDeleted bool) ([]domain.Subscription, error)
}
