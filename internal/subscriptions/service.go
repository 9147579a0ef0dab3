package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/subscription-garden/internal/domain"
	"github.com/bissquit/subscription-garden/internal/pkg/ctxlog"
	"github.com/google/uuid"
)

// Notifier is called after a subscription changes state.
// Errors are logged by the service and never fail the request.
type Notifier interface {
	SubscriptionCreated(ctx context.Context, sub *domain.Subscription) error
	SubscriptionCancelled(ctx context.Context, sub *domain.Subscription) error
}

// Service implements the subscription state model.
type Service struct {
	repo      Repository
	registry  *domain.CategoryRegistry
	validator *Validator
	policy    Policy
	notifier  Notifier

	now   func() time.Time
	newID func() (string, error)
}

// NewService creates a new subscriptions service. notifier may be nil.
func NewService(repo Repository, registry *domain.CategoryRegistry, policy Policy, notifier Notifier) *Service {
	return &Service{
		repo:      repo,
		registry:  registry,
		validator: NewValidator(registry),
		policy:    policy,
		notifier:  notifier,
		now: func() time.Time {
			return time.Now().UTC().Truncate(time.Microsecond)
		},
		newID: func() (string, error) {
			id, err := uuid.NewV7()
			if err != nil {
				return "", err
			}
			return id.String(), nil
		},
	}
}

// Policy returns the unsubscribe policy in effect.
func (s *Service) Policy() Policy {
	return s.policy
}

// Categories returns the registered categories.
func (s *Service) Categories() []domain.Category {
	return s.registry.List()
}

// Subscribe creates an active subscription for (email, category).
func (s *Service) Subscribe(ctx context.Context, email string, category domain.Category) (sub *domain.Subscription, err error) {
	defer func() { recordOperation(opSubscribe, err) }()

	email = NormalizeEmail(email)
	if err := s.validator.Validate(email, category); err != nil {
		return nil, err
	}
	ctx = ctxlog.With(ctx, "category", category)

	_, err = s.repo.FindActive(ctx, email, category)
	switch {
	case err == nil:
		return nil, ErrAlreadySubscribed
	case !errors.Is(err, ErrSubscriptionNotFound):
		return nil, fmt.Errorf("find active subscription: %w", err)
	}

	id, err := s.newID()
	if err != nil {
		return nil, fmt.Errorf("generate subscription id: %w", err)
	}

	sub = &domain.Subscription{
		ID:        id,
		Email:     email,
		Category:  category,
		CreatedAt: s.now(),
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		if errors.Is(err, ErrAlreadySubscribed) {
			return nil, err
		}
		return nil, fmt.Errorf("create subscription: %w", err)
	}

	ctxlog.FromContext(ctx).Info("subscribed",
		"subscription_id", sub.ID,
	)

	if s.notifier != nil {
		if nerr := s.notifier.SubscriptionCreated(ctx, sub); nerr != nil {
			ctxlog.FromContext(ctx).Error("failed to send subscription confirmation",
				"subscription_id", sub.ID,
				"error", nerr,
			)
		}
	}

	return sub, nil
}

// Unsubscribe cancels the subscription for (email, category) according to the
// configured policy and returns the affected record.
func (s *Service) Unsubscribe(ctx context.Context, email string, category domain.Category) (sub *domain.Subscription, err error) {
	defer func() { recordOperation(opUnsubscribe, err) }()

	email = NormalizeEmail(email)
	if err := s.validator.Validate(email, category); err != nil {
		return nil, err
	}
	ctx = ctxlog.With(ctx, "category", category)

	if s.policy == PolicyPurge {
		sub, err = s.purge(ctx, email, category)
	} else {
		sub, err = s.retire(ctx, email, category)
	}
	if err != nil {
		return nil, err
	}

	ctxlog.FromContext(ctx).Info("unsubscribed",
		"subscription_id", sub.ID,
		"policy", s.policy,
	)

	if s.notifier != nil {
		if nerr := s.notifier.SubscriptionCancelled(ctx, sub); nerr != nil {
			ctxlog.FromContext(ctx).Error("failed to send unsubscribe confirmation",
				"subscription_id", sub.ID,
				"error", nerr,
			)
		}
	}

	return sub, nil
}

// purge removes the active record for the pair.
func (s *Service) purge(ctx context.Context, email string, category domain.Category) (*domain.Subscription, error) {
	sub, err := s.repo.FindActive(ctx, email, category)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return nil, ErrNotSubscribed
		}
		return nil, fmt.Errorf("find active subscription: %w", err)
	}

	if err := s.repo.Delete(ctx, sub.ID); err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return nil, ErrNotSubscribed
		}
		return nil, fmt.Errorf("delete subscription: %w", err)
	}

	return sub, nil
}

// retire stamps deleted_at on the latest record for the pair.
func (s *Service) retire(ctx context.Context, email string, category domain.Category) (*domain.Subscription, error) {
	latest, err := s.repo.FindLatest(ctx, email, category)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return nil, ErrNeverSubscribed
		}
		return nil, fmt.Errorf("find latest subscription: %w", err)
	}

	if !latest.IsActive() {
		return nil, ErrAlreadyUnsubscribed
	}

	sub, err := s.repo.MarkDeleted(ctx, latest.ID, s.now())
	if err != nil {
		if errors.Is(err, ErrAlreadyUnsubscribed) {
			return nil, err
		}
		return nil, fmt.Errorf("mark subscription deleted: %w", err)
	}

	return sub, nil
}

// Status returns the subscriptions of email, newest first.
// Cancelled records are included only when includeHistory is set.
func (s *Service) Status(ctx context.Context, email string, includeHistory bool) (subs []domain.Subscription, err error) {
	defer func() { recordOperation(opStatus, err) }()

	email = NormalizeEmail(email)
	if err := s.validator.ValidateEmail(email); err != nil {
		return nil, err
	}

	subs, err = s.repo.ListByEmail(ctx, email, includeHistory)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return subs, nil
}
