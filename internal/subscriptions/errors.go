package subscriptions

import "errors"

// Validation errors.
var (
	ErrInvalidEmail    = errors.New("invalid email address")
	ErrInvalidCategory = errors.New("invalid category")
)

// State errors.
var (
	ErrAlreadySubscribed   = errors.New("user already subscribed to the category")
	ErrAlreadyUnsubscribed = errors.New("user already unsubscribed from the category")
	ErrNeverSubscribed     = errors.New("no user subscribed to the category")
	ErrNotSubscribed       = errors.New("subscription not found")
)

// Repository errors.
var (
	ErrSubscriptionNotFound = errors.New("subscription record not found")
)
