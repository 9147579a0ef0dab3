package domain

import "time"

// Subscription is one (email, category) pairing.
// A nil DeletedAt means the subscription is active.
type Subscription struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Category  Category   `json:"category"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// IsActive reports whether the subscription has not been cancelled.
func (s *Subscription) IsActive() bool {
	return s.DeletedAt == nil
}
