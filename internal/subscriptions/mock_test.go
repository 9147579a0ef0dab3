package subscriptions

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bissquit/subscription-garden/internal/domain"
)

// mockRepository implements Repository in memory for testing.
type mockRepository struct {
	mu    sync.Mutex
	subs  []domain.Subscription
	calls int

	// err, when set, is returned by every method.
	err error
}

func newMockRepository() *mockRepository {
	return &mockRepository{}
}

func (m *mockRepository) Create(_ context.Context, sub *domain.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return m.err
	}
	for _, s := range m.subs {
		if s.Email == sub.Email && s.Category == sub.Category && s.IsActive() {
			return ErrAlreadySubscribed
		}
	}
	m.subs = append(m.subs, *sub)
	return nil
}

func (m *mockRepository) FindActive(_ context.Context, email string, category domain.Category) (*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	for _, s := range m.subs {
		if s.Email == email && s.Category == category && s.IsActive() {
			found := s
			return &found, nil
		}
	}
	return nil, ErrSubscriptionNotFound
}

func (m *mockRepository) FindLatest(_ context.Context, email string, category domain.Category) (*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	var latest *domain.Subscription
	for i := range m.subs {
		s := m.subs[i]
		if s.Email != email || s.Category != category {
			continue
		}
		if latest == nil || newer(s, *latest) {
			latest = &s
		}
	}
	if latest == nil {
		return nil, ErrSubscriptionNotFound
	}
	return latest, nil
}

func (m *mockRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return m.err
	}
	for i, s := range m.subs {
		if s.ID == id {
			m.subs = append(m.subs[:i], m.subs[i+1:]...)
			return nil
		}
	}
	return ErrSubscriptionNotFound
}

func (m *mockRepository) MarkDeleted(_ context.Context, id string, at time.Time) (*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.subs {
		if m.subs[i].ID != id {
			continue
		}
		if !m.subs[i].IsActive() {
			return nil, ErrAlreadyUnsubscribed
		}
		m.subs[i].DeletedAt = &at
		updated := m.subs[i]
		return &updated, nil
	}
	return nil, ErrAlreadyUnsubscribed
}

func (m *mockRepository) ListByEmail(_ context.Context, email string, includeDeleted bool) ([]domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	out := make([]domain.Subscription, 0)
	for _, s := range m.subs {
		if s.Email == email && (includeDeleted || s.IsActive()) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return newer(out[i], out[j]) })
	return out, nil
}

func (m *mockRepository) records(email string, category domain.Category) []domain.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Subscription
	for _, s := range m.subs {
		if s.Email == email && s.Category == category {
			out = append(out, s)
		}
	}
	return out
}

func (m *mockRepository) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func newer(a, b domain.Subscription) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// mockNotifier records notifier calls.
type mockNotifier struct {
	created   []domain.Subscription
	cancelled []domain.Subscription
	err       error
}

func (m *mockNotifier) SubscriptionCreated(_ context.Context, sub *domain.Subscription) error {
	m.created = append(m.created, *sub)
	return m.err
}

func (m *mockNotifier) SubscriptionCancelled(_ context.Context, sub *domain.Subscription) error {
	m.cancelled = append(m.cancelled, *sub)
	return m.err
}
