package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bissquit/subscription-garden/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRegistry = domain.MustCategoryRegistry(domain.DefaultCategories)

// newTestService returns a service with a clock that advances one second per call
// and sequential ids.
func newTestService(repo Repository, policy Policy, notifier Notifier) *Service {
	svc := NewService(repo, testRegistry, policy, notifier)

	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	seq := 0
	svc.newID = func() (string, error) {
		seq++
		return fmt.Sprintf("id-%03d", seq), nil
	}
	return svc
}

func TestSubscribe_CreatesRecord(t *testing.T) {
	for _, policy := range []Policy{PolicyRetain, PolicyPurge} {
		t.Run(string(policy), func(t *testing.T) {
			repo := newMockRepository()
			notifier := &mockNotifier{}
			svc := newTestService(repo, policy, notifier)

			sub, err := svc.Subscribe(context.Background(), "a@x.com", "sports")
			require.NoError(t, err)

			assert.Equal(t, "id-001", sub.ID)
			assert.Equal(t, "a@x.com", sub.Email)
			assert.Equal(t, domain.Category("sports"), sub.Category)
			assert.False(t, sub.CreatedAt.IsZero())
			assert.True(t, sub.IsActive())

			require.Len(t, notifier.created, 1)
			assert.Equal(t, sub.ID, notifier.created[0].ID)
		})
	}
}

func TestSubscribe_Twice_AlreadySubscribed(t *testing.T) {
	for _, policy := range []Policy{PolicyRetain, PolicyPurge} {
		t.Run(string(policy), func(t *testing.T) {
			repo := newMockRepository()
			svc := newTestService(repo, policy, nil)
			ctx := context.Background()

			_, err := svc.Subscribe(ctx, "a@x.com", "sports")
			require.NoError(t, err)

			_, err = svc.Subscribe(ctx, "a@x.com", "sports")
			require.ErrorIs(t, err, ErrAlreadySubscribed)

			assert.Len(t, repo.records("a@x.com", "sports"), 1, "no duplicate active record")
		})
	}
}

func TestSubscribe_SameEmailDifferentCategory(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, PolicyRetain, nil)
	ctx := context.Background()

	_, err := svc.Subscribe(ctx, "a@x.com", "sports")
	require.NoError(t, err)
	_, err = svc.Subscribe(ctx, "a@x.com", "health")
	require.NoError(t, err)
}

func TestSubscribe_NormalizesEmail(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, PolicyRetain, nil)
	ctx := context.Background()

	sub, err := svc.Subscribe(ctx, "  A@X.com ", "sports")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", sub.Email)

	_, err = svc.Subscribe(ctx, "a@x.com", "sports")
	require.ErrorIs(t, err, ErrAlreadySubscribed)
}

func TestValidationFailsBeforeStorage(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		category domain.Category
		wantErr  error
	}{
		{"invalid email", "not-an-email", "sports", ErrInvalidEmail},
		{"empty email", "", "sports", ErrInvalidEmail},
		{"invalid category", "a@x.com", "music", ErrInvalidCategory},
		{"empty category", "a@x.com", "", ErrInvalidCategory},
		{"both invalid reports email", "nope", "music", ErrInvalidEmail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, policy := range []Policy{PolicyRetain, PolicyPurge} {
				repo := newMockRepository()
				svc := newTestService(repo, policy, nil)
				ctx := context.Background()

				_, err := svc.Subscribe(ctx, tt.email, tt.category)
				require.ErrorIs(t, err, tt.wantErr)

				_, err = svc.Unsubscribe(ctx, tt.email, tt.category)
				require.ErrorIs(t, err, tt.wantErr)

				assert.Zero(t, repo.callCount(), "storage must not be queried")
			}
		})
	}
}

func TestUnsubscribe_Never(t *testing.T) {
	tests := []struct {
		policy  Policy
		wantErr error
	}{
		{PolicyRetain, ErrNeverSubscribed},
		{PolicyPurge, ErrNotSubscribed},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			svc := newTestService(newMockRepository(), tt.policy, nil)

			_, err := svc.Unsubscribe(context.Background(), "a@x.com", "sports")
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestUnsubscribe_Retain(t *testing.T) {
	repo := newMockRepository()
	notifier := &mockNotifier{}
	svc := newTestService(repo, PolicyRetain, notifier)
	ctx := context.Background()

	created, err := svc.Subscribe(ctx, "a@x.com", "sports")
	require.NoError(t, err)

	sub, err := svc.Unsubscribe(ctx, "a@x.com", "sports")
	require.NoError(t, err)
	assert.Equal(t, created.ID, sub.ID)
	require.NotNil(t, sub.DeletedAt)
	assert.True(t, sub.DeletedAt.After(sub.CreatedAt))

	_, err = svc.Unsubscribe(ctx, "a@x.com", "sports")
	require.ErrorIs(t, err, ErrAlreadyUnsubscribed)

	records := repo.records("a@x.com", "sports")
	require.Len(t, records, 1, "record retained")
	assert.NotNil(t, records[0].DeletedAt)

	require.Len(t, notifier.cancelled, 1)
}

func TestUnsubscribe_Purge(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, PolicyPurge, nil)
	ctx := context.Background()

	created, err := svc.Subscribe(ctx, "a@x.com", "sports")
	require.NoError(t, err)

	sub, err := svc.Unsubscribe(ctx, "a@x.com", "sports")
	require.NoError(t, err)
	assert.Equal(t, created.ID, sub.ID)
	assert.Empty(t, repo.records("a@x.com", "sports"), "record removed")

	_, err = svc.Unsubscribe(ctx, "a@x.com", "sports")
	require.ErrorIs(t, err, ErrNotSubscribed)
}

func TestUnsubscribe_PurgeIsScopedByCategory(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, PolicyPurge, nil)
	ctx := context.Background()

	_, err := svc.Subscribe(ctx, "a@x.com", "sports")
	require.NoError(t, err)

	_, err = svc.Unsubscribe(ctx, "a@x.com", "health")
	require.ErrorIs(t, err, ErrNotSubscribed)
	assert.Len(t, repo.records("a@x.com", "sports"), 1, "other category untouched")
}

func TestRoundTrip_Retain_KeepsHistory(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, PolicyRetain, nil)
	ctx := context.Background()

	first, err := svc.Subscribe(ctx, "a@x.com", "sports")
	require.NoError(t, err)
	_, err = svc.Unsubscribe(ctx, "a@x.com", "sports")
	require.NoError(t, err)
	second, err := svc.Subscribe(ctx, "a@x.com", "sports")
	require.NoError(t, err)

	records := repo.records("a@x.com", "sports")
	require.Len(t, records, 2)

	byID := map[string]domain.Subscription{}
	for _, r := range records {
		byID[r.ID] = r
	}
	assert.NotNil(t, byID[first.ID].DeletedAt, "earlier record marked deleted")
	assert.Nil(t, byID[second.ID].DeletedAt, "later record active")

	active, err := svc.Status(ctx, "a@x.com", false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)

	history, err := svc.Status(ctx, "a@x.com", true)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.ID, history[0].ID, "newest first")
}

func TestRoundTrip_Purge(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, PolicyPurge, nil)
	ctx := context.Background()

	_, err := svc.Subscribe(ctx, "a@x.com", "sports")
	require.NoError(t, err)
	_, err = svc.Unsubscribe(ctx, "a@x.com", "sports")
	require.NoError(t, err)
	second, err := svc.Subscribe(ctx, "a@x.com", "sports")
	require.NoError(t, err)

	records := repo.records("a@x.com", "sports")
	require.Len(t, records, 1)
	assert.Equal(t, second.ID, records[0].ID)
}

func TestUnsubscribe_Retain_TieBreakByID(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, PolicyRetain, nil)
	ctx := context.Background()

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cancelled := at
	repo.subs = []domain.Subscription{
		{ID: "id-b", Email: "a@x.com", Category: "sports", CreatedAt: at},
		{ID: "id-a", Email: "a@x.com", Category: "sports", CreatedAt: at, DeletedAt: &cancelled},
	}

	sub, err := svc.Unsubscribe(ctx, "a@x.com", "sports")
	require.NoError(t, err)
	assert.Equal(t, "id-b", sub.ID)
}

func TestUnsubscribe_Retain_LatestCancelled(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, PolicyRetain, nil)

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	later := at.Add(time.Minute)
	repo.subs = []domain.Subscription{
		{ID: "id-1", Email: "a@x.com", Category: "sports", CreatedAt: later, DeletedAt: &later},
	}

	_, err := svc.Unsubscribe(context.Background(), "a@x.com", "sports")
	require.ErrorIs(t, err, ErrAlreadyUnsubscribed)
}

func TestStorageErrorsAreWrapped(t *testing.T) {
	dbErr := errors.New("connection refused")

	for _, policy := range []Policy{PolicyRetain, PolicyPurge} {
		t.Run(string(policy), func(t *testing.T) {
			repo := newMockRepository()
			repo.err = dbErr
			svc := newTestService(repo, policy, nil)
			ctx := context.Background()

			_, err := svc.Subscribe(ctx, "a@x.com", "sports")
			require.ErrorIs(t, err, dbErr)

			_, err = svc.Unsubscribe(ctx, "a@x.com", "sports")
			require.ErrorIs(t, err, dbErr)

			_, err = svc.Status(ctx, "a@x.com", true)
			require.ErrorIs(t, err, dbErr)
		})
	}
}

func TestNotifierErrorDoesNotFailRequest(t *testing.T) {
	repo := newMockRepository()
	notifier := &mockNotifier{err: errors.New("smtp down")}
	svc := newTestService(repo, PolicyRetain, notifier)
	ctx := context.Background()

	_, err := svc.Subscribe(ctx, "a@x.com", "sports")
	require.NoError(t, err)

	_, err = svc.Unsubscribe(ctx, "a@x.com", "sports")
	require.NoError(t, err)

	assert.Len(t, notifier.created, 1)
	assert.Len(t, notifier.cancelled, 1)
}

func TestStatus_InvalidEmail(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, PolicyRetain, nil)

	_, err := svc.Status(context.Background(), "not-an-email", false)
	require.ErrorIs(t, err, ErrInvalidEmail)
	assert.Zero(t, repo.callCount())
}

func TestCategories(t *testing.T) {
	svc := newTestService(newMockRepository(), PolicyRetain, nil)
	assert.Equal(t, domain.DefaultCategories, svc.Categories())
}

func TestPolicy(t *testing.T) {
	assert.Equal(t, PolicyPurge, newTestService(newMockRepository(), PolicyPurge, nil).Policy())
	assert.Equal(t, PolicyRetain, newTestService(newMockRepository(), PolicyRetain, nil).Policy())
}
