package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prohmpiriya/leadflow/internal/domain"
	"github.com/prohmpiriya/leadflow/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func seedLead(t *testing.T, repo *MemoryLeadRepository, tenantID, leadID, username string, last time.Time) *domain.Lead {
	t.Helper()
	l := &domain.Lead{
		LeadID:            leadID,
		TenantID:          tenantID,
		ExternalUsername:  username,
		Status:            domain.StatusNew,
		Source:            domain.SourceDM,
		LastInteractionAt: last,
		CreatedAt:         last,
		UpdatedAt:         last,
	}
	require.NoError(t, repo.Create(context.Background(), l))
	return l
}

func TestMemoryTenantRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTenantRepository(NewMemoryStore())

	acme := &domain.Tenant{TenantID: "acme", BusinessName: "Acme", LoginEmail: "a@acme.com", Status: domain.TenantActive, CreatedAt: base}
	require.NoError(t, repo.Create(ctx, acme))

	t.Run("duplicate id", func(t *testing.T) {
		err := repo.Create(ctx, &domain.Tenant{TenantID: "acme", BusinessName: "Other"})
		assert.ErrorIs(t, err, domain.ErrDuplicateTenant)
	})

	t.Run("duplicate login email", func(t *testing.T) {
		err := repo.Create(ctx, &domain.Tenant{TenantID: "other", BusinessName: "Other", LoginEmail: "a@acme.com"})
		assert.ErrorIs(t, err, domain.ErrDuplicateTenant)
	})

	t.Run("returned copies are detached", func(t *testing.T) {
		got, err := repo.GetByID(ctx, "acme")
		require.NoError(t, err)
		got.BusinessName = "mutated"
		again, _ := repo.GetByID(ctx, "acme")
		assert.Equal(t, "Acme", again.BusinessName)
	})

	t.Run("soft delete hides but keeps the id", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, &domain.Tenant{TenantID: "gone", BusinessName: "Gone", Status: domain.TenantActive, CreatedAt: base}))
		require.NoError(t, repo.SoftDelete(ctx, "gone", base))

		got, err := repo.GetByID(ctx, "gone")
		require.NoError(t, err)
		assert.Nil(t, got)

		exists, _ := repo.ExistsByID(ctx, "gone")
		assert.True(t, exists)

		ids, _ := repo.ListActiveIDs(ctx)
		assert.Equal(t, []string{"acme"}, ids)

		assert.ErrorIs(t, repo.SoftDelete(ctx, "gone", base), domain.ErrTenantNotFound)
	})

	t.Run("list search and paging", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, &domain.Tenant{TenantID: "beta", BusinessName: "Beta Salon", Status: domain.TenantInactive, CreatedAt: base.Add(time.Hour)}))

		all, total, err := repo.List(ctx, TenantListFilter{Page: 1, Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, all, 1)
		assert.Equal(t, "beta", all[0].TenantID, "newest first")

		found, total, _ := repo.List(ctx, TenantListFilter{Search: "salon"})
		assert.Equal(t, 1, total)
		assert.Equal(t, "beta", found[0].TenantID)

		active, _, _ := repo.List(ctx, TenantListFilter{Status: domain.TenantActive})
		require.Len(t, active, 1)
		assert.Equal(t, "acme", active[0].TenantID)
	})
}

func TestMemoryLeadRepository_VersionCAS(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryLeadRepository(NewMemoryStore())
	seedLead(t, repo, "acme", "l1", "jane", base)

	a, _ := repo.GetByID(ctx, "acme", "l1")
	b, _ := repo.GetByID(ctx, "acme", "l1")

	a.AgentBlocked = true
	require.NoError(t, repo.Update(ctx, a))
	assert.Equal(t, int64(2), a.Version)

	b.DisplayName = "Jane"
	err := repo.Update(ctx, b)
	assert.ErrorIs(t, err, domain.ErrVersionConflict)

	missing := a.Clone()
	missing.LeadID = "nope"
	assert.ErrorIs(t, repo.Update(ctx, missing), domain.ErrLeadNotFound)
}

func TestMemoryLeadRepository_TenantScoping(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryLeadRepository(NewMemoryStore())
	seedLead(t, repo, "acme", "l1", "jane", base)

	got, err := repo.GetByID(ctx, "other", "l1")
	require.NoError(t, err)
	assert.Nil(t, got)

	err = repo.Create(ctx, &domain.Lead{LeadID: "l2", TenantID: "acme", ExternalUsername: "JANE"})
	assert.True(t, errors.Is(err, ErrLeadExists), "usernames are case-insensitive per tenant")

	seedLead(t, repo, "other", "l3", "jane", base)
}

func TestMemoryLeadRepository_List(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryLeadRepository(NewMemoryStore())
	seedLead(t, repo, "acme", "b", "bob", base)
	seedLead(t, repo, "acme", "a", "alice", base)
	seedLead(t, repo, "acme", "c", "carol", base.Add(time.Hour))
	seedLead(t, repo, "other", "x", "xavier", base.Add(2*time.Hour))

	leads, total, err := repo.List(ctx, "acme", domain.LeadFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	ids := []string{leads[0].LeadID, leads[1].LeadID, leads[2].LeadID}
	assert.Equal(t, []string{"c", "a", "b"}, ids)

	page, total, _ := repo.List(ctx, "acme", domain.LeadFilter{Limit: 1, Offset: 1})
	assert.Equal(t, 3, total)
	require.Len(t, page, 1)
	assert.Equal(t, "a", page[0].LeadID)

	beyond, _, _ := repo.List(ctx, "acme", domain.LeadFilter{Offset: 10})
	assert.Empty(t, beyond)

	searched, _, _ := repo.List(ctx, "acme", domain.LeadFilter{Search: "CAR"})
	require.Len(t, searched, 1)
	assert.Equal(t, "c", searched[0].LeadID)
}

func TestMemoryMessageRepository_Append(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	leads := NewMemoryLeadRepository(store)
	msgs := NewMemoryMessageRepository(store)
	seedLead(t, leads, "acme", "l1", "jane", base)

	tests := []struct {
		name       string
		msg        *domain.Message
		wantCount  int
		wantLast   time.Time
		wantIntent bool
	}{
		{"customer with intent", &domain.Message{MessageID: "m1", Role: domain.RoleCustomer, Timestamp: base.Add(time.Minute), BookingIntent: true}, 1, base.Add(time.Minute), true},
		{"newer agent reply without flag clears intent", &domain.Message{MessageID: "m2", Role: domain.RoleAgent, Timestamp: base.Add(2 * time.Minute)}, 2, base.Add(2 * time.Minute), false},
		{"late message changes neither clock nor intent", &domain.Message{MessageID: "m3", Role: domain.RoleCustomer, Timestamp: base, BookingIntent: true}, 3, base.Add(2 * time.Minute), false},
		{"newest agent message with flag sets intent", &domain.Message{MessageID: "m4", Role: domain.RoleAgent, Timestamp: base.Add(3 * time.Minute), BookingIntent: true}, 4, base.Add(3 * time.Minute), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.msg.LeadID, tt.msg.TenantID = "l1", "acme"
			lead, err := msgs.Append(ctx, tt.msg)
			require.NoError(t, err)
			if lead.MessageCount != tt.wantCount {
				t.Errorf("MessageCount = %d, want %d", lead.MessageCount, tt.wantCount)
			}
			if !lead.LastInteractionAt.Equal(tt.wantLast) {
				t.Errorf("LastInteractionAt = %v, want %v", lead.LastInteractionAt, tt.wantLast)
			}
			if lead.BookingIntent != tt.wantIntent {
				t.Errorf("BookingIntent = %v, want %v", lead.BookingIntent, tt.wantIntent)
			}
		})
	}

	t.Run("log is ordered by timestamp", func(t *testing.T) {
		log, total, err := msgs.List(ctx, "acme", "l1", 0, 0)
		require.NoError(t, err)
		assert.Equal(t, 4, total)
		var ids []string
		for _, m := range log {
			ids = append(ids, m.MessageID)
		}
		assert.Equal(t, []string{"m3", "m1", "m2", "m4"}, ids)

		latest, _ := msgs.Latest(ctx, "acme", "l1", 2)
		assert.Equal(t, "m2", latest[0].MessageID)
		assert.Equal(t, "m4", latest[1].MessageID)

		first, _ := msgs.FirstMessageAt(ctx, "acme", []string{"l1", "missing"})
		assert.Equal(t, base, first["l1"])
		assert.NotContains(t, first, "missing")
	})

	t.Run("follow-up message advances follow-up counters", func(t *testing.T) {
		at := base.Add(4 * time.Minute)
		lead, err := msgs.Append(ctx, &domain.Message{MessageID: "f1", LeadID: "l1", TenantID: "acme", Role: domain.RoleAgent, Timestamp: at, IsFollowup: true})
		require.NoError(t, err)
		assert.Equal(t, 1, lead.FollowupCount)
		require.NotNil(t, lead.LastFollowupAt)
		assert.True(t, lead.LastFollowupAt.Equal(at))
		assert.Equal(t, 5, lead.MessageCount)
	})

	t.Run("wrong tenant", func(t *testing.T) {
		_, err := msgs.Append(ctx, &domain.Message{MessageID: "x", LeadID: "l1", TenantID: "other", Role: domain.RoleCustomer, Timestamp: base})
		assert.ErrorIs(t, err, domain.ErrLeadNotFound)

		_, _, err = msgs.List(ctx, "other", "l1", 0, 10)
		assert.ErrorIs(t, err, domain.ErrLeadNotFound)
	})

	t.Run("lead update keeps message counters", func(t *testing.T) {
		l, _ := leads.GetByID(ctx, "acme", "l1")
		l.AgentBlocked = true
		require.NoError(t, leads.Update(ctx, l))
		assert.Equal(t, 5, l.MessageCount)
		assert.Equal(t, 1, l.FollowupCount)
	})
}

func TestMemoryLeadRepository_Transitions(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryLeadRepository(NewMemoryStore())
	seedLead(t, repo, "acme", "l1", "jane", base)

	l, _ := repo.GetByID(ctx, "acme", "l1")
	tr, err := l.Transition(domain.StatusMeetingBooked, domain.ActorOperator, "call booked", base.Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, repo.SaveTransition(ctx, l, tr))

	got, _ := repo.ListTransitionsInto(ctx, "acme", domain.StatusMeetingBooked, base, base.Add(time.Hour))
	assert.Len(t, got, 1)

	none, _ := repo.ListTransitionsInto(ctx, "acme", domain.StatusMeetingBooked, base.Add(time.Hour), base.Add(2*time.Hour))
	assert.Empty(t, none, "window start is exclusive")
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	kv := redis.NewFromClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = kv.Close() })
	return mr, kv
}

func TestKVSessionRepository(t *testing.T) {
	ctx := context.Background()
	mr, kv := setupTestRedis(t)
	now := base
	repo := NewKVSessionRepository(kv)
	repo.now = func() time.Time { return now }

	s := &domain.Session{SessionID: "s1", Role: domain.RoleClient, TenantID: "acme", IssuedAt: now, ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, repo.Save(ctx, s))

	got, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "acme", got.TenantID)
	assert.Equal(t, time.Hour, mr.TTL("session:s1"))

	mr.FastForward(2 * time.Hour)
	got, err = repo.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.NoError(t, repo.Delete(ctx, "s1"))
	assert.NoError(t, repo.Delete(ctx, "s1"))

	expired := &domain.Session{SessionID: "s2", IssuedAt: now, ExpiresAt: now.Add(-time.Minute)}
	require.NoError(t, repo.Save(ctx, expired))
	assert.False(t, mr.Exists("session:s2"))
}

func TestKVOAuthStateRepository_ConsumeOnce(t *testing.T) {
	ctx := context.Background()
	mr, kv := setupTestRedis(t)
	repo := NewKVOAuthStateRepository(kv)

	require.NoError(t, repo.Save(ctx, "st", &OAuthState{TenantID: "acme", CreatedAt: base}, time.Minute))

	first, err := repo.Consume(ctx, "st")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "acme", first.TenantID)

	second, err := repo.Consume(ctx, "st")
	require.NoError(t, err)
	assert.Nil(t, second)
	assert.False(t, mr.Exists("oauth_state:st"))

	require.NoError(t, repo.Save(ctx, "late", &OAuthState{TenantID: "acme", CreatedAt: base}, time.Minute))
	mr.FastForward(time.Minute)
	late, err := repo.Consume(ctx, "late")
	require.NoError(t, err)
	assert.Nil(t, late)
}
