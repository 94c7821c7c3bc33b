package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prohmpiriya/leadflow/internal/domain"
	"github.com/prohmpiriya/leadflow/internal/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationService_Ingest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedTenant(t, "acme")
	svc := f.conversationService()

	first, err := svc.Ingest(ctx, &dto.IngestMessageRequest{
		TenantID:         "acme",
		ExternalUsername: "@Jane.Doe",
		DisplayName:      "Jane",
		Source:           "story",
		Role:             "customer",
		Content:          "Hi! How much?",
	})
	require.NoError(t, err)
	assert.True(t, first.LeadCreated)
	assert.Equal(t, 1, first.Lead.MessageCount)
	assert.Equal(t, "new", first.Lead.Status)
	assert.Equal(t, "story", first.Lead.Source)
	assert.Equal(t, "Jane.Doe", first.Lead.Username)

	created := f.publisher.Events(domain.EventLeadCreated)
	require.Len(t, created, 1)
	assert.Equal(t, first.LeadID, created[0].LeadID)

	reply, err := svc.Ingest(ctx, &dto.IngestMessageRequest{
		TenantID:         "acme",
		ExternalUsername: "jane.doe",
		Role:             "agent",
		Content:          "It's 50 a session",
	})
	require.NoError(t, err)
	assert.False(t, reply.LeadCreated)
	assert.Equal(t, first.LeadID, reply.LeadID)
	assert.Equal(t, 2, reply.Lead.MessageCount)
	assert.Len(t, f.publisher.Events(domain.EventLeadCreated), 1)
}

func TestConversationService_IngestErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedTenant(t, "acme")
	inactive := f.seedTenant(t, "sleepy")
	inactive.Status = domain.TenantInactive
	require.NoError(t, f.tenants.Update(ctx, inactive))
	svc := f.conversationService()

	tests := []struct {
		name    string
		req     dto.IngestMessageRequest
		wantErr error
	}{
		{
			name:    "unknown tenant",
			req:     dto.IngestMessageRequest{TenantID: "nope", ExternalUsername: "a", Role: "customer", Content: "hi"},
			wantErr: domain.ErrTenantNotFound,
		},
		{
			name:    "inactive tenant",
			req:     dto.IngestMessageRequest{TenantID: "sleepy", ExternalUsername: "a", Role: "customer", Content: "hi"},
			wantErr: domain.ErrTenantNotFound,
		},
		{
			name:    "bad role",
			req:     dto.IngestMessageRequest{TenantID: "acme", ExternalUsername: "a", Role: "bot", Content: "hi"},
			wantErr: domain.ErrValidation,
		},
		{
			name:    "bad source",
			req:     dto.IngestMessageRequest{TenantID: "acme", ExternalUsername: "a", Source: "tv", Role: "customer", Content: "hi"},
			wantErr: domain.ErrValidation,
		},
		{
			name:    "agent to unknown identity",
			req:     dto.IngestMessageRequest{TenantID: "acme", ExternalUsername: "ghost", Role: "agent", Content: "hi"},
			wantErr: domain.ErrLeadNotFound,
		},
		{
			name:    "blank content",
			req:     dto.IngestMessageRequest{TenantID: "acme", ExternalUsername: "a", Role: "customer", Content: "   "},
			wantErr: domain.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			_, err := svc.Ingest(ctx, &req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestConversationService_AppendAndList(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedLead(t, "acme", "l1", domain.StatusEngaged, t0)
	svc := f.conversationService()

	for i := 0; i < 5; i++ {
		_, err := svc.Append(ctx, "acme", "l1", &domain.Message{
			Role:      domain.RoleCustomer,
			Content:   fmt.Sprintf("m%d", i),
			Timestamp: t0.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
	// late arrival sorts into place
	lead, err := svc.Append(ctx, "acme", "l1", &domain.Message{
		Role: domain.RoleAgent, Content: "late", Timestamp: t0.Add(90 * time.Second),
	})
	require.NoError(t, err)
	assert.Equal(t, 6, lead.MessageCount)
	assert.Equal(t, t0.Add(4*time.Minute), lead.LastInteractionAt)

	resp, err := svc.List(ctx, "acme", "l1", &dto.ConversationQuery{})
	require.NoError(t, err)
	assert.Equal(t, 6, resp.Total)
	assert.Equal(t, dto.DefaultConversationLimit, resp.Limit)
	var contents []string
	for _, m := range resp.Messages {
		contents = append(contents, m.Content)
	}
	assert.Equal(t, []string{"m0", "m1", "late", "m2", "m3", "m4"}, contents)

	page, err := svc.List(ctx, "acme", "l1", &dto.ConversationQuery{Offset: 4, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, page.Messages, 2)

	t.Run("other tenant", func(t *testing.T) {
		_, err := svc.List(ctx, "globex", "l1", &dto.ConversationQuery{})
		assert.ErrorIs(t, err, domain.ErrLeadNotFound)
		_, err = svc.Append(ctx, "globex", "l1", &domain.Message{Role: domain.RoleCustomer, Content: "x"})
		assert.ErrorIs(t, err, domain.ErrLeadNotFound)
	})
}

func TestConversationService_ConcurrentAppend(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedLead(t, "acme", "l1", domain.StatusEngaged, t0)
	svc := f.conversationService()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Append(ctx, "acme", "l1", &domain.Message{
				Role: domain.RoleCustomer, Content: "hi", Timestamp: t0.Add(time.Duration(i) * time.Second),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	lead, err := f.leads.GetByID(ctx, "acme", "l1")
	require.NoError(t, err)
	assert.Equal(t, n, lead.MessageCount)
	assert.Equal(t, t0.Add((n-1)*time.Second), lead.LastInteractionAt)
}

func TestConversationService_ConcurrentIngestCreatesOneLead(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedTenant(t, "acme")
	svc := f.conversationService()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Ingest(ctx, &dto.IngestMessageRequest{
				TenantID: "acme", ExternalUsername: "same", Role: "customer", Content: "hi",
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	leads, err := f.leads.ListAll(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, n, leads[0].MessageCount)
	assert.Len(t, f.publisher.Events(domain.EventLeadCreated), 1)
}
