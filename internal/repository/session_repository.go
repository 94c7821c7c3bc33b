package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prohmpiriya/leadflow/internal/domain"
	"github.com/prohmpiriya/leadflow/pkg/redis"
)

const (
	sessionKeyPrefix    = "session:"
	oauthStateKeyPrefix = "oauth_state:"
)

// KVSessionRepository stores sessions as JSON under session:{id}
type KVSessionRepository struct {
	kv  redis.KVStore
	now func() time.Time
}

// NewKVSessionRepository creates a session repository on top of a KV store
func NewKVSessionRepository(kv redis.KVStore) *KVSessionRepository {
	return &KVSessionRepository{kv: kv, now: time.Now}
}

// SetClock overrides the clock used to derive TTLs
func (r *KVSessionRepository) SetClock(now func() time.Time) {
	r.now = now
}

// Save stores the session until its expiry
func (r *KVSessionRepository) Save(ctx context.Context, session *domain.Session) error {
	ttl := session.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	b, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	return r.kv.Set(ctx, sessionKeyPrefix+session.SessionID, string(b), ttl)
}

// Get returns nil, nil for unknown or expired sessions
func (r *KVSessionRepository) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	raw, err := r.kv.Get(ctx, sessionKeyPrefix+sessionID)
	if err != nil {
		if errors.Is(err, redis.ErrCacheMiss) {
			return nil, nil
		}
		return nil, err
	}
	var s domain.Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &s, nil
}

// Delete is idempotent
func (r *KVSessionRepository) Delete(ctx context.Context, sessionID string) error {
	return r.kv.Del(ctx, sessionKeyPrefix+sessionID)
}

// KVOAuthStateRepository stores handshake state under oauth_state:{state}
type KVOAuthStateRepository struct {
	kv redis.KVStore
}

// NewKVOAuthStateRepository creates an OAuth state repository on top of a KV store
func NewKVOAuthStateRepository(kv redis.KVStore) *KVOAuthStateRepository {
	return &KVOAuthStateRepository{kv: kv}
}

func (r *KVOAuthStateRepository) Save(ctx context.Context, state string, data *OAuthState, ttl time.Duration) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode oauth state: %w", err)
	}
	return r.kv.Set(ctx, oauthStateKeyPrefix+state, string(b), ttl)
}

// Consume reads and deletes atomically so a state value works once
func (r *KVOAuthStateRepository) Consume(ctx context.Context, state string) (*OAuthState, error) {
	raw, err := r.kv.GetDel(ctx, oauthStateKeyPrefix+state)
	if err != nil {
		if errors.Is(err, redis.ErrCacheMiss) {
			return nil, nil
		}
		return nil, err
	}
	var data OAuthState
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("failed to decode oauth state: %w", err)
	}
	return &data, nil
}
