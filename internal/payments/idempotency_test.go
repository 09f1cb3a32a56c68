package payments

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	pkgerrors "github.com/candemirel/vitrin-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	values   map[string]string
	setNXErr error
	delErr   error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}}
}

func (m *memoryStore) Get(ctx context.Context, key string) (string, error) {
	return m.values[key], nil
}

func (m *memoryStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if m.setNXErr != nil {
		return false, m.setNXErr
	}
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "idempotency:" + scope + ":" + id
}

func (m *memoryStore) Del(ctx context.Context, keys ...string) error {
	if m.delErr != nil {
		return m.delErr
	}
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

func TestNewIdempotencyGuardValidation(t *testing.T) {
	_, err := NewIdempotencyGuard(nil, time.Hour, "paytr-webhook")
	require.Error(t, err)

	_, err = NewIdempotencyGuard(newMemoryStore(), -time.Second, "paytr-webhook")
	require.Error(t, err)

	_, err = NewIdempotencyGuard(newMemoryStore(), time.Hour, "")
	require.Error(t, err)
}

func TestIdempotencyGuardMarksOnce(t *testing.T) {
	store := newMemoryStore()
	guard, err := NewIdempotencyGuard(store, time.Hour, "paytr-webhook")
	require.NoError(t, err)

	seen, err := guard.CheckAndMark(context.Background(), "OID123:abc")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = guard.CheckAndMark(context.Background(), "OID123:abc")
	require.NoError(t, err)
	assert.True(t, seen)

	// Distinct events never collide.
	seen, err = guard.CheckAndMark(context.Background(), "OID456:def")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestIdempotencyGuardDeleteReleasesMark(t *testing.T) {
	store := newMemoryStore()
	guard, err := NewIdempotencyGuard(store, time.Hour, "paytr-webhook")
	require.NoError(t, err)

	_, err = guard.CheckAndMark(context.Background(), "OID123:abc")
	require.NoError(t, err)
	require.NoError(t, guard.Delete(context.Background(), "OID123:abc"))

	seen, err := guard.CheckAndMark(context.Background(), "OID123:abc")
	require.NoError(t, err)
	assert.False(t, seen, "released event must be markable again")
}

func TestIdempotencyGuardStoreFailure(t *testing.T) {
	store := newMemoryStore()
	store.setNXErr = errors.New("connection refused")
	guard, err := NewIdempotencyGuard(store, time.Hour, "paytr-webhook")
	require.NoError(t, err)

	_, err = guard.CheckAndMark(context.Background(), "OID123:abc")
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeDependency, typed.Code())
}

func TestNotificationEventID(t *testing.T) {
	n := Notification{MerchantOid: "OID123", Hash: "abc"}
	assert.Equal(t, "OID123:abc", n.EventID())

	assert.Empty(t, Notification{MerchantOid: "OID123"}.EventID())
	assert.Empty(t, Notification{Hash: "abc"}.EventID())
}
