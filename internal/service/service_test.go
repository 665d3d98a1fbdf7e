package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/raakeshmj/keymanager/internal/audit"
	"github.com/raakeshmj/keymanager/internal/limiter"
	"github.com/raakeshmj/keymanager/internal/store"
	"github.com/raakeshmj/keymanager/internal/verifier"
)

// fixture wires the full service stack over miniredis with cheap argon2
// parameters and a configurable rate threshold.
type fixture struct {
	mr        *miniredis.Miniredis
	client    *redis.Client
	gateway   *store.Gateway
	hasher    *verifier.Hasher
	validator *Validator
	admin     *Admin
}

func newFixture(t *testing.T, requestsPerMinute int) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	gateway := store.NewWithClient(client, zap.NewNop())
	hasher := verifier.New(verifier.Params{TimeCost: 1, MemoryKiB: 8, Parallelism: 1})

	v := NewValidator(
		gateway,
		hasher,
		limiter.New(gateway, requestsPerMinute, 120*time.Second),
		audit.NewWriter(gateway, zap.NewNop()),
		zap.NewNop(),
	)
	a := NewAdmin(gateway, hasher, zap.NewNop())

	return &fixture{mr: mr, client: client, gateway: gateway, hasher: hasher, validator: v, admin: a}
}

// auditResults returns the result field of every audit stream entry in order.
func (f *fixture) auditResults(t *testing.T) []string {
	t.Helper()
	entries, err := f.client.XRange(context.Background(), "audit:keylookup", "-", "+").Result()
	require.NoError(t, err)
	results := make([]string, 0, len(entries))
	for _, e := range entries {
		results = append(results, e.Values["result"].(string))
	}
	return results
}
