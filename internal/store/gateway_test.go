package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testGateway(t *testing.T) (*Gateway, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewWithClient(client, zap.NewNop()), mr, client
}

func sampleKeyDoc() KeyDoc {
	return KeyDoc{
		KeyID:      "k_2J6Hqk3",
		ProjectID:  "merlin",
		Owner:      "Mario",
		Metadata:   "research-west",
		SecretHash: "$argon2id$v=19$m=8,t=1,p=1$c2FsdA$ZGlnZXN0",
		Disabled:   false,
		CreatedAt:  1_700_000_000.25,
	}
}

func TestCreateAndGetKey(t *testing.T) {
	g, _, _ := testGateway(t)
	ctx := context.Background()

	doc := sampleKeyDoc()
	require.NoError(t, g.CreateKey(ctx, doc))

	got, err := g.GetKey(ctx, "merlin", "k_2J6Hqk3")
	require.NoError(t, err)
	assert.Equal(t, doc, got)
}

func TestCreateKeyRejectsOverwrite(t *testing.T) {
	g, _, _ := testGateway(t)
	ctx := context.Background()

	doc := sampleKeyDoc()
	require.NoError(t, g.CreateKey(ctx, doc))

	doc.Owner = "someone else"
	err := g.CreateKey(ctx, doc)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	// Original document untouched.
	got, err := g.GetKey(ctx, "merlin", "k_2J6Hqk3")
	require.NoError(t, err)
	assert.Equal(t, "Mario", got.Owner)
}

func TestGetKeyNotFound(t *testing.T) {
	g, _, _ := testGateway(t)

	_, err := g.GetKey(context.Background(), "merlin", "k_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetKeyCorruptDocument(t *testing.T) {
	g, mr, _ := testGateway(t)
	mr.Set("apikey:merlin:k_corrupt", "{not json")

	_, err := g.GetKey(context.Background(), "merlin", "k_corrupt")
	assert.ErrorIs(t, err, ErrPermanent)
}

func TestSetKeyDisabled(t *testing.T) {
	g, _, _ := testGateway(t)
	ctx := context.Background()

	exp := 1_800_000_000.0
	doc := sampleKeyDoc()
	doc.ExpiresAt = &exp
	require.NoError(t, g.CreateKey(ctx, doc))

	require.NoError(t, g.SetKeyDisabled(ctx, "merlin", "k_2J6Hqk3"))

	got, err := g.GetKey(ctx, "merlin", "k_2J6Hqk3")
	require.NoError(t, err)
	assert.True(t, got.Disabled)
	// Only the disabled field changed.
	assert.Equal(t, doc.Owner, got.Owner)
	assert.Equal(t, doc.SecretHash, got.SecretHash)
	require.NotNil(t, got.ExpiresAt)
	assert.InDelta(t, exp, *got.ExpiresAt, 1e-6)

	// Idempotent.
	require.NoError(t, g.SetKeyDisabled(ctx, "merlin", "k_2J6Hqk3"))
}

func TestSetKeyDisabledNotFound(t *testing.T) {
	g, _, _ := testGateway(t)

	err := g.SetKeyDisabled(context.Background(), "merlin", "k_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIndexMembership(t *testing.T) {
	g, _, _ := testGateway(t)
	ctx := context.Background()

	require.NoError(t, g.AddKeyToIndex(ctx, "p", "k_bbbbbbb"))
	require.NoError(t, g.AddKeyToIndex(ctx, "p", "k_aaaaaaa"))

	page, next, err := g.ScanIndex(ctx, "p", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"k_aaaaaaa", "k_bbbbbbb"}, page)
	assert.Nil(t, next)

	require.NoError(t, g.RemoveKeyFromIndex(ctx, "p", "k_aaaaaaa"))
	page, _, err = g.ScanIndex(ctx, "p", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"k_bbbbbbb"}, page)
}

func TestScanIndexPagination(t *testing.T) {
	g, _, _ := testGateway(t)
	ctx := context.Background()

	for i := 0; i < 75; i++ {
		require.NoError(t, g.AddKeyToIndex(ctx, "p", fmt.Sprintf("k_%07d", i)))
	}

	page, next, err := g.ScanIndex(ctx, "p", 0, 50)
	require.NoError(t, err)
	assert.Len(t, page, 50)
	require.NotNil(t, next)
	assert.Equal(t, 50, *next)
	assert.True(t, sortedAscending(page))

	page, next, err = g.ScanIndex(ctx, "p", 50, 50)
	require.NoError(t, err)
	assert.Len(t, page, 25)
	assert.Nil(t, next)

	// Offset past the end is an empty final page.
	page, next, err = g.ScanIndex(ctx, "p", 100, 50)
	require.NoError(t, err)
	assert.Empty(t, page)
	assert.Nil(t, next)
}

func sortedAscending(ss []string) bool {
	for i := 1; i < len(ss); i++ {
		if ss[i-1] > ss[i] {
			return false
		}
	}
	return true
}

func TestProjectCreateAndGet(t *testing.T) {
	g, _, _ := testGateway(t)
	ctx := context.Background()

	doc := ProjectDoc{ProjectID: "merlin", Label: "Merlin", Owner: "Mario", CreatedAt: 1_700_000_000}
	require.NoError(t, g.CreateProject(ctx, doc))

	got, err := g.GetProject(ctx, "merlin")
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	assert.ErrorIs(t, g.CreateProject(ctx, doc), ErrAlreadyExists)

	_, err = g.GetProject(ctx, "absent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAppendAudit(t *testing.T) {
	g, _, client := testGateway(t)
	ctx := context.Background()

	require.NoError(t, g.AppendAudit(ctx, AuditRecord{
		TS:        1_700_000_000.5,
		ProjectID: "merlin",
		KeyID:     "k_2J6Hqk3",
		Result:    "ok",
		Client:    "keymanager",
	}))

	entries, err := client.XRange(ctx, "audit:keylookup", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "merlin", entries[0].Values["project_id"])
	assert.Equal(t, "k_2J6Hqk3", entries[0].Values["key_id"])
	assert.Equal(t, "ok", entries[0].Values["result"])
	assert.Equal(t, "keymanager", entries[0].Values["client"])
	assert.Equal(t, "1700000000.5", entries[0].Values["ts"])
}

func TestIncrRate(t *testing.T) {
	g, mr, _ := testGateway(t)
	ctx := context.Background()

	minute := int64(28_333_333)
	for want := int64(1); want <= 3; want++ {
		n, err := g.IncrRate(ctx, "p", "k_abcdefg", minute, 120*time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	// Counter evaporates with its TTL.
	mr.FastForward(121 * time.Second)
	n, err := g.IncrRate(ctx, "p", "k_abcdefg", minute, 120*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// Distinct windows use distinct counters.
	n, err = g.IncrRate(ctx, "p", "k_abcdefg", minute+1, 120*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestUsageLifecycle(t *testing.T) {
	g, _, _ := testGateway(t)
	ctx := context.Background()

	require.NoError(t, g.InitUsage(ctx, "p", "k_abcdefg"))

	usage, err := g.GetUsage(ctx, "p", "k_abcdefg")
	require.NoError(t, err)
	assert.Equal(t, "0", usage[UsageValidationsOK])
	assert.Equal(t, "0", usage[UsageValidationsDenied])
	assert.Equal(t, "", usage[UsageLastSeenTS])

	require.NoError(t, g.BumpUsage(ctx, "p", "k_abcdefg", UsageValidationsOK, 1))
	require.NoError(t, g.BumpUsage(ctx, "p", "k_abcdefg", UsageValidationsOK, 1))
	require.NoError(t, g.SetUsageTS(ctx, "p", "k_abcdefg", UsageLastSeenTS, 1_700_000_000.5))

	usage, err = g.GetUsage(ctx, "p", "k_abcdefg")
	require.NoError(t, err)
	assert.Equal(t, "2", usage[UsageValidationsOK])
	assert.Equal(t, "1700000000.5", usage[UsageLastSeenTS])
}

func TestTransientClassification(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	g := NewWithClient(client, zap.NewNop())

	// Kill the backing store: everything becomes transient.
	mr.Close()

	_, err := g.GetKey(context.Background(), "p", "k_abcdefg")
	assert.ErrorIs(t, err, ErrTransient)

	err = g.AppendAudit(context.Background(), AuditRecord{Result: "ok"})
	assert.ErrorIs(t, err, ErrTransient)

	assert.ErrorIs(t, g.Ping(context.Background()), ErrTransient)
}

func TestKeyNameTemplates(t *testing.T) {
	assert.Equal(t, "project:p1", projectKey("p1"))
	assert.Equal(t, "apikey:p1:k_a", apiKeyKey("p1", "k_a"))
	assert.Equal(t, "apiprojectkeys:p1", projectIndexKey("p1"))
	assert.Equal(t, "apimeta:p1:k_a", usageKey("p1", "k_a"))
	assert.Equal(t, "ratelimit:key:p1:k_a:28333333", rateKey("p1", "k_a", 28_333_333))
}
