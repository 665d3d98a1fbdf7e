package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/raakeshmj/keymanager/internal/config"
	"github.com/raakeshmj/keymanager/internal/metrics"
)

// incrWithTTLScript atomically increments a counter and arms its TTL on
// first touch within the window.
// KEYS[1] = counter key, ARGV[1] = delta, ARGV[2] = ttl seconds
var incrWithTTLScript = redis.NewScript(`
local current = redis.call('INCRBY', KEYS[1], ARGV[1])
if current == tonumber(ARGV[1]) then
	redis.call('EXPIRE', KEYS[1], ARGV[2])
end
return current
`)

// disableKeyScript flips the disabled field of a key document in a single
// store operation. Returns 0 when the document does not exist.
// KEYS[1] = key document
var disableKeyScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
	return 0
end
local doc = cjson.decode(raw)
doc['disabled'] = true
redis.call('SET', KEYS[1], cjson.encode(doc))
return 1
`)

// Gateway wraps one principal-bound connection pool.
type Gateway struct {
	client *redis.Client
	logger *zap.Logger
}

// NewValidator opens a pool bound to the validator principal.
func NewValidator(cfg config.StoreConfig, logger *zap.Logger) *Gateway {
	return newGateway(cfg, cfg.ValidatorPrincipal, cfg.ValidatorSecret, logger)
}

// NewManager opens a pool bound to the manager principal.
func NewManager(cfg config.StoreConfig, logger *zap.Logger) *Gateway {
	return newGateway(cfg, cfg.ManagerPrincipal, cfg.ManagerSecret, logger)
}

func newGateway(cfg config.StoreConfig, username, password string, logger *zap.Logger) *Gateway {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Username:     username,
		Password:     password,
		DB:           cfg.DBIndex,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	return &Gateway{client: client, logger: logger}
}

// NewWithClient wraps an existing client. Used by tests.
func NewWithClient(client *redis.Client, logger *zap.Logger) *Gateway {
	return &Gateway{client: client, logger: logger}
}

func (g *Gateway) Ping(ctx context.Context) error {
	if err := g.client.Ping(ctx).Err(); err != nil {
		return classify("ping", err)
	}
	return nil
}

func (g *Gateway) Close() error {
	return g.client.Close()
}

// GetKey fetches and decodes a key document.
func (g *Gateway) GetKey(ctx context.Context, projectID, keyID string) (KeyDoc, error) {
	started := time.Now()
	raw, err := g.client.Get(ctx, apiKeyKey(projectID, keyID)).Result()
	metrics.ObserveStoreOp("get_key", err, started)
	if errors.Is(err, redis.Nil) {
		return KeyDoc{}, ErrNotFound
	}
	if err != nil {
		return KeyDoc{}, classify("get key", err)
	}

	var doc KeyDoc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return KeyDoc{}, permanent("decode key document", err)
	}
	return doc, nil
}

// CreateKey writes a key document with create-only semantics; an existing
// document under the same name is never overwritten.
func (g *Gateway) CreateKey(ctx context.Context, doc KeyDoc) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return permanent("encode key document", err)
	}

	started := time.Now()
	ok, err := g.client.SetNX(ctx, apiKeyKey(doc.ProjectID, doc.KeyID), data, 0).Result()
	metrics.ObserveStoreOp("create_key", err, started)
	if err != nil {
		return classify("create key", err)
	}
	if !ok {
		return ErrAlreadyExists
	}
	return nil
}

// SetKeyDisabled marks a key document disabled. The update happens inside a
// store-side script so concurrent readers never observe a partial document.
func (g *Gateway) SetKeyDisabled(ctx context.Context, projectID, keyID string) error {
	started := time.Now()
	n, err := disableKeyScript.Run(ctx, g.client, []string{apiKeyKey(projectID, keyID)}).Int64()
	metrics.ObserveStoreOp("set_key_disabled", err, started)
	if err != nil {
		return classify("disable key", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *Gateway) AddKeyToIndex(ctx context.Context, projectID, keyID string) error {
	started := time.Now()
	err := g.client.SAdd(ctx, projectIndexKey(projectID), keyID).Err()
	metrics.ObserveStoreOp("add_key_to_index", err, started)
	if err != nil {
		return classify("add key to index", err)
	}
	return nil
}

func (g *Gateway) RemoveKeyFromIndex(ctx context.Context, projectID, keyID string) error {
	started := time.Now()
	err := g.client.SRem(ctx, projectIndexKey(projectID), keyID).Err()
	metrics.ObserveStoreOp("remove_key_from_index", err, started)
	if err != nil {
		return classify("remove key from index", err)
	}
	return nil
}

// ScanIndex returns one page of key ids in ascending order and the offset of
// the next page, or nil if this page was the last. The store has no native
// cursor over sets, so the full member list is fetched and sorted to make
// pagination deterministic.
func (g *Gateway) ScanIndex(ctx context.Context, projectID string, offset, limit int) ([]string, *int, error) {
	started := time.Now()
	members, err := g.client.SMembers(ctx, projectIndexKey(projectID)).Result()
	metrics.ObserveStoreOp("scan_index", err, started)
	if err != nil {
		return nil, nil, classify("scan index", err)
	}
	sort.Strings(members)

	if offset >= len(members) {
		return []string{}, nil, nil
	}
	end := offset + limit
	if end > len(members) {
		end = len(members)
	}
	page := members[offset:end]

	var next *int
	if end < len(members) {
		n := end
		next = &n
	}
	return page, next, nil
}

func (g *Gateway) GetProject(ctx context.Context, projectID string) (ProjectDoc, error) {
	started := time.Now()
	raw, err := g.client.Get(ctx, projectKey(projectID)).Result()
	metrics.ObserveStoreOp("get_project", err, started)
	if errors.Is(err, redis.Nil) {
		return ProjectDoc{}, ErrNotFound
	}
	if err != nil {
		return ProjectDoc{}, classify("get project", err)
	}

	var doc ProjectDoc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return ProjectDoc{}, permanent("decode project document", err)
	}
	return doc, nil
}

// CreateProject writes a project document, rejecting overwrite.
func (g *Gateway) CreateProject(ctx context.Context, doc ProjectDoc) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return permanent("encode project document", err)
	}

	started := time.Now()
	ok, err := g.client.SetNX(ctx, projectKey(doc.ProjectID), data, 0).Result()
	metrics.ObserveStoreOp("create_project", err, started)
	if err != nil {
		return classify("create project", err)
	}
	if !ok {
		return ErrAlreadyExists
	}
	return nil
}

// AppendAudit appends one record to the audit stream. Callers treat failure
// as best-effort; the error is returned so they can log it.
func (g *Gateway) AppendAudit(ctx context.Context, rec AuditRecord) error {
	started := time.Now()
	err := g.client.XAdd(ctx, &redis.XAddArgs{
		Stream: auditStreamKey,
		Values: map[string]interface{}{
			"ts":         strconv.FormatFloat(rec.TS, 'f', -1, 64),
			"project_id": rec.ProjectID,
			"key_id":     rec.KeyID,
			"result":     rec.Result,
			"client":     rec.Client,
		},
	}).Err()
	metrics.ObserveStoreOp("append_audit", err, started)
	if err != nil {
		return classify("append audit", err)
	}
	return nil
}

// IncrRate bumps the per-minute counter, arming its TTL on the first hit of
// the window, and returns the post-increment value.
func (g *Gateway) IncrRate(ctx context.Context, projectID, keyID string, minute int64, ttl time.Duration) (int64, error) {
	started := time.Now()
	n, err := incrWithTTLScript.Run(ctx, g.client,
		[]string{rateKey(projectID, keyID, minute)},
		1, int(ttl.Seconds()),
	).Int64()
	metrics.ObserveStoreOp("incr_rate", err, started)
	if err != nil {
		return 0, classify("incr rate", err)
	}
	return n, nil
}

// InitUsage seeds the usage hash for a freshly minted key.
func (g *Gateway) InitUsage(ctx context.Context, projectID, keyID string) error {
	started := time.Now()
	err := g.client.HSet(ctx, usageKey(projectID, keyID), map[string]interface{}{
		UsageValidationsOK:     0,
		UsageValidationsDenied: 0,
		UsageLastSeenTS:        "",
	}).Err()
	metrics.ObserveStoreOp("init_usage", err, started)
	if err != nil {
		return classify("init usage", err)
	}
	return nil
}

// BumpUsage increments a usage counter field.
func (g *Gateway) BumpUsage(ctx context.Context, projectID, keyID, field string, delta int64) error {
	started := time.Now()
	err := g.client.HIncrBy(ctx, usageKey(projectID, keyID), field, delta).Err()
	metrics.ObserveStoreOp("bump_usage", err, started)
	if err != nil {
		return classify("bump usage", err)
	}
	return nil
}

// SetUsageTS records a timestamp field in the usage hash.
func (g *Gateway) SetUsageTS(ctx context.Context, projectID, keyID, field string, ts float64) error {
	started := time.Now()
	err := g.client.HSet(ctx, usageKey(projectID, keyID), field, strconv.FormatFloat(ts, 'f', -1, 64)).Err()
	metrics.ObserveStoreOp("set_usage_ts", err, started)
	if err != nil {
		return classify("set usage ts", err)
	}
	return nil
}

// GetUsage reads the usage hash as raw field/value pairs.
func (g *Gateway) GetUsage(ctx context.Context, projectID, keyID string) (map[string]string, error) {
	started := time.Now()
	fields, err := g.client.HGetAll(ctx, usageKey(projectID, keyID)).Result()
	metrics.ObserveStoreOp("get_usage", err, started)
	if err != nil {
		return nil, classify("get usage", err)
	}
	return fields, nil
}
