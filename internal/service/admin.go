package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/raakeshmj/keymanager/internal/credential"
	"github.com/raakeshmj/keymanager/internal/metrics"
	"github.com/raakeshmj/keymanager/internal/store"
	"github.com/raakeshmj/keymanager/internal/verifier"
)

const (
	maxMetadataBytes = 4 * 1024

	// mintRetries bounds key-id regeneration after a create collision.
	mintRetries = 5

	DefaultListLimit = 50
	MaxListLimit     = 200
)

// ManagerStore is the manager-principal slice of the store gateway.
type ManagerStore interface {
	GetKey(ctx context.Context, projectID, keyID string) (store.KeyDoc, error)
	CreateKey(ctx context.Context, doc store.KeyDoc) error
	SetKeyDisabled(ctx context.Context, projectID, keyID string) error
	AddKeyToIndex(ctx context.Context, projectID, keyID string) error
	ScanIndex(ctx context.Context, projectID string, offset, limit int) ([]string, *int, error)
	InitUsage(ctx context.Context, projectID, keyID string) error
	CreateProject(ctx context.Context, doc store.ProjectDoc) error
	GetProject(ctx context.Context, projectID string) (store.ProjectDoc, error)
}

// MintInput are the caller-supplied fields for a new key.
type MintInput struct {
	ProjectID string
	Owner     string
	Metadata  string
	ExpiresAt *float64
}

// KeyItem is one row of a key listing. The verifier is deliberately absent.
type KeyItem struct {
	KeyID     string   `json:"key_id"`
	Owner     string   `json:"owner"`
	Metadata  string   `json:"metadata"`
	CreatedAt float64  `json:"created_at"`
	Disabled  bool     `json:"disabled"`
	ExpiresAt *float64 `json:"expires_at"`
}

// KeyPage is one page of a key listing plus the offset of the next page.
type KeyPage struct {
	Items []KeyItem `json:"items"`
	Next  *int      `json:"next"`
}

// Admin implements mint, revoke, list and the project operations over the
// manager-principal gateway.
type Admin struct {
	stores ManagerStore
	hasher *verifier.Hasher
	logger *zap.Logger
	now    func() time.Time
}

func NewAdmin(stores ManagerStore, hasher *verifier.Hasher, logger *zap.Logger) *Admin {
	return &Admin{stores: stores, hasher: hasher, logger: logger, now: time.Now}
}

// MintKey issues a new credential and returns the formatted bearer string.
// The bearer is shown exactly once; only the verifier is persisted.
//
// Side effects are ordered so "listed implies readable" holds at rest: the
// document write is the commit point, then the index entry, then the usage
// hash. Failures after the commit point are logged and the mint still
// succeeds; reconciliation is an operational concern.
func (a *Admin) MintKey(ctx context.Context, in MintInput) (string, error) {
	nowSec := a.nowSeconds()

	if !credential.ValidProjectID(in.ProjectID) {
		return "", validationErrorf("project_id must match [A-Za-z0-9_-]{1,64}")
	}
	if len(in.Metadata) > maxMetadataBytes {
		return "", validationErrorf("metadata exceeds %d bytes", maxMetadataBytes)
	}
	if in.ExpiresAt != nil && *in.ExpiresAt <= nowSec {
		return "", validationErrorf("expires_at must be in the future")
	}

	secret, err := credential.NewSecret()
	if err != nil {
		return "", fromStoreInternal("generate secret", err)
	}
	secretHash, err := a.hasher.Hash(secret)
	if err != nil {
		return "", fromStoreInternal("hash secret", err)
	}

	var keyID string
	for attempt := 0; ; attempt++ {
		keyID, err = credential.NewKeyID()
		if err != nil {
			return "", fromStoreInternal("generate key id", err)
		}

		err = a.stores.CreateKey(ctx, store.KeyDoc{
			KeyID:      keyID,
			ProjectID:  in.ProjectID,
			Owner:      in.Owner,
			Metadata:   in.Metadata,
			SecretHash: secretHash,
			Disabled:   false,
			CreatedAt:  nowSec,
			ExpiresAt:  in.ExpiresAt,
		})
		if err == nil {
			break
		}
		if errors.Is(err, store.ErrAlreadyExists) {
			if attempt >= mintRetries {
				a.logger.Error("key id space exhausted after retries",
					zap.String("project_id", in.ProjectID),
					zap.Int("attempts", attempt+1),
				)
				return "", ErrInternal
			}
			continue
		}
		return "", fromStore(err)
	}

	// Past the commit point: the bearer is already valid.
	if err := a.stores.AddKeyToIndex(ctx, in.ProjectID, keyID); err != nil {
		a.logger.Error("index insert failed after mint",
			zap.String("project_id", in.ProjectID),
			zap.String("key_id", keyID),
			zap.Error(err),
		)
	}
	if err := a.stores.InitUsage(ctx, in.ProjectID, keyID); err != nil {
		a.logger.Warn("usage init failed after mint",
			zap.String("project_id", in.ProjectID),
			zap.String("key_id", keyID),
			zap.Error(err),
		)
	}

	metrics.ObserveMint()
	return credential.Format(in.ProjectID, keyID, secret), nil
}

// RevokeKey disables a key. Idempotent: revoking an already-disabled key
// succeeds again. The document and index entry stay in place.
func (a *Admin) RevokeKey(ctx context.Context, projectID, keyID string) error {
	if !credential.ValidProjectID(projectID) || !credential.ValidKeyID(keyID) {
		return ErrNotFound
	}

	if err := a.stores.SetKeyDisabled(ctx, projectID, keyID); err != nil {
		return fromStore(err)
	}
	metrics.ObserveRevoke()
	return nil
}

// ListKeys returns one page of keys in ascending key_id order. Limit is
// clamped to [1, MaxListLimit]; zero selects the default.
func (a *Admin) ListKeys(ctx context.Context, projectID string, offset, limit int) (KeyPage, error) {
	if !credential.ValidProjectID(projectID) {
		return KeyPage{}, validationErrorf("project_id must match [A-Za-z0-9_-]{1,64}")
	}
	if offset < 0 {
		return KeyPage{}, validationErrorf("offset must be >= 0")
	}
	if limit == 0 {
		limit = DefaultListLimit
	}
	if limit < 1 {
		limit = 1
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	ids, next, err := a.stores.ScanIndex(ctx, projectID, offset, limit)
	if err != nil {
		return KeyPage{}, fromStore(err)
	}

	items := make([]KeyItem, 0, len(ids))
	for _, keyID := range ids {
		doc, err := a.stores.GetKey(ctx, projectID, keyID)
		if errors.Is(err, store.ErrNotFound) {
			// Indexed but unreadable: a mint or external delete in flight.
			continue
		}
		if err != nil {
			return KeyPage{}, fromStore(err)
		}
		items = append(items, KeyItem{
			KeyID:     doc.KeyID,
			Owner:     doc.Owner,
			Metadata:  doc.Metadata,
			CreatedAt: doc.CreatedAt,
			Disabled:  doc.Disabled,
			ExpiresAt: doc.ExpiresAt,
		})
	}

	return KeyPage{Items: items, Next: next}, nil
}

// CreateProject writes the descriptive project record. Create-only.
func (a *Admin) CreateProject(ctx context.Context, projectID, label, owner string) (store.ProjectDoc, error) {
	if !credential.ValidProjectID(projectID) {
		return store.ProjectDoc{}, validationErrorf("project_id must match [A-Za-z0-9_-]{1,64}")
	}

	doc := store.ProjectDoc{
		ProjectID: projectID,
		Label:     label,
		Owner:     owner,
		CreatedAt: a.nowSeconds(),
	}
	if err := a.stores.CreateProject(ctx, doc); err != nil {
		return store.ProjectDoc{}, fromStore(err)
	}
	return doc, nil
}

// GetProject reads the stored project record.
func (a *Admin) GetProject(ctx context.Context, projectID string) (store.ProjectDoc, error) {
	doc, err := a.stores.GetProject(ctx, projectID)
	if err != nil {
		return store.ProjectDoc{}, fromStore(err)
	}
	return doc, nil
}

func (a *Admin) nowSeconds() float64 {
	return float64(a.now().UnixNano()) / 1e9
}

func fromStoreInternal(stage string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrInternal, stage, err)
}
