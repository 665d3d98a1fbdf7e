// Package service holds the validation pipeline and the admin operations.
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/raakeshmj/keymanager/internal/audit"
	"github.com/raakeshmj/keymanager/internal/credential"
	"github.com/raakeshmj/keymanager/internal/limiter"
	"github.com/raakeshmj/keymanager/internal/metrics"
	"github.com/raakeshmj/keymanager/internal/store"
	"github.com/raakeshmj/keymanager/internal/verifier"
)

// KeyReader is the validator-principal slice of the store gateway.
type KeyReader interface {
	GetKey(ctx context.Context, projectID, keyID string) (store.KeyDoc, error)
	BumpUsage(ctx context.Context, projectID, keyID, field string, delta int64) error
	SetUsageTS(ctx context.Context, projectID, keyID, field string, ts float64) error
}

// ValidationResult is the payload returned to upstream gateways on success.
// It carries routing metadata only; the verifier and timestamps never appear.
type ValidationResult struct {
	ProjectID string `json:"project_id"`
	KeyID     string `json:"key_id"`
	Owner     string `json:"owner"`
	Metadata  string `json:"metadata"`
}

// Validator runs the validation pipeline: parse, lookup, state checks, secret
// verification, rate limit, audit, usage accounting. The check order is a
// protocol contract; do not reorder.
type Validator struct {
	keys    KeyReader
	hasher  *verifier.Hasher
	limiter *limiter.Limiter
	audit   *audit.Writer
	logger  *zap.Logger
	now     func() time.Time
}

func NewValidator(keys KeyReader, hasher *verifier.Hasher, l *limiter.Limiter, auditWriter *audit.Writer, logger *zap.Logger) *Validator {
	return &Validator{
		keys:    keys,
		hasher:  hasher,
		limiter: l,
		audit:   auditWriter,
		logger:  logger,
		now:     time.Now,
	}
}

// Validate decides the outcome for one presented bearer. Denials of every
// cause return ErrUnauthorized and an empty result so responses stay
// structurally identical; the cause is visible only in the audit stream and
// logs. Transient store failures return ErrUnavailable without auditing.
func (v *Validator) Validate(ctx context.Context, bearer string) (ValidationResult, error) {
	cred, err := credential.Parse(bearer)
	if err != nil {
		v.audit.Record(ctx, "", "", audit.ResultDenied)
		metrics.ObserveValidation(audit.ResultDenied)
		return ValidationResult{}, ErrUnauthorized
	}

	doc, err := v.keys.GetKey(ctx, cred.ProjectID, cred.KeyID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			v.audit.Record(ctx, cred.ProjectID, cred.KeyID, audit.ResultDenied)
			metrics.ObserveValidation(audit.ResultDenied)
			return ValidationResult{}, ErrUnauthorized
		}
		return ValidationResult{}, v.storeFailure("key fetch", cred, err)
	}

	if doc.Disabled {
		return ValidationResult{}, v.deny(ctx, cred, "key disabled")
	}

	if doc.Expired(v.nowSeconds()) {
		return ValidationResult{}, v.deny(ctx, cred, "key expired")
	}

	if err := v.hasher.Verify(cred.Secret, doc.SecretHash); err != nil {
		if errors.Is(err, verifier.ErrMalformed) {
			// Corrupted stored data on an otherwise-plausible bearer: audit a
			// denial but surface an internal error, not an unauthorized.
			v.audit.Record(ctx, cred.ProjectID, cred.KeyID, audit.ResultDenied)
			metrics.ObserveValidation("error")
			v.logger.Error("stored verifier unparseable",
				zap.String("project_id", cred.ProjectID),
				zap.String("key_id", cred.KeyID),
			)
			return ValidationResult{}, ErrInternal
		}
		return ValidationResult{}, v.deny(ctx, cred, "secret mismatch")
	}

	if err := v.limiter.Allow(ctx, cred.ProjectID, cred.KeyID); err != nil {
		if errors.Is(err, limiter.ErrRateLimitExceeded) {
			v.audit.Record(ctx, cred.ProjectID, cred.KeyID, audit.ResultRateLimited)
			metrics.ObserveValidation(audit.ResultRateLimited)
			v.bumpDenied(ctx, cred)
			return ValidationResult{}, ErrRateLimited
		}
		return ValidationResult{}, v.storeFailure("rate increment", cred, err)
	}

	v.audit.Record(ctx, cred.ProjectID, cred.KeyID, audit.ResultOK)
	metrics.ObserveValidation(audit.ResultOK)
	v.bumpOK(ctx, cred)

	return ValidationResult{
		ProjectID: doc.ProjectID,
		KeyID:     doc.KeyID,
		Owner:     doc.Owner,
		Metadata:  doc.Metadata,
	}, nil
}

// deny records a denial for a key whose document exists. The reason goes to
// the operator log only.
func (v *Validator) deny(ctx context.Context, cred credential.Credential, reason string) error {
	v.audit.Record(ctx, cred.ProjectID, cred.KeyID, audit.ResultDenied)
	metrics.ObserveValidation(audit.ResultDenied)
	v.bumpDenied(ctx, cred)
	v.logger.Debug("validation denied",
		zap.String("project_id", cred.ProjectID),
		zap.String("key_id", cred.KeyID),
		zap.String("reason", reason),
	)
	return ErrUnauthorized
}

func (v *Validator) storeFailure(stage string, cred credential.Credential, err error) error {
	v.logger.Warn("store failure during validation",
		zap.String("stage", stage),
		zap.String("project_id", cred.ProjectID),
		zap.String("key_id", cred.KeyID),
		zap.Error(err),
	)
	if errors.Is(err, store.ErrTransient) {
		return ErrUnavailable
	}
	return ErrInternal
}

// Usage accounting is best-effort like the audit trail: failures are logged
// and never change the caller's answer.
func (v *Validator) bumpOK(ctx context.Context, cred credential.Credential) {
	if err := v.keys.BumpUsage(ctx, cred.ProjectID, cred.KeyID, store.UsageValidationsOK, 1); err != nil {
		v.logger.Warn("usage bump failed", zap.String("key_id", cred.KeyID), zap.Error(err))
	}
	if err := v.keys.SetUsageTS(ctx, cred.ProjectID, cred.KeyID, store.UsageLastSeenTS, v.nowSeconds()); err != nil {
		v.logger.Warn("usage timestamp failed", zap.String("key_id", cred.KeyID), zap.Error(err))
	}
}

func (v *Validator) bumpDenied(ctx context.Context, cred credential.Credential) {
	if err := v.keys.BumpUsage(ctx, cred.ProjectID, cred.KeyID, store.UsageValidationsDenied, 1); err != nil {
		v.logger.Warn("usage bump failed", zap.String("key_id", cred.KeyID), zap.Error(err))
	}
}

func (v *Validator) nowSeconds() float64 {
	return float64(v.now().UnixNano()) / 1e9
}
