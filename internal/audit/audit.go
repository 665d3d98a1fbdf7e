// Package audit emits validation outcomes to the append-only audit stream.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/raakeshmj/keymanager/internal/store"
)

// Client tag stamped on every record this service writes.
const ClientTag = "keymanager"

// Results recorded in the stream.
const (
	ResultOK          = "ok"
	ResultDenied      = "denied"
	ResultRateLimited = "rate_limited"
)

// Appender is the slice of the store gateway the writer needs.
type Appender interface {
	AppendAudit(ctx context.Context, rec store.AuditRecord) error
}

// Writer records validation outcomes. Writes are best-effort: a failed append
// is logged and swallowed so it never changes the caller's answer.
type Writer struct {
	appender Appender
	logger   *zap.Logger
	now      func() time.Time
}

func NewWriter(appender Appender, logger *zap.Logger) *Writer {
	return &Writer{appender: appender, logger: logger, now: time.Now}
}

// Record appends one outcome. ProjectID and keyID may be empty when the
// bearer did not parse.
func (w *Writer) Record(ctx context.Context, projectID, keyID, result string) {
	rec := store.AuditRecord{
		TS:        float64(w.now().UnixNano()) / 1e9,
		ProjectID: projectID,
		KeyID:     keyID,
		Result:    result,
		Client:    ClientTag,
	}
	if err := w.appender.AppendAudit(ctx, rec); err != nil {
		w.logger.Warn("audit append failed",
			zap.String("project_id", projectID),
			zap.String("key_id", keyID),
			zap.String("result", result),
			zap.Error(err),
		)
	}
}
