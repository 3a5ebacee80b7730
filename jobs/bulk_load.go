package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-iam/internal/associations"
	jobmetrics "github.com/odyssey-erp/odyssey-iam/internal/jobs"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

const bulkLoadModule = "associations.bulk_load"

// AssociationWriter is the slice of the association store the bulk loader
// writes through.
type AssociationWriter interface {
	CreateTenantRole(ctx context.Context, in associations.TenantRoleInput) (associations.TenantRole, error)
	AssignPermission(ctx context.Context, tenantID, roleID, permissionID int64) (associations.TenantRolePermission, error)
	AssignUser(ctx context.Context, tenantID, roleID, userID int64) (associations.TenantRoleUser, error)
	CreateActiveTenant(ctx context.Context, in associations.ActiveTenantInput) (associations.ActiveTenant, error)
}

// IdempotencyStore records processed batches.
type IdempotencyStore interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// BulkLoadResult summarises one batch.
type BulkLoadResult struct {
	Applied   int
	Skipped   int
	Duplicate bool
}

// BulkLoadJob applies association batches.
type BulkLoadJob struct {
	Writer      AssociationWriter
	Idempotency IdempotencyStore
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
}

// NewBulkLoadJob builds the bulk-load handler.
func NewBulkLoadJob(writer AssociationWriter, store IdempotencyStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *BulkLoadJob {
	return &BulkLoadJob{Writer: writer, Idempotency: store, Logger: logger, Metrics: metrics}
}

// Handle decodes and applies a batch. Malformed payloads are not retried.
func (j *BulkLoadJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Writer == nil {
		return errors.New("bulk load: handler not configured")
	}
	var payload BulkLoadPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("bulk load: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskAssociationsBulkLoad)
	logger := loggerOrDefault(j.Logger).With(slog.String("batch", payload.Batch), slog.String("kind", string(payload.Kind)))
	res, err := j.Apply(ctx, payload)
	if err != nil {
		logger.Error("bulk load failed", slog.Any("error", err))
		return tracker.End(err)
	}
	logger.Info("bulk load completed",
		slog.Int("applied", res.Applied),
		slog.Int("skipped", res.Skipped),
		slog.Bool("duplicate", res.Duplicate),
	)
	return tracker.End(nil)
}

// Apply writes the batch records in index order. Records colliding with
// existing rows are skipped. A batch already processed is a no-op; on any
// other failure the batch key is released so a retry can run again.
func (j *BulkLoadJob) Apply(ctx context.Context, payload BulkLoadPayload) (BulkLoadResult, error) {
	if payload.Batch == "" {
		return BulkLoadResult{}, fmt.Errorf("bulk load: batch key required: %w", asynq.SkipRetry)
	}
	apply, err := j.applier(payload.Kind)
	if err != nil {
		return BulkLoadResult{}, err
	}
	if j.Idempotency != nil {
		if err := j.Idempotency.CheckAndInsert(ctx, payload.Batch, bulkLoadModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return BulkLoadResult{Duplicate: true}, nil
			}
			return BulkLoadResult{}, err
		}
	}

	records := append([]BulkRecord(nil), payload.Records...)
	sort.SliceStable(records, func(a, b int) bool { return records[a].Index < records[b].Index })

	var res BulkLoadResult
	for _, rec := range records {
		err := apply(ctx, rec)
		switch {
		case err == nil:
			res.Applied++
		case errors.Is(err, shared.ErrUniqueness):
			res.Skipped++
		default:
			j.release(ctx, payload.Batch)
			return res, fmt.Errorf("bulk load: record %d: %w", rec.Index, err)
		}
	}
	return res, nil
}

func (j *BulkLoadJob) release(ctx context.Context, batch string) {
	if j.Idempotency == nil {
		return
	}
	if err := j.Idempotency.Delete(ctx, batch); err != nil {
		loggerOrDefault(j.Logger).Warn("release batch key", slog.String("batch", batch), slog.Any("error", err))
	}
}

func (j *BulkLoadJob) applier(kind BulkKind) (func(context.Context, BulkRecord) error, error) {
	switch kind {
	case BulkTenantRole:
		return func(ctx context.Context, rec BulkRecord) error {
			_, err := j.Writer.CreateTenantRole(ctx, associations.TenantRoleInput{TenantID: rec.TenantID, RoleID: rec.RoleID})
			return err
		}, nil
	case BulkTenantRolePermission:
		return func(ctx context.Context, rec BulkRecord) error {
			_, err := j.Writer.AssignPermission(ctx, rec.TenantID, rec.RoleID, rec.PermissionID)
			return err
		}, nil
	case BulkTenantRoleUser:
		return func(ctx context.Context, rec BulkRecord) error {
			_, err := j.Writer.AssignUser(ctx, rec.TenantID, rec.RoleID, rec.UserID)
			return err
		}, nil
	case BulkActiveTenant:
		return func(ctx context.Context, rec BulkRecord) error {
			_, err := j.Writer.CreateActiveTenant(ctx, associations.ActiveTenantInput{TenantID: rec.TenantID, UserID: rec.UserID, IsTenantActive: rec.IsTenantActive})
			return err
		}, nil
	default:
		return nil, fmt.Errorf("bulk load: unknown kind %q: %w", kind, asynq.SkipRetry)
	}
}
