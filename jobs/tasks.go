package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskCatalogSeed loads the system permission table and built-in roles.
	TaskCatalogSeed = "catalog:seed"
	// TaskAssociationsBulkLoad applies a batch of association records.
	TaskAssociationsBulkLoad = "associations:bulk-load"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// DefaultIdempotencyRetention is how long processed batch keys are kept.
const DefaultIdempotencyRetention = 30 * 24 * time.Hour

// BulkKind selects the association type a bulk-load batch writes.
type BulkKind string

const (
	BulkTenantRole           BulkKind = "tenant_role"
	BulkTenantRolePermission BulkKind = "tenant_role_permission"
	BulkTenantRoleUser       BulkKind = "tenant_role_user"
	BulkActiveTenant         BulkKind = "active_tenant"
)

// BulkRecord is one association row of a batch. Only the fields relevant to
// the batch kind are read.
type BulkRecord struct {
	Index          int   `json:"index"`
	TenantID       int64 `json:"tenantId"`
	RoleID         int64 `json:"roleId,omitempty"`
	PermissionID   int64 `json:"permissionId,omitempty"`
	UserID         int64 `json:"userId,omitempty"`
	IsTenantActive bool  `json:"isTenantActive,omitempty"`
}

// BulkLoadPayload describes an association batch.
type BulkLoadPayload struct {
	Batch   string       `json:"batch"`
	Kind    BulkKind     `json:"kind"`
	Records []BulkRecord `json:"records"`
}

// IdempotencyCleanupPayload configures the cleanup task.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewCatalogSeedTask constructs the catalog seed task.
func NewCatalogSeedTask() *asynq.Task {
	return asynq.NewTask(TaskCatalogSeed, nil)
}

// NewBulkLoadTask constructs an association bulk-load task.
func NewBulkLoadTask(payload BulkLoadPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAssociationsBulkLoad, data), nil
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: int(retention / time.Hour)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
