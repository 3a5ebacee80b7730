package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-iam/internal/associations"
	jobmetrics "github.com/odyssey-erp/odyssey-iam/internal/jobs"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

type fakeWriter struct {
	seen  []int64
	dupes map[int64]bool
	fail  map[int64]error
}

func (f *fakeWriter) record(userID int64) error {
	f.seen = append(f.seen, userID)
	if err := f.fail[userID]; err != nil {
		return err
	}
	if f.dupes[userID] {
		return shared.CodeTenantRoleUserExists.New(1, 1)
	}
	return nil
}

func (f *fakeWriter) CreateTenantRole(ctx context.Context, in associations.TenantRoleInput) (associations.TenantRole, error) {
	return associations.TenantRole{}, f.record(in.RoleID)
}

func (f *fakeWriter) AssignPermission(ctx context.Context, tenantID, roleID, permissionID int64) (associations.TenantRolePermission, error) {
	return associations.TenantRolePermission{}, f.record(permissionID)
}

func (f *fakeWriter) AssignUser(ctx context.Context, tenantID, roleID, userID int64) (associations.TenantRoleUser, error) {
	return associations.TenantRoleUser{}, f.record(userID)
}

func (f *fakeWriter) CreateActiveTenant(ctx context.Context, in associations.ActiveTenantInput) (associations.ActiveTenant, error) {
	return associations.ActiveTenant{}, f.record(in.UserID)
}

type fakeKeys struct {
	keys    map[string]bool
	deleted []string
}

func newFakeKeys() *fakeKeys { return &fakeKeys{keys: map[string]bool{}} }

func (f *fakeKeys) CheckAndInsert(ctx context.Context, key, module string) error {
	if f.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	f.keys[key] = true
	return nil
}

func (f *fakeKeys) Delete(ctx context.Context, key string) error {
	delete(f.keys, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func userBatch(batch string, users ...int64) BulkLoadPayload {
	p := BulkLoadPayload{Batch: batch, Kind: BulkTenantRoleUser}
	for i, u := range users {
		// indices run backwards so ordering is observable
		p.Records = append(p.Records, BulkRecord{Index: len(users) - i, TenantID: 1, RoleID: 1, UserID: u})
	}
	return p
}

func TestBulkLoadAppliesInIndexOrderAndSkipsDuplicates(t *testing.T) {
	writer := &fakeWriter{dupes: map[int64]bool{20: true}}
	job := NewBulkLoadJob(writer, newFakeKeys(), nil, nil)

	res, err := job.Apply(context.Background(), userBatch("b-1", 10, 20, 30))
	require.NoError(t, err)
	assert.Equal(t, []int64{30, 20, 10}, writer.seen)
	assert.Equal(t, 2, res.Applied)
	assert.Equal(t, 1, res.Skipped)
	assert.False(t, res.Duplicate)
}

func TestBulkLoadRedeliveryIsNoop(t *testing.T) {
	writer := &fakeWriter{}
	keys := newFakeKeys()
	job := NewBulkLoadJob(writer, keys, nil, nil)

	_, err := job.Apply(context.Background(), userBatch("b-2", 1, 2))
	require.NoError(t, err)
	res, err := job.Apply(context.Background(), userBatch("b-2", 1, 2))
	require.NoError(t, err)

	assert.True(t, res.Duplicate)
	assert.Len(t, writer.seen, 2)
}

func TestBulkLoadReleasesKeyOnFailure(t *testing.T) {
	boom := errors.New("connection reset")
	writer := &fakeWriter{fail: map[int64]error{2: boom}}
	keys := newFakeKeys()
	job := NewBulkLoadJob(writer, keys, nil, nil)

	res, err := job.Apply(context.Background(), userBatch("b-3", 1, 2, 3))
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"b-3"}, keys.deleted)
	assert.False(t, keys.keys["b-3"])
	assert.Equal(t, 1, res.Applied)

	writer.fail = nil
	res, err = job.Apply(context.Background(), userBatch("b-3", 1, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Applied)
}

func TestBulkLoadRejectsUnknownKind(t *testing.T) {
	job := NewBulkLoadJob(&fakeWriter{}, newFakeKeys(), nil, nil)
	_, err := job.Apply(context.Background(), BulkLoadPayload{Batch: "b-4", Kind: "nope"})
	assert.ErrorIs(t, err, asynq.SkipRetry)

	_, err = job.Apply(context.Background(), BulkLoadPayload{Kind: BulkTenantRole})
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestBulkLoadHandleTracksRuns(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	job := NewBulkLoadJob(&fakeWriter{}, newFakeKeys(), nil, metrics)

	task, err := NewBulkLoadTask(userBatch("b-5", 1))
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	count, err := testutil.GatherAndCount(reg, "odyssey_iam_jobs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	bad := asynq.NewTask(TaskAssociationsBulkLoad, []byte("{"))
	assert.ErrorIs(t, job.Handle(context.Background(), bad), asynq.SkipRetry)
}
