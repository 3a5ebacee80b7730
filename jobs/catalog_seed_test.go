package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-iam/internal/catalog"
	"github.com/odyssey-erp/odyssey-iam/internal/roles"
)

type fakeSeeder struct {
	calls int
	err   error
}

func (f *fakeSeeder) Seed(ctx context.Context) (catalog.SeedReport, error) {
	f.calls++
	return catalog.SeedReport{Actions: 5, Resources: 11, Permissions: 55}, f.err
}

type fakeRoles struct{ calls int }

func (f *fakeRoles) EnsureSystemRoles(ctx context.Context) (map[string]roles.Role, error) {
	f.calls++
	return map[string]roles.Role{}, nil
}

func TestCatalogSeedRunsCatalogThenRoles(t *testing.T) {
	seeder, roleSvc := &fakeSeeder{}, &fakeRoles{}
	job := NewCatalogSeedJob(seeder, roleSvc, nil, nil)

	require.NoError(t, job.Handle(context.Background(), NewCatalogSeedTask()))
	assert.Equal(t, 1, seeder.calls)
	assert.Equal(t, 1, roleSvc.calls)
}

func TestCatalogSeedStopsOnCatalogFailure(t *testing.T) {
	seeder, roleSvc := &fakeSeeder{err: errors.New("db down")}, &fakeRoles{}
	job := NewCatalogSeedJob(seeder, roleSvc, nil, nil)

	assert.Error(t, job.Handle(context.Background(), NewCatalogSeedTask()))
	assert.Zero(t, roleSvc.calls)
}

type fakeCleaner struct{ retention time.Duration }

func (f *fakeCleaner) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	f.retention = olderThan
	return 3, nil
}

func TestIdempotencyCleanupRetention(t *testing.T) {
	cleaner := &fakeCleaner{}
	job := NewIdempotencyCleanupJob(cleaner, nil, nil)

	task, err := NewIdempotencyCleanupTask(DefaultIdempotencyRetention)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 30*24*time.Hour, cleaner.retention)

	task, err = NewIdempotencyCleanupTask(48 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 48*time.Hour, cleaner.retention)
}
