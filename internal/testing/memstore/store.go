// Package memstore keeps the IAM tables in memory behind the same repository
// ports the Postgres stores implement. Constraint failures surface as the
// *pgconn.PgError values Postgres would return, so services map them exactly
// as they do in production.
package memstore

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-iam/internal/associations"
	"github.com/odyssey-erp/odyssey-iam/internal/catalog"
	"github.com/odyssey-erp/odyssey-iam/internal/roles"
	"github.com/odyssey-erp/odyssey-iam/internal/tenants"
)

type tables struct {
	tenants     map[int64]tenants.Tenant
	actions     map[int64]catalog.Named
	resources   map[int64]catalog.Named
	permissions map[int64]catalog.Permission
	roles       map[int64]roles.Role
	tenantRoles map[int64]associations.TenantRole
	trps        map[int64]associations.TenantRolePermission
	trus        map[int64]associations.TenantRoleUser
	actives     map[int64]associations.ActiveTenant
	seq         map[string]int64
}

func newTables() tables {
	return tables{
		tenants:     map[int64]tenants.Tenant{},
		actions:     map[int64]catalog.Named{},
		resources:   map[int64]catalog.Named{},
		permissions: map[int64]catalog.Permission{},
		roles:       map[int64]roles.Role{},
		tenantRoles: map[int64]associations.TenantRole{},
		trps:        map[int64]associations.TenantRolePermission{},
		trus:        map[int64]associations.TenantRoleUser{},
		actives:     map[int64]associations.ActiveTenant{},
		seq:         map[string]int64{},
	}
}

// Stored values never share pointers with callers, so a shallow map copy is a
// full snapshot.
func (t tables) clone() tables {
	return tables{
		tenants:     maps.Clone(t.tenants),
		actions:     maps.Clone(t.actions),
		resources:   maps.Clone(t.resources),
		permissions: maps.Clone(t.permissions),
		roles:       maps.Clone(t.roles),
		tenantRoles: maps.Clone(t.tenantRoles),
		trps:        maps.Clone(t.trps),
		trus:        maps.Clone(t.trus),
		actives:     maps.Clone(t.actives),
		seq:         maps.Clone(t.seq),
	}
}

// Store holds every table. The zero value is not usable; call New.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data tables
	now  func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{data: newTables(), now: func() time.Time { return time.Now().UTC() }}
}

// SetClock replaces the timestamp source.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Tenants returns the tenant repository view.
func (s *Store) Tenants() tenants.Repository { return &tenantRepo{s: s} }

// Catalog returns the action, resource and permission repository view.
func (s *Store) Catalog() catalog.Repository { return &catalogRepo{s: s} }

// Roles returns the role repository view.
func (s *Store) Roles() roles.RepositoryPort { return &roleRepo{s: s} }

// Associations returns the association repository view.
func (s *Store) Associations() associations.Repository { return &associationRepo{s: s} }

func (s *Store) next(table string) int64 {
	s.data.seq[table]++
	return s.data.seq[table]
}

// tx serializes transactions and restores the snapshot taken on entry when fn
// fails. Nested calls run fn directly.
func (s *Store) tx(ctx context.Context, nested bool, fn func() error) error {
	if nested {
		return fn()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	if err := fn(); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) read(fn func(d *tables)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(&s.data)
}

func (s *Store) write(fn func(d *tables) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&s.data)
}

func cloneID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
