package roles

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/db"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (Role, error)
	GetByName(ctx context.Context, name string) (Role, error)
	Exists(ctx context.Context, id int64) (bool, error)
	List(ctx context.Context, filters ListFilters) ([]Role, int, error)
	Create(ctx context.Context, role *Role) error
	Update(ctx context.Context, role *Role) (bool, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

// Service handles role business logic.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// List returns one page of roles.
func (s *Service) List(ctx context.Context, filters ListFilters) (shared.Page[Role], error) {
	filters.PageRequest = filters.Normalize()
	rows, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return shared.Page[Role]{}, err
	}
	return shared.NewPage(rows, filters.PageRequest, total), nil
}

// Get returns the role or a TR12 not found error.
func (s *Service) Get(ctx context.Context, id int64) (Role, error) {
	role, err := s.repo.Get(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return Role{}, shared.CodeRoleNotFound.New(id)
	}
	return role, err
}

// GetByName returns the role or ok=false.
func (s *Service) GetByName(ctx context.Context, name string) (Role, bool, error) {
	role, err := s.repo.GetByName(ctx, shared.NormalizeName(name))
	if errors.Is(err, shared.ErrNotFound) {
		return Role{}, false, nil
	}
	if err != nil {
		return Role{}, false, err
	}
	return role, true, nil
}

// Exists reports whether id names a stored role.
func (s *Service) Exists(ctx context.Context, id int64) (bool, error) {
	return s.repo.Exists(ctx, id)
}

// Create stores a role with a unique name.
func (s *Service) Create(ctx context.Context, in Input) (Role, error) {
	role := Role{Name: shared.NormalizeName(in.Name), Description: strings.TrimSpace(in.Description)}
	if role.Name == "" {
		return Role{}, shared.CodeMandatoryParams.New("name")
	}
	if err := s.repo.Create(ctx, &role); err != nil {
		return Role{}, translate(err)
	}
	return role, nil
}

// Update renames or redescribes the role.
func (s *Service) Update(ctx context.Context, id int64, in Input) (Role, error) {
	role := Role{ID: id, Name: shared.NormalizeName(in.Name), Description: strings.TrimSpace(in.Description)}
	if role.Name == "" {
		return Role{}, shared.CodeMandatoryParams.New("name")
	}
	ok, err := s.repo.Update(ctx, &role)
	if err != nil {
		return Role{}, translate(err)
	}
	if !ok {
		return Role{}, shared.CodeRoleNotFound.New(id)
	}
	return role, nil
}

// Delete removes a role that no tenant is bound to.
func (s *Service) Delete(ctx context.Context, id int64) error {
	ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		if _, fk := db.ForeignKeyViolation(err); fk {
			return shared.CodeRecordReferenced.Wrap(err, "Role")
		}
		return err
	}
	if !ok {
		return shared.CodeRoleNotFound.New(id)
	}
	return nil
}

// EnsureSystemRoles creates the built-in roles when absent and returns them
// keyed by name.
func (s *Service) EnsureSystemRoles(ctx context.Context) (map[string]Role, error) {
	out := make(map[string]Role, 1)
	for _, name := range []string{shared.SystemAdministratorRole} {
		role, found, err := s.GetByName(ctx, name)
		if err != nil {
			return nil, err
		}
		if !found {
			role = Role{Name: name, Description: "Unrestricted access to every tenant"}
			if err := s.repo.Create(ctx, &role); err != nil {
				if c, dup := db.UniqueViolation(err); dup && c == ConstraintName {
					if role, err = s.repo.GetByName(ctx, name); err != nil {
						return nil, err
					}
				} else {
					return nil, err
				}
			} else {
				s.logger.Info("system role created", slog.String("role", name), slog.Int64("role_id", role.ID))
			}
		}
		out[name] = role
	}
	return out, nil
}

func translate(err error) error {
	if c, ok := db.UniqueViolation(err); ok && c == ConstraintName {
		return shared.CodeDuplicatedField.Wrap(err, "name")
	}
	return err
}
