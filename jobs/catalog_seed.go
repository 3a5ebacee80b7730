package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-iam/internal/catalog"
	jobmetrics "github.com/odyssey-erp/odyssey-iam/internal/jobs"
	"github.com/odyssey-erp/odyssey-iam/internal/roles"
)

// CatalogSeeder writes the system permission table.
type CatalogSeeder interface {
	Seed(ctx context.Context) (catalog.SeedReport, error)
}

// SystemRoleEnsurer creates the built-in roles.
type SystemRoleEnsurer interface {
	EnsureSystemRoles(ctx context.Context) (map[string]roles.Role, error)
}

// CatalogSeedJob seeds actions, resources, permissions and system roles.
type CatalogSeedJob struct {
	Catalog CatalogSeeder
	Roles   SystemRoleEnsurer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewCatalogSeedJob builds the seed handler.
func NewCatalogSeedJob(cat CatalogSeeder, roleSvc SystemRoleEnsurer, logger *slog.Logger, metrics *jobmetrics.Metrics) *CatalogSeedJob {
	return &CatalogSeedJob{Catalog: cat, Roles: roleSvc, Logger: logger, Metrics: metrics}
}

// Handle executes the seed.
func (j *CatalogSeedJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Catalog == nil || j.Roles == nil {
		return errors.New("catalog seed: handler not configured")
	}
	tracker := j.Metrics.Track(TaskCatalogSeed)
	report, err := j.Run(ctx)
	if err != nil {
		loggerOrDefault(j.Logger).Error("catalog seed failed", slog.Any("error", err))
		return tracker.End(err)
	}
	loggerOrDefault(j.Logger).Info("catalog seeded",
		slog.Int("actions", report.Actions),
		slog.Int("resources", report.Resources),
		slog.Int("permissions", report.Permissions),
	)
	return tracker.End(nil)
}

// Run seeds synchronously. The seed script calls it directly.
func (j *CatalogSeedJob) Run(ctx context.Context) (catalog.SeedReport, error) {
	report, err := j.Catalog.Seed(ctx)
	if err != nil {
		return report, err
	}
	if _, err := j.Roles.EnsureSystemRoles(ctx); err != nil {
		return report, err
	}
	return report, nil
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
