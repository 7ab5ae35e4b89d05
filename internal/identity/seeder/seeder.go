package seeder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"warden/internal/identity/models"
)

// SubjectEnsurer creates subjects that do not exist yet.
type SubjectEnsurer interface {
	EnsureSubject(ctx context.Context, email, displayName string, role models.Role, now time.Time) (*models.Subject, error)
}

// Seeder populates the subject directory with demo principals for local runs.
type Seeder struct {
	subjects SubjectEnsurer
	logger   *slog.Logger
}

func New(subjects SubjectEnsurer, logger *slog.Logger) *Seeder {
	return &Seeder{subjects: subjects, logger: logger}
}

var demoSubjects = []struct {
	email       string
	displayName string
	role        models.Role
}{
	{"admin@warden.local", "Demo Admin", models.RoleAdmin},
	{"alice@warden.local", "Alice", models.RoleUser},
	{"bob@warden.local", "Bob", models.RoleUser},
}

// SeedAll is idempotent; existing subjects are left alone.
func (s *Seeder) SeedAll(ctx context.Context) ([]*models.Subject, error) {
	s.logger.Info("seeding demo subjects...")
	now := time.Now()
	out := make([]*models.Subject, 0, len(demoSubjects))
	for _, d := range demoSubjects {
		subject, err := s.subjects.EnsureSubject(ctx, d.email, d.displayName, d.role, now)
		if err != nil {
			return nil, fmt.Errorf("failed to seed %s: %w", d.email, err)
		}
		out = append(out, subject)
		s.logger.Debug("seeded subject", "subject_id", subject.ID, "role", subject.Role)
	}
	s.logger.Info("demo subjects seeded", "subjects", len(out))
	return out, nil
}
