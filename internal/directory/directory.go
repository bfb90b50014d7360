// Package directory provides the engine's view of its collaborators: lesson
// lookup and organization-scoped authorization. The engine never interprets
// lesson content; it only needs existence, owning org and slide count.
package directory

import (
	"context"

	"slidecast/internal/database"
	"slidecast/pkg/types"
)

// Roles that carry the presenting capability within an organization.
const (
	OrgRoleTeacher = "teacher"
	OrgRoleAdmin   = "admin"
)

// SQL resolves lessons and org membership from the shared database. It
// implements interfaces.LessonDirectory and interfaces.Authorizer.
type SQL struct {
	db *database.Manager
}

func NewSQL(db *database.Manager) *SQL {
	return &SQL{db: db}
}

func (d *SQL) GetLesson(ctx context.Context, lessonID string) (*types.Lesson, error) {
	return d.db.GetLesson(ctx, lessonID)
}

func (d *SQL) CanPresent(ctx context.Context, userID, orgID string) (bool, error) {
	role, err := d.db.GetOrgRole(ctx, userID, orgID)
	if err != nil {
		return false, err
	}
	return role == OrgRoleTeacher || role == OrgRoleAdmin, nil
}
