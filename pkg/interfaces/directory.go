package interfaces

import (
	"context"

	"slidecast/pkg/types"
)

// LessonDirectory resolves lesson records. Lesson content is opaque to the
// engine; the directory only answers existence, owning organization and
// slide count.
type LessonDirectory interface {
	GetLesson(ctx context.Context, lessonID string) (*types.Lesson, error)
}

// Authorizer answers whether a user may present lessons for an organization,
// i.e. holds the teacher or admin capability there.
type Authorizer interface {
	CanPresent(ctx context.Context, userID, orgID string) (bool, error)
}
