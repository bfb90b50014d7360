package directory

import (
	"context"
	"fmt"
	"sync"

	"slidecast/pkg/types"
)

// Memory is an in-memory directory used by tests and by deployments that
// resolve lessons from another service entirely.
type Memory struct {
	mu        sync.RWMutex
	lessons   map[string]*types.Lesson
	orgRoles  map[string]string // orgID/userID -> role
}

func NewMemory() *Memory {
	return &Memory{
		lessons:  make(map[string]*types.Lesson),
		orgRoles: make(map[string]string),
	}
}

func (d *Memory) AddLesson(lesson *types.Lesson) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lessons[lesson.ID] = lesson
}

func (d *Memory) AddMember(orgID, userID, role string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.orgRoles[orgID+"/"+userID] = role
}

func (d *Memory) GetLesson(ctx context.Context, lessonID string) (*types.Lesson, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	lesson, ok := d.lessons[lessonID]
	if !ok {
		return nil, fmt.Errorf("lesson %s: %w", lessonID, types.ErrNotFound)
	}
	copy := *lesson
	return &copy, nil
}

func (d *Memory) CanPresent(ctx context.Context, userID, orgID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	role := d.orgRoles[orgID+"/"+userID]
	return role == OrgRoleTeacher || role == OrgRoleAdmin, nil
}
