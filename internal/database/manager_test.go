package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slidecast/internal/config"
	"slidecast/pkg/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := &config.DatabaseConfig{
		Path:           filepath.Join(t.TempDir(), "test.db"),
		MaxConnections: 4,
		Timeout:        10 * time.Second,
	}
	m, err := NewManager(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestSessionRoundTrip(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	session := &types.Session{
		ID:        "s1",
		JoinCode:  "7K9M2P",
		LessonID:  "L1",
		TeacherID: "t1",
		Status:    types.StatusActive,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, m.SaveSession(ctx, session))

	got, err := m.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "7K9M2P", got.JoinCode)
	assert.Equal(t, types.StatusActive, got.Status)
	assert.Empty(t, got.GroupID)
	assert.Nil(t, got.EndedAt)

	now := time.Now().UTC().Truncate(time.Second)
	session.Status = types.StatusEnded
	session.CurrentSlideIndex = 4
	session.EndedAt = &now
	require.NoError(t, m.UpdateSession(ctx, session))

	got, err = m.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusEnded, got.Status)
	assert.Equal(t, 4, got.CurrentSlideIndex)
	require.NotNil(t, got.EndedAt)
}

func TestGetSessionNotFound(t *testing.T) {
	m := newTestManager(t)

	_, err := m.GetSession(context.Background(), "missing")
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestLiveCodeUniqueness(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	base := types.Session{
		JoinCode: "ABCDEF", LessonID: "L1", TeacherID: "t1",
		Status: types.StatusActive, CreatedAt: time.Now(),
	}

	first := base
	first.ID = "s1"
	require.NoError(t, m.SaveSession(ctx, &first))

	// A second live session with the same code violates the partial index.
	second := base
	second.ID = "s2"
	assert.Error(t, m.SaveSession(ctx, &second))

	// Once the first session ends the code is free again.
	now := time.Now()
	first.Status = types.StatusEnded
	first.EndedAt = &now
	require.NoError(t, m.UpdateSession(ctx, &first))
	require.NoError(t, m.SaveSession(ctx, &second))
}

func TestListLiveSessions(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	now := time.Now()

	for _, s := range []*types.Session{
		{ID: "a", JoinCode: "AAA222", LessonID: "L1", TeacherID: "t1", Status: types.StatusActive, CreatedAt: now},
		{ID: "b", JoinCode: "BBB333", LessonID: "L1", TeacherID: "t1", Status: types.StatusPaused, CreatedAt: now},
		{ID: "c", JoinCode: "CCC444", LessonID: "L1", TeacherID: "t1", Status: types.StatusEnded, CreatedAt: now, EndedAt: &now},
	} {
		require.NoError(t, m.SaveSession(ctx, s))
	}

	live, err := m.ListLiveSessions(ctx)
	require.NoError(t, err)
	require.Len(t, live, 2)
	for _, s := range live {
		assert.NotEqual(t, types.StatusEnded, s.Status)
	}
}

func TestSaveNoteLastWriteWins(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	first := &types.Note{SessionID: "s1", ParticipantID: "p1", SlideIndex: 2, Content: "draft A", UpdatedAt: time.Now()}
	require.NoError(t, m.SaveNote(ctx, first))

	second := *first
	second.Content = "draft B"
	second.UpdatedAt = time.Now()
	require.NoError(t, m.SaveNote(ctx, &second))

	got, err := m.GetNote(ctx, "p1", 2)
	require.NoError(t, err)
	assert.Equal(t, "draft B", got.Content)
}

func TestLessonAndOrgLookups(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.SeedLesson(ctx, &types.Lesson{ID: "L1", Title: "Parables", OrgID: "org1", SlideCount: 12}))
	require.NoError(t, m.SeedOrgMember(ctx, "org1", "t1", "teacher"))

	lesson, err := m.GetLesson(ctx, "L1")
	require.NoError(t, err)
	assert.Equal(t, 12, lesson.SlideCount)

	_, err = m.GetLesson(ctx, "nope")
	assert.True(t, errors.Is(err, types.ErrNotFound))

	role, err := m.GetOrgRole(ctx, "t1", "org1")
	require.NoError(t, err)
	assert.Equal(t, "teacher", role)

	role, err = m.GetOrgRole(ctx, "stranger", "org1")
	require.NoError(t, err)
	assert.Empty(t, role)
}
