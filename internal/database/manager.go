package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"slidecast/internal/config"
	"slidecast/pkg/types"
)

// Manager implements interfaces.Persistence over sqlite. All writes funnel
// through a single goroutine; sqlite holds one write lock, and funneling
// avoids busy-timeout churn under concurrent sessions.
type Manager struct {
	db           *sql.DB
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database, bootstraps the schema and starts the
// writer goroutine.
func NewManager(cfg *config.DatabaseConfig) (*Manager, error) {
	db, err := sql.Open("sqlite3", cfg.Path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetConnMaxLifetime(cfg.Timeout)
	db.SetConnMaxIdleTime(cfg.Timeout / 3)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to bootstrap schema: %w", err)
	}

	m := &Manager{
		db:           db,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	m.wg.Add(1)
	go m.writeLoop()

	return m, nil
}

func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil {
				log.Printf("database write failed, retrying once: %v", err)
				err = op.operation(m.db)
				if err != nil {
					log.Printf("database write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			return
		}
	}
}

func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("database manager is closed")
	}
	m.mu.RUnlock()

	op := writeOperation{operation: operation, result: make(chan error, 1)}

	select {
	case m.writeChannel <- op:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-op.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SaveSession inserts a new session row.
func (m *Manager) SaveSession(ctx context.Context, session *types.Session) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO sessions (id, join_code, lesson_id, group_id, teacher_id, status, current_slide_index, created_at, ended_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			session.ID, session.JoinCode, session.LessonID, nullable(session.GroupID),
			session.TeacherID, session.Status, session.CurrentSlideIndex,
			session.CreatedAt, session.EndedAt)
		return err
	})
}

// UpdateSession rewrites the mutable columns of an existing session.
func (m *Manager) UpdateSession(ctx context.Context, session *types.Session) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`UPDATE sessions SET status = ?, current_slide_index = ?, ended_at = ? WHERE id = ?`,
			session.Status, session.CurrentSlideIndex, session.EndedAt, session.ID)
		return err
	})
}

// GetSession fetches one session by ID.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	row := m.db.QueryRowContext(ctx,
		`SELECT id, join_code, lesson_id, group_id, teacher_id, status, current_slide_index, created_at, ended_at
		 FROM sessions WHERE id = ?`, sessionID)
	return scanSession(row)
}

// ListLiveSessions returns all non-ENDED sessions, used to rebuild the
// store's memory on startup.
func (m *Manager) ListLiveSessions(ctx context.Context) ([]*types.Session, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, join_code, lesson_id, group_id, teacher_id, status, current_slide_index, created_at, ended_at
		 FROM sessions WHERE status != ?`, types.StatusEnded)
	if err != nil {
		return nil, fmt.Errorf("failed to list live sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*types.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// SaveNote upserts a note; the primary key (participant_id, slide_index)
// gives last-write-wins without history.
func (m *Manager) SaveNote(ctx context.Context, note *types.Note) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO notes (session_id, participant_id, slide_index, content, updated_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(participant_id, slide_index)
			 DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
			note.SessionID, note.ParticipantID, note.SlideIndex, note.Content, note.UpdatedAt)
		return err
	})
}

// GetNote reads one note back; used by tests and tooling, not the hot path.
func (m *Manager) GetNote(ctx context.Context, participantID string, slideIndex int) (*types.Note, error) {
	row := m.db.QueryRowContext(ctx,
		`SELECT session_id, participant_id, slide_index, content, updated_at
		 FROM notes WHERE participant_id = ? AND slide_index = ?`, participantID, slideIndex)

	note := &types.Note{}
	err := row.Scan(&note.SessionID, &note.ParticipantID, &note.SlideIndex, &note.Content, &note.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("note for participant %s slide %d: %w", participantID, slideIndex, types.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return note, nil
}

// GetLesson resolves a lesson record for the directory.
func (m *Manager) GetLesson(ctx context.Context, lessonID string) (*types.Lesson, error) {
	row := m.db.QueryRowContext(ctx,
		`SELECT id, title, org_id, slide_count FROM lessons WHERE id = ?`, lessonID)

	lesson := &types.Lesson{}
	err := row.Scan(&lesson.ID, &lesson.Title, &lesson.OrgID, &lesson.SlideCount)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("lesson %s: %w", lessonID, types.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return lesson, nil
}

// GetOrgRole returns a user's role within an organization, or empty string
// when the user is not a member.
func (m *Manager) GetOrgRole(ctx context.Context, userID, orgID string) (string, error) {
	row := m.db.QueryRowContext(ctx,
		`SELECT role FROM org_members WHERE user_id = ? AND org_id = ?`, userID, orgID)

	var role string
	err := row.Scan(&role)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return role, nil
}

// SeedLesson and SeedOrgMember populate collaborator tables; lesson CRUD
// proper lives outside this engine.
func (m *Manager) SeedLesson(ctx context.Context, lesson *types.Lesson) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT OR REPLACE INTO lessons (id, title, org_id, slide_count) VALUES (?, ?, ?, ?)`,
			lesson.ID, lesson.Title, lesson.OrgID, lesson.SlideCount)
		return err
	})
}

func (m *Manager) SeedOrgMember(ctx context.Context, orgID, userID, role string) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT OR REPLACE INTO org_members (org_id, user_id, role) VALUES (?, ?, ?)`,
			orgID, userID, role)
		return err
	})
}

// HealthCheck pings the database.
func (m *Manager) HealthCheck(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

// Close drains the writer and closes the connection pool.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()
	return m.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*types.Session, error) {
	session := &types.Session{}
	var groupID sql.NullString
	var endedAt sql.NullTime

	err := row.Scan(&session.ID, &session.JoinCode, &session.LessonID, &groupID,
		&session.TeacherID, &session.Status, &session.CurrentSlideIndex,
		&session.CreatedAt, &endedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session: %w", types.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if groupID.Valid {
		session.GroupID = groupID.String
	}
	if endedAt.Valid {
		t := endedAt.Time
		session.EndedAt = &t
	}
	return session, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
