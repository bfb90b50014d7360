package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"slidecast/pkg/interfaces"
	"slidecast/pkg/joincode"
	"slidecast/pkg/types"
)

// How long an ENDED session stays resolvable (so late commands get a clean
// invalid-state error instead of not-found) before the reaper drops it.
const endedRetention = 10 * time.Minute

// How many times Create retries code generation on a collision before
// giving up. 31^6 codes make more than a couple retries vanishingly rare.
const codeAttempts = 5

// Store is the authoritative session record and state machine. Each session
// has its own lock, so commands against one session are serialized while
// distinct sessions proceed concurrently.
type Store struct {
	persistence interfaces.Persistence
	lessons     interfaces.LessonDirectory
	authz       interfaces.Authorizer

	mu      sync.RWMutex
	entries map[string]*entry
	byCode  map[string]string // joinCode -> sessionID, live sessions only

	idleTTL  time.Duration
	presence func(sessionID string) int
}

type entry struct {
	mu           sync.Mutex
	session      *types.Session
	slideCount   int // 0 means unknown; no upper bound enforced
	lastActivity time.Time
}

// NewStore creates a session store. idleTTL bounds how long a session with
// no commands and no connections survives before the reaper ends it.
func NewStore(persistence interfaces.Persistence, lessons interfaces.LessonDirectory, authz interfaces.Authorizer, idleTTL time.Duration) *Store {
	return &Store{
		persistence: persistence,
		lessons:     lessons,
		authz:       authz,
		entries:     make(map[string]*entry),
		byCode:      make(map[string]string),
		idleTTL:     idleTTL,
		presence:    func(string) int { return 0 },
	}
}

// SetPresence wires in the room registry's connection counter; the reaper
// only ends sessions nobody is attached to.
func (s *Store) SetPresence(count func(sessionID string) int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presence = count
}

// Load rebuilds the in-memory registry from persistence after a restart.
func (s *Store) Load(ctx context.Context) error {
	sessions, err := s.persistence.ListLiveSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load live sessions: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, session := range sessions {
		e := &entry{session: session, lastActivity: time.Now()}
		if lesson, err := s.lessons.GetLesson(ctx, session.LessonID); err == nil {
			e.slideCount = lesson.SlideCount
		} else {
			log.Printf("lesson lookup failed during load: session=%s lesson=%s err=%v",
				session.ID, session.LessonID, err)
		}
		s.entries[session.ID] = e
		s.byCode[session.JoinCode] = session.ID
	}

	log.Printf("loaded %d live sessions", len(sessions))
	return nil
}

// Create allocates a session for teacherID presenting lessonID: unique join
// code, status ACTIVE, slide 0. The lesson must resolve and the teacher must
// hold the presenting capability in the lesson's organization.
func (s *Store) Create(ctx context.Context, teacherID, lessonID, groupID string) (*types.Session, error) {
	if !types.IsValidUserID(teacherID) {
		return nil, ErrInvalidUserID
	}

	lesson, err := s.lessons.GetLesson(ctx, lessonID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, ErrLessonNotFound
		}
		return nil, fmt.Errorf("lesson lookup failed: %w", err)
	}

	ok, err := s.authz.CanPresent(ctx, teacherID, lesson.OrgID)
	if err != nil {
		return nil, fmt.Errorf("authorization check failed: %w", err)
	}
	if !ok {
		return nil, ErrNotAuthorized
	}

	session := &types.Session{
		ID:        uuid.New().String(),
		LessonID:  lessonID,
		GroupID:   groupID,
		TeacherID: teacherID,
		Status:    types.StatusActive,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	for i := 0; ; i++ {
		code := joincode.Generate()
		if _, taken := s.byCode[code]; !taken {
			session.JoinCode = code
			break
		}
		if i >= codeAttempts {
			s.mu.Unlock()
			return nil, fmt.Errorf("could not allocate a unique join code")
		}
	}
	s.entries[session.ID] = &entry{
		session:      session,
		slideCount:   lesson.SlideCount,
		lastActivity: time.Now(),
	}
	s.byCode[session.JoinCode] = session.ID
	s.mu.Unlock()

	if err := s.persistence.SaveSession(ctx, session); err != nil {
		s.mu.Lock()
		delete(s.entries, session.ID)
		delete(s.byCode, session.JoinCode)
		s.mu.Unlock()
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	log.Printf("session created: id=%s code=%s lesson=%s teacher=%s",
		session.ID, session.JoinCode, lessonID, teacherID)
	return snapshot(session), nil
}

// Get returns a snapshot of a session by ID.
func (s *Store) Get(sessionID string) (*types.Session, error) {
	e, err := s.entry(sessionID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot(e.session), nil
}

// GetByCode resolves a live session by join code. Possession of the code is
// the viewing capability; no authentication is required.
func (s *Store) GetByCode(code string) (*types.Session, error) {
	if !joincode.IsValidFormat(code) {
		return nil, ErrInvalidJoinCode
	}

	s.mu.RLock()
	sessionID, ok := s.byCode[code]
	e := s.entries[sessionID]
	s.mu.RUnlock()

	if !ok || e == nil {
		return nil, ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot(e.session), nil
}

// SlideCount reports the lesson's slide count for a session (0 = unknown).
func (s *Store) SlideCount(sessionID string) (int, error) {
	e, err := s.entry(sessionID)
	if err != nil {
		return 0, err
	}
	return e.slideCount, nil
}

// SetSlide moves the deck. Teacher only; rejected on an ended session or an
// index outside the lesson.
func (s *Store) SetSlide(sessionID string, index int, requesterID string) (*types.Session, error) {
	e, err := s.entry(sessionID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if requesterID != e.session.TeacherID {
		return nil, ErrNotTeacher
	}
	if e.session.Status == types.StatusEnded {
		return nil, ErrSessionEnded
	}
	if index < 0 || (e.slideCount > 0 && index >= e.slideCount) {
		return nil, ErrSlideOutOfRange
	}

	e.session.CurrentSlideIndex = index
	e.lastActivity = time.Now()

	if err := s.persistence.UpdateSession(context.Background(), e.session); err != nil {
		log.Printf("failed to persist slide change: session=%s err=%v", sessionID, err)
	}
	return snapshot(e.session), nil
}

// SetStatus applies the ACTIVE⇄PAUSED transition table. Teacher only.
// Ending goes through End, not here.
func (s *Store) SetStatus(sessionID, status, requesterID string) (*types.Session, error) {
	if !types.IsValidStatus(status) {
		return nil, fmt.Errorf("unknown status %q: %w", status, types.ErrValidation)
	}

	e, err := s.entry(sessionID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if requesterID != e.session.TeacherID {
		return nil, ErrNotTeacher
	}
	if e.session.Status == types.StatusEnded {
		return nil, ErrSessionEnded
	}
	if !types.CanTransition(e.session.Status, status) {
		return nil, ErrBadTransition
	}

	e.session.Status = status
	if status == types.StatusEnded {
		now := time.Now()
		e.session.EndedAt = &now
	}
	e.lastActivity = time.Now()

	if err := s.persistence.UpdateSession(context.Background(), e.session); err != nil {
		log.Printf("failed to persist status change: session=%s err=%v", sessionID, err)
	}
	if status == types.StatusEnded {
		s.releaseCode(e.session.JoinCode)
	}
	return snapshot(e.session), nil
}

// End terminates a session. Terminal: a second End fails with
// ErrSessionEnded rather than succeeding quietly, so callers notice
// double-teardown bugs.
func (s *Store) End(sessionID, requesterID string) (*types.Session, error) {
	e, err := s.entry(sessionID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if requesterID != e.session.TeacherID {
		return nil, ErrNotTeacher
	}
	if e.session.Status == types.StatusEnded {
		return nil, ErrSessionEnded
	}

	now := time.Now()
	e.session.Status = types.StatusEnded
	e.session.EndedAt = &now
	e.lastActivity = now

	if err := s.persistence.UpdateSession(context.Background(), e.session); err != nil {
		log.Printf("failed to persist session end: session=%s err=%v", sessionID, err)
	}
	s.releaseCode(e.session.JoinCode)

	log.Printf("session ended: id=%s code=%s", e.session.ID, e.session.JoinCode)
	return snapshot(e.session), nil
}

// Touch records activity for the idle reaper.
func (s *Store) Touch(sessionID string) {
	if e, err := s.entry(sessionID); err == nil {
		e.mu.Lock()
		e.lastActivity = time.Now()
		e.mu.Unlock()
	}
}

// StartReaper runs the idle sweep until ctx is cancelled. end is invoked for
// each idle session (the dispatcher's end path, so stragglers still get
// SESSION_ENDED); ENDED entries past retention are dropped from memory.
func (s *Store) StartReaper(ctx context.Context, interval time.Duration, end func(sessionID, teacherID string)) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.reap(end)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *Store) reap(end func(sessionID, teacherID string)) {
	type idle struct{ sessionID, teacherID string }
	var toEnd []idle
	var toDrop []string

	// Copy entry pointers first: entry locks are never taken while holding
	// the registry lock (End holds an entry lock when it frees a code).
	s.mu.RLock()
	presence := s.presence
	candidates := make(map[string]*entry, len(s.entries))
	for id, e := range s.entries {
		candidates[id] = e
	}
	s.mu.RUnlock()

	for id, e := range candidates {
		e.mu.Lock()
		switch {
		case e.session.Status == types.StatusEnded:
			if e.session.EndedAt != nil && time.Since(*e.session.EndedAt) > endedRetention {
				toDrop = append(toDrop, id)
			}
		case time.Since(e.lastActivity) > s.idleTTL && presence(id) == 0:
			toEnd = append(toEnd, idle{id, e.session.TeacherID})
		}
		e.mu.Unlock()
	}

	for _, v := range toEnd {
		log.Printf("reaping idle session: id=%s", v.sessionID)
		end(v.sessionID, v.teacherID)
	}

	if len(toDrop) > 0 {
		s.mu.Lock()
		for _, id := range toDrop {
			delete(s.entries, id)
		}
		s.mu.Unlock()
	}
}

func (s *Store) entry(sessionID string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e, nil
}

// releaseCode frees a join code for reuse. Callers hold the entry lock, not
// the registry lock.
func (s *Store) releaseCode(code string) {
	s.mu.Lock()
	delete(s.byCode, code)
	s.mu.Unlock()
}

func snapshot(session *types.Session) *types.Session {
	copy := *session
	if session.EndedAt != nil {
		t := *session.EndedAt
		copy.EndedAt = &t
	}
	return &copy
}
