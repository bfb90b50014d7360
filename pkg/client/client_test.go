package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slidecast/internal/api"
	"slidecast/internal/auth"
	"slidecast/internal/config"
	"slidecast/internal/directory"
	"slidecast/internal/dispatcher"
	"slidecast/internal/session"
	ws "slidecast/internal/websocket"
	"slidecast/pkg/types"
)

const testSecret = "client-test-secret"

type memPersistence struct {
	mu       sync.Mutex
	sessions map[string]*types.Session
	notes    map[string]*types.Note
}

func newMemPersistence() *memPersistence {
	return &memPersistence{
		sessions: make(map[string]*types.Session),
		notes:    make(map[string]*types.Note),
	}
}

func (m *memPersistence) SaveSession(ctx context.Context, s *types.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memPersistence) UpdateSession(ctx context.Context, s *types.Session) error {
	return m.SaveSession(ctx, s)
}

func (m *memPersistence) GetSession(ctx context.Context, id string) (*types.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, fmt.Errorf("session %s: %w", id, types.ErrNotFound)
}

func (m *memPersistence) ListLiveSessions(ctx context.Context) ([]*types.Session, error) {
	return nil, nil
}

func (m *memPersistence) SaveNote(ctx context.Context, n *types.Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *n
	m.notes[fmt.Sprintf("%s#%d", n.ParticipantID, n.SlideIndex)] = &cp
	return nil
}

func (m *memPersistence) HealthCheck(ctx context.Context) error { return nil }
func (m *memPersistence) Close() error                          { return nil }

// newTestStack runs the whole server (REST + realtime) on one listener, the
// same way main wires it.
func newTestStack(t *testing.T) *httptest.Server {
	t.Helper()

	dir := directory.NewMemory()
	dir.AddLesson(&types.Lesson{ID: "L1", Title: "Orbits", OrgID: "org1", SlideCount: 12})
	dir.AddMember("org1", "teacher-1", directory.OrgRoleTeacher)

	p := newMemPersistence()
	store := session.NewStore(p, dir, dir, 2*time.Hour)
	rooms := ws.NewRooms()
	disp := dispatcher.New(store, rooms, p)
	store.SetPresence(rooms.Count)

	tokens := auth.NewTokenParser(testSecret)
	wsHandler := ws.NewHandler(tokens, disp, config.WebSocketConfig{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 2 * time.Second,
		BufferSize:   32,
	})
	restServer := api.NewServer(store, disp, p, rooms, tokens)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)
	mux.Handle("/", restServer)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newController(t *testing.T, server *httptest.Server, userID string) *Controller {
	t.Helper()
	token, err := auth.Sign(testSecret, userID)
	require.NoError(t, err)
	ctrl := New(server.URL, token)
	t.Cleanup(func() { _ = ctrl.Close() })
	return ctrl
}

func connectAndJoin(t *testing.T, ctrl *Controller, code, name string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ctrl.Connect(ctx))
	require.NoError(t, ctrl.JoinSessionByCode(ctx, code, name))
}

func waitForSlide(t *testing.T, ctrl *Controller, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return ctrl.CurrentSlideIndex() == want
	}, 2*time.Second, 10*time.Millisecond, "slide index never reached %d", want)
}

func TestTeacherLifecycle(t *testing.T) {
	server := newTestStack(t)
	teacher := newController(t, server, "teacher-1")

	sess, err := teacher.CreateSession(context.Background(), "L1", "period-3")
	require.NoError(t, err)
	assert.Len(t, sess.JoinCode, 6)
	assert.Equal(t, types.StatusActive, sess.Status)
	assert.Equal(t, "teacher-1", sess.TeacherID)

	connectAndJoin(t, teacher, sess.JoinCode, "Ms. Okafor")
	assert.Equal(t, types.RoleTeacher, teacher.Role())
	assert.Equal(t, sess.ID, teacher.SessionID())
	assert.Equal(t, 0, teacher.CurrentSlideIndex())

	require.NoError(t, teacher.NextSlide())
	waitForSlide(t, teacher, 1)
	require.NoError(t, teacher.AdvanceSlide(5))
	waitForSlide(t, teacher, 5)
	require.NoError(t, teacher.PreviousSlide())
	waitForSlide(t, teacher, 4)
}

func TestStudentFollowsTeacher(t *testing.T) {
	server := newTestStack(t)
	teacher := newController(t, server, "teacher-1")
	student := newController(t, server, "student-a")

	sess, err := teacher.CreateSession(context.Background(), "L1", "")
	require.NoError(t, err)
	connectAndJoin(t, teacher, sess.JoinCode, "Teacher")
	connectAndJoin(t, student, sess.JoinCode, "Ada")

	assert.Equal(t, types.RoleStudent, student.Role())

	require.NoError(t, teacher.AdvanceSlide(3))
	waitForSlide(t, student, 3)
	waitForSlide(t, teacher, 3)

	// A second student joining now starts at the current index.
	late := newController(t, server, "student-b")
	connectAndJoin(t, late, sess.JoinCode, "Ben")
	assert.Equal(t, 3, late.CurrentSlideIndex())
}

func TestStudentCannotDriveSlides(t *testing.T) {
	server := newTestStack(t)
	teacher := newController(t, server, "teacher-1")
	student := newController(t, server, "student-a")

	sess, err := teacher.CreateSession(context.Background(), "L1", "")
	require.NoError(t, err)
	connectAndJoin(t, student, sess.JoinCode, "Ada")

	assert.ErrorIs(t, student.AdvanceSlide(2), ErrNotPresenting)
	assert.ErrorIs(t, student.EndSession(), ErrNotPresenting)
	assert.ErrorIs(t, student.PauseSession(), ErrNotPresenting)
	assert.Equal(t, 0, student.CurrentSlideIndex())
}

func TestCommandGating(t *testing.T) {
	server := newTestStack(t)
	ctrl := newController(t, server, "teacher-1")

	// Nothing is joined yet.
	assert.ErrorIs(t, ctrl.AdvanceSlide(1), ErrNotJoined)
	assert.ErrorIs(t, ctrl.SaveNote(0, "x"), ErrNotJoined)

	sess, err := ctrl.CreateSession(context.Background(), "L1", "")
	require.NoError(t, err)
	connectAndJoin(t, ctrl, sess.JoinCode, "Teacher")

	assert.ErrorIs(t, ctrl.PreviousSlide(), ErrSlideOutOfRange)
	assert.ErrorIs(t, ctrl.AdvanceSlide(-1), ErrSlideOutOfRange)
	assert.ErrorIs(t, ctrl.SaveNote(-1, "x"), ErrSlideOutOfRange)
}

func TestCreateSessionErrors(t *testing.T) {
	server := newTestStack(t)

	t.Run("unknown lesson", func(t *testing.T) {
		ctrl := newController(t, server, "teacher-1")
		_, err := ctrl.CreateSession(context.Background(), "missing", "")
		assert.ErrorIs(t, err, types.ErrNotFound)
	})

	t.Run("not a teacher", func(t *testing.T) {
		ctrl := newController(t, server, "student-a")
		_, err := ctrl.CreateSession(context.Background(), "L1", "")
		assert.ErrorIs(t, err, types.ErrForbidden)
	})
}

func TestJoinRejectedForUnknownCode(t *testing.T) {
	server := newTestStack(t)
	ctrl := newController(t, server, "student-a")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ctrl.Connect(ctx))

	err := ctrl.JoinSessionByCode(ctx, "ZZZZ99", "Ada")
	assert.ErrorIs(t, err, ErrJoinRejected)
	assert.Empty(t, ctrl.SessionID())
}

func TestNotesAreLocalFirst(t *testing.T) {
	server := newTestStack(t)
	teacher := newController(t, server, "teacher-1")
	student := newController(t, server, "student-a")

	sess, err := teacher.CreateSession(context.Background(), "L1", "")
	require.NoError(t, err)
	connectAndJoin(t, student, sess.JoinCode, "Ada")

	require.NoError(t, student.SaveNote(2, "gravity wells"))
	content, ok := student.GetNote(2)
	require.True(t, ok)
	assert.Equal(t, "gravity wells", content)

	// The server acknowledges to this client only.
	require.Eventually(t, func() bool {
		select {
		case ev := <-student.Events():
			return ev.Type == types.EventNoteSaved && *ev.SlideIndex == 2
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	// Rewrites win locally the same way they do on the server.
	require.NoError(t, student.SaveNote(2, "escape velocity"))
	content, _ = student.GetNote(2)
	assert.Equal(t, "escape velocity", content)

	_, ok = student.GetNote(7)
	assert.False(t, ok)
}

func TestEndSessionPropagates(t *testing.T) {
	server := newTestStack(t)
	teacher := newController(t, server, "teacher-1")
	student := newController(t, server, "student-a")

	sess, err := teacher.CreateSession(context.Background(), "L1", "")
	require.NoError(t, err)
	connectAndJoin(t, teacher, sess.JoinCode, "Teacher")
	connectAndJoin(t, student, sess.JoinCode, "Ada")

	require.NoError(t, teacher.EndSession())

	require.Eventually(t, func() bool {
		return teacher.Status() == types.StatusEnded && student.Status() == types.StatusEnded
	}, 2*time.Second, 10*time.Millisecond)

	// Local cleanup is explicit and purely client-side.
	student.LeaveSession()
	assert.Empty(t, student.SessionID())
	assert.Equal(t, 0, student.CurrentSlideIndex())
}

func TestPauseResumeReconciles(t *testing.T) {
	server := newTestStack(t)
	teacher := newController(t, server, "teacher-1")
	student := newController(t, server, "student-a")

	sess, err := teacher.CreateSession(context.Background(), "L1", "")
	require.NoError(t, err)
	connectAndJoin(t, teacher, sess.JoinCode, "Teacher")
	connectAndJoin(t, student, sess.JoinCode, "Ada")

	require.NoError(t, teacher.PauseSession())
	require.Eventually(t, func() bool {
		return student.Status() == types.StatusPaused
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, teacher.ResumeSession())
	require.Eventually(t, func() bool {
		return student.Status() == types.StatusActive
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServerRejectionSurfacesInErr(t *testing.T) {
	server := newTestStack(t)
	teacher := newController(t, server, "teacher-1")

	sess, err := teacher.CreateSession(context.Background(), "L1", "")
	require.NoError(t, err)
	connectAndJoin(t, teacher, sess.JoinCode, "Teacher")
	require.NoError(t, teacher.Err())

	// The lesson has 12 slides; the server rejects index 50 with an error
	// event, which must land in the error slot even if Events is never read.
	require.NoError(t, teacher.AdvanceSlide(50))
	require.Eventually(t, func() bool {
		return teacher.Err() != nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, teacher.Err().Error(), "server rejected command")
	assert.Equal(t, 0, teacher.CurrentSlideIndex())
}

func TestConnectLifecycleErrors(t *testing.T) {
	server := newTestStack(t)
	ctrl := newController(t, server, "student-a")

	require.ErrorIs(t, ctrl.JoinSessionByCode(context.Background(), "ABCDEF", "Ada"), ErrNotConnected)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ctrl.Connect(ctx))
	require.ErrorIs(t, ctrl.Connect(ctx), ErrAlreadyConnected)

	require.NoError(t, ctrl.Close())
	require.NoError(t, ctrl.Close())

	require.Eventually(t, func() bool { return !ctrl.Connected() }, 2*time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, ctrl.send(types.Command{Type: types.CmdAdvanceSlide}), ErrNotConnected)
}
