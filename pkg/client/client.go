// Package client is a session controller for presentation clients. It owns
// one realtime connection, mirrors the authoritative session state the server
// broadcasts, and exposes the command surface a teacher or student UI needs.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"slidecast/pkg/types"
)

const (
	eventBuffer    = 64
	requestTimeout = 10 * time.Second
)

// Controller drives one client's view of a session. All state it reports is
// reconciled from server events; the last authoritative event always wins,
// and the controller never retries on its own.
type Controller struct {
	serverURL string
	token     string
	httpc     *http.Client

	wmu  sync.Mutex
	conn *websocket.Conn

	mu            sync.RWMutex
	connected     bool
	events        chan types.Event
	done          chan struct{}
	pendingJoin   chan types.Event
	lastErr       error
	sessionID     string
	participantID string
	role          string
	slideIndex    int
	status        string
	notes         map[int]string
}

// New builds a controller for the server at serverURL. The token is the
// caller's signed identity and is presented on both transports.
func New(serverURL, token string) *Controller {
	return &Controller{
		serverURL: serverURL,
		token:     token,
		httpc:     &http.Client{Timeout: requestTimeout},
		notes:     make(map[int]string),
	}
}

// CreateSession starts a new session over REST. The caller becomes the
// session's teacher; joining still happens over the realtime channel.
func (c *Controller) CreateSession(ctx context.Context, lessonID, groupID string) (*types.Session, error) {
	body, err := json.Marshal(map[string]string{"lesson_id": lessonID, "group_id": groupID})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+"/api/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, rejection(resp)
	}

	var payload struct {
		Session *types.Session `json:"session"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return payload.Session, nil
}

// Connect dials the realtime endpoint and starts the event reader. It does
// not join a session; call JoinSessionByCode afterwards.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.mu.Unlock()

	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws"
	q := u.Query()
	q.Set("token", c.token)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	done := make(chan struct{})
	c.wmu.Lock()
	c.conn = conn
	c.wmu.Unlock()

	c.mu.Lock()
	c.connected = true
	c.events = make(chan types.Event, eventBuffer)
	c.done = done
	c.mu.Unlock()

	go c.readLoop(conn, done)
	return nil
}

// JoinSessionByCode joins the session the code resolves to and blocks until
// the server confirms or rejects the join.
func (c *Controller) JoinSessionByCode(ctx context.Context, code, displayName string) error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	pending := make(chan types.Event, 1)
	c.pendingJoin = pending
	done := c.done
	c.mu.Unlock()

	if err := c.send(types.Command{Type: types.CmdJoinSession, Code: code, DisplayName: displayName}); err != nil {
		return err
	}

	select {
	case ev := <-pending:
		if ev.Type == types.EventError {
			return fmt.Errorf("%w: %s", ErrJoinRejected, ev.Message)
		}
		return nil
	case <-done:
		return ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AdvanceSlide asks the server to move the session to index. Local state is
// not touched; the SLIDE_CHANGED broadcast is the only source of truth.
func (c *Controller) AdvanceSlide(index int) error {
	sessionID, err := c.presenting()
	if err != nil {
		return err
	}
	if index < 0 {
		return ErrSlideOutOfRange
	}
	return c.send(types.Command{Type: types.CmdAdvanceSlide, SessionID: sessionID, SlideIndex: index})
}

// NextSlide advances one slide past the current authoritative index.
func (c *Controller) NextSlide() error {
	return c.AdvanceSlide(c.CurrentSlideIndex() + 1)
}

// PreviousSlide moves one slide back. The zero bound is checked here only to
// spare a round trip; the server enforces it regardless.
func (c *Controller) PreviousSlide() error {
	current := c.CurrentSlideIndex()
	if current == 0 {
		return ErrSlideOutOfRange
	}
	return c.AdvanceSlide(current - 1)
}

// PauseSession freezes the session for every participant.
func (c *Controller) PauseSession() error {
	sessionID, err := c.presenting()
	if err != nil {
		return err
	}
	return c.send(types.Command{Type: types.CmdPauseSession, SessionID: sessionID})
}

// ResumeSession resumes a paused session.
func (c *Controller) ResumeSession() error {
	sessionID, err := c.presenting()
	if err != nil {
		return err
	}
	return c.send(types.Command{Type: types.CmdResumeSession, SessionID: sessionID})
}

// EndSession ends the session permanently.
func (c *Controller) EndSession() error {
	sessionID, err := c.presenting()
	if err != nil {
		return err
	}
	return c.send(types.Command{Type: types.CmdEndSession, SessionID: sessionID})
}

// SaveNote caches the note locally first, then sends it. The cache write
// happens even when the send fails, so the note is never lost on the client.
func (c *Controller) SaveNote(slideIndex int, content string) error {
	c.mu.Lock()
	if c.sessionID == "" {
		c.mu.Unlock()
		return ErrNotJoined
	}
	if slideIndex < 0 {
		c.mu.Unlock()
		return ErrSlideOutOfRange
	}
	sessionID := c.sessionID
	c.notes[slideIndex] = content
	c.mu.Unlock()

	return c.send(types.Command{
		Type:       types.CmdSaveNote,
		SessionID:  sessionID,
		SlideIndex: slideIndex,
		Content:    content,
	})
}

// GetNote returns this client's locally cached note for a slide.
func (c *Controller) GetNote(slideIndex int) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	content, ok := c.notes[slideIndex]
	return content, ok
}

// LeaveSession discards all local session state. It sends nothing: closing
// or re-joining on the connection is what the server observes.
func (c *Controller) LeaveSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = ""
	c.participantID = ""
	c.role = ""
	c.slideIndex = 0
	c.status = ""
	c.notes = make(map[int]string)
}

// Close shuts the realtime connection down. Safe to call more than once.
func (c *Controller) Close() error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Events returns the stream of server events, in arrival order. Events that
// arrive with no connection established yet are impossible; events that
// arrive faster than the consumer reads are dropped and recorded in Err.
func (c *Controller) Events() <-chan types.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.events
}

// Err returns the most recent asynchronous error, if any.
func (c *Controller) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

func (c *Controller) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

func (c *Controller) ParticipantID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.participantID
}

func (c *Controller) Role() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role
}

func (c *Controller) CurrentSlideIndex() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.slideIndex
}

func (c *Controller) Status() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *Controller) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *Controller) presenting() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.sessionID == "" {
		return "", ErrNotJoined
	}
	if c.role != types.RoleTeacher {
		return "", ErrNotPresenting
	}
	return c.sessionID, nil
}

func (c *Controller) send(cmd types.Command) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	if err := c.conn.WriteJSON(cmd); err != nil {
		return fmt.Errorf("failed to send %s: %w", cmd.Type, err)
	}
	return nil
}

func (c *Controller) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer func() {
		c.mu.Lock()
		c.connected = false
		close(done)
		c.mu.Unlock()
	}()

	for {
		var ev types.Event
		if err := conn.ReadJSON(&ev); err != nil {
			c.mu.Lock()
			if c.connected {
				c.lastErr = fmt.Errorf("connection lost: %w", err)
			}
			c.mu.Unlock()
			return
		}
		c.reconcile(ev)
	}
}

// reconcile applies one server event to local state and routes it. A join in
// flight consumes its confirmation (or rejection) instead of the event stream.
func (c *Controller) reconcile(ev types.Event) {
	c.mu.Lock()

	switch ev.Type {
	case types.EventSessionJoined:
		c.sessionID = ev.SessionID
		c.participantID = ev.ParticipantID
		c.role = ev.Role
		c.status = types.StatusActive
		if ev.SlideIndex != nil {
			c.slideIndex = *ev.SlideIndex
		}
	case types.EventSlideChanged:
		if ev.SlideIndex != nil {
			c.slideIndex = *ev.SlideIndex
		}
	case types.EventSessionPaused:
		c.status = types.StatusPaused
	case types.EventSessionResumed:
		c.status = types.StatusActive
	case types.EventSessionEnded:
		c.status = types.StatusEnded
	case types.EventError:
		// The server rejected a command; surface it in the error slot so
		// callers that never drain Events still see the failure.
		c.lastErr = fmt.Errorf("server rejected command: %s", ev.Message)
	}

	if c.pendingJoin != nil && (ev.Type == types.EventSessionJoined || ev.Type == types.EventError) {
		pending := c.pendingJoin
		c.pendingJoin = nil
		c.mu.Unlock()
		pending <- ev
		return
	}

	events := c.events
	c.mu.Unlock()

	select {
	case events <- ev:
	default:
		c.mu.Lock()
		c.lastErr = fmt.Errorf("event buffer full, dropped %s: %w", ev.Type, types.ErrTransport)
		c.mu.Unlock()
	}
}

// rejection turns a non-2xx REST response into an error carrying the
// server's message and the matching error class.
func rejection(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(raw, &body)
	if body.Message == "" {
		body.Message = resp.Status
	}

	class := types.ErrTransport
	switch resp.StatusCode {
	case http.StatusNotFound:
		class = types.ErrNotFound
	case http.StatusForbidden, http.StatusUnauthorized:
		class = types.ErrForbidden
	case http.StatusConflict:
		class = types.ErrInvalidState
	case http.StatusBadRequest:
		class = types.ErrValidation
	}
	return fmt.Errorf("server rejected request (%d): %s: %w", resp.StatusCode, body.Message, class)
}
