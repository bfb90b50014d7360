package dispatcher

import (
	"sync"
	"time"

	"slidecast/pkg/types"
)

type noteKey struct {
	participantID string
	slideIndex    int
}

// noteBook holds per-participant slide notes for live sessions. Last write
// wins, no history. Notes are private to their author and never broadcast;
// durable storage is the persistence collaborator's concern.
type noteBook struct {
	mu        sync.RWMutex
	bySession map[string]map[noteKey]*types.Note
}

func newNoteBook() *noteBook {
	return &noteBook{bySession: make(map[string]map[noteKey]*types.Note)}
}

func (n *noteBook) Save(sessionID, participantID string, slideIndex int, content string) *types.Note {
	n.mu.Lock()
	defer n.mu.Unlock()

	notes := n.bySession[sessionID]
	if notes == nil {
		notes = make(map[noteKey]*types.Note)
		n.bySession[sessionID] = notes
	}

	note := &types.Note{
		SessionID:     sessionID,
		ParticipantID: participantID,
		SlideIndex:    slideIndex,
		Content:       content,
		UpdatedAt:     time.Now(),
	}
	notes[noteKey{participantID, slideIndex}] = note
	return note
}

func (n *noteBook) Get(sessionID, participantID string, slideIndex int) (*types.Note, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	note, ok := n.bySession[sessionID][noteKey{participantID, slideIndex}]
	return note, ok
}

func (n *noteBook) DropSession(sessionID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.bySession, sessionID)
}
