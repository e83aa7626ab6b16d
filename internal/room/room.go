package room

import (
	"sync"
	"time"

	"github.com/thoughtswap/thoughtswap/internal/models"
)

// State is the room's position in the prompt/swap cycle.
type State int

const (
	StateIdle State = iota
	StateAwaitingSubmissions
	StateSwapped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateAwaitingSubmissions:
		return "AWAITING_SUBMISSIONS"
	case StateSwapped:
		return "SWAPPED"
	}
	return "UNKNOWN"
}

// Participant is one live connection inside a room. Volatile; identified by
// connection id, with the user id kept for reconnect correlation.
type Participant struct {
	ConnID string
	UserID string
	Name   string
	Role   string
}

// Room is the authoritative in-memory state for one ACTIVE session. All
// mutation happens under mu; the registry owns the Room, connections hold
// only the join code.
type Room struct {
	mu sync.Mutex

	JoinCode        string
	CourseID        string
	SessionID       string
	TeacherID       string
	MaxSwapRequests int

	state        State
	prompt       *models.PromptUse
	participants map[string]*Participant

	// distribution is conn-keyed for fan-out; byUser mirrors it by user id
	// so a reconnecting student recovers their received thought.
	distribution map[string]Assignment
	byUser       map[string]Assignment

	// endTimer debounces teacher-disconnect auto-end.
	endTimer *time.Timer
}

func New(joinCode, courseID, sessionID, teacherID string, maxSwapRequests int) *Room {
	return &Room{
		JoinCode:        joinCode,
		CourseID:        courseID,
		SessionID:       sessionID,
		TeacherID:       teacherID,
		MaxSwapRequests: maxSwapRequests,
		state:           StateIdle,
		participants:    make(map[string]*Participant),
		distribution:    make(map[string]Assignment),
		byUser:          make(map[string]Assignment),
	}
}

// The helpers below assume mu is held by the caller.

func (r *Room) addParticipant(p *Participant) {
	r.participants[p.ConnID] = p
}

func (r *Room) removeParticipant(connID string) *Participant {
	p, ok := r.participants[connID]
	if !ok {
		return nil
	}
	delete(r.participants, connID)
	return p
}

func (r *Room) teacherConnIDs() []string {
	var ids []string
	for _, p := range r.participants {
		if p.Role == models.RoleTeacher {
			ids = append(ids, p.ConnID)
		}
	}
	return ids
}

func (r *Room) studentRecipients() []SwapRecipient {
	var recipients []SwapRecipient
	for _, p := range r.participants {
		if p.Role == models.RoleStudent {
			recipients = append(recipients, SwapRecipient{ConnID: p.ConnID, UserID: p.UserID})
		}
	}
	return recipients
}

// userStillPresent reports whether any connection for the user remains.
func (r *Room) userStillPresent(userID string) bool {
	for _, p := range r.participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

func (r *Room) setPrompt(pu *models.PromptUse) {
	r.prompt = pu
	r.distribution = make(map[string]Assignment)
	r.byUser = make(map[string]Assignment)
	r.state = StateAwaitingSubmissions
}

func (r *Room) clearPrompt() {
	r.prompt = nil
	r.distribution = make(map[string]Assignment)
	r.byUser = make(map[string]Assignment)
	r.state = StateIdle
}

func (r *Room) assign(connID, userID string, a Assignment) {
	r.distribution[connID] = a
	r.byUser[userID] = a
}

func (r *Room) cancelEndTimer() {
	if r.endTimer != nil {
		r.endTimer.Stop()
		r.endTimer = nil
	}
}
