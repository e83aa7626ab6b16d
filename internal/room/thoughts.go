package room

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/thoughtswap/thoughtswap/internal/eventlog"
	"github.com/thoughtswap/thoughtswap/internal/models"
	"github.com/thoughtswap/thoughtswap/internal/store"
	"github.com/thoughtswap/thoughtswap/internal/ws"
)

const (
	mcMinOptions = 2
	mcMaxOptions = 6
)

func validatePrompt(p SendPromptPayload) string {
	if strings.TrimSpace(p.Content) == "" {
		return "Prompt content must not be empty."
	}
	if !models.ValidPromptType(p.Type) {
		return "Unknown prompt type."
	}
	if p.Type == models.PromptMC {
		n := 0
		for _, opt := range p.Options {
			if strings.TrimSpace(opt) == "" {
				return "Multiple-choice options must not be empty."
			}
			n++
		}
		if n < mcMinOptions || n > mcMaxOptions {
			return fmt.Sprintf("Multiple-choice prompts need between %d and %d options.", mcMinOptions, mcMaxOptions)
		}
	}
	return ""
}

// SendPrompt appends a new prompt use, clears the previous distribution and
// moves the room to awaiting submissions.
func (s *Service) SendPrompt(c *ws.Client, p SendPromptPayload) {
	user := c.User()
	if user == nil || user.Role != models.RoleTeacher {
		return
	}
	code := NormalizeCode(p.JoinCode)
	room, ok := s.registry.Get(code)
	if !ok {
		s.emitError(c, msgInvalidRoomCode)
		return
	}
	if room.TeacherID != user.ID {
		return
	}
	if msg := validatePrompt(p); msg != "" {
		s.emitError(c, msg)
		return
	}

	ctx, cancel := opCtx()
	defer cancel()
	pu, err := s.store.AppendPromptUse(ctx, room.SessionID, p.Content, p.Type, p.Options)
	if err != nil {
		s.log.Error("append prompt use failed", zap.Error(err))
		s.emitError(c, msgInternalError)
		return
	}

	room.mu.Lock()
	room.setPrompt(pu)
	teachers := room.teacherConnIDs()
	participants := s.participantsPayloadLocked(room, 0)
	room.mu.Unlock()

	s.hub.EmitToRoom(code, ws.EvNewPrompt, PromptPayload{
		Content: pu.Content, PromptUseID: pu.ID, Type: pu.Type, Options: pu.Options,
	})
	for _, connID := range teachers {
		s.hub.EmitTo(connID, ws.EvThoughtsUpdate, ThoughtsPayload{Thoughts: []ThoughtInfo{}})
		s.hub.EmitTo(connID, ws.EvParticipantsUpdate, participants)
	}
	s.events.Record(eventlog.SendPrompt, user.ID, map[string]string{
		"joinCode": code, "promptUseId": pu.ID,
	})
}

// SubmitThought records a student's response to the current prompt. Stale
// submissions for a superseded prompt are discarded without error.
func (s *Service) SubmitThought(c *ws.Client, p SubmitThoughtPayload) {
	user := c.User()
	if user == nil || user.Role != models.RoleStudent {
		return
	}
	code := NormalizeCode(p.JoinCode)
	room, ok := s.registry.Get(code)
	if !ok {
		s.emitError(c, msgInvalidRoomCode)
		return
	}

	room.mu.Lock()
	_, inRoom := room.participants[c.ID]
	pu := room.prompt
	room.mu.Unlock()
	if !inRoom || pu == nil || pu.ID != p.PromptUseID {
		return
	}
	if strings.TrimSpace(p.Content) == "" {
		s.emitError(c, "Thought content must not be empty.")
		return
	}

	ctx, cancel := opCtx()
	defer cancel()
	thought, err := s.store.InsertThought(ctx, pu.ID, user.ID, p.Content)
	if errors.Is(err, store.ErrDuplicateThought) {
		s.emitError(c, "You have already submitted a thought for this prompt.")
		return
	}
	if err != nil {
		s.log.Error("insert thought failed", zap.Error(err))
		s.emitError(c, msgInternalError)
		return
	}

	thoughts, err := s.store.ListThoughts(ctx, pu.ID)
	if err != nil {
		s.log.Error("list thoughts failed", zap.Error(err))
		return
	}

	room.mu.Lock()
	teachers := room.teacherConnIDs()
	participants := s.participantsPayloadLocked(room, len(thoughts))
	room.mu.Unlock()

	for _, connID := range teachers {
		s.hub.EmitTo(connID, ws.EvThoughtsUpdate, thoughtsPayloadFrom(thoughts))
		s.hub.EmitTo(connID, ws.EvParticipantsUpdate, participants)
	}
	s.events.Record(eventlog.SubmitThought, user.ID, map[string]string{
		"joinCode": code, "thoughtId": thought.ID, "promptUseId": pu.ID,
	})
}

// DeleteThought removes a live thought. The author may resubmit afterwards;
// an already-swapped distribution keeps showing the deleted content until
// the teacher reassigns.
func (s *Service) DeleteThought(c *ws.Client, p DeleteThoughtPayload) {
	user := c.User()
	if user == nil || user.Role != models.RoleTeacher {
		return
	}
	code := NormalizeCode(p.JoinCode)
	room, ok := s.registry.Get(code)
	if !ok {
		s.emitError(c, msgInvalidRoomCode)
		return
	}
	if room.TeacherID != user.ID {
		return
	}

	ctx, cancel := opCtx()
	defer cancel()
	thought, pu, err := s.store.DeleteThought(ctx, p.ThoughtID)
	if errors.Is(err, store.ErrNotFound) {
		s.emitError(c, "Thought not found.")
		return
	}
	if err != nil {
		s.log.Error("delete thought failed", zap.Error(err))
		s.emitError(c, msgInternalError)
		return
	}

	room.mu.Lock()
	current := room.prompt
	var authorConns []string
	for _, participant := range room.participants {
		if participant.UserID == thought.AuthorID {
			authorConns = append(authorConns, participant.ConnID)
		}
	}
	room.mu.Unlock()

	if current != nil && current.ID == pu.ID {
		thoughts, err := s.store.ListThoughts(ctx, pu.ID)
		if err != nil {
			s.log.Error("list thoughts failed", zap.Error(err))
			thoughts = nil
		}
		room.mu.Lock()
		teachers := room.teacherConnIDs()
		participants := s.participantsPayloadLocked(room, len(thoughts))
		room.mu.Unlock()
		for _, connID := range teachers {
			s.hub.EmitTo(connID, ws.EvThoughtsUpdate, thoughtsPayloadFrom(thoughts))
			s.hub.EmitTo(connID, ws.EvParticipantsUpdate, participants)
		}
	}
	for _, connID := range authorConns {
		s.hub.EmitTo(connID, ws.EvThoughtDeleted, ThoughtDeletedPayload{
			Message: "Your thought was removed by the teacher. You may submit a new one.",
		})
	}
	s.events.Record(eventlog.DeleteThought, user.ID, map[string]string{
		"joinCode": code, "thoughtId": thought.ID,
	})
}

// TriggerSwap redistributes the current prompt's thoughts among the
// connected students.
func (s *Service) TriggerSwap(c *ws.Client, p JoinRoomPayload) {
	user := c.User()
	if user == nil || user.Role != models.RoleTeacher {
		return
	}
	code := NormalizeCode(p.JoinCode)
	room, ok := s.registry.Get(code)
	if !ok {
		s.emitError(c, msgInvalidRoomCode)
		return
	}
	if room.TeacherID != user.ID {
		return
	}

	room.mu.Lock()
	pu := room.prompt
	room.mu.Unlock()
	if pu == nil {
		s.emitError(c, "Send a prompt before swapping.")
		return
	}

	ctx, cancel := opCtx()
	defer cancel()
	rows, err := s.store.ListThoughts(ctx, pu.ID)
	if err != nil {
		s.log.Error("list thoughts failed", zap.Error(err))
		s.emitError(c, msgInternalError)
		return
	}
	if len(rows) == 0 {
		s.emitError(c, "No thoughts have been submitted yet.")
		return
	}
	thoughts := swapThoughtsFrom(rows)

	room.mu.Lock()
	recipients := room.studentRecipients()
	assignments := Swap(thoughts, recipients, newRng())
	room.distribution = make(map[string]Assignment, len(assignments))
	room.byUser = make(map[string]Assignment, len(assignments))
	for _, r := range recipients {
		if a, ok := assignments[r.ConnID]; ok {
			room.assign(r.ConnID, r.UserID, a)
		}
	}
	room.state = StateSwapped
	teachers := room.teacherConnIDs()
	distribution := s.distributionPayloadLocked(room)
	room.mu.Unlock()

	for connID, a := range assignments {
		s.hub.EmitTo(connID, ws.EvReceiveSwap, ReceiveSwapPayload{Content: a.Content})
	}
	for _, connID := range teachers {
		s.hub.EmitTo(connID, ws.EvDistributionUpdate, distribution)
	}
	s.hub.EmitTo(c.ID, ws.EvSwapCompleted, SwapCompletedPayload{Count: len(assignments)})
	s.events.Record(eventlog.TriggerSwap, user.ID, map[string]interface{}{
		"joinCode": code, "promptUseId": pu.ID, "recipients": len(assignments),
	})
}

// RequestNewThought lets a student trade their assigned thought for a
// different one, bounded by the session quota.
func (s *Service) RequestNewThought(c *ws.Client, p RequestNewThoughtPayload) {
	user := c.User()
	if user == nil || user.Role != models.RoleStudent {
		return
	}
	code := NormalizeCode(p.JoinCode)
	room, ok := s.registry.Get(code)
	if !ok {
		s.emitError(c, msgInvalidRoomCode)
		return
	}

	room.mu.Lock()
	pu := room.prompt
	state := room.state
	maxSwaps := room.MaxSwapRequests
	sessionID := room.SessionID
	room.mu.Unlock()
	if pu == nil || state != StateSwapped {
		s.emitError(c, "No swap is active right now.")
		return
	}

	ctx, cancel := opCtx()
	defer cancel()
	used, err := s.store.CountSwapRequests(ctx, user.ID, sessionID)
	if err != nil {
		s.log.Error("count swap requests failed", zap.Error(err))
		s.emitError(c, msgInternalError)
		return
	}
	if used >= maxSwaps {
		s.emitError(c, fmt.Sprintf("Limit reached: you have used all %d swap request(s) for this session.", maxSwaps))
		return
	}

	rows, err := s.store.ListThoughts(ctx, pu.ID)
	if err != nil {
		s.log.Error("list thoughts failed", zap.Error(err))
		s.emitError(c, msgInternalError)
		return
	}
	replacement, found := pickEligible(swapThoughtsFrom(rows), newRng(), func(t SwapThought) bool {
		return t.AuthorID != user.ID && t.Content != p.CurrentThoughtContent
	})
	if !found {
		s.emitError(c, "No other thought is available to swap.")
		return
	}

	// The quota is re-checked and committed under the room lock; concurrent
	// connections of the same student serialize here. Ledger commit precedes
	// the fan-out that reports it.
	a := Assignment{Content: replacement.Content, AuthorID: replacement.AuthorID, AuthorName: replacement.AuthorName}
	room.mu.Lock()
	used, err = s.store.CountSwapRequests(ctx, user.ID, sessionID)
	if err != nil {
		room.mu.Unlock()
		s.log.Error("count swap requests failed", zap.Error(err))
		s.emitError(c, msgInternalError)
		return
	}
	if used >= room.MaxSwapRequests {
		maxSwaps = room.MaxSwapRequests
		room.mu.Unlock()
		s.emitError(c, fmt.Sprintf("Limit reached: you have used all %d swap request(s) for this session.", maxSwaps))
		return
	}
	if err := s.store.RecordSwapRequest(ctx, user.ID, sessionID); err != nil {
		room.mu.Unlock()
		s.log.Error("record swap request failed", zap.Error(err))
		s.emitError(c, msgInternalError)
		return
	}
	room.assign(c.ID, user.ID, a)
	teachers := room.teacherConnIDs()
	distribution := s.distributionPayloadLocked(room)
	room.mu.Unlock()

	s.hub.EmitTo(c.ID, ws.EvReceiveSwap, ReceiveSwapPayload{Content: a.Content})
	for _, connID := range teachers {
		s.hub.EmitTo(connID, ws.EvDistributionUpdate, distribution)
	}
	s.events.Record(eventlog.RequestReswap, user.ID, map[string]string{
		"joinCode": code, "sessionId": sessionID,
	})
}

// Reassign hands a different thought to one student, teacher-initiated and
// quota-exempt. Thoughts differing from the current assignment are
// preferred when available.
func (s *Service) Reassign(c *ws.Client, p ReassignPayload) {
	user := c.User()
	if user == nil || user.Role != models.RoleTeacher {
		return
	}
	code := NormalizeCode(p.JoinCode)
	room, ok := s.registry.Get(code)
	if !ok {
		s.emitError(c, msgInvalidRoomCode)
		return
	}
	if room.TeacherID != user.ID {
		return
	}

	room.mu.Lock()
	pu := room.prompt
	target, inRoom := room.participants[p.StudentConnectionID]
	current, hasCurrent := room.distribution[p.StudentConnectionID]
	room.mu.Unlock()
	if pu == nil {
		s.emitError(c, "No swap is active right now.")
		return
	}
	if !inRoom || target.Role != models.RoleStudent {
		s.emitError(c, "That student is not connected.")
		return
	}

	ctx, cancel := opCtx()
	defer cancel()
	rows, err := s.store.ListThoughts(ctx, pu.ID)
	if err != nil {
		s.log.Error("list thoughts failed", zap.Error(err))
		s.emitError(c, msgInternalError)
		return
	}
	pool := swapThoughtsFrom(rows)

	rng := newRng()
	replacement, found := pickEligible(pool, rng, func(t SwapThought) bool {
		return t.AuthorID != target.UserID && (!hasCurrent || t.Content != current.Content)
	})
	if !found {
		replacement, found = pickEligible(pool, rng, func(t SwapThought) bool {
			return t.AuthorID != target.UserID
		})
	}
	if !found {
		s.emitError(c, "No eligible thought to assign to that student.")
		return
	}

	a := Assignment{Content: replacement.Content, AuthorID: replacement.AuthorID, AuthorName: replacement.AuthorName}
	room.mu.Lock()
	room.assign(target.ConnID, target.UserID, a)
	teachers := room.teacherConnIDs()
	distribution := s.distributionPayloadLocked(room)
	room.mu.Unlock()

	s.hub.EmitTo(target.ConnID, ws.EvReceiveSwap, ReceiveSwapPayload{Content: a.Content})
	for _, connID := range teachers {
		s.hub.EmitTo(connID, ws.EvDistributionUpdate, distribution)
	}
}

func swapThoughtsFrom(rows []store.ThoughtWithAuthor) []SwapThought {
	out := make([]SwapThought, 0, len(rows))
	for _, r := range rows {
		out = append(out, SwapThought{Content: r.Content, AuthorID: r.AuthorID, AuthorName: r.AuthorName})
	}
	return out
}
